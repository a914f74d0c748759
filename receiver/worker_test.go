package receiver

import (
	"sync"
	"testing"
	"time"

	"github.com/zsiec/vstream/codec"
)

func TestWorker_DecodeDisplayShowsEveryFrame(t *testing.T) {
	t.Parallel()

	enc := codec.NewPassthroughEncoder(2, 2)
	dec := codec.NewPassthroughDecoder()

	var mu sync.Mutex
	var seen []int
	display := func(p codec.PixelFrame) {
		mu.Lock()
		seen = append(seen, len(p.Data))
		mu.Unlock()
	}

	w := NewWorker(dec, display, LazyDecodeDisplay, nil)
	w.Start()

	for i := 0; i < 5; i++ {
		frames, err := enc.Encode([]byte{byte(i), byte(i), byte(i), byte(i)}, false)
		if err != nil {
			t.Fatal(err)
		}
		w.Submit(&Frame{FrameID: uint32(i), Bytes: frames[0].Bytes})
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		if w.Stats() == 5 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for decode, got %d/5", w.Stats())
		}
		time.Sleep(time.Millisecond)
	}

	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 5 {
		t.Errorf("displayed %d frames, want 5", len(seen))
	}
}

func TestWorker_DecodeOnlyNeverDisplays(t *testing.T) {
	t.Parallel()

	enc := codec.NewPassthroughEncoder(2, 2)
	dec := codec.NewPassthroughDecoder()

	called := false
	display := func(codec.PixelFrame) { called = true }

	w := NewWorker(dec, display, LazyDecodeOnly, nil)
	w.Start()

	for i := 0; i < 3; i++ {
		frames, err := enc.Encode([]byte{byte(i), byte(i), byte(i), byte(i)}, false)
		if err != nil {
			t.Fatal(err)
		}
		w.Submit(&Frame{FrameID: uint32(i), Bytes: frames[0].Bytes})
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		if w.Stats() == 3 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for decode, got %d/3", w.Stats())
		}
		time.Sleep(time.Millisecond)
	}

	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	if called {
		t.Error("display should never be called at LazyDecodeOnly")
	}
}

func TestWorker_LazyDisabledNeverStarts(t *testing.T) {
	t.Parallel()
	dec := codec.NewPassthroughDecoder()
	called := false
	w := NewWorker(dec, func(codec.PixelFrame) { called = true }, LazyDisabled, nil)
	w.Start()
	w.Submit(&Frame{FrameID: 1, Bytes: []byte{0, 0, 0, 0, 0, 1}})

	time.Sleep(20 * time.Millisecond)
	if called {
		t.Error("display should never be called at LazyDisabled")
	}
	if decoded := w.Stats(); decoded != 0 {
		t.Errorf("decoded = %d, want 0", decoded)
	}
}
