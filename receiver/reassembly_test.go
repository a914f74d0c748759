package receiver

import (
	"errors"
	"testing"

	"github.com/zsiec/vstream/protocol"
)

func frag(frameID uint32, frameType protocol.FrameType, fragID, fragCount uint16, payload string) *protocol.FrameDatagram {
	return &protocol.FrameDatagram{
		FrameID: frameID, FrameType: frameType, FragID: fragID, FragCount: fragCount,
		Payload: []byte(payload),
	}
}

func TestReassemblyBuf_InOrderComplete(t *testing.T) {
	t.Parallel()
	b := newReassemblyBuf()

	b.Insert(frag(1, protocol.FrameTypeKey, 0, 2, "ab"))
	if _, _, ok := b.TryConsume(); ok {
		t.Fatal("frame should not be complete yet")
	}
	b.Insert(frag(1, protocol.FrameTypeKey, 1, 2, "cd"))

	f, recovered, ok := b.TryConsume()
	if !ok {
		t.Fatal("expected frame 1 to be complete")
	}
	if recovered {
		t.Error("in-order delivery should not report recovery")
	}
	if string(f.Bytes) != "abcd" {
		t.Errorf("reassembled = %q, want %q", f.Bytes, "abcd")
	}
	if f.FrameID != 1 {
		t.Errorf("FrameID = %d, want 1", f.FrameID)
	}
}

func TestReassemblyBuf_OutOfOrderFragments(t *testing.T) {
	t.Parallel()
	b := newReassemblyBuf()

	b.Insert(frag(5, protocol.FrameTypeNonKey, 2, 3, "z"))
	b.Insert(frag(5, protocol.FrameTypeNonKey, 0, 3, "x"))
	b.Insert(frag(5, protocol.FrameTypeNonKey, 1, 3, "y"))

	f, _, ok := b.TryConsume()
	if !ok {
		t.Fatal("expected frame 5 complete")
	}
	if string(f.Bytes) != "xyz" {
		t.Errorf("reassembled = %q, want %q", f.Bytes, "xyz")
	}
}

func TestReassemblyBuf_KeyFrameSeekRecovery(t *testing.T) {
	t.Parallel()
	b := newReassemblyBuf()

	// Frames 5..20 never complete; frame 21 (a key frame) arrives whole.
	for id := uint32(5); id <= 20; id++ {
		b.Insert(frag(id, protocol.FrameTypeNonKey, 0, 2, "partial"))
	}
	b.Insert(frag(21, protocol.FrameTypeKey, 0, 1, "idr"))

	f, recovered, ok := b.TryConsume()
	if !ok {
		t.Fatal("expected recovery to surface frame 21")
	}
	if !recovered {
		t.Error("expected recovered = true")
	}
	if f.FrameID != 21 {
		t.Errorf("FrameID = %d, want 21", f.FrameID)
	}
	if b.Len() != 0 {
		t.Errorf("buffer should be empty after pruning, has %d entries", b.Len())
	}
}

func TestReassemblyBuf_StaleFragmentsDropped(t *testing.T) {
	t.Parallel()
	b := newReassemblyBuf()

	b.Insert(frag(1, protocol.FrameTypeKey, 0, 1, "a"))
	if _, _, ok := b.TryConsume(); !ok {
		t.Fatal("expected frame 1 to consume")
	}

	// A late-arriving fragment for a frame at or before the last consumed
	// id must not resurrect a stale entry.
	b.Insert(frag(1, protocol.FrameTypeKey, 0, 1, "a"))
	b.Insert(frag(0, protocol.FrameTypeKey, 0, 1, "a"))
	if b.Len() != 0 {
		t.Errorf("stale fragments should be dropped, buffer has %d entries", b.Len())
	}
}

func TestReassemblyBuf_NothingReadyYet(t *testing.T) {
	t.Parallel()
	b := newReassemblyBuf()
	if _, _, ok := b.TryConsume(); ok {
		t.Fatal("empty buffer should not report a ready frame")
	}
	b.Insert(frag(1, protocol.FrameTypeNonKey, 0, 2, "x"))
	if _, _, ok := b.TryConsume(); ok {
		t.Fatal("partial frame should not be ready")
	}
}

func TestReassemblyBuf_FrameTypeMismatchRejected(t *testing.T) {
	t.Parallel()
	b := newReassemblyBuf()

	if err := b.Insert(frag(1, protocol.FrameTypeNonKey, 0, 2, "a")); err != nil {
		t.Fatalf("first fragment should be accepted, got %v", err)
	}
	err := b.Insert(frag(1, protocol.FrameTypeKey, 1, 2, "b"))
	if !errors.Is(err, ErrFrameMismatch) {
		t.Fatalf("got %v, want ErrFrameMismatch", err)
	}
}

func TestReassemblyBuf_FragCountMismatchRejectedWithoutPanic(t *testing.T) {
	t.Parallel()
	b := newReassemblyBuf()

	if err := b.Insert(frag(1, protocol.FrameTypeNonKey, 0, 2, "a")); err != nil {
		t.Fatalf("first fragment should be accepted, got %v", err)
	}
	// A later fragment claims a larger FragCount with a FragID beyond the
	// original 2-slot allocation; this must be rejected, not indexed.
	err := b.Insert(frag(1, protocol.FrameTypeNonKey, 5, 6, "b"))
	if !errors.Is(err, ErrFrameMismatch) {
		t.Fatalf("got %v, want ErrFrameMismatch", err)
	}
}

func TestReassemblyBuf_KeyFrameSeekPrefersNewest(t *testing.T) {
	t.Parallel()
	b := newReassemblyBuf()

	// Frame 1 never completes; two later key frames (10 and 15) both
	// complete. Recovery must jump straight to the newest, 15, rather
	// than stopping at the first (oldest) complete key frame it finds.
	b.Insert(frag(1, protocol.FrameTypeNonKey, 0, 2, "partial"))
	b.Insert(frag(10, protocol.FrameTypeKey, 0, 1, "old-idr"))
	b.Insert(frag(15, protocol.FrameTypeKey, 0, 1, "new-idr"))

	f, recovered, ok := b.TryConsume()
	if !ok {
		t.Fatal("expected recovery to surface a key frame")
	}
	if !recovered {
		t.Error("expected recovered = true")
	}
	if f.FrameID != 15 {
		t.Errorf("FrameID = %d, want 15 (the newest complete key frame)", f.FrameID)
	}
	if b.Len() != 0 {
		t.Errorf("buffer should be empty after pruning, has %d entries", b.Len())
	}
}
