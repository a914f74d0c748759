package receiver

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/zsiec/vstream/codec"
)

// LazyLevel controls how much of the decode/display path a Worker runs.
type LazyLevel int

const (
	// LazyDecodeDisplay decodes every reassembled frame and hands each
	// decoded picture to the display sink.
	LazyDecodeDisplay LazyLevel = 0
	// LazyDecodeOnly decodes every reassembled frame but never displays
	// it, exercising the decoder without the display sink.
	LazyDecodeOnly LazyLevel = 1
	// LazyDisabled skips decode and display entirely; reassembly still
	// runs, but no worker goroutine is ever started.
	LazyDisabled LazyLevel = 2
)

// DisplayFunc consumes one decoded picture.
type DisplayFunc func(codec.PixelFrame)

// Worker decodes reassembled frames on its own goroutine, in arrival
// order, handing pixel output to an optional display sink unless level is
// LazyDecodeOnly. The network goroutine hands off frames through Submit;
// a mutex and condition variable pair them, the same producer/consumer
// handoff pattern used for any producer whose arrival rate can outrun its
// consumer.
type Worker struct {
	mu      sync.Mutex
	cond    *sync.Cond
	dec     codec.Decoder
	display DisplayFunc
	level   LazyLevel
	log     *slog.Logger

	queue  []*Frame
	closed bool
	wg     sync.WaitGroup

	decodedCount int
}

// NewWorker builds a Worker. At LazyDisabled, Start is a no-op and Submit
// silently discards every frame.
func NewWorker(dec codec.Decoder, display DisplayFunc, level LazyLevel, log *slog.Logger) *Worker {
	if log == nil {
		log = slog.Default()
	}
	w := &Worker{dec: dec, display: display, level: level, log: log.With("component", "receiver-worker")}
	w.cond = sync.NewCond(&w.mu)
	return w
}

// Start spawns the decode/display goroutine, unless the worker is at
// LazyDisabled.
func (w *Worker) Start() {
	if w.level == LazyDisabled {
		return
	}
	w.wg.Add(1)
	go w.run()
}

// Submit hands one reassembled frame to the worker. It never blocks.
func (w *Worker) Submit(f *Frame) {
	if w.level == LazyDisabled {
		return
	}
	w.mu.Lock()
	w.queue = append(w.queue, f)
	w.cond.Signal()
	w.mu.Unlock()
}

// Close signals the worker to drain and exit, then waits for it.
func (w *Worker) Close() error {
	w.mu.Lock()
	w.closed = true
	w.cond.Broadcast()
	w.mu.Unlock()
	w.wg.Wait()
	return w.dec.Close()
}

// Stats reports how many frames the worker has decoded.
func (w *Worker) Stats() (decoded int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.decodedCount
}

func (w *Worker) run() {
	defer w.wg.Done()
	for {
		f := w.next()
		if f == nil {
			return
		}
		pix, err := w.dec.Decode(f.Bytes)
		if err != nil {
			w.log.Error("decode failed", "frame_id", f.FrameID, "error", fmt.Errorf("receiver: %w", err))
			continue
		}
		w.mu.Lock()
		w.decodedCount++
		w.mu.Unlock()
		if w.level == LazyDecodeDisplay && w.display != nil {
			for _, p := range pix {
				w.display(p)
			}
		}
	}
}

// next blocks until a frame is queued or the worker is closed with
// nothing left to do, in which case it returns nil.
func (w *Worker) next() *Frame {
	w.mu.Lock()
	defer w.mu.Unlock()

	for len(w.queue) == 0 && !w.closed {
		w.cond.Wait()
	}
	if len(w.queue) == 0 {
		return nil
	}
	f := w.queue[0]
	w.queue = w.queue[1:]
	return f
}
