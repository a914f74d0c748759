package sender

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/zsiec/vstream/protocol"
)

// FrameSource supplies raw pixel frames to encode, one per tick of the
// frame-rate timer. yuv.Reader is the production implementation.
type FrameSource interface {
	NextFrame() ([]byte, error)
}

// StatsSink receives one Stats record per encoded frame, for logging.
type StatsSink interface {
	WriteSenderStats(Stats) error
}

const readBufSize = 65536

// event is the union of everything the scheduler's single goroutine can
// react to: a fresh frame to encode, a control datagram off the data
// channel, or a SIGNAL off the feedback channel.
type event struct {
	frame  []byte
	skip   int
	ack    *protocol.Ack
	signal *protocol.Signal
}

// Scheduler drives one Session end to end: it owns the data and feedback
// sockets, reads raw frames on a fixed cadence, and multiplexes frame
// ticks, ACKs, and bitrate signals onto a single goroutine so that all
// Session mutation stays single-threaded. Each blocking I/O source (the
// frame timer, the data-channel reader, the feedback-channel reader) runs
// on its own goroutine and only ever posts events to a shared channel;
// none of them touch Session state directly.
type Scheduler struct {
	session      *Session
	dataConn     *net.UDPConn
	feedbackConn *net.UDPConn
	frames       FrameSource
	frameRate    uint16
	stats        StatsSink
	log          *slog.Logger

	onStats func(Stats)
}

// OnStats registers a callback invoked with every Stats record produced,
// in addition to whatever StatsSink was configured. Used to feed
// Prometheus metrics without coupling the scheduler to that package.
func (s *Scheduler) OnStats(fn func(Stats)) {
	s.onStats = fn
}

// NewScheduler builds a Scheduler. dataConn and feedbackConn must already
// be connected exclusively to the peer (see session.SenderHandshake).
func NewScheduler(session *Session, dataConn, feedbackConn *net.UDPConn, frames FrameSource, frameRate uint16, stats StatsSink, log *slog.Logger) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	return &Scheduler{
		session:      session,
		dataConn:     dataConn,
		feedbackConn: feedbackConn,
		frames:       frames,
		frameRate:    frameRate,
		stats:        stats,
		log:          log.With("component", "sender-scheduler"),
	}
}

// Run drives the session until ctx is cancelled or an unrecoverable I/O
// error occurs. It never returns nil except on context cancellation.
func (s *Scheduler) Run(ctx context.Context) error {
	events := make(chan event, 64)

	g, ctx := errgroup.WithContext(ctx)

	// Read on dataConn/feedbackConn has no deadline, so cancelling ctx
	// alone would never unblock runDataReader/runFeedbackReader; closing
	// the sockets on cancellation does.
	stopData := context.AfterFunc(ctx, func() { s.dataConn.Close() })
	defer stopData()
	stopFeedback := context.AfterFunc(ctx, func() { s.feedbackConn.Close() })
	defer stopFeedback()

	g.Go(func() error { return s.runFrameTimer(ctx, events) })
	g.Go(func() error { return s.runDataReader(ctx, events) })
	g.Go(func() error { return s.runFeedbackReader(ctx, events) })
	g.Go(func() error { return s.runLoop(ctx, events) })

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// runFrameTimer fires once per frame interval, posting the next raw frame.
// Go's time.Ticker silently drops ticks it can't deliver in time, so a
// slow consumer would otherwise never learn frames were skipped; this
// tracks the expected fire time itself and reports how many intervals
// actually elapsed, the same signal a Linux timerfd's expiration count
// gives the original poll loop.
func (s *Scheduler) runFrameTimer(ctx context.Context, events chan<- event) error {
	if s.frameRate == 0 {
		return fmt.Errorf("sender: frame rate must be positive")
	}
	interval := time.Second / time.Duration(s.frameRate)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	expected := time.Now().Add(interval)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			elapsed := now.Sub(expected) + interval
			n := int(elapsed / interval)
			if n < 1 {
				n = 1
			}
			expected = expected.Add(interval * time.Duration(n))

			raw, err := s.frames.NextFrame()
			if err != nil {
				return fmt.Errorf("sender: read frame: %w", err)
			}
			ev := event{frame: raw}
			if n > 1 {
				ev.skip = n - 1
			}
			select {
			case events <- ev:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

// runDataReader blocks reading the data channel for ACKs.
func (s *Scheduler) runDataReader(ctx context.Context, events chan<- event) error {
	buf := make([]byte, readBufSize)
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		n, err := s.dataConn.Read(buf)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("sender: read data channel: %w", err)
		}
		ack, err := protocol.ParseAck(buf[:n])
		if err != nil {
			s.log.Warn("discarding malformed datagram on data channel")
			continue
		}
		select {
		case events <- event{ack: &ack}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// runFeedbackReader blocks reading the feedback channel for bitrate signals.
func (s *Scheduler) runFeedbackReader(ctx context.Context, events chan<- event) error {
	buf := make([]byte, readBufSize)
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		n, err := s.feedbackConn.Read(buf)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("sender: read feedback channel: %w", err)
		}
		sig, err := protocol.ParseSignal(buf[:n])
		if err != nil {
			s.log.Warn("discarding malformed datagram on feedback channel")
			continue
		}
		select {
		case events <- event{signal: &sig}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// runLoop is the single goroutine that owns all Session mutation. It
// drains the send queue after every event that might have grown it, and
// emits a Stats record for every frame the session assembled.
func (s *Scheduler) runLoop(ctx context.Context, events <-chan event) error {
	statsTick := time.NewTicker(time.Second)
	defer statsTick.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev := <-events:
			nowUs := uint64(time.Now().UnixMicro())

			switch {
			case ev.frame != nil:
				if ev.skip > 0 {
					s.log.Warn("frame timer skipped ticks", "skipped", ev.skip)
				}
				frameStats, err := s.session.EncodeAndPacketize(ev.frame, nowUs)
				if err != nil {
					return err
				}
				for _, st := range frameStats {
					if s.stats != nil {
						if err := s.stats.WriteSenderStats(st); err != nil {
							s.log.Error("write sender stats failed", "error", err)
						}
					}
					if s.onStats != nil {
						s.onStats(st)
					}
				}

			case ev.ack != nil:
				s.session.HandleAck(*ev.ack, nowUs)

			case ev.signal != nil:
				s.log.Info("target bitrate updated", "kbps", ev.signal.TargetBitrate)
				s.session.SetTargetBitrate(ev.signal.TargetBitrate)
			}

			if err := s.drainSendQueue(nowUs); err != nil {
				return err
			}

		case <-statsTick.C:
			s.log.Debug("sender alive", "send_queue_len", s.session.send.Len())
		}
	}
}

// drainSendQueue flushes as much of the session's queue as the socket
// will accept right now.
func (s *Scheduler) drainSendQueue(nowUs uint64) error {
	for {
		sent, err := s.session.TrySendFront(nowUs, s.writeDatagram)
		if err != nil {
			return err
		}
		if !sent {
			return nil
		}
	}
}

func (s *Scheduler) writeDatagram(d *protocol.FrameDatagram) (bool, error) {
	_, err := s.dataConn.Write(protocol.SerializeFrameDatagram(d))
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
