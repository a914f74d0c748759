package receiver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/zsiec/vstream/protocol"
)

const readBufSize = 65536

// StatsSink receives one telemetry row per frame the receiver hands to
// the decode/display worker.
type StatsSink interface {
	WriteReceiverStats(FrameStats) error
}

// FrameStats is a snapshot of one delivered frame's bookkeeping.
type FrameStats struct {
	FrameID        uint32
	FrameSizeBytes int
	FramesLost     int
	Recovered      bool
}

// Scheduler owns the reassembly buffer and the decode/display worker. Its
// single goroutine reads the data channel, ACKs every fragment, feeds the
// reassembly buffer, and hands completed frames to the worker; a second
// goroutine drains the feedback channel. Bitrate updates are sent with
// SendSignal.
type Scheduler struct {
	dataConn     *net.UDPConn
	feedbackConn *net.UDPConn
	buf          *reassemblyBuf
	worker       *Worker
	stats        StatsSink
	log          *slog.Logger

	lastConsumedID   uint32
	haveLastConsumed bool

	onStats func(FrameStats)
}

// OnStats registers a callback invoked with every FrameStats record
// produced, in addition to whatever StatsSink was configured. Used to
// feed Prometheus metrics without coupling the scheduler to that package.
func (s *Scheduler) OnStats(fn func(FrameStats)) {
	s.onStats = fn
}

// NewScheduler builds a Scheduler. dataConn and feedbackConn must already
// be connected exclusively to the peer (see session.ReceiverHandshake,
// used after a net.DialUDP to the sender).
func NewScheduler(dataConn, feedbackConn *net.UDPConn, worker *Worker, stats StatsSink, log *slog.Logger) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	return &Scheduler{
		dataConn:     dataConn,
		feedbackConn: feedbackConn,
		buf:          newReassemblyBuf(),
		worker:       worker,
		stats:        stats,
		log:          log.With("component", "receiver-scheduler"),
	}
}

// SendSignal transmits one SIGNAL record on the feedback channel,
// announcing a new target bitrate to the sender.
func (s *Scheduler) SendSignal(targetKbps uint32) error {
	_, err := s.feedbackConn.Write(protocol.SerializeSignal(protocol.Signal{TargetBitrate: targetKbps}))
	if err != nil {
		return fmt.Errorf("receiver: send signal: %w", err)
	}
	return nil
}

// Run blocks reading the data channel until ctx is cancelled or a fatal
// I/O error occurs, ACKing every fragment and delivering completed
// frames to the worker as they become available.
func (s *Scheduler) Run(ctx context.Context) error {
	// Read has no deadline, so cancelling ctx alone would never unblock
	// it; closing the socket on cancellation does.
	stop := context.AfterFunc(ctx, func() { s.dataConn.Close() })
	defer stop()

	buf := make([]byte, readBufSize)
	for {
		if ctx.Err() != nil {
			return nil
		}
		n, err := s.dataConn.Read(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			return fmt.Errorf("receiver: read data channel: %w", err)
		}

		d, err := protocol.ParseFrameDatagram(buf[:n])
		if err != nil {
			return fmt.Errorf("receiver: malformed frame datagram: %w", err)
		}
		d.SendTsUs = readTimestampOrNow(d.SendTsUs)

		if err := s.ack(d); err != nil {
			return err
		}

		if err := s.buf.Insert(d); err != nil {
			return fmt.Errorf("receiver: %w", err)
		}
		s.drainReady()
	}
}

func readTimestampOrNow(ts uint64) uint64 {
	if ts != 0 {
		return ts
	}
	return uint64(time.Now().UnixMicro())
}

func (s *Scheduler) ack(d *protocol.FrameDatagram) error {
	ack := protocol.AckFor(d)
	_, err := s.dataConn.Write(protocol.SerializeAck(ack))
	if err != nil {
		return fmt.Errorf("receiver: send ack: %w", err)
	}
	return nil
}

// drainReady hands every currently-completable frame to the worker,
// counting the gap between consecutive delivered frame ids as loss.
func (s *Scheduler) drainReady() {
	for {
		frame, recovered, ok := s.buf.TryConsume()
		if !ok {
			return
		}

		lost := 0
		if s.haveLastConsumed && frame.FrameID > s.lastConsumedID+1 {
			lost = int(frame.FrameID - s.lastConsumedID - 1)
		}
		s.lastConsumedID = frame.FrameID
		s.haveLastConsumed = true

		if recovered {
			s.log.Warn("recovery: skipped ahead to next key frame", "frame_id", frame.FrameID, "frames_lost", lost)
		}

		s.worker.Submit(frame)

		fs := FrameStats{
			FrameID:        frame.FrameID,
			FrameSizeBytes: len(frame.Bytes),
			FramesLost:     lost,
			Recovered:      recovered,
		}
		if s.stats != nil {
			if err := s.stats.WriteReceiverStats(fs); err != nil {
				s.log.Error("write receiver stats failed", "error", err)
			}
		}
		if s.onStats != nil {
			s.onStats(fs)
		}
	}
}

// RunFeedback blocks reading the feedback channel purely to detect the
// peer going away; the receiver is the one that drives target bitrate,
// so nothing it might receive here is meaningful, but the socket must be
// drained to release kernel buffers.
func (s *Scheduler) RunFeedback(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { s.feedbackConn.Close() })
	defer stop()

	buf := make([]byte, readBufSize)
	for {
		if ctx.Err() != nil {
			return nil
		}
		_, err := s.feedbackConn.Read(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("receiver: read feedback channel: %w", err)
		}
	}
}
