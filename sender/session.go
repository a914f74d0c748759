package sender

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/zsiec/vstream/codec"
	"github.com/zsiec/vstream/protocol"
)

// MaxNumRtx caps how many times a single fragment may be retransmitted
// before the retransmission manager gives up on it (it is left in
// unacked, inert, until the give-up/key-frame recovery path clears it).
const MaxNumRtx = 3

// MaxUnackedUs is the give-up timeout: if the oldest unacked fragment's
// age exceeds this at an encode boundary, the sender forces a key frame
// and resets its queues.
const MaxUnackedUs = 1_000_000 // 1 second

// Stats is a snapshot of one encode's bookkeeping, used to build the
// per-frame CSV row and the metrics fed through Scheduler.OnStats.
type Stats struct {
	FrameID           uint32
	TargetBitrateKbps uint32
	FrameSizeBytes    int
	EncodeTimeMs      float64
	EWMARTTMs         float64
	RecoveryFired     bool
}

// Session owns all per-sender state confined to the single-threaded event
// loop: the encoder adapter, the fragment send queue, the unacked
// retransmission table, RTT estimation, and the monotonic frame id
// counter. Nothing here is safe for concurrent use; callers must confine
// all mutation to one goroutine, mirroring the scheduler's event loop.
type Session struct {
	log *slog.Logger

	enc               codec.Encoder
	width, height     uint16
	maxPayload        int
	targetBitrateKbps uint32

	frameID uint32

	send    *sendBuf
	unacked *unackedMap
	rtt     *rttEstimator
}

// NewSession creates a Session driving enc for a picture of the given
// size, fragmenting encoded output to fit maxPayload bytes per fragment.
// If log is nil, slog.Default() is used.
func NewSession(enc codec.Encoder, width, height uint16, maxPayload int, log *slog.Logger) *Session {
	if log == nil {
		log = slog.Default()
	}
	return &Session{
		log:        log.With("component", "sender-session"),
		enc:        enc,
		width:      width,
		height:     height,
		maxPayload: maxPayload,
		send:       newSendBuf(),
		unacked:    newUnackedMap(),
		rtt:        newRTTEstimator(),
	}
}

// SendBufEmpty reports whether there is anything queued to transmit.
func (s *Session) SendBufEmpty() bool { return s.send.Empty() }

// SetTargetBitrate live-reconfigures the encoder's CBR target.
func (s *Session) SetTargetBitrate(kbps uint32) {
	s.targetBitrateKbps = kbps
	s.enc.Reconfigure(kbps)
}

// Close releases the underlying encoder.
func (s *Session) Close() error {
	return s.enc.Close()
}

// giveUpCheck implements the key-frame recovery rule: if the oldest
// unacked fragment has aged past MaxUnackedUs, force the next encode to
// be a key frame and clear both queues. It is called once per encode,
// before the codec is invoked.
func (s *Session) giveUpCheck(nowUs uint64) bool {
	first, ok := s.unacked.First()
	if !ok {
		return false
	}
	if nowUs-first.SendTsUs <= MaxUnackedUs {
		return false
	}

	s.log.Warn("recovery: giving up on retransmissions, forcing key frame",
		"oldest_frame_id", first.FrameID, "oldest_frag_id", first.FragID,
		"num_rtx", first.NumRtx, "age_us", nowUs-first.SendTsUs)

	s.send.Clear()
	s.unacked = newUnackedMap()
	return true
}

// EncodeAndPacketize reads one raw frame through the codec and fragments
// whatever it returns into the send queue. It returns a Stats snapshot
// per encoded frame (usually exactly one, in steady state) for CSV
// logging and stats reporting.
func (s *Session) EncodeAndPacketize(raw []byte, nowUs uint64) ([]Stats, error) {
	forceIDR := s.giveUpCheck(nowUs)
	recoveryFired := forceIDR

	encodeStart := nowUs
	frames, err := s.enc.Encode(raw, forceIDR)
	if err != nil {
		return nil, fmt.Errorf("sender: encode failed: %w", err)
	}

	var stats []Stats
	for _, f := range frames {
		frameType := protocol.FrameTypeNonKey
		if f.KeyFrame {
			frameType = protocol.FrameTypeKey
		}

		frags, err := packetize(s.frameID, frameType, s.width, s.height, f.Bytes, s.maxPayload)
		if err != nil {
			return nil, fmt.Errorf("sender: packetize frame %d: %w", s.frameID, err)
		}
		for _, frag := range frags {
			s.send.PushBack(frag)
		}

		ewma, _ := s.rtt.EWMARTTUs()
		stats = append(stats, Stats{
			FrameID:           s.frameID,
			TargetBitrateKbps: s.targetBitrateKbps,
			FrameSizeBytes:    len(f.Bytes),
			EncodeTimeMs:      float64(nowUsFunc()-encodeStart) / 1000.0,
			EWMARTTMs:         ewma / 1000.0,
			RecoveryFired:     recoveryFired,
		})
		recoveryFired = false // only the first frame of the batch carries the flag

		s.frameID++
	}

	return stats, nil
}

// nowUsFunc reads the wall clock in microseconds; EncodeTimeMs is the
// difference between it and the nowUs passed to EncodeAndPacketize.
var nowUsFunc = func() uint64 { return uint64(time.Now().UnixMicro()) }

// TrySendFront attempts to transmit the head of the send queue via send.
// send must return (true, nil) on a successful transmit and (false, nil)
// on EWOULDBLOCK. On success, the datagram's SendTsUs is stamped before
// the call; on a would-block, it is reset to 0 so a later successful send
// re-stamps it. If the head was a fresh transmission (NumRtx == 0) it
// moves into the unacked table; if it was a retransmission, it is simply
// dropped (the canonical tracking entry already lives in unacked).
// Returns false once the queue is drained or a send would block.
func (s *Session) TrySendFront(nowUs uint64, send func(d *protocol.FrameDatagram) (bool, error)) (bool, error) {
	d, ok := s.send.Front()
	if !ok {
		return false, nil
	}

	d.SendTsUs = nowUs
	sent, err := send(d)
	if err != nil {
		return false, fmt.Errorf("sender: send failed: %w", err)
	}
	if !sent {
		d.SendTsUs = 0
		return false, nil
	}

	s.send.PopFront()
	if d.NumRtx == 0 {
		s.unacked.Insert(d)
	}
	return true, nil
}

// HandleAck implements the ACK-triggered retransmission rule: sample
// RTT, then walk unacked backward from the acknowledged fragment toward
// the session's oldest entry, retransmitting any that look lost, before
// erasing the acknowledged entry.
func (s *Session) HandleAck(ack protocol.Ack, nowUs uint64) {
	if ack.SendTsUs != 0 && nowUs >= ack.SendTsUs {
		s.rtt.AddSample(nowUs - ack.SendTsUs)
	}

	key := ack.Key()
	if _, ok := s.unacked.Get(key); !ok {
		return
	}

	ewma, haveEWMA := s.rtt.EWMARTTUs()

	s.unacked.ReverseFrom(key, func(d *protocol.FrameDatagram) bool {
		if d.NumRtx >= MaxNumRtx {
			return true
		}
		if d.NumRtx == 0 || (haveEWMA && float64(nowUs-d.LastSendUs) > ewma) {
			d.NumRtx++
			d.LastSendUs = nowUs
			// The canonical entry stays in unacked; only a copy goes back
			// on the wire, so TrySendFront re-stamping SendTsUs for this
			// retransmission attempt never disturbs the first-send
			// timestamp the give-up check ages against.
			cp := *d
			s.send.PushFront(&cp)
		}
		return true
	})

	s.unacked.Erase(key)
}
