package sender

import (
	"testing"

	"github.com/zsiec/vstream/codec"
	"github.com/zsiec/vstream/protocol"
)

// fakeEncoder is a deterministic codec.Encoder test double: it returns
// exactly the bytes it was given, tagged as a key frame exactly when
// forceIDR is true.
type fakeEncoder struct {
	calls       int
	nextKeyErr  bool
	closeCalled bool
}

func (f *fakeEncoder) Encode(raw []byte, forceIDR bool) ([]codec.EncodedFrame, error) {
	f.calls++
	return []codec.EncodedFrame{{Bytes: raw, KeyFrame: forceIDR}}, nil
}

func (f *fakeEncoder) Reconfigure(uint32) {}

func (f *fakeEncoder) Close() error {
	f.closeCalled = true
	return nil
}

func drainAll(t *testing.T, s *Session, nowUs uint64) []*protocol.FrameDatagram {
	t.Helper()
	var sent []*protocol.FrameDatagram
	for !s.SendBufEmpty() {
		ok, err := s.TrySendFront(nowUs, func(d *protocol.FrameDatagram) (bool, error) {
			cp := *d
			cp.Payload = append([]byte{}, d.Payload...)
			sent = append(sent, &cp)
			return true, nil
		})
		if err != nil {
			t.Fatal(err)
		}
		if !ok {
			break
		}
	}
	return sent
}

func TestSessionEncodeAndPacketize(t *testing.T) {
	t.Parallel()

	enc := &fakeEncoder{}
	s := NewSession(enc, 64, 48, 5, nil) // maxPayload=5 forces multiple fragments

	raw := []byte("0123456789ABC") // 13 bytes -> 3 fragments of 5,5,3
	if _, err := s.EncodeAndPacketize(raw, 1000); err != nil {
		t.Fatal(err)
	}

	sent := drainAll(t, s, 2000)
	if len(sent) != 3 {
		t.Fatalf("got %d fragments, want 3", len(sent))
	}
	for i, d := range sent {
		if int(d.FragID) != i {
			t.Errorf("fragment %d has FragID=%d", i, d.FragID)
		}
		if d.FragCount != 3 {
			t.Errorf("fragment %d has FragCount=%d, want 3", i, d.FragCount)
		}
	}

	var reassembled []byte
	for _, d := range sent {
		reassembled = append(reassembled, d.Payload...)
	}
	if string(reassembled) != string(raw) {
		t.Errorf("reassembled = %q, want %q", reassembled, raw)
	}
}

func TestSessionHandleAck_RetransmitsEarlierFragments(t *testing.T) {
	t.Parallel()

	enc := &fakeEncoder{}
	s := NewSession(enc, 64, 48, 1000, nil)

	// Frame 3 has 3 fragments; simulate that all 3 were sent (unacked)
	// and that fragment 1 was lost, only fragment 2's ACK arrives.
	frags, err := packetize(3, protocol.FrameTypeNonKey, 64, 48, []byte("abc"), 1)
	if err != nil {
		t.Fatal(err)
	}
	for i, f := range frags {
		f.SendTsUs = uint64(100 + i)
		s.unacked.Insert(f)
	}

	ack := protocol.Ack{FrameID: 3, FragID: 2, SendTsUs: frags[2].SendTsUs}
	s.HandleAck(ack, 5000)

	if s.SendBufEmpty() {
		t.Fatal("expected a retransmission to be queued")
	}
	sent := drainAll(t, s, 6000)
	if len(sent) != 2 {
		t.Fatalf("got %d retransmissions, want 2 (frag 0 and frag 1)", len(sent))
	}
	// Retransmissions preempt fresh traffic and each push to the front,
	// so the oldest retransmitted fragment (frag 0) ends up truly first.
	if sent[0].FragID != 0 || sent[1].FragID != 1 {
		t.Errorf("got order %d,%d, want 0,1", sent[0].FragID, sent[1].FragID)
	}
	for _, d := range sent {
		if d.NumRtx != 1 {
			t.Errorf("fragment %d NumRtx = %d, want 1", d.FragID, d.NumRtx)
		}
	}

	if _, ok := s.unacked.Get(ack.Key()); ok {
		t.Error("acked key should have been erased from unacked")
	}
}

func TestSessionHandleAck_Idempotent(t *testing.T) {
	t.Parallel()
	enc := &fakeEncoder{}
	s := NewSession(enc, 1, 1, 1000, nil)

	ack := protocol.Ack{FrameID: 1, FragID: 0, SendTsUs: 100}
	s.HandleAck(ack, 200) // no entry in unacked at all
	s.HandleAck(ack, 300) // repeat: must not panic or queue anything

	if !s.SendBufEmpty() {
		t.Error("idempotent ACK replay should not queue a retransmission")
	}
}

func TestSessionHandleAck_RetransmitDoesNotBumpFirstSendTimestamp(t *testing.T) {
	t.Parallel()
	enc := &fakeEncoder{}
	s := NewSession(enc, 1, 1, 1000, nil)

	// target's SendTsUs is its first-send timestamp; the give-up check
	// ages against it, so a retransmission must never move it.
	target := &protocol.FrameDatagram{FrameID: 1, FragID: 0, SendTsUs: 100}
	s.unacked.Insert(target)
	s.unacked.Insert(&protocol.FrameDatagram{FrameID: 1, FragID: 1, SendTsUs: 200})

	s.HandleAck(protocol.Ack{FrameID: 1, FragID: 1, SendTsUs: 200}, 5_000_000)

	sent := drainAll(t, s, 5_000_001)
	if len(sent) != 1 {
		t.Fatalf("got %d retransmissions, want 1", len(sent))
	}
	if target.SendTsUs != 100 {
		t.Errorf("unacked entry's SendTsUs = %d, want frozen at 100", target.SendTsUs)
	}
	if sent[0].SendTsUs != 5_000_001 {
		t.Errorf("transmitted copy's SendTsUs = %d, want the send-time stamp 5000001", sent[0].SendTsUs)
	}
}

func TestSessionMaxRtxCap(t *testing.T) {
	t.Parallel()
	enc := &fakeEncoder{}
	s := NewSession(enc, 1, 1, 1000, nil)

	target := &protocol.FrameDatagram{FrameID: 1, FragID: 0, SendTsUs: 0}
	s.unacked.Insert(target)

	enqueues := 0
	now := uint64(10_000_000)
	for i := 0; i < 6; i++ {
		// A sentinel fragment key newer than target's, re-armed each
		// round so the reverse walk keeps reaching 'target'. ACKing it
		// with SendTsUs == now keeps the RTT sample (and thus EWMA) at
		// zero, so every eligible retransmission fires unconditionally.
		s.unacked.Insert(&protocol.FrameDatagram{FrameID: 1, FragID: 1, SendTsUs: now})
		s.HandleAck(protocol.Ack{FrameID: 1, FragID: 1, SendTsUs: now}, now)

		for !s.SendBufEmpty() {
			s.send.PopFront()
			enqueues++
		}
		now += 10_000_000
	}

	// This test never performs the fragment's original fresh transmission
	// (it seeds 'target' directly into unacked), so the bound here is
	// MaxNumRtx retransmissions; a fragment's whole-lifetime bound
	// including that initial send is 1+MaxNumRtx enqueues.
	if enqueues > MaxNumRtx {
		t.Errorf("target fragment retransmitted %d times, want at most %d", enqueues, MaxNumRtx)
	}
	if target.NumRtx != MaxNumRtx {
		t.Errorf("NumRtx = %d, want %d", target.NumRtx, MaxNumRtx)
	}
}

func TestSessionGiveUpTriggersKeyFrame(t *testing.T) {
	t.Parallel()
	enc := &fakeEncoder{}
	s := NewSession(enc, 10, 10, 1000, nil)

	old := &protocol.FrameDatagram{FrameID: 0, FragID: 0, SendTsUs: 1_000_000}
	s.unacked.Insert(old)
	s.send.PushBack(&protocol.FrameDatagram{FrameID: 0, FragID: 1, SendTsUs: 1_000_000})

	now := uint64(1_000_000 + MaxUnackedUs + 1)
	stats, err := s.EncodeAndPacketize([]byte("raw-frame"), now)
	if err != nil {
		t.Fatal(err)
	}
	if len(stats) != 1 || !stats[0].RecoveryFired {
		t.Fatalf("expected recovery to fire, got %+v", stats)
	}
	// Checked before draining: sending the new key frame puts its own
	// fragment into unacked.
	if !s.unacked.Empty() {
		t.Error("unacked should have been cleared by recovery")
	}

	sent := drainAll(t, s, now+1)
	if len(sent) != 1 {
		t.Fatalf("got %d fragments after recovery, want 1", len(sent))
	}
	if sent[0].FrameType != protocol.FrameTypeKey {
		t.Errorf("frame type = %v, want key", sent[0].FrameType)
	}
}
