package stats

import (
	"github.com/zsiec/vstream/receiver"
	"github.com/zsiec/vstream/sender"
)

// SenderSink adapts a CSV Writer to sender.StatsSink.
type SenderSink struct {
	W *Writer
}

func (s SenderSink) WriteSenderStats(st sender.Stats) error {
	return s.W.WriteSenderStats(SenderRow{
		FrameID:           st.FrameID,
		TargetBitrateKbps: st.TargetBitrateKbps,
		FrameSizeBytes:    st.FrameSizeBytes,
		EncodeTimeMs:      st.EncodeTimeMs,
		EWMARTTMs:         st.EWMARTTMs,
		RecoveryFired:     st.RecoveryFired,
	})
}

// ReceiverSink adapts a CSV Writer to receiver.StatsSink.
type ReceiverSink struct {
	W *Writer
}

func (s ReceiverSink) WriteReceiverStats(st receiver.FrameStats) error {
	return s.W.WriteReceiverStats(ReceiverRow{
		FrameID:        st.FrameID,
		FrameSizeBytes: st.FrameSizeBytes,
		FramesLost:     st.FramesLost,
		DecodeTimeMs:   0,
		DisplayTimeMs:  0,
	})
}
