package sender

import (
	"fmt"

	"github.com/zsiec/vstream/protocol"
)

// packetize slices one encoded bitstream of length L > 0 into
// ceil(L/maxPayload) fixed-size fragments (the last one short). Fragments
// are returned in frag-id order.
func packetize(frameID uint32, frameType protocol.FrameType, width, height uint16, bitstream []byte, maxPayload int) ([]*protocol.FrameDatagram, error) {
	if len(bitstream) == 0 {
		return nil, fmt.Errorf("sender: cannot packetize an empty bitstream")
	}
	if maxPayload <= 0 {
		return nil, fmt.Errorf("sender: max payload must be positive, got %d", maxPayload)
	}

	fragCount := (len(bitstream) + maxPayload - 1) / maxPayload
	frags := make([]*protocol.FrameDatagram, fragCount)

	for k := 0; k < fragCount; k++ {
		start := k * maxPayload
		end := start + maxPayload
		if end > len(bitstream) {
			end = len(bitstream)
		}
		payload := make([]byte, end-start)
		copy(payload, bitstream[start:end])

		frags[k] = &protocol.FrameDatagram{
			FrameID:   frameID,
			FrameType: frameType,
			FragID:    uint16(k),
			FragCount: uint16(fragCount),
			Width:     width,
			Height:    height,
			Payload:   payload,
		}
	}

	return frags, nil
}
