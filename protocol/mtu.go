package protocol

import "fmt"

// DefaultMTU matches typical Ethernet (1500 bytes).
const DefaultMTU = 1500

// MaxPayload computes the largest FrameDatagram payload that fits within
// mtu, returning an error if the header alone would not fit.
func MaxPayload(mtu int) (int, error) {
	max := mtu - FrameDatagramHeaderSize
	if max <= 0 {
		return 0, fmt.Errorf("protocol: mtu %d too small for header of %d bytes", mtu, FrameDatagramHeaderSize)
	}
	return max, nil
}
