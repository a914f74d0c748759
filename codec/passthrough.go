package codec

import (
	"encoding/binary"
	"fmt"
)

// passthroughHeaderSize is the software reference codec's per-frame
// envelope: keyframe flag(1) + width(2) + height(2).
const passthroughHeaderSize = 1 + 2 + 2

// NewPassthroughEncoder returns a software Encoder that does not actually
// compress anything: it wraps each raw planar frame in a small envelope
// recording the keyframe flag and picture size, so NewPassthroughDecoder
// can recover it exactly. It exists so the sender/receiver pipeline is
// exercisable and testable end-to-end without a real hardware codec,
// while still honoring the Encoder contract (force_idr, one-in-one-out,
// live reconfigure) a hardware adapter would need to honor too.
func NewPassthroughEncoder(width, height uint16) Encoder {
	return &passthroughEncoder{width: width, height: height, firstFrame: true}
}

type passthroughEncoder struct {
	width, height     uint16
	firstFrame        bool
	targetBitrateKbps uint32
	closed            bool
}

func (e *passthroughEncoder) Encode(raw []byte, forceIDR bool) ([]EncodedFrame, error) {
	if e.closed {
		return nil, fmt.Errorf("codec: encode on closed encoder")
	}

	keyFrame := forceIDR || e.firstFrame
	e.firstFrame = false

	out := make([]byte, passthroughHeaderSize+len(raw))
	if keyFrame {
		out[0] = 1
	}
	binary.LittleEndian.PutUint16(out[1:3], e.width)
	binary.LittleEndian.PutUint16(out[3:5], e.height)
	copy(out[passthroughHeaderSize:], raw)

	return []EncodedFrame{{Bytes: out, KeyFrame: keyFrame}}, nil
}

func (e *passthroughEncoder) Reconfigure(targetBitrateKbps uint32) {
	e.targetBitrateKbps = targetBitrateKbps
}

func (e *passthroughEncoder) Close() error {
	e.closed = true
	return nil
}

// NewPassthroughDecoder returns the Decoder counterpart to
// NewPassthroughEncoder.
func NewPassthroughDecoder() Decoder {
	return &passthroughDecoder{}
}

type passthroughDecoder struct {
	closed bool
}

func (d *passthroughDecoder) Decode(bitstream []byte) ([]PixelFrame, error) {
	if d.closed {
		return nil, fmt.Errorf("codec: decode on closed decoder")
	}
	if len(bitstream) < passthroughHeaderSize {
		return nil, fmt.Errorf("codec: truncated frame: %d bytes", len(bitstream))
	}

	width := int(binary.LittleEndian.Uint16(bitstream[1:3]))
	height := int(binary.LittleEndian.Uint16(bitstream[3:5]))
	data := make([]byte, len(bitstream)-passthroughHeaderSize)
	copy(data, bitstream[passthroughHeaderSize:])

	return []PixelFrame{{Width: width, Height: height, Data: data}}, nil
}

func (d *passthroughDecoder) Close() error {
	d.closed = true
	return nil
}
