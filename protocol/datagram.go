package protocol

import "encoding/binary"

// SerializeFrameDatagram encodes d into its wire form. The caller is
// responsible for keeping the result within the configured MTU; this
// function performs no MTU check, since exceeding it is a programming
// error rather than a runtime condition (the packetizer never produces
// an oversized fragment).
func SerializeFrameDatagram(d *FrameDatagram) []byte {
	buf := make([]byte, FrameDatagramHeaderSize+len(d.Payload))
	binary.LittleEndian.PutUint32(buf[0:4], d.FrameID)
	buf[4] = byte(d.FrameType)
	binary.LittleEndian.PutUint16(buf[5:7], d.FragID)
	binary.LittleEndian.PutUint16(buf[7:9], d.FragCount)
	binary.LittleEndian.PutUint16(buf[9:11], d.Width)
	binary.LittleEndian.PutUint16(buf[11:13], d.Height)
	binary.LittleEndian.PutUint64(buf[13:21], d.SendTsUs)
	copy(buf[FrameDatagramHeaderSize:], d.Payload)
	return buf
}

// ParseFrameDatagram decodes a FrameDatagram from buf. It returns
// ErrMalformed if the header is truncated, frame-type is outside
// {KEY, NONKEY}, frag-count is zero, or frag-id is out of range. The
// header carries no payload length: every byte after the header is the
// payload.
func ParseFrameDatagram(buf []byte) (*FrameDatagram, error) {
	if len(buf) < FrameDatagramHeaderSize {
		return nil, ErrMalformed
	}

	d := &FrameDatagram{
		FrameID:   binary.LittleEndian.Uint32(buf[0:4]),
		FrameType: FrameType(buf[4]),
		FragID:    binary.LittleEndian.Uint16(buf[5:7]),
		FragCount: binary.LittleEndian.Uint16(buf[7:9]),
		Width:     binary.LittleEndian.Uint16(buf[9:11]),
		Height:    binary.LittleEndian.Uint16(buf[11:13]),
		SendTsUs:  binary.LittleEndian.Uint64(buf[13:21]),
	}

	if d.FrameType != FrameTypeKey && d.FrameType != FrameTypeNonKey {
		return nil, ErrMalformed
	}
	if d.FragCount == 0 || d.FragID >= d.FragCount {
		return nil, ErrMalformed
	}

	rest := buf[FrameDatagramHeaderSize:]
	d.Payload = make([]byte, len(rest))
	copy(d.Payload, rest)

	return d, nil
}
