package protocol

import "encoding/binary"

// TileDatagramHeaderSize is TileDatagram's fixed header size: FrameDatagram's
// header plus a tile_id(2) field inserted after frame_type.
const TileDatagramHeaderSize = FrameDatagramHeaderSize + 2

// TileDatagram is the region-of-interest counterpart to FrameDatagram,
// carried over from an earlier tiled-encoding experiment. No sender or
// receiver component in this repository emits or consumes it; it is
// implemented here only so the wire format itself is complete and
// round-trip tested.
type TileDatagram struct {
	FrameID   uint32
	FrameType FrameType
	TileID    uint16
	FragID    uint16
	FragCount uint16
	Width     uint16
	Height    uint16
	SendTsUs  uint64
	Payload   []byte
}

// SerializeTileDatagram encodes t into its wire form.
func SerializeTileDatagram(t *TileDatagram) []byte {
	buf := make([]byte, TileDatagramHeaderSize+len(t.Payload))
	binary.LittleEndian.PutUint32(buf[0:4], t.FrameID)
	buf[4] = byte(t.FrameType)
	binary.LittleEndian.PutUint16(buf[5:7], t.TileID)
	binary.LittleEndian.PutUint16(buf[7:9], t.FragID)
	binary.LittleEndian.PutUint16(buf[9:11], t.FragCount)
	binary.LittleEndian.PutUint16(buf[11:13], t.Width)
	binary.LittleEndian.PutUint16(buf[13:15], t.Height)
	binary.LittleEndian.PutUint64(buf[15:23], t.SendTsUs)
	copy(buf[TileDatagramHeaderSize:], t.Payload)
	return buf
}

// ParseTileDatagram decodes a TileDatagram from buf.
func ParseTileDatagram(buf []byte) (*TileDatagram, error) {
	if len(buf) < TileDatagramHeaderSize {
		return nil, ErrMalformed
	}

	t := &TileDatagram{
		FrameID:   binary.LittleEndian.Uint32(buf[0:4]),
		FrameType: FrameType(buf[4]),
		TileID:    binary.LittleEndian.Uint16(buf[5:7]),
		FragID:    binary.LittleEndian.Uint16(buf[7:9]),
		FragCount: binary.LittleEndian.Uint16(buf[9:11]),
		Width:     binary.LittleEndian.Uint16(buf[11:13]),
		Height:    binary.LittleEndian.Uint16(buf[13:15]),
		SendTsUs:  binary.LittleEndian.Uint64(buf[15:23]),
	}

	if t.FrameType != FrameTypeKey && t.FrameType != FrameTypeNonKey {
		return nil, ErrMalformed
	}
	if t.FragCount == 0 || t.FragID >= t.FragCount {
		return nil, ErrMalformed
	}

	rest := buf[TileDatagramHeaderSize:]
	t.Payload = make([]byte, len(rest))
	copy(t.Payload, rest)

	return t, nil
}
