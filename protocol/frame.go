package protocol

import "fmt"

// FrameType identifies whether a frame is independently decodable.
type FrameType uint8

const (
	FrameTypeUnknown FrameType = 0
	FrameTypeKey     FrameType = 1
	FrameTypeNonKey  FrameType = 2
)

func (t FrameType) String() string {
	switch t {
	case FrameTypeKey:
		return "key"
	case FrameTypeNonKey:
		return "nonkey"
	default:
		return "unknown"
	}
}

// FrameDatagramHeaderSize is the fixed on-wire header size in bytes:
// frame_id(4) + frame_type(1) + frag_id(2) + frag_count(2) + width(2) +
// height(2) + send_ts(8).
const FrameDatagramHeaderSize = 4 + 1 + 2 + 2 + 2 + 2 + 8

// FragmentKey identifies one fragment of one frame. Lexicographic order
// on (FrameID, FragID) defines global transmission order.
type FragmentKey struct {
	FrameID uint32
	FragID  uint16
}

// Less reports whether k sorts strictly before other under the
// lexicographic (FrameID, FragID) order.
func (k FragmentKey) Less(other FragmentKey) bool {
	if k.FrameID != other.FrameID {
		return k.FrameID < other.FrameID
	}
	return k.FragID < other.FragID
}

func (k FragmentKey) String() string {
	return fmt.Sprintf("(%d,%d)", k.FrameID, k.FragID)
}

// FrameDatagram is one fragment of one encoded frame, on the wire and in
// memory. NumRtx and LastSendUs are sender-local bookkeeping and are never
// serialized.
type FrameDatagram struct {
	FrameID   uint32
	FrameType FrameType
	FragID    uint16
	FragCount uint16
	Width     uint16
	Height    uint16
	SendTsUs  uint64
	Payload   []byte

	NumRtx     uint32
	LastSendUs uint64
}

// Key returns the FragmentKey identifying this fragment.
func (d *FrameDatagram) Key() FragmentKey {
	return FragmentKey{FrameID: d.FrameID, FragID: d.FragID}
}

// WireSize returns the serialized size of d, header plus payload.
func (d *FrameDatagram) WireSize() int {
	return FrameDatagramHeaderSize + len(d.Payload)
}
