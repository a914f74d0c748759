package protocol

import "encoding/binary"

// MsgType discriminates the single-byte-tagged control messages. INVALID
// (0) is never transmitted; it is the zero value of a message that failed
// to parse.
type MsgType uint8

const (
	MsgInvalid MsgType = 0
	MsgAck     MsgType = 1
	MsgConfig  MsgType = 2
	MsgSignal  MsgType = 3
)

// ackWireSize, configWireSize, and signalWireSize are each message's
// total on-wire size including the leading type byte.
const (
	ackWireSize    = 1 + 4 + 2 + 8
	configWireSize = 1 + 2 + 2 + 2 + 4
	signalWireSize = 1 + 4
)

// Ack echoes a received FrameDatagram's FragmentKey and original send
// timestamp, letting the sender sample RTT from its own clock.
type Ack struct {
	FrameID  uint32
	FragID   uint16
	SendTsUs uint64
}

// AckFor builds the Ack a receiver sends for a just-received FrameDatagram.
func AckFor(d *FrameDatagram) Ack {
	return Ack{FrameID: d.FrameID, FragID: d.FragID, SendTsUs: d.SendTsUs}
}

// Key returns the FragmentKey this ACK acknowledges.
func (a Ack) Key() FragmentKey {
	return FragmentKey{FrameID: a.FrameID, FragID: a.FragID}
}

func (a Ack) serialize() []byte {
	buf := make([]byte, ackWireSize)
	buf[0] = byte(MsgAck)
	binary.LittleEndian.PutUint32(buf[1:5], a.FrameID)
	binary.LittleEndian.PutUint16(buf[5:7], a.FragID)
	binary.LittleEndian.PutUint64(buf[7:15], a.SendTsUs)
	return buf
}

func parseAck(buf []byte) (Ack, error) {
	if len(buf) != ackWireSize {
		return Ack{}, ErrMalformed
	}
	return Ack{
		FrameID:  binary.LittleEndian.Uint32(buf[1:5]),
		FragID:   binary.LittleEndian.Uint16(buf[5:7]),
		SendTsUs: binary.LittleEndian.Uint64(buf[7:15]),
	}, nil
}

// Config is sent once by the receiver on the data channel before any
// frame, announcing the negotiated picture size, frame rate, and initial
// target bitrate.
type Config struct {
	Width         uint16
	Height        uint16
	FrameRate     uint16
	TargetBitrate uint32
}

func (c Config) serialize() []byte {
	buf := make([]byte, configWireSize)
	buf[0] = byte(MsgConfig)
	binary.LittleEndian.PutUint16(buf[1:3], c.Width)
	binary.LittleEndian.PutUint16(buf[3:5], c.Height)
	binary.LittleEndian.PutUint16(buf[5:7], c.FrameRate)
	binary.LittleEndian.PutUint32(buf[7:11], c.TargetBitrate)
	return buf
}

func parseConfig(buf []byte) (Config, error) {
	if len(buf) != configWireSize {
		return Config{}, ErrMalformed
	}
	return Config{
		Width:         binary.LittleEndian.Uint16(buf[1:3]),
		Height:        binary.LittleEndian.Uint16(buf[3:5]),
		FrameRate:     binary.LittleEndian.Uint16(buf[5:7]),
		TargetBitrate: binary.LittleEndian.Uint32(buf[7:11]),
	}, nil
}

// Signal carries a receiver-dictated target bitrate on the feedback
// channel, sent at least once at startup and any time thereafter.
type Signal struct {
	TargetBitrate uint32
}

func (s Signal) serialize() []byte {
	buf := make([]byte, signalWireSize)
	buf[0] = byte(MsgSignal)
	binary.LittleEndian.PutUint32(buf[1:5], s.TargetBitrate)
	return buf
}

func parseSignal(buf []byte) (Signal, error) {
	if len(buf) != signalWireSize {
		return Signal{}, ErrMalformed
	}
	return Signal{TargetBitrate: binary.LittleEndian.Uint32(buf[1:5])}, nil
}

// SerializeAck, SerializeConfig, and SerializeSignal encode each control
// message to its wire form.
func SerializeAck(a Ack) []byte       { return a.serialize() }
func SerializeConfig(c Config) []byte { return c.serialize() }
func SerializeSignal(s Signal) []byte { return s.serialize() }

// ParseAck, ParseConfig, and ParseSignal decode a specific control message
// kind, rejecting any buffer whose type tag or length doesn't match.
func ParseAck(buf []byte) (Ack, error) {
	if len(buf) == 0 || MsgType(buf[0]) != MsgAck {
		return Ack{}, ErrMalformed
	}
	return parseAck(buf)
}

func ParseConfig(buf []byte) (Config, error) {
	if len(buf) == 0 || MsgType(buf[0]) != MsgConfig {
		return Config{}, ErrMalformed
	}
	return parseConfig(buf)
}

func ParseSignal(buf []byte) (Signal, error) {
	if len(buf) == 0 || MsgType(buf[0]) != MsgSignal {
		return Signal{}, ErrMalformed
	}
	return parseSignal(buf)
}

// PeekType returns the MsgType a control-or-FrameDatagram record would be
// classified as, without fully parsing it. A FrameDatagram's leading byte
// is the low byte of its frame-id, which may coincidentally collide with
// a control type tag; callers that know which kind of record a socket can
// carry should call the specific Parse* function directly instead of
// relying on this for demultiplexing. It exists for the generic,
// direction-agnostic demux described by the wire format.
func PeekType(buf []byte) MsgType {
	if len(buf) == 0 {
		return MsgInvalid
	}
	switch MsgType(buf[0]) {
	case MsgAck, MsgConfig, MsgSignal:
		return MsgType(buf[0])
	default:
		return MsgInvalid
	}
}
