package codec

// Encoder drives a hardware-accelerated codec session for one sender.
// Implementations are sequential per call: Encode is never invoked
// concurrently with itself or with Reconfigure/Close.
type Encoder interface {
	// Encode submits one raw planar frame and returns zero or more
	// encoded byte strings. In steady state this is one-in, one-out;
	// an implementation may buffer internally and return nothing for a
	// call, emitting the backlog on a later call. If forceIDR is true,
	// the next frame this call (or a subsequent one) returns is
	// guaranteed decodable standalone.
	Encode(raw []byte, forceIDR bool) ([]EncodedFrame, error)

	// Reconfigure live-updates the CBR target bitrate. It is idempotent:
	// calling it repeatedly with the same value has no additional effect
	// beyond the first call.
	Reconfigure(targetBitrateKbps uint32)

	// Close releases any resources held by the encoder session.
	Close() error
}

// Decoder drives a hardware-accelerated decoder session for one receiver.
// Decode is invoked sequentially, in the order frames are delivered by
// the reassembly buffer.
type Decoder interface {
	// Decode submits one complete encoded frame's bitstream and returns
	// zero or more decoded pixel frames.
	Decode(bitstream []byte) ([]PixelFrame, error)

	// Close releases any resources held by the decoder session.
	Close() error
}

// EncodedFrame is one compressed access unit returned by Encoder.Encode.
type EncodedFrame struct {
	Bytes    []byte
	KeyFrame bool
}

// PixelFrame is one decoded picture returned by Decoder.Decode. Data is
// planar YUV420 (Y, U, V planes concatenated), matching the sender's
// input format.
type PixelFrame struct {
	Width  int
	Height int
	Data   []byte
}
