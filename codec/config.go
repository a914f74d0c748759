package codec

// RateControlParams is the set of encoder rate-control parameters derived
// from a target bitrate: VBV buffer size tracks five frame intervals'
// worth of the target bitrate, max bitrate equals the target, and the
// initial decoder buffering delay equals the VBV buffer.
type RateControlParams struct {
	TargetBitrateKbps uint32
	MaxBitrateKbps    uint32
	VBVBufferKbits    float64
	InitialDelayKbits float64
}

// DeriveRateControlParams computes the rate-control parameters for a
// target bitrate at the given frame rate (frames per second, as
// frameRateNum/frameRateDen — frameRateDen is 1 for the integer frame
// rates this protocol negotiates).
func DeriveRateControlParams(targetBitrateKbps uint32, frameRateNum, frameRateDen uint16) RateControlParams {
	if frameRateNum == 0 {
		frameRateNum = 1
	}
	if frameRateDen == 0 {
		frameRateDen = 1
	}
	secondsPerFrame := float64(frameRateDen) / float64(frameRateNum)
	vbv := float64(targetBitrateKbps) * secondsPerFrame * 5
	return RateControlParams{
		TargetBitrateKbps: targetBitrateKbps,
		MaxBitrateKbps:    targetBitrateKbps,
		VBVBufferKbits:    vbv,
		InitialDelayKbits: vbv,
	}
}
