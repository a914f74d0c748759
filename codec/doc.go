// Package codec defines the narrow capability interfaces through which the
// sender and receiver drive a hardware-accelerated H.264/HEVC codec
// without depending on any particular hardware SDK. The concrete codec is
// an external collaborator; this package also ships a software reference
// implementation used by tests and by the CLI binaries when no hardware
// adapter is wired in, so that substituting a real hardware encoder never
// has to change the sender/receiver protocol logic built on top of these
// interfaces.
package codec
