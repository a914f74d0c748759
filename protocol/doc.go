// Package protocol implements the wire codec for the sender/receiver
// transport: fragment-carrying FrameDatagrams, the supplemental
// TileDatagram variant, and the three control messages (ACK, CONFIG,
// SIGNAL) exchanged over the data and feedback UDP channels.
//
// All integers are little-endian and fixed-width. Parsing never panics;
// a malformed record yields ErrMalformed. Serialization is total for any
// in-memory value whose payload fits within the configured MTU.
package protocol
