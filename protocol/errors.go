package protocol

import "errors"

// ErrMalformed is returned when a received record is truncated, has the
// wrong length for its type, or carries an out-of-range field.
var ErrMalformed = errors.New("protocol: malformed record")
