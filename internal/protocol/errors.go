package protocol

import (
	"errors"
	"fmt"
)

var (
	// ErrEndOfStream is returned when the stream closes before a complete
	// frame was read. It is not a protocol violation.
	ErrEndOfStream = errors.New("protocol: end of stream")
	// ErrMalformed marks a frame whose body cannot be parsed into an envelope.
	// The peer violated the protocol and the connection should be dropped.
	ErrMalformed = errors.New("protocol: malformed envelope")
	// ErrFrameTooLarge wraps ErrMalformed for a declared body length above the
	// decoder limit.
	ErrFrameTooLarge = fmt.Errorf("%w: frame too large", ErrMalformed)
	// ErrInvalidEnvelope is returned when encoding an envelope that breaks the
	// field rules of its kind.
	ErrInvalidEnvelope = errors.New("protocol: invalid envelope")
)
