package wire

import (
	"errors"
	"fmt"
)

var (
	// ErrShortBuffer indicates a buffer too small to hold or contain a structure.
	ErrShortBuffer = errors.New("short buffer")

	// ErrUnexpectedKind indicates a structure was decoded from a datagram of another kind.
	ErrUnexpectedKind = errors.New("unexpected message kind")

	// ErrFieldTooLong indicates a fixed-width string field overflowed.
	ErrFieldTooLong = errors.New("field too long")
)

func shortBuffer(what string, have, need int) error {
	return fmt.Errorf("%w: %s needs %d bytes, have %d", ErrShortBuffer, what, need, have)
}
