package protocol

import "errors"

var (
	// ErrFrameSize indicates frame data that does not match the configured geometry
	ErrFrameSize = errors.New("frame size mismatch")

	// ErrPayloadTooLarge indicates a payload that does not fit one packet
	ErrPayloadTooLarge = errors.New("payload does not fit one packet")

	// ErrInvalidGeometry indicates unusable frame dimensions or MTU
	ErrInvalidGeometry = errors.New("invalid frame geometry")
)
