package wire

import (
	"encoding/binary"
	"fmt"
)

// ByteOrder is the byte order of every multi-byte header field.
var ByteOrder = binary.LittleEndian

// Kind identifies the type of a datagram by its first byte.
type Kind byte

const (
	KindConfig    Kind = 0x01
	KindDepth     Kind = 0x03
	KindColor     Kind = 0x04
	KindBody      Kind = 0x05
	KindAudio     Kind = 0x07
	KindBodyIndex Kind = 0x33

	// KindControl prefixes JSON control and rendezvous messages.
	KindControl Kind = 'd'
	// KindJSON is the first byte of an unprefixed JSON message.
	KindJSON Kind = '{'
)

// String returns a short name for the kind.
func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "config"
	case KindDepth:
		return "depth"
	case KindColor:
		return "color"
	case KindBody:
		return "body"
	case KindAudio:
		return "audio"
	case KindBodyIndex:
		return "body-index"
	case KindControl:
		return "control"
	case KindJSON:
		return "json"
	default:
		return fmt.Sprintf("kind(0x%02x)", byte(k))
	}
}

// PayloadOffset returns the offset at which the payload of a datagram of
// kind k begins. Unknown kinds report ok=false.
func PayloadOffset(k Kind) (offset int, ok bool) {
	switch k {
	case KindDepth, KindColor, KindBodyIndex:
		return FrameHeaderSize, true
	case KindAudio:
		return AudioHeaderSize, true
	case KindBody:
		return BodyHeaderSize, true
	case KindConfig, KindJSON:
		return 0, true
	case KindControl:
		return 1, true
	default:
		return 0, false
	}
}

// DataFlags is the bitmask of streams a device or recording carries.
type DataFlags uint8

const (
	FlagRGBD      DataFlags = 1 << 0
	FlagAudio     DataFlags = 1 << 1
	FlagLive      DataFlags = 1 << 2
	FlagBody      DataFlags = 1 << 3
	FlagHD        DataFlags = 1 << 4
	FlagBodyIndex DataFlags = 1 << 5
)

// Has reports whether every bit of f is set.
func (d DataFlags) Has(f DataFlags) bool {
	return d&f == f
}
