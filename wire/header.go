package wire

import (
	"fmt"
	"time"
)

const (
	// FrameHeaderSize is the encoded size of a FrameHeader.
	FrameHeaderSize = 16
	// AudioHeaderSize is the encoded size of an AudioHeader.
	AudioHeaderSize = 16
	// BodyHeaderSize is the encoded size of a BodyHeader.
	BodyHeaderSize = 16
)

// Millis converts t to the millisecond Unix timestamp carried in headers.
func Millis(t time.Time) uint64 {
	return uint64(t.UnixMilli())
}

// FromMillis converts a header timestamp back to a time.Time.
func FromMillis(ms uint64) time.Time {
	return time.UnixMilli(int64(ms))
}

// FrameHeader prefixes color, depth and body-index packets.
type FrameHeader struct {
	Kind      Kind
	DeviceID  uint8
	DeltaT    uint16 // milliseconds since the previous frame, 0 when saturated
	StartRow  uint16
	EndRow    uint16 // exclusive
	Timestamp uint64 // Unix milliseconds
}

// Put encodes h into the first FrameHeaderSize bytes of b.
func (h *FrameHeader) Put(b []byte) (int, error) {
	if len(b) < FrameHeaderSize {
		return 0, shortBuffer("frame header", len(b), FrameHeaderSize)
	}
	b[0] = byte(h.Kind)
	b[1] = h.DeviceID
	ByteOrder.PutUint16(b[2:4], h.DeltaT)
	ByteOrder.PutUint16(b[4:6], h.StartRow)
	ByteOrder.PutUint16(b[6:8], h.EndRow)
	ByteOrder.PutUint64(b[8:16], h.Timestamp)
	return FrameHeaderSize, nil
}

// ParseFrameHeader decodes a FrameHeader from the start of b.
func ParseFrameHeader(b []byte) (FrameHeader, error) {
	if len(b) < FrameHeaderSize {
		return FrameHeader{}, shortBuffer("frame header", len(b), FrameHeaderSize)
	}
	h := FrameHeader{
		Kind:      Kind(b[0]),
		DeviceID:  b[1],
		DeltaT:    ByteOrder.Uint16(b[2:4]),
		StartRow:  ByteOrder.Uint16(b[4:6]),
		EndRow:    ByteOrder.Uint16(b[6:8]),
		Timestamp: ByteOrder.Uint64(b[8:16]),
	}
	switch h.Kind {
	case KindColor, KindDepth, KindBodyIndex:
		return h, nil
	default:
		return h, fmt.Errorf("%w: %s is not a frame kind", ErrUnexpectedKind, h.Kind)
	}
}

// AudioHeader prefixes audio packets.
type AudioHeader struct {
	Frequency uint16
	Channels  uint16
	Samples   uint16
	Timestamp uint64
}

// Put encodes h into the first AudioHeaderSize bytes of b.
func (h *AudioHeader) Put(b []byte) (int, error) {
	if len(b) < AudioHeaderSize {
		return 0, shortBuffer("audio header", len(b), AudioHeaderSize)
	}
	b[0] = byte(KindAudio)
	b[1] = 0
	ByteOrder.PutUint16(b[2:4], h.Frequency)
	ByteOrder.PutUint16(b[4:6], h.Channels)
	ByteOrder.PutUint16(b[6:8], h.Samples)
	ByteOrder.PutUint64(b[8:16], h.Timestamp)
	return AudioHeaderSize, nil
}

// ParseAudioHeader decodes an AudioHeader from the start of b.
func ParseAudioHeader(b []byte) (AudioHeader, error) {
	if len(b) < AudioHeaderSize {
		return AudioHeader{}, shortBuffer("audio header", len(b), AudioHeaderSize)
	}
	if Kind(b[0]) != KindAudio {
		return AudioHeader{}, fmt.Errorf("%w: %s is not audio", ErrUnexpectedKind, Kind(b[0]))
	}
	return AudioHeader{
		Frequency: ByteOrder.Uint16(b[2:4]),
		Channels:  ByteOrder.Uint16(b[4:6]),
		Samples:   ByteOrder.Uint16(b[6:8]),
		Timestamp: ByteOrder.Uint64(b[8:16]),
	}, nil
}

// BodyHeader prefixes body tracking packets.
type BodyHeader struct {
	Count     uint16
	Timestamp uint64
}

// Put encodes h into the first BodyHeaderSize bytes of b.
func (h *BodyHeader) Put(b []byte) (int, error) {
	if len(b) < BodyHeaderSize {
		return 0, shortBuffer("body header", len(b), BodyHeaderSize)
	}
	b[0] = byte(KindBody)
	b[1] = 0
	ByteOrder.PutUint16(b[2:4], h.Count)
	b[4], b[5], b[6], b[7] = 0, 0, 0, 0
	ByteOrder.PutUint64(b[8:16], h.Timestamp)
	return BodyHeaderSize, nil
}

// ParseBodyHeader decodes a BodyHeader from the start of b.
func ParseBodyHeader(b []byte) (BodyHeader, error) {
	if len(b) < BodyHeaderSize {
		return BodyHeader{}, shortBuffer("body header", len(b), BodyHeaderSize)
	}
	if Kind(b[0]) != KindBody {
		return BodyHeader{}, fmt.Errorf("%w: %s is not body", ErrUnexpectedKind, Kind(b[0]))
	}
	return BodyHeader{
		Count:     ByteOrder.Uint16(b[2:4]),
		Timestamp: ByteOrder.Uint64(b[8:16]),
	}, nil
}
