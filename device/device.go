package device

import (
	"errors"
	"time"

	"github.com/opd-ai/rgbdstream/wire"
)

var (
	// ErrNotOpen is returned when a closed device is polled.
	ErrNotOpen = errors.New("device not open")
	// ErrAlreadyOpen is returned by Open on an open device.
	ErrAlreadyOpen = errors.New("device already open")
	// ErrInvalidGeometry is returned for a zero or oversized frame size.
	ErrInvalidGeometry = errors.New("invalid frame geometry")
)

// Capabilities describes a device. It is queried once per Open.
type Capabilities struct {
	Width  int
	Height int

	Cx, Cy, Fx, Fy float32
	DepthScale     float32

	GUID       string
	DeviceType uint8

	Audio     bool
	Body      bool
	BodyIndex bool
	HD        bool
}

// Flags returns the stream bitmask of a live device with these
// capabilities.
func (c Capabilities) Flags() wire.DataFlags {
	flags := wire.FlagRGBD | wire.FlagLive
	if c.Audio {
		flags |= wire.FlagAudio
	}
	if c.Body {
		flags |= wire.FlagBody
	}
	if c.BodyIndex {
		flags |= wire.FlagBodyIndex
	}
	if c.HD {
		flags |= wire.FlagHD
	}
	return flags
}

// Config builds the live config descriptor for the device. maxLines is the
// number of depth rows per packet.
func (c Capabilities) Config(deviceID uint8, maxLines int) wire.Config {
	cfg := wire.NewConfig()
	cfg.DeviceID = deviceID
	if c.DeviceType != 0 {
		cfg.DeviceType = c.DeviceType
	}
	cfg.Flags = c.Flags()
	cfg.FrameWidth = uint16(c.Width)
	cfg.FrameHeight = uint16(c.Height)
	cfg.MaxLines = uint16(maxLines)
	cfg.Cx, cfg.Cy, cfg.Fx, cfg.Fy = c.Cx, c.Cy, c.Fx, c.Fy
	cfg.DepthScale = c.DepthScale
	cfg.GUID = c.GUID
	return cfg
}

// Frame is one captured instant. Only the fields the device supports are
// set.
type Frame struct {
	Timestamp time.Time

	// Color is the compressed color image.
	Color []byte
	// Depth holds Width*Height samples in millimetres, row-major.
	Depth []uint16

	Audio          []float32
	AudioFrequency uint16
	AudioChannels  uint16

	Bodies    []wire.Body
	BodyIndex []byte
	HD        []byte
}

// Device is a capture source.
type Device interface {
	Open() error
	Close() error
	Capabilities() Capabilities
	// Poll returns the next frame if one is ready at now. It never blocks.
	Poll(now time.Time) (*Frame, bool, error)
}
