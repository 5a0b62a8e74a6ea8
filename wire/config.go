package wire

import (
	"bytes"
	"fmt"
	"math"
)

const (
	// ConfigSize is the encoded size of a Config descriptor.
	ConfigSize = 132

	// GUIDLength is the maximum number of characters in a device GUID.
	GUIDLength = 32
	// FilenameLength is the maximum number of characters in a recording name.
	FilenameLength = 32

	guidOffset     = 63
	filenameOffset = 99

	// DefaultDeviceType is the device type byte emitted by RGBD sensors.
	DefaultDeviceType = 0x02
)

// Config describes the producing device so consumers can interpret frames.
type Config struct {
	DeviceID    uint8
	DeviceType  uint8
	Flags       DataFlags
	FrameWidth  uint16
	FrameHeight uint16
	MaxLines    uint16

	Cx, Cy, Fx, Fy float32
	DepthScale     float32

	// Extrinsic pose: position and orientation quaternion.
	Px, Py, Pz     float32
	Qx, Qy, Qz, Qw float32

	GUID     string
	Filename string
}

// NewConfig returns a descriptor with an identity pose.
func NewConfig() Config {
	return Config{DeviceType: DefaultDeviceType, Qw: 1}
}

// Put encodes c into the first ConfigSize bytes of b.
func (c *Config) Put(b []byte) (int, error) {
	if len(b) < ConfigSize {
		return 0, shortBuffer("config", len(b), ConfigSize)
	}
	if len(c.GUID) > GUIDLength {
		return 0, fmt.Errorf("%w: guid %q exceeds %d characters", ErrFieldTooLong, c.GUID, GUIDLength)
	}
	if len(c.Filename) > FilenameLength {
		return 0, fmt.Errorf("%w: filename %q exceeds %d characters", ErrFieldTooLong, c.Filename, FilenameLength)
	}

	clear(b[:ConfigSize])
	b[0] = byte(KindConfig)
	b[1] = c.DeviceID
	b[2] = c.DeviceType
	b[3] = byte(c.Flags)
	ByteOrder.PutUint16(b[4:6], c.FrameWidth)
	ByteOrder.PutUint16(b[6:8], c.FrameHeight)
	ByteOrder.PutUint16(b[8:10], c.MaxLines)

	off := 12
	for _, f := range c.floats() {
		ByteOrder.PutUint32(b[off:off+4], math.Float32bits(f))
		off += 4
	}

	copy(b[guidOffset:guidOffset+GUIDLength], c.GUID)
	copy(b[filenameOffset:filenameOffset+FilenameLength], c.Filename)
	return ConfigSize, nil
}

// Serialize returns the encoded descriptor.
func (c *Config) Serialize() ([]byte, error) {
	b := make([]byte, ConfigSize)
	if _, err := c.Put(b); err != nil {
		return nil, err
	}
	return b, nil
}

// ParseConfig decodes a Config from the start of b.
func ParseConfig(b []byte) (Config, error) {
	if len(b) < ConfigSize {
		return Config{}, shortBuffer("config", len(b), ConfigSize)
	}
	if Kind(b[0]) != KindConfig {
		return Config{}, fmt.Errorf("%w: %s is not config", ErrUnexpectedKind, Kind(b[0]))
	}
	c := Config{
		DeviceID:    b[1],
		DeviceType:  b[2],
		Flags:       DataFlags(b[3]),
		FrameWidth:  ByteOrder.Uint16(b[4:6]),
		FrameHeight: ByteOrder.Uint16(b[6:8]),
		MaxLines:    ByteOrder.Uint16(b[8:10]),
	}

	fields := c.floatFields()
	off := 12
	for _, f := range fields {
		*f = math.Float32frombits(ByteOrder.Uint32(b[off : off+4]))
		off += 4
	}

	c.GUID = cString(b[guidOffset : guidOffset+GUIDLength+1])
	c.Filename = cString(b[filenameOffset : filenameOffset+FilenameLength+1])
	return c, nil
}

func (c *Config) floats() []float32 {
	return []float32{c.Cx, c.Cy, c.Fx, c.Fy, c.DepthScale, c.Px, c.Py, c.Pz, c.Qx, c.Qy, c.Qz, c.Qw}
}

func (c *Config) floatFields() []*float32 {
	return []*float32{&c.Cx, &c.Cy, &c.Fx, &c.Fy, &c.DepthScale, &c.Px, &c.Py, &c.Pz, &c.Qx, &c.Qy, &c.Qz, &c.Qw}
}

// cString returns the bytes of b up to the first NUL.
func cString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}
