// Package config loads the streamer configuration from a TOML file.
//
// Load starts from Default, decodes the file over it and validates the
// result, so a file only needs the keys it changes:
//
//	socket_id = "kinect1"
//	remote_host = "mm.openimpress.org"
//	remote_port = 6312
//	record_path = "/var/lib/rgbd"
//	heartbeat_interval = "2s"
//	log_level = "debug"
//
// Durations are strings in time.ParseDuration syntax.
package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/rgbdstream/limits"
	"github.com/opd-ai/rgbdstream/wire"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Duration is a time.Duration that decodes from a TOML string.
type Duration struct {
	time.Duration
}

// UnmarshalText parses a time.ParseDuration string.
func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText formats d in time.ParseDuration syntax.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Config is the complete streamer configuration.
type Config struct {
	// Identity and rendezvous.
	SocketID       string `toml:"socket_id"`
	UseMatchmaking bool   `toml:"use_matchmaking"`
	RemoteHost     string `toml:"remote_host"`
	RemotePort     int    `toml:"remote_port"`
	ListenPort     int    `toml:"listen_port"`

	// Capture.
	Device          string  `toml:"device"`
	DeviceSerial    string  `toml:"device_serial"`
	DeviceID        int     `toml:"device_id"`
	MaxDepth        float32 `toml:"max_depth"`
	SyntheticWidth  int     `toml:"synthetic_width"`
	SyntheticHeight int     `toml:"synthetic_height"`
	SyntheticFPS    int     `toml:"synthetic_fps"`
	SyntheticAudio  bool    `toml:"synthetic_audio"`
	SyntheticBody   bool    `toml:"synthetic_body"`
	JPEGQuality     int     `toml:"jpeg_quality"`

	// Recording.
	RecordPath string `toml:"record_path"`
	FileSave   string `toml:"file_save"`
	FileLoad   string `toml:"file_load"`
	Loop       bool   `toml:"loop"`

	// Transport.
	MTU               int `toml:"mtu"`
	ReceiveBuffers    int `toml:"receive_buffers"`
	ReceiveBufferSize int `toml:"receive_buffer_size"`
	SendBuffers       int `toml:"send_buffers"`
	SendBufferSize    int `toml:"send_buffer_size"`

	RegisterInterval  Duration `toml:"register_interval"`
	HeartbeatInterval Duration `toml:"heartbeat_interval"`
	ConnectionTimeout Duration `toml:"connection_timeout"`
	TickInterval      Duration `toml:"tick_interval"`
	StatsInterval     Duration `toml:"stats_interval"`

	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		UseMatchmaking: true,
		RemoteHost:     "mm.openimpress.org",
		RemotePort:     6312,

		Device:          "synthetic",
		MaxDepth:        10,
		SyntheticWidth:  512,
		SyntheticHeight: 424,
		SyntheticFPS:    30,
		JPEGQuality:     40,

		RecordPath: ".",

		MTU:               limits.MaxUDPPacketSize,
		ReceiveBuffers:    16,
		ReceiveBufferSize: limits.MaxUDPReceiveSize,
		SendBuffers:       256,
		SendBufferSize:    limits.MaxUDPReceiveSize,

		RegisterInterval:  Duration{2 * time.Second},
		HeartbeatInterval: Duration{2 * time.Second},
		ConnectionTimeout: Duration{5 * time.Second},
		TickInterval:      Duration{50 * time.Millisecond},
		StatsInterval:     Duration{2 * time.Second},

		LogLevel:  "info",
		LogFormat: "text",
	}
}

// Load decodes file over Default and validates the result. An empty file
// name returns the defaults.
func Load(file string) (Config, error) {
	cfg := Default()
	if file != "" {
		md, err := toml.DecodeFile(file, &cfg)
		if err != nil {
			return cfg, fmt.Errorf("load %s: %w", file, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, len(undecoded))
			for i, k := range undecoded {
				keys[i] = k.String()
			}
			logrus.WithFields(logrus.Fields{
				"function": "Load",
				"file":     file,
				"keys":     strings.Join(keys, ","),
			}).Warn("Ignoring unknown configuration keys")
		}
	}
	cfg.fill()
	return cfg, cfg.Validate()
}

// Decode parses TOML text over Default and validates the result.
func Decode(data string) (Config, error) {
	cfg := Default()
	if _, err := toml.Decode(data, &cfg); err != nil {
		return cfg, err
	}
	cfg.fill()
	return cfg, cfg.Validate()
}

// fill derives values left empty.
func (c *Config) fill() {
	if c.SocketID == "" {
		c.SocketID = "rgbd-" + uuid.NewString()[:8]
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch {
	case c.SocketID == "":
		return fmt.Errorf("%w: socket_id is empty", ErrInvalid)
	case c.RemotePort < 0 || c.RemotePort > 65535:
		return fmt.Errorf("%w: remote_port %d", ErrInvalid, c.RemotePort)
	case c.ListenPort < 0 || c.ListenPort > 65535:
		return fmt.Errorf("%w: listen_port %d", ErrInvalid, c.ListenPort)
	case c.RemoteHost == "" && (c.UseMatchmaking || c.RemotePort != 0):
		return fmt.Errorf("%w: remote_host is empty", ErrInvalid)
	case c.DeviceID < 0 || c.DeviceID > 255:
		return fmt.Errorf("%w: device_id %d", ErrInvalid, c.DeviceID)
	case c.Device != "synthetic":
		return fmt.Errorf("%w: unknown device %q", ErrInvalid, c.Device)
	case c.MaxDepth < 0:
		return fmt.Errorf("%w: max_depth %g", ErrInvalid, c.MaxDepth)
	case c.SyntheticWidth <= 0 || c.SyntheticHeight <= 0 || c.SyntheticFPS <= 0:
		return fmt.Errorf("%w: synthetic device %dx%d at %d fps", ErrInvalid, c.SyntheticWidth, c.SyntheticHeight, c.SyntheticFPS)
	case c.JPEGQuality < 1 || c.JPEGQuality > 100:
		return fmt.Errorf("%w: jpeg_quality %d", ErrInvalid, c.JPEGQuality)
	case len(c.FileSave) > wire.FilenameLength || len(c.FileLoad) > wire.FilenameLength:
		return fmt.Errorf("%w: recording names are limited to %d characters", ErrInvalid, wire.FilenameLength)
	case c.ReceiveBuffers <= 0 || c.SendBuffers <= 0:
		return fmt.Errorf("%w: buffer counts must be positive", ErrInvalid)
	case c.ReceiveBufferSize <= 0 || c.SendBufferSize < c.MTU:
		return fmt.Errorf("%w: send_buffer_size %d below mtu %d", ErrInvalid, c.SendBufferSize, c.MTU)
	case c.RegisterInterval.Duration <= 0 || c.HeartbeatInterval.Duration <= 0 ||
		c.ConnectionTimeout.Duration <= 0 || c.TickInterval.Duration <= 0 || c.StatsInterval.Duration <= 0:
		return fmt.Errorf("%w: intervals must be positive", ErrInvalid)
	case c.LogFormat != "text" && c.LogFormat != "json":
		return fmt.Errorf("%w: log_format %q", ErrInvalid, c.LogFormat)
	}
	if err := limits.ValidateMTU(c.MTU); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}

// RemoteAddr returns remote_host:remote_port, or "" when no remote is set.
func (c *Config) RemoteAddr() string {
	if c.RemoteHost == "" || c.RemotePort == 0 {
		return ""
	}
	return net.JoinHostPort(c.RemoteHost, strconv.Itoa(c.RemotePort))
}

// ListenAddr returns the local bind address.
func (c *Config) ListenAddr() string {
	return ":" + strconv.Itoa(c.ListenPort)
}
