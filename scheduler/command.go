// Package scheduler parses inbound control messages and holds them in a
// due-time ordered queue until they take effect.
package scheduler

import (
	"errors"
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/opd-ai/rgbdstream/limits"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrMalformedMessage indicates a control message that is not a command.
var ErrMalformedMessage = errors.New("malformed control message")

// Command verbs.
const (
	CmdApplication = "application"
	CmdRecord      = "record"
	CmdExtrinsics  = "extrinsics"
)

// Command values.
const (
	ValStop          = "stop"
	ValEnableDevice  = "enable_device"
	ValDisableDevice = "disable_device"
	ValRequestConfig = "requestconfig"

	ValStartRecording = "startrec"
	ValStopRecording  = "stoprec"
	ValStartReplay    = "startplay"
	ValStopReplay     = "stopplay"

	ValUpdate = "update"
)

// TimeBasisAbsolute selects wall-clock slice bounds in a startplay command.
const TimeBasisAbsolute = "abs"

// Command is one control message.
//
//	{"cmd":"record","val":"startplay","file":"session1","slice":true,
//	 "sliceStart":0,"sliceEnd":2000,"loop":true,"time":1700000000000}
type Command struct {
	Cmd  string `json:"cmd"`
	Val  string `json:"val"`
	File string `json:"file,omitempty"`

	Slice      bool   `json:"slice,omitempty"`
	SliceStart int64  `json:"sliceStart,omitempty"` // milliseconds
	SliceEnd   int64  `json:"sliceEnd,omitempty"`   // milliseconds
	Loop       bool   `json:"loop,omitempty"`
	TimeBasis  string `json:"timeBasis,omitempty"`

	X  *float32 `json:"x,omitempty"`
	Y  *float32 `json:"y,omitempty"`
	Z  *float32 `json:"z,omitempty"`
	QX *float32 `json:"qx,omitempty"`
	QY *float32 `json:"qy,omitempty"`
	QZ *float32 `json:"qz,omitempty"`
	QW *float32 `json:"qw,omitempty"`

	// Time is the Unix millisecond instant the command takes effect.
	Time *int64 `json:"time,omitempty"`

	// Due is resolved by Parse: Time when present, else the arrival time.
	Due time.Time `json:"-"`
}

// Parse decodes a control message received at now. Messages larger than
// limits.MaxControlMessage are malformed.
func Parse(data []byte, now time.Time) (Command, error) {
	if err := limits.ValidateControlMessage(data); err != nil {
		return Command{}, fmt.Errorf("%w: %w", ErrMalformedMessage, err)
	}
	var c Command
	if err := json.Unmarshal(data, &c); err != nil {
		return Command{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if c.Cmd == "" {
		return Command{}, fmt.Errorf("%w: missing cmd", ErrMalformedMessage)
	}
	if c.Time != nil {
		c.Due = time.UnixMilli(*c.Time)
	} else {
		c.Due = now
	}
	return c, nil
}

// String renders the command for logs.
func (c Command) String() string {
	if c.File != "" {
		return c.Cmd + "/" + c.Val + " " + c.File
	}
	return c.Cmd + "/" + c.Val
}
