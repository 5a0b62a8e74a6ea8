package streamer

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/rgbdstream/record"
	"github.com/opd-ai/rgbdstream/scheduler"
)

// execute applies one due command. Refused commands are logged; only a
// failing send path is returned.
func (s *Streamer) execute(cmd scheduler.Command) error {
	logrus.WithFields(logrus.Fields{
		"function": "execute",
		"command":  cmd.String(),
	}).Info("Executing command")

	switch cmd.Cmd {
	case scheduler.CmdApplication:
		return s.executeApplication(cmd)
	case scheduler.CmdRecord:
		return s.executeRecord(cmd)
	case scheduler.CmdExtrinsics:
		return s.executeExtrinsics(cmd)
	}
	logrus.WithFields(logrus.Fields{
		"function": "execute",
		"command":  cmd.String(),
	}).Warn("Unknown command")
	return nil
}

func (s *Streamer) executeApplication(cmd scheduler.Command) error {
	switch cmd.Val {
	case scheduler.ValStop:
		s.Stop()
	case scheduler.ValEnableDevice:
		if s.dev == nil || s.deviceOpen {
			return nil
		}
		if err := s.openDevice(); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "executeApplication",
				"error":    err.Error(),
			}).Error("Failed to open device")
			return nil
		}
		if !s.eng.Replaying() {
			return s.sendLiveConfig()
		}
	case scheduler.ValDisableDevice:
		s.closeDevice()
	case scheduler.ValRequestConfig:
		return s.sendCurrentConfig()
	default:
		logrus.WithFields(logrus.Fields{
			"function": "executeApplication",
			"val":      cmd.Val,
		}).Warn("Unknown application command")
	}
	return nil
}

func (s *Streamer) executeRecord(cmd scheduler.Command) error {
	name := cmd.File
	if name == "" {
		name = record.DefaultName
	}

	switch cmd.Val {
	case scheduler.ValStartRecording:
		s.startRecording(name)
	case scheduler.ValStopRecording:
		if _, err := s.eng.StopRecording(); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "executeRecord",
				"error":    err.Error(),
			}).Error("Failed to stop recording cleanly")
		}
	case scheduler.ValStartReplay:
		opts := record.ReplayOptions{
			Slice: cmd.Slice,
			Start: cmd.SliceStart,
			End:   cmd.SliceEnd,
			Loop:  cmd.Loop,
		}
		if cmd.TimeBasis == scheduler.TimeBasisAbsolute {
			opts.Basis = record.Absolute
		}
		return s.startReplay(name, opts)
	case scheduler.ValStopReplay:
		if s.eng.StopReplaying() {
			return s.sendLiveConfig()
		}
	default:
		logrus.WithFields(logrus.Fields{
			"function": "executeRecord",
			"val":      cmd.Val,
		}).Warn("Unknown record command")
	}
	return nil
}

// executeExtrinsics updates the pose fields present in cmd and announces the
// new live config.
func (s *Streamer) executeExtrinsics(cmd scheduler.Command) error {
	if cmd.Val != scheduler.ValUpdate {
		logrus.WithFields(logrus.Fields{
			"function": "executeExtrinsics",
			"val":      cmd.Val,
		}).Warn("Unknown extrinsics command")
		return nil
	}
	for _, f := range []struct {
		src *float32
		dst *float32
	}{
		{cmd.X, &s.live.Px}, {cmd.Y, &s.live.Py}, {cmd.Z, &s.live.Pz},
		{cmd.QX, &s.live.Qx}, {cmd.QY, &s.live.Qy}, {cmd.QZ, &s.live.Qz}, {cmd.QW, &s.live.Qw},
	} {
		if f.src != nil {
			*f.dst = *f.src
		}
	}
	s.posed = true
	logrus.WithFields(logrus.Fields{
		"function": "executeExtrinsics",
		"position": fmt.Sprintf("%g,%g,%g", s.live.Px, s.live.Py, s.live.Pz),
		"rotation": fmt.Sprintf("%g,%g,%g,%g", s.live.Qx, s.live.Qy, s.live.Qz, s.live.Qw),
	}).Info("Updated extrinsics")
	if s.eng.Replaying() {
		return nil
	}
	return s.sendLiveConfig()
}

// startRecording records the live stream under name. It needs an open
// device for the config descriptor.
func (s *Streamer) startRecording(name string) {
	if !s.deviceOpen {
		logrus.WithFields(logrus.Fields{
			"function": "startRecording",
			"name":     name,
		}).Warn("Cannot record without an open device")
		return
	}
	if err := s.eng.StartRecording(name, s.live); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "startRecording",
			"name":     name,
			"error":    err.Error(),
		}).Warn("Recording refused")
	}
}

// startReplay replays name and announces its config. A refused replay
// leaves any previous replay stopped, so the live config is announced
// instead.
func (s *Streamer) startReplay(name string, opts record.ReplayOptions) error {
	wasReplaying := s.eng.Replaying()
	if err := s.eng.StartReplaying(name, opts); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "startReplay",
			"name":     name,
			"error":    err.Error(),
		}).Warn("Replay refused")
		if wasReplaying && !s.eng.Replaying() {
			return s.sendLiveConfig()
		}
		return nil
	}
	return s.sendReplayConfig()
}
