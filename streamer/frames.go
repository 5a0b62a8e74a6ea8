package streamer

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/rgbdstream/device"
	"github.com/opd-ai/rgbdstream/protocol"
	"github.com/opd-ai/rgbdstream/wire"
)

// openDevice opens the device, builds the packetizer for its geometry and
// caches its capabilities in the live config.
func (s *Streamer) openDevice() error {
	if err := s.dev.Open(); err != nil {
		return err
	}
	caps := s.dev.Capabilities()
	pk, err := protocol.NewPacketizer(s.conn, s.eng, &s.seq, protocol.Options{
		Width:    caps.Width,
		Height:   caps.Height,
		DeviceID: s.opts.DeviceID,
		MTU:      s.opts.MTU,
	})
	if err != nil {
		s.dev.Close()
		return err
	}

	prev := s.live
	s.caps = caps
	s.pk = pk
	s.live = caps.Config(s.opts.DeviceID, pk.LinesPerMessage())
	if s.posed {
		s.live.Px, s.live.Py, s.live.Pz = prev.Px, prev.Py, prev.Pz
		s.live.Qx, s.live.Qy, s.live.Qz, s.live.Qw = prev.Qx, prev.Qy, prev.Qz, prev.Qw
	}
	s.deviceOpen = true

	logrus.WithFields(logrus.Fields{
		"function":          "openDevice",
		"width":             caps.Width,
		"height":            caps.Height,
		"lines_per_message": pk.LinesPerMessage(),
		"depth_packets":     pk.DepthPackets(),
		"flags":             s.live.Flags,
	}).Info("Device opened")
	return nil
}

func (s *Streamer) closeDevice() {
	if s.dev == nil || !s.deviceOpen {
		return
	}
	if err := s.dev.Close(); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "closeDevice",
			"error":    err.Error(),
		}).Warn("Failed to close device")
	}
	s.deviceOpen = false
}

// capture polls the device and packetizes a ready frame.
func (s *Streamer) capture(now time.Time) error {
	if !s.deviceOpen {
		return nil
	}
	f, ok, err := s.dev.Poll(now)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "capture",
			"error":    err.Error(),
		}).Warn("Device poll failed")
		return nil
	}
	if !ok {
		return nil
	}
	return s.sendFrame(f)
}

// sendFrame packetizes every stream of f. While a replay is active the
// packetizer only records.
func (s *Streamer) sendFrame(f *device.Frame) error {
	res, err := s.pk.SendRGBD(f.Color, f.Depth, f.Timestamp)
	if err != nil {
		return s.frameError("rgbd", err)
	}
	if res.Sent {
		s.stats.PutFrame(f.Timestamp, res.Packets, res.Bytes, false)
	}

	if s.caps.Audio && len(f.Audio) > 0 {
		if _, err := s.pk.SendAudio(f.Audio, f.AudioFrequency, f.AudioChannels, f.Timestamp); err != nil {
			return s.frameError("audio", err)
		}
		if res.Sent {
			s.stats.PutAudio(len(f.Audio))
		}
	}
	if s.caps.Body {
		if _, err := s.pk.SendBodies(f.Bodies, f.Timestamp); err != nil {
			return s.frameError("body", err)
		}
	}
	if s.caps.BodyIndex && len(f.BodyIndex) > 0 {
		if _, err := s.pk.SendBodyIndex(f.BodyIndex, f.Timestamp); err != nil {
			return s.frameError("bodyindex", err)
		}
	}
	if s.caps.HD && len(f.HD) > 0 {
		if _, err := s.pk.RecordHD(f.HD); err != nil {
			return s.frameError("hd", err)
		}
	}
	return nil
}

// frameError turns a send failure into a fatal error or a dropped frame.
func (s *Streamer) frameError(stream string, err error) error {
	if fatal(err) {
		return fmt.Errorf("%w: %s: %w", ErrFatal, stream, err)
	}
	s.stats.PutDropped()
	logrus.WithFields(logrus.Fields{
		"function": "sendFrame",
		"stream":   stream,
		"error":    err.Error(),
	}).Warn("Dropped frame")
	return nil
}

// replay emits the next due recorded frame and announces loop restarts and
// the end of replay.
func (s *Streamer) replay() error {
	if !s.eng.Replaying() {
		return nil
	}
	res, err := s.eng.ReplayNextFrame(s.conn, &s.seq)
	if res.AudioSamples > 0 {
		s.stats.PutAudio(res.AudioSamples)
	}
	if res.Emitted {
		s.stats.PutFrame(s.tp.Now(), res.Packets, res.Bytes, true)
	}
	if err != nil {
		if fatal(err) {
			return fmt.Errorf("%w: replay: %w", ErrFatal, err)
		}
		logrus.WithFields(logrus.Fields{
			"function": "replay",
			"frame":    res.Frame,
			"error":    err.Error(),
		}).Warn("Replay failed, stopping")
		s.eng.StopReplaying()
		return s.sendLiveConfig()
	}

	switch {
	case res.Restarted:
		logrus.WithFields(logrus.Fields{
			"function": "replay",
			"name":     s.eng.ReplayName(),
		}).Debug("Replay looped")
		return s.sendReplayConfig()
	case res.Finished:
		logrus.WithFields(logrus.Fields{
			"function": "replay",
		}).Info("Replay finished")
		return s.sendLiveConfig()
	}
	return nil
}

// sendCurrentConfig announces the replay config while replaying and the
// live config otherwise.
func (s *Streamer) sendCurrentConfig() error {
	if s.eng.Replaying() {
		return s.sendReplayConfig()
	}
	return s.sendLiveConfig()
}

func (s *Streamer) sendLiveConfig() error {
	if !s.deviceOpen {
		logrus.WithFields(logrus.Fields{
			"function": "sendLiveConfig",
		}).Debug("No device open, no live config to send")
		return nil
	}
	cfg := s.live
	return s.sendConfig(&cfg)
}

func (s *Streamer) sendReplayConfig() error {
	cfg, ok := s.eng.ReplayConfig()
	if !ok {
		return nil
	}
	return s.sendConfig(&cfg)
}

func (s *Streamer) sendConfig(cfg *wire.Config) error {
	n, err := protocol.SendConfig(s.conn, cfg)
	if err != nil {
		if fatal(err) {
			return fmt.Errorf("%w: config: %w", ErrFatal, err)
		}
		logrus.WithFields(logrus.Fields{
			"function": "sendConfig",
			"error":    err.Error(),
		}).Warn("Failed to send config")
		return nil
	}
	s.stats.PutPackets(1, n)
	logrus.WithFields(logrus.Fields{
		"function": "sendConfig",
		"filename": cfg.Filename,
		"flags":    cfg.Flags,
	}).Debug("Sent config")
	return nil
}
