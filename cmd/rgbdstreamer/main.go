// Command rgbdstreamer streams a depth camera over UDP, records it on
// command and replays recordings.
//
// Usage:
//
//	rgbdstreamer -config streamer.toml
//	rgbdstreamer -remote 10.0.0.5:5000 -mm=false -save session1
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/rgbdstream/config"
	"github.com/opd-ai/rgbdstream/device"
	"github.com/opd-ai/rgbdstream/record"
	"github.com/opd-ai/rgbdstream/rendezvous"
	"github.com/opd-ai/rgbdstream/streamer"
	"github.com/opd-ai/rgbdstream/transport"
)

var (
	configFile = flag.String("config", "", "TOML configuration file")
	socketID   = flag.String("id", "", "Socket id registered with the matchmaking server")
	remote     = flag.String("remote", "", "Remote host:port, the matchmaking server or a direct peer")
	listenPort = flag.Int("port", -1, "Local UDP port")
	matchmake  = flag.Bool("mm", true, "Use the matchmaking server")
	serial     = flag.String("serial", "", "Device serial")
	recordPath = flag.String("path", "", "Recording directory")
	fileSave   = flag.String("save", "", "Start recording under this name")
	fileLoad   = flag.String("load", "", "Start replaying this recording")
	loop       = flag.Bool("loop", false, "Loop the replay started with -load")
	logLevel   = flag.String("log-level", "", "Log level")
)

func main() {
	flag.Parse()

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "rgbdstreamer: %v\n", err)
		os.Exit(2)
	}
	setupLogging(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "main",
			"error":    err.Error(),
		}).Error("Streamer exited with error")
		os.Exit(1)
	}
}

// loadConfig reads the configuration file and applies flags set on the
// command line over it.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(*configFile)
	if err != nil {
		return cfg, err
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "id":
			cfg.SocketID = *socketID
		case "remote":
			host, port, ok := splitHostPort(*remote)
			if ok {
				cfg.RemoteHost, cfg.RemotePort = host, port
			}
		case "port":
			cfg.ListenPort = *listenPort
		case "mm":
			cfg.UseMatchmaking = *matchmake
		case "serial":
			cfg.DeviceSerial = *serial
		case "path":
			cfg.RecordPath = *recordPath
		case "save":
			cfg.FileSave = *fileSave
		case "load":
			cfg.FileLoad = *fileLoad
		case "loop":
			cfg.Loop = *loop
		case "log-level":
			cfg.LogLevel = *logLevel
		}
	})
	return cfg, cfg.Validate()
}

func setupLogging(cfg config.Config) {
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
	if cfg.LogFormat == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
}

func run(ctx context.Context, cfg config.Config) error {
	opts := transport.Options{
		ListenAddr:        cfg.ListenAddr(),
		ReceiveBuffers:    cfg.ReceiveBuffers,
		ReceiveBufferSize: cfg.ReceiveBufferSize,
		SendBuffers:       cfg.SendBuffers,
		SendBufferSize:    cfg.SendBufferSize,
	}
	if !cfg.UseMatchmaking {
		opts.RemoteAddr = cfg.RemoteAddr()
	}
	tr, err := transport.NewUDPTransport(opts)
	if err != nil {
		return err
	}
	defer tr.Close()

	// The rendezvous GUID and the device GUID share one serial.
	serial := cfg.DeviceSerial
	if serial == "" {
		serial = cfg.SocketID
	}
	dev := device.NewSynthetic(device.SyntheticOptions{
		Width:       cfg.SyntheticWidth,
		Height:      cfg.SyntheticHeight,
		FPS:         cfg.SyntheticFPS,
		MaxDepth:    cfg.MaxDepth,
		Serial:      serial,
		Audio:       cfg.SyntheticAudio,
		Body:        cfg.SyntheticBody,
		JPEGQuality: cfg.JPEGQuality,
	})

	engine := record.NewEngine(record.Options{Dir: cfg.RecordPath, MTU: cfg.MTU})

	sopts := streamer.Options{
		DeviceID:      uint8(cfg.DeviceID),
		MTU:           cfg.MTU,
		FileSave:      cfg.FileSave,
		FileLoad:      cfg.FileLoad,
		Loop:          cfg.Loop,
		StatsInterval: cfg.StatsInterval.Duration,
	}

	if cfg.UseMatchmaking {
		client, err := rendezvous.New(tr, rendezvous.Options{
			ServerAddr:        cfg.RemoteAddr(),
			SocketID:          cfg.SocketID,
			GUID:              device.GUIDFromSerial(serial),
			IsSender:          true,
			RegisterInterval:  cfg.RegisterInterval.Duration,
			HeartbeatInterval: cfg.HeartbeatInterval.Duration,
			ConnectionTimeout: cfg.ConnectionTimeout.Duration,
			TickInterval:      cfg.TickInterval.Duration,
		})
		if err != nil {
			return err
		}
		sopts.Rendezvous = client
	}

	s, err := streamer.New(tr, dev, engine, sopts)
	if err != nil {
		return err
	}

	logrus.WithFields(logrus.Fields{
		"function":    "run",
		"local":       tr.LocalAddr().String(),
		"remote":      cfg.RemoteAddr(),
		"matchmaking": cfg.UseMatchmaking,
		"socket_id":   cfg.SocketID,
		"record_path": cfg.RecordPath,
	}).Info("Starting streamer")

	err = s.Run(ctx)

	st := tr.Stats()
	logrus.WithFields(logrus.Fields{
		"function":      "run",
		"sent":          st.Sent,
		"sent_bytes":    st.SentBytes,
		"received":      st.Received,
		"gated":         st.Gated,
		"send_errors":   st.SendErrors,
		"receive_drops": st.ReceiveDrops,
	}).Info("Streamer stopped")
	return err
}
