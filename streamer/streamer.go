package streamer

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/opd-ai/rgbdstream/clock"
	"github.com/opd-ai/rgbdstream/device"
	"github.com/opd-ai/rgbdstream/protocol"
	"github.com/opd-ai/rgbdstream/record"
	"github.com/opd-ai/rgbdstream/scheduler"
	"github.com/opd-ai/rgbdstream/stats"
	"github.com/opd-ai/rgbdstream/transport"
	"github.com/opd-ai/rgbdstream/wire"
)

// ErrFatal wraps errors that end the loop.
var ErrFatal = errors.New("streaming stopped")

// Conn is the transport the loop runs on.
type Conn interface {
	transport.Sender
	// Dequeue takes a received datagram without blocking.
	Dequeue() (*transport.Buffer, bool)
	// Err reports a failure of the background sender.
	Err() error
}

// Runner is a periodic task run beside the loop, such as the rendezvous
// client.
type Runner interface {
	Run(ctx context.Context) error
}

// Options configures a Streamer.
type Options struct {
	DeviceID uint8
	MTU      int

	// FileSave starts a recording under this name at launch.
	FileSave string
	// FileLoad starts replaying this recording at launch.
	FileLoad string
	// Loop applies to the launch replay.
	Loop bool

	// IterationInterval is the pause between loop passes.
	IterationInterval time.Duration
	// StatsInterval is the period of the statistics log line.
	StatsInterval time.Duration

	Rendezvous   Runner
	TimeProvider clock.TimeProvider
}

// DefaultOptions returns a loop that polls every 2 ms and reports every 2 s.
func DefaultOptions() Options {
	return Options{
		IterationInterval: 2 * time.Millisecond,
		StatsInterval:     2 * time.Second,
	}
}

// Streamer owns the application loop state. Iterate must only be called
// from one goroutine.
type Streamer struct {
	conn Conn
	dev  device.Device
	eng  *record.Engine
	opts Options
	tp   clock.TimeProvider

	seq   protocol.Sequence
	pk    *protocol.Packetizer
	queue *scheduler.Queue
	stats *stats.Window

	deviceOpen bool
	caps       device.Capabilities
	live       wire.Config
	// posed is set once extrinsics were received; the pose then survives
	// reopening the device.
	posed bool

	started  bool
	stopping atomic.Bool
}

// New builds a streamer. dev may be nil for a replay-only streamer.
func New(conn Conn, dev device.Device, eng *record.Engine, opts Options) (*Streamer, error) {
	if conn == nil {
		return nil, errors.New("streamer requires a transport")
	}
	if eng == nil {
		return nil, errors.New("streamer requires a record engine")
	}
	def := DefaultOptions()
	if opts.IterationInterval <= 0 {
		opts.IterationInterval = def.IterationInterval
	}
	if opts.StatsInterval <= 0 {
		opts.StatsInterval = def.StatsInterval
	}
	tp := clock.Or(opts.TimeProvider)
	return &Streamer{
		conn:  conn,
		dev:   dev,
		eng:   eng,
		opts:  opts,
		tp:    tp,
		queue: scheduler.NewQueue(),
		stats: stats.NewWindow(tp.Now()),
		live:  wire.NewConfig(),
	}, nil
}

// IterationInterval returns the pause between loop passes.
func (s *Streamer) IterationInterval() time.Duration {
	return s.opts.IterationInterval
}

// Stopping reports whether a stop command was executed.
func (s *Streamer) Stopping() bool {
	return s.stopping.Load()
}

// Stop makes Run return after the current pass.
func (s *Streamer) Stop() {
	s.stopping.Store(true)
}

// LiveConfig returns the live config descriptor.
func (s *Streamer) LiveConfig() wire.Config {
	return s.live
}

// DeviceOpen reports whether the capture device is open.
func (s *Streamer) DeviceOpen() bool {
	return s.deviceOpen
}

// Pending returns the number of queued commands.
func (s *Streamer) Pending() int {
	return s.queue.Len()
}

// Start opens the device, announces the stream and starts the launch-time
// recording and replay. Failing to open the device is fatal; a refused
// launch recording or replay is logged.
func (s *Streamer) Start() error {
	if s.started {
		return nil
	}
	s.started = true

	if s.dev != nil {
		if err := s.openDevice(); err != nil {
			return fmt.Errorf("%w: %v", ErrFatal, err)
		}
	}
	if s.opts.FileSave != "" {
		s.startRecording(s.opts.FileSave)
	}
	if s.opts.FileLoad != "" {
		if err := s.startReplay(s.opts.FileLoad, record.ReplayOptions{Loop: s.opts.Loop}); err != nil {
			return err
		}
	}
	if s.eng.Replaying() {
		return nil
	}
	return s.sendLiveConfig()
}

// Run starts the streamer and iterates until ctx is done, a stop command
// arrives or a fatal error occurs. The rendezvous runner, if any, runs
// until the loop returns.
func (s *Streamer) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	g, ctx := errgroup.WithContext(ctx)

	if s.opts.Rendezvous != nil {
		g.Go(func() error {
			return s.opts.Rendezvous.Run(ctx)
		})
	}
	g.Go(func() error {
		defer cancel()
		defer s.shutdown()
		return s.loop(ctx)
	})
	return g.Wait()
}

func (s *Streamer) loop(ctx context.Context) error {
	if err := s.Start(); err != nil {
		return err
	}
	logrus.WithFields(logrus.Fields{
		"function":  "Run",
		"interval":  s.opts.IterationInterval,
		"device":    s.deviceOpen,
		"replaying": s.eng.Replaying(),
	}).Info("Streaming started")

	ticker := s.tp.NewTicker(s.opts.IterationInterval)
	defer ticker.Stop()
	for !s.Stopping() {
		if err := s.Iterate(); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "Run",
				"error":    err.Error(),
			}).Error("Streaming failed")
			return err
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
	logrus.WithFields(logrus.Fields{
		"function": "Run",
	}).Info("Streaming stopped by command")
	return nil
}

// shutdown ends replay and recording and closes the device.
func (s *Streamer) shutdown() {
	if err := s.eng.Close(); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "shutdown",
			"error":    err.Error(),
		}).Warn("Failed to close recording")
	}
	s.closeDevice()
}

// Iterate runs one pass of the loop. It returns an error wrapping ErrFatal
// when streaming must stop.
func (s *Streamer) Iterate() error {
	if !s.started {
		if err := s.Start(); err != nil {
			return err
		}
	}
	if err := s.conn.Err(); err != nil {
		return fmt.Errorf("%w: transport: %w", ErrFatal, err)
	}
	now := s.tp.Now()

	s.drain(now)

	for _, cmd := range s.queue.Due(now) {
		if err := s.execute(cmd); err != nil {
			return err
		}
		if s.Stopping() {
			return nil
		}
	}

	if err := s.replay(); err != nil {
		return err
	}
	if err := s.capture(now); err != nil {
		return err
	}

	if snap, ok := s.stats.Report(now, s.opts.StatsInterval); ok {
		source := "live"
		if s.eng.Replaying() {
			source = "replay"
		}
		snap.Log(source)
	}
	return nil
}

// drain moves every received datagram through HandleMessage.
func (s *Streamer) drain(now time.Time) {
	for {
		b, ok := s.conn.Dequeue()
		if !ok {
			return
		}
		s.handle(b.Kind(), b.Payload(), b.Addr(), now)
		if err := s.conn.Release(b); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "drain",
				"buffer":   b.ID(),
				"error":    err.Error(),
			}).Warn("Failed to recycle receive buffer")
		}
	}
}

// HandleMessage queues the command carried by a received datagram. Frame
// datagrams are ignored; malformed commands are logged and dropped.
func (s *Streamer) HandleMessage(data []byte, from net.Addr) {
	if len(data) == 0 {
		return
	}
	kind := wire.Kind(data[0])
	payload := data
	if off, ok := wire.PayloadOffset(kind); ok {
		payload = data[off:]
	}
	s.handle(kind, payload, from, s.tp.Now())
}

func (s *Streamer) handle(kind wire.Kind, payload []byte, from net.Addr, now time.Time) {
	if kind != wire.KindControl && kind != wire.KindJSON {
		logrus.WithFields(logrus.Fields{
			"function": "handle",
			"kind":     kind.String(),
			"from":     addrString(from),
		}).Debug("Ignoring non-control datagram")
		return
	}
	cmd, err := scheduler.Parse(payload, now)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "handle",
			"from":     addrString(from),
			"size":     len(payload),
			"error":    err.Error(),
		}).Warn("Dropping malformed control message")
		return
	}
	s.queue.Push(cmd)
	logrus.WithFields(logrus.Fields{
		"function": "handle",
		"command":  cmd.String(),
		"due":      cmd.Due,
		"from":     addrString(from),
	}).Debug("Scheduled command")
}

// Schedule queues cmd directly.
func (s *Streamer) Schedule(cmd scheduler.Command) {
	if cmd.Due.IsZero() {
		cmd.Due = s.tp.Now()
	}
	s.queue.Push(cmd)
}

// fatal reports whether err must end the loop: pool exhaustion, a closed
// transport or a socket failure.
func fatal(err error) bool {
	var opErr *transport.OpError
	return errors.Is(err, transport.ErrPoolExhausted) ||
		errors.Is(err, transport.ErrTransportClosed) ||
		errors.As(err, &opErr)
}

func addrString(a net.Addr) string {
	if a == nil {
		return ""
	}
	return a.String()
}
