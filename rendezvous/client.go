package rendezvous

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/rgbdstream/clock"
	"github.com/opd-ai/rgbdstream/limits"
	"github.com/opd-ai/rgbdstream/transport"
	"github.com/opd-ai/rgbdstream/wire"
)

// State is the connectivity state of a Client.
type State int32

const (
	// Disconnected means no peer is reachable; registration is due.
	Disconnected State = iota
	// Registering means the client has announced itself and waits for a
	// peer probe.
	Registering
	// Connected means a probe arrived from the peer within the timeout.
	Connected
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Registering:
		return "registering"
	case Connected:
		return "connected"
	default:
		return "unknown"
	}
}

var (
	// ErrNoServer indicates the matchmaking server address is missing
	ErrNoServer = errors.New("rendezvous server address required")
	// ErrNilTransport indicates the client was built without a transport
	ErrNilTransport = errors.New("rendezvous client requires a transport")
)

// Transport is the part of transport.UDPTransport the client drives.
type Transport interface {
	SendTo(data []byte, dest net.Addr) (int, error)
	SetDestination(addr net.Addr)
	SetReceiveHook(hook transport.ReceiveHook)
	SetSendGate(gate transport.SendGate)
}

// Options configures a Client.
type Options struct {
	// ServerAddr is the matchmaking server, host:port.
	ServerAddr string
	SocketID   string
	GUID       string
	IsSender   bool
	// LocalIP overrides local address discovery when set.
	LocalIP string

	RegisterInterval  time.Duration
	HeartbeatInterval time.Duration
	ConnectionTimeout time.Duration
	TickInterval      time.Duration

	TimeProvider clock.TimeProvider
}

// DefaultOptions returns the standard timing: register and heartbeat every
// 2 s, drop the peer after 5 s of silence, evaluate every 50 ms.
func DefaultOptions() Options {
	return Options{
		IsSender:          true,
		RegisterInterval:  2 * time.Second,
		HeartbeatInterval: 2 * time.Second,
		ConnectionTimeout: 5 * time.Second,
		TickInterval:      50 * time.Millisecond,
	}
}

// Client is the matchmaking and hole-punch state machine.
type Client struct {
	tr     Transport
	server *net.UDPAddr
	opts   Options
	tp     clock.TimeProvider

	registration []byte

	mu            sync.Mutex
	state         State
	peer          net.Addr
	lastRegister  time.Time
	lastSentHB    time.Time
	lastReceiveHB time.Time
}

// New builds a client and installs its receive hook and send gate on tr.
func New(tr Transport, opts Options) (*Client, error) {
	if tr == nil {
		return nil, ErrNilTransport
	}
	if opts.ServerAddr == "" {
		return nil, ErrNoServer
	}
	server, err := net.ResolveUDPAddr("udp", opts.ServerAddr)
	if err != nil {
		return nil, fmt.Errorf("resolve rendezvous server %s: %w", opts.ServerAddr, err)
	}

	def := DefaultOptions()
	if opts.RegisterInterval <= 0 {
		opts.RegisterInterval = def.RegisterInterval
	}
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = def.HeartbeatInterval
	}
	if opts.ConnectionTimeout <= 0 {
		opts.ConnectionTimeout = def.ConnectionTimeout
	}
	if opts.TickInterval <= 0 {
		opts.TickInterval = def.TickInterval
	}
	if opts.LocalIP == "" {
		opts.LocalIP = LocalIP()
	}

	reg, err := encode(Registration{
		PackageType: packageRegister,
		SocketID:    opts.SocketID,
		IsSender:    opts.IsSender,
		LocalIP:     opts.LocalIP,
		UID:         opts.GUID,
	})
	if err != nil {
		return nil, fmt.Errorf("encode registration: %w", err)
	}

	c := &Client{
		tr:           tr,
		server:       server,
		opts:         opts,
		tp:           clock.Or(opts.TimeProvider),
		registration: reg,
	}
	tr.SetReceiveHook(c.HandleDatagram)
	tr.SetSendGate(c.Allow)

	logrus.WithFields(logrus.Fields{
		"function":  "New",
		"server":    server.String(),
		"socket_id": opts.SocketID,
		"local_ip":  opts.LocalIP,
	}).Info("Rendezvous client created")

	return c, nil
}

// Run evaluates the state machine every tick until ctx is done.
func (c *Client) Run(ctx context.Context) error {
	ticker := c.tp.NewTicker(c.opts.TickInterval)
	defer ticker.Stop()

	c.tick()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			c.tick()
		}
	}
}

// State returns the current connectivity state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connected reports whether a peer probe arrived within the timeout.
func (c *Client) Connected() bool {
	return c.State() == Connected
}

// Peer returns the candidate peer address from the last answer, or nil.
func (c *Client) Peer() net.Addr {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.peer
}

// Server returns the matchmaking server address.
func (c *Client) Server() net.Addr {
	return c.server
}

// LastHeartbeat returns when the last peer probe arrived.
func (c *Client) LastHeartbeat() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastReceiveHB
}

// tick runs one evaluation of the state machine.
func (c *Client) tick() {
	now := c.tp.Now()

	c.mu.Lock()
	if c.state == Connected && now.Sub(c.lastReceiveHB) > c.opts.ConnectionTimeout {
		c.state = Disconnected
		logrus.WithFields(logrus.Fields{
			"function":       "tick",
			"peer":           addrString(c.peer),
			"last_heartbeat": c.lastReceiveHB,
		}).Info("Peer heartbeat timed out, re-registering")
	}

	var register, heartbeat bool
	var peer net.Addr
	switch c.state {
	case Disconnected, Registering:
		if c.lastRegister.IsZero() || now.Sub(c.lastRegister) > c.opts.RegisterInterval {
			c.lastRegister = now
			c.state = Registering
			register = true
		}
	case Connected:
		if now.Sub(c.lastSentHB) > c.opts.HeartbeatInterval {
			c.lastSentHB = now
			heartbeat = true
			peer = c.peer
		}
	}
	c.mu.Unlock()

	if register {
		c.send(c.registration, c.server, "register")
	}
	if heartbeat && peer != nil {
		c.send(punchMessage, peer, "heartbeat")
	}
}

// HandleDatagram is the transport receive hook. It consumes answer and
// probe messages and leaves every other datagram for the application.
func (c *Client) HandleDatagram(b *transport.Buffer) bool {
	if b.Kind() != wire.KindControl {
		return false
	}
	return c.handle(b.Payload(), b.Addr())
}

func (c *Client) handle(payload []byte, from net.Addr) bool {
	if err := limits.ValidateControlMessage(payload); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "handle",
			"from":     addrString(from),
			"error":    err.Error(),
		}).Debug("Not a rendezvous message")
		return false
	}
	var msg Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		return false
	}

	switch msg.Type {
	case typeAnswer:
		c.handleAnswer(msg)
		return true
	case typePunch:
		c.handlePunch(from)
		return true
	default:
		return false
	}
}

func (c *Client) handleAnswer(msg Message) {
	hostPort := net.JoinHostPort(msg.Address, strconv.Itoa(msg.Port))
	peer, err := net.ResolveUDPAddr("udp4", hostPort)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "handleAnswer",
			"address":  hostPort,
			"error":    err.Error(),
		}).Warn("Failed to resolve peer from answer")
		return
	}

	c.mu.Lock()
	c.peer = peer
	c.mu.Unlock()
	c.tr.SetDestination(peer)

	logrus.WithFields(logrus.Fields{
		"function": "handleAnswer",
		"peer":     peer.String(),
	}).Info("Received peer candidate, punching")

	c.send(punchMessage, peer, "punch")
	c.send(punchMessage, peer, "punch")
}

func (c *Client) handlePunch(from net.Addr) {
	now := c.tp.Now()

	c.mu.Lock()
	was := c.state
	c.state = Connected
	c.lastReceiveHB = now
	c.mu.Unlock()

	if was != Connected {
		logrus.WithFields(logrus.Fields{
			"function": "handlePunch",
			"from":     addrString(from),
		}).Info("Peer connected")
	}
}

// Allow is the transport send gate. Control messages and traffic to the
// server always pass; everything else needs a connected peer.
func (c *Client) Allow(data []byte, addr net.Addr) bool {
	if len(data) > 0 && wire.Kind(data[0]) == wire.KindControl {
		return true
	}
	if sameAddr(addr, c.server) {
		return true
	}
	return c.Connected()
}

func (c *Client) send(data []byte, dest net.Addr, what string) {
	if _, err := c.tr.SendTo(data, dest); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "send",
			"message":  what,
			"dest":     addrString(dest),
			"error":    err.Error(),
		}).Warn("Failed to send rendezvous message")
	}
}

func sameAddr(a net.Addr, b *net.UDPAddr) bool {
	if a == nil || b == nil {
		return false
	}
	if ua, ok := a.(*net.UDPAddr); ok {
		return ua.Port == b.Port && ua.IP.Equal(b.IP)
	}
	return a.String() == b.String()
}

func addrString(a net.Addr) string {
	if a == nil {
		return ""
	}
	return a.String()
}

// LocalIP returns the address of the interface used for outbound traffic.
// Connecting a UDP socket selects a route without sending anything.
func LocalIP() string {
	conn, err := net.Dial("udp4", "8.8.8.8:80")
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "LocalIP",
			"error":    err.Error(),
		}).Warn("Could not determine local IP")
		return NoLocalIP
	}
	defer conn.Close()

	if ua, ok := conn.LocalAddr().(*net.UDPAddr); ok {
		return ua.IP.String()
	}
	return NoLocalIP
}
