package transport

import (
	"net"
	"time"

	"github.com/opd-ai/rgbdstream/limits"
)

// ReceiveHook inspects a freshly received buffer on the listener goroutine.
// Returning true consumes the datagram and the transport recycles the
// buffer; returning false queues it for the application loop.
type ReceiveHook func(b *Buffer) bool

// SendGate decides whether a datagram may leave the socket. Refused
// datagrams are dropped and their buffer recycled.
type SendGate func(data []byte, addr net.Addr) bool

// Sender is the send path the packetizer and replay engine emit through.
type Sender interface {
	// AcquireSend takes a free send buffer without blocking.
	AcquireSend() (*Buffer, error)

	// Release returns a held buffer to its free pool.
	Release(b *Buffer) error

	// Enqueue hands a filled buffer to the sender. A nil dest means the
	// default destination.
	Enqueue(b *Buffer, dest net.Addr) error

	// SendBlocking writes data synchronously without touching the pools.
	SendBlocking(data []byte, dest net.Addr) (int, error)
}

// Options configures a UDPTransport.
type Options struct {
	// ListenAddr is the local address to bind, e.g. ":0".
	ListenAddr string
	// RemoteAddr is the default destination, resolved at construction. Optional.
	RemoteAddr string

	ReceiveBuffers    int
	ReceiveBufferSize int
	SendBuffers       int
	SendBufferSize    int

	// RetryDelay is the listener back-off after a failed receive or an
	// exhausted receive pool.
	RetryDelay time.Duration
}

// DefaultOptions returns options sized for full-frame depth streaming.
func DefaultOptions() Options {
	return Options{
		ListenAddr:        ":0",
		ReceiveBuffers:    16,
		ReceiveBufferSize: limits.MaxUDPReceiveSize,
		SendBuffers:       256,
		SendBufferSize:    limits.MaxUDPReceiveSize,
		RetryDelay:        time.Second,
	}
}

func (o Options) arenaOptions() ArenaOptions {
	return ArenaOptions{
		ReceiveBuffers:    o.ReceiveBuffers,
		ReceiveBufferSize: o.ReceiveBufferSize,
		SendBuffers:       o.SendBuffers,
		SendBufferSize:    o.SendBufferSize,
	}
}

// Stats counts datagrams moved by a transport.
type Stats struct {
	Received     uint64
	Sent         uint64
	SentBytes    uint64
	Gated        uint64
	SendErrors   uint64
	ReceiveDrops uint64
}
