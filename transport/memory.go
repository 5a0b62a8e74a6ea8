package transport

import (
	"net"
	"sync"

	"github.com/opd-ai/rgbdstream/limits"
)

// Datagram is a copy of one packet captured by a MemorySender.
type Datagram struct {
	Data []byte
	Addr net.Addr
}

// MemorySender implements Sender on top of an Arena without a socket.
// Enqueued and blocking sends are copied into an in-memory log and the
// buffers recycled immediately. It backs dry runs and package tests.
type MemorySender struct {
	arena *Arena

	mu        sync.Mutex
	datagrams []Datagram
	dest      net.Addr
}

var _ Sender = (*MemorySender)(nil)

// NewMemorySender returns a sender with sendBuffers buffers of size bytes.
func NewMemorySender(sendBuffers, size int) (*MemorySender, error) {
	arena, err := NewArena(ArenaOptions{
		ReceiveBuffers:    1,
		ReceiveBufferSize: 1,
		SendBuffers:       sendBuffers,
		SendBufferSize:    size,
	})
	if err != nil {
		return nil, err
	}
	return &MemorySender{arena: arena}, nil
}

// Arena returns the backing arena.
func (m *MemorySender) Arena() *Arena {
	return m.arena
}

// SetDestination sets the address recorded for sends without one.
func (m *MemorySender) SetDestination(addr net.Addr) {
	m.mu.Lock()
	m.dest = addr
	m.mu.Unlock()
}

// AcquireSend takes a free send buffer.
func (m *MemorySender) AcquireSend() (*Buffer, error) {
	return m.arena.Acquire(FreeSend)
}

// Release returns a held buffer to its free pool.
func (m *MemorySender) Release(b *Buffer) error {
	return m.arena.Release(b)
}

// Enqueue records a copy of b and recycles it.
func (m *MemorySender) Enqueue(b *Buffer, dest net.Addr) error {
	if err := limits.ValidateDatagram(b.Data()); err != nil {
		_ = m.arena.Release(b)
		return err
	}
	b.addr = m.destination(dest)
	if err := m.arena.Push(b, QueuedSend); err != nil {
		return err
	}
	queued, ok := m.arena.Pop(QueuedSend)
	if !ok {
		return ErrNotHeld
	}
	m.record(queued.Data(), queued.addr)
	return m.arena.Release(queued)
}

// SendBlocking records a copy of data.
func (m *MemorySender) SendBlocking(data []byte, dest net.Addr) (int, error) {
	if err := limits.ValidateDatagram(data); err != nil {
		return 0, err
	}
	m.record(data, m.destination(dest))
	return len(data), nil
}

// Err reports no failure; a MemorySender has no socket to fail.
func (m *MemorySender) Err() error {
	return nil
}

// Datagrams returns every datagram sent so far.
func (m *MemorySender) Datagrams() []Datagram {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Datagram, len(m.datagrams))
	copy(out, m.datagrams)
	return out
}

// Reset forgets captured datagrams.
func (m *MemorySender) Reset() {
	m.mu.Lock()
	m.datagrams = nil
	m.mu.Unlock()
}

func (m *MemorySender) destination(dest net.Addr) net.Addr {
	if dest != nil {
		return dest
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dest
}

func (m *MemorySender) record(data []byte, addr net.Addr) {
	cp := make([]byte, len(data))
	copy(cp, data)
	m.mu.Lock()
	m.datagrams = append(m.datagrams, Datagram{Data: cp, Addr: addr})
	m.mu.Unlock()
}
