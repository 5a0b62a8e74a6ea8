package transport

import (
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/opd-ai/rgbdstream/limits"
)

// UDPTransport moves datagrams between a UDP socket and the application loop
// through a fixed buffer arena. One listener goroutine fills receive buffers
// and one sender goroutine drains the send queue; the application never
// blocks on the socket.
type UDPTransport struct {
	conn  net.PacketConn
	arena *Arena

	mu      sync.RWMutex
	dest    net.Addr
	hook    ReceiveHook
	gate    SendGate
	sendErr error

	retryDelay time.Duration
	closed     atomic.Bool
	done       chan struct{}
	closeOnce  sync.Once
	group      errgroup.Group

	received     atomic.Uint64
	sent         atomic.Uint64
	sentBytes    atomic.Uint64
	gated        atomic.Uint64
	sendErrors   atomic.Uint64
	receiveDrops atomic.Uint64
}

var _ Sender = (*UDPTransport)(nil)

// NewUDPTransport binds the socket, allocates the arena and starts the
// listener and sender goroutines.
func NewUDPTransport(opts Options) (*UDPTransport, error) {
	arena, err := NewArena(opts.arenaOptions())
	if err != nil {
		return nil, err
	}

	var dest net.Addr
	if opts.RemoteAddr != "" {
		dest, err = net.ResolveUDPAddr("udp", opts.RemoteAddr)
		if err != nil {
			return nil, newOpError("resolve", opts.RemoteAddr, err)
		}
	}

	conn, err := net.ListenPacket("udp", opts.ListenAddr)
	if err != nil {
		return nil, newOpError("listen", opts.ListenAddr, err)
	}
	if udp, ok := conn.(*net.UDPConn); ok {
		if err := udp.SetWriteBuffer(limits.SocketSendBufferSize); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "NewUDPTransport",
				"error":    err.Error(),
			}).Warn("Failed to set socket send buffer size")
		}
	}

	retry := opts.RetryDelay
	if retry <= 0 {
		retry = time.Second
	}

	t := &UDPTransport{
		conn:       conn,
		arena:      arena,
		dest:       dest,
		retryDelay: retry,
		done:       make(chan struct{}),
	}

	t.group.Go(t.listen)
	t.group.Go(t.send)

	logrus.WithFields(logrus.Fields{
		"function":        "NewUDPTransport",
		"local_addr":      conn.LocalAddr().String(),
		"remote_addr":     opts.RemoteAddr,
		"receive_buffers": opts.ReceiveBuffers,
		"send_buffers":    opts.SendBuffers,
	}).Info("UDP transport started")

	return t, nil
}

// Arena returns the transport's buffer arena.
func (t *UDPTransport) Arena() *Arena {
	return t.arena
}

// LocalAddr returns the local address the transport is listening on.
func (t *UDPTransport) LocalAddr() net.Addr {
	return t.conn.LocalAddr()
}

// SetDestination replaces the default destination.
func (t *UDPTransport) SetDestination(addr net.Addr) {
	t.mu.Lock()
	t.dest = addr
	t.mu.Unlock()
}

// Destination returns the default destination, or nil.
func (t *UDPTransport) Destination() net.Addr {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.dest
}

// SetReceiveHook installs the hook called for every received datagram.
func (t *UDPTransport) SetReceiveHook(hook ReceiveHook) {
	t.mu.Lock()
	t.hook = hook
	t.mu.Unlock()
}

// SetSendGate installs the filter applied by the sender goroutine.
func (t *UDPTransport) SetSendGate(gate SendGate) {
	t.mu.Lock()
	t.gate = gate
	t.mu.Unlock()
}

// AcquireSend takes a free send buffer. It never blocks.
func (t *UDPTransport) AcquireSend() (*Buffer, error) {
	return t.arena.Acquire(FreeSend)
}

// Release returns a held buffer to its free pool.
func (t *UDPTransport) Release(b *Buffer) error {
	return t.arena.Release(b)
}

// Enqueue tags b with dest (or the default destination) and queues it for
// the sender goroutine. On failure the buffer is released.
func (t *UDPTransport) Enqueue(b *Buffer, dest net.Addr) error {
	if t.closed.Load() {
		_ = t.arena.Release(b)
		return ErrTransportClosed
	}
	if dest == nil {
		dest = t.Destination()
	}
	if dest == nil {
		_ = t.arena.Release(b)
		return ErrNoDestination
	}
	if err := limits.ValidateDatagram(b.Data()); err != nil {
		_ = t.arena.Release(b)
		return err
	}
	b.addr = dest
	return t.arena.Push(b, QueuedSend)
}

// Dequeue removes the oldest received datagram. The caller must Release it.
func (t *UDPTransport) Dequeue() (*Buffer, bool) {
	return t.arena.Pop(QueuedReceive)
}

// SendTo copies data into a pooled buffer and queues it.
func (t *UDPTransport) SendTo(data []byte, dest net.Addr) (int, error) {
	b, err := t.AcquireSend()
	if err != nil {
		return 0, err
	}
	if len(data) > b.Cap() {
		_ = t.arena.Release(b)
		return 0, ErrBufferOverflow
	}
	n := copy(b.Bytes(), data)
	_ = b.SetLen(n)
	if err := t.Enqueue(b, dest); err != nil {
		return 0, err
	}
	return n, nil
}

// SendBlocking writes data straight to the socket, bypassing the pools.
// It is meant for small, latency-insensitive messages such as config
// descriptors.
func (t *UDPTransport) SendBlocking(data []byte, dest net.Addr) (int, error) {
	if t.closed.Load() {
		return 0, ErrTransportClosed
	}
	if dest == nil {
		dest = t.Destination()
	}
	if dest == nil {
		return 0, ErrNoDestination
	}
	if err := limits.ValidateDatagram(data); err != nil {
		return 0, err
	}
	if !t.allowed(data, dest) {
		t.gated.Add(1)
		return 0, nil
	}
	n, err := t.conn.WriteTo(data, dest)
	if err != nil {
		t.sendErrors.Add(1)
		return n, newOpError("write", dest.String(), err)
	}
	t.sent.Add(1)
	t.sentBytes.Add(uint64(n))
	return n, nil
}

// Err returns the first write failure of the sender goroutine, or nil.
// Once set it stays set.
func (t *UDPTransport) Err() error {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.sendErr
}

// Stats returns a snapshot of the transport counters.
func (t *UDPTransport) Stats() Stats {
	return Stats{
		Received:     t.received.Load(),
		Sent:         t.sent.Load(),
		SentBytes:    t.sentBytes.Load(),
		Gated:        t.gated.Load(),
		SendErrors:   t.sendErrors.Load(),
		ReceiveDrops: t.receiveDrops.Load(),
	}
}

// Close closes the socket, which unblocks the listener, wakes the sender,
// waits for both goroutines and drains every pool.
func (t *UDPTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		t.closed.Store(true)
		close(t.done)
		err = t.conn.Close()
		t.arena.Wake(QueuedSend)
		if gerr := t.group.Wait(); gerr != nil && err == nil {
			err = gerr
		}
		t.arena.Drain()

		logrus.WithFields(logrus.Fields{
			"function": "Close",
			"sent":     t.sent.Load(),
			"received": t.received.Load(),
		}).Info("UDP transport closed")
	})
	return err
}

func (t *UDPTransport) isClosed() bool {
	return t.closed.Load()
}

// backoff sleeps for the retry delay unless the transport closes first.
func (t *UDPTransport) backoff() {
	timer := time.NewTimer(t.retryDelay)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-t.done:
	}
}

// listen is the listener goroutine.
func (t *UDPTransport) listen() error {
	for !t.isClosed() {
		b, err := t.arena.Acquire(FreeReceive)
		if err != nil {
			if errors.Is(err, ErrTransportClosed) {
				return nil
			}
			t.receiveDrops.Add(1)
			logrus.WithFields(logrus.Fields{
				"function": "listen",
				"error":    err.Error(),
			}).Error("No free receive buffer")
			t.backoff()
			continue
		}

		n, addr, err := t.conn.ReadFrom(b.Bytes())
		if err != nil {
			_ = t.arena.Release(b)
			if t.isClosed() || errors.Is(err, net.ErrClosed) {
				return nil
			}
			logrus.WithFields(logrus.Fields{
				"function": "listen",
				"error":    err.Error(),
			}).Warn("Receive failed")
			t.backoff()
			continue
		}
		if n == 0 {
			_ = t.arena.Release(b)
			continue
		}

		b.n = n
		b.addr = addr
		b.classify()
		t.received.Add(1)
		t.dispatch(b)
	}
	return nil
}

func (t *UDPTransport) dispatch(b *Buffer) {
	t.mu.RLock()
	hook := t.hook
	t.mu.RUnlock()

	if hook != nil && hook(b) {
		_ = t.arena.Release(b)
		return
	}
	if err := t.arena.Push(b, QueuedReceive); err != nil {
		logrus.WithFields(logrus.Fields{
			"function":  "dispatch",
			"buffer_id": b.ID(),
			"error":     err.Error(),
		}).Error("Failed to queue received buffer")
	}
}

// send is the sender goroutine.
func (t *UDPTransport) send() error {
	for {
		b, ok := t.arena.PopWait(QueuedSend, t.isClosed)
		if !ok {
			return nil
		}
		t.transmit(b)
		_ = t.arena.Release(b)
	}
}

func (t *UDPTransport) transmit(b *Buffer) {
	if !t.allowed(b.Data(), b.addr) {
		t.gated.Add(1)
		return
	}
	n, err := t.conn.WriteTo(b.Data(), b.addr)
	if err != nil {
		if t.isClosed() {
			return
		}
		t.sendErrors.Add(1)
		t.mu.Lock()
		if t.sendErr == nil {
			t.sendErr = newOpError("write", b.addr.String(), err)
		}
		t.mu.Unlock()
		logrus.WithFields(logrus.Fields{
			"function": "transmit",
			"addr":     b.addr.String(),
			"size":     b.Len(),
			"error":    err.Error(),
		}).Error("Send failed")
		return
	}
	t.sent.Add(1)
	t.sentBytes.Add(uint64(n))
}

func (t *UDPTransport) allowed(data []byte, addr net.Addr) bool {
	t.mu.RLock()
	gate := t.gate
	t.mu.RUnlock()
	return gate == nil || gate(data, addr)
}
