package transport

import (
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/opd-ai/rgbdstream/wire"
)

// Pool identifies where a buffer currently lives.
type Pool int32

const (
	// FreeReceive holds buffers waiting for the listener to fill them.
	FreeReceive Pool = iota
	// QueuedReceive holds received datagrams waiting for the application loop.
	QueuedReceive
	// FreeSend holds buffers the application may acquire to build packets.
	FreeSend
	// QueuedSend holds packets waiting for the sender goroutine.
	QueuedSend

	numPools

	// HeldReceive marks a receive buffer checked out of every pool.
	HeldReceive Pool = 100
	// HeldSend marks a send buffer checked out of every pool.
	HeldSend Pool = 101
)

// String returns the pool name.
func (p Pool) String() string {
	switch p {
	case FreeReceive:
		return "free-receive"
	case QueuedReceive:
		return "queued-receive"
	case FreeSend:
		return "free-send"
	case QueuedSend:
		return "queued-send"
	case HeldReceive:
		return "held-receive"
	case HeldSend:
		return "held-send"
	default:
		return fmt.Sprintf("pool(%d)", int32(p))
	}
}

func (p Pool) receiveSide() bool {
	return p == FreeReceive || p == QueuedReceive || p == HeldReceive
}

// Buffer is a fixed-capacity datagram buffer owned by an Arena.
// A buffer is handed between goroutines only through Arena operations;
// whoever holds it after Acquire or Pop may mutate it until it is pushed
// or released again.
type Buffer struct {
	id        int
	receive   bool
	data      []byte
	n         int
	dataStart int
	addr      net.Addr
	state     atomic.Int32
}

// ID returns the buffer's stable handle.
func (b *Buffer) ID() int { return b.id }

// Bytes returns the whole backing region for writing.
func (b *Buffer) Bytes() []byte { return b.data }

// Cap returns the buffer capacity.
func (b *Buffer) Cap() int { return len(b.data) }

// Len returns the write extent.
func (b *Buffer) Len() int { return b.n }

// SetLen sets the write extent: the number of bytes a send transmits.
func (b *Buffer) SetLen(n int) error {
	if n < 0 || n > len(b.data) {
		return fmt.Errorf("%w: extent %d outside [0, %d]", ErrBufferOverflow, n, len(b.data))
	}
	b.n = n
	return nil
}

// Data returns the populated bytes.
func (b *Buffer) Data() []byte { return b.data[:b.n] }

// Kind returns the message kind stamped in the first byte.
func (b *Buffer) Kind() wire.Kind {
	if b.n == 0 {
		return 0
	}
	return wire.Kind(b.data[0])
}

// Payload returns the bytes following the message header.
func (b *Buffer) Payload() []byte { return b.data[b.dataStart:b.n] }

// Addr returns the peer address: the source for received buffers and the
// destination for queued send buffers.
func (b *Buffer) Addr() net.Addr { return b.addr }

// Pool returns the pool the buffer currently belongs to.
func (b *Buffer) Pool() Pool { return Pool(b.state.Load()) }

// classify stamps header-derived extents after a receive.
func (b *Buffer) classify() {
	b.dataStart = 0
	if b.n == 0 {
		return
	}
	if off, ok := wire.PayloadOffset(wire.Kind(b.data[0])); ok && off <= b.n {
		b.dataStart = off
	}
}

func (b *Buffer) reset() {
	b.n = 0
	b.dataStart = 0
	b.addr = nil
}

// handlePool is a FIFO of buffer handles guarded by its own lock.
type handlePool struct {
	mu    sync.Mutex
	cond  *sync.Cond
	ring  []int
	head  int
	count int
}

func newHandlePool(capacity int) *handlePool {
	p := &handlePool{ring: make([]int, capacity)}
	p.cond = sync.NewCond(&p.mu)
	return p
}

func (p *handlePool) push(h int) {
	p.ring[(p.head+p.count)%len(p.ring)] = h
	p.count++
}

func (p *handlePool) pop() int {
	h := p.ring[p.head]
	p.head = (p.head + 1) % len(p.ring)
	p.count--
	return h
}

// ArenaOptions sizes an Arena.
type ArenaOptions struct {
	ReceiveBuffers    int
	ReceiveBufferSize int
	SendBuffers       int
	SendBufferSize    int
}

// Arena owns every buffer of a transport. Buffers are allocated once and
// recycled for the arena's lifetime; each of the four pools has its own lock.
type Arena struct {
	slots  []*Buffer
	pools  [numPools]*handlePool
	closed atomic.Bool
	opts   ArenaOptions
}

// NewArena allocates all buffers and places them in their free pools.
func NewArena(opts ArenaOptions) (*Arena, error) {
	if opts.ReceiveBuffers < 1 || opts.SendBuffers < 1 {
		return nil, fmt.Errorf("%w: need at least one receive and one send buffer", ErrInvalidOptions)
	}
	if opts.ReceiveBufferSize < 1 || opts.SendBufferSize < 1 {
		return nil, fmt.Errorf("%w: buffer sizes must be positive", ErrInvalidOptions)
	}

	a := &Arena{
		slots: make([]*Buffer, 0, opts.ReceiveBuffers+opts.SendBuffers),
		opts:  opts,
	}
	a.pools[FreeReceive] = newHandlePool(opts.ReceiveBuffers)
	a.pools[QueuedReceive] = newHandlePool(opts.ReceiveBuffers)
	a.pools[FreeSend] = newHandlePool(opts.SendBuffers)
	a.pools[QueuedSend] = newHandlePool(opts.SendBuffers)

	for i := 0; i < opts.ReceiveBuffers; i++ {
		a.addSlot(true, opts.ReceiveBufferSize, FreeReceive)
	}
	for i := 0; i < opts.SendBuffers; i++ {
		a.addSlot(false, opts.SendBufferSize, FreeSend)
	}
	return a, nil
}

func (a *Arena) addSlot(receive bool, size int, pool Pool) {
	b := &Buffer{id: len(a.slots), receive: receive, data: make([]byte, size)}
	b.state.Store(int32(pool))
	a.slots = append(a.slots, b)
	a.pools[pool].push(b.id)
}

// Buffer returns the buffer with handle id.
func (a *Arena) Buffer(id int) (*Buffer, bool) {
	if id < 0 || id >= len(a.slots) {
		return nil, false
	}
	return a.slots[id], true
}

// Acquire removes a buffer from a free pool. It never blocks: an empty pool
// reports ErrPoolExhausted.
func (a *Arena) Acquire(pool Pool) (*Buffer, error) {
	var held Pool
	switch pool {
	case FreeReceive:
		held = HeldReceive
	case FreeSend:
		held = HeldSend
	default:
		return nil, fmt.Errorf("%w: cannot acquire from %s", ErrWrongPool, pool)
	}
	if a.closed.Load() {
		return nil, ErrTransportClosed
	}

	p := a.pools[pool]
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.count == 0 {
		return nil, fmt.Errorf("%w: %s", ErrPoolExhausted, pool)
	}
	b := a.slots[p.pop()]
	b.state.Store(int32(held))
	b.reset()
	return b, nil
}

// Release returns a held buffer to the free pool of its side.
func (a *Arena) Release(b *Buffer) error {
	if b == nil {
		return nil
	}
	free, held := FreeSend, HeldSend
	if b.receive {
		free, held = FreeReceive, HeldReceive
	}
	return a.transfer(b, held, free)
}

// Push moves a held buffer into a queued pool and wakes one waiter.
func (a *Arena) Push(b *Buffer, pool Pool) error {
	var held Pool
	switch pool {
	case QueuedReceive:
		held = HeldReceive
	case QueuedSend:
		held = HeldSend
	default:
		return fmt.Errorf("%w: cannot push to %s", ErrWrongPool, pool)
	}
	if b.receive != pool.receiveSide() {
		return fmt.Errorf("%w: buffer %d belongs to the other side", ErrWrongPool, b.id)
	}
	return a.transfer(b, held, pool)
}

func (a *Arena) transfer(b *Buffer, from, to Pool) error {
	p := a.pools[to]
	p.mu.Lock()
	defer p.mu.Unlock()
	if !b.state.CompareAndSwap(int32(from), int32(to)) {
		return fmt.Errorf("%w: buffer %d is in %s", ErrNotHeld, b.id, b.Pool())
	}
	p.push(b.id)
	p.cond.Signal()
	return nil
}

// Pop removes the oldest buffer from a queued pool without blocking.
func (a *Arena) Pop(pool Pool) (*Buffer, bool) {
	if pool != QueuedReceive && pool != QueuedSend {
		return nil, false
	}
	p := a.pools[pool]
	p.mu.Lock()
	defer p.mu.Unlock()
	return a.popLocked(pool, p)
}

// PopWait removes the oldest buffer from a queued pool, waiting on the pool's
// condition variable while it is empty. It returns false once stop reports
// true; stop is evaluated with the pool lock held.
func (a *Arena) PopWait(pool Pool, stop func() bool) (*Buffer, bool) {
	if pool != QueuedReceive && pool != QueuedSend {
		return nil, false
	}
	p := a.pools[pool]
	p.mu.Lock()
	defer p.mu.Unlock()
	for p.count == 0 && !stop() {
		p.cond.Wait()
	}
	if stop() {
		return nil, false
	}
	return a.popLocked(pool, p)
}

func (a *Arena) popLocked(pool Pool, p *handlePool) (*Buffer, bool) {
	if p.count == 0 {
		return nil, false
	}
	b := a.slots[p.pop()]
	if pool == QueuedReceive {
		b.state.Store(int32(HeldReceive))
	} else {
		b.state.Store(int32(HeldSend))
	}
	return b, true
}

// Wake wakes every goroutine waiting in PopWait on pool.
func (a *Arena) Wake(pool Pool) {
	p := a.pools[pool]
	p.mu.Lock()
	p.cond.Broadcast()
	p.mu.Unlock()
}

// Len returns the number of buffers in pool.
func (a *Arena) Len(pool Pool) int {
	if pool < 0 || pool >= numPools {
		return 0
	}
	p := a.pools[pool]
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.count
}

// Counts returns the size of every pool and the number of held buffers.
func (a *Arena) Counts() (pools [numPools]int, held int) {
	for i := Pool(0); i < numPools; i++ {
		pools[i] = a.Len(i)
	}
	for _, b := range a.slots {
		if s := b.Pool(); s == HeldReceive || s == HeldSend {
			held++
		}
	}
	return pools, held
}

// Total returns the number of buffers the arena owns.
func (a *Arena) Total() int { return len(a.slots) }

// Options returns the sizing the arena was built with.
func (a *Arena) Options() ArenaOptions { return a.opts }

// Drain moves every queued buffer back to its free pool and refuses further
// acquisitions. Buffers held by callers stay held until released.
func (a *Arena) Drain() {
	a.closed.Store(true)
	for _, q := range []Pool{QueuedReceive, QueuedSend} {
		for {
			b, ok := a.Pop(q)
			if !ok {
				break
			}
			_ = a.Release(b)
		}
	}
}
