package transport

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestArena(t *testing.T) *Arena {
	t.Helper()
	a, err := NewArena(ArenaOptions{
		ReceiveBuffers:    4,
		ReceiveBufferSize: 64,
		SendBuffers:       6,
		SendBufferSize:    128,
	})
	require.NoError(t, err)
	return a
}

func assertConserved(t *testing.T, a *Arena) {
	t.Helper()
	pools, held := a.Counts()
	sum := held
	for _, n := range pools {
		sum += n
	}
	assert.Equal(t, a.Total(), sum)
}

func TestNewArenaInvalid(t *testing.T) {
	_, err := NewArena(ArenaOptions{ReceiveBuffers: 0, ReceiveBufferSize: 1, SendBuffers: 1, SendBufferSize: 1})
	assert.ErrorIs(t, err, ErrInvalidOptions)

	_, err = NewArena(ArenaOptions{ReceiveBuffers: 1, ReceiveBufferSize: 0, SendBuffers: 1, SendBufferSize: 1})
	assert.ErrorIs(t, err, ErrInvalidOptions)
}

func TestArenaInitialPools(t *testing.T) {
	a := newTestArena(t)

	assert.Equal(t, 10, a.Total())
	assert.Equal(t, 4, a.Len(FreeReceive))
	assert.Equal(t, 6, a.Len(FreeSend))
	assert.Equal(t, 0, a.Len(QueuedReceive))
	assert.Equal(t, 0, a.Len(QueuedSend))
	assertConserved(t, a)
}

func TestArenaAcquireExhausted(t *testing.T) {
	a := newTestArena(t)

	var held []*Buffer
	for i := 0; i < 6; i++ {
		b, err := a.Acquire(FreeSend)
		require.NoError(t, err)
		assert.Equal(t, HeldSend, b.Pool())
		assert.Equal(t, 128, b.Cap())
		held = append(held, b)
	}

	_, err := a.Acquire(FreeSend)
	assert.ErrorIs(t, err, ErrPoolExhausted)
	assertConserved(t, a)

	for _, b := range held {
		require.NoError(t, a.Release(b))
	}
	assert.Equal(t, 6, a.Len(FreeSend))
}

func TestArenaAcquireWrongPool(t *testing.T) {
	a := newTestArena(t)
	_, err := a.Acquire(QueuedSend)
	assert.ErrorIs(t, err, ErrWrongPool)
}

func TestArenaDoubleRelease(t *testing.T) {
	a := newTestArena(t)

	b, err := a.Acquire(FreeReceive)
	require.NoError(t, err)
	require.NoError(t, a.Release(b))

	err = a.Release(b)
	assert.ErrorIs(t, err, ErrNotHeld)
	assert.Equal(t, 4, a.Len(FreeReceive))
}

func TestArenaPushRequiresHeld(t *testing.T) {
	a := newTestArena(t)

	b, err := a.Acquire(FreeSend)
	require.NoError(t, err)
	require.NoError(t, a.Push(b, QueuedSend))

	// Already queued: a second push must not duplicate it.
	assert.ErrorIs(t, a.Push(b, QueuedSend), ErrNotHeld)
	assert.Equal(t, 1, a.Len(QueuedSend))
	assertConserved(t, a)
}

func TestArenaPushWrongSide(t *testing.T) {
	a := newTestArena(t)

	b, err := a.Acquire(FreeSend)
	require.NoError(t, err)
	assert.ErrorIs(t, a.Push(b, QueuedReceive), ErrWrongPool)
	assert.ErrorIs(t, a.Push(b, FreeSend), ErrWrongPool)
}

func TestArenaFIFO(t *testing.T) {
	a := newTestArena(t)

	var ids []int
	for i := 0; i < 3; i++ {
		b, err := a.Acquire(FreeSend)
		require.NoError(t, err)
		ids = append(ids, b.ID())
		require.NoError(t, a.Push(b, QueuedSend))
	}
	for _, id := range ids {
		b, ok := a.Pop(QueuedSend)
		require.True(t, ok)
		assert.Equal(t, id, b.ID())
		require.NoError(t, a.Release(b))
	}
	_, ok := a.Pop(QueuedSend)
	assert.False(t, ok)
}

func TestArenaPopWaitStops(t *testing.T) {
	a := newTestArena(t)

	stopped := false
	done := make(chan bool)
	go func() {
		_, ok := a.PopWait(QueuedSend, func() bool { return stopped })
		done <- ok
	}()

	p := a.pools[QueuedSend]
	p.mu.Lock()
	stopped = true
	p.mu.Unlock()
	a.Wake(QueuedSend)

	assert.False(t, <-done)
}

func TestArenaPopWaitReceivesPush(t *testing.T) {
	a := newTestArena(t)

	got := make(chan int)
	go func() {
		b, ok := a.PopWait(QueuedSend, func() bool { return false })
		if ok {
			got <- b.ID()
		}
	}()

	b, err := a.Acquire(FreeSend)
	require.NoError(t, err)
	require.NoError(t, a.Push(b, QueuedSend))
	assert.Equal(t, b.ID(), <-got)
}

// TestArenaOwnershipInvariant drives random transfers and checks that every
// buffer is in exactly one place and the total never changes.
func TestArenaOwnershipInvariant(t *testing.T) {
	a := newTestArena(t)
	rng := rand.New(rand.NewSource(7))
	var held []*Buffer

	for step := 0; step < 2000; step++ {
		switch rng.Intn(5) {
		case 0:
			if b, err := a.Acquire(FreeSend); err == nil {
				held = append(held, b)
			}
		case 1:
			if b, err := a.Acquire(FreeReceive); err == nil {
				held = append(held, b)
			}
		case 2:
			if len(held) > 0 {
				i := rng.Intn(len(held))
				b := held[i]
				pool := QueuedSend
				if b.receive {
					pool = QueuedReceive
				}
				require.NoError(t, a.Push(b, pool))
				held = append(held[:i], held[i+1:]...)
			}
		case 3:
			pool := QueuedSend
			if rng.Intn(2) == 0 {
				pool = QueuedReceive
			}
			if b, ok := a.Pop(pool); ok {
				held = append(held, b)
			}
		case 4:
			if len(held) > 0 {
				i := rng.Intn(len(held))
				require.NoError(t, a.Release(held[i]))
				held = append(held[:i], held[i+1:]...)
			}
		}

		pools, nHeld := a.Counts()
		require.Equal(t, len(held), nHeld)
		sum := nHeld
		for _, n := range pools {
			sum += n
		}
		require.Equal(t, a.Total(), sum, "step %d", step)
	}

	seen := map[int]Pool{}
	for _, b := range a.slots {
		seen[b.ID()] = b.Pool()
	}
	assert.Len(t, seen, a.Total())
}

func TestArenaDrain(t *testing.T) {
	a := newTestArena(t)

	b, err := a.Acquire(FreeSend)
	require.NoError(t, err)
	require.NoError(t, a.Push(b, QueuedSend))

	a.Drain()
	assert.Equal(t, 0, a.Len(QueuedSend))
	assert.Equal(t, 6, a.Len(FreeSend))

	_, err = a.Acquire(FreeSend)
	assert.ErrorIs(t, err, ErrTransportClosed)
}

func TestBufferExtent(t *testing.T) {
	a := newTestArena(t)
	b, err := a.Acquire(FreeSend)
	require.NoError(t, err)

	assert.ErrorIs(t, b.SetLen(b.Cap()+1), ErrBufferOverflow)
	require.NoError(t, b.SetLen(3))
	copy(b.Bytes(), []byte{0x07, 1, 2})
	assert.Equal(t, []byte{0x07, 1, 2}, b.Data())
}
