package protocol

import (
	"fmt"
	"math"
	"net"
	"sync/atomic"
	"time"

	"github.com/opd-ai/rgbdstream/transport"
	"github.com/opd-ai/rgbdstream/wire"
)

// MaxDeltaT is the first inter-frame gap, in milliseconds, that no longer
// fits the delta field; such gaps are sent as 0.
const MaxDeltaT = 60000

// Header is any wire header that encodes itself in place.
type Header interface {
	Put(b []byte) (int, error)
}

// DeltaT returns the milliseconds between prev and now, saturated to 0 when
// the gap is negative or at least MaxDeltaT.
func DeltaT(prev, now time.Time) uint16 {
	ms := now.Sub(prev).Milliseconds()
	if ms < 0 || ms >= MaxDeltaT {
		return 0
	}
	return uint16(ms)
}

// LinesPerMessage returns how many depth rows of the given width fit in one
// packet of mtu bytes.
func LinesPerMessage(mtu, width int) int {
	if width <= 0 {
		return 0
	}
	return (mtu - wire.FrameHeaderSize) / (2 * width)
}

// AudioSamplesPerPacket returns how many float32 samples fit one audio
// packet of mtu bytes.
func AudioSamplesPerPacket(mtu int) int {
	n := (mtu - wire.AudioHeaderSize) / wire.AudioSampleSize
	if n > math.MaxUint16 {
		n = math.MaxUint16
	}
	if n < 0 {
		return 0
	}
	return n
}

// PacketLimit returns the largest packet b may carry under mtu. A
// non-positive mtu leaves only the buffer capacity.
func PacketLimit(b *transport.Buffer, mtu int) int {
	if mtu > 0 && mtu < b.Cap() {
		return mtu
	}
	return b.Cap()
}

// Sequence is a monotonic frame counter shared by live and replayed frames.
// It wraps at 2^32.
type Sequence struct {
	n atomic.Uint32
}

// Next returns the next sequence number, starting at 1.
func (s *Sequence) Next() uint32 {
	return s.n.Add(1)
}

// Current returns the last number handed out.
func (s *Sequence) Current() uint32 {
	return s.n.Load()
}

// Build acquires a send buffer and fills it with hdr followed by payload.
// The packet may not exceed mtu bytes. The caller owns the returned buffer.
func Build(s transport.Sender, hdr Header, payload []byte, mtu int) (*transport.Buffer, error) {
	b, err := s.AcquireSend()
	if err != nil {
		return nil, err
	}
	n, err := hdr.Put(b.Bytes())
	if err != nil {
		_ = s.Release(b)
		return nil, err
	}
	if limit := PacketLimit(b, mtu); n+len(payload) > limit {
		_ = s.Release(b)
		return nil, fmt.Errorf("%w: %d bytes, limit %d", ErrPayloadTooLarge, n+len(payload), limit)
	}
	n += copy(b.Bytes()[n:], payload)
	if err := b.SetLen(n); err != nil {
		_ = s.Release(b)
		return nil, err
	}
	return b, nil
}

// Emit builds a packet of at most mtu bytes and queues it for dest (nil for
// the default destination). It returns the packet size.
func Emit(s transport.Sender, hdr Header, payload []byte, dest net.Addr, mtu int) (int, error) {
	b, err := Build(s, hdr, payload, mtu)
	if err != nil {
		return 0, err
	}
	n := b.Len()
	if err := s.Enqueue(b, dest); err != nil {
		return 0, err
	}
	return n, nil
}
