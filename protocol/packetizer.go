package protocol

import (
	"fmt"
	"io"
	"math"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/rgbdstream/limits"
	"github.com/opd-ai/rgbdstream/transport"
	"github.com/opd-ai/rgbdstream/wire"
)

// Recorder receives a copy of live frames while a recording is active.
type Recorder interface {
	// Recording reports whether a recording is open.
	Recording() bool
	// Replaying reports whether a replay owns the network.
	Replaying() bool
	// Writer returns the log for s, or nil when s is not being recorded.
	Writer(s wire.Stream) io.Writer
	// MarkFrame appends an index record at the current log positions.
	MarkFrame(ts time.Time) error
}

// Options configures a Packetizer.
type Options struct {
	Width    int
	Height   int
	DeviceID uint8
	// MTU bounds every packet; zero means limits.MaxUDPPacketSize.
	MTU int
}

// FrameResult describes one packetized RGBD frame.
type FrameResult struct {
	Sequence uint32
	Packets  int
	Bytes    int
	DeltaT   uint16
	// Sent is false when packets were only recorded.
	Sent bool
}

// Packetizer turns device frames into packets.
// It is driven from the application loop and is not safe for concurrent use.
type Packetizer struct {
	sender   transport.Sender
	rec      Recorder
	seq      *Sequence
	width    int
	height   int
	lines    int
	mtu      int
	deviceID uint8

	prevFrame time.Time
	scratch   []byte
}

// NewPacketizer returns a packetizer for frames of the given geometry.
// rec may be nil; seq may be nil for a private counter.
func NewPacketizer(sender transport.Sender, rec Recorder, seq *Sequence, opts Options) (*Packetizer, error) {
	mtu := opts.MTU
	if mtu == 0 {
		mtu = limits.MaxUDPPacketSize
	}
	if err := limits.ValidateMTU(mtu); err != nil {
		return nil, err
	}
	if opts.Width <= 0 || opts.Height <= 0 || opts.Width > math.MaxUint16 || opts.Height > math.MaxUint16 {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidGeometry, opts.Width, opts.Height)
	}
	lines := LinesPerMessage(mtu, opts.Width)
	if lines < 1 {
		return nil, fmt.Errorf("%w: a %d pixel row does not fit a %d byte packet", ErrInvalidGeometry, opts.Width, mtu)
	}
	if seq == nil {
		seq = &Sequence{}
	}

	logrus.WithFields(logrus.Fields{
		"function":          "NewPacketizer",
		"width":             opts.Width,
		"height":            opts.Height,
		"mtu":               mtu,
		"lines_per_message": lines,
	}).Debug("Packetizer configured")

	return &Packetizer{
		sender:   sender,
		rec:      rec,
		seq:      seq,
		width:    opts.Width,
		height:   opts.Height,
		lines:    lines,
		mtu:      mtu,
		deviceID: opts.DeviceID,
		scratch:  make([]byte, lines*opts.Width*2),
	}, nil
}

// LinesPerMessage returns the number of depth rows per packet.
func (p *Packetizer) LinesPerMessage() int {
	return p.lines
}

// Sequence returns the frame counter.
func (p *Packetizer) Sequence() *Sequence {
	return p.seq
}

// MTU returns the packet size bound.
func (p *Packetizer) MTU() int {
	return p.mtu
}

// DepthPackets returns how many packets one depth frame needs.
func (p *Packetizer) DepthPackets() int {
	return (p.height + p.lines - 1) / p.lines
}

func (p *Packetizer) recording() bool {
	return p.rec != nil && p.rec.Recording()
}

func (p *Packetizer) suppressed() bool {
	return p.rec != nil && p.rec.Replaying()
}

func (p *Packetizer) writer(s wire.Stream) io.Writer {
	if !p.recording() {
		return nil
	}
	return p.rec.Writer(s)
}

// dispatch queues b, or recycles it while a replay owns the network.
func (p *Packetizer) dispatch(b *transport.Buffer) error {
	if p.suppressed() {
		return p.sender.Release(b)
	}
	return p.sender.Enqueue(b, nil)
}

// SendRGBD emits a compressed color image followed by the depth map in row
// chunks. depth holds width*height samples in row-major order.
func (p *Packetizer) SendRGBD(color []byte, depth []uint16, ts time.Time) (FrameResult, error) {
	if len(depth) != p.width*p.height {
		return FrameResult{}, fmt.Errorf("%w: %d depth samples for %dx%d", ErrFrameSize, len(depth), p.width, p.height)
	}
	if wire.FrameHeaderSize+len(color) > p.mtu {
		return FrameResult{}, fmt.Errorf("%w: %d byte color image, mtu %d", ErrPayloadTooLarge, len(color), p.mtu)
	}

	delta := uint16(0)
	if !p.prevFrame.IsZero() {
		delta = DeltaT(p.prevFrame, ts)
	}
	p.prevFrame = ts

	res := FrameResult{Sequence: p.seq.Next(), DeltaT: delta, Sent: !p.suppressed()}

	w := p.writer(wire.StreamRGBD)
	hdr := wire.FrameHeader{
		Kind:      wire.KindColor,
		DeviceID:  p.deviceID,
		DeltaT:    delta,
		StartRow:  0,
		EndRow:    uint16(p.height),
		Timestamp: wire.Millis(ts),
	}
	b, err := Build(p.sender, &hdr, color, p.mtu)
	if err != nil {
		return res, err
	}
	if w != nil {
		// The index record points at the log positions before this frame.
		if err := p.rec.MarkFrame(ts); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "SendRGBD",
				"error":    err.Error(),
			}).Warn("Failed to append index record")
		}
		if err := writeChunk(w, hdr.StartRow, hdr.EndRow, color); err != nil {
			_ = p.sender.Release(b)
			return res, err
		}
	}
	size := b.Len()
	if err := p.dispatch(b); err != nil {
		return res, err
	}
	res.Packets++
	res.Bytes += size

	packets := p.DepthPackets()
	if w != nil {
		var n [2]byte
		wire.ByteOrder.PutUint16(n[:], uint16(packets))
		if _, err := w.Write(n[:]); err != nil {
			return res, err
		}
	}

	hdr.Kind = wire.KindDepth
	for start := 0; start < p.height; start += p.lines {
		end := start + p.lines
		if end > p.height {
			end = p.height
		}
		payload := p.depthRows(depth, start, end)

		hdr.StartRow = uint16(start)
		hdr.EndRow = uint16(end)
		b, err := Build(p.sender, &hdr, payload, p.mtu)
		if err != nil {
			return res, err
		}
		if w != nil {
			if err := writeChunk(w, hdr.StartRow, hdr.EndRow, payload); err != nil {
				_ = p.sender.Release(b)
				return res, err
			}
		}
		size := b.Len()
		if err := p.dispatch(b); err != nil {
			return res, err
		}
		res.Packets++
		res.Bytes += size
	}

	logrus.WithFields(logrus.Fields{
		"function": "SendRGBD",
		"sequence": res.Sequence,
		"packets":  res.Packets,
		"bytes":    res.Bytes,
		"sent":     res.Sent,
	}).Debug("Packetized RGBD frame")

	return res, nil
}

// depthRows encodes rows [start, end) as big-endian samples into the
// scratch buffer.
func (p *Packetizer) depthRows(depth []uint16, start, end int) []byte {
	samples := depth[start*p.width : end*p.width]
	out := p.scratch[:len(samples)*2]
	for i, v := range samples {
		out[2*i] = byte(v >> 8)
		out[2*i+1] = byte(v)
	}
	return out
}

// SendAudio emits float32 samples. Samples that do not fit one packet of
// MTU bytes are split across several.
func (p *Packetizer) SendAudio(samples []float32, frequency, channels uint16, ts time.Time) (int, error) {
	if len(samples) == 0 {
		return 0, nil
	}
	w := p.writer(wire.StreamAudio)
	total := 0
	for len(samples) > 0 {
		b, err := p.sender.AcquireSend()
		if err != nil {
			return total, err
		}
		capSamples := AudioSamplesPerPacket(PacketLimit(b, p.mtu))
		if capSamples == 0 {
			_ = p.sender.Release(b)
			return total, fmt.Errorf("%w: no room for audio samples", ErrPayloadTooLarge)
		}
		n := len(samples)
		if n > capSamples {
			n = capSamples
		}
		hdr := wire.AudioHeader{
			Frequency: frequency,
			Channels:  channels,
			Samples:   uint16(n),
			Timestamp: wire.Millis(ts),
		}
		off, err := hdr.Put(b.Bytes())
		if err != nil {
			_ = p.sender.Release(b)
			return total, err
		}
		block := PutSamples(b.Bytes()[off:], samples[:n])
		_ = b.SetLen(off + len(block))

		if w != nil {
			if _, err := w.Write(block); err != nil {
				_ = p.sender.Release(b)
				return total, err
			}
		}
		total += b.Len()
		if err := p.dispatch(b); err != nil {
			return total, err
		}
		samples = samples[n:]
	}
	return total, nil
}

// PutSamples encodes samples as little-endian float32 into dst and returns
// the written region.
func PutSamples(dst []byte, samples []float32) []byte {
	for i, s := range samples {
		wire.ByteOrder.PutUint32(dst[4*i:], math.Float32bits(s))
	}
	return dst[:4*len(samples)]
}

// SendBodies emits one body tracking packet. Empty body sets are recorded
// but not sent.
func (p *Packetizer) SendBodies(bodies []wire.Body, ts time.Time) (int, error) {
	if len(bodies) > math.MaxUint16 {
		return 0, fmt.Errorf("%w: %d bodies", ErrPayloadTooLarge, len(bodies))
	}
	payload := make([]byte, len(bodies)*wire.BodySize)
	for i := range bodies {
		if _, err := bodies[i].Put(payload[i*wire.BodySize:]); err != nil {
			return 0, err
		}
	}

	if w := p.writer(wire.StreamBody); w != nil {
		var n [2]byte
		wire.ByteOrder.PutUint16(n[:], uint16(len(bodies)))
		if _, err := w.Write(n[:]); err != nil {
			return 0, err
		}
		if _, err := w.Write(payload); err != nil {
			return 0, err
		}
	}

	if len(bodies) == 0 || p.suppressed() {
		return 0, nil
	}
	hdr := wire.BodyHeader{Count: uint16(len(bodies)), Timestamp: wire.Millis(ts)}
	return Emit(p.sender, &hdr, payload, nil, p.mtu)
}

// SendBodyIndex emits a compressed body-index image as one packet.
func (p *Packetizer) SendBodyIndex(image []byte, ts time.Time) (int, error) {
	if w := p.writer(wire.StreamBodyIndex); w != nil {
		if err := writeSized(w, image); err != nil {
			return 0, err
		}
	}
	if p.suppressed() {
		return 0, nil
	}
	hdr := wire.FrameHeader{
		Kind:      wire.KindBodyIndex,
		DeviceID:  p.deviceID,
		StartRow:  0,
		EndRow:    uint16(p.height),
		Timestamp: wire.Millis(ts),
	}
	return Emit(p.sender, &hdr, image, nil, p.mtu)
}

// RecordHD appends a compressed high-definition color image to the HD log.
// HD frames are never sent.
func (p *Packetizer) RecordHD(image []byte) (int, error) {
	w := p.writer(wire.StreamHD)
	if w == nil {
		return 0, nil
	}
	if err := writeSized(w, image); err != nil {
		return 0, err
	}
	return len(image), nil
}

// SendConfig writes the descriptor synchronously, outside the send pool.
func (p *Packetizer) SendConfig(cfg *wire.Config) (int, error) {
	return SendConfig(p.sender, cfg)
}

// SendConfig writes cfg to the default destination through the blocking
// path.
func SendConfig(s transport.Sender, cfg *wire.Config) (int, error) {
	data, err := cfg.Serialize()
	if err != nil {
		return 0, err
	}
	n, err := s.SendBlocking(data, nil)
	if err != nil {
		return n, err
	}
	logrus.WithFields(logrus.Fields{
		"function": "SendConfig",
		"flags":    cfg.Flags,
		"filename": cfg.Filename,
	}).Debug("Sent config descriptor")
	return n, nil
}

func writeChunk(w io.Writer, start, end uint16, data []byte) error {
	var prefix [wire.ChunkHeaderSize]byte
	h := wire.ChunkHeader{StartRow: start, EndRow: end, Size: uint32(len(data))}
	if _, err := h.Put(prefix[:]); err != nil {
		return err
	}
	if _, err := w.Write(prefix[:]); err != nil {
		return err
	}
	_, err := w.Write(data)
	return err
}

func writeSized(w io.Writer, data []byte) error {
	var size [4]byte
	wire.ByteOrder.PutUint32(size[:], uint32(len(data)))
	if _, err := w.Write(size[:]); err != nil {
		return err
	}
	_, err := w.Write(data)
	return err
}
