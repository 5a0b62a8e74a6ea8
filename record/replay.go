package record

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/rgbdstream/protocol"
	"github.com/opd-ai/rgbdstream/transport"
	"github.com/opd-ai/rgbdstream/wire"
)

// ReplayOptions selects what part of a recording to replay.
type ReplayOptions struct {
	// Slice restricts replay to [Start, End]. Without it the whole
	// recording plays.
	Slice bool
	Start int64 // milliseconds in Basis
	End   int64 // milliseconds in Basis
	Basis TimeBasis
	Loop  bool
}

// ReplayResult describes one ReplayNextFrame call.
type ReplayResult struct {
	// Emitted is true when a frame was due and sent.
	Emitted  bool
	Frame    int
	Sequence uint32
	Packets  int
	Bytes    int

	AudioSamples int

	// Restarted is set when the slice ended and a looping replay rewound.
	// The caller resends the replay config.
	Restarted bool
	// Finished is set when the slice ended and replay stopped. The caller
	// resends the live config.
	Finished bool
}

// replay is an active replay session.
type replay struct {
	name string
	meta *FileMeta
	loop bool
	mtu  int

	rgbd  *logReader
	audio *logReader
	body  *logReader

	startFrame int
	endFrame   int // exclusive
	startPos   [wire.NumStreams]uint64
	endPos     [wire.NumStreams]uint64

	nextFrame int
	startTime time.Time
	nextDue   time.Time
}

// Replaying reports whether a replay is active.
func (e *Engine) Replaying() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.play != nil
}

// ReplayName returns the name being replayed, or "".
func (e *Engine) ReplayName() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.play == nil {
		return ""
	}
	return e.play.name
}

// ReplayConfig returns the config descriptor of the active replay.
func (e *Engine) ReplayConfig() (wire.Config, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.play == nil {
		return wire.Config{}, false
	}
	return e.play.meta.Config(), true
}

// StartReplaying opens recording name and seeks every log to the start of
// the requested slice. Any previous replay is stopped first. A slice outside
// the recorded range fails with ErrRange and leaves replay stopped.
func (e *Engine) StartReplaying(name string, opts ReplayOptions) error {
	if err := ValidateName(name); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.rec != nil && e.rec.name == name {
		return fmt.Errorf("%w: %s", ErrRecordingInUse, name)
	}
	if e.play != nil {
		e.stopReplayLocked()
	}

	meta, ok := e.metas[name]
	if !ok {
		var err error
		meta, err = LoadFileMetaPath(e.opts.Dir, name)
		if err != nil {
			return err
		}
		e.metas[name] = meta
	}
	if meta.FrameCount() == 0 {
		return fmt.Errorf("%w: %s", ErrEmptyRecording, name)
	}

	p := &replay{name: name, meta: meta, loop: opts.Loop, mtu: e.opts.MTU}
	if err := p.resolve(opts); err != nil {
		return err
	}
	if err := p.open(e.opts.Dir); err != nil {
		p.close()
		return err
	}
	if err := p.reset(e.tp.Now()); err != nil {
		p.close()
		return fmt.Errorf("%w: %v", ErrIO, err)
	}
	e.play = p

	logrus.WithFields(logrus.Fields{
		"function":    "StartReplaying",
		"name":        name,
		"start_frame": p.startFrame,
		"end_frame":   p.endFrame,
		"start_pos":   p.startPos[wire.StreamRGBD],
		"end_pos":     p.endPos[wire.StreamRGBD],
		"loop":        p.loop,
	}).Info("Started replay")
	return nil
}

// resolve maps the requested slice to frames and byte positions.
func (p *replay) resolve(opts ReplayOptions) error {
	m := p.meta
	start, end, basis := opts.Start, opts.End, opts.Basis
	if !opts.Slice || (basis == Relative && start == 0 && end == 0) {
		start, end, basis = 0, m.Duration().Milliseconds(), Relative
	}

	first, err := m.FrameByTime(start, basis)
	if err != nil {
		return err
	}
	last, err := m.FrameByTime(end, basis)
	if err != nil {
		return err
	}

	// A slice ending at the final frame includes it.
	endRel, _ := m.relative(end, basis)
	if last == m.FrameCount()-1 && endRel >= m.offsets[last] {
		last = m.FrameCount()
	}
	if last <= first {
		return fmt.Errorf("%w: slice [%d, %d] selects no frames", ErrRange, start, end)
	}

	p.startFrame, p.endFrame = first, last
	for _, s := range wire.Streams {
		p.startPos[s] = StreamPosition(m.Frame(first), s)
		if last < m.FrameCount() {
			p.endPos[s] = StreamPosition(m.Frame(last), s)
		} else {
			p.endPos[s] = ^uint64(0)
		}
	}
	return nil
}

func (p *replay) open(dir string) error {
	rgbd, err := openLog(StreamPath(dir, p.name, wire.StreamRGBD))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s has no rgbd log", ErrNotFound, p.name)
		}
		return fmt.Errorf("%w: %v", ErrIO, err)
	}
	p.rgbd = rgbd

	flags := p.meta.Config().Flags
	if flags.Has(wire.FlagAudio) {
		if p.audio, err = openLog(StreamPath(dir, p.name, wire.StreamAudio)); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "open",
				"name":     p.name,
				"error":    err.Error(),
			}).Warn("No audio log, replaying without audio")
		}
	}
	if flags.Has(wire.FlagBody) {
		if p.body, err = openLog(StreamPath(dir, p.name, wire.StreamBody)); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "open",
				"name":     p.name,
				"error":    err.Error(),
			}).Warn("No body log, replaying without bodies")
		}
	}

	for _, s := range []wire.Stream{wire.StreamRGBD, wire.StreamAudio, wire.StreamBody} {
		if r := p.reader(s); r != nil && p.endPos[s] > r.size {
			p.endPos[s] = r.size
		}
	}
	return nil
}

func (p *replay) reader(s wire.Stream) *logReader {
	switch s {
	case wire.StreamRGBD:
		return p.rgbd
	case wire.StreamAudio:
		return p.audio
	case wire.StreamBody:
		return p.body
	default:
		return nil
	}
}

// reset rewinds every reader to the slice start and restarts the clock.
func (p *replay) reset(now time.Time) error {
	for _, s := range []wire.Stream{wire.StreamRGBD, wire.StreamAudio, wire.StreamBody} {
		if r := p.reader(s); r != nil {
			if err := r.Seek(p.startPos[s]); err != nil {
				return err
			}
		}
	}
	p.nextFrame = p.startFrame
	p.startTime = now
	p.nextDue = now
	return nil
}

func (p *replay) close() {
	for _, r := range []*logReader{p.rgbd, p.audio, p.body} {
		if r != nil {
			r.Close()
		}
	}
}

// StopReplaying ends the active replay. It returns false when none was
// active.
func (e *Engine) StopReplaying() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stopReplayLocked()
}

func (e *Engine) stopReplayLocked() bool {
	if e.play == nil {
		return false
	}
	e.play.close()
	logrus.WithFields(logrus.Fields{
		"function": "StopReplaying",
		"name":     e.play.name,
	}).Info("Stopped replay")
	e.play = nil
	return true
}

// ReplayNextFrame tops up replayed audio and, when the next frame is due,
// emits its color, depth and body packets stamped with the current time.
func (e *Engine) ReplayNextFrame(s transport.Sender, seq *protocol.Sequence) (ReplayResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var res ReplayResult
	p := e.play
	if p == nil {
		return res, nil
	}
	now := e.tp.Now()

	samples, err := e.replayAudio(p, s, now)
	res.AudioSamples = samples
	if err != nil {
		return res, err
	}

	if now.Before(p.nextDue) {
		return res, nil
	}

	res.Frame = p.nextFrame
	packets, n, err := p.emitFrame(s, now)
	res.Packets, res.Bytes = packets, n
	if err != nil {
		if !isEOF(err) {
			return res, err
		}
		logrus.WithFields(logrus.Fields{
			"function": "ReplayNextFrame",
			"name":     p.name,
			"frame":    p.nextFrame,
		}).Warn("Recording log ended early")
	} else {
		res.Emitted = true
		res.Sequence = seq.Next()
		p.nextFrame++
	}

	if err != nil || p.rgbd.pos >= p.endPos[wire.StreamRGBD] || p.nextFrame >= p.endFrame {
		if p.loop {
			if err := p.reset(now); err != nil {
				e.stopReplayLocked()
				return res, fmt.Errorf("%w: %v", ErrIO, err)
			}
			res.Restarted = true
		} else {
			e.stopReplayLocked()
			res.Finished = true
		}
		return res, nil
	}

	p.nextDue = p.startTime.Add(p.meta.FrameTime(p.nextFrame).Sub(p.meta.FrameTime(p.startFrame)))
	return res, nil
}

// emitFrame reads one frame from the RGBD and body logs and queues its
// packets.
func (p *replay) emitFrame(s transport.Sender, now time.Time) (int, int, error) {
	packets, total := 0, 0

	var delta uint16
	if p.nextFrame > p.startFrame {
		delta = protocol.DeltaT(p.meta.FrameTime(p.nextFrame-1), p.meta.FrameTime(p.nextFrame))
	}
	hdr := wire.FrameHeader{
		Kind:      wire.KindColor,
		DeviceID:  p.meta.Config().DeviceID,
		DeltaT:    delta,
		Timestamp: wire.Millis(now),
	}

	n, err := emitChunk(s, p.rgbd, &hdr, p.mtu)
	if err != nil {
		return packets, total, err
	}
	packets++
	total += n

	var count [2]byte
	if err := p.rgbd.ReadFull(count[:]); err != nil {
		return packets, total, err
	}
	hdr.Kind = wire.KindDepth
	for i := 0; i < int(wire.ByteOrder.Uint16(count[:])); i++ {
		n, err := emitChunk(s, p.rgbd, &hdr, p.mtu)
		if err != nil {
			return packets, total, err
		}
		packets++
		total += n
	}

	if p.body != nil && p.body.pos < p.endPos[wire.StreamBody] {
		n, err := emitBodies(s, p.body, now, p.mtu)
		if err != nil && !isEOF(err) {
			return packets, total, err
		}
		if n > 0 {
			packets++
			total += n
		}
	}
	return packets, total, nil
}

// emitChunk reads one logged chunk straight into a send buffer behind hdr.
// A chunk that does not fit mtu is skipped and reported.
func emitChunk(s transport.Sender, r *logReader, hdr *wire.FrameHeader, mtu int) (int, error) {
	var prefix [wire.ChunkHeaderSize]byte
	if err := r.ReadFull(prefix[:]); err != nil {
		return 0, err
	}
	ch, err := wire.ParseChunkHeader(prefix[:])
	if err != nil {
		return 0, err
	}
	hdr.StartRow, hdr.EndRow = ch.StartRow, ch.EndRow

	b, err := s.AcquireSend()
	if err != nil {
		return 0, err
	}
	off, err := hdr.Put(b.Bytes())
	if err != nil {
		_ = s.Release(b)
		return 0, err
	}
	if limit := protocol.PacketLimit(b, mtu); off+int(ch.Size) > limit {
		_ = s.Release(b)
		if err := r.Seek(r.pos + uint64(ch.Size)); err != nil {
			return 0, err
		}
		return 0, fmt.Errorf("%w: %d byte chunk, limit %d", protocol.ErrPayloadTooLarge, ch.Size, limit)
	}
	if err := r.ReadFull(b.Bytes()[off : off+int(ch.Size)]); err != nil {
		_ = s.Release(b)
		return 0, err
	}
	_ = b.SetLen(off + int(ch.Size))
	n := b.Len()
	return n, s.Enqueue(b, nil)
}

func emitBodies(s transport.Sender, r *logReader, now time.Time, mtu int) (int, error) {
	var count [2]byte
	if err := r.ReadFull(count[:]); err != nil {
		return 0, err
	}
	nb := wire.ByteOrder.Uint16(count[:])
	if nb == 0 {
		return 0, nil
	}
	payload := make([]byte, int(nb)*wire.BodySize)
	if err := r.ReadFull(payload); err != nil {
		return 0, err
	}
	hdr := wire.BodyHeader{Count: nb, Timestamp: wire.Millis(now)}
	return protocol.Emit(s, &hdr, payload, nil, mtu)
}

// replayAudio sends recorded audio until it runs AudioLookahead ahead of
// the replay clock.
func (e *Engine) replayAudio(p *replay, s transport.Sender, now time.Time) (int, error) {
	if p.audio == nil {
		return 0, nil
	}
	const bytesPerMilli = wire.AudioSamplesPerMilli * wire.AudioSampleSize

	elapsed := now.Sub(p.startTime).Milliseconds()
	sent := 0
	for p.audio.pos < p.endPos[wire.StreamAudio] {
		sentMs := int64(p.audio.pos-p.startPos[wire.StreamAudio]) / bytesPerMilli
		catchUp := elapsed - sentMs + e.opts.AudioLookahead.Milliseconds()
		if catchUp < e.opts.AudioMinChunk.Milliseconds() {
			break
		}
		n := int(catchUp) * wire.AudioSamplesPerMilli
		if n > e.opts.MaxAudioSamples {
			n = e.opts.MaxAudioSamples
		}
		if remaining := int(p.endPos[wire.StreamAudio]-p.audio.pos) / wire.AudioSampleSize; n > remaining {
			n = remaining
		}
		if n == 0 {
			break
		}

		b, err := s.AcquireSend()
		if err != nil {
			return sent, err
		}
		hdr := wire.AudioHeader{
			Frequency: wire.AudioSampleRate,
			Channels:  1,
			Samples:   uint16(n),
			Timestamp: wire.Millis(now),
		}
		off, _ := hdr.Put(b.Bytes())
		size := n * wire.AudioSampleSize
		if off+size > protocol.PacketLimit(b, e.opts.MTU) {
			_ = s.Release(b)
			return sent, fmt.Errorf("%w: %d audio samples", protocol.ErrPayloadTooLarge, n)
		}
		if err := p.audio.ReadFull(b.Bytes()[off : off+size]); err != nil {
			_ = s.Release(b)
			if isEOF(err) {
				p.endPos[wire.StreamAudio] = p.audio.pos
				break
			}
			return sent, fmt.Errorf("%w: %v", ErrIO, err)
		}
		_ = b.SetLen(off + size)
		if err := s.Enqueue(b, nil); err != nil {
			return sent, err
		}
		sent += n
	}
	return sent, nil
}

func isEOF(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
}
