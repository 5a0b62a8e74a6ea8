package record

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/rgbdstream/clock"
	"github.com/opd-ai/rgbdstream/limits"
	"github.com/opd-ai/rgbdstream/protocol"
	"github.com/opd-ai/rgbdstream/wire"
)

// maxAudioBehind is how far the audio log may trail the recording clock
// before silence is inserted.
const maxAudioBehind = time.Second

// Options configures an Engine.
type Options struct {
	// Dir holds every recording.
	Dir string

	// AudioLookahead is how far replayed audio runs ahead of the replay clock.
	AudioLookahead time.Duration
	// AudioMinChunk is the smallest audio packet worth sending.
	AudioMinChunk time.Duration
	// MaxAudioSamples caps the samples in one replayed audio packet. It is
	// lowered to what fits MTU.
	MaxAudioSamples int

	// MTU bounds every replayed packet; zero means limits.MaxUDPPacketSize.
	MTU int

	TimeProvider clock.TimeProvider
}

// DefaultOptions returns the replay audio tuning.
func DefaultOptions() Options {
	return Options{
		Dir:             ".",
		AudioLookahead:  300 * time.Millisecond,
		AudioMinChunk:   50 * time.Millisecond,
		MaxAudioSamples: 1000,
	}
}

// Engine owns the recording and replay session state.
type Engine struct {
	opts Options
	tp   clock.TimeProvider

	mu    sync.Mutex
	metas map[string]*FileMeta
	rec   *recording
	play  *replay
}

var _ protocol.Recorder = (*Engine)(nil)

// recording is an open recording session.
type recording struct {
	name    string
	start   time.Time
	logs    [wire.NumStreams]*logWriter
	meta    *logWriter
	frameNr uint32

	marked   bool
	lastRGBD uint64
}

// NewEngine returns an idle engine.
func NewEngine(opts Options) *Engine {
	def := DefaultOptions()
	if opts.Dir == "" {
		opts.Dir = def.Dir
	}
	if opts.AudioLookahead <= 0 {
		opts.AudioLookahead = def.AudioLookahead
	}
	if opts.AudioMinChunk <= 0 {
		opts.AudioMinChunk = def.AudioMinChunk
	}
	if opts.MaxAudioSamples <= 0 {
		opts.MaxAudioSamples = def.MaxAudioSamples
	}
	if opts.MTU <= 0 {
		opts.MTU = limits.MaxUDPPacketSize
	}
	if n := protocol.AudioSamplesPerPacket(opts.MTU); opts.MaxAudioSamples > n {
		opts.MaxAudioSamples = n
	}
	return &Engine{
		opts:  opts,
		tp:    clock.Or(opts.TimeProvider),
		metas: make(map[string]*FileMeta),
	}
}

// Dir returns the recording directory.
func (e *Engine) Dir() string {
	return e.opts.Dir
}

// Recording reports whether a recording is open.
func (e *Engine) Recording() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rec != nil
}

// RecordingName returns the name being recorded, or "".
func (e *Engine) RecordingName() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.rec == nil {
		return ""
	}
	return e.rec.name
}

// FileMeta returns the resident index of name.
func (e *Engine) FileMeta(name string) (*FileMeta, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	m, ok := e.metas[name]
	return m, ok
}

// exists reports whether name has an index in memory or on disk.
func (e *Engine) exists(name string) bool {
	if _, ok := e.metas[name]; ok {
		return true
	}
	_, err := os.Stat(MetaPath(e.opts.Dir, name))
	return err == nil
}

// StartRecording opens the logs for every stream flagged in cfg and writes
// the index header. An existing recording of the same name is refused unless
// the name is DefaultName, which is overwritten.
func (e *Engine) StartRecording(name string, cfg wire.Config) error {
	if err := ValidateName(name); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.rec != nil {
		return fmt.Errorf("%w: %s is open", ErrAlreadyRecording, e.rec.name)
	}
	if e.exists(name) {
		if name != DefaultName {
			return fmt.Errorf("%w: %s", ErrNameExists, name)
		}
		logrus.WithFields(logrus.Fields{
			"function": "StartRecording",
			"name":     name,
		}).Warn("Overwriting default recording")
		if e.play != nil && e.play.name == name {
			e.stopReplayLocked()
		}
		delete(e.metas, name)
	}

	cfg.Filename = name
	cfg.Flags &^= wire.FlagLive
	cfg.Flags |= wire.FlagRGBD

	rec := &recording{name: name, start: e.tp.Now()}
	var opened []string
	fail := func(err error) error {
		rec.closeAll()
		for _, p := range opened {
			os.Remove(p)
		}
		return err
	}

	for _, s := range wire.Streams {
		if !cfg.Flags.Has(s.Flag()) {
			continue
		}
		path := StreamPath(e.opts.Dir, name, s)
		w, err := createLog(path)
		if err != nil {
			return fail(err)
		}
		opened = append(opened, path)
		rec.logs[s] = w
	}

	metaPath := MetaPath(e.opts.Dir, name)
	meta, err := createLog(metaPath)
	if err != nil {
		return fail(err)
	}
	opened = append(opened, metaPath)
	rec.meta = meta

	head := make([]byte, wire.IndexHeaderSize)
	wire.ByteOrder.PutUint16(head, wire.IndexVersion)
	if _, err := cfg.Put(head[wire.IndexVersionSize:]); err != nil {
		return fail(err)
	}
	if _, err := meta.Write(head); err != nil {
		return fail(fmt.Errorf("%w: %v", ErrIO, err))
	}

	e.rec = rec
	logrus.WithFields(logrus.Fields{
		"function": "StartRecording",
		"name":     name,
		"dir":      e.opts.Dir,
		"flags":    cfg.Flags,
	}).Info("Started recording")
	return nil
}

// StopRecording closes every log and loads the finished index. It returns
// false when no recording was open. A failed index load is reported but the
// closed logs stay on disk.
func (e *Engine) StopRecording() (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	rec := e.rec
	if rec == nil {
		return false, nil
	}
	e.rec = nil

	closeErr := rec.closeAll()

	meta, err := LoadFileMetaPath(e.opts.Dir, rec.name)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "StopRecording",
			"name":     rec.name,
			"error":    err.Error(),
		}).Error("Stopped recording but failed to load index")
		return true, err
	}
	e.metas[rec.name] = meta

	logrus.WithFields(logrus.Fields{
		"function": "StopRecording",
		"name":     rec.name,
		"frames":   meta.FrameCount(),
		"duration": meta.Duration(),
	}).Info("Stopped recording")

	if closeErr != nil {
		return true, fmt.Errorf("%w: %v", ErrIO, closeErr)
	}
	return true, nil
}

func (r *recording) closeAll() error {
	var errs []error
	for i, w := range r.logs {
		if w != nil {
			errs = append(errs, w.Close())
			r.logs[i] = nil
		}
	}
	if r.meta != nil {
		errs = append(errs, r.meta.Close())
		r.meta = nil
	}
	return errors.Join(errs...)
}

// Writer returns the open log for s, or nil.
func (e *Engine) Writer(s wire.Stream) io.Writer {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.rec == nil || s < 0 || s >= wire.NumStreams || e.rec.logs[s] == nil {
		return nil
	}
	return e.rec.logs[s]
}

// MarkFrame appends one index record pointing at the current end of every
// log. Consecutive marks without RGBD data in between are ignored, so each
// record describes exactly one frame.
func (e *Engine) MarkFrame(ts time.Time) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	rec := e.rec
	if rec == nil {
		return nil
	}
	rgbd := rec.logs[wire.StreamRGBD]
	if rgbd == nil {
		return nil
	}
	if rec.marked && rgbd.pos == rec.lastRGBD {
		return nil
	}
	rec.marked = true
	rec.lastRGBD = rgbd.pos

	if err := rec.padAudio(ts); err != nil {
		return fmt.Errorf("%w: %v", ErrIO, err)
	}

	m := wire.MetaRecord{
		Timestamp: ts.UnixMilli(),
		FrameNr:   rec.frameNr,
	}
	for _, s := range wire.Streams {
		if w := rec.logs[s]; w != nil {
			setStreamPosition(&m, s, w.pos)
		}
	}
	rec.frameNr++

	var b [wire.MetaRecordSize]byte
	if _, err := m.Put(b[:]); err != nil {
		return err
	}
	if _, err := rec.meta.Write(b[:]); err != nil {
		return fmt.Errorf("%w: %v", ErrIO, err)
	}
	return nil
}

// padAudio writes silence when the audio log trails the recording clock by
// more than maxAudioBehind.
func (r *recording) padAudio(ts time.Time) error {
	audio := r.logs[wire.StreamAudio]
	if audio == nil {
		return nil
	}
	elapsed := ts.Sub(r.start).Milliseconds()
	recorded := int64(audio.pos / wire.AudioSampleSize / wire.AudioSamplesPerMilli)
	behind := elapsed - recorded
	if behind <= maxAudioBehind.Milliseconds() {
		return nil
	}

	logrus.WithFields(logrus.Fields{
		"function":  "padAudio",
		"behind_ms": behind,
	}).Warn("Audio behind video, inserting silence")

	zeros := make([]byte, behind*wire.AudioSamplesPerMilli*wire.AudioSampleSize)
	_, err := audio.Write(zeros)
	return err
}

func setStreamPosition(m *wire.MetaRecord, s wire.Stream, pos uint64) {
	switch s {
	case wire.StreamRGBD:
		m.RGBD = pos
	case wire.StreamAudio:
		m.Audio = pos
	case wire.StreamBody:
		m.Body = pos
	case wire.StreamBodyIndex:
		m.BodyIndex = pos
	case wire.StreamHD:
		m.HD = pos
	}
}

// LoadMeta loads the index of name from disk, replacing any resident copy.
func (e *Engine) LoadMeta(name string) (*FileMeta, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	meta, err := LoadFileMetaPath(e.opts.Dir, name)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	e.metas[name] = meta
	e.mu.Unlock()
	return meta, nil
}

// Close stops any replay and recording.
func (e *Engine) Close() error {
	e.StopReplaying()
	_, err := e.StopRecording()
	return err
}
