package record

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/opd-ai/rgbdstream/wire"
)

// TimeBasis selects how slice and seek times are interpreted.
type TimeBasis int

const (
	// Relative times are milliseconds since the first recorded frame.
	Relative TimeBasis = iota
	// Absolute times are Unix milliseconds.
	Absolute
)

func (b TimeBasis) String() string {
	if b == Absolute {
		return "absolute"
	}
	return "relative"
}

// FileMeta is the parsed, immutable index of one recording.
type FileMeta struct {
	name    string
	version uint16
	config  wire.Config
	frames  []wire.MetaRecord
	offsets []int64 // milliseconds since frames[0]
}

// LoadFileMeta parses an index from r.
func LoadFileMeta(name string, r io.Reader) (*FileMeta, error) {
	br := bufio.NewReader(r)

	head := make([]byte, wire.IndexHeaderSize)
	if _, err := io.ReadFull(br, head); err != nil {
		return nil, fmt.Errorf("%w: read index header of %s: %v", ErrIO, name, err)
	}
	version := wire.ByteOrder.Uint16(head[:wire.IndexVersionSize])
	if version != wire.IndexVersion {
		return nil, fmt.Errorf("%w: %s has version %d", ErrVersion, name, version)
	}
	cfg, err := wire.ParseConfig(head[wire.IndexVersionSize:])
	if err != nil {
		return nil, fmt.Errorf("%w: parse config of %s: %v", ErrIO, name, err)
	}

	fm := &FileMeta{name: name, version: version, config: cfg}
	rec := make([]byte, wire.MetaRecordSize)
	for {
		if _, err := io.ReadFull(br, rec); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				break
			}
			return nil, fmt.Errorf("%w: read index of %s: %v", ErrIO, name, err)
		}
		m, err := wire.ParseMetaRecord(rec)
		if err != nil {
			return nil, err
		}
		if m.PayloadSize > 0 {
			if _, err := br.Discard(int(m.PayloadSize)); err != nil {
				break
			}
		}
		fm.frames = append(fm.frames, m)
		fm.offsets = append(fm.offsets, m.Timestamp-fm.frames[0].Timestamp)
	}
	return fm, nil
}

// LoadFileMetaPath parses the index of recording name in dir.
func LoadFileMetaPath(dir, name string) (*FileMeta, error) {
	f, err := os.Open(MetaPath(dir, name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return nil, fmt.Errorf("%w: %v", ErrIO, err)
	}
	defer f.Close()
	return LoadFileMeta(name, f)
}

// Name returns the recording name.
func (m *FileMeta) Name() string { return m.name }

// Version returns the index version tag.
func (m *FileMeta) Version() uint16 { return m.version }

// Config returns the recorded config descriptor.
func (m *FileMeta) Config() wire.Config { return m.config }

// FrameCount returns the number of indexed frames.
func (m *FileMeta) FrameCount() int { return len(m.frames) }

// Frame returns the meta record of frame i.
func (m *FileMeta) Frame(i int) wire.MetaRecord { return m.frames[i] }

// FrameTime returns the capture time of frame i.
func (m *FileMeta) FrameTime(i int) time.Time {
	return time.UnixMilli(m.frames[i].Timestamp)
}

// FrameOffset returns the time of frame i relative to the first frame.
func (m *FileMeta) FrameOffset(i int) time.Duration {
	return time.Duration(m.offsets[i]) * time.Millisecond
}

// StartTime returns the capture time of the first frame.
func (m *FileMeta) StartTime() time.Time {
	if len(m.frames) == 0 {
		return time.Time{}
	}
	return m.FrameTime(0)
}

// EndTime returns the capture time of the last frame.
func (m *FileMeta) EndTime() time.Time {
	if len(m.frames) == 0 {
		return time.Time{}
	}
	return m.FrameTime(len(m.frames) - 1)
}

// Duration returns the time between the first and last frame.
func (m *FileMeta) Duration() time.Duration {
	if len(m.frames) == 0 {
		return 0
	}
	return m.FrameOffset(len(m.frames) - 1)
}

// relative converts t (milliseconds in basis) to a relative offset, checking
// the recorded range.
func (m *FileMeta) relative(t int64, basis TimeBasis) (int64, error) {
	if len(m.frames) == 0 {
		return 0, ErrEmptyRecording
	}
	last := m.offsets[len(m.offsets)-1]
	switch basis {
	case Absolute:
		start, end := m.frames[0].Timestamp, m.frames[len(m.frames)-1].Timestamp
		if t < start || t > end {
			return 0, fmt.Errorf("%w: %d not in [%d, %d]", ErrRange, t, start, end)
		}
		return t - start, nil
	default:
		if t < 0 || t > last {
			return 0, fmt.Errorf("%w: %d ms not in [0, %d]", ErrRange, t, last)
		}
		return t, nil
	}
}

// FrameByTime returns the first frame recorded at or after t milliseconds.
func (m *FileMeta) FrameByTime(t int64, basis TimeBasis) (int, error) {
	rel, err := m.relative(t, basis)
	if err != nil {
		return 0, err
	}
	return sort.Search(len(m.offsets), func(i int) bool { return m.offsets[i] >= rel }), nil
}

// Position returns the byte offset of stream s at the frame FrameByTime
// selects.
func (m *FileMeta) Position(s wire.Stream, t int64, basis TimeBasis) (uint64, error) {
	i, err := m.FrameByTime(t, basis)
	if err != nil {
		return 0, err
	}
	return StreamPosition(m.frames[i], s), nil
}

// StreamPosition returns the offset of stream s stored in rec.
func StreamPosition(rec wire.MetaRecord, s wire.Stream) uint64 {
	switch s {
	case wire.StreamRGBD:
		return rec.RGBD
	case wire.StreamAudio:
		return rec.Audio
	case wire.StreamBody:
		return rec.Body
	case wire.StreamBodyIndex:
		return rec.BodyIndex
	case wire.StreamHD:
		return rec.HD
	default:
		return 0
	}
}
