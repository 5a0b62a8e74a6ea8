// Package stats accumulates streaming throughput: frames per second, megabits
// per second, audio samples per second, and frame interval and frame size
// percentiles.
//
// A Window is fed by the streaming loop and reported once per interval, after
// which it starts over. Percentiles come from HDR histograms so that
// reporting costs the same no matter how many frames were recorded.
package stats

import (
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
	"github.com/sirupsen/logrus"
)

const (
	maxInterval  = int64(time.Minute / time.Microsecond)
	maxFrameSize = int64(64 << 20)
)

// Snapshot is the summary of one reporting window.
type Snapshot struct {
	Elapsed time.Duration

	Frames        int64
	Packets       int64
	Bytes         int64
	AudioSamples  int64
	ReplayFrames  int64
	DroppedFrames int64

	FPS            float64
	Mbps           float64
	AudioPerSecond float64
	IntervalP50    time.Duration
	IntervalP95    time.Duration
	IntervalP99    time.Duration
	IntervalMax    time.Duration
	FrameSizeP50   int64
	FrameSizeMax   int64
}

// Window accumulates statistics between reports. It is safe for concurrent
// use.
type Window struct {
	mtx sync.Mutex

	start     time.Time
	lastFrame time.Time

	frames, packets, bytes int64
	audio, replay, dropped int64

	interval  *hdrhistogram.Histogram
	frameSize *hdrhistogram.Histogram
}

// NewWindow returns an empty window starting at now.
func NewWindow(now time.Time) *Window {
	return &Window{
		start:     now,
		interval:  hdrhistogram.New(1, maxInterval, 3),
		frameSize: hdrhistogram.New(1, maxFrameSize, 3),
	}
}

// PutFrame records one frame emitted at ts.
func (w *Window) PutFrame(ts time.Time, packets, bytes int, replayed bool) {
	w.mtx.Lock()
	defer w.mtx.Unlock()

	w.frames++
	w.packets += int64(packets)
	w.bytes += int64(bytes)
	if replayed {
		w.replay++
	}
	if bytes > 0 {
		w.frameSize.RecordValue(clamp(int64(bytes), maxFrameSize))
	}
	if !w.lastFrame.IsZero() {
		if d := ts.Sub(w.lastFrame).Microseconds(); d > 0 {
			w.interval.RecordValue(clamp(d, maxInterval))
		}
	}
	w.lastFrame = ts
}

// PutPackets records packets that are not part of a frame.
func (w *Window) PutPackets(packets, bytes int) {
	w.mtx.Lock()
	w.packets += int64(packets)
	w.bytes += int64(bytes)
	w.mtx.Unlock()
}

// PutAudio records sent audio samples.
func (w *Window) PutAudio(samples int) {
	w.mtx.Lock()
	w.audio += int64(samples)
	w.mtx.Unlock()
}

// PutDropped records a frame that could not be sent.
func (w *Window) PutDropped() {
	w.mtx.Lock()
	w.dropped++
	w.mtx.Unlock()
}

// Snapshot summarises the window up to now.
func (w *Window) Snapshot(now time.Time) (s Snapshot) {
	w.mtx.Lock()
	defer w.mtx.Unlock()

	s.Elapsed = now.Sub(w.start)
	s.Frames = w.frames
	s.Packets = w.packets
	s.Bytes = w.bytes
	s.AudioSamples = w.audio
	s.ReplayFrames = w.replay
	s.DroppedFrames = w.dropped

	if w.interval.TotalCount() > 0 {
		s.IntervalP50 = time.Duration(w.interval.ValueAtQuantile(50)) * time.Microsecond
		s.IntervalP95 = time.Duration(w.interval.ValueAtQuantile(95)) * time.Microsecond
		s.IntervalP99 = time.Duration(w.interval.ValueAtQuantile(99)) * time.Microsecond
		s.IntervalMax = time.Duration(w.interval.Max()) * time.Microsecond
	}
	if w.frameSize.TotalCount() > 0 {
		s.FrameSizeP50 = w.frameSize.ValueAtQuantile(50)
		s.FrameSizeMax = w.frameSize.Max()
	}

	if secs := s.Elapsed.Seconds(); secs > 0 {
		s.FPS = float64(s.Frames) / secs
		s.Mbps = float64(s.Bytes) * 8 / secs / 1e6
		s.AudioPerSecond = float64(s.AudioSamples) / secs
	}
	return
}

// Reset empties the window and restarts it at now.
func (w *Window) Reset(now time.Time) {
	w.mtx.Lock()
	defer w.mtx.Unlock()
	w.start = now
	w.lastFrame = time.Time{}
	w.frames, w.packets, w.bytes = 0, 0, 0
	w.audio, w.replay, w.dropped = 0, 0, 0
	w.interval.Reset()
	w.frameSize.Reset()
}

// Report returns the snapshot and resets the window once every elapses
// since the window started. It reports false before that.
func (w *Window) Report(now time.Time, every time.Duration) (Snapshot, bool) {
	w.mtx.Lock()
	due := now.Sub(w.start) >= every
	w.mtx.Unlock()
	if !due {
		return Snapshot{}, false
	}
	s := w.Snapshot(now)
	w.Reset(now)
	return s, true
}

// Log writes s as one Info line.
func (s Snapshot) Log(source string) {
	logrus.WithFields(logrus.Fields{
		"function":       "Snapshot.Log",
		"source":         source,
		"fps":            round2(s.FPS),
		"mbps":           round2(s.Mbps),
		"audio_per_sec":  round2(s.AudioPerSecond),
		"frames":         s.Frames,
		"packets":        s.Packets,
		"replay_frames":  s.ReplayFrames,
		"dropped_frames": s.DroppedFrames,
		"interval_p50":   s.IntervalP50,
		"interval_p99":   s.IntervalP99,
		"frame_size_p50": s.FrameSizeP50,
	}).Info("Streaming statistics")
}

func clamp(v, max int64) int64 {
	if v > max {
		return max
	}
	return v
}

func round2(v float64) float64 {
	return float64(int64(v*100+0.5)) / 100
}
