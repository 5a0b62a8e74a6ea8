package device

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/rgbdstream/wire"
)

// SyntheticOptions configures a Synthetic device.
type SyntheticOptions struct {
	Width  int
	Height int
	FPS    int

	// MaxDepth clips depth samples beyond this distance in metres to 0.
	// Zero disables clipping.
	MaxDepth float32

	// Serial seeds the GUID. An empty serial gives a random GUID.
	Serial string

	Audio bool
	Body  bool

	JPEGQuality int
}

// DefaultSyntheticOptions returns a 512x424 device at 30 frames per second,
// the geometry of a time-of-flight depth camera.
func DefaultSyntheticOptions() SyntheticOptions {
	return SyntheticOptions{Width: 512, Height: 424, FPS: 30, MaxDepth: 10}
}

// Synthetic renders a moving gradient and a depth ramp at a fixed frame
// rate. Audio, when enabled, is a 440 Hz tone delivered with each frame.
type Synthetic struct {
	opts SyntheticOptions

	mu        sync.Mutex
	open      bool
	caps      Capabilities
	interval  time.Duration
	next      time.Time
	lastAudio time.Time
	frameNr   int
	phase     float64

	img   *image.RGBA
	enc   JPEGEncoder
	depth []uint16
}

var _ Device = (*Synthetic)(nil)

// NewSynthetic returns a closed synthetic device.
func NewSynthetic(opts SyntheticOptions) *Synthetic {
	def := DefaultSyntheticOptions()
	if opts.FPS <= 0 {
		opts.FPS = def.FPS
	}
	return &Synthetic{opts: opts}
}

// Open validates the geometry and allocates the frame buffers.
func (s *Synthetic) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.open {
		return ErrAlreadyOpen
	}
	w, h := s.opts.Width, s.opts.Height
	if w <= 0 || h <= 0 || w > math.MaxUint16 || h > math.MaxUint16 {
		return fmt.Errorf("%w: %dx%d", ErrInvalidGeometry, w, h)
	}

	guid := NewGUID()
	if s.opts.Serial != "" {
		guid = GUIDFromSerial(s.opts.Serial)
	}
	s.caps = Capabilities{
		Width:      w,
		Height:     h,
		Cx:         float32(w) / 2,
		Cy:         float32(h) / 2,
		Fx:         365,
		Fy:         365,
		DepthScale: 0.001,
		GUID:       guid,
		DeviceType: wire.DefaultDeviceType,
		Audio:      s.opts.Audio,
		Body:       s.opts.Body,
	}
	s.interval = time.Second / time.Duration(s.opts.FPS)
	s.next = time.Time{}
	s.lastAudio = time.Time{}
	s.img = image.NewRGBA(image.Rect(0, 0, w, h))
	s.depth = make([]uint16, w*h)
	s.enc.Quality = s.opts.JPEGQuality
	s.open = true

	logrus.WithFields(logrus.Fields{
		"function": "Synthetic.Open",
		"width":    w,
		"height":   h,
		"fps":      s.opts.FPS,
		"guid":     guid,
	}).Info("Opened synthetic device")
	return nil
}

// Close releases the frame buffers. Closing a closed device is a no-op.
func (s *Synthetic) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.open {
		return nil
	}
	s.open = false
	s.img = nil
	s.depth = nil
	logrus.WithFields(logrus.Fields{
		"function": "Synthetic.Close",
		"frames":   s.frameNr,
	}).Info("Closed synthetic device")
	return nil
}

// Capabilities returns the values fixed at Open.
func (s *Synthetic) Capabilities() Capabilities {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.caps
}

// Poll renders a frame when the frame interval has elapsed since the last
// one. The returned frame's slices are reused by the next Poll.
func (s *Synthetic) Poll(now time.Time) (*Frame, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.open {
		return nil, false, ErrNotOpen
	}
	if !s.next.IsZero() && now.Before(s.next) {
		return nil, false, nil
	}
	if s.next.IsZero() || now.Sub(s.next) > s.interval {
		s.next = now
	}
	s.next = s.next.Add(s.interval)

	s.renderColor()
	s.renderDepth()
	jpg, err := s.enc.Encode(s.img)
	if err != nil {
		return nil, false, err
	}

	f := &Frame{
		Timestamp: now,
		Color:     jpg,
		Depth:     s.depth,
	}
	if s.caps.Audio {
		f.Audio = s.tone(now)
		f.AudioFrequency = wire.AudioSampleRate
		f.AudioChannels = 1
	}
	if s.caps.Body {
		f.Bodies = []wire.Body{s.body()}
	}
	s.frameNr++
	s.phase += 2 * math.Pi / float64(s.opts.FPS)
	return f, true, nil
}

func (s *Synthetic) renderColor() {
	w, h := s.caps.Width, s.caps.Height
	shift := s.frameNr * 4
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			s.img.SetRGBA(x, y, color.RGBA{
				R: uint8((x + shift) * 255 / w),
				G: uint8(y * 255 / h),
				B: uint8(shift),
				A: 255,
			})
		}
	}
}

// renderDepth draws a plane tilted along x whose distance oscillates
// between 0.5 m and 4.5 m.
func (s *Synthetic) renderDepth() {
	w, h := s.caps.Width, s.caps.Height
	base := 2500 + 2000*math.Sin(s.phase)
	limit := uint16(0)
	if s.opts.MaxDepth > 0 && s.opts.MaxDepth*1000 < math.MaxUint16 {
		limit = uint16(s.opts.MaxDepth * 1000)
	}
	for y := 0; y < h; y++ {
		row := s.depth[y*w : (y+1)*w]
		for x := range row {
			d := base + 1000*float64(x)/float64(w) - 500
			v := uint16(math.Max(d, 0))
			if limit > 0 && v > limit {
				v = 0
			}
			row[x] = v
		}
	}
}

// tone returns the samples covering the time since the previous frame.
func (s *Synthetic) tone(now time.Time) []float32 {
	ms := s.interval.Milliseconds()
	if !s.lastAudio.IsZero() {
		ms = now.Sub(s.lastAudio).Milliseconds()
	}
	s.lastAudio = now
	if ms <= 0 {
		return nil
	}
	if ms > 1000 {
		ms = 1000
	}
	n := int(ms) * wire.AudioSamplesPerMilli
	out := make([]float32, n)
	start := float64(now.UnixMilli()-ms) / 1000
	for i := range out {
		t := start + float64(i)/wire.AudioSampleRate
		out[i] = float32(0.2 * math.Sin(2*math.Pi*440*t))
	}
	return out
}

func (s *Synthetic) body() wire.Body {
	b := wire.Body{TrackingID: 1}
	sway := float32(0.2 * math.Sin(s.phase))
	for j := range b.Joints {
		b.Joints[j] = [3]float32{sway, 1.8 - float32(j)*0.06, 2.5}
		b.JointsTracked[j] = 2
	}
	return b
}
