package device

import (
	"bytes"
	"image"
	"image/jpeg"
)

// DefaultJPEGQuality is the color compression quality.
const DefaultJPEGQuality = 40

// JPEGEncoder compresses color images. It reuses its output buffer, so the
// returned slice is only valid until the next Encode.
type JPEGEncoder struct {
	Quality int

	buf bytes.Buffer
}

// Encode compresses img.
func (e *JPEGEncoder) Encode(img image.Image) ([]byte, error) {
	q := e.Quality
	if q <= 0 {
		q = DefaultJPEGQuality
	}
	e.buf.Reset()
	if err := jpeg.Encode(&e.buf, img, &jpeg.Options{Quality: q}); err != nil {
		return nil, err
	}
	return e.buf.Bytes(), nil
}
