package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestManualAdvance(t *testing.T) {
	start := time.UnixMilli(1000)
	m := NewManual(start)

	assert.Equal(t, start, m.Now())
	m.Advance(250 * time.Millisecond)
	assert.Equal(t, start.Add(250*time.Millisecond), m.Now())

	later := time.UnixMilli(5000)
	m.Set(later)
	assert.Equal(t, later, m.Now())
}

func TestOr(t *testing.T) {
	assert.IsType(t, Real{}, Or(nil))

	m := NewManual(time.Now())
	assert.Same(t, m, Or(m))
}

func TestRealNow(t *testing.T) {
	before := time.Now()
	got := Real{}.Now()
	assert.False(t, got.Before(before))

	ticker := Real{}.NewTicker(time.Millisecond)
	defer ticker.Stop()
	select {
	case <-ticker.C:
	case <-time.After(time.Second):
		t.Fatal("ticker never fired")
	}
}
