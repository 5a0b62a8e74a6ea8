package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitHostPort(t *testing.T) {
	host, port, ok := splitHostPort("mm.openimpress.org:6312")
	assert.True(t, ok)
	assert.Equal(t, "mm.openimpress.org", host)
	assert.Equal(t, 6312, port)

	for _, bad := range []string{"", "host", "host:0", "host:x", "host:70000"} {
		_, _, ok := splitHostPort(bad)
		assert.False(t, ok, bad)
	}
}
