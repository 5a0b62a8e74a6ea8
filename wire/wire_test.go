package wire

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigRoundTrip(t *testing.T) {
	c := Config{
		DeviceID:    3,
		DeviceType:  DefaultDeviceType,
		Flags:       FlagRGBD | FlagAudio | FlagLive,
		FrameWidth:  512,
		FrameHeight: 424,
		MaxLines:    63,
		Cx:          255.5, Cy: 211.25, Fx: 365.1, Fy: 365.2,
		DepthScale: 0.001,
		Px:         1, Py: -2, Pz: 3.5,
		Qx: 0.1, Qy: 0.2, Qz: 0.3, Qw: 0.9,
		GUID:     "abc123",
		Filename: "session1",
	}

	b, err := c.Serialize()
	require.NoError(t, err)
	require.Len(t, b, ConfigSize)
	assert.Equal(t, byte(KindConfig), b[0])

	// GUID shorter than 32 chars is NUL terminated in place.
	assert.Equal(t, byte(0), b[guidOffset+len(c.GUID)])

	got, err := ParseConfig(b)
	require.NoError(t, err)
	assert.Equal(t, c, got)
}

func TestConfigFullLengthStrings(t *testing.T) {
	c := NewConfig()
	c.GUID = strings.Repeat("f", GUIDLength)
	c.Filename = strings.Repeat("n", FilenameLength)

	b, err := c.Serialize()
	require.NoError(t, err)
	assert.Equal(t, byte(0), b[guidOffset+GUIDLength])
	assert.Equal(t, byte(0), b[filenameOffset+FilenameLength])

	got, err := ParseConfig(b)
	require.NoError(t, err)
	assert.Equal(t, c.GUID, got.GUID)
	assert.Equal(t, c.Filename, got.Filename)
	assert.Equal(t, float32(1), got.Qw)
}

func TestConfigRejectsLongGUID(t *testing.T) {
	c := NewConfig()
	c.GUID = strings.Repeat("x", GUIDLength+1)

	_, err := c.Serialize()
	assert.ErrorIs(t, err, ErrFieldTooLong)
}

func TestParseConfigShortBuffer(t *testing.T) {
	_, err := ParseConfig(make([]byte, ConfigSize-1))
	assert.ErrorIs(t, err, ErrShortBuffer)
}

func TestFrameHeaderLayout(t *testing.T) {
	h := FrameHeader{
		Kind:      KindDepth,
		DeviceID:  7,
		DeltaT:    33,
		StartRow:  0x0102,
		EndRow:    0x0304,
		Timestamp: 0x0807060504030201,
	}
	b := make([]byte, FrameHeaderSize)
	n, err := h.Put(b)
	require.NoError(t, err)
	assert.Equal(t, FrameHeaderSize, n)
	assert.Equal(t, []byte{
		0x03, 0x07, 33, 0,
		0x02, 0x01, 0x04, 0x03,
		0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08,
	}, b)

	got, err := ParseFrameHeader(b)
	require.NoError(t, err)
	assert.Equal(t, h, got)
}

func TestParseFrameHeaderWrongKind(t *testing.T) {
	b := make([]byte, FrameHeaderSize)
	b[0] = byte(KindAudio)
	_, err := ParseFrameHeader(b)
	assert.ErrorIs(t, err, ErrUnexpectedKind)
}

func TestAudioAndBodyHeaders(t *testing.T) {
	ts := Millis(time.UnixMilli(1700000000123))

	a := AudioHeader{Frequency: 16000, Channels: 1, Samples: 512, Timestamp: ts}
	b := make([]byte, AudioHeaderSize)
	_, err := a.Put(b)
	require.NoError(t, err)
	assert.Equal(t, byte(KindAudio), b[0])
	gotA, err := ParseAudioHeader(b)
	require.NoError(t, err)
	assert.Equal(t, a, gotA)

	bh := BodyHeader{Count: 2, Timestamp: ts}
	_, err = bh.Put(b)
	require.NoError(t, err)
	assert.Equal(t, byte(KindBody), b[0])
	assert.Equal(t, []byte{2, 0}, b[2:4])
	gotB, err := ParseBodyHeader(b)
	require.NoError(t, err)
	assert.Equal(t, bh, gotB)
}

func TestBodyRoundTrip(t *testing.T) {
	var body Body
	body.TrackingID = 42
	body.LeftHandState = 2
	body.RightHandState = 3
	body.LeanTrackingState = 1
	body.LeanX, body.LeanY = 0.5, -0.25
	for i := range body.Joints {
		body.Joints[i] = [3]float32{float32(i), float32(i) * 2, float32(i) * 3}
		body.JointsTracked[i] = uint8(i % 3)
	}

	b := make([]byte, BodySize)
	n, err := body.Put(b)
	require.NoError(t, err)
	assert.Equal(t, BodySize, n)

	got, err := ParseBody(b)
	require.NoError(t, err)
	assert.Equal(t, body, got)
}

func TestMetaRecordRoundTrip(t *testing.T) {
	m := MetaRecord{
		Timestamp: 1700000000000,
		RGBD:      1 << 40, Audio: 2, Body: 3, HD: 4, BodyIndex: 5,
		FrameNr: 9, PayloadSize: 0,
	}
	b := make([]byte, MetaRecordSize)
	_, err := m.Put(b)
	require.NoError(t, err)

	got, err := ParseMetaRecord(b)
	require.NoError(t, err)
	assert.Equal(t, m, got)
}

func TestPayloadOffset(t *testing.T) {
	tests := []struct {
		kind   Kind
		offset int
		ok     bool
	}{
		{KindDepth, FrameHeaderSize, true},
		{KindColor, FrameHeaderSize, true},
		{KindBodyIndex, FrameHeaderSize, true},
		{KindAudio, AudioHeaderSize, true},
		{KindBody, BodyHeaderSize, true},
		{KindConfig, 0, true},
		{KindControl, 1, true},
		{KindJSON, 0, true},
		{Kind(0x99), 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			off, ok := PayloadOffset(tt.kind)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.offset, off)
		})
	}
}

func TestDataFlagsHas(t *testing.T) {
	f := FlagRGBD | FlagBody
	assert.True(t, f.Has(FlagRGBD))
	assert.True(t, f.Has(FlagRGBD|FlagBody))
	assert.False(t, f.Has(FlagAudio))
}

func TestChunkHeaderLayout(t *testing.T) {
	h := ChunkHeader{StartRow: 8, EndRow: 16, Size: 0x01020304}
	b := make([]byte, ChunkHeaderSize)
	_, err := h.Put(b)
	require.NoError(t, err)
	assert.Equal(t, []byte{8, 0, 16, 0, 4, 3, 2, 1}, b)

	got, err := ParseChunkHeader(b)
	require.NoError(t, err)
	assert.Equal(t, h, got)
}

func TestStreamFlags(t *testing.T) {
	for _, s := range Streams {
		assert.NotZero(t, s.Flag(), s.String())
	}
	assert.Equal(t, "mjpg", StreamHD.String())
}
