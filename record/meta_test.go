package record

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/rgbdstream/wire"
)

func encodeIndex(t *testing.T, cfg wire.Config, recs ...wire.MetaRecord) []byte {
	t.Helper()
	var buf bytes.Buffer
	head := make([]byte, wire.IndexHeaderSize)
	wire.ByteOrder.PutUint16(head, wire.IndexVersion)
	_, err := cfg.Put(head[wire.IndexVersionSize:])
	require.NoError(t, err)
	buf.Write(head)
	for i := range recs {
		b := make([]byte, wire.MetaRecordSize)
		_, err := recs[i].Put(b)
		require.NoError(t, err)
		buf.Write(b)
	}
	return buf.Bytes()
}

func TestLoadFileMetaStopsAtTruncatedRecord(t *testing.T) {
	cfg := wire.NewConfig()
	cfg.Filename = "x"
	data := encodeIndex(t, cfg,
		wire.MetaRecord{Timestamp: 1000, RGBD: 0},
		wire.MetaRecord{Timestamp: 1040, RGBD: 500, FrameNr: 1},
	)
	data = append(data, 1, 2, 3)

	m, err := LoadFileMeta("x", bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 2, m.FrameCount())
	assert.Equal(t, int64(1040), m.Frame(1).Timestamp)
	assert.Equal(t, uint64(500), StreamPosition(m.Frame(1), wire.StreamRGBD))
	assert.Equal(t, int64(1000), m.StartTime().UnixMilli())
	assert.Equal(t, int64(1040), m.EndTime().UnixMilli())
	assert.Equal(t, "x", m.Config().Filename)
}

func TestLoadFileMetaSkipsPayload(t *testing.T) {
	var buf bytes.Buffer
	buf.Write(encodeIndex(t, wire.NewConfig(), wire.MetaRecord{Timestamp: 5, PayloadSize: 3}))
	buf.Write([]byte{9, 9, 9})
	b := make([]byte, wire.MetaRecordSize)
	rec := wire.MetaRecord{Timestamp: 25, FrameNr: 1}
	_, err := rec.Put(b)
	require.NoError(t, err)
	buf.Write(b)

	m, err := LoadFileMeta("p", &buf)
	require.NoError(t, err)
	require.Equal(t, 2, m.FrameCount())
	assert.Equal(t, int64(20), m.Duration().Milliseconds())
}

func TestLoadFileMetaShortHeader(t *testing.T) {
	_, err := LoadFileMeta("short", bytes.NewReader([]byte{1, 0}))
	assert.ErrorIs(t, err, ErrIO)
}

func TestEmptyMetaLookups(t *testing.T) {
	m, err := LoadFileMeta("e", bytes.NewReader(encodeIndex(t, wire.NewConfig())))
	require.NoError(t, err)
	assert.Zero(t, m.FrameCount())
	assert.Zero(t, m.Duration())
	_, err = m.FrameByTime(0, Relative)
	assert.ErrorIs(t, err, ErrEmptyRecording)
}

func TestPaths(t *testing.T) {
	assert.Equal(t, "dir/take.oi.meta", MetaPath("dir", "take"))
	assert.Equal(t, "dir/take"+streamSuffix[wire.StreamAudio], StreamPath("dir", "take", wire.StreamAudio))
	assert.NoError(t, ValidateName(DefaultName))
	assert.ErrorIs(t, ValidateName(`a\b`), ErrInvalidName)
}
