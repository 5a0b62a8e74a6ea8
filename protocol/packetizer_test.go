package protocol

import (
	"bytes"
	"io"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/rgbdstream/transport"
	"github.com/opd-ai/rgbdstream/wire"
)

type fakeRecorder struct {
	recording bool
	replaying bool
	logs      [wire.NumStreams]*bytes.Buffer
	marks     []time.Time
}

func newFakeRecorder() *fakeRecorder {
	r := &fakeRecorder{recording: true}
	for i := range r.logs {
		r.logs[i] = &bytes.Buffer{}
	}
	return r
}

func (r *fakeRecorder) Recording() bool { return r.recording }
func (r *fakeRecorder) Replaying() bool { return r.replaying }

func (r *fakeRecorder) Writer(s wire.Stream) io.Writer {
	return r.logs[s]
}

func (r *fakeRecorder) MarkFrame(ts time.Time) error {
	r.marks = append(r.marks, ts)
	return nil
}

// newTestPacketizer uses send buffers larger than the MTU so that the MTU is
// the binding limit.
func newTestPacketizer(t *testing.T, rec Recorder) (*Packetizer, *transport.MemorySender) {
	t.Helper()
	ms, err := transport.NewMemorySender(32, 8192)
	require.NoError(t, err)
	p, err := NewPacketizer(ms, rec, nil, Options{Width: 100, Height: 25, MTU: 576, DeviceID: 3})
	require.NoError(t, err)
	return p, ms
}

func TestLinesPerMessage(t *testing.T) {
	assert.Equal(t, 63, LinesPerMessage(65506, 512))
	assert.Equal(t, 2, LinesPerMessage(576, 100))
	assert.Equal(t, 0, LinesPerMessage(576, 0))
}

func TestDeltaTSaturation(t *testing.T) {
	base := time.UnixMilli(1_000_000)
	assert.Equal(t, uint16(33), DeltaT(base, base.Add(33*time.Millisecond)))
	assert.Equal(t, uint16(59999), DeltaT(base, base.Add(59999*time.Millisecond)))
	assert.Equal(t, uint16(0), DeltaT(base, base.Add(60000*time.Millisecond)))
	assert.Equal(t, uint16(0), DeltaT(base, base.Add(70000*time.Millisecond)))
	assert.Equal(t, uint16(0), DeltaT(base, base.Add(-time.Second)))
}

func TestNewPacketizerRejectsGeometry(t *testing.T) {
	ms, err := transport.NewMemorySender(1, 1024)
	require.NoError(t, err)

	_, err = NewPacketizer(ms, nil, nil, Options{Width: 0, Height: 10})
	assert.ErrorIs(t, err, ErrInvalidGeometry)

	_, err = NewPacketizer(ms, nil, nil, Options{Width: 1000, Height: 10, MTU: 576})
	assert.ErrorIs(t, err, ErrInvalidGeometry)
}

func TestDepthRowsCoveredExactlyOnce(t *testing.T) {
	p, ms := newTestPacketizer(t, nil)
	depth := make([]uint16, 100*25)

	res, err := p.SendRGBD([]byte("jpeg"), depth, time.UnixMilli(5000))
	require.NoError(t, err)

	lines := p.LinesPerMessage()
	wantPackets := int(math.Ceil(25.0 / float64(lines)))
	assert.Equal(t, 13, wantPackets)
	assert.Equal(t, 1+wantPackets, res.Packets)
	assert.True(t, res.Sent)

	dgrams := ms.Datagrams()
	require.Len(t, dgrams, 1+wantPackets)

	color, err := wire.ParseFrameHeader(dgrams[0].Data)
	require.NoError(t, err)
	assert.Equal(t, wire.KindColor, color.Kind)
	assert.Equal(t, uint16(0), color.StartRow)
	assert.Equal(t, uint16(25), color.EndRow)
	assert.Equal(t, uint8(3), color.DeviceID)
	assert.Equal(t, "jpeg", string(dgrams[0].Data[wire.FrameHeaderSize:]))

	covered := make([]int, 25)
	next := 0
	for _, d := range dgrams[1:] {
		assert.LessOrEqual(t, len(d.Data), 576)
		h, err := wire.ParseFrameHeader(d.Data)
		require.NoError(t, err)
		assert.Equal(t, wire.KindDepth, h.Kind)
		assert.Equal(t, next, int(h.StartRow), "chunks ascend without gaps")
		assert.Equal(t, int(h.EndRow-h.StartRow)*100*2, len(d.Data)-wire.FrameHeaderSize)
		for r := h.StartRow; r < h.EndRow; r++ {
			covered[r]++
		}
		next = int(h.EndRow)
	}
	for row, n := range covered {
		assert.Equal(t, 1, n, "row %d", row)
	}
}

func TestDepthSamplesBigEndian(t *testing.T) {
	p, ms := newTestPacketizer(t, nil)
	depth := make([]uint16, 100*25)
	depth[0] = 0x0102
	depth[100*2] = 0xA0B0

	_, err := p.SendRGBD(nil, depth, time.UnixMilli(1))
	require.NoError(t, err)

	dgrams := ms.Datagrams()
	first := dgrams[1].Data[wire.FrameHeaderSize:]
	assert.Equal(t, []byte{0x01, 0x02}, first[:2])
	second := dgrams[2].Data[wire.FrameHeaderSize:]
	assert.Equal(t, []byte{0xA0, 0xB0}, second[:2])
}

func TestDeltaTAcrossFrames(t *testing.T) {
	p, ms := newTestPacketizer(t, nil)
	depth := make([]uint16, 100*25)
	base := time.UnixMilli(1_000_000)

	first, err := p.SendRGBD(nil, depth, base)
	require.NoError(t, err)
	assert.Equal(t, uint16(0), first.DeltaT)

	ms.Reset()
	second, err := p.SendRGBD(nil, depth, base.Add(40*time.Millisecond))
	require.NoError(t, err)
	assert.Equal(t, uint16(40), second.DeltaT)
	h, err := wire.ParseFrameHeader(ms.Datagrams()[0].Data)
	require.NoError(t, err)
	assert.Equal(t, uint16(40), h.DeltaT)

	ms.Reset()
	third, err := p.SendRGBD(nil, depth, base.Add(40*time.Millisecond+70000*time.Millisecond))
	require.NoError(t, err)
	assert.Equal(t, uint16(0), third.DeltaT)
	h, err = wire.ParseFrameHeader(ms.Datagrams()[0].Data)
	require.NoError(t, err)
	assert.Equal(t, uint16(0), h.DeltaT)

	assert.Equal(t, first.Sequence+1, second.Sequence)
	assert.Equal(t, second.Sequence+1, third.Sequence)
}

func TestSendRGBDRejectsWrongSize(t *testing.T) {
	p, _ := newTestPacketizer(t, nil)
	_, err := p.SendRGBD(nil, make([]uint16, 10), time.Now())
	assert.ErrorIs(t, err, ErrFrameSize)
}

func TestSendRGBDPoolExhausted(t *testing.T) {
	ms, err := transport.NewMemorySender(1, 1024)
	require.NoError(t, err)
	p, err := NewPacketizer(ms, nil, nil, Options{Width: 100, Height: 25, MTU: 576})
	require.NoError(t, err)

	held, err := ms.AcquireSend()
	require.NoError(t, err)

	_, err = p.SendRGBD(nil, make([]uint16, 100*25), time.Now())
	assert.ErrorIs(t, err, transport.ErrPoolExhausted)
	require.NoError(t, ms.Release(held))
}

func TestRecordingLogLayout(t *testing.T) {
	rec := newFakeRecorder()
	p, _ := newTestPacketizer(t, rec)
	depth := make([]uint16, 100*25)
	ts := time.UnixMilli(42)

	_, err := p.SendRGBD([]byte("color"), depth, ts)
	require.NoError(t, err)
	require.Len(t, rec.marks, 1)
	assert.Equal(t, ts, rec.marks[0])

	log := rec.logs[wire.StreamRGBD].Bytes()
	ch, err := wire.ParseChunkHeader(log)
	require.NoError(t, err)
	assert.Equal(t, wire.ChunkHeader{StartRow: 0, EndRow: 25, Size: 5}, ch)
	off := wire.ChunkHeaderSize
	assert.Equal(t, "color", string(log[off:off+5]))
	off += 5

	npackets := int(wire.ByteOrder.Uint16(log[off:]))
	off += 2
	assert.Equal(t, 13, npackets)

	rows := 0
	for i := 0; i < npackets; i++ {
		ch, err := wire.ParseChunkHeader(log[off:])
		require.NoError(t, err)
		off += wire.ChunkHeaderSize + int(ch.Size)
		rows += int(ch.EndRow - ch.StartRow)
	}
	assert.Equal(t, 25, rows)
	assert.Equal(t, len(log), off)
}

func TestLiveFramesSuppressedWhileReplaying(t *testing.T) {
	rec := newFakeRecorder()
	rec.replaying = true
	p, ms := newTestPacketizer(t, rec)

	res, err := p.SendRGBD([]byte("c"), make([]uint16, 100*25), time.UnixMilli(1))
	require.NoError(t, err)
	assert.False(t, res.Sent)
	assert.Empty(t, ms.Datagrams())
	assert.NotZero(t, rec.logs[wire.StreamRGBD].Len())
	assert.Equal(t, 32, ms.Arena().Len(transport.FreeSend))

	_, err = p.SendAudio([]float32{1, 2}, 16000, 1, time.UnixMilli(1))
	require.NoError(t, err)
	assert.Empty(t, ms.Datagrams())
	assert.Equal(t, 8, rec.logs[wire.StreamAudio].Len())
}

func TestSendAudioSplitsPackets(t *testing.T) {
	rec := newFakeRecorder()
	p, ms := newTestPacketizer(t, rec)
	samples := make([]float32, 600)
	samples[0] = 0.5

	_, err := p.SendAudio(samples, 16000, 1, time.UnixMilli(7))
	require.NoError(t, err)

	dgrams := ms.Datagrams()
	// (576-16)/4 = 140 samples per packet.
	require.Len(t, dgrams, 5)
	total := 0
	for _, d := range dgrams {
		assert.LessOrEqual(t, len(d.Data), 576)
		h, err := wire.ParseAudioHeader(d.Data)
		require.NoError(t, err)
		assert.Equal(t, uint16(16000), h.Frequency)
		assert.Equal(t, uint16(1), h.Channels)
		assert.Equal(t, uint64(7), h.Timestamp)
		assert.Equal(t, int(h.Samples)*4, len(d.Data)-wire.AudioHeaderSize)
		total += int(h.Samples)
	}
	assert.Equal(t, 600, total)

	first := dgrams[0].Data[wire.AudioHeaderSize:]
	assert.Equal(t, float32(0.5), math.Float32frombits(wire.ByteOrder.Uint32(first)))
	assert.Equal(t, 600*4, rec.logs[wire.StreamAudio].Len())
}

func TestSendBodies(t *testing.T) {
	rec := newFakeRecorder()
	p, ms := newTestPacketizer(t, rec)

	n, err := p.SendBodies(nil, time.UnixMilli(1))
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, ms.Datagrams())
	assert.Equal(t, []byte{0, 0}, rec.logs[wire.StreamBody].Bytes())

	bodies := []wire.Body{{TrackingID: 9}}
	_, err = p.SendBodies(bodies, time.UnixMilli(2))
	require.NoError(t, err)

	dgrams := ms.Datagrams()
	require.Len(t, dgrams, 1)
	h, err := wire.ParseBodyHeader(dgrams[0].Data)
	require.NoError(t, err)
	assert.Equal(t, uint16(1), h.Count)
	got, err := wire.ParseBody(dgrams[0].Data[wire.BodyHeaderSize:])
	require.NoError(t, err)
	assert.Equal(t, uint32(9), got.TrackingID)
	assert.Equal(t, 2+2+wire.BodySize, rec.logs[wire.StreamBody].Len())
}

func TestSendBodyIndexAndHD(t *testing.T) {
	rec := newFakeRecorder()
	p, ms := newTestPacketizer(t, rec)

	_, err := p.SendBodyIndex([]byte("bidx"), time.UnixMilli(3))
	require.NoError(t, err)
	dgrams := ms.Datagrams()
	require.Len(t, dgrams, 1)
	h, err := wire.ParseFrameHeader(dgrams[0].Data)
	require.NoError(t, err)
	assert.Equal(t, wire.KindBodyIndex, h.Kind)
	assert.Equal(t, uint16(0), h.DeltaT)
	assert.Equal(t, uint16(25), h.EndRow)
	assert.Equal(t, []byte{4, 0, 0, 0, 'b', 'i', 'd', 'x'}, rec.logs[wire.StreamBodyIndex].Bytes())

	n, err := p.RecordHD([]byte("hd"))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Len(t, ms.Datagrams(), 1, "HD frames are never sent")
	assert.Equal(t, []byte{2, 0, 0, 0, 'h', 'd'}, rec.logs[wire.StreamHD].Bytes())
}

func TestRecordHDWithoutRecording(t *testing.T) {
	p, _ := newTestPacketizer(t, nil)
	n, err := p.RecordHD([]byte("hd"))
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSendConfigUsesBlockingPath(t *testing.T) {
	p, ms := newTestPacketizer(t, nil)
	cfg := wire.NewConfig()
	cfg.FrameWidth = 100
	cfg.GUID = "abc"

	n, err := p.SendConfig(&cfg)
	require.NoError(t, err)
	assert.Equal(t, wire.ConfigSize, n)

	dgrams := ms.Datagrams()
	require.Len(t, dgrams, 1)
	got, err := wire.ParseConfig(dgrams[0].Data)
	require.NoError(t, err)
	assert.Equal(t, "abc", got.GUID)
	assert.Equal(t, 32, ms.Arena().Len(transport.FreeSend))
}

func TestAudioSamplesPerPacket(t *testing.T) {
	assert.Equal(t, 140, AudioSamplesPerPacket(576))
	assert.Equal(t, 16372, AudioSamplesPerPacket(65506))
	assert.Equal(t, 0, AudioSamplesPerPacket(10))
}

func TestEveryDatagramWithinMTU(t *testing.T) {
	p, ms := newTestPacketizer(t, nil)
	ts := time.UnixMilli(9)

	_, err := p.SendAudio(make([]float32, 1000), 16000, 1, ts)
	require.NoError(t, err)
	_, err = p.SendRGBD(make([]byte, 576-wire.FrameHeaderSize), make([]uint16, 100*25), ts)
	require.NoError(t, err)
	_, err = p.SendBodies([]wire.Body{{TrackingID: 1}}, ts)
	require.NoError(t, err)

	dgrams := ms.Datagrams()
	require.NotEmpty(t, dgrams)
	for i, d := range dgrams {
		assert.LessOrEqual(t, len(d.Data), p.MTU(), "datagram %d kind %#x", i, d.Data[0])
	}
}

func TestOversizedPayloadsRejected(t *testing.T) {
	p, ms := newTestPacketizer(t, nil)
	ts := time.UnixMilli(9)

	_, err := p.SendRGBD(make([]byte, 3000), make([]uint16, 100*25), ts)
	assert.ErrorIs(t, err, ErrPayloadTooLarge)

	_, err = p.SendBodyIndex(make([]byte, 3000), ts)
	assert.ErrorIs(t, err, ErrPayloadTooLarge)

	_, err = p.SendBodies(make([]wire.Body, 2), ts)
	assert.ErrorIs(t, err, ErrPayloadTooLarge)

	assert.Empty(t, ms.Datagrams())
	assert.Equal(t, 32, ms.Arena().Len(transport.FreeSend))
}

func TestOversizedColorLeavesRecordingUntouched(t *testing.T) {
	rec := newFakeRecorder()
	p, _ := newTestPacketizer(t, rec)
	depth := make([]uint16, 100*25)

	_, err := p.SendRGBD(make([]byte, 3000), depth, time.UnixMilli(1))
	require.ErrorIs(t, err, ErrPayloadTooLarge)
	assert.Empty(t, rec.marks)
	assert.Zero(t, rec.logs[wire.StreamRGBD].Len())

	_, err = p.SendRGBD([]byte("ok"), depth, time.UnixMilli(2))
	require.NoError(t, err)
	require.Len(t, rec.marks, 1)
	assert.Equal(t, time.UnixMilli(2), rec.marks[0])
	ch, err := wire.ParseChunkHeader(rec.logs[wire.StreamRGBD].Bytes())
	require.NoError(t, err)
	assert.Equal(t, uint32(2), ch.Size)
}
