package rendezvous

import (
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/rgbdstream/clock"
	"github.com/opd-ai/rgbdstream/limits"
	"github.com/opd-ai/rgbdstream/transport"
)

type sent struct {
	data string
	dest string
}

type fakeTransport struct {
	mu   sync.Mutex
	sent []sent
	dest net.Addr
	hook transport.ReceiveHook
	gate transport.SendGate
}

func (f *fakeTransport) SendTo(data []byte, dest net.Addr) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sent{data: string(data), dest: dest.String()})
	return len(data), nil
}

func (f *fakeTransport) SetDestination(addr net.Addr)              { f.dest = addr }
func (f *fakeTransport) SetReceiveHook(hook transport.ReceiveHook) { f.hook = hook }
func (f *fakeTransport) SetSendGate(gate transport.SendGate)       { f.gate = gate }

func (f *fakeTransport) take() []sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := f.sent
	f.sent = nil
	return out
}

func newTestClient(t *testing.T) (*Client, *fakeTransport, *clock.Manual) {
	t.Helper()
	ft := &fakeTransport{}
	mc := clock.NewManual(time.Unix(1000, 0))
	opts := DefaultOptions()
	opts.ServerAddr = "127.0.0.1:1911"
	opts.SocketID = "sock"
	opts.GUID = "guid-1"
	opts.LocalIP = "10.0.0.2"
	opts.TimeProvider = mc
	c, err := New(ft, opts)
	require.NoError(t, err)
	return c, ft, mc
}

func TestNewRequiresServer(t *testing.T) {
	_, err := New(&fakeTransport{}, DefaultOptions())
	assert.ErrorIs(t, err, ErrNoServer)

	_, err = New(nil, DefaultOptions())
	assert.ErrorIs(t, err, ErrNilTransport)
}

func TestNewInstallsHooks(t *testing.T) {
	_, ft, _ := newTestClient(t)
	assert.NotNil(t, ft.hook)
	assert.NotNil(t, ft.gate)
}

func TestRegistrationMessage(t *testing.T) {
	c, ft, _ := newTestClient(t)

	c.tick()
	msgs := ft.take()
	require.Len(t, msgs, 1)
	assert.Equal(t, "127.0.0.1:1911", msgs[0].dest)
	assert.Equal(t,
		`d{"packageType":"register","socketID":"sock","isSender":true,"localIP":"10.0.0.2","UID":"guid-1"}`,
		msgs[0].data)
	assert.Equal(t, Registering, c.State())
}

func TestRegisterInterval(t *testing.T) {
	c, ft, mc := newTestClient(t)

	c.tick()
	ft.take()

	mc.Advance(time.Second)
	c.tick()
	assert.Empty(t, ft.take())

	mc.Advance(1100 * time.Millisecond)
	c.tick()
	assert.Len(t, ft.take(), 1)
}

func TestAnswerSetsDestinationAndPunchesTwice(t *testing.T) {
	c, ft, _ := newTestClient(t)
	c.tick()
	ft.take()

	consumed := c.handle([]byte(`{"type":"answer","address":"127.0.0.1","port":4000}`), nil)
	assert.True(t, consumed)

	require.NotNil(t, ft.dest)
	assert.Equal(t, "127.0.0.1:4000", ft.dest.String())
	assert.Equal(t, "127.0.0.1:4000", c.Peer().String())

	msgs := ft.take()
	require.Len(t, msgs, 2)
	for _, m := range msgs {
		assert.Equal(t, `d{"type":"punch"}`, m.data)
		assert.Equal(t, "127.0.0.1:4000", m.dest)
	}
	assert.Equal(t, Registering, c.State())
}

func TestPunchConnectsAndHeartbeats(t *testing.T) {
	c, ft, mc := newTestClient(t)
	c.tick()
	c.handle([]byte(`{"type":"answer","address":"127.0.0.1","port":4000}`), nil)
	ft.take()

	assert.True(t, c.handle([]byte(`{"type":"punch"}`), nil))
	assert.True(t, c.Connected())
	assert.Equal(t, mc.Now(), c.LastHeartbeat())

	// First connected tick sends a heartbeat, no registration.
	c.tick()
	msgs := ft.take()
	require.Len(t, msgs, 1)
	assert.Equal(t, `d{"type":"punch"}`, msgs[0].data)

	mc.Advance(time.Second)
	c.tick()
	assert.Empty(t, ft.take())

	mc.Advance(1100 * time.Millisecond)
	c.tick()
	assert.Len(t, ft.take(), 1)
}

func TestHeartbeatTimeoutReturnsToRegistration(t *testing.T) {
	c, ft, mc := newTestClient(t)
	c.tick()
	c.handle([]byte(`{"type":"answer","address":"127.0.0.1","port":4000}`), nil)
	c.handle([]byte(`{"type":"punch"}`), nil)
	ft.take()

	mc.Advance(5100 * time.Millisecond)
	c.tick()

	assert.Equal(t, Registering, c.State())
	msgs := ft.take()
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0].data, `"packageType":"register"`)
	assert.Equal(t, "127.0.0.1:1911", msgs[0].dest)
}

func TestHandleIgnoresOtherMessages(t *testing.T) {
	c, _, _ := newTestClient(t)

	assert.False(t, c.handle([]byte(`{"cmd":"application","val":"stop"}`), nil))
	assert.False(t, c.handle([]byte(`not json`), nil))
	assert.Equal(t, Disconnected, c.State())
}

func TestHandleSkipsOversizedMessages(t *testing.T) {
	c, ft, _ := newTestClient(t)
	answer := `{"type":"answer","address":"127.0.0.1","port":4000}`
	pad := strings.Repeat(" ", limits.MaxControlMessage)

	assert.False(t, c.handle([]byte(answer+pad), nil))
	assert.Nil(t, ft.dest)
	assert.Equal(t, Disconnected, c.State())
	assert.Empty(t, ft.take())
}

func TestSendGate(t *testing.T) {
	c, _, _ := newTestClient(t)
	peer := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 4000}
	media := []byte{0x03, 0, 0, 0}

	assert.False(t, c.Allow(media, peer))
	assert.True(t, c.Allow(media, c.Server()))
	assert.True(t, c.Allow([]byte(`d{"type":"punch"}`), peer))

	c.handle([]byte(`{"type":"punch"}`), peer)
	assert.True(t, c.Allow(media, peer))
}

func TestLoopbackHandshake(t *testing.T) {
	server, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	defer server.Close()

	topts := transport.DefaultOptions()
	topts.ListenAddr = "127.0.0.1:0"
	topts.ReceiveBuffers = 4
	topts.SendBuffers = 8
	tr, err := transport.NewUDPTransport(topts)
	require.NoError(t, err)
	defer tr.Close()

	peer, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	defer peer.Close()

	opts := DefaultOptions()
	opts.ServerAddr = server.LocalAddr().String()
	opts.LocalIP = "127.0.0.1"
	c, err := New(tr, opts)
	require.NoError(t, err)

	c.tick()

	buf := make([]byte, 2048)
	require.NoError(t, server.SetReadDeadline(time.Now().Add(2*time.Second)))
	n, from, err := server.ReadFrom(buf)
	require.NoError(t, err)
	assert.Contains(t, string(buf[:n]), `"packageType":"register"`)

	peerPort := peer.LocalAddr().(*net.UDPAddr).Port
	answer := []byte(`d{"type":"answer","address":"127.0.0.1","port":` + strconv.Itoa(peerPort) + `}`)
	_, err = server.WriteTo(answer, from)
	require.NoError(t, err)

	require.NoError(t, peer.SetReadDeadline(time.Now().Add(2*time.Second)))
	n, clientAddr, err := peer.ReadFrom(buf)
	require.NoError(t, err)
	assert.Equal(t, `d{"type":"punch"}`, string(buf[:n]))

	_, err = peer.WriteTo([]byte(`d{"type":"punch"}`), clientAddr)
	require.NoError(t, err)

	require.Eventually(t, c.Connected, 2*time.Second, 10*time.Millisecond)
	_, queued := tr.Dequeue()
	assert.False(t, queued)
}
