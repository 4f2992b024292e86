package probe

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendUDPToUnreachableReturnsFlaggedOutcome(t *testing.T) {
	p := New(WithOpTimeout(200 * time.Millisecond))
	ctx := context.Background()

	ep, err := p.BindUDP(ctx, "127.0.0.1:0")
	require.NoError(t, err)
	defer ep.Close()

	start := time.Now()
	// An IPv6 destination cannot be reached from an IPv4 socket.
	out := p.SendUDP(ctx, ep, []byte("probe"), "[::1]:5353")
	assert.Less(t, time.Since(start), p.OpTimeout())
	assert.False(t, out.Success)
	assert.NotEmpty(t, out.Err)
	assert.Zero(t, out.Bytes)
	assert.GreaterOrEqual(t, out.ElapsedMs(), 0.0)
}

func TestSendUDPInvalidDestination(t *testing.T) {
	p := New()
	ctx := context.Background()
	ep, err := p.BindUDP(ctx, "127.0.0.1:0")
	require.NoError(t, err)
	defer ep.Close()

	out := p.SendUDP(ctx, ep, []byte("probe"), "missing-port")
	assert.False(t, out.Success)

	require.NoError(t, ep.Close())
	out = p.SendUDP(ctx, ep, []byte("probe"), "127.0.0.1:9")
	assert.False(t, out.Success)
}

func TestSendUDPCanceledContext(t *testing.T) {
	p := New()
	ep, err := p.BindUDP(context.Background(), "127.0.0.1:0")
	require.NoError(t, err)
	defer ep.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out := p.SendUDP(ctx, ep, []byte("probe"), "127.0.0.1:9")
	assert.False(t, out.Success)
	assert.True(t, out.TimedOut)
}

func TestSendUDPLoopbackDelivery(t *testing.T) {
	p := New()
	ctx := context.Background()

	sender, err := p.BindUDP(ctx, "127.0.0.1:0")
	require.NoError(t, err)
	defer sender.Close()
	receiver, err := p.BindUDP(ctx, "127.0.0.1:0")
	require.NoError(t, err)
	defer receiver.Close()

	payload := []byte("hello")
	out := p.SendUDP(ctx, sender, payload, receiver.LocalAddr().String())
	require.True(t, out.Success, out.Err)
	assert.Equal(t, len(payload), out.Bytes)

	buf := make([]byte, 16)
	require.NoError(t, receiver.conn.SetReadDeadline(time.Now().Add(time.Second)))
	n, _, err := receiver.conn.ReadFromUDP(buf)
	require.NoError(t, err)
	assert.Equal(t, payload, buf[:n])
}

func TestConnectTCPRecordsStats(t *testing.T) {
	p := New(WithOpTimeout(time.Second))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ln, err := p.BindTCPListener(ctx, "127.0.0.1:0")
	require.NoError(t, err)
	go ln.Serve(ctx)

	out := p.ConnectTCP(ctx, ln.Addr().String())
	require.True(t, out.Success, out.Err)

	closed, err := p.BindTCPListener(ctx, "127.0.0.1:0")
	require.NoError(t, err)
	addr := closed.Addr().String()
	require.NoError(t, closed.Close())

	out = p.ConnectTCP(ctx, addr)
	assert.False(t, out.Success)

	stats := p.Stats()
	assert.Equal(t, 1, stats.Successful)
	assert.Equal(t, 1, stats.Failed+stats.TimedOut)
	assert.Greater(t, stats.AverageHandshake, time.Duration(0))
}

func TestServeStopsWhenContextDone(t *testing.T) {
	p := New()
	ctx, cancel := context.WithCancel(context.Background())

	ln, err := p.BindTCPListener(ctx, "127.0.0.1:0")
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		ln.Serve(ctx)
		close(done)
	}()

	conn, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	_ = conn.Close()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("serve did not stop after cancel")
	}
	assert.NoError(t, ln.Close())
}

func TestBindFailureIsSetupError(t *testing.T) {
	p := New()
	ctx := context.Background()

	ln, err := p.BindTCPListener(ctx, "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	_, err = p.BindTCPListener(ctx, ln.Addr().String())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSocketSetup))

	var setupErr *SetupError
	require.True(t, errors.As(err, &setupErr))
	assert.Equal(t, "listen tcp4", setupErr.Op)
}

func TestNetworkFor(t *testing.T) {
	assert.Equal(t, "udp4", networkFor("udp", "0.0.0.0:0"))
	assert.Equal(t, "udp6", networkFor("udp", "[::1]:0"))
	assert.Equal(t, "tcp", networkFor("tcp", "localhost:80"))
	assert.Equal(t, "tcp", networkFor("tcp", "garbage"))
}
