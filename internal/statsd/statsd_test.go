package statsd

import (
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewWithNoAddrDisablesNetworkSubmission(t *testing.T) {
	c, err := New("", "checker", 0)
	require.NoError(t, err)
	require.Equal(t, DefaultInterval, c.interval)
	require.False(t, c.ShouldFlush(time.Now()))

	c.Count("errors", 3)
	require.NoError(t, c.Flush(time.Now()))
	require.NoError(t, c.Close())
}

func TestFlushEmitsLineProtocol(t *testing.T) {
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	defer pc.Close()

	c, err := New(pc.LocalAddr().String(), "checker", time.Minute)
	require.NoError(t, err)
	defer c.Close()

	c.Count("errors", 2)
	c.Histogram("latency", 1.5)

	errCh := make(chan error, 1)
	go func() { errCh <- c.Flush(time.Now()) }()

	buf := make([]byte, 1024)
	pc.SetReadDeadline(time.Now().Add(time.Second))
	n, _, err := pc.ReadFrom(buf)
	require.NoError(t, err)
	require.NoError(t, <-errCh)

	body := string(buf[:n])
	require.True(t, strings.Contains(body, "checker.errors:2|c"))
	require.True(t, strings.Contains(body, "checker.latency:1.5|h"))
}

func TestShouldFlushRespectsInterval(t *testing.T) {
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	defer pc.Close()

	c, err := New(pc.LocalAddr().String(), "p", time.Hour)
	require.NoError(t, err)
	defer c.Close()

	now := time.Now()
	require.True(t, c.ShouldFlush(now.Add(2*time.Hour)))
	require.NoError(t, c.Flush(now))
	require.False(t, c.ShouldFlush(now.Add(time.Minute)))
}
