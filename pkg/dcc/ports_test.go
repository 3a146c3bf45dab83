package dcc

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// freePort reserves and releases an ephemeral port.
func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()
	return port
}

// TestDialInRangeBindsLocalPort verifies the outbound leg is bound
// inside the configured range.
func TestDialInRangeBindsLocalPort(t *testing.T) {
	peer := newFakePeer(t)
	lo := freePort(t)

	conn, err := dialInRange(peer.addr(), lo, lo+10, 5*time.Second)
	require.NoError(t, err)
	defer conn.Close()

	local := conn.LocalAddr().(*net.TCPAddr).Port
	assert.GreaterOrEqual(t, local, lo)
	assert.LessOrEqual(t, local, lo+10)
}

// TestDialInRangeSkipsBusyPort verifies a bound port moves the scan on
// instead of failing the dial.
func TestDialInRangeSkipsBusyPort(t *testing.T) {
	peer := newFakePeer(t)

	busy, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer busy.Close()
	lo := busy.Addr().(*net.TCPAddr).Port

	conn, err := dialInRange(peer.addr(), lo, lo+10, 5*time.Second)
	require.NoError(t, err)
	defer conn.Close()

	local := conn.LocalAddr().(*net.TCPAddr).Port
	assert.Greater(t, local, lo)
	assert.LessOrEqual(t, local, lo+10)
}

// TestDialInRangeZeroMeansAny verifies the unconfigured case keeps the
// plain dial path.
func TestDialInRangeZeroMeansAny(t *testing.T) {
	peer := newFakePeer(t)

	conn, err := dialInRange(peer.addr(), 0, 0, 5*time.Second)
	require.NoError(t, err)
	conn.Close()
}
