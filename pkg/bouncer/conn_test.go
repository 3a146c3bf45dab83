package bouncer

import (
	"bufio"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// collectEvents returns a lineConn over one end of a pipe and a channel
// carrying everything its reader posts.
func collectEvents(conn net.Conn) (*lineConn, chan event) {
	events := make(chan event, 32)
	c := newLineConn(conn, func(ev event) { events <- ev })
	return c, events
}

func nextEvent(t *testing.T, events chan event) event {
	t.Helper()
	select {
	case ev := <-events:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("no event arrived")
		return nil
	}
}

// TestLineConnFraming verifies LF framing with optional CR and that a
// closed peer produces an evGone.
func TestLineConnFraming(t *testing.T) {
	ours, theirs := net.Pipe()
	c, events := collectEvents(ours)
	defer c.close()

	go func() {
		theirs.Write([]byte("PING :abc\r\nNOTICE x :no cr\n"))
		theirs.Close()
	}()

	ev := nextEvent(t, events)
	line, ok := ev.(evLine)
	require.True(t, ok)
	assert.Equal(t, "PING :abc", line.line)

	ev = nextEvent(t, events)
	line, ok = ev.(evLine)
	require.True(t, ok)
	assert.Equal(t, "NOTICE x :no cr", line.line)

	ev = nextEvent(t, events)
	_, ok = ev.(evGone)
	assert.True(t, ok)
}

// TestLineConnUrgentFirst verifies urgent lines overtake queued ordinary
// traffic without splitting the line already being written.
func TestLineConnUrgentFirst(t *testing.T) {
	ours, theirs := net.Pipe()
	c, _ := collectEvents(ours)
	defer c.close()
	defer theirs.Close()

	// the pipe is unbuffered: the writer blocks inside the first line
	// until we start reading, so everything queued after this settles
	// behind it
	c.send("FIRST")
	time.Sleep(50 * time.Millisecond)
	c.send("SECOND")
	c.send("THIRD")
	c.sendUrgent("URGENT")
	time.Sleep(50 * time.Millisecond)

	r := bufio.NewReader(theirs)
	var got []string
	for i := 0; i < 4; i++ {
		theirs.SetReadDeadline(time.Now().Add(2 * time.Second))
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		got = append(got, line)
	}
	assert.Equal(t, []string{"FIRST\r\n", "URGENT\r\n", "SECOND\r\n", "THIRD\r\n"}, got)
}

// TestLineConnRetarget verifies the event sink swap used during attach.
func TestLineConnRetarget(t *testing.T) {
	ours, theirs := net.Pipe()
	c, first := collectEvents(ours)
	defer c.close()

	second := make(chan event, 32)
	c.retarget(func(ev event) { second <- ev })

	go theirs.Write([]byte("HELLO\r\n"))
	ev := nextEvent(t, second)
	line, ok := ev.(evLine)
	require.True(t, ok)
	assert.Equal(t, "HELLO", line.line)
	assert.Empty(t, first)
	theirs.Close()
}

// TestLineConnThrottle verifies the byte/period cap delays output once
// the window is spent.
func TestLineConnThrottle(t *testing.T) {
	ours, theirs := net.Pipe()
	c, _ := collectEvents(ours)
	defer c.close()
	defer theirs.Close()

	c.setThrottle(16, 150*time.Millisecond)

	start := time.Now()
	c.send("AAAAAAAAAAAAAA") // 16 bytes with CRLF, spends the window
	c.send("BBBB")

	r := bufio.NewReader(theirs)
	_, err := r.ReadString('\n')
	require.NoError(t, err)
	_, err = r.ReadString('\n')
	require.NoError(t, err)

	assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)
}

// TestLineConnCloseFlushesQueued verifies lines queued before close,
// like a final ERROR, still reach the peer before the socket dies.
func TestLineConnCloseFlushesQueued(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			accepted <- conn
		}
	}()

	conn, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	c, _ := collectEvents(conn)

	c.send("NOTICE alice :Goodbye")
	c.send("ERROR :Closing Link")
	c.close()

	peer := <-accepted
	defer peer.Close()
	peer.SetReadDeadline(time.Now().Add(5 * time.Second))
	r := bufio.NewReader(peer)

	line, err := r.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "NOTICE alice :Goodbye\r\n", line)
	line, err = r.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "ERROR :Closing Link\r\n", line)

	_, err = r.ReadString('\n')
	assert.Error(t, err, "socket should be closed after the drain")
}

// TestLineConnThrottleWindowCap verifies a line that would overflow the
// byte budget waits for the next window instead of stretching this one.
func TestLineConnThrottleWindowCap(t *testing.T) {
	ours, theirs := net.Pipe()
	c, _ := collectEvents(ours)
	defer c.close()
	defer theirs.Close()

	c.setThrottle(20, 150*time.Millisecond)

	start := time.Now()
	c.send("AAAAAAAAAAAAAA") // 16 bytes with CRLF
	c.send("BBBBBB")         // 8 bytes; 16+8 > 20, must wait

	r := bufio.NewReader(theirs)
	theirs.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, err := r.ReadString('\n')
	require.NoError(t, err)
	first := time.Since(start)
	_, err = r.ReadString('\n')
	require.NoError(t, err)

	assert.Less(t, first, 100*time.Millisecond)
	assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)
}

// TestLineConnCloseIdempotent verifies double close is safe and enqueue
// after close is dropped.
func TestLineConnCloseIdempotent(t *testing.T) {
	ours, theirs := net.Pipe()
	c, events := collectEvents(ours)
	theirs.Close()

	c.close()
	c.close()
	c.send("dropped")

	ev := nextEvent(t, events)
	_, ok := ev.(evGone)
	assert.True(t, ok)
}
