package dcc

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePeer is the offering side of a DCC transfer: the proxy dials it.
type fakePeer struct {
	ln net.Listener
}

func newFakePeer(t *testing.T) *fakePeer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })
	return &fakePeer{ln: ln}
}

func (f *fakePeer) addr() string { return f.ln.Addr().String() }

func (f *fakePeer) accept(t *testing.T) net.Conn {
	t.Helper()
	f.ln.(*net.TCPListener).SetDeadline(time.Now().Add(5 * time.Second))
	conn, err := f.ln.(*net.TCPListener).AcceptTCP()
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func dialProxy(t *testing.T, p *Proxy) net.Conn {
	t.Helper()
	conn, err := net.DialTimeout("tcp", fmt.Sprintf("127.0.0.1:%d", p.Port()), 5*time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitDone(t *testing.T, p *Proxy) {
	t.Helper()
	select {
	case <-p.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("proxy did not finish")
	}
}

// TestChatRelay verifies bytes flow both ways through a chat proxy.
func TestChatRelay(t *testing.T) {
	peer := newFakePeer(t)
	p, err := New(Config{Type: TypeChat, RemoteAddr: peer.addr(), Timeout: 5 * time.Second})
	require.NoError(t, err)
	defer p.Close()

	remote := peer.accept(t)
	local := dialProxy(t, p)

	_, err = remote.Write([]byte("hello from remote\r\n"))
	require.NoError(t, err)
	buf := make([]byte, 64)
	local.SetReadDeadline(time.Now().Add(5 * time.Second))
	n, err := local.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "hello from remote\r\n", string(buf[:n]))

	_, err = local.Write([]byte("hello back\r\n"))
	require.NoError(t, err)
	remote.SetReadDeadline(time.Now().Add(5 * time.Second))
	n, err = remote.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "hello back\r\n", string(buf[:n]))

	remote.Close()
	waitDone(t, p)
}

// runReceiver reads the full stream, acknowledging as the DCC protocol
// requires, and returns the received bytes.
func runReceiver(t *testing.T, conn net.Conn, expect int) []byte {
	t.Helper()
	var got bytes.Buffer
	buf := make([]byte, 1024)
	var ack [4]byte
	conn.SetDeadline(time.Now().Add(5 * time.Second))
	for got.Len() < expect {
		n, err := conn.Read(buf)
		if n > 0 {
			got.Write(buf[:n])
			binary.BigEndian.PutUint32(ack[:], uint32(got.Len()))
			_, err := conn.Write(ack[:])
			require.NoError(t, err)
		}
		if err != nil {
			break
		}
	}
	return got.Bytes()
}

// TestSendSimple verifies the block-and-ack transfer mode end to end.
func TestSendSimple(t *testing.T) {
	peer := newFakePeer(t)
	p, err := New(Config{Type: TypeSendSimple, RemoteAddr: peer.addr(), Timeout: 5 * time.Second})
	require.NoError(t, err)
	defer p.Close()

	payload := bytes.Repeat([]byte{0xAB}, 3000)

	sender := peer.accept(t)
	go func() {
		sender.Write(payload)
		// drain our acks, close when the proxy confirms full receipt
		var ack [4]byte
		sender.SetReadDeadline(time.Now().Add(5 * time.Second))
		for {
			if _, err := io.ReadFull(sender, ack[:]); err != nil {
				return
			}
			if binary.BigEndian.Uint32(ack[:]) >= uint32(len(payload)) {
				sender.Close()
				return
			}
		}
	}()

	receiver := dialProxy(t, p)
	got := runReceiver(t, receiver, len(payload))
	assert.Equal(t, payload, got)

	waitDone(t, p)
	sent, ackd, rcvd := p.Counters()
	assert.Equal(t, int64(3000), sent)
	assert.Equal(t, int64(3000), ackd)
	assert.Equal(t, int64(3000), rcvd)
}

// TestCapture verifies a full capture to disk with no receiving client.
func TestCapture(t *testing.T) {
	peer := newFakePeer(t)
	path := filepath.Join(t.TempDir(), "file.bin")
	p, err := New(Config{
		Type:        TypeSendCapture,
		RemoteAddr:  peer.addr(),
		Timeout:     5 * time.Second,
		CapturePath: path,
	})
	require.NoError(t, err)
	defer p.Close()
	assert.Zero(t, p.Port())

	payload := bytes.Repeat([]byte{0x42}, 10000)
	sender := peer.accept(t)
	go io.Copy(io.Discard, sender) // acks
	_, err = sender.Write(payload)
	require.NoError(t, err)
	sender.Close()

	waitDone(t, p)
	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

// TestCaptureResume verifies capture continues at the negotiated offset,
// preserving the existing prefix.
func TestCaptureResume(t *testing.T) {
	peer := newFakePeer(t)
	path := filepath.Join(t.TempDir(), "file.bin")
	prefix := bytes.Repeat([]byte{'x'}, 4000)
	require.NoError(t, os.WriteFile(path, prefix, 0600))

	p, err := New(Config{
		Type:         TypeSendCapture,
		RemoteAddr:   peer.addr(),
		Timeout:      5 * time.Second,
		CapturePath:  path,
		ResumeOffset: 4000,
	})
	require.NoError(t, err)
	defer p.Close()

	rest := bytes.Repeat([]byte{'y'}, 6000)
	sender := peer.accept(t)
	go io.Copy(io.Discard, sender)
	_, err = sender.Write(rest)
	require.NoError(t, err)
	sender.Close()

	waitDone(t, p)
	got, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Len(t, got, 10000)
	assert.Equal(t, prefix, got[:4000])
	assert.Equal(t, rest, got[4000:])
}

// TestCaptureMaxSize verifies an oversized capture is abandoned and the
// partial file unlinked.
func TestCaptureMaxSize(t *testing.T) {
	peer := newFakePeer(t)
	path := filepath.Join(t.TempDir(), "file.bin")

	var rejected atomic.Bool
	p, err := New(Config{
		Type:        TypeSendCapture,
		RemoteAddr:  peer.addr(),
		Timeout:     5 * time.Second,
		CapturePath: path,
		CaptureMax:  1000,
		OnReject:    func(string) { rejected.Store(true) },
	})
	require.NoError(t, err)
	defer p.Close()

	sender := peer.accept(t)
	go io.Copy(io.Discard, sender)
	sender.Write(bytes.Repeat([]byte{0x11}, 5000))

	waitDone(t, p)
	assert.True(t, rejected.Load())
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

// TestTimeoutRejection verifies a transfer nobody picks up is rejected at
// the completion deadline.
func TestTimeoutRejection(t *testing.T) {
	peer := newFakePeer(t)

	reject := make(chan string, 1)
	p, err := New(Config{
		Type:       TypeSendSimple,
		RemoteAddr: peer.addr(),
		Timeout:    200 * time.Millisecond,
		RejectMsg:  "DCC transfer timed out",
		OnReject:   func(msg string) { reject <- msg },
	})
	require.NoError(t, err)
	defer p.Close()

	peer.accept(t) // sender connects but never transfers

	waitDone(t, p)
	select {
	case msg := <-reject:
		assert.Equal(t, "DCC transfer timed out", msg)
	case <-time.After(time.Second):
		t.Fatal("rejection callback never fired")
	}
}

// TestUniqueName verifies suffix selection skips existing files.
func TestUniqueName(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "file.bin")
	require.NoError(t, os.WriteFile(base, nil, 0600))
	require.NoError(t, os.WriteFile(base+".1", nil, 0600))

	assert.Equal(t, base+".2", UniqueName(base))
}
