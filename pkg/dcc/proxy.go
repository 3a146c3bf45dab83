/*
MIT License

Copyright (c) 2025 Mikael Schultz <mikael@conf-t.se>

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in all
copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
SOFTWARE.
*/

// Package dcc implements the DCC proxy engine. A proxy is created when a
// DCC CHAT or SEND offer is intercepted: it dials the offering peer,
// listens for the other end on a local port (which is what the rewritten
// offer advertises), and relays the stream, or captures it to a file when
// no client is there to receive it.
package dcc

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/bitcanon/ircbounce/pkg/metrics"
)

// Type selects the transfer engine.
type Type string

const (
	TypeChat        Type = "chat"
	TypeSendSimple  Type = "send"
	TypeSendFast    Type = "send-fast"
	TypeSendCapture Type = "capture"
)

// BlockSize is the chunk size for simple-mode sends: each block waits for
// the receiver's acknowledgement before the next is written.
const BlockSize = 1024

const readBufSize = 4096

// Config describes one proxy.
type Config struct {
	Type       Type
	RemoteAddr string // host:port of the offering peer
	PortLow    int    // local listen/dial port range; zero for any
	PortHigh   int
	Timeout    time.Duration // completion timeout

	CapturePath  string // capture types only
	CaptureMax   int64  // bytes; 0 = unlimited
	ResumeOffset int64

	RejectMsg string
	OnReject  func(msg string) // called once if the transfer never completes
}

type endpoint struct {
	connected bool
	active    bool
	gone      bool
}

// Proxy is one live DCC relay or capture.
type Proxy struct {
	cfg  Config
	ln   net.Listener
	port int

	mu         sync.Mutex
	cond       *sync.Cond
	sender     endpoint
	sendee     endpoint
	senderConn net.Conn
	sendeeConn net.Conn
	sent       int64
	ackd       int64
	rcvd       int64
	closed     bool

	out   chan []byte
	done  chan struct{}
	timer *time.Timer
}

// New starts a proxy: dials the remote peer in the background and, for
// non-capture types, opens the local listen whose port the rewritten
// offer should advertise.
func New(cfg Config) (*Proxy, error) {
	switch cfg.Type {
	case TypeChat, TypeSendSimple, TypeSendFast, TypeSendCapture:
	default:
		return nil, fmt.Errorf("dcc: unknown type %q", cfg.Type)
	}

	p := &Proxy{
		cfg:  cfg,
		out:  make(chan []byte, 64),
		done: make(chan struct{}),
	}
	p.cond = sync.NewCond(&p.mu)

	if cfg.Type != TypeSendCapture {
		ln, err := listenInRange(cfg.PortLow, cfg.PortHigh)
		if err != nil {
			return nil, err
		}
		p.ln = ln
		p.port = ln.Addr().(*net.TCPAddr).Port
	}

	metrics.DCCTransfers.WithLabelValues(string(cfg.Type)).Inc()

	if cfg.Timeout > 0 {
		p.timer = time.AfterFunc(cfg.Timeout, p.onTimeout)
	}
	go p.runSender()
	if cfg.Type != TypeSendCapture {
		go p.runSendee()
	}
	return p, nil
}

// Port returns the local listen port (zero for capture proxies).
func (p *Proxy) Port() int { return p.port }

// Done is closed when the proxy has finished, successfully or not.
func (p *Proxy) Done() <-chan struct{} { return p.done }

// Counters returns bytes sent to the receiver, acknowledged by it, and
// received from the sender.
func (p *Proxy) Counters() (sent, ackd, rcvd int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sent, p.ackd, p.rcvd
}

// Close tears the proxy down without firing the rejection callback. Used
// when the owning session dies.
func (p *Proxy) Close() {
	p.finish(false, "")
}

// runSender dials the offering peer and drives the inbound stream.
func (p *Proxy) runSender() {
	conn, err := dialInRange(p.cfg.RemoteAddr, p.cfg.PortLow, p.cfg.PortHigh, dialTimeout(p.cfg.Timeout))
	if err != nil {
		log.WithError(err).WithField("remote", p.cfg.RemoteAddr).Debug("dcc dial failed")
		p.finish(true, "Connection failed")
		return
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		conn.Close()
		return
	}
	p.senderConn = conn
	p.sender.connected = true
	p.mu.Unlock()

	switch p.cfg.Type {
	case TypeChat:
		p.bridgeChat()
	case TypeSendCapture:
		p.capture(conn)
	default:
		p.pumpSender(conn)
	}
}

func dialTimeout(t time.Duration) time.Duration {
	if t > 0 {
		return t
	}
	return 30 * time.Second
}

// runSendee waits for the rewritten offer's recipient to connect.
func (p *Proxy) runSendee() {
	conn, err := p.ln.Accept()
	p.ln.Close()
	if err != nil {
		return
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		conn.Close()
		return
	}
	p.sendeeConn = conn
	p.sendee.connected = true
	p.cond.Broadcast()
	p.mu.Unlock()

	switch p.cfg.Type {
	case TypeChat:
		p.bridgeChat()
	default:
		go p.readAcks(conn)
		p.pumpSendee(conn)
	}
}

// bridgeChat starts the bidirectional relay once both ends are up. Called
// from both connection paths; only the call that sees both conns acts.
func (p *Proxy) bridgeChat() {
	p.mu.Lock()
	a, b := p.senderConn, p.sendeeConn
	if a == nil || b == nil || p.sender.active {
		p.mu.Unlock()
		return
	}
	p.sender.active = true
	p.sendee.active = true
	p.mu.Unlock()

	var once sync.Once
	halt := func() { once.Do(func() { p.finish(false, "") }) }
	go func() {
		n, _ := io.Copy(a, b)
		metrics.DCCBytes.Add(float64(n))
		halt()
	}()
	go func() {
		n, _ := io.Copy(b, a)
		metrics.DCCBytes.Add(float64(n))
		halt()
	}()
}

// pumpSender reads the file stream from the offering peer, acknowledges
// every read, and queues the bytes for the receiver.
func (p *Proxy) pumpSender(conn net.Conn) {
	buf := make([]byte, readBufSize)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			p.mu.Lock()
			p.rcvd += int64(n)
			p.sender.active = true
			total := p.rcvd
			p.mu.Unlock()

			p.writeAck(conn, total)

			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			select {
			case p.out <- chunk:
			case <-p.done:
				return
			}
		}
		if err != nil {
			p.mu.Lock()
			if len(p.out) > 0 || p.sendeeConn == nil {
				p.sender.gone = true
			}
			p.mu.Unlock()
			close(p.out)
			return
		}
	}
}

func (p *Proxy) writeAck(conn net.Conn, total int64) {
	var ack [4]byte
	binary.BigEndian.PutUint32(ack[:], uint32(total))
	conn.Write(ack[:])
}

// pumpSendee drains queued bytes to the receiver. Simple mode writes one
// block and waits for the acknowledgement counter to catch up; fast mode
// writes as fast as the socket allows.
func (p *Proxy) pumpSendee(conn net.Conn) {
	for {
		var chunk []byte
		var ok bool
		select {
		case chunk, ok = <-p.out:
		case <-p.done:
			return
		}
		if !ok {
			break
		}
		for len(chunk) > 0 {
			n := len(chunk)
			if p.cfg.Type == TypeSendSimple && n > BlockSize {
				n = BlockSize
			}
			written, err := conn.Write(chunk[:n])
			if written > 0 {
				metrics.DCCBytes.Add(float64(written))
				p.mu.Lock()
				p.sent += int64(written)
				p.sendee.active = true
				if p.cfg.Type == TypeSendSimple {
					for !p.closed && p.ackd < p.sent {
						p.cond.Wait()
					}
				}
				stop := p.closed
				p.mu.Unlock()
				if stop {
					return
				}
			}
			if err != nil {
				p.finish(true, "Connection lost")
				return
			}
			chunk = chunk[written:]
		}
	}
	// sender stream fully delivered
	p.finish(false, "")
}

// readAcks consumes the receiver's 4-byte running totals.
func (p *Proxy) readAcks(conn net.Conn) {
	var buf [4]byte
	for {
		if _, err := io.ReadFull(conn, buf[:]); err != nil {
			return
		}
		p.mu.Lock()
		p.ackd = int64(binary.BigEndian.Uint32(buf[:]))
		p.cond.Broadcast()
		p.mu.Unlock()
	}
}

// capture appends the inbound stream to the capture file, resuming at the
// configured offset. Exceeding the size cap unlinks the partial file.
func (p *Proxy) capture(conn net.Conn) {
	f, err := os.OpenFile(p.cfg.CapturePath, os.O_WRONLY|os.O_CREATE, 0600)
	if err != nil {
		log.WithError(err).Warn("dcc capture open failed")
		p.finish(true, "Capture failed")
		return
	}
	if err := f.Truncate(p.cfg.ResumeOffset); err != nil {
		f.Close()
		p.finish(true, "Capture failed")
		return
	}
	if _, err := f.Seek(p.cfg.ResumeOffset, 0); err != nil {
		f.Close()
		p.finish(true, "Capture failed")
		return
	}
	defer f.Close()

	total := p.cfg.ResumeOffset
	buf := make([]byte, readBufSize)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			if _, werr := f.Write(buf[:n]); werr != nil {
				p.finish(true, "Capture failed")
				return
			}
			total += int64(n)
			metrics.DCCBytes.Add(float64(n))

			p.mu.Lock()
			p.rcvd += int64(n)
			p.sender.active = true
			session := p.rcvd
			p.mu.Unlock()
			p.writeAck(conn, session)

			if p.cfg.CaptureMax > 0 && total > p.cfg.CaptureMax {
				f.Close()
				os.Remove(p.cfg.CapturePath)
				p.finish(true, "Too big")
				return
			}
		}
		if err != nil {
			p.finish(false, "")
			return
		}
	}
}

// onTimeout enforces the completion deadline.
func (p *Proxy) onTimeout() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	// sender delivered everything and the receiver is still draining
	if p.sender.gone && p.sendee.connected {
		p.mu.Unlock()
		return
	}
	if p.sender.active && p.sendee.connected {
		p.mu.Unlock()
		return
	}
	notify := p.cfg.Type == TypeChat && p.senderConn != nil
	conn := p.senderConn
	p.mu.Unlock()

	if notify && p.cfg.RejectMsg != "" {
		fmt.Fprintf(conn, "%s\r\n", p.cfg.RejectMsg)
	}
	p.finish(true, p.cfg.RejectMsg)
}

// finish tears everything down exactly once; reject selects whether the
// owner's rejection callback fires.
func (p *Proxy) finish(reject bool, msg string) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.cond.Broadcast()
	senderConn, sendeeConn, ln := p.senderConn, p.sendeeConn, p.ln
	p.mu.Unlock()

	if p.timer != nil {
		p.timer.Stop()
	}
	if ln != nil {
		ln.Close()
	}
	if senderConn != nil {
		senderConn.Close()
	}
	if sendeeConn != nil {
		sendeeConn.Close()
	}
	close(p.done)

	if reject && p.cfg.OnReject != nil {
		if msg == "" {
			msg = p.cfg.RejectMsg
		}
		p.cfg.OnReject(msg)
	}
}
