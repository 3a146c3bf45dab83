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
package bouncer

import (
	"bufio"
	"bytes"
	"net"
	"sync"
	"time"
)

// lineConn wraps one leg of the proxy: a reader goroutine frames inbound
// lines and delivers them as events; a writer goroutine drains an
// ordinary and an urgent queue. Lines are written whole, so an urgent
// insertion never splits a line already going out. An optional throttle
// caps bytes written per period.
type lineConn struct {
	conn net.Conn

	mu       sync.Mutex
	cond     *sync.Cond
	ordinary [][]byte
	urgent   [][]byte
	closed   bool
	deliver  func(event)

	throttleBytes  int
	throttlePeriod time.Duration
}

func newLineConn(conn net.Conn, deliver func(event)) *lineConn {
	c := &lineConn{conn: conn, deliver: deliver}
	c.cond = sync.NewCond(&c.mu)
	go c.readLoop()
	go c.writeLoop()
	return c
}

// setThrottle configures the byte/period cap. Zero bytes disables.
func (c *lineConn) setThrottle(bytes int, period time.Duration) {
	c.mu.Lock()
	c.throttleBytes = bytes
	c.throttlePeriod = period
	c.mu.Unlock()
}

// retarget swaps the event sink, used when a connection is handed to
// another session on attach.
func (c *lineConn) retarget(deliver func(event)) {
	c.mu.Lock()
	c.deliver = deliver
	c.mu.Unlock()
}

func (c *lineConn) sink() func(event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.deliver
}

// send queues a line for ordinary delivery. The CRLF is appended here.
func (c *lineConn) send(line string) {
	c.enqueue(line, false)
}

// sendUrgent queues a line ahead of all ordinary traffic.
func (c *lineConn) sendUrgent(line string) {
	c.enqueue(line, true)
}

func (c *lineConn) enqueue(line string, urgent bool) {
	b := append([]byte(line), '\r', '\n')
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	if urgent {
		c.urgent = append(c.urgent, b)
	} else {
		c.ordinary = append(c.ordinary, b)
	}
	c.cond.Broadcast()
	c.mu.Unlock()
}

// close shuts the connection down after letting queued output drain.
// The writer owns the socket close so a final ERROR line is never cut
// off; the write deadline bounds the drain. Idempotent.
func (c *lineConn) close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.cond.Broadcast()
	c.mu.Unlock()

	c.conn.SetWriteDeadline(time.Now().Add(2 * time.Second))
}

func (c *lineConn) remoteAddr() net.Addr { return c.conn.RemoteAddr() }
func (c *lineConn) localAddr() net.Addr  { return c.conn.LocalAddr() }

// readLoop frames inbound lines on LF, trimming a trailing CR, and posts
// them to the owning session.
func (c *lineConn) readLoop() {
	sc := bufio.NewScanner(c.conn)
	sc.Buffer(make([]byte, 0, 4096), 64*1024)
	sc.Split(scanIRCLines)
	for sc.Scan() {
		c.sink()(evLine{from: c, line: sc.Text()})
	}
	c.sink()(evGone{from: c, err: sc.Err()})
}

// scanIRCLines splits on LF and strips the optional preceding CR.
func scanIRCLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		return i + 1, bytes.TrimSuffix(data[:i], []byte{'\r'}), nil
	}
	if atEOF && len(data) > 0 {
		return len(data), bytes.TrimSuffix(data, []byte{'\r'}), nil
	}
	return 0, nil, nil
}

// writeLoop drains the queues, urgent first, one whole line at a time.
// It closes the socket itself once the conn is closed and both queues
// are empty, so queued farewell lines reach the peer.
func (c *lineConn) writeLoop() {
	var windowStart time.Time
	var windowBytes int

	for {
		c.mu.Lock()
		for !c.closed && len(c.urgent) == 0 && len(c.ordinary) == 0 {
			c.cond.Wait()
		}
		if c.closed && len(c.urgent) == 0 && len(c.ordinary) == 0 {
			c.mu.Unlock()
			c.conn.Close()
			return
		}
		var line []byte
		if len(c.urgent) > 0 {
			line = c.urgent[0]
			c.urgent = c.urgent[1:]
		} else {
			line = c.ordinary[0]
			c.ordinary = c.ordinary[1:]
		}
		tbytes, tperiod := c.throttleBytes, c.throttlePeriod
		closed := c.closed
		c.mu.Unlock()

		if tbytes > 0 && tperiod > 0 {
			now := time.Now()
			if now.Sub(windowStart) >= tperiod {
				windowStart = now
				windowBytes = 0
			}
			// charge before writing: a line that would overflow the
			// window waits for the next one
			if windowBytes > 0 && windowBytes+len(line) > tbytes {
				sleep := tperiod - now.Sub(windowStart)
				if sleep > 0 && !closed {
					time.Sleep(sleep)
				}
				windowStart = time.Now()
				windowBytes = 0
			}
			windowBytes += len(line)
		}

		if _, err := c.conn.Write(line); err != nil {
			c.conn.Close()
			return
		}
		if closed {
			c.mu.Lock()
			drained := len(c.urgent) == 0 && len(c.ordinary) == 0
			c.mu.Unlock()
			if drained {
				c.conn.Close()
				return
			}
		}
	}
}
