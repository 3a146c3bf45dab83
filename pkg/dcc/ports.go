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
package dcc

import (
	"errors"
	"fmt"
	"net"
	"os"
	"syscall"
	"time"
)

// listenInRange opens a TCP listener on the first free port of [lo,hi].
// A zero range means any free port.
func listenInRange(lo, hi int) (net.Listener, error) {
	if lo == 0 {
		return net.Listen("tcp", ":0")
	}
	for port := lo; port <= hi; port++ {
		ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
		if err == nil {
			return ln, nil
		}
	}
	return nil, fmt.Errorf("dcc: no free port in %d-%d", lo, hi)
}

// dialInRange dials remote from a local port in [lo,hi], scanning like
// listenInRange. A zero range means any local port. Only a local bind
// conflict moves the scan on; remote failures are final.
func dialInRange(remote string, lo, hi int, timeout time.Duration) (net.Conn, error) {
	if lo == 0 {
		return net.DialTimeout("tcp", remote, timeout)
	}
	for port := lo; port <= hi; port++ {
		d := net.Dialer{
			Timeout:   timeout,
			LocalAddr: &net.TCPAddr{Port: port},
		}
		conn, err := d.Dial("tcp", remote)
		if err == nil {
			return conn, nil
		}
		if errors.Is(err, syscall.EADDRINUSE) {
			continue
		}
		return nil, err
	}
	return nil, fmt.Errorf("dcc: no free port in %d-%d", lo, hi)
}

// UniqueName finds an unused "path.N" variant, used when a timed-out
// capture target must be set aside for a fresh transfer.
func UniqueName(path string) string {
	for n := 1; ; n++ {
		candidate := fmt.Sprintf("%s.%d", path, n)
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate
		}
	}
}
