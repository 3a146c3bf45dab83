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

import "net"

// Session events. Everything that can touch session state arrives on the
// session's event channel and is handled by the one loop goroutine, so
// state mutation is serialized by construction.
type event interface{ isEvent() }

// evLine is a framed line from one leg of the proxy.
type evLine struct {
	from *lineConn
	line string
}

// evGone is a terminal read error or EOF on one leg.
type evGone struct {
	from *lineConn
	err  error
}

// evTimer is a named one-shot timer firing.
type evTimer struct {
	name string
}

// evResolved is a DNS reply; fn runs on the loop goroutine.
type evResolved struct {
	fn func()
}

// evServerConn reports the outcome of an upstream dial.
type evServerConn struct {
	conn net.Conn
	err  error
}

// evControl is a closure posted by the registry or another session,
// executed on the loop goroutine.
type evControl struct {
	fn func()
}

func (evLine) isEvent()       {}
func (evGone) isEvent()       {}
func (evTimer) isEvent()      {}
func (evResolved) isEvent()   {}
func (evServerConn) isEvent() {}
func (evControl) isEvent()    {}
