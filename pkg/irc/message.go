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

// Package irc implements the IRC wire codec used by the bouncer: message
// parsing and formatting per RFC 1459/2812, CTCP extraction and quoting,
// DCC offer encoding, case folding, and hostmask matching.
package irc

import (
	"strings"
)

const (
	prefixByte byte = ':'
	userByte   byte = '!'
	hostByte   byte = '@'
	spaceByte  byte = ' '

	// maximum message length on the wire, excluding CRLF
	maxLength = 510
)

// LooseParamSpacing selects RFC 1459 parameter separation (one or more
// spaces between parameters) instead of the RFC 2812 single space. The
// default matches modern server behavior.
var LooseParamSpacing = false

// Prefix is the source of a message: <servername> | <nick>[!<user>][@<host>].
type Prefix struct {
	Name string // nick or server name
	User string
	Host string
}

// ParsePrefix splits a raw prefix into nick/user/host parts.
func ParsePrefix(raw string) *Prefix {
	p := &Prefix{}

	user := strings.IndexByte(raw, userByte)
	host := strings.IndexByte(raw, hostByte)

	switch {
	case user > 0 && host > user:
		p.Name = raw[:user]
		p.User = raw[user+1 : host]
		p.Host = raw[host+1:]
	case user > 0:
		p.Name = raw[:user]
		p.User = raw[user+1:]
	case host > 0:
		p.Name = raw[:host]
		p.Host = raw[host+1:]
	default:
		p.Name = raw
	}

	return p
}

// String returns the wire form of the prefix, without the leading colon.
func (p *Prefix) String() string {
	s := p.Name
	if len(p.User) > 0 {
		s += string(userByte) + p.User
	}
	if len(p.Host) > 0 {
		s += string(hostByte) + p.Host
	}
	return s
}

// IsServer reports whether the prefix looks like a server name rather than
// a user hostmask.
func (p *Prefix) IsServer() bool {
	return len(p.User) == 0 && len(p.Host) == 0
}

// Message is a single parsed IRC protocol line.
type Message struct {
	Source        *Prefix  // nil when the line carried no prefix
	Command       string   // upper-cased command or numeric
	Params        []string // middle parameters
	Trailing      string   // trailing parameter, without the leading colon
	EmptyTrailing bool     // true when a trailing colon was present but empty
	Raw           string   // the original line as received, CRLF stripped
}

func cutset(r rune) bool {
	return r == '\r' || r == '\n'
}

// skipSpaces advances past one space, or a run of spaces when
// LooseParamSpacing is enabled.
func skipSpaces(raw string, i int) int {
	i++
	if LooseParamSpacing {
		for i < len(raw) && raw[i] == spaceByte {
			i++
		}
	}
	return i
}

func splitParams(s string) []string {
	if !LooseParamSpacing {
		return strings.Split(s, string(spaceByte))
	}
	return strings.FieldsFunc(s, func(r rune) bool { return r == ' ' })
}

// ParseMessage parses one raw IRC line. Returns nil if the line is empty or
// malformed beyond recovery; a bad line is dropped, never fatal.
func ParseMessage(raw string) *Message {
	raw = strings.TrimFunc(raw, cutset)
	if len(raw) < 2 {
		return nil
	}

	m := &Message{Raw: raw}
	i := 0

	if raw[0] == prefixByte {
		end := strings.IndexByte(raw, spaceByte)
		if end < 2 {
			return nil
		}
		m.Source = ParsePrefix(raw[1:end])
		i = skipSpaces(raw, end)
	}

	if i >= len(raw) {
		return nil
	}

	j := strings.IndexByte(raw[i:], spaceByte)
	if j < 0 {
		m.Command = strings.ToUpper(raw[i:])
		return m
	}
	j += i
	m.Command = strings.ToUpper(raw[i:j])
	i = skipSpaces(raw, j)

	rest := raw[i:]

	// The trailing parameter starts at a colon that either opens the
	// parameter list or follows a space.
	if len(rest) > 0 && rest[0] == prefixByte {
		m.Trailing = rest[1:]
		m.EmptyTrailing = len(m.Trailing) == 0
		return m
	}

	t := strings.Index(rest, " :")
	if t < 0 {
		m.Params = splitParams(rest)
		return m
	}

	m.Params = splitParams(rest[:t])
	m.Trailing = rest[t+2:]
	m.EmptyTrailing = len(m.Trailing) == 0
	return m
}

// Text returns the conventional message body: the trailing parameter if one
// exists, otherwise the last middle parameter.
func (m *Message) Text() string {
	if len(m.Trailing) > 0 || m.EmptyTrailing {
		return m.Trailing
	}
	if len(m.Params) > 0 {
		return m.Params[len(m.Params)-1]
	}
	return ""
}

// Param returns parameter i or the empty string.
func (m *Message) Param(i int) string {
	if i < 0 || i >= len(m.Params) {
		return ""
	}
	return m.Params[i]
}

// String formats the message back to its wire form, without CRLF. The
// result of ParseMessage round-trips through String for any message with
// single-space parameter separation.
func (m *Message) String() string {
	var sb strings.Builder

	if m.Source != nil {
		sb.WriteByte(prefixByte)
		sb.WriteString(m.Source.String())
		sb.WriteByte(spaceByte)
	}

	sb.WriteString(m.Command)

	for _, p := range m.Params {
		sb.WriteByte(spaceByte)
		sb.WriteString(p)
	}

	if len(m.Trailing) > 0 || m.EmptyTrailing {
		sb.WriteByte(spaceByte)
		sb.WriteByte(prefixByte)
		sb.WriteString(m.Trailing)
	}

	s := sb.String()
	if len(s) > maxLength {
		s = s[:maxLength]
	}
	return s
}

// Format builds a message line from parts. The final argument becomes the
// trailing parameter when it contains a space, starts with a colon, or is
// empty.
func Format(command string, params ...string) string {
	m := &Message{Command: command}
	if n := len(params); n > 0 {
		last := params[n-1]
		if last == "" || strings.ContainsRune(last, ' ') || strings.HasPrefix(last, ":") {
			m.Params = params[:n-1]
			m.Trailing = last
			m.EmptyTrailing = last == ""
		} else {
			m.Params = params
		}
	}
	return m.String()
}

// FormatFrom is Format with an explicit source prefix.
func FormatFrom(source *Prefix, command string, params ...string) string {
	line := Format(command, params...)
	if source == nil {
		return line
	}
	return ":" + source.String() + " " + line
}
