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
package irc

import "strings"

// ctcpDelim frames CTCP payloads inside PRIVMSG/NOTICE bodies.
const ctcpDelim byte = 0x01

// CTCP is one extracted client-to-client payload.
type CTCP struct {
	Command string // upper-cased tag, e.g. PING, ACTION, DCC
	Args    string // raw arguments after the tag, dequoted
}

// SplitCTCP extracts every \x01-delimited payload from a message body and
// returns the remaining plain text with the payloads removed. The plain
// text framing outside the payloads is preserved byte for byte, so the
// surrounding message can be reassembled around rewritten payloads.
func SplitCTCP(text string) (plain string, payloads []CTCP) {
	var sb strings.Builder

	for {
		start := strings.IndexByte(text, ctcpDelim)
		if start < 0 {
			sb.WriteString(text)
			break
		}
		end := strings.IndexByte(text[start+1:], ctcpDelim)
		if end < 0 {
			// Unterminated payload: treat the rest as a payload, per the
			// CTCP spec's lenient reading.
			sb.WriteString(text[:start])
			if body := text[start+1:]; body != "" {
				payloads = append(payloads, parseCTCPBody(body))
			}
			break
		}
		end += start + 1

		sb.WriteString(text[:start])
		if body := text[start+1 : end]; body != "" {
			payloads = append(payloads, parseCTCPBody(body))
		}
		text = text[end+1:]
	}

	return sb.String(), payloads
}

func parseCTCPBody(body string) CTCP {
	body = ctcpDequote(body)
	cmd, args, ok := strings.Cut(body, " ")
	c := CTCP{Command: strings.ToUpper(cmd)}
	if ok {
		c.Args = args
	}
	return c
}

// RewriteCTCP walks a message body and passes each payload to fn, which
// returns the replacement payload body (without delimiters) and whether
// to keep it at all. Text outside the payloads is preserved byte for
// byte.
func RewriteCTCP(text string, fn func(CTCP) (string, bool)) string {
	var sb strings.Builder

	for {
		start := strings.IndexByte(text, ctcpDelim)
		if start < 0 {
			sb.WriteString(text)
			break
		}
		end := strings.IndexByte(text[start+1:], ctcpDelim)
		sb.WriteString(text[:start])
		var body, rest string
		if end < 0 {
			body, rest = text[start+1:], ""
		} else {
			end += start + 1
			body, rest = text[start+1:end], text[end+1:]
		}
		if body != "" {
			if replacement, keep := fn(parseCTCPBody(body)); keep {
				sb.WriteByte(ctcpDelim)
				sb.WriteString(replacement)
				sb.WriteByte(ctcpDelim)
			}
		}
		if rest == "" {
			break
		}
		text = rest
	}

	return sb.String()
}

// EncodeCTCP frames a payload for embedding into a PRIVMSG/NOTICE body.
func EncodeCTCP(command, args string) string {
	s := string(ctcpDelim) + command
	if args != "" {
		s += " " + args
	}
	return s + string(ctcpDelim)
}

// String returns the framed wire form of the payload.
func (c CTCP) String() string {
	return EncodeCTCP(c.Command, c.Args)
}

// ctcpDequote undoes CTCP backslash quoting: `\a` is the payload delimiter
// and `\\` a literal backslash. Unknown escapes keep the escaped byte.
func ctcpDequote(s string) string {
	if !strings.ContainsRune(s, '\\') {
		return s
	}
	var sb strings.Builder
	sb.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] != '\\' || i+1 >= len(s) {
			sb.WriteByte(s[i])
			continue
		}
		i++
		switch s[i] {
		case 'a':
			sb.WriteByte(ctcpDelim)
		default:
			sb.WriteByte(s[i])
		}
	}
	return sb.String()
}
