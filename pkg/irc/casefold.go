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

// ToLower folds a string per RFC 1459 case mapping: in addition to ASCII,
// "[]\~" are the upper-case forms of "{}|^".
func ToLower(s string) string {
	var sb strings.Builder
	sb.Grow(len(s))
	for i := 0; i < len(s); i++ {
		sb.WriteByte(lowerByte(s[i]))
	}
	return sb.String()
}

func lowerByte(c byte) byte {
	switch {
	case c >= 'A' && c <= 'Z':
		return c + ('a' - 'A')
	case c == '[':
		return '{'
	case c == ']':
		return '}'
	case c == '\\':
		return '|'
	case c == '~':
		return '^'
	}
	return c
}

// Equal compares two strings under RFC 1459 case folding.
func Equal(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		if lowerByte(a[i]) != lowerByte(b[i]) {
			return false
		}
	}
	return true
}

// IsChannel reports whether name looks like a channel target.
func IsChannel(name string) bool {
	if len(name) < 2 {
		return false
	}
	switch name[0] {
	case '#', '&', '+', '!':
	default:
		return false
	}
	return !strings.ContainsAny(name, " ,\x00\x07")
}

// IsValidNick checks a nickname for characters a server would accept.
func IsValidNick(nick string) bool {
	if len(nick) < 1 {
		return false
	}
	if nick[0] < 'A' || nick[0] > '}' {
		return false
	}
	for i := 0; i < len(nick); i++ {
		c := nick[i]
		if (c >= 'A' && c <= '}') || (c >= '0' && c <= '9') || c == '-' {
			continue
		}
		return false
	}
	return true
}

// SanitizeUser strips characters that are not safe inside the USER field,
// keeping letters, digits and a small set of punctuation. An empty result
// falls back to "user".
func SanitizeUser(user string) string {
	var sb strings.Builder
	for i := 0; i < len(user); i++ {
		c := user[i]
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') ||
			(c >= '0' && c <= '9') || c == '-' || c == '_' || c == '.' {
			sb.WriteByte(c)
		}
	}
	if sb.Len() == 0 {
		return "user"
	}
	return sb.String()
}
