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

// maxNickLen is the classic server-side nickname limit the generator
// works within.
const maxNickLen = 9

// fallbackNick is the reset word when a generated nickname sequence is
// exhausted.
const fallbackNick = "bounced"

// nextNick derives a fresh nickname candidate from a rejected one. Short
// names grow a "-"; at the length limit the last character cycles through
// "-", "0".."9", "_", carrying leftwards, and a carry off the front
// resets to the fallback word. The sequence is deterministic, so repeated
// rejections walk distinct candidates.
func nextNick(current string) string {
	if current == "" {
		return fallbackNick
	}
	if len(current) < maxNickLen {
		return current + "-"
	}

	b := []byte(current)
	for i := len(b) - 1; i >= 0; i-- {
		c, carry := bumpNickChar(b[i])
		b[i] = c
		if !carry {
			return string(b)
		}
	}
	return fallbackNick
}

// bumpNickChar advances one position of the cycle. A character outside
// the cycle starts it; "_" wraps and carries into the next position left.
func bumpNickChar(c byte) (byte, bool) {
	switch {
	case c == '-':
		return '0', false
	case c >= '0' && c <= '8':
		return c + 1, false
	case c == '9':
		return '_', false
	case c == '_':
		return '-', true
	}
	return '-', false
}
