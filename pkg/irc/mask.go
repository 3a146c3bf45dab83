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

// Match reports whether text matches a hostmask pattern. '*' matches any
// run of characters, '?' exactly one. Comparison uses RFC 1459 case
// folding. The scan is iterative with a single backtrack point per '*',
// so pathological patterns like "*a*a*a*a*b" stay linear in practice.
func Match(pattern, text string) bool {
	var p, t int
	star, mark := -1, 0

	for t < len(text) {
		switch {
		case p < len(pattern) && (pattern[p] == '?' || lowerByte(pattern[p]) == lowerByte(text[t])):
			p++
			t++
		case p < len(pattern) && pattern[p] == '*':
			star = p
			mark = t
			p++
		case star >= 0:
			p = star + 1
			mark++
			t = mark
		default:
			return false
		}
	}

	for p < len(pattern) && pattern[p] == '*' {
		p++
	}
	return p == len(pattern)
}

// Masks is a pre-checked list of hostmask patterns, used for connection
// class host restrictions.
type Masks []string

// MatchAny reports whether any of the candidate strings matches at least
// one pattern. An empty mask list matches nothing.
func (m Masks) MatchAny(candidates ...string) bool {
	for _, pat := range m {
		for _, c := range candidates {
			if c != "" && Match(pat, c) {
				return true
			}
		}
	}
	return false
}
