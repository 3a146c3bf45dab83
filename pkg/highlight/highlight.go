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

// Package highlight marks up replayed log text with mIRC formatting
// codes. Live traffic is never touched; only messages recalled from the
// logs on attach pass through here, so a missed mention stands out in
// the backlog.
package highlight

import (
	"path/filepath"
	"regexp"
	"strings"

	"github.com/bitcanon/ircbounce/pkg/config"
)

const (
	ircColor = "\x03"
	ircBold  = "\x02"
	ircUnder = "\x1F"
	ircReset = "\x0F"
)

type Highlighter struct {
	rules []rule
}

type rule struct {
	re        *regexp.Regexp
	style     string
	wholeLine bool
	includes  []string
	excludes  []string
}

// New compiles the configured rules. Rules with empty or invalid
// patterns are skipped. Returns nil when nothing compiles, and a nil
// Highlighter passes text through untouched.
func New(rules []config.HighlightRule) *Highlighter {
	var hl Highlighter
	for _, rc := range rules {
		re := compilePattern(rc)
		if re == nil {
			continue
		}
		r := rule{
			re:        re,
			style:     buildStyle(rc),
			wholeLine: bool(rc.WholeLine),
		}
		for _, p := range rc.Channels {
			if p = strings.TrimSpace(p); p != "" {
				r.includes = append(r.includes, strings.ToLower(p))
			}
		}
		for _, p := range rc.ExcludeChannels {
			if p = strings.TrimSpace(p); p != "" {
				r.excludes = append(r.excludes, strings.ToLower(p))
			}
		}
		hl.rules = append(hl.rules, r)
	}
	if len(hl.rules) == 0 {
		return nil
	}
	return &hl
}

// Apply marks up text recalled for the given target. The target is the
// channel the backlog belongs to, or a nickname for private logs; rules
// with channel filters never match nickname targets.
func (h *Highlighter) Apply(target, text string) string {
	if h == nil || text == "" {
		return text
	}
	tgt := strings.ToLower(strings.TrimSpace(target))
	if !strings.HasPrefix(tgt, "#") && !strings.HasPrefix(tgt, "&") {
		tgt = ""
	}

	for _, r := range h.rules {
		if !r.appliesTo(tgt) {
			continue
		}
		if r.wholeLine && r.re.MatchString(text) {
			return r.style + text + ircReset
		}
	}

	out := text
	for _, r := range h.rules {
		if r.wholeLine || !r.appliesTo(tgt) {
			continue
		}
		out = r.re.ReplaceAllStringFunc(out, func(m string) string {
			return r.style + m + ircReset
		})
	}
	return out
}

func (r rule) appliesTo(target string) bool {
	// No channel context: only unfiltered rules apply.
	if target == "" {
		return len(r.includes) == 0 && len(r.excludes) == 0
	}
	for _, ex := range r.excludes {
		if globMatch(ex, target) {
			return false
		}
	}
	if len(r.includes) == 0 {
		return true
	}
	for _, in := range r.includes {
		if globMatch(in, target) {
			return true
		}
	}
	return false
}

func globMatch(pattern, name string) bool {
	ok, err := filepath.Match(pattern, name)
	if err != nil {
		// invalid pattern never matches
		return false
	}
	return ok
}

func compilePattern(rc config.HighlightRule) *regexp.Regexp {
	pat := strings.TrimSpace(rc.Pattern)
	if pat == "" {
		return nil
	}
	switch strings.ToLower(rc.Kind) {
	case "regex":
	case "word", "":
		pat = `\b` + regexp.QuoteMeta(pat) + `\b`
	default:
		return nil
	}
	if bool(rc.CaseInsensitive) && !strings.HasPrefix(pat, "(?i)") {
		pat = "(?i)" + pat
	}
	re, err := regexp.Compile(pat)
	if err != nil {
		return nil
	}
	return re
}

func buildStyle(rc config.HighlightRule) string {
	var b strings.Builder
	if rc.Bold {
		b.WriteString(ircBold)
	}
	if rc.Underline {
		b.WriteString(ircUnder)
	}
	if code := colorCode(rc.Color); code != "" {
		b.WriteString(ircColor)
		b.WriteString(code)
	}
	if b.Len() == 0 {
		// styleless rule still stands out
		b.WriteString(ircBold)
	}
	return b.String()
}

// colorCode maps a color name or numeric mIRC code to its two-digit
// wire form, accepting "fg,bg" numeric pairs.
func colorCode(name string) string {
	n := strings.TrimSpace(strings.ToLower(name))
	if n == "" {
		return ""
	}
	if isNumeric(n) {
		return padNumeric(n)
	}
	switch n {
	case "white":
		return "00"
	case "black":
		return "01"
	case "blue", "navy":
		return "02"
	case "green":
		return "03"
	case "red":
		return "04"
	case "brown", "maroon":
		return "05"
	case "purple":
		return "06"
	case "orange", "olive":
		return "07"
	case "yellow":
		return "08"
	case "lightgreen", "lime":
		return "09"
	case "teal", "cyan":
		return "10"
	case "lightcyan", "aqua":
		return "11"
	case "lightblue", "royal":
		return "12"
	case "pink", "fuchsia":
		return "13"
	case "grey", "gray":
		return "14"
	case "lightgrey", "lightgray", "silver":
		return "15"
	}
	return ""
}

func isNumeric(s string) bool {
	for _, ch := range s {
		if (ch < '0' || ch > '9') && ch != ',' {
			return false
		}
	}
	return true
}

func padNumeric(s string) string {
	parts := strings.Split(s, ",")
	for i, p := range parts {
		switch {
		case len(p) == 1:
			parts[i] = "0" + p
		case len(p) > 2:
			parts[i] = p[:2]
		}
	}
	return strings.Join(parts, ",")
}
