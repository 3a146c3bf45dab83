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

// Package logfile implements the bouncer's per-context traffic logs: an
// append-only entry stream with optional head-trimming rotation and a
// recall reader used to replay history to a reattaching client.
package logfile

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Entry is one logged event. Dest and Source are single IRC tokens
// (channel, nickname, or nick!user@host); Text is free-form.
type Entry struct {
	Time   time.Time
	Event  Event
	Dest   string
	Source string
	Text   string
}

// Line renders the entry in its on-disk form:
//
//	<unix_ts> <event> <dest> <source> <text>
func (e Entry) Line() string {
	return fmt.Sprintf("%d %s %s %s %s",
		e.Time.Unix(), e.Event, tok(e.Dest), tok(e.Source), e.Text)
}

// SourceNick returns the nickname part of the source, without any
// !user@host suffix.
func (e Entry) SourceNick() string {
	if i := strings.IndexByte(e.Source, '!'); i >= 0 {
		return e.Source[:i]
	}
	return e.Source
}

func tok(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func untok(s string) string {
	if s == "-" {
		return ""
	}
	return s
}

// ParseEntry parses one on-disk line. Returns false for lines that do not
// carry the five fields.
func ParseEntry(line string) (Entry, bool) {
	parts := strings.SplitN(line, " ", 5)
	if len(parts) < 4 {
		return Entry{}, false
	}
	ts, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return Entry{}, false
	}
	e := Entry{
		Time:   time.Unix(ts, 0),
		Event:  Event(parts[1]),
		Dest:   untok(parts[2]),
		Source: untok(parts[3]),
	}
	if len(parts) == 5 {
		e.Text = parts[4]
	}
	return e, true
}

// LogFile is an append-only log with an optional line cap. With a cap of
// m, rotation keeps the most recent m entries; the kept lines are always
// a contiguous suffix of the append sequence.
type LogFile struct {
	path     string
	maxLines int
	file     *os.File
	nlines   int
}

// New describes a log at path. MaxLines zero means no cap. The file is
// created lazily on first write.
func New(path string, maxLines int) *LogFile {
	return &LogFile{path: path, maxLines: maxLines}
}

// Path returns the on-disk location.
func (l *LogFile) Path() string { return l.path }

// Lines returns the current entry count.
func (l *LogFile) Lines() int { return l.nlines }

// IsOpen reports whether a writer descriptor is held.
func (l *LogFile) IsOpen() bool { return l.file != nil }

// Open opens (or creates) the file for appending and counts the entries
// already present.
func (l *LogFile) Open() error {
	if l.file != nil {
		return nil
	}
	f, err := os.OpenFile(l.path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0600)
	if err != nil {
		return fmt.Errorf("logfile: open %s: %w", l.path, err)
	}
	n, err := countLines(f)
	if err != nil {
		f.Close()
		return fmt.Errorf("logfile: %s: %w", l.path, err)
	}
	l.file = f
	l.nlines = n
	return nil
}

func countLines(f *os.File) (int, error) {
	if _, err := f.Seek(0, 0); err != nil {
		return 0, err
	}
	n := 0
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		n++
	}
	if err := sc.Err(); err != nil {
		return 0, err
	}
	_, err := f.Seek(0, 2)
	return n, err
}

// Close releases the writer descriptor. The file stays on disk for later
// recall.
func (l *LogFile) Close() error {
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

// Write appends one entry, rotating first if the cap is reached. The new
// entry is never lost to the rotation it triggered.
func (l *LogFile) Write(e Entry) error {
	if err := l.Open(); err != nil {
		return err
	}
	if l.maxLines > 0 && l.nlines >= l.maxLines {
		if err := l.rotate(l.maxLines - 1); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintln(l.file, e.Line()); err != nil {
		return fmt.Errorf("logfile: write %s: %w", l.path, err)
	}
	l.nlines++
	return nil
}

// rotate rewrites the file with only its last keep lines. The old file is
// replaced by rename so a concurrent reader holding the old descriptor
// still sees a complete file.
func (l *LogFile) rotate(keep int) error {
	lines, err := l.tailLines(keep)
	if err != nil {
		return err
	}

	tmp := l.path + ".rotate"
	f, err := os.OpenFile(tmp, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("logfile: rotate %s: %w", l.path, err)
	}
	for _, line := range lines {
		if _, err := fmt.Fprintln(f, line); err != nil {
			f.Close()
			os.Remove(tmp)
			return fmt.Errorf("logfile: rotate %s: %w", l.path, err)
		}
	}
	if err := os.Rename(tmp, l.path); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("logfile: rotate %s: %w", l.path, err)
	}

	l.file.Close()
	l.file = f
	l.nlines = len(lines)
	return nil
}

// tailLines reads the last n raw lines (all if n < 0).
func (l *LogFile) tailLines(n int) ([]string, error) {
	if n == 0 {
		return nil, nil
	}
	if _, err := l.file.Seek(0, 0); err != nil {
		return nil, err
	}
	var lines []string
	sc := bufio.NewScanner(l.file)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if _, err := l.file.Seek(0, 2); err != nil {
		return nil, err
	}
	if n > 0 && len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines, nil
}

// Recall returns up to n of the most recent entries (all if n < 0),
// optionally filtered by a source-nick predicate (nil keeps every
// entry). The caller supplies the predicate so IRC casemapping stays
// out of this package. Filtering happens before the count bound, so a
// filtered recall still yields n matching entries when the log holds
// that many.
func (l *LogFile) Recall(n int, match func(sourceNick string) bool) ([]Entry, error) {
	if n == 0 {
		return nil, nil
	}
	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("logfile: recall %s: %w", l.path, err)
	}
	defer f.Close()

	var entries []Entry
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		e, ok := ParseEntry(sc.Text())
		if !ok {
			continue
		}
		if match != nil && !match(e.SourceNick()) {
			continue
		}
		entries = append(entries, e)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("logfile: recall %s: %w", l.path, err)
	}
	if n > 0 && len(entries) > n {
		entries = entries[len(entries)-n:]
	}
	return entries, nil
}

// Remove closes and deletes the file.
func (l *LogFile) Remove() error {
	l.Close()
	err := os.Remove(l.path)
	l.nlines = 0
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
