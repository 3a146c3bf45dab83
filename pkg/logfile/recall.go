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
package logfile

import "time"

// Age thresholds above which recall timestamps lose precision.
const (
	ageDay  = 23 * time.Hour
	ageWeek = 6 * 24 * time.Hour
	ageYear = 300 * 24 * time.Hour
)

// Timestamp renders an entry time for recall. Recent entries get the bare
// clock; the older the entry, the coarser the format.
func Timestamp(t, now time.Time) string {
	age := now.Sub(t)
	switch {
	case age <= ageDay:
		return t.Format("[15:04]")
	case age <= ageWeek:
		return t.Format("[Mon 15:04]")
	case age <= ageYear:
		return t.Format("[02 Jan]")
	}
	return t.Format("[02 Jan 2006]")
}
