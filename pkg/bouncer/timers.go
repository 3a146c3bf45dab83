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

import (
	"sync"
	"time"
)

// timerSet is a session's named one-shot timers. A name can be pending at
// most once: Add on a pending name is a no-op, which is used pervasively
// as a once-in-flight guard (the reconnect timer in particular).
type timerSet struct {
	mu     sync.Mutex
	timers map[string]*time.Timer
	fire   func(name string)
}

func newTimerSet(fire func(name string)) *timerSet {
	return &timerSet{timers: make(map[string]*time.Timer), fire: fire}
}

// Add arms a timer. Returns false if the name is already pending.
func (t *timerSet) Add(name string, d time.Duration) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.timers[name]; exists {
		return false
	}
	t.timers[name] = time.AfterFunc(d, func() {
		t.mu.Lock()
		_, pending := t.timers[name]
		delete(t.timers, name)
		t.mu.Unlock()
		// a Del that raced the firing wins
		if pending {
			t.fire(name)
		}
	})
	return true
}

// Has reports whether a timer is pending.
func (t *timerSet) Has(name string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.timers[name]
	return ok
}

// Del cancels a pending timer.
func (t *timerSet) Del(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if tm, ok := t.timers[name]; ok {
		tm.Stop()
		delete(t.timers, name)
	}
}

// DelAll cancels everything; called once during session teardown.
func (t *timerSet) DelAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for name, tm := range t.timers {
		tm.Stop()
		delete(t.timers, name)
	}
}
