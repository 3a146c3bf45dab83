package bouncer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// TestTimerSetOnceInFlight verifies that a pending name rejects a second
// Add.
func TestTimerSetOnceInFlight(t *testing.T) {
	ts := newTimerSet(func(string) {})
	defer ts.DelAll()

	assert.True(t, ts.Add("recon", time.Hour))
	assert.False(t, ts.Add("recon", time.Millisecond))
	assert.True(t, ts.Has("recon"))

	ts.Del("recon")
	assert.False(t, ts.Has("recon"))
	assert.True(t, ts.Add("recon", time.Hour))
}

// TestTimerSetFires verifies the callback gets the timer name and the
// entry is cleared before the fire.
func TestTimerSetFires(t *testing.T) {
	fired := make(chan string, 1)
	var ts *timerSet
	ts = newTimerSet(func(name string) {
		assert.False(t, ts.Has(name))
		fired <- name
	})
	defer ts.DelAll()

	ts.Add("ping", 10*time.Millisecond)
	select {
	case name := <-fired:
		assert.Equal(t, "ping", name)
	case <-time.After(time.Second):
		t.Fatal("timer never fired")
	}
}

// TestTimerSetDelPreventsFire verifies a cancelled timer stays silent.
func TestTimerSetDelPreventsFire(t *testing.T) {
	fired := make(chan string, 1)
	ts := newTimerSet(func(name string) { fired <- name })

	ts.Add("stoned", 20*time.Millisecond)
	ts.Del("stoned")

	select {
	case name := <-fired:
		t.Fatalf("cancelled timer %q fired", name)
	case <-time.After(100 * time.Millisecond):
	}
}

// TestTimerSetDelAll verifies teardown cancels everything at once.
func TestTimerSetDelAll(t *testing.T) {
	fired := make(chan string, 8)
	ts := newTimerSet(func(name string) { fired <- name })

	ts.Add("a", 20*time.Millisecond)
	ts.Add("b", 20*time.Millisecond)
	ts.Add("c", 20*time.Millisecond)
	ts.DelAll()

	assert.False(t, ts.Has("a"))
	assert.False(t, ts.Has("b"))
	assert.False(t, ts.Has("c"))
	select {
	case name := <-fired:
		t.Fatalf("timer %q fired after DelAll", name)
	case <-time.After(100 * time.Millisecond):
	}
}
