package logfile

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bitcanon/ircbounce/pkg/irc"
)

func testEntry(i int, source string) Entry {
	return Entry{
		Time:   time.Unix(1700000000+int64(i), 0),
		Event:  EventMessage,
		Dest:   "#chan",
		Source: source,
		Text:   fmt.Sprintf("message %d", i),
	}
}

// TestWriteAndRecall verifies entries round trip through the file.
func TestWriteAndRecall(t *testing.T) {
	l := New(filepath.Join(t.TempDir(), "chan.log"), 0)

	for i := 0; i < 5; i++ {
		require.NoError(t, l.Write(testEntry(i, "alice!a@host")))
	}
	assert.Equal(t, 5, l.Lines())
	require.NoError(t, l.Close())

	entries, err := l.Recall(-1, nil)
	require.NoError(t, err)
	require.Len(t, entries, 5)

	assert.Equal(t, EventMessage, entries[0].Event)
	assert.Equal(t, "#chan", entries[0].Dest)
	assert.Equal(t, "alice!a@host", entries[0].Source)
	assert.Equal(t, "message 0", entries[0].Text)
	assert.Equal(t, int64(1700000000), entries[0].Time.Unix())
}

// TestRotation verifies the cap keeps a contiguous suffix and never
// drops the entry whose write triggered the rotation.
func TestRotation(t *testing.T) {
	l := New(filepath.Join(t.TempDir(), "chan.log"), 3)

	for i := 0; i < 10; i++ {
		require.NoError(t, l.Write(testEntry(i, "alice")))
		assert.LessOrEqual(t, l.Lines(), 3)
	}
	assert.Equal(t, 3, l.Lines())

	entries, err := l.Recall(-1, nil)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	for i, e := range entries {
		assert.Equal(t, fmt.Sprintf("message %d", 7+i), e.Text)
	}
}

// TestRecallCountAndFilter verifies the line bound and the nickname
// filter, including that filtering applies before the bound.
func TestRecallCountAndFilter(t *testing.T) {
	l := New(filepath.Join(t.TempDir(), "priv.log"), 0)

	for i := 0; i < 6; i++ {
		source := "alice!a@host"
		if i%2 == 1 {
			source = "bob!b@host"
		}
		e := testEntry(i, source)
		require.NoError(t, l.Write(e))
	}

	entries, err := l.Recall(2, nil)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "message 4", entries[0].Text)
	assert.Equal(t, "message 5", entries[1].Text)

	alice := func(nick string) bool { return irc.Equal(nick, "alice") }
	entries, err = l.Recall(3, alice)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	for _, e := range entries {
		assert.Equal(t, "alice", e.SourceNick())
	}

	entries, err = l.Recall(0, nil)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

// TestRecallFilterCasemapping verifies the predicate sees the raw nick,
// so a caller folding with IRC rules matches dan[] against dan{}.
func TestRecallFilterCasemapping(t *testing.T) {
	l := New(filepath.Join(t.TempDir(), "priv.log"), 0)
	require.NoError(t, l.Write(testEntry(0, "dan[]!d@host")))
	require.NoError(t, l.Write(testEntry(1, "eve!e@host")))

	match := func(nick string) bool { return irc.Equal(nick, "dan{}") }
	entries, err := l.Recall(-1, match)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "dan[]", entries[0].SourceNick())
}

// TestRecallMissingFile verifies a never-written log recalls as empty.
func TestRecallMissingFile(t *testing.T) {
	l := New(filepath.Join(t.TempDir(), "nothing.log"), 0)
	entries, err := l.Recall(-1, nil)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

// TestReopenCountsLines verifies an existing file is picked up with its
// line count intact.
func TestReopenCountsLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chan.log")

	l := New(path, 0)
	for i := 0; i < 4; i++ {
		require.NoError(t, l.Write(testEntry(i, "alice")))
	}
	require.NoError(t, l.Close())

	l2 := New(path, 0)
	require.NoError(t, l2.Open())
	assert.Equal(t, 4, l2.Lines())
	require.NoError(t, l2.Write(testEntry(4, "alice")))
	assert.Equal(t, 5, l2.Lines())
	l2.Close()
}

// TestParseEntry verifies parsing of on-disk lines, including the empty
// field placeholder.
func TestParseEntry(t *testing.T) {
	e, ok := ParseEntry("1700000000 msg #chan alice!a@host hello there")
	require.True(t, ok)
	assert.Equal(t, EventMessage, e.Event)
	assert.Equal(t, "#chan", e.Dest)
	assert.Equal(t, "alice", e.SourceNick())
	assert.Equal(t, "hello there", e.Text)

	e, ok = ParseEntry("1700000000 server - - Connection lost")
	require.True(t, ok)
	assert.Empty(t, e.Dest)
	assert.Empty(t, e.Source)
	assert.Equal(t, "Connection lost", e.Text)

	for _, line := range []string{"", "bad", "x msg a b c", "1700000000 msg"} {
		_, ok := ParseEntry(line)
		assert.False(t, ok, line)
	}
}

// TestEventSet verifies the all/none/±event selector grammar.
func TestEventSet(t *testing.T) {
	set, err := ParseEventSet("all")
	require.NoError(t, err)
	assert.True(t, set.Contains(EventMessage))
	assert.True(t, set.Contains(EventCTCP))

	set, err = ParseEventSet("all,-ctcp,-quit")
	require.NoError(t, err)
	assert.True(t, set.Contains(EventMessage))
	assert.False(t, set.Contains(EventCTCP))
	assert.False(t, set.Contains(EventQuit))

	set, err = ParseEventSet("none,msg,+notice")
	require.NoError(t, err)
	assert.True(t, set.Contains(EventMessage))
	assert.True(t, set.Contains(EventNotice))
	assert.False(t, set.Contains(EventJoin))

	_, err = ParseEventSet("all,-bogus")
	assert.Error(t, err)
}

// TestTimestamp verifies the age-based precision steps.
func TestTimestamp(t *testing.T) {
	now := time.Date(2025, time.June, 15, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		age      time.Duration
		expected string
	}{
		{time.Hour, "[11:00]"},
		{2 * 24 * time.Hour, "[Fri 12:00]"},
		{30 * 24 * time.Hour, "[16 May]"},
		{400 * 24 * time.Hour, "[11 May 2024]"},
	}

	for _, test := range tests {
		if got := Timestamp(now.Add(-test.age), now); got != test.expected {
			t.Errorf("age %v: expected %q, but got %q", test.age, test.expected, got)
		}
	}
}
