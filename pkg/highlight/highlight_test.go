package highlight

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bitcanon/ircbounce/pkg/config"
)

func TestNilHighlighterPassesThrough(t *testing.T) {
	var h *Highlighter
	assert.Equal(t, "hello", h.Apply("#chan", "hello"))

	h = New(nil)
	assert.Nil(t, h)
	assert.Equal(t, "hello", h.Apply("#chan", "hello"))
}

func TestWordRule(t *testing.T) {
	h := New([]config.HighlightRule{
		{Pattern: "alice", Bold: true},
	})

	assert.Equal(t, "hey \x02alice\x0f, ping", h.Apply("#chan", "hey alice, ping"))
	// word boundary: no match inside another word
	assert.Equal(t, "malice aforethought", h.Apply("#chan", "malice aforethought"))
}

func TestCaseInsensitiveWord(t *testing.T) {
	h := New([]config.HighlightRule{
		{Pattern: "alice", CaseInsensitive: true, Color: "red"},
	})
	assert.Equal(t, "\x03" + "04Alice\x0f: hi", h.Apply("#chan", "Alice: hi"))
}

func TestRegexWholeLine(t *testing.T) {
	h := New([]config.HighlightRule{
		{Pattern: `(?i)\burgent\b`, Kind: "regex", WholeLine: true, Color: "yellow"},
	})
	assert.Equal(t, "\x03"+"08this is URGENT stuff\x0f", h.Apply("#ops", "this is URGENT stuff"))
	assert.Equal(t, "nothing here", h.Apply("#ops", "nothing here"))
}

func TestChannelFilters(t *testing.T) {
	h := New([]config.HighlightRule{
		{Pattern: "deploy", Channels: []string{"#ops*"}, Bold: true},
	})

	assert.Equal(t, "\x02deploy\x0f now", h.Apply("#ops-eu", "deploy now"))
	assert.Equal(t, "deploy now", h.Apply("#random", "deploy now"))
	// private log target carries no channel context
	assert.Equal(t, "deploy now", h.Apply("alice", "deploy now"))
}

func TestExcludeWins(t *testing.T) {
	h := New([]config.HighlightRule{
		{Pattern: "deploy", Channels: []string{"#ops*"}, ExcludeChannels: []string{"#ops-test"}, Bold: true},
	})
	assert.Equal(t, "deploy now", h.Apply("#ops-test", "deploy now"))
	assert.Equal(t, "\x02deploy\x0f now", h.Apply("#ops", "deploy now"))
}

func TestInvalidRulesSkipped(t *testing.T) {
	h := New([]config.HighlightRule{
		{Pattern: ""},
		{Pattern: "([", Kind: "regex"},
		{Pattern: "x", Kind: "unknown"},
	})
	assert.Nil(t, h)
}

func TestStylelessRuleGetsBold(t *testing.T) {
	h := New([]config.HighlightRule{{Pattern: "hi"}})
	assert.Equal(t, "\x02hi\x0f there", h.Apply("#c", "hi there"))
}

func TestNumericColorPadded(t *testing.T) {
	h := New([]config.HighlightRule{{Pattern: "x", Color: "4,1"}})
	assert.Equal(t, "\x03"+"04,01x\x0f", h.Apply("#c", "x"))
}
