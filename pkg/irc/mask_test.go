package irc

import "testing"

// TestMatch verifies hostmask glob semantics.
func TestMatch(t *testing.T) {
	tests := []struct {
		pattern  string
		text     string
		expected bool
	}{
		{"*", "anything at all", true},
		{"*", "", true},
		{"*!*@*", "nick!user@host.example.com", true},
		{"*!*@*.example.com", "nick!user@host.example.com", true},
		{"*!*@*.example.com", "nick!user@example.com", false},
		{"nick!*@*", "nick!user@host", true},
		{"nick!*@*", "other!user@host", false},
		{"NICK[a]!*@*", "nick{a}!user@host", true},
		{"n?ck", "nick", true},
		{"n?ck", "nck", false},
		{"", "", true},
		{"", "x", false},
		{"abc", "abc", true},
		{"a*c", "abbbc", true},
		{"a*c", "abbbd", false},
	}

	for _, test := range tests {
		if got := Match(test.pattern, test.text); got != test.expected {
			t.Errorf("Match(%q, %q): expected %v, but got %v", test.pattern, test.text, test.expected, got)
		}
	}
}

// TestMatchNoBlowup verifies the matcher stays linear on patterns that
// make naive backtracking explode.
func TestMatchNoBlowup(t *testing.T) {
	text := ""
	for i := 0; i < 200; i++ {
		text += "a"
	}
	if Match("*a*a*a*a*a*a*b", text) {
		t.Error("expected no match")
	}
	if !Match("*a*a*a*a*a*a*", text) {
		t.Error("expected match")
	}
}

// TestMasksMatchAny verifies list semantics and the empty-list rule.
func TestMasksMatchAny(t *testing.T) {
	m := Masks{"*.example.com", "10.0.0.*"}

	if !m.MatchAny("host.example.com") {
		t.Error("expected match on hostname")
	}
	if !m.MatchAny("nomatch", "10.0.0.7") {
		t.Error("expected match on second candidate")
	}
	if m.MatchAny("other.org", "192.168.0.1") {
		t.Error("expected no match")
	}
	if m.MatchAny("") {
		t.Error("empty candidate must not match")
	}

	var empty Masks
	if empty.MatchAny("host.example.com") {
		t.Error("empty mask list must match nothing")
	}
}
