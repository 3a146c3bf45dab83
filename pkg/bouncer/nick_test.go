package bouncer

import "testing"

// TestNextNick verifies the deterministic nickname regeneration sequence.
func TestNextNick(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "ShortGrowsDash", input: "alice", expected: "alice-"},
		{name: "Empty", input: "", expected: "bounced"},
		{name: "AtLimitStartsCycle", input: "abcdefghi", expected: "abcdefgh-"},
		{name: "DashToZero", input: "abcdefgh-", expected: "abcdefgh0"},
		{name: "DigitAdvances", input: "abcdefgh0", expected: "abcdefgh1"},
		{name: "NineToUnderscore", input: "abcdefgh9", expected: "abcdefgh_"},
		{name: "UnderscoreCarries", input: "abcdefgh_", expected: "abcdefg--"},
		{name: "CarryPropagates", input: "abcdefg__", expected: "abcdef---"},
		{name: "ExhaustedResets", input: "_________", expected: "bounced"},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := nextNick(test.input); got != test.expected {
				t.Errorf("nextNick(%q): expected %q, but got %q", test.input, test.expected, got)
			}
		})
	}
}

// TestNextNickDistinct verifies repeated rejections walk distinct
// candidates.
func TestNextNickDistinct(t *testing.T) {
	seen := map[string]bool{}
	nick := "abcdefghi"
	for i := 0; i < 12; i++ {
		nick = nextNick(nick)
		if seen[nick] {
			t.Fatalf("candidate %q repeated after %d steps", nick, i+1)
		}
		seen[nick] = true
	}
}
