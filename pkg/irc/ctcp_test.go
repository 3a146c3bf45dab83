package irc

import (
	"reflect"
	"testing"
)

// TestSplitCTCP verifies payload extraction and that the plain text
// around payloads is preserved byte for byte.
func TestSplitCTCP(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		plain    string
		payloads []CTCP
	}{
		{
			name:  "PlainOnly",
			input: "just a message",
			plain: "just a message",
		},
		{
			name:     "ActionOnly",
			input:    "\x01ACTION waves\x01",
			plain:    "",
			payloads: []CTCP{{Command: "ACTION", Args: "waves"}},
		},
		{
			name:     "PayloadWithSurroundingText",
			input:    "before \x01PING 12345\x01 after",
			plain:    "before  after",
			payloads: []CTCP{{Command: "PING", Args: "12345"}},
		},
		{
			name:  "TwoPayloads",
			input: "\x01VERSION\x01\x01TIME\x01",
			plain: "",
			payloads: []CTCP{
				{Command: "VERSION"},
				{Command: "TIME"},
			},
		},
		{
			name:     "UnterminatedPayload",
			input:    "text \x01DCC CHAT chat 1 2",
			plain:    "text ",
			payloads: []CTCP{{Command: "DCC", Args: "CHAT chat 1 2"}},
		},
		{
			name:     "LowercaseTagUppercased",
			input:    "\x01ping x\x01",
			plain:    "",
			payloads: []CTCP{{Command: "PING", Args: "x"}},
		},
		{
			name:  "EmptyPayloadIgnored",
			input: "a\x01\x01b",
			plain: "ab",
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			plain, payloads := SplitCTCP(test.input)
			if plain != test.plain {
				t.Errorf("plain: expected %q, but got %q", test.plain, plain)
			}
			if !reflect.DeepEqual(payloads, test.payloads) && !(len(payloads) == 0 && len(test.payloads) == 0) {
				t.Errorf("payloads: expected %+v, but got %+v", test.payloads, payloads)
			}
		})
	}
}

// TestSplitCTCPReassembly verifies that a rewritten payload can be put
// back without disturbing the surrounding framing.
func TestSplitCTCPReassembly(t *testing.T) {
	input := "look: \x01DCC SEND file.bin 2130706433 5000 10000\x01 (10k)"
	plain, payloads := SplitCTCP(input)
	if len(payloads) != 1 {
		t.Fatalf("expected 1 payload, but got %d", len(payloads))
	}

	rebuilt := plain[:6] + payloads[0].String() + plain[6:]
	if rebuilt != input {
		t.Errorf("expected %q, but got %q", input, rebuilt)
	}
}

// TestRewriteCTCP verifies in-place payload replacement, dropping, and
// that surrounding text is preserved byte for byte.
func TestRewriteCTCP(t *testing.T) {
	rewriteDCC := func(c CTCP) (string, bool) {
		if c.Command == "DCC" {
			return "DCC CHAT chat 1 9", true
		}
		return c.Command + " " + c.Args, true
	}
	dropAll := func(CTCP) (string, bool) { return "", false }

	tests := []struct {
		name     string
		input    string
		fn       func(CTCP) (string, bool)
		expected string
	}{
		{
			name:     "RewriteKeepsFraming",
			input:    "see \x01DCC CHAT chat 2130706433 5000\x01 there",
			fn:       rewriteDCC,
			expected: "see \x01DCC CHAT chat 1 9\x01 there",
		},
		{
			name:     "NonMatchingUntouched",
			input:    "a \x01PING 42\x01 b",
			fn:       rewriteDCC,
			expected: "a \x01PING 42\x01 b",
		},
		{
			name:     "DropPayload",
			input:    "before \x01VERSION\x01 after",
			fn:       dropAll,
			expected: "before  after",
		},
		{
			name:     "DropAllLeavesNothing",
			input:    "\x01TIME\x01",
			fn:       dropAll,
			expected: "",
		},
		{
			name:     "UnterminatedRewritten",
			input:    "x \x01DCC SEND f 1 2 3",
			fn:       rewriteDCC,
			expected: "x \x01DCC CHAT chat 1 9\x01",
		},
		{
			name:     "NoPayloads",
			input:    "plain text",
			fn:       dropAll,
			expected: "plain text",
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := RewriteCTCP(test.input, test.fn); got != test.expected {
				t.Errorf("expected %q, but got %q", test.expected, got)
			}
		})
	}
}

// TestCTCPRoundTrip verifies encode/split round trips for tagged payloads.
func TestCTCPRoundTrip(t *testing.T) {
	tests := []CTCP{
		{Command: "PING", Args: "1234567890"},
		{Command: "VERSION"},
		{Command: "DCC", Args: "CHAT chat 2130706433 5000"},
	}

	for _, c := range tests {
		plain, payloads := SplitCTCP(c.String())
		if plain != "" {
			t.Errorf("%s: expected no plain text, but got %q", c.Command, plain)
		}
		if len(payloads) != 1 || payloads[0] != c {
			t.Errorf("%s: expected %+v, but got %+v", c.Command, c, payloads)
		}
	}
}

// TestCTCPDequote verifies backslash dequoting of payload bodies.
func TestCTCPDequote(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{`plain`, `plain`},
		{`a\\b`, `a\b`},
		{`x\ay`, "x\x01y"},
		{`end\`, `end\`},
		{`\q`, `q`},
	}

	for _, test := range tests {
		if got := ctcpDequote(test.input); got != test.expected {
			t.Errorf("ctcpDequote(%q): expected %q, but got %q", test.input, test.expected, got)
		}
	}
}
