package irc

import (
	"reflect"
	"testing"
)

// TestParseMessage verifies prefix, command, parameter and trailing
// extraction for representative wire lines.
func TestParseMessage(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected *Message
	}{
		{
			name:  "PrivmsgWithTrailing",
			input: ":nick!user@host PRIVMSG #chan :hello world",
			expected: &Message{
				Source:   &Prefix{Name: "nick", User: "user", Host: "host"},
				Command:  "PRIVMSG",
				Params:   []string{"#chan"},
				Trailing: "hello world",
			},
		},
		{
			name:  "ServerNumeric",
			input: ":irc.example.com 001 alice :Welcome to IRC alice!alice@client",
			expected: &Message{
				Source:   &Prefix{Name: "irc.example.com"},
				Command:  "001",
				Params:   []string{"alice"},
				Trailing: "Welcome to IRC alice!alice@client",
			},
		},
		{
			name:  "NoPrefix",
			input: "PING :irc.example.com",
			expected: &Message{
				Command:  "PING",
				Trailing: "irc.example.com",
			},
		},
		{
			name:  "NoTrailing",
			input: "MODE #chan +k sekrit",
			expected: &Message{
				Command: "MODE",
				Params:  []string{"#chan", "+k", "sekrit"},
			},
		},
		{
			name:  "EmptyTrailing",
			input: "TOPIC #chan :",
			expected: &Message{
				Command:       "TOPIC",
				Params:        []string{"#chan"},
				EmptyTrailing: true,
			},
		},
		{
			name:  "LowercaseCommandUppercased",
			input: "privmsg #chan :hi",
			expected: &Message{
				Command:  "PRIVMSG",
				Params:   []string{"#chan"},
				Trailing: "hi",
			},
		},
		{
			name:  "CommandOnly",
			input: "AWAY",
			expected: &Message{
				Command: "AWAY",
			},
		},
		{
			name:  "ColonInsideMiddleParam",
			input: "PRIVMSG #chan:sub :text",
			expected: &Message{
				Command:  "PRIVMSG",
				Params:   []string{"#chan:sub"},
				Trailing: "text",
			},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got := ParseMessage(test.input + "\r\n")
			if got == nil {
				t.Fatalf("ParseMessage(%q) = nil", test.input)
			}

			if !reflect.DeepEqual(got.Source, test.expected.Source) {
				t.Errorf("source: expected %+v, but got %+v", test.expected.Source, got.Source)
			}
			if got.Command != test.expected.Command {
				t.Errorf("command: expected %q, but got %q", test.expected.Command, got.Command)
			}
			if !reflect.DeepEqual(got.Params, test.expected.Params) && !(len(got.Params) == 0 && len(test.expected.Params) == 0) {
				t.Errorf("params: expected %v, but got %v", test.expected.Params, got.Params)
			}
			if got.Trailing != test.expected.Trailing {
				t.Errorf("trailing: expected %q, but got %q", test.expected.Trailing, got.Trailing)
			}
			if got.EmptyTrailing != test.expected.EmptyTrailing {
				t.Errorf("empty trailing: expected %v, but got %v", test.expected.EmptyTrailing, got.EmptyTrailing)
			}
			if got.Raw != test.input {
				t.Errorf("raw: expected %q, but got %q", test.input, got.Raw)
			}
		})
	}
}

// TestParseMessageInvalid verifies garbage lines are dropped, not parsed.
func TestParseMessageInvalid(t *testing.T) {
	for _, input := range []string{"", "\r\n", "x", ": PRIVMSG"} {
		if got := ParseMessage(input); got != nil {
			t.Errorf("ParseMessage(%q): expected nil, but got %+v", input, got)
		}
	}
}

// TestMessageRoundTrip verifies parse(format(msg)) is identity for lines
// with single-space separation.
func TestMessageRoundTrip(t *testing.T) {
	lines := []string{
		":nick!user@host PRIVMSG #chan :hello world",
		":irc.example.com 005 alice CASEMAPPING=rfc1459 :are supported by this server",
		"JOIN #chan sekrit",
		"NICK newnick",
		"TOPIC #chan :",
		"PING :irc.example.com",
		":nick!user@host PRIVMSG alice :\x01ACTION waves\x01",
	}

	for _, line := range lines {
		m := ParseMessage(line)
		if m == nil {
			t.Fatalf("ParseMessage(%q) = nil", line)
		}
		if got := m.String(); got != line {
			t.Errorf("round trip: expected %q, but got %q", line, got)
		}
	}
}

// TestLooseParamSpacing verifies RFC 1459 mode collapses runs of spaces
// between parameters.
func TestLooseParamSpacing(t *testing.T) {
	LooseParamSpacing = true
	defer func() { LooseParamSpacing = false }()

	m := ParseMessage(":srv  MODE  #chan  +k   sekrit")
	if m == nil {
		t.Fatal("ParseMessage = nil")
	}
	if m.Command != "MODE" {
		t.Errorf("command: expected MODE, but got %q", m.Command)
	}
	expected := []string{"#chan", "+k", "sekrit"}
	if !reflect.DeepEqual(m.Params, expected) {
		t.Errorf("params: expected %v, but got %v", expected, m.Params)
	}
}

// TestFormat verifies trailing promotion for the last argument.
func TestFormat(t *testing.T) {
	tests := []struct {
		name     string
		command  string
		params   []string
		expected string
	}{
		{"TrailingWithSpace", "PRIVMSG", []string{"#chan", "hello world"}, "PRIVMSG #chan :hello world"},
		{"SingleWordNoColon", "JOIN", []string{"#chan"}, "JOIN #chan"},
		{"EmptyTrailing", "AWAY", []string{""}, "AWAY :"},
		{"LeadingColonEscaped", "PRIVMSG", []string{"#chan", ":)"}, "PRIVMSG #chan ::)"},
		{"NoParams", "QUIT", nil, "QUIT"},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := Format(test.command, test.params...); got != test.expected {
				t.Errorf("expected %q, but got %q", test.expected, got)
			}
		})
	}
}

// TestText verifies body selection with and without trailing.
func TestText(t *testing.T) {
	if got := ParseMessage("PRIVMSG #c :body").Text(); got != "body" {
		t.Errorf("expected %q, but got %q", "body", got)
	}
	if got := ParseMessage("NICK other").Text(); got != "other" {
		t.Errorf("expected %q, but got %q", "other", got)
	}
}
