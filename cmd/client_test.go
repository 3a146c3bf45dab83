package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAnswerPing(t *testing.T) {
	var sent []string
	send := func(format string, args ...any) {
		sent = append(sent, format)
	}

	assert.True(t, answerPing("PING :irc.example.org", send))
	assert.Len(t, sent, 1)

	// short or blank lines parse to nothing and must not panic
	assert.False(t, answerPing("", send))
	assert.False(t, answerPing(":", send))
	assert.False(t, answerPing("NOTICE * :hello", send))
	assert.Len(t, sent, 1)
}
