package platform

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMentionHelpers(t *testing.T) {
	text := "hey <@!123> and <@456>, look"

	assert.Equal(t, []string{"123", "456"}, MentionedIDs(text))
	assert.Equal(t, "hey  and , look", StripMentions(text))
	assert.Equal(t, "<@!42>", Mention("42"))
	assert.Equal(t, "hey [123] and [456], look", ReplaceMentions(text, func(id string) string {
		return "[" + id + "]"
	}))
	assert.Empty(t, MentionedIDs("no mentions here"))
}
