package pseudonym

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const self = "999"

func TestObserveSeedsOnFirstContact(t *testing.T) {
	m := NewMapper(self)
	require.False(t, m.Known("c1"))

	// members, then history authors oldest first; the bot itself appears in history
	seed := []string{"m1", "m2", "a", self, "b", "a"}
	mp := m.Observe("c1", "c", seed)

	assert.True(t, m.Known("c1"))
	assert.Equal(t, []string{"c", "a", "b", "m2", "m1"}, m.Participants("c1"))
	assert.Equal(t, "<P1>", mp.ToToken["c"])
	assert.Equal(t, "<P2>", mp.ToToken["a"])
	assert.Equal(t, SelfToken, mp.ToToken[self])
}

func TestObserveMovesAuthorToFront(t *testing.T) {
	m := NewMapper(self)
	m.Observe("c1", "a", []string{"b", "c"})
	require.Equal(t, []string{"a", "c", "b"}, m.Participants("c1"))

	m.Observe("c1", "b", nil)
	assert.Equal(t, []string{"b", "a", "c"}, m.Participants("c1"))

	m.Observe("c1", "d", nil)
	assert.Equal(t, []string{"d", "b", "a", "c"}, m.Participants("c1"))

	// channels are independent
	m.Observe("c2", "x", nil)
	assert.Equal(t, []string{"x"}, m.Participants("c2"))
	assert.Equal(t, []string{"d", "b", "a", "c"}, m.Participants("c1"))
}

func TestSelfNeverGetsParticipantToken(t *testing.T) {
	m := NewMapper(self)
	mp := m.Observe("c1", self, []string{self, "a", self})

	assert.Equal(t, []string{"a"}, m.Participants("c1"))
	assert.Equal(t, SelfToken, mp.ToToken[self])
	for tok, mention := range mp.ToMention {
		if tok == SelfToken {
			continue
		}
		assert.NotEqual(t, "<@!"+self+">", mention, "token %s resolved to the bot", tok)
	}
}

func TestTokenSpaceIsBounded(t *testing.T) {
	var seed []string
	for i := 0; i < 40; i++ {
		seed = append(seed, fmt.Sprintf("u%d", i))
	}
	m := NewMapper(self)
	mp := m.Observe("c1", "newest", seed)

	assert.Len(t, m.Participants("c1"), MaxTokens)
	assert.Len(t, mp.ToToken, MaxTokens+1)
	assert.Equal(t, "<P1>", mp.ToToken["newest"])
	assert.Equal(t, "<P2>", mp.ToToken["u39"])
}

func TestCyclicAliasing(t *testing.T) {
	participants := []string{"a", "b", "c"}
	mp := Build(participants, self)

	n := len(participants)
	for i := 1; i <= MaxTokens; i++ {
		want := mp.ToMention[Token(1+(i-1)%n)]
		require.Contains(t, mp.ToMention, Token(i))
		assert.Equal(t, want, mp.ToMention[Token(i)], "token %d", i)
	}
	assert.Equal(t, "<@!a>", mp.ToMention["<P4>"])
	assert.Equal(t, "<@!c>", mp.ToMention["<P24>"])
	assert.NotContains(t, mp.ToMention, Token(MaxTokens+1))
}

func TestBuildWithNoParticipants(t *testing.T) {
	mp := Build(nil, self)
	assert.Equal(t, map[string]string{SelfToken: "<@!" + self + ">"}, mp.ToMention)
}

func TestAnonymizeAndResolve(t *testing.T) {
	mp := Build([]string{"111", "222"}, self)

	assert.Equal(t, "<P2> asked <S> about <P1>", mp.Anonymize("<@!222> asked <@999> about <@111>"))
	assert.Equal(t, "hi  there", mp.Anonymize("hi <@333> there"))
	assert.Equal(t, "thanks <@!222>, and <@!111> via <@!222>",
		mp.Resolve("thanks <P2>, and <P3> via <P24>"))
	assert.Equal(t, "<@!111> and <@!999>", mp.Resolve("<P1> and <S>"))
	assert.Equal(t, "<@!111>", mp.Resolve("<P3>"))
	assert.Equal(t, "<P25>", mp.Resolve("<P25>"))
}
