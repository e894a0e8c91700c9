// Package pseudonym maps conversation participants to stable anonymized
// tokens (<S> for the bot itself, <P1>..<P24> for everyone else).
package pseudonym

import (
	"fmt"
	"regexp"

	"github.com/keshon/botfleet/internal/platform"
)

const (
	// SelfToken is reserved for the bot's own identifier.
	SelfToken = "<S>"
	// MaxTokens is the size of the addressable participant token space.
	MaxTokens = 24
)

var tokenRe = regexp.MustCompile(`<S>|<P([0-9]+)>`)

// Token returns the participant token for position n (1-based).
func Token(n int) string {
	return fmt.Sprintf("<P%d>", n)
}

// Mapping is the pair of lookup tables derived from a participant list.
type Mapping struct {
	// ToToken maps participant id -> token.
	ToToken map[string]string
	// ToMention maps token -> mention string.
	ToMention map[string]string
}

// Build derives the mappings from a most-recent-first participant list.
// Tokens past the number of known participants alias back cyclically so
// every token 1..MaxTokens resolves to a real participant.
func Build(participants []string, selfID string) Mapping {
	m := Mapping{
		ToToken:   make(map[string]string, len(participants)+1),
		ToMention: make(map[string]string, MaxTokens+1),
	}
	for i, id := range participants {
		tok := Token(i + 1)
		m.ToToken[id] = tok
		m.ToMention[tok] = platform.Mention(id)
	}
	m.ToToken[selfID] = SelfToken
	m.ToMention[SelfToken] = platform.Mention(selfID)

	n := len(participants)
	if n == 0 {
		return m
	}
	for v := n + 1; v <= MaxTokens; v++ {
		m.ToMention[Token(v)] = m.ToMention[Token(1+(v-1)%n)]
	}
	return m
}

// Anonymize replaces participant mentions in text with their tokens.
// Mentions of unknown participants are dropped.
func (m Mapping) Anonymize(text string) string {
	return platform.ReplaceMentions(text, func(id string) string {
		return m.ToToken[id]
	})
}

// TokenOf returns the token of a participant id, if any.
func (m Mapping) TokenOf(id string) (string, bool) {
	tok, ok := m.ToToken[id]
	return tok, ok
}

// Resolve replaces tokens in text with mention strings. Tokens with no
// participant behind them are left untouched.
func (m Mapping) Resolve(text string) string {
	return tokenRe.ReplaceAllStringFunc(text, func(tok string) string {
		if mention, ok := m.ToMention[tok]; ok {
			return mention
		}
		return tok
	})
}
