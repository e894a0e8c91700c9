// Package platform holds the chat-platform neutral types shared by the
// orchestration core: inbound events, channel history, outbound messages and
// the gateway contract the core consumes.
package platform

import (
	"context"
	"fmt"
	"regexp"
	"time"
)

// Event is an inbound conversational event observed by a bot.
type Event struct {
	ID        string
	ChannelID string
	GuildID   string
	AuthorID  string
	Content   string
	Timestamp time.Time
}

// HistoryEntry is one message of a channel history.
type HistoryEntry struct {
	AuthorID  string
	Content   string
	Timestamp time.Time
}

// Attachment is a local file sent along with a message.
type Attachment struct {
	Name string
	Path string
}

// Message is an outbound message. ImageURL becomes a rich embed.
type Message struct {
	Text     string
	ImageURL string
	File     *Attachment
}

// Handlers are the callbacks a Connection invokes for gateway events.
type Handlers struct {
	OnReady   func(selfID string)
	OnMessage func(ev Event)
}

// Gateway is the chat gateway the core talks to.
type Gateway interface {
	SendMessage(ctx context.Context, channelID string, msg Message) error
	// FetchRecentHistory returns up to limit messages, most recent first.
	FetchRecentHistory(ctx context.Context, channelID string, limit int) ([]HistoryEntry, error)
	AddReaction(ctx context.Context, ev Event, emoji string) error
	Members(ctx context.Context, guildID string) ([]string, error)
}

// Connection is a Gateway with a lifecycle.
type Connection interface {
	Gateway
	Open(h Handlers) error
	Close() error
}

var mentionRe = regexp.MustCompile(`<@!?([0-9]+)>`)

// Mention formats a directly addressable participant reference.
func Mention(userID string) string {
	return fmt.Sprintf("<@!%s>", userID)
}

// MentionedIDs returns the user ids mentioned in text, in order of appearance.
func MentionedIDs(text string) []string {
	matches := mentionRe.FindAllStringSubmatch(text, -1)
	ids := make([]string, 0, len(matches))
	for _, m := range matches {
		ids = append(ids, m[1])
	}
	return ids
}

// StripMentions removes every participant mention from text.
func StripMentions(text string) string {
	return mentionRe.ReplaceAllString(text, "")
}

// ReplaceMentions rewrites each mention with the result of fn(userID).
func ReplaceMentions(text string, fn func(userID string) string) string {
	return mentionRe.ReplaceAllStringFunc(text, func(m string) string {
		return fn(mentionRe.FindStringSubmatch(m)[1])
	})
}
