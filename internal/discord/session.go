// Package discord implements the chat gateway over a discordgo session.
package discord

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"

	"github.com/keshon/botfleet/internal/platform"
)

// maxHistoryPage is the largest page Discord returns for channel history.
const maxHistoryPage = 100

const intents = discordgo.IntentsGuilds |
	discordgo.IntentsGuildMembers |
	discordgo.IntentsGuildPresences |
	discordgo.IntentsGuildMessages |
	discordgo.IntentsGuildMessageReactions |
	discordgo.IntentsMessageContent

// Session is one bot's connection to Discord.
type Session struct {
	dg  *discordgo.Session
	log zerolog.Logger

	mu       sync.Mutex
	removers []func()
}

// New creates a session for a bot token. Nothing is dialled until Open.
func New(token string, log zerolog.Logger) (*Session, error) {
	dg, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	dg.Identify.Intents = intents
	dg.StateEnabled = true
	dg.State.TrackPresences = true
	dg.State.TrackMembers = true
	return &Session{dg: dg, log: log.With().Str("component", "discord").Logger()}, nil
}

// Open registers the handlers and connects the gateway.
func (s *Session) Open(h platform.Handlers) error {
	s.mu.Lock()
	s.removers = append(s.removers,
		s.dg.AddHandler(func(_ *discordgo.Session, r *discordgo.Ready) {
			s.log.Info().Str("user", r.User.Username).Int("guilds", len(r.Guilds)).Msg("discord session ready")
			if h.OnReady != nil {
				h.OnReady(r.User.ID)
			}
		}),
		s.dg.AddHandler(func(_ *discordgo.Session, m *discordgo.MessageCreate) {
			if h.OnMessage == nil || m.Author == nil {
				return
			}
			h.OnMessage(toEvent(m.Message))
		}),
	)
	s.mu.Unlock()

	if err := s.dg.Open(); err != nil {
		return fmt.Errorf("failed to open Discord session: %w", err)
	}
	return nil
}

// Close disconnects and drops the handlers.
func (s *Session) Close() error {
	s.mu.Lock()
	for _, remove := range s.removers {
		remove()
	}
	s.removers = nil
	s.mu.Unlock()
	return s.dg.Close()
}

func toEvent(m *discordgo.Message) platform.Event {
	ev := platform.Event{
		ID:        m.ID,
		ChannelID: m.ChannelID,
		GuildID:   m.GuildID,
		Content:   m.Content,
		Timestamp: m.Timestamp,
	}
	if m.Author != nil {
		ev.AuthorID = m.Author.ID
	}
	return ev
}

func (s *Session) SendMessage(ctx context.Context, channelID string, msg platform.Message) error {
	send := &discordgo.MessageSend{Content: msg.Text}
	if msg.ImageURL != "" {
		send.Embeds = []*discordgo.MessageEmbed{{Image: &discordgo.MessageEmbedImage{URL: msg.ImageURL}}}
	}
	if msg.File != nil {
		data, err := os.ReadFile(msg.File.Path)
		if err != nil {
			return fmt.Errorf("read attachment: %w", err)
		}
		send.Files = []*discordgo.File{{Name: msg.File.Name, Reader: bytes.NewReader(data)}}
	}
	_, err := s.dg.ChannelMessageSendComplex(channelID, send, discordgo.WithContext(ctx))
	return err
}

// FetchRecentHistory pages backwards through the channel until limit
// messages are collected or the channel start is reached.
func (s *Session) FetchRecentHistory(ctx context.Context, channelID string, limit int) ([]platform.HistoryEntry, error) {
	var (
		out    []platform.HistoryEntry
		before string
	)
	for len(out) < limit {
		page := min(limit-len(out), maxHistoryPage)
		msgs, err := s.dg.ChannelMessages(channelID, page, before, "", "", discordgo.WithContext(ctx))
		if err != nil {
			return nil, fmt.Errorf("channel history: %w", err)
		}
		for _, m := range msgs {
			if m.Author == nil {
				continue
			}
			out = append(out, platform.HistoryEntry{AuthorID: m.Author.ID, Content: m.Content, Timestamp: m.Timestamp})
		}
		if len(msgs) < page {
			break
		}
		before = msgs[len(msgs)-1].ID
	}
	return out, nil
}

func (s *Session) AddReaction(ctx context.Context, ev platform.Event, emoji string) error {
	return s.dg.MessageReactionAdd(ev.ChannelID, ev.ID, emoji, discordgo.WithContext(ctx))
}

// Members lists the user ids of a guild from the state cache, falling back
// to the API when the guild is not cached.
func (s *Session) Members(ctx context.Context, guildID string) ([]string, error) {
	if guildID == "" {
		return nil, nil
	}
	if g, err := s.dg.State.Guild(guildID); err == nil && len(g.Members) > 0 {
		ids := make([]string, 0, len(g.Members))
		for _, m := range g.Members {
			if m.User != nil {
				ids = append(ids, m.User.ID)
			}
		}
		return ids, nil
	}
	members, err := s.dg.GuildMembers(guildID, "", 1000, discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("guild members: %w", err)
	}
	ids := make([]string, 0, len(members))
	for _, m := range members {
		if m.User != nil {
			ids = append(ids, m.User.ID)
		}
	}
	return ids, nil
}
