package discord

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/keshon/botfleet/internal/platform"
)

const spotifyImageBase = "https://i.scdn.co/image/"

// Music answers music status requests from the presence cache.
type Music struct {
	s *Session
}

func NewMusic(s *Session) *Music {
	return &Music{s: s}
}

// Status reports what the event author listens to, or for scheduled
// invocations, the first member of the channel's guild who listens to
// something.
func (m *Music) Status(_ context.Context, ev *platform.Event, channelID string) (string, string, error) {
	state := m.s.dg.State

	if ev != nil {
		p, err := state.Presence(ev.GuildID, ev.AuthorID)
		if err == nil {
			if a := listening(p); a != nil {
				return describe(ev.AuthorID, a), albumArt(a), nil
			}
		}
		return fmt.Sprintf("%s you're not listening to anything right now.", platform.Mention(ev.AuthorID)), "", nil
	}

	ch, err := state.Channel(channelID)
	if err != nil {
		return "", "", fmt.Errorf("channel %s not cached: %w", channelID, err)
	}
	g, err := state.Guild(ch.GuildID)
	if err != nil {
		return "", "", fmt.Errorf("guild %s not cached: %w", ch.GuildID, err)
	}
	for _, p := range g.Presences {
		if p.User == nil {
			continue
		}
		if a := listening(p); a != nil {
			return describe(p.User.ID, a), albumArt(a), nil
		}
	}
	return "", "", fmt.Errorf("nobody in %s is listening to music", g.Name)
}

func listening(p *discordgo.Presence) *discordgo.Activity {
	if p == nil {
		return nil
	}
	for _, a := range p.Activities {
		if a != nil && a.Type == discordgo.ActivityTypeListening {
			return a
		}
	}
	return nil
}

func describe(userID string, a *discordgo.Activity) string {
	song := a.Details
	if song == "" {
		song = a.Name
	}
	text := fmt.Sprintf("%s is listening to **%s**", platform.Mention(userID), song)
	if a.State != "" {
		text += " by " + strings.ReplaceAll(a.State, ";", ",")
	}
	if a.Name != "" && a.Name != song {
		text += " on " + a.Name
	}
	return text
}

func albumArt(a *discordgo.Activity) string {
	id, ok := strings.CutPrefix(a.Assets.LargeImageID, "spotify:")
	if !ok || id == "" {
		return ""
	}
	return spotifyImageBase + id
}
