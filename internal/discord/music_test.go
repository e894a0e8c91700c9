package discord

import (
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
)

func TestDescribeListening(t *testing.T) {
	a := &discordgo.Activity{
		Name:    "Spotify",
		Type:    discordgo.ActivityTypeListening,
		Details: "Paranoid Android",
		State:   "Radiohead",
		Assets:  discordgo.Assets{LargeImageID: "spotify:ab67616d0000b273"},
	}
	assert.Equal(t, "<@!42> is listening to **Paranoid Android** by Radiohead on Spotify", describe("42", a))
	assert.Equal(t, "https://i.scdn.co/image/ab67616d0000b273", albumArt(a))

	a.Assets.LargeImageID = "mp:external/abc"
	assert.Empty(t, albumArt(a))
}

func TestListeningPicksListeningActivity(t *testing.T) {
	p := &discordgo.Presence{Activities: []*discordgo.Activity{
		{Name: "a game", Type: discordgo.ActivityTypeGame},
		{Name: "Spotify", Type: discordgo.ActivityTypeListening},
	}}
	assert.Equal(t, "Spotify", listening(p).Name)
	assert.Nil(t, listening(&discordgo.Presence{}))
	assert.Nil(t, listening(nil))
}

func TestToEvent(t *testing.T) {
	m := &discordgo.Message{ID: "1", ChannelID: "c", GuildID: "g", Content: "hi", Author: &discordgo.User{ID: "u"}}
	ev := toEvent(m)
	assert.Equal(t, "u", ev.AuthorID)
	assert.Equal(t, "c", ev.ChannelID)
	assert.Equal(t, "g", ev.GuildID)
}
