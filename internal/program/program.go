// Package program implements the closed set of program kinds a bot can
// dispatch and the dispatch path itself: compose inputs, invoke the
// collaborator, truncate, send.
package program

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/keshon/botfleet/internal/ai"
	"github.com/keshon/botfleet/internal/config"
	"github.com/keshon/botfleet/internal/platform"
	"github.com/keshon/botfleet/internal/pseudonym"
)

// MessageLimit is the chat platform's maximum message length in characters.
const MessageLimit = 2000

var (
	ErrUnknownKind    = errors.New("unknown program kind")
	ErrUnknownProgram = errors.New("unknown program")
	ErrEmptyResult    = errors.New("program produced nothing to send")
)

// Trigger names what caused a dispatch.
type Trigger string

const (
	TriggerMention    Trigger = "mention"
	TriggerMessage    Trigger = "message"
	TriggerTimed      Trigger = "timed"
	TriggerBackground Trigger = "background"
)

// Invocation is one request to run a program. Event is nil for scheduled
// invocations.
type Invocation struct {
	Program   string
	Event     *platform.Event
	ChannelID string
	Index     int
	Trigger   Trigger
}

// Dispatcher runs invocations to completion.
type Dispatcher interface {
	Dispatch(ctx context.Context, inv Invocation) error
}

// Result is what a program wants sent. ImageURL is shown as a rich embed.
type Result struct {
	Text     string
	ImageURL string
	File     *platform.Attachment
}

func (r Result) empty() bool {
	return strings.TrimSpace(r.Text) == "" && r.ImageURL == "" && r.File == nil
}

// Program is one configured program of a known kind.
type Program interface {
	Kind() config.Kind
	Run(ctx context.Context, env Env, inv Invocation) (Result, error)
}

// MappingSource exposes the current pseudonym mapping of a channel.
type MappingSource interface {
	Mapping(channelID string) (pseudonym.Mapping, bool)
}

// MusicService reports what is currently playing. ev is nil for scheduled
// invocations, in which case the service looks around channelID.
type MusicService interface {
	Status(ctx context.Context, ev *platform.Event, channelID string) (text, imageURL string, err error)
}

// Env holds the collaborators programs run against.
type Env struct {
	SelfID       string
	Gateway      platform.Gateway
	Completion   ai.Provider
	Images       ai.Imager
	Music        MusicService
	Pseudonyms   MappingSource
	HistoryLimit int
}

func (e Env) mapping(channelID string) pseudonym.Mapping {
	if e.Pseudonyms != nil {
		if m, ok := e.Pseudonyms.Mapping(channelID); ok {
			return m
		}
	}
	return pseudonym.Build(nil, e.SelfID)
}

// New builds the program for a configuration entry.
func New(cfg config.Program) (Program, error) {
	switch cfg.Kind {
	case config.KindChatCompletion:
		return &chatCompletion{cfg: cfg}, nil
	case config.KindPromptCompletion:
		return &promptCompletion{cfg: cfg}, nil
	case config.KindImageGeneration:
		return &imageGeneration{cfg: cfg}, nil
	case config.KindMusicStatus:
		return &musicStatus{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, cfg.Kind)
	}
}

// Truncate cuts text to at most limit characters.
func Truncate(text string, limit int) string {
	if limit <= 0 {
		return ""
	}
	n := 0
	for i := range text {
		if n == limit {
			return text[:i]
		}
		n++
	}
	return text
}

// address prefixes text with the author's mention unless it already has it.
func address(ev *platform.Event, text string) string {
	if ev == nil || ev.AuthorID == "" {
		return text
	}
	mention := platform.Mention(ev.AuthorID)
	if strings.Contains(text, mention) || strings.Contains(text, "<@"+ev.AuthorID+">") {
		return text
	}
	return mention + " " + text
}

func pick(prompts []string, index int) string {
	if len(prompts) == 0 {
		return ""
	}
	if index < 0 {
		index = -index
	}
	return prompts[index%len(prompts)]
}

func completionOptions(cfg config.Program) ai.Options {
	return ai.Options{Model: cfg.Model, Temperature: cfg.Temperature, MaxTokens: cfg.MaxTokens}
}
