package program

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/keshon/botfleet/internal/ai"
	"github.com/keshon/botfleet/internal/config"
	"github.com/keshon/botfleet/internal/platform"
	"github.com/keshon/botfleet/internal/pseudonym"
)

const (
	tokenHint = "Participants appear as <P1>, <P2> and so on, most recently active first. " +
		"You are " + pseudonym.SelfToken + ". Use these tokens to address people."
	drawingAck = "Drawing something, give me a few minutes..."
)

var errNothingToSay = errors.New("no conversation to reply to")

// chatCompletion answers the recent conversation of the channel.
type chatCompletion struct {
	cfg config.Program
}

func (p *chatCompletion) Kind() config.Kind { return config.KindChatCompletion }

func (p *chatCompletion) Run(ctx context.Context, env Env, inv Invocation) (Result, error) {
	mp := env.mapping(inv.ChannelID)

	limit := p.cfg.HistoryLimit
	if limit <= 0 {
		limit = env.HistoryLimit
	}
	history, err := env.Gateway.FetchRecentHistory(ctx, inv.ChannelID, limit)
	if err != nil {
		return Result{}, fmt.Errorf("fetch history: %w", err)
	}

	messages := []ai.Message{{Role: ai.RoleSystem, Content: strings.TrimSpace(p.cfg.Persona + "\n\n" + tokenHint)}}
	for i := len(history) - 1; i >= 0; i-- {
		messages = append(messages, turn(mp, env.SelfID, history[i].AuthorID, history[i].Content))
	}
	if ev := inv.Event; ev != nil {
		seen := len(history) > 0 && history[0].AuthorID == ev.AuthorID && history[0].Content == ev.Content
		if !seen {
			messages = append(messages, turn(mp, env.SelfID, ev.AuthorID, ev.Content))
		}
	}
	if len(messages) == 1 {
		return Result{}, errNothingToSay
	}

	reply, err := env.Completion.Generate(ctx, messages, completionOptions(p.cfg))
	if err != nil {
		return Result{}, fmt.Errorf("chat completion: %w", err)
	}
	text := mp.Resolve(reply)
	if p.cfg.AddressAuthor {
		text = address(inv.Event, text)
	}
	return Result{Text: text}, nil
}

// turn renders one history message for the model, participants replaced by
// their tokens.
func turn(mp pseudonym.Mapping, selfID, authorID, content string) ai.Message {
	body := mp.Anonymize(content)
	if authorID == selfID {
		return ai.Message{Role: ai.RoleAssistant, Content: body}
	}
	if tok, ok := mp.TokenOf(authorID); ok {
		body = tok + ": " + body
	}
	return ai.Message{Role: ai.RoleUser, Content: body}
}

// promptCompletion answers one configured prompt, picked by index.
type promptCompletion struct {
	cfg config.Program
}

func (p *promptCompletion) Kind() config.Kind { return config.KindPromptCompletion }

func (p *promptCompletion) Run(ctx context.Context, env Env, inv Invocation) (Result, error) {
	mp := env.mapping(inv.ChannelID)

	input := ""
	if inv.Event != nil {
		input = strings.TrimSpace(mp.Anonymize(inv.Event.Content))
	}
	prompt := strings.ReplaceAll(pick(p.cfg.Prompts, inv.Index), "{input}", input)

	var messages []ai.Message
	if p.cfg.Persona != "" {
		messages = append(messages, ai.Message{Role: ai.RoleSystem, Content: p.cfg.Persona})
	}
	messages = append(messages, ai.Message{Role: ai.RoleUser, Content: prompt})

	reply, err := env.Completion.Generate(ctx, messages, completionOptions(p.cfg))
	if err != nil {
		return Result{}, fmt.Errorf("prompt completion: %w", err)
	}
	text := mp.Resolve(reply)
	if p.cfg.AddressAuthor {
		text = address(inv.Event, text)
	}
	return Result{Text: text}, nil
}

// imageGeneration acknowledges the request, then draws.
type imageGeneration struct {
	cfg config.Program
}

func (p *imageGeneration) Kind() config.Kind { return config.KindImageGeneration }

func (p *imageGeneration) Run(ctx context.Context, env Env, inv Invocation) (Result, error) {
	prompt := pick(p.cfg.Prompts, inv.Index)
	if p.cfg.UseEventText && inv.Event != nil {
		if text := strings.TrimSpace(platform.StripMentions(inv.Event.Content)); text != "" {
			prompt = text
		}
	}
	if prompt == "" {
		return Result{}, errNothingToSay
	}

	if inv.Event != nil {
		ack := platform.Message{Text: address(inv.Event, drawingAck)}
		if err := env.Gateway.SendMessage(ctx, inv.ChannelID, ack); err != nil {
			return Result{}, fmt.Errorf("send acknowledgement: %w", err)
		}
	}

	img, err := env.Images.Draw(ctx, prompt, p.cfg.Model)
	if err != nil {
		return Result{}, fmt.Errorf("image generation: %w", err)
	}

	res := Result{Text: address(inv.Event, ""), ImageURL: img.URL}
	res.Text = strings.TrimSpace(res.Text)
	if img.Path != "" {
		res.File = &platform.Attachment{Name: filepath.Base(img.Path), Path: img.Path}
	}
	return res, nil
}

// musicStatus reports what someone is listening to.
type musicStatus struct{}

func (p *musicStatus) Kind() config.Kind { return config.KindMusicStatus }

func (p *musicStatus) Run(ctx context.Context, env Env, inv Invocation) (Result, error) {
	if env.Music == nil {
		return Result{}, errors.New("music status: no music service")
	}
	text, imageURL, err := env.Music.Status(ctx, inv.Event, inv.ChannelID)
	if err != nil {
		return Result{}, fmt.Errorf("music status: %w", err)
	}
	return Result{Text: text, ImageURL: imageURL}, nil
}
