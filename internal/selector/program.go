// Package selector picks the program that answers an event and the emoji
// that reacts to it, both by ranking descriptive documents against the
// message text.
package selector

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/keshon/botfleet/internal/config"
	"github.com/keshon/botfleet/internal/platform"
	"github.com/keshon/botfleet/internal/ranking"
)

// ErrNoContext is returned when no behaviour context applies.
var ErrNoContext = errors.New("no behavior context")

type ProgramSelector struct {
	ranker ranking.Ranker
	log    zerolog.Logger
}

func NewProgramSelector(r ranking.Ranker, log zerolog.Logger) *ProgramSelector {
	return &ProgramSelector{ranker: r, log: log}
}

// Select returns the program name for text under context c. A static
// program wins outright; otherwise the option whose document ranks highest
// against the mention-stripped text is chosen, first listed on ties. A
// message that is nothing but mentions goes to the first option unranked.
func (s *ProgramSelector) Select(ctx context.Context, c *config.Context, text string) (string, error) {
	if c == nil {
		return "", ErrNoContext
	}
	if c.Program != "" {
		return c.Program, nil
	}
	if len(c.Options) == 0 {
		return "", ErrNoContext
	}

	query := strings.TrimSpace(platform.StripMentions(text))
	if query == "" {
		s.log.Debug().Str("program", c.Options[0].Program).Msg("empty query, first option selected")
		return c.Options[0].Program, nil
	}

	docs := make([]string, len(c.Options))
	for i, o := range c.Options {
		docs[i] = o.Document
	}

	scores, err := s.ranker.Rank(ctx, docs, query)
	if err != nil {
		return "", fmt.Errorf("rank programs: %w", err)
	}
	sorted := ranking.Sorted(scores)
	top, err := ranking.Top(sorted)
	if err != nil {
		return "", fmt.Errorf("rank programs: %w", err)
	}
	if top.Index < 0 || top.Index >= len(c.Options) {
		return "", fmt.Errorf("rank programs: %w", ranking.ErrNoScores)
	}

	for _, sc := range sorted[:min(2, len(sorted))] {
		s.log.Debug().
			Str("program", c.Options[sc.Index].Program).
			Float64("score", sc.Score).
			Msg("program candidate")
	}
	return c.Options[top.Index].Program, nil
}
