package selector

import (
	"context"
	"fmt"
	"math/rand/v2"

	"github.com/rs/zerolog"

	"github.com/keshon/botfleet/internal/config"
	"github.com/keshon/botfleet/internal/platform"
	"github.com/keshon/botfleet/internal/ranking"
)

// ReactionSelector picks an emoji for a message by ranking the catalog
// descriptions against its text.
type ReactionSelector struct {
	catalog   Catalog
	docs      []string
	ranker    ranking.Ranker
	cache     *ReactionCache
	threshold float64
	maxOpts   int
	log       zerolog.Logger

	// Random sources, replaceable in tests.
	Float func() float64
	IntN  func(n int) int
}

func NewReactionSelector(catalog Catalog, r ranking.Ranker, cache *ReactionCache, tuning config.Tuning, log zerolog.Logger) *ReactionSelector {
	if cache == nil {
		cache = NewReactionCache()
	}
	return &ReactionSelector{
		catalog:   catalog,
		docs:      catalog.Documents(),
		ranker:    r,
		cache:     cache,
		threshold: tuning.ReactionThresholdOrDefault(),
		maxOpts:   tuning.ReactionMaxOptionsOrDefault(),
		log:       log,
		Float:     rand.Float64,
		IntN:      rand.IntN,
	}
}

// Choose returns a glyph for text, or false when nothing ranks high enough.
func (s *ReactionSelector) Choose(ctx context.Context, text string) (string, bool, error) {
	if len(s.catalog) == 0 {
		return "", false, nil
	}
	key := CacheKey(text)
	if key == "" {
		return "", false, nil
	}

	scores, ok := s.cache.Get(key)
	if !ok {
		var err error
		scores, err = s.ranker.Rank(ctx, s.docs, key)
		if err != nil {
			return "", false, fmt.Errorf("rank reactions: %w", err)
		}
		if len(scores) == 0 {
			return "", false, nil
		}
		s.cache.Put(key, scores)
	}

	kept := ranking.Above(scores, s.threshold, s.maxOpts)
	if len(kept) == 0 {
		return "", false, nil
	}
	pick := weighted(kept, s.Float())
	if pick.Index < 0 || pick.Index >= len(s.catalog) {
		return "", false, nil
	}
	glyphs := s.catalog[pick.Index].Glyphs
	if len(glyphs) == 0 {
		return "", false, nil
	}
	return glyphs[s.IntN(len(glyphs))], true, nil
}

// React attaches a chosen reaction to ev. Ranking failures and empty
// selections are silent no-ops.
func (s *ReactionSelector) React(ctx context.Context, gw platform.Gateway, ev platform.Event) {
	glyph, ok, err := s.Choose(ctx, ev.Content)
	if err != nil {
		s.log.Debug().Err(err).Str("message", ev.ID).Msg("reaction skipped")
		return
	}
	if !ok {
		return
	}
	if err := gw.AddReaction(ctx, ev, glyph); err != nil {
		s.log.Warn().Err(err).Str("channel", ev.ChannelID).Msg("add reaction failed")
		return
	}
	s.log.Debug().Str("channel", ev.ChannelID).Str("emoji", glyph).Msg("reacted")
}

// weighted picks one score with probability proportional to its value,
// u being a uniform draw in [0,1).
func weighted(options []ranking.Score, u float64) ranking.Score {
	var total float64
	for _, o := range options {
		total += o.Score
	}
	target := u * total
	for _, o := range options {
		target -= o.Score
		if target < 0 {
			return o
		}
	}
	return options[len(options)-1]
}
