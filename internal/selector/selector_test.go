package selector

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keshon/botfleet/internal/config"
	"github.com/keshon/botfleet/internal/platform"
	"github.com/keshon/botfleet/internal/ranking"
)

type fakeRanker struct {
	mu      sync.Mutex
	scores  []float64
	err     error
	calls   int
	queries []string
}

func (f *fakeRanker) Rank(_ context.Context, docs []string, query string) ([]ranking.Score, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.queries = append(f.queries, query)
	if f.err != nil {
		return nil, f.err
	}
	out := make([]ranking.Score, 0, len(f.scores))
	for i, s := range f.scores {
		if i >= len(docs) {
			break
		}
		out = append(out, ranking.Score{Index: i, Document: docs[i], Score: s})
	}
	return out, nil
}

type fakeGateway struct {
	platform.Gateway
	mu        sync.Mutex
	reactions []string
	err       error
}

func (g *fakeGateway) AddReaction(_ context.Context, _ platform.Event, emoji string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.reactions = append(g.reactions, emoji)
	return g.err
}

func optionsContext() *config.Context {
	return &config.Context{Options: []config.Option{
		{Document: "drawings and pictures", Program: "draw"},
		{Document: "small talk", Program: "chat"},
		{Document: "music", Program: "np"},
	}}
}

func TestSelectStaticProgram(t *testing.T) {
	r := &fakeRanker{}
	s := NewProgramSelector(r, zerolog.Nop())
	name, err := s.Select(context.Background(), &config.Context{Program: "chat"}, "anything")
	require.NoError(t, err)
	assert.Equal(t, "chat", name)
	assert.Zero(t, r.calls)
}

func TestSelectRankedProgram(t *testing.T) {
	r := &fakeRanker{scores: []float64{12, 70, 40}}
	s := NewProgramSelector(r, zerolog.Nop())

	name, err := s.Select(context.Background(), optionsContext(), "<@!999> how are you")
	require.NoError(t, err)
	assert.Equal(t, "chat", name)
	assert.Equal(t, []string{"how are you"}, r.queries)
}

func TestSelectBareMentionTakesFirstOption(t *testing.T) {
	r := &fakeRanker{err: errors.New("input must not be empty")}
	s := NewProgramSelector(r, zerolog.Nop())

	name, err := s.Select(context.Background(), optionsContext(), " <@!999>  ")
	require.NoError(t, err)
	assert.Equal(t, "draw", name)
	assert.Zero(t, r.calls)
}

func TestSelectTieGoesToFirstListed(t *testing.T) {
	s := NewProgramSelector(&fakeRanker{scores: []float64{50, 50, 10}}, zerolog.Nop())
	name, err := s.Select(context.Background(), optionsContext(), "x")
	require.NoError(t, err)
	assert.Equal(t, "draw", name)
}

func TestSelectFailsWithoutScores(t *testing.T) {
	s := NewProgramSelector(&fakeRanker{}, zerolog.Nop())
	_, err := s.Select(context.Background(), optionsContext(), "x")
	assert.ErrorIs(t, err, ranking.ErrNoScores)

	s = NewProgramSelector(&fakeRanker{err: errors.New("down")}, zerolog.Nop())
	_, err = s.Select(context.Background(), optionsContext(), "x")
	assert.Error(t, err)

	_, err = s.Select(context.Background(), nil, "x")
	assert.ErrorIs(t, err, ErrNoContext)
}

func testCatalog() Catalog {
	return Catalog{
		{Description: "A", Glyphs: []string{"a1", "a2"}},
		{Description: "B", Glyphs: []string{"b1"}},
		{Description: "C", Glyphs: []string{"c1"}},
		{Description: "D", Glyphs: []string{"d1"}},
	}
}

func TestReactionThresholding(t *testing.T) {
	r := &fakeRanker{scores: []float64{85, 30, 15, 5}}
	s := NewReactionSelector(testCatalog(), r, nil, config.Tuning{}, zerolog.Nop())
	s.IntN = func(int) int { return 0 }

	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		u := float64(i) / 100
		s.Float = func() float64 { return u }
		glyph, ok, err := s.Choose(context.Background(), "hello")
		require.NoError(t, err)
		require.True(t, ok)
		seen[glyph] = true
	}
	assert.Equal(t, map[string]bool{"a1": true, "b1": true}, seen)
	// one ranking call, the rest served from the cache
	assert.Equal(t, 1, r.calls)
}

func TestReactionWeightedChoice(t *testing.T) {
	opts := []ranking.Score{{Index: 0, Score: 75}, {Index: 1, Score: 25}}
	assert.Equal(t, 0, weighted(opts, 0).Index)
	assert.Equal(t, 0, weighted(opts, 0.74).Index)
	assert.Equal(t, 1, weighted(opts, 0.76).Index)
	assert.Equal(t, 1, weighted(opts, 0.999).Index)
}

func TestReactionCapsOptions(t *testing.T) {
	cat := Catalog{}
	for _, d := range []string{"a", "b", "c", "d", "e", "f"} {
		cat = append(cat, Emoji{Description: d, Glyphs: []string{d}})
	}
	r := &fakeRanker{scores: []float64{90, 80, 70, 60, 50, 40}}
	s := NewReactionSelector(cat, r, nil, config.Tuning{}, zerolog.Nop())
	s.IntN = func(int) int { return 0 }
	s.Float = func() float64 { return 0.9999 }

	glyph, ok, err := s.Choose(context.Background(), "x")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "d", glyph)
}

func TestReactionNoOps(t *testing.T) {
	low := &fakeRanker{scores: []float64{10, 5, 1, 0}}
	s := NewReactionSelector(testCatalog(), low, nil, config.Tuning{}, zerolog.Nop())
	_, ok, err := s.Choose(context.Background(), "x")
	require.NoError(t, err)
	assert.False(t, ok)

	empty := &fakeRanker{}
	cache := NewReactionCache()
	s = NewReactionSelector(testCatalog(), empty, cache, config.Tuning{}, zerolog.Nop())
	_, ok, err = s.Choose(context.Background(), "x")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Zero(t, cache.Len())

	s = NewReactionSelector(testCatalog(), &fakeRanker{err: ranking.ErrNoScores}, nil, config.Tuning{}, zerolog.Nop())
	_, _, err = s.Choose(context.Background(), "x")
	assert.ErrorIs(t, err, ranking.ErrNoScores)
}

func TestReactionSkipsBareMention(t *testing.T) {
	r := &fakeRanker{scores: []float64{85, 30, 15, 5}}
	cache := NewReactionCache()
	s := NewReactionSelector(testCatalog(), r, cache, config.Tuning{}, zerolog.Nop())

	_, ok, err := s.Choose(context.Background(), "<@999>")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Zero(t, r.calls)
	assert.Zero(t, cache.Len())
}

func TestReactionCacheKeyIgnoresMentions(t *testing.T) {
	r := &fakeRanker{scores: []float64{85, 30, 15, 5}}
	cache := NewReactionCache()
	s := NewReactionSelector(testCatalog(), r, cache, config.Tuning{}, zerolog.Nop())

	_, _, err := s.Choose(context.Background(), "<@111> good morning ")
	require.NoError(t, err)
	_, _, err = s.Choose(context.Background(), "good morning <@!222>")
	require.NoError(t, err)

	assert.Equal(t, 1, r.calls)
	_, ok := cache.Get("good morning")
	assert.True(t, ok)
}

func TestReactUsesGateway(t *testing.T) {
	s := NewReactionSelector(testCatalog(), &fakeRanker{scores: []float64{85, 0, 0, 0}}, nil, config.Tuning{}, zerolog.Nop())
	s.IntN = func(int) int { return 1 }
	gw := &fakeGateway{}

	s.React(context.Background(), gw, platform.Event{ID: "m1", ChannelID: "c", Content: "lol"})
	assert.Equal(t, []string{"a2"}, gw.reactions)
}

func TestLoadCatalog(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "emoji.yaml")
	require.NoError(t, os.WriteFile(path, []byte("- description: joy\n  glyphs: [\"😄\"]\n"), 0o644))

	c, err := LoadCatalog(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"joy"}, c.Documents())

	require.NoError(t, os.WriteFile(path, []byte("- description: joy\n"), 0o644))
	_, err = LoadCatalog(path)
	assert.Error(t, err)

	assert.NotEmpty(t, DefaultCatalog())
}
