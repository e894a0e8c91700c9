package ai

import (
	"context"
	"fmt"

	"github.com/keshon/botfleet/internal/config"
	"github.com/keshon/botfleet/internal/ranking"
	"github.com/keshon/botfleet/pkg/ratelimit"
)

// Chat roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Options are per-call completion settings. Zero values mean provider
// defaults.
type Options struct {
	Model       string
	Temperature *float64
	MaxTokens   int
}

// Provider produces a text completion for a conversation.
type Provider interface {
	Generate(ctx context.Context, messages []Message, opts Options) (string, error)
}

// Image is a generated picture: either a local file or a remote URL.
type Image struct {
	Path string
	URL  string
}

// Imager produces a picture for a prompt.
type Imager interface {
	Draw(ctx context.Context, prompt, model string) (Image, error)
}

// Backends bundles the external AI collaborators of the fleet.
type Backends struct {
	Completion Provider
	Images     Imager
	// Embedder is nil when the provider has no embedding endpoint; ranking
	// then reports no scores.
	Embedder ranking.Embedder
}

// Ranker returns the ranking collaborator backed by the embedder.
func (b Backends) Ranker() ranking.Ranker {
	if b.Embedder == nil {
		return ranking.Unavailable{}
	}
	return ranking.NewEmbeddingRanker(b.Embedder)
}

func newLimiter() *ratelimit.AdaptiveLimiter {
	return ratelimit.NewAdaptiveLimiter(2, 1, 10, 1, 0.5)
}

// NewBackends builds the collaborators selected by AI_PROVIDER.
func NewBackends(e *config.Env) (Backends, error) {
	switch e.AIProvider {
	case "openai", "":
		if e.OpenAIKey == "" {
			return Backends{}, fmt.Errorf("OPENAI_API_KEY is required for the openai provider")
		}
		client := newOpenAIClient(e.OpenAIKey, e.OpenAIBaseURL)
		return Backends{
			Completion: NewOpenAIProvider(client, e.ChatModel),
			Images:     NewOpenAIImager(client, e.ImageModel, e.ArtifactDir),
			Embedder:   NewOpenAIEmbedder(client, e.EmbeddingModel),
		}, nil
	case "pollinations":
		b := Backends{
			Completion: NewPollinationsProvider(),
			Images:     NewPollinationsImager(),
		}
		// Pollinations has no embedding endpoint; borrow OpenAI's when a key is present.
		if e.OpenAIKey != "" {
			b.Embedder = NewOpenAIEmbedder(newOpenAIClient(e.OpenAIKey, e.OpenAIBaseURL), e.EmbeddingModel)
		}
		return b, nil
	default:
		return Backends{}, fmt.Errorf("unsupported AI_PROVIDER: %s", e.AIProvider)
	}
}
