package ai

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"github.com/keshon/botfleet/pkg/ratelimit"
)

func newOpenAIClient(apiKey, baseURL string) *openai.Client {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	client := openai.NewClient(opts...)
	return &client
}

// wrapErr turns an API error into a ratelimit.StatusError so the limiter
// can react to overload.
func wrapErr(op string, err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return &ratelimit.StatusError{Code: apiErr.StatusCode, Err: fmt.Errorf("%s: %w", op, err)}
	}
	return fmt.Errorf("%s: %w", op, err)
}

// OpenAIProvider talks to the chat completions endpoint.
type OpenAIProvider struct {
	client  *openai.Client
	model   string
	limiter *ratelimit.AdaptiveLimiter
}

func NewOpenAIProvider(client *openai.Client, model string) *OpenAIProvider {
	return &OpenAIProvider{client: client, model: model, limiter: newLimiter()}
}

func (p *OpenAIProvider) Generate(ctx context.Context, messages []Message, opts Options) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(p.model),
		Messages: make([]openai.ChatCompletionMessageParamUnion, 0, len(messages)),
	}
	if opts.Model != "" {
		params.Model = openai.ChatModel(opts.Model)
	}
	if opts.Temperature != nil {
		params.Temperature = openai.Float(*opts.Temperature)
	}
	if opts.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(opts.MaxTokens))
	}
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			params.Messages = append(params.Messages, openai.SystemMessage(m.Content))
		case RoleAssistant:
			params.Messages = append(params.Messages, openai.AssistantMessage(m.Content))
		default:
			params.Messages = append(params.Messages, openai.UserMessage(m.Content))
		}
	}

	if err := p.limiter.Wait(ctx); err != nil {
		return "", err
	}
	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		err = wrapErr("chat completion", err)
		p.limiter.Observe(err)
		return "", err
	}
	p.limiter.Observe(nil)

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion: empty choices")
	}
	reply := cleanReply(resp.Choices[0].Message.Content)
	if reply == "" {
		return "", fmt.Errorf("chat completion: empty reply")
	}
	return reply, nil
}

// OpenAIEmbedder implements ranking.Embedder over the embeddings endpoint.
type OpenAIEmbedder struct {
	client  *openai.Client
	model   string
	limiter *ratelimit.AdaptiveLimiter
}

func NewOpenAIEmbedder(client *openai.Client, model string) *OpenAIEmbedder {
	return &OpenAIEmbedder{client: client, model: model, limiter: newLimiter()}
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, inputs []string) ([][]float64, error) {
	if len(inputs) == 0 {
		return nil, nil
	}
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	resp, err := e.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: inputs},
		Model: openai.EmbeddingModel(e.model),
	})
	if err != nil {
		err = wrapErr("embeddings", err)
		e.limiter.Observe(err)
		return nil, err
	}
	e.limiter.Observe(nil)

	out := make([][]float64, len(inputs))
	for _, d := range resp.Data {
		if d.Index < 0 || int(d.Index) >= len(out) {
			return nil, fmt.Errorf("embeddings: index %d out of range", d.Index)
		}
		out[d.Index] = d.Embedding
	}
	for i, v := range out {
		if v == nil {
			return nil, fmt.Errorf("embeddings: missing vector for input %d", i)
		}
	}
	return out, nil
}

// OpenAIImager generates pictures and stores them under dir.
type OpenAIImager struct {
	client  *openai.Client
	model   string
	dir     string
	limiter *ratelimit.AdaptiveLimiter
}

func NewOpenAIImager(client *openai.Client, model, dir string) *OpenAIImager {
	return &OpenAIImager{client: client, model: model, dir: dir, limiter: newLimiter()}
}

func (g *OpenAIImager) Draw(ctx context.Context, prompt, model string) (Image, error) {
	if model == "" {
		model = g.model
	}
	if err := g.limiter.Wait(ctx); err != nil {
		return Image{}, err
	}
	resp, err := g.client.Images.Generate(ctx, openai.ImageGenerateParams{
		Prompt:         prompt,
		Model:          openai.ImageModel(model),
		N:              openai.Int(1),
		ResponseFormat: openai.ImageGenerateParamsResponseFormatB64JSON,
	})
	if err != nil {
		err = wrapErr("image generation", err)
		g.limiter.Observe(err)
		return Image{}, err
	}
	g.limiter.Observe(nil)

	if len(resp.Data) == 0 {
		return Image{}, fmt.Errorf("image generation: no data")
	}
	if resp.Data[0].B64JSON == "" {
		if resp.Data[0].URL != "" {
			return Image{URL: resp.Data[0].URL}, nil
		}
		return Image{}, fmt.Errorf("image generation: empty image")
	}
	raw, err := base64.StdEncoding.DecodeString(resp.Data[0].B64JSON)
	if err != nil {
		return Image{}, fmt.Errorf("image generation: decode: %w", err)
	}
	return saveArtifact(g.dir, raw)
}

func saveArtifact(dir string, raw []byte) (Image, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Image{}, fmt.Errorf("create artifact dir: %w", err)
	}
	path := filepath.Join(dir, uuid.NewString()+".png")
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return Image{}, fmt.Errorf("write artifact: %w", err)
	}
	return Image{Path: path}, nil
}
