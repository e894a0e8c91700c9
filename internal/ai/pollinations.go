package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/keshon/botfleet/pkg/ratelimit"
)

const (
	pollinationsTextURL  = "https://text.pollinations.ai/openai"
	pollinationsImageURL = "https://image.pollinations.ai/prompt/"
)

type PollinationsProvider struct {
	client   *http.Client
	endpoint string
	limiter  *ratelimit.AdaptiveLimiter
}

func NewPollinationsProvider() *PollinationsProvider {
	return &PollinationsProvider{
		client: &http.Client{
			Timeout: 25 * time.Second,
		},
		endpoint: pollinationsTextURL,
		limiter:  newLimiter(),
	}
}

func (p *PollinationsProvider) Generate(ctx context.Context, messages []Message, opts Options) (string, error) {
	model := opts.Model
	if model == "" {
		model = "openai"
	}
	temperature := 1.0
	if opts.Temperature != nil {
		temperature = *opts.Temperature
	}
	payload := map[string]interface{}{
		"model":       model,
		"messages":    messages,
		"temperature": temperature,
		"private":     true,
	}
	if opts.MaxTokens > 0 {
		payload["max_tokens"] = opts.MaxTokens
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	if err := p.limiter.Wait(ctx); err != nil {
		return "", err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err := &ratelimit.StatusError{
			Code: resp.StatusCode,
			Err:  fmt.Errorf("pollinations http %d: %s", resp.StatusCode, truncate(body)),
		}
		p.limiter.Observe(err)
		return "", err
	}
	p.limiter.Observe(nil)

	if strings.Contains(resp.Header.Get("Content-Type"), "text/html") {
		return "", fmt.Errorf("pollinations returned html")
	}

	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}

	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", err
	}

	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("pollinations empty choices")
	}

	reply := cleanReply(parsed.Choices[0].Message.Content)
	if isGarbageResponse(reply) {
		return "", fmt.Errorf("pollinations returned garbage")
	}

	return reply, nil
}

// PollinationsImager renders through the public image endpoint. The picture
// is produced when the URL is fetched, so Draw never blocks.
type PollinationsImager struct {
	base string
}

func NewPollinationsImager() *PollinationsImager {
	return &PollinationsImager{base: pollinationsImageURL}
}

func (g *PollinationsImager) Draw(_ context.Context, prompt, model string) (Image, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return Image{}, fmt.Errorf("pollinations: empty prompt")
	}
	q := url.Values{}
	q.Set("nologo", "true")
	q.Set("private", "true")
	if model != "" {
		q.Set("model", model)
	}
	return Image{URL: g.base + url.PathEscape(prompt) + "?" + q.Encode()}, nil
}
