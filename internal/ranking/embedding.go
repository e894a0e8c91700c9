package ranking

import (
	"context"
	"fmt"
	"math"
	"sync"
)

// Embedder turns texts into embedding vectors, one per input, in input order.
type Embedder interface {
	Embed(ctx context.Context, inputs []string) ([][]float64, error)
}

// EmbeddingRanker scores documents by cosine similarity between embeddings,
// scaled to 0..100. Document embeddings are cached for the process lifetime
// since candidate documents come from static configuration.
type EmbeddingRanker struct {
	embedder Embedder
	mu       sync.Mutex
	docs     map[string][]float64
}

func NewEmbeddingRanker(e Embedder) *EmbeddingRanker {
	return &EmbeddingRanker{
		embedder: e,
		docs:     make(map[string][]float64),
	}
}

func (r *EmbeddingRanker) Rank(ctx context.Context, documents []string, query string) ([]Score, error) {
	if len(documents) == 0 {
		return nil, ErrNoScores
	}

	r.mu.Lock()
	var missing []string
	seen := make(map[string]bool)
	for _, d := range documents {
		if _, ok := r.docs[d]; !ok && !seen[d] {
			missing = append(missing, d)
			seen[d] = true
		}
	}
	r.mu.Unlock()

	inputs := append(missing, query)
	vecs, err := r.embedder.Embed(ctx, inputs)
	if err != nil {
		return nil, fmt.Errorf("embed: %w", err)
	}
	if len(vecs) != len(inputs) {
		return nil, ErrNoScores
	}

	r.mu.Lock()
	for i, d := range missing {
		r.docs[d] = vecs[i]
	}
	docVecs := make([][]float64, len(documents))
	for i, d := range documents {
		docVecs[i] = r.docs[d]
	}
	r.mu.Unlock()

	qv := vecs[len(vecs)-1]
	scores := make([]Score, 0, len(documents))
	for i, d := range documents {
		scores = append(scores, Score{
			Index:    i,
			Document: d,
			Score:    100 * cosine(docVecs[i], qv),
		})
	}
	return scores, nil
}

func cosine(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
