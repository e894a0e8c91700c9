// Package ranking defines the semantic search collaborator and the ranking
// logic shared by program and reaction selection.
package ranking

import (
	"context"
	"errors"
	"slices"
)

// ErrNoScores is returned when the ranking service produced no scored candidates.
var ErrNoScores = errors.New("ranking: no scored candidates")

// Score is the relevance of one candidate document. Index is the position of
// the document in the candidate list passed to Rank.
type Score struct {
	Index    int
	Document string
	Score    float64
}

// Ranker scores candidate documents against a query text.
type Ranker interface {
	Rank(ctx context.Context, documents []string, query string) ([]Score, error)
}

// Sorted returns scores ordered by descending score. Ties keep the original
// candidate order.
func Sorted(scores []Score) []Score {
	out := slices.Clone(scores)
	slices.SortStableFunc(out, func(a, b Score) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		default:
			return a.Index - b.Index
		}
	})
	return out
}

// Top returns the best scored candidate.
func Top(scores []Score) (Score, error) {
	if len(scores) == 0 {
		return Score{}, ErrNoScores
	}
	return Sorted(scores)[0], nil
}

// Above returns, best first, at most max candidates whose score exceeds threshold.
func Above(scores []Score, threshold float64, max int) []Score {
	var out []Score
	for _, s := range Sorted(scores) {
		if len(out) == max {
			break
		}
		if s.Score > threshold {
			out = append(out, s)
		}
	}
	return out
}

// Unavailable is a Ranker used when no ranking backend is configured.
type Unavailable struct{}

func (Unavailable) Rank(context.Context, []string, string) ([]Score, error) {
	return nil, ErrNoScores
}
