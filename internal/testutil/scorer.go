package testutil

import (
	"context"
	"sync"
)

// FakeScorer is a canned rerank scorer. It returns Scores (or Err) for every
// call and records the queries and passages it was given.
//
// It satisfies the retrieve package's Scorer interface. Thread-safe.
type FakeScorer struct {
	Scores []float64
	Err    error

	mu       sync.Mutex
	queries  []string
	passages [][]string
}

// ScoreRelevance returns the canned scores.
func (f *FakeScorer) ScoreRelevance(_ context.Context, query string, passages []string) ([]float64, error) {
	f.mu.Lock()
	f.queries = append(f.queries, query)
	f.passages = append(f.passages, append([]string(nil), passages...))
	f.mu.Unlock()

	if f.Err != nil {
		return nil, f.Err
	}
	return f.Scores, nil
}

// Queries returns a copy of all queries scored, in call order.
func (f *FakeScorer) Queries() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.queries...)
}

// Passages returns a copy of all passage sets scored, in call order.
func (f *FakeScorer) Passages() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make([][]string, len(f.passages))
	copy(cp, f.passages)
	return cp
}
