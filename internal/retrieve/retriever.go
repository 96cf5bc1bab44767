// Package retrieve finds the knowledge chunks most relevant to a query:
// expand the query with the module's intent hint, search the vector index,
// and optionally rerank the candidates with an LLM scoring pass.
//
// Reranking is strictly best-effort. If the scoring call fails or its output
// cannot be parsed, retrieval degrades to the original vector-similarity
// ordering; a rerank failure is never fatal to a chat turn.
package retrieve

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/scribeworks/scribe/internal/vecstore"
)

// Retrieval tuning knobs.
const (
	// DefaultTopK is the number of hits returned when unspecified.
	DefaultTopK = 10

	// maxRerankCandidates bounds the cost of one rerank LLM call.
	maxRerankCandidates = 12

	// maxCandidatePool caps the widened candidate search when reranking.
	maxCandidatePool = 30

	// rerankPassageLimit truncates candidate texts sent to the scorer.
	rerankPassageLimit = 900

	// looseThresholdRatio widens the score threshold for the initial search
	// when reranking, so the reranker has material to work with.
	looseThresholdRatio = 0.8

	// unscoredPenalty is applied to a candidate's original score when the
	// scorer fails to score it.
	unscoredPenalty = 0.5
)

// Embedder embeds a search query.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Searcher is the vector-index search surface the retriever needs.
type Searcher interface {
	Search(ctx context.Context, queryVector []float32, opts vecstore.SearchOptions) ([]vecstore.Hit, error)
}

// Scorer scores passages 0.0-1.0 for relevance to a query, in input order.
type Scorer interface {
	ScoreRelevance(ctx context.Context, query string, passages []string) ([]float64, error)
}

// Options configures one retrieval.
type Options struct {
	// TopK is the maximum number of hits returned. <= 0 means DefaultTopK.
	TopK int

	// ScoreThreshold drops hits below it. Zero keeps everything.
	ScoreThreshold float32

	// Rerank enables the LLM scoring pass.
	Rerank bool

	// RerankTopK is the result size after reranking. <= 0 means TopK.
	RerankTopK int

	// FileID optionally restricts the search to one file.
	FileID string

	// Domain optionally restricts the search to one knowledge domain.
	Domain string
}

// Hit is one retrieved chunk. Ephemeral; consumed by context composition.
type Hit struct {
	Text       string
	Score      float32
	Filename   string
	FileID     string
	ChunkIndex int
}

// Result is the outcome of one retrieval.
type Result struct {
	Hits           []Hit
	TotalRetrieved int
	Query          string
}

// Retriever performs knowledge retrieval for chat turns.
type Retriever struct {
	embedder Embedder
	searcher Searcher
	scorer   Scorer // nil disables reranking entirely
	logger   *slog.Logger
}

// New creates a Retriever. scorer may be nil, in which case rerank requests
// fall back to vector ordering.
func New(embedder Embedder, searcher Searcher, scorer Scorer, logger *slog.Logger) *Retriever {
	if logger == nil {
		logger = slog.Default()
	}
	return &Retriever{
		embedder: embedder,
		searcher: searcher,
		scorer:   scorer,
		logger:   logger,
	}
}

// Retrieve searches moduleKey's knowledge base for chunks relevant to query.
func (r *Retriever) Retrieve(ctx context.Context, moduleKey string, query string, opts Options) (Result, error) {
	topK := opts.TopK
	if topK <= 0 {
		topK = DefaultTopK
	}

	expanded := expandQuery(query, Module(moduleKey))
	queryVector, err := r.embedder.EmbedQuery(ctx, expanded)
	if err != nil {
		return Result{}, fmt.Errorf("embed query: %w", err)
	}

	// When reranking, over-fetch at a looser threshold so the scorer has
	// candidates beyond the final cut.
	searchK := topK
	threshold := opts.ScoreThreshold
	if opts.Rerank {
		searchK = min(topK*3, maxCandidatePool)
		threshold = opts.ScoreThreshold * looseThresholdRatio
	}

	candidates, err := r.searcher.Search(ctx, queryVector, vecstore.SearchOptions{
		TopK:           searchK,
		ScoreThreshold: threshold,
		Filter: vecstore.Filter{
			ModuleKey: moduleKey,
			FileID:    opts.FileID,
			Domain:    opts.Domain,
		},
	})
	if err != nil {
		return Result{}, fmt.Errorf("vector search: %w", err)
	}

	totalRetrieved := len(candidates)

	if opts.Rerank && r.scorer != nil && len(candidates) > topK {
		// Rerank scores relevance to the original query, not the expanded
		// one; the hint words would pollute the judgment.
		candidates = r.rerank(ctx, query, candidates)
		if k := opts.RerankTopK; k > 0 {
			topK = k
		}
	}

	if len(candidates) > topK {
		candidates = candidates[:topK]
	}

	hits := make([]Hit, len(candidates))
	for i, c := range candidates {
		hits[i] = Hit{
			Text:       c.Payload.Text,
			Score:      c.Score,
			Filename:   c.Payload.Filename,
			FileID:     c.Payload.FileID,
			ChunkIndex: c.Payload.ChunkIndex,
		}
	}

	r.logger.Debug("retrieval complete",
		"module", moduleKey, "retrieved", totalRetrieved, "returned", len(hits), "rerank", opts.Rerank)

	return Result{Hits: hits, TotalRetrieved: totalRetrieved, Query: query}, nil
}

// rerank rescores the head of the candidate list with the LLM scorer and
// re-sorts it; candidates beyond the rerank window keep their position after
// the reranked head. Any failure returns the candidates untouched.
func (r *Retriever) rerank(ctx context.Context, query string, candidates []vecstore.Hit) []vecstore.Hit {
	window := min(len(candidates), maxRerankCandidates)

	passages := make([]string, window)
	for i := 0; i < window; i++ {
		passages[i] = truncate(candidates[i].Payload.Text, rerankPassageLimit)
	}

	scores, err := r.scorer.ScoreRelevance(ctx, query, passages)
	if err != nil {
		r.logger.Warn("rerank failed, keeping vector ordering", "error", err)
		return candidates
	}

	head := make([]vecstore.Hit, window)
	copy(head, candidates[:window])
	for i := range head {
		if i < len(scores) && scores[i] >= 0 && scores[i] <= 1 {
			head[i].Score = float32(scores[i])
		} else {
			// The scorer skipped or mangled this candidate; keep it in the
			// running at a discount instead of dropping it.
			head[i].Score *= unscoredPenalty
		}
	}
	sort.SliceStable(head, func(i, j int) bool { return head[i].Score > head[j].Score })

	return append(head, candidates[window:]...)
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	// Back off to a rune boundary.
	for limit > 0 && s[limit]&0xC0 == 0x80 {
		limit--
	}
	return s[:limit]
}
