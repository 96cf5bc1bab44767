// Package embedding converts text into normalized vectors through an
// OpenAI-compatible embeddings API.
//
// All vectors handed to callers are L2-normalized so downstream cosine
// scoring is consistent regardless of provider normalization. Batches are
// capped per network call and sub-batches run sequentially to keep provider
// rate limiting and error attribution deterministic.
package embedding

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"golang.org/x/time/rate"
)

// DefaultModel is the embedding model used when none is configured.
const DefaultModel = "text-embedding-3-small"

// DefaultDimensions matches the vector collection dimension.
const DefaultDimensions = 1536

// maxBatchSize caps the number of inputs per embeddings API call.
// Most providers reject larger batches or throttle them unpredictably.
const maxBatchSize = 100

// provider performs a single embeddings API call for a batch of inputs.
// It exists so batching and normalization can be tested without a network.
type provider interface {
	createEmbeddings(ctx context.Context, inputs []string) ([][]float64, error)
}

// Config holds embedding client settings.
type Config struct {
	// APIKey authenticates against the provider.
	APIKey string

	// BaseURL overrides the provider endpoint for OpenAI-compatible APIs.
	// Empty means the provider default.
	BaseURL string

	// Model is the embedding model name. Empty means DefaultModel.
	Model string

	// Dimensions is the requested vector dimension. Zero means
	// DefaultDimensions.
	Dimensions int

	// RequestsPerSecond throttles sub-batch calls. Zero disables throttling.
	RequestsPerSecond float64
}

// Client is an embedding client. Safe for concurrent use.
type Client struct {
	provider   provider
	dimensions int
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// New creates an embedding Client backed by the OpenAI embeddings API.
func New(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Dimensions <= 0 {
		cfg.Dimensions = DefaultDimensions
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	api := openai.NewClient(opts...)

	return newWithProvider(&openaiProvider{
		api:        api,
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
	}, cfg, logger)
}

func newWithProvider(p provider, cfg Config, logger *slog.Logger) *Client {
	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	dims := cfg.Dimensions
	if dims <= 0 {
		dims = DefaultDimensions
	}
	return &Client{
		provider:   p,
		dimensions: dims,
		limiter:    limiter,
		logger:     logger,
	}
}

// Dimensions returns the vector dimension produced by this client.
func (c *Client) Dimensions() int {
	return c.dimensions
}

// Embed embeds a single text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedQuery embeds a search query. Queries go through the same cleaning and
// normalization as documents.
func (c *Client) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return c.Embed(ctx, text)
}

// EmbedBatch embeds texts in input order, splitting into sequential
// sub-batches of at most 100 inputs.
//
// A text that is empty after cleaning yields a zero vector and a warning
// rather than an error: upstream chunking should never produce empty chunks,
// but a stray one must not fail the whole document. Any provider failure is
// fatal for the entire batch; partially embedded batches are not salvaged.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))

	// Separate empty inputs (fail-soft zero vectors) from real work.
	var (
		inputs  []string
		origIdx []int
	)
	for i, t := range texts {
		cleaned := cleanText(t)
		if cleaned == "" {
			c.logger.Warn("embedding empty text, substituting zero vector", "index", i)
			out[i] = make([]float32, c.dimensions)
			continue
		}
		inputs = append(inputs, cleaned)
		origIdx = append(origIdx, i)
	}

	for start := 0; start < len(inputs); start += maxBatchSize {
		end := min(start+maxBatchSize, len(inputs))

		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, fmt.Errorf("rate limiter wait: %w", err)
			}
		}

		vecs, err := c.provider.createEmbeddings(ctx, inputs[start:end])
		if err != nil {
			return nil, fmt.Errorf("embed batch [%d:%d]: %w", start, end, err)
		}
		if len(vecs) != end-start {
			return nil, fmt.Errorf("embed batch [%d:%d]: provider returned %d vectors for %d inputs",
				start, end, len(vecs), end-start)
		}

		for i, v := range vecs {
			out[origIdx[start+i]] = normalize(v)
		}
	}

	return out, nil
}

// cleanText strips newlines and trims whitespace before sending to the
// provider. Embedding models treat newlines as semantically noisy.
func cleanText(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "\r", " ")
	return strings.TrimSpace(s)
}

// normalize converts to float32 and L2-normalizes as v / max(‖v‖, 1).
// The max(·, 1) guard keeps near-zero vectors from blowing up.
func normalize(v []float64) []float32 {
	var sum float64
	for _, x := range v {
		sum += x * x
	}
	norm := math.Sqrt(sum)
	if norm < 1 {
		norm = 1
	}
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(x / norm)
	}
	return out
}

// openaiProvider is the production provider over the OpenAI SDK.
type openaiProvider struct {
	api        openai.Client
	model      string
	dimensions int
}

func (p *openaiProvider) createEmbeddings(ctx context.Context, inputs []string) ([][]float64, error) {
	resp, err := p.api.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model:      openai.EmbeddingModel(p.model),
		Input:      openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: inputs},
		Dimensions: openai.Int(int64(p.dimensions)),
	})
	if err != nil {
		return nil, fmt.Errorf("embeddings request: %w", err)
	}
	if len(resp.Data) != len(inputs) {
		return nil, fmt.Errorf("embeddings response has %d items, want %d", len(resp.Data), len(inputs))
	}

	vecs := make([][]float64, len(inputs))
	for _, d := range resp.Data {
		idx := int(d.Index)
		if idx < 0 || idx >= len(vecs) {
			return nil, fmt.Errorf("embeddings response index %d out of range", idx)
		}
		vecs[idx] = d.Embedding
	}
	return vecs, nil
}
