package retrieve

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// DefaultRerankModel is the chat model used for relevance scoring when none
// is configured.
const DefaultRerankModel = "gpt-4o-mini"

const rerankSystemPrompt = "You score how relevant text passages are to a search query. " +
	"Respond with only a JSON array of floats between 0.0 and 1.0, one per passage, in the same order. " +
	"No explanation, no markdown, no other text."

// LLMScorer scores passage relevance with a single chat completion per call.
// It implements Scorer.
type LLMScorer struct {
	api       openai.Client
	model     string
	maxTokens int64
	logger    *slog.Logger
}

// ScorerConfig holds rerank scorer settings.
type ScorerConfig struct {
	APIKey  string
	BaseURL string

	// Model is the chat model name. Empty means DefaultRerankModel.
	Model string

	// MaxTokens caps the scoring completion. Zero means 256, plenty for a
	// float array.
	MaxTokens int
}

// NewLLMScorer creates a scorer over an OpenAI-compatible chat API.
func NewLLMScorer(cfg ScorerConfig, logger *slog.Logger) *LLMScorer {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Model == "" {
		cfg.Model = DefaultRerankModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 256
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &LLMScorer{
		api:       openai.NewClient(opts...),
		model:     cfg.Model,
		maxTokens: int64(cfg.MaxTokens),
		logger:    logger,
	}
}

// ScoreRelevance asks the model for one score per passage.
//
// The response must be a JSON array of floats in passage order; anything else
// is an error, which the retriever treats as "keep vector ordering". A
// shorter-than-expected array is not an error here — the retriever applies
// its per-candidate fallback for missing positions.
func (s *LLMScorer) ScoreRelevance(ctx context.Context, query string, passages []string) ([]float64, error) {
	if len(passages) == 0 {
		return nil, nil
	}

	resp, err := s.api.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(s.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(rerankSystemPrompt),
			openai.UserMessage(buildScoringPrompt(query, passages)),
		},
		MaxTokens:   openai.Int(s.maxTokens),
		Temperature: openai.Float(0),
	})
	if err != nil {
		return nil, fmt.Errorf("rerank completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("rerank completion returned no choices")
	}

	scores, err := parseScores(resp.Choices[0].Message.Content)
	if err != nil {
		return nil, err
	}
	if len(scores) != len(passages) {
		s.logger.Warn("rerank returned partial scores",
			"want", len(passages), "got", len(scores))
	}
	return scores, nil
}

// buildScoringPrompt lays out the query and numbered passages for scoring.
func buildScoringPrompt(query string, passages []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Query: %s\n\nPassages (%d):\n", query, len(passages))
	for i, p := range passages {
		fmt.Fprintf(&b, "\n[%d] %s\n", i+1, p)
	}
	fmt.Fprintf(&b, "\nReturn a JSON array of %d floats.", len(passages))
	return b.String()
}

// parseScores validates the completion as a strict JSON array of floats.
// Only a surrounding markdown fence is tolerated; any other deviation fails,
// triggering the deterministic fallback upstream.
func parseScores(content string) ([]float64, error) {
	trimmed := strings.TrimSpace(content)
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(trimmed, "```")
	trimmed = strings.TrimSpace(trimmed)

	var scores []float64
	if err := json.Unmarshal([]byte(trimmed), &scores); err != nil {
		return nil, fmt.Errorf("rerank response is not a float array: %w", err)
	}
	return scores, nil
}
