package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/scribeworks/scribe/internal/chunk"
	"github.com/scribeworks/scribe/internal/chunkstore"
	"github.com/scribeworks/scribe/internal/config"
	"github.com/scribeworks/scribe/internal/database"
	"github.com/scribeworks/scribe/internal/embedding"
	"github.com/scribeworks/scribe/internal/ingest"
	"github.com/scribeworks/scribe/internal/log"
	"github.com/scribeworks/scribe/internal/retrieve"
	"github.com/scribeworks/scribe/internal/vecstore"
)

// core bundles the wired-up components shared by the CLI commands.
type core struct {
	cfg       *config.Config
	pool      *pgxpool.Pool
	embedder  *embedding.Client
	vectors   *vecstore.Store
	records   *chunkstore.Store
	ingestor  *ingest.Ingestor
	retriever *retrieve.Retriever
	logger    log.Logger
}

// newCore loads configuration, opens the database and wires the pipeline.
// The returned close function releases the pool.
func newCore(ctx context.Context) (*core, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger := log.New(log.Config{Level: level})

	pool, err := database.Open(ctx, cfg.PostgresURL())
	if err != nil {
		return nil, nil, err
	}

	embedder := embedding.New(embedding.Config{
		APIKey:            cfg.OpenAIAPIKey,
		BaseURL:           cfg.OpenAIBaseURL,
		Model:             cfg.EmbeddingModel,
		Dimensions:        cfg.EmbeddingDimensions,
		RequestsPerSecond: cfg.EmbeddingRPS,
	}, logger.With("component", "embedding"))

	vectors := vecstore.New(pool, logger.With("component", "vecstore"))
	records := chunkstore.New(pool, logger.With("component", "chunkstore"))

	if err := vectors.EnsureCollection(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}

	ingestor := ingest.New(embedder, vectors, records, chunk.Options{
		MaxTokens:     cfg.ChunkMaxTokens,
		MinTokens:     cfg.ChunkMinTokens,
		OverlapTokens: cfg.ChunkOverlapTokens,
	}, logger.With("component", "ingest"))

	scorer := retrieve.NewLLMScorer(retrieve.ScorerConfig{
		APIKey:    cfg.OpenAIAPIKey,
		BaseURL:   cfg.OpenAIBaseURL,
		Model:     cfg.RerankModel,
		MaxTokens: cfg.RerankMaxTokens,
	}, logger.With("component", "rerank"))

	retriever := retrieve.New(embedder, vectors, scorer, logger.With("component", "retrieve"))

	c := &core{
		cfg:       cfg,
		pool:      pool,
		embedder:  embedder,
		vectors:   vectors,
		records:   records,
		ingestor:  ingestor,
		retriever: retriever,
		logger:    logger,
	}
	return c, pool.Close, nil
}
