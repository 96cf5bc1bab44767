// Package config provides application configuration with multi-source
// priority.
//
// Sources, highest to lowest:
//  1. Environment variables (SCRIBE_* prefix, DATABASE_URL)
//  2. Config file (~/.scribe/config.yaml)
//  3. Defaults
//
// Sensitive values (passwords, API keys) are never logged. Validation uses
// sentinel errors so callers can match with errors.Is.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

var (
	// ErrMissingAPIKey indicates the embedding/rerank API key is missing.
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrInvalidDimensions indicates the embedding dimension is invalid.
	ErrInvalidDimensions = errors.New("invalid embedding dimensions")

	// ErrInvalidChunkBounds indicates the chunk token bounds are inconsistent.
	ErrInvalidChunkBounds = errors.New("invalid chunk token bounds")

	// ErrInvalidThreshold indicates the score threshold is out of range.
	ErrInvalidThreshold = errors.New("invalid score threshold")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is invalid.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the PostgreSQL database name is invalid.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")
)

// Config holds all scribe core settings.
type Config struct {
	// Embedding provider
	OpenAIAPIKey        string
	OpenAIBaseURL       string
	EmbeddingModel      string
	EmbeddingDimensions int
	EmbeddingRPS        float64

	// Rerank
	RerankModel     string
	RerankMaxTokens int

	// Chunking
	ChunkMaxTokens     int
	ChunkMinTokens     int
	ChunkOverlapTokens int

	// Retrieval
	RetrieveTopK   int
	ScoreThreshold float64

	// Composition
	ContextMaxTokens int

	// PostgreSQL
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDBName   string
	PostgresSSLMode  string
}

// Load reads configuration from defaults, the optional config file and the
// environment, then validates it.
func Load() (*Config, error) {
	v := viper.New()

	v.SetDefault("embedding.model", "text-embedding-3-small")
	v.SetDefault("embedding.dimensions", 1536)
	v.SetDefault("embedding.rps", 0.0)
	v.SetDefault("rerank.model", "gpt-4o-mini")
	v.SetDefault("rerank.max_tokens", 256)
	v.SetDefault("chunk.max_tokens", 400)
	v.SetDefault("chunk.min_tokens", 50)
	v.SetDefault("chunk.overlap_tokens", 80)
	v.SetDefault("retrieve.top_k", 10)
	v.SetDefault("retrieve.score_threshold", 0.0)
	v.SetDefault("compose.max_tokens", 8000)
	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "scribe")
	v.SetDefault("postgres.password", "")
	v.SetDefault("postgres.dbname", "scribe")
	v.SetDefault("postgres.sslmode", "disable")

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".scribe"))
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		// Missing config file is fine; defaults plus env carry it.
	}

	v.SetEnvPrefix("SCRIBE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		OpenAIAPIKey:        v.GetString("openai.api_key"),
		OpenAIBaseURL:       v.GetString("openai.base_url"),
		EmbeddingModel:      v.GetString("embedding.model"),
		EmbeddingDimensions: v.GetInt("embedding.dimensions"),
		EmbeddingRPS:        v.GetFloat64("embedding.rps"),
		RerankModel:         v.GetString("rerank.model"),
		RerankMaxTokens:     v.GetInt("rerank.max_tokens"),
		ChunkMaxTokens:      v.GetInt("chunk.max_tokens"),
		ChunkMinTokens:      v.GetInt("chunk.min_tokens"),
		ChunkOverlapTokens:  v.GetInt("chunk.overlap_tokens"),
		RetrieveTopK:        v.GetInt("retrieve.top_k"),
		ScoreThreshold:      v.GetFloat64("retrieve.score_threshold"),
		ContextMaxTokens:    v.GetInt("compose.max_tokens"),
		PostgresHost:        v.GetString("postgres.host"),
		PostgresPort:        v.GetInt("postgres.port"),
		PostgresUser:        v.GetString("postgres.user"),
		PostgresPassword:    v.GetString("postgres.password"),
		PostgresDBName:      v.GetString("postgres.dbname"),
		PostgresSSLMode:     v.GetString("postgres.sslmode"),
	}

	// OPENAI_API_KEY is the conventional variable; honor it when the
	// prefixed one is not set.
	if cfg.OpenAIAPIKey == "" {
		cfg.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")
	}

	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks configuration consistency.
func (c *Config) Validate() error {
	if c.EmbeddingDimensions <= 0 || c.EmbeddingDimensions > 4096 {
		return fmt.Errorf("%w: %d", ErrInvalidDimensions, c.EmbeddingDimensions)
	}
	if c.ChunkMaxTokens <= 0 || c.ChunkMinTokens < 0 || c.ChunkMinTokens >= c.ChunkMaxTokens {
		return fmt.Errorf("%w: min=%d max=%d", ErrInvalidChunkBounds, c.ChunkMinTokens, c.ChunkMaxTokens)
	}
	if c.ChunkOverlapTokens < 0 || c.ChunkOverlapTokens >= c.ChunkMaxTokens {
		return fmt.Errorf("%w: overlap=%d max=%d", ErrInvalidChunkBounds, c.ChunkOverlapTokens, c.ChunkMaxTokens)
	}
	if c.ScoreThreshold < 0 || c.ScoreThreshold > 1 {
		return fmt.Errorf("%w: %g", ErrInvalidThreshold, c.ScoreThreshold)
	}
	if c.PostgresHost == "" {
		return ErrInvalidPostgresHost
	}
	if c.PostgresPort <= 0 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: %d", ErrInvalidPostgresPort, c.PostgresPort)
	}
	if c.PostgresDBName == "" {
		return ErrInvalidPostgresDBName
	}
	return nil
}

// parseDatabaseURL applies the DATABASE_URL environment variable, which
// overrides the individual postgres_* settings. Common in cloud deployments.
func (c *Config) parseDatabaseURL() error {
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil
	}

	parsed, err := url.Parse(dbURL)
	if err != nil {
		return fmt.Errorf("invalid DATABASE_URL: %w", err)
	}
	if parsed.Scheme != "postgres" && parsed.Scheme != "postgresql" {
		return fmt.Errorf("DATABASE_URL must start with postgres:// or postgresql://, got %q", parsed.Scheme)
	}

	if host := parsed.Hostname(); host != "" {
		c.PostgresHost = host
	}
	if portStr := parsed.Port(); portStr != "" {
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return fmt.Errorf("invalid port in DATABASE_URL: %w", err)
		}
		c.PostgresPort = port
	}
	if parsed.User != nil {
		if user := parsed.User.Username(); user != "" {
			c.PostgresUser = user
		}
		if password, ok := parsed.User.Password(); ok {
			c.PostgresPassword = password
		}
	}
	if parsed.Path != "" {
		c.PostgresDBName = strings.TrimPrefix(parsed.Path, "/")
	}
	if sslmode := parsed.Query().Get("sslmode"); sslmode != "" {
		c.PostgresSSLMode = sslmode
	}
	return nil
}

// PostgresURL returns the PostgreSQL URL for pgx and golang-migrate.
// url.URL handles encoding of special characters in credentials.
func (c *Config) PostgresURL() string {
	u := &url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.PostgresUser, c.PostgresPassword),
		Host:     fmt.Sprintf("%s:%d", c.PostgresHost, c.PostgresPort),
		Path:     c.PostgresDBName,
		RawQuery: fmt.Sprintf("sslmode=%s", c.PostgresSSLMode),
	}
	return u.String()
}
