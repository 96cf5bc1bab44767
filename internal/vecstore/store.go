// Package vecstore is a thin, stateful wrapper over the vector database
// (PostgreSQL + pgvector): collection lifecycle plus filtered upsert, search,
// delete and count.
//
// It holds no business logic beyond translating the generic vector contract
// into SQL, so the store stays swappable.
package vecstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"
)

// Dimensions is the fixed collection dimension. It must match the embedding
// client's configured dimension.
const Dimensions = 1536

// upsertBatchSize caps points per write, mirroring the embedder's provider
// batch limit.
const upsertBatchSize = 100

// ErrEmptyFilter is returned by DeleteByFilter when the filter matches
// everything. Wiping the whole collection must be an explicit decision.
var ErrEmptyFilter = errors.New("vecstore: filter must set at least one field")

// DB is the subset of pgxpool.Pool the store needs. Defined here, by the
// consumer, so tests can substitute a fake.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// Payload carries enough metadata to reconstruct a retrieval hit without a
// second lookup.
type Payload struct {
	ModuleKey  string
	FileID     string
	Filename   string
	ChunkIndex int
	Domain     string
	Text       string
}

// Record is one stored point: id, vector, payload.
type Record struct {
	ID      string
	Vector  []float32
	Payload Payload
}

// Hit is a search result: a record plus its cosine similarity score.
type Hit struct {
	Record
	Score float32
}

// Filter restricts search, delete and count. All set fields must match
// (AND semantics); empty fields are ignored.
type Filter struct {
	ModuleKey string
	FileID    string
	Domain    string
}

func (f Filter) empty() bool {
	return f.ModuleKey == "" && f.FileID == "" && f.Domain == ""
}

// SearchOptions configures a vector search.
type SearchOptions struct {
	// TopK is the maximum number of hits. Values <= 0 default to 10.
	TopK int

	// ScoreThreshold drops hits scoring below it. Zero keeps everything.
	ScoreThreshold float32

	// Filter restricts candidates before ranking.
	Filter Filter
}

// Store implements the vector index over a pgvector table.
// Safe for concurrent use; the database owns write concurrency.
type Store struct {
	db     DB
	logger *slog.Logger
}

// New creates a Store. EnsureCollection must be called before first use.
func New(db DB, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, logger: logger}
}

// EnsureCollection idempotently provisions the vector table, its cosine ANN
// index, and the keyword indexes that make filtered search and delete
// efficient.
func (s *Store) EnsureCollection(ctx context.Context) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS knowledge_vectors (
			id UUID PRIMARY KEY,
			embedding vector(%d) NOT NULL,
			module_key TEXT NOT NULL,
			file_id TEXT NOT NULL,
			filename TEXT NOT NULL DEFAULT '',
			chunk_index INT NOT NULL DEFAULT 0,
			domain TEXT NOT NULL DEFAULT '',
			content TEXT NOT NULL DEFAULT ''
		)`, Dimensions),
		`CREATE INDEX IF NOT EXISTS knowledge_vectors_module_key_idx ON knowledge_vectors (module_key)`,
		`CREATE INDEX IF NOT EXISTS knowledge_vectors_file_id_idx ON knowledge_vectors (file_id)`,
		`CREATE INDEX IF NOT EXISTS knowledge_vectors_embedding_idx ON knowledge_vectors
			USING hnsw (embedding vector_cosine_ops)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure collection: %w", err)
		}
	}
	return nil
}

// Upsert writes a single point, replacing any existing point with the same id.
func (s *Store) Upsert(ctx context.Context, rec Record) error {
	_, err := s.db.Exec(ctx, upsertSQL,
		rec.ID, pgvector.NewVector(rec.Vector),
		rec.Payload.ModuleKey, rec.Payload.FileID, rec.Payload.Filename,
		rec.Payload.ChunkIndex, rec.Payload.Domain, rec.Payload.Text)
	if err != nil {
		return fmt.Errorf("upsert point %q: %w", rec.ID, err)
	}
	return nil
}

const upsertSQL = `INSERT INTO knowledge_vectors
	(id, embedding, module_key, file_id, filename, chunk_index, domain, content)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	ON CONFLICT (id) DO UPDATE SET
		embedding = EXCLUDED.embedding,
		module_key = EXCLUDED.module_key,
		file_id = EXCLUDED.file_id,
		filename = EXCLUDED.filename,
		chunk_index = EXCLUDED.chunk_index,
		domain = EXCLUDED.domain,
		content = EXCLUDED.content`

// UpsertBatch writes points in sequential groups of at most 100.
func (s *Store) UpsertBatch(ctx context.Context, recs []Record) error {
	for _, group := range splitGroups(recs, upsertBatchSize) {
		batch := &pgx.Batch{}
		for _, rec := range group {
			batch.Queue(upsertSQL,
				rec.ID, pgvector.NewVector(rec.Vector),
				rec.Payload.ModuleKey, rec.Payload.FileID, rec.Payload.Filename,
				rec.Payload.ChunkIndex, rec.Payload.Domain, rec.Payload.Text)
		}
		br := s.db.SendBatch(ctx, batch)
		var execErr error
		for range group {
			if _, err := br.Exec(); err != nil && execErr == nil {
				execErr = err
			}
		}
		if err := br.Close(); err != nil && execErr == nil {
			execErr = err
		}
		if execErr != nil {
			return fmt.Errorf("upsert batch of %d points: %w", len(group), execErr)
		}
	}
	s.logger.Debug("upserted points", "count", len(recs))
	return nil
}

// Search returns the nearest points to queryVector under the filter, ordered
// by descending cosine similarity.
func (s *Store) Search(ctx context.Context, queryVector []float32, opts SearchOptions) ([]Hit, error) {
	topK := opts.TopK
	if topK <= 0 {
		topK = 10
	}

	where, args := buildFilterClause(opts.Filter, 2)
	args = append([]any{pgvector.NewVector(queryVector)}, args...)
	args = append(args, topK)

	sql := fmt.Sprintf(`SELECT id, module_key, file_id, filename, chunk_index, domain, content,
		1 - (embedding <=> $1) AS score
		FROM knowledge_vectors%s
		ORDER BY embedding <=> $1
		LIMIT $%d`, where, len(args))

	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		var (
			h     Hit
			score float64
		)
		if err := rows.Scan(&h.ID, &h.Payload.ModuleKey, &h.Payload.FileID,
			&h.Payload.Filename, &h.Payload.ChunkIndex, &h.Payload.Domain,
			&h.Payload.Text, &score); err != nil {
			return nil, fmt.Errorf("scan search row: %w", err)
		}
		h.Score = float32(score)
		if opts.ScoreThreshold > 0 && h.Score < opts.ScoreThreshold {
			continue
		}
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("vector search rows: %w", err)
	}
	return hits, nil
}

// Delete removes points by id. Unknown ids are ignored.
func (s *Store) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.db.Exec(ctx,
		`DELETE FROM knowledge_vectors WHERE id = ANY($1::uuid[])`, ids)
	if err != nil {
		return fmt.Errorf("delete %d points: %w", len(ids), err)
	}
	s.logger.Debug("deleted points", "count", len(ids))
	return nil
}

// DeleteByFilter removes every point matching the filter and returns how many
// were removed. An empty filter is rejected with ErrEmptyFilter.
func (s *Store) DeleteByFilter(ctx context.Context, f Filter) (int64, error) {
	if f.empty() {
		return 0, ErrEmptyFilter
	}
	where, args := buildFilterClause(f, 1)
	tag, err := s.db.Exec(ctx, `DELETE FROM knowledge_vectors`+where, args...)
	if err != nil {
		return 0, fmt.Errorf("delete by filter: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Count returns the number of points matching the filter. An empty filter
// counts everything.
func (s *Store) Count(ctx context.Context, f Filter) (int, error) {
	where, args := buildFilterClause(f, 1)
	var count int64
	err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM knowledge_vectors`+where, args...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count points: %w", err)
	}
	if count > math.MaxInt {
		return 0, fmt.Errorf("point count %d exceeds platform int capacity", count)
	}
	return int(count), nil
}

// IDsByFilter returns the ids of all points matching the filter. Used by the
// ingest audit to find orphaned vectors.
func (s *Store) IDsByFilter(ctx context.Context, f Filter) ([]string, error) {
	if f.empty() {
		return nil, ErrEmptyFilter
	}
	where, args := buildFilterClause(f, 1)
	rows, err := s.db.Query(ctx, `SELECT id FROM knowledge_vectors`+where, args...)
	if err != nil {
		return nil, fmt.Errorf("list ids by filter: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list ids rows: %w", err)
	}
	return ids, nil
}

// FilterExisting returns the subset of ids that exist in the collection.
func (s *Store) FilterExisting(ctx context.Context, ids []string) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.db.Query(ctx,
		`SELECT id FROM knowledge_vectors WHERE id = ANY($1::uuid[])`, ids)
	if err != nil {
		return nil, fmt.Errorf("filter existing ids: %w", err)
	}
	defer rows.Close()

	var existing []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan id: %w", err)
		}
		existing = append(existing, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("filter existing rows: %w", err)
	}
	return existing, nil
}

// splitGroups slices recs into consecutive groups of at most size elements.
func splitGroups(recs []Record, size int) [][]Record {
	if len(recs) == 0 {
		return nil
	}
	groups := make([][]Record, 0, (len(recs)+size-1)/size)
	for start := 0; start < len(recs); start += size {
		end := min(start+size, len(recs))
		groups = append(groups, recs[start:end])
	}
	return groups
}

// buildFilterClause renders a Filter as a WHERE clause with placeholders
// starting at argOffset. Returns an empty clause for an empty filter.
func buildFilterClause(f Filter, argOffset int) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(col, val string) {
		if val == "" {
			return
		}
		conds = append(conds, fmt.Sprintf("%s = $%d", col, argOffset+len(args)))
		args = append(args, val)
	}
	add("module_key", f.ModuleKey)
	add("file_id", f.FileID)
	add("domain", f.Domain)

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}
