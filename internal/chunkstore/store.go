// Package chunkstore persists the durable chunk records that join a
// document's chunks to their vectors.
//
// Records are keyed by (module_key, file_id, chunk_index); vector_id is the
// join key into the vector collection. During ingestion records are written
// before vectors, so a crash leaves at worst a record with a dangling
// vector_id, which the ingest audit can detect and repair.
package chunkstore

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB is the subset of pgxpool.Pool the store needs.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// Record is a durable chunk record.
type Record struct {
	ModuleKey  string
	FileID     string
	Filename   string
	ChunkIndex int
	VectorID   string
	Text       string
	TokenCount int
}

// Store reads and writes chunk records. Safe for concurrent use.
type Store struct {
	db     DB
	logger *slog.Logger
}

// New creates a Store over the given database.
func New(db DB, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, logger: logger}
}

const insertSQL = `INSERT INTO knowledge_chunks
	(module_key, file_id, filename, chunk_index, vector_id, content, token_count)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	ON CONFLICT (module_key, file_id, chunk_index) DO UPDATE SET
		filename = EXCLUDED.filename,
		vector_id = EXCLUDED.vector_id,
		content = EXCLUDED.content,
		token_count = EXCLUDED.token_count`

// InsertBatch upserts all records in one database round trip.
func (s *Store) InsertBatch(ctx context.Context, recs []Record) error {
	if len(recs) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, r := range recs {
		batch.Queue(insertSQL,
			r.ModuleKey, r.FileID, r.Filename, r.ChunkIndex,
			r.VectorID, r.Text, r.TokenCount)
	}
	br := s.db.SendBatch(ctx, batch)
	var execErr error
	for range recs {
		if _, err := br.Exec(); err != nil && execErr == nil {
			execErr = err
		}
	}
	if err := br.Close(); err != nil && execErr == nil {
		execErr = err
	}
	if execErr != nil {
		return fmt.Errorf("insert %d chunk records: %w", len(recs), execErr)
	}
	s.logger.Debug("inserted chunk records", "count", len(recs))
	return nil
}

const selectCols = `module_key, file_id, filename, chunk_index, vector_id, content, token_count`

// ListByFile returns all records for one file, in chunk order.
func (s *Store) ListByFile(ctx context.Context, moduleKey, fileID string) ([]Record, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+selectCols+` FROM knowledge_chunks
		WHERE module_key = $1 AND file_id = $2
		ORDER BY chunk_index`, moduleKey, fileID)
	if err != nil {
		return nil, fmt.Errorf("list chunks for file %q: %w", fileID, err)
	}
	return scanRecords(rows)
}

// ListByModule returns all records for a module, grouped by file then chunk
// order.
func (s *Store) ListByModule(ctx context.Context, moduleKey string) ([]Record, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+selectCols+` FROM knowledge_chunks
		WHERE module_key = $1
		ORDER BY file_id, chunk_index`, moduleKey)
	if err != nil {
		return nil, fmt.Errorf("list chunks for module %q: %w", moduleKey, err)
	}
	return scanRecords(rows)
}

// DeleteByFile removes a file's records and returns how many were removed.
func (s *Store) DeleteByFile(ctx context.Context, moduleKey, fileID string) (int64, error) {
	tag, err := s.db.Exec(ctx,
		`DELETE FROM knowledge_chunks WHERE module_key = $1 AND file_id = $2`,
		moduleKey, fileID)
	if err != nil {
		return 0, fmt.Errorf("delete chunks for file %q: %w", fileID, err)
	}
	return tag.RowsAffected(), nil
}

// DeleteByModule removes all of a module's records.
func (s *Store) DeleteByModule(ctx context.Context, moduleKey string) (int64, error) {
	tag, err := s.db.Exec(ctx,
		`DELETE FROM knowledge_chunks WHERE module_key = $1`, moduleKey)
	if err != nil {
		return 0, fmt.Errorf("delete chunks for module %q: %w", moduleKey, err)
	}
	return tag.RowsAffected(), nil
}

// CountByModule returns the number of records in a module.
func (s *Store) CountByModule(ctx context.Context, moduleKey string) (int, error) {
	var count int64
	err := s.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM knowledge_chunks WHERE module_key = $1`, moduleKey).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count chunks for module %q: %w", moduleKey, err)
	}
	if count > math.MaxInt {
		return 0, fmt.Errorf("chunk count %d exceeds platform int capacity", count)
	}
	return int(count), nil
}

func scanRecords(rows pgx.Rows) ([]Record, error) {
	defer rows.Close()
	var recs []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.ModuleKey, &r.FileID, &r.Filename, &r.ChunkIndex,
			&r.VectorID, &r.Text, &r.TokenCount); err != nil {
			return nil, fmt.Errorf("scan chunk record: %w", err)
		}
		recs = append(recs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("chunk record rows: %w", err)
	}
	return recs, nil
}
