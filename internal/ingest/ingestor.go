// Package ingest orchestrates the indexing pipeline: chunk a document, embed
// the chunks, persist durable chunk records, then upsert vectors. Deletion
// reverses the sequence.
//
// Ordering is the one invariant the package enforces: durable records are
// written before vectors on create, and deleted before vectors on delete.
// A crash between the two writes therefore leaves a record with a dangling
// vector id — detectable and repairable by AuditModule — never an orphan
// vector that nothing references.
package ingest

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/scribeworks/scribe/internal/chunk"
	"github.com/scribeworks/scribe/internal/chunkstore"
	"github.com/scribeworks/scribe/internal/vecstore"
)

// Embedder produces normalized vectors for a batch of texts.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// VectorStore is the vector-index surface the ingestor needs.
type VectorStore interface {
	UpsertBatch(ctx context.Context, recs []vecstore.Record) error
	Delete(ctx context.Context, ids []string) error
	DeleteByFilter(ctx context.Context, f vecstore.Filter) (int64, error)
	IDsByFilter(ctx context.Context, f vecstore.Filter) ([]string, error)
	FilterExisting(ctx context.Context, ids []string) ([]string, error)
}

// RecordStore is the durable chunk-record surface the ingestor needs.
type RecordStore interface {
	InsertBatch(ctx context.Context, recs []chunkstore.Record) error
	ListByFile(ctx context.Context, moduleKey, fileID string) ([]chunkstore.Record, error)
	ListByModule(ctx context.Context, moduleKey string) ([]chunkstore.Record, error)
	DeleteByFile(ctx context.Context, moduleKey, fileID string) (int64, error)
	DeleteByModule(ctx context.Context, moduleKey string) (int64, error)
}

// Result summarizes one document ingestion.
type Result struct {
	ChunksCreated   int
	TotalTokens     int
	EmbeddingTokens int
	VectorsStored   int
}

// File is one document in a module reindex.
type File struct {
	ID       string
	Filename string
	Text     string
}

// AuditReport describes the reconciliation of chunk records against vectors.
type AuditReport struct {
	Records         int
	Vectors         int
	MissingVectors  []string // vector ids referenced by records but absent
	OrphanVectors   []string // vector ids with no referencing record
	RepairedVectors int
	DeletedOrphans  int
}

// Ingestor drives the chunk → embed → record → vector pipeline.
type Ingestor struct {
	chunkOpts chunk.Options
	embedder  Embedder
	vectors   VectorStore
	records   RecordStore
	logger    *slog.Logger
}

// New creates an Ingestor. Zero chunkOpts fields use package chunk defaults.
func New(embedder Embedder, vectors VectorStore, records RecordStore, chunkOpts chunk.Options, logger *slog.Logger) *Ingestor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ingestor{
		chunkOpts: chunkOpts,
		embedder:  embedder,
		vectors:   vectors,
		records:   records,
		logger:    logger,
	}
}

// IngestDocument chunks, embeds and indexes one document.
//
// A document that produces zero chunks (empty or shorter than the minimum
// chunk size) is valid input: the result is zero-valued and no store or
// provider is touched. Embedding and store errors are returned as-is so the
// caller can retry the whole document; there is no partial salvage.
func (ing *Ingestor) IngestDocument(ctx context.Context, moduleKey, fileID, filename, text string) (Result, error) {
	chunks := chunk.Split(text, ing.chunkOpts)
	if len(chunks) == 0 {
		ing.logger.Debug("document produced no chunks", "module", moduleKey, "file", fileID)
		return Result{}, nil
	}

	texts := make([]string, len(chunks))
	totalTokens := 0
	for i, c := range chunks {
		texts[i] = c.Text
		totalTokens += c.TokenCount
	}

	vectors, err := ing.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return Result{}, fmt.Errorf("embed document %q: %w", fileID, err)
	}

	recs := make([]chunkstore.Record, len(chunks))
	points := make([]vecstore.Record, len(chunks))
	for i, c := range chunks {
		vectorID := uuid.NewString()
		recs[i] = chunkstore.Record{
			ModuleKey:  moduleKey,
			FileID:     fileID,
			Filename:   filename,
			ChunkIndex: i,
			VectorID:   vectorID,
			Text:       c.Text,
			TokenCount: c.TokenCount,
		}
		points[i] = vecstore.Record{
			ID:     vectorID,
			Vector: vectors[i],
			Payload: vecstore.Payload{
				ModuleKey:  moduleKey,
				FileID:     fileID,
				Filename:   filename,
				ChunkIndex: i,
				Text:       c.Text,
			},
		}
	}

	// Durable records first. If the vector write below fails, the records
	// point at vectors that do not exist yet, which AuditModule can repair;
	// the reverse order would strand unreferenced vectors.
	if err := ing.records.InsertBatch(ctx, recs); err != nil {
		return Result{}, fmt.Errorf("persist chunk records for %q: %w", fileID, err)
	}
	if err := ing.vectors.UpsertBatch(ctx, points); err != nil {
		return Result{}, fmt.Errorf("store vectors for %q: %w", fileID, err)
	}

	ing.logger.Info("document indexed",
		"module", moduleKey, "file", fileID, "chunks", len(chunks), "tokens", totalTokens)

	return Result{
		ChunksCreated:   len(chunks),
		TotalTokens:     totalTokens,
		EmbeddingTokens: totalTokens,
		VectorsStored:   len(points),
	}, nil
}

// DeleteFileChunks removes a file's chunk records and their vectors, records
// first so no vector ever outlives its record unreferenced.
func (ing *Ingestor) DeleteFileChunks(ctx context.Context, moduleKey, fileID string) error {
	recs, err := ing.records.ListByFile(ctx, moduleKey, fileID)
	if err != nil {
		return fmt.Errorf("list chunks for %q: %w", fileID, err)
	}
	if len(recs) == 0 {
		return nil
	}

	vectorIDs := make([]string, len(recs))
	for i, r := range recs {
		vectorIDs[i] = r.VectorID
	}

	if _, err := ing.records.DeleteByFile(ctx, moduleKey, fileID); err != nil {
		return fmt.Errorf("delete chunk records for %q: %w", fileID, err)
	}
	if err := ing.vectors.Delete(ctx, vectorIDs); err != nil {
		return fmt.Errorf("delete vectors for %q: %w", fileID, err)
	}

	ing.logger.Info("file chunks deleted", "module", moduleKey, "file", fileID, "chunks", len(recs))
	return nil
}

// ReindexModule deletes all of a module's chunks and re-ingests the given
// file set. Used when chunking parameters or the embedding model change.
func (ing *Ingestor) ReindexModule(ctx context.Context, moduleKey string, files []File) (Result, error) {
	if _, err := ing.records.DeleteByModule(ctx, moduleKey); err != nil {
		return Result{}, fmt.Errorf("clear chunk records for module %q: %w", moduleKey, err)
	}
	// One filtered delete, not list-then-delete: an id list snapshot could
	// miss vectors written concurrently between the two calls.
	if _, err := ing.vectors.DeleteByFilter(ctx, vecstore.Filter{ModuleKey: moduleKey}); err != nil {
		return Result{}, fmt.Errorf("clear vectors for module %q: %w", moduleKey, err)
	}

	var total Result
	for _, f := range files {
		res, err := ing.IngestDocument(ctx, moduleKey, f.ID, f.Filename, f.Text)
		if err != nil {
			return total, fmt.Errorf("reindex file %q: %w", f.ID, err)
		}
		total.ChunksCreated += res.ChunksCreated
		total.TotalTokens += res.TotalTokens
		total.EmbeddingTokens += res.EmbeddingTokens
		total.VectorsStored += res.VectorsStored
	}

	ing.logger.Info("module reindexed",
		"module", moduleKey, "files", len(files), "chunks", total.ChunksCreated)
	return total, nil
}

// AuditModule reconciles a module's chunk records against the vector
// collection.
//
// Records whose vector id is missing from the collection are the expected
// crash residue of the record-before-vector write order; with repair set they
// are re-embedded and re-upserted. Vectors with no referencing record cannot
// arise from the documented write order but are deleted defensively when
// repair is set.
func (ing *Ingestor) AuditModule(ctx context.Context, moduleKey string, repair bool) (AuditReport, error) {
	recs, err := ing.records.ListByModule(ctx, moduleKey)
	if err != nil {
		return AuditReport{}, fmt.Errorf("list chunks for module %q: %w", moduleKey, err)
	}
	vectorIDs, err := ing.vectors.IDsByFilter(ctx, vecstore.Filter{ModuleKey: moduleKey})
	if err != nil {
		return AuditReport{}, fmt.Errorf("list vectors for module %q: %w", moduleKey, err)
	}

	report := AuditReport{Records: len(recs), Vectors: len(vectorIDs)}

	recorded := make(map[string]chunkstore.Record, len(recs))
	ids := make([]string, 0, len(recs))
	for _, r := range recs {
		recorded[r.VectorID] = r
		ids = append(ids, r.VectorID)
	}

	existing, err := ing.vectors.FilterExisting(ctx, ids)
	if err != nil {
		return AuditReport{}, fmt.Errorf("check vector existence: %w", err)
	}
	existingSet := make(map[string]bool, len(existing))
	for _, id := range existing {
		existingSet[id] = true
	}

	for _, id := range ids {
		if !existingSet[id] {
			report.MissingVectors = append(report.MissingVectors, id)
		}
	}
	for _, id := range vectorIDs {
		if _, ok := recorded[id]; !ok {
			report.OrphanVectors = append(report.OrphanVectors, id)
		}
	}

	if !repair {
		return report, nil
	}

	if len(report.MissingVectors) > 0 {
		texts := make([]string, len(report.MissingVectors))
		for i, id := range report.MissingVectors {
			texts[i] = recorded[id].Text
		}
		vectors, err := ing.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return report, fmt.Errorf("re-embed missing vectors: %w", err)
		}
		points := make([]vecstore.Record, len(report.MissingVectors))
		for i, id := range report.MissingVectors {
			r := recorded[id]
			points[i] = vecstore.Record{
				ID:     id,
				Vector: vectors[i],
				Payload: vecstore.Payload{
					ModuleKey:  r.ModuleKey,
					FileID:     r.FileID,
					Filename:   r.Filename,
					ChunkIndex: r.ChunkIndex,
					Text:       r.Text,
				},
			}
		}
		if err := ing.vectors.UpsertBatch(ctx, points); err != nil {
			return report, fmt.Errorf("restore missing vectors: %w", err)
		}
		report.RepairedVectors = len(points)
	}

	if len(report.OrphanVectors) > 0 {
		if err := ing.vectors.Delete(ctx, report.OrphanVectors); err != nil {
			return report, fmt.Errorf("delete orphan vectors: %w", err)
		}
		report.DeletedOrphans = len(report.OrphanVectors)
	}

	ing.logger.Info("module audited",
		"module", moduleKey,
		"records", report.Records,
		"missing_vectors", len(report.MissingVectors),
		"orphan_vectors", len(report.OrphanVectors),
		"repaired", report.RepairedVectors,
		"deleted_orphans", report.DeletedOrphans)
	return report, nil
}
