// Package testutil provides shared testing utilities for the scribe project:
// deterministic fakes for the embedding and rerank providers, a quiet logger,
// and a disposable pgvector PostgreSQL container for integration tests.
package testutil

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math"
	"sync"
)

// FakeEmbedder produces deterministic unit vectors from a text hash, so the
// same text always embeds identically and tests need no network.
//
// It satisfies the Embedder interfaces of the ingest and retrieve packages.
// Thread-safe.
type FakeEmbedder struct {
	// Dim is the vector dimension. Zero means 8.
	Dim int

	// Err, when set, is returned from every call.
	Err error

	mu         sync.Mutex
	batchCalls [][]string
	queryCalls []string
}

// EmbedBatch returns one deterministic unit vector per text, in order.
func (f *FakeEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	f.batchCalls = append(f.batchCalls, append([]string(nil), texts...))
	f.mu.Unlock()

	if f.Err != nil {
		return nil, f.Err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = f.vector(t)
	}
	return out, nil
}

// EmbedQuery embeds a single query text.
func (f *FakeEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	f.queryCalls = append(f.queryCalls, text)
	f.mu.Unlock()

	if f.Err != nil {
		return nil, f.Err
	}
	return f.vector(text), nil
}

// Embed embeds a single text.
func (f *FakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := f.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// BatchCalls returns a copy of all EmbedBatch inputs, in call order.
func (f *FakeEmbedder) BatchCalls() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make([][]string, len(f.batchCalls))
	copy(cp, f.batchCalls)
	return cp
}

// QueryCalls returns a copy of all EmbedQuery inputs, in call order.
func (f *FakeEmbedder) QueryCalls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.queryCalls...)
}

func (f *FakeEmbedder) vector(text string) []float32 {
	dim := f.Dim
	if dim <= 0 {
		dim = 8
	}
	sum := sha256.Sum256([]byte(text))
	v := make([]float32, dim)
	var norm float64
	for i := range v {
		// Derive each component from a different 4-byte window of the hash.
		off := (i * 4) % (len(sum) - 4)
		bits := binary.BigEndian.Uint32(sum[off : off+4])
		v[i] = float32(bits%1000)/500 - 1 // [-1, 1)
		norm += float64(v[i]) * float64(v[i])
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		v[0] = 1
		return v
	}
	for i := range v {
		v[i] = float32(float64(v[i]) / norm)
	}
	return v
}
