package vecstore

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/scribeworks/scribe/internal/testutil"
)

// basisVector returns the unit vector with a 1 at position i. Distinct basis
// vectors are orthogonal, so cosine scores in these tests are exactly 0 or 1.
func basisVector(i int) []float32 {
	v := make([]float32, Dimensions)
	v[i%Dimensions] = 1
	return v
}

func testRecord(moduleKey, fileID string, chunkIndex int) Record {
	return Record{
		ID:     uuid.NewString(),
		Vector: basisVector(chunkIndex),
		Payload: Payload{
			ModuleKey:  moduleKey,
			FileID:     fileID,
			Filename:   fileID + ".md",
			ChunkIndex: chunkIndex,
			Text:       "chunk text",
		},
	}
}

func TestStoreIntegration(t *testing.T) {
	testDB, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := New(testDB.Pool, testutil.QuietLogger())

	// EnsureCollection is idempotent over the migrated schema.
	if err := store.EnsureCollection(ctx); err != nil {
		t.Fatalf("EnsureCollection: %v", err)
	}
	if err := store.EnsureCollection(ctx); err != nil {
		t.Fatalf("EnsureCollection second call: %v", err)
	}

	recs := []Record{
		testRecord("blog", "f1", 0),
		testRecord("blog", "f1", 1),
		testRecord("blog", "f2", 2),
		testRecord("email", "f3", 3),
	}
	if err := store.UpsertBatch(ctx, recs); err != nil {
		t.Fatalf("UpsertBatch: %v", err)
	}

	t.Run("count", func(t *testing.T) {
		total, err := store.Count(ctx, Filter{})
		if err != nil {
			t.Fatalf("Count: %v", err)
		}
		if total != 4 {
			t.Errorf("total count = %d, want 4", total)
		}
		blog, err := store.Count(ctx, Filter{ModuleKey: "blog"})
		if err != nil {
			t.Fatalf("Count blog: %v", err)
		}
		if blog != 3 {
			t.Errorf("blog count = %d, want 3", blog)
		}
	})

	t.Run("search ranks by similarity", func(t *testing.T) {
		hits, err := store.Search(ctx, basisVector(1), SearchOptions{
			TopK:   4,
			Filter: Filter{ModuleKey: "blog"},
		})
		if err != nil {
			t.Fatalf("Search: %v", err)
		}
		if len(hits) != 3 {
			t.Fatalf("got %d hits, want 3 blog points", len(hits))
		}
		if hits[0].ID != recs[1].ID {
			t.Errorf("top hit = %s, want the matching point %s", hits[0].ID, recs[1].ID)
		}
		if hits[0].Score < 0.99 {
			t.Errorf("top score = %f, want ~1.0", hits[0].Score)
		}
		if hits[0].Payload.Filename != "f1.md" || hits[0].Payload.ChunkIndex != 1 {
			t.Errorf("payload not round-tripped: %+v", hits[0].Payload)
		}
	})

	t.Run("search threshold drops orthogonal points", func(t *testing.T) {
		hits, err := store.Search(ctx, basisVector(1), SearchOptions{
			TopK:           10,
			ScoreThreshold: 0.5,
		})
		if err != nil {
			t.Fatalf("Search: %v", err)
		}
		if len(hits) != 1 || hits[0].ID != recs[1].ID {
			t.Errorf("got %d hits, want only the matching point", len(hits))
		}
	})

	t.Run("search respects file filter", func(t *testing.T) {
		hits, err := store.Search(ctx, basisVector(0), SearchOptions{
			TopK:   10,
			Filter: Filter{ModuleKey: "blog", FileID: "f2"},
		})
		if err != nil {
			t.Fatalf("Search: %v", err)
		}
		if len(hits) != 1 || hits[0].Payload.FileID != "f2" {
			t.Errorf("file filter not applied: %+v", hits)
		}
	})

	t.Run("upsert replaces by id", func(t *testing.T) {
		updated := recs[0]
		updated.Payload.Text = "revised chunk text"
		if err := store.Upsert(ctx, updated); err != nil {
			t.Fatalf("Upsert: %v", err)
		}
		total, err := store.Count(ctx, Filter{})
		if err != nil {
			t.Fatalf("Count: %v", err)
		}
		if total != 4 {
			t.Errorf("count after upsert = %d, want 4 (replace, not insert)", total)
		}
	})

	t.Run("ids and existence by filter", func(t *testing.T) {
		ids, err := store.IDsByFilter(ctx, Filter{ModuleKey: "email"})
		if err != nil {
			t.Fatalf("IDsByFilter: %v", err)
		}
		if len(ids) != 1 || ids[0] != recs[3].ID {
			t.Errorf("IDsByFilter = %v, want [%s]", ids, recs[3].ID)
		}

		phantom := uuid.NewString()
		existing, err := store.FilterExisting(ctx, []string{recs[0].ID, phantom})
		if err != nil {
			t.Fatalf("FilterExisting: %v", err)
		}
		if len(existing) != 1 || existing[0] != recs[0].ID {
			t.Errorf("FilterExisting = %v, want [%s]", existing, recs[0].ID)
		}
	})

	t.Run("delete by id", func(t *testing.T) {
		if err := store.Delete(ctx, []string{recs[3].ID}); err != nil {
			t.Fatalf("Delete: %v", err)
		}
		n, err := store.Count(ctx, Filter{ModuleKey: "email"})
		if err != nil {
			t.Fatalf("Count: %v", err)
		}
		if n != 0 {
			t.Errorf("email count after delete = %d, want 0", n)
		}
	})

	t.Run("delete by filter", func(t *testing.T) {
		n, err := store.DeleteByFilter(ctx, Filter{ModuleKey: "blog", FileID: "f1"})
		if err != nil {
			t.Fatalf("DeleteByFilter: %v", err)
		}
		if n != 2 {
			t.Errorf("deleted %d points, want 2", n)
		}
		left, err := store.Count(ctx, Filter{})
		if err != nil {
			t.Fatalf("Count: %v", err)
		}
		if left != 1 {
			t.Errorf("remaining count = %d, want 1", left)
		}
	})
}
