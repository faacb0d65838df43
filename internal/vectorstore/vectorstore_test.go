package vectorstore

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestUpsertAndGetByID(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	skill := IndexedSkill{
		ID:              "acme/hello",
		SkillPath:       "/skills/hello",
		FrontmatterJSON: json.RawMessage(`{"name":"hello"}`),
		Embedding:       []float32{1, 0, 0},
		FileHash:        "abc123",
		UpdatedAt:       time.Now(),
	}
	if err := store.Upsert(ctx, skill); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	got, err := store.GetByID(ctx, "acme/hello")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got == nil || got.FileHash != "abc123" {
		t.Errorf("unexpected record: %+v", got)
	}
}

func TestGetByIDMissingReturnsNil(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()

	got, err := store.GetByID(context.Background(), "missing")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil for missing id, got %+v", got)
	}
}

func TestCosineSimilarity(t *testing.T) {
	if sim := CosineSimilarity([]float32{1, 0}, []float32{1, 0}); sim != 1 {
		t.Errorf("expected identical vectors to have similarity 1, got %f", sim)
	}
	if sim := CosineSimilarity([]float32{1, 0}, []float32{0, 1}); sim != 0 {
		t.Errorf("expected orthogonal vectors to have similarity 0, got %f", sim)
	}
	if sim := CosineSimilarity([]float32{0, 0}, []float32{1, 1}); sim != 0 {
		t.Errorf("expected zero-norm vector to yield 0, not NaN, got %f", sim)
	}
	if sim := CosineSimilarity([]float32{1, 2, 3}, []float32{1, 2}); sim != 0 {
		t.Errorf("expected length mismatch to yield 0, got %f", sim)
	}
}

func TestSearchSimilarOrdersByScore(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()
	ctx := context.Background()

	store.Upsert(ctx, IndexedSkill{ID: "close", Embedding: []float32{0.9, 0.1}, UpdatedAt: time.Now()})
	store.Upsert(ctx, IndexedSkill{ID: "far", Embedding: []float32{0, 1}, UpdatedAt: time.Now()})
	store.Upsert(ctx, IndexedSkill{ID: "exact", Embedding: []float32{1, 0}, UpdatedAt: time.Now()})

	matches, err := store.SearchSimilar(ctx, []float32{1, 0}, 2)
	if err != nil {
		t.Fatalf("SearchSimilar: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("expected limit=2 to truncate results, got %d", len(matches))
	}
	if matches[0].Skill.ID != "exact" {
		t.Errorf("expected exact match first, got %s", matches[0].Skill.ID)
	}
}

type fakeEmbeddingClient struct{ dim int }

func (f fakeEmbeddingClient) Embed(ctx context.Context, text string) ([]float32, error) {
	return make([]float32, f.dim), nil
}

func TestIndexerReindexSkipsUnchangedAndRemovesStale(t *testing.T) {
	root := t.TempDir()
	skillDir := filepath.Join(root, "hello")
	os.MkdirAll(skillDir, 0o755)
	content := "---\nid: acme/hello\nname: Hello\n---\nBody text.\n"
	os.WriteFile(filepath.Join(skillDir, "SKILL.md"), []byte(content), 0o644)

	store, err := Open(filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()

	indexer := NewIndexer(store, fakeEmbeddingClient{dim: 4})
	ctx := context.Background()

	if err := indexer.Reindex(ctx, root); err != nil {
		t.Fatalf("Reindex: %v", err)
	}
	all, err := store.All(ctx)
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if len(all) != 1 || all[0].ID != "acme/hello" {
		t.Fatalf("expected 1 indexed skill, got %+v", all)
	}
	firstHash := all[0].FileHash

	// Reindex again without changes: hash should be identical (skip path
	// exercised, not directly observable without a spy, but re-running
	// must not error and must not drop the record).
	if err := indexer.Reindex(ctx, root); err != nil {
		t.Fatalf("second Reindex: %v", err)
	}
	all, _ = store.All(ctx)
	if len(all) != 1 || all[0].FileHash != firstHash {
		t.Fatalf("expected stable record across unchanged reindex, got %+v", all)
	}

	// Remove the skill from disk: the stale record should be cleaned up.
	os.RemoveAll(skillDir)
	if err := indexer.Reindex(ctx, root); err != nil {
		t.Fatalf("third Reindex: %v", err)
	}
	all, _ = store.All(ctx)
	if len(all) != 0 {
		t.Fatalf("expected stale record removed, got %+v", all)
	}
}
