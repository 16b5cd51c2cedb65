package indexsvc

import (
	"context"
	"errors"
	"testing"

	"github.com/mnohosten/laura-search/pkg/docstore"
	"github.com/mnohosten/laura-search/pkg/kv/memstore"
	"github.com/mnohosten/laura-search/pkg/stats"
	"github.com/mnohosten/laura-search/pkg/termdict"
)

func TestCreateIndexRejectsDuplicate(t *testing.T) {
	ctx := context.Background()
	s := New(memstore.New(), nil)

	if _, err := s.CreateIndex(ctx, "idx", Settings{}, nil); err != nil {
		t.Fatalf("create: %v", err)
	}
	_, err := s.CreateIndex(ctx, "idx", Settings{}, nil)
	if !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
}

func TestUpdateMappingsPreservesUntouchedFields(t *testing.T) {
	ctx := context.Background()
	s := New(memstore.New(), nil)
	mappings := map[string]FieldMapping{
		"title": {Type: FieldText, Boost: 2.0},
		"body":  {Type: FieldText, Boost: 1.0},
	}
	if _, err := s.CreateIndex(ctx, "idx", Settings{}, mappings); err != nil {
		t.Fatal(err)
	}

	updated, err := s.UpdateMappings(ctx, "idx", map[string]FieldMapping{"body": {Type: FieldText, Boost: 3.0}})
	if err != nil {
		t.Fatalf("update mappings: %v", err)
	}
	if updated.Mappings["title"].Boost != 2.0 {
		t.Fatalf("expected untouched field title to keep boost 2.0, got %+v", updated.Mappings["title"])
	}
	if updated.Mappings["body"].Boost != 3.0 {
		t.Fatalf("expected body boost updated to 3.0, got %+v", updated.Mappings["body"])
	}
}

func TestUpdateSettingsRejectsEmptyPatch(t *testing.T) {
	ctx := context.Background()
	s := New(memstore.New(), nil)
	if _, err := s.CreateIndex(ctx, "idx", Settings{}, nil); err != nil {
		t.Fatal(err)
	}
	_, err := s.UpdateSettings(ctx, "idx", SettingsPatch{})
	if !errors.Is(err, ErrBadRequest) {
		t.Fatalf("expected ErrBadRequest, got %v", err)
	}
}

func TestUpdateSettingsNotFound(t *testing.T) {
	ctx := context.Background()
	s := New(memstore.New(), nil)
	shards := 3
	_, err := s.UpdateSettings(ctx, "missing", SettingsPatch{NumberOfShards: &shards})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAutoDetectMappingsInfersTypes(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	s := New(store, nil)
	docs := docstore.New(store, nil, 0)

	if _, err := s.CreateIndex(ctx, "idx", Settings{}, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := docs.Put(ctx, "idx", "1", map[string]interface{}{
		"title": "this is a long enough title field to be text",
		"sku":   "ab12",
		"price": float64(10),
		"ratio": 3.5,
		"tags":  []interface{}{"red", "blue"},
	}, nil); err != nil {
		t.Fatal(err)
	}

	inferred, err := s.AutoDetectMappings(ctx, "idx", docs)
	if err != nil {
		t.Fatalf("auto-detect: %v", err)
	}
	if inferred["title"].Type != FieldText {
		t.Fatalf("expected title inferred as text, got %+v", inferred["title"])
	}
	if inferred["sku"].Type != FieldKeyword {
		t.Fatalf("expected sku inferred as keyword, got %+v", inferred["sku"])
	}
	if inferred["price"].Type != FieldInteger {
		t.Fatalf("expected price inferred as integer, got %+v", inferred["price"])
	}
	if inferred["ratio"].Type != FieldFloat {
		t.Fatalf("expected ratio inferred as float, got %+v", inferred["ratio"])
	}
	if inferred["tags"].Type != FieldKeyword {
		t.Fatalf("expected tags inferred as keyword, got %+v", inferred["tags"])
	}

	idx, found, err := s.GetIndex(ctx, "idx")
	if err != nil || !found {
		t.Fatalf("get index: found=%v err=%v", found, err)
	}
	if idx.Mappings["title"].Type != FieldText {
		t.Fatalf("expected inferred mappings merged into index, got %+v", idx.Mappings)
	}
}

func TestDeleteIndexIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	s := New(store, nil)
	docs := docstore.New(store, nil, 0)
	dict, err := termdict.New(store, nil, termdict.Config{})
	if err != nil {
		t.Fatal(err)
	}
	statsSvc := stats.New(store)

	if _, err := s.CreateIndex(ctx, "idx", Settings{}, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := docs.Put(ctx, "idx", "1", map[string]interface{}{"a": "b"}, nil); err != nil {
		t.Fatal(err)
	}

	if err := s.DeleteIndex(ctx, "idx", docs, dict, statsSvc); err != nil {
		t.Fatalf("first delete: %v", err)
	}
	if err := s.DeleteIndex(ctx, "idx", docs, dict, statsSvc); err != nil {
		t.Fatalf("second delete should be idempotent: %v", err)
	}
	if _, found, err := s.GetIndex(ctx, "idx"); err != nil || found {
		t.Fatalf("expected index gone: found=%v err=%v", found, err)
	}
}

func TestRebuildDocumentCount(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	s := New(store, nil)
	docs := docstore.New(store, nil, 0)

	if _, err := s.CreateIndex(ctx, "idx", Settings{}, nil); err != nil {
		t.Fatal(err)
	}
	for _, id := range []string{"1", "2", "3"} {
		if _, err := docs.Put(ctx, "idx", id, map[string]interface{}{"a": "b"}, nil); err != nil {
			t.Fatal(err)
		}
	}

	count, err := s.RebuildDocumentCount(ctx, "idx", docs)
	if err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	if count != 3 {
		t.Fatalf("expected count 3, got %d", count)
	}
	idx, _, _ := s.GetIndex(ctx, "idx")
	if idx.DocumentCount != 3 {
		t.Fatalf("expected persisted document count 3, got %d", idx.DocumentCount)
	}
}

func TestRefreshCacheDiscoversUntouchedIndices(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	s := New(store, nil)
	if _, err := s.CreateIndex(ctx, "idx-a", Settings{}, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := s.CreateIndex(ctx, "idx-b", Settings{}, nil); err != nil {
		t.Fatal(err)
	}

	// A fresh service backed by the same store has touched neither index.
	fresh := New(store, nil)
	if got := fresh.ListIndices(""); len(got) != 0 {
		t.Fatalf("expected empty cache before refresh, got %d", len(got))
	}
	if err := fresh.RefreshCache(ctx); err != nil {
		t.Fatalf("RefreshCache: %v", err)
	}
	got := fresh.ListIndices("")
	if len(got) != 2 {
		t.Fatalf("expected 2 indices after refresh, got %d", len(got))
	}
}
