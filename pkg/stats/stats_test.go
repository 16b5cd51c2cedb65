package stats

import (
	"context"
	"testing"

	"github.com/mnohosten/laura-search/pkg/kv/memstore"
)

func TestAddDocumentAccumulates(t *testing.T) {
	ctx := context.Background()
	s := New(memstore.New())

	if err := s.AddDocument(ctx, "idx", map[string]int{"body": 10}); err != nil {
		t.Fatal(err)
	}
	if err := s.AddDocument(ctx, "idx", map[string]int{"body": 20}); err != nil {
		t.Fatal(err)
	}

	snap := s.Get("idx")
	if snap.TotalDocuments != 2 {
		t.Fatalf("expected 2 total documents, got %d", snap.TotalDocuments)
	}
	if avg := snap.AvgFieldLength("body"); avg != 15 {
		t.Fatalf("expected avg field length 15, got %v", avg)
	}
}

func TestRemoveDocumentReversesAdd(t *testing.T) {
	ctx := context.Background()
	s := New(memstore.New())

	fieldLens := map[string]int{"body": 10}
	if err := s.AddDocument(ctx, "idx", fieldLens); err != nil {
		t.Fatal(err)
	}
	if err := s.RemoveDocument(ctx, "idx", fieldLens); err != nil {
		t.Fatal(err)
	}

	snap := s.Get("idx")
	if snap.TotalDocuments != 0 {
		t.Fatalf("expected 0 total documents, got %d", snap.TotalDocuments)
	}
}

func TestRemoveDocumentNeverGoesNegative(t *testing.T) {
	ctx := context.Background()
	s := New(memstore.New())
	if err := s.RemoveDocument(ctx, "idx", map[string]int{"body": 5}); err != nil {
		t.Fatal(err)
	}
	snap := s.Get("idx")
	if snap.TotalDocuments != 0 {
		t.Fatalf("expected clamped 0, got %d", snap.TotalDocuments)
	}
}

func TestLoadRestoresPersistedStats(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	s1 := New(store)
	if err := s1.AddDocument(ctx, "idx", map[string]int{"body": 8}); err != nil {
		t.Fatal(err)
	}

	s2 := New(store)
	if err := s2.Load(ctx, "idx"); err != nil {
		t.Fatalf("load: %v", err)
	}
	snap := s2.Get("idx")
	if snap.TotalDocuments != 1 || snap.AvgFieldLength("body") != 8 {
		t.Fatalf("unexpected restored snapshot: %+v", snap)
	}
}

func TestReplaceSwapsSnapshot(t *testing.T) {
	ctx := context.Background()
	s := New(memstore.New())
	if err := s.AddDocument(ctx, "idx", map[string]int{"body": 1}); err != nil {
		t.Fatal(err)
	}
	err := s.Replace(ctx, "idx", Snapshot{
		TotalDocuments: 42,
		Fields:         map[string]FieldStats{"body": {SumFieldLengths: 100, DocumentCount: 5}},
	})
	if err != nil {
		t.Fatalf("replace: %v", err)
	}
	snap := s.Get("idx")
	if snap.TotalDocuments != 42 || snap.AvgFieldLength("body") != 20 {
		t.Fatalf("unexpected snapshot after replace: %+v", snap)
	}
}

func TestClearRemovesStats(t *testing.T) {
	ctx := context.Background()
	s := New(memstore.New())
	if err := s.AddDocument(ctx, "idx", map[string]int{"body": 1}); err != nil {
		t.Fatal(err)
	}
	if err := s.Clear(ctx, "idx"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	snap := s.Get("idx")
	if snap.TotalDocuments != 0 {
		t.Fatalf("expected cleared stats, got %+v", snap)
	}
}
