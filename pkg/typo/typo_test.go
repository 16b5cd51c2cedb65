package typo

import (
	"context"
	"testing"

	"github.com/mnohosten/laura-search/pkg/kv/memstore"
	"github.com/mnohosten/laura-search/pkg/posting"
	"github.com/mnohosten/laura-search/pkg/termdict"
)

func seedTerm(t *testing.T, ctx context.Context, dict *termdict.Dictionary, index, field, term string, docIDs ...string) {
	t.Helper()
	for _, id := range docIDs {
		if _, err := dict.AddPosting(ctx, index, field, term, posting.Posting{DocID: id, TermFreq: 1}); err != nil {
			t.Fatalf("seed %s: %v", term, err)
		}
	}
}

func TestExpandFindsSubstitutionAndTransposition(t *testing.T) {
	ctx := context.Background()
	dict, err := termdict.New(memstore.New(), nil, termdict.Config{})
	if err != nil {
		t.Fatal(err)
	}

	seedTerm(t, ctx, dict, "idx", "body", "cat", "1", "2", "3")
	seedTerm(t, ctx, dict, "idx", "body", "cot", "4", "5", "6") // substitution, distance 1
	seedTerm(t, ctx, dict, "idx", "body", "act", "7", "8", "9") // transposition of "cat" -> distance-2 Levenshtein, Damerau 1
	seedTerm(t, ctx, dict, "idx", "body", "dog", "10")          // unrelated, df too low anyway

	candidates, err := Expand(ctx, dict, "idx", "body", "cat", 1)
	if err != nil {
		t.Fatalf("expand: %v", err)
	}

	byTerm := map[string]Candidate{}
	for _, c := range candidates {
		byTerm[c.Term] = c
	}
	if _, ok := byTerm["cot"]; !ok {
		t.Fatalf("expected 'cot' as a substitution candidate, got %+v", candidates)
	}
	if _, ok := byTerm["act"]; !ok {
		t.Fatalf("expected 'act' as a transposition candidate, got %+v", candidates)
	}
	if _, ok := byTerm["dog"]; ok {
		t.Fatalf("did not expect unrelated term 'dog' in candidates: %+v", candidates)
	}
	for _, c := range candidates {
		if c.Boost != 0.5 {
			t.Fatalf("expected boost 0.5 for distance-1 candidate %q, got %v", c.Term, c.Boost)
		}
	}
}

func TestExpandRespectsDocumentFrequencyFloor(t *testing.T) {
	ctx := context.Background()
	dict, err := termdict.New(memstore.New(), nil, termdict.Config{})
	if err != nil {
		t.Fatal(err)
	}
	seedTerm(t, ctx, dict, "idx", "body", "cat", "1")
	seedTerm(t, ctx, dict, "idx", "body", "cot", "1") // df=1, at the default floor, should be excluded

	candidates, err := Expand(ctx, dict, "idx", "body", "cat", 1)
	if err != nil {
		t.Fatalf("expand: %v", err)
	}
	if len(candidates) != 0 {
		t.Fatalf("expected no candidates at df floor, got %+v", candidates)
	}
}

func TestIsAdjacentTransposition(t *testing.T) {
	if !isAdjacentTransposition("cat", "act") {
		t.Fatal("expected cat/act to be an adjacent transposition")
	}
	if isAdjacentTransposition("cat", "dog") {
		t.Fatal("cat/dog should not be a transposition")
	}
	if isAdjacentTransposition("cat", "caat") {
		t.Fatal("different lengths should not be a transposition")
	}
}
