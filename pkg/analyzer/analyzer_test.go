package analyzer

import "testing"

func TestStandardAnalyzerStemsAndDropsStopwords(t *testing.T) {
	r := NewRegistry("")
	tokens, err := r.Analyze("The Running Foxes are jumping", Standard)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	var terms []string
	for _, tok := range tokens {
		terms = append(terms, tok.Term)
	}
	want := []string{"run", "fox", "jump"}
	if len(terms) != len(want) {
		t.Fatalf("got %v, want %v", terms, want)
	}
	for i := range want {
		if terms[i] != want[i] {
			t.Fatalf("got %v, want %v", terms, want)
		}
	}
}

func TestKeywordAnalyzerEmitsWholeText(t *testing.T) {
	r := NewRegistry("")
	tokens, err := r.Analyze("Exact-Match Value", Keyword)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if len(tokens) != 1 || tokens[0].Term != "Exact-Match Value" {
		t.Fatalf("unexpected keyword tokens: %+v", tokens)
	}
}

func TestUnknownAnalyzerErrors(t *testing.T) {
	r := NewRegistry("")
	if _, err := r.Analyze("text", "nonexistent"); err == nil {
		t.Fatal("expected ErrUnknownAnalyzer")
	}
}

func TestPositionsSkipStopwordSlots(t *testing.T) {
	r := NewRegistry("")
	tokens, err := r.Analyze("cats and dogs", Standard)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if len(tokens) != 2 {
		t.Fatalf("expected 2 tokens, got %+v", tokens)
	}
	if tokens[0].Position != 0 || tokens[1].Position != 2 {
		t.Fatalf("expected positions 0,2 (stopword keeps its slot), got %+v", tokens)
	}
}
