package posting

import "testing"

func TestAddEntryInsertAndReplace(t *testing.T) {
	l := New(0)
	l.AddEntry(Posting{DocID: "1", TermFreq: 1})
	l.AddEntry(Posting{DocID: "1", TermFreq: 5})

	p, ok := l.GetEntry("1")
	if !ok || p.TermFreq != 5 {
		t.Fatalf("expected replaced posting with freq 5, got %+v ok=%v", p, ok)
	}
	if l.Size() != 1 {
		t.Fatalf("expected size 1, got %d", l.Size())
	}
}

func TestEvictionOnOverflow(t *testing.T) {
	l := New(10)
	for i := 0; i < 11; i++ {
		l.AddEntry(Posting{DocID: string(rune('a' + i)), TermFreq: 1})
	}
	if l.Size() >= 11 {
		t.Fatalf("expected eviction to keep size below 11, got %d", l.Size())
	}
	if l.Size() == 0 {
		t.Fatal("eviction should not remove everything")
	}
}

func TestIterateOrdersNumericallyWhenAllNumeric(t *testing.T) {
	l := New(0)
	l.AddEntry(Posting{DocID: "30"})
	l.AddEntry(Posting{DocID: "4"})
	l.AddEntry(Posting{DocID: "100"})

	got := l.Iterate()
	want := []string{"4", "30", "100"}
	for i, p := range got {
		if p.DocID != want[i] {
			t.Fatalf("got order %v, want %v", got, want)
		}
	}
}

func TestMergeSumsFrequenciesAndConcatenatesPositions(t *testing.T) {
	a := New(0)
	a.AddEntry(Posting{DocID: "1", TermFreq: 2, Positions: []uint32{0, 1}})

	b := New(0)
	b.AddEntry(Posting{DocID: "1", TermFreq: 3, Positions: []uint32{5}})
	b.AddEntry(Posting{DocID: "2", TermFreq: 1, Positions: []uint32{0}})

	a.Merge(b)

	p1, ok := a.GetEntry("1")
	if !ok || p1.TermFreq != 5 || len(p1.Positions) != 3 {
		t.Fatalf("expected merged posting freq=5 positions len=3, got %+v", p1)
	}
	if _, ok := a.GetEntry("2"); !ok {
		t.Fatal("expected doc 2 to be added by merge")
	}
}

func TestRemoveEntry(t *testing.T) {
	l := New(0)
	l.AddEntry(Posting{DocID: "1"})
	l.RemoveEntry("1")
	if _, ok := l.GetEntry("1"); ok {
		t.Fatal("expected entry removed")
	}
	if l.Size() != 0 {
		t.Fatalf("expected size 0, got %d", l.Size())
	}
}
