package bm25

import "testing"

func TestScoreIncreasesWithTermFrequency(t *testing.T) {
	low := Score(1, 100, 100, 1000, 50, Params{})
	high := Score(5, 100, 100, 1000, 50, Params{})
	if !(high >= low) {
		t.Fatalf("expected score to weakly increase with term frequency: low=%v high=%v", low, high)
	}
}

func TestScoreDecreasesWithDocumentFrequency(t *testing.T) {
	rare := Score(3, 100, 100, 1000, 5, Params{})
	common := Score(3, 100, 100, 1000, 500, Params{})
	if !(rare >= common) {
		t.Fatalf("expected score to weakly decrease as df grows: rare=%v common=%v", rare, common)
	}
}

func TestScoreZeroWhenTermAbsent(t *testing.T) {
	if got := Score(0, 100, 100, 1000, 50, Params{}); got != 0 {
		t.Fatalf("expected 0 score for absent term, got %v", got)
	}
}

func TestBoostScalesScoreLinearly(t *testing.T) {
	base := Score(3, 100, 100, 1000, 50, Params{Boost: 1})
	boosted := Score(3, 100, 100, 1000, 50, Params{Boost: 2})
	if boosted != base*2 {
		t.Fatalf("expected boost to scale linearly: base=%v boosted=%v", base, boosted)
	}
}

func TestDefaultsApplyWhenParamsZero(t *testing.T) {
	a := Score(2, 50, 50, 100, 10, Params{})
	b := Score(2, 50, 50, 100, 10, Params{K1: DefaultK1, B: DefaultB, Boost: 1})
	if a != b {
		t.Fatalf("expected zero-value Params to resolve to defaults: a=%v b=%v", a, b)
	}
}
