// Package typo implements typo-tolerant term expansion, SPEC_FULL.md
// §4.10: find dictionary terms within Damerau-Levenshtein distance ≤ 1
// of a query term. agnivade/levenshtein (seen in the pack's
// manifests/covrom-bm25s dependency set) computes plain Levenshtein
// distance; the single adjacent-transposition case that separates
// Damerau distance from plain Levenshtein distance is checked by hand,
// since no pack dependency implements Damerau-Levenshtein directly.
package typo

import (
	"context"
	"sort"

	"github.com/agnivade/levenshtein"

	"github.com/mnohosten/laura-search/pkg/termdict"
)

// DefaultDocumentFrequencyFloor is the default minimum document
// frequency a candidate must exceed to be suggested.
const DefaultDocumentFrequencyFloor = 1

// MaxCandidates bounds how many suggestions Expand returns.
const MaxCandidates = 10

// Candidate is one typo-tolerant suggestion for a query term.
type Candidate struct {
	Term         string
	EditDistance int
	DocumentFreq int
	Boost        float64
}

// Expand returns up to MaxCandidates dictionary terms for (index, field)
// within Damerau-Levenshtein distance 1 of term, whose document
// frequency exceeds floor (<=0 uses the default), ranked by descending
// document frequency.
func Expand(ctx context.Context, dict *termdict.Dictionary, index, field, term string, floor int) ([]Candidate, error) {
	if floor <= 0 {
		floor = DefaultDocumentFrequencyFloor
	}

	terms, err := dict.TermsForField(ctx, index, field)
	if err != nil {
		return nil, err
	}

	var candidates []Candidate
	for _, other := range terms {
		if other == term {
			continue
		}
		dist, ok := damerauLevenshteinAtMostOne(term, other)
		if !ok {
			continue
		}

		list, found, err := dict.GetPostingList(ctx, index, field, other)
		if err != nil {
			return nil, err
		}
		if !found {
			continue
		}
		df := list.Size()
		if df <= floor {
			continue
		}

		candidates = append(candidates, Candidate{
			Term:         other,
			EditDistance: dist,
			DocumentFreq: df,
			Boost:        1 / float64(1+dist),
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].DocumentFreq != candidates[j].DocumentFreq {
			return candidates[i].DocumentFreq > candidates[j].DocumentFreq
		}
		return candidates[i].Term < candidates[j].Term
	})
	if len(candidates) > MaxCandidates {
		candidates = candidates[:MaxCandidates]
	}
	return candidates, nil
}

// damerauLevenshteinAtMostOne reports whether a and b are within true
// Damerau-Levenshtein distance 1, returning that distance (0 or 1) when
// they are.
func damerauLevenshteinAtMostOne(a, b string) (int, bool) {
	d := levenshtein.ComputeDistance(a, b)
	switch {
	case d == 0:
		return 0, true
	case d == 1:
		return 1, true
	case d == 2 && isAdjacentTransposition(a, b):
		return 1, true
	default:
		return 0, false
	}
}

// isAdjacentTransposition reports whether b is exactly a with one pair
// of adjacent runes swapped.
func isAdjacentTransposition(a, b string) bool {
	ra, rb := []rune(a), []rune(b)
	if len(ra) != len(rb) {
		return false
	}
	first := -1
	for i := range ra {
		if ra[i] != rb[i] {
			if first == -1 {
				first = i
				continue
			}
			if i != first+1 {
				return false
			}
			return ra[first] == rb[i] && ra[i] == rb[first]
		}
	}
	return false
}
