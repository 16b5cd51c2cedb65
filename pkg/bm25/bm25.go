// Package bm25 implements the ranking formula of SPEC_FULL.md §4.8.
// Grounded on Zeeeepa-blaze's calculateIDF/calculateBM25Score and the
// calculateBM25 term-frequency shape in pkg/text/inverted_index.go,
// generalized with fixed k1=1.2/b=0.75 defaults in place of either
// source's k1=1.5.
package bm25

import "math"

// DefaultK1 and DefaultB are the standard BM25 tunables.
const (
	DefaultK1 = 1.2
	DefaultB  = 0.75
)

// Params bundles the BM25 tunables and field boost for one scoring
// call. Zero Params falls back to the package defaults.
type Params struct {
	K1    float64
	B     float64
	Boost float64 // field weight * query-time boost, multiplicative
}

func (p Params) resolved() Params {
	if p.K1 == 0 {
		p.K1 = DefaultK1
	}
	if p.B == 0 {
		p.B = DefaultB
	}
	if p.Boost == 0 {
		p.Boost = 1
	}
	return p
}

// IDF returns the inverse document frequency of a term with document
// frequency df across totalDocuments documents: ln((N-df+0.5)/(df+0.5)+1).
func IDF(totalDocuments, df int64) float64 {
	return idf(totalDocuments, df)
}

// idf computes ln((N - df + 0.5)/(df + 0.5) + 1).
func idf(n, df int64) float64 {
	if n <= 0 {
		return 0
	}
	num := float64(n) - float64(df) + 0.5
	den := float64(df) + 0.5
	return math.Log(num/den + 1)
}

// Score computes the BM25 contribution of one term in one field of one
// document, per SPEC_FULL.md §4.8.
func Score(termFreq int, fieldLen int, avgFieldLen float64, totalDocuments, df int64, params Params) float64 {
	p := params.resolved()
	if termFreq <= 0 || totalDocuments <= 0 {
		return 0
	}
	if avgFieldLen <= 0 {
		avgFieldLen = float64(fieldLen)
	}
	if avgFieldLen <= 0 {
		avgFieldLen = 1
	}

	tf := float64(termFreq)
	tfNorm := tf / (tf + p.K1*(1-p.B+p.B*float64(fieldLen)/avgFieldLen))
	return p.Boost * idf(totalDocuments, df) * tfNorm
}
