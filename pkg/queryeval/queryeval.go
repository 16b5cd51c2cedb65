// Package queryeval implements the query tree types and the evaluator
// state machine of SPEC_FULL.md §4.9: parse, analyze, fetch postings,
// combine with set algebra, score with BM25, sort, paginate, hydrate.
// Boolean set algebra is grounded on a pkg/query/executor.go-style
// plan-branching shape and Zeeeepa-blaze's query.go stack-based boolean
// composition, generalized to use RoaringBitmap/roaring (pack:
// Zeeeepa-blaze) over a per-query ephemeral numeric doc-id space, since
// doc ids here are arbitrary strings rather than the dense integers
// roaring bitmaps operate on natively.
package queryeval

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/RoaringBitmap/roaring"

	"github.com/mnohosten/laura-search/pkg/analyzer"
	"github.com/mnohosten/laura-search/pkg/bm25"
	"github.com/mnohosten/laura-search/pkg/docstore"
	"github.com/mnohosten/laura-search/pkg/indexsvc"
	"github.com/mnohosten/laura-search/pkg/stats"
	"github.com/mnohosten/laura-search/pkg/termdict"
)

// AllFields is the cross-field pseudo-field of SPEC_FULL.md §4.9.
const AllFields = "_all"

var (
	ErrBadQuery      = errors.New("bad query")
	ErrIndexNotFound = errors.New("index not found")
)

// Query is one node of the query tree. Exactly one of its leaf/branch
// fields must be set.
type Query struct {
	Match    *MatchQuery
	Term     *TermQuery
	Wildcard *WildcardQuery
	Bool     *BoolQuery
	MatchAll *MatchAllQuery
}

type MatchQuery struct {
	Field string // empty or AllFields searches every mapped field
	Value string
	Boost float64
}

type TermQuery struct {
	Field string
	Value string
	Boost float64
}

type WildcardQuery struct {
	Field string
	Value string // may contain '*' and '?'
	Boost float64
}

type BoolQuery struct {
	Must    []Query
	Should  []Query
	MustNot []Query
}

type MatchAllQuery struct {
	Boost float64
}

// Hit is one scored, hydrated search result.
type Hit struct {
	ID     string
	Index  string
	Score  float64
	Source map[string]interface{}
}

// Suggestion is one typo-tolerant alternative folded into a query as a
// should clause, surfaced back to the caller alongside the hits it
// helped produce (SPEC_FULL.md §4.10, testable property 10).
type Suggestion struct {
	Text         string
	EditDistance int
}

// Result is the envelope returned by Search, per SPEC_FULL.md §4.9.
type Result struct {
	Total       int
	MaxScore    float64
	Hits        []Hit
	TookMs      int64
	Suggestions []Suggestion
}

// Evaluator wires together the components a search needs to read.
type Evaluator struct {
	Dict      *termdict.Dictionary
	Docs      *docstore.Store
	Stats     *stats.Service
	Index     *indexsvc.Service
	Analyzers *analyzer.Registry
}

// idSpace maps arbitrary string doc ids to dense uint32s for one
// query's roaring-bitmap set algebra.
type idSpace struct {
	toNum map[string]uint32
	toStr []string
}

func newIDSpace() *idSpace { return &idSpace{toNum: make(map[string]uint32)} }

func (s *idSpace) id(doc string) uint32 {
	if n, ok := s.toNum[doc]; ok {
		return n
	}
	n := uint32(len(s.toStr))
	s.toNum[doc] = n
	s.toStr = append(s.toStr, doc)
	return n
}

func (s *idSpace) str(n uint32) string { return s.toStr[n] }

// termHit is one resolved (field, term) match contributing to a
// document's score.
type termHit struct {
	field    string
	term     string
	boost    float64
	df       int
	termFreq map[string]int // doc id -> term frequency in this field
}

// Search runs the full evaluator pipeline against index.
func (e *Evaluator) Search(ctx context.Context, index string, q Query, from, size int) (*Result, error) {
	start := nowFunc()

	idx, found, err := e.Index.GetIndex(ctx, index)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%w: %q", ErrIndexNotFound, index)
	}

	// Parsed
	if err := validate(q); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Analyzed + PostingsFetched
	space := newIDSpace()
	must, should, mustNot, hits, err := e.resolve(ctx, index, idx, q, space)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Combine
	matched := combine(must, should, mustNot)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Score
	snap := e.Stats.Get(index)
	scored, err := e.score(ctx, index, matched, space, hits, snap)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Sort
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].score != scored[j].score {
			return scored[i].score > scored[j].score
		}
		return scored[i].docID < scored[j].docID
	})

	total := len(scored)
	var maxScore float64
	if total > 0 {
		maxScore = scored[0].score
	}

	// Paginate
	page := paginate(scored, from, size)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Hydrate
	resultHits := make([]Hit, 0, len(page))
	for _, s := range page {
		rec, found, err := e.Docs.Get(ctx, index, s.docID)
		if err != nil {
			return nil, err
		}
		if !found {
			continue
		}
		resultHits = append(resultHits, Hit{ID: s.docID, Index: index, Score: s.score, Source: rec.Source})
	}

	return &Result{
		Total:    total,
		MaxScore: maxScore,
		Hits:     resultHits,
		TookMs:   int64(nowFunc().Sub(start) / time.Millisecond),
	}, nil
}

func validate(q Query) error {
	set := 0
	if q.Match != nil {
		set++
	}
	if q.Term != nil {
		set++
	}
	if q.Wildcard != nil {
		set++
	}
	if q.Bool != nil {
		set++
	}
	if q.MatchAll != nil {
		set++
	}
	if set != 1 {
		return fmt.Errorf("%w: query must set exactly one shape, got %d", ErrBadQuery, set)
	}
	if q.Bool != nil {
		for _, sub := range q.Bool.Must {
			if err := validate(sub); err != nil {
				return err
			}
		}
		for _, sub := range q.Bool.Should {
			if err := validate(sub); err != nil {
				return err
			}
		}
		for _, sub := range q.Bool.MustNot {
			if err := validate(sub); err != nil {
				return err
			}
		}
	}
	return nil
}

// resolve walks the query tree, producing the roaring bitmaps for
// must/should/must_not clauses plus the termHit data scoring needs.
func (e *Evaluator) resolve(ctx context.Context, index string, idx *indexsvc.Index, q Query, space *idSpace) (must, should, mustNot []*roaring.Bitmap, hits []termHit, err error) {
	switch {
	case q.MatchAll != nil:
		bm, err := e.allDocsBitmap(ctx, index, space)
		if err != nil {
			return nil, nil, nil, nil, err
		}
		return []*roaring.Bitmap{bm}, nil, nil, nil, nil

	case q.Term != nil:
		bm, h, err := e.resolveLeaf(ctx, index, idx, q.Term.Field, []string{strings.ToLower(q.Term.Value)}, boostOrOne(q.Term.Boost), space)
		if err != nil {
			return nil, nil, nil, nil, err
		}
		return []*roaring.Bitmap{bm}, nil, nil, h, nil

	case q.Match != nil:
		terms := e.analyzeValue(idx, q.Match.Field, q.Match.Value)
		bm, h, err := e.resolveLeaf(ctx, index, idx, q.Match.Field, terms, boostOrOne(q.Match.Boost), space)
		if err != nil {
			return nil, nil, nil, nil, err
		}
		return []*roaring.Bitmap{bm}, nil, nil, h, nil

	case q.Wildcard != nil:
		bm, h, err := e.resolveWildcard(ctx, index, idx, q.Wildcard.Field, q.Wildcard.Value, boostOrOne(q.Wildcard.Boost), space)
		if err != nil {
			return nil, nil, nil, nil, err
		}
		return []*roaring.Bitmap{bm}, nil, nil, h, nil

	case q.Bool != nil:
		var allHits []termHit
		for _, sub := range q.Bool.Must {
			m, s, n, h, err := e.resolve(ctx, index, idx, sub, space)
			if err != nil {
				return nil, nil, nil, nil, err
			}
			must = append(must, combine(m, s, n))
			allHits = append(allHits, h...)
		}
		for _, sub := range q.Bool.Should {
			m, s, n, h, err := e.resolve(ctx, index, idx, sub, space)
			if err != nil {
				return nil, nil, nil, nil, err
			}
			should = append(should, combine(m, s, n))
			allHits = append(allHits, h...)
		}
		for _, sub := range q.Bool.MustNot {
			m, s, n, h, err := e.resolve(ctx, index, idx, sub, space)
			if err != nil {
				return nil, nil, nil, nil, err
			}
			mustNot = append(mustNot, combine(m, s, n))
		}
		return must, should, mustNot, allHits, nil

	default:
		return nil, nil, nil, nil, fmt.Errorf("%w: empty query node", ErrBadQuery)
	}
}

func boostOrOne(b float64) float64 {
	if b == 0 {
		return 1
	}
	return b
}

func (e *Evaluator) analyzeValue(idx *indexsvc.Index, field, value string) []string {
	analyzerName := ""
	if m, ok := idx.Mappings[field]; ok {
		analyzerName = m.Analyzer
	}
	tokens, err := e.Analyzers.Analyze(value, analyzerName)
	if err != nil {
		return []string{strings.ToLower(value)}
	}
	terms := make([]string, len(tokens))
	for i, t := range tokens {
		terms[i] = t.Term
	}
	return terms
}

// searchableFields returns every field that should participate in
// _all, in the absence of a more elaborate per-mapping opt-out.
func searchableFields(idx *indexsvc.Index) []string {
	var fields []string
	for name, m := range idx.Mappings {
		if m.Type == indexsvc.FieldText || m.Type == indexsvc.FieldKeyword {
			fields = append(fields, name)
		}
	}
	sort.Strings(fields)
	return fields
}

func (e *Evaluator) resolveLeaf(ctx context.Context, index string, idx *indexsvc.Index, field string, terms []string, boost float64, space *idSpace) (*roaring.Bitmap, []termHit, error) {
	fields := []string{field}
	if field == "" || field == AllFields {
		fields = searchableFields(idx)
	}

	result := roaring.NewBitmap()
	var hits []termHit
	for _, f := range fields {
		fieldBoost := boost
		if m, ok := idx.Mappings[f]; ok && m.Boost != 0 {
			fieldBoost *= m.Boost
		}
		for _, term := range terms {
			list, found, err := e.Dict.GetPostingList(ctx, index, f, term)
			if err != nil {
				return nil, nil, err
			}
			if !found {
				continue
			}
			postings := list.Iterate()
			th := termHit{field: f, term: term, boost: fieldBoost, df: len(postings), termFreq: make(map[string]int, len(postings))}
			for _, p := range postings {
				result.Add(space.id(p.DocID))
				th.termFreq[p.DocID] = int(p.TermFreq)
			}
			hits = append(hits, th)
		}
	}
	return result, hits, nil
}

func (e *Evaluator) resolveWildcard(ctx context.Context, index string, idx *indexsvc.Index, field, pattern string, boost float64, space *idSpace) (*roaring.Bitmap, []termHit, error) {
	fields := []string{field}
	if field == "" || field == AllFields {
		fields = searchableFields(idx)
	}
	matcher := globMatcher(strings.ToLower(pattern))

	result := roaring.NewBitmap()
	var hits []termHit
	for _, f := range fields {
		fieldBoost := boost
		if m, ok := idx.Mappings[f]; ok && m.Boost != 0 {
			fieldBoost *= m.Boost
		}
		terms, err := e.Dict.TermsForField(ctx, index, f)
		if err != nil {
			return nil, nil, err
		}
		for _, term := range terms {
			if !matcher(term) {
				continue
			}
			list, found, err := e.Dict.GetPostingList(ctx, index, f, term)
			if err != nil {
				return nil, nil, err
			}
			if !found {
				continue
			}
			postings := list.Iterate()
			th := termHit{field: f, term: term, boost: fieldBoost, df: len(postings), termFreq: make(map[string]int, len(postings))}
			for _, p := range postings {
				result.Add(space.id(p.DocID))
				th.termFreq[p.DocID] = int(p.TermFreq)
			}
			hits = append(hits, th)
		}
	}
	return result, hits, nil
}

func (e *Evaluator) allDocsBitmap(ctx context.Context, index string, space *idSpace) (*roaring.Bitmap, error) {
	records, err := e.Docs.Scan(ctx, index, nil, 0, 0)
	if err != nil {
		return nil, err
	}
	bm := roaring.NewBitmap()
	for _, r := range records {
		bm.Add(space.id(r.ID))
	}
	return bm, nil
}

// globMatcher compiles a '*'/'?' pattern into a matcher function without
// pulling in a regexp dependency for two wildcard characters.
func globMatcher(pattern string) func(string) bool {
	return func(s string) bool {
		return globMatch(pattern, s)
	}
}

func globMatch(pattern, s string) bool {
	return globMatchRunes([]rune(pattern), []rune(s))
}

func globMatchRunes(p, s []rune) bool {
	if len(p) == 0 {
		return len(s) == 0
	}
	switch p[0] {
	case '*':
		if globMatchRunes(p[1:], s) {
			return true
		}
		for i := 0; i < len(s); i++ {
			if globMatchRunes(p[1:], s[i+1:]) {
				return true
			}
		}
		return false
	case '?':
		if len(s) == 0 {
			return false
		}
		return globMatchRunes(p[1:], s[1:])
	default:
		if len(s) == 0 || s[0] != p[0] {
			return false
		}
		return globMatchRunes(p[1:], s[1:])
	}
}

// combine applies bool set algebra: AND over must, AND-NOT over
// must_not. With a non-empty must list, should clauses do not narrow
// the match set; they only add score. An empty must list with a
// non-empty should list matches the union; an empty must with empty
// should matches nothing.
func combine(must, should, mustNot []*roaring.Bitmap) *roaring.Bitmap {
	var result *roaring.Bitmap
	for _, bm := range must {
		if result == nil {
			result = bm.Clone()
			continue
		}
		result.And(bm)
	}

	if len(should) > 0 {
		union := roaring.NewBitmap()
		for _, bm := range should {
			union.Or(bm)
		}
		if result == nil {
			result = union
		}
	}

	if result == nil {
		result = roaring.NewBitmap()
	}

	for _, bm := range mustNot {
		result.AndNot(bm)
	}
	return result
}

type scoredDoc struct {
	docID string
	score float64
}

// score computes BM25 for every matched document, fetching each
// document's per-field token-count lengths from the document store
// (falling back to the matching term's own frequency if a document
// record cannot be found, which should not happen for a consistent
// index).
func (e *Evaluator) score(ctx context.Context, index string, matched *roaring.Bitmap, space *idSpace, hits []termHit, snap stats.Snapshot) ([]scoredDoc, error) {
	scores := make(map[string]float64)
	it := matched.Iterator()
	for it.HasNext() {
		scores[space.str(it.Next())] = 0
	}

	fieldLenCache := make(map[string]map[string]int) // doc id -> field -> length
	fieldLen := func(docID, field string, fallback int) (int, error) {
		lens, ok := fieldLenCache[docID]
		if !ok {
			rec, found, err := e.Docs.Get(ctx, index, docID)
			if err != nil {
				return 0, err
			}
			if found {
				lens = rec.FieldLens
			}
			fieldLenCache[docID] = lens
		}
		if l, ok := lens[field]; ok {
			return l, nil
		}
		return fallback, nil
	}

	for _, h := range hits {
		avgLen := snap.AvgFieldLength(h.field)
		for docID, tf := range h.termFreq {
			if _, ok := scores[docID]; !ok {
				continue
			}
			length, err := fieldLen(docID, h.field, tf)
			if err != nil {
				return nil, err
			}
			s := bm25.Score(tf, length, avgLen, snap.TotalDocuments, int64(h.df), bm25.Params{Boost: h.boost})
			scores[docID] += s
		}
	}

	out := make([]scoredDoc, 0, len(scores))
	for id, s := range scores {
		out = append(out, scoredDoc{docID: id, score: s})
	}
	return out, nil
}

func paginate(scored []scoredDoc, from, size int) []scoredDoc {
	if size == 0 {
		return nil
	}
	if from < 0 {
		from = 0
	}
	if from >= len(scored) {
		return nil
	}
	end := len(scored)
	if size > 0 && from+size < end {
		end = from + size
	}
	return scored[from:end]
}

var nowFunc = time.Now
