// Package engine wires the index, document, term-dictionary, stats, and
// query-evaluation services into the request surface of SPEC_FULL.md
// §6: index lifecycle, document lifecycle, bulk indexing,
// delete-by-query, search, and suggest. There is no HTTP layer here —
// per the Non-goals, transport is out of scope — so Engine exposes
// plain Go methods, which cmd/searchd and cmd/search-cli construct and
// call directly.
//
// The constructor shape (validate options, construct dependent
// services, wire them into one struct) generalizes a server
// constructor's dependency wiring away from HTTP-specific routing and
// middleware, since there is no server surface to build here.
// Per-document write serialization narrows a whole-collection session
// lock down to a per-(index, doc_id) mutex.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mnohosten/laura-search/pkg/analyzer"
	"github.com/mnohosten/laura-search/pkg/codec"
	"github.com/mnohosten/laura-search/pkg/docstore"
	"github.com/mnohosten/laura-search/pkg/indexsvc"
	"github.com/mnohosten/laura-search/pkg/kv"
	"github.com/mnohosten/laura-search/pkg/posting"
	"github.com/mnohosten/laura-search/pkg/queryeval"
	"github.com/mnohosten/laura-search/pkg/scheduler"
	"github.com/mnohosten/laura-search/pkg/stats"
	"github.com/mnohosten/laura-search/pkg/termdict"
	"github.com/mnohosten/laura-search/pkg/typo"
)

// Engine-level sentinel errors, SPEC_FULL.md §7. Every operation wraps
// one of these with %w so callers can use errors.Is regardless of
// which sub-package actually detected the condition; storage failures
// are the one category that is never mapped to one of these — they
// propagate from kv.Store unchanged, wrapped only with context.
var (
	ErrNotFound           = errors.New("not found")
	ErrAlreadyExists      = errors.New("already exists")
	ErrBadRequest         = errors.New("bad request")
	ErrBadQuery           = errors.New("bad query")
	ErrDocumentTooLarge   = errors.New("document too large")
	ErrCorruptRecord      = errors.New("corrupt record")
	ErrConflict           = errors.New("conflict")
	ErrCancelled          = errors.New("cancelled")
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// Options are Engine's construction parameters. Options is deliberately
// independent of any configuration-file package: cmd/searchd
// translates its own config into Options, per SPEC_FULL.md §9's design
// note that "the analyzer registry and config are construction
// parameters of the top-level engine struct."
type Options struct {
	Store  kv.Store
	Logger *zerolog.Logger

	// DefaultAnalyzer names the analyzer applied to fields with no
	// explicit mapping analyzer. Empty defaults to "standard".
	DefaultAnalyzer string

	// MaxDocumentBytes caps one document's encoded size. <=0 uses
	// codec.MaxDocumentBytes.
	MaxDocumentBytes int

	TermDict termdict.Config

	// VerifierInterval paces the document-count verifier task. <=0
	// defaults to one hour.
	VerifierInterval time.Duration

	// TypoToleranceFloor is the minimum document frequency a typo
	// candidate must exceed to be folded into a search as a should
	// clause. <=0 uses typo.DefaultDocumentFrequencyFloor.
	TypoToleranceFloor int

	Pool scheduler.Config
}

// Engine is the top-level, transport-agnostic search engine.
type Engine struct {
	logger zerolog.Logger
	opts   Options

	index *indexsvc.Service
	docs  *docstore.Store
	dict  *termdict.Dictionary
	stats *stats.Service
	an    *analyzer.Registry
	eval  *queryeval.Evaluator

	pool  *scheduler.Pool
	sched *scheduler.Scheduler

	docLocks sync.Map // "index/id" -> *sync.Mutex
}

// New constructs an Engine, loads every persisted index into the
// in-memory cache, and starts the background document-count verifier
// and cache-eviction flusher.
func New(ctx context.Context, opts Options) (*Engine, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("%w: engine: Store is required", ErrBadRequest)
	}

	lg := zerolog.Nop()
	if opts.Logger != nil {
		lg = *opts.Logger
	}
	if opts.VerifierInterval <= 0 {
		opts.VerifierInterval = time.Hour
	}

	dict, err := termdict.New(opts.Store, &lg, opts.TermDict)
	if err != nil {
		return nil, fmt.Errorf("%w: engine: term dictionary: %v", ErrStorageUnavailable, err)
	}

	e := &Engine{
		logger: lg,
		opts:   opts,
		index:  indexsvc.New(opts.Store, &lg),
		docs:   docstore.New(opts.Store, &lg, opts.MaxDocumentBytes),
		dict:   dict,
		stats:  stats.New(opts.Store),
		an:     analyzer.NewRegistry(opts.DefaultAnalyzer),
		pool:   scheduler.NewPool(opts.Pool, &lg),
	}
	e.eval = &queryeval.Evaluator{Dict: e.dict, Docs: e.docs, Stats: e.stats, Index: e.index, Analyzers: e.an}
	e.sched = scheduler.New(e.pool, &lg)

	if err := e.index.RefreshCache(ctx); err != nil {
		return nil, fmt.Errorf("%w: engine: refresh index cache: %v", ErrStorageUnavailable, err)
	}
	for _, idx := range e.index.ListIndices("") {
		if err := e.stats.Load(ctx, idx.Name); err != nil {
			return nil, fmt.Errorf("%w: engine: load stats for %q: %v", ErrStorageUnavailable, idx.Name, err)
		}
		if err := e.dict.LoadCatalog(ctx, idx.Name); err != nil {
			return nil, fmt.Errorf("%w: engine: load term catalog for %q: %v", ErrStorageUnavailable, idx.Name, err)
		}
	}

	e.sched.RunCacheFlusher(ctx, e.dict)
	e.sched.RunEvery(ctx, "document-count-verifier", opts.VerifierInterval, e.runVerifier)

	return e, nil
}

// Close stops the background scheduler and worker pool, waiting for
// in-flight background tasks to finish.
func (e *Engine) Close() {
	e.pool.ShutdownAndDrain()
}

func (e *Engine) runVerifier(ctx context.Context) error {
	for _, idx := range e.index.ListIndices("") {
		if _, err := e.index.RebuildDocumentCount(ctx, idx.Name, e.docs); err != nil {
			return fmt.Errorf("engine: verify %q: %w", idx.Name, err)
		}
	}
	return nil
}

func (e *Engine) docLock(index, id string) *sync.Mutex {
	m, _ := e.docLocks.LoadOrStore(index+"/"+id, &sync.Mutex{})
	return m.(*sync.Mutex)
}

// --- Index lifecycle --------------------------------------------------

// CreateIndex registers index with the given settings and mappings.
func (e *Engine) CreateIndex(ctx context.Context, name string, settings indexsvc.Settings, mappings map[string]indexsvc.FieldMapping) (*indexsvc.Index, error) {
	idx, err := e.index.CreateIndex(ctx, name, settings, mappings)
	if err != nil {
		if errors.Is(err, indexsvc.ErrAlreadyExists) {
			return nil, fmt.Errorf("%w: %q", ErrAlreadyExists, name)
		}
		return nil, wrapStorage(err)
	}
	return idx, nil
}

// ListIndices returns every known index, optionally filtered by status.
func (e *Engine) ListIndices(status indexsvc.Status) []*indexsvc.Index {
	return e.index.ListIndices(status)
}

// GetIndex returns index's metadata.
func (e *Engine) GetIndex(ctx context.Context, name string) (*indexsvc.Index, error) {
	idx, found, err := e.index.GetIndex(ctx, name)
	if err != nil {
		return nil, wrapStorage(err)
	}
	if !found {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return idx, nil
}

// UpdateSettings merges patch into name's settings.
func (e *Engine) UpdateSettings(ctx context.Context, name string, patch indexsvc.SettingsPatch) (*indexsvc.Index, error) {
	idx, err := e.index.UpdateSettings(ctx, name, patch)
	if err != nil {
		return nil, translateIndexsvcErr(err, name)
	}
	return idx, nil
}

// UpdateMappings merges the provided field mappings into name's
// mappings, preserving untouched fields.
func (e *Engine) UpdateMappings(ctx context.Context, name string, mappings map[string]indexsvc.FieldMapping) (*indexsvc.Index, error) {
	idx, err := e.index.UpdateMappings(ctx, name, mappings)
	if err != nil {
		return nil, translateIndexsvcErr(err, name)
	}
	return idx, nil
}

// DeleteIndex removes every document, posting, and stat belonging to
// name, then its metadata. Idempotent: deleting an unknown index is not
// an error.
func (e *Engine) DeleteIndex(ctx context.Context, name string) error {
	if _, found, err := e.index.GetIndex(ctx, name); err != nil {
		return wrapStorage(err)
	} else if !found {
		return nil
	}
	if err := e.index.DeleteIndex(ctx, name, e.docs, e.dict, e.stats); err != nil {
		return wrapStorage(err)
	}
	return nil
}

func translateIndexsvcErr(err error, name string) error {
	switch {
	case errors.Is(err, indexsvc.ErrNotFound):
		return fmt.Errorf("%w: %q", ErrNotFound, name)
	case errors.Is(err, indexsvc.ErrBadRequest):
		return fmt.Errorf("%w: %v", ErrBadRequest, err)
	default:
		return wrapStorage(err)
	}
}

// wrapStorage tags an error from a sub-package as a storage failure
// unless it already carries one of the engine's own sentinels — those
// propagate unchanged rather than being flattened into "storage
// unavailable".
func wrapStorage(err error) error {
	if err == nil {
		return nil
	}
	for _, sentinel := range []error{ErrNotFound, ErrAlreadyExists, ErrBadRequest, ErrBadQuery, ErrDocumentTooLarge, ErrCorruptRecord, ErrConflict, ErrCancelled, ErrStorageUnavailable} {
		if errors.Is(err, sentinel) {
			return err
		}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrCancelled, err)
	}
	if errors.Is(err, codec.ErrDocumentTooLarge) {
		return fmt.Errorf("%w: %v", ErrDocumentTooLarge, err)
	}
	if errors.Is(err, codec.ErrCorruptRecord) {
		return fmt.Errorf("%w: %v", ErrCorruptRecord, err)
	}
	return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
}

// --- Document lifecycle ------------------------------------------------

// IndexDocumentResult is the envelope returned by IndexDocument.
type IndexDocumentResult struct {
	ID      string
	Index   string
	Version int
	Result  string // "created" or "updated"
}

// IndexDocument analyzes source's text fields per index's mappings,
// writes the document itself, then updates the term dictionary, then
// the stats — in that order, per SPEC_FULL.md §4.11. The first step
// that fails aborts the later ones and its error is returned. If id is
// empty a server-generated id is assigned.
func (e *Engine) IndexDocument(ctx context.Context, index, id string, source map[string]interface{}) (*IndexDocumentResult, error) {
	idx, found, err := e.index.GetIndex(ctx, index)
	if err != nil {
		return nil, wrapStorage(err)
	}
	if !found {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, index)
	}
	if source == nil {
		return nil, fmt.Errorf("%w: document source is required", ErrBadRequest)
	}
	if id == "" {
		id = uuid.NewString()
	}

	lock := e.docLock(index, id)
	lock.Lock()
	defer lock.Unlock()

	existing, hadPrior, err := e.docs.Get(ctx, index, id)
	if err != nil {
		return nil, wrapStorage(err)
	}

	fieldLens := make(map[string]int)
	type termOccurrence struct {
		docID     string
		positions []int
	}
	perField := make(map[string]map[string]*termOccurrence) // field path -> term -> occurrence
	offsetByPath := make(map[string]int)

	for _, fv := range analyzer.Flatten(source) {
		analyzerName := ""
		if m, ok := idx.Mappings[topLevelField(fv.Path)]; ok {
			analyzerName = m.Analyzer
		}
		tokens, err := e.an.Analyze(fv.Text, analyzerName)
		if err != nil {
			return nil, fmt.Errorf("%w: field %q: %v", ErrBadRequest, fv.Path, err)
		}
		fieldLens[fv.Path] += len(tokens)
		if len(tokens) == 0 {
			continue
		}
		offset := offsetByPath[fv.Path] + fv.GapBefore
		terms := perField[fv.Path]
		if terms == nil {
			terms = make(map[string]*termOccurrence)
			perField[fv.Path] = terms
		}
		for _, t := range tokens {
			occ, ok := terms[t.Term]
			if !ok {
				occ = &termOccurrence{docID: id}
				terms[t.Term] = occ
			}
			occ.positions = append(occ.positions, t.Position+offset)
		}
		offsetByPath[fv.Path] = offset + len(tokens)
	}

	version, err := e.docs.Put(ctx, index, id, source, fieldLens)
	if err != nil {
		return nil, wrapStorage(err)
	}

	for field, terms := range perField {
		for term, occ := range terms {
			if _, err := e.dict.AddPosting(ctx, index, field, term, posting.Posting{
				DocID:     id,
				TermFreq:  uint32(len(occ.positions)),
				Positions: toUint32(occ.positions),
			}); err != nil {
				return nil, wrapStorage(err)
			}
		}
	}

	if hadPrior {
		if err := e.stats.RemoveDocument(ctx, index, existing.FieldLens); err != nil {
			return nil, wrapStorage(err)
		}
	}
	if err := e.stats.AddDocument(ctx, index, fieldLens); err != nil {
		return nil, wrapStorage(err)
	}

	result := "created"
	if hadPrior {
		result = "updated"
	}
	return &IndexDocumentResult{ID: id, Index: index, Version: version, Result: result}, nil
}

// GetDocument returns the stored document at (index, id).
func (e *Engine) GetDocument(ctx context.Context, index, id string) (*docstore.Record, error) {
	rec, found, err := e.docs.Get(ctx, index, id)
	if err != nil {
		return nil, wrapStorage(err)
	}
	if !found {
		return nil, fmt.Errorf("%w: %q/%q", ErrNotFound, index, id)
	}
	return rec, nil
}

// DeleteDocument removes (index, id). Stale postings referencing id are
// left in the term dictionary (the atomic-merge, append-only write path
// has no in-place removal); the evaluator's hydrate step already drops
// any hit whose document record is gone, so a deleted document never
// appears in a result's Hits, though Total is computed from the
// posting-list intersection and so may count it until the next
// re-index of that term (see DESIGN.md).
func (e *Engine) DeleteDocument(ctx context.Context, index, id string) error {
	lock := e.docLock(index, id)
	lock.Lock()
	defer lock.Unlock()

	rec, found, err := e.docs.Get(ctx, index, id)
	if err != nil {
		return wrapStorage(err)
	}
	if !found {
		return fmt.Errorf("%w: %q/%q", ErrNotFound, index, id)
	}
	if err := e.stats.RemoveDocument(ctx, index, rec.FieldLens); err != nil {
		return wrapStorage(err)
	}
	if err := e.docs.Delete(ctx, index, id); err != nil {
		return wrapStorage(err)
	}
	return nil
}

// topLevelField returns the first dot-separated segment of a flattened
// field path, the granularity AutoDetectMappings and CreateIndex
// mappings are keyed at (a "meta.author" path's analyzer is looked up
// under its top-level "meta" mapping).
func topLevelField(path string) string {
	if i := strings.IndexByte(path, '.'); i >= 0 {
		return path[:i]
	}
	return path
}

func toUint32(in []int) []uint32 {
	out := make([]uint32, len(in))
	for i, v := range in {
		out[i] = uint32(v)
	}
	return out
}

// --- Bulk operations -----------------------------------------------------

// BulkItemResult is one item's outcome within a BulkIndex call.
type BulkItemResult struct {
	ID     string
	Status string // "created", "updated", or "error"
	Error  string `json:",omitempty"`
}

// BulkResult is the envelope for BulkIndex, SPEC_FULL.md §6: the
// envelope always reports success even if individual items failed,
// signalled by Errors.
type BulkResult struct {
	TookMs int64
	Errors bool
	Items  []BulkItemResult
}

// BulkDocument is one document submitted to BulkIndex.
type BulkDocument struct {
	ID     string
	Source map[string]interface{}
}

// BulkIndex indexes every document in docs against index, isolating
// per-document failures the way docstore.BulkUpsert does: one bad
// document never aborts the rest of the batch.
func (e *Engine) BulkIndex(ctx context.Context, index string, docs []BulkDocument) (*BulkResult, error) {
	start := timeNow()
	if _, found, err := e.index.GetIndex(ctx, index); err != nil {
		return nil, wrapStorage(err)
	} else if !found {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, index)
	}

	result := &BulkResult{Items: make([]BulkItemResult, 0, len(docs))}
	for _, d := range docs {
		if err := ctx.Err(); err != nil {
			result.Errors = true
			result.Items = append(result.Items, BulkItemResult{ID: d.ID, Status: "error", Error: err.Error()})
			continue
		}
		res, err := e.IndexDocument(ctx, index, d.ID, d.Source)
		if err != nil {
			result.Errors = true
			result.Items = append(result.Items, BulkItemResult{ID: d.ID, Status: "error", Error: err.Error()})
			continue
		}
		result.Items = append(result.Items, BulkItemResult{ID: res.ID, Status: res.Result})
	}
	result.TookMs = int64(timeNow().Sub(start) / time.Millisecond)
	return result, nil
}

// DeleteByQueryResult is the envelope for DeleteByQuery.
type DeleteByQueryResult struct {
	TookMs   int64
	Deleted  int
	Failures []string
}

// DeleteByQuery deletes every document matching q in index.
func (e *Engine) DeleteByQuery(ctx context.Context, index string, q queryeval.Query) (*DeleteByQueryResult, error) {
	start := timeNow()
	const scanPageSize = 10000
	matches, err := e.eval.Search(ctx, index, q, 0, scanPageSize)
	if err != nil {
		return nil, translateQueryEvalErr(err)
	}

	out := &DeleteByQueryResult{}
	for _, hit := range matches.Hits {
		if err := e.DeleteDocument(ctx, index, hit.ID); err != nil {
			out.Failures = append(out.Failures, fmt.Sprintf("%s: %v", hit.ID, err))
			continue
		}
		out.Deleted++
	}
	out.TookMs = int64(timeNow().Sub(start) / time.Millisecond)
	return out, nil
}

// --- Search and suggest -------------------------------------------------

// SearchOptions configures Search beyond the query tree itself.
type SearchOptions struct {
	From int
	Size int
	// TypoTolerant folds in typo-tolerant candidates (SPEC_FULL.md
	// §4.10) as additional should clauses for every Match/Term leaf.
	TypoTolerant bool
}

// Search runs q against index and returns scored, hydrated hits.
func (e *Engine) Search(ctx context.Context, index string, q queryeval.Query, opts SearchOptions) (*queryeval.Result, error) {
	var suggestions []queryeval.Suggestion
	if opts.TypoTolerant {
		expanded, collected, err := e.expandTypoTolerant(ctx, index, q)
		if err != nil {
			return nil, translateQueryEvalErr(err)
		}
		q = expanded
		suggestions = collected
	}
	res, err := e.eval.Search(ctx, index, q, opts.From, opts.Size)
	if err != nil {
		return nil, translateQueryEvalErr(err)
	}
	res.Suggestions = suggestions
	return res, nil
}

// expandTypoTolerant rewrites every Match/Term leaf of q into a should
// group containing the original term plus its typo candidates, per
// SPEC_FULL.md §4.10 and testable property 10, and returns the
// candidates it folded in so the caller can surface them as
// suggestions in the response envelope (testable property 10).
func (e *Engine) expandTypoTolerant(ctx context.Context, index string, q queryeval.Query) (queryeval.Query, []queryeval.Suggestion, error) {
	idx, found, err := e.index.GetIndex(ctx, index)
	if err != nil {
		return q, nil, err
	}
	if !found {
		return q, nil, fmt.Errorf("%w: %q", queryeval.ErrIndexNotFound, index)
	}

	switch {
	case q.Term != nil:
		return e.expandLeaf(ctx, idx, q, q.Term.Field, q.Term.Value, q.Term.Boost)
	case q.Match != nil:
		return e.expandLeaf(ctx, idx, q, q.Match.Field, q.Match.Value, q.Match.Boost)
	case q.Bool != nil:
		must, mustSugg, err := e.expandAll(ctx, index, q.Bool.Must)
		if err != nil {
			return q, nil, err
		}
		should, shouldSugg, err := e.expandAll(ctx, index, q.Bool.Should)
		if err != nil {
			return q, nil, err
		}
		mustNot, _, err := e.expandAll(ctx, index, q.Bool.MustNot)
		if err != nil {
			return q, nil, err
		}
		out := queryeval.Query{Bool: &queryeval.BoolQuery{Must: must, Should: should, MustNot: mustNot}}
		return out, mergeSuggestions(mustSugg, shouldSugg), nil
	default:
		return q, nil, nil
	}
}

func (e *Engine) expandAll(ctx context.Context, index string, qs []queryeval.Query) ([]queryeval.Query, []queryeval.Suggestion, error) {
	if qs == nil {
		return nil, nil, nil
	}
	out := make([]queryeval.Query, len(qs))
	var suggestions []queryeval.Suggestion
	for i, sub := range qs {
		expanded, sugg, err := e.expandTypoTolerant(ctx, index, sub)
		if err != nil {
			return nil, nil, err
		}
		out[i] = expanded
		suggestions = mergeSuggestions(suggestions, sugg)
	}
	return out, suggestions, nil
}

func (e *Engine) expandLeaf(ctx context.Context, idx *indexsvc.Index, original queryeval.Query, field, value string, boost float64) (queryeval.Query, []queryeval.Suggestion, error) {
	if field == "" || field == queryeval.AllFields {
		return original, nil, nil
	}

	candidates, err := typo.Expand(ctx, e.dict, idx.Name, field, strings.ToLower(value), e.opts.TypoToleranceFloor)
	if err != nil {
		return original, nil, err
	}
	if len(candidates) == 0 {
		return original, nil, nil
	}

	should := []queryeval.Query{original}
	suggestions := make([]queryeval.Suggestion, 0, len(candidates))
	for _, c := range candidates {
		should = append(should, queryeval.Query{Term: &queryeval.TermQuery{Field: field, Value: c.Term, Boost: boostOrOne(boost) * c.Boost}})
		suggestions = append(suggestions, queryeval.Suggestion{Text: c.Term, EditDistance: c.EditDistance})
	}
	return queryeval.Query{Bool: &queryeval.BoolQuery{Should: should}}, suggestions, nil
}

// mergeSuggestions unions two suggestion lists, keeping the
// lowest edit distance seen for each distinct term.
func mergeSuggestions(a, b []queryeval.Suggestion) []queryeval.Suggestion {
	if len(a) == 0 {
		return b
	}
	if len(b) == 0 {
		return a
	}
	byText := make(map[string]int, len(a)+len(b))
	order := make([]string, 0, len(a)+len(b))
	for _, s := range append(append([]queryeval.Suggestion{}, a...), b...) {
		if dist, ok := byText[s.Text]; !ok || s.EditDistance < dist {
			if !ok {
				order = append(order, s.Text)
			}
			byText[s.Text] = s.EditDistance
		}
	}
	out := make([]queryeval.Suggestion, len(order))
	for i, text := range order {
		out[i] = queryeval.Suggestion{Text: text, EditDistance: byText[text]}
	}
	return out
}

func boostOrOne(b float64) float64 {
	if b == 0 {
		return 1
	}
	return b
}

func translateQueryEvalErr(err error) error {
	switch {
	case errors.Is(err, queryeval.ErrIndexNotFound):
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	case errors.Is(err, queryeval.ErrBadQuery):
		return fmt.Errorf("%w: %v", ErrBadQuery, err)
	default:
		return wrapStorage(err)
	}
}

// Suggestion is one ranked completion returned by Suggest.
type Suggestion struct {
	Text      string
	Frequency int
	Score     float64
}

// Suggest returns up to limit dictionary terms for (index, field) that
// start with prefix, ranked by descending document frequency, per
// SPEC_FULL.md §6. limit <= 0 defaults to 10.
func (e *Engine) Suggest(ctx context.Context, index, field, prefix string, limit int) ([]Suggestion, error) {
	if limit <= 0 {
		limit = 10
	}
	if _, found, err := e.index.GetIndex(ctx, index); err != nil {
		return nil, wrapStorage(err)
	} else if !found {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, index)
	}

	terms, err := e.dict.TermsForField(ctx, index, field)
	if err != nil {
		return nil, wrapStorage(err)
	}

	prefix = strings.ToLower(prefix)
	var out []Suggestion
	for _, term := range terms {
		if !strings.HasPrefix(term, prefix) {
			continue
		}
		list, found, err := e.dict.GetPostingList(ctx, index, field, term)
		if err != nil {
			return nil, wrapStorage(err)
		}
		if !found {
			continue
		}
		df := list.Size()
		out = append(out, Suggestion{Text: term, Frequency: df, Score: float64(df)})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Frequency != out[j].Frequency {
			return out[i].Frequency > out[j].Frequency
		}
		return out[i].Text < out[j].Text
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

var timeNow = time.Now
