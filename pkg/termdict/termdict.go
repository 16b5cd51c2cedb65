// Package termdict implements the term dictionary of SPEC_FULL.md §4.5:
// an LRU-cached, write-through map from index-aware term to posting
// list. The recency structure is built on hashicorp/golang-lru/v2 (an
// eviction-callback-based LRU maps directly onto "on eviction,
// serialize and flush"); the chunked atomic-merge write path is
// grounded on the append-only posting-index pattern used by the
// Badger-backed outserv example in the pack, generalized so a failed
// read of existing chunks can never cause a write that overwrites
// entries it did not see (SPEC_FULL.md §4.5, testable property 4).
package termdict

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"

	"github.com/mnohosten/laura-search/pkg/codec"
	"github.com/mnohosten/laura-search/pkg/kv"
	"github.com/mnohosten/laura-search/pkg/posting"
)

// DefaultMaxCacheSize is the default LRU cap (SPEC_FULL.md §4.5).
const DefaultMaxCacheSize = 1000

// EvictionQueueSize bounds the channel of pending LRU-eviction flushes
// that the cache flusher task drains off the write path.
const EvictionQueueSize = 256

// EvictedTerm is one posting list dropped from the cache that still
// needs to be persisted.
type EvictedTerm struct {
	Key  string
	List *posting.List
}

// DefaultMemoryCheckInterval is the default number of cache puts
// between heap-pressure checks (SPEC_FULL.md §4.5).
const DefaultMemoryCheckInterval = 100

// MaxChunkEntries bounds a single persisted posting-list chunk.
const MaxChunkEntries = 5000

// Config configures a Dictionary.
type Config struct {
	MaxCacheSize         int
	MemoryCheckInterval  int
	MaxPostingListSize   int
	HeapPressureSampler  func() float64 // returns utilization in [0,1]; nil disables the check
}

// Dictionary is the index-aware term -> posting list map.
type Dictionary struct {
	store  kv.Store
	logger zerolog.Logger
	cfg    Config

	cache *lru.Cache[string, *posting.List]

	evictions chan EvictedTerm
	pending   sync.Map // index-aware term -> *posting.List, evicted but not yet flushed

	termMus sync.Map // index-aware term -> *sync.Mutex
	catalog sync.Map // index name -> *sync.Map[string]struct{}

	putsSinceCheck int
	putsMu         sync.Mutex
}

// New constructs a Dictionary backed by store. flushTerm persists an
// evicted list via the same write path AddPosting uses, so the eviction
// callback and explicit writes never race on the atomic-merge
// invariant.
func New(store kv.Store, logger *zerolog.Logger, cfg Config) (*Dictionary, error) {
	if cfg.MaxCacheSize <= 0 {
		cfg.MaxCacheSize = DefaultMaxCacheSize
	}
	if cfg.MemoryCheckInterval <= 0 {
		cfg.MemoryCheckInterval = DefaultMemoryCheckInterval
	}
	if cfg.MaxPostingListSize <= 0 {
		cfg.MaxPostingListSize = posting.DefaultMaxSize
	}

	lg := zerolog.Nop()
	if logger != nil {
		lg = *logger
	}

	d := &Dictionary{store: store, logger: lg, cfg: cfg, evictions: make(chan EvictedTerm, EvictionQueueSize)}

	cache, err := lru.NewWithEvict[string, *posting.List](cfg.MaxCacheSize, func(key string, value *posting.List) {
		// The value must be visible to readers (via pending) before it is
		// dropped from the cache, regardless of whether a flusher task is
		// running to drain the channel.
		d.pending.Store(key, value)
		select {
		case d.evictions <- EvictedTerm{Key: key, List: value}:
		default:
			// Flusher can't keep up; flush inline rather than let the
			// channel backlog grow unbounded.
			if err := d.flushTerm(context.Background(), key, value); err != nil {
				d.logger.Error().Err(err).Str("term", key).Msg("termdict: eviction flush failed")
			} else {
				d.pending.Delete(key)
			}
		}
	})
	if err != nil {
		return nil, fmt.Errorf("termdict: create lru: %w", err)
	}
	d.cache = cache
	return d, nil
}

func (d *Dictionary) termMutex(key string) *sync.Mutex {
	m, _ := d.termMus.LoadOrStore(key, &sync.Mutex{})
	return m.(*sync.Mutex)
}

func (d *Dictionary) indexCatalog(index string) *sync.Map {
	m, _ := d.catalog.LoadOrStore(index, &sync.Map{})
	return m.(*sync.Map)
}

// AddPosting resolves or loads the posting list for (index, field,
// term), merges entry into it, and persists the change, per
// SPEC_FULL.md §4.5. It returns true if the document id was new to the
// list (for document-frequency accounting).
func (d *Dictionary) AddPosting(ctx context.Context, index, field, term string, entry posting.Posting) (isNew bool, err error) {
	key := codec.IndexAwareTerm(index, field, term)
	mu := d.termMutex(key)
	mu.Lock()
	defer mu.Unlock()

	list, err := d.resolveLocked(ctx, index, field, term, key)
	if err != nil {
		return false, err
	}

	_, existed := list.GetEntry(entry.DocID)
	list.AddEntry(entry)

	if err := d.persistDelta(ctx, index, field, term, []posting.Posting{entry}); err != nil {
		return false, err
	}

	d.cache.Add(key, list)
	d.touchMemoryPressure()
	d.markKnown(index, key)

	return !existed, nil
}

// resolveLocked returns the cached list for key, loading it from
// storage (merging every existing chunk) on a cache miss. Caller must
// hold termMutex(key).
func (d *Dictionary) resolveLocked(ctx context.Context, index, field, term, key string) (*posting.List, error) {
	if list, ok := d.cache.Get(key); ok {
		return list, nil
	}
	if v, ok := d.pending.Load(key); ok {
		list := v.(*posting.List)
		d.cache.Add(key, list)
		return list, nil
	}

	list := posting.New(d.cfg.MaxPostingListSize)
	chunks, err := d.readChunks(ctx, index, field, term)
	if err != nil {
		// A read failure on load must not fabricate a list; surface
		// the error rather than silently starting empty.
		return nil, err
	}
	for _, rec := range chunks {
		list.AddEntry(posting.Posting{DocID: rec.DocID, TermFreq: rec.TermFreq, Positions: rec.Positions})
	}
	d.cache.Add(key, list)
	return list, nil
}

// readChunks loads and merges every persisted chunk of a term's posting
// list, newest chunk winning on doc-id collision. "Newest" means
// highest numeric chunk index, not scan order: the KV store's Scan
// iterates keys lexicographically, so "#2" sorts after "#10" and a
// scan-order merge would let a stale chunk clobber a newer one once a
// term has accumulated ten or more chunks.
func (d *Dictionary) readChunks(ctx context.Context, index, field, term string) ([]codec.PostingRecord, error) {
	it, err := d.store.Scan(ctx, codec.TermPrefix(index))
	if err != nil {
		return nil, fmt.Errorf("termdict: scan chunks: %w", err)
	}
	defer it.Close()

	prefix := string(codec.TermKey(index, field, term))
	type docEntry struct {
		chunk int
		rec   codec.PostingRecord
	}
	byDoc := make(map[string]docEntry)
	for it.Next() {
		e := it.Entry()
		k := string(e.Key)
		chunk, ok := chunkIndexOf(k, prefix)
		if !ok {
			continue
		}
		recs, err := codec.DecodePostingList(e.Value)
		if err != nil {
			return nil, fmt.Errorf("termdict: decode chunk %q: %w", k, err)
		}
		for _, r := range recs {
			if prior, exists := byDoc[r.DocID]; exists && prior.chunk > chunk {
				continue
			}
			byDoc[r.DocID] = docEntry{chunk: chunk, rec: r}
		}
	}
	if err := it.Err(); err != nil {
		return nil, err
	}

	out := make([]codec.PostingRecord, 0, len(byDoc))
	for _, e := range byDoc {
		out = append(out, e.rec)
	}
	return out, nil
}

// chunkIndexOf returns the numeric chunk index encoded in key, given
// the term's base (chunk 0) key, or ok=false if key does not belong to
// this term at all.
func chunkIndexOf(key, base string) (int, bool) {
	if key == base {
		return 0, true
	}
	suffix := strings.TrimPrefix(key, base+"#")
	if suffix == key {
		return 0, false
	}
	n, err := strconv.Atoi(suffix)
	if err != nil {
		return 0, false
	}
	return n, true
}

// persistDelta writes only the newly-changed postings as a fresh,
// independent chunk. It never reads and rewrites existing chunks, so a
// failure to read prior state can never destroy it — this is the
// atomic-merge invariant of SPEC_FULL.md §4.5.
func (d *Dictionary) persistDelta(ctx context.Context, index, field, term string, delta []posting.Posting) error {
	chunkIdx, err := d.nextChunkIndex(ctx, index, field, term)
	if err != nil {
		// Even if we can't determine the next free chunk index, we
		// must still never overwrite unseen data: fall back to a
		// process-local counter namespace so the write lands in a
		// slot nothing else has claimed this run.
		d.logger.Warn().Err(err).Str("term", term).Msg("termdict: chunk index discovery failed, using fallback slot")
		chunkIdx = d.fallbackChunkIndex(index, field, term)
	}

	recs := make([]codec.PostingRecord, len(delta))
	for i, p := range delta {
		recs[i] = codec.PostingRecord{DocID: p.DocID, TermFreq: p.TermFreq, Positions: p.Positions}
	}
	codec.SortPostings(recs)

	encoded, err := codec.EncodePostingList(recs)
	if err != nil {
		return fmt.Errorf("termdict: encode chunk: %w", err)
	}

	chunkKey := codec.TermChunkKey(index, field, term, chunkIdx)
	return d.store.Put(ctx, chunkKey, encoded)
}

func (d *Dictionary) nextChunkIndex(ctx context.Context, index, field, term string) (int, error) {
	it, err := d.store.Scan(ctx, codec.TermPrefix(index))
	if err != nil {
		return 0, err
	}
	defer it.Close()

	base := string(codec.TermKey(index, field, term))
	max := -1
	found := false
	for it.Next() {
		k := string(it.Entry().Key)
		if k == base {
			found = true
			if max < 0 {
				max = 0
			}
			continue
		}
		if strings.HasPrefix(k, base+"#") {
			found = true
			n, err := strconv.Atoi(strings.TrimPrefix(k, base+"#"))
			if err == nil && n > max {
				max = n
			}
		}
	}
	if err := it.Err(); err != nil {
		return 0, err
	}
	if !found {
		return 0, nil
	}
	return max + 1, nil
}

var fallbackCounters sync.Map

func (d *Dictionary) fallbackChunkIndex(index, field, term string) int {
	key := codec.IndexAwareTerm(index, field, term)
	v, _ := fallbackCounters.LoadOrStore(key, new(int64))
	// Start fallback slots far past any realistic scan result so they
	// never collide with a chunk index this process already wrote.
	ctr := v.(*int64)
	*ctr++
	return 1_000_000 + int(*ctr)
}

// TermsForField returns every distinct term currently persisted for
// (index, field), discovered by prefix-scanning the KV store (every
// AddPosting call writes through immediately, so this reflects terms
// not yet evicted into the LRU cache too). Used by typo-tolerance
// candidate expansion.
func (d *Dictionary) TermsForField(ctx context.Context, index, field string) ([]string, error) {
	it, err := d.store.Scan(ctx, codec.FieldTermPrefix(index, field, ""))
	if err != nil {
		return nil, fmt.Errorf("termdict: scan field terms: %w", err)
	}
	defer it.Close()

	base := string(codec.FieldTermPrefix(index, field, ""))
	seen := make(map[string]struct{})
	var terms []string
	for it.Next() {
		k := string(it.Entry().Key)
		rest := strings.TrimPrefix(k, base)
		if idx := strings.IndexByte(rest, '#'); idx >= 0 {
			rest = rest[:idx]
		}
		if rest == "" {
			continue
		}
		if _, ok := seen[rest]; ok {
			continue
		}
		seen[rest] = struct{}{}
		terms = append(terms, rest)
	}
	if err := it.Err(); err != nil {
		return nil, err
	}
	return terms, nil
}

// GetPostingList returns the posting list for (index, field, term), or
// ok=false if the term is unknown to both the cache and the term
// catalogue.
func (d *Dictionary) GetPostingList(ctx context.Context, index, field, term string) (*posting.List, bool, error) {
	key := codec.IndexAwareTerm(index, field, term)
	mu := d.termMutex(key)
	mu.Lock()
	defer mu.Unlock()

	if list, ok := d.cache.Get(key); ok {
		return list, true, nil
	}
	if !d.isKnown(index, key) {
		chunks, err := d.readChunks(ctx, index, field, term)
		if err != nil {
			return nil, false, err
		}
		if len(chunks) == 0 {
			return nil, false, nil
		}
		d.markKnown(index, key)
	}
	list, err := d.resolveLocked(ctx, index, field, term, key)
	if err != nil {
		return nil, false, err
	}
	return list, true, nil
}

func (d *Dictionary) markKnown(index, key string) {
	d.indexCatalog(index).Store(key, struct{}{})
}

func (d *Dictionary) isKnown(index, key string) bool {
	_, ok := d.indexCatalog(index).Load(key)
	return ok
}

// LoadCatalog loads the persisted term catalogue for index, bounded at
// 2*MaxCacheSize entries, with the remainder left discoverable by
// prefix scan on demand (SPEC_FULL.md §4.5).
func (d *Dictionary) LoadCatalog(ctx context.Context, index string) error {
	raw, found, err := d.store.Get(ctx, codec.TermListKey(index))
	if err != nil {
		return err
	}
	if !found {
		return nil
	}
	terms := strings.Split(string(raw), "\n")
	cat := d.indexCatalog(index)
	limit := 2 * d.cfg.MaxCacheSize
	for i, t := range terms {
		if t == "" {
			continue
		}
		if i >= limit {
			break
		}
		cat.Store(t, struct{}{})
	}
	return nil
}

// FlushCatalog persists the in-memory term catalogue for index under
// term_list:<index>.
func (d *Dictionary) FlushCatalog(ctx context.Context, index string) error {
	cat := d.indexCatalog(index)
	var terms []string
	cat.Range(func(k, _ interface{}) bool {
		terms = append(terms, k.(string))
		return true
	})
	sort.Strings(terms)
	return d.store.Put(ctx, codec.TermListKey(index), []byte(strings.Join(terms, "\n")))
}

// Evictions exposes the channel of cache evictions still awaiting
// persistence. The cache flusher background task ranges over this
// channel and calls FlushEvicted for each one, keeping KV writes off
// the synchronous write path (SPEC_FULL.md §4.11).
func (d *Dictionary) Evictions() <-chan EvictedTerm {
	return d.evictions
}

// FlushEvicted persists one entry taken off the Evictions channel.
func (d *Dictionary) FlushEvicted(ctx context.Context, ev EvictedTerm) error {
	if err := d.flushTerm(ctx, ev.Key, ev.List); err != nil {
		return err
	}
	d.pending.Delete(ev.Key)
	return nil
}

func (d *Dictionary) flushTerm(ctx context.Context, key string, list *posting.List) error {
	index, field, term, ok := codec.SplitIndexAwareTerm(key)
	if !ok {
		return fmt.Errorf("termdict: malformed cache key %q", key)
	}
	return d.persistDelta(ctx, index, field, term, list.Iterate())
}

func (d *Dictionary) touchMemoryPressure() {
	if d.cfg.HeapPressureSampler == nil {
		return
	}
	d.putsMu.Lock()
	d.putsSinceCheck++
	due := d.putsSinceCheck >= d.cfg.MemoryCheckInterval
	if due {
		d.putsSinceCheck = 0
	}
	d.putsMu.Unlock()

	if !due {
		return
	}
	if d.cfg.HeapPressureSampler() > 0.8 {
		target := d.cfg.MaxCacheSize / 2
		for d.cache.Len() > target {
			d.cache.RemoveOldest()
		}
	}
}

// drainEvictionsExcept removes every currently-queued eviction belonging
// to index from the channel, returning the rest so the caller can put
// them back.
func (d *Dictionary) drainEvictionsExcept(index string) []EvictedTerm {
	var keep []EvictedTerm
	for {
		select {
		case ev := <-d.evictions:
			if idx, _, _, ok := codec.SplitIndexAwareTerm(ev.Key); ok && idx == index {
				d.pending.Delete(ev.Key)
				continue
			}
			keep = append(keep, ev)
		default:
			return keep
		}
	}
}

// ClearIndex removes every posting list, stats blob, and the term
// catalogue for index. Idempotent (SPEC_FULL.md §4.5).
func (d *Dictionary) ClearIndex(ctx context.Context, index string) error {
	d.catalog.Delete(index)

	for _, key := range d.cache.Keys() {
		if idx, _, _, ok := codec.SplitIndexAwareTerm(key); ok && idx == index {
			d.cache.Remove(key)
			d.pending.Delete(key)
		}
	}
	// A Remove above may have raced an eviction enqueue onto the
	// channel; drop anything already queued for this index so the
	// flusher can't resurrect it after the delete below.
	for _, ev := range d.drainEvictionsExcept(index) {
		d.pending.Store(ev.Key, ev.List)
		select {
		case d.evictions <- ev:
		default:
		}
	}

	it, err := d.store.Scan(ctx, codec.TermPrefix(index))
	if err != nil {
		return err
	}
	var ops []kv.Op
	for it.Next() {
		ops = append(ops, kv.Op{Kind: kv.OpDelete, Key: append([]byte(nil), it.Entry().Key...)})
	}
	it.Close()
	if err := it.Err(); err != nil {
		return err
	}
	sit, err := d.store.Scan(ctx, codec.StatsPrefix(index))
	if err != nil {
		return err
	}
	for sit.Next() {
		ops = append(ops, kv.Op{Kind: kv.OpDelete, Key: append([]byte(nil), sit.Entry().Key...)})
	}
	sit.Close()
	if err := sit.Err(); err != nil {
		return err
	}
	if err := d.store.Batch(ctx, ops); err != nil {
		return err
	}
	return d.store.Delete(ctx, codec.TermListKey(index))
}
