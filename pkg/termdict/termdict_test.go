package termdict

import (
	"context"
	"errors"
	"testing"

	"github.com/mnohosten/laura-search/pkg/codec"
	"github.com/mnohosten/laura-search/pkg/kv"
	"github.com/mnohosten/laura-search/pkg/kv/memstore"
	"github.com/mnohosten/laura-search/pkg/posting"
)

func newDict(t *testing.T, store kv.Store) *Dictionary {
	t.Helper()
	d, err := New(store, nil, Config{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return d
}

func TestAddPostingThenGet(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	d := newDict(t, store)

	isNew, err := d.AddPosting(ctx, "idx", "body", "cat", posting.Posting{DocID: "1", TermFreq: 1, Positions: []uint32{0}})
	if err != nil || !isNew {
		t.Fatalf("AddPosting: isNew=%v err=%v", isNew, err)
	}

	list, ok, err := d.GetPostingList(ctx, "idx", "body", "cat")
	if err != nil || !ok {
		t.Fatalf("GetPostingList: ok=%v err=%v", ok, err)
	}
	p, ok := list.GetEntry("1")
	if !ok || p.TermFreq != 1 {
		t.Fatalf("unexpected posting: %+v ok=%v", p, ok)
	}
}

func TestAddPostingSurvivesCacheEviction(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	d, err := New(store, nil, Config{MaxCacheSize: 1})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, err := d.AddPosting(ctx, "idx", "body", "cat", posting.Posting{DocID: "1", TermFreq: 1}); err != nil {
		t.Fatal(err)
	}
	// Adding a second distinct term evicts "cat" from the bounded cache,
	// which must flush it to storage rather than lose it.
	if _, err := d.AddPosting(ctx, "idx", "body", "dog", posting.Posting{DocID: "2", TermFreq: 1}); err != nil {
		t.Fatal(err)
	}

	list, ok, err := d.GetPostingList(ctx, "idx", "body", "cat")
	if err != nil || !ok {
		t.Fatalf("expected evicted term still retrievable: ok=%v err=%v", ok, err)
	}
	if _, ok := list.GetEntry("1"); !ok {
		t.Fatal("expected doc 1 to survive eviction and reload")
	}
}

// failingScanStore wraps a kv.Store and fails every Scan call once
// armed, to exercise the invariant that a read failure during a merge
// can never destroy previously persisted postings.
type failingScanStore struct {
	kv.Store
	failScans bool
}

func (f *failingScanStore) Scan(ctx context.Context, prefix []byte) (kv.Iterator, error) {
	if f.failScans {
		return nil, errors.New("simulated scan failure")
	}
	return f.Store.Scan(ctx, prefix)
}

func TestAtomicMergeNeverDestroysDataOnReadFailure(t *testing.T) {
	ctx := context.Background()
	base := memstore.New()
	wrapped := &failingScanStore{Store: base}
	d := newDict(t, wrapped)

	for i := 0; i < 3; i++ {
		if _, err := d.AddPosting(ctx, "idx", "body", "cat", posting.Posting{DocID: string(rune('a' + i)), TermFreq: 1}); err != nil {
			t.Fatalf("seed AddPosting: %v", err)
		}
	}

	// Force the in-memory cache to forget the term so the next add must
	// go through a load, and make that load's underlying scan fail.
	// Removing from cache also queues the term for flush via the pending
	// map; drop that too so the reload is forced through the (now
	// failing) store scan rather than served from the pending copy.
	d.cache.Remove("idx:body:cat")
	d.pending.Delete("idx:body:cat")
	wrapped.failScans = true

	if _, err := d.AddPosting(ctx, "idx", "body", "cat", posting.Posting{DocID: "z", TermFreq: 1}); err == nil {
		t.Fatal("expected AddPosting to surface the read failure rather than silently drop data")
	}

	wrapped.failScans = false
	chunks, err := d.readChunks(ctx, "idx", "body", "cat")
	if err != nil {
		t.Fatalf("readChunks after recovery: %v", err)
	}
	if len(chunks) < 3 {
		t.Fatalf("expected at least the original 3 postings to survive, got %d: %+v", len(chunks), chunks)
	}
}

func TestReadChunksPrefersHighestNumericChunkOverLexicographicOrder(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	d := newDict(t, store)

	// Write chunk #2 (stale) and chunk #10 (newer) directly, bypassing
	// AddPosting's sequential allocation, so the two coexist the way they
	// would after nine rounds of eviction-triggered flushes. "#2" sorts
	// after "#10" lexicographically, so a scan-order merge would wrongly
	// let the stale chunk win.
	stale, err := codec.EncodePostingList([]codec.PostingRecord{{DocID: "x", TermFreq: 1, Positions: []uint32{0}}})
	if err != nil {
		t.Fatalf("encode stale chunk: %v", err)
	}
	fresh, err := codec.EncodePostingList([]codec.PostingRecord{{DocID: "x", TermFreq: 99, Positions: []uint32{0, 1, 2}}})
	if err != nil {
		t.Fatalf("encode fresh chunk: %v", err)
	}
	if err := store.Put(ctx, codec.TermChunkKey("idx", "body", "cat", 10), fresh); err != nil {
		t.Fatalf("put chunk #10: %v", err)
	}
	if err := store.Put(ctx, codec.TermChunkKey("idx", "body", "cat", 2), stale); err != nil {
		t.Fatalf("put chunk #2: %v", err)
	}

	recs, err := d.readChunks(ctx, "idx", "body", "cat")
	if err != nil {
		t.Fatalf("readChunks: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("expected one merged record for doc x, got %d: %+v", len(recs), recs)
	}
	if recs[0].TermFreq != 99 {
		t.Fatalf("expected chunk #10 (highest numeric index) to win, got TermFreq=%d", recs[0].TermFreq)
	}
}

func TestClearIndexRemovesTermsAndCatalog(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	d := newDict(t, store)

	if _, err := d.AddPosting(ctx, "idx", "body", "cat", posting.Posting{DocID: "1", TermFreq: 1}); err != nil {
		t.Fatal(err)
	}
	if err := d.ClearIndex(ctx, "idx"); err != nil {
		t.Fatalf("ClearIndex: %v", err)
	}
	if _, ok, err := d.GetPostingList(ctx, "idx", "body", "cat"); err != nil || ok {
		t.Fatalf("expected term gone after ClearIndex: ok=%v err=%v", ok, err)
	}
}

func TestFlushAndLoadCatalog(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	d := newDict(t, store)

	if _, err := d.AddPosting(ctx, "idx", "body", "cat", posting.Posting{DocID: "1", TermFreq: 1}); err != nil {
		t.Fatal(err)
	}
	if err := d.FlushCatalog(ctx, "idx"); err != nil {
		t.Fatalf("FlushCatalog: %v", err)
	}

	d2 := newDict(t, store)
	if err := d2.LoadCatalog(ctx, "idx"); err != nil {
		t.Fatalf("LoadCatalog: %v", err)
	}
	if _, ok, err := d2.GetPostingList(ctx, "idx", "body", "cat"); err != nil || !ok {
		t.Fatalf("expected catalog-known term to be loadable: ok=%v err=%v", ok, err)
	}
}

func TestEvictionQueuedForFlusherAndFlushEvictedPersists(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	d, err := New(store, nil, Config{MaxCacheSize: 1})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, err := d.AddPosting(ctx, "idx", "body", "cat", posting.Posting{DocID: "1", TermFreq: 1}); err != nil {
		t.Fatal(err)
	}
	if _, err := d.AddPosting(ctx, "idx", "body", "dog", posting.Posting{DocID: "2", TermFreq: 1}); err != nil {
		t.Fatal(err)
	}

	select {
	case ev := <-d.Evictions():
		if ev.Key != "idx:body:cat" {
			t.Fatalf("expected eviction of 'cat', got %q", ev.Key)
		}
		if err := d.FlushEvicted(ctx, ev); err != nil {
			t.Fatalf("FlushEvicted: %v", err)
		}
	default:
		t.Fatal("expected an eviction queued on the channel")
	}

	if _, ok := d.pending.Load("idx:body:cat"); ok {
		t.Fatal("expected pending entry cleared after FlushEvicted")
	}
}

func TestClearIndexDropsQueuedEvictionsForThatIndex(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	d, err := New(store, nil, Config{MaxCacheSize: 1})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, err := d.AddPosting(ctx, "idx", "body", "cat", posting.Posting{DocID: "1", TermFreq: 1}); err != nil {
		t.Fatal(err)
	}
	if _, err := d.AddPosting(ctx, "other", "body", "fish", posting.Posting{DocID: "1", TermFreq: 1}); err != nil {
		t.Fatal(err)
	}
	// Evicts "idx:body:cat" onto the channel (cache cap 1).
	if _, err := d.AddPosting(ctx, "idx", "body", "dog", posting.Posting{DocID: "2", TermFreq: 1}); err != nil {
		t.Fatal(err)
	}

	if err := d.ClearIndex(ctx, "idx"); err != nil {
		t.Fatalf("ClearIndex: %v", err)
	}

	// "other:body:fish" was also evicted along the way and must survive
	// the drain; only queued evictions for the cleared index are dropped.
	for {
		select {
		case ev := <-d.Evictions():
			if ev.Key == "idx:body:cat" {
				t.Fatal("expected no queued eviction for deleted index's term")
			}
		default:
			return
		}
	}
}
