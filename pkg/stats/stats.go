// Package stats implements the per-index statistics of SPEC_FULL.md
// §3 ("Index statistics") and §4.8: total document count and, per
// field, summed field lengths and the count of documents containing
// that field, used by the BM25 scorer's average-field-length term.
// Per-term document frequency is not tracked here — it is simply the
// size of that term's posting list (pkg/posting.List.Size), so no
// separate counter can drift from the postings that define it.
//
// The RWMutex-guarded struct-of-counters shape keeps counters as plain
// int64 behind the lock rather than sync/atomic, since every mutation
// here also touches the field map and must already hold the lock.
package stats

import (
	"context"
	"fmt"
	"sync"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/mnohosten/laura-search/pkg/codec"
	"github.com/mnohosten/laura-search/pkg/kv"
)

// FieldStats accumulates BM25 inputs for one field.
type FieldStats struct {
	SumFieldLengths int64
	DocumentCount   int64
}

// Snapshot is an immutable copy of one index's stats.
type Snapshot struct {
	TotalDocuments int64
	Fields         map[string]FieldStats
}

// AvgFieldLength returns the average length of field across documents
// that contain it, or 0 if no document does.
func (s Snapshot) AvgFieldLength(field string) float64 {
	f, ok := s.Fields[field]
	if !ok || f.DocumentCount == 0 {
		return 0
	}
	return float64(f.SumFieldLengths) / float64(f.DocumentCount)
}

type indexStats struct {
	mu             sync.RWMutex
	totalDocuments int64
	fields         map[string]*FieldStats
}

// Service owns the live, write-through stats for every open index.
type Service struct {
	store   kv.Store
	mu      sync.RWMutex
	indices map[string]*indexStats
}

// New constructs a Service backed by store.
func New(store kv.Store) *Service {
	return &Service{store: store, indices: make(map[string]*indexStats)}
}

func (s *Service) indexEntry(index string) *indexStats {
	s.mu.RLock()
	e, ok := s.indices[index]
	s.mu.RUnlock()
	if ok {
		return e
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.indices[index]; ok {
		return e
	}
	e = &indexStats{fields: make(map[string]*FieldStats)}
	s.indices[index] = e
	return e
}

// Load reads the persisted stats blob for index, if any, replacing any
// in-memory state. Call once per index at startup.
func (s *Service) Load(ctx context.Context, index string) error {
	raw, found, err := s.store.Get(ctx, codec.StatsKey(index, "main"))
	if err != nil {
		return fmt.Errorf("stats: load %s: %w", index, err)
	}
	if !found {
		return nil
	}
	var wire wireStats
	if err := msgpack.Unmarshal(raw, &wire); err != nil {
		return fmt.Errorf("stats: decode %s: %w", index, err)
	}

	e := s.indexEntry(index)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.totalDocuments = wire.TotalDocuments
	e.fields = make(map[string]*FieldStats, len(wire.Fields))
	for name, fs := range wire.Fields {
		f := fs
		e.fields[name] = &f
	}
	return nil
}

type wireStats struct {
	TotalDocuments int64
	Fields         map[string]FieldStats
}

// AddDocument records ingestion of one document with the given
// per-field token-count lengths, then persists the updated blob.
func (s *Service) AddDocument(ctx context.Context, index string, fieldLens map[string]int) error {
	e := s.indexEntry(index)
	e.mu.Lock()
	e.totalDocuments++
	for field, length := range fieldLens {
		f, ok := e.fields[field]
		if !ok {
			f = &FieldStats{}
			e.fields[field] = f
		}
		f.SumFieldLengths += int64(length)
		f.DocumentCount++
	}
	e.mu.Unlock()
	return s.persist(ctx, index, e)
}

// RemoveDocument reverses a prior AddDocument for the same fieldLens,
// then persists the updated blob. Counters are clamped at zero so
// concurrent double-removal cannot drive stats negative.
func (s *Service) RemoveDocument(ctx context.Context, index string, fieldLens map[string]int) error {
	e := s.indexEntry(index)
	e.mu.Lock()
	if e.totalDocuments > 0 {
		e.totalDocuments--
	}
	for field, length := range fieldLens {
		f, ok := e.fields[field]
		if !ok {
			continue
		}
		f.SumFieldLengths -= int64(length)
		if f.SumFieldLengths < 0 {
			f.SumFieldLengths = 0
		}
		if f.DocumentCount > 0 {
			f.DocumentCount--
		}
	}
	e.mu.Unlock()
	return s.persist(ctx, index, e)
}

// Replace atomically swaps the stats for index, used by the
// document-count verifier's authoritative recount.
func (s *Service) Replace(ctx context.Context, index string, snap Snapshot) error {
	e := s.indexEntry(index)
	e.mu.Lock()
	e.totalDocuments = snap.TotalDocuments
	e.fields = make(map[string]*FieldStats, len(snap.Fields))
	for name, fs := range snap.Fields {
		f := fs
		e.fields[name] = &f
	}
	e.mu.Unlock()
	return s.persist(ctx, index, e)
}

// Get returns a consistent snapshot of index's current stats.
func (s *Service) Get(index string) Snapshot {
	e := s.indexEntry(index)
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := Snapshot{TotalDocuments: e.totalDocuments, Fields: make(map[string]FieldStats, len(e.fields))}
	for name, f := range e.fields {
		out.Fields[name] = *f
	}
	return out
}

// Clear removes the persisted stats blob and in-memory entry for index.
// Idempotent.
func (s *Service) Clear(ctx context.Context, index string) error {
	s.mu.Lock()
	delete(s.indices, index)
	s.mu.Unlock()
	if err := s.store.Delete(ctx, codec.StatsKey(index, "main")); err != nil {
		return fmt.Errorf("stats: clear %s: %w", index, err)
	}
	return nil
}

func (s *Service) persist(ctx context.Context, index string, e *indexStats) error {
	e.mu.RLock()
	wire := wireStats{TotalDocuments: e.totalDocuments, Fields: make(map[string]FieldStats, len(e.fields))}
	for name, f := range e.fields {
		wire.Fields[name] = *f
	}
	e.mu.RUnlock()

	encoded, err := msgpack.Marshal(wire)
	if err != nil {
		return fmt.Errorf("stats: encode %s: %w", index, err)
	}
	if err := s.store.Put(ctx, codec.StatsKey(index, "main"), encoded); err != nil {
		return fmt.Errorf("stats: persist %s: %w", index, err)
	}
	return nil
}
