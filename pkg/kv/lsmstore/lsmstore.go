// Package lsmstore backs kv.Store with a log-structured merge tree: an
// in-memory skip-list memtable flushed to sorted, bloom-filtered
// SSTables with background compaction. It is the implementer's-choice
// alternative to badgerstore for the KV store adapter (see
// SPEC_FULL.md §4.2).
package lsmstore

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/mnohosten/laura-search/pkg/kv"
	"github.com/mnohosten/laura-search/pkg/lsm"
)

// Store adapts *lsm.LSMTree to kv.Store.
type Store struct {
	tree *lsm.LSMTree
	// batchMu serializes Batch calls against each other only; the
	// underlying tree has no native multi-key transaction. Get and Scan
	// do not take it, so a reader can observe a partly applied batch,
	// and an op that fails leaves the ops before it applied.
	batchMu sync.Mutex
}

// Config mirrors lsm.Config so callers don't need to import pkg/lsm.
type Config struct {
	Dir            string
	MemTableSize   int64
	IndexInterval  int
	CompressValues bool
}

// Open creates or reopens an LSM-backed store rooted at cfg.Dir.
func Open(cfg Config, logger *zerolog.Logger) (*Store, error) {
	lc := &lsm.Config{
		Dir:            cfg.Dir,
		MemTableSize:   cfg.MemTableSize,
		IndexInterval:  cfg.IndexInterval,
		CompressValues: cfg.CompressValues,
	}
	if lc.MemTableSize == 0 {
		lc = lsm.DefaultConfig(cfg.Dir)
		lc.CompressValues = cfg.CompressValues
	}
	tree, err := lsm.NewLSMTree(lc, logger)
	if err != nil {
		return nil, err
	}
	return &Store{tree: tree}, nil
}

func (s *Store) Get(_ context.Context, key []byte) ([]byte, bool, error) {
	v, found, err := s.tree.Get(key)
	if err != nil {
		if errors.Is(err, lsm.ErrClosed) {
			return nil, false, err
		}
		return nil, false, err
	}
	return v, found, nil
}

func (s *Store) Put(_ context.Context, key, value []byte) error {
	return s.tree.Put(key, value)
}

func (s *Store) Delete(_ context.Context, key []byte) error {
	return s.tree.Delete(key)
}

func (s *Store) Scan(_ context.Context, prefix []byte) (kv.Iterator, error) {
	entries, err := s.tree.ScanPrefix(prefix)
	if err != nil {
		return nil, err
	}
	out := make([]kv.Entry, len(entries))
	for i, e := range entries {
		out[i] = kv.Entry{Key: e.Key, Value: e.Value}
	}
	return &sliceIterator{entries: out, idx: -1}, nil
}

func (s *Store) Batch(_ context.Context, ops []kv.Op) error {
	s.batchMu.Lock()
	defer s.batchMu.Unlock()
	for _, op := range ops {
		switch op.Kind {
		case kv.OpPut:
			if err := s.tree.Put(op.Key, op.Value); err != nil {
				return err
			}
		case kv.OpDelete:
			if err := s.tree.Delete(op.Key); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Store) Close() error {
	return s.tree.Close()
}

type sliceIterator struct {
	entries []kv.Entry
	idx     int
}

func (it *sliceIterator) Next() bool {
	it.idx++
	return it.idx < len(it.entries)
}

func (it *sliceIterator) Entry() kv.Entry { return it.entries[it.idx] }
func (it *sliceIterator) Err() error      { return nil }
func (it *sliceIterator) Close() error    { return nil }
