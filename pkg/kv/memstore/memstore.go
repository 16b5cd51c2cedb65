// Package memstore is an in-memory kv.Store backed by a sorted slice of
// keys, used by unit tests that need no I/O.
package memstore

import (
	"bytes"
	"context"
	"sort"
	"sync"

	"github.com/mnohosten/laura-search/pkg/kv"
)

// Store is a sorted, mutex-guarded in-memory implementation of kv.Store.
type Store struct {
	mu   sync.RWMutex
	data map[string][]byte
	keys []string // kept sorted
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{data: make(map[string][]byte)}
}

func (s *Store) Get(_ context.Context, key []byte) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[string(key)]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, true, nil
}

func (s *Store) Put(_ context.Context, key, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.putLocked(key, value)
	return nil
}

func (s *Store) putLocked(key, value []byte) {
	k := string(key)
	v := make([]byte, len(value))
	copy(v, value)
	if _, exists := s.data[k]; !exists {
		idx := sort.SearchStrings(s.keys, k)
		s.keys = append(s.keys, "")
		copy(s.keys[idx+1:], s.keys[idx:])
		s.keys[idx] = k
	}
	s.data[k] = v
}

func (s *Store) Delete(_ context.Context, key []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleteLocked(key)
	return nil
}

func (s *Store) deleteLocked(key []byte) {
	k := string(key)
	if _, exists := s.data[k]; !exists {
		return
	}
	delete(s.data, k)
	idx := sort.SearchStrings(s.keys, k)
	if idx < len(s.keys) && s.keys[idx] == k {
		s.keys = append(s.keys[:idx], s.keys[idx+1:]...)
	}
}

func (s *Store) Scan(_ context.Context, prefix []byte) (kv.Iterator, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p := string(prefix)
	start := sort.SearchStrings(s.keys, p)
	var entries []kv.Entry
	for i := start; i < len(s.keys); i++ {
		k := s.keys[i]
		if !bytes.HasPrefix([]byte(k), prefix) {
			break
		}
		v := s.data[k]
		cv := make([]byte, len(v))
		copy(cv, v)
		entries = append(entries, kv.Entry{Key: []byte(k), Value: cv})
	}
	return &sliceIterator{entries: entries, idx: -1}, nil
}

func (s *Store) Batch(_ context.Context, ops []kv.Op) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, op := range ops {
		switch op.Kind {
		case kv.OpPut:
			s.putLocked(op.Key, op.Value)
		case kv.OpDelete:
			s.deleteLocked(op.Key)
		}
	}
	return nil
}

func (s *Store) Close() error { return nil }

type sliceIterator struct {
	entries []kv.Entry
	idx     int
}

func (it *sliceIterator) Next() bool {
	it.idx++
	return it.idx < len(it.entries)
}

func (it *sliceIterator) Entry() kv.Entry {
	return it.entries[it.idx]
}

func (it *sliceIterator) Err() error   { return nil }
func (it *sliceIterator) Close() error { return nil }
