// Package badgerstore backs kv.Store with github.com/dgraph-io/badger/v4,
// the default production KV backend. The transaction-wrapper shape
// (WithReadTxn/WithTxn, ErrKeyNotFound handling) is grounded on the
// trace-agent's router cache in the example pack.
package badgerstore

import (
	"context"
	"errors"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog"

	"github.com/mnohosten/laura-search/pkg/kv"
)

// Store adapts a *badger.DB to kv.Store.
type Store struct {
	db     *badger.DB
	logger zerolog.Logger
}

// Open opens (or creates) a badger database rooted at dir.
func Open(dir string, logger *zerolog.Logger) (*Store, error) {
	lg := zerolog.Nop()
	if logger != nil {
		lg = *logger
	}
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &Store{db: db, logger: lg}, nil
}

// withReadTxn runs fn inside a read-only badger transaction.
func (s *Store) withReadTxn(fn func(txn *badger.Txn) error) error {
	return s.db.View(fn)
}

// withTxn runs fn inside a read-write badger transaction, committing on
// success and rolling back on error.
func (s *Store) withTxn(fn func(txn *badger.Txn) error) error {
	return s.db.Update(fn)
}

func (s *Store) Get(_ context.Context, key []byte) ([]byte, bool, error) {
	var value []byte
	found := true
	err := s.withReadTxn(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				found = false
				return nil
			}
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, false, err
	}
	return value, found, nil
}

func (s *Store) Put(_ context.Context, key, value []byte) error {
	return s.withTxn(func(txn *badger.Txn) error {
		return txn.Set(key, value)
	})
}

func (s *Store) Delete(_ context.Context, key []byte) error {
	return s.withTxn(func(txn *badger.Txn) error {
		err := txn.Delete(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		return err
	})
}

func (s *Store) Scan(_ context.Context, prefix []byte) (kv.Iterator, error) {
	txn := s.db.NewTransaction(false)
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	it := txn.NewIterator(opts)
	it.Seek(prefix)
	return &badgerIterator{txn: txn, it: it, prefix: prefix, started: false}, nil
}

func (s *Store) Batch(_ context.Context, ops []kv.Op) error {
	return s.withTxn(func(txn *badger.Txn) error {
		for _, op := range ops {
			switch op.Kind {
			case kv.OpPut:
				if err := txn.Set(op.Key, op.Value); err != nil {
					return err
				}
			case kv.OpDelete:
				if err := txn.Delete(op.Key); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
					return err
				}
			}
		}
		return nil
	})
}

func (s *Store) Close() error {
	return s.db.Close()
}

type badgerIterator struct {
	txn     *badger.Txn
	it      *badger.Iterator
	prefix  []byte
	started bool
	entry   kv.Entry
	err     error
}

func (bi *badgerIterator) Next() bool {
	if bi.started {
		bi.it.Next()
	}
	bi.started = true
	if !bi.it.ValidForPrefix(bi.prefix) {
		return false
	}
	item := bi.it.Item()
	key := append([]byte(nil), item.KeyCopy(nil)...)
	value, err := item.ValueCopy(nil)
	if err != nil {
		bi.err = err
		return false
	}
	bi.entry = kv.Entry{Key: key, Value: value}
	return true
}

func (bi *badgerIterator) Entry() kv.Entry { return bi.entry }
func (bi *badgerIterator) Err() error      { return bi.err }

func (bi *badgerIterator) Close() error {
	bi.it.Close()
	bi.txn.Discard()
	return nil
}
