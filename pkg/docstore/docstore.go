// Package docstore implements the document store of SPEC_FULL.md §4.6:
// raw source documents keyed by (index, doc_id), with bulk operations
// that isolate per-document failures rather than aborting the whole
// batch. Grounded on pkg/document.Document as the ordered, BSON-typed
// in-memory representation handed back to callers, and on pkg/codec
// for the durable msgpack encoding.
package docstore

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/mnohosten/laura-search/pkg/codec"
	"github.com/mnohosten/laura-search/pkg/document"
	"github.com/mnohosten/laura-search/pkg/kv"
)

// Record is one stored document plus the bookkeeping the rest of the
// engine needs (field lengths for BM25, and a version counting how many
// times the document has been written).
type Record struct {
	ID        string
	Doc       *document.Document
	Source    map[string]interface{}
	FieldLens map[string]int
	Version   int
}

// Store is the document store.
type Store struct {
	kv          kv.Store
	logger      zerolog.Logger
	maxDocBytes int
}

// New constructs a Store. maxDocBytes <= 0 uses codec.MaxDocumentBytes.
func New(store kv.Store, logger *zerolog.Logger, maxDocBytes int) *Store {
	lg := zerolog.Nop()
	if logger != nil {
		lg = *logger
	}
	return &Store{kv: store, logger: lg, maxDocBytes: maxDocBytes}
}

// Put writes a single document, returning its new version (previous
// version + 1, or 1 if it did not exist).
func (s *Store) Put(ctx context.Context, index, id string, source map[string]interface{}, fieldLens map[string]int) (int, error) {
	version := 1
	if existing, found, err := s.getRecord(ctx, index, id); err != nil {
		return 0, err
	} else if found {
		version = existing.Version + 1
	}

	rec := codec.DocumentRecord{ID: id, Source: source, FieldLens: fieldLens, Version: version}
	encoded, err := codec.EncodeDocument(rec, s.maxDocBytes)
	if err != nil {
		return 0, fmt.Errorf("docstore: put %s/%s: %w", index, id, err)
	}
	if err := s.kv.Put(ctx, codec.DocKey(index, id), encoded); err != nil {
		return 0, fmt.Errorf("docstore: put %s/%s: %w", index, id, err)
	}
	return version, nil
}

// Get returns the document at (index, id), or found=false if absent.
func (s *Store) Get(ctx context.Context, index, id string) (*Record, bool, error) {
	return s.getRecord(ctx, index, id)
}

func (s *Store) getRecord(ctx context.Context, index, id string) (*Record, bool, error) {
	raw, found, err := s.kv.Get(ctx, codec.DocKey(index, id))
	if err != nil {
		return nil, false, fmt.Errorf("docstore: get %s/%s: %w", index, id, err)
	}
	if !found {
		return nil, false, nil
	}
	rec, err := codec.DecodeDocument(raw)
	if err != nil {
		return nil, false, fmt.Errorf("docstore: decode %s/%s: %w", index, id, err)
	}
	return &Record{
		ID:        rec.ID,
		Doc:       document.NewDocumentFromMap(rec.Source),
		Source:    rec.Source,
		FieldLens: rec.FieldLens,
		Version:   rec.Version,
	}, true, nil
}

// Delete removes the document at (index, id). Idempotent.
func (s *Store) Delete(ctx context.Context, index, id string) error {
	if err := s.kv.Delete(ctx, codec.DocKey(index, id)); err != nil {
		return fmt.Errorf("docstore: delete %s/%s: %w", index, id, err)
	}
	return nil
}

// UpsertItem is one document in a BulkUpsert request.
type UpsertItem struct {
	ID        string
	Source    map[string]interface{}
	FieldLens map[string]int
}

// ItemError pairs a document id with the reason its operation failed.
type ItemError struct {
	ID  string
	Err error
}

func (e ItemError) Error() string { return fmt.Sprintf("%s: %v", e.ID, e.Err) }

// BulkUpsert writes every item, isolating per-document failures: one
// bad document never aborts the rest of the batch (SPEC_FULL.md §4.6).
func (s *Store) BulkUpsert(ctx context.Context, index string, items []UpsertItem) (successCount int, failures []ItemError) {
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			failures = append(failures, ItemError{ID: item.ID, Err: err})
			continue
		}
		if _, err := s.Put(ctx, index, item.ID, item.Source, item.FieldLens); err != nil {
			failures = append(failures, ItemError{ID: item.ID, Err: err})
			continue
		}
		successCount++
	}
	return successCount, failures
}

// BulkDelete removes every id, isolating per-document failures the same
// way BulkUpsert does.
func (s *Store) BulkDelete(ctx context.Context, index string, ids []string) (successCount int, failures []ItemError) {
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			failures = append(failures, ItemError{ID: id, Err: err})
			continue
		}
		if err := s.Delete(ctx, index, id); err != nil {
			failures = append(failures, ItemError{ID: id, Err: err})
			continue
		}
		successCount++
	}
	return successCount, failures
}

// Filter restricts Scan to documents whose content.<Field> equals
// Value, per SPEC_FULL.md §4.6.
type Filter struct {
	Field string
	Value interface{}
}

// Scan iterates every document in index matching filter (nil means no
// filter), skipping offset matches and returning at most limit records
// (limit <= 0 means unbounded).
func (s *Store) Scan(ctx context.Context, index string, filter *Filter, limit, offset int) ([]*Record, error) {
	it, err := s.kv.Scan(ctx, codec.DocPrefix(index))
	if err != nil {
		return nil, fmt.Errorf("docstore: scan %s: %w", index, err)
	}
	defer it.Close()

	var out []*Record
	skipped := 0
	for it.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		entry := it.Entry()
		rec, err := codec.DecodeDocument(entry.Value)
		if err != nil {
			s.logger.Error().Err(err).Str("key", string(entry.Key)).Msg("docstore: skipping corrupt record during scan")
			continue
		}

		if filter != nil {
			doc := document.NewDocumentFromMap(rec.Source)
			val, ok := doc.GetNested(filter.Field)
			if !ok || !valuesEqual(val, filter.Value) {
				continue
			}
		}

		if skipped < offset {
			skipped++
			continue
		}
		out = append(out, &Record{
			ID:        rec.ID,
			Doc:       document.NewDocumentFromMap(rec.Source),
			Source:    rec.Source,
			FieldLens: rec.FieldLens,
			Version:   rec.Version,
		})
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	if err := it.Err(); err != nil {
		return nil, fmt.Errorf("docstore: scan %s: %w", index, err)
	}
	return out, nil
}

func valuesEqual(a, b interface{}) bool {
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}
