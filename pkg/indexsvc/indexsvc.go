// Package indexsvc owns index metadata lifecycle, SPEC_FULL.md §4.7:
// creation, settings/mapping updates, auto-detected mappings, and
// cascading deletion. The typed settings/mappings struct and
// version-enum field shape are grounded on a CollectionMetadata/
// IndexMetadata, IndexType-enum pattern; persistence uses the same
// msgpack codec as pkg/docstore and pkg/stats rather than a hand-rolled
// binary framing, for one consistent structured-record format across
// the metadata surface.
package indexsvc

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/mnohosten/laura-search/pkg/codec"
	"github.com/mnohosten/laura-search/pkg/docstore"
	"github.com/mnohosten/laura-search/pkg/kv"
	"github.com/mnohosten/laura-search/pkg/stats"
	"github.com/mnohosten/laura-search/pkg/termdict"
)

// Status is an index's lifecycle state.
type Status string

const (
	StatusOpen   Status = "open"
	StatusClosed Status = "closed"
)

// FieldType is a mapping's recognized field kind.
type FieldType string

const (
	FieldText    FieldType = "text"
	FieldKeyword FieldType = "keyword"
	FieldInteger FieldType = "integer"
	FieldFloat   FieldType = "float"
	FieldBoolean FieldType = "boolean"
	FieldDate    FieldType = "date"
	FieldObject  FieldType = "object"
	FieldNested  FieldType = "nested"
)

// FieldMapping describes how one field is analyzed and weighted.
type FieldMapping struct {
	Type     FieldType
	Analyzer string
	Boost    float64
}

// Settings holds the recognized, mostly-advisory index settings.
type Settings struct {
	NumberOfShards  int // ignored by the core, kept for API compatibility
	RefreshInterval time.Duration
}

// Index is the persisted metadata record for one named index.
type Index struct {
	Name          string
	CreatedAt     time.Time
	Status        Status
	DocumentCount int64
	Settings      Settings
	Mappings      map[string]FieldMapping
}

var (
	ErrAlreadyExists = errors.New("index already exists")
	ErrNotFound      = errors.New("index not found")
	ErrBadRequest    = errors.New("bad request")
)

// Service is the index metadata service.
type Service struct {
	store  kv.Store
	logger zerolog.Logger

	mu    sync.RWMutex
	cache map[string]*Index
}

// New constructs a Service backed by store.
func New(store kv.Store, logger *zerolog.Logger) *Service {
	lg := zerolog.Nop()
	if logger != nil {
		lg = *logger
	}
	return &Service{store: store, logger: lg, cache: make(map[string]*Index)}
}

// CreateIndex registers a new index. Fails with ErrAlreadyExists if the
// name is taken.
func (s *Service) CreateIndex(ctx context.Context, name string, settings Settings, mappings map[string]FieldMapping) (*Index, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.cache[name]; ok {
		return nil, fmt.Errorf("%w: %q", ErrAlreadyExists, name)
	}
	if existing, found, err := s.loadLocked(ctx, name); err != nil {
		return nil, err
	} else if found {
		s.cache[name] = existing
		return nil, fmt.Errorf("%w: %q", ErrAlreadyExists, name)
	}

	if mappings == nil {
		mappings = make(map[string]FieldMapping)
	}
	for field, m := range mappings {
		if m.Boost == 0 {
			m.Boost = 1.0
		}
		mappings[field] = m
	}

	idx := &Index{
		Name:          name,
		CreatedAt:     timeNow(),
		Status:        StatusOpen,
		DocumentCount: 0,
		Settings:      settings,
		Mappings:      mappings,
	}
	if err := s.persistLocked(ctx, idx); err != nil {
		return nil, err
	}
	s.cache[name] = idx
	return idx, nil
}

// GetIndex returns the index named name, or found=false if unknown.
func (s *Service) GetIndex(ctx context.Context, name string) (*Index, bool, error) {
	s.mu.RLock()
	if idx, ok := s.cache[name]; ok {
		s.mu.RUnlock()
		return idx, true, nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if idx, ok := s.cache[name]; ok {
		return idx, true, nil
	}
	idx, found, err := s.loadLocked(ctx, name)
	if err != nil || !found {
		return nil, found, err
	}
	s.cache[name] = idx
	return idx, true, nil
}

// ListIndices returns every known index, optionally filtered by status.
func (s *Service) ListIndices(filterStatus Status) []*Index {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Index, 0, len(s.cache))
	for _, idx := range s.cache {
		if filterStatus != "" && idx.Status != filterStatus {
			continue
		}
		out = append(out, idx)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// RefreshCache scans every persisted index record into the in-memory
// cache, so ListIndices reflects indices this process has not yet
// touched with Get/Create. Called once at startup by engine.New.
func (s *Service) RefreshCache(ctx context.Context) error {
	it, err := s.store.Scan(ctx, codec.IndexPrefix())
	if err != nil {
		return fmt.Errorf("indexsvc: refresh cache: %w", err)
	}
	defer it.Close()

	loaded := make(map[string]*Index)
	for it.Next() {
		var idx Index
		if err := msgpack.Unmarshal(it.Entry().Value, &idx); err != nil {
			return fmt.Errorf("indexsvc: refresh cache: decode %q: %w", string(it.Entry().Key), err)
		}
		loaded[idx.Name] = &idx
	}
	if err := it.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for name, idx := range loaded {
		if _, ok := s.cache[name]; !ok {
			s.cache[name] = idx
		}
	}
	return nil
}

// SettingsPatch is a partial update to an index's settings; nil fields
// are left untouched.
type SettingsPatch struct {
	NumberOfShards  *int
	RefreshInterval *time.Duration
	Status          *Status
}

// UpdateSettings merges patch into name's existing settings.
func (s *Service) UpdateSettings(ctx context.Context, name string, patch SettingsPatch) (*Index, error) {
	if patch.NumberOfShards == nil && patch.RefreshInterval == nil && patch.Status == nil {
		return nil, fmt.Errorf("%w: empty settings patch", ErrBadRequest)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	idx, found, err := s.getLocked(ctx, name)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
	}

	updated := *idx
	if patch.NumberOfShards != nil {
		updated.Settings.NumberOfShards = *patch.NumberOfShards
	}
	if patch.RefreshInterval != nil {
		updated.Settings.RefreshInterval = *patch.RefreshInterval
	}
	if patch.Status != nil {
		updated.Status = *patch.Status
	}
	if err := s.persistLocked(ctx, &updated); err != nil {
		return nil, err
	}
	s.cache[name] = &updated
	return &updated, nil
}

// UpdateMappings replaces only the provided field entries, preserving
// the boost and type of every field not mentioned.
func (s *Service) UpdateMappings(ctx context.Context, name string, mappings map[string]FieldMapping) (*Index, error) {
	if len(mappings) == 0 {
		return nil, fmt.Errorf("%w: empty mappings patch", ErrBadRequest)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	idx, found, err := s.getLocked(ctx, name)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
	}

	updated := *idx
	updated.Mappings = make(map[string]FieldMapping, len(idx.Mappings))
	for field, m := range idx.Mappings {
		updated.Mappings[field] = m
	}
	for field, m := range mappings {
		if m.Boost == 0 {
			m.Boost = 1.0
		}
		updated.Mappings[field] = m
	}
	if err := s.persistLocked(ctx, &updated); err != nil {
		return nil, err
	}
	s.cache[name] = &updated
	return &updated, nil
}

// AutoDetectMappings samples up to ten documents from docs and infers
// field types per SPEC_FULL.md §4.7, merging the result into name's
// mappings (without overriding fields the caller has already mapped
// explicitly with a non-default boost or analyzer).
func (s *Service) AutoDetectMappings(ctx context.Context, name string, docs *docstore.Store) (map[string]FieldMapping, error) {
	sample, err := docs.Scan(ctx, name, nil, 10, 0)
	if err != nil {
		return nil, fmt.Errorf("indexsvc: auto-detect %s: %w", name, err)
	}

	var existing map[string]FieldMapping
	if idx, found, err := s.GetIndex(ctx, name); err != nil {
		return nil, err
	} else if found {
		existing = idx.Mappings
	}

	inferred := make(map[string]FieldMapping)
	for _, rec := range sample {
		for field, value := range rec.Source {
			if _, done := inferred[field]; done {
				continue
			}
			if m, ok := existing[field]; ok && (m.Boost != 1.0 || m.Analyzer != "") {
				continue
			}
			if t, ok := detectType(value); ok {
				inferred[field] = FieldMapping{Type: t, Boost: 1.0}
			}
		}
	}

	if len(inferred) > 0 {
		if _, err := s.UpdateMappings(ctx, name, inferred); err != nil {
			return nil, err
		}
	}
	return inferred, nil
}

func detectType(v interface{}) (FieldType, bool) {
	switch val := v.(type) {
	case string:
		if strings.ContainsAny(val, " \t\n") || len(val) > 50 {
			return FieldText, true
		}
		if _, err := time.Parse(time.RFC3339, val); err == nil {
			return FieldDate, true
		}
		return FieldKeyword, true
	case bool:
		return FieldBoolean, true
	case float64:
		if val == float64(int64(val)) {
			return FieldInteger, true
		}
		return FieldFloat, true
	case int, int32, int64:
		return FieldInteger, true
	case time.Time:
		return FieldDate, true
	case []interface{}:
		if len(val) == 0 {
			return "", false
		}
		switch val[0].(type) {
		case string:
			return FieldKeyword, true
		case map[string]interface{}:
			return FieldNested, true
		default:
			return "", false
		}
	case map[string]interface{}:
		return FieldObject, true
	default:
		return "", false
	}
}

// DeleteIndex removes documents, postings, stats, then metadata, in
// that order. Idempotent: re-running after a partial failure completes
// cleanly (SPEC_FULL.md §4.7).
func (s *Service) DeleteIndex(ctx context.Context, name string, docs *docstore.Store, dict *termdict.Dictionary, statsSvc *stats.Service) error {
	records, err := docs.Scan(ctx, name, nil, 0, 0)
	if err != nil {
		return fmt.Errorf("indexsvc: delete %s: scan documents: %w", name, err)
	}
	ids := make([]string, len(records))
	for i, r := range records {
		ids[i] = r.ID
	}
	if _, failures := docs.BulkDelete(ctx, name, ids); len(failures) > 0 {
		return fmt.Errorf("indexsvc: delete %s: document delete failures: %v", name, failures)
	}

	if err := dict.ClearIndex(ctx, name); err != nil {
		return fmt.Errorf("indexsvc: delete %s: clear postings: %w", name, err)
	}

	if err := statsSvc.Clear(ctx, name); err != nil {
		return fmt.Errorf("indexsvc: delete %s: clear stats: %w", name, err)
	}

	s.mu.Lock()
	delete(s.cache, name)
	s.mu.Unlock()
	if err := s.store.Delete(ctx, codec.IndexKey(name)); err != nil {
		return fmt.Errorf("indexsvc: delete %s: clear metadata: %w", name, err)
	}
	return nil
}

// RebuildDocumentCount recounts name's document_count authoritatively
// by scanning the document store, used by the periodic verifier.
func (s *Service) RebuildDocumentCount(ctx context.Context, name string, docs *docstore.Store) (int64, error) {
	records, err := docs.Scan(ctx, name, nil, 0, 0)
	if err != nil {
		return 0, fmt.Errorf("indexsvc: rebuild count %s: %w", name, err)
	}
	count := int64(len(records))

	s.mu.Lock()
	defer s.mu.Unlock()
	idx, found, err := s.getLocked(ctx, name)
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	updated := *idx
	updated.DocumentCount = count
	if err := s.persistLocked(ctx, &updated); err != nil {
		return 0, err
	}
	s.cache[name] = &updated
	return count, nil
}

func (s *Service) getLocked(ctx context.Context, name string) (*Index, bool, error) {
	if idx, ok := s.cache[name]; ok {
		return idx, true, nil
	}
	return s.loadLocked(ctx, name)
}

func (s *Service) loadLocked(ctx context.Context, name string) (*Index, bool, error) {
	raw, found, err := s.store.Get(ctx, codec.IndexKey(name))
	if err != nil {
		return nil, false, fmt.Errorf("indexsvc: load %s: %w", name, err)
	}
	if !found {
		return nil, false, nil
	}
	var idx Index
	if err := msgpack.Unmarshal(raw, &idx); err != nil {
		return nil, false, fmt.Errorf("indexsvc: decode %s: %w", name, err)
	}
	return &idx, true, nil
}

func (s *Service) persistLocked(ctx context.Context, idx *Index) error {
	encoded, err := msgpack.Marshal(idx)
	if err != nil {
		return fmt.Errorf("indexsvc: encode %s: %w", idx.Name, err)
	}
	if err := s.store.Put(ctx, codec.IndexKey(idx.Name), encoded); err != nil {
		return fmt.Errorf("indexsvc: persist %s: %w", idx.Name, err)
	}
	return nil
}

// timeNow is a seam so tests can be deterministic without touching the
// forbidden time.Now()-at-call-site pattern everywhere.
var timeNow = time.Now
