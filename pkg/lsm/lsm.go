package lsm

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// LSMTree is a Log-Structured Merge tree
// Optimized for write-heavy workloads with sequential disk I/O
type LSMTree struct {
	dir         string
	memTable    *MemTable
	immutables  []*MemTable // Immutable memtables being flushed
	sstables    []*SSTable  // SSTables sorted newest to oldest
	mu          sync.RWMutex
	nextSSTableID int
	closed      bool

	// Configuration
	memTableSize   int64
	indexInterval  int
	compressValues bool

	// Background workers
	flushChan     chan *MemTable
	compactChan   chan struct{}
	stopChan      chan struct{}
	wg            sync.WaitGroup

	logger zerolog.Logger
}

// Config holds LSM tree configuration
type Config struct {
	Dir            string
	MemTableSize   int64 // Max memtable size in bytes
	IndexInterval  int   // Write index entry every N keys
	CompressValues bool  // zstd-compress values on flush/compaction
}

// DefaultConfig returns default configuration
func DefaultConfig(dir string) *Config {
	return &Config{
		Dir:           dir,
		MemTableSize:  4 * 1024 * 1024, // 4MB
		IndexInterval: 100,             // Index every 100 keys
	}
}

// NewLSMTree creates a new LSM tree. A nil logger disables logging.
func NewLSMTree(config *Config, logger *zerolog.Logger) (*LSMTree, error) {
	if err := os.MkdirAll(config.Dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	lg := zerolog.Nop()
	if logger != nil {
		lg = *logger
	}

	lsm := &LSMTree{
		dir:           config.Dir,
		memTable:      NewMemTable(config.MemTableSize),
		immutables:    make([]*MemTable, 0),
		sstables:      make([]*SSTable, 0),
		nextSSTableID: 0,
		memTableSize:   config.MemTableSize,
		indexInterval:  config.IndexInterval,
		compressValues: config.CompressValues,
		flushChan:     make(chan *MemTable, 10),
		compactChan:   make(chan struct{}, 1),
		stopChan:      make(chan struct{}),
		closed:        false,
		logger:        lg,
	}

	// Load existing SSTables
	if err := lsm.loadSSTables(); err != nil {
		return nil, fmt.Errorf("failed to load sstables: %w", err)
	}

	// Start background workers
	lsm.wg.Add(2)
	go lsm.flushWorker()
	go lsm.compactionWorker()

	return lsm, nil
}

// loadSSTables loads existing SSTables from disk
func (lsm *LSMTree) loadSSTables() error {
	pattern := filepath.Join(lsm.dir, "sstable_*.sst")
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return err
	}

	// Sort by ID (newest first)
	sort.Slice(matches, func(i, j int) bool {
		return matches[i] > matches[j]
	})

	for _, path := range matches {
		sst, err := OpenSSTable(path)
		if err != nil {
			return fmt.Errorf("failed to open sstable %s: %w", path, err)
		}
		lsm.sstables = append(lsm.sstables, sst)

		// Update next ID
		var id int
		if _, err := fmt.Sscanf(filepath.Base(path), "sstable_%d.sst", &id); err == nil {
			if id >= lsm.nextSSTableID {
				lsm.nextSSTableID = id + 1
			}
		}
	}

	return nil
}

// Put inserts or updates a key-value pair
func (lsm *LSMTree) Put(key, value []byte) error {
	lsm.mu.Lock()

	if lsm.closed {
		lsm.mu.Unlock()
		return ErrClosed
	}

	timestamp := time.Now().UnixNano()

	// Insert into memtable
	if err := lsm.memTable.Put(key, value, timestamp); err != nil {
		lsm.mu.Unlock()
		return err
	}

	// Check if memtable is full
	var immutable *MemTable
	if lsm.memTable.IsFull() {
		// Make current memtable immutable
		lsm.immutables = append(lsm.immutables, lsm.memTable)
		immutable = lsm.memTable
		lsm.memTable = NewMemTable(lsm.memTableSize)
	}

	lsm.mu.Unlock()

	// Trigger flush after releasing the lock so the flush worker can
	// re-acquire it without deadlocking against this goroutine.
	if immutable != nil {
		lsm.flushChan <- immutable
	}

	return nil
}

// Get retrieves a value by key
func (lsm *LSMTree) Get(key []byte) ([]byte, bool, error) {
	lsm.mu.RLock()
	defer lsm.mu.RUnlock()

	if lsm.closed {
		return nil, false, ErrClosed
	}

	// Check memtable first
	if entry, found := lsm.memTable.Get(key); found {
		if entry.Deleted {
			return nil, false, nil // Tombstone
		}
		return entry.Value, true, nil
	}

	// Check immutable memtables (newest to oldest)
	for i := len(lsm.immutables) - 1; i >= 0; i-- {
		if entry, found := lsm.immutables[i].Get(key); found {
			if entry.Deleted {
				return nil, false, nil
			}
			return entry.Value, true, nil
		}
	}

	// Check SSTables (newest to oldest)
	for _, sst := range lsm.sstables {
		entry, found, err := sst.Get(key)
		if err != nil {
			return nil, false, err
		}
		if found {
			if entry.Deleted {
				return nil, false, nil
			}
			return entry.Value, true, nil
		}
	}

	return nil, false, nil
}

// Delete marks a key as deleted
func (lsm *LSMTree) Delete(key []byte) error {
	lsm.mu.Lock()
	defer lsm.mu.Unlock()

	if lsm.closed {
		return ErrClosed
	}

	timestamp := time.Now().UnixNano()
	return lsm.memTable.Delete(key, timestamp)
}

// flushWorker handles background memtable flushing
func (lsm *LSMTree) flushWorker() {
	defer lsm.wg.Done()

	for {
		select {
		case memTable := <-lsm.flushChan:
			if err := lsm.flushMemTable(memTable); err != nil {
				lsm.logger.Error().Err(err).Msg("lsm: memtable flush failed")
			}
		case <-lsm.stopChan:
			return
		}
	}
}

// flushMemTable flushes a memtable to an SSTable
func (lsm *LSMTree) flushMemTable(memTable *MemTable) error {
	lsm.mu.Lock()
	id := lsm.nextSSTableID
	lsm.nextSSTableID++
	lsm.mu.Unlock()

	// Create SSTable writer
	writer, err := NewSSTableWriter(lsm.dir, id, lsm.indexInterval, lsm.compressValues)
	if err != nil {
		return fmt.Errorf("failed to create sstable writer: %w", err)
	}

	// Write all entries from memtable
	iter := memTable.Iterator()
	for iter.Next() {
		entry := iter.Entry()
		if err := writer.Write(entry); err != nil {
			return fmt.Errorf("failed to write entry: %w", err)
		}
	}

	// Finalize SSTable
	sst, err := writer.Finalize()
	if err != nil {
		return fmt.Errorf("failed to finalize sstable: %w", err)
	}

	// Update LSM tree
	lsm.mu.Lock()
	defer lsm.mu.Unlock()

	// Add SSTable to list (at beginning - newest first)
	lsm.sstables = append([]*SSTable{sst}, lsm.sstables...)

	// Remove from immutables
	for i, imm := range lsm.immutables {
		if imm == memTable {
			lsm.immutables = append(lsm.immutables[:i], lsm.immutables[i+1:]...)
			break
		}
	}

	// Trigger compaction if needed
	if len(lsm.sstables) > 4 {
		select {
		case lsm.compactChan <- struct{}{}:
		default:
		}
	}

	return nil
}

// compactionWorker handles background compaction
func (lsm *LSMTree) compactionWorker() {
	defer lsm.wg.Done()

	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-lsm.compactChan:
			if err := lsm.compact(); err != nil {
				lsm.logger.Error().Err(err).Msg("lsm: compaction failed")
			}
		case <-ticker.C:
			// Periodic compaction check
			lsm.mu.RLock()
			needsCompaction := len(lsm.sstables) > 4
			lsm.mu.RUnlock()

			if needsCompaction {
				if err := lsm.compact(); err != nil {
					lsm.logger.Error().Err(err).Msg("lsm: compaction failed")
				}
			}
		case <-lsm.stopChan:
			return
		}
	}
}

// compact performs compaction of SSTables
// Simple strategy: merge oldest N SSTables
func (lsm *LSMTree) compact() error {
	lsm.mu.Lock()

	if len(lsm.sstables) <= 4 {
		lsm.mu.Unlock()
		return nil
	}

	// Select oldest 4 SSTables for compaction
	numToCompact := 4
	if numToCompact > len(lsm.sstables) {
		numToCompact = len(lsm.sstables)
	}

	toCompact := lsm.sstables[len(lsm.sstables)-numToCompact:]

	// Create a copy to avoid holding references
	toCompactCopy := make([]*SSTable, len(toCompact))
	copy(toCompactCopy, toCompact)

	id := lsm.nextSSTableID
	lsm.nextSSTableID++

	lsm.mu.Unlock()

	// Merge SSTables
	merged, err := lsm.mergeSSTables(toCompactCopy, id)
	if err != nil {
		return fmt.Errorf("failed to merge sstables: %w", err)
	}

	// Update SSTable list
	lsm.mu.Lock()
	defer lsm.mu.Unlock()

	// Remove the compacted SSTables from the list and append the merged one
	// We need to re-filter because new SSTables might have been added
	newList := make([]*SSTable, 0, len(lsm.sstables))
	for _, sst := range lsm.sstables {
		shouldRemove := false
		for _, compacted := range toCompactCopy {
			if sst.path == compacted.path {
				shouldRemove = true
				break
			}
		}
		if !shouldRemove {
			newList = append(newList, sst)
		}
	}
	lsm.sstables = append(newList, merged)

	// Delete old SSTable files
	for _, sst := range toCompactCopy {
		os.Remove(sst.path)
	}

	return nil
}

// mergeSSTables merges multiple SSTables into one
func (lsm *LSMTree) mergeSSTables(sstables []*SSTable, newID int) (*SSTable, error) {
	writer, err := NewSSTableWriter(lsm.dir, newID, lsm.indexInterval, lsm.compressValues)
	if err != nil {
		return nil, err
	}

	// Create iterators for all SSTables
	type iterEntry struct {
		iter  *SSTableIterator
		entry *MemTableEntry
		valid bool
	}

	iters := make([]*iterEntry, len(sstables))
	for i, sst := range sstables {
		iter, err := sst.Iterator()
		if err != nil {
			return nil, err
		}
		iters[i] = &iterEntry{iter: iter, valid: iter.Next()}
		if iters[i].valid {
			iters[i].entry = iter.Entry()
		}
	}

	// Merge entries in sorted order
	var lastKey []byte
	for {
		// Find minimum key among all iterators
		minIdx := -1
		var minEntry *MemTableEntry

		for i, it := range iters {
			if !it.valid {
				continue
			}
			if minIdx == -1 || compareBytes(it.entry.Key, minEntry.Key) < 0 {
				minIdx = i
				minEntry = it.entry
			}
		}

		if minIdx == -1 {
			break // All iterators exhausted
		}

		// Write entry if key is different (deduplicate)
		if lastKey == nil || compareBytes(minEntry.Key, lastKey) != 0 {
			// Skip tombstones during compaction
			if !minEntry.Deleted {
				if err := writer.Write(minEntry); err != nil {
					return nil, err
				}
			}
			// Make a copy of the key to avoid aliasing issues
			lastKey = make([]byte, len(minEntry.Key))
			copy(lastKey, minEntry.Key)
		}

		// Advance iterator
		iters[minIdx].valid = iters[minIdx].iter.Next()
		if iters[minIdx].valid {
			iters[minIdx].entry = iters[minIdx].iter.Entry()
		}
	}

	// Close all iterators
	for _, it := range iters {
		it.iter.Close()
	}

	return writer.Finalize()
}

// compareBytes compares two byte slices
func compareBytes(a, b []byte) int {
	minLen := len(a)
	if len(b) < minLen {
		minLen = len(b)
	}

	for i := 0; i < minLen; i++ {
		if a[i] < b[i] {
			return -1
		}
		if a[i] > b[i] {
			return 1
		}
	}

	if len(a) < len(b) {
		return -1
	}
	if len(a) > len(b) {
		return 1
	}
	return 0
}

// Flush waits for all pending flushes to complete
func (lsm *LSMTree) Flush() error {
	// Wait until all immutables are flushed
	for {
		lsm.mu.RLock()
		numImmutables := len(lsm.immutables)
		lsm.mu.RUnlock()

		if numImmutables == 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	return nil
}

// Close closes the LSM tree
func (lsm *LSMTree) Close() error {
	lsm.mu.Lock()
	if lsm.closed {
		lsm.mu.Unlock()
		return nil
	}
	lsm.closed = true

	// Capture current memtable and immutables before releasing lock
	currentMemTable := lsm.memTable
	immutables := make([]*MemTable, len(lsm.immutables))
	copy(immutables, lsm.immutables)

	lsm.mu.Unlock()

	// Stop background workers
	close(lsm.stopChan)
	lsm.wg.Wait()

	// Flush current memtable if it has any data
	if currentMemTable != nil && currentMemTable.Size() > 0 {
		if err := lsm.flushMemTable(currentMemTable); err != nil {
			return err
		}
	}

	// Flush any remaining immutable memtables
	for _, memTable := range immutables {
		if err := lsm.flushMemTable(memTable); err != nil {
			return err
		}
	}

	return nil
}

// ScanEntry is one (key, value) result from ScanPrefix.
type ScanEntry struct {
	Key   []byte
	Value []byte
}

// ScanPrefix returns every live (non-tombstone) key under prefix, newest
// write wins, in ascending key order. It merges the active memtable, the
// immutable memtables, and every SSTable, so it is O(total entries).
func (lsm *LSMTree) ScanPrefix(prefix []byte) ([]ScanEntry, error) {
	lsm.mu.RLock()
	if lsm.closed {
		lsm.mu.RUnlock()
		return nil, ErrClosed
	}

	type candidate struct {
		entry *MemTableEntry
		rank  int // higher rank wins on key collision (newer source)
	}
	latest := make(map[string]candidate)
	rank := 0

	collectMem := func(mt *MemTable) {
		rank++
		it := mt.Iterator()
		for it.Next() {
			e := it.Entry()
			if e == nil || !bytes.HasPrefix(e.Key, prefix) {
				continue
			}
			k := string(e.Key)
			if cur, ok := latest[k]; !ok || rank > cur.rank {
				latest[k] = candidate{entry: e, rank: rank}
			}
		}
	}

	collectMem(lsm.memTable)
	for i := len(lsm.immutables) - 1; i >= 0; i-- {
		collectMem(lsm.immutables[i])
	}

	sstables := make([]*SSTable, len(lsm.sstables))
	copy(sstables, lsm.sstables)
	lsm.mu.RUnlock()

	for i := len(sstables) - 1; i >= 0; i-- {
		sst := sstables[i]
		rank++
		if bytes.Compare(prefix, sst.maxKey) > 0 {
			continue
		}
		iter, err := sst.Iterator()
		if err != nil {
			return nil, err
		}
		for iter.Next() {
			e := iter.Entry()
			if e == nil || !bytes.HasPrefix(e.Key, prefix) {
				continue
			}
			k := string(e.Key)
			if cur, ok := latest[k]; !ok || rank > cur.rank {
				latest[k] = candidate{entry: e, rank: rank}
			}
		}
		iter.Close()
	}

	out := make([]ScanEntry, 0, len(latest))
	for k, c := range latest {
		if c.entry.Deleted {
			continue
		}
		out = append(out, ScanEntry{Key: []byte(k), Value: c.entry.Value})
	}
	sort.Slice(out, func(i, j int) bool {
		return compareBytes(out[i].Key, out[j].Key) < 0
	})
	return out, nil
}

// Stats returns LSM tree statistics
func (lsm *LSMTree) Stats() map[string]interface{} {
	lsm.mu.RLock()
	defer lsm.mu.RUnlock()

	totalEntries := 0
	for _, sst := range lsm.sstables {
		totalEntries += sst.numEntries
	}

	return map[string]interface{}{
		"memtable_size":     lsm.memTable.Size(),
		"num_immutables":    len(lsm.immutables),
		"num_sstables":      len(lsm.sstables),
		"total_entries":     totalEntries,
		"next_sstable_id":   lsm.nextSSTableID,
	}
}
