// Package posting implements the ordered per-term posting list of
// SPEC_FULL.md §4.4: an insert/replace-by-doc-id map with merge and a
// bounded-size eviction policy. The doubly-linked recency list used to
// pick eviction victims is a container/list tracking the insertion
// recency of postings.
package posting

import (
	"container/list"
	"sort"
)

// DefaultMaxSize is the default cap on entries in a bounded posting
// list before the oldest 10% are evicted (SPEC_FULL.md §4.4).
const DefaultMaxSize = 5000

// Posting is one document's occurrence of a term.
type Posting struct {
	DocID     string
	TermFreq  uint32
	Positions []uint32
}

type node struct {
	posting Posting
	elem    *list.Element // position in recency list
}

// List is the ordered doc_id -> Posting mapping for one index-aware
// term. It is not safe for concurrent use; callers (the term
// dictionary) hold a per-term mutex around it.
type List struct {
	entries map[string]*node
	order   *list.List // oldest-inserted at back, most-recently-added at front
	maxSize int
}

// New creates an empty posting list bounded at maxSize entries (0 means
// DefaultMaxSize).
func New(maxSize int) *List {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	return &List{
		entries: make(map[string]*node),
		order:   list.New(),
		maxSize: maxSize,
	}
}

// AddEntry inserts or replaces the posting for p.DocID. When this
// pushes Size() past maxSize, the oldest 10% of entries (by insertion
// order) are evicted before returning, per SPEC_FULL.md §4.4.
func (l *List) AddEntry(p Posting) {
	if existing, ok := l.entries[p.DocID]; ok {
		existing.posting = p
		l.order.MoveToFront(existing.elem)
		return
	}
	n := &node{posting: p}
	n.elem = l.order.PushFront(n)
	l.entries[p.DocID] = n

	if len(l.entries) > l.maxSize {
		l.evictOldest()
	}
}

func (l *List) evictOldest() {
	toEvict := len(l.entries) / 10
	if toEvict < 1 {
		toEvict = 1
	}
	for i := 0; i < toEvict; i++ {
		back := l.order.Back()
		if back == nil {
			return
		}
		n := back.Value.(*node)
		l.order.Remove(back)
		delete(l.entries, n.posting.DocID)
	}
}

// RemoveEntry deletes the posting for docID, if present.
func (l *List) RemoveEntry(docID string) {
	n, ok := l.entries[docID]
	if !ok {
		return
	}
	l.order.Remove(n.elem)
	delete(l.entries, docID)
}

// GetEntry returns the posting for docID.
func (l *List) GetEntry(docID string) (Posting, bool) {
	n, ok := l.entries[docID]
	if !ok {
		return Posting{}, false
	}
	return n.posting, true
}

// Size returns the number of postings currently in the list.
func (l *List) Size() int {
	return len(l.entries)
}

// Iterate returns postings ordered ascending by doc id: numerically if
// every doc id is numeric, otherwise lexicographically.
func (l *List) Iterate() []Posting {
	out := make([]Posting, 0, len(l.entries))
	for _, n := range l.entries {
		out = append(out, n.posting)
	}
	sortPostings(out)
	return out
}

// Merge unions other into l by doc_id: on collision, frequencies sum
// and positions concatenate in input order (other after l), per
// SPEC_FULL.md §4.4.
func (l *List) Merge(other *List) {
	for _, p := range other.Iterate() {
		if existing, ok := l.GetEntry(p.DocID); ok {
			merged := Posting{
				DocID:     p.DocID,
				TermFreq:  existing.TermFreq + p.TermFreq,
				Positions: append(append([]uint32{}, existing.Positions...), p.Positions...),
			}
			l.AddEntry(merged)
		} else {
			l.AddEntry(p)
		}
	}
}

func sortPostings(postings []Posting) {
	allNumeric := true
	nums := make([]int64, len(postings))
	for i, p := range postings {
		n, ok := numericDocID(p.DocID)
		if !ok {
			allNumeric = false
			break
		}
		nums[i] = n
	}
	sort.SliceStable(postings, func(i, j int) bool {
		if allNumeric {
			ni, _ := numericDocID(postings[i].DocID)
			nj, _ := numericDocID(postings[j].DocID)
			return ni < nj
		}
		return postings[i].DocID < postings[j].DocID
	})
}

func numericDocID(id string) (int64, bool) {
	if id == "" {
		return 0, false
	}
	var n int64
	for i, c := range id {
		if c < '0' || c > '9' {
			if i == 0 && c == '-' && len(id) > 1 {
				continue
			}
			return 0, false
		}
		n = n*10 + int64(c-'0')
	}
	if id[0] == '-' {
		n = -n
	}
	return n, true
}
