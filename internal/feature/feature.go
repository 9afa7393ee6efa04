// Package feature implements the predicate index's feature-id hashing and
// per-document feature/range-feature bookkeeping: every predicate leaf
// (`label=value` or a range partition) becomes a u64 feature id, and each
// document's indexed feature ids and range features are tracked so
// RemoveDocument can recover exactly what to undo.
package feature

import (
	"sync"

	"github.com/cespare/xxhash/v2"
)

// ID is a feature id: the hash of a `label=value` string or a range
// partition label.
type ID uint64

// HashLabelValue returns the feature id for a `label=value` pair.
func HashLabelValue(label, value string) ID {
	return ID(xxhash.Sum64String(label + "=" + value))
}

// HashLabel returns the feature id for a bare range-partition label.
func HashLabel(label string) ID {
	return ID(xxhash.Sum64String(label))
}

// RangeFeature is a range-partition annotation: label_ref indexes into the
// word store, [From, To] is the partitioned value range.
type RangeFeature struct {
	LabelRef uint32
	From     int64
	To       int64
}

// DocumentFeatures is the per-document annotation product stored by the
// feature store: the flat feature-id set plus any range features.
type DocumentFeatures struct {
	Features      []ID
	RangeFeatures []RangeFeature
}

// WordStore interns label strings, handing back a stable uint32 reference
// so RangeFeature doesn't have to carry the string itself.
type WordStore struct {
	mu      sync.RWMutex
	byWord  map[string]uint32
	byRef   []string
}

// NewWordStore returns an empty interning table.
func NewWordStore() *WordStore {
	return &WordStore{byWord: make(map[string]uint32)}
}

// Intern returns the stable ref for word, allocating a new one if needed.
func (w *WordStore) Intern(word string) uint32 {
	w.mu.RLock()
	if ref, ok := w.byWord[word]; ok {
		w.mu.RUnlock()
		return ref
	}
	w.mu.RUnlock()

	w.mu.Lock()
	defer w.mu.Unlock()
	if ref, ok := w.byWord[word]; ok {
		return ref
	}
	ref := uint32(len(w.byRef))
	w.byRef = append(w.byRef, word)
	w.byWord[word] = ref
	return ref
}

// Lookup returns the word behind ref.
func (w *WordStore) Lookup(ref uint32) (string, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if int(ref) >= len(w.byRef) {
		return "", false
	}
	return w.byRef[ref], true
}

// Store holds each indexed document's DocumentFeatures, keyed by doc id,
// so RemoveDocument can recover exactly what was indexed.
type Store struct {
	mu    sync.RWMutex
	words *WordStore
	docs  map[uint32]DocumentFeatures
}

// NewStore returns an empty feature store backed by its own word store.
func NewStore() *Store {
	return &Store{words: NewWordStore(), docs: make(map[uint32]DocumentFeatures)}
}

// Words returns the backing word-interning table.
func (s *Store) Words() *WordStore { return s.words }

// Put records docID's annotation product.
func (s *Store) Put(docID uint32, df DocumentFeatures) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[docID] = df
}

// Get returns the annotation previously stored for docID, expanding range
// features is the caller's responsibility (range partitions are resolved
// against the partition table owned by the predicate index, not here).
func (s *Store) Get(docID uint32) (DocumentFeatures, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	df, ok := s.docs[docID]
	return df, ok
}

// Remove drops docID's stored annotation, returning it so the caller can
// unwind posting-list entries.
func (s *Store) Remove(docID uint32) (DocumentFeatures, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	df, ok := s.docs[docID]
	delete(s.docs, docID)
	return df, ok
}
