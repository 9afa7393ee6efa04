package interval

import (
	"encoding/binary"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// Store deduplicates variable-length uint32 arrays behind a Ref handle.
// Two Insert calls with identical contents return the same Ref, which lets
// the predicate feature store and interval annotator share storage across
// documents that produce identical interval sets (a common case for small
// boolean constraints).
//
// Remove is a documented no-op, and ReclaimMemory does not free anything
// either: the backing buffer only grows (§9 Open Question —
// IntervalStore.Remove resolution).
type Store struct {
	mu sync.RWMutex

	buf []uint32

	// dedup maps a content hash to the refs already stored with that
	// hash, so Insert can detect exact collisions before appending.
	dedup map[uint64][]Ref

	generation      uint64
	oldestReachable uint64
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{
		dedup: make(map[uint64][]Ref),
	}
}

// Insert stores xs (copying it) and returns a Ref to the stored copy. If an
// identical array is already present, its existing Ref is returned and no
// new storage is allocated.
func (s *Store) Insert(xs []uint32) Ref {
	if len(xs) == 0 {
		xs = []uint32{0}
	}
	if len(xs) == 1 {
		if ref, ok := inlineRef(xs[0]); ok {
			return ref
		}
	}

	h := hashWords(xs)

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, ref := range s.dedup[h] {
		if s.equalsLocked(ref, xs) {
			return ref
		}
	}

	offset := uint32(len(s.buf))
	if len(xs) >= maxSize {
		s.buf = append(s.buf, uint32(len(xs)))
	}
	s.buf = append(s.buf, xs...)

	ref := packRef(len(xs), offset)
	s.dedup[h] = append(s.dedup[h], ref)
	return ref
}

// Get returns the array previously stored under ref. The returned slice
// aliases internal storage and must not be mutated by the caller.
func (s *Store) Get(ref Ref) []uint32 {
	if ref.isInline() {
		return []uint32{ref.inlineValue()}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	size := ref.Size()
	off := ref.offset()
	if size >= maxSize {
		size = int(s.buf[off])
		off++
	}
	return s.buf[off : off+uint32(size)]
}

// Remove is a no-op: a single logical removal cannot safely free shared,
// deduplicated storage without scanning every other holder of the same
// Ref, so stored arrays stay in the buffer for the store's lifetime.
func (s *Store) Remove(Ref) {}

// AssignGeneration bumps the store's current generation. Callers pass the
// oldest generation number any outstanding reader might still be using;
// ReclaimMemory is free to drop anything strictly older.
func (s *Store) AssignGeneration(oldestReachable uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation++
	s.oldestReachable = oldestReachable
}

// ReclaimMemory is a placeholder compaction hook: the backing buffer is
// append-only and never shrinks on its own, matching the teacher's
// generation-fenced stores where compaction is a separate, explicit pass.
func (s *Store) ReclaimMemory() {}

func (s *Store) equalsLocked(ref Ref, xs []uint32) bool {
	size := ref.Size()
	off := ref.offset()
	if size >= maxSize {
		size = int(s.buf[off])
		off++
	}
	if size != len(xs) {
		return false
	}
	for i, v := range xs {
		if s.buf[off+uint32(i)] != v {
			return false
		}
	}
	return true
}

func hashWords(xs []uint32) uint64 {
	var b [8]byte
	d := xxhash.New()
	for _, x := range xs {
		binary.LittleEndian.PutUint32(b[:4], x)
		d.Write(b[:4])
	}
	return d.Sum64()
}
