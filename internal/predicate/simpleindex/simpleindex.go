// Package simpleindex implements the posting-list index keyed by feature
// id: each key holds either a doc-id-sorted btree or a dense vector
// representation (promoted/demoted by size and density thresholds).
// Readers and writers share one sync.RWMutex; reads take the shared lock
// and are not lock-free.
package simpleindex

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/google/btree"
)

// Payload is the posting value stored per (key, docID) pair: a reference
// into the interval store (or any caller-defined opaque value) plus the
// per-document min-feature count.
type Payload struct {
	Ref        uint32
	MinFeature uint32
}

// Thresholds configures promotion/demotion between the btree and vector
// posting-list representations (mirrors config.SimpleIndexConfig).
type Thresholds struct {
	UpperDocIDFreqThreshold  float64
	LowerDocIDFreqThreshold  float64
	UpperVectorSizeThreshold int
	LowerVectorSizeThreshold int
	VectorPruneFrequency     int
	ForeachVectorThreshold   float64
}

type postingItem struct {
	docID uint32
	p     Payload
}

func (a postingItem) Less(b btree.Item) bool {
	return a.docID < b.(postingItem).docID
}

// postingList is the dual representation for a single feature key.
type postingList struct {
	tree   *btree.BTree
	vector []Payload // indexed by docID; zero-value MinFeature==0 && Ref==0 means absent
	isVector bool
	opsSinceSweep int
}

func newPostingList() *postingList {
	return &postingList{tree: btree.New(32)}
}

func (pl *postingList) size() int {
	if pl.isVector {
		n := 0
		for _, p := range pl.vector {
			if p.Ref != 0 || p.MinFeature != 0 {
				n++
			}
		}
		return n
	}
	return pl.tree.Len()
}

// Index holds one postingList per feature key.
type Index struct {
	mu         sync.RWMutex
	thresholds Thresholds
	docIDLimit int
	keys       map[uint64]*postingList
}

// NewIndex returns an empty index governed by the given thresholds.
func NewIndex(t Thresholds) *Index {
	return &Index{thresholds: t, keys: make(map[uint64]*postingList)}
}

// SetDocIDLimit records the current universe size, used by the
// frequency-ratio promotion/demotion checks.
func (idx *Index) SetDocIDLimit(n int) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.docIDLimit = n
}

// AddPosting inserts or idempotently updates (key, docID) -> payload.
func (idx *Index) AddPosting(key uint64, docID uint32, p Payload) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	pl, ok := idx.keys[key]
	if !ok {
		pl = newPostingList()
		idx.keys[key] = pl
	}
	idx.removeLocked(pl, docID)
	idx.insertLocked(pl, docID, p)
	idx.maybePromoteLocked(pl)
}

func (idx *Index) insertLocked(pl *postingList, docID uint32, p Payload) {
	if pl.isVector {
		idx.ensureVectorSize(pl, docID)
		pl.vector[docID] = p
		return
	}
	pl.tree.ReplaceOrInsert(postingItem{docID: docID, p: p})
}

func (idx *Index) ensureVectorSize(pl *postingList, docID uint32) {
	if int(docID) >= len(pl.vector) {
		grown := make([]Payload, docID+1)
		copy(grown, pl.vector)
		pl.vector = grown
	}
}

// RemoveFromPostingList removes (key, docID), reporting the removed
// payload and whether it existed. The dictionary entry for key is dropped
// once its posting list is empty.
func (idx *Index) RemoveFromPostingList(key uint64, docID uint32) (Payload, bool) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	pl, ok := idx.keys[key]
	if !ok {
		return Payload{}, false
	}
	p, existed := idx.removeLocked(pl, docID)
	idx.maybeDemoteLocked(pl)
	if pl.size() == 0 {
		delete(idx.keys, key)
	}
	return p, existed
}

func (idx *Index) removeLocked(pl *postingList, docID uint32) (Payload, bool) {
	if pl.isVector {
		if int(docID) >= len(pl.vector) {
			return Payload{}, false
		}
		p := pl.vector[docID]
		existed := p.Ref != 0 || p.MinFeature != 0
		pl.vector[docID] = Payload{}
		return p, existed
	}
	item := pl.tree.Delete(postingItem{docID: docID})
	if item == nil {
		return Payload{}, false
	}
	return item.(postingItem).p, true
}

func (idx *Index) freq(pl *postingList) float64 {
	if idx.docIDLimit == 0 {
		return 0
	}
	return float64(pl.size()) / float64(idx.docIDLimit)
}

func (idx *Index) maybePromoteLocked(pl *postingList) {
	if pl.isVector {
		return
	}
	t := idx.thresholds
	if pl.size() >= t.UpperVectorSizeThreshold && idx.freq(pl) >= t.UpperDocIDFreqThreshold {
		idx.promote(pl)
	}
}

func (idx *Index) promote(pl *postingList) {
	pl.tree.Ascend(func(item btree.Item) bool {
		pi := item.(postingItem)
		idx.ensureVectorSize(pl, pi.docID)
		return true
	})
	vec := pl.vector
	pl.tree.Ascend(func(item btree.Item) bool {
		pi := item.(postingItem)
		for int(pi.docID) >= len(vec) {
			vec = append(vec, Payload{})
		}
		vec[pi.docID] = pi.p
		return true
	})
	pl.vector = vec
	pl.isVector = true
	pl.tree = btree.New(32)
}

func (idx *Index) maybeDemoteLocked(pl *postingList) {
	if !pl.isVector {
		return
	}
	pl.opsSinceSweep++
	if pl.opsSinceSweep < idx.thresholds.VectorPruneFrequency {
		return
	}
	pl.opsSinceSweep = 0

	t := idx.thresholds
	if pl.size() < t.LowerVectorSizeThreshold || idx.freq(pl) < t.LowerDocIDFreqThreshold {
		idx.demote(pl)
	}
}

func (idx *Index) demote(pl *postingList) {
	tr := btree.New(32)
	for docID, p := range pl.vector {
		if p.Ref != 0 || p.MinFeature != 0 {
			tr.ReplaceOrInsert(postingItem{docID: uint32(docID), p: p})
		}
	}
	pl.tree = tr
	pl.vector = nil
	pl.isVector = false
}

// ForceDemoteCheck re-evaluates the demotion condition immediately,
// bypassing VectorPruneFrequency — exposed for tests and for explicit
// maintenance sweeps triggered by the predicate index's commit path.
func (idx *Index) ForceDemoteCheck(key uint64) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	pl, ok := idx.keys[key]
	if !ok || !pl.isVector {
		return
	}
	t := idx.thresholds
	if pl.size() < t.LowerVectorSizeThreshold || idx.freq(pl) < t.LowerDocIDFreqThreshold {
		idx.demote(pl)
	}
}

// IsVector reports whether key currently uses the vector representation.
func (idx *Index) IsVector(key uint64) bool {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	pl, ok := idx.keys[key]
	return ok && pl.isVector
}

// Lookup returns every (docID, Payload) currently posted under key, in
// ascending doc-id order.
func (idx *Index) Lookup(key uint64) []struct {
	DocID   uint32
	Payload Payload
} {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	pl, ok := idx.keys[key]
	if !ok {
		return nil
	}
	var out []struct {
		DocID   uint32
		Payload Payload
	}
	if pl.isVector {
		for docID, p := range pl.vector {
			if p.Ref != 0 || p.MinFeature != 0 {
				out = append(out, struct {
					DocID   uint32
					Payload Payload
				}{uint32(docID), p})
			}
		}
		return out
	}
	pl.tree.Ascend(func(item btree.Item) bool {
		pi := item.(postingItem)
		out = append(out, struct {
			DocID   uint32
			Payload Payload
		}{pi.docID, pi.p})
		return true
	})
	return out
}

// serializeVersion is fixed at 1 for this module's writer: min-feature is
// always stored externally (never packed into the low 6 bits of docID).
// Version 0 decoding is supported read-only for interop with older data.
const serializeVersion = 1

// Serialize writes: version(u8), count(u32), then per key: key(u64), size(u32),
// then size x (docID u32, ref u32, minFeature u32).
func (idx *Index) Serialize() []byte {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	buf := make([]byte, 0, 64)
	var hdr [5]byte
	hdr[0] = serializeVersion
	binary.BigEndian.PutUint32(hdr[1:], uint32(len(idx.keys)))
	buf = append(buf, hdr[:]...)

	for key, pl := range idx.keys {
		var kb [8]byte
		binary.BigEndian.PutUint64(kb[:], key)
		buf = append(buf, kb[:]...)

		entries := idx.Lookup(key)
		var sb [4]byte
		binary.BigEndian.PutUint32(sb[:], uint32(len(entries)))
		buf = append(buf, sb[:]...)

		for _, e := range entries {
			var rec [12]byte
			binary.BigEndian.PutUint32(rec[0:4], e.DocID)
			binary.BigEndian.PutUint32(rec[4:8], e.Payload.Ref)
			binary.BigEndian.PutUint32(rec[8:12], e.Payload.MinFeature)
			buf = append(buf, rec[:]...)
		}
		_ = pl
	}
	return buf
}

// Deserialize restores an Index previously produced by Serialize. Version
// 0 payloads (min-feature packed into the low 6 bits of docID) are
// accepted read-only, per §9's open-question resolution.
func Deserialize(data []byte, t Thresholds) (*Index, error) {
	if len(data) < 5 {
		return nil, fmt.Errorf("simpleindex: truncated header")
	}
	version := data[0]
	count := binary.BigEndian.Uint32(data[1:5])
	rest := data[5:]

	idx := NewIndex(t)
	for i := uint32(0); i < count; i++ {
		if len(rest) < 12 {
			return nil, fmt.Errorf("simpleindex: truncated key header")
		}
		key := binary.BigEndian.Uint64(rest[0:8])
		size := binary.BigEndian.Uint32(rest[8:12])
		rest = rest[12:]

		pl := newPostingList()
		for j := uint32(0); j < size; j++ {
			if len(rest) < 12 {
				return nil, fmt.Errorf("simpleindex: truncated record")
			}
			docID := binary.BigEndian.Uint32(rest[0:4])
			ref := binary.BigEndian.Uint32(rest[4:8])
			minFeature := binary.BigEndian.Uint32(rest[8:12])
			rest = rest[12:]

			if version == 0 {
				minFeature = docID & 0x3F
				docID >>= 6
			}
			pl.tree.ReplaceOrInsert(postingItem{docID: docID, p: Payload{Ref: ref, MinFeature: minFeature}})
		}
		idx.keys[key] = pl
	}
	return idx, nil
}

// PromoteOverThresholdVectors re-checks every key's promotion condition;
// to be called after Deserialize once the doc-id limit is known.
func (idx *Index) PromoteOverThresholdVectors() {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	for _, pl := range idx.keys {
		idx.maybePromoteLocked(pl)
	}
}
