// Package predicate wires together the feature store, interval store, two
// simple indexes (Interval and IntervalWithBounds), a zero-constraint
// btree and a bit-vector cache into the boolean-constraint index's public
// surface: IndexDocument, RemoveDocument, Lookup, LookupCachedSet.
package predicate

import (
	"sync"

	"github.com/google/btree"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/fathomdb/searchcore/internal/feature"
	"github.com/fathomdb/searchcore/internal/interval"
	"github.com/fathomdb/searchcore/internal/predicate/annotate"
	"github.com/fathomdb/searchcore/internal/predicate/simpleindex"
)

// cacheCapacity bounds the number of hot features the bit-vector cache
// holds at once; a collection with many distinct features must not let
// this cache grow without bound.
const cacheCapacity = 4096

// Annotation is the per-document product of the tree annotator, in the
// form the index needs to commit: resolved feature ids (not raw labels).
type Annotation struct {
	IntervalMap   map[feature.ID][]annotate.Interval
	BoundsMap     map[feature.ID][]uint32
	Features      []feature.ID
	RangeFeatures []feature.RangeFeature
	MinFeature    int
	IntervalRange int
}

type zeroConstraintItem uint32

func (a zeroConstraintItem) Less(b btree.Item) bool { return a < b.(zeroConstraintItem) }

// Index is the boolean-constraint index for one document collection.
type Index struct {
	Intervals *interval.Store
	Features  *feature.Store

	intervalIdx *simpleindex.Index // feature -> Interval postings
	boundsIdx   *simpleindex.Index // feature -> IntervalWithBounds postings

	mu             sync.RWMutex
	zeroConstraint *btree.BTree
	docIDLimit     int

	cacheMu sync.Mutex
	cache   *lru.Cache[feature.ID, []uint64] // bit-vector cache, per hot feature id
	dirty   chan feature.ID
	cacheWG sync.WaitGroup
}

// NewIndex builds an index governed by the given posting-list thresholds.
func NewIndex(t simpleindex.Thresholds) *Index {
	cache, err := lru.New[feature.ID, []uint64](cacheCapacity)
	if err != nil {
		// Only returned for a non-positive capacity, which cacheCapacity
		// never is.
		panic(err)
	}
	idx := &Index{
		Intervals:      interval.NewStore(),
		Features:       feature.NewStore(),
		intervalIdx:    simpleindex.NewIndex(t),
		boundsIdx:      simpleindex.NewIndex(t),
		zeroConstraint: btree.New(32),
		cache:          cache,
		dirty:          make(chan feature.ID, 1024),
	}
	idx.cacheWG.Add(1)
	go idx.cacheWorker()
	return idx
}

// Close stops the background cache-refresh worker.
func (idx *Index) Close() {
	close(idx.dirty)
	idx.cacheWG.Wait()
}

// cacheWorker drains dirty feature ids and recomputes their bit-vector
// cache entry, the same worker-goroutine-plus-channel shape used
// elsewhere in this module for asynchronous maintenance.
func (idx *Index) cacheWorker() {
	defer idx.cacheWG.Done()
	for f := range idx.dirty {
		idx.refreshCache(f)
	}
}

func (idx *Index) refreshCache(f feature.ID) {
	entries := idx.intervalIdx.Lookup(uint64(f))
	words := (idx.docIDLimit + 63) / 64
	if words == 0 {
		words = 1
	}
	bits := make([]uint64, words)
	for _, e := range entries {
		bits[e.DocID/64] |= 1 << (e.DocID % 64)
	}
	idx.cacheMu.Lock()
	idx.cache.Add(f, bits)
	idx.cacheMu.Unlock()
}

func (idx *Index) markDirty(f feature.ID) {
	select {
	case idx.dirty <- f:
	default:
		// Cache refresh channel full: a later index operation on the
		// same feature will enqueue again, this refresh is simply delayed.
	}
}

// SetDocIDLimit records the current universe size for density
// computations in both posting-list indexes.
func (idx *Index) SetDocIDLimit(n int) {
	idx.mu.Lock()
	idx.docIDLimit = n
	idx.mu.Unlock()
	idx.intervalIdx.SetDocIDLimit(n)
	idx.boundsIdx.SetDocIDLimit(n)
}

// IndexDocument commits a document's annotation: intervals are inserted
// into the interval store and posted to the Interval simple index (and
// the bounds index for range features), the feature store records the
// document's feature/range set, and the bit-vector cache is marked dirty.
func (idx *Index) IndexDocument(docID uint32, ann Annotation) {
	var featureIDs []feature.ID

	for f, ivs := range ann.IntervalMap {
		words := make([]uint32, len(ivs))
		for i, iv := range ivs {
			words[i] = uint32(iv)
		}
		ref := idx.Intervals.Insert(words)
		idx.intervalIdx.AddPosting(uint64(f), docID, simpleindex.Payload{Ref: uint32(ref), MinFeature: uint32(ann.MinFeature)})
		featureIDs = append(featureIDs, f)
		idx.markDirty(f)
	}

	for f, bounds := range ann.BoundsMap {
		ref := idx.Intervals.Insert(bounds)
		idx.boundsIdx.AddPosting(uint64(f), docID, simpleindex.Payload{Ref: uint32(ref), MinFeature: uint32(ann.MinFeature)})
		idx.markDirty(f)
	}

	idx.Features.Put(docID, feature.DocumentFeatures{
		Features:      append(featureIDs, ann.Features...),
		RangeFeatures: ann.RangeFeatures,
	})
}

// IndexEmptyDocument registers a document matching every query (a
// predicate with no positive constraint) into the zero-constraint set.
func (idx *Index) IndexEmptyDocument(docID uint32) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.zeroConstraint.ReplaceOrInsert(zeroConstraintItem(docID))
}

// RemoveDocument undoes everything IndexDocument/IndexEmptyDocument did
// for docID.
func (idx *Index) RemoveDocument(docID uint32) {
	df, ok := idx.Features.Remove(docID)
	if ok {
		for _, f := range df.Features {
			idx.intervalIdx.RemoveFromPostingList(uint64(f), docID)
			idx.boundsIdx.RemoveFromPostingList(uint64(f), docID)
			idx.markDirty(f)
		}
	}

	idx.mu.Lock()
	idx.zeroConstraint.Delete(zeroConstraintItem(docID))
	idx.mu.Unlock()
}

// Lookup returns the doc ids currently posted under feature id f via the
// Interval posting list (the common case; range/bounds lookups use the
// bounds index directly).
func (idx *Index) Lookup(f feature.ID) []uint32 {
	entries := idx.intervalIdx.Lookup(uint64(f))
	out := make([]uint32, len(entries))
	for i, e := range entries {
		out[i] = e.DocID
	}
	return out
}

// ZeroConstraintDocs returns every doc id registered as matching all
// queries.
func (idx *Index) ZeroConstraintDocs() []uint32 {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	var out []uint32
	idx.zeroConstraint.Ascend(func(item btree.Item) bool {
		out = append(out, uint32(item.(zeroConstraintItem)))
		return true
	})
	return out
}

// cacheDensityThreshold is the combined count/docIDLimit ratio below
// which LookupCachedSet falls back to posting-list iteration (§4.7).
const cacheDensityThreshold = 0.1

// LookupCachedSet returns the subset of keys (with their claimed
// occurrence counts) for which a bit-vector cache entry is hot, but only
// if the combined count/docIDLimit ratio is >= 0.1; otherwise it returns
// nil so the caller falls back to posting-list iteration for every key.
func (idx *Index) LookupCachedSet(keysWithCounts map[feature.ID]int) map[feature.ID][]uint64 {
	idx.mu.RLock()
	limit := idx.docIDLimit
	idx.mu.RUnlock()
	if limit == 0 {
		return nil
	}

	total := 0
	for _, c := range keysWithCounts {
		total += c
	}
	if float64(total)/float64(limit) < cacheDensityThreshold {
		return nil
	}

	idx.cacheMu.Lock()
	defer idx.cacheMu.Unlock()
	out := make(map[feature.ID][]uint64, len(keysWithCounts))
	for f := range keysWithCounts {
		if bits, ok := idx.cache.Get(f); ok {
			out[f] = bits
		}
	}
	return out
}

// Commit is a no-op placeholder for generation-fenced maintenance: real
// compaction is driven by AssignGeneration/ReclaimMemory below.
func (idx *Index) Commit() {}

// AssignGeneration propagates an epoch advance to the interval store.
func (idx *Index) AssignGeneration(oldestReachable uint64) {
	idx.Intervals.AssignGeneration(oldestReachable)
}

// ReclaimMemory propagates a reclamation pass to the interval store.
func (idx *Index) ReclaimMemory() {
	idx.Intervals.ReclaimMemory()
}
