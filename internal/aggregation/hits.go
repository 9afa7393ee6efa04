package aggregation

import (
	"container/heap"
	"fmt"
	"math"
	"sort"

	"github.com/fathomdb/searchcore/internal/resultnode"
)

// Hit is a single ranked result, in one of two forms: FS4 hits carry only
// a local document id (lid), VDS hits carry a global id plus an optional
// rendered summary. A HitsAggregationResult may accumulate both forms at
// once; they are ordered and truncated together by Rank.
type Hit struct {
	Lid     uint32
	GlobalID string
	Summary  []byte
	Rank     float64
}

// SummaryGenerator renders a Hit's summary from its identity, mirroring
// the environment-injected summary generator of the source system. It may
// be nil, in which case no summaries are rendered; hits carrying a
// GlobalID are still kept, without a summary.
type SummaryGenerator func(h Hit) []byte

// HitsResult is a bounded top-K collector of Hit values, ordered by Rank
// ascending (so the "worst" surviving hit sits at the heap root once the
// heap phase begins).
type HitsResult struct {
	MaxHits   int // 0 means unbounded, per the deserialized-zero sentinel.
	hits      []Hit
	heapified bool
	summary   SummaryGenerator
}

// NewHits returns an empty collector bounded to maxHits (0 = unbounded).
func NewHits(maxHits int, summary SummaryGenerator) *HitsResult {
	return &HitsResult{MaxHits: maxHits, summary: summary}
}

// hitsHeap adapts []Hit to container/heap as a min-heap on Rank, so the
// root is always the currently-worst surviving hit.
type hitsHeap []Hit

func (h hitsHeap) Len() int            { return len(h) }
func (h hitsHeap) Less(i, j int) bool  { return h[i].Rank < h[j].Rank }
func (h hitsHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *hitsHeap) Push(x interface{}) { *h = append(*h, x.(Hit)) }
func (h *hitsHeap) Pop() interface{} {
	old := *h
	n := len(old)
	v := old[n-1]
	*h = old[:n-1]
	return v
}

// OnAggregateScalar is a protocol violation for Hits: the reference
// system expects only doc/id-bearing insertion via Add, never a plain
// scalar sample (§9 Open Question — treated here as an explicit error
// rather than a panic, so callers can recover gracefully in production).
func (r *HitsResult) OnAggregateScalar(resultnode.Node) error {
	return fmt.Errorf("aggregation: Hits does not accept scalar aggregation; use Add")
}

// OnAggregateVector is likewise not part of the Hits contract.
func (r *HitsResult) OnAggregateVector(resultnode.Node) error {
	return fmt.Errorf("aggregation: Hits does not accept vector aggregation; use Add")
}

// Add inserts a single hit, applying the heapify-once-then-pop-push
// policy once MaxHits is reached.
func (r *HitsResult) Add(h Hit) {
	if r.summary != nil && h.Summary == nil && h.GlobalID != "" {
		h.Summary = r.summary(h)
	}

	if r.MaxHits <= 0 {
		r.hits = append(r.hits, h)
		return
	}

	if len(r.hits) < r.MaxHits {
		r.hits = append(r.hits, h)
		if len(r.hits) == r.MaxHits {
			heap.Init((*hitsHeap)(&r.hits))
			r.heapified = true
		}
		return
	}

	if h.Rank > r.hits[0].Rank {
		heap.Pop((*hitsHeap)(&r.hits))
		heap.Push((*hitsHeap)(&r.hits), h)
	}
}

func (r *HitsResult) Merge(other Result) error {
	o, ok := other.(*HitsResult)
	if !ok {
		return typeMismatch(other, r)
	}
	for _, h := range o.hits {
		r.Add(h)
	}
	return nil
}

func (r *HitsResult) Reset() {
	r.hits = nil
	r.heapified = false
}

// Rank returns the best (highest) rank currently held, or -Inf if empty.
func (r *HitsResult) Rank() resultnode.Node {
	if len(r.hits) == 0 {
		return resultnode.Float(math.Inf(-1))
	}
	best := r.hits[0].Rank
	for _, h := range r.hits[1:] {
		if h.Rank > best {
			best = h.Rank
		}
	}
	return resultnode.Float(best)
}

func (r *HitsResult) Clone() Result {
	c := &HitsResult{MaxHits: r.MaxHits, heapified: r.heapified, summary: r.summary}
	c.hits = append([]Hit(nil), r.hits...)
	return c
}

// Sort returns the collected hits in ascending-by-rank order, matching
// the finish-time sort() contract; callers typically reverse this for
// presentation (best-first).
func (r *HitsResult) Sort() []Hit {
	out := append([]Hit(nil), r.hits...)
	sort.Slice(out, func(i, j int) bool { return out[i].Rank < out[j].Rank })
	return out
}

// PostMerge sorts the concatenation of peer contributions (already
// accumulated via Merge/Add) and truncates to maxHits, keeping the
// highest-ranked entries.
func (r *HitsResult) PostMerge(maxHits int) {
	sorted := r.Sort()
	if maxHits > 0 && len(sorted) > maxHits {
		sorted = sorted[len(sorted)-maxHits:]
	}
	r.hits = sorted
	r.heapified = false
}
