// Package annotate implements the predicate tree analyzer: given a tree
// of AND/OR/NOT/feature-set/feature-range nodes, it computes the interval
// assignment, bounds map, flat feature list, range features and
// min-feature count needed to evaluate matches against the simple index.
package annotate

// NodeKind discriminates a predicate tree node.
type NodeKind uint8

const (
	KindAnd NodeKind = iota
	KindOr
	KindNot
	KindFeatureSet
	KindFeatureRange
)

// Node is one predicate tree node. FeatureSet nodes carry Label plus the
// set of accepted Values (each value's global occurrence Count across the
// whole tree is filled in by Analyze, keyed identically). FeatureRange
// nodes carry Label plus the partition boundaries the range was split
// into by the caller (edge partitions aside).
type Node struct {
	Kind     NodeKind
	Children []*Node

	Label      string   // featureSet / featureRange
	Values     []string // featureSet
	Partitions int      // featureRange: number of partitions this range was split into
}

// zStarLabel is the synthetic feature used to close otherwise-open
// negated ranges under a NOT.
const zStarLabel = "z-star-compressed"

// analysis is the per-node working state produced by Analyze.
type analysis struct {
	size      int
	hasNot    bool
	valueFreq map[string]int // "label=value" -> occurrence count across the tree
	labelFreq map[string]int // label -> occurrence count across the tree (for ranges)
}

// Analyze walks the tree computing each subtree's size (interval_range
// contribution) and, for every feature-set value and feature-range label,
// how many times it appears anywhere in the tree (needed by
// computeMinFeature's 1/count terms).
func Analyze(root *Node) *analysis {
	a := &analysis{valueFreq: make(map[string]int), labelFreq: make(map[string]int)}
	a.size = a.visit(root)
	return a
}

func (a *analysis) visit(n *Node) int {
	switch n.Kind {
	case KindAnd, KindOr:
		size := 0
		for _, c := range n.Children {
			s := a.visit(c)
			if n.Kind == KindOr {
				// OR passes the parent's interval to every child; the
				// subtree's own contribution to interval_range is the max
				// child size (they overlap, not concatenate).
				if s > size {
					size = s
				}
			} else {
				size += s
			}
		}
		return size
	case KindNot:
		a.hasNot = true
		return a.visit(n.Children[0])
	case KindFeatureSet:
		for _, v := range n.Values {
			a.valueFreq[n.Label+"="+v]++
		}
		return 1
	case KindFeatureRange:
		a.labelFreq[n.Label]++
		return 1
	}
	return 0
}

// Annotation is the complete output of annotating a predicate tree.
type Annotation struct {
	IntervalMap  map[uint32][]Interval // feature hash -> intervals (see below; hashing deferred to caller)
	BoundsMap    map[uint32][]uint32
	Features     []string // flat feature keys needing a feature id (either "label=value" or partition keys)
	RangeFeatures []RangeFeatureRef
	MinFeature   int
	IntervalRange int
}

// Interval is the packed (begin<<16)|end value described by §3.2.
type Interval uint32

func packInterval(begin, end uint32) Interval {
	return Interval((begin << 16) | (end & 0xFFFF))
}

// RangeFeatureRef names a range feature pending resolution to a
// (label_ref, from, to) triple by the caller's word store.
type RangeFeatureRef struct {
	Label string
	From  int64
	To    int64
}

// AssignAndAnnotate runs the full annotator pipeline (§4.6 steps 2-4)
// given a precomputed Analyze pass.
func AssignAndAnnotate(root *Node, a *analysis) *Annotation {
	out := &Annotation{
		IntervalMap:   make(map[uint32][]Interval),
		BoundsMap:     make(map[uint32][]uint32),
		IntervalRange: a.size,
	}
	assignIntervals(root, 1, uint32(a.size), out)
	out.MinFeature = computeMinFeature(root, a)
	return out
}

// assignIntervals implements §4.6 step 2: the root spans [1, range]; AND
// partitions the span across children left to right; OR hands every
// child the same span; NOT computes the z-star complement and narrows
// the child's span.
func assignIntervals(n *Node, begin, end uint32, out *Annotation) {
	switch n.Kind {
	case KindAnd:
		cursor := begin
		sizes := make([]uint32, len(n.Children))
		for i, c := range n.Children {
			sizes[i] = uint32(subtreeSize(c))
		}
		for i, c := range n.Children {
			childEnd := cursor + sizes[i] - 1
			assignIntervals(c, cursor, childEnd, out)
			cursor = childEnd + 1
		}
	case KindOr:
		for _, c := range n.Children {
			assignIntervals(c, begin, end, out)
		}
	case KindNot:
		child := n.Children[0]
		// cEnd = (end == range) ? range-1 : left_weight+1 (§4.6 step 2):
		// `range` is the whole tree's interval_range (out.IntervalRange,
		// fixed for the whole pass), not the `end` this call was handed —
		// the two only coincide when this NOT spans the entire tree.
		// left_weight is the cumulative span of this node's prior
		// siblings, i.e. everything already assigned to its left, which
		// is exactly begin-1.
		leftWeight := begin - 1
		cEnd := leftWeight + 1
		if end == uint32(out.IntervalRange) {
			cEnd = end - 1
		}
		zStarHash := uint32(hashKey(zStarLabel))
		out.Features = appendUnique(out.Features, zStarLabel)
		out.IntervalMap[zStarHash] = append(out.IntervalMap[zStarHash], packInterval(cEnd+1, begin-1), packInterval(0, end))
		assignIntervals(child, begin, cEnd, out)
	case KindFeatureSet:
		for _, v := range n.Values {
			key := n.Label + "=" + v
			h := uint32(hashKey(key))
			out.IntervalMap[h] = append(out.IntervalMap[h], packInterval(begin, end))
			out.Features = appendUnique(out.Features, key)
		}
	case KindFeatureRange:
		if n.Partitions >= 3 {
			out.RangeFeatures = append(out.RangeFeatures, RangeFeatureRef{Label: n.Label})
		} else {
			key := n.Label
			h := uint32(hashKey(key))
			out.IntervalMap[h] = append(out.IntervalMap[h], packInterval(begin, end))
			out.Features = appendUnique(out.Features, key)
		}
	}
}

func subtreeSize(n *Node) int {
	switch n.Kind {
	case KindAnd:
		total := 0
		for _, c := range n.Children {
			total += subtreeSize(c)
		}
		return total
	case KindOr:
		max := 0
		for _, c := range n.Children {
			if s := subtreeSize(c); s > max {
				max = s
			}
		}
		return max
	case KindNot:
		return subtreeSize(n.Children[0])
	default:
		return 1
	}
}

func appendUnique(list []string, v string) []string {
	for _, x := range list {
		if x == v {
			return list
		}
	}
	return append(list, v)
}

// computeMinFeature implements §4.6 step 4: AND sums, OR takes the min,
// NOT passes through its child, feature-set takes min(1/count) rounded
// up across its values, feature-range takes 1/count(label); the whole
// result gets +1 if any NOT was present anywhere in the tree.
func computeMinFeature(root *Node, a *analysis) int {
	mf := minFeatureOf(root, a)
	if a.hasNot {
		mf++
	}
	return mf
}

func minFeatureOf(n *Node, a *analysis) int {
	switch n.Kind {
	case KindAnd:
		sum := 0
		for _, c := range n.Children {
			sum += minFeatureOf(c, a)
		}
		return sum
	case KindOr:
		min := -1
		for _, c := range n.Children {
			v := minFeatureOf(c, a)
			if min < 0 || v < min {
				min = v
			}
		}
		if min < 0 {
			return 0
		}
		return min
	case KindNot:
		return minFeatureOf(n.Children[0], a)
	case KindFeatureSet:
		best := -1
		for _, v := range n.Values {
			count := a.valueFreq[n.Label+"="+v]
			if count == 0 {
				count = 1
			}
			v := ceilDiv(1, count)
			if best < 0 || v < best {
				best = v
			}
		}
		if best < 0 {
			return 1
		}
		return best
	case KindFeatureRange:
		count := a.labelFreq[n.Label]
		if count == 0 {
			count = 1
		}
		return ceilDiv(1, count)
	}
	return 0
}

func ceilDiv(num, den int) int {
	if den <= 0 {
		return num
	}
	return (num + den - 1) / den
}

// hashKey is a stable, deterministic key hash local to this package; the
// predicate index's own feature-id hash (xxhash over "label=value") is
// applied by the caller once features are resolved, this is only used to
// key the intermediate interval/bounds maps before that resolution.
func hashKey(s string) uint64 {
	var h uint64 = 14695981039346656037
	for i := 0; i < len(s); i++ {
		h ^= uint64(s[i])
		h *= 1099511628211
	}
	return h
}
