// Package grouping implements the recursive multi-level aggregation tree:
// Group, GroupingLevel and the top-level Grouping request, generalizing
// the single-level "alert group" idiom of a flat map keyed by a group key
// into a recursive tree keyed per level by a classifier expression.
package grouping

import (
	"math"
	"sort"

	"github.com/fathomdb/searchcore/internal/aggregation"
	"github.com/fathomdb/searchcore/internal/resultnode"
)

// OrderBySpec is one entry of a level's order-by tuple: Index selects
// which slot of Value.Results to compare (aggregators first, then
// expression results), Ascending is false for descending (the common
// "best first" case).
type OrderBySpec struct {
	Index     int
	Ascending bool
}

// MaxOrderBy is the hard cap on order-by tuple length (§3.1).
const MaxOrderBy = 7

// Value holds everything a Group accumulates: the packed aggregator and
// expression-result array, the order-by spec referencing into it, child
// groups, and (only between preAggregate/postAggregate) a transient
// id-to-child-index map for O(1) classification lookups.
type Value struct {
	Results []aggregation.Result // aggregators first (AggrSize of them), then expression results
	AggrSize int

	OrderBy []OrderBySpec

	Children []*Group

	childIndex map[uint64][]int // transient; built by preAggregate, dropped by postAggregate
}

// ExprSize returns the number of expression-result slots following the
// aggregator slots.
func (v *Value) ExprSize() int { return len(v.Results) - v.AggrSize }

// Group is one node of the grouping tree.
type Group struct {
	ID    resultnode.Node
	Rank  float64
	Value Value
}

// NewGroup returns a Group with id and rank normalized (NaN -> -Inf).
func NewGroup(id resultnode.Node, rank float64) *Group {
	return &Group{ID: id, Rank: normalizeRank(rank)}
}

func normalizeRank(r float64) float64 {
	if math.IsNaN(r) {
		return math.Inf(-1)
	}
	return r
}

// CloneEmpty returns a new Group with the same id/rank and a deep copy of
// the aggregator/expression-result shape (all reset), but no children —
// the "prototype instantiation" step of classification.
func (g *Group) CloneEmpty() *Group {
	clone := &Group{ID: g.ID.Clone(), Rank: g.Rank}
	clone.Value.AggrSize = g.Value.AggrSize
	clone.Value.Results = make([]aggregation.Result, len(g.Value.Results))
	for i, r := range g.Value.Results {
		c := r.Clone()
		c.Reset()
		clone.Value.Results[i] = c
	}
	clone.Value.OrderBy = append([]OrderBySpec(nil), g.Value.OrderBy...)
	return clone
}

// preAggregate installs a transient child-id-to-index map on every level
// of the subtree rooted at g, enabling O(1) classification lookups.
func (g *Group) preAggregate() {
	g.Value.childIndex = make(map[uint64][]int, len(g.Value.Children))
	for i, c := range g.Value.Children {
		h := c.ID.Hash()
		g.Value.childIndex[h] = append(g.Value.childIndex[h], i)
		c.preAggregate()
	}
}

// postAggregate drops the transient child-id map across the subtree and
// restores the id-sorted invariant on children.
func (g *Group) postAggregate() {
	g.Value.childIndex = nil
	sort.SliceStable(g.Value.Children, func(i, j int) bool {
		return resultnode.Compare(g.Value.Children[i].ID, g.Value.Children[j].ID) < 0
	})
	for _, c := range g.Value.Children {
		c.postAggregate()
	}
}

// findChild returns the index of the existing child with the given id,
// or -1 if none exists, using the transient hash map built by
// preAggregate.
func (g *Group) findChild(id resultnode.Node) int {
	h := id.Hash()
	for _, idx := range g.Value.childIndex[h] {
		if resultnode.Equal(g.Value.Children[idx].ID, id) {
			return idx
		}
	}
	return -1
}

// addChild appends a new child instantiated from prototype, records it in
// the transient map, and returns its index.
func (g *Group) addChild(prototype *Group, id resultnode.Node, rank float64) int {
	child := prototype.CloneEmpty()
	child.ID = id.Clone()
	child.Rank = normalizeRank(rank)
	idx := len(g.Value.Children)
	g.Value.Children = append(g.Value.Children, child)
	h := id.Hash()
	g.Value.childIndex[h] = append(g.Value.childIndex[h], idx)
	return idx
}

// aggregateHere invokes every aggregator and expression-result slot with
// the supplied sample. Index i < AggrSize are aggregators (fed v);
// i >= AggrSize are expression results already evaluated by the caller
// and simply stored.
func (g *Group) aggregateHere(v resultnode.Node) error {
	for i := 0; i < g.Value.AggrSize; i++ {
		if v.Vector {
			if err := g.Value.Results[i].OnAggregateVector(v); err != nil {
				return err
			}
		} else {
			if err := g.Value.Results[i].OnAggregateScalar(v); err != nil {
				return err
			}
		}
	}
	return nil
}
