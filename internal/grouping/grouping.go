package grouping

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/fathomdb/searchcore/internal/expr"
	"github.com/fathomdb/searchcore/internal/resultnode"
)

// GroupingLevel holds the per-level configuration: the hard cap
// (MaxGroups), the soft cap used while still collecting (Precision, which
// must be >= MaxGroups), whether the level is frozen against new groups,
// the classifier expression and the prototype used to instantiate new
// children.
type GroupingLevel struct {
	MaxGroups int
	Precision int
	Frozen    bool

	Classifier *expr.Tree
	OrderBy    *expr.Tree // may be nil; PostMerge does not evaluate it

	Prototype *Group

	// Ordered marks this level as receiving rank-non-increasing input
	// (§4.4.2): once Precision children exist, no more are created.
	Ordered bool
}

// allowMoreGroups implements §4.4.1 step 3's admission check.
func (lvl *GroupingLevel) allowMoreGroups(size int) bool {
	if lvl.Frozen {
		return false
	}
	if lvl.Ordered {
		return size < lvl.Precision
	}
	return size < lvl.Precision
}

// Deadline carries an absolute expiry checked after each document.
type Deadline struct {
	Clock  func() time.Time
	Expiry time.Time
}

func (d *Deadline) passed() bool {
	if d == nil || d.Expiry.IsZero() {
		return false
	}
	now := time.Now
	if d.Clock != nil {
		now = d.Clock
	}
	return !now().Before(d.Expiry)
}

// Grouping is a single top-level grouping request.
type Grouping struct {
	ID    string
	TopN  int
	Levels []*GroupingLevel

	// FirstLevel/LastLevel bound which levels are eligible for mutation
	// this iteration; levels below FirstLevel are frozen for classification.
	FirstLevel int
	LastLevel  int

	Root *Group

	Deadline *Deadline

	deadlineHit bool
}

// NewGrouping returns an empty request rooted at an empty Group built
// from the first level's prototype shape (or a bare Group if there are no
// levels).
func NewGrouping(id string, levels []*GroupingLevel) *Grouping {
	g := &Grouping{ID: id, Levels: levels, LastLevel: len(levels)}
	if len(levels) > 0 && levels[0].Prototype != nil {
		g.Root = levels[0].Prototype.CloneEmpty()
	} else {
		g.Root = &Group{}
	}
	g.Root.ID = resultnode.Int64(0)
	return g
}

// PreAggregate installs the transient child-lookup maps across the tree.
func (g *Grouping) PreAggregate() {
	g.Root.preAggregate()
}

// PostAggregate tears down the transient maps and restores id-sorted
// children order.
func (g *Grouping) PostAggregate() {
	g.Root.postAggregate()
}

// DeadlineHit reports whether aggregation stopped early due to a passed
// deadline.
func (g *Grouping) DeadlineHit() bool { return g.deadlineHit }

// Aggregate classifies and folds a sequence of documents into the tree,
// stopping early (cleanly) if a deadline passes after any document.
func (g *Grouping) Aggregate(ctx context.Context, docs []*expr.Document) error {
	for i, doc := range docs {
		if g.TopN > 0 && i >= g.TopN {
			break
		}
		if err := g.classify(ctx, g.Root, 0, doc); err != nil {
			return err
		}
		if g.Deadline.passed() {
			g.deadlineHit = true
			return nil
		}
	}
	return nil
}

// classify implements §4.4.1: evaluate the level's classifier, iterate
// multi-valued results, look up or create children, recurse, then invoke
// aggregators at every level >= FirstLevel.
func (g *Grouping) classify(ctx context.Context, node *Group, level int, doc *expr.Document) error {
	if level >= len(g.Levels) {
		return nil
	}
	lvl := g.Levels[level]

	if err := lvl.Classifier.Execute(ctx, doc); err != nil {
		return err
	}
	sel := lvl.Classifier.GetResult()

	var scalars []resultnode.Node
	if sel.Vector {
		scalars = sel.Flatten()
	} else {
		scalars = []resultnode.Node{sel}
	}

	frozen := lvl.Frozen || level < g.FirstLevel

	for _, s := range scalars {
		idx := node.findChild(s)
		if idx < 0 {
			if frozen || !lvl.allowMoreGroups(len(node.Value.Children)) {
				continue
			}
			idx = node.addChild(lvl.Prototype, s, doc.Rank)
		} else if !frozen {
			child := node.Value.Children[idx]
			if doc.Rank > child.Rank {
				child.Rank = doc.Rank
			}
		}

		child := node.Value.Children[idx]
		if level+1 < len(g.Levels) {
			if err := g.classify(ctx, child, level+1, doc); err != nil {
				return err
			}
		}
		if level >= g.FirstLevel {
			if err := child.aggregateHere(resultnode.Float(doc.Rank)); err != nil {
				return err
			}
		}
	}
	return nil
}

// Merge combines another independently-computed Grouping's tree into g,
// per §4.4.3: value-wise merge of aggregators at matching levels, plus
// appending children unique to either side.
func (g *Grouping) Merge(other *Grouping) error {
	return mergeGroups(g.Root, other.Root, g.Levels, 0, true)
}

// MergePartial merges only children present on both sides within the
// [firstLevel,lastLevel) window, never appending unique-to-one-side
// children (used for partial re-merges of a bounded level range).
func (g *Grouping) MergePartial(other *Grouping, firstLevel, lastLevel int) error {
	return mergeGroupsWindowed(g.Root, other.Root, g.Levels, 0, firstLevel, lastLevel)
}

func mergeGroups(a, b *Group, levels []*GroupingLevel, level int, appendUnique bool) error {
	if b == nil {
		return nil
	}
	// A group at depth level (the root is depth 0) was created by
	// levels[level-1], so that level's frozen flag governs its aggregators.
	if level == 0 || (level <= len(levels) && !levels[level-1].Frozen) {
		for i := range a.Value.Results {
			if i < len(b.Value.Results) {
				if err := a.Value.Results[i].Merge(b.Value.Results[i]); err != nil {
					return err
				}
			}
		}
	}

	bChildren := make(map[string]*Group, len(b.Value.Children))
	for _, c := range b.Value.Children {
		bChildren[childKey(c.ID)] = c
	}
	seen := make(map[string]bool, len(a.Value.Children))
	for _, c := range a.Value.Children {
		seen[childKey(c.ID)] = true
		if bc, ok := bChildren[childKey(c.ID)]; ok {
			if err := mergeGroups(c, bc, levels, level+1, appendUnique); err != nil {
				return err
			}
		}
	}
	if appendUnique {
		for _, c := range b.Value.Children {
			if !seen[childKey(c.ID)] {
				a.Value.Children = append(a.Value.Children, c)
			}
		}
	}
	sort.SliceStable(a.Value.Children, func(i, j int) bool {
		return resultnode.Compare(a.Value.Children[i].ID, a.Value.Children[j].ID) < 0
	})
	return nil
}

func mergeGroupsWindowed(a, b *Group, levels []*GroupingLevel, level, firstLevel, lastLevel int) error {
	if b == nil {
		return nil
	}
	if level > firstLevel && level <= lastLevel && level <= len(levels) && !levels[level-1].Frozen {
		for i := range a.Value.Results {
			if i < len(b.Value.Results) {
				if err := a.Value.Results[i].Merge(b.Value.Results[i]); err != nil {
					return err
				}
			}
		}
	}
	bChildren := make(map[string]*Group, len(b.Value.Children))
	for _, c := range b.Value.Children {
		bChildren[childKey(c.ID)] = c
	}
	for _, c := range a.Value.Children {
		if bc, ok := bChildren[childKey(c.ID)]; ok {
			if err := mergeGroupsWindowed(c, bc, levels, level+1, firstLevel, lastLevel); err != nil {
				return err
			}
		}
	}
	return nil
}

func childKey(id resultnode.Node) string {
	return fmt.Sprintf("%d:%v", id.Kind, id.Hash())
}

// PostMerge works bottom-up: it sorts each group's children by the
// order-by tuple over their accumulated result slots (or by rank if none)
// and truncates each level to MaxGroups. The levels' OrderBy expression
// trees are not executed.
func (g *Grouping) PostMerge(ctx context.Context) error {
	return postMergeGroup(ctx, g.Root, g.Levels, 0)
}

func postMergeGroup(ctx context.Context, node *Group, levels []*GroupingLevel, level int) error {
	for _, c := range node.Value.Children {
		if err := postMergeGroup(ctx, c, levels, level+1); err != nil {
			return err
		}
	}

	if level >= len(levels) {
		return nil
	}
	lvl := levels[level]

	sortChildrenByOrderBy(node.Value.Children, node.Value.OrderBy)

	if lvl.MaxGroups > 0 && len(node.Value.Children) > lvl.MaxGroups {
		node.Value.Children = node.Value.Children[:lvl.MaxGroups]
	}
	return nil
}

// sortChildrenByOrderBy sorts by the lexicographic order-by tuple when
// present, falling back to descending rank (best first), breaking ties by
// original (insertion, i.e. id-sorted) order — a stable sort preserves
// that.
func sortChildrenByOrderBy(children []*Group, orderBy []OrderBySpec) {
	sort.SliceStable(children, func(i, j int) bool {
		a, b := children[i], children[j]
		if len(orderBy) == 0 {
			return a.Rank > b.Rank
		}
		for _, ob := range orderBy {
			if ob.Index >= len(a.Value.Results) || ob.Index >= len(b.Value.Results) {
				continue
			}
			cmp := resultnode.Compare(a.Value.Results[ob.Index].Rank(), b.Value.Results[ob.Index].Rank())
			if !ob.Ascending {
				cmp = -cmp
			}
			if cmp != 0 {
				return cmp < 0
			}
		}
		return false
	})
}

// SortByID canonicalizes children order for transmission (ascending id),
// the final step before serialization.
func (g *Grouping) SortByID() {
	sortByID(g.Root)
}

func sortByID(node *Group) {
	sort.SliceStable(node.Value.Children, func(i, j int) bool {
		return resultnode.Compare(node.Value.Children[i].ID, node.Value.Children[j].ID) < 0
	})
	for _, c := range node.Value.Children {
		sortByID(c)
	}
}

// NormalizeEnums rewrites every enum-typed group id in the subtree into
// its string form via enumDict. Enum-valued aggregation results and
// lid-based hits are left unchanged.
func NormalizeEnums(node *Group, enumDict func(id int32) string) {
	if node.ID.Kind == resultnode.KindEnum {
		node.ID = resultnode.ResolveEnum(node.ID, enumDict)
	}
	for _, c := range node.Value.Children {
		NormalizeEnums(c, enumDict)
	}
}
