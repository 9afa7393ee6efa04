// Package expr implements the expression DAG that drives grouping
// classification and order-by evaluation: a small set of node kinds
// (attribute lookup, constants, arithmetic, modulo) composed into a tree
// and evaluated per document.
package expr

import (
	"context"
	"fmt"

	"github.com/fathomdb/searchcore/internal/resultnode"
)

// Document is the minimal per-document view expression nodes evaluate
// against: a document id plus an attribute-name-keyed value map. Real
// attribute stores are outside this module's scope; callers populate
// Attrs from whatever backing store they have.
type Document struct {
	DocID uint32
	Rank  float64
	Attrs map[string]resultnode.Node
}

// Node is the evaluation capability every expression node implements:
// Prepare is called once before a batch of executions (preserveAccurateTypes
// controls whether numeric nodes should avoid lossy float coercion),
// Execute evaluates against one document, and GetResult returns the last
// computed value.
type Node interface {
	Prepare(preserveAccurateTypes bool)
	Execute(ctx context.Context, doc *Document) error
	GetResult() resultnode.Node
}

// Tree wraps a single root Node, the DAG entry point.
type Tree struct {
	Root Node

	preserveAccurateTypes bool
	last                  resultnode.Node
}

// NewTree returns a Tree rooted at root.
func NewTree(root Node) *Tree {
	return &Tree{Root: root}
}

// Prepare propagates the preserveAccurateTypes flag to the root node.
func (t *Tree) Prepare(preserveAccurateTypes bool) {
	t.preserveAccurateTypes = preserveAccurateTypes
	if t.Root != nil {
		t.Root.Prepare(preserveAccurateTypes)
	}
}

// Execute evaluates the tree against doc and caches the result.
func (t *Tree) Execute(ctx context.Context, doc *Document) error {
	if t.Root == nil {
		return fmt.Errorf("expr: tree has no root node")
	}
	if err := t.Root.Execute(ctx, doc); err != nil {
		return err
	}
	t.last = t.Root.GetResult()
	return nil
}

// GetResult returns the result of the most recent Execute call.
func (t *Tree) GetResult() resultnode.Node {
	return t.last
}

type baseNode struct {
	result resultnode.Node
}

func (b *baseNode) GetResult() resultnode.Node { return b.result }

// ConstNode always evaluates to a fixed value.
type ConstNode struct {
	baseNode
	Value resultnode.Node
}

// NewConst returns a node that always evaluates to v.
func NewConst(v resultnode.Node) *ConstNode {
	return &ConstNode{Value: v}
}

func (n *ConstNode) Prepare(bool) { n.result = n.Value }

func (n *ConstNode) Execute(context.Context, *Document) error {
	n.result = n.Value
	return nil
}

// AttributeNode looks up a named attribute on the document being
// classified, the most common grouping classifier leaf.
type AttributeNode struct {
	baseNode
	Name string
}

// NewAttribute returns a node reading attribute name from each document.
func NewAttribute(name string) *AttributeNode {
	return &AttributeNode{Name: name}
}

func (n *AttributeNode) Prepare(bool) {}

func (n *AttributeNode) Execute(_ context.Context, doc *Document) error {
	v, ok := doc.Attrs[n.Name]
	if !ok {
		return fmt.Errorf("expr: document %d missing attribute %q", doc.DocID, n.Name)
	}
	n.result = v
	return nil
}

// DocIDNode evaluates to the document id, used by tests and by classifiers
// keyed directly on doc id (e.g. `docId mod 2`).
type DocIDNode struct{ baseNode }

func NewDocID() *DocIDNode { return &DocIDNode{} }

func (n *DocIDNode) Prepare(bool) {}

func (n *DocIDNode) Execute(_ context.Context, doc *Document) error {
	n.result = resultnode.Int64(int64(doc.DocID))
	return nil
}

// RankNode evaluates to the document's rank score.
type RankNode struct{ baseNode }

func NewRank() *RankNode { return &RankNode{} }

func (n *RankNode) Prepare(bool) {}

func (n *RankNode) Execute(_ context.Context, doc *Document) error {
	n.result = resultnode.Float(doc.Rank)
	return nil
}

// ModNode evaluates Left mod Right (integer modulo), the classifier used
// by the count-aggregation scenario ("docId mod 2").
type ModNode struct {
	baseNode
	Left, Right Node
}

// NewMod returns a node computing left mod right.
func NewMod(left, right Node) *ModNode {
	return &ModNode{Left: left, Right: right}
}

func (n *ModNode) Prepare(preserveAccurateTypes bool) {
	n.Left.Prepare(preserveAccurateTypes)
	n.Right.Prepare(preserveAccurateTypes)
}

func (n *ModNode) Execute(ctx context.Context, doc *Document) error {
	if err := n.Left.Execute(ctx, doc); err != nil {
		return err
	}
	if err := n.Right.Execute(ctx, doc); err != nil {
		return err
	}
	l := n.Left.GetResult()
	r := n.Right.GetResult()
	if r.Kind != resultnode.KindInt || r.Int == 0 {
		return fmt.Errorf("expr: mod by zero or non-integer divisor")
	}
	var lv int64
	switch l.Kind {
	case resultnode.KindInt:
		lv = l.Int
	case resultnode.KindFloat:
		lv = int64(l.Float)
	default:
		return fmt.Errorf("expr: mod requires numeric left operand, got %s", l.Kind)
	}
	n.result = resultnode.Int64(lv % r.Int)
	return nil
}

// AddNode evaluates Left + Right.
type AddNode struct {
	baseNode
	Left, Right Node
}

func NewAdd(left, right Node) *AddNode {
	return &AddNode{Left: left, Right: right}
}

func (n *AddNode) Prepare(preserveAccurateTypes bool) {
	n.Left.Prepare(preserveAccurateTypes)
	n.Right.Prepare(preserveAccurateTypes)
}

func (n *AddNode) Execute(ctx context.Context, doc *Document) error {
	if err := n.Left.Execute(ctx, doc); err != nil {
		return err
	}
	if err := n.Right.Execute(ctx, doc); err != nil {
		return err
	}
	sum, err := resultnode.Add(n.Left.GetResult(), n.Right.GetResult())
	if err != nil {
		return err
	}
	n.result = sum
	return nil
}
