package expr

import (
	"context"
	"testing"

	"github.com/fathomdb/searchcore/internal/resultnode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocIDModTwo_ClassifiesParity(t *testing.T) {
	tree := NewTree(NewMod(NewDocID(), NewConst(resultnode.Int64(2))))
	tree.Prepare(false)

	for docID, want := range map[uint32]int64{1: 1, 2: 0, 3: 1, 4: 0, 5: 1} {
		doc := &Document{DocID: docID}
		require.NoError(t, tree.Execute(context.Background(), doc))
		assert.Equal(t, want, tree.GetResult().Int)
	}
}

func TestAttributeNode_MissingAttributeErrors(t *testing.T) {
	tree := NewTree(NewAttribute("color"))
	tree.Prepare(false)

	err := tree.Execute(context.Background(), &Document{DocID: 1, Attrs: map[string]resultnode.Node{}})
	assert.Error(t, err)
}

func TestAttributeNode_ResolvesFromDocument(t *testing.T) {
	tree := NewTree(NewAttribute("color"))
	tree.Prepare(false)

	doc := &Document{DocID: 1, Attrs: map[string]resultnode.Node{"color": resultnode.String("red")}}
	require.NoError(t, tree.Execute(context.Background(), doc))
	assert.Equal(t, "red", tree.GetResult().Str)
}

func TestAddNode_SumsTwoConstants(t *testing.T) {
	tree := NewTree(NewAdd(NewConst(resultnode.Int64(2)), NewConst(resultnode.Int64(3))))
	tree.Prepare(false)
	require.NoError(t, tree.Execute(context.Background(), &Document{}))
	assert.Equal(t, int64(5), tree.GetResult().Int)
}

func TestRankNode_ReadsDocumentRank(t *testing.T) {
	tree := NewTree(NewRank())
	tree.Prepare(false)
	require.NoError(t, tree.Execute(context.Background(), &Document{Rank: 0.75}))
	assert.Equal(t, 0.75, tree.GetResult().Float)
}
