package annotate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnalyze_ComputesTreeSizeAndFrequencies(t *testing.T) {
	tree := &Node{
		Kind: KindAnd,
		Children: []*Node{
			{Kind: KindFeatureSet, Label: "label", Values: []string{"red"}},
			{Kind: KindFeatureRange, Label: "year", Partitions: 1},
		},
	}
	a := Analyze(tree)
	assert.Equal(t, 2, a.size)
	assert.Equal(t, 1, a.valueFreq["label=red"])
	assert.Equal(t, 1, a.labelFreq["year"])
	assert.False(t, a.hasNot)
}

func TestAssignAndAnnotate_SimpleAndMinFeatureIsSumOfOnes(t *testing.T) {
	tree := &Node{
		Kind: KindAnd,
		Children: []*Node{
			{Kind: KindFeatureSet, Label: "label", Values: []string{"red"}},
			{Kind: KindFeatureRange, Label: "year", Partitions: 1},
		},
	}
	a := Analyze(tree)
	ann := AssignAndAnnotate(tree, a)

	assert.Equal(t, 2, ann.IntervalRange)
	assert.Equal(t, 2, ann.MinFeature)
	assert.ElementsMatch(t, []string{"label=red", "year"}, ann.Features)
}

func TestAssignAndAnnotate_NotIncrementsMinFeatureByOne(t *testing.T) {
	tree := &Node{
		Kind: KindNot,
		Children: []*Node{
			{Kind: KindFeatureSet, Label: "label", Values: []string{"red"}},
		},
	}
	a := Analyze(tree)
	require.True(t, a.hasNot)

	ann := AssignAndAnnotate(tree, a)
	assert.Equal(t, 2, ann.MinFeature) // child's 1 + 1 for the NOT
}

func TestAssignAndAnnotate_NestedNotUsesLeftWeightNotRangeMinusOne(t *testing.T) {
	// AND(NOT(featureSet), featureSet): the NOT is the AND's first
	// child, so it's handed [1, 1] rather than the tree's full [1, 2]
	// range. cEnd must come from left_weight+1 (= begin), not range-1,
	// since this NOT does not span the whole tree.
	tree := &Node{
		Kind: KindAnd,
		Children: []*Node{
			{
				Kind: KindNot,
				Children: []*Node{
					{Kind: KindFeatureSet, Label: "b", Values: []string{"y"}},
				},
			},
			{Kind: KindFeatureSet, Label: "a", Values: []string{"x"}},
		},
	}
	a := Analyze(tree)
	ann := AssignAndAnnotate(tree, a)

	assert.Equal(t, 2, ann.IntervalRange)

	zStarHash := uint32(hashKey(zStarLabel))
	intervals, ok := ann.IntervalMap[zStarHash]
	require.True(t, ok)
	require.Len(t, intervals, 2)

	// begin=1, end=1 for the NOT node; left_weight = begin-1 = 0, so
	// cEnd = left_weight+1 = 1. A tautological "rangeTotal := end" check
	// would always take the end==range branch and compute cEnd=end-1=0
	// instead, narrowing the child to an empty [1,0] range.
	begin, cEnd := uint32(1), uint32(1)
	wantFirst := packInterval(cEnd+1, begin-1)
	wantSecond := packInterval(0, uint32(1))
	assert.Equal(t, wantFirst, intervals[0])
	assert.Equal(t, wantSecond, intervals[1])

	bHash := uint32(hashKey("b=y"))
	childIntervals, ok := ann.IntervalMap[bHash]
	require.True(t, ok)
	require.Len(t, childIntervals, 1)
	assert.Equal(t, packInterval(begin, cEnd), childIntervals[0])
}

func TestAssignAndAnnotate_OrTakesMinimumMinFeature(t *testing.T) {
	tree := &Node{
		Kind: KindOr,
		Children: []*Node{
			{Kind: KindFeatureSet, Label: "label", Values: []string{"red", "blue"}},
			{Kind: KindFeatureRange, Label: "year", Partitions: 1},
		},
	}
	a := Analyze(tree)
	ann := AssignAndAnnotate(tree, a)
	assert.Equal(t, 1, ann.MinFeature)
}
