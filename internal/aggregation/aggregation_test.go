package aggregation

import (
	"testing"

	"github.com/fathomdb/searchcore/internal/resultnode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountResult_ScalarAndVector(t *testing.T) {
	c := NewCount()
	require.NoError(t, c.OnAggregateScalar(resultnode.Int64(1)))
	require.NoError(t, c.OnAggregateVector(resultnode.Node{Kind: resultnode.KindInt, Vector: true, Ints: []int64{1, 2, 3}}))
	assert.EqualValues(t, 4, c.Count)
	assert.Equal(t, int64(4), c.Rank().Int)
}

func TestCountResult_MergeIsAdditive(t *testing.T) {
	a, b := NewCount(), NewCount()
	a.Count = 3
	b.Count = 5
	require.NoError(t, a.Merge(b))
	assert.EqualValues(t, 8, a.Count)
}

func TestSumResult_MergeCommutativeAssociative(t *testing.T) {
	buildSum := func(samples []float64) *SumResult {
		s := NewSum()
		for _, v := range samples {
			require.NoError(t, s.OnAggregateScalar(resultnode.Float(v)))
		}
		return s
	}

	a := buildSum([]float64{1, 2, 3})
	b := buildSum([]float64{4, 5})
	merged := buildSum(nil)
	require.NoError(t, merged.Merge(a))
	require.NoError(t, merged.Merge(b))

	whole := buildSum([]float64{1, 2, 3, 4, 5})
	assert.InDelta(t, whole.Sum, merged.Sum, 1e-9)
}

func TestMinMaxResult_FirstSampleAlwaysWins(t *testing.T) {
	min := NewMin()
	require.NoError(t, min.OnAggregateScalar(resultnode.Float(5)))
	assert.Equal(t, 5.0, min.Value)
	require.NoError(t, min.OnAggregateScalar(resultnode.Float(2)))
	assert.Equal(t, 2.0, min.Value)

	max := NewMax()
	require.NoError(t, max.OnAggregateScalar(resultnode.Float(-5)))
	assert.Equal(t, -5.0, max.Value)
	require.NoError(t, max.OnAggregateScalar(resultnode.Float(10)))
	assert.Equal(t, 10.0, max.Value)
}

func TestMaxResult_ResetGoesToNegInf(t *testing.T) {
	max := NewMax()
	require.NoError(t, max.OnAggregateScalar(resultnode.Float(10)))
	max.Reset()
	require.NoError(t, max.OnAggregateScalar(resultnode.Float(-1000)))
	assert.Equal(t, -1000.0, max.Value)
}

func TestAverageResult_ComputesMean(t *testing.T) {
	avg := NewAverage()
	for _, v := range []float64{1, 2, 3, 4} {
		require.NoError(t, avg.OnAggregateScalar(resultnode.Float(v)))
	}
	assert.Equal(t, 2.5, avg.Rank().Float)
}

func TestXorResult_MergeIsCommutative(t *testing.T) {
	a := NewXor()
	require.NoError(t, a.OnAggregateScalar(resultnode.Int64(1)))
	require.NoError(t, a.OnAggregateScalar(resultnode.Int64(2)))

	b := NewXor()
	require.NoError(t, b.OnAggregateScalar(resultnode.Int64(2)))
	require.NoError(t, b.OnAggregateScalar(resultnode.Int64(1)))

	assert.Equal(t, a.Value, b.Value)
}

func TestStdDevResult_ComputesPopulationStdDev(t *testing.T) {
	sd := NewStdDev()
	for _, v := range []float64{2, 4, 4, 4, 5, 5, 7, 9} {
		require.NoError(t, sd.OnAggregateScalar(resultnode.Float(v)))
	}
	assert.InDelta(t, 2.0, sd.Rank().Float, 0.001)
}

func TestHitsResult_TopKByRank(t *testing.T) {
	h := NewHits(3, nil)
	ranks := []float64{0.9, 0.8, 0.7, 0.95, 0.6, 0.85}
	for _, r := range ranks {
		h.Add(Hit{Rank: r})
	}

	sorted := h.Sort()
	require.Len(t, sorted, 3)
	got := []float64{sorted[0].Rank, sorted[1].Rank, sorted[2].Rank}
	assert.Equal(t, []float64{0.85, 0.9, 0.95}, got)
}

func TestHitsResult_UnboundedWhenMaxHitsZero(t *testing.T) {
	h := NewHits(0, nil)
	for i := 0; i < 50; i++ {
		h.Add(Hit{Rank: float64(i)})
	}
	assert.Len(t, h.Sort(), 50)
}

func TestHitsResult_ScalarAggregationIsProtocolViolation(t *testing.T) {
	h := NewHits(3, nil)
	err := h.OnAggregateScalar(resultnode.Int64(1))
	assert.Error(t, err)
}

func TestHitsResult_PostMergeTruncatesToMaxGroups(t *testing.T) {
	h := NewHits(0, nil)
	for _, r := range []float64{1, 5, 3, 9, 2, 8} {
		h.Add(Hit{Rank: r})
	}
	h.PostMerge(2)
	sorted := h.Sort()
	require.Len(t, sorted, 2)
	assert.Equal(t, 8.0, sorted[0].Rank)
	assert.Equal(t, 9.0, sorted[1].Rank)
}

func TestExpressionCountResult_MergeApproximatesUnion(t *testing.T) {
	a := NewExpressionCount()
	b := NewExpressionCount()
	for i := 0; i < 1000; i++ {
		require.NoError(t, a.OnAggregateScalar(resultnode.Int64(int64(i))))
	}
	for i := 500; i < 1500; i++ {
		require.NoError(t, b.OnAggregateScalar(resultnode.Int64(int64(i))))
	}
	require.NoError(t, a.Merge(b))
	assert.InEpsilon(t, 1500.0, float64(a.HLL.Estimate()), 0.15)
}

func TestQuantileResult_EmptyGetQuantileErrors(t *testing.T) {
	q := NewQuantile()
	_, err := q.GetQuantile(0.5)
	assert.Error(t, err)
}

func TestQuantileResult_MergeAndQuantile(t *testing.T) {
	q := NewQuantile()
	for i := 1; i <= 100; i++ {
		require.NoError(t, q.OnAggregateScalar(resultnode.Float(float64(i))))
	}
	median, err := q.GetQuantile(0.5)
	require.NoError(t, err)
	assert.InDelta(t, 50, median, 5)
}
