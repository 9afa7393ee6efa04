package sketch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuantile_EmptyByDefault(t *testing.T) {
	q := NewQuantile()
	assert.True(t, q.IsEmpty())
}

func TestQuantile_MedianOfUniformRange(t *testing.T) {
	q := NewQuantile()
	for i := 1; i <= 1000; i++ {
		q.Update(float64(i))
	}
	assert.False(t, q.IsEmpty())

	median, err := q.GetQuantile(0.5)
	require.NoError(t, err)
	assert.InDelta(t, 500, median, 20)
}

func TestQuantile_MergeCombinesDistributions(t *testing.T) {
	a := NewQuantile()
	b := NewQuantile()
	for i := 1; i <= 500; i++ {
		a.Update(float64(i))
	}
	for i := 501; i <= 1000; i++ {
		b.Update(float64(i))
	}

	require.NoError(t, a.Merge(b))
	median, err := a.GetQuantile(0.5)
	require.NoError(t, err)
	assert.InDelta(t, 500, median, 30)
}

func TestQuantile_RoundTripBinary(t *testing.T) {
	a := NewQuantile()
	for i := 1; i <= 200; i++ {
		a.Update(float64(i))
	}

	data, err := a.MarshalBinary()
	require.NoError(t, err)

	b := NewQuantile()
	require.NoError(t, b.UnmarshalBinary(data))

	wantP90, err := a.GetQuantile(0.9)
	require.NoError(t, err)
	gotP90, err := b.GetQuantile(0.9)
	require.NoError(t, err)
	assert.InDelta(t, wantP90, gotP90, 1e-9)
}
