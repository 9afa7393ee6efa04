package feature

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashLabelValue_Deterministic(t *testing.T) {
	a := HashLabelValue("label", "red")
	b := HashLabelValue("label", "red")
	assert.Equal(t, a, b)

	c := HashLabelValue("label", "blue")
	assert.NotEqual(t, a, c)
}

func TestWordStore_InternReturnsSameRefForSameWord(t *testing.T) {
	w := NewWordStore()
	a := w.Intern("year")
	b := w.Intern("year")
	assert.Equal(t, a, b)

	c := w.Intern("month")
	assert.NotEqual(t, a, c)

	word, ok := w.Lookup(a)
	require.True(t, ok)
	assert.Equal(t, "year", word)
}

func TestStore_PutGetRemoveRoundTrip(t *testing.T) {
	s := NewStore()
	df := DocumentFeatures{
		Features:      []ID{HashLabelValue("label", "red")},
		RangeFeatures: []RangeFeature{{LabelRef: s.Words().Intern("year"), From: 2020, To: 2020}},
	}
	s.Put(1, df)

	got, ok := s.Get(1)
	require.True(t, ok)
	assert.Equal(t, df, got)

	removed, ok := s.Remove(1)
	require.True(t, ok)
	assert.Equal(t, df, removed)

	_, ok = s.Get(1)
	assert.False(t, ok)
}
