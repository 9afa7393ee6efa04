package simpleindex

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testThresholds() Thresholds {
	return Thresholds{
		UpperDocIDFreqThreshold:  0.4,
		LowerDocIDFreqThreshold:  0.32,
		UpperVectorSizeThreshold: 10,
		LowerVectorSizeThreshold: 8,
		VectorPruneFrequency:     1, // sweep every op so the test doesn't need 20000 ops
		ForeachVectorThreshold:   0.25,
	}
}

// TestScenarioS7_PromotionAndDemotion exercises scenario S7: inserting 11
// doc ids out of a 25-doc universe promotes the key to vector form;
// removing 4 (leaving ratio 7/25 < 0.32) demotes it back.
func TestScenarioS7_PromotionAndDemotion(t *testing.T) {
	idx := NewIndex(testThresholds())
	idx.SetDocIDLimit(25)

	const key = uint64(1)
	for docID := uint32(1); docID <= 11; docID++ {
		idx.AddPosting(key, docID, Payload{Ref: docID})
	}
	assert.True(t, idx.IsVector(key))

	for docID := uint32(1); docID <= 4; docID++ {
		_, existed := idx.RemoveFromPostingList(key, docID)
		require.True(t, existed)
	}
	idx.ForceDemoteCheck(key)
	assert.False(t, idx.IsVector(key))

	entries := idx.Lookup(key)
	assert.Len(t, entries, 7)
}

func TestAddPosting_IdempotentUpdate(t *testing.T) {
	idx := NewIndex(testThresholds())
	idx.AddPosting(1, 5, Payload{Ref: 100})
	idx.AddPosting(1, 5, Payload{Ref: 200})

	entries := idx.Lookup(1)
	require.Len(t, entries, 1)
	assert.EqualValues(t, 200, entries[0].Payload.Ref)
}

func TestRemoveFromPostingList_DropsEmptyKey(t *testing.T) {
	idx := NewIndex(testThresholds())
	idx.AddPosting(1, 5, Payload{Ref: 1})
	_, existed := idx.RemoveFromPostingList(1, 5)
	assert.True(t, existed)
	assert.Empty(t, idx.Lookup(1))
}

func TestSerializeDeserialize_RoundTrip(t *testing.T) {
	idx := NewIndex(testThresholds())
	idx.AddPosting(42, 1, Payload{Ref: 10, MinFeature: 2})
	idx.AddPosting(42, 2, Payload{Ref: 20, MinFeature: 3})
	idx.AddPosting(99, 5, Payload{Ref: 50, MinFeature: 1})

	data := idx.Serialize()
	restored, err := Deserialize(data, testThresholds())
	require.NoError(t, err)

	entries := restored.Lookup(42)
	require.Len(t, entries, 2)
	entries99 := restored.Lookup(99)
	require.Len(t, entries99, 1)
	assert.EqualValues(t, 50, entries99[0].Payload.Ref)
}
