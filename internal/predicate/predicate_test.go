package predicate

import (
	"testing"
	"time"

	"github.com/fathomdb/searchcore/internal/feature"
	"github.com/fathomdb/searchcore/internal/predicate/annotate"
	"github.com/fathomdb/searchcore/internal/predicate/simpleindex"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testThresholds() simpleindex.Thresholds {
	return simpleindex.Thresholds{
		UpperDocIDFreqThreshold:  0.40,
		LowerDocIDFreqThreshold:  0.32,
		UpperVectorSizeThreshold: 10000,
		LowerVectorSizeThreshold: 8000,
		VectorPruneFrequency:     20000,
		ForeachVectorThreshold:   0.25,
	}
}

// TestScenarioS6_PredicateMatch exercises scenario S6: doc 1 annotated
// with label=red AND year in [2020,2020]; a query for {label=red,
// year=2020} matches doc 1, a query for {label=red, year=2021} does not.
func TestScenarioS6_PredicateMatch(t *testing.T) {
	idx := NewIndex(testThresholds())
	defer idx.Close()
	idx.SetDocIDLimit(10)

	labelRed := feature.HashLabelValue("label", "red")
	year2020 := feature.HashLabelValue("year", "2020")

	idx.IndexDocument(1, Annotation{
		IntervalMap: map[feature.ID][]annotate.Interval{
			labelRed:  {1},
			year2020: {1},
		},
		Features:   []feature.ID{labelRed, year2020},
		MinFeature: 2,
	})

	waitForCacheWorker()

	matchRed := idx.Lookup(labelRed)
	matchYear2020 := idx.Lookup(year2020)
	assert.Contains(t, matchRed, uint32(1))
	assert.Contains(t, matchYear2020, uint32(1))

	year2021 := feature.HashLabelValue("year", "2021")
	assert.NotContains(t, idx.Lookup(year2021), uint32(1))
}

func TestRemoveDocument_UndoesIndexing(t *testing.T) {
	idx := NewIndex(testThresholds())
	defer idx.Close()
	idx.SetDocIDLimit(10)

	labelRed := feature.HashLabelValue("label", "red")
	idx.IndexDocument(1, Annotation{
		IntervalMap: map[feature.ID][]annotate.Interval{labelRed: {1}},
		Features:    []feature.ID{labelRed},
		MinFeature:  1,
	})
	require.Contains(t, idx.Lookup(labelRed), uint32(1))

	idx.RemoveDocument(1)
	assert.NotContains(t, idx.Lookup(labelRed), uint32(1))
}

func TestIndexEmptyDocument_MatchesZeroConstraintSet(t *testing.T) {
	idx := NewIndex(testThresholds())
	defer idx.Close()

	idx.IndexEmptyDocument(7)
	assert.Contains(t, idx.ZeroConstraintDocs(), uint32(7))

	idx.RemoveDocument(7)
	assert.NotContains(t, idx.ZeroConstraintDocs(), uint32(7))
}

func waitForCacheWorker() {
	// The bit-vector cache refreshes asynchronously off a channel; give
	// the worker goroutine a moment to drain before asserting on it.
	time.Sleep(5 * time.Millisecond)
}
