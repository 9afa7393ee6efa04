// Package aggregation implements the ten AggregationResult variants that
// accumulate over documents classified into a grouping tree: Count, Sum,
// Min, Max, Average, Xor, StandardDeviation, ExpressionCount (HLL-backed),
// Quantile (sketch-backed) and Hits.
package aggregation

import (
	"fmt"
	"math"

	"github.com/fathomdb/searchcore/internal/resultnode"
	"github.com/fathomdb/searchcore/internal/sketch"
)

// Result is the common contract every aggregation variant implements.
type Result interface {
	// OnAggregateScalar folds a single scalar sample into the accumulator.
	OnAggregateScalar(v resultnode.Node) error
	// OnAggregateVector folds a vector sample, flattening per variant.
	OnAggregateVector(v resultnode.Node) error
	// Merge folds another same-variant Result's state into this one.
	Merge(other Result) error
	// Reset clears accumulated state back to its zero value.
	Reset()
	// Rank returns the variant's current ranking scalar.
	Rank() resultnode.Node
	// Clone returns an independent copy of the accumulator.
	Clone() Result
}

func typeMismatch(got Result, want Result) error {
	return fmt.Errorf("aggregation: merge type mismatch: %T into %T", got, want)
}

// CountResult counts the number of scalar samples, counting each element
// of a vector sample separately.
type CountResult struct {
	Count uint64
}

func NewCount() *CountResult { return &CountResult{} }

func (r *CountResult) OnAggregateScalar(resultnode.Node) error {
	r.Count++
	return nil
}

func (r *CountResult) OnAggregateVector(v resultnode.Node) error {
	r.Count += uint64(len(v.Flatten()))
	return nil
}

func (r *CountResult) Merge(other Result) error {
	o, ok := other.(*CountResult)
	if !ok {
		return typeMismatch(other, r)
	}
	r.Count += o.Count
	return nil
}

func (r *CountResult) Reset() { r.Count = 0 }

func (r *CountResult) Rank() resultnode.Node { return resultnode.Int64(int64(r.Count)) }

func (r *CountResult) Clone() Result { c := *r; return &c }

// SumResult accumulates a running numeric sum.
type SumResult struct {
	Sum float64
}

func NewSum() *SumResult { return &SumResult{} }

func (r *SumResult) OnAggregateScalar(v resultnode.Node) error {
	r.Sum += v.AsFloat()
	return nil
}

func (r *SumResult) OnAggregateVector(v resultnode.Node) error {
	for _, e := range v.Flatten() {
		r.Sum += e.AsFloat()
	}
	return nil
}

func (r *SumResult) Merge(other Result) error {
	o, ok := other.(*SumResult)
	if !ok {
		return typeMismatch(other, r)
	}
	r.Sum += o.Sum
	return nil
}

func (r *SumResult) Reset() { r.Sum = 0 }

func (r *SumResult) Rank() resultnode.Node { return resultnode.Float(r.Sum) }

func (r *SumResult) Clone() Result { c := *r; return &c }

// MinResult tracks the minimum sample observed. Reset initializes to
// +Inf so the first comparison always replaces it.
type MinResult struct {
	Value float64
	seen  bool
}

func NewMin() *MinResult { return &MinResult{Value: math.Inf(1)} }

func (r *MinResult) OnAggregateScalar(v resultnode.Node) error {
	r.update(v.AsFloat())
	return nil
}

func (r *MinResult) OnAggregateVector(v resultnode.Node) error {
	for _, e := range v.Flatten() {
		r.update(e.AsFloat())
	}
	return nil
}

func (r *MinResult) update(v float64) {
	if !r.seen || v < r.Value {
		r.Value = v
		r.seen = true
	}
}

func (r *MinResult) Merge(other Result) error {
	o, ok := other.(*MinResult)
	if !ok {
		return typeMismatch(other, r)
	}
	if o.seen {
		r.update(o.Value)
	}
	return nil
}

func (r *MinResult) Reset() { r.Value = math.Inf(1); r.seen = false }

func (r *MinResult) Rank() resultnode.Node { return resultnode.Float(r.Value) }

func (r *MinResult) Clone() Result { c := *r; return &c }

// MaxResult tracks the maximum sample observed. Reset initializes to
// -Inf (§9 Open Question resolution: -Inf is an acceptable float
// "min of type" for this module).
type MaxResult struct {
	Value float64
	seen  bool
}

func NewMax() *MaxResult { return &MaxResult{Value: math.Inf(-1)} }

func (r *MaxResult) OnAggregateScalar(v resultnode.Node) error {
	r.update(v.AsFloat())
	return nil
}

func (r *MaxResult) OnAggregateVector(v resultnode.Node) error {
	for _, e := range v.Flatten() {
		r.update(e.AsFloat())
	}
	return nil
}

func (r *MaxResult) update(v float64) {
	if !r.seen || v > r.Value {
		r.Value = v
		r.seen = true
	}
}

func (r *MaxResult) Merge(other Result) error {
	o, ok := other.(*MaxResult)
	if !ok {
		return typeMismatch(other, r)
	}
	if o.seen {
		r.update(o.Value)
	}
	return nil
}

func (r *MaxResult) Reset() { r.Value = math.Inf(-1); r.seen = false }

func (r *MaxResult) Rank() resultnode.Node { return resultnode.Float(r.Value) }

func (r *MaxResult) Clone() Result { c := *r; return &c }

// AverageResult accumulates sum and count to compute a running mean.
type AverageResult struct {
	Sum   float64
	Count uint64
}

func NewAverage() *AverageResult { return &AverageResult{} }

func (r *AverageResult) OnAggregateScalar(v resultnode.Node) error {
	r.Sum += v.AsFloat()
	r.Count++
	return nil
}

func (r *AverageResult) OnAggregateVector(v resultnode.Node) error {
	elems := v.Flatten()
	for _, e := range elems {
		r.Sum += e.AsFloat()
	}
	r.Count += uint64(len(elems))
	return nil
}

func (r *AverageResult) Merge(other Result) error {
	o, ok := other.(*AverageResult)
	if !ok {
		return typeMismatch(other, r)
	}
	r.Sum += o.Sum
	r.Count += o.Count
	return nil
}

func (r *AverageResult) Reset() { r.Sum = 0; r.Count = 0 }

func (r *AverageResult) Rank() resultnode.Node {
	if r.Count == 0 {
		return resultnode.Float(0)
	}
	return resultnode.Float(r.Sum / float64(r.Count))
}

func (r *AverageResult) Clone() Result { c := *r; return &c }

// XorResult xors the hash of every sample into a running accumulator.
type XorResult struct {
	Value int64
}

func NewXor() *XorResult { return &XorResult{} }

func (r *XorResult) OnAggregateScalar(v resultnode.Node) error {
	r.Value ^= int64(v.Hash())
	return nil
}

func (r *XorResult) OnAggregateVector(v resultnode.Node) error {
	for _, e := range v.Flatten() {
		r.Value ^= int64(e.Hash())
	}
	return nil
}

func (r *XorResult) Merge(other Result) error {
	o, ok := other.(*XorResult)
	if !ok {
		return typeMismatch(other, r)
	}
	r.Value ^= o.Value
	return nil
}

func (r *XorResult) Reset() { r.Value = 0 }

func (r *XorResult) Rank() resultnode.Node { return resultnode.Int64(r.Value) }

func (r *XorResult) Clone() Result { c := *r; return &c }

// StdDevResult accumulates count, sum and sum-of-squares to compute a
// running standard deviation.
type StdDevResult struct {
	Count uint64
	Sum   float64
	SumSq float64
}

func NewStdDev() *StdDevResult { return &StdDevResult{} }

func (r *StdDevResult) OnAggregateScalar(v resultnode.Node) error {
	f := v.AsFloat()
	r.Count++
	r.Sum += f
	r.SumSq += f * f
	return nil
}

func (r *StdDevResult) OnAggregateVector(v resultnode.Node) error {
	for _, e := range v.Flatten() {
		if err := r.OnAggregateScalar(e); err != nil {
			return err
		}
	}
	return nil
}

func (r *StdDevResult) Merge(other Result) error {
	o, ok := other.(*StdDevResult)
	if !ok {
		return typeMismatch(other, r)
	}
	r.Count += o.Count
	r.Sum += o.Sum
	r.SumSq += o.SumSq
	return nil
}

func (r *StdDevResult) Reset() { r.Count = 0; r.Sum = 0; r.SumSq = 0 }

// Variance returns the population variance of the accumulated samples.
func (r *StdDevResult) Variance() float64 {
	if r.Count == 0 {
		return 0
	}
	mean := r.Sum / float64(r.Count)
	return r.SumSq/float64(r.Count) - mean*mean
}

func (r *StdDevResult) Rank() resultnode.Node {
	v := r.Variance()
	if v < 0 {
		v = 0
	}
	return resultnode.Float(math.Sqrt(v))
}

func (r *StdDevResult) Clone() Result { c := *r; return &c }

// ExpressionCountResult estimates the cardinality of its input via a
// HyperLogLog sketch, ranking by the cumulative per-insert delta (a
// monotonic proxy cheaper than re-estimating the whole sketch per sample).
// Merge replaces the rank with the merged sketch's Estimate(), so a merged
// result's rank is a cardinality estimate rather than an accumulated delta.
type ExpressionCountResult struct {
	HLL  *sketch.HLL
	rank uint64
}

func NewExpressionCount() *ExpressionCountResult {
	return &ExpressionCountResult{HLL: sketch.NewHLL()}
}

func (r *ExpressionCountResult) OnAggregateScalar(v resultnode.Node) error {
	r.rank += r.HLL.Aggregate(v.Hash())
	return nil
}

func (r *ExpressionCountResult) OnAggregateVector(v resultnode.Node) error {
	for _, e := range v.Flatten() {
		if err := r.OnAggregateScalar(e); err != nil {
			return err
		}
	}
	return nil
}

func (r *ExpressionCountResult) Merge(other Result) error {
	o, ok := other.(*ExpressionCountResult)
	if !ok {
		return typeMismatch(other, r)
	}
	if err := r.HLL.Merge(o.HLL); err != nil {
		return err
	}
	r.rank = r.HLL.Estimate()
	return nil
}

func (r *ExpressionCountResult) Reset() {
	r.HLL = sketch.NewHLL()
	r.rank = 0
}

func (r *ExpressionCountResult) Rank() resultnode.Node { return resultnode.Int64(int64(r.rank)) }

func (r *ExpressionCountResult) Clone() Result {
	return &ExpressionCountResult{HLL: r.HLL.Clone(), rank: r.rank}
}

// QuantileResult estimates requested quantiles of its numeric input via a
// mergeable sketch. It never contributes to ranking (rank is always 0).
type QuantileResult struct {
	Sketch *sketch.Quantile
}

func NewQuantile() *QuantileResult {
	return &QuantileResult{Sketch: sketch.NewQuantile()}
}

func (r *QuantileResult) OnAggregateScalar(v resultnode.Node) error {
	r.Sketch.Update(v.AsFloat())
	return nil
}

func (r *QuantileResult) OnAggregateVector(v resultnode.Node) error {
	for _, e := range v.Flatten() {
		r.Sketch.Update(e.AsFloat())
	}
	return nil
}

func (r *QuantileResult) Merge(other Result) error {
	o, ok := other.(*QuantileResult)
	if !ok {
		return typeMismatch(other, r)
	}
	return r.Sketch.Merge(o.Sketch)
}

func (r *QuantileResult) Reset() { r.Sketch = sketch.NewQuantile() }

func (r *QuantileResult) Rank() resultnode.Node { return resultnode.Float(0) }

func (r *QuantileResult) Clone() Result {
	return &QuantileResult{Sketch: r.Sketch.Clone()}
}

// GetQuantile returns the estimated value at rank p, or an error if the
// sketch has not observed any samples.
func (r *QuantileResult) GetQuantile(p float64) (float64, error) {
	if r.Sketch.IsEmpty() {
		return 0, fmt.Errorf("aggregation: quantile requested on an empty sketch")
	}
	return r.Sketch.GetQuantile(p)
}
