// Package sketch wraps the approximate-counting data structures used by
// expression-count and quantile aggregation: a HyperLogLog cardinality
// sketch and a quantile sketch, both mergeable so partial aggregation
// results from different nodes can be combined exactly like any other
// AggregationResult.
package sketch

import (
	"bytes"
	"fmt"

	"github.com/axiomhq/hyperloglog"
)

// HLL estimates the number of distinct 64-bit hashes fed to it via
// Aggregate. It wraps axiomhq/hyperloglog's sparse/dense representation.
type HLL struct {
	sk *hyperloglog.Sketch
}

// NewHLL returns an empty sketch. Precision is fixed by the underlying
// library (axiomhq/hyperloglog uses a 14-bit register index internally);
// the configured precision is recorded for operators but does not change
// the on-wire register width.
func NewHLL() *HLL {
	return &HLL{sk: hyperloglog.New()}
}

// Aggregate folds a single document's hash into the sketch and returns the
// resulting increase to a monotonic rank proxy: a single hash can alter at
// most one register, so the delta is always 0 or 1. Callers accumulating
// this delta across many calls get a value that only ever grows, unlike a
// before/after diff of Estimate() (which is non-monotone — the bias-
// corrected estimator can decrease on insert, particularly across the
// sparse-to-dense representation promotion — and so risks underflowing an
// unsigned accumulator).
func (h *HLL) Aggregate(hash uint64) uint64 {
	if h.sk.InsertHash(hash) {
		return 1
	}
	return 0
}

// Estimate returns the current cardinality estimate.
func (h *HLL) Estimate() uint64 {
	return h.sk.Estimate()
}

// Merge folds another sketch's state into h, as required when combining
// partial aggregation results from multiple nodes.
func (h *HLL) Merge(other *HLL) error {
	if other == nil {
		return nil
	}
	return h.sk.Merge(other.sk)
}

// Clone returns an independent copy of h.
func (h *HLL) Clone() *HLL {
	clone := NewHLL()
	_ = clone.sk.Merge(h.sk)
	return clone
}

// MarshalBinary serializes the sketch for the result-node wire codec.
func (h *HLL) MarshalBinary() ([]byte, error) {
	return h.sk.MarshalBinary()
}

// UnmarshalBinary restores a sketch previously produced by MarshalBinary.
func (h *HLL) UnmarshalBinary(data []byte) error {
	sk := hyperloglog.New()
	if err := sk.UnmarshalBinary(data); err != nil {
		return fmt.Errorf("unmarshal hll sketch: %w", err)
	}
	h.sk = sk
	return nil
}

// Equal reports whether two sketches serialize identically. Used by tests
// rather than production code, since two sketches with different insert
// order but equal registers should compare equal.
func (h *HLL) Equal(other *HLL) bool {
	a, errA := h.MarshalBinary()
	b, errB := other.MarshalBinary()
	if errA != nil || errB != nil {
		return false
	}
	return bytes.Equal(a, b)
}
