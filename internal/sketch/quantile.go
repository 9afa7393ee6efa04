package sketch

import (
	"fmt"

	"github.com/DataDog/sketches-go/ddsketch"
)

// defaultRelativeAccuracy matches the error bound the grouping engine
// promises callers of the quantile aggregator: estimated quantiles are
// guaranteed within 1% of the true value.
const defaultRelativeAccuracy = 0.01

// Quantile is a mergeable sketch approximating the distribution of a
// stream of float64 values, used by the quantile/KLL-shaped aggregation
// result.
type Quantile struct {
	sk *ddsketch.DDSketch
}

// NewQuantile returns an empty sketch at the module's default accuracy.
func NewQuantile() *Quantile {
	sk, err := ddsketch.NewDefaultDDSketch(defaultRelativeAccuracy)
	if err != nil {
		// Only returns an error for an invalid accuracy constant, which
		// is fixed at compile time above.
		panic(fmt.Sprintf("sketch: invalid default relative accuracy: %v", err))
	}
	return &Quantile{sk: sk}
}

// Update folds a single sample into the sketch. Out-of-range values (the
// sketch only supports a bounded dynamic range) are dropped rather than
// failing the whole aggregation.
func (q *Quantile) Update(v float64) {
	_ = q.sk.Add(v)
}

// IsEmpty reports whether any samples have been added.
func (q *Quantile) IsEmpty() bool {
	return q.sk.GetCount() == 0
}

// GetQuantile returns the estimated value at rank p (0 <= p <= 1).
func (q *Quantile) GetQuantile(p float64) (float64, error) {
	return q.sk.GetValueAtQuantile(p)
}

// Merge folds another sketch's samples into q.
func (q *Quantile) Merge(other *Quantile) error {
	if other == nil || other.IsEmpty() {
		return nil
	}
	return q.sk.MergeWith(other.sk)
}

// Clone returns an independent copy of q.
func (q *Quantile) Clone() *Quantile {
	return &Quantile{sk: q.sk.Copy()}
}

// MarshalBinary serializes the sketch using its protobuf wire form.
func (q *Quantile) MarshalBinary() ([]byte, error) {
	pb := q.sk.ToProto()
	return pb.Marshal()
}

// UnmarshalBinary restores a sketch previously produced by MarshalBinary.
func (q *Quantile) UnmarshalBinary(data []byte) error {
	pb := &ddsketch.DDSketchProto{}
	if err := pb.Unmarshal(data); err != nil {
		return fmt.Errorf("unmarshal quantile sketch: %w", err)
	}
	sk, err := ddsketch.FromProto(pb)
	if err != nil {
		return fmt.Errorf("rebuild quantile sketch: %w", err)
	}
	q.sk = sk
	return nil
}
