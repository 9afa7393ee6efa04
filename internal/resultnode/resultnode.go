// Package resultnode implements ResultNode, the tagged-union value type
// flowing through expression evaluation, grouping identifiers and
// aggregation accumulators.
package resultnode

import (
	"fmt"
	"math"
)

// Kind discriminates the scalar type a ResultNode carries. Vector-valued
// nodes set Vector true and populate the matching slice field instead of
// the scalar field.
type Kind uint8

const (
	KindInt Kind = iota
	KindFloat
	KindString
	KindRaw
	KindBool
	KindEnum
)

func (k Kind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindRaw:
		return "raw"
	case KindBool:
		return "bool"
	case KindEnum:
		return "enum"
	default:
		return "unknown"
	}
}

// Node is a single ResultNode value: one scalar kind, optionally carrying
// a vector of the same kind instead of (or in addition to, for enum
// resolution) a scalar value.
type Node struct {
	Kind   Kind
	Vector bool

	Int    int64
	Float  float64
	Str    string
	Raw    []byte
	Bool   bool
	EnumID int32 // attribute-backed enum dictionary index, pre-normalization

	Ints    []int64
	Floats  []float64
	Strs    []string
	Raws    [][]byte
	Bools   []bool
	EnumIDs []int32
}

// Int64 returns a scalar integer node.
func Int64(v int64) Node { return Node{Kind: KindInt, Int: v} }

// Float returns a scalar float node.
func Float(v float64) Node { return Node{Kind: KindFloat, Float: v} }

// String returns a scalar string node.
func String(v string) Node { return Node{Kind: KindString, Str: v} }

// Raw returns a scalar raw-bytes node.
func Raw(v []byte) Node { return Node{Kind: KindRaw, Raw: append([]byte(nil), v...)} }

// Bool returns a scalar boolean node.
func Bool(v bool) Node { return Node{Kind: KindBool, Bool: v} }

// Enum returns a scalar enum-dictionary-index node, not yet resolved to
// its string form.
func Enum(id int32) Node { return Node{Kind: KindEnum, EnumID: id} }

// IsEmpty reports whether a vector node carries zero elements.
func (n Node) IsEmpty() bool {
	if !n.Vector {
		return false
	}
	switch n.Kind {
	case KindInt:
		return len(n.Ints) == 0
	case KindFloat:
		return len(n.Floats) == 0
	case KindString:
		return len(n.Strs) == 0
	case KindRaw:
		return len(n.Raws) == 0
	case KindBool:
		return len(n.Bools) == 0
	case KindEnum:
		return len(n.EnumIDs) == 0
	}
	return true
}

// AsFloat coerces the node's scalar value to float64, the common numeric
// view used by Sum/Min/Max/Average/StdDev aggregation.
func (n Node) AsFloat() float64 {
	switch n.Kind {
	case KindInt:
		return float64(n.Int)
	case KindFloat:
		return n.Float
	case KindBool:
		if n.Bool {
			return 1
		}
		return 0
	case KindEnum:
		return float64(n.EnumID)
	default:
		return 0
	}
}

// Flatten returns the per-element scalar nodes of a vector node, or the
// node itself as a single-element slice if it is already scalar.
func (n Node) Flatten() []Node {
	if !n.Vector {
		return []Node{n}
	}
	switch n.Kind {
	case KindInt:
		out := make([]Node, len(n.Ints))
		for i, v := range n.Ints {
			out[i] = Int64(v)
		}
		return out
	case KindFloat:
		out := make([]Node, len(n.Floats))
		for i, v := range n.Floats {
			out[i] = Float(v)
		}
		return out
	case KindString:
		out := make([]Node, len(n.Strs))
		for i, v := range n.Strs {
			out[i] = String(v)
		}
		return out
	case KindRaw:
		out := make([]Node, len(n.Raws))
		for i, v := range n.Raws {
			out[i] = Raw(v)
		}
		return out
	case KindBool:
		out := make([]Node, len(n.Bools))
		for i, v := range n.Bools {
			out[i] = Bool(v)
		}
		return out
	case KindEnum:
		out := make([]Node, len(n.EnumIDs))
		for i, v := range n.EnumIDs {
			out[i] = Enum(v)
		}
		return out
	}
	return nil
}

// Hash returns a 64-bit hash of the node's value, used by classification
// (grouping child lookup) and by Xor aggregation.
func (n Node) Hash() uint64 {
	h := fnvOffset
	switch n.Kind {
	case KindInt:
		h = fnvMix(h, uint64(n.Int))
	case KindFloat:
		h = fnvMix(h, math.Float64bits(n.Float))
	case KindString:
		h = fnvMixBytes(h, []byte(n.Str))
	case KindRaw:
		h = fnvMixBytes(h, n.Raw)
	case KindBool:
		if n.Bool {
			h = fnvMix(h, 1)
		} else {
			h = fnvMix(h, 0)
		}
	case KindEnum:
		h = fnvMix(h, uint64(uint32(n.EnumID)))
	}
	return h
}

const (
	fnvOffset = uint64(14695981039346656037)
	fnvPrime  = uint64(1099511628211)
)

func fnvMix(h, v uint64) uint64 {
	var b [8]byte
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
	return fnvMixBytes(h, b[:])
}

func fnvMixBytes(h uint64, b []byte) uint64 {
	for _, c := range b {
		h ^= uint64(c)
		h *= fnvPrime
	}
	return h
}

// Compare orders two nodes of the same kind. Mixed-kind comparisons
// compare by Kind first, which keeps the ordering total without
// attempting cross-kind numeric coercion (a protocol violation upstream
// of this package, per classification's contract).
func Compare(a, b Node) int {
	if a.Kind != b.Kind {
		if a.Kind < b.Kind {
			return -1
		}
		return 1
	}
	switch a.Kind {
	case KindInt:
		return compareInt64(a.Int, b.Int)
	case KindFloat:
		return compareFloat64(a.Float, b.Float)
	case KindString:
		return compareString(a.Str, b.Str)
	case KindRaw:
		return compareBytes(a.Raw, b.Raw)
	case KindBool:
		return compareBool(a.Bool, b.Bool)
	case KindEnum:
		return compareInt64(int64(a.EnumID), int64(b.EnumID))
	}
	return 0
}

func compareInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func compareFloat64(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func compareString(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func compareBytes(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	return compareInt64(int64(len(a)), int64(len(b)))
}

func compareBool(a, b bool) int {
	if a == b {
		return 0
	}
	if !a && b {
		return -1
	}
	return 1
}

// Equal reports whether two nodes carry the same kind and value.
func Equal(a, b Node) bool {
	if a.Kind != b.Kind || a.Vector != b.Vector {
		return false
	}
	if !a.Vector {
		return Compare(a, b) == 0
	}
	af, bf := a.Flatten(), b.Flatten()
	if len(af) != len(bf) {
		return false
	}
	for i := range af {
		if Compare(af[i], bf[i]) != 0 {
			return false
		}
	}
	return true
}

// Add returns a+b for numeric kinds; non-numeric kinds return an error,
// as the grouping engine never calls Add on string/raw/bool values.
func Add(a, b Node) (Node, error) {
	if a.Kind != b.Kind {
		return Node{}, fmt.Errorf("resultnode: add across mismatched kinds %s/%s", a.Kind, b.Kind)
	}
	switch a.Kind {
	case KindInt:
		return Int64(a.Int + b.Int), nil
	case KindFloat:
		return Float(a.Float + b.Float), nil
	default:
		return Node{}, fmt.Errorf("resultnode: add unsupported for kind %s", a.Kind)
	}
}

// Min returns the smaller of a, b by Compare.
func Min(a, b Node) Node {
	if Compare(a, b) <= 0 {
		return a
	}
	return b
}

// Max returns the larger of a, b by Compare.
func Max(a, b Node) Node {
	if Compare(a, b) >= 0 {
		return a
	}
	return b
}

// Xor returns a^b for integer kinds, combining their hashes for all
// other kinds (matching the Xor aggregator's hash(v) contract).
func Xor(a, b Node) Node {
	if a.Kind == KindInt && b.Kind == KindInt {
		return Int64(a.Int ^ b.Int)
	}
	return Int64(int64(a.Hash() ^ b.Hash()))
}

// Divide returns a/b for numeric kinds.
func Divide(a Node, divisor float64) Node {
	if divisor == 0 {
		return Float(0)
	}
	return Float(a.AsFloat() / divisor)
}

// Clone returns a deep copy of n.
func (n Node) Clone() Node {
	c := n
	if n.Raw != nil {
		c.Raw = append([]byte(nil), n.Raw...)
	}
	if n.Ints != nil {
		c.Ints = append([]int64(nil), n.Ints...)
	}
	if n.Floats != nil {
		c.Floats = append([]float64(nil), n.Floats...)
	}
	if n.Strs != nil {
		c.Strs = append([]string(nil), n.Strs...)
	}
	if n.Raws != nil {
		c.Raws = make([][]byte, len(n.Raws))
		for i, v := range n.Raws {
			c.Raws[i] = append([]byte(nil), v...)
		}
	}
	if n.Bools != nil {
		c.Bools = append([]bool(nil), n.Bools...)
	}
	if n.EnumIDs != nil {
		c.EnumIDs = append([]int32(nil), n.EnumIDs...)
	}
	return c
}

// ResolveEnum rewrites an enum-typed node into its string form for
// transport, using the supplied dictionary lookup. Non-enum nodes pass
// through unchanged.
func ResolveEnum(n Node, dict func(id int32) string) Node {
	if n.Kind != KindEnum {
		return n
	}
	if n.Vector {
		out := Node{Kind: KindString, Vector: true, Strs: make([]string, len(n.EnumIDs))}
		for i, id := range n.EnumIDs {
			out.Strs[i] = dict(id)
		}
		return out
	}
	return String(dict(n.EnumID))
}
