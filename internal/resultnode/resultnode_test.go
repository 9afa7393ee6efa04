package resultnode

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSerializeRoundTrip_Scalars(t *testing.T) {
	cases := []Node{
		Int64(42),
		Int64(-7),
		Float(3.14159),
		String("hello world"),
		Raw([]byte{0x00, 0xFF, 0x10}),
		Bool(true),
		Bool(false),
		Enum(1234),
	}

	for _, n := range cases {
		data, err := Serialize(n)
		require.NoError(t, err)

		got, err := Deserialize(data)
		require.NoError(t, err)
		assert.True(t, Equal(n, got), "round trip mismatch for %+v -> %+v", n, got)
	}
}

func TestSerializeRoundTrip_Vectors(t *testing.T) {
	n := Node{Kind: KindInt, Vector: true, Ints: []int64{1, 2, 3}}
	data, err := Serialize(n)
	require.NoError(t, err)

	got, err := Deserialize(data)
	require.NoError(t, err)
	assert.True(t, Equal(n, got))

	strs := Node{Kind: KindString, Vector: true, Strs: []string{"a", "bb", "ccc"}}
	data2, err := Serialize(strs)
	require.NoError(t, err)
	got2, err := Deserialize(data2)
	require.NoError(t, err)
	assert.True(t, Equal(strs, got2))
}

func TestCompare_OrdersWithinKind(t *testing.T) {
	assert.Equal(t, -1, Compare(Int64(1), Int64(2)))
	assert.Equal(t, 1, Compare(Float(2.0), Float(1.0)))
	assert.Equal(t, 0, Compare(String("a"), String("a")))
	assert.Equal(t, -1, Compare(String("a"), String("b")))
}

func TestAdd_RequiresMatchingNumericKind(t *testing.T) {
	sum, err := Add(Int64(2), Int64(3))
	require.NoError(t, err)
	assert.Equal(t, int64(5), sum.Int)

	_, err = Add(Int64(2), String("x"))
	assert.Error(t, err)
}

func TestMinMax(t *testing.T) {
	assert.Equal(t, Int64(1), Min(Int64(1), Int64(5)))
	assert.Equal(t, Int64(5), Max(Int64(1), Int64(5)))
}

func TestClone_DeepCopiesBackingSlices(t *testing.T) {
	n := Node{Kind: KindInt, Vector: true, Ints: []int64{1, 2, 3}}
	c := n.Clone()
	c.Ints[0] = 999
	assert.Equal(t, int64(1), n.Ints[0])
}

func TestResolveEnum_RewritesToString(t *testing.T) {
	n := Enum(7)
	dict := func(id int32) string {
		if id == 7 {
			return "seven"
		}
		return "?"
	}
	resolved := ResolveEnum(n, dict)
	assert.Equal(t, KindString, resolved.Kind)
	assert.Equal(t, "seven", resolved.Str)
}

func TestFlatten_ScalarIsSingleElement(t *testing.T) {
	elems := Int64(5).Flatten()
	require.Len(t, elems, 1)
	assert.Equal(t, int64(5), elems[0].Int)
}
