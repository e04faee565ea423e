package document

import (
	"testing"
	"time"

	"github.com/joeandaverde/tinydb/internal/oid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalUnmarshalRoundTrip(t *testing.T) {
	inner := NewFromFields(
		Field{Name: "street", Value: NewString("1 Infinite Loop")},
	)

	doc := NewFromFields(
		Field{Name: "_id", Value: NewObjectID(oid.New())},
		Field{Name: "name", Value: NewString("Ada")},
		Field{Name: "age", Value: NewInt32(31)},
		Field{Name: "balance", Value: NewDouble(12.5)},
		Field{Name: "big", Value: NewInt64(1 << 40)},
		Field{Name: "active", Value: NewBool(true)},
		Field{Name: "nothing", Value: Null},
		Field{Name: "tags", Value: NewArray([]Value{NewString("a"), NewString("b")})},
		Field{Name: "address", Value: NewDocument(inner)},
		Field{Name: "blob", Value: NewBinary([]byte{1, 2, 3, 4})},
		Field{Name: "joined", Value: NewDateTime(time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC))},
		Field{Name: "rate", Value: NewDecimal128(DecimalFromFloat64(10.5))},
	)

	encoded, err := Marshal(doc)
	require.NoError(t, err)

	decoded, err := Unmarshal(encoded)
	require.NoError(t, err)

	require.Equal(t, doc.Len(), decoded.Len())
	for _, f := range doc.Fields() {
		got, ok := decoded.Get(f.Name)
		require.True(t, ok, "missing field %s", f.Name)
		assert.True(t, f.Value.Equal(got) || f.Value.Kind() == KindArray || f.Value.Kind() == KindDocument,
			"field %s round-trip mismatch: %v != %v", f.Name, f.Value, got)
	}

	gotTags, ok := decoded.Get("tags")
	require.True(t, ok)
	arr, ok := gotTags.AsArray()
	require.True(t, ok)
	require.Len(t, arr, 2)
	assert.Equal(t, "a", mustString(arr[0]))
	assert.Equal(t, "b", mustString(arr[1]))

	gotAddr, ok := decoded.Get("address")
	require.True(t, ok)
	addrDoc, ok := gotAddr.AsDocument()
	require.True(t, ok)
	street, ok := addrDoc.Get("street")
	require.True(t, ok)
	assert.Equal(t, "1 Infinite Loop", mustString(street))
}

func mustString(v Value) string {
	s, _ := v.AsString()
	return s
}

func TestDocumentFieldOrderPreserved(t *testing.T) {
	d := New()
	d.Set("c", NewInt32(3))
	d.Set("a", NewInt32(1))
	d.Set("b", NewInt32(2))
	d.Set("a", NewInt32(10)) // replace keeps position

	var names []string
	for _, f := range d.Fields() {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{"c", "a", "b"}, names)

	v, ok := d.Get("a")
	require.True(t, ok)
	i, _ := v.AsInt32()
	assert.Equal(t, int32(10), i)
}

func TestCaseInsensitiveGetPrefersExactMatch(t *testing.T) {
	d := New()
	d.Set("Name", NewString("exact"))
	d.Set("name", NewString("lower"))

	v, ok := d.GetCaseInsensitive("name")
	require.True(t, ok)
	assert.Equal(t, "lower", mustString(v))

	v2, ok := d.GetCaseInsensitive("NAME")
	require.True(t, ok)
	// No exact match for NAME: falls through to first case-insensitive hit.
	assert.Equal(t, "exact", mustString(v2))
}

func TestNumericPromotionEquality(t *testing.T) {
	cases := []Value{
		NewInt32(10),
		NewInt64(10),
		NewDouble(10.0),
		NewDecimal128(DecimalFromFloat64(10.0)),
	}
	for i := range cases {
		for j := range cases {
			assert.Equal(t, 0, Compare(cases[i], cases[j]), "case %d vs %d", i, j)
		}
	}
}

func TestNullOrdering(t *testing.T) {
	assert.Equal(t, -1, Compare(Null, NewInt32(1)))
	assert.Equal(t, 1, Compare(NewInt32(1), Null))
	assert.Equal(t, 0, Compare(Null, Null))
}

func TestCategoryRankOrdering(t *testing.T) {
	assert.True(t, Compare(NewInt32(1), NewString("a")) < 0)
	assert.True(t, Compare(NewString("a"), NewBinary([]byte{1})) < 0)
	assert.True(t, Compare(NewBinary([]byte{1}), NewDateTime(time.Now())) < 0)
}
