package eval

import (
	"testing"
	"time"

	"github.com/joeandaverde/tinydb/internal/document"
	"github.com/joeandaverde/tinydb/internal/qeir"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func member(name string) *qeir.Member { return &qeir.Member{Name: name} }

func constant(v document.Value) *qeir.Constant { return &qeir.Constant{Value: v} }

func TestEvaluate_MemberAccess_CaseInsensitiveWithIdAlias(t *testing.T) {
	doc := document.New()
	doc.Set("_id", document.NewInt32(7))
	doc.Set("Email", document.NewString("a@example.com"))

	v, err := Evaluate(member("Id"), doc)
	require.NoError(t, err)
	i, ok := v.AsInt32()
	require.True(t, ok)
	assert.Equal(t, int32(7), i)

	v, err = Evaluate(member("email"), doc)
	require.NoError(t, err)
	s, ok := v.AsString()
	require.True(t, ok)
	assert.Equal(t, "a@example.com", s)
}

func TestEvaluate_MemberAccess_MissingFieldIsNull(t *testing.T) {
	doc := document.New()
	v, err := Evaluate(member("nope"), doc)
	require.NoError(t, err)
	assert.True(t, v.IsNull())
}

func TestEvaluate_NestedMember(t *testing.T) {
	inner := document.New()
	inner.Set("city", document.NewString("Seattle"))
	outer := document.New()
	outer.Set("address", document.NewDocument(inner))

	expr := &qeir.Member{Name: "city", Inner: member("address")}
	v, err := Evaluate(expr, outer)
	require.NoError(t, err)
	s, _ := v.AsString()
	assert.Equal(t, "Seattle", s)
}

func TestEvaluate_Arithmetic_NullPropagates(t *testing.T) {
	expr := &qeir.Binary{Op: qeir.Add, Left: constant(document.Null), Right: constant(document.NewInt32(1))}
	v, err := Evaluate(expr, document.New())
	require.NoError(t, err)
	assert.True(t, v.IsNull())
}

func TestEvaluate_Arithmetic_IntegerPromotionLadder(t *testing.T) {
	cases := []struct {
		name     string
		l, r     document.Value
		op       qeir.BinaryOp
		wantKind document.Kind
	}{
		{"int32+int32 stays int32", document.NewInt32(2), document.NewInt32(3), qeir.Add, document.KindInt32},
		{"int32*int32 overflow promotes to int64", document.NewInt32(1 << 30), document.NewInt32(4), qeir.Multiply, document.KindInt64},
		{"exact division stays integer", document.NewInt32(10), document.NewInt32(5), qeir.Divide, document.KindInt32},
		{"inexact division falls back to double", document.NewInt32(7), document.NewInt32(2), qeir.Divide, document.KindDouble},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			expr := &qeir.Binary{Op: c.op, Left: constant(c.l), Right: constant(c.r)}
			v, err := Evaluate(expr, document.New())
			require.NoError(t, err)
			assert.Equal(t, c.wantKind, v.Kind())
		})
	}
}

func TestEvaluate_DivideByZero_IsNull(t *testing.T) {
	expr := &qeir.Binary{Op: qeir.Divide, Left: constant(document.NewInt32(1)), Right: constant(document.NewInt32(0))}
	v, err := Evaluate(expr, document.New())
	require.NoError(t, err)
	assert.True(t, v.IsNull())
}

func TestEvaluate_LogicalAnd_ShortCircuitsAndSkipsRight(t *testing.T) {
	wouldError := &qeir.Function{Name: "NotAFunction"}
	expr := &qeir.Binary{Op: qeir.And, Left: constant(document.NewBool(false)), Right: wouldError}
	v, err := Evaluate(expr, document.New())
	require.NoError(t, err)
	b, ok := v.AsBool()
	require.True(t, ok)
	assert.False(t, b)
}

func TestEvaluate_LogicalOr_NullTreatedAsFalse(t *testing.T) {
	expr := &qeir.Binary{Op: qeir.Or, Left: constant(document.Null), Right: constant(document.NewBool(true))}
	v, err := Evaluate(expr, document.New())
	require.NoError(t, err)
	b, ok := v.AsBool()
	require.True(t, ok)
	assert.True(t, b)
}

func TestEvaluate_Compare_CrossCategoryFallsBackToStringRendering(t *testing.T) {
	expr := &qeir.Binary{Op: qeir.Equal, Left: constant(document.NewString("true")), Right: constant(document.NewBool(true))}
	v, err := Evaluate(expr, document.New())
	require.NoError(t, err)
	b, ok := v.AsBool()
	require.True(t, ok)
	assert.True(t, b)
}

func TestEvaluate_StringFunctions(t *testing.T) {
	doc := document.New()
	doc.Set("name", document.NewString("  Hello World  "))

	trimmed, err := Evaluate(&qeir.Function{Name: "Trim", Target: member("name")}, doc)
	require.NoError(t, err)
	s, _ := trimmed.AsString()
	assert.Equal(t, "Hello World", s)

	contains, err := Evaluate(&qeir.Function{
		Name:      "Contains",
		Target:    member("name"),
		Arguments: []qeir.Node{constant(document.NewString("World"))},
	}, doc)
	require.NoError(t, err)
	b, _ := contains.AsBool()
	assert.True(t, b)
}

func TestEvaluate_MathFunctions_AreFreeFunctions(t *testing.T) {
	v, err := Evaluate(&qeir.Function{Name: "Sqrt", Arguments: []qeir.Node{constant(document.NewDouble(16))}}, document.New())
	require.NoError(t, err)
	f, _ := v.AsDouble()
	assert.Equal(t, 4.0, f)
}

func TestEvaluate_CollectionFunctions(t *testing.T) {
	arr := document.NewArray([]document.Value{
		document.NewInt32(1), document.NewInt32(2), document.NewInt32(3),
	})

	sum, err := Evaluate(&qeir.Function{Name: "Sum", Target: constant(arr)}, document.New())
	require.NoError(t, err)
	f, _ := sum.AsFloat64()
	assert.Equal(t, 6.0, f)

	count, err := Evaluate(&qeir.Function{Name: "Count", Target: constant(arr)}, document.New())
	require.NoError(t, err)
	i, _ := count.AsInt32()
	assert.Equal(t, int32(3), i)
}

func TestEvaluate_DateTimeMembersAndFunctions(t *testing.T) {
	ts := time.Date(2026, time.March, 5, 10, 30, 0, 0, time.UTC)
	base := constant(document.NewDateTime(ts))

	year, err := Evaluate(&qeir.Member{Name: "Year", Inner: base}, document.New())
	require.NoError(t, err)
	i, _ := year.AsInt32()
	assert.Equal(t, int32(2026), i)

	shifted, err := Evaluate(&qeir.Function{Name: "AddDays", Target: base, Arguments: []qeir.Node{constant(document.NewInt32(1))}}, document.New())
	require.NoError(t, err)
	dt, _ := shifted.AsDateTime()
	assert.Equal(t, ts.AddDate(0, 0, 1), dt)
}

func TestEvaluate_Conditional(t *testing.T) {
	expr := &qeir.Conditional{
		Test:    constant(document.NewBool(false)),
		IfTrue:  constant(document.NewString("yes")),
		IfFalse: constant(document.NewString("no")),
	}
	v, err := Evaluate(expr, document.New())
	require.NoError(t, err)
	s, _ := v.AsString()
	assert.Equal(t, "no", s)
}

func TestEvaluate_MemberInit_ProjectsNamedFields(t *testing.T) {
	doc := document.New()
	doc.Set("email", document.NewString("a@example.com"))

	expr := &qeir.MemberInit{
		Type: document.KindDocument,
		Members: []qeir.MemberAssignment{
			{Name: "Address", Value: member("email")},
		},
	}
	v, err := Evaluate(expr, doc)
	require.NoError(t, err)
	out, ok := v.AsDocument()
	require.True(t, ok)
	got, ok := out.Get("Address")
	require.True(t, ok)
	s, _ := got.AsString()
	assert.Equal(t, "a@example.com", s)
}
