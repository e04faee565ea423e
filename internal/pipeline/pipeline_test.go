package pipeline

import (
	"testing"

	"github.com/joeandaverde/tinydb/internal/document"
	"github.com/joeandaverde/tinydb/internal/qeir"
	"github.com/joeandaverde/tinydb/internal/tinyerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func member(name string) *qeir.Member        { return &qeir.Member{Name: name} }
func constant(v document.Value) *qeir.Constant { return &qeir.Constant{Value: v} }

func docRow(fields map[string]document.Value) Row {
	d := document.New()
	for k, v := range fields {
		d.Set(k, v)
	}
	return Row{Doc: d}
}

func collect(rows ...Row) *Pipeline {
	docs := make([]*document.Document, len(rows))
	for i, r := range rows {
		docs[i] = r.Doc
	}
	p, err := Collect(NewSliceReader(docs))
	if err != nil {
		panic(err)
	}
	return p
}

func people() *Pipeline {
	return collect(
		docRow(map[string]document.Value{"name": document.NewString("alice"), "age": document.NewInt32(30)}),
		docRow(map[string]document.Value{"name": document.NewString("bob"), "age": document.NewInt32(25)}),
		docRow(map[string]document.Value{"name": document.NewString("carol"), "age": document.NewInt32(25)}),
	)
}

func TestFilter_KeepsOnlyTruthyRows(t *testing.T) {
	p := people().Filter(&qeir.Binary{Op: qeir.Equal, Left: member("age"), Right: constant(document.NewInt32(25))})
	rows, err := p.Rows()
	require.NoError(t, err)
	require.Len(t, rows, 2)
}

func TestProject_BoxesScalarUnderSyntheticField(t *testing.T) {
	p := people().Project(member("name"))
	rows, err := p.Rows()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	v := rowValue(rows[0].Doc)
	s, ok := v.AsString()
	require.True(t, ok)
	assert.Equal(t, "alice", s)
}

func TestOrderBy_ThenBy_StableMultiKeySort(t *testing.T) {
	p := people().OrderBy(member("age"), false).ThenBy(member("name"), false)
	rows, err := p.Rows()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	names := make([]string, 3)
	for i, r := range rows {
		v, _ := r.Doc.Get("name")
		s, _ := v.AsString()
		names[i] = s
	}
	assert.Equal(t, []string{"bob", "carol", "alice"}, names)
}

func TestSkipTake_ClampToBounds(t *testing.T) {
	p := people().Skip(10)
	rows, err := p.Rows()
	require.NoError(t, err)
	assert.Len(t, rows, 0)

	p2 := people().Take(-1)
	rows2, err := p2.Rows()
	require.NoError(t, err)
	assert.Len(t, rows2, 0)
}

func TestSkipExpr_MaterializesNonConstantCount(t *testing.T) {
	count := &qeir.Binary{Op: qeir.Add, Left: constant(document.NewInt32(1)), Right: constant(document.NewInt32(1))}
	p := people().SkipExpr(count)
	rows, err := p.Rows()
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestDistinct_RemovesStructuralDuplicates(t *testing.T) {
	p := collect(
		docRow(map[string]document.Value{"age": document.NewInt32(25)}),
		docRow(map[string]document.Value{"age": document.NewInt32(25)}),
		docRow(map[string]document.Value{"age": document.NewInt32(30)}),
	).Project(member("age")).Distinct()
	rows, err := p.Rows()
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestGroupBy_PartitionsByKeyValue(t *testing.T) {
	groups, err := people().GroupBy(member("age"))
	require.NoError(t, err)
	require.Len(t, groups, 2)
	for _, g := range groups {
		age, _ := g.Key.AsInt32()
		if age == 25 {
			assert.Len(t, g.Rows, 2)
		} else {
			assert.Len(t, g.Rows, 1)
		}
	}
}

func TestAggregates_SumAverageMinMax(t *testing.T) {
	rows, err := people().Rows()
	require.NoError(t, err)

	sum, err := Sum(rows, member("age"))
	require.NoError(t, err)
	f, _ := sum.AsFloat64()
	assert.Equal(t, float64(80), f)

	avg, err := Average(rows, member("age"))
	require.NoError(t, err)
	f, _ = avg.AsFloat64()
	assert.InDelta(t, 26.666, f, 0.01)

	min, err := Min(rows, member("age"))
	require.NoError(t, err)
	f, _ = min.AsFloat64()
	assert.Equal(t, float64(25), f)

	max, err := Max(rows, member("age"))
	require.NoError(t, err)
	f, _ = max.AsFloat64()
	assert.Equal(t, float64(30), f)

	assert.Equal(t, int32(3), Count(rows))
	assert.Equal(t, int64(3), LongCount(rows))
}

func TestAggregates_EmptyInputConventions(t *testing.T) {
	var rows []Row

	sum, err := Sum(rows, member("age"))
	require.NoError(t, err)
	f, _ := sum.AsFloat64()
	assert.Equal(t, float64(0), f)

	avg, err := Average(rows, member("age"))
	require.NoError(t, err)
	f, _ = avg.AsFloat64()
	assert.Equal(t, float64(0), f)

	min, err := Min(rows, member("age"))
	require.NoError(t, err)
	assert.True(t, min.IsNull())

	assert.Equal(t, int32(0), Count(rows))
}

func TestFirst_FailsWithNoElementsOnEmptyPipeline(t *testing.T) {
	p := collect()
	_, err := p.First()
	require.Error(t, err)
	assert.True(t, tinyerr.Is(err, tinyerr.NoElements))
}

func TestFirstOrDefault_ReturnsNullOnEmptyPipeline(t *testing.T) {
	p := collect()
	v, err := p.FirstOrDefault()
	require.NoError(t, err)
	assert.True(t, v.IsNull())
}

func TestSingle_FailsWithMoreThanOneElement(t *testing.T) {
	_, err := people().Single()
	require.Error(t, err)
	assert.True(t, tinyerr.Is(err, tinyerr.MoreThanOneElement))
}

func TestSingleWhere_FusesPredicateThenReduces(t *testing.T) {
	v, err := people().SingleWhere(&qeir.Binary{Op: qeir.Equal, Left: member("name"), Right: constant(document.NewString("bob"))})
	require.NoError(t, err)
	d, ok := v.AsDocument()
	require.True(t, ok)
	name, ok := d.Get("name")
	require.True(t, ok)
	s, ok := name.AsString()
	require.True(t, ok)
	assert.Equal(t, "bob", s)
}

func TestAny_All(t *testing.T) {
	any, err := people().Any(&qeir.Binary{Op: qeir.Equal, Left: member("age"), Right: constant(document.NewInt32(30))})
	require.NoError(t, err)
	assert.True(t, any)

	all, err := people().All(&qeir.Binary{Op: qeir.Greater, Left: member("age"), Right: constant(document.NewInt32(0))})
	require.NoError(t, err)
	assert.True(t, all)

	allFalse, err := people().All(&qeir.Binary{Op: qeir.Greater, Left: member("age"), Right: constant(document.NewInt32(26))})
	require.NoError(t, err)
	assert.False(t, allFalse)
}

func TestAll_VacuouslyTrueOverEmptyPipeline(t *testing.T) {
	p := collect()
	all, err := p.All(&qeir.Binary{Op: qeir.Equal, Left: member("age"), Right: constant(document.NewInt32(1))})
	require.NoError(t, err)
	assert.True(t, all)
}

func TestElementAt_OutOfRangeFailsWithNoElements(t *testing.T) {
	_, err := people().ElementAt(99)
	require.Error(t, err)
	assert.True(t, tinyerr.Is(err, tinyerr.NoElements))

	v, err := people().ElementAtOrDefault(99)
	require.NoError(t, err)
	assert.True(t, v.IsNull())
}
