package tinydb

import (
	"github.com/joeandaverde/tinydb/internal/document"
	"github.com/joeandaverde/tinydb/internal/pipeline"
	"github.com/joeandaverde/tinydb/internal/planner"
	"github.com/joeandaverde/tinydb/internal/qeir"
)

// Query is a chainable, already-materialized result set: the chosen
// access path has been walked and every matching document copied into
// an in-memory pipeline before Query is handed back, so a long-lived
// Query never observes a write that commits after it was built.
type Query struct {
	p   *pipeline.Pipeline
	err error
}

func newQuery(c *Collection, plan *planner.ExecutionPlan) *Query {
	r, err := c.reader(plan)
	if err != nil {
		return &Query{err: err}
	}
	p, err := pipeline.Collect(r)
	if err != nil {
		return &Query{err: err}
	}
	if plan.Residual != nil {
		p = p.Filter(plan.Residual)
	}
	return &Query{p: p}
}

// OrderBy establishes the primary sort key.
func (q *Query) OrderBy(key qeir.Node, descending bool) *Query {
	if q.err != nil {
		return q
	}
	q.p = q.p.OrderBy(key, descending)
	return q
}

// ThenBy appends a secondary sort key.
func (q *Query) ThenBy(key qeir.Node, descending bool) *Query {
	if q.err != nil {
		return q
	}
	q.p = q.p.ThenBy(key, descending)
	return q
}

// Skip drops the first n results.
func (q *Query) Skip(n int) *Query {
	if q.err != nil {
		return q
	}
	q.p = q.p.Skip(n)
	return q
}

// SkipExpr drops results per a non-constant count expression.
func (q *Query) SkipExpr(count qeir.Node) *Query {
	if q.err != nil {
		return q
	}
	q.p = q.p.SkipExpr(count)
	return q
}

// Take keeps only the first n results.
func (q *Query) Take(n int) *Query {
	if q.err != nil {
		return q
	}
	q.p = q.p.Take(n)
	return q
}

// TakeExpr keeps results per a non-constant count expression.
func (q *Query) TakeExpr(count qeir.Node) *Query {
	if q.err != nil {
		return q
	}
	q.p = q.p.TakeExpr(count)
	return q
}

// Distinct removes structurally duplicate results.
func (q *Query) Distinct() *Query {
	if q.err != nil {
		return q
	}
	q.p = q.p.Distinct()
	return q
}

// Select projects each result through selector.
func (q *Query) Select(selector qeir.Node) *Query {
	if q.err != nil {
		return q
	}
	q.p = q.p.Project(selector)
	return q
}

// Where further filters results in memory, in addition to whatever
// the access path and any earlier residual predicate already applied.
func (q *Query) Where(predicate qeir.Node) *Query {
	if q.err != nil {
		return q
	}
	q.p = q.p.Filter(predicate)
	return q
}

// GroupBy partitions results by key's evaluated value.
func (q *Query) GroupBy(key qeir.Node) ([]pipeline.Group, error) {
	if q.err != nil {
		return nil, q.err
	}
	return q.p.GroupBy(key)
}

// Documents materializes the query's current result set as documents.
func (q *Query) Documents() ([]*document.Document, error) {
	if q.err != nil {
		return nil, q.err
	}
	rows, err := q.p.Rows()
	if err != nil {
		return nil, err
	}
	docs := make([]*document.Document, len(rows))
	for i, r := range rows {
		docs[i] = r.Doc
	}
	return docs, nil
}

// Count returns the number of rows currently in the result set.
func (q *Query) Count() (int32, error) {
	if q.err != nil {
		return 0, q.err
	}
	rows, err := q.p.Rows()
	if err != nil {
		return 0, err
	}
	return pipeline.Count(rows), nil
}

// LongCount is Count's int64 counterpart.
func (q *Query) LongCount() (int64, error) {
	if q.err != nil {
		return 0, q.err
	}
	rows, err := q.p.Rows()
	if err != nil {
		return 0, err
	}
	return pipeline.LongCount(rows), nil
}

// Sum, Average, Min, and Max aggregate selector's evaluated value
// across every row currently in the result set.
func (q *Query) Sum(selector qeir.Node) (document.Value, error) {
	return q.aggregate(pipeline.Sum, selector)
}

func (q *Query) Average(selector qeir.Node) (document.Value, error) {
	return q.aggregate(pipeline.Average, selector)
}

func (q *Query) Min(selector qeir.Node) (document.Value, error) {
	return q.aggregate(pipeline.Min, selector)
}

func (q *Query) Max(selector qeir.Node) (document.Value, error) {
	return q.aggregate(pipeline.Max, selector)
}

func (q *Query) aggregate(fn func([]pipeline.Row, qeir.Node) (document.Value, error), selector qeir.Node) (document.Value, error) {
	if q.err != nil {
		return document.Null, q.err
	}
	rows, err := q.p.Rows()
	if err != nil {
		return document.Null, err
	}
	return fn(rows, selector)
}

// First, FirstOrDefault, Last, LastOrDefault, Single, SingleOrDefault,
// ElementAt, ElementAtOrDefault, Any, and All are the scalar terminal
// reducers, delegating straight to the underlying pipeline.
func (q *Query) First() (document.Value, error) {
	if q.err != nil {
		return document.Null, q.err
	}
	return q.p.First()
}

func (q *Query) FirstOrDefault() (document.Value, error) {
	if q.err != nil {
		return document.Null, q.err
	}
	return q.p.FirstOrDefault()
}

func (q *Query) Last() (document.Value, error) {
	if q.err != nil {
		return document.Null, q.err
	}
	return q.p.Last()
}

func (q *Query) LastOrDefault() (document.Value, error) {
	if q.err != nil {
		return document.Null, q.err
	}
	return q.p.LastOrDefault()
}

func (q *Query) Single() (document.Value, error) {
	if q.err != nil {
		return document.Null, q.err
	}
	return q.p.Single()
}

func (q *Query) SingleOrDefault() (document.Value, error) {
	if q.err != nil {
		return document.Null, q.err
	}
	return q.p.SingleOrDefault()
}

func (q *Query) ElementAt(i int) (document.Value, error) {
	if q.err != nil {
		return document.Null, q.err
	}
	return q.p.ElementAt(i)
}

func (q *Query) ElementAtOrDefault(i int) (document.Value, error) {
	if q.err != nil {
		return document.Null, q.err
	}
	return q.p.ElementAtOrDefault(i)
}

func (q *Query) Any(predicate qeir.Node) (bool, error) {
	if q.err != nil {
		return false, q.err
	}
	return q.p.Any(predicate)
}

func (q *Query) All(predicate qeir.Node) (bool, error) {
	if q.err != nil {
		return false, q.err
	}
	return q.p.All(predicate)
}
