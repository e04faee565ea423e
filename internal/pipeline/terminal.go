package pipeline

import (
	"github.com/joeandaverde/tinydb/internal/document"
	"github.com/joeandaverde/tinydb/internal/eval"
	"github.com/joeandaverde/tinydb/internal/qeir"
	"github.com/joeandaverde/tinydb/internal/tinyerr"
)

// First returns the first row's value, failing with NoElements if the
// pipeline is empty.
func (p *Pipeline) First() (document.Value, error) {
	rows, err := p.Rows()
	if err != nil {
		return document.Null, err
	}
	if len(rows) == 0 {
		return document.Null, tinyerr.New(tinyerr.NoElements, "First: sequence contains no elements")
	}
	return rowValue(rows[0].Doc), nil
}

// FirstOrDefault returns null instead of failing on an empty pipeline.
func (p *Pipeline) FirstOrDefault() (document.Value, error) {
	rows, err := p.Rows()
	if err != nil {
		return document.Null, err
	}
	if len(rows) == 0 {
		return document.Null, nil
	}
	return rowValue(rows[0].Doc), nil
}

// Last returns the final row's value, failing with NoElements if empty.
func (p *Pipeline) Last() (document.Value, error) {
	rows, err := p.Rows()
	if err != nil {
		return document.Null, err
	}
	if len(rows) == 0 {
		return document.Null, tinyerr.New(tinyerr.NoElements, "Last: sequence contains no elements")
	}
	return rowValue(rows[len(rows)-1].Doc), nil
}

// LastOrDefault returns null instead of failing on an empty pipeline.
func (p *Pipeline) LastOrDefault() (document.Value, error) {
	rows, err := p.Rows()
	if err != nil {
		return document.Null, err
	}
	if len(rows) == 0 {
		return document.Null, nil
	}
	return rowValue(rows[len(rows)-1].Doc), nil
}

// Single returns the sole row's value, failing with NoElements if empty
// or MoreThanOneElement if more than one row matched.
func (p *Pipeline) Single() (document.Value, error) {
	rows, err := p.Rows()
	if err != nil {
		return document.Null, err
	}
	if len(rows) == 0 {
		return document.Null, tinyerr.New(tinyerr.NoElements, "Single: sequence contains no elements")
	}
	if len(rows) > 1 {
		return document.Null, tinyerr.New(tinyerr.MoreThanOneElement, "Single: sequence contains more than one element")
	}
	return rowValue(rows[0].Doc), nil
}

// SingleOrDefault returns null on an empty pipeline but still fails
// with MoreThanOneElement when more than one row matched.
func (p *Pipeline) SingleOrDefault() (document.Value, error) {
	rows, err := p.Rows()
	if err != nil {
		return document.Null, err
	}
	if len(rows) == 0 {
		return document.Null, nil
	}
	if len(rows) > 1 {
		return document.Null, tinyerr.New(tinyerr.MoreThanOneElement, "SingleOrDefault: sequence contains more than one element")
	}
	return rowValue(rows[0].Doc), nil
}

// ElementAt returns the row at i, failing with NoElements if i is out
// of range.
func (p *Pipeline) ElementAt(i int) (document.Value, error) {
	rows, err := p.Rows()
	if err != nil {
		return document.Null, err
	}
	if i < 0 || i >= len(rows) {
		return document.Null, tinyerr.New(tinyerr.NoElements, "ElementAt: index out of range")
	}
	return rowValue(rows[i].Doc), nil
}

// ElementAtOrDefault returns null instead of failing when i is out of
// range.
func (p *Pipeline) ElementAtOrDefault(i int) (document.Value, error) {
	rows, err := p.Rows()
	if err != nil {
		return document.Null, err
	}
	if i < 0 || i >= len(rows) {
		return document.Null, nil
	}
	return rowValue(rows[i].Doc), nil
}

// Any reports whether at least one row exists (with no predicate) or
// at least one row satisfies predicate.
func (p *Pipeline) Any(predicate qeir.Node) (bool, error) {
	rows, err := p.Rows()
	if err != nil {
		return false, err
	}
	if predicate == nil {
		return len(rows) > 0, nil
	}
	for _, r := range rows {
		v, err := eval.Evaluate(predicate, r.Doc)
		if err != nil {
			return false, err
		}
		if truthy(v) {
			return true, nil
		}
	}
	return false, nil
}

// All reports whether every row satisfies predicate; vacuously true
// over an empty pipeline.
func (p *Pipeline) All(predicate qeir.Node) (bool, error) {
	rows, err := p.Rows()
	if err != nil {
		return false, err
	}
	for _, r := range rows {
		v, err := eval.Evaluate(predicate, r.Doc)
		if err != nil {
			return false, err
		}
		if !truthy(v) {
			return false, nil
		}
	}
	return true, nil
}

// withFilter clones the current row set and applies predicate, so a
// predicate-qualified terminal reducer (FirstWhere, LastWhere, ...) can
// fuse its predicate into an upstream filter without disturbing rows
// already materialized on the receiver.
func (p *Pipeline) withFilter(predicate qeir.Node) (*Pipeline, error) {
	rows, err := p.Rows()
	if err != nil {
		return nil, err
	}
	cp := &Pipeline{rows: append([]Row(nil), rows...)}
	cp.Filter(predicate)
	return cp, cp.err
}

// FirstWhere fuses predicate into an upstream filter before reducing.
func (p *Pipeline) FirstWhere(predicate qeir.Node) (document.Value, error) {
	cp, err := p.withFilter(predicate)
	if err != nil {
		return document.Null, err
	}
	return cp.First()
}

// LastWhere fuses predicate into an upstream filter before reducing.
func (p *Pipeline) LastWhere(predicate qeir.Node) (document.Value, error) {
	cp, err := p.withFilter(predicate)
	if err != nil {
		return document.Null, err
	}
	return cp.Last()
}

// SingleWhere fuses predicate into an upstream filter before reducing.
func (p *Pipeline) SingleWhere(predicate qeir.Node) (document.Value, error) {
	cp, err := p.withFilter(predicate)
	if err != nil {
		return document.Null, err
	}
	return cp.Single()
}
