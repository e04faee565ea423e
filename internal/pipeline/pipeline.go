package pipeline

import (
	"sort"

	log "github.com/sirupsen/logrus"

	"github.com/joeandaverde/tinydb/internal/document"
	"github.com/joeandaverde/tinydb/internal/eval"
	"github.com/joeandaverde/tinydb/internal/qeir"
)

type sortKey struct {
	expr qeir.Node
	desc bool
}

// Pipeline is a materialized, chainable sequence of rows with the
// staged operators of a LINQ-style query execution model layered on
// top. Operators that require global knowledge of the
// stream (OrderBy, Distinct, GroupBy) necessarily materialize; simpler
// ones (Filter, Project) could stream but are expressed the same way
// here for one consistent builder API.
type Pipeline struct {
	rows     []Row
	sortKeys []sortKey
	err      error
}

// Collect drains a Reader into a Pipeline.
func Collect(r Reader) (*Pipeline, error) {
	var rows []Row
	for {
		row, ok, err := r.Read()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		rows = append(rows, row)
	}
	return &Pipeline{rows: rows}, nil
}

// Rows materializes any pending sort and returns the current row set
// along with any error encountered along the way.
func (p *Pipeline) Rows() ([]Row, error) {
	p.applySort()
	if p.err != nil {
		return nil, p.err
	}
	return p.rows, nil
}

func (p *Pipeline) fail(err error) *Pipeline {
	if p.err == nil {
		p.err = err
	}
	return p
}

// Filter drops rows for which predicate does not evaluate truthy.
func (p *Pipeline) Filter(predicate qeir.Node) *Pipeline {
	p.applySort()
	if p.err != nil || predicate == nil {
		return p
	}
	kept := p.rows[:0:0]
	for _, r := range p.rows {
		v, err := eval.Evaluate(predicate, r.Doc)
		if err != nil {
			return p.fail(err)
		}
		if truthy(v) {
			kept = append(kept, r)
		}
	}
	p.rows = kept
	return p
}

func truthy(v document.Value) bool {
	if v.IsNull() {
		return false
	}
	b, ok := v.AsBool()
	return !ok || b
}

// Project replaces each row with selector's evaluated result.
func (p *Pipeline) Project(selector qeir.Node) *Pipeline {
	p.applySort()
	if p.err != nil || selector == nil {
		return p
	}
	out := make([]Row, len(p.rows))
	for i, r := range p.rows {
		v, err := eval.Evaluate(selector, r.Doc)
		if err != nil {
			return p.fail(err)
		}
		out[i] = Row{Doc: wrapValue(v)}
	}
	p.rows = out
	return p
}

// OrderBy establishes the primary sort key, replacing any existing
// sort chain. Sorting itself is deferred until the next operator that
// needs the rows materialized in order, so repeated ThenBy calls can
// extend the comparator before a single stable sort runs.
func (p *Pipeline) OrderBy(key qeir.Node, descending bool) *Pipeline {
	p.applySort()
	p.sortKeys = []sortKey{{expr: key, desc: descending}}
	return p
}

// ThenBy appends a secondary ordering key.
func (p *Pipeline) ThenBy(key qeir.Node, descending bool) *Pipeline {
	p.sortKeys = append(p.sortKeys, sortKey{expr: key, desc: descending})
	return p
}

func (p *Pipeline) applySort() {
	if len(p.sortKeys) == 0 || p.err != nil {
		return
	}
	keys := p.sortKeys
	p.sortKeys = nil

	cache := make([]map[int]document.Value, len(keys))
	for i := range cache {
		cache[i] = make(map[int]document.Value, len(p.rows))
	}
	keyAt := func(ki, row int) document.Value {
		if v, ok := cache[ki][row]; ok {
			return v
		}
		v, err := eval.Evaluate(keys[ki].expr, p.rows[row].Doc)
		if err != nil && p.err == nil {
			p.err = err
		}
		cache[ki][row] = v
		return v
	}

	idx := make([]int, len(p.rows))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		i, j := idx[a], idx[b]
		for ki := range keys {
			c := document.Compare(keyAt(ki, i), keyAt(ki, j))
			if keys[ki].desc {
				c = -c
			}
			if c != 0 {
				return c < 0
			}
		}
		return false
	})
	ordered := make([]Row, len(p.rows))
	for i, j := range idx {
		ordered[i] = p.rows[j]
	}
	p.rows = ordered
}

// Skip drops the first n rows (negative treated as zero).
func (p *Pipeline) Skip(n int) *Pipeline {
	p.applySort()
	if p.err != nil {
		return p
	}
	if n < 0 {
		n = 0
	}
	if n > len(p.rows) {
		n = len(p.rows)
	}
	p.rows = p.rows[n:]
	return p
}

// Take keeps only the first n rows (negative treated as zero).
func (p *Pipeline) Take(n int) *Pipeline {
	p.applySort()
	if p.err != nil {
		return p
	}
	if n < 0 {
		n = 0
	}
	if n > len(p.rows) {
		n = len(p.rows)
	}
	p.rows = p.rows[:n]
	return p
}

// SkipExpr and TakeExpr materialize a non-constant Skip/Take count by
// evaluating it once against an empty document, logged whenever the
// count isn't a literal constant.
func (p *Pipeline) SkipExpr(count qeir.Node) *Pipeline {
	n, err := materializeCount(count)
	if err != nil {
		return p.fail(err)
	}
	return p.Skip(n)
}

func (p *Pipeline) TakeExpr(count qeir.Node) *Pipeline {
	n, err := materializeCount(count)
	if err != nil {
		return p.fail(err)
	}
	return p.Take(n)
}

func materializeCount(count qeir.Node) (int, error) {
	if _, isConst := count.(*qeir.Constant); !isConst {
		log.WithField("expr", count).Info("materializing non-constant skip/take count via the evaluator")
	}
	v, err := eval.Evaluate(count, document.New())
	if err != nil {
		return 0, err
	}
	if v.IsNull() {
		return 0, nil
	}
	f, _ := v.AsFloat64()
	return int(f), nil
}

// Distinct removes rows whose projected value structurally duplicates
// one already kept.
func (p *Pipeline) Distinct() *Pipeline {
	p.applySort()
	if p.err != nil {
		return p
	}
	var seen []document.Value
	kept := p.rows[:0:0]
	for _, r := range p.rows {
		v := rowValue(r.Doc)
		dup := false
		for _, s := range seen {
			if valuesEqual(v, s) {
				dup = true
				break
			}
		}
		if !dup {
			seen = append(seen, v)
			kept = append(kept, r)
		}
	}
	p.rows = kept
	return p
}
