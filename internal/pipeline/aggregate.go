package pipeline

import (
	"github.com/joeandaverde/tinydb/internal/document"
	"github.com/joeandaverde/tinydb/internal/eval"
	"github.com/joeandaverde/tinydb/internal/qeir"
)

// Group is one (key, members) partition produced by GroupBy. Null is a
// valid key, grouping every row whose key expression evaluates to null.
type Group struct {
	Key  document.Value
	Rows []Row
}

// GroupBy partitions the pipeline's rows by key's evaluated value,
// using the same structural equality Distinct uses, and materializes
// the full partition set: a truly lazy group sequence would still have
// to buffer every row whose group isn't yet known to be complete, so
// nothing is gained by deferring here.
func (p *Pipeline) GroupBy(key qeir.Node) ([]Group, error) {
	p.applySort()
	if p.err != nil {
		return nil, p.err
	}
	var groups []Group
	for _, r := range p.rows {
		v, err := eval.Evaluate(key, r.Doc)
		if err != nil {
			return nil, err
		}
		placed := false
		for i := range groups {
			if valuesEqual(groups[i].Key, v) {
				groups[i].Rows = append(groups[i].Rows, r)
				placed = true
				break
			}
		}
		if !placed {
			groups = append(groups, Group{Key: v, Rows: []Row{r}})
		}
	}
	return groups, nil
}

func valuesFor(rows []Row, selector qeir.Node) ([]document.Value, error) {
	out := make([]document.Value, len(rows))
	for i, r := range rows {
		if selector == nil {
			out[i] = rowValue(r.Doc)
			continue
		}
		v, err := eval.Evaluate(selector, r.Doc)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// Sum adds selector's numeric values across rows, ignoring non-numeric
// and null results; an input with no numeric contribution sums to 0.
func Sum(rows []Row, selector qeir.Node) (document.Value, error) {
	values, err := valuesFor(rows, selector)
	if err != nil {
		return document.Null, err
	}
	var sum float64
	any := false
	for _, v := range values {
		f, ok := v.AsFloat64()
		if !ok {
			continue
		}
		sum += f
		any = true
	}
	if !any {
		return document.NewInt32(0), nil
	}
	return document.NewDouble(sum), nil
}

// Average mirrors Sum but divides by the numeric count; by the
// specification's documented convention an empty (or all-non-numeric)
// input averages to 0, not null.
func Average(rows []Row, selector qeir.Node) (document.Value, error) {
	values, err := valuesFor(rows, selector)
	if err != nil {
		return document.Null, err
	}
	var sum float64
	count := 0
	for _, v := range values {
		f, ok := v.AsFloat64()
		if !ok {
			continue
		}
		sum += f
		count++
	}
	if count == 0 {
		return document.NewInt32(0), nil
	}
	return document.NewDouble(sum / float64(count)), nil
}

// Min and Max report null over an empty input, there being no element
// to report, unlike Sum/Average's zero convention.
func Min(rows []Row, selector qeir.Node) (document.Value, error) {
	return extreme(rows, selector, true)
}

func Max(rows []Row, selector qeir.Node) (document.Value, error) {
	return extreme(rows, selector, false)
}

func extreme(rows []Row, selector qeir.Node, wantMin bool) (document.Value, error) {
	values, err := valuesFor(rows, selector)
	if err != nil {
		return document.Null, err
	}
	var best document.Value
	found := false
	for _, v := range values {
		if v.IsNull() {
			continue
		}
		if !found {
			best = v
			found = true
			continue
		}
		c := document.Compare(v, best)
		if (wantMin && c < 0) || (!wantMin && c > 0) {
			best = v
		}
	}
	if !found {
		return document.Null, nil
	}
	return best, nil
}

// Count and LongCount differ only in result width (int32 vs int64).
func Count(rows []Row) int32 { return int32(len(rows)) }

func LongCount(rows []Row) int64 { return int64(len(rows)) }
