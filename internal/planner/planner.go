// Package planner chooses how a predicate over a collection should be
// executed: a primary-key point lookup, a prefix/range scan over a
// secondary index, or a full collection scan with in-memory filtering.
// It never touches storage itself — it only inspects the catalog's
// index descriptors and produces an ExecutionPlan for the pipeline to
// carry out.
package planner

import (
	"github.com/joeandaverde/tinydb/internal/catalog"
	"github.com/joeandaverde/tinydb/internal/document"
	"github.com/joeandaverde/tinydb/internal/qeir"
	"github.com/joeandaverde/tinydb/internal/tinyerr"
)

// Strategy names the access path an ExecutionPlan chose.
type Strategy int

const (
	FullTableScan Strategy = iota
	PrimaryKeyLookup
	IndexScan
)

func (s Strategy) String() string {
	switch s {
	case PrimaryKeyLookup:
		return "primary_key_lookup"
	case IndexScan:
		return "index_scan"
	default:
		return "full_table_scan"
	}
}

// Comparison is the operator an IndexScanKey applies against the
// index's stored key component.
type Comparison int

const (
	Equal Comparison = iota
	Less
	LessEq
	Greater
	GreaterEq
)

// IndexScanKey is one absorbed equality or range atom, in the order
// its field appears in the chosen index.
type IndexScanKey struct {
	Field string
	Value document.Value
	Op    Comparison
}

// ExecutionPlan is the planner's decision: an access path plus
// whatever part of the predicate that path could not absorb.
type ExecutionPlan struct {
	Strategy       Strategy
	Index          *catalog.IndexDescriptor // nil unless Strategy == IndexScan
	Keys           []IndexScanKey
	EstimatedCost  float64
	EstimatedCount uint64
	Residual       qeir.Node // nil when the access path fully satisfies the predicate
}

// atom is one decomposed `field op constant` comparison, keeping the
// original node so an unconsumed atom can be folded back into the
// residual predicate unchanged.
type atom struct {
	field string
	op    Comparison
	value document.Value
	node  qeir.Node
}

// Plan decomposes predicate into equality and range atoms, picks the
// access path per the extraction rules, and returns what remains to be
// filtered in memory.
func Plan(cat *catalog.Catalog, collection string, predicate qeir.Node) (*ExecutionPlan, error) {
	desc, ok := cat.Get(collection)
	if !ok {
		return nil, tinyerr.New(tinyerr.NotFound, "collection not found: "+collection)
	}

	if predicate == nil {
		return &ExecutionPlan{Strategy: FullTableScan, EstimatedCost: 1}, nil
	}

	atoms, nonAtomic := decompose(predicate)
	if atoms == nil {
		// Parse failure: nothing recognizable decomposed out of the
		// predicate at all.
		return &ExecutionPlan{Strategy: FullTableScan, EstimatedCost: 1, Residual: predicate}, nil
	}

	equality := map[string]atom{}
	rangeByField := map[string]atom{}
	var extra []qeir.Node
	for _, a := range atoms {
		if a.op == Equal {
			if _, exists := equality[a.field]; exists {
				extra = append(extra, a.node)
				continue
			}
			equality[a.field] = a
			continue
		}
		if _, exists := rangeByField[a.field]; exists {
			extra = append(extra, a.node)
			continue
		}
		rangeByField[a.field] = a
	}

	consumed := map[string]map[Comparison]bool{}
	mark := func(field string, op Comparison) {
		if consumed[field] == nil {
			consumed[field] = map[Comparison]bool{}
		}
		consumed[field][op] = true
	}

	if eq, ok := equality[desc.IDField]; ok {
		mark(desc.IDField, Equal)
		plan := &ExecutionPlan{
			Strategy:      PrimaryKeyLookup,
			Keys:          []IndexScanKey{{Field: desc.IDField, Value: eq.value, Op: Equal}},
			EstimatedCost: 1,
		}
		plan.Residual = residual(atoms, consumed, extra, nonAtomic)
		return plan, nil
	}

	var best *catalog.IndexDescriptor
	var bestKeys []IndexScanKey
	for i := range desc.Indexes {
		idx := &desc.Indexes[i]
		keys, ok := usablePrefix(idx, equality, rangeByField)
		if !ok {
			continue
		}
		if best == nil || preferIndex(idx, keys, best, bestKeys) {
			best = idx
			bestKeys = keys
		}
	}

	if best == nil {
		return &ExecutionPlan{Strategy: FullTableScan, EstimatedCost: 1, Residual: predicate}, nil
	}

	for _, k := range bestKeys {
		mark(k.Field, k.Op)
	}
	plan := &ExecutionPlan{
		Strategy:      IndexScan,
		Index:         best,
		Keys:          bestKeys,
		EstimatedCost: 1 / float64(len(bestKeys)+1),
	}
	plan.Residual = residual(atoms, consumed, extra, nonAtomic)
	return plan, nil
}

// usablePrefix walks idx's fields in order, consuming an equality atom
// for each, stopping at (and including) the first field covered only
// by a range atom, and stopping (excluding) at the first field covered
// by neither.
func usablePrefix(idx *catalog.IndexDescriptor, equality, ranges map[string]atom) ([]IndexScanKey, bool) {
	var keys []IndexScanKey
	for _, field := range idx.Fields {
		if eq, ok := equality[field]; ok {
			keys = append(keys, IndexScanKey{Field: field, Value: eq.value, Op: Equal})
			continue
		}
		if r, ok := ranges[field]; ok {
			keys = append(keys, IndexScanKey{Field: field, Value: r.value, Op: r.op})
		}
		break
	}
	if len(keys) == 0 {
		return nil, false
	}
	return keys, true
}

// preferIndex ranks candidate over current by usable prefix length,
// then unique-over-non-unique. Without maintained cardinality
// statistics the "fewer entries" tiebreak cannot be evaluated, so ties
// keep whichever index the catalog lists first — a stated limitation,
// not a silent approximation.
func preferIndex(candidate *catalog.IndexDescriptor, candidateKeys []IndexScanKey, current *catalog.IndexDescriptor, currentKeys []IndexScanKey) bool {
	if len(candidateKeys) != len(currentKeys) {
		return len(candidateKeys) > len(currentKeys)
	}
	if candidate.Unique != current.Unique {
		return candidate.Unique
	}
	return false
}

// residual rebuilds the conjunction of every atom (and non-atomic
// fragment) the chosen access path did not absorb.
func residual(atoms []atom, consumed map[string]map[Comparison]bool, extra []qeir.Node, nonAtomic qeir.Node) qeir.Node {
	result := nonAtomic
	for _, a := range atoms {
		if consumed[a.field] != nil && consumed[a.field][a.op] {
			continue
		}
		result = and(result, a.node)
	}
	for _, n := range extra {
		result = and(result, n)
	}
	return result
}

func and(a, b qeir.Node) qeir.Node {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return &qeir.Binary{Op: qeir.And, Left: a, Right: b}
}

// decompose splits predicate into a conjunction's atomic comparisons
// plus whatever isn't an atomic `field op constant` comparison. A nil
// atoms slice (as opposed to an empty one) signals that nothing at all
// could be decomposed.
func decompose(n qeir.Node) (atoms []atom, nonAtomic qeir.Node) {
	if b, ok := n.(*qeir.Binary); ok && b.Op == qeir.And {
		la, lr := decompose(b.Left)
		ra, rr := decompose(b.Right)
		return append(la, ra...), and(lr, rr)
	}
	if a, ok := asAtom(n); ok {
		return []atom{a}, nil
	}
	return nil, n
}

func asAtom(n qeir.Node) (atom, bool) {
	b, ok := n.(*qeir.Binary)
	if !ok {
		return atom{}, false
	}
	var cmp Comparison
	switch b.Op {
	case qeir.Equal:
		cmp = Equal
	case qeir.Less:
		cmp = Less
	case qeir.LessEq:
		cmp = LessEq
	case qeir.Greater:
		cmp = Greater
	case qeir.GreaterEq:
		cmp = GreaterEq
	default:
		return atom{}, false
	}

	if field, value, ok := fieldConstant(b.Left, b.Right); ok {
		return atom{field: field, op: cmp, value: value, node: n}, true
	}
	if field, value, ok := fieldConstant(b.Right, b.Left); ok {
		return atom{field: field, op: flip(cmp), value: value, node: n}, true
	}
	return atom{}, false
}

func fieldConstant(memberSide, constantSide qeir.Node) (string, document.Value, bool) {
	c, ok := constantSide.(*qeir.Constant)
	if !ok {
		return "", document.Value{}, false
	}
	path, ok := memberPath(memberSide)
	if !ok {
		return "", document.Value{}, false
	}
	return path, c.Value, true
}

// memberPath renders a (possibly nested) Member chain as the same
// dot-joined path internal/index uses for its field lists.
func memberPath(n qeir.Node) (string, bool) {
	m, ok := n.(*qeir.Member)
	if !ok {
		return "", false
	}
	if m.Inner == nil {
		return m.Name, true
	}
	prefix, ok := memberPath(m.Inner)
	if !ok {
		return "", false
	}
	return prefix + "." + m.Name, true
}

func flip(c Comparison) Comparison {
	switch c {
	case Less:
		return Greater
	case LessEq:
		return GreaterEq
	case Greater:
		return Less
	case GreaterEq:
		return LessEq
	default:
		return c
	}
}
