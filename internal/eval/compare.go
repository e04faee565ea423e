package eval

import (
	"strings"

	"github.com/joeandaverde/tinydb/internal/document"
	"github.com/joeandaverde/tinydb/internal/qeir"
)

// compareOp implements the six comparison operators. Either side null
// produces null, matching arithmetic's propagation rule rather than
// collapsing to false.
func compareOp(op qeir.BinaryOp, l, r document.Value) (document.Value, error) {
	if l.IsNull() || r.IsNull() {
		return document.Null, nil
	}
	c := comparePredicate(l, r)
	switch op {
	case qeir.Equal:
		return document.NewBool(c == 0), nil
	case qeir.NotEqual:
		return document.NewBool(c != 0), nil
	case qeir.Less:
		return document.NewBool(c < 0), nil
	case qeir.LessEq:
		return document.NewBool(c <= 0), nil
	case qeir.Greater:
		return document.NewBool(c > 0), nil
	case qeir.GreaterEq:
		return document.NewBool(c >= 0), nil
	default:
		return document.Null, nil
	}
}

// comparePredicate is the evaluator's comparison rule: it agrees with
// document.Compare (and so with index key ordering) whenever both
// sides are numeric or share the same kind. For scalars of
// incompatible categories there is no comparable promotion, and this
// convenience, last-resort rule compares their string rendering
// instead. internal/index never calls this function and never applies
// the fallback.
func comparePredicate(l, r document.Value) int {
	if sameComparisonFamily(l, r) {
		return document.Compare(l, r)
	}
	return strings.Compare(l.String(), r.String())
}

func sameComparisonFamily(l, r document.Value) bool {
	if l.IsNumeric() && r.IsNumeric() {
		return true
	}
	return l.Kind() == r.Kind()
}
