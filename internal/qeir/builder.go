package qeir

import "github.com/joeandaverde/tinydb/internal/document"

// Field builds a root-level member access node, the common case callers
// reach for when they assemble a predicate or selector by hand instead
// of going through a parser.
func Field(name string) *Member { return &Member{Name: name} }

// Value builds a literal constant node.
func Value(v document.Value) *Constant { return &Constant{Value: v} }

func binary(op BinaryOp, left, right Node) *Binary { return &Binary{Op: op, Left: left, Right: right} }

// Eq, NotEq, Lt, LtEq, Gt, GtEq build the corresponding comparison.
func Eq(left, right Node) *Binary   { return binary(Equal, left, right) }
func NotEq(left, right Node) *Binary { return binary(NotEqual, left, right) }
func Lt(left, right Node) *Binary   { return binary(Less, left, right) }
func LtEq(left, right Node) *Binary { return binary(LessEq, left, right) }
func Gt(left, right Node) *Binary   { return binary(Greater, left, right) }
func GtEq(left, right Node) *Binary { return binary(GreaterEq, left, right) }

// AndAll folds terms into a left-nested conjunction, skipping nil
// terms; returns nil when no non-nil terms were given.
func AndAll(terms ...Node) Node {
	var result Node
	for _, t := range terms {
		if t == nil {
			continue
		}
		if result == nil {
			result = t
			continue
		}
		result = binary(And, result, t)
	}
	return result
}

// Negate builds a logical negation.
func Negate(operand Node) *Unary { return &Unary{Op: Not, Operand: operand} }
