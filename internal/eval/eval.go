// Package eval implements the pure expression evaluator: a tree walk
// over qeir.Node producing a document.Value for a given record. The
// evaluator never mutates the record and never touches storage; it is
// the shared core the pipeline and planner both call to test
// predicates and compute projections.
package eval

import (
	"github.com/joeandaverde/tinydb/internal/document"
	"github.com/joeandaverde/tinydb/internal/qeir"
	"github.com/joeandaverde/tinydb/internal/tinyerr"
)

// Evaluate walks expr against record, switching on node kind.
func Evaluate(expr qeir.Node, record *document.Document) (document.Value, error) {
	switch n := expr.(type) {
	case *qeir.Constant:
		return n.Value, nil

	case *qeir.Parameter:
		return document.NewDocument(record), nil

	case *qeir.Member:
		base, err := memberBase(n, record)
		if err != nil {
			return document.Null, err
		}
		return evalMember(base, n.Name)

	case *qeir.Unary:
		return evalUnary(n, record)

	case *qeir.Binary:
		return evalBinary(n, record)

	case *qeir.Function:
		return evalFunction(n, record)

	case *qeir.Conditional:
		test, err := Evaluate(n.Test, record)
		if err != nil {
			return document.Null, err
		}
		if isFalsy(test) {
			return Evaluate(n.IfFalse, record)
		}
		return Evaluate(n.IfTrue, record)

	case *qeir.Constructor:
		return evalConstructor(n, record)

	case *qeir.MemberInit:
		return evalMemberInit(n, record)

	default:
		return document.Null, tinyerr.New(tinyerr.Unsupported, "unknown expression node")
	}
}

func memberBase(n *qeir.Member, record *document.Document) (document.Value, error) {
	if n.Inner == nil {
		return document.NewDocument(record), nil
	}
	return Evaluate(n.Inner, record)
}

func isFalsy(v document.Value) bool {
	if v.IsNull() {
		return true
	}
	b, ok := v.AsBool()
	return ok && !b
}

func evalUnary(n *qeir.Unary, record *document.Document) (document.Value, error) {
	switch n.Op {
	case qeir.Not:
		v, err := Evaluate(n.Operand, record)
		if err != nil {
			return document.Null, err
		}
		if v.IsNull() {
			return document.Null, nil
		}
		b, ok := v.AsBool()
		if !ok {
			return document.Null, tinyerr.New(tinyerr.BadArgument, "Not requires a boolean operand")
		}
		return document.NewBool(!b), nil

	case qeir.ArrayLength:
		v, err := Evaluate(n.Operand, record)
		if err != nil {
			return document.Null, err
		}
		if v.IsNull() {
			return document.Null, nil
		}
		arr, ok := v.AsArray()
		if !ok {
			return document.Null, tinyerr.New(tinyerr.BadArgument, "ArrayLength requires an array operand")
		}
		return document.NewInt32(int32(len(arr))), nil

	case qeir.Convert:
		v, err := Evaluate(n.Operand, record)
		if err != nil {
			return document.Null, err
		}
		return convert(v, n.ConvertTo)

	default:
		return document.Null, tinyerr.New(tinyerr.Unsupported, "unknown unary operator")
	}
}

func evalBinary(n *qeir.Binary, record *document.Document) (document.Value, error) {
	switch n.Op {
	case qeir.And:
		lv, err := Evaluate(n.Left, record)
		if err != nil {
			return document.Null, err
		}
		if isFalsy(lv) {
			return lv, nil
		}
		return Evaluate(n.Right, record)

	case qeir.Or:
		lv, err := Evaluate(n.Left, record)
		if err != nil {
			return document.Null, err
		}
		if !isFalsy(lv) {
			return lv, nil
		}
		return Evaluate(n.Right, record)
	}

	lv, err := Evaluate(n.Left, record)
	if err != nil {
		return document.Null, err
	}
	rv, err := Evaluate(n.Right, record)
	if err != nil {
		return document.Null, err
	}

	switch n.Op {
	case qeir.Add, qeir.Subtract, qeir.Multiply, qeir.Divide:
		return arithmetic(n.Op, lv, rv)
	case qeir.Equal, qeir.NotEqual, qeir.Less, qeir.LessEq, qeir.Greater, qeir.GreaterEq:
		return compareOp(n.Op, lv, rv)
	default:
		return document.Null, tinyerr.New(tinyerr.Unsupported, "unknown binary operator")
	}
}

// convert performs a value-preserving conversion where one exists
// (e.g. int32 -> int64 -> double, or numeric -> string rendering) and
// errors otherwise.
func convert(v document.Value, to document.Kind) (document.Value, error) {
	if v.IsNull() {
		return document.Null, nil
	}
	if v.Kind() == to {
		return v, nil
	}
	switch to {
	case document.KindDouble:
		f, ok := v.AsFloat64()
		if !ok {
			return document.Null, tinyerr.New(tinyerr.BadArgument, "cannot convert to double")
		}
		return document.NewDouble(f), nil
	case document.KindInt64:
		if i, ok := v.AsInt32(); ok {
			return document.NewInt64(int64(i)), nil
		}
		return document.Null, tinyerr.New(tinyerr.BadArgument, "cannot convert to int64")
	case document.KindString:
		return document.NewString(v.String()), nil
	default:
		return document.Null, tinyerr.New(tinyerr.Unsupported, "unsupported conversion target")
	}
}
