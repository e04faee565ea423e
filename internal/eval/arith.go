package eval

import (
	"math"
	"math/big"

	"github.com/joeandaverde/tinydb/internal/document"
	"github.com/joeandaverde/tinydb/internal/qeir"
	"github.com/joeandaverde/tinydb/internal/tinyerr"
)

// arithmetic implements the numeric promotion ladder: integer-only
// operands whose result fits int32 stay int32; fits int64 but not
// int32 promotes to int64; otherwise the result falls back to double.
// Any decimal128 operand forces a double-precision computation,
// re-wrapped as decimal128. Division by zero yields null rather than
// an error, matching comparison and arithmetic null propagation.
func arithmetic(op qeir.BinaryOp, l, r document.Value) (document.Value, error) {
	if l.IsNull() || r.IsNull() {
		return document.Null, nil
	}
	if !l.IsNumeric() || !r.IsNumeric() {
		return document.Null, tinyerr.New(tinyerr.BadArgument, "arithmetic operands must be numeric")
	}

	if l.Kind() == document.KindDecimal128 || r.Kind() == document.KindDecimal128 {
		lf, _ := l.AsFloat64()
		rf, _ := r.AsFloat64()
		v, err := doubleArith(op, lf, rf)
		if err != nil || v.IsNull() {
			return v, err
		}
		f, _ := v.AsDouble()
		return document.NewDecimal128(document.DecimalFromFloat64(f)), nil
	}

	if l.Kind() == document.KindDouble || r.Kind() == document.KindDouble {
		lf, _ := l.AsFloat64()
		rf, _ := r.AsFloat64()
		return doubleArith(op, lf, rf)
	}

	li, _ := asInt64(l)
	ri, _ := asInt64(r)
	return intArith(op, li, ri)
}

func asInt64(v document.Value) (int64, bool) {
	if i, ok := v.AsInt32(); ok {
		return int64(i), true
	}
	if i, ok := v.AsInt64(); ok {
		return i, true
	}
	return 0, false
}

func doubleArith(op qeir.BinaryOp, l, r float64) (document.Value, error) {
	switch op {
	case qeir.Add:
		return document.NewDouble(l + r), nil
	case qeir.Subtract:
		return document.NewDouble(l - r), nil
	case qeir.Multiply:
		return document.NewDouble(l * r), nil
	case qeir.Divide:
		if r == 0 {
			return document.Null, nil
		}
		return document.NewDouble(l / r), nil
	default:
		return document.Null, tinyerr.New(tinyerr.Unsupported, "unsupported arithmetic operator")
	}
}

func intArith(op qeir.BinaryOp, l, r int64) (document.Value, error) {
	a, b := big.NewInt(l), big.NewInt(r)
	var res *big.Int
	switch op {
	case qeir.Add:
		res = new(big.Int).Add(a, b)
	case qeir.Subtract:
		res = new(big.Int).Sub(a, b)
	case qeir.Multiply:
		res = new(big.Int).Mul(a, b)
	case qeir.Divide:
		if r == 0 {
			return document.Null, nil
		}
		q := new(big.Int).Quo(a, b)
		rem := new(big.Int).Rem(a, b)
		if rem.Sign() != 0 {
			return document.NewDouble(float64(l) / float64(r)), nil
		}
		res = q
	default:
		return document.Null, tinyerr.New(tinyerr.Unsupported, "unsupported arithmetic operator")
	}

	if res.IsInt64() {
		v := res.Int64()
		if v >= math.MinInt32 && v <= math.MaxInt32 {
			return document.NewInt32(int32(v)), nil
		}
		return document.NewInt64(v), nil
	}
	f := new(big.Float).SetInt(res)
	out, _ := f.Float64()
	return document.NewDouble(out), nil
}
