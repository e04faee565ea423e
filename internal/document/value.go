// Package document implements TinyDb's value universe and document model:
// a tagged union of scalars, arrays, nested documents, and the
// self-delimiting binary codec used to persist them.
package document

import (
	"fmt"
	"time"

	"github.com/joeandaverde/tinydb/internal/oid"
)

// Kind tags the variant a Value holds. Categories used for cross-type
// ordering are assigned in rank order below:
// null < number < string < binary < datetime < object-id < boolean < array < document.
type Kind uint8

const (
	KindNull Kind = iota
	KindInt32
	KindInt64
	KindDouble
	KindDecimal128
	KindString
	KindBinary
	KindDateTime
	KindObjectID
	KindBool
	KindArray
	KindDocument
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindInt32:
		return "int32"
	case KindInt64:
		return "int64"
	case KindDouble:
		return "double"
	case KindDecimal128:
		return "decimal128"
	case KindString:
		return "string"
	case KindBinary:
		return "binary"
	case KindDateTime:
		return "datetime"
	case KindObjectID:
		return "objectId"
	case KindBool:
		return "bool"
	case KindArray:
		return "array"
	case KindDocument:
		return "document"
	default:
		return "unknown"
	}
}

// categoryRank returns the stable rank used to order values of
// incompatible categories. All numeric kinds share a
// single rank since they promote against one another.
func categoryRank(k Kind) int {
	switch k {
	case KindNull:
		return 0
	case KindInt32, KindInt64, KindDouble, KindDecimal128:
		return 1
	case KindString:
		return 2
	case KindBinary:
		return 3
	case KindDateTime:
		return 4
	case KindObjectID:
		return 5
	case KindBool:
		return 6
	case KindArray:
		return 7
	case KindDocument:
		return 8
	default:
		return 9
	}
}

// Decimal128 is a minimal software decimal: a 128-bit-shaped
// (coefficient, exponent, sign) triple. Arithmetic beyond comparison and
// promotion to/from the other numeric kinds is not otherwise needed.
type Decimal128 struct {
	Coefficient uint64
	Exponent    int16
	Negative    bool
}

// Float64 renders the decimal as the nearest float64, used for
// promotion/ordering against other numeric kinds.
func (d Decimal128) Float64() float64 {
	v := float64(d.Coefficient)
	for i := int16(0); i < d.Exponent; i++ {
		v *= 10
	}
	for i := int16(0); i > d.Exponent; i-- {
		v /= 10
	}
	if d.Negative {
		v = -v
	}
	return v
}

// DecimalFromFloat64 builds a Decimal128 approximation of f, rounded to
// a fixed number of decimal digits. Used only for numeric-equality
// promotion, not for display formatting.
func DecimalFromFloat64(f float64) Decimal128 {
	const scale = 1_000_000
	neg := f < 0
	if neg {
		f = -f
	}
	return Decimal128{
		Coefficient: uint64(f*scale + 0.5),
		Exponent:    -6,
		Negative:    neg,
	}
}

// Value is a tagged union over the document value universe.
type Value struct {
	kind Kind
	raw  interface{}
}

func (v Value) Kind() Kind { return v.kind }
func (v Value) IsNull() bool { return v.kind == KindNull }

// Null is the singular null value.
var Null = Value{kind: KindNull}

func NewBool(b bool) Value             { return Value{kind: KindBool, raw: b} }
func NewInt32(i int32) Value           { return Value{kind: KindInt32, raw: i} }
func NewInt64(i int64) Value           { return Value{kind: KindInt64, raw: i} }
func NewDouble(f float64) Value        { return Value{kind: KindDouble, raw: f} }
func NewDecimal128(d Decimal128) Value { return Value{kind: KindDecimal128, raw: d} }
func NewString(s string) Value         { return Value{kind: KindString, raw: s} }
func NewBinary(b []byte) Value         { return Value{kind: KindBinary, raw: append([]byte(nil), b...)} }
func NewDateTime(t time.Time) Value    { return Value{kind: KindDateTime, raw: t.UTC()} }
func NewObjectID(id oid.ID) Value      { return Value{kind: KindObjectID, raw: id} }
func NewArray(items []Value) Value     { return Value{kind: KindArray, raw: items} }
func NewDocument(d *Document) Value    { return Value{kind: KindDocument, raw: d} }

func (v Value) AsBool() (bool, bool)            { b, ok := v.raw.(bool); return b, ok }
func (v Value) AsInt32() (int32, bool)          { i, ok := v.raw.(int32); return i, ok }
func (v Value) AsInt64() (int64, bool)          { i, ok := v.raw.(int64); return i, ok }
func (v Value) AsDouble() (float64, bool)       { f, ok := v.raw.(float64); return f, ok }
func (v Value) AsDecimal128() (Decimal128, bool) { d, ok := v.raw.(Decimal128); return d, ok }
func (v Value) AsString() (string, bool)        { s, ok := v.raw.(string); return s, ok }
func (v Value) AsBinary() ([]byte, bool)        { b, ok := v.raw.([]byte); return b, ok }
func (v Value) AsDateTime() (time.Time, bool)   { t, ok := v.raw.(time.Time); return t, ok }
func (v Value) AsObjectID() (oid.ID, bool)      { id, ok := v.raw.(oid.ID); return id, ok }
func (v Value) AsArray() ([]Value, bool)        { a, ok := v.raw.([]Value); return a, ok }
func (v Value) AsDocument() (*Document, bool)   { d, ok := v.raw.(*Document); return d, ok }

// IsNumeric reports whether the value is one of the four promotable
// numeric kinds.
func (v Value) IsNumeric() bool {
	switch v.kind {
	case KindInt32, KindInt64, KindDouble, KindDecimal128:
		return true
	default:
		return false
	}
}

// AsFloat64 widens any numeric kind to float64, used throughout ordering
// and promotion.
func (v Value) AsFloat64() (float64, bool) {
	switch v.kind {
	case KindInt32:
		return float64(v.raw.(int32)), true
	case KindInt64:
		return float64(v.raw.(int64)), true
	case KindDouble:
		return v.raw.(float64), true
	case KindDecimal128:
		return v.raw.(Decimal128).Float64(), true
	default:
		return 0, false
	}
}

// String renders a value for display and for the evaluator's
// last-resort string-comparison fallback.
func (v Value) String() string {
	switch v.kind {
	case KindNull:
		return ""
	case KindBool:
		b, _ := v.AsBool()
		return fmt.Sprintf("%t", b)
	case KindInt32:
		i, _ := v.AsInt32()
		return fmt.Sprintf("%d", i)
	case KindInt64:
		i, _ := v.AsInt64()
		return fmt.Sprintf("%d", i)
	case KindDouble:
		f, _ := v.AsDouble()
		return fmt.Sprintf("%v", f)
	case KindDecimal128:
		d, _ := v.AsDecimal128()
		return fmt.Sprintf("%v", d.Float64())
	case KindString:
		s, _ := v.AsString()
		return s
	case KindBinary:
		b, _ := v.AsBinary()
		return fmt.Sprintf("%x", b)
	case KindDateTime:
		t, _ := v.AsDateTime()
		return t.Format(time.RFC3339Nano)
	case KindObjectID:
		id, _ := v.AsObjectID()
		return id.String()
	case KindArray:
		a, _ := v.AsArray()
		return fmt.Sprintf("%v", a)
	case KindDocument:
		d, _ := v.AsDocument()
		return fmt.Sprintf("%v", d)
	default:
		return ""
	}
}

// Equal reports value-equality for comparisons, applying the same
// numeric promotion rule as ordering.
func (v Value) Equal(other Value) bool {
	return Compare(v, other) == 0
}

// Compare implements the index key component ordering:
// null < non-null; incompatible categories order by category rank;
// numeric kinds promote and compare as their widened float64 value;
// strings compare byte-wise; binary compares by length then bytes;
// datetime by tick; object-id by its 12 bytes.
func Compare(a, b Value) int {
	if a.kind == KindNull && b.kind == KindNull {
		return 0
	}
	if a.kind == KindNull {
		return -1
	}
	if b.kind == KindNull {
		return 1
	}

	if a.IsNumeric() && b.IsNumeric() {
		af, _ := a.AsFloat64()
		bf, _ := b.AsFloat64()
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		default:
			return 0
		}
	}

	ra, rb := categoryRank(a.kind), categoryRank(b.kind)
	if ra != rb {
		if ra < rb {
			return -1
		}
		return 1
	}

	switch a.kind {
	case KindString:
		as, _ := a.AsString()
		bs, _ := b.AsString()
		return compareStrings(as, bs)
	case KindBinary:
		ab, _ := a.AsBinary()
		bb, _ := b.AsBinary()
		return compareBinary(ab, bb)
	case KindDateTime:
		at, _ := a.AsDateTime()
		bt, _ := b.AsDateTime()
		switch {
		case at.Before(bt):
			return -1
		case at.After(bt):
			return 1
		default:
			return 0
		}
	case KindObjectID:
		aid, _ := a.AsObjectID()
		bid, _ := b.AsObjectID()
		return aid.Compare(bid)
	case KindBool:
		ab, _ := a.AsBool()
		bb, _ := b.AsBool()
		if ab == bb {
			return 0
		}
		if !ab {
			return -1
		}
		return 1
	case KindArray:
		aa, _ := a.AsArray()
		ba, _ := b.AsArray()
		return compareArrays(aa, ba)
	case KindDocument:
		// Documents have no defined total order beyond identity; treat
		// as equal only when they are the same pointer.
		ad, _ := a.AsDocument()
		bd, _ := b.AsDocument()
		if ad == bd {
			return 0
		}
		return compareStrings(fmt.Sprintf("%p", ad), fmt.Sprintf("%p", bd))
	default:
		return 0
	}
}

func compareStrings(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func compareBinary(a, b []byte) int {
	if len(a) != len(b) {
		if len(a) < len(b) {
			return -1
		}
		return 1
	}
	for i := range a {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}

func compareArrays(a, b []Value) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if c := Compare(a[i], b[i]); c != 0 {
			return c
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	default:
		return 0
	}
}
