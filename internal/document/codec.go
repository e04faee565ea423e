package document

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"time"

	"github.com/joeandaverde/tinydb/internal/oid"
)

// typeTag identifies the on-wire encoding of a field's value. Distinct
// from Kind so the wire format can evolve independently of the in-memory
// representation.
type typeTag byte

const (
	tagNull typeTag = iota
	tagBool
	tagInt32
	tagInt64
	tagDouble
	tagDecimal128
	tagString
	tagBinary
	tagDateTime
	tagObjectID
	tagArray
	tagDocument
)

func tagFor(k Kind) typeTag {
	switch k {
	case KindNull:
		return tagNull
	case KindBool:
		return tagBool
	case KindInt32:
		return tagInt32
	case KindInt64:
		return tagInt64
	case KindDouble:
		return tagDouble
	case KindDecimal128:
		return tagDecimal128
	case KindString:
		return tagString
	case KindBinary:
		return tagBinary
	case KindDateTime:
		return tagDateTime
	case KindObjectID:
		return tagObjectID
	case KindArray:
		return tagArray
	case KindDocument:
		return tagDocument
	default:
		panic(fmt.Sprintf("document: unknown kind %v", k))
	}
}

// writeVarint writes v as a base-128 varint, most significant group
// first, continuation bit set on every byte but the last. Adapted from
// the storage package's on-disk record varint encoding.
func writeVarint(w io.ByteWriter, v uint64) error {
	var stack [10]byte
	n := 0
	for {
		stack[n] = byte(v & 0x7f)
		v >>= 7
		n++
		if v == 0 {
			break
		}
	}
	for i := n - 1; i >= 0; i-- {
		b := stack[i]
		if i > 0 {
			b |= 0x80
		}
		if err := w.WriteByte(b); err != nil {
			return err
		}
	}
	return nil
}

func readVarint(r io.ByteReader) (uint64, error) {
	var x uint64
	for {
		b, err := r.ReadByte()
		if err != nil {
			return 0, err
		}
		x = x<<7 | uint64(b&0x7f)
		if b&0x80 == 0 {
			break
		}
	}
	return x, nil
}

// Marshal serializes a document into its self-delimiting binary
// representation. deserialize∘serialize is the identity, except that a
// DateTime is stored as whole microseconds since the Unix epoch in UTC:
// a finer fraction of a second and the original location are not kept.
func Marshal(d *Document) ([]byte, error) {
	buf := &bytes.Buffer{}
	if err := writeDocument(buf, d); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Unmarshal parses bytes produced by Marshal back into a Document.
func Unmarshal(data []byte) (*Document, error) {
	r := bytes.NewReader(data)
	return readDocument(r)
}

func writeDocument(w *bytes.Buffer, d *Document) error {
	if err := writeVarint(w, uint64(d.Len())); err != nil {
		return err
	}
	for _, f := range d.Fields() {
		if err := writeVarint(w, uint64(len(f.Name))); err != nil {
			return err
		}
		if _, err := w.WriteString(f.Name); err != nil {
			return err
		}
		if err := writeValue(w, f.Value); err != nil {
			return err
		}
	}
	return nil
}

func readDocument(r *bytes.Reader) (*Document, error) {
	count, err := readVarint(r)
	if err != nil {
		return nil, err
	}
	d := New()
	for i := uint64(0); i < count; i++ {
		nameLen, err := readVarint(r)
		if err != nil {
			return nil, err
		}
		nameBytes := make([]byte, nameLen)
		if _, err := io.ReadFull(r, nameBytes); err != nil {
			return nil, err
		}
		v, err := readValue(r)
		if err != nil {
			return nil, err
		}
		d.Set(string(nameBytes), v)
	}
	return d, nil
}

// MarshalValue encodes a single value using the same on-wire tagging as
// document fields, for callers (e.g. the index manager) that need to
// serialize bare values rather than whole documents.
func MarshalValue(v Value) ([]byte, error) {
	buf := &bytes.Buffer{}
	if err := writeValue(buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// UnmarshalValue decodes a value written by MarshalValue, returning the
// number of bytes consumed so callers can decode a sequence of values
// packed back to back.
func UnmarshalValue(data []byte) (Value, int, error) {
	r := bytes.NewReader(data)
	v, err := readValue(r)
	if err != nil {
		return Null, 0, err
	}
	return v, len(data) - r.Len(), nil
}

func writeValue(w *bytes.Buffer, v Value) error {
	tag := tagFor(v.Kind())
	if err := w.WriteByte(byte(tag)); err != nil {
		return err
	}

	switch tag {
	case tagNull:
		return nil
	case tagBool:
		b, _ := v.AsBool()
		if b {
			return w.WriteByte(1)
		}
		return w.WriteByte(0)
	case tagInt32:
		i, _ := v.AsInt32()
		return binary.Write(w, binary.BigEndian, i)
	case tagInt64:
		i, _ := v.AsInt64()
		return binary.Write(w, binary.BigEndian, i)
	case tagDouble:
		f, _ := v.AsDouble()
		return binary.Write(w, binary.BigEndian, f)
	case tagDecimal128:
		dec, _ := v.AsDecimal128()
		if err := binary.Write(w, binary.BigEndian, dec.Coefficient); err != nil {
			return err
		}
		if err := binary.Write(w, binary.BigEndian, dec.Exponent); err != nil {
			return err
		}
		neg := byte(0)
		if dec.Negative {
			neg = 1
		}
		return w.WriteByte(neg)
	case tagString:
		s, _ := v.AsString()
		if err := writeVarint(w, uint64(len(s))); err != nil {
			return err
		}
		_, err := w.WriteString(s)
		return err
	case tagBinary:
		b, _ := v.AsBinary()
		if err := writeVarint(w, uint64(len(b))); err != nil {
			return err
		}
		_, err := w.Write(b)
		return err
	case tagDateTime:
		t, _ := v.AsDateTime()
		return binary.Write(w, binary.BigEndian, t.UnixMicro())
	case tagObjectID:
		id, _ := v.AsObjectID()
		_, err := w.Write(id[:])
		return err
	case tagArray:
		a, _ := v.AsArray()
		if err := writeVarint(w, uint64(len(a))); err != nil {
			return err
		}
		for _, item := range a {
			if err := writeValue(w, item); err != nil {
				return err
			}
		}
		return nil
	case tagDocument:
		inner, _ := v.AsDocument()
		return writeDocument(w, inner)
	default:
		return fmt.Errorf("document: unsupported tag %v", tag)
	}
}

func readValue(r *bytes.Reader) (Value, error) {
	tagByte, err := r.ReadByte()
	if err != nil {
		return Null, err
	}
	tag := typeTag(tagByte)

	switch tag {
	case tagNull:
		return Null, nil
	case tagBool:
		b, err := r.ReadByte()
		if err != nil {
			return Null, err
		}
		return NewBool(b != 0), nil
	case tagInt32:
		var i int32
		if err := binary.Read(r, binary.BigEndian, &i); err != nil {
			return Null, err
		}
		return NewInt32(i), nil
	case tagInt64:
		var i int64
		if err := binary.Read(r, binary.BigEndian, &i); err != nil {
			return Null, err
		}
		return NewInt64(i), nil
	case tagDouble:
		var f float64
		if err := binary.Read(r, binary.BigEndian, &f); err != nil {
			return Null, err
		}
		return NewDouble(f), nil
	case tagDecimal128:
		var dec Decimal128
		if err := binary.Read(r, binary.BigEndian, &dec.Coefficient); err != nil {
			return Null, err
		}
		if err := binary.Read(r, binary.BigEndian, &dec.Exponent); err != nil {
			return Null, err
		}
		neg, err := r.ReadByte()
		if err != nil {
			return Null, err
		}
		dec.Negative = neg != 0
		return NewDecimal128(dec), nil
	case tagString:
		n, err := readVarint(r)
		if err != nil {
			return Null, err
		}
		b := make([]byte, n)
		if _, err := io.ReadFull(r, b); err != nil {
			return Null, err
		}
		return NewString(string(b)), nil
	case tagBinary:
		n, err := readVarint(r)
		if err != nil {
			return Null, err
		}
		b := make([]byte, n)
		if _, err := io.ReadFull(r, b); err != nil {
			return Null, err
		}
		return NewBinary(b), nil
	case tagDateTime:
		var micros int64
		if err := binary.Read(r, binary.BigEndian, &micros); err != nil {
			return Null, err
		}
		return NewDateTime(time.UnixMicro(micros).UTC()), nil
	case tagObjectID:
		var id oid.ID
		if _, err := io.ReadFull(r, id[:]); err != nil {
			return Null, err
		}
		return NewObjectID(id), nil
	case tagArray:
		n, err := readVarint(r)
		if err != nil {
			return Null, err
		}
		items := make([]Value, 0, n)
		for i := uint64(0); i < n; i++ {
			item, err := readValue(r)
			if err != nil {
				return Null, err
			}
			items = append(items, item)
		}
		return NewArray(items), nil
	case tagDocument:
		inner, err := readDocument(r)
		if err != nil {
			return Null, err
		}
		return NewDocument(inner), nil
	default:
		return Null, fmt.Errorf("document: unsupported tag byte %d", tagByte)
	}
}
