package index

import (
	"encoding/binary"

	"github.com/joeandaverde/tinydb/internal/document"
	"github.com/joeandaverde/tinydb/internal/tinyerr"
)

// encodeKey serializes a Key as: component_count(u32) |
// [component_length(u32) | component_bytes]*, reusing the document
// package's per-value wire tagging for each component.
func encodeKey(k Key) []byte {
	tmp := make([]byte, 4)
	binary.LittleEndian.PutUint32(tmp, uint32(len(k)))
	buf := append([]byte(nil), tmp...)
	for _, v := range k {
		vb, err := document.MarshalValue(v)
		if err != nil {
			panic("index: unencodable key component: " + err.Error())
		}
		binary.LittleEndian.PutUint32(tmp, uint32(len(vb)))
		buf = append(buf, tmp...)
		buf = append(buf, vb...)
	}
	return buf
}

// decodeKey parses a Key from the head of buf, returning the number of
// bytes consumed so callers can decode a run of keys back to back.
func decodeKey(buf []byte) (Key, int, error) {
	if len(buf) < 4 {
		return nil, 0, tinyerr.New(tinyerr.CorruptDatabase, "index key truncated")
	}
	n := binary.LittleEndian.Uint32(buf[0:4])
	off := 4
	key := make(Key, 0, n)
	for i := uint32(0); i < n; i++ {
		if off+4 > len(buf) {
			return nil, 0, tinyerr.New(tinyerr.CorruptDatabase, "index key truncated")
		}
		vlen := int(binary.LittleEndian.Uint32(buf[off : off+4]))
		off += 4
		if vlen < 0 || off+vlen > len(buf) {
			return nil, 0, tinyerr.New(tinyerr.CorruptDatabase, "index key truncated")
		}
		v, consumed, err := document.UnmarshalValue(buf[off : off+vlen])
		if err != nil {
			return nil, 0, err
		}
		if consumed != vlen {
			return nil, 0, tinyerr.New(tinyerr.CorruptDatabase, "index key component length mismatch")
		}
		key = append(key, v)
		off += vlen
	}
	return key, off, nil
}
