package catalog

import (
	"encoding/binary"

	"github.com/joeandaverde/tinydb/internal/document"
	"github.com/joeandaverde/tinydb/internal/storage"
	"github.com/joeandaverde/tinydb/internal/tinyerr"
)

// encodeCatalog serializes every collection descriptor as:
// count | [collection_name | id_field_name | id_type | root_page_id |
// sequence_state | index_count | [index_descriptor]*]*
// where each index_descriptor is: name | unique_flag | field_count |
// [field_name]* | root_page_id. Strings are uint32-length-prefixed UTF-8.
func encodeCatalog(descs []*CollectionDescriptor) []byte {
	var buf []byte
	buf = appendUint32(buf, uint32(len(descs)))
	for _, d := range descs {
		buf = appendString(buf, d.Name)
		buf = appendString(buf, d.IDField)
		buf = append(buf, byte(d.IDType))
		buf = appendUint64(buf, uint64(d.RootPage))
		buf = appendUint64(buf, d.Sequence)
		buf = appendUint32(buf, uint32(len(d.Indexes)))
		for _, idx := range d.Indexes {
			buf = appendString(buf, idx.Name)
			if idx.Unique {
				buf = append(buf, 1)
			} else {
				buf = append(buf, 0)
			}
			buf = appendUint32(buf, uint32(len(idx.Fields)))
			for _, f := range idx.Fields {
				buf = appendString(buf, f)
			}
			buf = appendUint64(buf, uint64(idx.RootPage))
		}
	}
	return buf
}

func decodeCatalog(buf []byte) ([]*CollectionDescriptor, error) {
	r := &byteReader{buf: buf}

	count, err := r.uint32()
	if err != nil {
		return nil, err
	}

	descs := make([]*CollectionDescriptor, 0, count)
	for i := uint32(0); i < count; i++ {
		name, err := r.string()
		if err != nil {
			return nil, err
		}
		idField, err := r.string()
		if err != nil {
			return nil, err
		}
		idTypeByte, err := r.byte()
		if err != nil {
			return nil, err
		}
		rootPage, err := r.uint64()
		if err != nil {
			return nil, err
		}
		seq, err := r.uint64()
		if err != nil {
			return nil, err
		}
		indexCount, err := r.uint32()
		if err != nil {
			return nil, err
		}

		indexes := make([]IndexDescriptor, 0, indexCount)
		for j := uint32(0); j < indexCount; j++ {
			idxName, err := r.string()
			if err != nil {
				return nil, err
			}
			uniqueByte, err := r.byte()
			if err != nil {
				return nil, err
			}
			fieldCount, err := r.uint32()
			if err != nil {
				return nil, err
			}
			fields := make([]string, 0, fieldCount)
			for k := uint32(0); k < fieldCount; k++ {
				f, err := r.string()
				if err != nil {
					return nil, err
				}
				fields = append(fields, f)
			}
			idxRoot, err := r.uint64()
			if err != nil {
				return nil, err
			}
			indexes = append(indexes, IndexDescriptor{
				Name:     idxName,
				Unique:   uniqueByte != 0,
				Fields:   fields,
				RootPage: storage.PageID(idxRoot),
			})
		}

		descs = append(descs, &CollectionDescriptor{
			Name:     name,
			IDField:  idField,
			IDType:   document.Kind(idTypeByte),
			RootPage: storage.PageID(rootPage),
			Sequence: seq,
			Indexes:  indexes,
		})
	}
	return descs, nil
}

func appendUint32(buf []byte, v uint32) []byte {
	tmp := make([]byte, 4)
	binary.LittleEndian.PutUint32(tmp, v)
	return append(buf, tmp...)
}

func appendUint64(buf []byte, v uint64) []byte {
	tmp := make([]byte, 8)
	binary.LittleEndian.PutUint64(tmp, v)
	return append(buf, tmp...)
}

func appendString(buf []byte, s string) []byte {
	buf = appendUint32(buf, uint32(len(s)))
	return append(buf, s...)
}

type byteReader struct {
	buf []byte
	off int
}

func (r *byteReader) need(n int) error {
	if r.off+n > len(r.buf) {
		return tinyerr.New(tinyerr.CorruptDatabase, "catalog entry truncated")
	}
	return nil
}

func (r *byteReader) byte() (byte, error) {
	if err := r.need(1); err != nil {
		return 0, err
	}
	b := r.buf[r.off]
	r.off++
	return b, nil
}

func (r *byteReader) uint32() (uint32, error) {
	if err := r.need(4); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint32(r.buf[r.off : r.off+4])
	r.off += 4
	return v, nil
}

func (r *byteReader) uint64() (uint64, error) {
	if err := r.need(8); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint64(r.buf[r.off : r.off+8])
	r.off += 8
	return v, nil
}

func (r *byteReader) string() (string, error) {
	n, err := r.uint32()
	if err != nil {
		return "", err
	}
	if err := r.need(int(n)); err != nil {
		return "", err
	}
	s := string(r.buf[r.off : r.off+int(n)])
	r.off += int(n)
	return s, nil
}
