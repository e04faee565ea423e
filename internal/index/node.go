package index

import (
	"encoding/binary"

	"github.com/joeandaverde/tinydb/internal/collstore"
	"github.com/joeandaverde/tinydb/internal/storage"
	"github.com/joeandaverde/tinydb/internal/tinyerr"
)

// nodeHeaderSize covers every index page: type tag(1) + a pointer(8,
// the leaf's forward sibling or the internal node's leftmost child) +
// entry count(2).
const nodeHeaderSize = 11

// leafEntry is one key and the document ids holding it. Non-unique
// indexes collapse every id sharing a key into one entry; unique
// indexes only ever carry a single id per entry.
type leafEntry struct {
	key Key
	ids []collstore.DocumentID
}

// internalEntry is a separator key paired with the child subtree
// holding keys >= key (and < the next entry's key, or unbounded for
// the last entry).
type internalEntry struct {
	key   Key
	child storage.PageID
}

func decodeLeaf(p *storage.Page) (next storage.PageID, entries []leafEntry, err error) {
	next = storage.PageID(binary.LittleEndian.Uint64(p.Data[1:9]))
	count := binary.LittleEndian.Uint16(p.Data[9:11])
	off := nodeHeaderSize
	for i := uint16(0); i < count; i++ {
		key, n, kerr := decodeKey(p.Data[off:])
		if kerr != nil {
			return 0, nil, kerr
		}
		off += n
		if off+4 > len(p.Data) {
			return 0, nil, tinyerr.New(tinyerr.CorruptDatabase, "index leaf entry truncated")
		}
		idCount := binary.LittleEndian.Uint32(p.Data[off : off+4])
		off += 4
		ids := make([]collstore.DocumentID, 0, idCount)
		for j := uint32(0); j < idCount; j++ {
			if off+10 > len(p.Data) {
				return 0, nil, tinyerr.New(tinyerr.CorruptDatabase, "index leaf entry truncated")
			}
			page := storage.PageID(binary.LittleEndian.Uint64(p.Data[off : off+8]))
			slot := binary.LittleEndian.Uint16(p.Data[off+8 : off+10])
			ids = append(ids, collstore.DocumentID{Page: page, Slot: slot})
			off += 10
		}
		entries = append(entries, leafEntry{key: key, ids: ids})
	}
	return next, entries, nil
}

func leafEntrySize(e leafEntry) int {
	return len(encodeKey(e.key)) + 4 + len(e.ids)*10
}

func encodeLeafSize(entries []leafEntry) int {
	size := nodeHeaderSize
	for _, e := range entries {
		size += leafEntrySize(e)
	}
	return size
}

// encodeLeaf writes a full leaf page in place, zeroing whatever was
// left over from a previous, larger layout.
func encodeLeaf(p *storage.Page, next storage.PageID, entries []leafEntry) {
	binary.LittleEndian.PutUint64(p.Data[1:9], uint64(next))
	binary.LittleEndian.PutUint16(p.Data[9:11], uint16(len(entries)))
	off := nodeHeaderSize
	for _, e := range entries {
		kb := encodeKey(e.key)
		copy(p.Data[off:], kb)
		off += len(kb)
		binary.LittleEndian.PutUint32(p.Data[off:off+4], uint32(len(e.ids)))
		off += 4
		for _, id := range e.ids {
			binary.LittleEndian.PutUint64(p.Data[off:off+8], uint64(id.Page))
			binary.LittleEndian.PutUint16(p.Data[off+8:off+10], id.Slot)
			off += 10
		}
	}
	for i := off; i < len(p.Data); i++ {
		p.Data[i] = 0
	}
}

func decodeInternal(p *storage.Page) (leftmost storage.PageID, entries []internalEntry, err error) {
	leftmost = storage.PageID(binary.LittleEndian.Uint64(p.Data[1:9]))
	count := binary.LittleEndian.Uint16(p.Data[9:11])
	off := nodeHeaderSize
	for i := uint16(0); i < count; i++ {
		key, n, kerr := decodeKey(p.Data[off:])
		if kerr != nil {
			return 0, nil, kerr
		}
		off += n
		if off+8 > len(p.Data) {
			return 0, nil, tinyerr.New(tinyerr.CorruptDatabase, "index internal entry truncated")
		}
		child := storage.PageID(binary.LittleEndian.Uint64(p.Data[off : off+8]))
		off += 8
		entries = append(entries, internalEntry{key: key, child: child})
	}
	return leftmost, entries, nil
}

func internalEntrySize(e internalEntry) int {
	return len(encodeKey(e.key)) + 8
}

func encodeInternalSize(entries []internalEntry) int {
	size := nodeHeaderSize
	for _, e := range entries {
		size += internalEntrySize(e)
	}
	return size
}

func encodeInternal(p *storage.Page, leftmost storage.PageID, entries []internalEntry) {
	binary.LittleEndian.PutUint64(p.Data[1:9], uint64(leftmost))
	binary.LittleEndian.PutUint16(p.Data[9:11], uint16(len(entries)))
	off := nodeHeaderSize
	for _, e := range entries {
		kb := encodeKey(e.key)
		copy(p.Data[off:], kb)
		off += len(kb)
		binary.LittleEndian.PutUint64(p.Data[off:off+8], uint64(e.child))
		off += 8
	}
	for i := off; i < len(p.Data); i++ {
		p.Data[i] = 0
	}
}

// children returns an internal node's child pointers in left-to-right
// order: the leftmost pointer followed by each entry's child.
func children(leftmost storage.PageID, entries []internalEntry) []storage.PageID {
	out := make([]storage.PageID, 0, len(entries)+1)
	out = append(out, leftmost)
	for _, e := range entries {
		out = append(out, e.child)
	}
	return out
}
