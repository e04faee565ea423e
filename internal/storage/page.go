// Package storage implements TinyDb's storage substrate: a fixed-size
// paged file, a buffered page cache, and a write-ahead journal of
// before-images backing transactional commit.
package storage

import (
	"encoding/binary"

	"github.com/joeandaverde/tinydb/internal/tinyerr"
)

// PageID identifies a logical page. Page 0 is always the database
// header page.
type PageID uint64

// PageType classifies the contents of a page.
type PageType byte

const (
	PageTypeHeader PageType = iota
	PageTypeFree
	PageTypeCollectionRoot
	PageTypeData
	PageTypeIndexInternal
	PageTypeIndexLeaf
	PageTypeOverflow
	PageTypeCatalog
)

// DefaultPageSize is the page size used when a database is created
// without an explicit page_size option.
const DefaultPageSize = 4096

// freeListNextOffset: a free page threads the singly-linked free list
// through the 8 bytes that follow its type tag.
const freeListNextOffset = 1

// Page is one fixed-size block of the database file, held in memory by
// the Pager/PageCache. The first byte of every page's payload is a
// PageType discriminator; page 0 overlays the database header instead.
type Page struct {
	ID    PageID
	Type  PageType
	Data  []byte
	dirty bool
}

// NewPage allocates a zeroed page of the given type and size.
func NewPage(id PageID, typ PageType, size int) *Page {
	data := make([]byte, size)
	data[0] = byte(typ)
	return &Page{ID: id, Type: typ, Data: data}
}

// Dirty reports whether the page has unflushed modifications.
func (p *Page) Dirty() bool { return p.dirty }

// MarkDirty flags the page as modified; the cache captures a
// before-image (via the journal) the first time this happens within a
// transaction.
func (p *Page) MarkDirty() { p.dirty = true }

// clearDirty is called once a page has been durably flushed.
func (p *Page) clearDirty() { p.dirty = false }

// Clone returns a deep copy of the page's bytes, used to capture
// before-images and read snapshots.
func (p *Page) Clone() *Page {
	data := make([]byte, len(p.Data))
	copy(data, p.Data)
	return &Page{ID: p.ID, Type: p.Type, Data: data}
}

// nextFreePage reads the linked free-list pointer threaded through a
// free page's first 8 bytes after the type tag.
func nextFreePage(p *Page) PageID {
	return PageID(binary.LittleEndian.Uint64(p.Data[freeListNextOffset : freeListNextOffset+8]))
}

func setNextFreePage(p *Page, next PageID) {
	binary.LittleEndian.PutUint64(p.Data[freeListNextOffset:freeListNextOffset+8], uint64(next))
}

// errCorrupt is a convenience constructor for CorruptDatabase failures.
func errCorrupt(msg string) error {
	return tinyerr.New(tinyerr.CorruptDatabase, msg)
}
