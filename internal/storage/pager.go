package storage

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/joeandaverde/tinydb/internal/tinyerr"
)

// Pager maps logical page ids to byte blocks on disk. It owns the
// underlying OS file handle; callers must use positional reads/writes
// only, since file offset state must never be shared across threads,
// which is exactly what os.File.ReadAt/WriteAt give us.
type Pager struct {
	mu       sync.RWMutex
	file     *os.File
	header   FileHeader
	pageSize int
}

// Open opens (creating if necessary) the database file at path,
// initializing a fresh header page when the file is empty.
func Open(path string, pageSize int) (*Pager, error) {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, tinyerr.Wrap(tinyerr.IoFailure, "open database file", err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, tinyerr.Wrap(tinyerr.IoFailure, "stat database file", err)
	}

	p := &Pager{file: file, pageSize: pageSize}

	if info.Size() == 0 {
		if err := p.initializeNew(pageSize); err != nil {
			file.Close()
			return nil, err
		}
		return p, nil
	}

	headerBuf := make([]byte, pageSize)
	if _, err := file.ReadAt(headerBuf, 0); err != nil {
		file.Close()
		return nil, tinyerr.Wrap(tinyerr.IoFailure, "read database header", err)
	}
	header, err := DecodeFileHeader(headerBuf)
	if err != nil {
		file.Close()
		return nil, err
	}
	p.header = header
	p.pageSize = int(header.PageSize)

	maxPage := info.Size() / int64(p.pageSize)
	if int64(header.NextPage) > maxPage+1 {
		file.Close()
		return nil, errCorrupt("next-page counter exceeds file length")
	}

	return p, nil
}

func (p *Pager) initializeNew(pageSize int) error {
	p.header = NewFileHeader(uint32(pageSize), time.Now().UTC())
	buf := make([]byte, pageSize)
	p.header.Encode(buf)
	if _, err := p.file.WriteAt(buf, 0); err != nil {
		return tinyerr.Wrap(tinyerr.IoFailure, "write initial header", err)
	}
	return nil
}

// PageSize returns the page size this database was created with.
func (p *Pager) PageSize() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.pageSize
}

// Header returns a copy of the current file header.
func (p *Pager) Header() FileHeader {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.header
}

// SetCatalogRoot persists which page holds the collection catalog.
func (p *Pager) SetCatalogRoot(id PageID) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.header.CatalogRoot = id
	p.header.ModifiedAt = time.Now().UTC().UnixMicro()
	return p.writeHeaderLocked()
}

// Allocate returns a new page of the given type, reusing the free
// list's head when non-empty, otherwise extending the file by one page.
func (p *Pager) Allocate(typ PageType) (*Page, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.header.FreeListHead != 0 {
		id := p.header.FreeListHead
		freePage, err := p.readLocked(id)
		if err != nil {
			return nil, err
		}
		p.header.FreeListHead = nextFreePage(freePage)
		if err := p.writeHeaderLocked(); err != nil {
			return nil, err
		}
		page := NewPage(id, typ, p.pageSize)
		page.MarkDirty()
		return page, nil
	}

	id := PageID(p.header.NextPage)
	p.header.NextPage++
	if err := p.writeHeaderLocked(); err != nil {
		return nil, err
	}
	page := NewPage(id, typ, p.pageSize)
	page.MarkDirty()
	return page, nil
}

// Free returns a page to the free list, threading it onto the current
// head: free pages form a singly-linked list.
func (p *Pager) Free(id PageID) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	page := NewPage(id, PageTypeFree, p.pageSize)
	setNextFreePage(page, p.header.FreeListHead)
	if err := p.writeLocked(page); err != nil {
		return err
	}
	p.header.FreeListHead = id
	return p.writeHeaderLocked()
}

// Read reads a page directly from the file. Callers on the hot path
// should prefer PageCache.Get, which this is the backing source for.
func (p *Pager) Read(id PageID) (*Page, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.readLocked(id)
}

func (p *Pager) readLocked(id PageID) (*Page, error) {
	if uint64(id) >= p.header.NextPage {
		return nil, tinyerr.New(tinyerr.CorruptDatabase, fmt.Sprintf("page %d out of bounds", id))
	}
	buf := make([]byte, p.pageSize)
	if _, err := p.file.ReadAt(buf, int64(id)*int64(p.pageSize)); err != nil {
		return nil, tinyerr.Wrap(tinyerr.IoFailure, fmt.Sprintf("read page %d", id), err)
	}
	return &Page{ID: id, Type: PageType(buf[0]), Data: buf}, nil
}

// Write persists a page's full contents at its logical offset.
func (p *Pager) Write(page *Page) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.writeLocked(page)
}

func (p *Pager) writeLocked(page *Page) error {
	if _, err := p.file.WriteAt(page.Data, int64(page.ID)*int64(p.pageSize)); err != nil {
		return tinyerr.Wrap(tinyerr.IoFailure, fmt.Sprintf("write page %d", page.ID), err)
	}
	page.clearDirty()
	return nil
}

func (p *Pager) writeHeaderLocked() error {
	buf := make([]byte, p.pageSize)
	p.header.Encode(buf)
	if _, err := p.file.WriteAt(buf, 0); err != nil {
		return tinyerr.Wrap(tinyerr.IoFailure, "write header", err)
	}
	return nil
}

// Sync forces all queued writes to stable storage.
func (p *Pager) Sync() error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if err := p.file.Sync(); err != nil {
		return tinyerr.Wrap(tinyerr.IoFailure, "fsync database file", err)
	}
	return nil
}

// Close releases the underlying file handle.
func (p *Pager) Close() error {
	return p.file.Close()
}

// Path returns the backing file's path, used to derive the journal's
// sibling filename: "<dbname>.journal".
func (p *Pager) Path() string {
	return p.file.Name()
}
