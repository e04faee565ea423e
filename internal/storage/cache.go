package storage

import (
	"container/list"
	"sync"

	"github.com/joeandaverde/tinydb/internal/tinyerr"
)

// BeforeImageSink receives a page's before-image the first time it is
// dirtied within a transaction. It is implemented by Journal; the cache
// itself has no durability logic: it is a pure performance layer, and
// correctness must survive a cold cache.
type BeforeImageSink interface {
	CaptureBeforeImage(page *Page) error
}

type cacheEntry struct {
	page    *Page
	pinned  int
	element *list.Element
}

// PageCache is a bounded in-memory buffer pool over the Pager.
// Eviction follows the least-recently-used edge and never
// evicts a pinned or dirty page without first flushing dirty pages
// through the coordinator.
type PageCache struct {
	mu       sync.Mutex
	pager    *Pager
	capacity int
	entries  map[PageID]*cacheEntry
	lru      *list.List // front = most recently used

	journal BeforeImageSink
	dirtied map[PageID]bool // pages already before-imaged this transaction
}

// NewPageCache creates a cache of the given slot capacity backed by pager.
func NewPageCache(pager *Pager, capacity int) *PageCache {
	if capacity <= 0 {
		capacity = 256
	}
	return &PageCache{
		pager:    pager,
		capacity: capacity,
		entries:  make(map[PageID]*cacheEntry),
		lru:      list.New(),
		dirtied:  make(map[PageID]bool),
	}
}

// SetJournal wires the before-image sink used by MarkDirty; called once
// by the transaction coordinator that owns both.
func (c *PageCache) SetJournal(j BeforeImageSink) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.journal = j
}

// Get returns the cached page if present; otherwise it reads through
// the pager into a newly cached slot, evicting a clean, unpinned slot
// on the LRU edge if the cache is full.
func (c *PageCache) Get(id PageID) (*Page, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[id]; ok {
		c.lru.MoveToFront(e.element)
		return e.page, nil
	}

	page, err := c.pager.Read(id)
	if err != nil {
		return nil, err
	}

	if err := c.makeRoomLocked(); err != nil {
		return nil, err
	}

	e := &cacheEntry{page: page}
	e.element = c.lru.PushFront(id)
	c.entries[id] = e
	return page, nil
}

// Put inserts a page the caller just allocated or constructed directly
// into the cache (e.g. after Pager.Allocate), without a read round-trip.
func (c *PageCache) Put(page *Page) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[page.ID]; ok {
		e.page = page
		c.lru.MoveToFront(e.element)
		return nil
	}

	if err := c.makeRoomLocked(); err != nil {
		return err
	}
	e := &cacheEntry{page: page}
	e.element = c.lru.PushFront(page.ID)
	c.entries[page.ID] = e
	return nil
}

// makeRoomLocked evicts least-recently-used clean, unpinned pages until
// the cache has room for one more slot, or returns an error if no page
// can be evicted (every resident page is pinned or dirty).
func (c *PageCache) makeRoomLocked() error {
	if len(c.entries) < c.capacity {
		return nil
	}
	for el := c.lru.Back(); el != nil; el = el.Prev() {
		id := el.Value.(PageID)
		e := c.entries[id]
		if e.pinned > 0 || e.page.Dirty() {
			continue
		}
		c.lru.Remove(el)
		delete(c.entries, id)
		return nil
	}
	return tinyerr.New(tinyerr.IoFailure, "page cache full: every resident page is pinned or dirty")
}

// Pin prevents a page from being evicted, e.g. while a cursor holds a
// reference to it.
func (c *PageCache) Pin(id PageID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[id]; ok {
		e.pinned++
	}
}

// Unpin releases a previous Pin.
func (c *PageCache) Unpin(id PageID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[id]; ok && e.pinned > 0 {
		e.pinned--
	}
}

// MarkDirty records the slot as dirty and, the first time this page is
// dirtied within the active transaction, captures its before-image via
// the journal.
func (c *PageCache) MarkDirty(id PageID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[id]
	if !ok {
		return tinyerr.New(tinyerr.IoFailure, "mark dirty: page not resident in cache")
	}

	if !c.dirtied[id] && c.journal != nil {
		if err := c.journal.CaptureBeforeImage(e.page.Clone()); err != nil {
			return err
		}
		c.dirtied[id] = true
	}

	e.page.MarkDirty()
	return nil
}

// FlushAllDirty writes every dirty resident page through the pager.
func (c *PageCache) FlushAllDirty() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.flushAllDirtyLocked()
}

func (c *PageCache) flushAllDirtyLocked() error {
	for _, e := range c.entries {
		if !e.page.Dirty() {
			continue
		}
		if err := c.pager.Write(e.page); err != nil {
			return err
		}
	}
	c.dirtied = make(map[PageID]bool)
	return nil
}

// DiscardDirty evicts every dirty page from the cache without writing
// it; the next Get re-reads the durable copy from the pager. Used by
// rollback, which discards dirty pages from the cache outright.
func (c *PageCache) DiscardDirty() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, e := range c.entries {
		if e.page.Dirty() {
			c.lru.Remove(e.element)
			delete(c.entries, id)
		}
	}
	c.dirtied = make(map[PageID]bool)
}
