// Package catalog implements the persistent registry of collections,
// their root pages, index descriptors, and identity sequences, plus an
// in-memory prefix index over collection names for administrative
// listing.
package catalog

import (
	"encoding/binary"
	"sync"

	radix "github.com/armon/go-radix"
	"github.com/joeandaverde/tinydb/internal/document"
	"github.com/joeandaverde/tinydb/internal/storage"
	"github.com/joeandaverde/tinydb/internal/tinyerr"
)

// IndexDescriptor names one secondary (or primary) index maintained
// over a collection.
type IndexDescriptor struct {
	Name     string
	Unique   bool
	Fields   []string
	RootPage storage.PageID
}

// CollectionDescriptor is one catalog entry: a collection's identity
// field, its storage root page, its auto-increment sequence state, and
// the indexes defined over it.
type CollectionDescriptor struct {
	Name      string
	IDField   string
	IDType    document.Kind
	RootPage  storage.PageID
	Sequence  uint64
	Indexes   []IndexDescriptor
}

// Clone returns a deep copy, so callers holding a descriptor returned
// from the catalog never observe later in-place mutation.
func (d *CollectionDescriptor) Clone() *CollectionDescriptor {
	cp := *d
	cp.Indexes = append([]IndexDescriptor(nil), d.Indexes...)
	for i := range cp.Indexes {
		cp.Indexes[i].Fields = append([]string(nil), d.Indexes[i].Fields...)
	}
	return &cp
}

// Catalog is the in-memory, pager-backed collection registry. Schema
// changes (create/drop collection, ensure/drop index) are rare
// administrative operations; the catalog persists itself by rewriting
// its full page chain directly through the pager rather than
// participating in the page cache's per-transaction dirty tracking that
// document/index pages use.
type Catalog struct {
	mu      sync.RWMutex
	pager   *storage.Pager
	byName  map[string]*CollectionDescriptor
	prefix  *radix.Tree
}

// Open loads the catalog rooted at the pager's header, creating an
// empty one (and a fresh root page) if the database has none yet.
func Open(pager *storage.Pager) (*Catalog, error) {
	c := &Catalog{
		pager:  pager,
		byName: make(map[string]*CollectionDescriptor),
		prefix: radix.New(),
	}

	root := pager.Header().CatalogRoot
	if root == 0 {
		page, err := pager.Allocate(storage.PageTypeCatalog)
		if err != nil {
			return nil, err
		}
		if err := pager.Write(page); err != nil {
			return nil, err
		}
		if err := pager.SetCatalogRoot(page.ID); err != nil {
			return nil, err
		}
		return c, nil
	}

	raw, err := readChain(pager, root)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return c, nil
	}
	descs, err := decodeCatalog(raw)
	if err != nil {
		return nil, err
	}
	for _, d := range descs {
		d := d
		c.byName[d.Name] = d
		c.prefix.Insert(d.Name, d)
	}
	return c, nil
}

// Get returns a clone of the named collection's descriptor.
func (c *Catalog) Get(name string) (*CollectionDescriptor, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	d, ok := c.byName[name]
	if !ok {
		return nil, false
	}
	return d.Clone(), true
}

// List returns clones of every collection descriptor, sorted by name.
func (c *Catalog) List() []*CollectionDescriptor {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []*CollectionDescriptor
	c.prefix.Walk(func(_ string, v interface{}) bool {
		out = append(out, v.(*CollectionDescriptor).Clone())
		return false
	})
	return out
}

// ListPrefix returns clones of every collection whose name starts with
// prefix, using the radix tree's prefix walk.
func (c *Catalog) ListPrefix(prefix string) []*CollectionDescriptor {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []*CollectionDescriptor
	c.prefix.WalkPrefix(prefix, func(_ string, v interface{}) bool {
		out = append(out, v.(*CollectionDescriptor).Clone())
		return false
	})
	return out
}

// CreateCollection registers a new collection at rootPage. The caller
// (the collection store) has already allocated and initialized that
// page before this is called.
func (c *Catalog) CreateCollection(name, idField string, idType document.Kind, rootPage storage.PageID) (*CollectionDescriptor, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.byName[name]; exists {
		return nil, tinyerr.New(tinyerr.DuplicateKey, "collection already exists: "+name)
	}

	d := &CollectionDescriptor{
		Name:     name,
		IDField:  idField,
		IDType:   idType,
		RootPage: rootPage,
	}
	c.byName[name] = d
	c.prefix.Insert(name, d)
	if err := c.persistLocked(); err != nil {
		delete(c.byName, name)
		c.prefix.Delete(name)
		return nil, err
	}
	return d.Clone(), nil
}

// DropCollection removes a collection's catalog entry. The caller is
// responsible for reclaiming its document and index pages.
func (c *Catalog) DropCollection(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.byName[name]; !ok {
		return tinyerr.New(tinyerr.NotFound, "collection not found: "+name)
	}
	removed := c.byName[name]
	delete(c.byName, name)
	c.prefix.Delete(name)
	if err := c.persistLocked(); err != nil {
		c.byName[name] = removed
		c.prefix.Insert(name, removed)
		return err
	}
	return nil
}

// AddIndex registers a new index descriptor on an existing collection.
func (c *Catalog) AddIndex(collection string, desc IndexDescriptor) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	d, ok := c.byName[collection]
	if !ok {
		return tinyerr.New(tinyerr.NotFound, "collection not found: "+collection)
	}
	for _, existing := range d.Indexes {
		if existing.Name == desc.Name {
			return tinyerr.New(tinyerr.DuplicateKey, "index already exists: "+desc.Name)
		}
	}
	before := append([]IndexDescriptor(nil), d.Indexes...)
	d.Indexes = append(d.Indexes, desc)
	if err := c.persistLocked(); err != nil {
		d.Indexes = before
		return err
	}
	return nil
}

// RemoveIndex drops an index descriptor from a collection.
func (c *Catalog) RemoveIndex(collection, indexName string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	d, ok := c.byName[collection]
	if !ok {
		return tinyerr.New(tinyerr.NotFound, "collection not found: "+collection)
	}
	before := append([]IndexDescriptor(nil), d.Indexes...)
	out := d.Indexes[:0:0]
	found := false
	for _, idx := range d.Indexes {
		if idx.Name == indexName {
			found = true
			continue
		}
		out = append(out, idx)
	}
	if !found {
		return tinyerr.New(tinyerr.NotFound, "index not found: "+indexName)
	}
	d.Indexes = out
	if err := c.persistLocked(); err != nil {
		d.Indexes = before
		return err
	}
	return nil
}

// SetIndexRoot updates an index's root page, persisting the change. The
// B+Tree manager calls this whenever a root split replaces the root.
func (c *Catalog) SetIndexRoot(collection, indexName string, root storage.PageID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	d, ok := c.byName[collection]
	if !ok {
		return tinyerr.New(tinyerr.NotFound, "collection not found: "+collection)
	}
	for i := range d.Indexes {
		if d.Indexes[i].Name == indexName {
			before := d.Indexes[i].RootPage
			d.Indexes[i].RootPage = root
			if err := c.persistLocked(); err != nil {
				d.Indexes[i].RootPage = before
				return err
			}
			return nil
		}
	}
	return tinyerr.New(tinyerr.NotFound, "index not found: "+indexName)
}

// NextSequence increments and persists a collection's auto-increment
// counter, returning the value assigned to the caller.
func (c *Catalog) NextSequence(collection string) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	d, ok := c.byName[collection]
	if !ok {
		return 0, tinyerr.New(tinyerr.NotFound, "collection not found: "+collection)
	}
	d.Sequence++
	next := d.Sequence
	if err := c.persistLocked(); err != nil {
		d.Sequence--
		return 0, err
	}
	return next, nil
}

// persistLocked serializes every descriptor and rewrites the catalog's
// page chain in full, extending or freeing pages as the new payload
// requires.
func (c *Catalog) persistLocked() error {
	var descs []*CollectionDescriptor
	for _, d := range c.byName {
		descs = append(descs, d)
	}
	payload := encodeCatalog(descs)
	return writeChain(c.pager, payload)
}

// chainPayload is the usable bytes per catalog page: the page minus the
// 1-byte type tag and the 8-byte next-page pointer.
func chainPayload(pageSize int) int {
	return pageSize - 1 - 8
}

// readChain follows a catalog page chain starting at root, concatenating
// each page's payload, and trims it to the declared total length stored
// in the first 4 bytes of the concatenated stream.
func readChain(pager *storage.Pager, root storage.PageID) ([]byte, error) {
	var buf []byte
	id := root
	for id != 0 {
		page, err := pager.Read(id)
		if err != nil {
			return nil, err
		}
		payload := chainPayload(len(page.Data))
		next := storage.PageID(binary.LittleEndian.Uint64(page.Data[1 : 1+8]))
		buf = append(buf, page.Data[1+8:1+8+payload]...)
		id = next
	}
	if len(buf) < 4 {
		return nil, nil
	}
	total := binary.LittleEndian.Uint32(buf[0:4])
	if int(4+total) > len(buf) {
		return nil, tinyerr.New(tinyerr.CorruptDatabase, "catalog chain shorter than declared length")
	}
	return buf[4 : 4+total], nil
}

// writeChain rewrites the catalog's page chain with a fresh payload,
// reusing existing pages in the old chain where possible, allocating
// more when the new payload is longer, and freeing any surplus.
func writeChain(pager *storage.Pager, payload []byte) error {
	framed := make([]byte, 4+len(payload))
	binary.LittleEndian.PutUint32(framed[0:4], uint32(len(payload)))
	copy(framed[4:], payload)

	pageSize := pager.PageSize()
	perPage := chainPayload(pageSize)
	pageCount := (len(framed) + perPage - 1) / perPage
	if pageCount == 0 {
		pageCount = 1
	}

	oldRoot := pager.Header().CatalogRoot
	var oldChain []storage.PageID
	for id := oldRoot; id != 0; {
		page, err := pager.Read(id)
		if err != nil {
			return err
		}
		oldChain = append(oldChain, id)
		id = storage.PageID(binary.LittleEndian.Uint64(page.Data[1 : 1+8]))
	}

	var chain []storage.PageID
	for i := 0; i < pageCount; i++ {
		if i < len(oldChain) {
			chain = append(chain, oldChain[i])
			continue
		}
		page, err := pager.Allocate(storage.PageTypeCatalog)
		if err != nil {
			return err
		}
		chain = append(chain, page.ID)
	}

	off := 0
	for i, id := range chain {
		page := storage.NewPage(id, storage.PageTypeCatalog, pageSize)
		var next storage.PageID
		if i+1 < len(chain) {
			next = chain[i+1]
		}
		binary.LittleEndian.PutUint64(page.Data[1:1+8], uint64(next))
		end := off + perPage
		if end > len(framed) {
			end = len(framed)
		}
		copy(page.Data[1+8:], framed[off:end])
		off = end
		if err := pager.Write(page); err != nil {
			return err
		}
	}

	for i := pageCount; i < len(oldChain); i++ {
		if err := pager.Free(oldChain[i]); err != nil {
			return err
		}
	}

	if oldRoot != chain[0] {
		if err := pager.SetCatalogRoot(chain[0]); err != nil {
			return err
		}
	}
	return pager.Sync()
}
