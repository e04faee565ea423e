package collstore

import (
	"encoding/binary"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/joeandaverde/tinydb/internal/document"
	"github.com/joeandaverde/tinydb/internal/storage"
	"github.com/joeandaverde/tinydb/internal/tinyerr"
)

// DocumentID is a document's internal address: the data page it lives
// on and its slot within that page's directory.
type DocumentID struct {
	Page storage.PageID
	Slot uint16
}

// Less orders document ids by (PageId ascending, SlotIndex ascending),
// the order a collection scan walks in.
func (id DocumentID) Less(other DocumentID) bool {
	if id.Page != other.Page {
		return id.Page < other.Page
	}
	return id.Slot < other.Slot
}

// Store is the slotted-page document heap for one collection, rooted at
// a PageTypeCollectionRoot page.
type Store struct {
	mu       sync.Mutex
	pager    *storage.Pager
	cache    *storage.PageCache
	root     storage.PageID
	freeHint []storage.PageID // data pages known to have spare room
}

// Create allocates a fresh, empty collection root page and returns the
// store backed by it.
func Create(pager *storage.Pager, cache *storage.PageCache) (*Store, error) {
	page, err := pager.Allocate(storage.PageTypeCollectionRoot)
	if err != nil {
		return nil, err
	}
	rootPage := newRootPage(page.ID, pager.PageSize())
	if err := pager.Write(rootPage); err != nil {
		return nil, err
	}
	return &Store{pager: pager, cache: cache, root: rootPage.ID}, nil
}

// Open wraps an existing collection's root page.
func Open(pager *storage.Pager, cache *storage.PageCache, root storage.PageID) *Store {
	return &Store{pager: pager, cache: cache, root: root}
}

// Root returns the collection's root page id, as recorded in the catalog.
func (s *Store) Root() storage.PageID { return s.root }

// Insert serializes doc and places it on the first data page with
// enough free space (consulting the free-space hint first), allocating
// a new page if none has room. Documents too large for a single page
// spill into an overflow chain.
func (s *Store) Insert(doc *document.Document) (DocumentID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertLocked(doc)
}

func (s *Store) insertLocked(doc *document.Document) (DocumentID, error) {
	data, err := document.Marshal(doc)
	if err != nil {
		return DocumentID{}, tinyerr.Wrap(tinyerr.BadArgument, "marshal document", err)
	}

	pageSize := s.pager.PageSize()
	var record []byte
	var flag slotFlag
	if len(data) <= maxInPageSize(pageSize) {
		record = data
		flag = slotNormal
	} else {
		head, err := s.writeOverflow(data)
		if err != nil {
			return DocumentID{}, err
		}
		record = encodeOverflowPointer(head, len(data), data)
		flag = slotOverflow
	}

	id, err := s.placeRecord(record, flag)
	if err != nil {
		return DocumentID{}, err
	}
	if err := s.bumpDocCount(1); err != nil {
		return DocumentID{}, err
	}
	return id, nil
}

// placeRecord finds or allocates a data page with room for record and
// inserts it as a new cell there.
func (s *Store) placeRecord(record []byte, flag slotFlag) (DocumentID, error) {
	for i, pid := range s.freeHint {
		page, err := s.cache.Get(pid)
		if err != nil {
			return DocumentID{}, err
		}
		if freeSpace(page) < slotEntrySize+len(record) {
			continue
		}
		if err := s.cache.MarkDirty(pid); err != nil {
			return DocumentID{}, err
		}
		slot, ok := tryInsertCell(page, record, flag)
		if !ok {
			continue
		}
		if freeSpace(page) < slotEntrySize {
			s.freeHint = append(s.freeHint[:i], s.freeHint[i+1:]...)
		}
		return DocumentID{Page: page.ID, Slot: slot}, nil
	}

	for id := s.firstPageID(); id != 0; id = s.nextPageAfter(id) {
		page, err := s.cache.Get(id)
		if err != nil {
			return DocumentID{}, err
		}
		if freeSpace(page) < slotEntrySize+len(record) {
			continue
		}
		if err := s.cache.MarkDirty(id); err != nil {
			return DocumentID{}, err
		}
		slot, ok := tryInsertCell(page, record, flag)
		if ok {
			return DocumentID{Page: page.ID, Slot: slot}, nil
		}
	}

	newPage, err := s.pager.Allocate(storage.PageTypeData)
	if err != nil {
		return DocumentID{}, err
	}
	fresh := newDataPage(newPage.ID, s.pager.PageSize())
	root, err := s.cache.Get(s.root)
	if err != nil {
		return DocumentID{}, err
	}
	if err := s.cache.MarkDirty(s.root); err != nil {
		return DocumentID{}, err
	}
	setNextDataPage(fresh, firstDataPage(root))
	setFirstDataPage(root, fresh.ID)

	if err := s.cache.Put(fresh); err != nil {
		return DocumentID{}, err
	}
	if err := s.cache.MarkDirty(fresh.ID); err != nil {
		return DocumentID{}, err
	}
	slot, ok := tryInsertCell(fresh, record, flag)
	if !ok {
		return DocumentID{}, tinyerr.New(tinyerr.CorruptDatabase, "document does not fit on a fresh page")
	}
	if freeSpace(fresh) >= slotEntrySize {
		s.freeHint = append(s.freeHint, fresh.ID)
	}
	return DocumentID{Page: fresh.ID, Slot: slot}, nil
}

// Get reads the document at id.
func (s *Store) Get(id DocumentID) (*document.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getLocked(id)
}

func (s *Store) getLocked(id DocumentID) (*document.Document, error) {
	page, err := s.cache.Get(id.Page)
	if err != nil {
		return nil, err
	}
	if id.Slot >= slotCount(page) {
		return nil, tinyerr.New(tinyerr.NotFound, "document not found")
	}
	slot := readSlot(page, id.Slot)
	switch slot.flag {
	case slotTombstone:
		return nil, tinyerr.New(tinyerr.NotFound, "document not found")
	case slotOverflow:
		head, total, _ := decodeOverflowPointer(cellBytes(page, slot))
		data, err := s.readOverflow(head, total)
		if err != nil {
			return nil, err
		}
		return document.Unmarshal(data)
	default:
		return document.Unmarshal(cellBytes(page, slot))
	}
}

// Update replaces the document at id. When the new serialized size fits
// in the existing cell it is replaced in place and id is unchanged;
// otherwise the old slot is deleted and a fresh id is returned.
func (s *Store) Update(id DocumentID, doc *document.Document) (DocumentID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := document.Marshal(doc)
	if err != nil {
		return DocumentID{}, tinyerr.Wrap(tinyerr.BadArgument, "marshal document", err)
	}

	page, err := s.cache.Get(id.Page)
	if err != nil {
		return DocumentID{}, err
	}
	if id.Slot >= slotCount(page) {
		return DocumentID{}, tinyerr.New(tinyerr.NotFound, "document not found")
	}
	slot := readSlot(page, id.Slot)
	if slot.flag == slotTombstone {
		return DocumentID{}, tinyerr.New(tinyerr.NotFound, "document not found")
	}

	fitsInPlace := slot.flag == slotNormal && len(data) <= int(slot.length) && len(data) <= maxInPageSize(s.pager.PageSize())
	if fitsInPlace {
		if err := s.cache.MarkDirty(id.Page); err != nil {
			return DocumentID{}, err
		}
		copy(page.Data[slot.offset:], data)
		writeSlot(page, id.Slot, slotEntry{offset: slot.offset, length: uint16(len(data)), flag: slotNormal})
		return id, nil
	}

	if err := s.deleteLocked(id); err != nil {
		return DocumentID{}, err
	}
	return s.insertLocked(doc)
}

// Delete removes the document at id, reclaiming its overflow chain (if
// any) and marking the page eligible for reuse once its utilization
// drops below half.
func (s *Store) Delete(id DocumentID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleteLocked(id)
}

func (s *Store) deleteLocked(id DocumentID) error {
	page, err := s.cache.Get(id.Page)
	if err != nil {
		return err
	}
	if id.Slot >= slotCount(page) {
		return tinyerr.New(tinyerr.NotFound, "document not found")
	}
	slot := readSlot(page, id.Slot)
	if slot.flag == slotTombstone {
		return tinyerr.New(tinyerr.NotFound, "document not found")
	}

	if slot.flag == slotOverflow {
		head, _, _ := decodeOverflowPointer(cellBytes(page, slot))
		if err := s.freeOverflowChain(head); err != nil {
			return err
		}
	}

	if err := s.cache.MarkDirty(id.Page); err != nil {
		return err
	}
	writeSlot(page, id.Slot, slotEntry{flag: slotTombstone})

	if pageUtilization(page) < 0.5 {
		s.addFreeHint(id.Page)
	}

	return s.bumpDocCount(-1)
}

func (s *Store) addFreeHint(id storage.PageID) {
	for _, existing := range s.freeHint {
		if existing == id {
			return
		}
	}
	s.freeHint = append(s.freeHint, id)
}

// pageUtilization estimates the fraction of the cell area still holding
// live (non-tombstoned) records.
func pageUtilization(page *storage.Page) float64 {
	total := len(page.Data) - dataHeaderSize
	if total <= 0 {
		return 0
	}
	live := 0
	n := slotCount(page)
	for i := uint16(0); i < n; i++ {
		e := readSlot(page, i)
		if e.flag != slotTombstone {
			live += int(e.length)
		}
	}
	return float64(live) / float64(total)
}

func (s *Store) firstPageID() storage.PageID {
	root, err := s.cache.Get(s.root)
	if err != nil {
		return 0
	}
	return firstDataPage(root)
}

func (s *Store) nextPageAfter(id storage.PageID) storage.PageID {
	page, err := s.cache.Get(id)
	if err != nil {
		return 0
	}
	return nextDataPage(page)
}

func (s *Store) bumpDocCount(delta int64) error {
	root, err := s.cache.Get(s.root)
	if err != nil {
		return err
	}
	if err := s.cache.MarkDirty(s.root); err != nil {
		return err
	}
	count := int64(docCount(root)) + delta
	if count < 0 {
		count = 0
	}
	setDocCount(root, uint64(count))
	return nil
}

// Count returns the number of live documents, maintained incrementally
// on every insert/delete.
func (s *Store) Count() (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	root, err := s.cache.Get(s.root)
	if err != nil {
		return 0, err
	}
	return docCount(root), nil
}

// writeOverflow writes data across a freshly allocated overflow page
// chain and returns the head page id.
func (s *Store) writeOverflow(data []byte) (storage.PageID, error) {
	pageSize := s.pager.PageSize()
	chunkSize := overflowPayloadCap(pageSize)

	var pages []*storage.Page
	for off := 0; off < len(data); off += chunkSize {
		end := off + chunkSize
		if end > len(data) {
			end = len(data)
		}
		p, err := s.pager.Allocate(storage.PageTypeOverflow)
		if err != nil {
			return 0, err
		}
		fresh := newOverflowPage(p.ID, pageSize)
		copy(fresh.Data[overflowHeaderSize:], data[off:end])
		pages = append(pages, fresh)
	}
	for i := 0; i < len(pages); i++ {
		var next storage.PageID
		if i+1 < len(pages) {
			next = pages[i+1].ID
		}
		setNextOverflow(pages[i], next)
		if err := s.pager.Write(pages[i]); err != nil {
			return 0, err
		}
	}
	return pages[0].ID, nil
}

func (s *Store) readOverflow(head storage.PageID, total int) ([]byte, error) {
	out := make([]byte, 0, total)
	for id := head; id != 0 && len(out) < total; {
		page, err := s.cache.Get(id)
		if err != nil {
			return nil, err
		}
		remaining := total - len(out)
		chunk := page.Data[overflowHeaderSize:]
		if remaining < len(chunk) {
			chunk = chunk[:remaining]
		}
		out = append(out, chunk...)
		id = nextOverflow(page)
	}
	if len(out) != total {
		return nil, tinyerr.New(tinyerr.CorruptDatabase, "overflow chain shorter than declared length")
	}
	return out, nil
}

func (s *Store) freeOverflowChain(head storage.PageID) error {
	for id := head; id != 0; {
		page, err := s.cache.Get(id)
		if err != nil {
			return err
		}
		next := nextOverflow(page)
		if err := s.pager.Free(id); err != nil {
			return err
		}
		id = next
	}
	return nil
}

// encodeOverflowPointer builds the small in-page record that stands in
// for an oversized document: the overflow chain's head page, the full
// payload length, and a locality prefix of its head bytes.
func encodeOverflowPointer(head storage.PageID, total int, data []byte) []byte {
	n := overflowLocalityPrefix
	if n > len(data) {
		n = len(data)
	}
	buf := make([]byte, 8+4+2+n)
	binary.LittleEndian.PutUint64(buf[0:8], uint64(head))
	binary.LittleEndian.PutUint32(buf[8:12], uint32(total))
	binary.LittleEndian.PutUint16(buf[12:14], uint16(n))
	copy(buf[14:], data[:n])
	return buf
}

func decodeOverflowPointer(buf []byte) (head storage.PageID, total int, prefix []byte) {
	head = storage.PageID(binary.LittleEndian.Uint64(buf[0:8]))
	total = int(binary.LittleEndian.Uint32(buf[8:12]))
	n := int(binary.LittleEndian.Uint16(buf[12:14]))
	prefix = buf[14 : 14+n]
	return
}

// Cursor walks every live document in (PageId ascending, SlotIndex
// ascending) order.
type Cursor struct {
	store   *Store
	pageIDs []storage.PageID
	pageIdx int
	slotIdx uint16
	id      string
}

// ID returns the cursor's correlation id, for tying a long-running
// scan's log lines together.
func (c *Cursor) ID() string { return c.id }

// Scan opens a cursor over the whole collection, snapshotting the set
// of data pages at the moment it is created.
func (s *Store) Scan() (*Cursor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ids []storage.PageID
	for id := s.firstPageID(); id != 0; id = s.nextPageAfter(id) {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return &Cursor{store: s, pageIDs: ids, id: uuid.New().String()}, nil
}

// Next advances the cursor, returning ok=false once every page has been
// exhausted.
func (c *Cursor) Next() (DocumentID, *document.Document, bool, error) {
	for c.pageIdx < len(c.pageIDs) {
		id := c.pageIDs[c.pageIdx]
		c.store.mu.Lock()
		page, err := c.store.cache.Get(id)
		c.store.mu.Unlock()
		if err != nil {
			return DocumentID{}, nil, false, err
		}

		n := slotCount(page)
		for c.slotIdx < n {
			slot := c.slotIdx
			c.slotIdx++
			e := readSlot(page, slot)
			if e.flag == slotTombstone {
				continue
			}
			docID := DocumentID{Page: id, Slot: slot}
			c.store.mu.Lock()
			doc, err := c.store.getLocked(docID)
			c.store.mu.Unlock()
			if err != nil {
				return DocumentID{}, nil, false, err
			}
			return docID, doc, true, nil
		}

		c.pageIdx++
		c.slotIdx = 0
	}
	return DocumentID{}, nil, false, nil
}
