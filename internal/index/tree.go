package index

import (
	"sort"

	"github.com/joeandaverde/tinydb/internal/collstore"
	"github.com/joeandaverde/tinydb/internal/storage"
	"github.com/joeandaverde/tinydb/internal/tinyerr"
)

// minFillRatio is the occupancy floor, expressed as a fraction of page
// bytes in use, below which a non-root node becomes a merge/borrow
// candidate on delete.
const minFillRatio = 0.4

// BTree is a disk-backed B+Tree keyed on composite Keys and pointing at
// collstore DocumentIDs. It backs both a collection's primary index
// (keyed on its identity field) and its secondary indexes.
type BTree struct {
	pager  *storage.Pager
	cache  *storage.PageCache
	root   storage.PageID
	unique bool
}

// Create allocates a fresh, single-leaf tree.
func Create(pager *storage.Pager, cache *storage.PageCache, unique bool) (*BTree, error) {
	page, err := pager.Allocate(storage.PageTypeIndexLeaf)
	if err != nil {
		return nil, err
	}
	encodeLeaf(page, 0, nil)
	if err := pager.Write(page); err != nil {
		return nil, err
	}
	return &BTree{pager: pager, cache: cache, root: page.ID, unique: unique}, nil
}

// OpenTree wraps an existing tree rooted at root.
func OpenTree(pager *storage.Pager, cache *storage.PageCache, root storage.PageID, unique bool) *BTree {
	return &BTree{pager: pager, cache: cache, root: root, unique: unique}
}

// Root returns the tree's current root page. Splits and merges can
// replace the root, so callers persist this back into the owning index
// descriptor after every mutating call.
func (t *BTree) Root() storage.PageID { return t.root }

// pathEntry records one internal node visited on the way down to a
// leaf, and which child was taken from it.
type pathEntry struct {
	pageID   storage.PageID
	leftmost storage.PageID
	entries  []internalEntry
	// childPos is the index into children(leftmost, entries) that was
	// followed: 0 is leftmost, i+1 is entries[i].child.
	childPos int
}

func (t *BTree) descend(key Key) (leafID storage.PageID, path []pathEntry, err error) {
	id := t.root
	for {
		page, err := t.cache.Get(id)
		if err != nil {
			return 0, nil, err
		}
		if page.Type == storage.PageTypeIndexLeaf {
			return id, path, nil
		}
		leftmost, entries, derr := decodeInternal(page)
		if derr != nil {
			return 0, nil, derr
		}
		pos := 0
		child := leftmost
		for i, e := range entries {
			if Compare(key, e.key) < 0 {
				break
			}
			pos = i + 1
			child = e.child
		}
		path = append(path, pathEntry{pageID: id, leftmost: leftmost, entries: entries, childPos: pos})
		id = child
	}
}

// FindExact returns the ids stored under key, or ok=false if key is
// absent.
func (t *BTree) FindExact(key Key) (ids []collstore.DocumentID, ok bool, err error) {
	leafID, _, err := t.descend(key)
	if err != nil {
		return nil, false, err
	}
	page, err := t.cache.Get(leafID)
	if err != nil {
		return nil, false, err
	}
	_, entries, err := decodeLeaf(page)
	if err != nil {
		return nil, false, err
	}
	idx := sort.Search(len(entries), func(i int) bool { return Compare(entries[i].key, key) >= 0 })
	if idx < len(entries) && Equal(entries[idx].key, key) {
		return append([]collstore.DocumentID(nil), entries[idx].ids...), true, nil
	}
	return nil, false, nil
}

// Insert adds id under key. A unique tree rejects a second id under a
// key already present; a non-unique tree accumulates ids per key.
func (t *BTree) Insert(key Key, id collstore.DocumentID) error {
	leafID, path, err := t.descend(key)
	if err != nil {
		return err
	}
	page, err := t.cache.Get(leafID)
	if err != nil {
		return err
	}
	next, entries, err := decodeLeaf(page)
	if err != nil {
		return err
	}

	idx := sort.Search(len(entries), func(i int) bool { return Compare(entries[i].key, key) >= 0 })
	if idx < len(entries) && Equal(entries[idx].key, key) {
		if t.unique {
			return tinyerr.New(tinyerr.DuplicateKey, "duplicate key in unique index")
		}
		for _, existing := range entries[idx].ids {
			if existing == id {
				return nil
			}
		}
		entries[idx].ids = append(entries[idx].ids, id)
	} else {
		entries = append(entries, leafEntry{})
		copy(entries[idx+1:], entries[idx:])
		entries[idx] = leafEntry{key: key, ids: []collstore.DocumentID{id}}
	}

	if err := t.cache.MarkDirty(leafID); err != nil {
		return err
	}

	if encodeLeafSize(entries) <= len(page.Data) {
		encodeLeaf(page, next, entries)
		return nil
	}
	return t.splitLeaf(page, next, entries, path)
}

// splitLeaf divides an overflowing leaf roughly in half, writes both
// halves, and promotes the right half's first key to the parent.
func (t *BTree) splitLeaf(page *storage.Page, next storage.PageID, entries []leafEntry, path []pathEntry) error {
	mid := splitPoint(len(entries), func(i int) int { return leafEntrySize(entries[i]) })
	left, right := entries[:mid], entries[mid:]

	rightPage, err := t.pager.Allocate(storage.PageTypeIndexLeaf)
	if err != nil {
		return err
	}
	encodeLeaf(rightPage, next, right)
	if err := t.pager.Write(rightPage); err != nil {
		return err
	}
	if err := t.cache.Put(rightPage); err != nil {
		return err
	}

	encodeLeaf(page, rightPage.ID, left)

	return t.insertIntoParent(path, right[0].key, rightPage.ID, page.ID)
}

// splitPoint picks the index where entries[:i]/entries[i:] divides the
// total size roughly in half, favoring giving each side at least one
// entry.
func splitPoint(n int, size func(int) int) int {
	total := 0
	for i := 0; i < n; i++ {
		total += size(i)
	}
	acc := 0
	mid := 0
	for mid < n {
		acc += size(mid)
		mid++
		if acc >= total/2 {
			break
		}
	}
	if mid == 0 {
		mid = 1
	}
	if mid >= n {
		mid = n - 1
	}
	return mid
}

// insertIntoParent threads a newly promoted separator key (pointing at
// newRightChild) into the parent of leftChild, splitting the parent in
// turn if it overflows, and creating a new root if leftChild was the
// tree's root.
func (t *BTree) insertIntoParent(path []pathEntry, sepKey Key, newRightChild, leftChild storage.PageID) error {
	if len(path) == 0 {
		rootPage, err := t.pager.Allocate(storage.PageTypeIndexInternal)
		if err != nil {
			return err
		}
		encodeInternal(rootPage, leftChild, []internalEntry{{key: sepKey, child: newRightChild}})
		if err := t.pager.Write(rootPage); err != nil {
			return err
		}
		if err := t.cache.Put(rootPage); err != nil {
			return err
		}
		t.root = rootPage.ID
		return nil
	}

	parent := path[len(path)-1]
	page, err := t.cache.Get(parent.pageID)
	if err != nil {
		return err
	}
	leftmost, entries, err := decodeInternal(page)
	if err != nil {
		return err
	}

	insertAt := parent.childPos
	entries = append(entries, internalEntry{})
	copy(entries[insertAt+1:], entries[insertAt:])
	entries[insertAt] = internalEntry{key: sepKey, child: newRightChild}

	if err := t.cache.MarkDirty(parent.pageID); err != nil {
		return err
	}

	if encodeInternalSize(entries) <= len(page.Data) {
		encodeInternal(page, leftmost, entries)
		return nil
	}
	return t.splitInternal(page, leftmost, entries, path[:len(path)-1])
}

// splitInternal divides an overflowing internal node, promoting its
// median separator key to the parent (the key itself is removed from
// both halves, per standard B+Tree internal splits).
func (t *BTree) splitInternal(page *storage.Page, leftmost storage.PageID, entries []internalEntry, parentPath []pathEntry) error {
	mid := splitPoint(len(entries), func(i int) int { return internalEntrySize(entries[i]) })
	promoted := entries[mid]
	left := entries[:mid]
	right := entries[mid+1:]
	rightLeftmost := promoted.child

	rightPage, err := t.pager.Allocate(storage.PageTypeIndexInternal)
	if err != nil {
		return err
	}
	encodeInternal(rightPage, rightLeftmost, right)
	if err := t.pager.Write(rightPage); err != nil {
		return err
	}
	if err := t.cache.Put(rightPage); err != nil {
		return err
	}

	encodeInternal(page, leftmost, left)

	return t.insertIntoParent(parentPath, promoted.key, rightPage.ID, page.ID)
}

// Remove drops id from key's entry; the entry is dropped entirely once
// its id list empties. Underflowing leaves and internal nodes are
// repaired by borrowing from a sibling or merging with one.
func (t *BTree) Remove(key Key, id collstore.DocumentID) error {
	leafID, path, err := t.descend(key)
	if err != nil {
		return err
	}
	page, err := t.cache.Get(leafID)
	if err != nil {
		return err
	}
	next, entries, err := decodeLeaf(page)
	if err != nil {
		return err
	}

	idx := sort.Search(len(entries), func(i int) bool { return Compare(entries[i].key, key) >= 0 })
	if idx >= len(entries) || !Equal(entries[idx].key, key) {
		return tinyerr.New(tinyerr.NotFound, "key not found")
	}
	ids := entries[idx].ids
	kept := ids[:0]
	for _, existing := range ids {
		if existing != id {
			kept = append(kept, existing)
		}
	}
	if len(kept) == 0 {
		entries = append(entries[:idx], entries[idx+1:]...)
	} else {
		entries[idx].ids = kept
	}

	if err := t.cache.MarkDirty(leafID); err != nil {
		return err
	}
	encodeLeaf(page, next, entries)

	if len(path) == 0 {
		return nil
	}
	if fillRatio(encodeLeafSize(entries), len(page.Data)) >= minFillRatio {
		return nil
	}
	return t.repairLeafUnderflow(leafID, next, entries, path)
}

func fillRatio(used, pageSize int) float64 {
	return float64(used) / float64(pageSize)
}

// repairLeafUnderflow borrows an entry from a sibling leaf when one has
// room to spare, or merges with one otherwise, then repairs the parent
// if the merge emptied one of its entries.
func (t *BTree) repairLeafUnderflow(leafID storage.PageID, next storage.PageID, entries []leafEntry, path []pathEntry) error {
	parent := path[len(path)-1]
	kids := children(parent.leftmost, parent.entries)
	pos := parent.childPos

	if pos > 0 {
		leftID := kids[pos-1]
		leftPage, err := t.cache.Get(leftID)
		if err != nil {
			return err
		}
		leftNext, leftEntries, err := decodeLeaf(leftPage)
		if err != nil {
			return err
		}
		if len(leftEntries) > 1 && fillRatio(encodeLeafSize(leftEntries)-leafEntrySize(leftEntries[len(leftEntries)-1]), len(leftPage.Data)) >= minFillRatio {
			borrowed := leftEntries[len(leftEntries)-1]
			leftEntries = leftEntries[:len(leftEntries)-1]
			entries = append([]leafEntry{borrowed}, entries...)
			if err := t.cache.MarkDirty(leftID); err != nil {
				return err
			}
			encodeLeaf(leftPage, leftNext, leftEntries)
			if err := t.cache.MarkDirty(leafID); err != nil {
				return err
			}
			page, err := t.cache.Get(leafID)
			if err != nil {
				return err
			}
			encodeLeaf(page, next, entries)
			return t.updateParentSeparator(path, pos-1, entries[0].key)
		}

		// merge current into left sibling.
		merged := append(leftEntries, entries...)
		if err := t.cache.MarkDirty(leftID); err != nil {
			return err
		}
		encodeLeaf(leftPage, next, merged)
		if err := t.pager.Free(leafID); err != nil {
			return err
		}
		return t.removeFromParent(path, pos-1)
	}

	if pos < len(kids)-1 {
		rightID := kids[pos+1]
		rightPage, err := t.cache.Get(rightID)
		if err != nil {
			return err
		}
		rightNext, rightEntries, err := decodeLeaf(rightPage)
		if err != nil {
			return err
		}
		if len(rightEntries) > 1 && fillRatio(encodeLeafSize(rightEntries)-leafEntrySize(rightEntries[0]), len(rightPage.Data)) >= minFillRatio {
			borrowed := rightEntries[0]
			rightEntries = rightEntries[1:]
			entries = append(entries, borrowed)
			if err := t.cache.MarkDirty(rightID); err != nil {
				return err
			}
			encodeLeaf(rightPage, rightNext, rightEntries)
			if err := t.cache.MarkDirty(leafID); err != nil {
				return err
			}
			page, err := t.cache.Get(leafID)
			if err != nil {
				return err
			}
			encodeLeaf(page, rightID, entries)
			return t.updateParentSeparator(path, pos, rightEntries[0].key)
		}

		// merge right sibling into current.
		merged := append(entries, rightEntries...)
		if err := t.cache.MarkDirty(leafID); err != nil {
			return err
		}
		page, err := t.cache.Get(leafID)
		if err != nil {
			return err
		}
		encodeLeaf(page, rightNext, merged)
		if err := t.pager.Free(rightID); err != nil {
			return err
		}
		return t.removeFromParent(path, pos)
	}

	// only child: nothing to borrow or merge with, leave it underfull.
	return nil
}

// updateParentSeparator rewrites the separator key at entries[sepIdx]
// in the node at path[len(path)-1].
func (t *BTree) updateParentSeparator(path []pathEntry, sepIdx int, newKey Key) error {
	parent := path[len(path)-1]
	page, err := t.cache.Get(parent.pageID)
	if err != nil {
		return err
	}
	leftmost, entries, err := decodeInternal(page)
	if err != nil {
		return err
	}
	if sepIdx < 0 || sepIdx >= len(entries) {
		return nil
	}
	entries[sepIdx].key = newKey
	if err := t.cache.MarkDirty(parent.pageID); err != nil {
		return err
	}
	encodeInternal(page, leftmost, entries)
	return nil
}

// removeFromParent drops the separator entry at index sepIdx in
// path[len(path)-1] (the entry whose child was just merged away), then
// recursively repairs the parent if that leaves it underfull, or
// collapses the root if it becomes empty.
func (t *BTree) removeFromParent(path []pathEntry, sepIdx int) error {
	parent := path[len(path)-1]
	page, err := t.cache.Get(parent.pageID)
	if err != nil {
		return err
	}
	leftmost, entries, err := decodeInternal(page)
	if err != nil {
		return err
	}
	if sepIdx < 0 || sepIdx >= len(entries) {
		return tinyerr.New(tinyerr.CorruptDatabase, "index separator index out of range")
	}
	entries = append(entries[:sepIdx], entries[sepIdx+1:]...)

	if err := t.cache.MarkDirty(parent.pageID); err != nil {
		return err
	}
	encodeInternal(page, leftmost, entries)

	grandparentPath := path[:len(path)-1]

	if len(grandparentPath) == 0 {
		if len(entries) == 0 {
			t.root = leftmost
			return t.pager.Free(parent.pageID)
		}
		return nil
	}

	if fillRatio(encodeInternalSize(entries), len(page.Data)) >= minFillRatio {
		return nil
	}
	return t.repairInternalUnderflow(parent.pageID, leftmost, entries, grandparentPath)
}

// repairInternalUnderflow mirrors repairLeafUnderflow for internal
// nodes: borrow a separator/child from a sibling via the shared
// grandparent, or merge with one.
func (t *BTree) repairInternalUnderflow(nodeID storage.PageID, leftmost storage.PageID, entries []internalEntry, path []pathEntry) error {
	parent := path[len(path)-1]
	kids := children(parent.leftmost, parent.entries)
	pos := parent.childPos

	if pos > 0 {
		leftID := kids[pos-1]
		leftPage, err := t.cache.Get(leftID)
		if err != nil {
			return err
		}
		leftLeftmost, leftEntries, err := decodeInternal(leftPage)
		if err != nil {
			return err
		}
		if len(leftEntries) > 0 && fillRatio(encodeInternalSize(leftEntries)-internalEntrySize(leftEntries[len(leftEntries)-1]), len(leftPage.Data)) >= minFillRatio {
			sepKey := parent.entries[pos-1].key
			borrowed := leftEntries[len(leftEntries)-1]
			leftEntries = leftEntries[:len(leftEntries)-1]

			entries = append([]internalEntry{{key: sepKey, child: leftmost}}, entries...)
			newLeftmost := borrowed.child

			if err := t.cache.MarkDirty(leftID); err != nil {
				return err
			}
			encodeInternal(leftPage, leftLeftmost, leftEntries)

			if err := t.cache.MarkDirty(nodeID); err != nil {
				return err
			}
			node, err := t.cache.Get(nodeID)
			if err != nil {
				return err
			}
			encodeInternal(node, newLeftmost, entries)
			return t.updateParentSeparator(path, pos-1, borrowed.key)
		}

		merged := append(append([]internalEntry(nil), leftEntries...), internalEntry{key: parent.entries[pos-1].key, child: leftmost})
		merged = append(merged, entries...)
		if err := t.cache.MarkDirty(leftID); err != nil {
			return err
		}
		encodeInternal(leftPage, leftLeftmost, merged)
		if err := t.pager.Free(nodeID); err != nil {
			return err
		}
		return t.removeFromParent(path, pos-1)
	}

	if pos < len(kids)-1 {
		rightID := kids[pos+1]
		rightPage, err := t.cache.Get(rightID)
		if err != nil {
			return err
		}
		rightLeftmost, rightEntries, err := decodeInternal(rightPage)
		if err != nil {
			return err
		}
		if len(rightEntries) > 0 && fillRatio(encodeInternalSize(rightEntries)-internalEntrySize(rightEntries[0]), len(rightPage.Data)) >= minFillRatio {
			sepKey := parent.entries[pos].key
			borrowed := rightEntries[0]
			rightEntries = rightEntries[1:]

			entries = append(entries, internalEntry{key: sepKey, child: rightLeftmost})
			newRightLeftmost := borrowed.child

			if err := t.cache.MarkDirty(rightID); err != nil {
				return err
			}
			encodeInternal(rightPage, newRightLeftmost, rightEntries)

			if err := t.cache.MarkDirty(nodeID); err != nil {
				return err
			}
			node, err := t.cache.Get(nodeID)
			if err != nil {
				return err
			}
			encodeInternal(node, leftmost, entries)
			return t.updateParentSeparator(path, pos, borrowed.key)
		}

		merged := append(append([]internalEntry(nil), entries...), internalEntry{key: parent.entries[pos].key, child: rightLeftmost})
		merged = append(merged, rightEntries...)
		if err := t.cache.MarkDirty(nodeID); err != nil {
			return err
		}
		node, err := t.cache.Get(nodeID)
		if err != nil {
			return err
		}
		encodeInternal(node, leftmost, merged)
		if err := t.pager.Free(rightID); err != nil {
			return err
		}
		return t.removeFromParent(path, pos)
	}

	return nil
}
