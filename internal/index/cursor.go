package index

import (
	"sort"

	"github.com/joeandaverde/tinydb/internal/collstore"
	"github.com/joeandaverde/tinydb/internal/storage"
)

// Bound is one side of a range scan: a key and whether it is included
// in the result.
type Bound struct {
	Key       Key
	Inclusive bool
}

// Cursor walks matching (key, id) pairs in ascending key order,
// following leaf sibling pointers.
type Cursor struct {
	tree     *BTree
	upper    *Bound
	pageID   storage.PageID
	entries  []leafEntry
	entryIdx int
	idIdx    int
	done     bool
}

// RangeScan opens a cursor over [lower, upper]. A nil lower starts at
// the leftmost leaf; a nil upper scans through the end of the tree. A
// single-key lookup is RangeScan(&Bound{key, true}, &Bound{key, true}).
func (t *BTree) RangeScan(lower, upper *Bound) (*Cursor, error) {
	var leafID storage.PageID
	if lower == nil {
		id := t.root
		for {
			page, err := t.cache.Get(id)
			if err != nil {
				return nil, err
			}
			if page.Type == storage.PageTypeIndexLeaf {
				leafID = id
				break
			}
			leftmost, _, err := decodeInternal(page)
			if err != nil {
				return nil, err
			}
			id = leftmost
		}
	} else {
		id, _, err := t.descend(lower.Key)
		if err != nil {
			return nil, err
		}
		leafID = id
	}

	page, err := t.cache.Get(leafID)
	if err != nil {
		return nil, err
	}
	_, entries, err := decodeLeaf(page)
	if err != nil {
		return nil, err
	}

	startIdx := 0
	if lower != nil {
		startIdx = sort.Search(len(entries), func(i int) bool {
			c := Compare(entries[i].key, lower.Key)
			if lower.Inclusive {
				return c >= 0
			}
			return c > 0
		})
	}

	return &Cursor{tree: t, upper: upper, pageID: leafID, entries: entries, entryIdx: startIdx}, nil
}

// Next advances the cursor, reporting ok=false once the upper bound (or
// the end of the tree) is reached.
func (c *Cursor) Next() (Key, collstore.DocumentID, bool, error) {
	for {
		if c.done {
			return nil, collstore.DocumentID{}, false, nil
		}
		for c.entryIdx < len(c.entries) {
			e := c.entries[c.entryIdx]
			if c.upper != nil {
				cmp := Compare(e.key, c.upper.Key)
				if cmp > 0 || (cmp == 0 && !c.upper.Inclusive) {
					c.done = true
					return nil, collstore.DocumentID{}, false, nil
				}
			}
			if c.idIdx < len(e.ids) {
				id := e.ids[c.idIdx]
				c.idIdx++
				if c.idIdx >= len(e.ids) {
					c.entryIdx++
					c.idIdx = 0
				}
				return e.key, id, true, nil
			}
			c.entryIdx++
			c.idIdx = 0
		}

		page, err := c.tree.cache.Get(c.pageID)
		if err != nil {
			return nil, collstore.DocumentID{}, false, err
		}
		next, _, err := decodeLeaf(page)
		if err != nil {
			return nil, collstore.DocumentID{}, false, err
		}
		if next == 0 {
			c.done = true
			continue
		}
		nextPage, err := c.tree.cache.Get(next)
		if err != nil {
			return nil, collstore.DocumentID{}, false, err
		}
		_, entries, err := decodeLeaf(nextPage)
		if err != nil {
			return nil, collstore.DocumentID{}, false, err
		}
		c.pageID = next
		c.entries = entries
		c.entryIdx = 0
		c.idIdx = 0
	}
}
