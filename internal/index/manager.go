package index

import (
	"strings"

	"github.com/joeandaverde/tinydb/internal/catalog"
	"github.com/joeandaverde/tinydb/internal/collstore"
	"github.com/joeandaverde/tinydb/internal/document"
	"github.com/joeandaverde/tinydb/internal/storage"
	"github.com/joeandaverde/tinydb/internal/tinyerr"
)

// named pairs one index's tree with the descriptor that names and
// persists it.
type named struct {
	desc IndexDescriptorView
	tree *BTree
}

// IndexDescriptorView is the subset of catalog.IndexDescriptor the
// manager needs; kept separate so this package doesn't need the
// catalog's mutation API, only its read shape.
type IndexDescriptorView struct {
	Name     string
	Unique   bool
	Fields   []string
	RootPage storage.PageID
}

// Manager coordinates every index defined over one collection: the
// implicit primary index over its identity field, plus whatever
// secondary indexes the catalog records. It keeps each index's B+Tree
// root in step with the catalog as splits and merges replace it.
type Manager struct {
	pager      *storage.Pager
	cache      *storage.PageCache
	catalog    *catalog.Catalog
	collection string
	idField    string
	primary    *named
	secondary  []*named
}

// Open loads (or, for a brand new collection, creates) every index tree
// named in the collection's catalog descriptor, including a primary
// index over its identity field if the descriptor doesn't already list
// one explicitly.
func Open(pager *storage.Pager, cache *storage.PageCache, cat *catalog.Catalog, collection string) (*Manager, error) {
	desc, ok := cat.Get(collection)
	if !ok {
		return nil, tinyerr.New(tinyerr.NotFound, "collection not found: "+collection)
	}

	m := &Manager{pager: pager, cache: cache, catalog: cat, collection: collection, idField: desc.IDField}

	primaryDesc, hasPrimary := findIndex(desc.Indexes, primaryIndexName)
	if !hasPrimary {
		tree, err := Create(pager, cache, true)
		if err != nil {
			return nil, err
		}
		if err := cat.AddIndex(collection, catalog.IndexDescriptor{
			Name: primaryIndexName, Unique: true, Fields: []string{desc.IDField}, RootPage: tree.Root(),
		}); err != nil {
			return nil, err
		}
		m.primary = &named{desc: IndexDescriptorView{Name: primaryIndexName, Unique: true, Fields: []string{desc.IDField}, RootPage: tree.Root()}, tree: tree}
	} else {
		m.primary = &named{
			desc: IndexDescriptorView{Name: primaryDesc.Name, Unique: primaryDesc.Unique, Fields: primaryDesc.Fields, RootPage: primaryDesc.RootPage},
			tree: OpenTree(pager, cache, primaryDesc.RootPage, true),
		}
	}

	for _, idx := range desc.Indexes {
		if idx.Name == primaryIndexName {
			continue
		}
		m.secondary = append(m.secondary, &named{
			desc: IndexDescriptorView{Name: idx.Name, Unique: idx.Unique, Fields: idx.Fields, RootPage: idx.RootPage},
			tree: OpenTree(pager, cache, idx.RootPage, idx.Unique),
		})
	}

	return m, nil
}

const primaryIndexName = "_primary"

func findIndex(indexes []catalog.IndexDescriptor, name string) (catalog.IndexDescriptor, bool) {
	for _, idx := range indexes {
		if idx.Name == name {
			return idx, true
		}
	}
	return catalog.IndexDescriptor{}, false
}

// EnsureIndex creates a new secondary index over fields (unique or not)
// and backfills it by scanning store, the collection's live document
// heap.
func (m *Manager) EnsureIndex(name string, unique bool, fields []string, store *collstore.Store) error {
	for _, n := range m.secondary {
		if n.desc.Name == name {
			return tinyerr.New(tinyerr.DuplicateKey, "index already exists: "+name)
		}
	}

	tree, err := Create(m.pager, m.cache, unique)
	if err != nil {
		return err
	}

	cursor, err := store.Scan()
	if err != nil {
		return err
	}
	for {
		id, doc, ok, err := cursor.Next()
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		key := KeyFromFields(doc, fields)
		if err := tree.Insert(key, id); err != nil {
			return err
		}
	}

	if err := m.catalog.AddIndex(m.collection, catalog.IndexDescriptor{
		Name: name, Unique: unique, Fields: fields, RootPage: tree.Root(),
	}); err != nil {
		return err
	}
	m.secondary = append(m.secondary, &named{desc: IndexDescriptorView{Name: name, Unique: unique, Fields: fields, RootPage: tree.Root()}, tree: tree})
	return m.persistRoot(name, tree)
}

// DropIndex removes a secondary index. Its tree's pages are not
// reclaimed here; callers holding a transaction should free them as
// part of the surrounding schema change.
func (m *Manager) DropIndex(name string) error {
	for i, n := range m.secondary {
		if n.desc.Name == name {
			m.secondary = append(m.secondary[:i], m.secondary[i+1:]...)
			return m.catalog.RemoveIndex(m.collection, name)
		}
	}
	return tinyerr.New(tinyerr.NotFound, "index not found: "+name)
}

// InsertDocument adds doc's entry (keyed by id) to every index. If a
// secondary index insert fails partway (typically a unique violation),
// the indexes already updated are rolled back and the error is
// returned so the caller's transaction can abort cleanly.
func (m *Manager) InsertDocument(id collstore.DocumentID, doc *document.Document) error {
	applied := make([]*named, 0, len(m.secondary)+1)

	rollback := func() {
		for _, n := range applied {
			key := KeyFromFields(doc, n.desc.Fields)
			_ = n.tree.Remove(key, id)
		}
	}

	primaryKey := KeyFromFields(doc, m.primary.desc.Fields)
	if err := m.primary.tree.Insert(primaryKey, id); err != nil {
		return err
	}
	applied = append(applied, m.primary)
	if err := m.persistRoot(m.primary.desc.Name, m.primary.tree); err != nil {
		rollback()
		return err
	}

	for _, n := range m.secondary {
		key := KeyFromFields(doc, n.desc.Fields)
		if err := n.tree.Insert(key, id); err != nil {
			rollback()
			return err
		}
		applied = append(applied, n)
		if err := m.persistRoot(n.desc.Name, n.tree); err != nil {
			rollback()
			return err
		}
	}
	return nil
}

// DeleteDocument removes id's entry from every index.
func (m *Manager) DeleteDocument(id collstore.DocumentID, doc *document.Document) error {
	primaryKey := KeyFromFields(doc, m.primary.desc.Fields)
	if err := m.primary.tree.Remove(primaryKey, id); err != nil {
		return err
	}
	if err := m.persistRoot(m.primary.desc.Name, m.primary.tree); err != nil {
		return err
	}
	for _, n := range m.secondary {
		key := KeyFromFields(doc, n.desc.Fields)
		if err := n.tree.Remove(key, id); err != nil {
			return err
		}
		if err := m.persistRoot(n.desc.Name, n.tree); err != nil {
			return err
		}
	}
	return nil
}

// UpdateDocument re-keys every index whose fields changed between old
// and fresh, moving from oldID to newID (Update can relocate a document
// that outgrows its page).
func (m *Manager) UpdateDocument(oldID, newID collstore.DocumentID, old, fresh *document.Document) error {
	all := append([]*named{m.primary}, m.secondary...)
	for _, n := range all {
		oldKey := KeyFromFields(old, n.desc.Fields)
		newKey := KeyFromFields(fresh, n.desc.Fields)
		if oldID == newID && Equal(oldKey, newKey) {
			continue
		}
		if err := n.tree.Remove(oldKey, oldID); err != nil {
			return err
		}
		if err := n.tree.Insert(newKey, newID); err != nil {
			return err
		}
		if err := m.persistRoot(n.desc.Name, n.tree); err != nil {
			return err
		}
	}
	return nil
}

// Lookup finds the document ids stored under the primary key value.
func (m *Manager) Lookup(id document.Value) ([]collstore.DocumentID, bool, error) {
	return m.primary.tree.FindExact(Key{id})
}

// Index returns the named index's tree (primary or secondary), for use
// by the planner when it picks an index scan path.
func (m *Manager) Index(name string) (*BTree, []string, bool) {
	if m.primary.desc.Name == name {
		return m.primary.tree, m.primary.desc.Fields, true
	}
	for _, n := range m.secondary {
		if n.desc.Name == name {
			return n.tree, n.desc.Fields, true
		}
	}
	return nil, nil, false
}

// Indexes lists every index's name and fields, for planner index
// selection.
func (m *Manager) Indexes() []IndexDescriptorView {
	out := []IndexDescriptorView{m.primary.desc}
	for _, n := range m.secondary {
		out = append(out, n.desc)
	}
	return out
}

func (m *Manager) persistRoot(name string, tree *BTree) error {
	return m.catalog.SetIndexRoot(m.collection, name, tree.Root())
}

// KeyFromFields extracts a Key from doc by walking each dotted
// field path; a missing field contributes Null to the key.
func KeyFromFields(doc *document.Document, fields []string) Key {
	key := make(Key, len(fields))
	for i, path := range fields {
		key[i] = fieldValue(doc, path)
	}
	return key
}

func fieldValue(doc *document.Document, path string) document.Value {
	parts := strings.Split(path, ".")
	var v document.Value
	ok := false
	cur := doc
	for i, part := range parts {
		v, ok = cur.GetCaseInsensitive(part)
		if !ok {
			return document.Null
		}
		if i < len(parts)-1 {
			inner, isDoc := v.AsDocument()
			if !isDoc {
				return document.Null
			}
			cur = inner
		}
	}
	return v
}
