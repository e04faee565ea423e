package tinydb

import (
	"github.com/joeandaverde/tinydb/internal/catalog"
	"github.com/joeandaverde/tinydb/internal/collstore"
	"github.com/joeandaverde/tinydb/internal/document"
	"github.com/joeandaverde/tinydb/internal/index"
	"github.com/joeandaverde/tinydb/internal/oid"
	"github.com/joeandaverde/tinydb/internal/planner"
	"github.com/joeandaverde/tinydb/internal/qeir"
	"github.com/joeandaverde/tinydb/internal/tinyerr"
	"github.com/joeandaverde/tinydb/internal/txn"
)

// defaultIDKind is the identity field's type when a caller doesn't
// supply one of their own documents' ids up front: an ObjectID, the
// same default the document model itself reaches for.
const defaultIDKind = document.KindObjectID

type collOptions struct {
	idType document.Kind
}

// CollOption customizes CreateCollection.
type CollOption func(*collOptions)

// WithIDKind overrides the default ObjectID identity field type,
// for collections whose documents carry their own id (an int64
// sequence, a string, and so on).
func WithIDKind(kind document.Kind) CollOption {
	return func(o *collOptions) { o.idType = kind }
}

// Collection is a handle to one registered collection: its document
// heap, its index manager, and the identity field new documents are
// keyed by.
type Collection struct {
	db      *Database
	name    string
	idField string
	idType  document.Kind

	store   *collstore.Store
	indexes *index.Manager
}

func newCollection(db *Database, name, idField string, idType document.Kind) (*Collection, error) {
	store, err := collstore.Create(db.pager, db.cache)
	if err != nil {
		return nil, err
	}

	if _, err := db.cat.CreateCollection(name, idField, idType, store.Root()); err != nil {
		return nil, err
	}

	mgr, err := index.Open(db.pager, db.cache, db.cat, name)
	if err != nil {
		return nil, err
	}

	return &Collection{db: db, name: name, idField: idField, idType: idType, store: store, indexes: mgr}, nil
}

func openCollection(db *Database, desc *catalog.CollectionDescriptor) (*Collection, error) {
	store := collstore.Open(db.pager, db.cache, desc.RootPage)
	mgr, err := index.Open(db.pager, db.cache, db.cat, desc.Name)
	if err != nil {
		return nil, err
	}
	return &Collection{db: db, name: desc.Name, idField: desc.IDField, idType: desc.IDType, store: store, indexes: mgr}, nil
}

// Name returns the collection's registered name.
func (c *Collection) Name() string { return c.name }

// assignID fills in doc's identity field when the caller hasn't
// already set one: an ObjectID collection gets a fresh oid.New(), an
// int64 collection draws the catalog's auto-increment sequence.
func (c *Collection) assignID(doc *document.Document) error {
	if _, ok := doc.Get(c.idField); ok {
		return nil
	}
	switch c.idType {
	case document.KindObjectID:
		doc.Set(c.idField, document.NewObjectID(oid.New()))
	case document.KindInt64:
		seq, err := c.db.cat.NextSequence(c.name)
		if err != nil {
			return err
		}
		doc.Set(c.idField, document.NewInt64(int64(seq)))
	default:
		return tinyerr.New(tinyerr.BadArgument, "document is missing its identity field: "+c.idField)
	}
	return nil
}

// Insert assigns doc an id if it doesn't already have one, places it
// in the document heap, and adds it to every index (rolling back the
// insert entirely if a unique index rejects it).
func (c *Collection) Insert(doc *document.Document) (document.Value, error) {
	c.db.mu.Lock()
	defer c.db.mu.Unlock()

	if err := c.assignID(doc); err != nil {
		return document.Null, err
	}

	var id document.Value
	err := c.db.coord.Do(func(tx *txn.Transaction) error {
		docID, err := c.store.Insert(doc)
		if err != nil {
			return err
		}
		if err := c.indexes.InsertDocument(docID, doc); err != nil {
			_ = c.store.Delete(docID)
			return err
		}
		idVal, _ := doc.Get(c.idField)
		id = idVal
		return nil
	})
	if err != nil {
		return document.Null, err
	}
	return id, nil
}

// FindByID looks the document up by its primary key via the implicit
// primary index, the fast path the planner also chooses for an
// equality predicate against the identity field.
func (c *Collection) FindByID(id document.Value) (*document.Document, error) {
	c.db.mu.Lock()
	defer c.db.mu.Unlock()

	ids, ok, err := c.indexes.Lookup(id)
	if err != nil {
		return nil, err
	}
	if !ok || len(ids) == 0 {
		return nil, tinyerr.New(tinyerr.NotFound, "document not found")
	}
	return c.store.Get(ids[0])
}

// Update replaces the document identified by id's current contents
// with fresh, re-keying every index whose indexed fields changed.
func (c *Collection) Update(id document.Value, fresh *document.Document) error {
	c.db.mu.Lock()
	defer c.db.mu.Unlock()

	ids, ok, err := c.indexes.Lookup(id)
	if err != nil {
		return err
	}
	if !ok || len(ids) == 0 {
		return tinyerr.New(tinyerr.NotFound, "document not found")
	}
	oldID := ids[0]

	old, err := c.store.Get(oldID)
	if err != nil {
		return err
	}
	fresh.Set(c.idField, id)

	return c.db.coord.Do(func(tx *txn.Transaction) error {
		newID, err := c.store.Update(oldID, fresh)
		if err != nil {
			return err
		}
		return c.indexes.UpdateDocument(oldID, newID, old, fresh)
	})
}

// Delete removes the document identified by id from the heap and
// every index.
func (c *Collection) Delete(id document.Value) error {
	c.db.mu.Lock()
	defer c.db.mu.Unlock()

	ids, ok, err := c.indexes.Lookup(id)
	if err != nil {
		return err
	}
	if !ok || len(ids) == 0 {
		return tinyerr.New(tinyerr.NotFound, "document not found")
	}
	docID := ids[0]

	doc, err := c.store.Get(docID)
	if err != nil {
		return err
	}

	return c.db.coord.Do(func(tx *txn.Transaction) error {
		if err := c.indexes.DeleteDocument(docID, doc); err != nil {
			return err
		}
		return c.store.Delete(docID)
	})
}

// EnsureIndex creates a secondary index over fields (unique or not),
// backfilling it from every document already in the collection.
func (c *Collection) EnsureIndex(name string, unique bool, fields ...string) error {
	c.db.mu.Lock()
	defer c.db.mu.Unlock()
	return c.indexes.EnsureIndex(name, unique, fields, c.store)
}

// DropIndex removes a previously created secondary index.
func (c *Collection) DropIndex(name string) error {
	c.db.mu.Lock()
	defer c.db.mu.Unlock()
	return c.indexes.DropIndex(name)
}

// Count returns the number of live documents in the collection.
func (c *Collection) Count() (uint64, error) {
	return c.store.Count()
}

// Find plans predicate against the collection's indexes and returns a
// Query ready for further staged operators. predicate may be nil for
// an unfiltered scan of the whole collection.
func (c *Collection) Find(predicate qeir.Node) *Query {
	c.db.mu.Lock()
	defer c.db.mu.Unlock()

	plan, err := planner.Plan(c.db.cat, c.name, predicate)
	if err != nil {
		return &Query{err: err}
	}
	return newQuery(c, plan)
}
