package tinydb

import (
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/joeandaverde/tinydb/internal/catalog"
	"github.com/joeandaverde/tinydb/internal/storage"
	"github.com/joeandaverde/tinydb/internal/tinyerr"
	"github.com/joeandaverde/tinydb/internal/txn"
)

// Database is a single open document database file: its pager, page
// cache, schema catalog, and transaction coordinator, plus whichever
// collections a caller has opened so far.
type Database struct {
	mu     sync.Mutex
	path   string
	config Config

	pager *storage.Pager
	cache *storage.PageCache
	cat   *catalog.Catalog
	coord *txn.Coordinator

	collections map[string]*Collection
}

// Open attaches to path, creating a new database file if none exists,
// and recovering any journal left by a prior crash before any
// transaction begins: a journal with a commit marker is replayed, one
// without is discarded.
func Open(path string, opts ...Option) (*Database, error) {
	config := defaultConfig(path)
	for _, opt := range opts {
		opt(&config)
	}

	pager, err := storage.Open(path, config.PageSize)
	if err != nil {
		return nil, err
	}

	if config.EnableJournaling {
		recovered, err := storage.Recover(path, pager)
		if err != nil {
			pager.Close()
			return nil, err
		}
		if recovered {
			log.WithField("database", config.DatabaseName).Info("replayed journal before-images recovered from a prior crash")
		}
	}

	cache := storage.NewPageCache(pager, config.CacheSize)

	cat, err := catalog.Open(pager)
	if err != nil {
		pager.Close()
		return nil, err
	}

	coord := txn.New(pager, cache, config.EnableJournaling)

	return &Database{
		path:        path,
		config:      config,
		pager:       pager,
		cache:       cache,
		cat:         cat,
		coord:       coord,
		collections: make(map[string]*Collection),
	}, nil
}

// Close releases the underlying file; it writes nothing back itself. Any Collection or
// Query obtained from this Database must not be used afterward.
func (db *Database) Close() error {
	return db.pager.Close()
}

// Name returns the database's configured name (the file's base name
// unless overridden by WithDatabaseName or a loaded config file).
func (db *Database) Name() string { return db.config.DatabaseName }

// CreateCollection registers a new collection named name, whose
// documents are identified by idField, and returns a handle to it.
// Fails with DuplicateKey if the name is already taken.
func (db *Database) CreateCollection(name, idField string, opts ...CollOption) (*Collection, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	options := collOptions{idType: defaultIDKind}
	for _, opt := range opts {
		opt(&options)
	}

	// Schema changes are synchronous administrative operations: the
	// collection store and catalog both persist their own root pages
	// directly through the pager rather than through the write-ahead
	// journal, so creating a collection needs no explicit transaction.
	coll, err := newCollection(db, name, idField, options.idType)
	if err != nil {
		return nil, err
	}

	db.collections[name] = coll
	return coll, nil
}

// Collection returns a handle to an already-registered collection,
// opening its indexes and document store if this is the first time
// this Database instance has touched it.
func (db *Database) Collection(name string) (*Collection, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if c, ok := db.collections[name]; ok {
		return c, nil
	}

	desc, ok := db.cat.Get(name)
	if !ok {
		return nil, tinyerr.New(tinyerr.NotFound, "collection not found: "+name)
	}

	c, err := openCollection(db, desc)
	if err != nil {
		return nil, err
	}
	db.collections[name] = c
	return c, nil
}

// Collections lists every collection name registered in this
// database, sorted, regardless of whether it has been opened yet.
func (db *Database) Collections() []string {
	descs := db.cat.List()
	names := make([]string, len(descs))
	for i, d := range descs {
		names[i] = d.Name
	}
	return names
}
