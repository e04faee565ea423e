// Package txn is the transaction coordinator sitting in front of the
// page cache's before-image hook and the on-disk journal: it owns the
// begin/commit/rollback lifecycle and the single coarse-grained write
// lock that serializes mutating operations across goroutines.
package txn

import (
	"sync"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/joeandaverde/tinydb/internal/storage"
	"github.com/joeandaverde/tinydb/internal/tinyerr"
)

// Coordinator owns the write lock, the pager, and the page cache shared
// by every transaction opened against one database file.
type Coordinator struct {
	mu         sync.Mutex
	pager      *storage.Pager
	cache      *storage.PageCache
	journaling bool
}

// New wires a coordinator over an already-open pager and cache. Crash
// recovery (replaying or discarding a dangling journal) is the caller's
// responsibility at open time, before any transaction begins. When
// journaling is false, transactions skip the before-image journal
// entirely (the configuration's documented crash-safety trade-off) and
// Commit is just a dirty-page flush plus fsync.
func New(pager *storage.Pager, cache *storage.PageCache, journaling bool) *Coordinator {
	return &Coordinator{pager: pager, cache: cache, journaling: journaling}
}

// Transaction is a single in-flight unit of work. It holds the write
// lock from Begin until Commit or Rollback releases it; every dirty
// page and before-image captured while it's open belongs to it alone.
type Transaction struct {
	coord   *Coordinator
	journal *storage.Journal
	done    bool
	id      string
}

// ID returns the transaction's correlation id, for tying related log
// lines together across Begin/Commit/Rollback.
func (t *Transaction) ID() string { return t.id }

// Begin acquires the write lock and, unless journaling is disabled,
// opens a fresh journal; it blocks until any other in-flight
// transaction completes.
func (c *Coordinator) Begin() (*Transaction, error) {
	c.mu.Lock()
	id := uuid.New().String()

	if !c.journaling {
		return &Transaction{coord: c, id: id}, nil
	}

	journal, err := storage.OpenJournal(c.pager.Path())
	if err != nil {
		c.mu.Unlock()
		return nil, err
	}
	c.cache.SetJournal(journal)
	log.WithField("txn", id).Debug("transaction started")

	return &Transaction{coord: c, journal: journal, id: id}, nil
}

// Commit writes the journal's commit marker, flushes every dirty page
// through the pager, fsyncs the database file, and finally discards the
// now-superfluous journal. Any failure along the way rolls the
// transaction back instead of leaving a half-applied write visible.
func (t *Transaction) Commit() error {
	if t.done {
		return tinyerr.New(tinyerr.TransactionAborted, "commit: transaction already completed")
	}
	t.done = true
	defer t.coord.mu.Unlock()

	if t.journal != nil {
		if err := t.journal.Commit(); err != nil {
			t.abort()
			return err
		}
	}
	if err := t.coord.cache.FlushAllDirty(); err != nil {
		t.abort()
		return err
	}
	if err := t.coord.pager.Sync(); err != nil {
		t.abort()
		return err
	}
	if t.journal != nil {
		if err := t.journal.Finalize(); err != nil {
			log.WithFields(log.Fields{"txn": t.id, "error": err}).Warn("commit: journal finalized with error after a durable commit")
		}
		t.coord.cache.SetJournal(nil)
	}
	return nil
}

// Rollback discards every dirty page the transaction accumulated and
// abandons its journal, leaving the database exactly as it was before
// Begin. Safe to call after a failed operation; a no-op if the
// transaction already completed.
func (t *Transaction) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	defer t.coord.mu.Unlock()
	return t.abort()
}

func (t *Transaction) abort() error {
	t.coord.cache.DiscardDirty()
	if t.journal == nil {
		return nil
	}
	err := t.journal.Abandon()
	t.coord.cache.SetJournal(nil)
	return err
}

// Do wraps fn in an implicit single-statement transaction: begin, run
// fn, commit on success, roll back on any error fn returns (or that
// Commit itself encounters) so a caller outside an explicit
// transaction never observes partial work.
func (c *Coordinator) Do(fn func(*Transaction) error) error {
	t, err := c.Begin()
	if err != nil {
		return err
	}
	if err := fn(t); err != nil {
		_ = t.Rollback()
		return err
	}
	return t.Commit()
}
