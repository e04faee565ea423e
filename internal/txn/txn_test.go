package txn

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/joeandaverde/tinydb/internal/collstore"
	"github.com/joeandaverde/tinydb/internal/document"
	"github.com/joeandaverde/tinydb/internal/storage"
	"github.com/stretchr/testify/suite"
)

type TxnTestSuite struct {
	suite.Suite
	path  string
	pager *storage.Pager
	cache *storage.PageCache
	coord *Coordinator
	store *collstore.Store
}

func (s *TxnTestSuite) SetupTest() {
	s.path = filepath.Join(s.T().TempDir(), "test.db")
	p, err := storage.Open(s.path, 4096)
	s.Require().NoError(err)
	s.pager = p
	s.cache = storage.NewPageCache(p, 64)
	s.coord = New(p, s.cache, true)

	store, err := collstore.Create(p, s.cache)
	s.Require().NoError(err)
	s.store = store
}

func TestTxnTestSuite(t *testing.T) {
	suite.Run(t, &TxnTestSuite{})
}

func newDoc(name string) *document.Document {
	d := document.New()
	d.Set("name", document.NewString(name))
	return d
}

func (s *TxnTestSuite) TestCommit_PersistsWrites() {
	tx, err := s.coord.Begin()
	s.Require().NoError(err)

	id, err := s.store.Insert(newDoc("alice"))
	s.Require().NoError(err)

	s.Require().NoError(tx.Commit())

	got, err := s.store.Get(id)
	s.Require().NoError(err)
	v, ok := got.Get("name")
	s.Require().True(ok)
	name, _ := v.AsString()
	s.Equal("alice", name)
}

func (s *TxnTestSuite) TestRollback_DiscardsWrites() {
	tx, err := s.coord.Begin()
	s.Require().NoError(err)

	id, err := s.store.Insert(newDoc("bob"))
	s.Require().NoError(err)

	s.Require().NoError(tx.Rollback())

	_, err = s.store.Get(id)
	s.Require().Error(err)
}

func (s *TxnTestSuite) TestDo_RollsBackOnError() {
	err := s.coord.Do(func(tx *Transaction) error {
		if _, err := s.store.Insert(newDoc("carol")); err != nil {
			return err
		}
		return assertError{}
	})
	s.Require().Error(err)

	count, err := s.store.Count()
	s.Require().NoError(err)
	s.Equal(uint64(0), count)
}

func (s *TxnTestSuite) TestDo_CommitsOnSuccess() {
	err := s.coord.Do(func(tx *Transaction) error {
		_, err := s.store.Insert(newDoc("dave"))
		return err
	})
	s.Require().NoError(err)

	count, err := s.store.Count()
	s.Require().NoError(err)
	s.Equal(uint64(1), count)
}

func (s *TxnTestSuite) TestJournalingDisabled_SkipsJournalButStillPersists() {
	noJournalPath := filepath.Join(s.T().TempDir(), "nojournal.db")
	p, err := storage.Open(noJournalPath, 4096)
	s.Require().NoError(err)
	cache := storage.NewPageCache(p, 64)
	coord := New(p, cache, false)
	store, err := collstore.Create(p, cache)
	s.Require().NoError(err)

	tx, err := coord.Begin()
	s.Require().NoError(err)
	id, err := store.Insert(newDoc("erin"))
	s.Require().NoError(err)
	s.Require().NoError(tx.Commit())

	_, err = os.Stat(storage.JournalPath(noJournalPath))
	s.Require().True(os.IsNotExist(err))

	got, err := store.Get(id)
	s.Require().NoError(err)
	v, _ := got.Get("name")
	name, _ := v.AsString()
	s.Equal("erin", name)
}

func (s *TxnTestSuite) TestCommit_AfterCompletionFails() {
	tx, err := s.coord.Begin()
	s.Require().NoError(err)
	s.Require().NoError(tx.Commit())
	s.Require().Error(tx.Commit())
}

func (s *TxnTestSuite) TestBegin_SerializesAgainstAnotherTransaction() {
	tx, err := s.coord.Begin()
	s.Require().NoError(err)

	done := make(chan struct{})
	go func() {
		tx2, err := s.coord.Begin()
		s.Require().NoError(err)
		s.Require().NoError(tx2.Commit())
		close(done)
	}()

	s.Require().NoError(tx.Commit())
	<-done
}

type assertError struct{}

func (assertError) Error() string { return "injected failure" }
