package collstore

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/joeandaverde/tinydb/internal/document"
	"github.com/joeandaverde/tinydb/internal/storage"
	"github.com/stretchr/testify/suite"
)

const testPageSize = 4096

type StoreTestSuite struct {
	suite.Suite
	pager *storage.Pager
	cache *storage.PageCache
	store *Store
}

func (s *StoreTestSuite) SetupTest() {
	path := filepath.Join(s.T().TempDir(), "test.db")
	p, err := storage.Open(path, testPageSize)
	s.Require().NoError(err)
	s.pager = p
	s.cache = storage.NewPageCache(p, 64)

	store, err := Create(p, s.cache)
	s.Require().NoError(err)
	s.store = store
}

func TestStoreTestSuite(t *testing.T) {
	suite.Run(t, &StoreTestSuite{})
}

func doc(name string, age int32) *document.Document {
	d := document.New()
	d.Set("name", document.NewString(name))
	d.Set("age", document.NewInt32(age))
	return d
}

func (s *StoreTestSuite) TestInsertThenGet() {
	id, err := s.store.Insert(doc("ada", 31))
	s.Require().NoError(err)

	got, err := s.store.Get(id)
	s.Require().NoError(err)
	name, _ := mustGet(got, "name").AsString()
	s.Equal("ada", name)
}

func (s *StoreTestSuite) TestCount() {
	_, err := s.store.Insert(doc("a", 1))
	s.Require().NoError(err)
	_, err = s.store.Insert(doc("b", 2))
	s.Require().NoError(err)

	n, err := s.store.Count()
	s.Require().NoError(err)
	s.Equal(uint64(2), n)
}

func (s *StoreTestSuite) TestUpdate_InPlaceWhenFits() {
	id, err := s.store.Insert(doc("ada", 31))
	s.Require().NoError(err)

	newID, err := s.store.Update(id, doc("ad", 32))
	s.Require().NoError(err)
	s.Equal(id, newID)

	got, err := s.store.Get(newID)
	s.Require().NoError(err)
	age, _ := mustGet(got, "age").AsInt32()
	s.Equal(int32(32), age)
}

func (s *StoreTestSuite) TestUpdate_ReinsertsWhenLarger() {
	id, err := s.store.Insert(doc("a", 1))
	s.Require().NoError(err)

	bigName := ""
	for i := 0; i < 200; i++ {
		bigName += "x"
	}
	newID, err := s.store.Update(id, doc(bigName, 2))
	s.Require().NoError(err)

	_, err = s.store.Get(id)
	if newID != id {
		s.Error(err)
	}

	got, err := s.store.Get(newID)
	s.Require().NoError(err)
	name, _ := mustGet(got, "name").AsString()
	s.Equal(bigName, name)
}

func (s *StoreTestSuite) TestDelete_RemovesDocument() {
	id, err := s.store.Insert(doc("ada", 31))
	s.Require().NoError(err)

	s.Require().NoError(s.store.Delete(id))

	_, err = s.store.Get(id)
	s.Error(err)
}

func (s *StoreTestSuite) TestScan_OrdersAndSkipsTombstones() {
	var ids []DocumentID
	for i := 0; i < 5; i++ {
		id, err := s.store.Insert(doc(fmt.Sprintf("doc-%d", i), int32(i)))
		s.Require().NoError(err)
		ids = append(ids, id)
	}
	s.Require().NoError(s.store.Delete(ids[2]))

	cursor, err := s.store.Scan()
	s.Require().NoError(err)

	var seen []DocumentID
	for {
		id, _, ok, err := cursor.Next()
		s.Require().NoError(err)
		if !ok {
			break
		}
		seen = append(seen, id)
	}
	s.Len(seen, 4)
	for i := 1; i < len(seen); i++ {
		s.True(seen[i-1].Less(seen[i]))
	}
}

func (s *StoreTestSuite) TestOversizedDocument_SpillsToOverflow() {
	big := document.New()
	blob := make([]byte, testPageSize*2)
	for i := range blob {
		blob[i] = byte(i)
	}
	big.Set("blob", document.NewBinary(blob))

	id, err := s.store.Insert(big)
	s.Require().NoError(err)

	got, err := s.store.Get(id)
	s.Require().NoError(err)
	roundTripped, _ := mustGet(got, "blob").AsBinary()
	s.Equal(blob, roundTripped)
}

func (s *StoreTestSuite) TestDelete_FreesOverflowChain() {
	big := document.New()
	blob := make([]byte, testPageSize*2)
	big.Set("blob", document.NewBinary(blob))
	id, err := s.store.Insert(big)
	s.Require().NoError(err)

	s.Require().NoError(s.store.Delete(id))
	_, err = s.store.Get(id)
	s.Error(err)
}

func mustGet(d *document.Document, name string) document.Value {
	v, _ := d.Get(name)
	return v
}
