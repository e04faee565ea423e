package catalog

import (
	"path/filepath"
	"testing"

	"github.com/joeandaverde/tinydb/internal/document"
	"github.com/joeandaverde/tinydb/internal/storage"
	"github.com/stretchr/testify/suite"
)

type CatalogTestSuite struct {
	suite.Suite
	pager *storage.Pager
	path  string
}

func (s *CatalogTestSuite) SetupTest() {
	s.path = filepath.Join(s.T().TempDir(), "test.db")
	p, err := storage.Open(s.path, 4096)
	s.Require().NoError(err)
	s.pager = p
}

func TestCatalogTestSuite(t *testing.T) {
	suite.Run(t, &CatalogTestSuite{})
}

func (s *CatalogTestSuite) TestOpen_EmptyDatabaseHasNoCollections() {
	c, err := Open(s.pager)
	s.Require().NoError(err)
	s.Empty(c.List())
}

func (s *CatalogTestSuite) TestCreateCollection_ThenGet() {
	c, err := Open(s.pager)
	s.Require().NoError(err)

	_, err = c.CreateCollection("users", "_id", document.KindObjectID, storage.PageID(7))
	s.Require().NoError(err)

	got, ok := c.Get("users")
	s.Require().True(ok)
	s.Equal("_id", got.IDField)
	s.Equal(storage.PageID(7), got.RootPage)
}

func (s *CatalogTestSuite) TestCreateCollection_DuplicateNameRejected() {
	c, err := Open(s.pager)
	s.Require().NoError(err)

	_, err = c.CreateCollection("users", "_id", document.KindObjectID, storage.PageID(7))
	s.Require().NoError(err)

	_, err = c.CreateCollection("users", "_id", document.KindObjectID, storage.PageID(8))
	s.Error(err)
}

func (s *CatalogTestSuite) TestAddIndex_ThenRemoveIndex() {
	c, err := Open(s.pager)
	s.Require().NoError(err)
	_, err = c.CreateCollection("users", "_id", document.KindObjectID, storage.PageID(7))
	s.Require().NoError(err)

	s.Require().NoError(c.AddIndex("users", IndexDescriptor{Name: "by_email", Unique: true, Fields: []string{"email"}}))

	got, _ := c.Get("users")
	s.Require().Len(got.Indexes, 1)
	s.Equal("by_email", got.Indexes[0].Name)

	s.Require().NoError(c.RemoveIndex("users", "by_email"))
	got, _ = c.Get("users")
	s.Empty(got.Indexes)
}

func (s *CatalogTestSuite) TestNextSequence_Increments() {
	c, err := Open(s.pager)
	s.Require().NoError(err)
	_, err = c.CreateCollection("counters", "_id", document.KindInt64, storage.PageID(7))
	s.Require().NoError(err)

	n1, err := c.NextSequence("counters")
	s.Require().NoError(err)
	n2, err := c.NextSequence("counters")
	s.Require().NoError(err)
	s.Equal(uint64(1), n1)
	s.Equal(uint64(2), n2)
}

func (s *CatalogTestSuite) TestPersistence_SurvivesReopen() {
	c, err := Open(s.pager)
	s.Require().NoError(err)
	_, err = c.CreateCollection("users", "_id", document.KindObjectID, storage.PageID(7))
	s.Require().NoError(err)
	s.Require().NoError(c.AddIndex("users", IndexDescriptor{Name: "by_email", Unique: true, Fields: []string{"email"}}))
	_, err = c.NextSequence("users")
	s.Require().NoError(err)

	s.Require().NoError(s.pager.Close())

	reopened, err := storage.Open(s.path, 4096)
	s.Require().NoError(err)
	defer reopened.Close()

	c2, err := Open(reopened)
	s.Require().NoError(err)

	got, ok := c2.Get("users")
	s.Require().True(ok)
	s.Equal(uint64(1), got.Sequence)
	s.Require().Len(got.Indexes, 1)
	s.Equal("by_email", got.Indexes[0].Name)
}

func (s *CatalogTestSuite) TestDropCollection() {
	c, err := Open(s.pager)
	s.Require().NoError(err)
	_, err = c.CreateCollection("users", "_id", document.KindObjectID, storage.PageID(7))
	s.Require().NoError(err)

	s.Require().NoError(c.DropCollection("users"))
	_, ok := c.Get("users")
	s.False(ok)
}

func (s *CatalogTestSuite) TestListPrefix() {
	c, err := Open(s.pager)
	s.Require().NoError(err)
	_, err = c.CreateCollection("users", "_id", document.KindObjectID, storage.PageID(7))
	s.Require().NoError(err)
	_, err = c.CreateCollection("user_sessions", "_id", document.KindObjectID, storage.PageID(8))
	s.Require().NoError(err)
	_, err = c.CreateCollection("orders", "_id", document.KindObjectID, storage.PageID(9))
	s.Require().NoError(err)

	matches := c.ListPrefix("user")
	s.Len(matches, 2)
}

func (s *CatalogTestSuite) TearDownTest() {
	_ = s.pager.Close()
}
