package storage

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/suite"
)

const testPageSize = 4096

type PagerTestSuite struct {
	suite.Suite
	pager *Pager
	path  string
}

func (s *PagerTestSuite) SetupTest() {
	s.path = filepath.Join(s.T().TempDir(), "test.db")
	p, err := Open(s.path, testPageSize)
	s.Require().NoError(err)
	s.pager = p
}

func TestPagerTestSuite(t *testing.T) {
	suite.Run(t, &PagerTestSuite{})
}

func (s *PagerTestSuite) TestOpen_InitializesHeader() {
	h := s.pager.Header()
	s.Equal(uint32(testPageSize), h.PageSize)
	s.Equal(PageID(0), h.CatalogRoot)
	s.Equal(uint64(1), h.NextPage)
}

func (s *PagerTestSuite) TestAllocate_ExtendsFile() {
	p1, err := s.pager.Allocate(PageTypeData)
	s.Require().NoError(err)
	s.Equal(PageID(1), p1.ID)
	s.True(p1.Dirty())

	p2, err := s.pager.Allocate(PageTypeData)
	s.Require().NoError(err)
	s.Equal(PageID(2), p2.ID)
}

func (s *PagerTestSuite) TestFreeThenAllocate_ReusesFromFreeList() {
	p1, err := s.pager.Allocate(PageTypeData)
	s.Require().NoError(err)
	s.Require().NoError(s.pager.Write(p1))

	s.Require().NoError(s.pager.Free(p1.ID))

	reused, err := s.pager.Allocate(PageTypeData)
	s.Require().NoError(err)
	s.Equal(p1.ID, reused.ID)
}

func (s *PagerTestSuite) TestWriteSyncReopen_PersistsData() {
	p1, err := s.pager.Allocate(PageTypeData)
	s.Require().NoError(err)
	copy(p1.Data[1:], []byte("hello"))
	s.Require().NoError(s.pager.Write(p1))
	s.Require().NoError(s.pager.Sync())
	s.Require().NoError(s.pager.Close())

	reopened, err := Open(s.path, testPageSize)
	s.Require().NoError(err)
	defer reopened.Close()

	read, err := reopened.Read(p1.ID)
	s.Require().NoError(err)
	s.Equal("hello", string(read.Data[1:6]))
}

func (s *PagerTestSuite) TestRead_OutOfBounds() {
	_, err := s.pager.Read(999)
	s.Error(err)
}

func (s *PagerTestSuite) TearDownTest() {
	_ = s.pager.Close()
}
