package storage

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/suite"
)

type PageCacheTestSuite struct {
	suite.Suite
	pager *Pager
	cache *PageCache
}

func (s *PageCacheTestSuite) SetupTest() {
	path := filepath.Join(s.T().TempDir(), "test.db")
	p, err := Open(path, testPageSize)
	s.Require().NoError(err)
	s.pager = p
	s.cache = NewPageCache(p, 2)
}

func TestPageCacheTestSuite(t *testing.T) {
	suite.Run(t, &PageCacheTestSuite{})
}

func (s *PageCacheTestSuite) TestGet_ReadsThroughToPager() {
	p1, err := s.pager.Allocate(PageTypeData)
	s.Require().NoError(err)
	s.Require().NoError(s.pager.Write(p1))

	got, err := s.cache.Get(p1.ID)
	s.Require().NoError(err)
	s.Equal(p1.ID, got.ID)
}

func (s *PageCacheTestSuite) TestMarkDirty_CapturesBeforeImageOnce() {
	p1, err := s.pager.Allocate(PageTypeData)
	s.Require().NoError(err)
	s.Require().NoError(s.pager.Write(p1))
	s.Require().NoError(s.cache.Put(p1))

	sink := &countingSink{}
	s.cache.SetJournal(sink)

	s.Require().NoError(s.cache.MarkDirty(p1.ID))
	s.Require().NoError(s.cache.MarkDirty(p1.ID))
	s.Equal(1, sink.calls)
}

func (s *PageCacheTestSuite) TestEviction_RespectsPinnedAndDirty() {
	p1, _ := s.pager.Allocate(PageTypeData)
	p2, _ := s.pager.Allocate(PageTypeData)
	s.Require().NoError(s.pager.Write(p1))
	s.Require().NoError(s.pager.Write(p2))

	s.Require().NoError(s.cache.Put(p1))
	s.cache.Pin(p1.ID)
	s.Require().NoError(s.cache.Put(p2))

	p3, _ := s.pager.Allocate(PageTypeData)
	s.Require().NoError(s.pager.Write(p3))

	// p1 is pinned, p2 is clean and unpinned: p2 should be the one evicted.
	s.Require().NoError(s.cache.Put(p3))

	_, stillCached := s.cache.entries[p2.ID]
	s.False(stillCached)
	_, p1Cached := s.cache.entries[p1.ID]
	s.True(p1Cached)
}

func (s *PageCacheTestSuite) TestDiscardDirty_DropsUnflushedPages() {
	p1, _ := s.pager.Allocate(PageTypeData)
	s.Require().NoError(s.cache.Put(p1))
	s.cache.SetJournal(&countingSink{})
	s.Require().NoError(s.cache.MarkDirty(p1.ID))

	s.cache.DiscardDirty()

	_, ok := s.cache.entries[p1.ID]
	s.False(ok)
}

type countingSink struct {
	calls int
}

func (c *countingSink) CaptureBeforeImage(*Page) error {
	c.calls++
	return nil
}
