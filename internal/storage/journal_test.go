package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/suite"
)

type JournalTestSuite struct {
	suite.Suite
	dbPath string
	pager  *Pager
}

func (s *JournalTestSuite) SetupTest() {
	s.dbPath = filepath.Join(s.T().TempDir(), "test.db")
	p, err := Open(s.dbPath, testPageSize)
	s.Require().NoError(err)
	s.pager = p
}

func TestJournalTestSuite(t *testing.T) {
	suite.Run(t, &JournalTestSuite{})
}

func (s *JournalTestSuite) TestCaptureCommitFinalize_RemovesJournalFile() {
	page, err := s.pager.Allocate(PageTypeData)
	s.Require().NoError(err)
	s.Require().NoError(s.pager.Write(page))

	j, err := OpenJournal(s.dbPath)
	s.Require().NoError(err)

	s.Require().NoError(j.CaptureBeforeImage(page.Clone()))
	s.Require().NoError(j.Commit())
	s.Require().NoError(j.Finalize())

	_, err = os.Stat(JournalPath(s.dbPath))
	s.True(os.IsNotExist(err))
}

func (s *JournalTestSuite) TestRecover_ReplaysCommittedJournal() {
	page, err := s.pager.Allocate(PageTypeData)
	s.Require().NoError(err)
	copy(page.Data[1:], []byte("original"))
	s.Require().NoError(s.pager.Write(page))

	before := page.Clone()

	j, err := OpenJournal(s.dbPath)
	s.Require().NoError(err)
	s.Require().NoError(j.CaptureBeforeImage(before))

	// simulate an in-place modification that reached the database file
	modified := page.Clone()
	copy(modified.Data[1:], []byte("mutated!"))
	s.Require().NoError(s.pager.Write(modified))

	s.Require().NoError(j.Commit())
	s.Require().NoError(j.file.Close())

	recovered, err := Recover(s.dbPath, s.pager)
	s.Require().NoError(err)
	s.True(recovered)

	restored, err := s.pager.Read(page.ID)
	s.Require().NoError(err)
	s.Equal("original", string(restored.Data[1:9]))

	_, err = os.Stat(JournalPath(s.dbPath))
	s.True(os.IsNotExist(err))
}

func (s *JournalTestSuite) TestRecover_DiscardsIncompleteJournal() {
	page, err := s.pager.Allocate(PageTypeData)
	s.Require().NoError(err)
	s.Require().NoError(s.pager.Write(page))

	j, err := OpenJournal(s.dbPath)
	s.Require().NoError(err)
	s.Require().NoError(j.CaptureBeforeImage(page.Clone()))
	// no Commit(): journal never reaches its marker
	s.Require().NoError(j.file.Close())

	recovered, err := Recover(s.dbPath, s.pager)
	s.Require().NoError(err)
	s.False(recovered)

	_, err = os.Stat(JournalPath(s.dbPath))
	s.True(os.IsNotExist(err))
}

func (s *JournalTestSuite) TestRecover_NoJournalFile() {
	recovered, err := Recover(s.dbPath, s.pager)
	s.Require().NoError(err)
	s.False(recovered)
}
