package index

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/joeandaverde/tinydb/internal/collstore"
	"github.com/joeandaverde/tinydb/internal/document"
	"github.com/joeandaverde/tinydb/internal/storage"
	"github.com/stretchr/testify/suite"
)

const testPageSize = 512

type TreeTestSuite struct {
	suite.Suite
	pager *storage.Pager
	cache *storage.PageCache
}

func (s *TreeTestSuite) SetupTest() {
	path := filepath.Join(s.T().TempDir(), "test.db")
	p, err := storage.Open(path, testPageSize)
	s.Require().NoError(err)
	s.pager = p
	s.cache = storage.NewPageCache(p, 256)
}

func TestTreeTestSuite(t *testing.T) {
	suite.Run(t, &TreeTestSuite{})
}

func id(n int) collstore.DocumentID {
	return collstore.DocumentID{Page: storage.PageID(n), Slot: 0}
}

func (s *TreeTestSuite) TestInsertThenFindExact() {
	tree, err := Create(s.pager, s.cache, true)
	s.Require().NoError(err)

	key := Key{document.NewInt32(7)}
	s.Require().NoError(tree.Insert(key, id(1)))

	ids, ok, err := tree.FindExact(key)
	s.Require().NoError(err)
	s.True(ok)
	s.Equal([]collstore.DocumentID{id(1)}, ids)
}

func (s *TreeTestSuite) TestUniqueIndex_RejectsDuplicateKey() {
	tree, err := Create(s.pager, s.cache, true)
	s.Require().NoError(err)

	key := Key{document.NewString("a")}
	s.Require().NoError(tree.Insert(key, id(1)))

	err = tree.Insert(key, id(2))
	s.Error(err)
}

func (s *TreeTestSuite) TestNonUniqueIndex_AccumulatesIDs() {
	tree, err := Create(s.pager, s.cache, false)
	s.Require().NoError(err)

	key := Key{document.NewString("shared")}
	s.Require().NoError(tree.Insert(key, id(1)))
	s.Require().NoError(tree.Insert(key, id(2)))

	ids, ok, err := tree.FindExact(key)
	s.Require().NoError(err)
	s.True(ok)
	s.Len(ids, 2)
}

func (s *TreeTestSuite) TestRemove_DropsEntryWhenIDListEmpties() {
	tree, err := Create(s.pager, s.cache, true)
	s.Require().NoError(err)

	key := Key{document.NewInt32(1)}
	s.Require().NoError(tree.Insert(key, id(1)))
	s.Require().NoError(tree.Remove(key, id(1)))

	_, ok, err := tree.FindExact(key)
	s.Require().NoError(err)
	s.False(ok)
}

func (s *TreeTestSuite) TestManyInserts_SplitsAndStaysFindable() {
	tree, err := Create(s.pager, s.cache, true)
	s.Require().NoError(err)

	const n = 300
	for i := 0; i < n; i++ {
		key := Key{document.NewInt32(int32(i))}
		s.Require().NoError(tree.Insert(key, id(i)))
	}

	for i := 0; i < n; i++ {
		key := Key{document.NewInt32(int32(i))}
		ids, ok, err := tree.FindExact(key)
		s.Require().NoError(err, "key %d", i)
		s.Require().True(ok, "key %d should be found", i)
		s.Equal(id(i), ids[0])
	}
}

func (s *TreeTestSuite) TestRangeScan_AscendingWithinBounds() {
	tree, err := Create(s.pager, s.cache, true)
	s.Require().NoError(err)

	const n = 200
	for i := 0; i < n; i++ {
		s.Require().NoError(tree.Insert(Key{document.NewInt32(int32(i))}, id(i)))
	}

	lower := &Bound{Key: Key{document.NewInt32(50)}, Inclusive: true}
	upper := &Bound{Key: Key{document.NewInt32(99)}, Inclusive: false}
	cursor, err := tree.RangeScan(lower, upper)
	s.Require().NoError(err)

	var got []int32
	for {
		key, _, ok, err := cursor.Next()
		s.Require().NoError(err)
		if !ok {
			break
		}
		v, _ := key[0].AsInt32()
		got = append(got, v)
	}
	s.Require().Len(got, 49)
	for i, v := range got {
		s.Equal(int32(50+i), v)
	}
}

func (s *TreeTestSuite) TestInsertThenDeleteMany_TreeStaysConsistent() {
	tree, err := Create(s.pager, s.cache, true)
	s.Require().NoError(err)

	const n = 300
	for i := 0; i < n; i++ {
		s.Require().NoError(tree.Insert(Key{document.NewInt32(int32(i))}, id(i)))
	}
	for i := 0; i < n; i += 2 {
		s.Require().NoError(tree.Remove(Key{document.NewInt32(int32(i))}, id(i)))
	}

	for i := 0; i < n; i++ {
		key := Key{document.NewInt32(int32(i))}
		_, ok, err := tree.FindExact(key)
		s.Require().NoError(err)
		if i%2 == 0 {
			s.False(ok, "key %d should have been removed", i)
		} else {
			s.True(ok, "key %d should remain", i)
		}
	}
}

func (s *TreeTestSuite) TestCompoundKey_OrdersByComponentThenPrefix() {
	tree, err := Create(s.pager, s.cache, true)
	s.Require().NoError(err)

	for i := 0; i < 20; i++ {
		key := Key{document.NewString(fmt.Sprintf("group-%02d", i%4)), document.NewInt32(int32(i))}
		s.Require().NoError(tree.Insert(key, id(i)))
	}

	lower := &Bound{Key: Key{document.NewString("group-01"), document.NewInt32(-1)}, Inclusive: true}
	upper := &Bound{Key: Key{document.NewString("group-01"), document.NewInt32(1000)}, Inclusive: true}
	cursor, err := tree.RangeScan(lower, upper)
	s.Require().NoError(err)

	count := 0
	for {
		_, _, ok, err := cursor.Next()
		s.Require().NoError(err)
		if !ok {
			break
		}
		count++
	}
	s.Equal(5, count)
}
