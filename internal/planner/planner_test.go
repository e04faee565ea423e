package planner

import (
	"path/filepath"
	"testing"

	"github.com/joeandaverde/tinydb/internal/catalog"
	"github.com/joeandaverde/tinydb/internal/document"
	"github.com/joeandaverde/tinydb/internal/qeir"
	"github.com/joeandaverde/tinydb/internal/storage"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type PlannerTestSuite struct {
	suite.Suite
	cat *catalog.Catalog
}

func (s *PlannerTestSuite) SetupTest() {
	path := filepath.Join(s.T().TempDir(), "test.db")
	p, err := storage.Open(path, 4096)
	s.Require().NoError(err)

	c, err := catalog.Open(p)
	s.Require().NoError(err)
	s.cat = c

	_, err = c.CreateCollection("users", "_id", document.KindInt32, storage.PageID(1))
	s.Require().NoError(err)
	s.Require().NoError(c.AddIndex("users", catalog.IndexDescriptor{Name: "by_email", Unique: true, Fields: []string{"email"}}))
	s.Require().NoError(c.AddIndex("users", catalog.IndexDescriptor{Name: "by_status_age", Unique: false, Fields: []string{"status", "age"}}))
}

func TestPlannerTestSuite(t *testing.T) {
	suite.Run(t, &PlannerTestSuite{})
}

func member(name string) *qeir.Member { return &qeir.Member{Name: name} }
func constant(v document.Value) *qeir.Constant { return &qeir.Constant{Value: v} }

func eq(field string, v document.Value) *qeir.Binary {
	return &qeir.Binary{Op: qeir.Equal, Left: member(field), Right: constant(v)}
}

func gt(field string, v document.Value) *qeir.Binary {
	return &qeir.Binary{Op: qeir.Greater, Left: member(field), Right: constant(v)}
}

func and(a, b qeir.Node) *qeir.Binary {
	return &qeir.Binary{Op: qeir.And, Left: a, Right: b}
}

func (s *PlannerTestSuite) TestNilPredicate_IsFullTableScan() {
	plan, err := Plan(s.cat, "users", nil)
	s.Require().NoError(err)
	s.Equal(FullTableScan, plan.Strategy)
	s.Nil(plan.Residual)
}

func (s *PlannerTestSuite) TestEqualityOnIDField_ChoosesPrimaryKeyLookup() {
	pred := eq("_id", document.NewInt32(42))
	plan, err := Plan(s.cat, "users", pred)
	s.Require().NoError(err)
	s.Equal(PrimaryKeyLookup, plan.Strategy)
	s.Require().Len(plan.Keys, 1)
	s.Equal("_id", plan.Keys[0].Field)
	s.Nil(plan.Residual)
}

func (s *PlannerTestSuite) TestEqualityOnSecondaryField_ChoosesIndexScan() {
	pred := eq("email", document.NewString("a@example.com"))
	plan, err := Plan(s.cat, "users", pred)
	s.Require().NoError(err)
	s.Equal(IndexScan, plan.Strategy)
	s.Require().NotNil(plan.Index)
	s.Equal("by_email", plan.Index.Name)
	s.Nil(plan.Residual)
}

func (s *PlannerTestSuite) TestCompoundPrefix_UsesLeadingEqualityThenRange() {
	pred := and(eq("status", document.NewString("active")), gt("age", document.NewInt32(21)))
	plan, err := Plan(s.cat, "users", pred)
	s.Require().NoError(err)
	s.Equal(IndexScan, plan.Strategy)
	s.Equal("by_status_age", plan.Index.Name)
	s.Require().Len(plan.Keys, 2)
	s.Equal("status", plan.Keys[0].Field)
	s.Equal(Equal, plan.Keys[0].Op)
	s.Equal("age", plan.Keys[1].Field)
	s.Equal(Greater, plan.Keys[1].Op)
	s.Nil(plan.Residual)
}

func (s *PlannerTestSuite) TestPartiallyCoveredPredicate_RetainsResidual() {
	pred := and(eq("status", document.NewString("active")), eq("nickname", document.NewString("bob")))
	plan, err := Plan(s.cat, "users", pred)
	s.Require().NoError(err)
	s.Equal(IndexScan, plan.Strategy)
	s.Require().Len(plan.Keys, 1)
	s.Require().NotNil(plan.Residual)
	residualEq, ok := plan.Residual.(*qeir.Binary)
	s.Require().True(ok)
	s.Equal(qeir.Equal, residualEq.Op)
}

func (s *PlannerTestSuite) TestNoUsableIndex_FallsBackToFullScan() {
	pred := eq("nickname", document.NewString("bob"))
	plan, err := Plan(s.cat, "users", pred)
	s.Require().NoError(err)
	s.Equal(FullTableScan, plan.Strategy)
	s.Require().NotNil(plan.Residual)
}

func (s *PlannerTestSuite) TestUnknownCollection_ReturnsError() {
	_, err := Plan(s.cat, "nope", nil)
	require.Error(s.T(), err)
}
