package qeir

import (
	"testing"

	"github.com/joeandaverde/tinydb/internal/document"
	"github.com/stretchr/testify/assert"
)

func TestNodes_SatisfyNodeInterface(t *testing.T) {
	var nodes []Node = []Node{
		&Constant{Value: document.NewInt32(1)},
		&Parameter{Name: "record"},
		&Member{Name: "email"},
		&Member{Name: "street", Inner: &Member{Name: "address"}},
		&Unary{Op: Not, Operand: &Constant{Value: document.NewBool(true)}},
		&Binary{Op: Equal, Left: &Member{Name: "age"}, Right: &Constant{Value: document.NewInt32(30)}},
		&Function{Name: "Contains", Target: &Member{Name: "name"}, Arguments: []Node{&Constant{Value: document.NewString("a")}}},
		&Conditional{Test: &Constant{Value: document.NewBool(true)}, IfTrue: &Constant{Value: document.NewInt32(1)}, IfFalse: &Constant{Value: document.NewInt32(2)}},
		&Constructor{Type: document.KindDocument, Arguments: []Node{&Member{Name: "a"}}},
		&MemberInit{Type: document.KindDocument, Members: []MemberAssignment{{Name: "a", Value: &Member{Name: "a"}}}},
	}
	assert.Len(t, nodes, 10)
}

func TestMember_NestedAccessChain(t *testing.T) {
	m := &Member{Name: "city", Inner: &Member{Name: "address"}}
	inner, ok := m.Inner.(*Member)
	assert.True(t, ok)
	assert.Equal(t, "address", inner.Name)
	assert.Nil(t, inner.Inner)
}
