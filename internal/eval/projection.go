package eval

import (
	"fmt"

	"github.com/joeandaverde/tinydb/internal/document"
	"github.com/joeandaverde/tinydb/internal/qeir"
)

// evalConstructor builds a positional projection. An array type yields
// the evaluated arguments in order; a document type names them
// Item1, Item2, ... the way a positional tuple projection would;
// any other type requires exactly one argument and converts it.
func evalConstructor(n *qeir.Constructor, record *document.Document) (document.Value, error) {
	values := make([]document.Value, len(n.Arguments))
	for i, a := range n.Arguments {
		v, err := Evaluate(a, record)
		if err != nil {
			return document.Null, err
		}
		values[i] = v
	}

	switch n.Type {
	case document.KindArray:
		return document.NewArray(values), nil
	case document.KindDocument:
		doc := document.New()
		for i, v := range values {
			doc.Set(fmt.Sprintf("Item%d", i+1), v)
		}
		return document.NewDocument(doc), nil
	default:
		if len(values) != 1 {
			return document.Null, nil
		}
		return convert(values[0], n.Type)
	}
}

// evalMemberInit builds a named-member projection, the shape a `select
// new { A = x, B = y }` projection produces. Assignment order is
// preserved the same way Document.Set preserves field order.
func evalMemberInit(n *qeir.MemberInit, record *document.Document) (document.Value, error) {
	doc := document.New()
	for _, m := range n.Members {
		v, err := Evaluate(m.Value, record)
		if err != nil {
			return document.Null, err
		}
		doc.Set(m.Name, v)
	}
	return document.NewDocument(doc), nil
}
