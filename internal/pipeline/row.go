// Package pipeline implements the post-access-path query stages:
// filter, project, order, skip/take, distinct, group, aggregate, and
// the scalar terminal reducers. It consumes a document iterator — the
// planner's chosen access path materialized into documents — and never
// touches storage itself.
package pipeline

import (
	"github.com/joeandaverde/tinydb/internal/document"
)

// scalarField names the synthetic single field a non-document
// projected value is wrapped under, so every row flowing through the
// pipeline can still be addressed as a record by the evaluator.
const scalarField = "$value"

// Row is one record flowing through the pipeline.
type Row struct {
	Doc *document.Document
}

// Reader is a pull-based document source: a single-method iterator an
// access path implements to feed rows into a Pipeline.
type Reader interface {
	// Read returns the next row. ok is false once the source is
	// exhausted; err is non-nil only on a genuine read failure.
	Read() (Row, bool, error)
}

// SliceReader adapts an in-memory document slice to Reader, used by
// callers (tests, and small in-memory result sets) that already have
// documents rather than a live storage cursor.
type SliceReader struct {
	docs []*document.Document
	pos  int
}

func NewSliceReader(docs []*document.Document) *SliceReader {
	return &SliceReader{docs: docs}
}

func (r *SliceReader) Read() (Row, bool, error) {
	if r.pos >= len(r.docs) {
		return Row{}, false, nil
	}
	d := r.docs[r.pos]
	r.pos++
	return Row{Doc: d}, true, nil
}

// wrapValue converts an evaluator result back into a row-shaped
// document: a document value passes through unchanged, anything else
// is wrapped under scalarField.
func wrapValue(v document.Value) *document.Document {
	if d, ok := v.AsDocument(); ok {
		return d
	}
	doc := document.New()
	doc.Set(scalarField, v)
	return doc
}

// rowValue is the inverse: the comparable value a row represents,
// unwrapping a scalar that wrapValue boxed.
func rowValue(doc *document.Document) document.Value {
	if v, ok := doc.Get(scalarField); ok && doc.Len() == 1 {
		return v
	}
	return document.NewDocument(doc)
}

// valuesEqual is structural value-equality: documents compare
// field-by-field and arrays element-by-element, unlike
// document.Compare's pointer-identity fallback for documents (which
// exists for ordering, not equality). Distinct and GroupBy need real
// content equality.
func valuesEqual(a, b document.Value) bool {
	if a.Kind() != b.Kind() {
		if a.IsNumeric() && b.IsNumeric() {
			return document.Compare(a, b) == 0
		}
		return false
	}
	switch a.Kind() {
	case document.KindDocument:
		da, _ := a.AsDocument()
		db, _ := b.AsDocument()
		if da.Len() != db.Len() {
			return false
		}
		for _, f := range da.Fields() {
			ov, ok := db.Get(f.Name)
			if !ok || !valuesEqual(f.Value, ov) {
				return false
			}
		}
		return true
	case document.KindArray:
		aa, _ := a.AsArray()
		ba, _ := b.AsArray()
		if len(aa) != len(ba) {
			return false
		}
		for i := range aa {
			if !valuesEqual(aa[i], ba[i]) {
				return false
			}
		}
		return true
	default:
		return document.Compare(a, b) == 0
	}
}
