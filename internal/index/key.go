// Package index implements the B+Tree index manager: an ordered,
// possibly-composite Key type, a disk-backed B+Tree over collstore
// DocumentIDs, and a Manager that maintains a collection's
// primary and secondary indexes in step with writes to its document
// store.
package index

import (
	"github.com/joeandaverde/tinydb/internal/document"
)

// Key is an ordered tuple of values forming a composite index key. A
// single-field index produces length-1 keys; a compound index produces
// one component per indexed field, in declaration order.
type Key []document.Value

// Compare orders keys lexicographically, comparing components pairwise
// with document.Compare, which already applies the cross-type category
// ranking (null < number < string < binary < datetime < object id <
// boolean < array < document) and numeric promotion before comparing
// same-category values. A key that is a strict prefix of another sorts
// before it, so a shorter key can serve as one bound of a range scan
// over a compound index.
func Compare(a, b Key) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if c := document.Compare(a[i], b[i]); c != 0 {
			return c
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	default:
		return 0
	}
}

// Equal reports whether a and b compare equal component-for-component.
func Equal(a, b Key) bool { return len(a) == len(b) && Compare(a, b) == 0 }

// FromValues builds a Key from the values extracted for an index's
// declared fields, in order.
func FromValues(values ...document.Value) Key { return Key(values) }
