package tinydb

import (
	"github.com/joeandaverde/tinydb/internal/collstore"
	"github.com/joeandaverde/tinydb/internal/document"
	"github.com/joeandaverde/tinydb/internal/index"
	"github.com/joeandaverde/tinydb/internal/pipeline"
	"github.com/joeandaverde/tinydb/internal/planner"
	"github.com/joeandaverde/tinydb/internal/tinyerr"
)

// storeReader adapts collstore.Cursor's whole-collection walk to
// pipeline.Reader, for a FullTableScan plan.
type storeReader struct {
	cursor *collstore.Cursor
}

func (r *storeReader) Read() (pipeline.Row, bool, error) {
	_, doc, ok, err := r.cursor.Next()
	if err != nil || !ok {
		return pipeline.Row{}, false, err
	}
	return pipeline.Row{Doc: doc}, true, nil
}

// indexReader walks an index.Cursor's key/id pairs and resolves each
// id through the document heap, for a PrimaryKeyLookup or IndexScan
// plan.
type indexReader struct {
	store  *collstore.Store
	cursor *index.Cursor
}

func (r *indexReader) Read() (pipeline.Row, bool, error) {
	_, id, ok, err := r.cursor.Next()
	if err != nil || !ok {
		return pipeline.Row{}, false, err
	}
	doc, err := r.store.Get(id)
	if err != nil {
		return pipeline.Row{}, false, err
	}
	return pipeline.Row{Doc: doc}, true, nil
}

// reader builds the pipeline.Reader that carries out plan's chosen
// access path over c's document heap and indexes.
func (c *Collection) reader(plan *planner.ExecutionPlan) (pipeline.Reader, error) {
	switch plan.Strategy {
	case planner.PrimaryKeyLookup:
		key := index.FromValues(plan.Keys[0].Value)
		tree, _, ok := c.indexes.Index("_primary")
		if !ok {
			return nil, tinyerr.New(tinyerr.CorruptDatabase, "collection has no primary index: "+c.name)
		}
		cursor, err := tree.RangeScan(&index.Bound{Key: key, Inclusive: true}, &index.Bound{Key: key, Inclusive: true})
		if err != nil {
			return nil, err
		}
		return &indexReader{store: c.store, cursor: cursor}, nil

	case planner.IndexScan:
		tree, _, ok := c.indexes.Index(plan.Index.Name)
		if !ok {
			return nil, tinyerr.New(tinyerr.NotFound, "index not found: "+plan.Index.Name)
		}
		lower, upper, prefixLen := scanBounds(plan.Keys)
		cursor, err := tree.RangeScan(lower, upper)
		if err != nil {
			return nil, err
		}
		if prefixLen == 0 {
			return &indexReader{store: c.store, cursor: cursor}, nil
		}
		return &prefixBoundedReader{
			store:     c.store,
			cursor:    cursor,
			prefix:    equalityPrefix(plan.Keys),
			prefixLen: prefixLen,
		}, nil

	default:
		cursor, err := c.store.Scan()
		if err != nil {
			return nil, err
		}
		return &storeReader{cursor: cursor}, nil
	}
}

// equalityPrefix collects the leading run of IndexScanKey values whose
// operator is Equal; per the planner's own decomposition contract
// there is at most one trailing non-equality atom after this run.
func equalityPrefix(keys []planner.IndexScanKey) []document.Value {
	var values []document.Value
	for _, k := range keys {
		if k.Op != planner.Equal {
			break
		}
		values = append(values, k.Value)
	}
	return values
}

// scanBounds translates an ordered IndexScanKey list into the lower
// and upper index.Bound RangeScan needs. The leading equality atoms
// become a shared key prefix; at most one trailing range atom follows
// them and supplies whichever side of the bound pair it doesn't leave
// open. Because index.Key.Compare treats a strict prefix as sorting
// before any longer key that extends it, a pure equality-prefix lower
// bound is reached exactly at the first matching entry — but since
// there is no value to use as "one past" the prefix for an upper
// bound, the caller must additionally stop consuming once a returned
// key's leading components stop matching the prefix (prefixBoundedReader
// does this).
func scanBounds(keys []planner.IndexScanKey) (lower, upper *index.Bound, prefixLen int) {
	equality := equalityPrefix(keys)
	prefixLen = len(equality)

	if len(keys) == prefixLen {
		// Pure equality: scan from the prefix onward, bounded only by
		// prefixBoundedReader's leading-component check.
		if prefixLen == 0 {
			return nil, nil, 0
		}
		return &index.Bound{Key: index.FromValues(equality...), Inclusive: true}, nil, prefixLen
	}

	rangeKey := keys[prefixLen]
	full := append(append([]document.Value(nil), equality...), rangeKey.Value)
	bound := &index.Bound{Key: index.FromValues(full...)}

	switch rangeKey.Op {
	case planner.Greater:
		bound.Inclusive = false
		return bound, nil, prefixLen
	case planner.GreaterEq:
		bound.Inclusive = true
		return bound, nil, prefixLen
	case planner.Less:
		bound.Inclusive = false
		var lowerBound *index.Bound
		if prefixLen > 0 {
			lowerBound = &index.Bound{Key: index.FromValues(equality...), Inclusive: true}
		}
		return lowerBound, bound, prefixLen
	case planner.LessEq:
		bound.Inclusive = true
		var lowerBound *index.Bound
		if prefixLen > 0 {
			lowerBound = &index.Bound{Key: index.FromValues(equality...), Inclusive: true}
		}
		return lowerBound, bound, prefixLen
	default:
		return nil, nil, prefixLen
	}
}

// prefixBoundedReader reads an index cursor like indexReader, for a scan whose lower
// bound is an equality prefix shorter than the index's full key: it
// stops the scan as soon as a returned entry's leading components no
// longer match that prefix, since the B+Tree's sort order keeps every
// entry sharing the prefix contiguous.
type prefixBoundedReader struct {
	store     *collstore.Store
	cursor    *index.Cursor
	prefix    []document.Value
	prefixLen int
	done      bool
}

func (r *prefixBoundedReader) Read() (pipeline.Row, bool, error) {
	if r.done {
		return pipeline.Row{}, false, nil
	}
	key, id, ok, err := r.cursor.Next()
	if err != nil || !ok {
		r.done = true
		return pipeline.Row{}, false, err
	}
	for i := 0; i < r.prefixLen && i < len(key); i++ {
		if document.Compare(key[i], r.prefix[i]) != 0 {
			r.done = true
			return pipeline.Row{}, false, nil
		}
	}
	doc, err := r.store.Get(id)
	if err != nil {
		return pipeline.Row{}, false, err
	}
	return pipeline.Row{Doc: doc}, true, nil
}
