package execution

import (
	"enginecore/storage/heap"
	"enginecore/storage/index"
	"enginecore/storage/page"
)

// IndexScanExecutor walks a B+ tree iterator and fetches each matching
// tuple from the heap, skipping tombstones (spec.md §4.5). StartKey is
// optional: nil means a full forward scan from the leftmost leaf.
type IndexScanExecutor struct {
	Index    *index.Tree
	Table    *heap.TableHeap
	Schema   *Schema
	StartKey *page.Key

	it *index.Iterator
}

func NewIndexScanExecutor(idx *index.Tree, table *heap.TableHeap, schema *Schema, startKey *page.Key) *IndexScanExecutor {
	return &IndexScanExecutor{Index: idx, Table: table, Schema: schema, StartKey: startKey}
}

func (e *IndexScanExecutor) Init() error {
	if e.it != nil {
		e.it.Close()
	}
	var it *index.Iterator
	var err error
	if e.StartKey != nil {
		it, err = e.Index.BeginAt(*e.StartKey)
	} else {
		it, err = e.Index.Begin()
	}
	if err != nil {
		return err
	}
	e.it = it
	return nil
}

func (e *IndexScanExecutor) Next() (Tuple, page.RID, bool, error) {
	for e.it.Valid() {
		rid := e.it.RID()
		e.it.Next()
		data, ok, err := e.Table.GetTuple(rid)
		if err != nil {
			return Tuple{}, page.RID{}, false, err
		}
		if !ok {
			continue // tombstone.
		}
		return DeserializeTuple(data, e.Schema), rid, true, nil
	}
	return Tuple{}, page.RID{}, false, nil
}

func (e *IndexScanExecutor) OutputSchema() *Schema { return e.Schema }
