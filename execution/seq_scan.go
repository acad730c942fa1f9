package execution

import (
	"enginecore/storage/heap"
	"enginecore/storage/page"
)

// SeqScanExecutor iterates a table heap, skipping tombstones — the heap
// iterator already does that filtering (spec.md §4.5).
type SeqScanExecutor struct {
	Table  *heap.TableHeap
	Schema *Schema

	it *heap.Iterator
}

func NewSeqScanExecutor(table *heap.TableHeap, schema *Schema) *SeqScanExecutor {
	return &SeqScanExecutor{Table: table, Schema: schema}
}

func (e *SeqScanExecutor) Init() error {
	if e.it != nil {
		e.it.Close()
	}
	e.it = e.Table.Begin()
	return nil
}

func (e *SeqScanExecutor) Next() (Tuple, page.RID, bool, error) {
	if !e.it.Valid() {
		return Tuple{}, page.RID{}, false, nil
	}
	rid := e.it.RID()
	tuple := DeserializeTuple(e.it.Tuple(), e.Schema)
	e.it.Next()
	return tuple, rid, true, nil
}

func (e *SeqScanExecutor) OutputSchema() *Schema { return e.Schema }
