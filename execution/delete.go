package execution

import (
	"enginecore/storage/heap"
	"enginecore/storage/page"
)

// DeleteExecutor consumes its child's tuples, tombstoning each in the heap
// and removing the corresponding entry from every attached index, emitting
// a single row with the count (spec.md §4.5).
type DeleteExecutor struct {
	Child   Executor
	Table   *heap.TableHeap
	Indexes []IndexBinding

	done bool
}

func NewDeleteExecutor(child Executor, table *heap.TableHeap, indexes []IndexBinding) *DeleteExecutor {
	return &DeleteExecutor{Child: child, Table: table, Indexes: indexes}
}

func (e *DeleteExecutor) Init() error {
	e.done = false
	return e.Child.Init()
}

func (e *DeleteExecutor) Next() (Tuple, page.RID, bool, error) {
	if e.done {
		return Tuple{}, page.RID{}, false, nil
	}
	e.done = true

	count := int64(0)
	for {
		tuple, rid, ok, err := e.Child.Next()
		if err != nil {
			return Tuple{}, page.RID{}, false, err
		}
		if !ok {
			break
		}
		if err := e.Table.MarkDelete(rid); err != nil {
			return Tuple{}, page.RID{}, false, err
		}
		for _, b := range e.Indexes {
			if err := b.Index.Remove(keyFromTuple(tuple, b.KeyColumn)); err != nil {
				return Tuple{}, page.RID{}, false, err
			}
		}
		count++
	}
	return NewTuple(NewInteger(count)), page.RID{}, true, nil
}

func (e *DeleteExecutor) OutputSchema() *Schema { return countSchema }
