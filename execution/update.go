package execution

import (
	"enginecore/storage/heap"
	"enginecore/storage/page"
)

// UpdateExecutor implements update as delete-then-insert on the heap, per
// spec.md §4.5: each affected index has its old key removed and new key
// inserted. NewValues computes the replacement row from the child's output.
type UpdateExecutor struct {
	Child     Executor
	Table     *heap.TableHeap
	Schema    *Schema
	Indexes   []IndexBinding
	NewValues func(old Tuple) Tuple

	done bool
}

func NewUpdateExecutor(child Executor, table *heap.TableHeap, schema *Schema, indexes []IndexBinding, newValues func(Tuple) Tuple) *UpdateExecutor {
	return &UpdateExecutor{Child: child, Table: table, Schema: schema, Indexes: indexes, NewValues: newValues}
}

func (e *UpdateExecutor) Init() error {
	e.done = false
	return e.Child.Init()
}

func (e *UpdateExecutor) Next() (Tuple, page.RID, bool, error) {
	if e.done {
		return Tuple{}, page.RID{}, false, nil
	}
	e.done = true

	count := int64(0)
	for {
		oldTuple, rid, ok, err := e.Child.Next()
		if err != nil {
			return Tuple{}, page.RID{}, false, err
		}
		if !ok {
			break
		}
		newTuple := e.NewValues(oldTuple)

		if err := e.Table.MarkDelete(rid); err != nil {
			return Tuple{}, page.RID{}, false, err
		}
		newRID, err := e.Table.InsertTuple(newTuple.Serialize(e.Schema))
		if err != nil {
			return Tuple{}, page.RID{}, false, err
		}
		for _, b := range e.Indexes {
			oldKey := keyFromTuple(oldTuple, b.KeyColumn)
			newKey := keyFromTuple(newTuple, b.KeyColumn)
			if err := b.Index.Remove(oldKey); err != nil {
				return Tuple{}, page.RID{}, false, err
			}
			if _, err := b.Index.Insert(newKey, newRID); err != nil {
				return Tuple{}, page.RID{}, false, err
			}
		}
		count++
	}
	return NewTuple(NewInteger(count)), page.RID{}, true, nil
}

func (e *UpdateExecutor) OutputSchema() *Schema { return countSchema }
