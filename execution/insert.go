package execution

import (
	"enginecore/storage/heap"
	"enginecore/storage/index"
	"enginecore/storage/page"
)

// IndexBinding associates one attached index with the tuple column it is
// keyed on.
type IndexBinding struct {
	Index     *index.Tree
	KeyColumn int
}

func keyFromTuple(t Tuple, col int) page.Key {
	return page.Key(t.Get(col).AsInt())
}

var countSchema = NewSchema(Column{Name: "count", Type: TypeInteger})

// InsertExecutor consumes its child's tuples, inserting each into the table
// heap and every attached index, and emits a single row with the count
// (spec.md §4.5).
type InsertExecutor struct {
	Child   Executor
	Table   *heap.TableHeap
	Schema  *Schema
	Indexes []IndexBinding

	done bool
}

func NewInsertExecutor(child Executor, table *heap.TableHeap, schema *Schema, indexes []IndexBinding) *InsertExecutor {
	return &InsertExecutor{Child: child, Table: table, Schema: schema, Indexes: indexes}
}

func (e *InsertExecutor) Init() error {
	e.done = false
	return e.Child.Init()
}

func (e *InsertExecutor) Next() (Tuple, page.RID, bool, error) {
	if e.done {
		return Tuple{}, page.RID{}, false, nil
	}
	e.done = true

	count := int64(0)
	for {
		tuple, _, ok, err := e.Child.Next()
		if err != nil {
			return Tuple{}, page.RID{}, false, err
		}
		if !ok {
			break
		}
		rid, err := e.Table.InsertTuple(tuple.Serialize(e.Schema))
		if err != nil {
			return Tuple{}, page.RID{}, false, err
		}
		for _, b := range e.Indexes {
			if _, err := b.Index.Insert(keyFromTuple(tuple, b.KeyColumn), rid); err != nil {
				return Tuple{}, page.RID{}, false, err
			}
		}
		count++
	}
	return NewTuple(NewInteger(count)), page.RID{}, true, nil
}

func (e *InsertExecutor) OutputSchema() *Schema { return countSchema }
