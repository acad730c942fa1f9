package execution

import (
	"sort"

	"enginecore/storage/page"
)

// OrderByType selects sort direction for one sort key.
type OrderByType int

const (
	OrderAsc OrderByType = iota
	OrderDesc
)

// OrderBySpec is one (direction, expression) pair in a sort key list.
type OrderBySpec struct {
	Type OrderByType
	Expr Expression
}

// compareByOrderBys implements spec.md §4.5's lexicographic comparison:
// equal on a key moves to the next key; the final tiebreak is "equal".
func compareByOrderBys(a, b Tuple, schema *Schema, specs []OrderBySpec) int {
	for _, s := range specs {
		av := s.Expr.Evaluate(a, schema)
		bv := s.Expr.Evaluate(b, schema)
		c := av.Compare(bv)
		if c == 0 {
			continue
		}
		if s.Type == OrderDesc {
			return -c
		}
		return c
	}
	return 0
}

// SortExecutor fully materializes its child and sorts it (spec.md §4.5).
type SortExecutor struct {
	Child    Executor
	OrderBys []OrderBySpec

	rows []Tuple
	idx  int
}

func NewSortExecutor(child Executor, orderBys []OrderBySpec) *SortExecutor {
	return &SortExecutor{Child: child, OrderBys: orderBys}
}

func (e *SortExecutor) Init() error {
	if err := e.Child.Init(); err != nil {
		return err
	}
	e.rows = nil
	for {
		t, _, ok, err := e.Child.Next()
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		e.rows = append(e.rows, t)
	}
	schema := e.Child.OutputSchema()
	sort.SliceStable(e.rows, func(i, j int) bool {
		return compareByOrderBys(e.rows[i], e.rows[j], schema, e.OrderBys) < 0
	})
	e.idx = 0
	return nil
}

func (e *SortExecutor) Next() (Tuple, page.RID, bool, error) {
	if e.idx >= len(e.rows) {
		return Tuple{}, page.RID{}, false, nil
	}
	t := e.rows[e.idx]
	e.idx++
	return t, page.RID{}, true, nil
}

func (e *SortExecutor) OutputSchema() *Schema { return e.Child.OutputSchema() }
