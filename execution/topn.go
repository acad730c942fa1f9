package execution

import (
	"container/heap"
	"sort"

	"enginecore/storage/page"
)

// topNHeap is a max-heap (by the Sort comparator) of at most N tuples: the
// worst surviving tuple sits at index 0, so pushing past N pops it.
type topNHeap struct {
	rows   []Tuple
	schema *Schema
	specs  []OrderBySpec
}

func (h topNHeap) Len() int { return len(h.rows) }
func (h topNHeap) Less(i, j int) bool {
	// Max-heap on "worseness": a comes before b if a sorts after b.
	return compareByOrderBys(h.rows[i], h.rows[j], h.schema, h.specs) > 0
}
func (h topNHeap) Swap(i, j int) { h.rows[i], h.rows[j] = h.rows[j], h.rows[i] }
func (h *topNHeap) Push(x any)   { h.rows = append(h.rows, x.(Tuple)) }
func (h *topNHeap) Pop() any {
	old := h.rows
	n := len(old)
	v := old[n-1]
	h.rows = old[:n-1]
	return v
}

// TopNExecutor keeps the N best tuples under OrderBys (spec.md §4.5): push
// every child tuple during Init, dropping the worst once the heap exceeds
// N; drain in sorted order during Next.
type TopNExecutor struct {
	Child    Executor
	OrderBys []OrderBySpec
	N        int

	result []Tuple
	idx    int
}

func NewTopNExecutor(child Executor, orderBys []OrderBySpec, n int) *TopNExecutor {
	return &TopNExecutor{Child: child, OrderBys: orderBys, N: n}
}

func (e *TopNExecutor) Init() error {
	if err := e.Child.Init(); err != nil {
		return err
	}
	schema := e.Child.OutputSchema()
	h := &topNHeap{schema: schema, specs: e.OrderBys}

	for {
		t, _, ok, err := e.Child.Next()
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		heap.Push(h, t)
		if h.Len() > e.N {
			heap.Pop(h)
		}
	}

	e.result = append([]Tuple{}, h.rows...)
	sort.SliceStable(e.result, func(i, j int) bool {
		return compareByOrderBys(e.result[i], e.result[j], schema, e.OrderBys) < 0
	})
	e.idx = 0
	return nil
}

func (e *TopNExecutor) Next() (Tuple, page.RID, bool, error) {
	if e.idx >= len(e.result) {
		return Tuple{}, page.RID{}, false, nil
	}
	t := e.result[e.idx]
	e.idx++
	return t, page.RID{}, true, nil
}

func (e *TopNExecutor) OutputSchema() *Schema { return e.Child.OutputSchema() }
