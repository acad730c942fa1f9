package execution

import "enginecore/storage/page"

// JoinType selects NestedLoopJoin/HashJoin behavior.
type JoinType int

const (
	JoinInner JoinType = iota
	JoinLeft
)

// NestedLoopJoinExecutor is left-deep: for each left tuple, the right child
// is restarted and scanned in full. INNER emits the filtered cross product;
// LEFT pads with nulls when nothing on the right matched a given left
// tuple, using a "matched" flag reset on every fresh left tuple (spec.md
// §4.5), mirrored from original_source's nested_loop_join_executor.cpp.
type NestedLoopJoinExecutor struct {
	Left      Executor
	Right     Executor
	Predicate Expression
	Type      JoinType

	leftTuple   Tuple
	leftOK      bool
	leftMatched bool
	rightNulls  Tuple
}

func NewNestedLoopJoinExecutor(left, right Executor, predicate Expression, joinType JoinType) *NestedLoopJoinExecutor {
	return &NestedLoopJoinExecutor{Left: left, Right: right, Predicate: predicate, Type: joinType}
}

func (e *NestedLoopJoinExecutor) Init() error {
	if err := e.Left.Init(); err != nil {
		return err
	}
	nulls := make([]Value, e.Right.OutputSchema().ColumnCount())
	for i, c := range e.Right.OutputSchema().Columns {
		nulls[i] = NewNull(c.Type)
	}
	e.rightNulls = Tuple{Values: nulls}

	tuple, _, ok, err := e.Left.Next()
	if err != nil {
		return err
	}
	e.leftTuple, e.leftOK = tuple, ok
	e.leftMatched = false
	if ok {
		return e.Right.Init()
	}
	return nil
}

func (e *NestedLoopJoinExecutor) Next() (Tuple, page.RID, bool, error) {
	for e.leftOK {
		rightTuple, _, rok, err := e.Right.Next()
		if err != nil {
			return Tuple{}, page.RID{}, false, err
		}
		if rok {
			match := e.Predicate.EvaluateJoin(e.leftTuple, e.Left.OutputSchema(), rightTuple, e.Right.OutputSchema())
			if !match.IsNull() && match.AsBool() {
				e.leftMatched = true
				return ConcatTuples(e.leftTuple, rightTuple), page.RID{}, true, nil
			}
			continue
		}

		// Right exhausted for this left tuple.
		var emitUnmatched Tuple
		emit := false
		if e.Type == JoinLeft && !e.leftMatched {
			emitUnmatched = ConcatTuples(e.leftTuple, e.rightNulls)
			emit = true
		}

		nextTuple, _, nok, err := e.Left.Next()
		if err != nil {
			return Tuple{}, page.RID{}, false, err
		}
		e.leftTuple, e.leftOK = nextTuple, nok
		e.leftMatched = false
		if nok {
			if err := e.Right.Init(); err != nil {
				return Tuple{}, page.RID{}, false, err
			}
		}
		if emit {
			return emitUnmatched, page.RID{}, true, nil
		}
	}
	return Tuple{}, page.RID{}, false, nil
}

func (e *NestedLoopJoinExecutor) OutputSchema() *Schema {
	return Concat(e.Left.OutputSchema(), e.Right.OutputSchema())
}
