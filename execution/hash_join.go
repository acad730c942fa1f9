package execution

import "enginecore/storage/page"

type hashJoinKey struct {
	isNull bool
	typ    TypeID
	i      int64
	s      string
	b      bool
}

func makeHashKey(v Value) hashJoinKey {
	if v.IsNull() {
		return hashJoinKey{isNull: true, typ: v.Type()}
	}
	switch v.Type() {
	case TypeInteger:
		return hashJoinKey{typ: TypeInteger, i: v.AsInt()}
	case TypeVarchar:
		return hashJoinKey{typ: TypeVarchar, s: v.AsString()}
	case TypeBoolean:
		return hashJoinKey{typ: TypeBoolean, b: v.AsBool()}
	default:
		return hashJoinKey{}
	}
}

// HashJoinExecutor builds an in-memory join_key -> []right_tuple multimap
// from the right child during Init, then probes it once per left tuple
// during Next (spec.md §4.5).
type HashJoinExecutor struct {
	Left     Executor
	Right    Executor
	LeftKey  Expression
	RightKey Expression
	Type     JoinType

	table map[hashJoinKey][]Tuple

	leftTuple  Tuple
	leftOK     bool
	matches    []Tuple
	matchIdx   int
	matched    bool
	rightNulls Tuple
}

func NewHashJoinExecutor(left, right Executor, leftKey, rightKey Expression, joinType JoinType) *HashJoinExecutor {
	return &HashJoinExecutor{Left: left, Right: right, LeftKey: leftKey, RightKey: rightKey, Type: joinType}
}

func (e *HashJoinExecutor) Init() error {
	if err := e.Right.Init(); err != nil {
		return err
	}
	e.table = make(map[hashJoinKey][]Tuple)
	for {
		rt, _, ok, err := e.Right.Next()
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		k := makeHashKey(e.RightKey.Evaluate(rt, e.Right.OutputSchema()))
		e.table[k] = append(e.table[k], rt)
	}

	nulls := make([]Value, e.Right.OutputSchema().ColumnCount())
	for i, c := range e.Right.OutputSchema().Columns {
		nulls[i] = NewNull(c.Type)
	}
	e.rightNulls = Tuple{Values: nulls}

	if err := e.Left.Init(); err != nil {
		return err
	}
	return e.advanceLeft()
}

func (e *HashJoinExecutor) advanceLeft() error {
	tuple, _, ok, err := e.Left.Next()
	if err != nil {
		return err
	}
	e.leftTuple, e.leftOK = tuple, ok
	e.matchIdx, e.matched = 0, false
	if ok {
		k := makeHashKey(e.LeftKey.Evaluate(tuple, e.Left.OutputSchema()))
		e.matches = e.table[k]
	} else {
		e.matches = nil
	}
	return nil
}

func (e *HashJoinExecutor) Next() (Tuple, page.RID, bool, error) {
	for e.leftOK {
		if e.matchIdx < len(e.matches) {
			rt := e.matches[e.matchIdx]
			e.matchIdx++
			e.matched = true
			return ConcatTuples(e.leftTuple, rt), page.RID{}, true, nil
		}

		emit := e.Type == JoinLeft && !e.matched
		var row Tuple
		if emit {
			row = ConcatTuples(e.leftTuple, e.rightNulls)
		}
		if err := e.advanceLeft(); err != nil {
			return Tuple{}, page.RID{}, false, err
		}
		if emit {
			return row, page.RID{}, true, nil
		}
	}
	return Tuple{}, page.RID{}, false, nil
}

func (e *HashJoinExecutor) OutputSchema() *Schema {
	return Concat(e.Left.OutputSchema(), e.Right.OutputSchema())
}
