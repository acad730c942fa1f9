package execution

// Expression evaluates to a Value given a row (or, for join predicates, a
// pair of rows from the left and right children).
//
// Grounded in shape on yamoyamoto-GarakutaDB/expression's small sum-type
// Expression tree, rebuilt without its sqlparser dependency (SQL parsing is
// out of scope here — plan trees are constructed directly by callers).
type Expression interface {
	Evaluate(tuple Tuple, schema *Schema) Value
	EvaluateJoin(left Tuple, leftSchema *Schema, right Tuple, rightSchema *Schema) Value
}

// ColumnRef reads one column by index from a single-tuple schema.
type ColumnRef struct {
	ColIndex int
}

func (e *ColumnRef) Evaluate(tuple Tuple, _ *Schema) Value { return tuple.Get(e.ColIndex) }

func (e *ColumnRef) EvaluateJoin(left Tuple, leftSchema *Schema, right Tuple, _ *Schema) Value {
	if e.ColIndex < len(leftSchema.Columns) {
		return left.Get(e.ColIndex)
	}
	return right.Get(e.ColIndex - len(leftSchema.Columns))
}

// Literal evaluates to a fixed value regardless of input.
type Literal struct {
	Value Value
}

func (e *Literal) Evaluate(Tuple, *Schema) Value { return e.Value }
func (e *Literal) EvaluateJoin(Tuple, *Schema, Tuple, *Schema) Value { return e.Value }

// CompareOp names a comparison operator.
type CompareOp int

const (
	OpEqual CompareOp = iota
	OpNotEqual
	OpLess
	OpLessEqual
	OpGreater
	OpGreaterEqual
)

// Comparison evaluates Left <op> Right to a boolean; a null operand makes
// the comparison false (three-valued logic collapsed to false, matching the
// "unmatched" behavior NestedLoopJoin/HashJoin need for LEFT join).
type Comparison struct {
	Op    CompareOp
	Left  Expression
	Right Expression
}

func (e *Comparison) Evaluate(tuple Tuple, schema *Schema) Value {
	return e.eval(e.Left.Evaluate(tuple, schema), e.Right.Evaluate(tuple, schema))
}

func (e *Comparison) EvaluateJoin(left Tuple, leftSchema *Schema, right Tuple, rightSchema *Schema) Value {
	lv := e.Left.EvaluateJoin(left, leftSchema, right, rightSchema)
	rv := e.Right.EvaluateJoin(left, leftSchema, right, rightSchema)
	return e.eval(lv, rv)
}

func (e *Comparison) eval(lv, rv Value) Value {
	if lv.IsNull() || rv.IsNull() {
		return NewBoolean(false)
	}
	c := lv.Compare(rv)
	switch e.Op {
	case OpEqual:
		return NewBoolean(c == 0)
	case OpNotEqual:
		return NewBoolean(c != 0)
	case OpLess:
		return NewBoolean(c < 0)
	case OpLessEqual:
		return NewBoolean(c <= 0)
	case OpGreater:
		return NewBoolean(c > 0)
	case OpGreaterEqual:
		return NewBoolean(c >= 0)
	default:
		return NewBoolean(false)
	}
}

// And evaluates Left && Right.
type And struct {
	Left  Expression
	Right Expression
}

func (e *And) Evaluate(tuple Tuple, schema *Schema) Value {
	l := e.Left.Evaluate(tuple, schema)
	r := e.Right.Evaluate(tuple, schema)
	return NewBoolean(!l.IsNull() && !r.IsNull() && l.AsBool() && r.AsBool())
}

func (e *And) EvaluateJoin(left Tuple, leftSchema *Schema, right Tuple, rightSchema *Schema) Value {
	l := e.Left.EvaluateJoin(left, leftSchema, right, rightSchema)
	r := e.Right.EvaluateJoin(left, leftSchema, right, rightSchema)
	return NewBoolean(!l.IsNull() && !r.IsNull() && l.AsBool() && r.AsBool())
}
