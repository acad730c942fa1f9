package execution

import (
	"strconv"

	"enginecore/storage/page"
)

// AggregateType names a supported aggregate function.
type AggregateType int

const (
	AggCountStar AggregateType = iota
	AggCount
	AggSum
	AggMin
	AggMax
)

type aggregateValue struct {
	value Value
	seen  bool // true once at least one non-null input has been combined.
}

// combine folds one input value into the running aggregate state, mirrored
// from original_source's SimpleAggregationHashTable::CombineAggregateValues.
func combine(t AggregateType, state aggregateValue, input Value) aggregateValue {
	if t == AggCountStar {
		if !state.seen {
			return aggregateValue{value: NewInteger(1), seen: true}
		}
		return aggregateValue{value: NewInteger(state.value.AsInt() + 1), seen: true}
	}
	if input.IsNull() {
		return state
	}
	if !state.seen {
		switch t {
		case AggCount:
			return aggregateValue{value: NewInteger(1), seen: true}
		default:
			return aggregateValue{value: input, seen: true}
		}
	}
	switch t {
	case AggCount:
		return aggregateValue{value: NewInteger(state.value.AsInt() + 1), seen: true}
	case AggSum:
		return aggregateValue{value: NewInteger(state.value.AsInt() + input.AsInt()), seen: true}
	case AggMin:
		if input.Compare(state.value) < 0 {
			return aggregateValue{value: input, seen: true}
		}
		return state
	case AggMax:
		if input.Compare(state.value) > 0 {
			return aggregateValue{value: input, seen: true}
		}
		return state
	default:
		return state
	}
}

func initialValue(t AggregateType) Value {
	if t == AggCountStar || t == AggCount {
		return NewInteger(0)
	}
	return NewNull(TypeInteger)
}

type aggGroupKey string

// AggregationExecutor materializes the group_key -> aggregate_state hash
// table during Init (spec.md §4.5). With no group-by, an empty input still
// emits one row (count-star 0, other aggregates null); with group-by, an
// empty input emits no rows.
type AggregationExecutor struct {
	Child      Executor
	GroupBys   []Expression
	Aggregates []Expression
	AggTypes   []AggregateType
	Schema     *Schema

	groups   map[aggGroupKey][]Value // group-by values, by encoded key
	states   map[aggGroupKey][]aggregateValue
	order    []aggGroupKey
	emitIdx  int
	isEmpty  bool
	executed bool
}

func NewAggregationExecutor(child Executor, groupBys, aggregates []Expression, aggTypes []AggregateType, schema *Schema) *AggregationExecutor {
	return &AggregationExecutor{Child: child, GroupBys: groupBys, Aggregates: aggregates, AggTypes: aggTypes, Schema: schema}
}

func groupKeyOf(values []Value) aggGroupKey {
	var k aggGroupKey
	for _, v := range values {
		if v.IsNull() {
			k += "\x00N\x00"
			continue
		}
		switch v.Type() {
		case TypeInteger:
			k += aggGroupKey(strconv.FormatInt(v.AsInt(), 10)) + "\x00i\x00"
		case TypeVarchar:
			k += aggGroupKey(v.AsString()) + "\x00s\x00"
		case TypeBoolean:
			if v.AsBool() {
				k += "\x00bt\x00"
			} else {
				k += "\x00bf\x00"
			}
		}
	}
	return k
}

func (e *AggregationExecutor) Init() error {
	if err := e.Child.Init(); err != nil {
		return err
	}
	e.groups = make(map[aggGroupKey][]Value)
	e.states = make(map[aggGroupKey][]aggregateValue)
	e.order = nil
	e.emitIdx = 0
	e.executed = false

	for {
		tuple, _, ok, err := e.Child.Next()
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		groupVals := make([]Value, len(e.GroupBys))
		for i, g := range e.GroupBys {
			groupVals[i] = g.Evaluate(tuple, e.Child.OutputSchema())
		}
		k := groupKeyOf(groupVals)
		states, exists := e.states[k]
		if !exists {
			states = make([]aggregateValue, len(e.AggTypes))
			for i, t := range e.AggTypes {
				states[i] = aggregateValue{value: initialValue(t)}
			}
			e.groups[k] = groupVals
			e.order = append(e.order, k)
		}
		for i, agg := range e.Aggregates {
			in := agg.Evaluate(tuple, e.Child.OutputSchema())
			states[i] = combine(e.AggTypes[i], states[i], in)
		}
		e.states[k] = states
	}

	e.isEmpty = len(e.order) == 0
	return nil
}

func (e *AggregationExecutor) Next() (Tuple, page.RID, bool, error) {
	if e.emitIdx < len(e.order) {
		k := e.order[e.emitIdx]
		e.emitIdx++
		values := append([]Value{}, e.groups[k]...)
		for _, s := range e.states[k] {
			values = append(values, s.value)
		}
		return Tuple{Values: values}, page.RID{}, true, nil
	}

	if e.isEmpty && !e.executed {
		e.executed = true
		if len(e.GroupBys) > 0 {
			return Tuple{}, page.RID{}, false, nil
		}
		values := make([]Value, len(e.AggTypes))
		for i, t := range e.AggTypes {
			if t == AggCountStar {
				values[i] = NewInteger(0)
			} else {
				values[i] = NewNull(TypeInteger)
			}
		}
		return Tuple{Values: values}, page.RID{}, true, nil
	}
	return Tuple{}, page.RID{}, false, nil
}

func (e *AggregationExecutor) OutputSchema() *Schema { return e.Schema }
