package execution

// Tuple is a row of Values, interpreted against a Schema the caller already
// knows (it is not carried alongside the tuple).
type Tuple struct {
	Values []Value
}

func NewTuple(values ...Value) Tuple { return Tuple{Values: values} }

func (t Tuple) Get(i int) Value { return t.Values[i] }

// Serialize encodes t according to schema's column order and types, for
// storage in a TableHeap page.
func (t Tuple) Serialize(schema *Schema) []byte {
	total := 0
	for i, c := range schema.Columns {
		total += encodedSize(c.Type, t.Values[i])
	}
	buf := make([]byte, total)
	off := 0
	for i, c := range schema.Columns {
		off += encodeValue(buf[off:], c.Type, t.Values[i])
	}
	return buf
}

// DeserializeTuple decodes bytes written by Serialize back into a Tuple.
func DeserializeTuple(data []byte, schema *Schema) Tuple {
	values := make([]Value, len(schema.Columns))
	off := 0
	for i, c := range schema.Columns {
		v, n := decodeValue(data[off:], c.Type)
		values[i] = v
		off += n
	}
	return Tuple{Values: values}
}

// Project returns a new tuple taking the values at indices from t, without
// re-evaluating expressions.
func (t Tuple) Project(indices []int) Tuple {
	out := make([]Value, len(indices))
	for i, idx := range indices {
		out[i] = t.Values[idx]
	}
	return Tuple{Values: out}
}

// ConcatTuples returns a new tuple with left's values followed by right's.
func ConcatTuples(left, right Tuple) Tuple {
	out := make([]Value, 0, len(left.Values)+len(right.Values))
	out = append(out, left.Values...)
	out = append(out, right.Values...)
	return Tuple{Values: out}
}
