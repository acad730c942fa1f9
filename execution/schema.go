package execution

// Column names a single field of a Schema.
type Column struct {
	Name string
	Type TypeID
}

// Schema is an ordered list of columns. Tuples are always interpreted
// against a specific Schema; there is no self-describing wire format.
type Schema struct {
	Columns []Column
}

func NewSchema(cols ...Column) *Schema { return &Schema{Columns: cols} }

func (s *Schema) ColumnCount() int { return len(s.Columns) }

// ColumnIndex returns the index of name, or -1 if not present.
func (s *Schema) ColumnIndex(name string) int {
	for i, c := range s.Columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// Concat returns a new schema with left's columns followed by right's,
// used to build NestedLoopJoin/HashJoin output schemas.
func Concat(left, right *Schema) *Schema {
	cols := make([]Column, 0, len(left.Columns)+len(right.Columns))
	cols = append(cols, left.Columns...)
	cols = append(cols, right.Columns...)
	return &Schema{Columns: cols}
}
