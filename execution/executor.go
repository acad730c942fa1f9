package execution

import "enginecore/storage/page"

// Executor is the pull-model operator contract of spec.md §4.5/§6.4: Init
// once, then Next repeatedly until it reports no more rows.
type Executor interface {
	Init() error
	Next() (tuple Tuple, rid page.RID, ok bool, err error)
	OutputSchema() *Schema
}
