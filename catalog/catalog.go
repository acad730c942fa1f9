// Package catalog is a minimal in-memory table/schema/index registry: the
// external collaborator spec.md §1 places outside this core's scope, kept
// here only deep enough for the execution package to resolve a table name
// to its schema, heap, and index. Persistence depth, multi-database
// namespacing, and on-disk schema versioning are explicitly out of scope
// (spec.md Non-goals).
//
// Grounded on storage_engine/catalog's CatalogManager (name->file-id
// mapping, in-memory schema map with a resolve-or-register shape); ristretto
// — the teacher's own unused direct dependency — now backs the resolved-
// schema read cache here, since catalog lookups sit off the hot
// transactional path and can tolerate probabilistic admission instead of
// the buffer pool's exact LRU-K accounting.
package catalog

import (
	"fmt"
	"sync"

	"github.com/dgraph-io/ristretto/v2"

	"enginecore/concurrency"
	"enginecore/execution"
	"enginecore/storage/heap"
	"enginecore/storage/index"
)

// TableInfo is everything the executors need to operate on one table.
type TableInfo struct {
	OID    concurrency.TableOID
	Name   string
	Schema *execution.Schema
	Heap   *heap.TableHeap
}

// IndexInfo is one secondary structure over a table's key expression.
type IndexInfo struct {
	Name      string
	TableName string
	Tree      *index.Tree
	KeyExpr   execution.Expression
}

// Catalog registers tables and indexes and caches resolved schema lookups.
type Catalog struct {
	mu      sync.RWMutex
	tables  map[string]*TableInfo
	indexes map[string][]*IndexInfo
	nextOID uint32

	cache *ristretto.Cache[string, *TableInfo]
}

func New() (*Catalog, error) {
	cache, err := ristretto.NewCache(&ristretto.Config[string, *TableInfo]{
		NumCounters: 1e5,
		MaxCost:     1 << 20,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("catalog: creating resolve cache: %w", err)
	}
	return &Catalog{
		tables:  make(map[string]*TableInfo),
		indexes: make(map[string][]*IndexInfo),
		nextOID: 1,
		cache:   cache,
	}, nil
}

// CreateTable registers a new table with a fresh heap and oid.
func (c *Catalog) CreateTable(name string, schema *execution.Schema, th *heap.TableHeap) (*TableInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.tables[name]; exists {
		return nil, fmt.Errorf("catalog: table %q already exists", name)
	}
	info := &TableInfo{
		OID:    concurrency.TableOID(c.nextOID),
		Name:   name,
		Schema: schema,
		Heap:   th,
	}
	c.nextOID++
	c.tables[name] = info
	c.cache.Set(name, info, 1)
	return info, nil
}

// GetTable resolves a table name, consulting the read cache first.
func (c *Catalog) GetTable(name string) (*TableInfo, error) {
	if v, ok := c.cache.Get(name); ok {
		return v, nil
	}
	c.mu.RLock()
	info, ok := c.tables[name]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("catalog: table %q does not exist", name)
	}
	c.cache.Set(name, info, 1)
	return info, nil
}

// DropTable removes a table and any indexes registered over it.
func (c *Catalog) DropTable(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.tables[name]; !ok {
		return fmt.Errorf("catalog: table %q does not exist", name)
	}
	delete(c.tables, name)
	delete(c.indexes, name)
	c.cache.Del(name)
	return nil
}

// CreateIndex registers a secondary index over an existing table.
func (c *Catalog) CreateIndex(indexName, tableName string, tree *index.Tree, keyExpr execution.Expression) (*IndexInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.tables[tableName]; !ok {
		return nil, fmt.Errorf("catalog: table %q does not exist", tableName)
	}
	info := &IndexInfo{Name: indexName, TableName: tableName, Tree: tree, KeyExpr: keyExpr}
	c.indexes[tableName] = append(c.indexes[tableName], info)
	return info, nil
}

// GetIndexes lists every index registered over a table.
func (c *Catalog) GetIndexes(tableName string) []*IndexInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]*IndexInfo{}, c.indexes[tableName]...)
}

// TableNames lists every registered table, for diagnostics and tests.
func (c *Catalog) TableNames() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.tables))
	for n := range c.tables {
		names = append(names, n)
	}
	return names
}
