package index

import (
	"fmt"

	"enginecore/storage/buffer"
	"enginecore/storage/page"
)

// Iterator is a forward-only range scan over leaf entries. It holds a read
// latch on exactly one leaf page at a time, following next-page links as it
// advances — a single pass, not restartable, per spec.md §4.3.4.
type Iterator struct {
	pool *buffer.Pool
	leaf buffer.ReadGuard
	idx  int
	done bool
}

// Begin starts a full forward scan at the leftmost leaf.
func (t *Tree) Begin() (*Iterator, error) {
	root, err := t.readRoot()
	if err != nil {
		return nil, err
	}
	if root == page.InvalidID {
		return &Iterator{done: true}, nil
	}
	cur, ok, err := t.pool.FetchPageRead(root)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("index: buffer pool exhausted during scan")
	}
	for !isLeaf(cur.Page()) {
		childID := page.InternalChildAt(cur.Page(), 0)
		child, ok, err := t.pool.FetchPageRead(childID)
		if err != nil {
			cur.Drop()
			return nil, err
		}
		if !ok {
			cur.Drop()
			return nil, fmt.Errorf("index: buffer pool exhausted during scan")
		}
		cur.Drop()
		cur = child
	}
	it := &Iterator{pool: t.pool, leaf: cur, idx: 0}
	it.skipToLive()
	return it, nil
}

// BeginAt starts a forward scan at the first entry >= key.
func (t *Tree) BeginAt(key page.Key) (*Iterator, error) {
	root, err := t.readRoot()
	if err != nil {
		return nil, err
	}
	if root == page.InvalidID {
		return &Iterator{done: true}, nil
	}
	cur, ok, err := t.pool.FetchPageRead(root)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("index: buffer pool exhausted during scan")
	}
	for !isLeaf(cur.Page()) {
		idx := page.KeyIndex(cur.Page(), key)
		childID := page.InternalChildAt(cur.Page(), idx)
		child, ok, err := t.pool.FetchPageRead(childID)
		if err != nil {
			cur.Drop()
			return nil, err
		}
		if !ok {
			cur.Drop()
			return nil, fmt.Errorf("index: buffer pool exhausted during scan")
		}
		cur.Drop()
		cur = child
	}
	idx := page.KeyIndex(cur.Page(), key)
	// KeyIndex returns the largest index with key[i] <= target; the first
	// entry >= target is one past that, unless it's an exact match.
	if idx < 0 || page.LeafKeyAt(cur.Page(), idx) != key {
		idx++
	}
	it := &Iterator{pool: t.pool, leaf: cur, idx: idx}
	it.skipToLive()
	return it, nil
}

// skipToLive advances across empty or exhausted leaves until idx points at
// a live entry, or the scan is exhausted.
func (it *Iterator) skipToLive() {
	for !it.done && it.idx >= page.BPSize(it.leaf.Page()) {
		next := page.NextPageID(it.leaf.Page())
		it.leaf.Drop()
		if next == page.InvalidID {
			it.done = true
			return
		}
		nextLeaf, ok, err := it.pool.FetchPageRead(next)
		if err != nil || !ok {
			it.done = true
			return
		}
		it.leaf = nextLeaf
		it.idx = 0
	}
}

// Valid reports whether the iterator currently points at an entry.
func (it *Iterator) Valid() bool { return !it.done }

// Key returns the key at the iterator's current position.
func (it *Iterator) Key() page.Key { return page.LeafKeyAt(it.leaf.Page(), it.idx) }

// RID returns the RID at the iterator's current position.
func (it *Iterator) RID() page.RID { return page.LeafRIDAt(it.leaf.Page(), it.idx) }

// Next advances to the next entry.
func (it *Iterator) Next() {
	if it.done {
		return
	}
	it.idx++
	it.skipToLive()
}

// Close releases the iterator's current leaf latch. Safe to call more than
// once, and safe on an already-exhausted iterator.
func (it *Iterator) Close() {
	if !it.done {
		it.leaf.Drop()
		it.done = true
	}
}
