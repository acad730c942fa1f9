package heap

import (
	"fmt"
	"sync"

	"enginecore/storage/buffer"
	"enginecore/storage/page"
)

// TableHeap is an unordered collection of variable-length tuples, chained
// across heap pages via NextPageID, addressed externally only by RID.
// Grounded on storage_engine/access/heapfile_manager/heapfile_manager.go's
// file-per-table shape, collapsed to a single chain of pool-managed pages
// since on-disk file layout is out of scope.
type TableHeap struct {
	pool *buffer.Pool

	mu         sync.Mutex
	firstPage  page.ID
	lastPage   page.ID
}

// NewTableHeap allocates the heap's first page and returns an empty heap.
func NewTableHeap(pool *buffer.Pool) (*TableHeap, error) {
	g, ok, err := pool.NewPageGuarded()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("heap: buffer pool exhausted allocating first page")
	}
	InitHeapPage(g.Page())
	g.MarkDirty()
	id := g.PageID()
	g.Drop()
	return &TableHeap{pool: pool, firstPage: id, lastPage: id}, nil
}

// InsertTuple appends data to the heap's last page, allocating a new last
// page if that one has no room, and returns its RID. Earlier pages are not
// searched for space.
func (h *TableHeap) InsertTuple(data []byte) (page.RID, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	g, ok, err := h.pool.FetchPageWrite(h.lastPage)
	if err != nil {
		return page.RID{}, err
	}
	if !ok {
		return page.RID{}, fmt.Errorf("heap: buffer pool exhausted during insert")
	}

	if FreeSpace(g.Page()) < len(data) {
		newG, ok, err := h.pool.NewPageGuarded()
		if err != nil {
			g.Drop()
			return page.RID{}, err
		}
		if !ok {
			g.Drop()
			return page.RID{}, fmt.Errorf("heap: buffer pool exhausted allocating page")
		}
		InitHeapPage(newG.Page())
		newG.MarkDirty()

		SetNextPageID(g.Page(), newG.PageID())
		g.MarkDirty()
		g.Drop()

		h.lastPage = newG.PageID()
		g = newG
	}
	defer g.Drop()

	slot, err := InsertRecord(g.Page(), data)
	if err != nil {
		return page.RID{}, err
	}
	g.MarkDirty()
	return page.RID{PageID: g.PageID(), Slot: slot}, nil
}

// GetTuple returns the bytes at rid, or ok=false if rid names a tombstone.
func (h *TableHeap) GetTuple(rid page.RID) ([]byte, bool, error) {
	g, ok, err := h.pool.FetchPageRead(rid.PageID)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, fmt.Errorf("heap: buffer pool exhausted during read")
	}
	defer g.Drop()
	data, ok := ReadRecord(g.Page(), rid.Slot)
	return data, ok, nil
}

// MarkDelete tombstones rid. A missing or already-deleted rid is a no-op.
func (h *TableHeap) MarkDelete(rid page.RID) error {
	g, ok, err := h.pool.FetchPageWrite(rid.PageID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("heap: buffer pool exhausted during delete")
	}
	defer g.Drop()
	if MarkDeleted(g.Page(), rid.Slot) {
		g.MarkDirty()
	}
	return nil
}

// UpdateTuple replaces rid's bytes in place when they fit in the existing
// slot, returning ok=true. The caller must fall back to delete+insert
// (spec.md §4.5's Update executor semantics) when ok is false.
func (h *TableHeap) UpdateTuple(rid page.RID, data []byte) (ok bool, err error) {
	g, found, err := h.pool.FetchPageWrite(rid.PageID)
	if err != nil {
		return false, err
	}
	if !found {
		return false, fmt.Errorf("heap: buffer pool exhausted during update")
	}
	defer g.Drop()
	if OverwriteRecord(g.Page(), rid.Slot, data) {
		g.MarkDirty()
		return true, nil
	}
	return false, nil
}

// Iterator is a forward scan over every live (non-tombstone) tuple in the
// heap, in physical (page, slot) order.
type Iterator struct {
	pool *buffer.Pool
	page page.ID
	slot uint32
	cur  buffer.ReadGuard
	held bool
	done bool
}

// Begin starts a scan at the heap's first page.
func (h *TableHeap) Begin() *Iterator {
	it := &Iterator{pool: h.pool, page: h.firstPage, slot: 0}
	it.advanceToLive()
	return it
}

func (it *Iterator) advanceToLive() {
	for {
		if !it.held {
			g, ok, err := it.pool.FetchPageRead(it.page)
			if err != nil || !ok {
				it.done = true
				return
			}
			it.cur = g
			it.held = true
		}
		if int(it.slot) < SlotCount(it.cur.Page()) {
			if !IsDeleted(it.cur.Page(), it.slot) {
				return
			}
			it.slot++
			continue
		}
		next := NextPageID(it.cur.Page())
		it.cur.Drop()
		it.held = false
		if next == page.InvalidID {
			it.done = true
			return
		}
		it.page = next
		it.slot = 0
	}
}

// Valid reports whether the iterator currently points at a live tuple.
func (it *Iterator) Valid() bool { return !it.done }

// RID returns the current tuple's RID.
func (it *Iterator) RID() page.RID { return page.RID{PageID: it.page, Slot: it.slot} }

// Tuple returns the current tuple's bytes.
func (it *Iterator) Tuple() []byte {
	data, _ := ReadRecord(it.cur.Page(), it.slot)
	return data
}

// Next advances to the next live tuple.
func (it *Iterator) Next() {
	if it.done {
		return
	}
	it.slot++
	it.advanceToLive()
}

// Close releases the iterator's current page latch, if any. Safe to call
// more than once.
func (it *Iterator) Close() {
	if it.held {
		it.cur.Drop()
		it.held = false
	}
	it.done = true
}
