// Package buffer is the buffer pool manager: it maps page ids to frames,
// drives eviction through an LRU-K replacer, and hands out scoped page
// guards so every latch acquired through it is guaranteed to be released.
//
// Grounded on storage_engine/bufferpool/bufferpool.go's map+access-order
// shape (hit/miss logging, evict-skip-if-pinned loop), generalized to the
// spec's exact LRU-K replacer and per-page latches instead of the teacher's
// single most-recently-used list and page-level sync.RWMutex used only for
// pin-count bookkeeping.
package buffer

import (
	"fmt"
	"sync"

	"enginecore/storage/disk"
	"enginecore/storage/page"
)

// Disk is the subset of *disk.Manager the pool depends on, so tests can
// fake it if needed.
type Disk interface {
	ReadPage(id page.ID, p *page.Page) error
	WritePage(id page.ID, p *page.Page) error
	AllocatePage(fileID uint32) (page.ID, error)
	DeallocatePage(id page.ID)
}

var _ Disk = (*disk.Manager)(nil)

// Metrics is the narrow counters interface the pool reports through;
// metrics.Collector (github.com/prometheus/client_golang under the hood)
// implements it. Nil is a valid no-op collector.
type Metrics interface {
	BufferPoolHit()
	BufferPoolMiss()
	BufferPoolEviction()
}

type noopMetrics struct{}

func (noopMetrics) BufferPoolHit()      {}
func (noopMetrics) BufferPoolMiss()     {}
func (noopMetrics) BufferPoolEviction() {}

// Pool is the concurrency-safe frame allocator described in spec.md §3/§4.2.
type Pool struct {
	mu sync.Mutex

	frames    []page.Page
	pageTable map[page.ID]FrameID
	freeList  []FrameID
	replacer  *LRUKReplacer
	disk      Disk
	fileID    uint32
	metrics   Metrics
}

// New returns a buffer pool of poolSize frames, backed by disk for the
// given fileID, using LRU-K with the given k.
func New(poolSize int, k int, d Disk, fileID uint32) *Pool {
	p := &Pool{
		frames:    make([]page.Page, poolSize),
		pageTable: make(map[page.ID]FrameID, poolSize),
		freeList:  make([]FrameID, poolSize),
		replacer:  NewLRUKReplacer(poolSize, k),
		disk:      d,
		fileID:    fileID,
		metrics:   noopMetrics{},
	}
	for i := range p.freeList {
		p.freeList[i] = FrameID(poolSize - 1 - i)
	}
	return p
}

// SetMetrics swaps in a real metrics collector.
func (p *Pool) SetMetrics(m Metrics) {
	if m != nil {
		p.metrics = m
	}
}

// Size returns the number of frames in the pool.
func (p *Pool) Size() int { return len(p.frames) }

// victimFrame pops a free-list frame, or asks the replacer for a victim and
// writes it back if dirty. Caller must hold p.mu.
func (p *Pool) victimFrame() (FrameID, bool, error) {
	if n := len(p.freeList); n > 0 {
		f := p.freeList[n-1]
		p.freeList = p.freeList[:n-1]
		return f, true, nil
	}

	f, ok := p.replacer.Evict()
	if !ok {
		return 0, false, nil
	}
	p.metrics.BufferPoolEviction()
	victim := &p.frames[f]
	if victim.IsDirty {
		if err := p.disk.WritePage(victim.ID, victim); err != nil {
			return 0, false, fmt.Errorf("buffer: writeback victim page %d: %w", victim.ID, err)
		}
	}
	delete(p.pageTable, victim.ID)
	return f, true, nil
}

// NewPage allocates a fresh page, pins it, and returns a basic guard over
// it. Returns (nil guard, false) on pool exhaustion.
func (p *Pool) NewPage() (BasicGuard, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	frame, ok, err := p.victimFrame()
	if err != nil {
		return BasicGuard{}, false, err
	}
	if !ok {
		return BasicGuard{}, false, nil
	}

	id, err := p.disk.AllocatePage(p.fileID)
	if err != nil {
		p.freeList = append(p.freeList, frame)
		return BasicGuard{}, false, fmt.Errorf("buffer: allocate page: %w", err)
	}

	pg := &p.frames[frame]
	pg.Reset(id)
	pg.PinCount = 1
	pg.IsDirty = true

	p.pageTable[id] = frame
	p.replacer.RecordAccess(frame)
	p.replacer.SetEvictable(frame, false)

	return BasicGuard{pool: p, page: pg}, true, nil
}

// FetchPage pins and returns the page for id, reading it from disk on a
// miss. Returns (nil guard, false) on pool exhaustion.
func (p *Pool) FetchPage(id page.ID) (BasicGuard, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if frame, ok := p.pageTable[id]; ok {
		p.metrics.BufferPoolHit()
		pg := &p.frames[frame]
		pg.PinCount++
		p.replacer.RecordAccess(frame)
		p.replacer.SetEvictable(frame, false)
		return BasicGuard{pool: p, page: pg}, true, nil
	}

	p.metrics.BufferPoolMiss()
	frame, ok, err := p.victimFrame()
	if err != nil {
		return BasicGuard{}, false, err
	}
	if !ok {
		return BasicGuard{}, false, nil
	}

	pg := &p.frames[frame]
	pg.Reset(id)
	if err := p.disk.ReadPage(id, pg); err != nil {
		p.freeList = append(p.freeList, frame)
		return BasicGuard{}, false, fmt.Errorf("buffer: read page %d: %w", id, err)
	}
	pg.PinCount = 1

	p.pageTable[id] = frame
	p.replacer.RecordAccess(frame)
	p.replacer.SetEvictable(frame, false)

	return BasicGuard{pool: p, page: pg}, true, nil
}

// unpin decrements a page's pin count and marks the frame evictable once it
// reaches zero. Called only by guard Drop, never directly. The dirty bit
// itself is set by MarkDirty directly on the shared page, not passed here.
func (p *Pool) unpin(id page.ID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.unpinLocked(id)
}

func (p *Pool) unpinLocked(id page.ID) bool {
	frame, ok := p.pageTable[id]
	if !ok {
		return false
	}
	pg := &p.frames[frame]
	if pg.PinCount == 0 {
		return false
	}
	pg.PinCount--
	if pg.PinCount == 0 {
		p.replacer.SetEvictable(frame, true)
	}
	return true
}

// FlushPage writes a resident page to disk and clears its dirty flag.
func (p *Pool) FlushPage(id page.ID) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	frame, ok := p.pageTable[id]
	if !ok {
		return false, nil
	}
	pg := &p.frames[frame]
	if err := p.disk.WritePage(id, pg); err != nil {
		return false, fmt.Errorf("buffer: flush page %d: %w", id, err)
	}
	pg.IsDirty = false
	return true, nil
}

// FlushAll writes back every dirty resident page.
func (p *Pool) FlushAll() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, frame := range p.pageTable {
		pg := &p.frames[frame]
		if !pg.IsDirty {
			continue
		}
		if err := p.disk.WritePage(id, pg); err != nil {
			return fmt.Errorf("buffer: flush page %d: %w", id, err)
		}
		pg.IsDirty = false
	}
	return nil
}

// DeletePage removes a page from the pool and deallocates its id. It fails
// if the page is currently pinned.
func (p *Pool) DeletePage(id page.ID) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	frame, ok := p.pageTable[id]
	if !ok {
		return true, nil
	}
	pg := &p.frames[frame]
	if pg.PinCount > 0 {
		return false, nil
	}

	p.replacer.Remove(frame)
	delete(p.pageTable, id)
	pg.Reset(page.InvalidID)
	p.freeList = append(p.freeList, frame)
	p.disk.DeallocatePage(id)
	return true, nil
}
