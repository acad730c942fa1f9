// Package disk is the lowest tier of the storage stack: it owns OS file
// handles and the global page-id space, and does raw ReadAt/WriteAt of
// fixed-size pages. It knows nothing about pinning, latching, or B+ tree
// layout — that's the buffer pool's and index's job, one layer up.
package disk

import (
	"fmt"
	"os"
	"sync"

	"enginecore/storage/page"
)

// PageKey identifies a page within a single backing file, before it is
// folded into the global page-id space.
type PageKey struct {
	FileID   uint32
	LocalNum int32
}

// fileDescriptor is one open backing file and its local page-id cursor.
type fileDescriptor struct {
	fileID     uint32
	path       string
	file       *os.File
	nextLocal  int32
	mu         sync.Mutex
}

// Manager owns every open backing file and the mapping between the global
// page-id space exposed to the buffer pool and each file's local page
// numbering. Global ids are computed deterministically as
// fileID<<32 | localNum, so no separate persistent counter is needed across
// restarts — this is the teacher's encoding, carried over unchanged.
type Manager struct {
	mu            sync.RWMutex
	files         map[uint32]*fileDescriptor
	nextFileID    uint32
	globalToFile  map[page.ID]uint32
	globalToLocal map[page.ID]int32
}

// NewManager returns a disk manager with no files open yet.
func NewManager() *Manager {
	return &Manager{
		files:         make(map[uint32]*fileDescriptor),
		nextFileID:    1,
		globalToFile:  make(map[page.ID]uint32),
		globalToLocal: make(map[page.ID]int32),
	}
}

func globalID(fileID uint32, local int32) page.ID {
	return page.ID(int64(fileID)<<32 | int64(uint32(local)))
}

// OpenFile opens (or returns the already-open handle for) a backing file
// and returns its file id.
func (m *Manager) OpenFile(path string) (uint32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, fd := range m.files {
		if fd.path == path {
			return id, nil
		}
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return 0, fmt.Errorf("open file %s: %w", path, err)
	}
	stat, err := f.Stat()
	if err != nil {
		f.Close()
		return 0, fmt.Errorf("stat file %s: %w", path, err)
	}

	fileID := m.nextFileID
	m.nextFileID++

	fd := &fileDescriptor{
		fileID:    fileID,
		path:      path,
		file:      f,
		nextLocal: int32(stat.Size() / page.Size),
	}
	m.files[fileID] = fd
	for local := int32(0); local < fd.nextLocal; local++ {
		gid := globalID(fileID, local)
		m.globalToFile[gid] = fileID
		m.globalToLocal[gid] = local
	}
	return fileID, nil
}

// AllocatePage reserves the next page id within fileID without writing
// anything to disk yet; the caller (the buffer pool, via NewPage) fills in
// content and later flushes it.
func (m *Manager) AllocatePage(fileID uint32) (page.ID, error) {
	m.mu.Lock()
	fd, ok := m.files[fileID]
	m.mu.Unlock()
	if !ok {
		return page.InvalidID, fmt.Errorf("disk: unknown file id %d", fileID)
	}

	fd.mu.Lock()
	local := fd.nextLocal
	fd.nextLocal++
	fd.mu.Unlock()

	gid := globalID(fileID, local)
	m.mu.Lock()
	m.globalToFile[gid] = fileID
	m.globalToLocal[gid] = local
	m.mu.Unlock()
	return gid, nil
}

// ReadPage reads the page's bytes from its backing file into p.
func (m *Manager) ReadPage(id page.ID, p *page.Page) error {
	fd, local, err := m.lookup(id)
	if err != nil {
		return err
	}
	fd.mu.Lock()
	defer fd.mu.Unlock()
	n, err := fd.file.ReadAt(p.Data[:], int64(local)*page.Size)
	if err != nil && n == 0 {
		// A page never written yet (e.g. allocated but not flushed) reads
		// back as zeroes rather than an error.
		p.Data = [page.Size]byte{}
		return nil
	}
	if err != nil {
		return fmt.Errorf("disk: read page %d: %w", id, err)
	}
	return nil
}

// WritePage flushes p's bytes to its backing file.
func (m *Manager) WritePage(id page.ID, p *page.Page) error {
	fd, local, err := m.lookup(id)
	if err != nil {
		return err
	}
	fd.mu.Lock()
	defer fd.mu.Unlock()
	if _, err := fd.file.WriteAt(p.Data[:], int64(local)*page.Size); err != nil {
		return fmt.Errorf("disk: write page %d: %w", id, err)
	}
	return nil
}

// DeallocatePage forgets a page id's mapping. The backing file's space is
// not reclaimed; the on-disk file allocator's free-space bookkeeping is out
// of this engine's scope.
func (m *Manager) DeallocatePage(id page.ID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.globalToFile, id)
	delete(m.globalToLocal, id)
}

func (m *Manager) lookup(id page.ID) (*fileDescriptor, int32, error) {
	m.mu.RLock()
	fileID, ok := m.globalToFile[id]
	local := m.globalToLocal[id]
	m.mu.RUnlock()
	if !ok {
		return nil, 0, fmt.Errorf("disk: unknown page id %d", id)
	}
	m.mu.RLock()
	fd := m.files[fileID]
	m.mu.RUnlock()
	return fd, local, nil
}

// Close flushes nothing (callers must flush via the buffer pool) and closes
// every open file handle.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var firstErr error
	for _, fd := range m.files {
		if err := fd.file.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
