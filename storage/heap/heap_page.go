// Package heap implements the table heap: an unordered, slotted-page
// collection of variable-length tuples addressed by RID, with tombstone
// deletes (spec.md §3's RID, §4.5's SeqScan/Insert/Delete/Update executors).
//
// Grounded on storage_engine/access/heapfile_manager/heap_page.go's
// forward-growing-records / backward-growing-slot-directory layout, with the
// WAL LSN field dropped (log manager is out of scope here) and rebuilt over
// storage/buffer page guards instead of the teacher's bespoke DiskManager
// page-type stamping.
package heap

import (
	"encoding/binary"
	"fmt"

	"enginecore/storage/page"
)

// Heap page binary layout (little-endian):
//
//	Offset  Size  Field
//	──────────────────────────────────────────────
//	0       2     RecordEndPtr    — first free byte after the last record
//	2       2     SlotRegionStart — first byte of the slot directory
//	4       2     NumRows         — live (non-tombstone) records
//	6       2     SlotCount       — total slot entries, live + tombstone
//	8       4     NextPageID      — chain to the next heap page, or invalid
//	12           heapHeaderSize
//
//	[ header ][ records growing forward → ][ free space ][ ← slot dir, growing backward ]
//
// A slot is 4 bytes: Offset uint16, Length uint16. Length 0 marks a
// tombstone; its Offset is meaningless once deleted.
const (
	heapOffRecordEndPtr    = 0
	heapOffSlotRegionStart = 2
	heapOffNumRows         = 4
	heapOffSlotCount       = 6
	heapOffNextPageID      = 8

	heapHeaderSize = 12
	slotSize       = 4
)

// InitHeapPage stamps a fresh heap page.
func InitHeapPage(p *page.Page) {
	for i := range p.Data {
		p.Data[i] = 0
	}
	binary.LittleEndian.PutUint16(p.Data[heapOffRecordEndPtr:], heapHeaderSize)
	binary.LittleEndian.PutUint16(p.Data[heapOffSlotRegionStart:], page.Size)
	SetNextPageID(p, page.InvalidID)
}

// NextPageID returns the next page in this heap's chain, or page.InvalidID
// if this is the last page.
func NextPageID(p *page.Page) page.ID {
	return page.ID(int32(binary.LittleEndian.Uint32(p.Data[heapOffNextPageID:])))
}

// SetNextPageID sets this page's successor in the heap's chain.
func SetNextPageID(p *page.Page, id page.ID) {
	binary.LittleEndian.PutUint32(p.Data[heapOffNextPageID:], uint32(int32(id)))
}

func recordEndPtr(p *page.Page) int {
	return int(binary.LittleEndian.Uint16(p.Data[heapOffRecordEndPtr:]))
}

func setRecordEndPtr(p *page.Page, v int) {
	binary.LittleEndian.PutUint16(p.Data[heapOffRecordEndPtr:], uint16(v))
}

func slotRegionStart(p *page.Page) int {
	return int(binary.LittleEndian.Uint16(p.Data[heapOffSlotRegionStart:]))
}

func setSlotRegionStart(p *page.Page, v int) {
	binary.LittleEndian.PutUint16(p.Data[heapOffSlotRegionStart:], uint16(v))
}

// NumRows returns the number of live (non-tombstone) records.
func NumRows(p *page.Page) int {
	return int(binary.LittleEndian.Uint16(p.Data[heapOffNumRows:]))
}

func setNumRows(p *page.Page, v int) {
	binary.LittleEndian.PutUint16(p.Data[heapOffNumRows:], uint16(v))
}

// SlotCount returns the total number of slot entries, live and tombstone.
func SlotCount(p *page.Page) int {
	return int(binary.LittleEndian.Uint16(p.Data[heapOffSlotCount:]))
}

func setSlotCount(p *page.Page, v int) {
	binary.LittleEndian.PutUint16(p.Data[heapOffSlotCount:], uint16(v))
}

func slotOffset(i int) int { return page.Size - (i+1)*slotSize }

func readSlot(p *page.Page, i int) (offset, length int) {
	off := slotOffset(i)
	return int(binary.LittleEndian.Uint16(p.Data[off:])), int(binary.LittleEndian.Uint16(p.Data[off+2:]))
}

func writeSlot(p *page.Page, i, offset, length int) {
	off := slotOffset(i)
	binary.LittleEndian.PutUint16(p.Data[off:], uint16(offset))
	binary.LittleEndian.PutUint16(p.Data[off+2:], uint16(length))
}

// FreeSpace returns the number of bytes available for a new record and its
// slot entry, assuming no tombstone slot can be reused.
func FreeSpace(p *page.Page) int {
	return slotRegionStart(p) - recordEndPtr(p) - slotSize
}

// freeSpaceReusingSlot returns the bytes available for a record if a
// tombstone slot is reused (no new slot entry needed).
func freeSpaceReusingSlot(p *page.Page) int {
	return slotRegionStart(p) - recordEndPtr(p)
}

// InsertRecord writes data into the page, reusing a tombstone slot if one
// exists, and returns its slot index.
func InsertRecord(p *page.Page, data []byte) (uint32, error) {
	n := len(data)
	if n == 0 {
		return 0, fmt.Errorf("heap: record must not be empty")
	}

	for i := 0; i < SlotCount(p); i++ {
		if _, length := readSlot(p, i); length == 0 {
			if freeSpaceReusingSlot(p) < n {
				continue
			}
			off := recordEndPtr(p)
			copy(p.Data[off:], data)
			setRecordEndPtr(p, off+n)
			writeSlot(p, i, off, n)
			setNumRows(p, NumRows(p)+1)
			return uint32(i), nil
		}
	}

	if FreeSpace(p) < n {
		return 0, fmt.Errorf("heap: insufficient space: need %d, have %d", n, FreeSpace(p))
	}
	off := recordEndPtr(p)
	copy(p.Data[off:], data)
	setRecordEndPtr(p, off+n)

	slot := SlotCount(p)
	setSlotRegionStart(p, slotRegionStart(p)-slotSize)
	writeSlot(p, slot, off, n)
	setSlotCount(p, slot+1)
	setNumRows(p, NumRows(p)+1)
	return uint32(slot), nil
}

// ReadRecord returns the bytes at slot, or ok=false if the slot is a
// tombstone or out of range.
func ReadRecord(p *page.Page, slot uint32) ([]byte, bool) {
	if int(slot) >= SlotCount(p) {
		return nil, false
	}
	off, length := readSlot(p, int(slot))
	if length == 0 {
		return nil, false
	}
	out := make([]byte, length)
	copy(out, p.Data[off:off+length])
	return out, true
}

// IsDeleted reports whether slot is a tombstone (or out of range).
func IsDeleted(p *page.Page, slot uint32) bool {
	if int(slot) >= SlotCount(p) {
		return true
	}
	_, length := readSlot(p, int(slot))
	return length == 0
}

// MarkDeleted tombstones slot: its length is zeroed so scans skip it and
// InsertRecord may reuse the slot. The bytes themselves stay in place: an
// insert that reuses the slot writes its record at the end of the record
// region, so their space is not reclaimed.
func MarkDeleted(p *page.Page, slot uint32) bool {
	if int(slot) >= SlotCount(p) || IsDeleted(p, slot) {
		return false
	}
	off, _ := readSlot(p, int(slot))
	writeSlot(p, int(slot), off, 0)
	setNumRows(p, NumRows(p)-1)
	return true
}

// OverwriteRecord replaces the bytes at an existing live slot in place, used
// when the new value is no larger than the old (same-size update fast path).
// Callers needing more room should delete and re-insert instead.
func OverwriteRecord(p *page.Page, slot uint32, data []byte) bool {
	if int(slot) >= SlotCount(p) {
		return false
	}
	off, length := readSlot(p, int(slot))
	if length == 0 || len(data) > length {
		return false
	}
	copy(p.Data[off:off+len(data)], data)
	if len(data) != length {
		writeSlot(p, int(slot), off, len(data))
	}
	return true
}
