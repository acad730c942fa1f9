package page

import "encoding/binary"

// B+ tree internal page binary layout (little-endian):
//
//	Offset  Size  Field
//	──────────────────────────────────────
//	0       1     PageType (TypeInternal)
//	1       1     reserved
//	2       2     Size      (int16, live entry count)
//	4       2     MaxSize   (int16)
//	8       12*n  entries: Key(int64,8) + ChildPageID(int32,4)
//
// Entry 0's key is a placeholder and is never inspected — only its child
// pointer is meaningful, per spec.
//
// B+ tree leaf page binary layout:
//
//	Offset  Size  Field
//	──────────────────────────────────────
//	0       1     PageType (TypeLeaf)
//	1       1     reserved
//	2       2     Size      (int16, live entry count)
//	4       2     MaxSize   (int16)
//	8       4     NextPageID (int32)
//	12      4     reserved
//	16      16*n  entries: Key(int64,8) + RID(PageID int32 4 + Slot uint32 4)
const (
	TypeInternal byte = 1
	TypeLeaf     byte = 2

	bpOffPageType = 0
	bpOffSize     = 2
	bpOffMaxSize  = 4

	internalHeaderSize = 8
	internalEntrySize  = 12

	leafOffNextPageID = 8
	leafHeaderSize    = 16
	leafEntrySize     = 16
)

// Key is a B+ tree index key. Keys are int64 values compared with Go's
// ordering operators; there is no caller-supplied comparator.
type Key int64

// ---- shared header accessors (internal + leaf) ----

func PageType(p *Page) byte { return p.Data[bpOffPageType] }

func SetPageType(p *Page, t byte) { p.Data[bpOffPageType] = t }

func BPSize(p *Page) int {
	return int(int16(binary.LittleEndian.Uint16(p.Data[bpOffSize:])))
}

func SetBPSize(p *Page, n int) {
	binary.LittleEndian.PutUint16(p.Data[bpOffSize:], uint16(int16(n)))
}

func BPMaxSize(p *Page) int {
	return int(int16(binary.LittleEndian.Uint16(p.Data[bpOffMaxSize:])))
}

func SetBPMaxSize(p *Page, n int) {
	binary.LittleEndian.PutUint16(p.Data[bpOffMaxSize:], uint16(int16(n)))
}

// ---- internal page ----

func InitInternalPage(p *Page, maxSize int) {
	SetPageType(p, TypeInternal)
	SetBPSize(p, 0)
	SetBPMaxSize(p, maxSize)
}

func internalEntryOffset(i int) int { return internalHeaderSize + i*internalEntrySize }

// InternalKeyAt returns the key at index i. Index 0's key is a placeholder.
func InternalKeyAt(p *Page, i int) Key {
	off := internalEntryOffset(i)
	return Key(int64(binary.LittleEndian.Uint64(p.Data[off:])))
}

func InternalChildAt(p *Page, i int) ID {
	off := internalEntryOffset(i)
	return ID(int32(binary.LittleEndian.Uint32(p.Data[off+8:])))
}

func SetInternalEntry(p *Page, i int, key Key, child ID) {
	off := internalEntryOffset(i)
	binary.LittleEndian.PutUint64(p.Data[off:], uint64(int64(key)))
	binary.LittleEndian.PutUint32(p.Data[off+8:], uint32(int32(child)))
}

// InsertInternalAt shifts entries [i, size) right by one slot and writes
// (key, child) at index i, then bumps Size.
func InsertInternalAt(p *Page, i int, key Key, child ID) {
	n := BPSize(p)
	for j := n; j > i; j-- {
		k := InternalKeyAt(p, j-1)
		c := InternalChildAt(p, j-1)
		SetInternalEntry(p, j, k, c)
	}
	SetInternalEntry(p, i, key, child)
	SetBPSize(p, n+1)
}

// RemoveInternalAt removes the entry at index i, shifting later entries left.
func RemoveInternalAt(p *Page, i int) {
	n := BPSize(p)
	for j := i; j < n-1; j++ {
		k := InternalKeyAt(p, j+1)
		c := InternalChildAt(p, j+1)
		SetInternalEntry(p, j, k, c)
	}
	SetBPSize(p, n-1)
}

// ---- leaf page ----

func InitLeafPage(p *Page, maxSize int) {
	SetPageType(p, TypeLeaf)
	SetBPSize(p, 0)
	SetBPMaxSize(p, maxSize)
	SetNextPageID(p, InvalidID)
}

func NextPageID(p *Page) ID {
	return ID(int32(binary.LittleEndian.Uint32(p.Data[leafOffNextPageID:])))
}

func SetNextPageID(p *Page, id ID) {
	binary.LittleEndian.PutUint32(p.Data[leafOffNextPageID:], uint32(int32(id)))
}

func leafEntryOffset(i int) int { return leafHeaderSize + i*leafEntrySize }

func LeafKeyAt(p *Page, i int) Key {
	off := leafEntryOffset(i)
	return Key(int64(binary.LittleEndian.Uint64(p.Data[off:])))
}

func LeafRIDAt(p *Page, i int) RID {
	off := leafEntryOffset(i) + 8
	return RID{
		PageID: ID(int32(binary.LittleEndian.Uint32(p.Data[off:]))),
		Slot:   binary.LittleEndian.Uint32(p.Data[off+4:]),
	}
}

func SetLeafEntry(p *Page, i int, key Key, rid RID) {
	off := leafEntryOffset(i)
	binary.LittleEndian.PutUint64(p.Data[off:], uint64(int64(key)))
	binary.LittleEndian.PutUint32(p.Data[off+8:], uint32(int32(rid.PageID)))
	binary.LittleEndian.PutUint32(p.Data[off+12:], rid.Slot)
}

// InsertLeafAt shifts entries [i, size) right by one slot and writes
// (key, rid) at index i, then bumps Size.
func InsertLeafAt(p *Page, i int, key Key, rid RID) {
	n := BPSize(p)
	for j := n; j > i; j-- {
		SetLeafEntry(p, j, LeafKeyAt(p, j-1), LeafRIDAt(p, j-1))
	}
	SetLeafEntry(p, i, key, rid)
	SetBPSize(p, n+1)
}

// RemoveLeafAt removes the entry at index i, shifting later entries left.
func RemoveLeafAt(p *Page, i int) {
	n := BPSize(p)
	for j := i; j < n-1; j++ {
		SetLeafEntry(p, j, LeafKeyAt(p, j+1), LeafRIDAt(p, j+1))
	}
	SetBPSize(p, n-1)
}

// KeyIndex returns the largest index i such that keys[i] <= key, per the
// binary search contract in spec.md §4.3.5. For a leaf page it returns -1
// when every key is greater than the target. For an internal page it
// returns 0 when the target is smaller than key[1] (index 0 is ignored).
func KeyIndex(p *Page, key Key) int {
	n := BPSize(p)
	if PageType(p) == TypeLeaf {
		lo, hi := 0, n-1
		result := -1
		for lo <= hi {
			mid := lo + (hi-lo)/2
			if LeafKeyAt(p, mid) <= key {
				result = mid
				lo = mid + 1
			} else {
				hi = mid - 1
			}
		}
		return result
	}
	// Internal: search indices [1, n), default to 0.
	lo, hi := 1, n-1
	result := 0
	for lo <= hi {
		mid := lo + (hi-lo)/2
		if InternalKeyAt(p, mid) <= key {
			result = mid
			lo = mid + 1
		} else {
			hi = mid - 1
		}
	}
	return result
}
