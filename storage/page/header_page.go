package page

import "encoding/binary"

// Header page binary layout (little-endian):
//
//	Offset  Size  Field
//	──────────────────────────────
//	0       4     RootPageID (int32)
//	──────────────────────────────
const headerOffRootPageID = 0

// RootPageID reads the B+ tree's current root page id from a header page.
// InvalidID means the tree is empty.
func RootPageID(p *Page) ID {
	return ID(int32(binary.LittleEndian.Uint32(p.Data[headerOffRootPageID:])))
}

// SetRootPageID stamps a new root page id into a header page; the caller
// marks the page dirty.
func SetRootPageID(p *Page, root ID) {
	binary.LittleEndian.PutUint32(p.Data[headerOffRootPageID:], uint32(int32(root)))
}
