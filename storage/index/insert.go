package index

import (
	"fmt"

	"enginecore/storage/buffer"
	"enginecore/storage/page"
)

// Insert adds (key, rid) to the tree. It returns false (not an error) when
// key already exists — a duplicate insert is a no-op failure, never an
// overwrite (spec.md §4.3.2).
func (t *Tree) Insert(key page.Key, rid page.RID) (bool, error) {
	ok, retry, err := t.insertOptimistic(key, rid)
	if err != nil || !retry {
		return ok, err
	}
	return t.insertPessimistic(key, rid)
}

// insertOptimistic read-crabs to the leaf, then upgrades only the leaf to a
// write latch. If the leaf has room it performs the insert directly. If the
// leaf is full, it abandons every latch and reports retry=true so the
// caller falls back to the pessimistic path.
func (t *Tree) insertOptimistic(key page.Key, rid page.RID) (inserted bool, retry bool, err error) {
	root, err := t.readRoot()
	if err != nil {
		return false, false, err
	}
	if root == page.InvalidID {
		return false, true, nil // empty tree: always pessimistic (creates the root).
	}

	cur, ok, err := t.pool.FetchPageRead(root)
	if err != nil {
		return false, false, err
	}
	if !ok {
		return false, false, fmt.Errorf("index: buffer pool exhausted during insert")
	}
	for !isLeaf(cur.Page()) {
		idx := page.KeyIndex(cur.Page(), key)
		childID := page.InternalChildAt(cur.Page(), idx)
		child, ok, err := t.pool.FetchPageRead(childID)
		if err != nil {
			cur.Drop()
			return false, false, err
		}
		if !ok {
			cur.Drop()
			return false, false, fmt.Errorf("index: buffer pool exhausted during insert")
		}
		cur.Drop()
		cur = child
	}

	leafID := cur.PageID()
	cur.Drop()

	leaf, ok, err := t.pool.FetchPageWrite(leafID)
	if err != nil {
		return false, false, err
	}
	if !ok {
		return false, false, fmt.Errorf("index: buffer pool exhausted during insert")
	}
	defer leaf.Drop()

	if page.BPSize(leaf.Page()) >= page.BPMaxSize(leaf.Page()) {
		return false, true, nil // not safe, restart pessimistically.
	}

	idx := page.KeyIndex(leaf.Page(), key)
	if idx >= 0 && page.LeafKeyAt(leaf.Page(), idx) == key {
		return false, false, nil // duplicate key.
	}
	page.InsertLeafAt(leaf.Page(), idx+1, key, rid)
	leaf.MarkDirty()
	return true, false, nil
}

type pendingWrite struct {
	isHeader bool
	guard    buffer.WriteGuard
}

func (w *pendingWrite) drop() { w.guard.Drop() }

// insertPessimistic restarts from the root holding write latches from the
// header page down, releasing ancestor latches as soon as a node is proven
// safe for insert (spec.md §4.3.2, §5).
func (t *Tree) insertPessimistic(key page.Key, rid page.RID) (bool, error) {
	header, ok, err := t.pool.FetchPageWrite(t.headerPageID)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, fmt.Errorf("index: buffer pool exhausted during insert")
	}

	stack := []pendingWrite{{isHeader: true, guard: header}}
	defer func() {
		for _, e := range stack {
			e.drop()
		}
	}()

	root := page.RootPageID(header.Page())
	if root == page.InvalidID {
		leafGuard, ok, err := t.pool.NewPageGuarded()
		if err != nil {
			return false, err
		}
		if !ok {
			return false, fmt.Errorf("index: buffer pool exhausted during insert")
		}
		page.InitLeafPage(leafGuard.Page(), t.leafMax)
		page.InsertLeafAt(leafGuard.Page(), 0, key, rid)
		leafGuard.MarkDirty()
		page.SetRootPageID(header.Page(), leafGuard.PageID())
		header.MarkDirty()
		leafGuard.Drop()
		stack = stack[:0]
		header.Drop()
		return true, nil
	}

	cur, ok, err := t.pool.FetchPageWrite(root)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, fmt.Errorf("index: buffer pool exhausted during insert")
	}
	stack = append(stack, pendingWrite{guard: cur})
	stack = dropSafeAncestors(stack, safeForInsert)

	for !isLeaf(cur.Page()) {
		idx := page.KeyIndex(cur.Page(), key)
		childID := page.InternalChildAt(cur.Page(), idx)
		child, ok, err := t.pool.FetchPageWrite(childID)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, fmt.Errorf("index: buffer pool exhausted during insert")
		}
		cur = child
		stack = append(stack, pendingWrite{guard: cur})
		stack = dropSafeAncestors(stack, safeForInsert)
	}

	// Leaf is now the top of stack.
	idx := page.KeyIndex(cur.Page(), key)
	if idx >= 0 && page.LeafKeyAt(cur.Page(), idx) == key {
		return false, nil // duplicate.
	}
	page.InsertLeafAt(cur.Page(), idx+1, key, rid)
	cur.MarkDirty()

	if page.BPSize(cur.Page()) <= page.BPMaxSize(cur.Page()) {
		return true, nil
	}
	// Leaf overflowed: split and propagate.
	return true, t.splitAndPropagate(stack)
}

// safeForInsert reports whether a node has room to accept one more entry
// (or absorb a propagated split key) without itself overflowing.
func safeForInsert(p *page.Page) bool {
	return page.BPSize(p) < page.BPMaxSize(p)
}

// dropSafeAncestors drops every entry below the top of stack once the top
// (the node just pushed) is proven safe, per spec.md §5's
// release-ancestors-once-proven-safe rule. It returns the (possibly
// shortened) stack.
func dropSafeAncestors(stack []pendingWrite, safe func(*page.Page) bool) []pendingWrite {
	top := stack[len(stack)-1]
	if !safe(top.guard.Page()) {
		return stack
	}
	for _, e := range stack[:len(stack)-1] {
		e.drop()
	}
	return []pendingWrite{top}
}

// splitAndPropagate handles a leaf (or, recursively, internal) overflow by
// splitting the current (topmost) node and inserting the promoted
// separator into its parent, climbing the stack. stack[0] is the header
// guard unless dropSafeAncestors released it because a safe node lies
// below it, in which case no split reaches the header; the invariant
// maintained by dropSafeAncestors guarantees every adjacent pair in stack
// is a real parent/child, so stack[len-2] is always cur's true parent —
// except when cur is the root itself, in which case stack[len-2] IS the
// header, detected via its isHeader flag rather than stack length.
func (t *Tree) splitAndPropagate(stack []pendingWrite) error {
	for len(stack) > 1 {
		top := stack[len(stack)-1]
		cur := top.guard

		var promotedKey page.Key
		var newRightID page.ID
		var err error
		if isLeaf(cur.Page()) {
			promotedKey, newRightID, err = t.splitLeaf(cur)
		} else {
			promotedKey, newRightID, err = t.splitInternal(cur)
		}
		if err != nil {
			return err
		}

		parent := stack[len(stack)-2]
		if parent.isHeader {
			// cur was the root: build a new internal root over {cur, newRight}.
			rootGuard, ok, err := t.pool.NewPageGuarded()
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("index: buffer pool exhausted during split")
			}
			page.InitInternalPage(rootGuard.Page(), t.internalMax)
			page.SetInternalEntry(rootGuard.Page(), 0, 0, cur.PageID())
			page.SetInternalEntry(rootGuard.Page(), 1, promotedKey, newRightID)
			page.SetBPSize(rootGuard.Page(), 2)
			rootGuard.MarkDirty()
			page.SetRootPageID(parent.guard.Page(), rootGuard.PageID())
			parent.guard.MarkDirty()
			rootGuard.Drop()
			return nil
		}

		idx := page.KeyIndex(parent.guard.Page(), promotedKey)
		page.InsertInternalAt(parent.guard.Page(), idx+1, promotedKey, newRightID)
		parent.guard.MarkDirty()

		if page.BPSize(parent.guard.Page()) <= page.BPMaxSize(parent.guard.Page()) {
			return nil
		}
		stack = stack[:len(stack)-1] // parent becomes the new top; it will split next iteration.
	}
	return nil
}

// splitLeaf splits a full leaf: the left (existing) node keeps the first
// ceil(max/2) entries, a new right node takes the rest and inherits the old
// next pointer. The promoted separator is the right node's first key
// (spec.md's right-biased rule).
func (t *Tree) splitLeaf(left buffer.WriteGuard) (page.Key, page.ID, error) {
	n := page.BPSize(left.Page())
	leftCount := minSize(t.leafMax)

	rightGuard, ok, err := t.pool.NewPageGuarded()
	if err != nil {
		return 0, 0, err
	}
	if !ok {
		return 0, 0, fmt.Errorf("index: buffer pool exhausted during split")
	}
	page.InitLeafPage(rightGuard.Page(), t.leafMax)

	for i := leftCount; i < n; i++ {
		page.InsertLeafAt(rightGuard.Page(), i-leftCount, page.LeafKeyAt(left.Page(), i), page.LeafRIDAt(left.Page(), i))
	}
	page.SetBPSize(left.Page(), leftCount)

	nextOfOldLeft := page.NextPageID(left.Page())
	page.SetNextPageID(rightGuard.Page(), nextOfOldLeft)
	page.SetNextPageID(left.Page(), rightGuard.PageID())

	left.MarkDirty()
	rightGuard.MarkDirty()
	promoted := page.LeafKeyAt(rightGuard.Page(), 0)
	rightID := rightGuard.PageID()
	rightGuard.Drop()
	return promoted, rightID, nil
}

// splitInternal splits a full internal node with max children around the
// middle; the middle separator is promoted to the parent and removed from
// both children's entries, so neither the promoted key nor a duplicate of
// it is stored twice.
func (t *Tree) splitInternal(left buffer.WriteGuard) (page.Key, page.ID, error) {
	n := page.BPSize(left.Page())
	mid := n / 2

	rightGuard, ok, err := t.pool.NewPageGuarded()
	if err != nil {
		return 0, 0, err
	}
	if !ok {
		return 0, 0, fmt.Errorf("index: buffer pool exhausted during split")
	}
	page.InitInternalPage(rightGuard.Page(), t.internalMax)

	promoted := page.InternalKeyAt(left.Page(), mid)
	// Right node's entry 0 key is a placeholder; its child is left[mid]'s child.
	page.SetInternalEntry(rightGuard.Page(), 0, 0, page.InternalChildAt(left.Page(), mid))
	page.SetBPSize(rightGuard.Page(), 1)
	for i := mid + 1; i < n; i++ {
		page.InsertInternalAt(rightGuard.Page(), i-mid, page.InternalKeyAt(left.Page(), i), page.InternalChildAt(left.Page(), i))
	}
	page.SetBPSize(left.Page(), mid)

	left.MarkDirty()
	rightGuard.MarkDirty()
	rightID := rightGuard.PageID()
	rightGuard.Drop()
	return promoted, rightID, nil
}
