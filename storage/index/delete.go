package index

import (
	"fmt"

	"enginecore/storage/buffer"
	"enginecore/storage/page"
)

// Remove deletes key from the tree. A missing key is a silent no-op
// (spec.md §4.3.3/§4.3.6), never an error.
func (t *Tree) Remove(key page.Key) error {
	retry, err := t.removeOptimistic(key)
	if err != nil || !retry {
		return err
	}
	return t.removePessimistic(key)
}

// removeOptimistic read-crabs to the leaf and upgrades only it to a write
// latch. If removing the key leaves the leaf safe (a root leaf is safe while
// it keeps at least one entry), the removal is done directly. Otherwise every latch is
// abandoned and the caller retries pessimistically.
func (t *Tree) removeOptimistic(key page.Key) (retry bool, err error) {
	root, err := t.readRoot()
	if err != nil {
		return false, err
	}
	if root == page.InvalidID {
		return false, nil // empty tree: no-op.
	}

	cur, ok, err := t.pool.FetchPageRead(root)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, fmt.Errorf("index: buffer pool exhausted during delete")
	}
	isRoot := true
	for !isLeaf(cur.Page()) {
		idx := page.KeyIndex(cur.Page(), key)
		childID := page.InternalChildAt(cur.Page(), idx)
		child, ok, err := t.pool.FetchPageRead(childID)
		if err != nil {
			cur.Drop()
			return false, err
		}
		if !ok {
			cur.Drop()
			return false, fmt.Errorf("index: buffer pool exhausted during delete")
		}
		cur.Drop()
		cur = child
		isRoot = false
	}
	leafID := cur.PageID()
	cur.Drop()

	leaf, ok, err := t.pool.FetchPageWrite(leafID)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, fmt.Errorf("index: buffer pool exhausted during delete")
	}
	defer leaf.Drop()

	idx := page.KeyIndex(leaf.Page(), key)
	if idx < 0 || page.LeafKeyAt(leaf.Page(), idx) != key {
		return false, nil // missing key: no-op.
	}

	if !safeForDeleteLeaf(leaf.Page(), t.leafMax, isRoot) {
		return true, nil // would underflow the leaf or empty the root; retry pessimistically.
	}

	page.RemoveLeafAt(leaf.Page(), idx)
	leaf.MarkDirty()
	return false, nil
}

type delPending struct {
	isHeader bool
	isRoot   bool
	guard    buffer.WriteGuard
}

func (d *delPending) drop() { d.guard.Drop() }

// safeForDeleteLeaf reports whether removing one entry leaves p without
// needing the header rewritten. A non-root leaf is safe once it stays at or
// above the minimum occupancy; the root has no minimum except staying
// non-empty, since an empty root collapses the tree and rewrites the header.
func safeForDeleteLeaf(p *page.Page, leafMax int, isRoot bool) bool {
	if isRoot {
		return page.BPSize(p) >= 2
	}
	return page.BPSize(p)-1 >= minSize(leafMax)
}

// safeForDeleteInternal mirrors safeForDeleteLeaf for internal nodes. A root
// with only two children could, if a merge below removes one of its
// entries, collapse to a single child and need the header rewritten with a
// new root id — so it is only safe once it has a third.
func safeForDeleteInternal(p *page.Page, internalMax int, isRoot bool) bool {
	if isRoot {
		return page.BPSize(p) >= 3
	}
	return page.BPSize(p)-1 >= minSize(internalMax)
}

// removePessimistic restarts from the root holding write latches from the
// header page down, climbing the stack to redistribute or merge whenever a
// node underflows (spec.md §4.3.3, §5).
func (t *Tree) removePessimistic(key page.Key) error {
	header, ok, err := t.pool.FetchPageWrite(t.headerPageID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("index: buffer pool exhausted during delete")
	}
	stack := []delPending{{isHeader: true, guard: header}}
	defer func() {
		for _, e := range stack {
			e.drop()
		}
	}()

	root := page.RootPageID(header.Page())
	if root == page.InvalidID {
		return nil // empty tree: no-op.
	}

	cur, ok, err := t.pool.FetchPageWrite(root)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("index: buffer pool exhausted during delete")
	}
	stack = append(stack, delPending{guard: cur, isRoot: true})
	stack = dropSafeDeleteAncestors(stack, t.leafMax, t.internalMax)

	for !isLeaf(cur.Page()) {
		idx := page.KeyIndex(cur.Page(), key)
		childID := page.InternalChildAt(cur.Page(), idx)
		child, ok, err := t.pool.FetchPageWrite(childID)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("index: buffer pool exhausted during delete")
		}
		cur = child
		stack = append(stack, delPending{guard: cur})
		stack = dropSafeDeleteAncestors(stack, t.leafMax, t.internalMax)
	}

	idx := page.KeyIndex(cur.Page(), key)
	if idx < 0 || page.LeafKeyAt(cur.Page(), idx) != key {
		return nil // missing key: no-op.
	}
	page.RemoveLeafAt(cur.Page(), idx)
	cur.MarkDirty()

	top := stack[len(stack)-1]
	if top.isRoot {
		if page.BPSize(cur.Page()) == 0 {
			// Single-leaf-root tree collapses to empty.
			page.SetRootPageID(header.Page(), page.InvalidID)
			header.MarkDirty()
			id := cur.PageID()
			stack = stack[:len(stack)-1]
			cur.Drop()
			_, derr := t.pool.DeletePage(id)
			return derr
		}
		return nil
	}
	if page.BPSize(cur.Page()) >= minSize(t.leafMax) {
		return nil
	}
	return t.fixUnderflow(stack)
}

func dropSafeDeleteAncestors(stack []delPending, leafMax, internalMax int) []delPending {
	top := stack[len(stack)-1]
	var safe bool
	if isLeaf(top.guard.Page()) {
		safe = safeForDeleteLeaf(top.guard.Page(), leafMax, top.isRoot)
	} else {
		safe = safeForDeleteInternal(top.guard.Page(), internalMax, top.isRoot)
	}
	if !safe {
		return stack
	}
	for _, e := range stack[:len(stack)-1] {
		e.drop()
	}
	return []delPending{top}
}

// fixUnderflow redistributes from a sibling or merges, climbing the stack
// as internal nodes underflow in turn. stack's top is the underflowed node;
// stack[len-2] is always its true parent (never the header, since a root
// never underflows past its relaxed minimum — see safeForDelete*).
func (t *Tree) fixUnderflow(stack []delPending) error {
	for len(stack) > 1 {
		top := stack[len(stack)-1]
		parent := stack[len(stack)-2]
		cur := top.guard

		childIdx := t.findChildIndex(parent.guard.Page(), cur.PageID())

		if childIdx+1 < page.BPSize(parent.guard.Page()) {
			rightID := page.InternalChildAt(parent.guard.Page(), childIdx+1)
			right, ok, err := t.pool.FetchPageWrite(rightID)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("index: buffer pool exhausted during delete")
			}
			minN := minSizeFor(cur.Page(), t.leafMax, t.internalMax)
			if page.BPSize(right.Page()) > minN {
				t.redistributeFromRight(cur, right, parent.guard, childIdx)
				right.Drop()
				return nil
			}
			right.Drop()
		}

		if childIdx > 0 {
			leftID := page.InternalChildAt(parent.guard.Page(), childIdx-1)
			left, ok, err := t.pool.FetchPageWrite(leftID)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("index: buffer pool exhausted during delete")
			}
			minN := minSizeFor(cur.Page(), t.leafMax, t.internalMax)
			if page.BPSize(left.Page()) > minN {
				t.redistributeFromLeft(left, cur, parent.guard, childIdx)
				left.Drop()
				return nil
			}
			left.Drop()
		}

		// Merge: prefer into the left sibling; if none (childIdx == 0), merge
		// the right sibling into this node.
		if childIdx > 0 {
			leftID := page.InternalChildAt(parent.guard.Page(), childIdx-1)
			left, ok, err := t.pool.FetchPageWrite(leftID)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("index: buffer pool exhausted during delete")
			}
			t.mergeInto(left, cur, parent.guard, childIdx)
			left.Drop()
			doneID := cur.PageID()
			stack[len(stack)-1].drop() // through the shared entry, so the caller's cleanup skips it.
			if _, err := t.pool.DeletePage(doneID); err != nil {
				return err
			}
		} else {
			rightID := page.InternalChildAt(parent.guard.Page(), childIdx+1)
			right, ok, err := t.pool.FetchPageWrite(rightID)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("index: buffer pool exhausted during delete")
			}
			t.mergeInto(cur, right, parent.guard, childIdx+1)
			doneID := right.PageID()
			right.Drop()
			if _, err := t.pool.DeletePage(doneID); err != nil {
				return err
			}
		}
		parent.guard.MarkDirty()

		if parent.isRoot {
			if page.BPSize(parent.guard.Page()) == 1 {
				// Root collapsed to a single child: promote it to root.
				onlyChild := page.InternalChildAt(parent.guard.Page(), 0)
				headerEntry := stack[0]
				page.SetRootPageID(headerEntry.guard.Page(), onlyChild)
				headerEntry.guard.MarkDirty()
				doneID := parent.guard.PageID()
				// Dropped through the stack entry itself: stack shares its
				// backing array with the caller's, so the caller's deferred
				// cleanup sees the entry as released and does not drop it
				// again; the header and cur are left for that cleanup.
				stack[len(stack)-2].drop()
				_, err := t.pool.DeletePage(doneID)
				return err
			}
			return nil
		}
		if page.BPSize(parent.guard.Page()) >= minSizeFor(parent.guard.Page(), t.leafMax, t.internalMax) {
			return nil
		}
		stack = stack[:len(stack)-1] // parent becomes the new top; recheck its own underflow.
	}
	return nil
}

func minSizeFor(p *page.Page, leafMax, internalMax int) int {
	if isLeaf(p) {
		return minSize(leafMax)
	}
	return minSize(internalMax)
}

// findChildIndex returns the index in parent's children such that
// children[i] == childID.
func (t *Tree) findChildIndex(parent *page.Page, childID page.ID) int {
	n := page.BPSize(parent)
	for i := 0; i < n; i++ {
		if page.InternalChildAt(parent, i) == childID {
			return i
		}
	}
	return -1
}

// redistributeFromRight steals the right sibling's first entry into cur,
// updating the parent separator at childIdx+1.
func (t *Tree) redistributeFromRight(cur, right buffer.WriteGuard, parent buffer.WriteGuard, childIdx int) {
	if isLeaf(cur.Page()) {
		k := page.LeafKeyAt(right.Page(), 0)
		r := page.LeafRIDAt(right.Page(), 0)
		page.RemoveLeafAt(right.Page(), 0)
		page.InsertLeafAt(cur.Page(), page.BPSize(cur.Page()), k, r)
		page.SetInternalEntry(parent.Page(), childIdx+1, page.LeafKeyAt(right.Page(), 0), page.InternalChildAt(parent.Page(), childIdx+1))
	} else {
		sepDown := page.InternalKeyAt(parent.Page(), childIdx+1)
		stolenChild := page.InternalChildAt(right.Page(), 0)
		stolenUpKey := page.InternalKeyAt(right.Page(), 1)
		page.RemoveInternalAt(right.Page(), 0)
		page.InsertInternalAt(cur.Page(), page.BPSize(cur.Page()), sepDown, stolenChild)
		page.SetInternalEntry(parent.Page(), childIdx+1, stolenUpKey, page.InternalChildAt(parent.Page(), childIdx+1))
	}
	cur.MarkDirty()
	right.MarkDirty()
	parent.MarkDirty()
}

// redistributeFromLeft steals the left sibling's last entry into cur,
// updating the parent separator at childIdx.
func (t *Tree) redistributeFromLeft(left, cur buffer.WriteGuard, parent buffer.WriteGuard, childIdx int) {
	if isLeaf(cur.Page()) {
		n := page.BPSize(left.Page())
		k := page.LeafKeyAt(left.Page(), n-1)
		r := page.LeafRIDAt(left.Page(), n-1)
		page.RemoveLeafAt(left.Page(), n-1)
		page.InsertLeafAt(cur.Page(), 0, k, r)
		page.SetInternalEntry(parent.Page(), childIdx, k, page.InternalChildAt(parent.Page(), childIdx))
	} else {
		n := page.BPSize(left.Page())
		sepDown := page.InternalKeyAt(parent.Page(), childIdx)
		stolenChild := page.InternalChildAt(left.Page(), n-1)
		stolenUpKey := page.InternalKeyAt(left.Page(), n-1)
		page.RemoveInternalAt(left.Page(), n-1)
		page.InsertInternalAt(cur.Page(), 0, 0, stolenChild)
		// The old entry 0 is now entry 1; its separator is the key pulled down from the parent.
		page.SetInternalEntry(cur.Page(), 1, sepDown, page.InternalChildAt(cur.Page(), 1))
		page.SetInternalEntry(parent.Page(), childIdx, stolenUpKey, page.InternalChildAt(parent.Page(), childIdx))
	}
	left.MarkDirty()
	cur.MarkDirty()
	parent.MarkDirty()
}

// mergeInto appends right's entries onto left and removes the parent
// separator at rightIdx (the index of right among parent's children).
func (t *Tree) mergeInto(left, right buffer.WriteGuard, parent buffer.WriteGuard, rightIdx int) {
	if isLeaf(left.Page()) {
		n := page.BPSize(right.Page())
		for i := 0; i < n; i++ {
			page.InsertLeafAt(left.Page(), page.BPSize(left.Page()), page.LeafKeyAt(right.Page(), i), page.LeafRIDAt(right.Page(), i))
		}
		page.SetNextPageID(left.Page(), page.NextPageID(right.Page()))
	} else {
		sepDown := page.InternalKeyAt(parent.Page(), rightIdx)
		page.InsertInternalAt(left.Page(), page.BPSize(left.Page()), sepDown, page.InternalChildAt(right.Page(), 0))
		n := page.BPSize(right.Page())
		for i := 1; i < n; i++ {
			page.InsertInternalAt(left.Page(), page.BPSize(left.Page()), page.InternalKeyAt(right.Page(), i), page.InternalChildAt(right.Page(), i))
		}
	}
	page.RemoveInternalAt(parent.Page(), rightIdx)
	left.MarkDirty()
}
