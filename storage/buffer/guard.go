package buffer

import "enginecore/storage/page"

// Page guards are scoped handles: dropping one releases whatever latch it
// holds and then unpins the page. Drop is idempotent on a given guard value,
// mirroring original_source/src/storage/page/page_guard.cpp, which nils out
// its pointers on drop so a second Drop is a no-op — the "no code path may
// bypass scoped release" invariant from spec.md §4.2 depends on this. The
// released flag lives in the guard value, so copies of one guard each track
// it separately: of several copies, exactly one may be dropped.

// BasicGuard owns a page's pin without holding either latch. Fetch/NewPage
// return this; callers typically upgrade to a ReadGuard or WriteGuard
// immediately.
type BasicGuard struct {
	pool     *Pool
	page     *page.Page
	released bool
}

// Page exposes the underlying page for layout code to read/write.
func (g *BasicGuard) Page() *page.Page { return g.page }

// PageID is a convenience accessor.
func (g *BasicGuard) PageID() page.ID { return g.page.ID }

// MarkDirty sets the shared page's dirty bit directly, rather than
// buffering it on the guard itself — a page guard is routinely copied by
// value (onto a latch-crabbing stack, into a helper's parameter), and a bit
// buffered on one copy would silently vanish when a different copy is the
// one eventually Dropped.
func (g *BasicGuard) MarkDirty() { g.page.IsDirty = true }

// Drop releases the pin. Safe to call more than once.
func (g *BasicGuard) Drop() {
	if g.released || g.page == nil {
		return
	}
	g.released = true
	g.pool.unpin(g.page.ID)
}

// UpgradeRead takes the page's reader latch and returns a ReadGuard that
// owns both the latch and the pin this BasicGuard held. The BasicGuard must
// not be used (or Dropped) afterward.
func (g *BasicGuard) UpgradeRead() ReadGuard {
	g.page.RLock()
	rg := ReadGuard{pool: g.pool, page: g.page}
	g.released = true // ownership transferred
	return rg
}

// UpgradeWrite takes the page's writer latch and returns a WriteGuard that
// owns both the latch and the pin this BasicGuard held.
func (g *BasicGuard) UpgradeWrite() WriteGuard {
	g.page.WLock()
	wg := WriteGuard{pool: g.pool, page: g.page}
	g.released = true
	return wg
}

// ReadGuard additionally holds the page's reader latch, released on Drop.
type ReadGuard struct {
	pool     *Pool
	page     *page.Page
	released bool
}

func (g *ReadGuard) Page() *page.Page { return g.page }
func (g *ReadGuard) PageID() page.ID  { return g.page.ID }

func (g *ReadGuard) Drop() {
	if g.released || g.page == nil {
		return
	}
	g.released = true
	g.page.RUnlock()
	g.pool.unpin(g.page.ID)
}

// WriteGuard additionally holds the page's writer latch, released on Drop.
type WriteGuard struct {
	pool     *Pool
	page     *page.Page
	released bool
}

func (g *WriteGuard) Page() *page.Page { return g.page }
func (g *WriteGuard) PageID() page.ID  { return g.page.ID }
func (g *WriteGuard) MarkDirty()       { g.page.IsDirty = true }

func (g *WriteGuard) Drop() {
	if g.released || g.page == nil {
		return
	}
	g.released = true
	g.page.WUnlock()
	g.pool.unpin(g.page.ID)
}

// FetchPageRead fetches id, pins it, and takes its reader latch in one call.
func (p *Pool) FetchPageRead(id page.ID) (ReadGuard, bool, error) {
	g, ok, err := p.FetchPage(id)
	if err != nil || !ok {
		return ReadGuard{}, ok, err
	}
	return g.UpgradeRead(), true, nil
}

// FetchPageWrite fetches id, pins it, and takes its writer latch in one call.
func (p *Pool) FetchPageWrite(id page.ID) (WriteGuard, bool, error) {
	g, ok, err := p.FetchPage(id)
	if err != nil || !ok {
		return WriteGuard{}, ok, err
	}
	return g.UpgradeWrite(), true, nil
}

// NewPageGuarded allocates a fresh page and returns it already write-latched.
func (p *Pool) NewPageGuarded() (WriteGuard, bool, error) {
	g, ok, err := p.NewPage()
	if err != nil || !ok {
		return WriteGuard{}, ok, err
	}
	return g.UpgradeWrite(), true, nil
}
