package concurrency

import (
	"sort"
	"sync"

	"enginecore/storage/page"
)

// LockRequest is one table or row lock request sitting in a queue, either
// waiting or already granted.
type LockRequest struct {
	TxnID   int64
	Mode    LockMode
	Granted bool
}

// LockRequestQueue serializes acquisition for one table oid or row rid:
// requests are granted FIFO except that a single in-flight upgrade request
// jumps the queue (spec.md §4.4.1), tracked via upgrading.
type LockRequestQueue struct {
	mu        sync.Mutex
	cond      *sync.Cond
	requests  []*LockRequest
	upgrading int64 // txn id currently upgrading on this queue, 0 = none
}

func newLockRequestQueue() *LockRequestQueue {
	q := &LockRequestQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Metrics is the narrow counters interface the lock manager and deadlock
// detector report through, mirroring storage/buffer.Metrics so metrics.Collector
// can back both without either package importing the other. Nil is a valid
// no-op collector.
type Metrics interface {
	LockWait()
	DeadlockBroken()
}

type noopMetrics struct{}

func (noopMetrics) LockWait()       {}
func (noopMetrics) DeadlockBroken() {}

// LockManager implements multiple-granularity 2PL over tables and rows
// (spec.md §4.4), with isolation-level legality checks (§6.3) and the 7
// fatal abort conditions of §7 surfaced as *TxnError.
type LockManager struct {
	mu        sync.Mutex
	tableLock map[TableOID]*LockRequestQueue
	rowLock   map[page.RID]*LockRequestQueue
	metrics   Metrics
}

func NewLockManager() *LockManager {
	return &LockManager{
		tableLock: make(map[TableOID]*LockRequestQueue),
		rowLock:   make(map[page.RID]*LockRequestQueue),
		metrics:   noopMetrics{},
	}
}

// SetMetrics swaps in a real metrics collector.
func (lm *LockManager) SetMetrics(m Metrics) {
	if m != nil {
		lm.metrics = m
	}
}

func (lm *LockManager) tableQueue(oid TableOID) *LockRequestQueue {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	q, ok := lm.tableLock[oid]
	if !ok {
		q = newLockRequestQueue()
		lm.tableLock[oid] = q
	}
	return q
}

func (lm *LockManager) rowQueue(oid TableOID, rid page.RID) *LockRequestQueue {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	q, ok := lm.rowLock[rid]
	if !ok {
		q = newLockRequestQueue()
		lm.rowLock[rid] = q
	}
	return q
}

// compatible reports whether a and b may be held simultaneously (spec.md
// §4.4, the standard multiple-granularity compatibility matrix).
func compatible(a, b LockMode) bool {
	switch a {
	case IS:
		return b == IS || b == IX || b == S || b == SIX
	case IX:
		return b == IS || b == IX
	case S:
		return b == IS || b == S
	case SIX:
		return b == IS
	case X:
		return false
	}
	return false
}

// upgradeAllowed reports whether from can be upgraded directly to to
// (spec.md §4.4.1's upgrade matrix). IS may upgrade to any stronger mode;
// S and IX both upgrade to SIX or X; SIX only upgrades to X.
func upgradeAllowed(from, to LockMode) bool {
	switch from {
	case IS:
		return to == IX || to == S || to == SIX || to == X
	case S:
		return to == SIX || to == X
	case IX:
		return to == SIX || to == X
	case SIX:
		return to == X
	case X:
		return false
	}
	return false
}

// checkIsolationLegality implements spec.md §6.3's table describing which
// lock modes are legal to request under each isolation level, split by
// whether the transaction is still GROWING or already SHRINKING.
func checkIsolationLegality(txn *Transaction, mode LockMode) error {
	state := txn.State()
	switch txn.Isolation {
	case ReadUncommitted:
		if mode == S || mode == IS || mode == SIX {
			return abortError(txn, LockSharedOnReadUncommitted)
		}
		if state == Shrinking {
			return abortError(txn, LockOnShrinking)
		}
	case ReadCommitted:
		if state == Shrinking && !(mode == IS || mode == S) {
			return abortError(txn, LockOnShrinking)
		}
	case RepeatableRead:
		if state == Shrinking {
			return abortError(txn, LockOnShrinking)
		}
	}
	return nil
}

// LockTable acquires a table-granularity lock for txn in mode on oid,
// blocking until compatible or the transaction is aborted by the deadlock
// detector.
func (lm *LockManager) LockTable(txn *Transaction, mode LockMode, oid TableOID) error {
	if txn.State() == Aborted {
		return abortError(txn, LockOnShrinking)
	}
	if curMode, held := txn.anyTableLockMode(oid); held {
		if curMode == mode {
			return nil
		}
		return lm.upgradeTable(txn, curMode, mode, oid)
	}
	if err := checkIsolationLegality(txn, mode); err != nil {
		return err
	}

	q := lm.tableQueue(oid)
	req := &LockRequest{TxnID: txn.ID, Mode: mode}
	q.mu.Lock()
	q.requests = append(q.requests, req)
	err := lm.waitForGrant(txn, q, req)
	q.mu.Unlock()
	if err != nil {
		return err
	}
	txn.addTableLock(mode, oid)
	return nil
}

func (lm *LockManager) upgradeTable(txn *Transaction, from, to LockMode, oid TableOID) error {
	if !upgradeAllowed(from, to) {
		return abortError(txn, IncompatibleUpgrade)
	}
	if err := checkIsolationLegality(txn, to); err != nil {
		return err
	}

	q := lm.tableQueue(oid)
	q.mu.Lock()
	if q.upgrading != 0 && q.upgrading != txn.ID {
		q.mu.Unlock()
		return abortError(txn, UpgradeConflict)
	}
	for i, r := range q.requests {
		if r.TxnID == txn.ID {
			q.requests = append(q.requests[:i], q.requests[i+1:]...)
			break
		}
	}
	q.upgrading = txn.ID
	req := &LockRequest{TxnID: txn.ID, Mode: to}
	q.requests = append(q.requests, req)
	err := lm.waitForGrant(txn, q, req)
	if q.upgrading == txn.ID {
		q.upgrading = 0
	}
	q.mu.Unlock()
	if err != nil {
		txn.removeTableLock(from, oid)
		return err
	}
	txn.removeTableLock(from, oid)
	txn.addTableLock(to, oid)
	return nil
}

// waitForGrant blocks on q.cond until req can be granted given every
// already-granted request, honoring the upgrade-jumps-queue rule: req must
// hold q.mu on entry and holds it again on return.
func (lm *LockManager) waitForGrant(txn *Transaction, q *LockRequestQueue, req *LockRequest) error {
	for {
		if txn.State() == Aborted {
			lm.removeRequest(q, req)
			return &ErrDeadlock{TxnID: txn.ID}
		}
		if canGrant(q, req) {
			req.Granted = true
			q.cond.Broadcast()
			return nil
		}
		lm.metrics.LockWait()
		q.cond.Wait()
	}
}

// canGrant reports whether req is compatible with every other granted
// request, and — if req is not itself the queue's upgrade request —
// whether every earlier-queued, not-yet-granted request is also compatible
// with it (FIFO: a later arrival may not cut in front of an incompatible
// earlier waiter, except the designated upgrader). Later waiters never
// block req, except an incompatible pending upgrade, wherever it sits.
func canGrant(q *LockRequestQueue, req *LockRequest) bool {
	ahead := true
	for _, r := range q.requests {
		if r == req {
			ahead = false
			continue
		}
		if r.Granted {
			if !compatible(r.Mode, req.Mode) {
				return false
			}
			continue
		}
		if q.upgrading == req.TxnID {
			continue
		}
		if r.TxnID == req.TxnID {
			continue
		}
		// An earlier, still-waiting request (or the pending upgrade) blocks
		// req unless req is the designated upgrader.
		isUpgrade := q.upgrading != 0 && r.TxnID == q.upgrading
		if (ahead || isUpgrade) && !compatible(r.Mode, req.Mode) {
			return false
		}
	}
	return true
}

func (lm *LockManager) removeRequest(q *LockRequestQueue, req *LockRequest) {
	for i, r := range q.requests {
		if r == req {
			q.requests = append(q.requests[:i], q.requests[i+1:]...)
			break
		}
	}
	q.cond.Broadcast()
}

// UnlockTable releases txn's table lock on oid, running the GROWING ->
// SHRINKING transition table of spec.md §4.4.2.
func (lm *LockManager) UnlockTable(txn *Transaction, oid TableOID) error {
	mode, held := txn.anyTableLockMode(oid)
	if !held {
		return abortError(txn, AttemptedUnlockButNoLockHeld)
	}
	if txn.hasRowLocksUnder(oid) {
		return abortError(txn, TableUnlockedBeforeUnlockingRows)
	}

	q := lm.tableQueue(oid)
	q.mu.Lock()
	for i, r := range q.requests {
		if r.TxnID == txn.ID && r.Granted {
			q.requests = append(q.requests[:i], q.requests[i+1:]...)
			break
		}
	}
	q.cond.Broadcast()
	q.mu.Unlock()

	txn.removeTableLock(mode, oid)
	transitionOnUnlock(txn, mode)
	return nil
}

// transitionOnUnlock moves txn from GROWING to SHRINKING when the released
// mode marks the end of 2PL's growing phase for the transaction's isolation
// level (spec.md §4.4.2): under REPEATABLE_READ, any S or X release ends
// growing; under READ_COMMITTED and READ_UNCOMMITTED, only an X release
// does (S locks may be dropped early and reacquired under those levels).
func transitionOnUnlock(txn *Transaction, mode LockMode) {
	if txn.State() != Growing {
		return
	}
	switch txn.Isolation {
	case RepeatableRead:
		if mode == S || mode == X {
			txn.setState(Shrinking)
		}
	case ReadCommitted, ReadUncommitted:
		if mode == X {
			txn.setState(Shrinking)
		}
	}
}

// LockRow acquires a row-granularity lock; mode must be S or X, and txn
// must already hold a compatible table-level intention lock (spec.md
// §4.4.1).
func (lm *LockManager) LockRow(txn *Transaction, mode LockMode, oid TableOID, rid page.RID) error {
	if mode != S && mode != X {
		return abortError(txn, AttemptedIntentionLockOnRow)
	}
	if _, held := txn.anyTableLockMode(oid); !held {
		return abortError(txn, TableLockNotPresent)
	}
	if mode == X {
		if tm, _ := txn.anyTableLockMode(oid); tm != IX && tm != X && tm != SIX {
			return abortError(txn, TableLockNotPresent)
		}
	}
	if txn.hasRowLock(mode, oid, rid) {
		return nil
	}
	if err := checkIsolationLegality(txn, mode); err != nil {
		return err
	}

	q := lm.rowQueue(oid, rid)
	req := &LockRequest{TxnID: txn.ID, Mode: mode}
	q.mu.Lock()
	q.requests = append(q.requests, req)
	err := lm.waitForGrant(txn, q, req)
	q.mu.Unlock()
	if err != nil {
		return err
	}
	txn.addRowLock(mode, oid, rid)
	return nil
}

// UnlockRow releases txn's row lock, applying the same GROWING -> SHRINKING
// rule as UnlockTable.
func (lm *LockManager) UnlockRow(txn *Transaction, oid TableOID, rid page.RID) error {
	mode := S
	if !txn.hasRowLock(S, oid, rid) {
		mode = X
		if !txn.hasRowLock(X, oid, rid) {
			return abortError(txn, AttemptedUnlockButNoLockHeld)
		}
	}

	q := lm.rowQueue(oid, rid)
	q.mu.Lock()
	for i, r := range q.requests {
		if r.TxnID == txn.ID && r.Granted {
			q.requests = append(q.requests[:i], q.requests[i+1:]...)
			break
		}
	}
	q.cond.Broadcast()
	q.mu.Unlock()

	txn.removeRowLock(mode, oid, rid)
	transitionOnUnlock(txn, mode)
	return nil
}

// waitingEdges returns the sorted waits-for adjacency used by the deadlock
// detector: for every queue, each not-yet-granted request's txn waits on
// every already-granted, incompatible holder's txn whose transaction is not
// already aborted (spec.md §4.4.3 step 1: a holder the detector has already
// victimized no longer blocks anyone, even before its grant is physically
// stripped from the queue). txns may be nil, in which case no holder is
// filtered out.
func (lm *LockManager) waitingEdges(txns TxnRegistry) map[int64][]int64 {
	edges := make(map[int64][]int64)
	add := func(q *LockRequestQueue) {
		q.mu.Lock()
		defer q.mu.Unlock()
		for _, waiter := range q.requests {
			if waiter.Granted {
				continue
			}
			for _, holder := range q.requests {
				if !holder.Granted || compatible(holder.Mode, waiter.Mode) {
					continue
				}
				if txns != nil {
					if t, ok := txns.Lookup(holder.TxnID); ok && t.State() == Aborted {
						continue
					}
				}
				edges[waiter.TxnID] = append(edges[waiter.TxnID], holder.TxnID)
			}
		}
	}

	lm.mu.Lock()
	tableQueues := make([]*LockRequestQueue, 0, len(lm.tableLock))
	for _, q := range lm.tableLock {
		tableQueues = append(tableQueues, q)
	}
	rowQueues := make([]*LockRequestQueue, 0, len(lm.rowLock))
	for _, q := range lm.rowLock {
		rowQueues = append(rowQueues, q)
	}
	lm.mu.Unlock()

	for _, q := range tableQueues {
		add(q)
	}
	for _, q := range rowQueues {
		add(q)
	}
	for txn := range edges {
		sort.Slice(edges[txn], func(i, j int) bool { return edges[txn][i] < edges[txn][j] })
	}
	return edges
}

// removeAllLocksForTxn strips every request belonging to txnID — granted or
// still waiting — from every table and row queue, and wakes every queue
// afterward so a waiter that was only blocked on the now-removed holder can
// recheck canGrant. This is the one form of preemption over already-granted
// locks spec.md §5 allows: the deadlock detector's victim routine, after
// choosing a victim, must free its grants itself, since nothing else in the
// protocol ever revokes a grant out from under its holder.
func (lm *LockManager) removeAllLocksForTxn(txnID int64) {
	lm.mu.Lock()
	tableQueues := make([]*LockRequestQueue, 0, len(lm.tableLock))
	for _, q := range lm.tableLock {
		tableQueues = append(tableQueues, q)
	}
	rowQueues := make([]*LockRequestQueue, 0, len(lm.rowLock))
	for _, q := range lm.rowLock {
		rowQueues = append(rowQueues, q)
	}
	lm.mu.Unlock()

	strip := func(q *LockRequestQueue) {
		q.mu.Lock()
		kept := q.requests[:0]
		for _, r := range q.requests {
			if r.TxnID != txnID {
				kept = append(kept, r)
			}
		}
		q.requests = kept
		if q.upgrading == txnID {
			q.upgrading = 0
		}
		q.cond.Broadcast()
		q.mu.Unlock()
	}
	for _, q := range tableQueues {
		strip(q)
	}
	for _, q := range rowQueues {
		strip(q)
	}
}
