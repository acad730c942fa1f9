package concurrency

import (
	"testing"
	"time"
)

type fakeRegistry struct {
	txns map[int64]*Transaction
}

func (r *fakeRegistry) Lookup(txnID int64) (*Transaction, bool) {
	t, ok := r.txns[txnID]
	return t, ok
}

func TestFindCycleVictimNoCycle(t *testing.T) {
	edges := map[int64][]int64{
		1: {2},
		2: {3},
	}
	if _, found := findCycleVictim(edges); found {
		t.Fatalf("expected no cycle in a simple chain")
	}
}

func TestFindCycleVictimPicksYoungest(t *testing.T) {
	// 1 -> 2 -> 3 -> 1: a 3-cycle; the youngest (highest id) txn on the cycle
	// must be chosen as victim.
	edges := map[int64][]int64{
		1: {2},
		2: {3},
		3: {1},
	}
	victim, found := findCycleVictim(edges)
	if !found {
		t.Fatalf("expected a cycle to be detected")
	}
	if victim != 3 {
		t.Fatalf("expected victim 3 (youngest on the cycle), got %d", victim)
	}
}

func TestFindCycleVictimSelfWait(t *testing.T) {
	edges := map[int64][]int64{1: {1}}
	victim, found := findCycleVictim(edges)
	if !found || victim != 1 {
		t.Fatalf("expected self-edge to be its own cycle, got victim=%d found=%v", victim, found)
	}
}

func TestDeadlockDetectorBreaksCycleAndUnblocksSurvivor(t *testing.T) {
	lm := NewLockManager()
	t1 := NewTransaction(RepeatableRead)
	t2 := NewTransaction(RepeatableRead)
	registry := &fakeRegistry{txns: map[int64]*Transaction{t1.ID: t1, t2.ID: t2}}

	// Build a classic two-txn deadlock: t1 holds X on table 1 and wants X on
	// table 2; t2 holds X on table 2 and wants X on table 1.
	if err := lm.LockTable(t1, X, 1); err != nil {
		t.Fatalf("t1 LockTable(1) failed: %v", err)
	}
	if err := lm.LockTable(t2, X, 2); err != nil {
		t.Fatalf("t2 LockTable(2) failed: %v", err)
	}

	done1 := make(chan error, 1)
	done2 := make(chan error, 1)
	go func() { done1 <- lm.LockTable(t1, X, 2) }()
	waitUntilQueued(t, lm, 2, t1.ID)
	go func() { done2 <- lm.LockTable(t2, X, 1) }()
	waitUntilQueued(t, lm, 1, t2.ID)

	edges := lm.waitingEdges(registry)
	victim, found := findCycleVictim(edges)
	if !found {
		t.Fatalf("expected the waits-for graph to contain a cycle")
	}

	txn, ok := registry.Lookup(victim)
	if !ok {
		t.Fatalf("victim %d not found in registry", victim)
	}
	// Mirror DeadlockDetector.runOnce's victim routine exactly: mark the
	// victim aborted, strip every request it holds (granted or not) from
	// every queue, then wake everyone blocked.
	txn.SetAborted()
	txn.clearAllLocks()
	lm.removeAllLocksForTxn(victim)
	lm.broadcastAll()

	var victimErr error
	var survivorErr error
	if victim == t1.ID {
		victimErr = <-done1
		survivorErr = <-done2
	} else {
		victimErr = <-done2
		survivorErr = <-done1
	}

	if victimErr == nil {
		t.Fatalf("expected the aborted victim's blocked LockTable call to return an error")
	}
	if _, ok := victimErr.(*ErrDeadlock); !ok {
		t.Fatalf("expected *ErrDeadlock for the victim, got %T: %v", victimErr, victimErr)
	}
	if survivorErr != nil {
		t.Fatalf("expected the survivor's LockTable to eventually succeed once the victim's hold was released, got %v", survivorErr)
	}
}

// TestWaitingEdgesSkipsAbortedHolders guards against the livelock where a
// victim's grant is still sitting in the queue as Granted: true after
// SetAborted: the edge it would otherwise contribute must disappear once its
// owning transaction is aborted, even before removeAllLocksForTxn runs.
func TestWaitingEdgesSkipsAbortedHolders(t *testing.T) {
	lm := NewLockManager()
	t1 := NewTransaction(RepeatableRead)
	t2 := NewTransaction(RepeatableRead)
	registry := &fakeRegistry{txns: map[int64]*Transaction{t1.ID: t1, t2.ID: t2}}

	if err := lm.LockTable(t1, X, 1); err != nil {
		t.Fatalf("t1 LockTable(1) failed: %v", err)
	}
	done := make(chan error, 1)
	go func() { done <- lm.LockTable(t2, X, 1) }()
	waitUntilQueued(t, lm, 1, t2.ID)

	edges := lm.waitingEdges(registry)
	if len(edges[t2.ID]) != 1 || edges[t2.ID][0] != t1.ID {
		t.Fatalf("expected t2 waiting on t1 before t1 is aborted, got %v", edges)
	}

	t1.SetAborted()
	edges = lm.waitingEdges(registry)
	if len(edges[t2.ID]) != 0 {
		t.Fatalf("expected no edge from t2 once its holder t1 is aborted, got %v", edges)
	}

	// Clean up the still-blocked goroutine so the test doesn't leak it.
	lm.removeAllLocksForTxn(t1.ID)
	lm.broadcastAll()
	if err := <-done; err != nil {
		t.Fatalf("expected t2 to be granted once t1's hold was stripped: %v", err)
	}
}

// TestRunOnceResolvesDeadlockWithoutLivelock drives the actual runOnce
// routine (not a hand-rolled replica of it) against a real two-txn deadlock,
// guarding against the bug where a victim's granted-but-not-yet-stripped
// lock caused the same cycle, and the same victim, to be rediscovered on
// every iteration of runOnce's inner loop.
func TestRunOnceResolvesDeadlockWithoutLivelock(t *testing.T) {
	lm := NewLockManager()
	t1 := NewTransaction(RepeatableRead)
	t2 := NewTransaction(RepeatableRead)
	registry := &fakeRegistry{txns: map[int64]*Transaction{t1.ID: t1, t2.ID: t2}}
	detector := NewDeadlockDetector(lm, registry, 0)

	if err := lm.LockTable(t1, X, 1); err != nil {
		t.Fatalf("t1 LockTable(1) failed: %v", err)
	}
	if err := lm.LockTable(t2, X, 2); err != nil {
		t.Fatalf("t2 LockTable(2) failed: %v", err)
	}

	done1 := make(chan error, 1)
	done2 := make(chan error, 1)
	go func() { done1 <- lm.LockTable(t1, X, 2) }()
	waitUntilQueued(t, lm, 2, t1.ID)
	go func() { done2 <- lm.LockTable(t2, X, 1) }()
	waitUntilQueued(t, lm, 1, t2.ID)

	runOnceDone := make(chan struct{})
	go func() {
		detector.runOnce()
		close(runOnceDone)
	}()

	select {
	case <-runOnceDone:
	case <-time.After(2 * time.Second):
		t.Fatalf("runOnce did not return — likely livelocked rediscovering the same victim")
	}

	err1 := <-done1
	err2 := <-done2
	_, isVictim1 := err1.(*ErrDeadlock)
	_, isVictim2 := err2.(*ErrDeadlock)
	if isVictim1 == isVictim2 {
		t.Fatalf("expected exactly one of t1/t2 to fail with *ErrDeadlock, got err1=%v err2=%v", err1, err2)
	}
	if isVictim1 && err2 != nil {
		t.Fatalf("expected the survivor's call to succeed, got %v", err2)
	}
	if isVictim2 && err1 != nil {
		t.Fatalf("expected the survivor's call to succeed, got %v", err1)
	}
}
