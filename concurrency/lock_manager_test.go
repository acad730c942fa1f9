package concurrency

import (
	"testing"
	"time"

	"enginecore/storage/page"
)

func TestCompatibleMatrix(t *testing.T) {
	cases := []struct {
		a, b LockMode
		want bool
	}{
		{IS, IS, true}, {IS, IX, true}, {IS, S, true}, {IS, SIX, true}, {IS, X, false},
		{IX, IX, true}, {IX, S, false}, {IX, SIX, false}, {IX, X, false},
		{S, S, true}, {S, SIX, false}, {S, X, false},
		{SIX, SIX, false}, {SIX, X, false},
		{X, X, false},
	}
	for _, c := range cases {
		if got := compatible(c.a, c.b); got != c.want {
			t.Errorf("compatible(%v,%v) = %v, want %v", c.a, c.b, got, c.want)
		}
		if got := compatible(c.b, c.a); got != c.want {
			t.Errorf("compatible(%v,%v) (reversed) = %v, want %v", c.b, c.a, got, c.want)
		}
	}
}

func TestUpgradeAllowedMatrix(t *testing.T) {
	cases := []struct {
		from, to LockMode
		want     bool
	}{
		{IS, IX, true}, {IS, S, true}, {IS, SIX, true}, {IS, X, true},
		{S, SIX, true}, {S, X, true}, {S, IS, false},
		{IX, SIX, true}, {IX, X, true}, {IX, IS, false},
		{SIX, X, true}, {SIX, S, false}, {SIX, IX, false},
		{X, IS, false}, {X, S, false},
	}
	for _, c := range cases {
		if got := upgradeAllowed(c.from, c.to); got != c.want {
			t.Errorf("upgradeAllowed(%v,%v) = %v, want %v", c.from, c.to, got, c.want)
		}
	}
}

func TestLockTableGrantsCompatibleSharedLocks(t *testing.T) {
	lm := NewLockManager()
	t1 := NewTransaction(RepeatableRead)
	t2 := NewTransaction(RepeatableRead)

	if err := lm.LockTable(t1, S, 1); err != nil {
		t.Fatalf("t1 LockTable(S) failed: %v", err)
	}
	if err := lm.LockTable(t2, S, 1); err != nil {
		t.Fatalf("t2 LockTable(S) failed: %v", err)
	}
}

func TestLockTableSameModeIsNoop(t *testing.T) {
	lm := NewLockManager()
	txn := NewTransaction(RepeatableRead)
	if err := lm.LockTable(txn, S, 1); err != nil {
		t.Fatalf("first LockTable failed: %v", err)
	}
	if err := lm.LockTable(txn, S, 1); err != nil {
		t.Fatalf("repeating the same lock mode should be a no-op, got: %v", err)
	}
}

func TestLockTableIncompatibleBlocksUntilReleased(t *testing.T) {
	lm := NewLockManager()
	t1 := NewTransaction(RepeatableRead)
	t2 := NewTransaction(RepeatableRead)

	if err := lm.LockTable(t1, X, 1); err != nil {
		t.Fatalf("t1 LockTable(X) failed: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		done <- lm.LockTable(t2, S, 1)
	}()

	// Give the second goroutine a chance to enqueue and block.
	waitUntilQueued(t, lm, 1, t2.ID)

	if err := lm.UnlockTable(t1, 1); err != nil {
		t.Fatalf("UnlockTable failed: %v", err)
	}

	if err := <-done; err != nil {
		t.Fatalf("t2's LockTable should have been granted after t1 released: %v", err)
	}
}

// waitUntilQueued polls until txnID appears in oid's table queue, to
// deterministically synchronize with a background LockTable call without
// sleeping arbitrarily.
func waitUntilQueued(t *testing.T, lm *LockManager, oid TableOID, txnID int64) {
	t.Helper()
	q := lm.tableQueue(oid)
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		q.mu.Lock()
		for _, r := range q.requests {
			if r.TxnID == txnID {
				q.mu.Unlock()
				return
			}
		}
		q.mu.Unlock()
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("txn %d never appeared in queue for oid %d", txnID, oid)
}

func TestLockTableUpgrade(t *testing.T) {
	lm := NewLockManager()
	txn := NewTransaction(RepeatableRead)

	if err := lm.LockTable(txn, S, 1); err != nil {
		t.Fatalf("LockTable(S) failed: %v", err)
	}
	if err := lm.LockTable(txn, X, 1); err != nil {
		t.Fatalf("upgrade S->X failed: %v", err)
	}
	if mode, held := txn.anyTableLockMode(1); !held || mode != X {
		t.Fatalf("expected txn to hold X after upgrade, got mode=%v held=%v", mode, held)
	}
}

func TestLockTableConcurrentUpgradeConflict(t *testing.T) {
	lm := NewLockManager()
	t1 := NewTransaction(RepeatableRead)
	t2 := NewTransaction(RepeatableRead)

	if err := lm.LockTable(t1, S, 1); err != nil {
		t.Fatalf("t1 LockTable(S) failed: %v", err)
	}
	if err := lm.LockTable(t2, S, 1); err != nil {
		t.Fatalf("t2 LockTable(S) failed: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- lm.LockTable(t1, X, 1) }()
	waitUntilUpgrading(t, lm, 1, t1.ID)

	if err := lm.LockTable(t2, X, 1); err == nil {
		t.Fatalf("expected t2's concurrent upgrade attempt to be rejected with UpgradeConflict")
	} else if txErr, ok := err.(*TxnError); !ok || txErr.Reason != UpgradeConflict {
		t.Fatalf("expected UpgradeConflict, got %v", err)
	}
	if t2.State() != Aborted {
		t.Fatalf("expected t2 to be aborted after UpgradeConflict")
	}

	// t2's original S grant is untouched by its rejected upgrade attempt, so
	// releasing it lets t1's still-pending upgrade complete and the
	// goroutine above exit.
	if err := lm.UnlockTable(t2, 1); err != nil {
		t.Fatalf("UnlockTable(t2) failed: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("t1's upgrade should have completed once t2 released its S lock: %v", err)
	}
}

func waitUntilUpgrading(t *testing.T, lm *LockManager, oid TableOID, txnID int64) {
	t.Helper()
	q := lm.tableQueue(oid)
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		q.mu.Lock()
		u := q.upgrading
		q.mu.Unlock()
		if u == txnID {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("txn %d never became the upgrader for oid %d", txnID, oid)
}

func TestLockTableOnShrinkingTransactionAborts(t *testing.T) {
	lm := NewLockManager()
	txn := NewTransaction(RepeatableRead)
	if err := lm.LockTable(txn, S, 1); err != nil {
		t.Fatalf("LockTable failed: %v", err)
	}
	if err := lm.UnlockTable(txn, 1); err != nil {
		t.Fatalf("UnlockTable failed: %v", err)
	}
	if txn.State() != Shrinking {
		t.Fatalf("expected RepeatableRead txn to enter Shrinking after releasing S, got %v", txn.State())
	}

	if err := lm.LockTable(txn, S, 2); err == nil {
		t.Fatalf("expected a new lock request during Shrinking to be rejected")
	} else if txErr, ok := err.(*TxnError); !ok || txErr.Reason != LockOnShrinking {
		t.Fatalf("expected LockOnShrinking, got %v", err)
	}
	if txn.State() != Aborted {
		t.Fatalf("expected txn to be aborted after LockOnShrinking")
	}
}

func TestLockSharedOnReadUncommittedRejected(t *testing.T) {
	lm := NewLockManager()
	txn := NewTransaction(ReadUncommitted)
	if err := lm.LockTable(txn, S, 1); err == nil {
		t.Fatalf("expected S lock request under ReadUncommitted to be rejected")
	} else if txErr, ok := err.(*TxnError); !ok || txErr.Reason != LockSharedOnReadUncommitted {
		t.Fatalf("expected LockSharedOnReadUncommitted, got %v", err)
	}
}

func TestReadCommittedMayReacquireSharedAfterReleasingShared(t *testing.T) {
	lm := NewLockManager()
	txn := NewTransaction(ReadCommitted)
	if err := lm.LockTable(txn, S, 1); err != nil {
		t.Fatalf("LockTable(S) failed: %v", err)
	}
	if err := lm.UnlockTable(txn, 1); err != nil {
		t.Fatalf("UnlockTable failed: %v", err)
	}
	if txn.State() != Growing {
		t.Fatalf("expected ReadCommitted txn to remain Growing after releasing an S lock, got %v", txn.State())
	}
	if err := lm.LockTable(txn, S, 2); err != nil {
		t.Fatalf("expected ReadCommitted to be able to reacquire S while still Growing, got %v", err)
	}
}

func TestLockRowRequiresTableIntentionLock(t *testing.T) {
	lm := NewLockManager()
	txn := NewTransaction(RepeatableRead)
	rid := page.RID{PageID: 1, Slot: 0}
	if err := lm.LockRow(txn, S, 1, rid); err == nil {
		t.Fatalf("expected LockRow without a table lock to be rejected")
	} else if txErr, ok := err.(*TxnError); !ok || txErr.Reason != TableLockNotPresent {
		t.Fatalf("expected TableLockNotPresent, got %v", err)
	}
}

func TestLockRowXRequiresIntentExclusiveTableLock(t *testing.T) {
	lm := NewLockManager()
	txn := NewTransaction(RepeatableRead)
	rid := page.RID{PageID: 1, Slot: 0}
	if err := lm.LockTable(txn, IS, 1); err != nil {
		t.Fatalf("LockTable(IS) failed: %v", err)
	}
	if err := lm.LockRow(txn, X, 1, rid); err == nil {
		t.Fatalf("expected X row lock under a mere IS table lock to be rejected")
	} else if txErr, ok := err.(*TxnError); !ok || txErr.Reason != TableLockNotPresent {
		t.Fatalf("expected TableLockNotPresent, got %v", err)
	}
}

func TestLockRowIntentionModeRejected(t *testing.T) {
	lm := NewLockManager()
	txn := NewTransaction(RepeatableRead)
	rid := page.RID{PageID: 1, Slot: 0}
	lm.LockTable(txn, IX, 1)
	if err := lm.LockRow(txn, IX, 1, rid); err == nil {
		t.Fatalf("expected an intention mode row lock request to be rejected")
	} else if txErr, ok := err.(*TxnError); !ok || txErr.Reason != AttemptedIntentionLockOnRow {
		t.Fatalf("expected AttemptedIntentionLockOnRow, got %v", err)
	}
}

func TestLockRowGrantedThenUnlocked(t *testing.T) {
	lm := NewLockManager()
	txn := NewTransaction(RepeatableRead)
	rid := page.RID{PageID: 1, Slot: 0}
	if err := lm.LockTable(txn, IX, 1); err != nil {
		t.Fatalf("LockTable(IX) failed: %v", err)
	}
	if err := lm.LockRow(txn, X, 1, rid); err != nil {
		t.Fatalf("LockRow(X) failed: %v", err)
	}
	if !txn.hasRowLock(X, 1, rid) {
		t.Fatalf("expected txn to hold the row lock after LockRow")
	}
	if err := lm.UnlockRow(txn, 1, rid); err != nil {
		t.Fatalf("UnlockRow failed: %v", err)
	}
	if txn.hasRowLock(X, 1, rid) {
		t.Fatalf("expected row lock to be released after UnlockRow")
	}
}

func TestUnlockTableWithRowLocksStillHeldIsRejected(t *testing.T) {
	lm := NewLockManager()
	txn := NewTransaction(RepeatableRead)
	rid := page.RID{PageID: 1, Slot: 0}
	lm.LockTable(txn, IX, 1)
	lm.LockRow(txn, X, 1, rid)

	if err := lm.UnlockTable(txn, 1); err == nil {
		t.Fatalf("expected UnlockTable to be rejected while row locks under it are still held")
	} else if txErr, ok := err.(*TxnError); !ok || txErr.Reason != TableUnlockedBeforeUnlockingRows {
		t.Fatalf("expected TableUnlockedBeforeUnlockingRows, got %v", err)
	}
}

func TestUnlockTableNotHeldIsRejected(t *testing.T) {
	lm := NewLockManager()
	txn := NewTransaction(RepeatableRead)
	if err := lm.UnlockTable(txn, 1); err == nil {
		t.Fatalf("expected UnlockTable on a lock never acquired to be rejected")
	} else if txErr, ok := err.(*TxnError); !ok || txErr.Reason != AttemptedUnlockButNoLockHeld {
		t.Fatalf("expected AttemptedUnlockButNoLockHeld, got %v", err)
	}
}

func TestUnlockRowNotHeldIsRejected(t *testing.T) {
	lm := NewLockManager()
	txn := NewTransaction(RepeatableRead)
	rid := page.RID{PageID: 1, Slot: 0}
	if err := lm.UnlockRow(txn, 1, rid); err == nil {
		t.Fatalf("expected UnlockRow on a lock never acquired to be rejected")
	} else if txErr, ok := err.(*TxnError); !ok || txErr.Reason != AttemptedUnlockButNoLockHeld {
		t.Fatalf("expected AttemptedUnlockButNoLockHeld, got %v", err)
	}
}
