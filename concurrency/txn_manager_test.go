package concurrency

import (
	"testing"

	"enginecore/storage/page"
)

func TestTxnManagerBeginAssignsDistinctIDs(t *testing.T) {
	lm := NewLockManager()
	tm := NewTxnManager(lm)
	a := tm.Begin(RepeatableRead)
	b := tm.Begin(RepeatableRead)
	if a.ID == b.ID {
		t.Fatalf("expected distinct transaction ids, got %d twice", a.ID)
	}
	if _, ok := tm.Lookup(a.ID); !ok {
		t.Fatalf("expected Begin to register the transaction for Lookup")
	}
}

func TestTxnManagerCommitReleasesLocksAndForgets(t *testing.T) {
	lm := NewLockManager()
	tm := NewTxnManager(lm)
	txn := tm.Begin(RepeatableRead)
	rid := page.RID{PageID: 1, Slot: 0}

	if err := lm.LockTable(txn, IX, 1); err != nil {
		t.Fatalf("LockTable(IX) failed: %v", err)
	}
	if err := lm.LockRow(txn, X, 1, rid); err != nil {
		t.Fatalf("LockRow(X) failed: %v", err)
	}

	if err := tm.Commit(txn); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	if txn.State() != Committed {
		t.Fatalf("expected Committed state, got %v", txn.State())
	}
	if txn.hasRowLock(X, 1, rid) {
		t.Fatalf("expected Commit to release the row lock")
	}
	if _, held := txn.anyTableLockMode(1); held {
		t.Fatalf("expected Commit to release the table lock")
	}
	if _, ok := tm.Lookup(txn.ID); ok {
		t.Fatalf("expected Commit to forget the transaction")
	}

	// The table and row should now be free for another transaction.
	other := tm.Begin(RepeatableRead)
	if err := lm.LockTable(other, IX, 1); err != nil {
		t.Fatalf("expected table 1 to be free after commit, got: %v", err)
	}
	if err := lm.LockRow(other, X, 1, rid); err != nil {
		t.Fatalf("expected row to be free after commit, got: %v", err)
	}
}

func TestTxnManagerCommitOnAbortedTransactionFails(t *testing.T) {
	lm := NewLockManager()
	tm := NewTxnManager(lm)
	txn := tm.Begin(RepeatableRead)
	txn.SetAborted()

	if err := tm.Commit(txn); err == nil {
		t.Fatalf("expected Commit on an already-aborted transaction to fail")
	}
}

func TestTxnManagerAbortReleasesLocksRowsBeforeTables(t *testing.T) {
	lm := NewLockManager()
	tm := NewTxnManager(lm)
	txn := tm.Begin(RepeatableRead)
	rid := page.RID{PageID: 2, Slot: 0}

	if err := lm.LockTable(txn, IX, 5); err != nil {
		t.Fatalf("LockTable(IX) failed: %v", err)
	}
	if err := lm.LockRow(txn, X, 5, rid); err != nil {
		t.Fatalf("LockRow(X) failed: %v", err)
	}

	tm.Abort(txn)

	if txn.State() != Aborted {
		t.Fatalf("expected Aborted state, got %v", txn.State())
	}
	if txn.hasRowLock(X, 5, rid) {
		t.Fatalf("expected Abort to release the row lock")
	}
	if _, held := txn.anyTableLockMode(5); held {
		t.Fatalf("expected Abort to release the table lock")
	}

	// A fresh transaction must be able to acquire both afterward; if Abort
	// tried to release the table lock before the row lock, UnlockTable would
	// have refused (TableUnlockedBeforeUnlockingRows) and left the row lock
	// dangling.
	other := tm.Begin(RepeatableRead)
	if err := lm.LockTable(other, X, 5); err != nil {
		t.Fatalf("expected table 5 to be fully free after abort, got: %v", err)
	}
}
