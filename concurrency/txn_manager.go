package concurrency

import (
	"sync"

	"enginecore/storage/page"
)

// TxnManager owns the lifecycle of every live transaction: issuing new ones
// via Begin, releasing all locks on Commit/Abort, and resolving txn ids
// back to transactions for the deadlock detector. The Begin/Commit/Abort
// shape mirrors storage_engine/transaction_manager's lifecycle, generalized
// here to drive the lock manager's release protocol instead of WAL replay.
type TxnManager struct {
	lm *LockManager

	mu   sync.Mutex
	live map[int64]*Transaction
}

func NewTxnManager(lm *LockManager) *TxnManager {
	return &TxnManager{lm: lm, live: make(map[int64]*Transaction)}
}

// Begin starts a new transaction under the given isolation level.
func (m *TxnManager) Begin(isolation IsolationLevel) *Transaction {
	txn := NewTransaction(isolation)
	m.mu.Lock()
	m.live[txn.ID] = txn
	m.mu.Unlock()
	return txn
}

// Lookup implements TxnRegistry for the deadlock detector.
func (m *TxnManager) Lookup(txnID int64) (*Transaction, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.live[txnID]
	return t, ok
}

// Commit releases every lock held by txn and marks it committed. It
// refuses to commit an already-aborted transaction.
func (m *TxnManager) Commit(txn *Transaction) error {
	if txn.State() == Aborted {
		return &TxnError{TxnID: txn.ID, Reason: LockOnShrinking}
	}
	m.releaseAll(txn)
	txn.setState(Committed)
	m.forget(txn.ID)
	return nil
}

// Abort releases every lock held by txn and marks it aborted; safe to call
// on a transaction the deadlock detector already aborted.
func (m *TxnManager) Abort(txn *Transaction) {
	m.releaseAll(txn)
	txn.setState(Aborted)
	m.forget(txn.ID)
}

func (m *TxnManager) forget(txnID int64) {
	m.mu.Lock()
	delete(m.live, txnID)
	m.mu.Unlock()
}

type heldRowLock struct {
	mode LockMode
	oid  TableOID
	rid  page.RID
}

// releaseAll drops every row lock before every table lock, mirroring the
// order a well-behaved client would unwind in (spec.md §4.4.2 forbids
// releasing a table lock while row locks under it are still held).
func (m *TxnManager) releaseAll(txn *Transaction) {
	txn.mu.Lock()
	var rows []heldRowLock
	for idx, mode := range [2]LockMode{S, X} {
		for oid, rids := range txn.rowLocks[idx] {
			for rid := range rids {
				rows = append(rows, heldRowLock{mode: mode, oid: oid, rid: rid})
			}
		}
	}
	var tables []struct {
		mode LockMode
		oid  TableOID
	}
	for mode := IS; mode <= X; mode++ {
		for oid := range txn.tableLocks[mode] {
			tables = append(tables, struct {
				mode LockMode
				oid  TableOID
			}{mode, oid})
		}
	}
	txn.mu.Unlock()

	for _, r := range rows {
		_ = m.lm.UnlockRow(txn, r.oid, r.rid)
	}
	for _, t := range tables {
		_ = m.lm.UnlockTable(txn, t.oid)
	}
}
