package concurrency

import "fmt"

// AbortReason enumerates the fatal conditions of spec.md §7 that force a
// transaction into the Aborted state. Every LockTable/LockRow call that
// returns one of these must also mark the transaction aborted before
// returning, so callers never have to remember to do it themselves.
type AbortReason int

const (
	LockOnShrinking AbortReason = iota
	UpgradeConflict
	AttemptedIntentionLockOnRow
	TableLockNotPresent
	IncompatibleUpgrade
	LockSharedOnReadUncommitted
	MultipleLockMode
	TableUnlockedBeforeUnlockingRows
	AttemptedUnlockButNoLockHeld
)

func (r AbortReason) String() string {
	switch r {
	case LockOnShrinking:
		return "LOCK_ON_SHRINKING"
	case UpgradeConflict:
		return "UPGRADE_CONFLICT"
	case AttemptedIntentionLockOnRow:
		return "ATTEMPTED_INTENTION_LOCK_ON_ROW"
	case TableLockNotPresent:
		return "TABLE_LOCK_NOT_PRESENT"
	case IncompatibleUpgrade:
		return "INCOMPATIBLE_UPGRADE"
	case LockSharedOnReadUncommitted:
		return "LOCK_SHARED_ON_READ_UNCOMMITTED"
	case MultipleLockMode:
		return "MULTIPLE_LOCK_MODE_ATTEMPTED"
	case TableUnlockedBeforeUnlockingRows:
		return "TABLE_UNLOCKED_BEFORE_UNLOCKING_ROWS"
	case AttemptedUnlockButNoLockHeld:
		return "ATTEMPTED_UNLOCK_BUT_NO_LOCK_HELD"
	default:
		return "UNKNOWN_ABORT_REASON"
	}
}

// TxnError reports a transaction abort raised by the lock manager or the
// deadlock detector, carrying the txn id and the specific fatal reason so
// callers can log and surface it without re-deriving the cause.
type TxnError struct {
	TxnID  int64
	Reason AbortReason
}

func (e *TxnError) Error() string {
	return fmt.Sprintf("txn %d aborted: %s", e.TxnID, e.Reason)
}

func abortError(txn *Transaction, reason AbortReason) error {
	txn.SetAborted()
	return &TxnError{TxnID: txn.ID, Reason: reason}
}

// ErrDeadlock is returned to the victim transaction chosen by the
// background deadlock detector (spec.md §4.4.3).
type ErrDeadlock struct {
	TxnID int64
}

func (e *ErrDeadlock) Error() string {
	return fmt.Sprintf("txn %d aborted: DEADLOCK", e.TxnID)
}
