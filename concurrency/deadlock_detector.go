package concurrency

import (
	"context"
	"sort"
	"time"
)

// DeadlockDetector periodically builds the waits-for graph across every
// lock queue and breaks any cycle found by aborting its youngest
// transaction (spec.md §4.4.3), repeating within one pass until no cycle
// remains before sleeping again.
type DeadlockDetector struct {
	lm       *LockManager
	interval time.Duration
	txns     TxnRegistry
}

// TxnRegistry resolves a live txn id back to its *Transaction so the
// detector can call SetAborted on the chosen victim.
type TxnRegistry interface {
	Lookup(txnID int64) (*Transaction, bool)
}

func NewDeadlockDetector(lm *LockManager, txns TxnRegistry, interval time.Duration) *DeadlockDetector {
	return &DeadlockDetector{lm: lm, interval: interval, txns: txns}
}

// Run blocks, ticking every interval, until ctx is cancelled.
func (d *DeadlockDetector) Run(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.runOnce()
		}
	}
}

// runOnce repeatedly finds and breaks cycles until the waits-for graph is
// acyclic, so one tick resolves an entire pile-up rather than just the
// first cycle found.
func (d *DeadlockDetector) runOnce() {
	for {
		edges := d.lm.waitingEdges(d.txns)
		victim, found := findCycleVictim(edges)
		if !found {
			return
		}
		if txn, ok := d.txns.Lookup(victim); ok {
			txn.SetAborted()
			txn.clearAllLocks()
		}
		// Free every grant the victim held, not just its pending wait: with
		// a granted, incompatible lock still sitting in the queue, the
		// survivor's request would never become grantable and the next
		// iteration of this loop would rediscover the identical cycle.
		d.lm.removeAllLocksForTxn(victim)
		d.lm.metrics.DeadlockBroken()
		d.lm.broadcastAll()
	}
}

// findCycleVictim runs DFS cycle detection over the waits-for graph with
// deterministic, sorted traversal order, and returns the youngest (highest
// id) transaction on the first cycle discovered — BusTub's youngest-victim
// rule, which favors aborting the transaction that has done the least work.
func findCycleVictim(edges map[int64][]int64) (int64, bool) {
	nodes := make([]int64, 0, len(edges))
	for n := range edges {
		nodes = append(nodes, n)
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i] < nodes[j] })

	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[int64]int)
	var stack []int64

	var victim int64

	var dfs func(n int64) bool
	dfs = func(n int64) bool {
		color[n] = gray
		stack = append(stack, n)
		for _, m := range edges[n] {
			if color[m] == gray {
				// Found a cycle: pick the youngest (max id) node on it.
				start := indexOf(stack, m)
				victim = stack[start]
				for _, s := range stack[start:] {
					if s > victim {
						victim = s
					}
				}
				return true
			}
			if color[m] == white {
				if dfs(m) {
					return true
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[n] = black
		return false
	}

	for _, n := range nodes {
		if color[n] == white {
			if dfs(n) {
				return victim, true
			}
		}
	}
	return 0, false
}

func indexOf(s []int64, v int64) int {
	for i, x := range s {
		if x == v {
			return i
		}
	}
	return -1
}

// broadcastAll wakes every blocked LockTable/LockRow caller so a freshly
// aborted victim notices its state and unwinds instead of waiting for an
// unrelated grant to happen to broadcast the condition variable.
func (lm *LockManager) broadcastAll() {
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
		q.mu.Lock()
		q.cond.Broadcast()
		q.mu.Unlock()
	}
	for _, q := range rowQueues {
		q.mu.Lock()
		q.cond.Broadcast()
		q.mu.Unlock()
	}
}
