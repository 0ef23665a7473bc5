package solver

import "sync/atomic"

// Ledger tracks cumulative external quota consumption for one run. It is the
// only mutable state shared between concurrently solving workers, so all
// updates go through a single atomic compare-and-swap.
type Ledger struct {
	budget int64
	used   atomic.Int64
}

// NewLedger returns a ledger with the given budget. A budget of 0 means
// unlimited.
func NewLedger(budget int64) *Ledger {
	return &Ledger{budget: budget}
}

// TryCharge reserves n units. It returns false, charging nothing, when the
// charge would overspend the budget.
func (l *Ledger) TryCharge(n int) bool {
	if n <= 0 {
		return true
	}
	for {
		cur := l.used.Load()
		next := cur + int64(n)
		if l.budget > 0 && next > l.budget {
			return false
		}
		if l.used.CompareAndSwap(cur, next) {
			return true
		}
	}
}

// Used reports total units consumed so far.
func (l *Ledger) Used() int64 { return l.used.Load() }

// Budget reports the configured budget (0 = unlimited).
func (l *Ledger) Budget() int64 { return l.budget }
