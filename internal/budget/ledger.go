// Package budget tracks what a campaign has spent on provider calls and
// refuses calls whose declared cost would overrun the campaign limit.
package budget

import (
	"sync"

	"go.uber.org/zap"
)

// Reservation is a pending charge admitted by Ledger.Reserve. It must be
// settled exactly once.
type Reservation struct {
	id       uint64
	estimate float64
}

// Estimate returns the declared cost the reservation was admitted with.
func (r Reservation) Estimate() float64 { return r.estimate }

// Ledger is the running cost total of one campaign. The check-then-charge
// sequence is serialized by mu so concurrent candidate workers can never
// commit more than the limit between them.
type Ledger struct {
	limit float64

	mu      sync.Mutex
	spent   float64
	pending float64
	nextID  uint64
	open    map[uint64]float64
	calls   int
	skipped int
}

// NewLedger creates a ledger for a campaign budget of limit USD. A limit of
// zero admits free calls only.
func NewLedger(limit float64) *Ledger {
	if limit < 0 {
		limit = 0
	}
	return &Ledger{limit: limit, open: make(map[uint64]float64)}
}

// Reserve admits a call with the given estimated cost iff spent, pending
// and the estimate together stay within the limit. Free calls are always
// admitted.
func (l *Ledger) Reserve(estimate float64) (Reservation, bool) {
	if estimate < 0 {
		estimate = 0
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if estimate > 0 && l.spent+l.pending+estimate > l.limit+epsilon {
		l.skipped++
		zap.L().Debug("budget: call skipped",
			zap.Float64("estimate", estimate),
			zap.Float64("spent", l.spent),
			zap.Float64("pending", l.pending),
			zap.Float64("limit", l.limit),
		)
		return Reservation{}, false
	}

	l.nextID++
	l.pending += estimate
	l.open[l.nextID] = estimate
	return Reservation{id: l.nextID, estimate: estimate}, true
}

// Settle charges the actual cost of an admitted call and releases its
// pending estimate. Settling the same reservation twice is a no-op.
func (l *Ledger) Settle(res Reservation, actual float64) {
	if actual < 0 {
		actual = 0
	}

	l.mu.Lock()
	est, ok := l.open[res.id]
	if !ok {
		l.mu.Unlock()
		return
	}
	delete(l.open, res.id)
	l.pending -= est
	if l.pending < epsilon {
		l.pending = 0
	}
	l.spent += actual
	l.calls++
	l.mu.Unlock()
}

// Release drops a reservation without charging it, for calls that were
// admitted but never issued.
func (l *Ledger) Release(res Reservation) {
	l.mu.Lock()
	defer l.mu.Unlock()
	est, ok := l.open[res.id]
	if !ok {
		return
	}
	delete(l.open, res.id)
	l.pending -= est
	if l.pending < epsilon {
		l.pending = 0
	}
}

// Limit returns the campaign budget.
func (l *Ledger) Limit() float64 { return l.limit }

// Spent returns the settled total.
func (l *Ledger) Spent() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.spent
}

// Remaining returns limit minus settled spend, floored at zero.
func (l *Ledger) Remaining() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	r := l.limit - l.spent
	if r < 0 {
		return 0
	}
	return r
}

// Exhausted reports whether a positive budget has been fully spent.
func (l *Ledger) Exhausted() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.limit > 0 && l.spent >= l.limit-epsilon
}

// Stats returns the number of settled calls and pre-emptive skips.
func (l *Ledger) Stats() (calls, skipped int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls, l.skipped
}

// epsilon absorbs float rounding in sums of cent-level prices.
const epsilon = 1e-9
