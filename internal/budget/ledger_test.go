package budget

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedger_ReserveWithinLimit(t *testing.T) {
	t.Parallel()
	l := NewLedger(1.00)

	res, ok := l.Reserve(0.40)
	require.True(t, ok)
	l.Settle(res, 0.40)

	res, ok = l.Reserve(0.60)
	require.True(t, ok)
	l.Settle(res, 0.60)

	_, ok = l.Reserve(0.01)
	assert.False(t, ok, "a call past the limit must be skipped")
	assert.InDelta(t, 1.00, l.Spent(), 1e-9)
	assert.True(t, l.Exhausted())
	assert.Equal(t, 0.0, l.Remaining())
}

func TestLedger_FreeCallsAlwaysAdmitted(t *testing.T) {
	t.Parallel()
	l := NewLedger(0)

	res, ok := l.Reserve(0)
	require.True(t, ok)
	l.Settle(res, 0)

	_, ok = l.Reserve(0.001)
	assert.False(t, ok)
	assert.False(t, l.Exhausted(), "a zero budget is never reported as exhausted")
	assert.Equal(t, 0.0, l.Remaining())
}

func TestLedger_PendingCountsAgainstLimit(t *testing.T) {
	t.Parallel()
	l := NewLedger(0.10)

	first, ok := l.Reserve(0.08)
	require.True(t, ok)
	_, ok = l.Reserve(0.05)
	assert.False(t, ok, "pending reservations must block over-commit")

	l.Release(first)
	_, ok = l.Reserve(0.05)
	assert.True(t, ok)
}

func TestLedger_SettleOnce(t *testing.T) {
	t.Parallel()
	l := NewLedger(1)

	res, ok := l.Reserve(0.10)
	require.True(t, ok)
	l.Settle(res, 0.10)
	l.Settle(res, 0.10)

	assert.InDelta(t, 0.10, l.Spent(), 1e-9)
	calls, skipped := l.Stats()
	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, skipped)
}

func TestLedger_ChargesActualCost(t *testing.T) {
	t.Parallel()
	l := NewLedger(1)

	res, _ := l.Reserve(0.10)
	l.Settle(res, 0.04)
	assert.InDelta(t, 0.04, l.Spent(), 1e-9)
	assert.InDelta(t, 0.96, l.Remaining(), 1e-9)
}

func TestLedger_ConcurrentNeverOvercommits(t *testing.T) {
	t.Parallel()
	l := NewLedger(1.00)

	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, ok := l.Reserve(0.03)
			if !ok {
				return
			}
			l.Settle(res, 0.03)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, l.Spent(), 1.00+1e-9)
	assert.InDelta(t, 0.99, l.Spent(), 1e-9)
	_, skipped := l.Stats()
	assert.Equal(t, 200-33, skipped)
}

func TestLedger_NegativeInputsClamp(t *testing.T) {
	t.Parallel()
	l := NewLedger(-5)
	assert.Equal(t, 0.0, l.Limit())

	res, ok := l.Reserve(-1)
	require.True(t, ok)
	l.Settle(res, -3)
	assert.Equal(t, 0.0, l.Spent())
}
