package resilience

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func tripBreaker(b *Breaker, n int) {
	for i := 0; i < n; i++ {
		if b.Allow() == nil {
			b.Record(errors.New("fail"))
		}
	}
}

func TestBreaker_ClosedState_PassesThrough(t *testing.T) {
	b := NewBreaker("hunter", DefaultBreakerConfig())

	for i := 0; i < 5; i++ {
		if err := b.Allow(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		b.Record(nil)
	}
	if b.State() != CircuitClosed {
		t.Errorf("expected closed state, got %s", b.State())
	}
}

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	b := NewBreaker("hunter", BreakerConfig{FailureThreshold: 3, Cooldown: time.Minute})

	tripBreaker(b, 3)
	if b.State() != CircuitOpen {
		t.Fatalf("expected open state after 3 failures, got %s", b.State())
	}

	err := b.Allow()
	if !errors.Is(err, ErrProviderUnavailable) {
		t.Errorf("expected ErrProviderUnavailable, got %v", err)
	}
	var ue *UnavailableError
	if !errors.As(err, &ue) || ue.Provider != "hunter" {
		t.Errorf("expected UnavailableError for hunter, got %v", err)
	}
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	b := NewBreaker("apollo", BreakerConfig{FailureThreshold: 3, Cooldown: time.Minute})

	tripBreaker(b, 2)
	failures, _, state := b.Counters()
	if failures != 2 || state != CircuitClosed {
		t.Fatalf("expected 2 failures while closed, got %d %s", failures, state)
	}

	b.Record(nil)
	failures, _, _ = b.Counters()
	if failures != 0 {
		t.Errorf("expected 0 failures after success, got %d", failures)
	}
}

func TestBreaker_RecoveryAfterCooldown(t *testing.T) {
	now := time.Now()
	b := NewBreaker("ca_sos", BreakerConfig{FailureThreshold: 3, Cooldown: time.Minute})
	b.nowFunc = func() time.Time { return now }

	tripBreaker(b, 3)
	if err := b.Allow(); !errors.Is(err, ErrProviderUnavailable) {
		t.Fatalf("expected rejection inside cooldown, got %v", err)
	}

	b.nowFunc = func() time.Time { return now.Add(61 * time.Second) }
	if b.State() != CircuitHalfOpen {
		t.Fatalf("expected half-open after cooldown, got %s", b.State())
	}
	if err := b.Allow(); err != nil {
		t.Fatalf("expected trial call to be admitted, got %v", err)
	}
	b.Record(nil)

	failures, _, state := b.Counters()
	if state != CircuitClosed {
		t.Errorf("expected closed after successful trial, got %s", state)
	}
	if failures != 0 {
		t.Errorf("expected failure count reset to 0, got %d", failures)
	}
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	now := time.Now()
	b := NewBreaker("ca_sos", BreakerConfig{FailureThreshold: 2, Cooldown: 10 * time.Second})
	b.nowFunc = func() time.Time { return now }
	tripBreaker(b, 2)

	now = now.Add(11 * time.Second)
	if err := b.Allow(); err != nil {
		t.Fatalf("expected trial call, got %v", err)
	}
	b.Record(errors.New("still failing"))

	if b.State() != CircuitOpen {
		t.Errorf("expected re-opened circuit, got %s", b.State())
	}
	if err := b.Allow(); !errors.Is(err, ErrProviderUnavailable) {
		t.Errorf("expected rejection after failed trial, got %v", err)
	}
}

func TestBreaker_HalfOpenAdmitsOneTrial(t *testing.T) {
	now := time.Now()
	b := NewBreaker("hunter", BreakerConfig{FailureThreshold: 1, Cooldown: time.Minute})
	b.nowFunc = func() time.Time { return now }
	tripBreaker(b, 1)

	now = now.Add(2 * time.Minute)
	if err := b.Allow(); err != nil {
		t.Fatalf("expected trial call, got %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := b.Allow(); !errors.Is(err, ErrProviderUnavailable) {
			t.Fatalf("expected rejection while the trial is in flight, got %v", err)
		}
	}

	b.Record(nil)
	if err := b.Allow(); err != nil {
		t.Errorf("expected closed circuit to admit calls, got %v", err)
	}
}

func TestBreaker_AbandonedTrialFreesSlot(t *testing.T) {
	now := time.Now()
	b := NewBreaker("hunter", BreakerConfig{FailureThreshold: 1, Cooldown: time.Minute})
	b.nowFunc = func() time.Time { return now }
	tripBreaker(b, 1)

	now = now.Add(2 * time.Minute)
	if err := b.Allow(); err != nil {
		t.Fatalf("expected trial call, got %v", err)
	}
	b.Abandon()

	if err := b.Allow(); err != nil {
		t.Fatalf("expected a new trial after abandon, got %v", err)
	}
	if b.State() != CircuitHalfOpen {
		t.Errorf("expected half-open, got %s", b.State())
	}
}

func TestBreaker_IgnoresBudgetAndCancellation(t *testing.T) {
	b := NewBreaker("apollo", BreakerConfig{FailureThreshold: 1, Cooldown: time.Minute})

	b.Record(ErrBudgetExceeded)
	b.Record(context.Canceled)
	if b.State() != CircuitClosed {
		t.Errorf("skips and cancellation must not trip the breaker, got %s", b.State())
	}

	b.Record(context.DeadlineExceeded)
	if b.State() != CircuitOpen {
		t.Errorf("timeouts count as failures, got %s", b.State())
	}
}

func TestBreaker_OnStateChange(t *testing.T) {
	var transitions []string
	b := NewBreaker("hunter", BreakerConfig{
		FailureThreshold: 1,
		Cooldown:         time.Minute,
		OnStateChange: func(provider string, from, to CircuitState) {
			transitions = append(transitions, provider+":"+from.String()+"->"+to.String())
		},
	})
	tripBreaker(b, 1)
	b.Reset()

	want := []string{"hunter:closed->open", "hunter:open->closed"}
	if len(transitions) != len(want) {
		t.Fatalf("expected %v, got %v", want, transitions)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Errorf("transition %d: expected %s, got %s", i, want[i], transitions[i])
		}
	}
}

func TestBreaker_ConcurrentAccess(t *testing.T) {
	b := NewBreaker("hunter", BreakerConfig{FailureThreshold: 1000, Cooldown: time.Minute})

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if b.Allow() != nil {
				return
			}
			if i%2 == 0 {
				b.Record(errors.New("fail"))
			} else {
				b.Record(nil)
			}
			_ = b.State()
		}(i)
	}
	wg.Wait()
}

func TestBreakers_GetOrCreate(t *testing.T) {
	r := NewBreakers(DefaultBreakerConfig())
	a := r.Get("hunter")
	b := r.Get("hunter")
	c := r.Get("apollo")
	if a != b {
		t.Error("expected same breaker for same provider")
	}
	if a == c {
		t.Error("expected distinct breakers per provider")
	}
}

func TestBreakers_Snapshot(t *testing.T) {
	r := NewBreakers(BreakerConfig{FailureThreshold: 1, Cooldown: time.Minute, OnStateChange: func(string, CircuitState, CircuitState) {}})
	r.Get("zeta").Record(nil)
	tripBreaker(r.Get("alpha"), 1)

	snap := r.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("expected 2 breakers, got %d", len(snap))
	}
	if snap[0].Provider != "alpha" || snap[0].State != CircuitOpen || snap[0].LastFailureAt == nil {
		t.Errorf("unexpected alpha status: %+v", snap[0])
	}
	if snap[1].Provider != "zeta" || snap[1].State != CircuitClosed || snap[1].LastFailureAt != nil {
		t.Errorf("unexpected zeta status: %+v", snap[1])
	}
}

func TestCircuitState_String(t *testing.T) {
	tests := map[CircuitState]string{
		CircuitClosed:    "closed",
		CircuitOpen:      "open",
		CircuitHalfOpen:  "half-open",
		CircuitState(42): "unknown",
	}
	for state, want := range tests {
		if got := state.String(); got != want {
			t.Errorf("expected %s, got %s", want, got)
		}
	}
}
