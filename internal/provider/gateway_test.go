package provider

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/prospect-cli/internal/budget"
	"github.com/sells-group/prospect-cli/internal/cache"
	"github.com/sells-group/prospect-cli/internal/cost"
	"github.com/sells-group/prospect-cli/internal/model"
	"github.com/sells-group/prospect-cli/internal/resilience"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func testPricing() *cost.Calculator {
	return cost.NewCalculator(cost.Rates{
		"hunter": {PerCall: map[string]float64{"verify-email": 0.01}, BillOnAttempt: true},
		"apollo": {PerCall: map[string]float64{"enrich-company": 0.03}},
	})
}

func newTestGateway(t *testing.T, c *cache.Cache) *Gateway {
	t.Helper()
	breakers := resilience.NewBreakers(resilience.BreakerConfig{
		FailureThreshold: 3,
		Cooldown:         time.Minute,
		OnStateChange:    func(string, resilience.CircuitState, resilience.CircuitState) {},
	})
	return NewGateway(breakers, c, testPricing(), GatewayConfig{
		DefaultTimeout: time.Second,
		TTLs: map[model.Capability]time.Duration{
			model.CapabilityVerifyEmail: 7 * 24 * time.Hour,
		},
	})
}

var verifyCall = Call{
	Provider:   "hunter",
	Capability: model.CapabilityVerifyEmail,
	CacheKey:   cache.Key("hunter", "owner@acme.com"),
}

func TestDo_ChargesAndCaches(t *testing.T) {
	t.Parallel()
	g := newTestGateway(t, cache.New())
	s := g.Session(budget.NewLedger(1))

	calls := 0
	fn := func(context.Context) (*EmailVerification, error) {
		calls++
		return &EmailVerification{Email: "owner@acme.com", Deliverable: true, Confidence: 95}, nil
	}

	v, out := Do(context.Background(), s, verifyCall, fn)
	require.NoError(t, out.Err)
	assert.Equal(t, model.EnrichmentOK, out.Status)
	assert.InDelta(t, 0.01, out.CostUSD, 1e-9)
	assert.True(t, v.Deliverable)

	v, out = Do(context.Background(), s, verifyCall, fn)
	require.NoError(t, out.Err)
	assert.True(t, out.Cached)
	assert.Zero(t, out.CostUSD, "a cache hit is free")
	assert.True(t, v.Deliverable)
	assert.Equal(t, 1, calls)
	assert.InDelta(t, 0.01, s.Ledger().Spent(), 1e-9)
}

func TestDo_CacheSharedAcrossCampaigns(t *testing.T) {
	t.Parallel()
	g := newTestGateway(t, cache.New())
	fn := func(context.Context) (*EmailVerification, error) {
		return &EmailVerification{Deliverable: true}, nil
	}

	_, _ = Do(context.Background(), g.Session(budget.NewLedger(1)), verifyCall, fn)

	second := g.Session(budget.NewLedger(0))
	v, out := Do(context.Background(), second, verifyCall, fn)
	assert.Equal(t, model.EnrichmentOK, out.Status, "cached result is served even with no budget")
	assert.True(t, v.Deliverable)
	assert.Zero(t, second.Ledger().Spent())
}

func TestDo_SkipsWhenOverBudget(t *testing.T) {
	t.Parallel()
	g := newTestGateway(t, nil)
	s := g.Session(budget.NewLedger(0))

	_, out := Do(context.Background(), s, verifyCall, func(context.Context) (*EmailVerification, error) {
		t.Error("call must not be issued")
		return nil, nil
	})
	assert.Equal(t, model.EnrichmentSkippedBudget, out.Status)
	assert.ErrorIs(t, out.Err, resilience.ErrBudgetExceeded)
	assert.Zero(t, s.Ledger().Spent())
}

func TestDo_OpenCircuitFailsFast(t *testing.T) {
	t.Parallel()
	g := newTestGateway(t, nil)
	s := g.Session(budget.NewLedger(1))

	network := 0
	failing := func(context.Context) (*EmailVerification, error) {
		network++
		return nil, resilience.NewProviderCallError("hunter", "verify-email", 500, errors.New("boom"))
	}
	for i := 0; i < 3; i++ {
		_, out := Do(context.Background(), s, verifyCall, failing)
		assert.Equal(t, model.EnrichmentFailed, out.Status)
		assert.InDelta(t, 0.01, out.CostUSD, 1e-9, "billed on attempt")
	}
	spent := s.Ledger().Spent()

	_, out := Do(context.Background(), s, verifyCall, failing)
	assert.Equal(t, model.EnrichmentUnavailable, out.Status)
	assert.ErrorIs(t, out.Err, resilience.ErrProviderUnavailable)
	assert.Zero(t, out.CostUSD)
	assert.Equal(t, 3, network, "no network attempt while open")
	assert.InDelta(t, spent, s.Ledger().Spent(), 1e-9)
}

func TestDo_TimeoutCountsAsFailure(t *testing.T) {
	t.Parallel()
	g := newTestGateway(t, nil)
	g.cfg.Limits = map[string]Limits{"apollo": {Timeout: 10 * time.Millisecond}}
	s := g.Session(budget.NewLedger(1))

	call := Call{Provider: "apollo", Capability: model.CapabilityEnrichCompany}
	_, out := Do(context.Background(), s, call, func(ctx context.Context) (*CompanyEnrichment, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	assert.Equal(t, model.EnrichmentFailed, out.Status)
	assert.ErrorIs(t, out.Err, context.DeadlineExceeded)
	assert.Zero(t, out.CostUSD, "apollo does not bill failed calls")

	failures, _, _ := g.Breakers().Get("apollo").Counters()
	assert.Equal(t, 1, failures)
}

func TestDo_CampaignCancellationDoesNotTrip(t *testing.T) {
	t.Parallel()
	g := newTestGateway(t, nil)
	s := g.Session(budget.NewLedger(1))

	ctx, cancel := context.WithCancel(context.Background())
	call := Call{Provider: "apollo", Capability: model.CapabilityEnrichCompany}
	_, out := Do(ctx, s, call, func(context.Context) (*CompanyEnrichment, error) {
		cancel()
		return nil, context.Canceled
	})
	assert.Equal(t, model.EnrichmentFailed, out.Status)

	failures, _, _ := g.Breakers().Get("apollo").Counters()
	assert.Zero(t, failures)
}

func TestDo_RetriesTransientSearch(t *testing.T) {
	t.Parallel()
	g := newTestGateway(t, nil)
	s := g.Session(budget.NewLedger(0))

	attempts := 0
	call := Call{
		Provider:   "google",
		Capability: model.CapabilitySearch,
		Retry:      &resilience.RetryConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond},
	}
	got, out := Do(context.Background(), s, call, func(context.Context) ([]model.BusinessCandidate, error) {
		attempts++
		if attempts == 1 {
			return nil, resilience.NewTransientError(errors.New("503"), 503)
		}
		return []model.BusinessCandidate{{Name: "Acme Plumbing"}}, nil
	})
	require.NoError(t, out.Err)
	assert.Len(t, got, 1)
	assert.Equal(t, 2, attempts)
}

func TestDo_PaidPerAttemptCallIsNotRetried(t *testing.T) {
	t.Parallel()
	breakers := resilience.NewBreakers(resilience.BreakerConfig{
		OnStateChange: func(string, resilience.CircuitState, resilience.CircuitState) {},
	})
	pricing := cost.NewCalculator(cost.Rates{
		"google": {PerCall: map[string]float64{"search": 0.10}, BillOnAttempt: true},
	})
	g := NewGateway(breakers, nil, pricing, GatewayConfig{DefaultTimeout: time.Second})
	s := g.Session(budget.NewLedger(0.10))

	attempts := 0
	call := Call{
		Provider:   "google",
		Capability: model.CapabilitySearch,
		Retry:      &resilience.RetryConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond},
	}
	_, out := Do(context.Background(), s, call, func(context.Context) ([]model.BusinessCandidate, error) {
		attempts++
		if attempts < 3 {
			return nil, resilience.NewTransientError(errors.New("503"), 503)
		}
		return []model.BusinessCandidate{{Name: "Acme Plumbing"}}, nil
	})
	assert.Equal(t, 1, attempts, "each billed attempt needs its own reservation")
	assert.Equal(t, model.EnrichmentFailed, out.Status)
	assert.InDelta(t, 0.10, out.CostUSD, 1e-9)
	assert.InDelta(t, 0.10, s.Ledger().Spent(), 1e-9)
}

func TestDo_TimeoutAppliesPerAttempt(t *testing.T) {
	t.Parallel()
	g := newTestGateway(t, nil)
	g.cfg.Limits = map[string]Limits{"google": {Timeout: 20 * time.Millisecond}}
	s := g.Session(budget.NewLedger(0))

	attempts := 0
	call := Call{
		Provider:   "google",
		Capability: model.CapabilitySearch,
		Retry:      &resilience.RetryConfig{MaxAttempts: 2, InitialBackoff: 5 * time.Millisecond},
	}
	got, out := Do(context.Background(), s, call, func(ctx context.Context) ([]model.BusinessCandidate, error) {
		attempts++
		if attempts == 1 {
			<-ctx.Done()
			return nil, resilience.NewTransientError(ctx.Err(), 0)
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return []model.BusinessCandidate{{Name: "Acme Plumbing"}}, nil
	})
	require.NoError(t, out.Err)
	assert.Len(t, got, 1)
	assert.Equal(t, 2, attempts)
}

func TestDo_RateLimited(t *testing.T) {
	t.Parallel()
	g := newTestGateway(t, nil)
	g.cfg.Limits = map[string]Limits{"google": {RPS: 1000, Burst: 1}}
	s := g.Session(budget.NewLedger(0))

	call := Call{Provider: "google", Capability: model.CapabilitySearch}
	for i := 0; i < 3; i++ {
		_, out := Do(context.Background(), s, call, func(context.Context) (int, error) { return i, nil })
		require.NoError(t, out.Err)
	}
	assert.Same(t, g.limiter("google"), g.limiter("google"))
}

func TestOutcome_Result(t *testing.T) {
	t.Parallel()
	call := Call{Provider: "ca_sos", Capability: model.CapabilityCheckRegistry}

	r := Outcome{Status: model.EnrichmentOK, CostUSD: 0.01}.Result(call, true, 10)
	assert.True(t, r.Success)
	assert.True(t, r.Found)
	assert.Equal(t, 10, r.ConfidenceBoost)

	r = Outcome{Status: model.EnrichmentOK, CostUSD: 0.01}.Result(call, false, 10)
	assert.Equal(t, model.EnrichmentNotFound, r.Status)
	assert.True(t, r.Success)
	assert.Zero(t, r.ConfidenceBoost)
	assert.InDelta(t, 0.01, r.CostUSD, 1e-9)

	r = Outcome{Status: model.EnrichmentFailed, CostUSD: 0.02, Err: errors.New("boom")}.Result(call, true, 10)
	assert.False(t, r.Success)
	assert.Equal(t, "boom", r.Error)
	assert.InDelta(t, 0.02, r.CostUSD, 1e-9)
}
