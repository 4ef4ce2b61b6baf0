package provider

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/prospect-cli/internal/budget"
	"github.com/sells-group/prospect-cli/internal/cache"
	"github.com/sells-group/prospect-cli/internal/cost"
	"github.com/sells-group/prospect-cli/internal/model"
	"github.com/sells-group/prospect-cli/internal/resilience"
)

// Limits throttles one provider.
type Limits struct {
	// RPS is the sustained request rate. Zero means unlimited.
	RPS float64
	// Burst is the bucket size. Defaults to 1 when RPS is set.
	Burst int
	// Timeout bounds every call. Defaults to the gateway timeout.
	Timeout time.Duration
}

// GatewayConfig holds the process-wide call policy.
type GatewayConfig struct {
	DefaultTimeout time.Duration
	Limits         map[string]Limits
	// TTLs maps a capability to how long its results are cached. A
	// capability without a TTL is not cached.
	TTLs map[model.Capability]time.Duration
}

// Gateway guards every provider call with the cache, the campaign budget,
// the provider's circuit breaker, a token bucket and a timeout. Breakers,
// cache and limiters are shared by every campaign in the process.
type Gateway struct {
	breakers *resilience.Breakers
	cache    *cache.Cache
	pricing  *cost.Calculator
	cfg      GatewayConfig

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewGateway creates a Gateway. cache may be nil to disable caching.
func NewGateway(breakers *resilience.Breakers, c *cache.Cache, pricing *cost.Calculator, cfg GatewayConfig) *Gateway {
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = 15 * time.Second
	}
	if pricing == nil {
		pricing = cost.NewCalculator(nil)
	}
	return &Gateway{
		breakers: breakers,
		cache:    c,
		pricing:  pricing,
		cfg:      cfg,
		limiters: make(map[string]*rate.Limiter),
	}
}

// Breakers returns the shared breaker registry.
func (g *Gateway) Breakers() *resilience.Breakers { return g.breakers }

// Cache returns the shared cache, possibly nil.
func (g *Gateway) Cache() *cache.Cache { return g.cache }

// Pricing returns the price list.
func (g *Gateway) Pricing() *cost.Calculator { return g.pricing }

// Session binds the gateway to one campaign's budget ledger.
func (g *Gateway) Session(ledger *budget.Ledger) *Session {
	return &Session{gw: g, ledger: ledger}
}

func (g *Gateway) limiter(provider string) *rate.Limiter {
	g.mu.Lock()
	defer g.mu.Unlock()
	if l, ok := g.limiters[provider]; ok {
		return l
	}
	lim := g.cfg.Limits[provider]
	l := rate.NewLimiter(rate.Inf, 1)
	if lim.RPS > 0 {
		burst := lim.Burst
		if burst <= 0 {
			burst = 1
		}
		l = rate.NewLimiter(rate.Limit(lim.RPS), burst)
	}
	g.limiters[provider] = l
	return l
}

func (g *Gateway) timeout(provider string) time.Duration {
	if t := g.cfg.Limits[provider].Timeout; t > 0 {
		return t
	}
	return g.cfg.DefaultTimeout
}

// Session issues calls on behalf of one campaign.
type Session struct {
	gw     *Gateway
	ledger *budget.Ledger
}

// Ledger returns the campaign ledger.
func (s *Session) Ledger() *budget.Ledger { return s.ledger }

// Gateway returns the underlying gateway.
func (s *Session) Gateway() *Gateway { return s.gw }

// Estimate returns the declared cost of one call.
func (s *Session) Estimate(provider string, capability model.Capability) float64 {
	return s.gw.pricing.Estimate(provider, string(capability))
}

// Call describes one guarded provider invocation.
type Call struct {
	Provider   string
	Capability model.Capability
	// CacheKey enables caching when non-empty.
	CacheKey string
	// Retry, when set, retries transient failures inside one budget
	// reservation. Ignored for paid calls billed per attempt.
	Retry *resilience.RetryConfig
}

// Outcome describes how a guarded call went.
type Outcome struct {
	Status  model.EnrichmentStatus
	CostUSD float64
	Cached  bool
	Err     error
}

// Result converts the outcome into an enrichment record. found and boost
// come from the adapter-specific payload.
func (o Outcome) Result(c Call, found bool, boost int) model.EnrichmentResult {
	r := model.EnrichmentResult{
		Provider:   c.Provider,
		Capability: c.Capability,
		Status:     o.Status,
		CostUSD:    o.CostUSD,
		Cached:     o.Cached,
	}
	if o.Err != nil {
		r.Error = o.Err.Error()
	}
	if o.Status == model.EnrichmentOK {
		r.Success = true
		r.Found = found
		if !found {
			r.Status = model.EnrichmentNotFound
		} else {
			r.ConfidenceBoost = boost
		}
	}
	return r
}

// Do runs fn as the guarded call c. It never issues a call the campaign
// cannot afford, never touches the network while the provider's circuit is
// open, and charges the ledger exactly once per issued call. A cache hit
// costs nothing.
func Do[T any](ctx context.Context, s *Session, c Call, fn func(ctx context.Context) (T, error)) (T, Outcome) {
	var zero T
	g := s.gw
	log := zap.L().With(zap.String("provider", c.Provider), zap.String("capability", string(c.Capability)))

	ttl := g.cfg.TTLs[c.Capability]
	useCache := g.cache != nil && c.CacheKey != "" && ttl > 0
	if useCache {
		if raw, ok := g.cache.Get(ctx, c.CacheKey); ok {
			var v T
			if err := json.Unmarshal(raw, &v); err == nil {
				log.Debug("provider cache hit")
				return v, Outcome{Status: model.EnrichmentOK, Cached: true}
			}
			g.cache.Delete(c.CacheKey)
		}
	}

	estimate := g.pricing.Estimate(c.Provider, string(c.Capability))
	res, ok := s.ledger.Reserve(estimate)
	if !ok {
		log.Debug("provider call skipped for budget", zap.Float64("estimate", estimate))
		return zero, Outcome{Status: model.EnrichmentSkippedBudget, Err: resilience.ErrBudgetExceeded}
	}

	breaker := g.breakers.Get(c.Provider)
	if err := breaker.Allow(); err != nil {
		s.ledger.Release(res)
		log.Debug("provider call rejected by open circuit")
		return zero, Outcome{Status: model.EnrichmentUnavailable, Err: err}
	}

	if err := g.limiter(c.Provider).Wait(ctx); err != nil {
		breaker.Abandon()
		s.ledger.Release(res)
		return zero, Outcome{Status: model.EnrichmentFailed, Err: eris.Wrap(err, "provider: rate limit wait")}
	}

	timeout := g.timeout(c.Provider)
	attempt := func(ctx context.Context) (T, error) {
		callCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		return fn(callCtx)
	}

	var (
		val T
		err error
	)
	// A provider billed per attempt is charged once per Do, so it gets a
	// single attempt.
	if c.Retry != nil && !(g.pricing.BillsOnAttempt(c.Provider) && estimate > 0) {
		rc := *c.Retry
		if rc.OnRetry == nil {
			rc.OnRetry = resilience.RetryLogger(c.Provider, string(c.Capability))
		}
		val, err = resilience.DoVal(ctx, rc, attempt)
	} else {
		val, err = attempt(ctx)
	}
	// A call abandoned by the campaign says nothing about provider health.
	if err == nil || ctx.Err() == nil {
		breaker.Record(err)
	} else {
		breaker.Abandon()
	}
	charged := g.pricing.Charge(c.Provider, string(c.Capability), err == nil)
	s.ledger.Settle(res, charged)

	if err != nil {
		var pe *resilience.ProviderCallError
		if !errors.As(err, &pe) && !errors.Is(err, context.Canceled) {
			err = resilience.NewProviderCallError(c.Provider, string(c.Capability), 0, err)
		}
		log.Warn("provider call failed", zap.Float64("cost_usd", charged), zap.Error(err))
		return zero, Outcome{Status: model.EnrichmentFailed, CostUSD: charged, Err: err}
	}

	if useCache {
		if raw, mErr := json.Marshal(val); mErr == nil {
			g.cache.Set(ctx, c.CacheKey, raw, ttl)
		}
	}
	return val, Outcome{Status: model.EnrichmentOK, CostUSD: charged}
}
