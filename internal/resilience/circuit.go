// Package resilience isolates provider failures with per-provider circuit
// breakers and classifies provider errors.
package resilience

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// CircuitState represents the state of a circuit breaker.
type CircuitState int

const (
	// CircuitClosed is the normal operating state. Calls flow through.
	CircuitClosed CircuitState = iota
	// CircuitOpen rejects calls without reaching the provider.
	CircuitOpen
	// CircuitHalfOpen admits one trial call after the cooldown elapsed.
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// MarshalText renders the state name in JSON snapshots.
func (s CircuitState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// BreakerConfig controls circuit breaker behavior.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive failures that opens the
	// circuit. Default: 3.
	FailureThreshold int

	// Cooldown is how long the circuit stays open before a trial call is
	// admitted. Default: 60s.
	Cooldown time.Duration

	// ShouldTrip decides which errors count as failures. If nil, every
	// non-nil error except ErrBudgetExceeded and context cancellation trips.
	ShouldTrip func(err error) bool

	// OnStateChange is called with the provider name on every transition.
	OnStateChange func(provider string, from, to CircuitState)
}

// DefaultBreakerConfig returns the provider breaker defaults.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 3,
		Cooldown:         60 * time.Second,
	}
}

// Breaker is the circuit breaker of a single provider.
type Breaker struct {
	name string
	cfg  BreakerConfig

	mu              sync.Mutex
	state           CircuitState
	failureCount    int
	lastFailureTime time.Time
	// trial is set while the half-open trial call is in flight.
	trial bool

	// nowFunc allows test injection of time.
	nowFunc func() time.Time
}

// NewBreaker creates a breaker for the named provider.
func NewBreaker(name string, cfg BreakerConfig) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 3
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 60 * time.Second
	}
	return &Breaker{
		name:    name,
		cfg:     cfg,
		state:   CircuitClosed,
		nowFunc: time.Now,
	}
}

// Name returns the provider the breaker guards.
func (b *Breaker) Name() string { return b.name }

// Allow admits a call or returns an UnavailableError while the circuit is
// open. An open circuit whose cooldown has elapsed moves to half-open and
// admits exactly one trial call; concurrent callers are rejected until that
// call is recorded or abandoned.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case CircuitOpen:
		if b.nowFunc().Sub(b.lastFailureTime) < b.cfg.Cooldown {
			return &UnavailableError{Provider: b.name}
		}
		b.transition(CircuitHalfOpen)
	case CircuitHalfOpen:
		if b.trial {
			return &UnavailableError{Provider: b.name}
		}
	default:
		return nil
	}
	b.trial = true
	return nil
}

// Abandon releases an admitted call that ended without a verdict on
// provider health, letting the next caller run the half-open trial.
func (b *Breaker) Abandon() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.trial = false
}

// Record feeds the outcome of an admitted call back into the breaker.
func (b *Breaker) Record(err error) {
	if err == nil || !b.shouldTrip(err) {
		b.Success()
		return
	}
	b.Failure()
}

// Success resets the failure count and closes a half-open circuit.
func (b *Breaker) Success() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failureCount = 0
	b.trial = false
	if b.state != CircuitClosed {
		b.transition(CircuitClosed)
	}
}

// Failure counts a failed call. Reaching the threshold, or failing a
// half-open trial, opens the circuit.
func (b *Breaker) Failure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failureCount++
	b.lastFailureTime = b.nowFunc()
	b.trial = false

	switch b.state {
	case CircuitClosed:
		if b.failureCount >= b.cfg.FailureThreshold {
			b.transition(CircuitOpen)
		}
	case CircuitHalfOpen:
		b.transition(CircuitOpen)
	}
}

// State returns the current state, reporting half-open once an open
// circuit's cooldown has elapsed.
func (b *Breaker) State() CircuitState {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == CircuitOpen && b.nowFunc().Sub(b.lastFailureTime) >= b.cfg.Cooldown {
		return CircuitHalfOpen
	}
	return b.state
}

// Counters returns the failure count, last failure time and state.
func (b *Breaker) Counters() (failures int, lastFailure time.Time, state CircuitState) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failureCount, b.lastFailureTime, b.state
}

// Reset forces the circuit closed.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failureCount = 0
	b.trial = false
	if b.state != CircuitClosed {
		b.transition(CircuitClosed)
	}
}

func (b *Breaker) shouldTrip(err error) bool {
	if b.cfg.ShouldTrip != nil {
		return b.cfg.ShouldTrip(err)
	}
	return CountsAsFailure(err)
}

func (b *Breaker) transition(to CircuitState) {
	from := b.state
	b.state = to
	if b.cfg.OnStateChange != nil {
		b.cfg.OnStateChange(b.name, from, to)
	}
}

// BreakerStatus is a point-in-time view of one provider's breaker.
type BreakerStatus struct {
	Provider      string       `json:"provider"`
	State         CircuitState `json:"state"`
	FailureCount  int          `json:"failure_count"`
	LastFailureAt *time.Time   `json:"last_failure_at,omitempty"`
}

// Breakers is the process-wide registry of per-provider breakers. It is
// shared by every campaign in the process.
type Breakers struct {
	mu       sync.RWMutex
	breakers map[string]*Breaker
	cfg      BreakerConfig
	nowFunc  func() time.Time
}

// NewBreakers creates an empty registry. Breakers are created lazily with cfg.
func NewBreakers(cfg BreakerConfig) *Breakers {
	if cfg.OnStateChange == nil {
		cfg.OnStateChange = LogStateChange
	}
	return &Breakers{
		breakers: make(map[string]*Breaker),
		cfg:      cfg,
		nowFunc:  time.Now,
	}
}

// Get returns the breaker for the named provider, creating one if needed.
func (r *Breakers) Get(provider string) *Breaker {
	r.mu.RLock()
	b, ok := r.breakers[provider]
	r.mu.RUnlock()
	if ok {
		return b
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok = r.breakers[provider]; ok {
		return b
	}
	b = NewBreaker(provider, r.cfg)
	b.nowFunc = r.nowFunc
	r.breakers[provider] = b
	return b
}

// Snapshot returns the status of every known breaker sorted by provider.
func (r *Breakers) Snapshot() []BreakerStatus {
	r.mu.RLock()
	list := make([]*Breaker, 0, len(r.breakers))
	for _, b := range r.breakers {
		list = append(list, b)
	}
	r.mu.RUnlock()

	out := make([]BreakerStatus, 0, len(list))
	for _, b := range list {
		failures, last, _ := b.Counters()
		st := BreakerStatus{Provider: b.Name(), State: b.State(), FailureCount: failures}
		if !last.IsZero() {
			t := last
			st.LastFailureAt = &t
		}
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Provider < out[j].Provider })
	return out
}

// LogStateChange logs breaker transitions at warn (opening) or info level.
func LogStateChange(provider string, from, to CircuitState) {
	fields := []zap.Field{
		zap.String("provider", provider),
		zap.Stringer("from", from),
		zap.Stringer("to", to),
	}
	if to == CircuitOpen {
		zap.L().Warn("circuit opened", fields...)
		return
	}
	zap.L().Info("circuit state change", fields...)
}
