package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/prospect-cli/internal/cache"
	"github.com/sells-group/prospect-cli/internal/model"
	"github.com/sells-group/prospect-cli/internal/resilience"
	"github.com/sells-group/prospect-cli/internal/store"
)

// recentLimit caps the campaigns listed in a snapshot.
const recentLimit = 10

// scanLimit caps the campaigns read from the store per collection.
const scanLimit = 1000

// Snapshot holds a point-in-time view of system health.
type Snapshot struct {
	// Campaign metrics (within lookback window).
	Campaigns       int     `json:"campaigns"`
	TargetMet       int     `json:"target_met"`
	BudgetExhausted int     `json:"budget_exhausted"`
	QueryExhausted  int     `json:"query_exhausted"`
	ErrorAbort      int     `json:"error_abort"`
	Cancelled       int     `json:"cancelled"`
	ErrorAbortRate  float64 `json:"error_abort_rate"`
	Leads           int     `json:"leads"`
	CostUSD         float64 `json:"cost_usd"`
	CostPerLeadUSD  float64 `json:"cost_per_lead_usd"`

	// Provider traffic summed over the window.
	ProviderCalls    int `json:"provider_calls"`
	CacheHits        int `json:"cache_hits"`
	BudgetSkips      int `json:"budget_skips"`
	UnavailableSkips int `json:"unavailable_skips"`

	// Live process state. Empty when collected outside a server.
	Active       []ActiveCampaign             `json:"active,omitempty"`
	Breakers     []resilience.BreakerStatus   `json:"breakers,omitempty"`
	OpenBreakers []string                     `json:"open_breakers,omitempty"`
	Cache        *cache.Stats                 `json:"cache,omitempty"`
	Finished     map[model.CampaignStatus]int `json:"finished_since_start,omitempty"`

	Recent []model.CampaignSummary `json:"recent"`

	// Metadata.
	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// CampaignLister is the store method the collector reads campaigns with.
type CampaignLister interface {
	ListCampaigns(ctx context.Context, filter store.CampaignFilter) ([]model.CampaignSummary, error)
}

// Collector gathers metrics from the store and the shared runtime state.
// Every collaborator except the store may be nil.
type Collector struct {
	campaigns CampaignLister
	breakers  *resilience.Breakers
	cache     *cache.Cache
	tracker   *Tracker

	nowFunc func() time.Time
}

// NewCollector creates a new metrics collector.
func NewCollector(campaigns CampaignLister, breakers *resilience.Breakers, c *cache.Cache, tracker *Tracker) *Collector {
	return &Collector{
		campaigns: campaigns,
		breakers:  breakers,
		cache:     c,
		tracker:   tracker,
		nowFunc:   time.Now,
	}
}

// Collect gathers a snapshot over the given lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*Snapshot, error) {
	now := c.nowFunc().UTC()
	snap := &Snapshot{
		LookbackHours: lookbackHours,
		CollectedAt:   now,
		Recent:        []model.CampaignSummary{},
	}
	cutoff := now.Add(-time.Duration(lookbackHours) * time.Hour)

	// Campaigns come back newest first.
	list, err := c.campaigns.ListCampaigns(ctx, store.CampaignFilter{Limit: scanLimit})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list campaigns")
	}
	for _, cs := range list {
		if cs.StartedAt.Before(cutoff) {
			break
		}
		snap.Campaigns++
		switch cs.Status {
		case model.StatusTargetMet:
			snap.TargetMet++
		case model.StatusBudgetExhausted:
			snap.BudgetExhausted++
		case model.StatusQueryExhausted:
			snap.QueryExhausted++
		case model.StatusErrorAbort:
			snap.ErrorAbort++
		case model.StatusCancelled:
			snap.Cancelled++
		}
		snap.Leads += cs.LeadCount
		snap.CostUSD += cs.TotalCostUSD
		snap.ProviderCalls += cs.Counts.ProviderCalls
		snap.CacheHits += cs.Counts.CacheHits
		snap.BudgetSkips += cs.Counts.BudgetSkips
		snap.UnavailableSkips += cs.Counts.UnavailableSkips
		if len(snap.Recent) < recentLimit {
			snap.Recent = append(snap.Recent, cs)
		}
	}
	if snap.Campaigns > 0 {
		snap.ErrorAbortRate = float64(snap.ErrorAbort) / float64(snap.Campaigns)
	}
	if snap.Leads > 0 {
		snap.CostPerLeadUSD = snap.CostUSD / float64(snap.Leads)
	}

	if c.breakers != nil {
		snap.Breakers = c.breakers.Snapshot()
		for _, b := range snap.Breakers {
			if b.State == resilience.CircuitOpen {
				snap.OpenBreakers = append(snap.OpenBreakers, b.Provider)
			}
		}
	}
	if c.cache != nil {
		st := c.cache.Stats()
		snap.Cache = &st
	}
	if c.tracker != nil {
		snap.Active = c.tracker.Active()
		snap.Finished = c.tracker.Finished()
	}

	return snap, nil
}
