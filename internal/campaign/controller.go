// Package campaign runs discovery campaigns: a query-level state machine
// that searches, scores, enriches, qualifies and de-duplicates candidates
// until the target, the budget or the query list runs out.
package campaign

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/prospect-cli/internal/budget"
	"github.com/sells-group/prospect-cli/internal/cache"
	"github.com/sells-group/prospect-cli/internal/dedupe"
	"github.com/sells-group/prospect-cli/internal/enhance"
	"github.com/sells-group/prospect-cli/internal/model"
	"github.com/sells-group/prospect-cli/internal/provider"
	"github.com/sells-group/prospect-cli/internal/qualify"
	"github.com/sells-group/prospect-cli/internal/resilience"
	"github.com/sells-group/prospect-cli/internal/routing"
	"github.com/sells-group/prospect-cli/internal/scoring"
)

// Config holds controller limits.
type Config struct {
	// ExportCap bounds the returned lead list regardless of target.
	ExportCap int
	// MaxAttempts bounds search iterations per campaign.
	MaxAttempts int
	// MaxQueries bounds the generated query list.
	MaxQueries int
	// Concurrency bounds candidates enriched at once.
	Concurrency int
	// SearchLimit is the result count requested per query.
	SearchLimit    int
	SearchProvider string
	SearchRetry    resilience.RetryConfig
	// LowYieldMin is the new-lead count below which a query is low yield.
	LowYieldMin int
	// SinkTimeout bounds persistence of a finished campaign.
	SinkTimeout time.Duration
	Scoring     scoring.Config
}

// DefaultConfig returns the controller defaults.
func DefaultConfig() Config {
	return Config{
		ExportCap:      100,
		MaxAttempts:    20,
		MaxQueries:     12,
		Concurrency:    4,
		SearchLimit:    20,
		SearchProvider: "google",
		SearchRetry:    resilience.DefaultRetryConfig(),
		LowYieldMin:    2,
		SinkTimeout:    30 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.ExportCap <= 0 {
		c.ExportCap = d.ExportCap
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	if c.MaxQueries <= 0 {
		c.MaxQueries = d.MaxQueries
	}
	if c.Concurrency <= 0 {
		c.Concurrency = d.Concurrency
	}
	if c.SearchLimit <= 0 {
		c.SearchLimit = d.SearchLimit
	}
	if c.SearchProvider == "" {
		c.SearchProvider = d.SearchProvider
	}
	if c.SearchRetry.MaxAttempts <= 0 {
		c.SearchRetry = d.SearchRetry
	}
	if c.LowYieldMin <= 0 {
		c.LowYieldMin = d.LowYieldMin
	}
	if c.SinkTimeout <= 0 {
		c.SinkTimeout = d.SinkTimeout
	}
	return c
}

// Sink persists finished campaigns.
type Sink interface {
	SaveCampaign(ctx context.Context, summary model.CampaignSummary, leads []*model.QualifiedLead) error
}

// Observer is told about every state transition.
type Observer interface {
	Transition(id string, status model.CampaignStatus)
}

// Deps are the collaborators of a Controller. Sink and Observer are
// optional.
type Deps struct {
	Gateway   *provider.Gateway
	Registry  *provider.Registry
	Routes    *routing.Router
	Enhancer  *enhance.Router
	Qualifier *qualify.Qualifier
	Sink      Sink
	Observer  Observer
}

// Controller runs campaigns. It is safe for concurrent use; each Run gets
// its own budget ledger while breakers and cache are shared.
type Controller struct {
	deps Deps
	cfg  Config

	nowFunc func() time.Time
	newID   func() string
}

// New creates a Controller.
func New(deps Deps, cfg Config) *Controller {
	if deps.Qualifier == nil {
		deps.Qualifier = qualify.New(nil)
	}
	return &Controller{
		deps:    deps,
		cfg:     cfg.withDefaults(),
		nowFunc: time.Now,
		newID:   uuid.NewString,
	}
}

// run is the mutable state of one campaign.
type run struct {
	res      *model.CampaignResult
	log      *zap.Logger
	session  *provider.Session
	scorer   *scoring.Scorer
	criteria qualify.Criteria
	rctx     routing.Context
	accepted []*model.QualifiedLead
	seen     *dedupe.Index
	lowYield int
}

// Run executes one campaign for a validated request. It never returns an
// error: provider failures become warnings and every termination, including
// cancellation of ctx, yields a well-formed partial result.
func (c *Controller) Run(ctx context.Context, req model.CampaignRequest) *model.CampaignResult {
	res := &model.CampaignResult{
		ID:        c.newID(),
		Request:   req,
		StartedAt: c.nowFunc().UTC(),
	}
	r := &run{
		res: res,
		log: zap.L().With(
			zap.String("component", "campaign"),
			zap.String("campaign_id", res.ID),
		),
		session:  c.deps.Gateway.Session(budget.NewLedger(req.BudgetLimitUSD)),
		criteria: qualify.CriteriaFor(req, c.cfg.Scoring.Threshold),
		rctx:     routing.Context{BusinessType: req.BusinessType, Location: req.Location},
		seen:     dedupe.NewIndex(),
	}
	scfg := c.cfg.Scoring
	scfg.Threshold = r.criteria.Threshold
	r.scorer = scoring.NewScorer(scfg, scoring.Context{BusinessType: req.BusinessType, Location: req.Location})
	r.criteria.Threshold = r.scorer.Threshold()

	c.transition(r, model.StatusInitializing)
	r.log.Info("campaign started",
		zap.String("business_type", req.BusinessType),
		zap.String("location", req.Location),
		zap.Int("target", req.TargetCount),
		zap.Float64("budget_usd", req.BudgetLimitUSD),
	)

	queries := Queries(req.BusinessType, req.Location, c.cfg.MaxQueries)
	searcher, ok := c.deps.Registry.Searcher(c.cfg.SearchProvider)
	if !ok {
		c.warn(r, fmt.Sprintf("search provider %q is not registered", c.cfg.SearchProvider))
		c.finish(ctx, r, model.StatusErrorAbort)
		return res
	}

	next := 0
	for {
		if status, done := c.terminal(ctx, r, next, len(queries)); done {
			c.finish(ctx, r, status)
			return res
		}
		query := queries[next]
		next++
		res.Attempts++
		res.QueriesTried = append(res.QueriesTried, query)

		if stop := c.iterate(ctx, r, searcher, query); stop != "" {
			c.finish(ctx, r, stop)
			return res
		}
	}
}

// terminal evaluates the stop conditions in precedence order.
func (c *Controller) terminal(ctx context.Context, r *run, next, total int) (model.CampaignStatus, bool) {
	switch {
	case ctx.Err() != nil:
		return model.StatusCancelled, true
	case len(r.accepted) >= r.res.Request.TargetCount:
		return model.StatusTargetMet, true
	case r.session.Ledger().Exhausted():
		return model.StatusBudgetExhausted, true
	case next >= total:
		return model.StatusQueryExhausted, true
	case r.res.Attempts >= c.cfg.MaxAttempts:
		c.warn(r, fmt.Sprintf("stopped after %d attempts", r.res.Attempts))
		return model.StatusErrorAbort, true
	}
	return "", false
}

// iterate runs one query through the pipeline. It returns a status only
// when the campaign cannot continue.
func (c *Controller) iterate(ctx context.Context, r *run, searcher provider.Searcher, query string) model.CampaignStatus {
	log := r.log.With(zap.String("query", query))

	c.transition(r, model.StatusSearching)
	found, stop := c.search(ctx, r, searcher, query)
	if stop != "" || len(found) == 0 {
		if stop == "" {
			log.Info("no results for query")
		}
		return stop
	}
	r.res.Counts.Searched += len(found)

	c.transition(r, model.StatusScoring)
	scored := r.scorer.ScoreAll(found)

	c.transition(r, model.StatusFiltering)
	var gated []model.ScoredCandidate
	for _, sc := range scored {
		if !sc.PassesPreValidation {
			continue
		}
		r.res.Counts.PassedPreScore++
		if r.seen.Seen(sc.BusinessCandidate) {
			r.res.Counts.Duplicates++
			continue
		}
		gated = append(gated, sc)
	}
	gated, dupes := dedupe.Filter(gated, nil, func(sc model.ScoredCandidate) model.BusinessCandidate {
		return sc.BusinessCandidate
	})
	r.res.Counts.Duplicates += dupes

	c.transition(r, model.StatusEnriching)
	leads := c.enrich(ctx, r, gated)

	var passed []*model.QualifiedLead
	for _, l := range leads {
		if reason, ok := r.criteria.Check(l); !ok {
			log.Debug("candidate rejected", zap.String("candidate", l.Name), zap.String("reason", reason))
			continue
		}
		passed = append(passed, l)
	}
	r.res.Counts.PassedFilter += len(passed)

	c.transition(r, model.StatusAccumulating)
	kept, dupes := dedupe.Leads(passed, r.accepted)
	r.res.Counts.Duplicates += dupes
	for _, l := range kept {
		r.accepted = append(r.accepted, l)
		r.seen.Add(l.BusinessCandidate)
	}
	r.res.Counts.Accepted = len(r.accepted)

	if len(kept) < c.cfg.LowYieldMin {
		r.lowYield++
		c.warn(r, fmt.Sprintf("low_yield: query %q added %d leads", query, len(kept)))
	} else {
		r.lowYield = 0
	}
	log.Info("query processed",
		zap.Int("found", len(found)),
		zap.Int("gated", len(gated)),
		zap.Int("added", len(kept)),
		zap.Int("accepted", len(r.accepted)),
		zap.Float64("spent_usd", r.session.Ledger().Spent()),
		zap.Float64("remaining_usd", r.session.Ledger().Remaining()),
	)
	return ""
}

// search runs a guarded search. Failures become warnings and advance to the
// next query. A search the budget cannot cover ends the campaign.
func (c *Controller) search(ctx context.Context, r *run, searcher provider.Searcher, query string) ([]model.BusinessCandidate, model.CampaignStatus) {
	q := provider.SearchQuery{Query: query, Location: r.res.Request.Location, Limit: c.cfg.SearchLimit}
	retry := c.cfg.SearchRetry
	call := provider.Call{
		Provider:   searcher.Name(),
		Capability: model.CapabilitySearch,
		CacheKey:   cache.Key(searcher.Name(), q.Query, q.Location, strconv.Itoa(q.Limit)),
		Retry:      &retry,
	}
	found, out := provider.Do(ctx, r.session, call, func(ctx context.Context) ([]model.BusinessCandidate, error) {
		return searcher.Search(ctx, q)
	})
	c.countOutcome(r, out.Status, out.Cached)

	switch out.Status {
	case model.EnrichmentOK:
		for i := range found {
			if found[i].Source == "" {
				found[i].Source = searcher.Name()
			}
		}
		return found, ""
	case model.EnrichmentSkippedBudget:
		c.warn(r, fmt.Sprintf("search %q skipped: budget exhausted", query))
		return nil, model.StatusBudgetExhausted
	default:
		if ctx.Err() != nil {
			return nil, ""
		}
		c.warn(r, fmt.Sprintf("search %q failed: %v", query, out.Err))
		return nil, ""
	}
}

// enrich runs the validation and enhancement passes of every gated
// candidate on a bounded worker pool. Disqualified candidates come back nil.
func (c *Controller) enrich(ctx context.Context, r *run, gated []model.ScoredCandidate) []*model.QualifiedLead {
	type enriched struct {
		lead *model.QualifiedLead
		dq   bool
	}
	out := make([]enriched, len(gated))

	var g errgroup.Group
	g.SetLimit(c.cfg.Concurrency)
	for i, sc := range gated {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			lead, dq := c.enrichOne(ctx, r, sc)
			out[i] = enriched{lead: lead, dq: dq}
			return nil
		})
	}
	_ = g.Wait()

	leads := make([]*model.QualifiedLead, 0, len(out))
	for _, e := range out {
		if e.lead == nil {
			continue
		}
		r.res.Counts.Enriched++
		for _, res := range e.lead.Enrichments {
			c.countOutcome(r, res.Status, res.Cached)
		}
		if !e.dq {
			leads = append(leads, e.lead)
		}
	}
	return leads
}

func (c *Controller) enrichOne(ctx context.Context, r *run, sc model.ScoredCandidate) (*model.QualifiedLead, bool) {
	lead := model.NewQualifiedLead(sc)
	cl := c.deps.Routes.Classify(sc.BusinessCandidate, r.rctx)
	plan := c.deps.Routes.Plan(cl)

	pass := c.deps.Enhancer.NewPass(r.session, lead, cl)
	pass.Run(ctx, c.deps.Enhancer.ValidationSteps(plan))
	if reason, dq := pass.Disqualified(); dq {
		r.log.Debug("candidate disqualified", zap.String("candidate", sc.Name), zap.String("reason", reason))
		return lead, true
	}
	pass.Run(ctx, c.deps.Enhancer.Select(plan))
	c.deps.Qualifier.Apply(lead)
	return lead, false
}

func (c *Controller) countOutcome(r *run, status model.EnrichmentStatus, cached bool) {
	counts := &r.res.Counts
	switch {
	case cached:
		counts.CacheHits++
	case status == model.EnrichmentSkippedBudget:
		counts.BudgetSkips++
	case status == model.EnrichmentUnavailable:
		counts.UnavailableSkips++
	case status.Attempted():
		counts.ProviderCalls++
	}
}

func (c *Controller) transition(r *run, status model.CampaignStatus) {
	if r.res.Status == status {
		return
	}
	r.log.Debug("campaign state", zap.String("from", string(r.res.Status)), zap.String("to", string(status)))
	r.res.Status = status
	if c.deps.Observer != nil {
		c.deps.Observer.Transition(r.res.ID, status)
	}
}

func (c *Controller) warn(r *run, msg string) {
	r.log.Warn("campaign warning", zap.String("warning", msg))
	r.res.Warnings = append(r.res.Warnings, msg)
}

// finish caps the lead list, fills the totals and hands the result to the
// sink. A sink failure only adds a warning.
func (c *Controller) finish(ctx context.Context, r *run, status model.CampaignStatus) {
	res := r.res
	limit := min(res.Request.TargetCount, c.cfg.ExportCap)
	leads := r.accepted
	if len(leads) > limit {
		leads = leads[:limit]
	}
	res.Leads = leads
	if res.Leads == nil {
		res.Leads = []*model.QualifiedLead{}
	}
	res.Counts.Accepted = len(res.Leads)
	res.TotalCostUSD = r.session.Ledger().Spent()
	res.Success = len(res.Leads) > 0
	res.FinishedAt = c.nowFunc().UTC()
	c.transition(r, status)

	calls, skipped := r.session.Ledger().Stats()
	r.log.Info("campaign finished",
		zap.String("status", string(status)),
		zap.Int("leads", len(res.Leads)),
		zap.Int("attempts", res.Attempts),
		zap.Float64("cost_usd", res.TotalCostUSD),
		zap.Int("provider_calls", calls),
		zap.Int("budget_skips", skipped),
		zap.Int("warnings", len(res.Warnings)),
	)
	c.persist(ctx, r)
}

func (c *Controller) persist(ctx context.Context, r *run) {
	if c.deps.Sink == nil {
		return
	}
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.SinkTimeout)
	defer cancel()
	if err := c.deps.Sink.SaveCampaign(sctx, r.res.Summary(), r.res.Leads); err != nil {
		r.log.Error("campaign: persist result", zap.Error(err))
		r.res.Warnings = append(r.res.Warnings, fmt.Sprintf("persist: %v", err))
	}
}
