package main

import (
	"context"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/prospect-cli/internal/cache"
	"github.com/sells-group/prospect-cli/internal/campaign"
	"github.com/sells-group/prospect-cli/internal/config"
	"github.com/sells-group/prospect-cli/internal/cost"
	"github.com/sells-group/prospect-cli/internal/enhance"
	"github.com/sells-group/prospect-cli/internal/model"
	"github.com/sells-group/prospect-cli/internal/monitoring"
	"github.com/sells-group/prospect-cli/internal/provider"
	"github.com/sells-group/prospect-cli/internal/provider/adapters"
	"github.com/sells-group/prospect-cli/internal/qualify"
	"github.com/sells-group/prospect-cli/internal/resilience"
	"github.com/sells-group/prospect-cli/internal/routing"
	"github.com/sells-group/prospect-cli/internal/scoring"
	"github.com/sells-group/prospect-cli/internal/store"
	"github.com/sells-group/prospect-cli/pkg/apollo"
	"github.com/sells-group/prospect-cli/pkg/google"
	"github.com/sells-group/prospect-cli/pkg/hunter"
	"github.com/sells-group/prospect-cli/pkg/notion"
	"github.com/sells-group/prospect-cli/pkg/propublica"
	"github.com/sells-group/prospect-cli/pkg/registry"
	"github.com/sells-group/prospect-cli/pkg/salesforce"
	"github.com/sells-group/prospect-cli/pkg/website"
)

// appEnv holds everything the discover and serve commands share. Breakers,
// cache and limiters live in the gateway and outlast any one campaign.
type appEnv struct {
	Store      store.Store
	Gateway    *provider.Gateway
	Registry   *provider.Registry
	Controller *campaign.Controller
	Tracker    *monitoring.Tracker
}

// Close releases resources held by the environment.
func (e *appEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// Collector returns a metrics collector over the environment's shared state.
func (e *appEnv) Collector() *monitoring.Collector {
	return monitoring.NewCollector(e.Store, e.Gateway.Breakers(), e.Gateway.Cache(), e.Tracker)
}

// initEnv validates the config for mode, opens and migrates the store and
// wires every provider into a campaign controller. Callers should defer
// env.Close().
func initEnv(ctx context.Context, c *config.Config, mode string) (*appEnv, error) {
	if err := c.Validate(mode); err != nil {
		return nil, err
	}

	st, err := openStore(ctx, c)
	if err != nil {
		return nil, err
	}

	env, err := buildEnv(c, st)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	return env, nil
}

// buildEnv wires the controller around an open store.
func buildEnv(c *config.Config, st store.Store) (*appEnv, error) {
	tables, err := routingTables(c)
	if err != nil {
		return nil, err
	}
	routes := routing.NewRouter(tables)

	gw := buildGateway(c, st)
	reg := buildRegistry(c)

	sink, err := buildSink(c, st)
	if err != nil {
		return nil, err
	}

	tracker := monitoring.NewTracker()
	ctrl := campaign.New(campaign.Deps{
		Gateway:   gw,
		Registry:  reg,
		Routes:    routes,
		Enhancer:  enhance.NewRouter(reg, routes, enhanceConfig(reg)),
		Qualifier: qualify.New(qualify.DefaultRules(qualify.Config{DisableFallback: c.Qualify.DisableFallback, FallbackConfidence: c.Qualify.FallbackConfidence})),
		Sink:      sink,
		Observer:  tracker,
	}, controllerConfig(c))

	zap.L().Info("environment ready",
		zap.String("store", c.Store.Driver),
		zap.Strings("providers", reg.List()),
		zap.Strings("routable", routes.Providers()),
	)

	return &appEnv{
		Store:      st,
		Gateway:    gw,
		Registry:   reg,
		Controller: ctrl,
		Tracker:    tracker,
	}, nil
}

// initStore opens the configured store without migrating it.
func initStore(ctx context.Context, c *config.Config) (store.Store, error) {
	switch c.Store.Driver {
	case "sqlite":
		return store.NewSQLite(c.Store.SQLitePath)
	case "postgres":
		return store.NewPostgres(ctx, c.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: c.Store.MaxConns,
			MinConns: c.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", c.Store.Driver)
	}
}

// openStore opens and migrates the configured store.
func openStore(ctx context.Context, c *config.Config) (store.Store, error) {
	st, err := initStore(ctx, c)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

func buildGateway(c *config.Config, st store.Store) *provider.Gateway {
	var opts []cache.Option
	if c.Cache.Persist && st != nil {
		opts = append(opts, cache.WithBackend(st))
	}

	breakers := resilience.NewBreakers(resilience.FromBreakerConfig(c.Resilience.FailureThreshold, c.Resilience.CooldownSecs))
	return provider.NewGateway(breakers, cache.New(opts...), cost.NewCalculator(pricingRates(c)), provider.GatewayConfig{
		DefaultTimeout: secs(c.Campaign.ProviderTimeoutSecs),
		Limits:         gatewayLimits(c),
		TTLs:           cacheTTLs(c.Cache),
	})
}

func secs(n int) time.Duration {
	return time.Duration(n) * time.Second
}

func limitsOf(p config.ProviderConfig) provider.Limits {
	return provider.Limits{RPS: p.RPS, Burst: p.Burst, Timeout: secs(p.TimeoutSecs)}
}

// gatewayLimits maps every configured provider to its throttle.
func gatewayLimits(c *config.Config) map[string]provider.Limits {
	p := c.Providers
	limits := map[string]provider.Limits{
		adapters.NameGoogle:     limitsOf(p.Google),
		adapters.NameWebsite:    limitsOf(p.Website.ProviderConfig),
		adapters.NameHunter:     limitsOf(p.Hunter),
		adapters.NameApollo:     limitsOf(p.Apollo),
		adapters.NameProPublica: limitsOf(p.ProPublica),
	}
	for name, r := range p.Registries {
		limits[name] = limitsOf(r.ProviderConfig)
	}
	return limits
}

// cacheTTLs caches searches briefly and every lookup for much longer.
func cacheTTLs(c config.CacheConfig) map[model.Capability]time.Duration {
	lookup := time.Duration(c.LookupTTLHours) * time.Hour
	return map[model.Capability]time.Duration{
		model.CapabilitySearch:        time.Duration(c.SearchTTLMins) * time.Minute,
		model.CapabilityCheckWebsite:  lookup,
		model.CapabilityCheckRegistry: lookup,
		model.CapabilityFindEmail:     lookup,
		model.CapabilityVerifyEmail:   lookup,
		model.CapabilityEnrichCompany: lookup,
		model.CapabilityEnrichPerson:  lookup,
	}
}

// pricingRates overlays configured prices on the built-in price list, one
// capability at a time.
func pricingRates(c *config.Config) cost.Rates {
	rates := cost.DefaultRates()
	for name, p := range c.Pricing {
		name = strings.ToLower(name)
		r := rates[name]
		perCall := make(map[string]float64, len(r.PerCall)+len(p.PerCall))
		for capability, price := range r.PerCall {
			perCall[capability] = price
		}
		for capability, price := range p.PerCall {
			perCall[capability] = price
		}
		r.PerCall = perCall
		if p.BillOnAttempt {
			r.BillOnAttempt = true
		}
		rates[name] = r
	}
	return rates
}

// buildRegistry registers every enabled provider. Providers that need an
// API key are skipped without one.
func buildRegistry(c *config.Config) *provider.Registry {
	p := c.Providers
	reg := provider.NewRegistry()

	if !p.Google.Disabled && p.Google.Key != "" {
		var opts []google.Option
		if p.Google.BaseURL != "" {
			opts = append(opts, google.WithBaseURL(p.Google.BaseURL))
		}
		reg.Register(adapters.NewGoogle(google.NewClient(p.Google.Key, opts...)))
	}
	if !p.Website.Disabled {
		opts := []website.Option{website.WithUserAgent(p.Website.UserAgent)}
		if p.Website.TimeoutSecs > 0 {
			opts = append(opts, website.WithHTTPClient(&http.Client{Timeout: secs(p.Website.TimeoutSecs)}))
		}
		reg.Register(adapters.NewWebsite(website.NewClient(opts...)))
	}
	if !p.Hunter.Disabled && p.Hunter.Key != "" {
		var opts []hunter.Option
		if p.Hunter.BaseURL != "" {
			opts = append(opts, hunter.WithBaseURL(p.Hunter.BaseURL))
		}
		reg.Register(adapters.NewHunter(hunter.NewClient(p.Hunter.Key, opts...), enhance.DefaultOwnerTitles))
	}
	if !p.Apollo.Disabled && p.Apollo.Key != "" {
		var opts []apollo.Option
		if p.Apollo.BaseURL != "" {
			opts = append(opts, apollo.WithBaseURL(p.Apollo.BaseURL))
		}
		reg.Register(adapters.NewApollo(apollo.NewClient(p.Apollo.Key, opts...)))
	}
	if !p.ProPublica.Disabled {
		var opts []propublica.Option
		if p.ProPublica.BaseURL != "" {
			opts = append(opts, propublica.WithBaseURL(p.ProPublica.BaseURL))
		}
		reg.Register(adapters.NewProPublica(propublica.NewClient(opts...)))
	}
	for name, r := range p.Registries {
		if r.Disabled {
			continue
		}
		if r.BaseURL == "" {
			zap.L().Warn("registry has no base_url, skipping", zap.String("provider", name))
			continue
		}
		reg.Register(adapters.NewRegistry(name, registry.NewClient(r.BaseURL, registry.WithAPIKey(r.Key))))
	}
	return reg
}

// routingTables loads the configured tables, or the defaults, and declares
// every configured registry under its kind.
func routingTables(c *config.Config) (routing.Tables, error) {
	tables := routing.DefaultTables()
	if c.Routing.TablesPath != "" {
		t, err := routing.LoadTables(c.Routing.TablesPath)
		if err != nil {
			return routing.Tables{}, err
		}
		tables = t
	}

	for name, r := range c.Providers.Registries {
		kind, err := registryKind(r.Kind)
		if err != nil {
			return routing.Tables{}, eris.Wrapf(err, "providers.registries.%s", name)
		}
		tables.Providers[name] = kind
	}
	if err := tables.Validate(); err != nil {
		return routing.Tables{}, err
	}
	return tables, nil
}

func registryKind(kind string) (routing.ProviderKind, error) {
	switch k := routing.ProviderKind(strings.ToLower(strings.TrimSpace(kind))); k {
	case "":
		return routing.KindGovernment, nil
	case routing.KindGovernment, routing.KindNonprofit, routing.KindLicense, routing.KindAssociation:
		return k, nil
	default:
		return "", eris.Errorf("unknown registry kind %q", kind)
	}
}

// enhanceConfig names the providers serving each non-routed capability.
// The free website scrape is tried before Hunter.
func enhanceConfig(reg *provider.Registry) enhance.Config {
	ec := enhance.Config{
		Boosts:      enhance.DefaultBoosts(),
		OwnerTitles: enhance.DefaultOwnerTitles,
	}
	if _, ok := reg.SiteChecker(adapters.NameWebsite); ok {
		ec.SiteChecker = adapters.NameWebsite
	}
	for _, name := range []string{adapters.NameWebsite, adapters.NameHunter} {
		if _, ok := reg.EmailFinder(name); ok {
			ec.EmailFinders = append(ec.EmailFinders, name)
		}
	}
	if _, ok := reg.EmailVerifier(adapters.NameHunter); ok {
		ec.EmailVerifier = adapters.NameHunter
	}
	if _, ok := reg.CompanyEnricher(adapters.NameApollo); ok {
		ec.CompanyEnricher = adapters.NameApollo
	}
	if _, ok := reg.PersonEnricher(adapters.NameApollo); ok {
		ec.PersonEnricher = adapters.NameApollo
	}
	return ec
}

// scoringConfig overlays configured weights on the defaults. Zero and
// unknown weights are ignored.
func scoringConfig(c config.ScoringConfig) scoring.Config {
	w := scoring.DefaultWeights()
	fields := map[string]*int{
		"name":               &w.Name,
		"address":            &w.Address,
		"phone":              &w.Phone,
		"phone_with_email":   &w.PhoneWithEmail,
		"website":            &w.Website,
		"website_with_email": &w.WebsiteWithEmail,
		"email":              &w.Email,
	}
	for k, v := range c.Weights {
		f, ok := fields[strings.ToLower(k)]
		if !ok {
			zap.L().Warn("unknown scoring weight", zap.String("weight", k))
			continue
		}
		if v > 0 {
			*f = v
		}
	}
	return scoring.Config{Threshold: c.Threshold, Weights: w}
}

func controllerConfig(c *config.Config) campaign.Config {
	return campaign.Config{
		ExportCap:      c.Campaign.ExportCap,
		MaxAttempts:    c.Campaign.MaxAttempts,
		MaxQueries:     c.Campaign.MaxQueries,
		Concurrency:    c.Campaign.Concurrency,
		SearchLimit:    c.Campaign.SearchLimit,
		SearchProvider: c.Campaign.SearchProvider,
		SearchRetry: resilience.FromRetryConfig(
			c.Resilience.RetryMaxAttempts,
			c.Resilience.RetryInitialBackoffMs,
			c.Resilience.RetryMaxBackoffMs,
		),
		SinkTimeout: secs(c.Campaign.SinkTimeoutSecs),
		Scoring:     scoringConfig(c.Scoring),
	}
}

// buildSink fans finished campaigns out to the store and any configured
// CRM.
func buildSink(c *config.Config, st store.Store) (campaign.Sink, error) {
	sinks := []store.Sink{st}

	if c.Notion.Token != "" && c.Notion.LeadDB != "" {
		nc := notion.NewClient(c.Notion.Token, notion.WithRateLimit(c.Notion.RPS))
		sinks = append(sinks, store.NewNotionSink(nc, c.Notion.LeadDB))
	}

	if c.Salesforce.ClientID != "" {
		pemData, err := os.ReadFile(c.Salesforce.KeyPath)
		if err != nil {
			return nil, eris.Wrap(err, "read salesforce JWT private key")
		}
		sf, err := salesforce.Connect(c.Salesforce.LoginURL, c.Salesforce.Username, c.Salesforce.ClientID, string(pemData),
			salesforce.WithRateLimit(c.Salesforce.RPS))
		if err != nil {
			return nil, eris.Wrap(err, "init salesforce")
		}
		sinks = append(sinks, store.NewSalesforceSink(sf))
	}

	return store.NewMulti(sinks...), nil
}

// campaignInput is a campaign request as supplied by a caller. Unset
// numeric fields take the configured defaults; an explicit zero budget
// stays zero and runs on free signals only.
type campaignInput struct {
	BusinessType            string   `json:"business_type"`
	Location                string   `json:"location"`
	TargetCount             *int     `json:"target_count,omitempty"`
	BudgetLimitUSD          *float64 `json:"budget_limit_usd,omitempty"`
	MinConfidenceScore      *int     `json:"min_confidence_score,omitempty"`
	RequireCompleteContacts bool     `json:"require_complete_contacts"`
	RequireOwnerQualified   bool     `json:"require_owner_qualified"`
}

// request resolves the input against the defaults and validates it.
func (in campaignInput) request(d config.CampaignConfig) (model.CampaignRequest, error) {
	req := model.CampaignRequest{
		BusinessType:            strings.TrimSpace(in.BusinessType),
		Location:                strings.TrimSpace(in.Location),
		TargetCount:             d.TargetCount,
		BudgetLimitUSD:          d.BudgetLimitUSD,
		MinConfidenceScore:      d.MinConfidenceScore,
		RequireCompleteContacts: in.RequireCompleteContacts,
		RequireOwnerQualified:   in.RequireOwnerQualified,
	}
	if in.TargetCount != nil {
		req.TargetCount = *in.TargetCount
	}
	if in.BudgetLimitUSD != nil {
		req.BudgetLimitUSD = *in.BudgetLimitUSD
	}
	if in.MinConfidenceScore != nil {
		req.MinConfidenceScore = *in.MinConfidenceScore
	}
	if err := req.Validate(); err != nil {
		return model.CampaignRequest{}, err
	}
	return req, nil
}
