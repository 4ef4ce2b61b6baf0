// Package enhance runs the provider steps selected for a candidate in a
// fixed free-before-paid order and folds their results into the lead.
package enhance

import (
	"sort"

	"go.uber.org/zap"

	"github.com/sells-group/prospect-cli/internal/model"
	"github.com/sells-group/prospect-cli/internal/provider"
	"github.com/sells-group/prospect-cli/internal/routing"
)

// Boosts are the confidence points a successful, positive step adds.
type Boosts struct {
	WebsiteAccessible int `yaml:"website_accessible" mapstructure:"website_accessible"`
	Government        int `yaml:"government" mapstructure:"government"`
	Nonprofit         int `yaml:"nonprofit" mapstructure:"nonprofit"`
	License           int `yaml:"license" mapstructure:"license"`
	Association       int `yaml:"association" mapstructure:"association"`
	EmailFound        int `yaml:"email_found" mapstructure:"email_found"`
	OwnerFound        int `yaml:"owner_found" mapstructure:"owner_found"`
	EmailVerified     int `yaml:"email_verified" mapstructure:"email_verified"`
	CompanyEnriched   int `yaml:"company_enriched" mapstructure:"company_enriched"`
}

// DefaultBoosts returns the standard boost table.
func DefaultBoosts() Boosts {
	return Boosts{
		WebsiteAccessible: 5,
		Government:        10,
		Nonprofit:         10,
		License:           8,
		Association:       5,
		EmailFound:        5,
		OwnerFound:        10,
		EmailVerified:     10,
		CompanyEnriched:   5,
	}
}

// Config names the providers serving each non-routed capability.
type Config struct {
	Boosts          Boosts
	SiteChecker     string
	EmailFinders    []string
	EmailVerifier   string
	CompanyEnricher string
	PersonEnricher  string
	OwnerTitles     []string
}

// DefaultOwnerTitles are the job titles that identify an owner.
var DefaultOwnerTitles = []string{
	"owner", "co-owner", "founder", "co-founder", "president", "ceo",
	"chief executive", "principal", "proprietor", "managing partner", "managing member",
}

// Step is one provider invocation planned for a candidate.
type Step struct {
	Provider   string               `json:"provider"`
	Capability model.Capability     `json:"capability"`
	Kind       routing.ProviderKind `json:"kind,omitempty"`
	rank       int
}

// KindOf reports the routing kind of a registry provider.
type KindOf interface {
	Kind(provider string) routing.ProviderKind
}

// Router selects and orders provider steps.
type Router struct {
	reg   *provider.Registry
	kinds KindOf
	cfg   Config
}

// NewRouter creates a Router.
func NewRouter(reg *provider.Registry, kinds KindOf, cfg Config) *Router {
	if cfg.Boosts == (Boosts{}) {
		cfg.Boosts = DefaultBoosts()
	}
	if len(cfg.OwnerTitles) == 0 {
		cfg.OwnerTitles = DefaultOwnerTitles
	}
	return &Router{reg: reg, kinds: kinds, cfg: cfg}
}

// Step ranks. Lower runs first: free checks, then registries and
// directories, then paid contact discovery, then paid enrichment.
const (
	rankWebsite     = 0
	rankGovernment  = 10
	rankAssociation = 20
	rankLicense     = 30
	rankFindEmail   = 40
	rankPerson      = 50
	rankVerify      = 60
	rankCompany     = 70
)

// ValidationSteps returns the website check plus the government and
// nonprofit registries of the plan.
func (r *Router) ValidationSteps(plan model.ValidationPlan) []Step {
	var steps []Step
	if r.cfg.SiteChecker != "" {
		steps = r.add(steps, Step{Provider: r.cfg.SiteChecker, Capability: model.CapabilityCheckWebsite, rank: rankWebsite})
	}
	for _, name := range plan.Providers {
		switch kind := r.kinds.Kind(name); kind {
		case routing.KindGovernment, routing.KindNonprofit:
			steps = r.add(steps, Step{Provider: name, Capability: model.CapabilityCheckRegistry, Kind: kind, rank: rankGovernment})
		}
	}
	return order(steps)
}

// Select returns the enhancement steps: the plan's association and license
// checks, then contact discovery and paid enrichment.
func (r *Router) Select(plan model.ValidationPlan) []Step {
	var steps []Step
	for _, name := range plan.Providers {
		switch kind := r.kinds.Kind(name); kind {
		case routing.KindAssociation:
			steps = r.add(steps, Step{Provider: name, Capability: model.CapabilityCheckRegistry, Kind: kind, rank: rankAssociation})
		case routing.KindLicense:
			steps = r.add(steps, Step{Provider: name, Capability: model.CapabilityCheckRegistry, Kind: kind, rank: rankLicense})
		}
	}
	for i, name := range r.cfg.EmailFinders {
		steps = r.add(steps, Step{Provider: name, Capability: model.CapabilityFindEmail, rank: rankFindEmail + i})
	}
	if r.cfg.PersonEnricher != "" {
		steps = r.add(steps, Step{Provider: r.cfg.PersonEnricher, Capability: model.CapabilityEnrichPerson, rank: rankPerson})
	}
	if r.cfg.EmailVerifier != "" {
		steps = r.add(steps, Step{Provider: r.cfg.EmailVerifier, Capability: model.CapabilityVerifyEmail, rank: rankVerify})
	}
	if r.cfg.CompanyEnricher != "" {
		steps = r.add(steps, Step{Provider: r.cfg.CompanyEnricher, Capability: model.CapabilityEnrichCompany, rank: rankCompany})
	}
	return order(steps)
}

// add appends s when a registered adapter serves its capability.
func (r *Router) add(steps []Step, s Step) []Step {
	for _, c := range r.reg.Capabilities(s.Provider) {
		if c == s.Capability {
			return append(steps, s)
		}
	}
	zap.L().Debug("enhance: no adapter for step",
		zap.String("provider", s.Provider),
		zap.String("capability", string(s.Capability)),
	)
	return steps
}

func order(steps []Step) []Step {
	sort.SliceStable(steps, func(i, j int) bool { return steps[i].rank < steps[j].rank })
	return steps
}
