// Package provider defines the capability-typed adapter interfaces wrapped
// around external services, and the Gateway every call goes through.
package provider

import (
	"context"
	"sort"
	"sync"

	"github.com/sells-group/prospect-cli/internal/model"
)

// Provider is implemented by every adapter.
type Provider interface {
	// Name returns the provider identifier used for pricing, breakers and routing.
	Name() string
}

// SearchQuery is one generated discovery query.
type SearchQuery struct {
	Query    string
	Location string
	Limit    int
}

// Searcher discovers raw candidates. Zero results is not an error.
type Searcher interface {
	Provider
	Search(ctx context.Context, q SearchQuery) ([]model.BusinessCandidate, error)
}

// EntityQuery identifies a business to a registry.
type EntityQuery struct {
	Name    string
	Address string
	City    string
	State   string
	Website string
}

// EntityCheck is a registry verdict.
type EntityCheck struct {
	Found      bool   `json:"found"`
	Status     string `json:"status,omitempty"`
	Confidence int    `json:"confidence"`
	EntityID   string `json:"entity_id,omitempty"`
	Detail     string `json:"detail,omitempty"`
}

// RegistryChecker looks a business up in a government registry, license
// board or association directory.
type RegistryChecker interface {
	Provider
	CheckEntity(ctx context.Context, q EntityQuery) (*EntityCheck, error)
}

// SiteCheck is the result of fetching a business homepage.
type SiteCheck struct {
	Accessible bool     `json:"accessible"`
	StatusCode int      `json:"status_code"`
	FinalURL   string   `json:"final_url,omitempty"`
	Emails     []string `json:"emails,omitempty"`
}

// SiteChecker verifies a website is reachable.
type SiteChecker interface {
	Provider
	CheckSite(ctx context.Context, website string) (*SiteCheck, error)
}

// PersonHint narrows an email search to one person.
type PersonHint struct {
	FirstName string
	LastName  string
	Title     string
}

// EmailFinding is an email discovered for a domain.
type EmailFinding struct {
	Email      string `json:"email"`
	Confidence int    `json:"confidence"`
	FirstName  string `json:"first_name,omitempty"`
	LastName   string `json:"last_name,omitempty"`
	Position   string `json:"position,omitempty"`
}

// FullName joins the first and last name.
func (f EmailFinding) FullName() string {
	switch {
	case f.FirstName == "":
		return f.LastName
	case f.LastName == "":
		return f.FirstName
	default:
		return f.FirstName + " " + f.LastName
	}
}

// EmailFinder discovers contact emails for a domain.
type EmailFinder interface {
	Provider
	FindEmail(ctx context.Context, domain string, person *PersonHint) (*EmailFinding, error)
}

// EmailVerification reports whether an address accepts mail.
type EmailVerification struct {
	Email       string `json:"email"`
	Deliverable bool   `json:"deliverable"`
	Status      string `json:"status,omitempty"`
	Confidence  int    `json:"confidence"`
}

// EmailVerifier checks deliverability of an address.
type EmailVerifier interface {
	Provider
	VerifyEmail(ctx context.Context, email string) (*EmailVerification, error)
}

// CompanyEnrichment is firmographic data for an organization.
type CompanyEnrichment struct {
	Found      bool                 `json:"found"`
	Profile    model.CompanyProfile `json:"profile"`
	Confidence int                  `json:"confidence"`
}

// CompanyEnricher returns firmographics for a domain or name.
type CompanyEnricher interface {
	Provider
	EnrichCompany(ctx context.Context, domain, name string) (*CompanyEnrichment, error)
}

// PersonQuery identifies the person to enrich, usually the owner.
type PersonQuery struct {
	Domain  string
	Company string
	Name    string
	Email   string
	Titles  []string
}

// PersonEnrichment is the best-matching person.
type PersonEnrichment struct {
	Found      bool          `json:"found"`
	Contact    model.Contact `json:"contact"`
	Confidence int           `json:"confidence"`
}

// PersonEnricher finds a person and their contact details.
type PersonEnricher interface {
	Provider
	EnrichPerson(ctx context.Context, q PersonQuery) (*PersonEnrichment, error)
}

// Registry holds every configured adapter keyed by name. An adapter may
// serve several capabilities.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]Provider),
	}
}

// Register adds a provider to the registry, replacing any with the same name.
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.Name()] = p
}

// Get returns a provider by name, or nil if not found.
func (r *Registry) Get(name string) Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.providers[name]
}

// List returns all registered provider names in sorted order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Capabilities returns the capabilities the named provider implements.
func (r *Registry) Capabilities(name string) []model.Capability {
	p := r.Get(name)
	if p == nil {
		return nil
	}
	var caps []model.Capability
	if _, ok := p.(Searcher); ok {
		caps = append(caps, model.CapabilitySearch)
	}
	if _, ok := p.(SiteChecker); ok {
		caps = append(caps, model.CapabilityCheckWebsite)
	}
	if _, ok := p.(RegistryChecker); ok {
		caps = append(caps, model.CapabilityCheckRegistry)
	}
	if _, ok := p.(EmailFinder); ok {
		caps = append(caps, model.CapabilityFindEmail)
	}
	if _, ok := p.(EmailVerifier); ok {
		caps = append(caps, model.CapabilityVerifyEmail)
	}
	if _, ok := p.(CompanyEnricher); ok {
		caps = append(caps, model.CapabilityEnrichCompany)
	}
	if _, ok := p.(PersonEnricher); ok {
		caps = append(caps, model.CapabilityEnrichPerson)
	}
	return caps
}

// Searcher returns the named search provider.
func (r *Registry) Searcher(name string) (Searcher, bool) {
	s, ok := r.Get(name).(Searcher)
	return s, ok
}

// RegistryChecker returns the named registry provider.
func (r *Registry) RegistryChecker(name string) (RegistryChecker, bool) {
	c, ok := r.Get(name).(RegistryChecker)
	return c, ok
}

// SiteChecker returns the named website checker.
func (r *Registry) SiteChecker(name string) (SiteChecker, bool) {
	c, ok := r.Get(name).(SiteChecker)
	return c, ok
}

// EmailFinder returns the named email finder.
func (r *Registry) EmailFinder(name string) (EmailFinder, bool) {
	f, ok := r.Get(name).(EmailFinder)
	return f, ok
}

// EmailVerifier returns the named email verifier.
func (r *Registry) EmailVerifier(name string) (EmailVerifier, bool) {
	v, ok := r.Get(name).(EmailVerifier)
	return v, ok
}

// CompanyEnricher returns the named organization enricher.
func (r *Registry) CompanyEnricher(name string) (CompanyEnricher, bool) {
	e, ok := r.Get(name).(CompanyEnricher)
	return e, ok
}

// PersonEnricher returns the named person enricher.
func (r *Registry) PersonEnricher(name string) (PersonEnricher, bool) {
	e, ok := r.Get(name).(PersonEnricher)
	return e, ok
}
