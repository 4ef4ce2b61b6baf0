package enhance

import (
	"context"
	"encoding/json"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/prospect-cli/internal/cache"
	"github.com/sells-group/prospect-cli/internal/model"
	"github.com/sells-group/prospect-cli/internal/provider"
	"github.com/sells-group/prospect-cli/internal/routing"
	"github.com/sells-group/prospect-cli/internal/scoring"
)

// inactiveStatuses are registry statuses that disqualify a business.
var inactiveStatuses = []string{"dissolved", "inactive", "revoked", "suspended", "forfeited", "cancelled", "canceled"}

// Pass executes steps for one candidate. Once a paid call is skipped for
// budget, every later paid step of the candidate is skipped too.
type Pass struct {
	r       *Router
	s       *provider.Session
	lead    *model.QualifiedLead
	query   provider.EntityQuery
	log     *zap.Logger
	stopped bool
	dq      string
}

// NewPass starts a pass over lead. The registry query takes its state from
// the candidate's classification.
func (r *Router) NewPass(s *provider.Session, lead *model.QualifiedLead, cl routing.Classification) *Pass {
	q := provider.EntityQuery{
		Name:    lead.Name,
		Address: lead.Address,
		Website: lead.Website,
	}
	if len(cl.Geography) > 0 {
		q.State = cl.Geography[0]
	}
	if parts := strings.Split(lead.Address, ","); len(parts) >= 3 {
		q.City = strings.TrimSpace(parts[len(parts)-2])
	}
	return &Pass{
		r:     r,
		s:     s,
		lead:  lead,
		query: q,
		log:   zap.L().With(zap.String("candidate", lead.Name)),
	}
}

// Disqualified returns the reason a registry disqualified the candidate.
func (p *Pass) Disqualified() (string, bool) { return p.dq, p.dq != "" }

// Run executes steps in order and returns every recorded result. Steps
// whose preconditions are already satisfied record nothing. A registry
// disqualification or a cancelled ctx stops the pass.
func (p *Pass) Run(ctx context.Context, steps []Step) []model.EnrichmentResult {
	var out []model.EnrichmentResult
	for _, st := range steps {
		if ctx.Err() != nil || p.dq != "" {
			break
		}
		for _, res := range p.step(ctx, st) {
			p.lead.AddEnrichment(res)
			out = append(out, res)
		}
	}
	return out
}

func (p *Pass) step(ctx context.Context, st Step) []model.EnrichmentResult {
	switch st.Capability {
	case model.CapabilityCheckWebsite:
		return p.checkWebsite(ctx, st)
	case model.CapabilityCheckRegistry:
		return p.checkRegistry(ctx, st)
	case model.CapabilityFindEmail:
		return p.findEmail(ctx, st)
	case model.CapabilityEnrichPerson:
		return p.enrichPerson(ctx, st)
	case model.CapabilityVerifyEmail:
		return p.verifyEmails(ctx, st)
	case model.CapabilityEnrichCompany:
		return p.enrichCompany(ctx, st)
	}
	return nil
}

// gate reports whether the call may be attempted. A paid call after a
// budget skip is recorded as skipped without touching the ledger.
func (p *Pass) gate(c provider.Call) (model.EnrichmentResult, bool) {
	if p.stopped && p.s.Estimate(c.Provider, c.Capability) > 0 {
		return provider.Outcome{Status: model.EnrichmentSkippedBudget}.Result(c, false, 0), false
	}
	return model.EnrichmentResult{}, true
}

func (p *Pass) observe(out provider.Outcome) {
	if out.Status == model.EnrichmentSkippedBudget {
		p.stopped = true
	}
}

func withRaw(r model.EnrichmentResult, v any) model.EnrichmentResult {
	if r.Status != model.EnrichmentOK && r.Status != model.EnrichmentNotFound {
		return r
	}
	if raw, err := json.Marshal(v); err == nil {
		r.Raw = raw
	}
	return r
}

func (p *Pass) checkWebsite(ctx context.Context, st Step) []model.EnrichmentResult {
	domain := p.lead.Domain()
	if domain == "" {
		return nil
	}
	checker, ok := p.r.reg.SiteChecker(st.Provider)
	if !ok {
		return nil
	}
	c := provider.Call{Provider: st.Provider, Capability: st.Capability, CacheKey: cache.Key(st.Provider, domain)}
	if r, ok := p.gate(c); !ok {
		return []model.EnrichmentResult{r}
	}

	site, out := provider.Do(ctx, p.s, c, func(ctx context.Context) (*provider.SiteCheck, error) {
		return checker.CheckSite(ctx, p.lead.Website)
	})
	p.observe(out)
	found := site != nil && site.Accessible
	if found {
		p.lead.WebsiteAccessible = true
		p.adoptCompanyEmail(site.Emails)
	}
	return []model.EnrichmentResult{withRaw(out.Result(c, found, p.r.cfg.Boosts.WebsiteAccessible), site)}
}

func (p *Pass) checkRegistry(ctx context.Context, st Step) []model.EnrichmentResult {
	checker, ok := p.r.reg.RegistryChecker(st.Provider)
	if !ok {
		return nil
	}
	c := provider.Call{
		Provider:   st.Provider,
		Capability: st.Capability,
		CacheKey:   cache.Key(st.Provider, p.query.Name, p.query.State, p.query.City),
	}
	if r, ok := p.gate(c); !ok {
		return []model.EnrichmentResult{r}
	}

	check, out := provider.Do(ctx, p.s, c, func(ctx context.Context) (*provider.EntityCheck, error) {
		return checker.CheckEntity(ctx, p.query)
	})
	p.observe(out)

	found := check != nil && check.Found
	boost := 0
	if found {
		boost = p.kindBoost(st.Kind)
		status := strings.ToLower(check.Status)
		for _, s := range inactiveStatuses {
			if strings.Contains(status, s) {
				p.dq = st.Provider + ": " + status
				boost = 0
				p.log.Debug("registry disqualified candidate", zap.String("provider", st.Provider), zap.String("status", status))
				break
			}
		}
	}
	return []model.EnrichmentResult{withRaw(out.Result(c, found, boost), check)}
}

func (p *Pass) kindBoost(k routing.ProviderKind) int {
	b := p.r.cfg.Boosts
	switch k {
	case routing.KindNonprofit:
		return b.Nonprofit
	case routing.KindLicense:
		return b.License
	case routing.KindAssociation:
		return b.Association
	default:
		return b.Government
	}
}

func (p *Pass) findEmail(ctx context.Context, st Step) []model.EnrichmentResult {
	if p.ownerEmailKnown() {
		return nil
	}
	domain := p.lead.Domain()
	if domain == "" {
		return nil
	}
	finder, ok := p.r.reg.EmailFinder(st.Provider)
	if !ok {
		return nil
	}

	var hint *provider.PersonHint
	if p.lead.Owner != nil && p.lead.Owner.Name != "" {
		first, last, _ := strings.Cut(p.lead.Owner.Name, " ")
		hint = &provider.PersonHint{FirstName: first, LastName: last, Title: p.lead.Owner.Title}
	}
	hintKey := ""
	if hint != nil {
		hintKey = hint.FirstName + " " + hint.LastName
	}
	c := provider.Call{Provider: st.Provider, Capability: st.Capability, CacheKey: cache.Key(st.Provider, domain, hintKey)}
	if r, ok := p.gate(c); !ok {
		return []model.EnrichmentResult{r}
	}

	f, out := provider.Do(ctx, p.s, c, func(ctx context.Context) (*provider.EmailFinding, error) {
		return finder.FindEmail(ctx, domain, hint)
	})
	p.observe(out)

	found := f != nil && scoring.ValidEmailSyntax(f.Email)
	if found {
		email := strings.ToLower(strings.TrimSpace(f.Email))
		switch {
		case hint != nil || p.isOwnerTitle(f.Position):
			p.setOwner(model.Contact{Name: f.FullName(), Title: f.Position, Email: email, Confidence: f.Confidence})
		case p.lead.CompanyEmail == "":
			p.lead.CompanyEmail = email
		}
		p.lead.HasEmail = true
	}
	return []model.EnrichmentResult{withRaw(out.Result(c, found, p.r.cfg.Boosts.EmailFound), f)}
}

func (p *Pass) enrichPerson(ctx context.Context, st Step) []model.EnrichmentResult {
	if o := p.lead.Owner; o != nil && o.Name != "" && o.Email != "" {
		return nil
	}
	enricher, ok := p.r.reg.PersonEnricher(st.Provider)
	if !ok {
		return nil
	}
	domain := p.lead.Domain()
	q := provider.PersonQuery{Domain: domain, Company: p.lead.Name, Titles: p.r.cfg.OwnerTitles}
	if p.lead.Owner != nil {
		q.Name = p.lead.Owner.Name
		q.Email = p.lead.Owner.Email
	}
	c := provider.Call{Provider: st.Provider, Capability: st.Capability, CacheKey: cache.Key(st.Provider, domain, p.lead.Name, q.Name)}
	if r, ok := p.gate(c); !ok {
		return []model.EnrichmentResult{r}
	}

	pe, out := provider.Do(ctx, p.s, c, func(ctx context.Context) (*provider.PersonEnrichment, error) {
		return enricher.EnrichPerson(ctx, q)
	})
	p.observe(out)

	found := pe != nil && pe.Found && pe.Contact.Name != ""
	if found {
		contact := pe.Contact
		contact.Email = strings.ToLower(strings.TrimSpace(contact.Email))
		if contact.Confidence == 0 {
			contact.Confidence = pe.Confidence
		}
		p.setOwner(contact)
		if contact.Email != "" {
			p.lead.HasEmail = true
		}
	}
	return []model.EnrichmentResult{withRaw(out.Result(c, found, p.r.cfg.Boosts.OwnerFound), pe)}
}

func (p *Pass) verifyEmails(ctx context.Context, st Step) []model.EnrichmentResult {
	verifier, ok := p.r.reg.EmailVerifier(st.Provider)
	if !ok {
		return nil
	}

	type target struct {
		email string
		apply func(v *provider.EmailVerification)
	}
	var targets []target
	if o := p.lead.Owner; o != nil && o.Email != "" && !o.EmailVerified {
		targets = append(targets, target{email: o.Email, apply: func(v *provider.EmailVerification) {
			o.EmailVerified = v.Deliverable
			if v.Confidence > o.Confidence {
				o.Confidence = v.Confidence
			}
		}})
	}
	if e := p.lead.CompanyEmail; e != "" && !p.lead.CompanyEmailVerified && (p.lead.Owner == nil || !strings.EqualFold(p.lead.Owner.Email, e)) {
		targets = append(targets, target{email: e, apply: func(v *provider.EmailVerification) {
			p.lead.CompanyEmailVerified = v.Deliverable
		}})
	}

	var results []model.EnrichmentResult
	for _, tg := range targets {
		if ctx.Err() != nil {
			break
		}
		c := provider.Call{Provider: st.Provider, Capability: st.Capability, CacheKey: cache.Key(st.Provider, tg.email)}
		if r, ok := p.gate(c); !ok {
			results = append(results, r)
			continue
		}
		email := tg.email
		v, out := provider.Do(ctx, p.s, c, func(ctx context.Context) (*provider.EmailVerification, error) {
			return verifier.VerifyEmail(ctx, email)
		})
		p.observe(out)

		found := v != nil && v.Deliverable
		if v != nil && out.Status == model.EnrichmentOK {
			tg.apply(v)
		}
		results = append(results, withRaw(out.Result(c, found, p.r.cfg.Boosts.EmailVerified), v))
	}
	return results
}

func (p *Pass) enrichCompany(ctx context.Context, st Step) []model.EnrichmentResult {
	if p.lead.Company != nil {
		return nil
	}
	enricher, ok := p.r.reg.CompanyEnricher(st.Provider)
	if !ok {
		return nil
	}
	domain := p.lead.Domain()
	c := provider.Call{Provider: st.Provider, Capability: st.Capability, CacheKey: cache.Key(st.Provider, domain, p.lead.Name)}
	if r, ok := p.gate(c); !ok {
		return []model.EnrichmentResult{r}
	}

	ce, out := provider.Do(ctx, p.s, c, func(ctx context.Context) (*provider.CompanyEnrichment, error) {
		return enricher.EnrichCompany(ctx, domain, p.lead.Name)
	})
	p.observe(out)

	found := ce != nil && ce.Found
	if found {
		profile := ce.Profile
		p.lead.Company = &profile
	}
	return []model.EnrichmentResult{withRaw(out.Result(c, found, p.r.cfg.Boosts.CompanyEnriched), ce)}
}

func (p *Pass) ownerEmailKnown() bool {
	return p.lead.Owner != nil && p.lead.Owner.Email != ""
}

// setOwner merges contact into the lead's owner, keeping known fields.
func (p *Pass) setOwner(contact model.Contact) {
	if p.lead.Owner == nil {
		p.lead.Owner = &contact
		return
	}
	o := p.lead.Owner
	if o.Name == "" {
		o.Name = contact.Name
	}
	if o.Title == "" {
		o.Title = contact.Title
	}
	if o.Email == "" {
		o.Email = contact.Email
		o.EmailVerified = contact.EmailVerified
	}
	if o.Phone == "" {
		o.Phone = contact.Phone
	}
	if contact.Confidence > o.Confidence {
		o.Confidence = contact.Confidence
	}
}

func (p *Pass) isOwnerTitle(position string) bool {
	pos := strings.ToLower(position)
	if pos == "" {
		return false
	}
	for _, t := range p.r.cfg.OwnerTitles {
		if strings.Contains(pos, t) {
			return true
		}
	}
	return false
}

// adoptCompanyEmail takes the first valid scraped address as the company
// email when none is known yet.
func (p *Pass) adoptCompanyEmail(emails []string) {
	if p.lead.CompanyEmail != "" {
		return
	}
	for _, e := range emails {
		e = strings.ToLower(strings.TrimSpace(e))
		if scoring.ValidEmailSyntax(e) {
			p.lead.CompanyEmail = e
			p.lead.HasEmail = true
			return
		}
	}
}
