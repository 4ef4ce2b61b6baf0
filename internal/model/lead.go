package model

import "encoding/json"

// Capability is the kind of work a provider adapter performs.
type Capability string

const (
	CapabilitySearch        Capability = "search"
	CapabilityCheckWebsite  Capability = "check-website"
	CapabilityCheckRegistry Capability = "check-registry"
	CapabilityFindEmail     Capability = "find-email"
	CapabilityVerifyEmail   Capability = "verify-email"
	CapabilityEnrichCompany Capability = "enrich-company"
	CapabilityEnrichPerson  Capability = "enrich-person"
)

// EnrichmentStatus is the outcome class of one provider invocation.
type EnrichmentStatus string

const (
	EnrichmentOK            EnrichmentStatus = "ok"
	EnrichmentNotFound      EnrichmentStatus = "not_found"
	EnrichmentFailed        EnrichmentStatus = "failed"
	EnrichmentUnavailable   EnrichmentStatus = "unavailable"
	EnrichmentSkippedBudget EnrichmentStatus = "skipped_budget"
)

// Attempted reports whether the provider was actually invoked (or served
// from cache) rather than skipped or short-circuited.
func (s EnrichmentStatus) Attempted() bool {
	return s == EnrichmentOK || s == EnrichmentNotFound || s == EnrichmentFailed
}

// EnrichmentResult is the output of one provider adapter invocation. CostUSD
// is reported even on failure.
type EnrichmentResult struct {
	Provider        string           `json:"provider"`
	Capability      Capability       `json:"capability"`
	Status          EnrichmentStatus `json:"status"`
	Success         bool             `json:"success"`
	Found           bool             `json:"found"`
	ConfidenceBoost int              `json:"confidence_boost"`
	CostUSD         float64          `json:"cost_usd"`
	Cached          bool             `json:"cached,omitempty"`
	Error           string           `json:"error,omitempty"`
	Raw             json.RawMessage  `json:"raw,omitempty"`
}

// Contact is a person associated with a business.
type Contact struct {
	Name          string `json:"name,omitempty"`
	Title         string `json:"title,omitempty"`
	Email         string `json:"email,omitempty"`
	EmailVerified bool   `json:"email_verified"`
	Confidence    int    `json:"confidence"`
	Phone         string `json:"phone,omitempty"`
}

// CompanyProfile is firmographic data returned by organization enrichment.
type CompanyProfile struct {
	Industry    string `json:"industry,omitempty"`
	Employees   int    `json:"employees,omitempty"`
	FoundedYear int    `json:"founded_year,omitempty"`
	LinkedInURL string `json:"linkedin_url,omitempty"`
}

// QualifiedLead is a scored candidate merged with every enrichment that
// applied to it.
type QualifiedLead struct {
	ScoredCandidate
	Enrichments          []EnrichmentResult `json:"enrichments"`
	FinalConfidenceScore int                `json:"final_confidence_score"`
	TotalCostUSD         float64            `json:"total_cost_usd"`
	HasEmail             bool               `json:"has_email"`
	HasPhone             bool               `json:"has_phone"`
	HasWebsite           bool               `json:"has_website"`
	WebsiteAccessible    bool               `json:"website_accessible"`
	OwnerQualified       bool               `json:"owner_qualified"`
	OwnerRule            string             `json:"owner_rule,omitempty"`
	Owner                *Contact           `json:"owner,omitempty"`
	CompanyEmail         string             `json:"company_email,omitempty"`
	CompanyEmailVerified bool               `json:"company_email_verified"`
	Company              *CompanyProfile    `json:"company,omitempty"`
}

// NewQualifiedLead starts a lead from a scored candidate. A field only
// counts as present when it scored above zero.
func NewQualifiedLead(sc ScoredCandidate) *QualifiedLead {
	l := &QualifiedLead{
		ScoredCandidate:      sc,
		FinalConfidenceScore: clampScore(sc.PreValidationScore),
		HasPhone:             sc.Phone != "" && sc.Breakdown.Phone > 0,
		HasWebsite:           sc.Website != "" && sc.Breakdown.Website > 0,
	}
	if sc.Email != "" && sc.Breakdown.Email > 0 {
		l.HasEmail = true
		l.CompanyEmail = sc.Email
	}
	return l
}

// AddEnrichment accumulates one provider result. Boosts only count for
// successful calls; cost always counts.
func (l *QualifiedLead) AddEnrichment(r EnrichmentResult) {
	l.Enrichments = append(l.Enrichments, r)
	l.TotalCostUSD += r.CostUSD
	if r.Success && r.ConfidenceBoost > 0 {
		l.FinalConfidenceScore = clampScore(l.FinalConfidenceScore + r.ConfidenceBoost)
	}
}

// BestEmail returns the most trustworthy email known for the lead.
func (l *QualifiedLead) BestEmail() string {
	if l.Owner != nil && l.Owner.Email != "" {
		return l.Owner.Email
	}
	return l.CompanyEmail
}

func clampScore(s int) int {
	if s > 100 {
		return 100
	}
	if s < 0 {
		return 0
	}
	return s
}
