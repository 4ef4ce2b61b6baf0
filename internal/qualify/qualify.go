// Package qualify decides whether an enriched lead is qualified: the owner
// rule list and the strict campaign filter.
package qualify

import (
	"fmt"

	"github.com/sells-group/prospect-cli/internal/model"
)

// Evidence is the owner and email evidence gathered for a lead.
type Evidence struct {
	OwnerName            string
	OwnerEmail           string
	OwnerEmailVerified   bool
	OwnerConfidence      int
	CompanyEmail         string
	CompanyEmailVerified bool
}

// EvidenceOf extracts the evidence from a lead.
func EvidenceOf(l *model.QualifiedLead) Evidence {
	e := Evidence{
		CompanyEmail:         l.CompanyEmail,
		CompanyEmailVerified: l.CompanyEmailVerified,
	}
	if o := l.Owner; o != nil {
		e.OwnerName = o.Name
		e.OwnerEmail = o.Email
		e.OwnerEmailVerified = o.EmailVerified
		e.OwnerConfidence = o.Confidence
	}
	return e
}

// Rule is one way a lead can qualify on owner evidence.
type Rule struct {
	Name  string
	Match func(Evidence) bool
}

const (
	RuleOwnerEmailVerified          = "owner_email_verified"
	RuleOwnerNameVerifiedCompany    = "owner_name_and_verified_company_email"
	RuleUnverifiedOwnerEmailMinConf = "unverified_owner_email_confidence"
)

// DefaultFallbackConfidence is the owner email confidence the fallback rule
// accepts without verification.
const DefaultFallbackConfidence = 60

// Config toggles the default rules.
type Config struct {
	// DisableFallback drops the unverified owner email rule.
	DisableFallback bool `mapstructure:"disable_fallback"`
	// FallbackConfidence defaults to DefaultFallbackConfidence.
	FallbackConfidence int `mapstructure:"fallback_confidence"`
}

// DefaultRules returns the owner rules in precedence order.
func DefaultRules(cfg Config) []Rule {
	minConf := cfg.FallbackConfidence
	if minConf <= 0 {
		minConf = DefaultFallbackConfidence
	}
	rules := []Rule{
		{
			Name: RuleOwnerEmailVerified,
			Match: func(e Evidence) bool {
				return e.OwnerEmail != "" && e.OwnerEmailVerified
			},
		},
		{
			Name: RuleOwnerNameVerifiedCompany,
			Match: func(e Evidence) bool {
				return e.OwnerName != "" && e.CompanyEmail != "" && e.CompanyEmailVerified
			},
		},
	}
	if !cfg.DisableFallback {
		rules = append(rules, Rule{
			Name: RuleUnverifiedOwnerEmailMinConf,
			Match: func(e Evidence) bool {
				return e.OwnerEmail != "" && e.OwnerConfidence >= minConf
			},
		})
	}
	return rules
}

// Qualifier evaluates owner rules and the strict filter.
type Qualifier struct {
	rules []Rule
}

// New creates a Qualifier. A nil rule list uses DefaultRules(Config{}).
func New(rules []Rule) *Qualifier {
	if rules == nil {
		rules = DefaultRules(Config{})
	}
	return &Qualifier{rules: rules}
}

// Owner returns the first rule the evidence satisfies.
func (q *Qualifier) Owner(e Evidence) (string, bool) {
	for _, r := range q.rules {
		if r.Match(e) {
			return r.Name, true
		}
	}
	return "", false
}

// Apply records the owner verdict on the lead.
func (q *Qualifier) Apply(l *model.QualifiedLead) {
	l.OwnerRule, l.OwnerQualified = q.Owner(EvidenceOf(l))
}

// Criteria is the strict filter of one campaign.
type Criteria struct {
	Threshold               int
	RequireCompleteContacts bool
	RequireOwnerQualified   bool
}

// CriteriaFor builds the filter for req. A request minimum can raise the
// configured threshold but never lower it.
func CriteriaFor(req model.CampaignRequest, threshold int) Criteria {
	return Criteria{
		Threshold:               max(threshold, req.MinConfidenceScore),
		RequireCompleteContacts: req.RequireCompleteContacts,
		RequireOwnerQualified:   req.RequireOwnerQualified,
	}
}

// Check applies the strict filter. It returns the first failed condition.
// Apply must run first for the owner condition to hold.
func (c Criteria) Check(l *model.QualifiedLead) (string, bool) {
	if l.PreValidationScore <= 0 || l.PreValidationScore < c.Threshold {
		return fmt.Sprintf("score %d below %d", l.PreValidationScore, c.Threshold), false
	}
	if c.RequireCompleteContacts {
		switch {
		case !l.HasPhone:
			return "missing phone", false
		case !l.HasWebsite || !l.WebsiteAccessible:
			return "missing accessible website", false
		case !l.HasEmail || l.BestEmail() == "":
			return "missing email", false
		}
	}
	if c.RequireOwnerQualified && !l.OwnerQualified {
		return "owner not qualified", false
	}
	return "", true
}
