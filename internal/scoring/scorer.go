// Package scoring computes the free pre-validation confidence score of a
// candidate. Scoring is pure: no I/O and no error path.
package scoring

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/sync/errgroup"

	"github.com/sells-group/prospect-cli/internal/model"
)

// DefaultThreshold is the pre-validation gate when none is configured.
const DefaultThreshold = 50

// Weights caps each dimension. Phone and website are rebalanced down when
// the candidate also carries an email.
type Weights struct {
	Name             int `yaml:"name" mapstructure:"name"`
	Address          int `yaml:"address" mapstructure:"address"`
	Phone            int `yaml:"phone" mapstructure:"phone"`
	PhoneWithEmail   int `yaml:"phone_with_email" mapstructure:"phone_with_email"`
	Website          int `yaml:"website" mapstructure:"website"`
	WebsiteWithEmail int `yaml:"website_with_email" mapstructure:"website_with_email"`
	Email            int `yaml:"email" mapstructure:"email"`
}

// DefaultWeights returns the standard dimension caps.
func DefaultWeights() Weights {
	return Weights{
		Name:             25,
		Address:          25,
		Phone:            25,
		PhoneWithEmail:   20,
		Website:          20,
		WebsiteWithEmail: 15,
		Email:            20,
	}
}

// Context is the campaign information the name dimension looks for.
type Context struct {
	BusinessType string
	Location     string
}

// Config configures a Scorer.
type Config struct {
	Threshold int
	Weights   Weights
	// Rules replaces the default rule table when non-nil.
	Rules []Rule
}

// Scorer scores candidates for one campaign.
type Scorer struct {
	threshold     int
	weights       Weights
	rules         []Rule
	industryTerms []string
	locationTerms []string
}

// NewScorer creates a Scorer for the campaign context.
func NewScorer(cfg Config, c Context) *Scorer {
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultThreshold
	}
	if cfg.Weights == (Weights{}) {
		cfg.Weights = DefaultWeights()
	}
	if cfg.Rules == nil {
		cfg.Rules = DefaultRules()
	}
	return &Scorer{
		threshold:     cfg.Threshold,
		weights:       cfg.Weights,
		rules:         cfg.Rules,
		industryTerms: append(keywords(c.BusinessType), genericIndustryTerms...),
		locationTerms: keywords(c.Location),
	}
}

// Threshold returns the pre-validation gate.
func (s *Scorer) Threshold() int { return s.threshold }

// Score maps a candidate to its pre-validation score and verdict.
func (s *Scorer) Score(c model.BusinessCandidate) model.ScoredCandidate {
	var b model.ScoreBreakdown
	hasEmail := strings.TrimSpace(c.Email) != ""

	phoneMax, websiteMax := s.weights.Phone, s.weights.Website
	if hasEmail {
		phoneMax, websiteMax = s.weights.PhoneWithEmail, s.weights.WebsiteWithEmail
	}

	var hits []model.RuleHit
	b.Name, hits = s.scoreDim(model.DimensionName, c.Name, s.nameScore(c.Name), hits)
	b.Address, hits = s.scoreDim(model.DimensionAddress, c.Address, addressScore(c.Address, s.weights.Address), hits)
	b.Phone, hits = s.scoreDim(model.DimensionPhone, c.Phone, phoneScore(c.Phone, phoneMax), hits)
	b.Website, hits = s.scoreDim(model.DimensionWebsite, c.Website, websiteScore(c.Website, websiteMax), hits)
	b.Email, hits = s.scoreDim(model.DimensionEmail, c.Email, emailScore(c.Email, s.weights.Email), hits)
	b.Hits = hits

	total := b.Total()
	if total > 100 {
		total = 100
	}
	return model.ScoredCandidate{
		BusinessCandidate:   c,
		PreValidationScore:  total,
		Breakdown:           b,
		PassesPreValidation: total > 0 && total >= s.threshold,
	}
}

// ScoreAll scores candidates in parallel, preserving input order.
func (s *Scorer) ScoreAll(candidates []model.BusinessCandidate) []model.ScoredCandidate {
	out := make([]model.ScoredCandidate, len(candidates))
	var g errgroup.Group
	g.SetLimit(16)
	for i := range candidates {
		g.Go(func() error {
			out[i] = s.Score(candidates[i])
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (s *Scorer) scoreDim(dim model.Dimension, value string, base int, hits []model.RuleHit) (int, []model.RuleHit) {
	if base <= 0 {
		return 0, hits
	}
	score, h := Apply(s.rules, dim, strings.TrimSpace(value), base)
	return score, append(hits, h...)
}

var genericIndustryTerms = []string{
	"services", "service", "plumbing", "electric", "roofing", "dental", "clinic",
	"law", "legal", "accounting", "cpa", "construction", "contracting", "landscaping",
	"cleaning", "restaurant", "bakery", "salon", "spa", "fitness", "wellness",
	"medical", "insurance", "realty", "auto", "repair", "hvac", "consulting",
}

var wordRe = regexp.MustCompile(`[a-z0-9]+`)

// keywords splits s into lower-case words of at least three letters with a
// trailing plural "s" dropped.
func keywords(s string) []string {
	var out []string
	for _, w := range wordRe.FindAllString(strings.ToLower(s), -1) {
		if len(w) < 3 {
			continue
		}
		if len(w) > 4 && strings.HasSuffix(w, "s") {
			w = strings.TrimSuffix(w, "s")
		}
		out = append(out, w)
	}
	return out
}

func (s *Scorer) nameScore(name string) int {
	n := strings.TrimSpace(name)
	if len([]rune(n)) < 3 {
		return 0
	}
	lower := strings.ToLower(n)
	words := strings.Fields(lower)

	// Computed on a 25-point scale, then fitted to the weight.
	score := 13
	if containsAny(lower, s.industryTerms) {
		score += 5
	}
	if containsAny(lower, s.locationTerms) {
		score += 3
	}
	if len(words) >= 2 && len(words) <= 8 && len(n) <= 60 {
		score += 4
	}
	return score * s.weights.Name / 25
}

func containsAny(s string, terms []string) bool {
	for _, t := range terms {
		if t != "" && strings.Contains(s, t) {
			return true
		}
	}
	return false
}

var (
	streetNumberRe = regexp.MustCompile(`^\d+[A-Za-z]?\s`)
	streetTypeRe   = regexp.MustCompile(`(?i)\b(st|street|ave|avenue|rd|road|blvd|boulevard|dr|drive|ln|lane|way|ct|court|pl|place|pkwy|parkway|hwy|highway|cir|circle|ter|terrace|trl|trail|sq|square)\b\.?`)
	stateTokenRe   = regexp.MustCompile(`\b([A-Z]{2})\b`)
	zipRe          = regexp.MustCompile(`\b\d{5}(?:-\d{4})?\b`)
)

func addressScore(addr string, weight int) int {
	a := strings.TrimSpace(addr)
	if len(a) < 8 {
		return 0
	}
	fifth := weight / 5
	score := 0
	if streetNumberRe.MatchString(a) {
		score += fifth
	}
	if streetTypeRe.MatchString(a) {
		score += fifth
	}
	if parts := strings.Split(a, ","); len(parts) >= 2 && strings.ContainsFunc(parts[1], unicode.IsLetter) {
		score += fifth
	}
	for _, m := range stateTokenRe.FindAllStringSubmatch(a, -1) {
		if IsStateCode(m[1]) {
			score += fifth
			break
		}
	}
	if zipRe.MatchString(a) {
		score += fifth
	}
	return score
}

// NormalizePhone strips every non-digit and a leading US country code.
func NormalizePhone(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	d := b.String()
	if len(d) == 11 && d[0] == '1' {
		d = d[1:]
	}
	return d
}

func phoneScore(phone string, weight int) int {
	if len(NormalizePhone(phone)) != 10 {
		return 0
	}
	return weight
}

func websiteScore(website string, weight int) int {
	if websiteHost(website) == "" {
		return 0
	}
	return weight
}

var (
	emailSyntaxRe = regexp.MustCompile(`^[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}$`)

	genericMailboxes = map[string]bool{
		"info": true, "contact": true, "admin": true, "sales": true, "hello": true,
		"office": true, "support": true, "mail": true, "help": true, "service": true,
		"inquiries": true, "team": true, "billing": true, "webmaster": true,
	}
	freemailDomains = map[string]bool{
		"gmail.com": true, "yahoo.com": true, "hotmail.com": true, "outlook.com": true,
		"aol.com": true, "icloud.com": true, "live.com": true, "msn.com": true,
		"comcast.net": true, "att.net": true, "protonmail.com": true, "ymail.com": true,
	}
)

// ValidEmailSyntax reports whether email passes the basic syntax check.
func ValidEmailSyntax(email string) bool {
	return emailSyntaxRe.MatchString(strings.ToLower(strings.TrimSpace(email)))
}

// GenericMailbox reports whether the local part is a shared role mailbox.
func GenericMailbox(email string) bool {
	local, _, _ := strings.Cut(strings.ToLower(strings.TrimSpace(email)), "@")
	return genericMailboxes[local]
}

func emailScore(email string, weight int) int {
	e := strings.ToLower(strings.TrimSpace(email))
	if e == "" || !emailSyntaxRe.MatchString(e) {
		return 0
	}
	_, domain, _ := strings.Cut(e, "@")
	score := weight / 2
	if !GenericMailbox(e) {
		score += weight / 4
	}
	if !freemailDomains[domain] {
		score += weight / 4
	}
	return score
}
