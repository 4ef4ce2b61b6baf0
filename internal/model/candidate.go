package model

import (
	"net/url"
	"strings"
)

// BusinessCandidate is a raw discovery result produced by a search provider.
type BusinessCandidate struct {
	Name       string   `json:"name"`
	Address    string   `json:"address"`
	Phone      string   `json:"phone"`
	Website    string   `json:"website"`
	Email      string   `json:"email,omitempty"`
	Rating     *float64 `json:"rating,omitempty"`
	ExternalID string   `json:"external_id"`
	Source     string   `json:"source,omitempty"`
}

// Dimension names a scored field of a candidate.
type Dimension string

const (
	DimensionName    Dimension = "name"
	DimensionAddress Dimension = "address"
	DimensionPhone   Dimension = "phone"
	DimensionWebsite Dimension = "website"
	DimensionEmail   Dimension = "email"
)

// Dimensions lists every scored dimension in evaluation order.
var Dimensions = []Dimension{
	DimensionName,
	DimensionAddress,
	DimensionPhone,
	DimensionWebsite,
	DimensionEmail,
}

// RuleHit records a fake-data rule that matched a dimension.
type RuleHit struct {
	Rule      string    `json:"rule"`
	Dimension Dimension `json:"dimension"`
}

// ScoreBreakdown holds the per-dimension subscores of a candidate.
type ScoreBreakdown struct {
	Name    int       `json:"name"`
	Address int       `json:"address"`
	Phone   int       `json:"phone"`
	Website int       `json:"website"`
	Email   int       `json:"email"`
	Hits    []RuleHit `json:"hits,omitempty"`
}

// Get returns the subscore for a dimension.
func (b ScoreBreakdown) Get(d Dimension) int {
	switch d {
	case DimensionName:
		return b.Name
	case DimensionAddress:
		return b.Address
	case DimensionPhone:
		return b.Phone
	case DimensionWebsite:
		return b.Website
	case DimensionEmail:
		return b.Email
	default:
		return 0
	}
}

// Total sums every dimension.
func (b ScoreBreakdown) Total() int {
	return b.Name + b.Address + b.Phone + b.Website + b.Email
}

// ScoredCandidate is a candidate with its pre-validation score attached.
type ScoredCandidate struct {
	BusinessCandidate
	PreValidationScore  int            `json:"pre_validation_score"`
	Breakdown           ScoreBreakdown `json:"score_breakdown"`
	PassesPreValidation bool           `json:"passes_pre_validation"`
}

// Domain returns the lower-cased host of the candidate's website without a
// leading "www.", or "" when there is no usable website.
func (c BusinessCandidate) Domain() string {
	w := strings.TrimSpace(c.Website)
	if w == "" {
		return ""
	}
	if !strings.Contains(w, "://") {
		w = "http://" + w
	}
	u, err := url.Parse(w)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}
