package model

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// CampaignStatus is a state of the discovery controller.
type CampaignStatus string

const (
	StatusInitializing    CampaignStatus = "initializing"
	StatusSearching       CampaignStatus = "searching"
	StatusScoring         CampaignStatus = "scoring"
	StatusFiltering       CampaignStatus = "filtering"
	StatusEnriching       CampaignStatus = "enriching"
	StatusAccumulating    CampaignStatus = "accumulating"
	StatusTargetMet       CampaignStatus = "target_met"
	StatusBudgetExhausted CampaignStatus = "budget_exhausted"
	StatusQueryExhausted  CampaignStatus = "query_exhausted"
	StatusErrorAbort      CampaignStatus = "error_abort"
	StatusCancelled       CampaignStatus = "cancelled"
)

// Terminal reports whether the controller stops in this state.
func (s CampaignStatus) Terminal() bool {
	switch s {
	case StatusTargetMet, StatusBudgetExhausted, StatusQueryExhausted, StatusErrorAbort, StatusCancelled:
		return true
	default:
		return false
	}
}

// CampaignRequest is the caller-supplied campaign configuration.
type CampaignRequest struct {
	BusinessType            string  `json:"business_type"`
	Location                string  `json:"location"`
	TargetCount             int     `json:"target_count"`
	BudgetLimitUSD          float64 `json:"budget_limit_usd"`
	MinConfidenceScore      int     `json:"min_confidence_score"`
	RequireCompleteContacts bool    `json:"require_complete_contacts"`
	RequireOwnerQualified   bool    `json:"require_owner_qualified"`
}

// Validate checks a request at the boundary. The discovery core assumes a
// validated request.
func (r CampaignRequest) Validate() error {
	if strings.TrimSpace(r.BusinessType) == "" {
		return eris.New("campaign: business_type is required")
	}
	if strings.TrimSpace(r.Location) == "" {
		return eris.New("campaign: location is required")
	}
	if r.TargetCount <= 0 {
		return eris.New("campaign: target_count must be positive")
	}
	if r.BudgetLimitUSD < 0 {
		return eris.New("campaign: budget_limit_usd must not be negative")
	}
	if r.MinConfidenceScore < 0 || r.MinConfidenceScore > 100 {
		return eris.New("campaign: min_confidence_score must be within 0-100")
	}
	return nil
}

// CampaignCounts tallies candidates through the funnel.
type CampaignCounts struct {
	Searched         int `json:"searched"`
	PassedPreScore   int `json:"passed_pre_score"`
	Enriched         int `json:"enriched"`
	PassedFilter     int `json:"passed_filter"`
	Duplicates       int `json:"duplicates"`
	Accepted         int `json:"accepted"`
	ProviderCalls    int `json:"provider_calls"`
	CacheHits        int `json:"cache_hits"`
	BudgetSkips      int `json:"budget_skips"`
	UnavailableSkips int `json:"unavailable_skips"`
}

// CampaignResult summarizes one finished discovery run.
type CampaignResult struct {
	ID           string           `json:"id"`
	Request      CampaignRequest  `json:"request"`
	Status       CampaignStatus   `json:"status"`
	Success      bool             `json:"success"`
	Leads        []*QualifiedLead `json:"leads"`
	Counts       CampaignCounts   `json:"counts"`
	TotalCostUSD float64          `json:"total_cost_usd"`
	QueriesTried []string         `json:"queries_tried"`
	Attempts     int              `json:"attempts"`
	Warnings     []string         `json:"warnings,omitempty"`
	StartedAt    time.Time        `json:"started_at"`
	FinishedAt   time.Time        `json:"finished_at"`
}

// CampaignSummary is the persisted header of a campaign, without leads.
type CampaignSummary struct {
	ID           string          `json:"id"`
	BusinessType string          `json:"business_type"`
	Location     string          `json:"location"`
	Status       CampaignStatus  `json:"status"`
	Success      bool            `json:"success"`
	LeadCount    int             `json:"lead_count"`
	TotalCostUSD float64         `json:"total_cost_usd"`
	Counts       CampaignCounts  `json:"counts"`
	Request      CampaignRequest `json:"request"`
	StartedAt    time.Time       `json:"started_at"`
	FinishedAt   time.Time       `json:"finished_at"`
}

// Summary returns the persisted header for the result.
func (r *CampaignResult) Summary() CampaignSummary {
	return CampaignSummary{
		ID:           r.ID,
		BusinessType: r.Request.BusinessType,
		Location:     r.Request.Location,
		Status:       r.Status,
		Success:      r.Success,
		LeadCount:    len(r.Leads),
		TotalCostUSD: r.TotalCostUSD,
		Counts:       r.Counts,
		Request:      r.Request,
		StartedAt:    r.StartedAt,
		FinishedAt:   r.FinishedAt,
	}
}
