package store

import (
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/prospect-cli/internal/model"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

var testStart = time.Date(2026, 10, 1, 14, 30, 0, 123456789, time.UTC)

func testSummary(id string, status model.CampaignStatus, started time.Time) model.CampaignSummary {
	req := model.CampaignRequest{
		BusinessType:   "dentist",
		Location:       "Austin, TX",
		TargetCount:    3,
		BudgetLimitUSD: 1,
	}
	return model.CampaignSummary{
		ID:           id,
		BusinessType: req.BusinessType,
		Location:     req.Location,
		Status:       status,
		Success:      status == model.StatusTargetMet,
		LeadCount:    2,
		TotalCostUSD: 0.12,
		Counts:       model.CampaignCounts{Searched: 20, Accepted: 2, ProviderCalls: 7},
		Request:      req,
		StartedAt:    started,
		FinishedAt:   started.Add(90 * time.Second),
	}
}

func testLeads() []*model.QualifiedLead {
	a := model.NewQualifiedLead(model.ScoredCandidate{
		BusinessCandidate: model.BusinessCandidate{
			Name:       "Lakeline Family Dental",
			Address:    "1200 Lakeline Blvd, Austin, TX 78717",
			Phone:      "(512) 555-0190",
			Website:    "https://lakelinedental.com",
			ExternalID: "place-1",
		},
		PreValidationScore: 70,
		Breakdown:          model.ScoreBreakdown{Name: 25, Address: 25, Phone: 20},
	})
	a.AddEnrichment(model.EnrichmentResult{
		Provider: "hunter", Capability: model.CapabilityFindEmail, Status: model.EnrichmentOK,
		Success: true, Found: true, ConfidenceBoost: 10, CostUSD: 0.05,
	})
	a.Owner = &model.Contact{Name: "Priya Shah", Title: "Owner", Email: "priya@lakelinedental.com", EmailVerified: true}
	a.OwnerQualified = true

	b := model.NewQualifiedLead(model.ScoredCandidate{
		BusinessCandidate: model.BusinessCandidate{
			Name:  "Barton Creek Smiles",
			Phone: "512-555-0111",
		},
		PreValidationScore: 55,
	})
	return []*model.QualifiedLead{a, b}
}
