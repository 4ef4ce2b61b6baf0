package monitoring

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/prospect-cli/internal/model"
	"github.com/sells-group/prospect-cli/internal/store"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

// mockLister implements CampaignLister for testing.
type mockLister struct {
	campaigns []model.CampaignSummary
	err       error
	filters   []store.CampaignFilter
}

func (m *mockLister) ListCampaigns(_ context.Context, filter store.CampaignFilter) ([]model.CampaignSummary, error) {
	m.filters = append(m.filters, filter)
	if m.err != nil {
		return nil, m.err
	}
	return m.campaigns, nil
}

var errStoreDown = errors.New("store down")

func summary(id string, status model.CampaignStatus, started time.Time, leads int, cost float64) model.CampaignSummary {
	return model.CampaignSummary{
		ID:           id,
		Status:       status,
		Success:      leads > 0,
		LeadCount:    leads,
		TotalCostUSD: cost,
		Counts:       model.CampaignCounts{ProviderCalls: 10, CacheHits: 2, BudgetSkips: 1},
		StartedAt:    started,
	}
}
