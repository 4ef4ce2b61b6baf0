// Package store persists finished campaigns, their leads and the provider
// cache. Stores satisfy the campaign sink and the cache backend contracts.
package store

import (
	"context"
	"encoding/json"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/rotisserie/eris"

	"github.com/sells-group/prospect-cli/internal/model"
)

// ErrNotFound is returned when a campaign does not exist.
var ErrNotFound = eris.New("store: not found")

// CampaignFilter specifies criteria for listing campaigns.
type CampaignFilter struct {
	Status       model.CampaignStatus `json:"status,omitempty"`
	BusinessType string               `json:"business_type,omitempty"`
	Location     string               `json:"location,omitempty"`
	Limit        int                  `json:"limit,omitempty"`
	Offset       int                  `json:"offset,omitempty"`
}

// defaultListLimit caps ListCampaigns when the filter sets no limit.
const defaultListLimit = 100

// Store defines the persistence interface for discovery campaigns.
type Store interface {
	// Campaigns
	SaveCampaign(ctx context.Context, summary model.CampaignSummary, leads []*model.QualifiedLead) error
	GetCampaign(ctx context.Context, id string) (*model.CampaignSummary, error)
	ListCampaigns(ctx context.Context, filter CampaignFilter) ([]model.CampaignSummary, error)
	ListLeads(ctx context.Context, campaignID string) ([]*model.QualifiedLead, error)

	// Provider cache
	GetCacheEntry(ctx context.Context, key string) (value []byte, expiresAt time.Time, found bool, err error)
	SetCacheEntry(ctx context.Context, key string, value []byte, expiresAt time.Time) error
	DeleteExpiredCache(ctx context.Context, now time.Time) (int64, error)

	// Lifecycle
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}

var campaignColumns = []string{
	"id", "business_type", "location", "status", "success", "lead_count",
	"total_cost_usd", "counts", "request", "started_at", "finished_at",
}

var leadColumns = []string{
	"campaign_id", "position", "external_id", "name", "phone", "website", "email",
	"final_score", "owner_qualified", "total_cost_usd", "data",
}

// leadRows flattens leads into insert rows in leadColumns order.
func leadRows(campaignID string, leads []*model.QualifiedLead) ([][]any, error) {
	rows := make([][]any, 0, len(leads))
	for i, l := range leads {
		data, err := json.Marshal(l)
		if err != nil {
			return nil, eris.Wrapf(err, "store: marshal lead %q", l.Name)
		}
		rows = append(rows, []any{
			campaignID, i, l.ExternalID, l.Name, l.Phone, l.Website, l.BestEmail(),
			l.FinalConfidenceScore, l.OwnerQualified, l.TotalCostUSD, data,
		})
	}
	return rows, nil
}

// listQuery builds the filtered campaign listing shared by both drivers.
func listQuery(b sq.StatementBuilderType, filter CampaignFilter) sq.SelectBuilder {
	q := b.Select(campaignColumns...).From("campaigns")
	if filter.Status != "" {
		q = q.Where(sq.Eq{"status": string(filter.Status)})
	}
	if filter.BusinessType != "" {
		q = q.Where(sq.Eq{"business_type": filter.BusinessType})
	}
	if filter.Location != "" {
		q = q.Where(sq.Eq{"location": filter.Location})
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	q = q.OrderBy("started_at DESC").Limit(uint64(limit))
	if filter.Offset > 0 {
		q = q.Offset(uint64(filter.Offset))
	}
	return q
}

// scannable is satisfied by *sql.Row, *sql.Rows and pgx rows.
type scannable interface {
	Scan(dest ...any) error
}

// timeColumn scans a driver-specific timestamp representation.
type timeColumn interface {
	dest() any
	value() (time.Time, error)
}

func scanCampaign(row scannable, newTime func() timeColumn) (model.CampaignSummary, error) {
	var (
		c               model.CampaignSummary
		status          string
		counts, request []byte
	)
	started, finished := newTime(), newTime()
	err := row.Scan(
		&c.ID, &c.BusinessType, &c.Location, &status, &c.Success, &c.LeadCount,
		&c.TotalCostUSD, &counts, &request, started.dest(), finished.dest(),
	)
	if err != nil {
		return c, err
	}

	c.Status = model.CampaignStatus(status)
	if err := json.Unmarshal(counts, &c.Counts); err != nil {
		return c, eris.Wrap(err, "store: unmarshal counts")
	}
	if err := json.Unmarshal(request, &c.Request); err != nil {
		return c, eris.Wrap(err, "store: unmarshal request")
	}
	if c.StartedAt, err = started.value(); err != nil {
		return c, eris.Wrap(err, "store: parse started_at")
	}
	if c.FinishedAt, err = finished.value(); err != nil {
		return c, eris.Wrap(err, "store: parse finished_at")
	}
	return c, nil
}

func unmarshalLead(data []byte) (*model.QualifiedLead, error) {
	var l model.QualifiedLead
	if err := json.Unmarshal(data, &l); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal lead")
	}
	return &l, nil
}
