package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/prospect-cli/internal/dedupe"
	"github.com/sells-group/prospect-cli/internal/model"
	"github.com/sells-group/prospect-cli/pkg/notion"
	"github.com/sells-group/prospect-cli/pkg/salesforce"
)

// Sink receives finished campaigns. Every Store is a Sink.
type Sink interface {
	SaveCampaign(ctx context.Context, summary model.CampaignSummary, leads []*model.QualifiedLead) error
}

// Multi fans a campaign out to several sinks concurrently. One failing sink
// never stops the others; all failures are joined into the returned error.
type Multi struct {
	sinks []Sink
}

// NewMulti creates a fan-out over the non-nil sinks.
func NewMulti(sinks ...Sink) *Multi {
	m := &Multi{}
	for _, s := range sinks {
		if s != nil {
			m.sinks = append(m.sinks, s)
		}
	}
	return m
}

// Len returns the number of sinks.
func (m *Multi) Len() int { return len(m.sinks) }

func (m *Multi) SaveCampaign(ctx context.Context, summary model.CampaignSummary, leads []*model.QualifiedLead) error {
	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs []error
	)
	for _, s := range m.sinks {
		g.Go(func() error {
			if err := s.SaveCampaign(ctx, summary, leads); err != nil {
				zap.L().Warn("store: sink failed",
					zap.String("sink", sinkName(s)),
					zap.String("campaign_id", summary.ID),
					zap.Error(err),
				)
				mu.Lock()
				errs = append(errs, eris.Wrapf(err, "%s", sinkName(s)))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

func sinkName(s Sink) string {
	if n, ok := s.(interface{ Name() string }); ok {
		return n.Name()
	}
	return strings.TrimPrefix(fmt.Sprintf("%T", s), "*store.")
}

// LeadKey identifies a lead across exports: the search provider's ID when
// known, otherwise the normalized name and phone digits.
func LeadKey(l *model.QualifiedLead) string {
	if l.ExternalID != "" {
		return l.ExternalID
	}
	return dedupe.NormalizeName(l.Name) + "|" + dedupe.PhoneDigits(l.Phone)
}

// NotionSink writes leads as pages of a Notion database.
type NotionSink struct {
	client notion.Client
	dbID   string
}

// NewNotionSink creates a sink writing into the lead database dbID.
func NewNotionSink(c notion.Client, dbID string) *NotionSink {
	return &NotionSink{client: c, dbID: dbID}
}

func (s *NotionSink) Name() string { return "notion" }

func (s *NotionSink) SaveCampaign(ctx context.Context, summary model.CampaignSummary, leads []*model.QualifiedLead) error {
	pages := make([]notion.LeadPage, len(leads))
	for i, l := range leads {
		p := notion.LeadPage{
			CampaignID: summary.ID,
			ExternalID: LeadKey(l),
			Name:       l.Name,
			Phone:      l.Phone,
			Website:    l.Website,
			Email:      l.BestEmail(),
			Score:      l.FinalConfidenceScore,
			CostUSD:    l.TotalCostUSD,
		}
		if l.Owner != nil {
			p.Owner = l.Owner.Name
		}
		pages[i] = p
	}

	stats, err := notion.UpsertLeadPages(ctx, s.client, s.dbID, pages)
	if err != nil {
		return eris.Wrapf(err, "notion sink: campaign %s", summary.ID)
	}
	zap.L().Info("store: exported leads to notion",
		zap.String("campaign_id", summary.ID),
		zap.Int("created", stats.Created),
		zap.Int("updated", stats.Updated),
	)
	return nil
}

// SalesforceSink writes leads as Salesforce Lead records.
type SalesforceSink struct {
	client salesforce.Client
}

// NewSalesforceSink creates a sink writing through c.
func NewSalesforceSink(c salesforce.Client) *SalesforceSink {
	return &SalesforceSink{client: c}
}

func (s *SalesforceSink) Name() string { return "salesforce" }

func (s *SalesforceSink) SaveCampaign(ctx context.Context, summary model.CampaignSummary, leads []*model.QualifiedLead) error {
	inputs := make([]salesforce.LeadInput, len(leads))
	for i, l := range leads {
		in := salesforce.LeadInput{
			CampaignID: summary.ID,
			ExternalID: LeadKey(l),
			Company:    l.Name,
			Phone:      l.Phone,
			Email:      l.BestEmail(),
			Website:    l.Website,
			Street:     l.Address,
			Score:      l.FinalConfidenceScore,
		}
		if l.Owner != nil {
			in.FirstName, in.LastName = salesforce.SplitName(l.Owner.Name)
			in.Title = l.Owner.Title
		}
		inputs[i] = in
	}

	res, err := salesforce.UpsertLeads(ctx, s.client, inputs)
	if err != nil {
		return eris.Wrapf(err, "salesforce sink: campaign %s", summary.ID)
	}
	zap.L().Info("store: exported leads to salesforce",
		zap.String("campaign_id", summary.ID),
		zap.Int("created", res.Created),
		zap.Int("updated", res.Updated),
		zap.Int("failed", res.Failed),
	)
	if res.Failed > 0 {
		return eris.Errorf("salesforce sink: %d of %d leads rejected: %s",
			res.Failed, len(inputs), res.Errors[0])
	}
	return nil
}
