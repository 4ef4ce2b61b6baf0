package notion

import (
	"context"
	"strings"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
)

// Property names of the lead database.
const (
	PropName       = "Name"
	PropCampaign   = "Campaign"
	PropExternalID = "External ID"
	PropPhone      = "Phone"
	PropWebsite    = "Website"
	PropEmail      = "Email"
	PropOwner      = "Owner"
	PropScore      = "Score"
	PropCost       = "Enrichment Cost"
	PropStatus     = "Status"
)

// DefaultLeadStatus is set on newly created lead pages.
const DefaultLeadStatus = "New"

// LeadPage is one discovered business as written to the lead database.
type LeadPage struct {
	CampaignID string
	ExternalID string
	Name       string
	Phone      string
	Website    string
	Email      string
	Owner      string
	Score      int
	CostUSD    float64
}

// Properties converts the lead to page properties. Empty optional values
// are left out so an update never clears a field set by hand in Notion.
func (l LeadPage) Properties() notionapi.Properties {
	props := notionapi.Properties{
		PropName: notionapi.TitleProperty{
			Type:  notionapi.PropertyTypeTitle,
			Title: richText(l.Name),
		},
		PropCampaign: notionapi.RichTextProperty{
			Type:     notionapi.PropertyTypeRichText,
			RichText: richText(l.CampaignID),
		},
		PropExternalID: notionapi.RichTextProperty{
			Type:     notionapi.PropertyTypeRichText,
			RichText: richText(l.ExternalID),
		},
		PropScore: notionapi.NumberProperty{Number: float64(l.Score)},
		PropCost:  notionapi.NumberProperty{Number: l.CostUSD},
	}
	if l.Phone != "" {
		props[PropPhone] = notionapi.PhoneNumberProperty{PhoneNumber: l.Phone}
	}
	if l.Website != "" {
		props[PropWebsite] = notionapi.URLProperty{Type: notionapi.PropertyTypeURL, URL: l.Website}
	}
	if l.Email != "" {
		props[PropEmail] = notionapi.EmailProperty{Email: l.Email}
	}
	if l.Owner != "" {
		props[PropOwner] = notionapi.RichTextProperty{
			Type:     notionapi.PropertyTypeRichText,
			RichText: richText(l.Owner),
		}
	}
	return props
}

func richText(s string) []notionapi.RichText {
	return []notionapi.RichText{
		{Type: notionapi.ObjectTypeText, Text: &notionapi.Text{Content: s}},
	}
}

func plainText(rts []notionapi.RichText) string {
	var b strings.Builder
	for _, rt := range rts {
		b.WriteString(rt.PlainText)
		if rt.PlainText == "" && rt.Text != nil {
			b.WriteString(rt.Text.Content)
		}
	}
	return b.String()
}

// ExternalID reads the external ID property of a lead page.
func ExternalID(page notionapi.Page) string {
	switch p := page.Properties[PropExternalID].(type) {
	case *notionapi.RichTextProperty:
		return plainText(p.RichText)
	case notionapi.RichTextProperty:
		return plainText(p.RichText)
	}
	return ""
}

// UpsertStats tallies an UpsertLeadPages call.
type UpsertStats struct {
	Created int
	Updated int
}

// UpsertLeadPages writes one page per lead into dbID. Leads already
// exported for the same campaign, matched by external ID, are updated in
// place. Leads are assumed to share one campaign.
func UpsertLeadPages(ctx context.Context, c Client, dbID string, leads []LeadPage) (UpsertStats, error) {
	var stats UpsertStats
	if len(leads) == 0 {
		return stats, nil
	}

	pages, err := QueryByText(ctx, c, dbID, PropCampaign, leads[0].CampaignID)
	if err != nil {
		return stats, err
	}
	existing := make(map[string]string, len(pages))
	for _, p := range pages {
		if id := ExternalID(p); id != "" {
			existing[id] = string(p.ID)
		}
	}

	for _, l := range leads {
		if ctx.Err() != nil {
			return stats, eris.Wrap(ctx.Err(), "notion: upsert leads cancelled")
		}
		if pageID, ok := existing[l.ExternalID]; ok && l.ExternalID != "" {
			if _, err := c.UpdatePage(ctx, pageID, &notionapi.PageUpdateRequest{Properties: l.Properties()}); err != nil {
				return stats, eris.Wrapf(err, "notion: update lead %q", l.Name)
			}
			stats.Updated++
			continue
		}

		props := l.Properties()
		props[PropStatus] = notionapi.StatusProperty{Status: notionapi.Status{Name: DefaultLeadStatus}}
		req := &notionapi.PageCreateRequest{
			Parent: notionapi.Parent{
				Type:       notionapi.ParentTypeDatabaseID,
				DatabaseID: notionapi.DatabaseID(dbID),
			},
			Properties: props,
		}
		if _, err := c.CreatePage(ctx, req); err != nil {
			return stats, eris.Wrapf(err, "notion: create lead %q", l.Name)
		}
		stats.Created++
	}
	return stats, nil
}
