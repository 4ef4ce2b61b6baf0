package salesforce

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
)

// Custom Lead fields the export writes. The org must define them.
const (
	FieldCampaignID = "Prospect_Campaign_Id__c"
	FieldExternalID = "Prospect_External_Id__c"
	FieldScore      = "Prospect_Score__c"
)

// LeadSource is stamped on every exported Lead.
const LeadSource = "Prospect Discovery"

// Lead is the subset of a Salesforce Lead read back to match exports.
type Lead struct {
	ID         string `json:"Id" salesforce:"Id"`
	ExternalID string `json:"Prospect_External_Id__c" salesforce:"Prospect_External_Id__c"`
}

// LeadInput is one discovered business to export as a Lead.
type LeadInput struct {
	CampaignID string
	ExternalID string
	Company    string
	FirstName  string
	LastName   string
	Title      string
	Phone      string
	Email      string
	Website    string
	Street     string
	Score      int
}

// Fields maps the input to Lead field values. Salesforce requires LastName
// and Company on every Lead.
func (l LeadInput) Fields() map[string]any {
	last := l.LastName
	if last == "" {
		last = "Unknown"
	}
	f := map[string]any{
		"Company":       l.Company,
		"LastName":      last,
		"LeadSource":    LeadSource,
		FieldCampaignID: l.CampaignID,
		FieldExternalID: l.ExternalID,
		FieldScore:      l.Score,
	}
	for k, v := range map[string]string{
		"FirstName": l.FirstName,
		"Title":     l.Title,
		"Phone":     l.Phone,
		"Email":     l.Email,
		"Website":   l.Website,
		"Street":    l.Street,
	} {
		if v != "" {
			f[k] = v
		}
	}
	return f
}

// SplitName splits a full name into first and last name on the final space.
func SplitName(full string) (first, last string) {
	full = strings.TrimSpace(full)
	i := strings.LastIndex(full, " ")
	if i < 0 {
		return "", full
	}
	return strings.TrimSpace(full[:i]), full[i+1:]
}

// FindCampaignLeads returns the Lead IDs already exported for a campaign,
// keyed by external ID.
func FindCampaignLeads(ctx context.Context, c Client, campaignID string) (map[string]string, error) {
	soql := fmt.Sprintf(
		"SELECT Id, %s FROM Lead WHERE %s = '%s'",
		FieldExternalID, FieldCampaignID, escapeSoql(campaignID),
	)

	var leads []Lead
	if err := c.Query(ctx, soql, &leads); err != nil {
		return nil, eris.Wrap(err, fmt.Sprintf("sf: find leads for campaign %s", campaignID))
	}
	out := make(map[string]string, len(leads))
	for _, l := range leads {
		if l.ExternalID != "" {
			out[l.ExternalID] = l.ID
		}
	}
	return out, nil
}

// UpsertResult tallies an UpsertLeads call.
type UpsertResult struct {
	Created int
	Updated int
	Failed  int
	Errors  []string
}

// UpsertLeads creates Leads for new inputs and updates the ones a previous
// export of the same campaign already created. Inputs are assumed to share
// one campaign.
func UpsertLeads(ctx context.Context, c Client, leads []LeadInput) (UpsertResult, error) {
	var res UpsertResult
	if len(leads) == 0 {
		return res, nil
	}

	existing, err := FindCampaignLeads(ctx, c, leads[0].CampaignID)
	if err != nil {
		return res, err
	}

	var inserts []map[string]any
	var updates []CollectionRecord
	for _, l := range leads {
		if id, ok := existing[l.ExternalID]; ok && l.ExternalID != "" {
			updates = append(updates, CollectionRecord{ID: id, Fields: l.Fields()})
			continue
		}
		inserts = append(inserts, l.Fields())
	}

	created, err := BulkInsert(ctx, c, "Lead", inserts)
	res.tally(created, &res.Created)
	if err != nil {
		return res, err
	}
	updated, err := BulkUpdate(ctx, c, "Lead", updates)
	res.tally(updated, &res.Updated)
	return res, err
}

func (r *UpsertResult) tally(results []CollectionResult, ok *int) {
	for _, cr := range results {
		if cr.Success {
			*ok++
			continue
		}
		r.Failed++
		r.Errors = append(r.Errors, strings.Join(cr.Errors, "; "))
	}
}

// escapeSoql escapes single quotes in SOQL string literals to prevent injection.
func escapeSoql(s string) string {
	return strings.ReplaceAll(s, "'", "\\'")
}
