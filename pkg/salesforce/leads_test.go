package salesforce

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLeadInput_Fields(t *testing.T) {
	f := LeadInput{
		CampaignID: "cmp-1",
		ExternalID: "place-1",
		Company:    "Lone Star Plumbing",
		FirstName:  "Dana",
		LastName:   "Reyes",
		Phone:      "(512) 555-0142",
		Score:      88,
	}.Fields()

	assert.Equal(t, "Lone Star Plumbing", f["Company"])
	assert.Equal(t, "Reyes", f["LastName"])
	assert.Equal(t, "Dana", f["FirstName"])
	assert.Equal(t, LeadSource, f["LeadSource"])
	assert.Equal(t, "cmp-1", f[FieldCampaignID])
	assert.Equal(t, "place-1", f[FieldExternalID])
	assert.Equal(t, 88, f[FieldScore])
	assert.NotContains(t, f, "Email", "empty values are omitted")
	assert.NotContains(t, f, "Website")
}

func TestLeadInput_FieldsDefaultsLastName(t *testing.T) {
	f := LeadInput{Company: "Acme"}.Fields()
	assert.Equal(t, "Unknown", f["LastName"])
}

func TestSplitName(t *testing.T) {
	tests := []struct {
		in, first, last string
	}{
		{"Dana Reyes", "Dana", "Reyes"},
		{"Mary Jo Smith", "Mary Jo", "Smith"},
		{"Cher", "", "Cher"},
		{"  ", "", ""},
	}
	for _, tt := range tests {
		first, last := SplitName(tt.in)
		assert.Equal(t, tt.first, first, tt.in)
		assert.Equal(t, tt.last, last, tt.in)
	}
}

func TestFindCampaignLeads(t *testing.T) {
	var captured string
	mc := &mockClient{
		queryFn: func(_ context.Context, soql string, out any) error {
			captured = soql
			leads := out.(*[]Lead)
			*leads = []Lead{{ID: "00Q1", ExternalID: "place-1"}, {ID: "00Q2"}}
			return nil
		},
	}

	got, err := FindCampaignLeads(context.Background(), mc, "cmp-'1")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"place-1": "00Q1"}, got)
	assert.Contains(t, captured, `Prospect_Campaign_Id__c = 'cmp-\'1'`)
}

func TestUpsertLeads(t *testing.T) {
	var inserted []map[string]any
	var updated []CollectionRecord
	mc := &mockClient{
		queryFn: func(_ context.Context, _ string, out any) error {
			*out.(*[]Lead) = []Lead{{ID: "00Q1", ExternalID: "place-1"}}
			return nil
		},
		insertCollectionFn: func(_ context.Context, _ string, records []map[string]any) ([]CollectionResult, error) {
			inserted = append(inserted, records...)
			return []CollectionResult{{ID: "00Q9", Success: true}, {Success: false, Errors: []string{"DUPLICATE_VALUE"}}}, nil
		},
		updateCollectionFn: func(_ context.Context, _ string, records []CollectionRecord) ([]CollectionResult, error) {
			updated = append(updated, records...)
			return []CollectionResult{{ID: "00Q1", Success: true}}, nil
		},
	}

	res, err := UpsertLeads(context.Background(), mc, []LeadInput{
		{CampaignID: "cmp-1", ExternalID: "place-1", Company: "A"},
		{CampaignID: "cmp-1", ExternalID: "place-2", Company: "B"},
		{CampaignID: "cmp-1", Company: "C"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Created)
	assert.Equal(t, 1, res.Updated)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, []string{"DUPLICATE_VALUE"}, res.Errors)
	require.Len(t, updated, 1)
	assert.Equal(t, "00Q1", updated[0].ID)
	assert.Len(t, inserted, 2)
}

func TestUpsertLeads_QueryError(t *testing.T) {
	mc := &mockClient{
		queryFn: func(context.Context, string, any) error { return errors.New("session expired") },
	}
	_, err := UpsertLeads(context.Background(), mc, []LeadInput{{CampaignID: "cmp-1"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "find leads for campaign cmp-1")
}

func TestUpsertLeads_Empty(t *testing.T) {
	res, err := UpsertLeads(context.Background(), &mockClient{}, nil)
	require.NoError(t, err)
	assert.Zero(t, res.Created)
}
