package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/prospect-cli/internal/model"
	"github.com/sells-group/prospect-cli/internal/monitoring"
	"github.com/sells-group/prospect-cli/internal/store"
)

type fakeRunner struct {
	got model.CampaignRequest
}

func (f *fakeRunner) Run(_ context.Context, req model.CampaignRequest) *model.CampaignResult {
	f.got = req
	return &model.CampaignResult{
		ID:      "c-1",
		Request: req,
		Status:  model.StatusTargetMet,
		Success: true,
		Leads:   []*model.QualifiedLead{},
	}
}

type fakeCampaigns struct {
	filter    store.CampaignFilter
	summaries map[string]model.CampaignSummary
	leads     map[string][]*model.QualifiedLead
	err       error
}

func (f *fakeCampaigns) GetCampaign(_ context.Context, id string) (*model.CampaignSummary, error) {
	if f.err != nil {
		return nil, f.err
	}
	s, ok := f.summaries[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &s, nil
}

func (f *fakeCampaigns) ListCampaigns(_ context.Context, filter store.CampaignFilter) ([]model.CampaignSummary, error) {
	f.filter = filter
	if f.err != nil {
		return nil, f.err
	}
	var out []model.CampaignSummary
	for _, s := range f.summaries {
		out = append(out, s)
	}
	return out, nil
}

func (f *fakeCampaigns) ListLeads(_ context.Context, id string) ([]*model.QualifiedLead, error) {
	return f.leads[id], nil
}

type fakeSnapshotter struct {
	hours int
	err   error
}

func (f *fakeSnapshotter) Collect(_ context.Context, hours int) (*monitoring.Snapshot, error) {
	f.hours = hours
	if f.err != nil {
		return nil, f.err
	}
	return &monitoring.Snapshot{LookbackHours: hours, Campaigns: 3, Leads: 12}, nil
}

func newTestAPI() (*api, *fakeRunner, *fakeCampaigns, *fakeSnapshotter) {
	runner := &fakeRunner{}
	campaigns := &fakeCampaigns{
		summaries: map[string]model.CampaignSummary{
			"c-1": {
				ID:           "c-1",
				BusinessType: "dentist",
				Location:     "Austin, TX",
				Status:       model.StatusTargetMet,
				LeadCount:    1,
				StartedAt:    time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
			},
		},
		leads: map[string][]*model.QualifiedLead{
			"c-1": {{ScoredCandidate: model.ScoredCandidate{BusinessCandidate: model.BusinessCandidate{Name: "Bright Smiles"}}}},
		},
	}
	snaps := &fakeSnapshotter{}
	a := newAPI(runner, campaigns, snaps, apiConfig{
		Defaults:       testDefaults,
		LookbackHours:  24,
		AllowedOrigins: []string{"https://app.example.com"},
	})
	return a, runner, campaigns, snaps
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestAPI_Health(t *testing.T) {
	a, _, _, _ := newTestAPI()
	rr := do(t, a.routes(), http.MethodGet, "/health", "")

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "application/json")

	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestAPI_RunCampaign_AppliesDefaults(t *testing.T) {
	a, runner, _, _ := newTestAPI()
	rr := do(t, a.routes(), http.MethodPost, "/campaigns",
		`{"business_type":"dentist","location":"Austin, TX","budget_limit_usd":0,"require_owner_qualified":true}`)

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, 25, runner.got.TargetCount)
	assert.Equal(t, 0.0, runner.got.BudgetLimitUSD)
	assert.Equal(t, 60, runner.got.MinConfidenceScore)
	assert.True(t, runner.got.RequireOwnerQualified)

	var res model.CampaignResult
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &res))
	assert.Equal(t, "c-1", res.ID)
	assert.Equal(t, model.StatusTargetMet, res.Status)
}

func TestAPI_RunCampaign_BadRequests(t *testing.T) {
	a, runner, _, _ := newTestAPI()
	h := a.routes()

	rr := do(t, h, http.MethodPost, "/campaigns", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, h, http.MethodPost, "/campaigns", `{"business_type":"dentist"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "location is required")

	rr = do(t, h, http.MethodPost, "/campaigns", `{"business_type":"dentist","location":"Austin, TX","budget_limit_usd":-1}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	assert.Empty(t, runner.got.BusinessType, "invalid requests never reach the controller")
}

func TestAPI_ListCampaigns_Filter(t *testing.T) {
	a, _, campaigns, _ := newTestAPI()
	rr := do(t, a.routes(), http.MethodGet, "/campaigns?status=target_met&business_type=dentist&location=Austin&limit=10&offset=5", "")

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, store.CampaignFilter{
		Status:       model.StatusTargetMet,
		BusinessType: "dentist",
		Location:     "Austin",
		Limit:        10,
		Offset:       5,
	}, campaigns.filter)

	var list []model.CampaignSummary
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "c-1", list[0].ID)
}

func TestAPI_ListCampaigns_Errors(t *testing.T) {
	a, _, campaigns, _ := newTestAPI()
	h := a.routes()

	rr := do(t, h, http.MethodGet, "/campaigns?limit=abc", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, h, http.MethodGet, "/campaigns?offset=-2", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	campaigns.err = errors.New("db down")
	rr = do(t, h, http.MethodGet, "/campaigns", "")
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}

func TestAPI_ListCampaigns_EmptyIsArray(t *testing.T) {
	a, _, campaigns, _ := newTestAPI()
	campaigns.summaries = nil

	rr := do(t, a.routes(), http.MethodGet, "/campaigns", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `[]`, rr.Body.String())
}

func TestAPI_GetCampaign(t *testing.T) {
	a, _, _, _ := newTestAPI()
	rr := do(t, a.routes(), http.MethodGet, "/campaigns/c-1", "")

	require.Equal(t, http.StatusOK, rr.Code)
	var detail struct {
		ID    string                 `json:"id"`
		Leads []*model.QualifiedLead `json:"leads"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &detail))
	assert.Equal(t, "c-1", detail.ID)
	require.Len(t, detail.Leads, 1)
	assert.Equal(t, "Bright Smiles", detail.Leads[0].Name)
}

func TestAPI_GetCampaign_NotFound(t *testing.T) {
	a, _, _, _ := newTestAPI()
	rr := do(t, a.routes(), http.MethodGet, "/campaigns/nope", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestAPI_Status(t *testing.T) {
	a, _, _, snaps := newTestAPI()
	rr := do(t, a.routes(), http.MethodGet, "/status", "")

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 24, snaps.hours)

	var snap monitoring.Snapshot
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &snap))
	assert.Equal(t, 3, snap.Campaigns)
	assert.Equal(t, 12, snap.Leads)

	snaps.err = errors.New("boom")
	rr = do(t, a.routes(), http.MethodGet, "/status", "")
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}

func TestAPI_CORS(t *testing.T) {
	a, _, _, _ := newTestAPI()
	req := httptest.NewRequest(http.MethodOptions, "/campaigns", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rr := httptest.NewRecorder()
	a.routes().ServeHTTP(rr, req)

	assert.Equal(t, "https://app.example.com", rr.Header().Get("Access-Control-Allow-Origin"))
}
