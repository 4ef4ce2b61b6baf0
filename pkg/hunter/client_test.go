package hunter

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDomainSearch_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/domain-search", r.URL.Path)
		assert.Equal(t, "lakelinedental.com", r.URL.Query().Get("domain"))
		assert.Equal(t, "5", r.URL.Query().Get("limit"))
		assert.Equal(t, "test-key", r.URL.Query().Get("api_key"))

		_, _ = w.Write([]byte(`{"data": {
			"domain": "lakelinedental.com",
			"organization": "Lakeline Family Dental",
			"emails": [
				{"value": "priya@lakelinedental.com", "type": "personal", "confidence": 94,
				 "first_name": "Priya", "last_name": "Shah", "position": "Owner"},
				{"value": "info@lakelinedental.com", "type": "generic", "confidence": 88}
			]}}`))
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL))
	res, err := client.DomainSearch(context.Background(), "lakelinedental.com", 5)

	require.NoError(t, err)
	assert.Equal(t, "Lakeline Family Dental", res.Organization)
	require.Len(t, res.Emails, 2)
	assert.Equal(t, "priya@lakelinedental.com", res.Emails[0].Value)
	assert.Equal(t, 94, res.Emails[0].Confidence)
	assert.Equal(t, "Owner", res.Emails[0].Position)
	assert.Equal(t, "generic", res.Emails[1].Type)
}

func TestEmailFinder_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/email-finder", r.URL.Path)
		assert.Equal(t, "Priya", r.URL.Query().Get("first_name"))
		assert.Equal(t, "Shah", r.URL.Query().Get("last_name"))
		_ = json.NewEncoder(w).Encode(map[string]any{"data": EmailFinderResult{
			Email: "priya@lakelinedental.com", Score: 91, FirstName: "Priya", LastName: "Shah",
		}})
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL))
	res, err := client.EmailFinder(context.Background(), "lakelinedental.com", "Priya", "Shah")

	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, "priya@lakelinedental.com", res.Email)
	assert.Equal(t, 91, res.Score)
}

func TestEmailFinder_NotFound(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "404",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusNotFound)
			},
		},
		{
			name: "empty email",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(`{"data": {"email": null, "score": 0}}`))
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			client := NewClient("test-key", WithBaseURL(srv.URL))
			res, err := client.EmailFinder(context.Background(), "acme.com", "Jo", "Doe")
			require.NoError(t, err)
			assert.Nil(t, res)
		})
	}
}

func TestVerifyEmail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/email-verifier", r.URL.Path)
		switch r.URL.Query().Get("email") {
		case "priya@lakelinedental.com":
			_, _ = w.Write([]byte(`{"data": {"email": "priya@lakelinedental.com", "status": "valid", "result": "deliverable", "score": 97}}`))
		default:
			_, _ = w.Write([]byte(`{"data": {"status": "invalid", "result": "undeliverable", "score": 12}}`))
		}
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL))

	ok, err := client.VerifyEmail(context.Background(), "priya@lakelinedental.com")
	require.NoError(t, err)
	assert.True(t, ok.Deliverable())
	assert.Equal(t, 97, ok.Score)

	bad, err := client.VerifyEmail(context.Background(), "nobody@lakelinedental.com")
	require.NoError(t, err)
	assert.False(t, bad.Deliverable())
	assert.Equal(t, "nobody@lakelinedental.com", bad.Email)
}

func TestAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"errors": [{"id": "too_many_requests"}]}`))
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL))
	_, err := client.VerifyEmail(context.Background(), "a@b.com")

	require.Error(t, err)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusTooManyRequests, apiErr.HTTPStatus())
	assert.Contains(t, err.Error(), "too_many_requests")
}

func TestDomainSearch_MalformedJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"data":`))
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL))
	_, err := client.DomainSearch(context.Background(), "acme.com", 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "hunter: unmarshal /domain-search")
}

func TestDeliverable_NilSafe(t *testing.T) {
	var v *VerifyResult
	assert.False(t, v.Deliverable())
	assert.True(t, (&VerifyResult{Status: "accept_all", Result: "deliverable"}).Deliverable())
}
