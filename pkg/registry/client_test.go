package registry

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearch_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/tx/search", r.URL.Path)
		assert.Equal(t, "Lakeline Family Dental", r.URL.Query().Get("name"))
		assert.Equal(t, "TX", r.URL.Query().Get("state"))
		assert.Equal(t, "Cedar Park", r.URL.Query().Get("city"))
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"results": [
			{"id": "0801234567", "name": "LAKELINE FAMILY DENTAL PLLC", "status": "Active", "city": "CEDAR PARK", "state": "TX", "score": 0.92}
		]}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL+"/tx", WithAPIKey("secret"))
	got, err := client.Search(context.Background(), Query{Name: "Lakeline Family Dental", State: "TX", City: "Cedar Park"})

	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "0801234567", got[0].ID)
	assert.Equal(t, "Active", got[0].Status)
	assert.InDelta(t, 0.92, got[0].Score, 1e-9)
}

func TestSearch_NoKeyNoAuthHeader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		_, ok := r.URL.Query()["city"]
		assert.False(t, ok)
		_, _ = w.Write([]byte(`{"results": []}`))
	}))
	defer srv.Close()

	got, err := NewClient(srv.URL).Search(context.Background(), Query{Name: "Acme"})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSearch_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	got, err := NewClient(srv.URL).Search(context.Background(), Query{Name: "Acme"})
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSearch_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).Search(context.Background(), Query{Name: "Acme"})
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.HTTPStatus())
}

func TestSearch_RequiresName(t *testing.T) {
	_, err := NewClient("http://unused").Search(context.Background(), Query{State: "TX"})
	require.Error(t, err)
}
