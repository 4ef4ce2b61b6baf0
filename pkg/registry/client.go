// Package registry is a client for JSON business-registry lookups: state
// secretary-of-state mirrors, license board directories and association
// member directories that expose a common search endpoint.
//
//	GET {base}/search?name=...&state=...&city=...
//	{"results": [{"id": "...", "name": "...", "status": "active", ...}]}
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
)

// Client looks up registered entities.
type Client interface {
	Search(ctx context.Context, q Query) ([]Entity, error)
}

// Query narrows a registry search.
type Query struct {
	Name  string
	State string
	City  string
}

// Entity is one registered business, licensee or member.
type Entity struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Status string `json:"status"`
	City   string `json:"city"`
	State  string `json:"state"`
	// Score is the registry's own match score in [0,1], when it has one.
	Score float64 `json:"score"`
}

// APIError is a non-200 response from a registry.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("registry: unexpected status %d: %s", e.StatusCode, e.Body)
}

// HTTPStatus returns the response status code.
func (e *APIError) HTTPStatus() int { return e.StatusCode }

// Option configures the client.
type Option func(*httpClient)

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithAPIKey sends key as a bearer token.
func WithAPIKey(key string) Option {
	return func(c *httpClient) {
		c.apiKey = key
	}
}

type httpClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewClient creates a registry client rooted at baseURL.
func NewClient(baseURL string, opts ...Option) Client {
	c := &httpClient{
		baseURL: baseURL,
		http: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) Search(ctx context.Context, q Query) ([]Entity, error) {
	if q.Name == "" {
		return nil, eris.New("registry: name is required")
	}
	v := url.Values{"name": {q.Name}}
	if q.State != "" {
		v.Set("state", q.State)
	}
	if q.City != "" {
		v.Set("city", q.City)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/search?"+v.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "registry: create request")
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "registry: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "registry: read response")
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var out struct {
		Results []Entity `json:"results"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, eris.Wrap(err, "registry: unmarshal response")
	}
	return out.Results, nil
}
