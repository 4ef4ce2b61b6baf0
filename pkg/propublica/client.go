// Package propublica is a client for the ProPublica Nonprofit Explorer API.
package propublica

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

const defaultBaseURL = "https://projects.propublica.org/nonprofits/api/v2"

// Client searches tax-exempt organizations.
type Client interface {
	Search(ctx context.Context, name, state string) ([]Organization, error)
}

// Organization is one IRS-registered nonprofit.
type Organization struct {
	EIN      int64  `json:"ein"`
	StrEIN   string `json:"strein"`
	Name     string `json:"name"`
	SubName  string `json:"sub_name"`
	City     string `json:"city"`
	State    string `json:"state"`
	NTEECode string `json:"ntee_code"`
	// SubsectionCode is the 501(c) subsection, e.g. 3 for 501(c)(3).
	SubsectionCode int `json:"subseccd"`
}

type searchResponse struct {
	TotalResults  int            `json:"total_results"`
	Organizations []Organization `json:"organizations"`
}

// APIError is an unexpected response from the API.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("propublica: unexpected status %d: %s", e.StatusCode, e.Body)
}

// HTTPStatus returns the response status code.
func (e *APIError) HTTPStatus() int { return e.StatusCode }

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a Nonprofit Explorer client. The API is keyless.
func NewClient(opts ...Option) Client {
	c := &httpClient{
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Search returns organizations matching name, optionally within a state.
// The API answers 404 when nothing matches; that is an empty result.
func (c *httpClient) Search(ctx context.Context, name, state string) ([]Organization, error) {
	q := url.Values{"q": {name}}
	if state != "" {
		q.Set("state[id]", strings.ToUpper(state))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/search.json?"+q.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "propublica: create request")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "propublica: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "propublica: read response")
	}
	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, nil
	default:
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var out searchResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, eris.Wrap(err, "propublica: unmarshal response")
	}
	return out.Organizations, nil
}
