// Package hunter is a Hunter.io API client for email discovery and
// verification.
package hunter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
)

const defaultBaseURL = "https://api.hunter.io/v2"

// Client performs Hunter.io API operations.
type Client interface {
	DomainSearch(ctx context.Context, domain string, limit int) (*DomainSearchResult, error)
	EmailFinder(ctx context.Context, domain, firstName, lastName string) (*EmailFinderResult, error)
	VerifyEmail(ctx context.Context, email string) (*VerifyResult, error)
}

// DomainSearchResult lists the addresses Hunter knows for a domain.
type DomainSearchResult struct {
	Domain       string  `json:"domain"`
	Organization string  `json:"organization"`
	Emails       []Email `json:"emails"`
}

// Email is one address found by domain search.
type Email struct {
	Value      string `json:"value"`
	Type       string `json:"type"` // personal or generic
	Confidence int    `json:"confidence"`
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	Position   string `json:"position"`
}

// EmailFinderResult is the most likely address of a named person.
type EmailFinderResult struct {
	Email     string `json:"email"`
	Score     int    `json:"score"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Position  string `json:"position"`
}

// VerifyResult is the deliverability verdict for an address.
type VerifyResult struct {
	Email  string `json:"email"`
	Status string `json:"status"` // valid, invalid, accept_all, webmail, disposable, unknown
	Result string `json:"result"` // deliverable, undeliverable, risky
	Score  int    `json:"score"`
}

// Deliverable reports whether the address is safe to send to.
func (v *VerifyResult) Deliverable() bool {
	return v != nil && (v.Status == "valid" || v.Result == "deliverable")
}

// APIError is a non-200 response from the Hunter API.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("hunter: unexpected status %d: %s", e.StatusCode, e.Body)
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
	apiKey  string
	baseURL string
	http    *http.Client
}

// NewClient creates a Hunter.io client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
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

type envelope[T any] struct {
	Data T `json:"data"`
}

func (c *httpClient) DomainSearch(ctx context.Context, domain string, limit int) (*DomainSearchResult, error) {
	q := url.Values{"domain": {domain}}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	var out envelope[DomainSearchResult]
	if err := c.get(ctx, "/domain-search", q, &out); err != nil {
		return nil, err
	}
	return &out.Data, nil
}

// EmailFinder returns a nil result without error when Hunter has no
// candidate address.
func (c *httpClient) EmailFinder(ctx context.Context, domain, firstName, lastName string) (*EmailFinderResult, error) {
	q := url.Values{
		"domain":     {domain},
		"first_name": {firstName},
		"last_name":  {lastName},
	}
	var out envelope[EmailFinderResult]
	if err := c.get(ctx, "/email-finder", q, &out); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			return nil, nil
		}
		return nil, err
	}
	if out.Data.Email == "" {
		return nil, nil
	}
	return &out.Data, nil
}

func (c *httpClient) VerifyEmail(ctx context.Context, email string) (*VerifyResult, error) {
	var out envelope[VerifyResult]
	if err := c.get(ctx, "/email-verifier", url.Values{"email": {email}}, &out); err != nil {
		return nil, err
	}
	if out.Data.Email == "" {
		out.Data.Email = email
	}
	return &out.Data, nil
}

func (c *httpClient) get(ctx context.Context, path string, q url.Values, dst any) error {
	q.Set("api_key", c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return eris.Wrap(err, "hunter: create request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return eris.Wrapf(err, "hunter: send request %s", path)
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return eris.Wrap(err, "hunter: read response")
	}
	if resp.StatusCode != http.StatusOK {
		return &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return eris.Wrapf(err, "hunter: unmarshal %s", path)
	}
	return nil
}
