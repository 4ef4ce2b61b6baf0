// Package apollo is an Apollo.io API client for organization and people
// enrichment.
package apollo

import (
	"bytes"
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

const defaultBaseURL = "https://api.apollo.io/api/v1"

// Client performs Apollo.io API operations.
type Client interface {
	EnrichOrganization(ctx context.Context, domain string) (*Organization, error)
	MatchPerson(ctx context.Context, req MatchRequest) (*Person, error)
	SearchPeople(ctx context.Context, req PeopleSearchRequest) ([]Person, error)
}

// Organization is the firmographic profile of a company.
type Organization struct {
	ID                    string `json:"id"`
	Name                  string `json:"name"`
	WebsiteURL            string `json:"website_url"`
	PrimaryDomain         string `json:"primary_domain"`
	LinkedInURL           string `json:"linkedin_url"`
	Industry              string `json:"industry"`
	EstimatedNumEmployees int    `json:"estimated_num_employees"`
	FoundedYear           int    `json:"founded_year"`
}

// Person is a contact record.
type Person struct {
	ID           string        `json:"id"`
	FirstName    string        `json:"first_name"`
	LastName     string        `json:"last_name"`
	Name         string        `json:"name"`
	Title        string        `json:"title"`
	Email        string        `json:"email"`
	EmailStatus  string        `json:"email_status"` // verified, guessed, unavailable
	LinkedInURL  string        `json:"linkedin_url"`
	PhoneNumbers []PhoneNumber `json:"phone_numbers"`
}

// PhoneNumber is one number attached to a person.
type PhoneNumber struct {
	SanitizedNumber string `json:"sanitized_number"`
	Type            string `json:"type"`
}

// Phone returns the first sanitized phone number, if any.
func (p *Person) Phone() string {
	for _, n := range p.PhoneNumbers {
		if n.SanitizedNumber != "" {
			return n.SanitizedNumber
		}
	}
	return ""
}

// FullName returns Name, or first and last joined.
func (p *Person) FullName() string {
	if p.Name != "" {
		return p.Name
	}
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}

// MatchRequest identifies one person for enrichment.
type MatchRequest struct {
	FirstName        string `json:"first_name,omitempty"`
	LastName         string `json:"last_name,omitempty"`
	Name             string `json:"name,omitempty"`
	Email            string `json:"email,omitempty"`
	Domain           string `json:"domain,omitempty"`
	OrganizationName string `json:"organization_name,omitempty"`
}

// PeopleSearchRequest finds people at an organization by title.
type PeopleSearchRequest struct {
	Domains []string `json:"q_organization_domains_list,omitempty"`
	Titles  []string `json:"person_titles,omitempty"`
	PerPage int      `json:"per_page,omitempty"`
}

// APIError is a non-200 response from the Apollo API.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("apollo: unexpected status %d: %s", e.StatusCode, e.Body)
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

// NewClient creates an Apollo.io client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 20 * time.Second,
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// EnrichOrganization returns nil without error when Apollo has no record.
func (c *httpClient) EnrichOrganization(ctx context.Context, domain string) (*Organization, error) {
	var out struct {
		Organization *Organization `json:"organization"`
	}
	path := "/organizations/enrich?" + url.Values{"domain": {domain}}.Encode()
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	if out.Organization == nil || out.Organization.Name == "" {
		return nil, nil
	}
	return out.Organization, nil
}

// MatchPerson returns nil without error when no person matches.
func (c *httpClient) MatchPerson(ctx context.Context, req MatchRequest) (*Person, error) {
	var out struct {
		Person *Person `json:"person"`
	}
	if err := c.do(ctx, http.MethodPost, "/people/match", req, &out); err != nil {
		return nil, err
	}
	return out.Person, nil
}

func (c *httpClient) SearchPeople(ctx context.Context, req PeopleSearchRequest) ([]Person, error) {
	var out struct {
		People []Person `json:"people"`
	}
	if err := c.do(ctx, http.MethodPost, "/mixed_people/search", req, &out); err != nil {
		return nil, err
	}
	return out.People, nil
}

func (c *httpClient) do(ctx context.Context, method, path string, in, dst any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return eris.Wrap(err, "apollo: marshal request")
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return eris.Wrap(err, "apollo: create request")
	}
	req.Header.Set("X-Api-Key", c.apiKey)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return eris.Wrap(err, "apollo: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return eris.Wrap(err, "apollo: read response")
	}
	if resp.StatusCode != http.StatusOK {
		return &APIError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}
	if err := json.Unmarshal(respBody, dst); err != nil {
		return eris.Wrap(err, "apollo: unmarshal response")
	}
	return nil
}
