// Package website fetches business homepages and extracts the contact
// emails published on them.
package website

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
)

const (
	defaultUserAgent = "prospect-cli/1.0 (+https://github.com/sells-group/prospect-cli)"

	// maxBodyBytes bounds how much of a page is parsed.
	maxBodyBytes = 2 << 20
)

// Client fetches websites.
type Client interface {
	// Fetch loads the homepage at rawURL and, when the homepage lists no
	// email, the first same-host contact page it links to. Only transport
	// failures are errors; any HTTP response yields a Page.
	Fetch(ctx context.Context, rawURL string) (*Page, error)
}

// Page is a fetched homepage.
type Page struct {
	StatusCode int      `json:"status_code"`
	FinalURL   string   `json:"final_url"`
	Title      string   `json:"title,omitempty"`
	Emails     []string `json:"emails,omitempty"`
}

// OK reports whether the page answered with a 2xx status.
func (p *Page) OK() bool {
	return p != nil && p.StatusCode >= 200 && p.StatusCode < 300
}

// Option configures the client.
type Option func(*httpClient)

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *httpClient) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

type httpClient struct {
	http      *http.Client
	userAgent string
}

// NewClient creates a website client.
func NewClient(opts ...Option) Client {
	c := &httpClient{
		http: &http.Client{
			Timeout: 10 * time.Second,
		},
		userAgent: defaultUserAgent,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// NormalizeURL adds a scheme to bare domains.
func NormalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	return raw
}

func (c *httpClient) Fetch(ctx context.Context, rawURL string) (*Page, error) {
	target := NormalizeURL(rawURL)
	if target == "" {
		return nil, eris.New("website: empty url")
	}

	page, doc, err := c.get(ctx, target)
	if err != nil {
		return nil, err
	}
	if doc == nil || len(page.Emails) > 0 {
		return page, nil
	}

	contact := contactLink(doc, page.FinalURL)
	if contact == "" {
		return page, nil
	}
	cp, _, err := c.get(ctx, contact)
	if err != nil {
		// The homepage answered; a broken contact page does not change that.
		return page, nil //nolint:nilerr
	}
	if cp.OK() {
		page.Emails = cp.Emails
	}
	return page, nil
}

func (c *httpClient) get(ctx context.Context, target string) (*Page, *goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, nil, eris.Wrap(err, "website: create request")
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, nil, eris.Wrap(err, "website: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	page := &Page{StatusCode: resp.StatusCode, FinalURL: resp.Request.URL.String()}
	if !page.OK() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return page, nil, nil
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, nil, eris.Wrap(err, "website: parse document")
	}
	page.Title = strings.TrimSpace(doc.Find("title").First().Text())
	page.Emails = ExtractEmails(doc)
	return page, doc, nil
}

var (
	emailRe = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)

	// Image and asset names that look like addresses, e.g. logo@2x.png.
	assetSuffixes = []string{".png", ".jpg", ".jpeg", ".gif", ".svg", ".webp", ".css", ".js"}
)

// ExtractEmails returns the distinct lower-cased addresses in mailto links
// and visible text of doc, sorted.
func ExtractEmails(doc *goquery.Document) []string {
	seen := make(map[string]bool)
	add := func(s string) {
		s = strings.ToLower(strings.Trim(strings.TrimSpace(s), "."))
		if s == "" || seen[s] || !emailRe.MatchString(s) {
			return
		}
		for _, suf := range assetSuffixes {
			if strings.HasSuffix(s, suf) {
				return
			}
		}
		seen[s] = true
	}

	doc.Find(`a[href^="mailto:"], a[href^="MAILTO:"]`).Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		addr := href[len("mailto:"):]
		if i := strings.IndexByte(addr, '?'); i >= 0 {
			addr = addr[:i]
		}
		if dec, err := url.PathUnescape(addr); err == nil {
			addr = dec
		}
		for _, part := range strings.Split(addr, ",") {
			add(part)
		}
	})

	doc.Find("script, style, noscript").Remove()
	for _, m := range emailRe.FindAllString(doc.Find("body").Text(), -1) {
		add(m)
	}

	out := make([]string, 0, len(seen))
	for e := range seen {
		out = append(out, e)
	}
	sort.Strings(out)
	return out
}

// contactLink returns the absolute URL of the first same-host link whose
// text or path mentions "contact".
func contactLink(doc *goquery.Document, base string) string {
	baseURL, err := url.Parse(base)
	if err != nil {
		return ""
	}
	var found string
	doc.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href, _ := a.Attr("href")
		text := strings.ToLower(a.Text())
		if !strings.Contains(strings.ToLower(href), "contact") && !strings.Contains(text, "contact") {
			return true
		}
		ref, err := url.Parse(strings.TrimSpace(href))
		if err != nil {
			return true
		}
		abs := baseURL.ResolveReference(ref)
		if abs.Scheme != "http" && abs.Scheme != "https" {
			return true
		}
		if !strings.EqualFold(abs.Hostname(), baseURL.Hostname()) {
			return true
		}
		abs.Fragment = ""
		if abs.String() == baseURL.String() {
			return true
		}
		found = abs.String()
		return false
	})
	return found
}
