package adapters

import (
	"context"
	"strings"

	"github.com/sells-group/prospect-cli/internal/provider"
	"github.com/sells-group/prospect-cli/internal/scoring"
	"github.com/sells-group/prospect-cli/pkg/website"
)

// Website checks homepages and scrapes the emails they publish. It is the
// free first step of email discovery.
type Website struct {
	client website.Client
}

// NewWebsite wraps a website client.
func NewWebsite(client website.Client) *Website {
	return &Website{client: client}
}

// Name implements provider.Provider.
func (w *Website) Name() string { return NameWebsite }

// CheckSite reports a site that cannot be reached as inaccessible rather
// than as a failed call: a dead website says something about the business,
// not about this provider. Only an expired call context is an error.
func (w *Website) CheckSite(ctx context.Context, site string) (*provider.SiteCheck, error) {
	page, err := w.client.Fetch(ctx, site)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return &provider.SiteCheck{}, nil
	}
	return &provider.SiteCheck{
		Accessible: page.OK(),
		StatusCode: page.StatusCode,
		FinalURL:   page.FinalURL,
		Emails:     page.Emails,
	}, nil
}

// FindEmail picks the best address published on the domain's site. A
// person hint prefers addresses naming that person.
func (w *Website) FindEmail(ctx context.Context, domain string, person *provider.PersonHint) (*provider.EmailFinding, error) {
	page, err := w.client.Fetch(ctx, domain)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, nil
	}
	if !page.OK() {
		return nil, nil
	}
	return pickSiteEmail(domain, page.Emails, person), nil
}

func pickSiteEmail(domain string, emails []string, person *provider.PersonHint) *provider.EmailFinding {
	domain = strings.ToLower(strings.TrimPrefix(domain, "www."))

	var best *provider.EmailFinding
	for _, e := range emails {
		if !scoring.ValidEmailSyntax(e) {
			continue
		}
		local, host, _ := strings.Cut(e, "@")
		conf := 40
		if !scoring.GenericMailbox(e) {
			conf = 55
		}
		named := person != nil && namesPerson(local, person)
		if named {
			conf = 75
		}
		if host != domain && !strings.HasSuffix(host, "."+domain) {
			conf -= 15
		}
		if best == nil || conf > best.Confidence {
			best = &provider.EmailFinding{Email: e, Confidence: conf}
			if named {
				best.FirstName, best.LastName, best.Position = person.FirstName, person.LastName, person.Title
			}
		}
	}
	return best
}

func namesPerson(local string, p *provider.PersonHint) bool {
	for _, n := range []string{p.LastName, p.FirstName} {
		n = strings.ToLower(strings.TrimSpace(n))
		if len(n) >= 3 && strings.Contains(local, n) {
			return true
		}
	}
	return false
}
