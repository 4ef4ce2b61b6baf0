package adapters

import (
	"context"
	"strings"

	"github.com/sells-group/prospect-cli/internal/model"
	"github.com/sells-group/prospect-cli/internal/provider"
	"github.com/sells-group/prospect-cli/pkg/apollo"
)

// Apollo returns firmographics and finds owners with Apollo.io.
type Apollo struct {
	client apollo.Client
}

// NewApollo wraps an Apollo client.
func NewApollo(client apollo.Client) *Apollo {
	return &Apollo{client: client}
}

// Name implements provider.Provider.
func (a *Apollo) Name() string { return NameApollo }

// EnrichCompany looks the organization up by domain. Apollo cannot enrich
// by name alone, so a candidate without a website is not found.
func (a *Apollo) EnrichCompany(ctx context.Context, domain, _ string) (*provider.CompanyEnrichment, error) {
	if domain == "" {
		return &provider.CompanyEnrichment{}, nil
	}
	org, err := a.client.EnrichOrganization(ctx, domain)
	if err != nil {
		return nil, callError(NameApollo, string(model.CapabilityEnrichCompany), err)
	}
	if org == nil {
		return &provider.CompanyEnrichment{}, nil
	}
	conf := 60
	if strings.EqualFold(org.PrimaryDomain, domain) {
		conf = 80
	}
	return &provider.CompanyEnrichment{
		Found: true,
		Profile: model.CompanyProfile{
			Industry:    org.Industry,
			Employees:   org.EstimatedNumEmployees,
			FoundedYear: org.FoundedYear,
			LinkedInURL: org.LinkedInURL,
		},
		Confidence: conf,
	}, nil
}

// EnrichPerson matches a named person, or searches the domain by owner
// title and then matches the top hit to reveal contact details.
func (a *Apollo) EnrichPerson(ctx context.Context, q provider.PersonQuery) (*provider.PersonEnrichment, error) {
	op := string(model.CapabilityEnrichPerson)
	match := apollo.MatchRequest{
		Name:             q.Name,
		Email:            q.Email,
		Domain:           q.Domain,
		OrganizationName: q.Company,
	}

	var fallback *apollo.Person
	if q.Name == "" && q.Email == "" {
		if q.Domain == "" || len(q.Titles) == 0 {
			return &provider.PersonEnrichment{}, nil
		}
		people, err := a.client.SearchPeople(ctx, apollo.PeopleSearchRequest{
			Domains: []string{q.Domain},
			Titles:  q.Titles,
			PerPage: 1,
		})
		if err != nil {
			return nil, callError(NameApollo, op, err)
		}
		if len(people) == 0 {
			return &provider.PersonEnrichment{}, nil
		}
		fallback = &people[0]
		match.FirstName, match.LastName = fallback.FirstName, fallback.LastName
		if match.FirstName == "" {
			match.Name = fallback.FullName()
		}
	}

	p, err := a.client.MatchPerson(ctx, match)
	if err != nil {
		return nil, callError(NameApollo, op, err)
	}
	if p == nil {
		p = fallback
	}
	if p == nil || p.FullName() == "" {
		return &provider.PersonEnrichment{}, nil
	}

	email := strings.ToLower(strings.TrimSpace(p.Email))
	// Apollo masks addresses not unlocked on the plan.
	if strings.HasPrefix(email, "email_not_unlocked") {
		email = ""
	}
	verified := email != "" && p.EmailStatus == "verified"
	conf := 65
	if verified {
		conf = 85
	}
	return &provider.PersonEnrichment{
		Found: true,
		Contact: model.Contact{
			Name:          p.FullName(),
			Title:         p.Title,
			Email:         email,
			EmailVerified: verified,
			Confidence:    conf,
			Phone:         p.Phone(),
		},
		Confidence: conf,
	}, nil
}
