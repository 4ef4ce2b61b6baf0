package adapters

import (
	"context"
	"strings"

	"github.com/sells-group/prospect-cli/internal/model"
	"github.com/sells-group/prospect-cli/internal/provider"
	"github.com/sells-group/prospect-cli/pkg/hunter"
)

const domainSearchLimit = 10

// Hunter finds and verifies emails with Hunter.io.
type Hunter struct {
	client      hunter.Client
	ownerTitles []string
}

// NewHunter wraps a Hunter client. Domain-search hits whose position
// contains one of ownerTitles are preferred.
func NewHunter(client hunter.Client, ownerTitles []string) *Hunter {
	titles := make([]string, 0, len(ownerTitles))
	for _, t := range ownerTitles {
		if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
			titles = append(titles, t)
		}
	}
	return &Hunter{client: client, ownerTitles: titles}
}

// Name implements provider.Provider.
func (h *Hunter) Name() string { return NameHunter }

// FindEmail uses the email finder when the person is known by name and
// domain search otherwise.
func (h *Hunter) FindEmail(ctx context.Context, domain string, person *provider.PersonHint) (*provider.EmailFinding, error) {
	op := string(model.CapabilityFindEmail)
	if person != nil && person.FirstName != "" && person.LastName != "" {
		r, err := h.client.EmailFinder(ctx, domain, person.FirstName, person.LastName)
		if err != nil {
			return nil, callError(NameHunter, op, err)
		}
		if r == nil {
			return nil, nil
		}
		pos := r.Position
		if pos == "" {
			pos = person.Title
		}
		return &provider.EmailFinding{
			Email:      strings.ToLower(r.Email),
			Confidence: r.Score,
			FirstName:  r.FirstName,
			LastName:   r.LastName,
			Position:   pos,
		}, nil
	}

	res, err := h.client.DomainSearch(ctx, domain, domainSearchLimit)
	if err != nil {
		return nil, callError(NameHunter, op, err)
	}
	best := h.pick(res.Emails)
	if best == nil {
		return nil, nil
	}
	return &provider.EmailFinding{
		Email:      strings.ToLower(best.Value),
		Confidence: best.Confidence,
		FirstName:  best.FirstName,
		LastName:   best.LastName,
		Position:   best.Position,
	}, nil
}

// pick ranks owner-titled personal addresses first, then other personal
// addresses, then generic ones; confidence breaks ties.
func (h *Hunter) pick(emails []hunter.Email) *hunter.Email {
	var best *hunter.Email
	bestRank := -1
	for i := range emails {
		e := &emails[i]
		if e.Value == "" {
			continue
		}
		rank := 0
		if e.Type != "generic" {
			rank = 1
			if h.isOwner(e.Position) {
				rank = 2
			}
		}
		if rank > bestRank || (rank == bestRank && e.Confidence > best.Confidence) {
			best, bestRank = e, rank
		}
	}
	return best
}

func (h *Hunter) isOwner(position string) bool {
	p := strings.ToLower(position)
	for _, t := range h.ownerTitles {
		if strings.Contains(p, t) {
			return true
		}
	}
	return false
}

// VerifyEmail implements provider.EmailVerifier.
func (h *Hunter) VerifyEmail(ctx context.Context, email string) (*provider.EmailVerification, error) {
	r, err := h.client.VerifyEmail(ctx, email)
	if err != nil {
		return nil, callError(NameHunter, string(model.CapabilityVerifyEmail), err)
	}
	return &provider.EmailVerification{
		Email:       strings.ToLower(r.Email),
		Deliverable: r.Deliverable(),
		Status:      r.Status,
		Confidence:  r.Score,
	}, nil
}
