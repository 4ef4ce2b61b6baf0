package adapters

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/prospect-cli/internal/model"
	"github.com/sells-group/prospect-cli/internal/provider"
	"github.com/sells-group/prospect-cli/pkg/google"
)

const (
	defaultSearchLimit = 20
	maxSearchPages     = 3
)

// Google discovers candidates with Places text search.
type Google struct {
	client google.Client
}

// NewGoogle wraps a Places client as a Searcher.
func NewGoogle(client google.Client) *Google {
	return &Google{client: client}
}

// Name implements provider.Provider.
func (g *Google) Name() string { return NameGoogle }

// Search pages through results until the limit is met. A failure after the
// first page returns what was already collected.
func (g *Google) Search(ctx context.Context, q provider.SearchQuery) ([]model.BusinessCandidate, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	text := strings.TrimSpace(q.Query)
	if q.Location != "" && !strings.Contains(strings.ToLower(text), strings.ToLower(q.Location)) {
		text += " " + q.Location
	}

	var (
		out   []model.BusinessCandidate
		token string
	)
	for page := 0; page < maxSearchPages && len(out) < limit; page++ {
		resp, err := g.client.TextSearch(ctx, google.TextSearchRequest{
			TextQuery: text,
			PageSize:  limit - len(out),
			PageToken: token,
		})
		if err != nil {
			if page == 0 {
				return nil, callError(NameGoogle, string(model.CapabilitySearch), err)
			}
			zap.L().Warn("google: later page failed, keeping partial results",
				zap.String("query", text), zap.Int("page", page), zap.Error(err))
			break
		}
		for _, p := range resp.Places {
			if len(out) >= limit {
				break
			}
			out = append(out, candidateFromPlace(p))
		}
		token = resp.NextPageToken
		if token == "" {
			break
		}
	}
	return out, nil
}

func candidateFromPlace(p google.Place) model.BusinessCandidate {
	return model.BusinessCandidate{
		Name:       strings.TrimSpace(p.DisplayName.Text),
		Address:    strings.TrimSpace(p.FormattedAddress),
		Phone:      strings.TrimSpace(p.NationalPhoneNumber),
		Website:    strings.TrimSpace(p.WebsiteURI),
		Rating:     p.Rating,
		ExternalID: p.ID,
		Source:     NameGoogle,
	}
}
