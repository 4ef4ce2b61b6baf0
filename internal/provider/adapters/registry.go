package adapters

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/sells-group/prospect-cli/internal/model"
	"github.com/sells-group/prospect-cli/internal/provider"
	"github.com/sells-group/prospect-cli/pkg/propublica"
	"github.com/sells-group/prospect-cli/pkg/registry"
)

// ProPublica confirms tax-exempt status through Nonprofit Explorer.
type ProPublica struct {
	client propublica.Client
}

// NewProPublica wraps a Nonprofit Explorer client.
func NewProPublica(client propublica.Client) *ProPublica {
	return &ProPublica{client: client}
}

// Name implements provider.Provider.
func (p *ProPublica) Name() string { return NameProPublica }

// CheckEntity implements provider.RegistryChecker.
func (p *ProPublica) CheckEntity(ctx context.Context, q provider.EntityQuery) (*provider.EntityCheck, error) {
	orgs, err := p.client.Search(ctx, q.Name, q.State)
	if err != nil {
		return nil, callError(NameProPublica, string(model.CapabilityCheckRegistry), err)
	}

	var (
		best  *propublica.Organization
		score float64
	)
	for i := range orgs {
		o := &orgs[i]
		if !cityMatches(q.City, o.City) {
			continue
		}
		if s := nameSimilarity(q.Name, o.Name); s > score {
			best, score = o, s
		}
	}
	if best == nil || score < minNameSimilarity {
		return &provider.EntityCheck{}, nil
	}

	status := "exempt"
	if best.SubsectionCode > 0 {
		status = fmt.Sprintf("exempt 501(c)(%d)", best.SubsectionCode)
	}
	return &provider.EntityCheck{
		Found:      true,
		Status:     status,
		Confidence: int(math.Round(score * 100)),
		EntityID:   best.StrEIN,
		Detail:     best.Name,
	}, nil
}

// Registry checks one configured JSON registry: a state business registry,
// a license board or an association directory.
type Registry struct {
	name   string
	client registry.Client
}

// NewRegistry wraps a registry client under the configured provider name.
func NewRegistry(name string, client registry.Client) *Registry {
	return &Registry{name: name, client: client}
}

// Name implements provider.Provider.
func (r *Registry) Name() string { return r.name }

// CheckEntity implements provider.RegistryChecker. The registry's own match
// score, when present, caps the name similarity.
func (r *Registry) CheckEntity(ctx context.Context, q provider.EntityQuery) (*provider.EntityCheck, error) {
	entities, err := r.client.Search(ctx, registry.Query{Name: q.Name, State: q.State, City: q.City})
	if err != nil {
		return nil, callError(r.name, string(model.CapabilityCheckRegistry), err)
	}

	var (
		best  *registry.Entity
		score float64
	)
	for i := range entities {
		e := &entities[i]
		if !cityMatches(q.City, e.City) {
			continue
		}
		s := nameSimilarity(q.Name, e.Name)
		if e.Score > 0 && e.Score < s {
			s = e.Score
		}
		if s > score {
			best, score = e, s
		}
	}
	if best == nil || score < minNameSimilarity {
		return &provider.EntityCheck{}, nil
	}
	return &provider.EntityCheck{
		Found:      true,
		Status:     strings.ToLower(strings.TrimSpace(best.Status)),
		Confidence: int(math.Round(score * 100)),
		EntityID:   best.ID,
		Detail:     best.Name,
	}, nil
}
