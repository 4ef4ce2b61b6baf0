// Package routing decides which verification providers are relevant to a
// candidate. Text matching lives in Classify; Plan is a pure function over
// the resulting classification.
package routing

import (
	"fmt"
	"sort"

	"github.com/sells-group/prospect-cli/internal/model"
)

// Router builds validation plans from a fixed set of tables.
type Router struct {
	tables Tables
	names  []string
}

// NewRouter creates a Router. The tables are assumed valid.
func NewRouter(t Tables) *Router {
	names := make([]string, 0, len(t.Providers))
	for n := range t.Providers {
		names = append(names, n)
	}
	sort.Strings(names)
	return &Router{tables: t, names: names}
}

// Providers returns every routable provider in sorted order.
func (r *Router) Providers() []string { return r.names }

// Kind returns the kind of a routable provider.
func (r *Router) Kind(provider string) ProviderKind {
	return r.tables.Providers[provider]
}

// Classify classifies a candidate with the router's keyword tables.
func (r *Router) Classify(c model.BusinessCandidate, ctx Context) Classification {
	return Classify(r.tables, c, ctx)
}

// Plan selects providers as the union of geography, industry and entity
// matches, minus skip-rule exclusions, and records a decision for every
// routable provider.
func (r *Router) Plan(cl Classification) model.ValidationPlan {
	plan := model.ValidationPlan{Providers: []string{}}
	skipTag := r.skipTag(cl)

	for _, name := range r.names {
		reason, detail, matched := r.match(name, cl)
		d := model.RouteDecision{Provider: name, Reason: reason, Detail: detail}

		switch {
		case !matched:
			d.Reason = model.ReasonNotMatched
		case skipTag != "" && r.skipsKind(r.tables.Providers[name]):
			d.Reason = model.ReasonSkipRule
			d.Detail = fmt.Sprintf("local service business (%s) without entity signal; matched by %s %s", skipTag, reason, detail)
		default:
			d.Included = true
			plan.Providers = append(plan.Providers, name)
		}
		plan.Decisions = append(plan.Decisions, d)
	}
	return plan
}

// match returns the first relevance reason for provider: geography, then
// industry, then entity signal.
func (r *Router) match(provider string, cl Classification) (model.RouteReason, string, bool) {
	for _, st := range cl.Geography {
		if contains(r.tables.Geography[st], provider) {
			return model.ReasonGeography, "state=" + st, true
		}
	}
	for _, tag := range cl.IndustryTags {
		if contains(r.tables.Industry[tag], provider) {
			return model.ReasonIndustry, "tag=" + tag, true
		}
	}
	for _, sig := range cl.EntitySignals {
		if contains(r.tables.Entity[sig], provider) {
			return model.ReasonEntity, "signal=" + sig, true
		}
	}
	return "", "", false
}

// skipTag returns the local-service tag that triggers the skip rule, or ""
// when it does not apply. Any entity signal in the name lifts the rule.
func (r *Router) skipTag(cl Classification) string {
	if len(cl.EntitySignals) > 0 {
		return ""
	}
	for _, tag := range r.tables.SkipTags {
		if cl.HasTag(tag) {
			return tag
		}
	}
	return ""
}

func (r *Router) skipsKind(k ProviderKind) bool {
	for _, sk := range r.tables.SkipKinds {
		if sk == k {
			return true
		}
	}
	return false
}
