package model

// RouteReason explains why a provider was included in or excluded from a
// validation plan.
type RouteReason string

const (
	ReasonGeography  RouteReason = "geography"
	ReasonIndustry   RouteReason = "industry"
	ReasonEntity     RouteReason = "entity"
	ReasonSkipRule   RouteReason = "skip_rule"
	ReasonNotMatched RouteReason = "not_matched"
)

// RouteDecision is the routing verdict for a single provider.
type RouteDecision struct {
	Provider string      `json:"provider"`
	Included bool        `json:"included"`
	Reason   RouteReason `json:"reason"`
	Detail   string      `json:"detail,omitempty"`
}

// ValidationPlan lists the verification providers relevant to a candidate,
// with a decision for every known provider.
type ValidationPlan struct {
	Providers []string        `json:"providers"`
	Decisions []RouteDecision `json:"decisions"`
}

// Includes reports whether the plan selected the named provider.
func (p ValidationPlan) Includes(provider string) bool {
	for _, name := range p.Providers {
		if name == provider {
			return true
		}
	}
	return false
}

// Decision returns the decision recorded for the named provider.
func (p ValidationPlan) Decision(provider string) (RouteDecision, bool) {
	for _, d := range p.Decisions {
		if d.Provider == provider {
			return d, true
		}
	}
	return RouteDecision{}, false
}
