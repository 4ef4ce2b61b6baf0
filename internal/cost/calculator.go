// Package cost holds the provider price list used to estimate a call before
// it is issued and to charge it afterwards.
package cost

import "strings"

// ProviderRate holds the pricing of one provider.
type ProviderRate struct {
	// PerCall maps a capability to its price in USD per call.
	PerCall map[string]float64 `yaml:"per_call" mapstructure:"per_call"`
	// BillOnAttempt charges failed calls too. Most paid APIs do.
	BillOnAttempt bool `yaml:"bill_on_attempt" mapstructure:"bill_on_attempt"`
}

// Rates maps provider name to its pricing.
type Rates map[string]ProviderRate

// Calculator computes declared and actual costs of provider calls.
type Calculator struct {
	rates Rates
}

// NewCalculator creates a Calculator with the given rates. Providers missing
// from rates are free.
func NewCalculator(rates Rates) *Calculator {
	norm := make(Rates, len(rates))
	for name, r := range rates {
		norm[strings.ToLower(name)] = r
	}
	return &Calculator{rates: norm}
}

// Estimate returns the declared cost of one call, used for the budget check
// before the call is issued.
func (c *Calculator) Estimate(provider, capability string) float64 {
	r, ok := c.rates[strings.ToLower(provider)]
	if !ok {
		return 0
	}
	return r.PerCall[capability]
}

// Charge returns the cost to book for an issued call.
func (c *Calculator) Charge(provider, capability string, succeeded bool) float64 {
	r, ok := c.rates[strings.ToLower(provider)]
	if !ok {
		return 0
	}
	if !succeeded && !r.BillOnAttempt {
		return 0
	}
	return r.PerCall[capability]
}

// BillsOnAttempt reports whether provider charges for failed calls too.
func (c *Calculator) BillsOnAttempt(provider string) bool {
	return c.rates[strings.ToLower(provider)].BillOnAttempt
}

// DefaultRates returns the default price list. Search and website checks
// run on free quota so a zero-budget campaign can still discover and score.
func DefaultRates() Rates {
	return Rates{
		"google": {
			PerCall:       map[string]float64{"search": 0},
			BillOnAttempt: true,
		},
		"website": {
			PerCall: map[string]float64{"check-website": 0, "find-email": 0},
		},
		"propublica": {
			PerCall: map[string]float64{"check-registry": 0},
		},
		"ca_sos": {
			PerCall:       map[string]float64{"check-registry": 0.01},
			BillOnAttempt: true,
		},
		"ny_dos": {
			PerCall:       map[string]float64{"check-registry": 0.01},
			BillOnAttempt: true,
		},
		"tx_sos": {
			PerCall:       map[string]float64{"check-registry": 0.01},
			BillOnAttempt: true,
		},
		"fl_sunbiz": {
			PerCall:       map[string]float64{"check-registry": 0.01},
			BillOnAttempt: true,
		},
		"opencorporates": {
			PerCall:       map[string]float64{"check-registry": 0.02},
			BillOnAttempt: true,
		},
		"license_board": {
			PerCall:       map[string]float64{"check-registry": 0.01},
			BillOnAttempt: true,
		},
		"association": {
			PerCall: map[string]float64{"check-registry": 0.005},
		},
		"hunter": {
			PerCall: map[string]float64{
				"find-email":   0.049,
				"verify-email": 0.01,
			},
			BillOnAttempt: true,
		},
		"apollo": {
			PerCall: map[string]float64{
				"enrich-company": 0.03,
				"enrich-person":  0.05,
			},
			BillOnAttempt: true,
		},
	}
}
