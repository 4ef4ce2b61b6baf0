package cost

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func testRates() Rates {
	return Rates{
		"Hunter": {
			PerCall:       map[string]float64{"find-email": 0.05, "verify-email": 0.01},
			BillOnAttempt: true,
		},
		"apollo": {
			PerCall: map[string]float64{"enrich-company": 0.03},
		},
		"website": {
			PerCall: map[string]float64{"check-website": 0},
		},
	}
}

func TestEstimate(t *testing.T) {
	t.Parallel()
	calc := NewCalculator(testRates())

	tests := []struct {
		name       string
		provider   string
		capability string
		want       float64
	}{
		{name: "case insensitive provider", provider: "hunter", capability: "find-email", want: 0.05},
		{name: "second capability", provider: "HUNTER", capability: "verify-email", want: 0.01},
		{name: "free capability", provider: "website", capability: "check-website", want: 0},
		{name: "unknown capability", provider: "apollo", capability: "enrich-person", want: 0},
		{name: "unknown provider", provider: "nobody", capability: "search", want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.InDelta(t, tt.want, calc.Estimate(tt.provider, tt.capability), 1e-9)
		})
	}
}

func TestCharge(t *testing.T) {
	t.Parallel()
	calc := NewCalculator(testRates())

	assert.InDelta(t, 0.05, calc.Charge("hunter", "find-email", true), 1e-9)
	assert.InDelta(t, 0.05, calc.Charge("hunter", "find-email", false), 1e-9, "billed on attempt")
	assert.InDelta(t, 0.03, calc.Charge("apollo", "enrich-company", true), 1e-9)
	assert.Zero(t, calc.Charge("apollo", "enrich-company", false), "not billed on failure")
	assert.Zero(t, calc.Charge("nobody", "search", true))
}

func TestBillsOnAttempt(t *testing.T) {
	t.Parallel()
	calc := NewCalculator(testRates())
	assert.True(t, calc.BillsOnAttempt("hunter"))
	assert.True(t, calc.BillsOnAttempt("HUNTER"))
	assert.False(t, calc.BillsOnAttempt("apollo"))
	assert.False(t, calc.BillsOnAttempt("nobody"))
}

func TestDefaultRates(t *testing.T) {
	t.Parallel()
	calc := NewCalculator(DefaultRates())

	assert.Zero(t, calc.Estimate("google", "search"), "search runs on free quota")
	assert.Zero(t, calc.Estimate("website", "find-email"))
	assert.Less(t, calc.Estimate("association", "check-registry"), calc.Estimate("apollo", "enrich-company"))
	assert.Greater(t, calc.Estimate("apollo", "enrich-person"), calc.Estimate("hunter", "verify-email"))
	for _, registry := range []string{"ca_sos", "ny_dos", "tx_sos", "fl_sunbiz", "opencorporates"} {
		assert.Positive(t, calc.Estimate(registry, "check-registry"), registry)
	}
}
