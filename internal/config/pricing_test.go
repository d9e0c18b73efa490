package config

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustDate(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := time.Parse(time.DateOnly, s)
	require.NoError(t, err)
	return d
}

func withHistory(t *testing.T, model string, versions []modelPricingVersion) {
	t.Helper()
	orig, had := defaultPricingHistory[model]
	t.Cleanup(func() {
		if had {
			defaultPricingHistory[model] = orig
		} else {
			delete(defaultPricingHistory, model)
		}
	})
	defaultPricingHistory[model] = versions
}

func TestLookupPricingAt_UsesEffectiveDate(t *testing.T) {
	model := "test-model-windowed"
	withHistory(t, model, []modelPricingVersion{
		{EffectiveFrom: mustDate(t, "2025-01-01"), Pricing: ModelPricing{InputPerMTok: 1.0}},
		{EffectiveFrom: mustDate(t, "2025-07-01"), Pricing: ModelPricing{InputPerMTok: 2.0}},
	})

	apr, ok := LookupPricingAt(model, mustDate(t, "2025-04-15"))
	require.True(t, ok)
	assert.InDelta(t, 1.0, apr.InputPerMTok, 1e-9)

	aug, ok := LookupPricingAt(model, mustDate(t, "2025-08-15"))
	require.True(t, ok)
	assert.InDelta(t, 2.0, aug.InputPerMTok, 1e-9)
}

func TestLookupPricingAt_UsesLatestWhenTimeZero(t *testing.T) {
	model := "test-model-latest"
	withHistory(t, model, []modelPricingVersion{
		{EffectiveFrom: mustDate(t, "2025-01-01"), Pricing: ModelPricing{InputPerMTok: 1.0}},
		{EffectiveFrom: mustDate(t, "2025-09-01"), Pricing: ModelPricing{InputPerMTok: 3.0}},
	})

	price, ok := LookupPricingAt(model, time.Time{})
	require.True(t, ok)
	assert.InDelta(t, 3.0, price.InputPerMTok, 1e-9)
}

func TestNormalizeModelName(t *testing.T) {
	assert.Equal(t, "claude-opus-4-5", NormalizeModelName("claude-opus-4-5-20251101"))
	assert.Equal(t, "claude-sonnet-4-6", NormalizeModelName("claude-sonnet-4-6"))
	assert.Equal(t, "gpt-unknown-20250101", NormalizeModelName("gpt-unknown-20250101"))
}

func TestCalculateCostAt(t *testing.T) {
	// 1M input at $3 + 1M output at $15.
	cost := CalculateCostAt("claude-sonnet-4-6-20260101", time.Time{}, 1_000_000, 1_000_000, 0, 0, 0)
	assert.True(t, cost.Equal(decimal.NewFromInt(18)), "got %s", cost)

	assert.True(t, CalculateCostAt("mystery-model", time.Time{}, 1000, 1000, 0, 0, 0).IsZero())
}

func TestPricing_Overrides(t *testing.T) {
	in := 10.0
	prices := NewPricing(PricingOverrides{Overrides: map[string]ModelPricingOverride{
		"claude-haiku-4-5": {InputPerMTok: &in},
		"in-house-model":   {InputPerMTok: &in},
	}})

	p, ok := prices.LookupAt("claude-haiku-4-5-20251001", time.Time{})
	require.True(t, ok)
	assert.InDelta(t, 10.0, p.InputPerMTok, 1e-9)
	assert.InDelta(t, 5.0, p.OutputPerMTok, 1e-9)

	cost := prices.CostAt("in-house-model", time.Time{}, 100_000, 0, 0, 0, 0)
	assert.True(t, cost.Equal(decimal.NewFromInt(1)), "got %s", cost)

	// Overrides stay with the value they were built into.
	base, ok := LookupPricingAt("claude-haiku-4-5", time.Time{})
	require.True(t, ok)
	assert.InDelta(t, 1.0, base.InputPerMTok, 1e-9)
	assert.True(t, CalculateCostAt("in-house-model", time.Time{}, 100_000, 0, 0, 0, 0).IsZero())
}
