package config

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ModelPricing holds per-million-token prices for a model.
type ModelPricing struct {
	InputPerMTok        float64
	OutputPerMTok       float64
	CacheWrite5mPerMTok float64
	CacheWrite1hPerMTok float64
	CacheReadPerMTok    float64
	// Long context overrides (>200K input tokens)
	LongInputPerMTok  float64
	LongOutputPerMTok float64
}

type modelPricingVersion struct {
	EffectiveFrom time.Time
	Pricing       ModelPricing
}

// DefaultPricing maps model base names to their pricing.
var DefaultPricing = map[string]ModelPricing{
	"claude-opus-4-6": {
		InputPerMTok: 5.00, OutputPerMTok: 25.00,
		CacheWrite5mPerMTok: 6.25, CacheWrite1hPerMTok: 10.00, CacheReadPerMTok: 0.50,
		LongInputPerMTok: 10.00, LongOutputPerMTok: 37.50,
	},
	"claude-opus-4-5": {
		InputPerMTok: 5.00, OutputPerMTok: 25.00,
		CacheWrite5mPerMTok: 6.25, CacheWrite1hPerMTok: 10.00, CacheReadPerMTok: 0.50,
		LongInputPerMTok: 10.00, LongOutputPerMTok: 37.50,
	},
	"claude-opus-4-1": {
		InputPerMTok: 15.00, OutputPerMTok: 75.00,
		CacheWrite5mPerMTok: 18.75, CacheWrite1hPerMTok: 30.00, CacheReadPerMTok: 1.50,
		LongInputPerMTok: 30.00, LongOutputPerMTok: 112.50,
	},
	"claude-opus-4": {
		InputPerMTok: 15.00, OutputPerMTok: 75.00,
		CacheWrite5mPerMTok: 18.75, CacheWrite1hPerMTok: 30.00, CacheReadPerMTok: 1.50,
		LongInputPerMTok: 30.00, LongOutputPerMTok: 112.50,
	},
	"claude-sonnet-4-6": {
		InputPerMTok: 3.00, OutputPerMTok: 15.00,
		CacheWrite5mPerMTok: 3.75, CacheWrite1hPerMTok: 6.00, CacheReadPerMTok: 0.30,
		LongInputPerMTok: 6.00, LongOutputPerMTok: 22.50,
	},
	"claude-sonnet-4-5": {
		InputPerMTok: 3.00, OutputPerMTok: 15.00,
		CacheWrite5mPerMTok: 3.75, CacheWrite1hPerMTok: 6.00, CacheReadPerMTok: 0.30,
		LongInputPerMTok: 6.00, LongOutputPerMTok: 22.50,
	},
	"claude-sonnet-4": {
		InputPerMTok: 3.00, OutputPerMTok: 15.00,
		CacheWrite5mPerMTok: 3.75, CacheWrite1hPerMTok: 6.00, CacheReadPerMTok: 0.30,
		LongInputPerMTok: 6.00, LongOutputPerMTok: 22.50,
	},
	"claude-haiku-4-5": {
		InputPerMTok: 1.00, OutputPerMTok: 5.00,
		CacheWrite5mPerMTok: 1.25, CacheWrite1hPerMTok: 2.00, CacheReadPerMTok: 0.10,
		LongInputPerMTok: 2.00, LongOutputPerMTok: 7.50,
	},
	"claude-haiku-3-5": {
		InputPerMTok: 0.80, OutputPerMTok: 4.00,
		CacheWrite5mPerMTok: 1.00, CacheWrite1hPerMTok: 1.60, CacheReadPerMTok: 0.08,
		LongInputPerMTok: 1.60, LongOutputPerMTok: 6.00,
	},
}

// defaultPricingHistory stores effective-dated prices for each model.
// Entries must be sorted by EffectiveFrom ascending.
var defaultPricingHistory = makeDefaultPricingHistory(DefaultPricing)

func makeDefaultPricingHistory(base map[string]ModelPricing) map[string][]modelPricingVersion {
	history := make(map[string][]modelPricingVersion, len(base))
	for modelName, pricing := range base {
		history[modelName] = []modelPricingVersion{
			{Pricing: pricing},
		}
	}
	return history
}

func hasPricingModel(model string) bool {
	if _, ok := defaultPricingHistory[model]; ok {
		return true
	}
	_, ok := DefaultPricing[model]
	return ok
}

// NormalizeModelName strips date suffixes from model identifiers.
// e.g., "claude-opus-4-5-20251101" -> "claude-opus-4-5"
func NormalizeModelName(raw string) string {
	// Models can have date suffixes like -20251101 (8 digits)
	// Strategy: try progressively shorter prefixes against the pricing table
	if hasPricingModel(raw) {
		return raw
	}

	// Strip last segment if it looks like a date (all digits)
	parts := strings.Split(raw, "-")
	if len(parts) >= 2 {
		last := parts[len(parts)-1]
		if isAllDigits(last) && len(last) >= 8 {
			candidate := strings.Join(parts[:len(parts)-1], "-")
			if hasPricingModel(candidate) {
				return candidate
			}
		}
	}

	return raw
}

func isAllDigits(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return len(s) > 0
}

// Pricing resolves model prices with user overrides layered over the
// built-in table. The zero value uses the built-in table only.
type Pricing struct {
	overrides map[string]ModelPricingOverride
}

// NewPricing returns a Pricing that applies o.
func NewPricing(o PricingOverrides) Pricing {
	return Pricing{overrides: o.Overrides}
}

// LookupAt returns the pricing for a model at the given timestamp.
// If at is zero, the latest known pricing entry is used.
func (p Pricing) LookupAt(model string, at time.Time) (ModelPricing, bool) {
	normalized := NormalizeModelName(model)
	base, ok := lookupBase(normalized, at)
	if o, has := p.overrides[normalized]; has {
		return applyOverride(base, o), true
	}
	if o, has := p.overrides[model]; has {
		return applyOverride(base, o), true
	}
	return base, ok
}

// CostAt computes the estimated USD cost of one API call at a point in
// time. Unknown models cost zero.
func (p Pricing) CostAt(
	model string,
	at time.Time,
	inputTokens,
	outputTokens,
	cache5m,
	cache1h,
	cacheRead int64,
) decimal.Decimal {
	pricing, ok := p.LookupAt(model, at)
	if !ok {
		return decimal.Zero
	}

	// Standard context pricing; per-call context size is not recorded.
	cost := perMTok(inputTokens, pricing.InputPerMTok)
	cost = cost.Add(perMTok(outputTokens, pricing.OutputPerMTok))
	cost = cost.Add(perMTok(cache5m, pricing.CacheWrite5mPerMTok))
	cost = cost.Add(perMTok(cache1h, pricing.CacheWrite1hPerMTok))
	cost = cost.Add(perMTok(cacheRead, pricing.CacheReadPerMTok))
	return cost
}

// LookupPricingAt looks a model up in the built-in table.
func LookupPricingAt(model string, at time.Time) (ModelPricing, bool) {
	return Pricing{}.LookupAt(model, at)
}

func lookupBase(normalized string, at time.Time) (ModelPricing, bool) {
	versions, ok := defaultPricingHistory[normalized]
	if !ok || len(versions) == 0 {
		p, fallback := DefaultPricing[normalized]
		return p, fallback
	}

	if at.IsZero() {
		return versions[len(versions)-1].Pricing, true
	}

	at = at.UTC()
	selected := versions[0].Pricing
	for _, v := range versions {
		if v.EffectiveFrom.IsZero() || !at.Before(v.EffectiveFrom.UTC()) {
			selected = v.Pricing
			continue
		}
		break
	}
	return selected, true
}

var million = decimal.NewFromInt(1_000_000)

func applyOverride(p ModelPricing, o ModelPricingOverride) ModelPricing {
	if o.InputPerMTok != nil {
		p.InputPerMTok = *o.InputPerMTok
	}
	if o.OutputPerMTok != nil {
		p.OutputPerMTok = *o.OutputPerMTok
	}
	if o.CacheWrite5mPerMTok != nil {
		p.CacheWrite5mPerMTok = *o.CacheWrite5mPerMTok
	}
	if o.CacheWrite1hPerMTok != nil {
		p.CacheWrite1hPerMTok = *o.CacheWrite1hPerMTok
	}
	if o.CacheReadPerMTok != nil {
		p.CacheReadPerMTok = *o.CacheReadPerMTok
	}
	return p
}

// CalculateCostAt prices one API call against the built-in table.
func CalculateCostAt(
	model string,
	at time.Time,
	inputTokens,
	outputTokens,
	cache5m,
	cache1h,
	cacheRead int64,
) decimal.Decimal {
	return Pricing{}.CostAt(model, at, inputTokens, outputTokens, cache5m, cache1h, cacheRead)
}

func perMTok(tokens int64, price float64) decimal.Decimal {
	if tokens <= 0 || price == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(tokens).Mul(decimal.NewFromFloat(price)).Div(million)
}
