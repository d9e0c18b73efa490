// Package metrics derives efficiency ratios from joined weekly data.
// Every ratio is nil when its denominator is zero or its inputs are
// missing; no ratio is ever reported as zero for lack of data.
package metrics

import (
	"math"

	"github.com/shopspring/decimal"

	"github.com/theirongolddev/tburn/internal/model"
)

// costPlaces is the rounding applied to derived USD ratios.
const costPlaces = 6

// Compute returns the derived metrics of one week.
func Compute(b model.WeeklyBucket) model.Derived {
	var d model.Derived

	if b.RatioStoryPoints > 0 && b.RatioTokens > 0 {
		d.TokensPerStoryPoint = roundedRatio(float64(b.RatioTokens), b.RatioStoryPoints)
	}
	if b.PRCount > 0 && b.TotalTokens > 0 {
		v := float64(b.LinesChanged) / float64(b.TotalTokens)
		d.LOCPerToken = &v
	}
	if b.FeaturePRCount > 0 && b.TotalTokens > 0 && b.AvgCycleTimeDays != nil && *b.AvgCycleTimeDays > 0 {
		perPR := float64(b.TotalTokens) / float64(b.FeaturePRCount)
		d.TokensPerCycleTime = roundedRatio(perPR, *b.AvgCycleTimeDays)
	}

	if b.Cost != nil {
		d.CostPerStoryPoint = costRatio(*b.Cost, decimal.NewFromFloat(b.TotalStoryPoints))
		d.CostPerPR = costRatio(*b.Cost, decimal.NewFromInt(int64(b.PRCount)))
		d.CostPerLOC = costRatio(*b.Cost, decimal.NewFromInt(b.LinesChanged))
	}
	return d
}

// ComputeTicket returns the derived metrics of one ticket within a week,
// using its transcript-estimated cost.
func ComputeTicket(e model.TicketEntry) model.Derived {
	var d model.Derived
	if !e.HasTokens || e.Tokens.Total <= 0 {
		return d
	}
	tokens := float64(e.Tokens.Total)

	if e.StoryPoints != nil && *e.StoryPoints > 0 {
		d.TokensPerStoryPoint = roundedRatio(tokens, *e.StoryPoints)
		d.CostPerStoryPoint = costRatio(e.EstimatedCost, decimal.NewFromFloat(*e.StoryPoints))
	}
	if e.PR.Number != 0 {
		v := float64(e.PR.LinesChanged) / tokens
		d.LOCPerToken = &v
		d.CostPerPR = costRatio(e.EstimatedCost, decimal.NewFromInt(1))
		d.CostPerLOC = costRatio(e.EstimatedCost, decimal.NewFromInt(e.PR.LinesChanged))
		if days, ok := e.PR.CycleTimeDays(); ok && e.PR.Feature {
			d.TokensPerCycleTime = roundedRatio(tokens, days)
		}
	}
	return d
}

func roundedRatio(num, den float64) *int64 {
	if den <= 0 || math.IsNaN(num) || math.IsInf(num, 0) {
		return nil
	}
	v := int64(math.Round(num / den))
	return &v
}

func costRatio(cost, den decimal.Decimal) *decimal.Decimal {
	if !den.IsPositive() {
		return nil
	}
	v := cost.DivRound(den, costPlaces)
	return &v
}
