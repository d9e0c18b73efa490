package pipeline

import (
	"github.com/shopspring/decimal"

	"github.com/theirongolddev/tburn/internal/csvmerge"
	"github.com/theirongolddev/tburn/internal/model"
)

// CostSource selects where a week's cost comes from.
type CostSource int

// Cost sources in order of preference.
const (
	CostFromBilling CostSource = iota
	CostFromSessions
	CostUnavailable
)

func (s CostSource) String() string {
	switch s {
	case CostFromBilling:
		return "billing"
	case CostFromSessions:
		return "sessions"
	default:
		return "none"
	}
}

// costSourceFor prefers provider billing when any billing data was supplied.
func costSourceFor(sessions []csvmerge.SessionRecord, billing []csvmerge.BillingRow) CostSource {
	switch {
	case len(billing) > 0:
		return CostFromBilling
	case len(sessions) > 0:
		return CostFromSessions
	default:
		return CostUnavailable
	}
}

// WeekCost sums the cost rows dated inside w. Billing rows are matched by
// day, session rows by start time. It returns nil when no row falls in the
// week.
func WeekCost(w model.Week, src CostSource, sessions []csvmerge.SessionRecord, billing []csvmerge.BillingRow) *decimal.Decimal {
	var (
		sum   decimal.Decimal
		found bool
	)
	switch src {
	case CostFromBilling:
		for _, b := range billing {
			if w.Contains(b.Date) {
				sum = sum.Add(b.CostUSD)
				found = true
			}
		}
	case CostFromSessions:
		for _, s := range sessions {
			if !s.StartedAt.IsZero() && w.Contains(s.StartedAt) {
				sum = sum.Add(s.TotalCostUSD)
				found = true
			}
		}
	}
	if !found {
		return nil
	}
	return &sum
}
