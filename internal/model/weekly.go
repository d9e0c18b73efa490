package model

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/theirongolddev/tburn/internal/ticket"
)

// Week is one configured reporting interval. Start and End are calendar
// dates; the interval is closed and End covers its whole day.
type Week struct {
	Name  string    `json:"name"`
	Label string    `json:"label"`
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// EndOfDay returns the last instant covered by the week: End at 23:59:59.999.
func (w Week) EndOfDay() time.Time {
	y, m, d := w.End.Date()
	return time.Date(y, m, d, 23, 59, 59, int(999*time.Millisecond), w.End.Location())
}

// StartOfDay returns Start at 00:00:00.000.
func (w Week) StartOfDay() time.Time {
	y, m, d := w.Start.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, w.Start.Location())
}

// Contains reports whether t falls inside the closed week interval.
func (w Week) Contains(t time.Time) bool {
	return !t.Before(w.StartOfDay()) && !t.After(w.EndOfDay())
}

// PRLink ties a merged pull request to the ticket it delivered.
type PRLink struct {
	Ticket       ticket.ID `json:"ticket"`
	Number       int       `json:"number"`
	Title        string    `json:"title"`
	Branch       string    `json:"branch"`
	CreatedAt    time.Time `json:"created_at"`
	MergedAt     time.Time `json:"merged_at"`
	LinesChanged int64     `json:"lines_changed"`
	Feature      bool      `json:"feature"`
}

// CycleTimeDays returns merge minus creation in days, or false when unknown.
func (l PRLink) CycleTimeDays() (float64, bool) {
	if l.CreatedAt.IsZero() || l.MergedAt.IsZero() || l.MergedAt.Before(l.CreatedAt) {
		return 0, false
	}
	return l.MergedAt.Sub(l.CreatedAt).Hours() / 24, true
}

// TicketEntry is one ticket's contribution to a week.
type TicketEntry struct {
	Ticket      ticket.ID   `json:"ticket"`
	PR          PRLink      `json:"pr"`
	Tokens      TokenTotals `json:"tokens"`
	HasTokens   bool        `json:"has_tokens"`
	StoryPoints *float64    `json:"story_points,omitempty"`

	// EstimatedCost is priced from the transcripts, not billed.
	EstimatedCost decimal.Decimal `json:"estimated_cost_usd"`
	Derived       Derived         `json:"derived"`
}

// WeeklyBucket is the joined, derived metrics record for one week.
type WeeklyBucket struct {
	Week    Week          `json:"week"`
	Tickets []TicketEntry `json:"tickets"`

	TotalTokens      int64   `json:"total_tokens"`
	TotalStoryPoints float64 `json:"total_story_points"`
	// RatioTokens and RatioStoryPoints only count tickets that have both
	// tokens and story points.
	RatioTokens      int64   `json:"ratio_tokens"`
	RatioStoryPoints float64 `json:"ratio_story_points"`

	PRCount          int      `json:"pr_count"`
	FeaturePRCount   int      `json:"feature_pr_count"`
	LinesChanged     int64    `json:"lines_changed"`
	AvgCycleTimeDays *float64 `json:"avg_cycle_time_days,omitempty"`

	Cost          *decimal.Decimal `json:"cost_usd,omitempty"`
	EstimatedCost decimal.Decimal  `json:"estimated_cost_usd"`

	Derived Derived `json:"derived"`
}

// Derived holds ratio metrics. A nil field means insufficient data.
type Derived struct {
	TokensPerStoryPoint *int64           `json:"tokens_per_story_point,omitempty"`
	LOCPerToken         *float64         `json:"loc_per_token,omitempty"`
	TokensPerCycleTime  *int64           `json:"tokens_per_cycle_time,omitempty"`
	CostPerStoryPoint   *decimal.Decimal `json:"cost_per_story_point,omitempty"`
	CostPerPR           *decimal.Decimal `json:"cost_per_pr,omitempty"`
	CostPerLOC          *decimal.Decimal `json:"cost_per_loc,omitempty"`
}
