// Package report exports a weekly report as JSON, Parquet tables, or a
// standalone HTML page with charts.
package report

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/theirongolddev/tburn/internal/model"
	"github.com/theirongolddev/tburn/internal/pipeline"
)

// WeekRow is one week of the report flattened for tabular export.
type WeekRow struct {
	Week  string    `parquet:"week,snappy"`
	Label string    `parquet:"label,snappy"`
	Start time.Time `parquet:"start,snappy"`
	End   time.Time `parquet:"end,snappy"`

	TotalTokens      int64   `parquet:"total_tokens,snappy"`
	TotalStoryPoints float64 `parquet:"total_story_points,snappy"`
	TicketCount      int32   `parquet:"ticket_count,snappy"`
	PRCount          int32   `parquet:"pr_count,snappy"`
	FeaturePRCount   int32   `parquet:"feature_pr_count,snappy"`
	LinesChanged     int64   `parquet:"lines_changed,snappy"`

	// AvgCycleTimeDays is null when no PR in the week has both timestamps.
	AvgCycleTimeDays *float64 `parquet:"avg_cycle_time_days,optional,snappy"`
	CostUSD          *float64 `parquet:"cost_usd,optional,snappy"`
	EstimatedCostUSD float64  `parquet:"estimated_cost_usd,snappy"`

	TokensPerStoryPoint *int64   `parquet:"tokens_per_story_point,optional,snappy"`
	LOCPerToken         *float64 `parquet:"loc_per_token,optional,snappy"`
	TokensPerCycleTime  *int64   `parquet:"tokens_per_cycle_time,optional,snappy"`
	CostPerStoryPoint   *float64 `parquet:"cost_per_story_point,optional,snappy"`
	CostPerPR           *float64 `parquet:"cost_per_pr,optional,snappy"`
	CostPerLOC          *float64 `parquet:"cost_per_loc,optional,snappy"`
}

// TicketRow is one ticket within one week.
type TicketRow struct {
	Week     string    `parquet:"week,snappy"`
	Ticket   string    `parquet:"ticket,snappy"`
	PR       int32     `parquet:"pr_number,snappy"`
	Title    string    `parquet:"pr_title,snappy"`
	Branch   string    `parquet:"pr_branch,snappy"`
	Created  time.Time `parquet:"pr_created_at,snappy"`
	Merged   time.Time `parquet:"pr_merged_at,snappy"`
	Feature  bool      `parquet:"feature,snappy"`
	LinesChg int64     `parquet:"lines_changed,snappy"`

	TotalTokens         int64 `parquet:"total_tokens,snappy"`
	InputTokens         int64 `parquet:"input_tokens,snappy"`
	OutputTokens        int64 `parquet:"output_tokens,snappy"`
	CacheCreationTokens int64 `parquet:"cache_creation_tokens,snappy"`
	CacheReadTokens     int64 `parquet:"cache_read_tokens,snappy"`
	ReasoningTokens     int64 `parquet:"reasoning_tokens,snappy"`

	StoryPoints         *float64 `parquet:"story_points,optional,snappy"`
	EstimatedCostUSD    float64  `parquet:"estimated_cost_usd,snappy"`
	TokensPerStoryPoint *int64   `parquet:"tokens_per_story_point,optional,snappy"`
	LOCPerToken         *float64 `parquet:"loc_per_token,optional,snappy"`
}

// WeekRows flattens the report's buckets in week order.
func WeekRows(rep *pipeline.Report) []WeekRow {
	rows := make([]WeekRow, 0, len(rep.Buckets))
	for _, b := range rep.Buckets {
		rows = append(rows, WeekRow{
			Week:                b.Week.Name,
			Label:               b.Week.Label,
			Start:               b.Week.StartOfDay(),
			End:                 b.Week.EndOfDay(),
			TotalTokens:         b.TotalTokens,
			TotalStoryPoints:    b.TotalStoryPoints,
			TicketCount:         int32(len(b.Tickets)),
			PRCount:             int32(b.PRCount),
			FeaturePRCount:      int32(b.FeaturePRCount),
			LinesChanged:        b.LinesChanged,
			AvgCycleTimeDays:    b.AvgCycleTimeDays,
			CostUSD:             floatPtr(b.Cost),
			EstimatedCostUSD:    b.EstimatedCost.InexactFloat64(),
			TokensPerStoryPoint: b.Derived.TokensPerStoryPoint,
			LOCPerToken:         b.Derived.LOCPerToken,
			TokensPerCycleTime:  b.Derived.TokensPerCycleTime,
			CostPerStoryPoint:   floatPtr(b.Derived.CostPerStoryPoint),
			CostPerPR:           floatPtr(b.Derived.CostPerPR),
			CostPerLOC:          floatPtr(b.Derived.CostPerLOC),
		})
	}
	return rows
}

// TicketRows flattens every week's tickets, week by week.
func TicketRows(rep *pipeline.Report) []TicketRow {
	var rows []TicketRow
	for _, b := range rep.Buckets {
		for _, e := range b.Tickets {
			rows = append(rows, ticketRow(b.Week, e))
		}
	}
	return rows
}

func ticketRow(w model.Week, e model.TicketEntry) TicketRow {
	return TicketRow{
		Week:                w.Name,
		Ticket:              e.Ticket.String(),
		PR:                  int32(e.PR.Number),
		Title:               e.PR.Title,
		Branch:              e.PR.Branch,
		Created:             e.PR.CreatedAt,
		Merged:              e.PR.MergedAt,
		Feature:             e.PR.Feature,
		LinesChg:            e.PR.LinesChanged,
		TotalTokens:         e.Tokens.Total,
		InputTokens:         e.Tokens.Input,
		OutputTokens:        e.Tokens.Output,
		CacheCreationTokens: e.Tokens.CacheCreation,
		CacheReadTokens:     e.Tokens.CacheRead,
		ReasoningTokens:     e.Tokens.Reasoning,
		StoryPoints:         e.StoryPoints,
		EstimatedCostUSD:    e.EstimatedCost.InexactFloat64(),
		TokensPerStoryPoint: e.Derived.TokensPerStoryPoint,
		LOCPerToken:         e.Derived.LOCPerToken,
	}
}

func floatPtr(d *decimal.Decimal) *float64 {
	if d == nil {
		return nil
	}
	f := d.InexactFloat64()
	return &f
}
