// Package pipeline orchestrates transcript loading, caching, and the weekly
// join of token usage with pull requests and story points.
package pipeline

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/theirongolddev/tburn/internal/model"
	"github.com/theirongolddev/tburn/internal/source"
	"github.com/theirongolddev/tburn/internal/ticket"
)

// MergeAll folds per-file totals into one global map. The inputs are not
// modified. Files with a read error are skipped.
func MergeAll(results []source.ParseResult) model.Totals {
	global := model.Totals{}
	for _, r := range results {
		if r.Err != nil {
			continue
		}
		global.Merge(r.Totals)
	}
	return global
}

// TicketRow is one line of the per-ticket usage summary.
type TicketRow struct {
	Ticket        ticket.ID
	Tokens        model.TokenTotals
	APICalls      int
	Sessions      int
	EstimatedCost decimal.Decimal
}

// SummarizeTickets flattens totals into rows ordered by token total
// descending, then ticket id.
func SummarizeTickets(totals model.Totals) []TicketRow {
	rows := make([]TicketRow, 0, len(totals))
	for id, tu := range totals {
		rows = append(rows, TicketRow{
			Ticket:        id,
			Tokens:        tu.Tokens,
			APICalls:      tu.APICalls,
			Sessions:      len(tu.Sessions),
			EstimatedCost: tu.EstimatedCost,
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Tokens.Total != rows[j].Tokens.Total {
			return rows[i].Tokens.Total > rows[j].Tokens.Total
		}
		return rows[i].Ticket < rows[j].Ticket
	})
	return rows
}

// Overall sums every ticket, including Unattributed.
func Overall(totals model.Totals) model.TicketUsage {
	var sum model.TicketUsage
	for _, tu := range totals {
		sum.Merge(*tu)
	}
	return sum
}

// FilterByProject returns files whose project matches the substring.
func FilterByProject(files []source.DiscoveredFile, project string) []source.DiscoveredFile {
	if project == "" {
		return files
	}
	var result []source.DiscoveredFile
	for _, f := range files {
		if containsIgnoreCase(f.Project, project) {
			result = append(result, f)
		}
	}
	return result
}

// FilterByTicketProject keeps only tickets of the given project key,
// plus Unattributed.
func FilterByTicketProject(totals model.Totals, key string) model.Totals {
	if key == "" {
		return totals
	}
	out := model.Totals{}
	for id, tu := range totals {
		if id == ticket.Unattributed || strings.EqualFold(id.Project(), key) {
			out[id] = tu
		}
	}
	return out
}

func containsIgnoreCase(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
