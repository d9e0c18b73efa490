package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/theirongolddev/tburn/internal/cli"
	"github.com/theirongolddev/tburn/internal/pipeline"
	"github.com/theirongolddev/tburn/internal/ticket"
)

var (
	flagTicketKey   string
	flagTicketLimit int
)

var ticketsCmd = &cobra.Command{
	Use:   "tickets",
	Short: "Token usage per ticket across all transcripts",
	RunE:  runTickets,
}

func init() {
	ticketsCmd.Flags().StringVarP(&flagTicketKey, "key", "k", "", "Only tickets of this project key (e.g. VIBE)")
	ticketsCmd.Flags().IntVarP(&flagTicketLimit, "limit", "n", 30, "Maximum rows (0 for all)")
	rootCmd.AddCommand(ticketsCmd)
}

func runTickets(_ *cobra.Command, _ []string) error {
	result, err := loadData()
	if err != nil {
		return err
	}
	if result.TotalFiles == 0 {
		fmt.Println("\n  No transcripts found.")
		return nil
	}

	totals := pipeline.FilterByTicketProject(result.Totals, flagTicketKey)
	rows := pipeline.SummarizeTickets(totals)
	overall := pipeline.Overall(totals)

	fmt.Println()
	fmt.Println(cli.RenderTitle("TOKENS PER TICKET"))
	fmt.Println()

	shown := rows
	if flagTicketLimit > 0 && len(shown) > flagTicketLimit {
		shown = shown[:flagTicketLimit]
	}

	table := make([][]string, 0, len(shown)+2)
	for _, r := range shown {
		share := 0.0
		if overall.Tokens.Total > 0 {
			share = float64(r.Tokens.Total) / float64(overall.Tokens.Total)
		}
		name := r.Ticket.String()
		if r.Ticket == ticket.Unattributed {
			name = "(unattributed)"
		}
		table = append(table, []string{
			name,
			cli.FormatNumber(int64(r.Sessions)),
			cli.FormatNumber(int64(r.APICalls)),
			cli.FormatTokens(r.Tokens.Input),
			cli.FormatTokens(r.Tokens.Output),
			cli.FormatTokens(r.Tokens.CacheRead + r.Tokens.CacheCreation),
			cli.FormatTokens(r.Tokens.Total),
			cli.FormatPercent(share),
			cli.FormatCost(r.EstimatedCost),
		})
	}
	table = append(table, cli.SeparatorRow, []string{
		fmt.Sprintf("total (%d tickets)", len(rows)),
		cli.FormatNumber(int64(len(overall.Sessions))),
		cli.FormatNumber(int64(overall.APICalls)),
		cli.FormatTokens(overall.Tokens.Input),
		cli.FormatTokens(overall.Tokens.Output),
		cli.FormatTokens(overall.Tokens.CacheRead + overall.Tokens.CacheCreation),
		cli.FormatTokens(overall.Tokens.Total),
		cli.FormatPercent(1),
		cli.FormatCost(overall.EstimatedCost),
	})

	fmt.Print(cli.RenderTable(cli.Table{
		Headers: []string{"Ticket", "Sessions", "Calls", "Input", "Output", "Cache", "Total", "Share", "Est. cost"},
		Rows:    table,
	}))

	fmt.Println()
	fmt.Print(cli.RenderKeyValues([][2]string{
		{"Transcripts", fmt.Sprintf("%s parsed, %d unreadable", cli.FormatNumber(int64(result.ParsedFiles)), result.FileErrors)},
		{"Prompts", cli.FormatNumber(int64(result.UserMessages))},
		{"Compactions", cli.FormatNumber(int64(result.Compactions))},
		{"Malformed lines", cli.FormatNumber(int64(result.ParseErrors))},
	}))
	return nil
}
