package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/theirongolddev/tburn/internal/cli"
	"github.com/theirongolddev/tburn/internal/config"
	"github.com/theirongolddev/tburn/internal/github"
	"github.com/theirongolddev/tburn/internal/jira"
	"github.com/theirongolddev/tburn/internal/pipeline"
	"github.com/theirongolddev/tburn/internal/source"
	"github.com/theirongolddev/tburn/internal/store"
	"github.com/theirongolddev/tburn/internal/ticket"
)

var flagStatusTicket string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check transcripts, cache, and external sources",
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&flagStatusTicket, "ticket", "", "Ticket to look up in JIRA as a probe")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, _ []string) error {
	fmt.Println()
	fmt.Println(cli.RenderTitle("TBURN STATUS"))
	fmt.Println()

	dir := transcriptsDir()
	files, err := source.ScanDir(dir)
	transcripts := fmt.Sprintf("%s files, %d projects", cli.FormatNumber(int64(len(files))), source.CountProjects(files))
	if err != nil {
		transcripts = "error: " + err.Error()
	}

	pairs := [][2]string{
		{"Config", configStatus()},
		{"Transcripts", dir},
		{"", transcripts},
		{"Weeks", fmt.Sprintf("%d configured", len(appCfg.Weeks))},
		{"Cache", cacheStatus()},
	}
	fmt.Print(cli.RenderKeyValues(pairs))
	fmt.Println()

	if !flagQuiet {
		fmt.Fprintf(os.Stderr, "  Probing external sources...\n")
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	runner, closeFn := newRunner()
	defer closeFn()

	fmt.Print(cli.RenderTable(cli.Table{
		Title:   "Sources",
		Headers: []string{"Source", "Target", "Status"},
		Rows: [][]string{
			{"GitHub", orNone(appCfg.GitHub.Repo), probePRs(ctx, runner.PRs)},
			{"JIRA", orNone(appCfg.JIRA.BaseURL), probePoints(ctx, runner.Points)},
		},
	}))
	fmt.Println()
	return nil
}

func configStatus() string {
	if config.Exists() {
		return config.ConfigPath()
	}
	return config.ConfigPath() + " (defaults, not written)"
}

func cacheStatus() string {
	path := pipeline.CachePath()
	info, err := os.Stat(path)
	if err != nil {
		return "empty"
	}
	c, err := store.Open(path)
	if err != nil {
		return "unreadable: " + err.Error()
	}
	defer func() { _ = c.Close() }()

	n, _ := c.FileCount()
	return fmt.Sprintf("%s transcripts, %s, updated %s",
		cli.FormatNumber(int64(n)), cli.FormatBytes(info.Size()), cli.FormatAge(info.ModTime()))
}

func probePRs(ctx context.Context, src pipeline.PRSource) string {
	if src == nil {
		return "not configured"
	}
	until := time.Now()
	prs, err := src.MergedPullRequests(ctx, until.AddDate(0, 0, -7), until)
	switch {
	case errors.Is(err, github.ErrUnauthorized):
		return "token rejected (set GITHUB_TOKEN or run `tburn setup`)"
	case errors.Is(err, github.ErrRateLimited):
		return "rate limited, try again later"
	case err != nil:
		return "error: " + err.Error()
	}
	return fmt.Sprintf("ok, %d PRs merged in 7d", len(prs))
}

func probePoints(ctx context.Context, src pipeline.StoryPointSource) string {
	if src == nil {
		return "not configured"
	}
	id, ok := ticket.Parse(flagStatusTicket)
	if !ok {
		return "configured (pass --ticket to probe)"
	}
	points, err := src.StoryPoints(ctx, []ticket.ID{id})
	switch {
	case errors.Is(err, jira.ErrUnauthorized):
		return "credentials rejected (check JIRA_EMAIL and JIRA_API_TOKEN)"
	case errors.Is(err, jira.ErrRateLimited):
		return "rate limited, try again later"
	case err != nil:
		return "error: " + err.Error()
	}
	if p, found := points[id]; found {
		return fmt.Sprintf("ok, %s = %s points", id, cli.FormatPoints(p))
	}
	return fmt.Sprintf("ok, %s has no estimate", id)
}

func orNone(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
