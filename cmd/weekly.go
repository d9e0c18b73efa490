package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/theirongolddev/tburn/internal/cli"
	"github.com/theirongolddev/tburn/internal/config"
	"github.com/theirongolddev/tburn/internal/csvmerge"
	"github.com/theirongolddev/tburn/internal/github"
	"github.com/theirongolddev/tburn/internal/jira"
	"github.com/theirongolddev/tburn/internal/model"
	"github.com/theirongolddev/tburn/internal/pipeline"
	"github.com/theirongolddev/tburn/internal/ratelimit"
	"github.com/theirongolddev/tburn/internal/report"
	"github.com/theirongolddev/tburn/internal/store"
)

var (
	flagSessions []string
	flagBilling  string
	flagJSON     bool
	flagDetail   bool
)

// errNoWeeks is returned when no [[weeks]] are configured.
var errNoWeeks = errors.New("no [[weeks]] configured (run `tburn setup` or edit the config file)")

var weeklyCmd = &cobra.Command{
	Use:   "weekly",
	Short: "Weekly report: tokens per ticket joined with PRs and story points",
	RunE:  runWeekly,
}

func init() {
	registerReportFlags(weeklyCmd)
	rootCmd.AddCommand(weeklyCmd)
}

func registerReportFlags(c *cobra.Command) {
	c.Flags().StringArrayVar(&flagSessions, "sessions", nil, "Session CSV export (repeatable, glob allowed)")
	c.Flags().StringVar(&flagBilling, "billing", "", "Billing CSV export for weekly cost")
	c.Flags().BoolVar(&flagJSON, "json", false, "Print the report as JSON")
	c.Flags().BoolVar(&flagDetail, "detail", false, "Show per-ticket rows for each week")
}

func runWeekly(cmd *cobra.Command, _ []string) error {
	rep, err := buildReport(cmd.Context())
	if err != nil {
		return err
	}
	if flagJSON {
		return report.WriteJSON(os.Stdout, rep)
	}
	renderWeekly(rep)
	return nil
}

// buildReport loads transcripts and exports, then runs the weekly join.
func buildReport(ctx context.Context) (*pipeline.Report, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	loc, err := config.Location(appCfg)
	if err != nil {
		return nil, err
	}
	weeks, err := config.ParseWeeks(appCfg.Weeks, loc)
	if err != nil {
		return nil, err
	}
	if len(weeks) == 0 {
		return nil, errNoWeeks
	}

	result, err := loadData()
	if err != nil {
		return nil, err
	}

	stats := pipeline.InputStats{
		Transcripts: result.TotalFiles,
		ParsedFiles: result.ParsedFiles,
		FileErrors:  result.FileErrors,
		ParseErrors: result.ParseErrors,
	}
	sessions := loadSessions(&stats)
	billing := loadBilling(loc, &stats)

	runner, closeFn := newRunner()
	defer closeFn()

	return runner.Run(ctx, pipeline.RunInput{
		Totals:   result.Totals,
		Weeks:    weeks,
		Sessions: sessions,
		Billing:  billing,
		Inputs:   stats,
	})
}

// newRunner wires the configured PR and story point sources. The returned
// func releases the PR cache.
func newRunner() (*pipeline.Runner, func()) {
	r := &pipeline.Runner{Extractor: extractor(), Logger: logger}
	closeFn := func() {}

	gh := appCfg.GitHub
	if gh.Repo != "" {
		opts := []github.Option{github.WithGate(ratelimit.New(gh.RequestInterval.Duration))}
		if gh.BaseURL != "" {
			opts = append(opts, github.WithBaseURL(gh.BaseURL))
		}
		client, err := github.NewClient(config.GetGitHubToken(appCfg), gh.Repo, opts...)
		if err != nil {
			logger.Warn("github disabled", "err", err)
		} else {
			var backend github.Backend
			if !flagNoCache {
				if c, err := store.Open(pipeline.CachePath()); err == nil {
					backend = c
					closeFn = func() { _ = c.Close() }
				} else {
					logger.Warn("pull request cache unavailable", "err", err)
				}
			}
			r.PRs = github.NewCache(client, backend,
				github.WithTTL(gh.CacheTTL.Duration),
				github.WithNamespace(client.Repo()),
			)
		}
	}

	jc := appCfg.JIRA
	if c := jira.NewClient(jc.BaseURL, config.GetJIRAEmail(appCfg), config.GetJIRAToken(appCfg), jc.StoryPointField,
		jira.WithGate(ratelimit.New(jc.RequestInterval.Duration))); c != nil {
		r.Points = c
	}
	return r, closeFn
}

// loadSessions merges every configured session export. Unreadable or
// mismatched files are logged, skipped and counted in stats.
func loadSessions(stats *pipeline.InputStats) []csvmerge.SessionRecord {
	paths := expandPaths(append(append([]string(nil), appCfg.Exports.Sessions...), flagSessions...))
	if len(paths) == 0 {
		return nil
	}
	sources, closeAll := openSources(paths)
	defer closeAll()

	res := csvmerge.MergeSessions(sources)
	logMerge("sessions", res.Duplicates, res.ParseErrors, res.SchemaErrors, res.ReadErrors)

	stats.SessionRecords = len(res.Records)
	stats.SessionDuplicates = res.Duplicates
	stats.SessionRowsSkipped = res.ParseErrors
	stats.ExportsSkipped += len(paths) - len(sources) + len(res.SchemaErrors)
	return res.Records
}

func loadBilling(loc *time.Location, stats *pipeline.InputStats) []csvmerge.BillingRow {
	path := flagBilling
	if path == "" {
		path = appCfg.Exports.Billing
	}
	if path == "" {
		return nil
	}
	f, err := os.Open(path)
	if err != nil {
		logger.Warn("billing export unavailable", "path", path, "err", err)
		stats.ExportsSkipped++
		return nil
	}
	defer func() { _ = f.Close() }()

	rows, parseErrors, err := csvmerge.ReadBilling(f, loc)
	if err != nil {
		logger.Warn("billing export unreadable", "path", path, "err", err)
		stats.ExportsSkipped++
		return nil
	}
	if parseErrors > 0 {
		logger.Warn("billing rows skipped", "path", path, "rows", parseErrors)
	}
	stats.BillingRows = len(rows)
	stats.BillingRowsSkipped = parseErrors
	return rows
}

// expandPaths resolves glob patterns, keeping literal paths that match
// nothing so the open error is reported.
func expandPaths(patterns []string) []string {
	var out []string
	for _, p := range patterns {
		matches, err := filepath.Glob(p)
		if err != nil || len(matches) == 0 {
			out = append(out, p)
			continue
		}
		out = append(out, matches...)
	}
	return out
}

func openSources(paths []string) ([]csvmerge.Source, func()) {
	var (
		sources []csvmerge.Source
		files   []*os.File
	)
	for _, p := range paths {
		f, err := os.Open(p)
		if err != nil {
			logger.Warn("export unavailable", "path", p, "err", err)
			continue
		}
		files = append(files, f)
		sources = append(sources, csvmerge.Source{Name: p, Reader: f})
	}
	return sources, func() {
		for _, f := range files {
			_ = f.Close()
		}
	}
}

func logMerge(kind string, dups, parseErrors int, schemaErrs []*csvmerge.SchemaError, readErrs []error) {
	for _, e := range schemaErrs {
		logger.Warn("export skipped", "kind", kind, "err", e)
	}
	for _, e := range readErrs {
		logger.Warn("export partially read", "kind", kind, "err", e)
	}
	if parseErrors > 0 {
		logger.Warn("malformed export rows skipped", "kind", kind, "rows", parseErrors)
	}
	logger.Info("exports merged", "kind", kind, "duplicates", dups)
}

func renderWeekly(rep *pipeline.Report) {
	fmt.Println()
	fmt.Println(cli.RenderTitle("TOKENS PER TICKET  Weekly"))
	fmt.Println()

	rows := make([][]string, 0, len(rep.Buckets))
	trend := make([]float64, 0, len(rep.Buckets))
	for _, b := range rep.Buckets {
		rows = append(rows, []string{
			b.Week.Name,
			b.Week.Label,
			cli.FormatTokens(b.TotalTokens),
			cli.FormatPoints(b.TotalStoryPoints),
			cli.FormatOptionalInt(b.Derived.TokensPerStoryPoint),
			fmt.Sprintf("%d/%d", b.FeaturePRCount, b.PRCount),
			cli.FormatNumber(b.LinesChanged),
			cli.FormatOptionalFloat(b.AvgCycleTimeDays, 1),
			cli.FormatOptionalCost(b.Cost),
		})
		trend = append(trend, float64(b.TotalTokens))
	}

	fmt.Print(cli.RenderTable(cli.Table{
		Headers: []string{"Week", "Dates", "Tokens", "Points", "Tok/Pt", "Feat/PRs", "LOC", "Cycle(d)", "Cost"},
		Rows:    rows,
	}))

	if flagDetail {
		for _, b := range rep.Buckets {
			renderWeekTickets(b)
		}
	}

	fmt.Println()
	fmt.Print(cli.RenderKeyValues([][2]string{
		{"Trend", cli.RenderSparkline(trend)},
		{"Unattributed", cli.FormatTokens(rep.Unattributed.Total)},
		{"No merged PR", listTickets(rep.NoMergedPR)},
		{"Outside weeks", listTickets(rep.OutsideWeeks)},
		{"Cost source", rep.CostSource},
	}))

	in := rep.Inputs
	fmt.Println()
	fmt.Print(cli.RenderKeyValues([][2]string{
		{"Transcripts", fmt.Sprintf("%s parsed of %s", cli.FormatNumber(int64(in.ParsedFiles)), cli.FormatNumber(int64(in.Transcripts)))},
		{"Unreadable files", cli.FormatNumber(int64(in.FileErrors))},
		{"Malformed lines", cli.FormatNumber(int64(in.ParseErrors))},
		{"Session rows", fmt.Sprintf("%s kept, %s duplicate, %s malformed",
			cli.FormatNumber(int64(in.SessionRecords)),
			cli.FormatNumber(int64(in.SessionDuplicates)),
			cli.FormatNumber(int64(in.SessionRowsSkipped)))},
		{"Billing rows", fmt.Sprintf("%s kept, %s malformed",
			cli.FormatNumber(int64(in.BillingRows)),
			cli.FormatNumber(int64(in.BillingRowsSkipped)))},
		{"Exports skipped", cli.FormatNumber(int64(in.ExportsSkipped))},
	}))
	if len(rep.Warnings) > 0 && !flagQuiet {
		fmt.Println()
		fmt.Print(cli.RenderWarnings(rep.Warnings))
	}
}

func renderWeekTickets(b model.WeeklyBucket) {
	if len(b.Tickets) == 0 {
		return
	}
	rows := make([][]string, 0, len(b.Tickets))
	for _, e := range b.Tickets {
		points := cli.NotAvailable
		if e.StoryPoints != nil {
			points = cli.FormatPoints(*e.StoryPoints)
		}
		kind := "fix"
		if e.PR.Feature {
			kind = "feat"
		}
		rows = append(rows, []string{
			e.Ticket.String(),
			fmt.Sprintf("#%d %s", e.PR.Number, kind),
			cli.FormatTokens(e.Tokens.Total),
			points,
			cli.FormatOptionalInt(e.Derived.TokensPerStoryPoint),
			cli.FormatNumber(e.PR.LinesChanged),
			cli.FormatCost(e.EstimatedCost),
		})
	}
	fmt.Println()
	fmt.Print(cli.RenderTable(cli.Table{
		Title:   fmt.Sprintf("%s  %s", b.Week.Name, b.Week.Label),
		Headers: []string{"Ticket", "PR", "Tokens", "Points", "Tok/Pt", "LOC", "Est. cost"},
		Rows:    rows,
	}))
}

func listTickets[T fmt.Stringer](ids []T) string {
	if len(ids) == 0 {
		return "none"
	}
	const limit = 8
	parts := make([]string, 0, min(len(ids), limit))
	for i, id := range ids {
		if i == limit {
			parts = append(parts, fmt.Sprintf("+%d more", len(ids)-limit))
			break
		}
		parts = append(parts, id.String())
	}
	return strings.Join(parts, ", ")
}
