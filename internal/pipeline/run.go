package pipeline

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"time"

	"github.com/theirongolddev/tburn/internal/csvmerge"
	"github.com/theirongolddev/tburn/internal/github"
	"github.com/theirongolddev/tburn/internal/model"
	"github.com/theirongolddev/tburn/internal/ticket"
)

// PRSource lists merged pull requests.
type PRSource interface {
	MergedPullRequests(ctx context.Context, since, until time.Time) ([]github.PullRequest, error)
}

// StoryPointSource looks up estimates by ticket id.
type StoryPointSource interface {
	StoryPoints(ctx context.Context, ids []ticket.ID) (map[ticket.ID]float64, error)
}

// DefaultMergeLookahead is how far past the last week merged PRs are
// still fetched, so work opened in a week but merged later is linked.
const DefaultMergeLookahead = 14 * 24 * time.Hour

// Runner joins loaded token totals with external sources. Nil sources are
// treated as unavailable.
type Runner struct {
	PRs            PRSource
	Points         StoryPointSource
	Extractor      Extractor
	Logger         *slog.Logger
	MergeLookahead time.Duration
}

// RunInput is the locally available data for one report.
type RunInput struct {
	Totals   model.Totals
	Weeks    []model.Week
	Sessions []csvmerge.SessionRecord
	Billing  []csvmerge.BillingRow
	Inputs   InputStats
}

// InputStats counts what was read, deduplicated and excluded while
// gathering a report's inputs.
type InputStats struct {
	Transcripts        int `json:"transcripts"`
	ParsedFiles        int `json:"parsed_files"`
	FileErrors         int `json:"file_errors"`
	ParseErrors        int `json:"parse_errors"`
	SessionRecords     int `json:"session_records"`
	SessionDuplicates  int `json:"session_duplicates"`
	SessionRowsSkipped int `json:"session_rows_skipped"`
	ExportsSkipped     int `json:"exports_skipped"`
	BillingRows        int `json:"billing_rows"`
	BillingRowsSkipped int `json:"billing_rows_skipped"`
}

// Report is the full weekly report.
type Report struct {
	JoinResult
	Links []model.PRLink `json:"-"`
	// Warnings lists sources that failed; their fields are left empty.
	Warnings []string   `json:"warnings,omitempty"`
	Inputs   InputStats `json:"inputs"`
}

// Run fetches pull requests and story points, then joins them with the
// token totals. A failing external source is logged and skipped; only
// invalid weeks fail the run.
func (r *Runner) Run(ctx context.Context, in RunInput) (*Report, error) {
	log := r.Logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	weeks, err := ValidateWeeks(in.Weeks)
	if err != nil {
		return nil, err
	}
	report := &Report{Inputs: in.Inputs}

	if r.PRs == nil {
		report.warn(log, "pull requests unavailable: no source configured")
	} else {
		lookahead := r.MergeLookahead
		if lookahead == 0 {
			lookahead = DefaultMergeLookahead
		}
		since := weeks[0].StartOfDay()
		until := weeks[len(weeks)-1].EndOfDay().Add(lookahead)

		prs, err := r.PRs.MergedPullRequests(ctx, since, until)
		if err != nil {
			report.warn(log, "pull requests unavailable", "err", err)
		} else {
			ex := r.Extractor
			if ex == nil {
				ex = ticket.NewExtractor(nil, ticket.DefaultCorrections())
			}
			report.Links = LinkPullRequests(prs, ex)
			log.Debug("linked pull requests", "fetched", len(prs), "linked", len(report.Links))
		}
	}

	var points map[ticket.ID]float64
	if ids := pointIDs(report.Links); len(ids) > 0 {
		if r.Points == nil {
			report.warn(log, "story points unavailable: no source configured")
		} else if points, err = r.Points.StoryPoints(ctx, ids); err != nil {
			report.warn(log, "story points unavailable", "err", err)
			points = nil
		} else {
			log.Debug("fetched story points", "requested", len(ids), "found", len(points))
		}
	}

	report.JoinResult, err = JoinWeeks(JoinInput{
		Links:       report.Links,
		Totals:      in.Totals,
		StoryPoints: points,
		Weeks:       weeks,
		Sessions:    in.Sessions,
		Billing:     in.Billing,
	})
	if err != nil {
		return nil, err
	}
	for _, b := range report.Buckets {
		log.Info("week joined", "week", b.Week.Name, "tickets", len(b.Tickets), "tokens", b.TotalTokens)
	}
	return report, nil
}

func (rep *Report) warn(log *slog.Logger, msg string, args ...any) {
	log.Warn(msg, args...)
	for i := 0; i+1 < len(args); i += 2 {
		if err, ok := args[i+1].(error); ok {
			msg += ": " + err.Error()
		}
	}
	rep.Warnings = append(rep.Warnings, msg)
}

// pointIDs returns the sorted tickets that need an estimate.
func pointIDs(links []model.PRLink) []ticket.ID {
	ids := make([]ticket.ID, 0, len(links))
	for _, l := range links {
		ids = append(ids, l.Ticket)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
