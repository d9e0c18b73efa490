package pipeline

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/theirongolddev/tburn/internal/github"
	"github.com/theirongolddev/tburn/internal/model"
	"github.com/theirongolddev/tburn/internal/ticket"
)

type fakePRs struct {
	prs          []github.PullRequest
	err          error
	since, until time.Time
}

func (f *fakePRs) MergedPullRequests(_ context.Context, since, until time.Time) ([]github.PullRequest, error) {
	f.since, f.until = since, until
	return f.prs, f.err
}

type fakePoints struct {
	points map[ticket.ID]float64
	err    error
	asked  []ticket.ID
}

func (f *fakePoints) StoryPoints(_ context.Context, ids []ticket.ID) (map[ticket.ID]float64, error) {
	f.asked = ids
	return f.points, f.err
}

func mergedPR(n int, title, branch string, created time.Time) github.PullRequest {
	return github.PullRequest{
		Number:     n,
		Title:      title,
		HeadBranch: branch,
		CreatedAt:  created,
		MergedAt:   created.Add(24 * time.Hour),
	}
}

func TestRunner_Run(t *testing.T) {
	prs := &fakePRs{prs: []github.PullRequest{
		mergedPR(10, "VIBE-2: login", "feature/VIBE-2", day("2025-02-04")),
		mergedPR(11, "VIBE-1 checkout", "feature/VIBE-1", day("2025-01-28")),
	}}
	points := &fakePoints{points: map[ticket.ID]float64{"VIBE-1": 3, "VIBE-2": 5}}
	r := &Runner{PRs: prs, Points: points}

	rep, err := r.Run(context.Background(), RunInput{
		Totals: totalsOf(map[ticket.ID]int64{"VIBE-1": 300, "VIBE-2": 500, "VIBE-9": 7}),
		Weeks:  []model.Week{week6, week5},
	})
	require.NoError(t, err)
	assert.Empty(t, rep.Warnings)

	assert.Equal(t, week5.StartOfDay(), prs.since)
	assert.Equal(t, week6.EndOfDay().Add(DefaultMergeLookahead), prs.until)
	assert.Equal(t, []ticket.ID{"VIBE-1", "VIBE-2"}, points.asked)

	require.Len(t, rep.Buckets, 2)
	assert.Equal(t, "week-5", rep.Buckets[0].Week.Name)
	assert.Equal(t, int64(300), rep.Buckets[0].TotalTokens)
	assert.Equal(t, int64(500), rep.Buckets[1].TotalTokens)
	assert.Contains(t, rep.NoMergedPR, ticket.ID("VIBE-9"))
	assert.Len(t, rep.Links, 2)
}

func TestRunner_CarriesInputStatsAndLogsWeeks(t *testing.T) {
	var logs bytes.Buffer
	r := &Runner{
		PRs:    &fakePRs{prs: []github.PullRequest{mergedPR(11, "VIBE-1 checkout", "feature/VIBE-1", day("2025-01-28"))}},
		Points: &fakePoints{},
		Logger: slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelInfo})),
	}
	stats := InputStats{Transcripts: 4, ParsedFiles: 3, SessionDuplicates: 2, ExportsSkipped: 1}

	rep, err := r.Run(context.Background(), RunInput{
		Totals: totalsOf(map[ticket.ID]int64{"VIBE-1": 300}),
		Weeks:  []model.Week{week5, week6},
		Inputs: stats,
	})
	require.NoError(t, err)
	assert.Equal(t, stats, rep.Inputs)
	assert.Contains(t, logs.String(), "week=week-5 tickets=1 tokens=300")
	assert.Contains(t, logs.String(), "week=week-6 tickets=0 tokens=0")
}

func TestRunner_SourceFailuresBecomeWarnings(t *testing.T) {
	prs := &fakePRs{prs: []github.PullRequest{
		mergedPR(10, "VIBE-2: login", "feature/VIBE-2", day("2025-02-04")),
	}}
	points := &fakePoints{err: errors.New("jira down")}
	r := &Runner{PRs: prs, Points: points}

	rep, err := r.Run(context.Background(), RunInput{
		Totals: totalsOf(map[ticket.ID]int64{"VIBE-2": 500}),
		Weeks:  []model.Week{week5, week6},
	})
	require.NoError(t, err)
	require.Len(t, rep.Warnings, 1)
	assert.Contains(t, rep.Warnings[0], "jira down")
	assert.Equal(t, int64(500), rep.Buckets[1].TotalTokens)
	assert.Nil(t, rep.Buckets[1].Derived.TokensPerStoryPoint)

	rep, err = (&Runner{PRs: &fakePRs{err: github.ErrRateLimited}}).Run(context.Background(), RunInput{
		Totals: totalsOf(map[ticket.ID]int64{"VIBE-2": 500}),
		Weeks:  []model.Week{week5},
	})
	require.NoError(t, err)
	require.Len(t, rep.Warnings, 1)
	assert.Contains(t, rep.Warnings[0], "pull requests unavailable")
	assert.Contains(t, rep.NoMergedPR, ticket.ID("VIBE-2"))
}

func TestRunner_NoSources(t *testing.T) {
	rep, err := (&Runner{}).Run(context.Background(), RunInput{
		Totals: totalsOf(map[ticket.ID]int64{ticket.Unattributed: 9}),
		Weeks:  []model.Week{week5},
	})
	require.NoError(t, err)
	assert.Len(t, rep.Warnings, 1)
	assert.Equal(t, int64(9), rep.Unattributed.Total)
}

func TestRunner_InvalidWeeks(t *testing.T) {
	_, err := (&Runner{}).Run(context.Background(), RunInput{})
	assert.ErrorIs(t, err, ErrNoWeeks)
}
