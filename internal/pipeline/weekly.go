package pipeline

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/theirongolddev/tburn/internal/csvmerge"
	"github.com/theirongolddev/tburn/internal/github"
	"github.com/theirongolddev/tburn/internal/metrics"
	"github.com/theirongolddev/tburn/internal/model"
	"github.com/theirongolddev/tburn/internal/ticket"
)

var (
	// ErrWeeksOverlap is returned when two configured weeks share a day.
	ErrWeeksOverlap = errors.New("weeks overlap")
	// ErrWeekRange is returned for a week whose end precedes its start.
	ErrWeekRange = errors.New("week ends before it starts")
	// ErrNoWeeks is returned when no weeks are configured.
	ErrNoWeeks = errors.New("no weeks configured")
)

// ValidateWeeks returns weeks sorted by start, or an error if any week is
// inverted or two weeks overlap.
func ValidateWeeks(weeks []model.Week) ([]model.Week, error) {
	if len(weeks) == 0 {
		return nil, ErrNoWeeks
	}
	sorted := make([]model.Week, len(weeks))
	copy(sorted, weeks)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].StartOfDay().Before(sorted[j].StartOfDay())
	})

	for i, w := range sorted {
		if w.EndOfDay().Before(w.StartOfDay()) {
			return nil, fmt.Errorf("%w: %s", ErrWeekRange, w.Name)
		}
		if i > 0 && !w.StartOfDay().After(sorted[i-1].EndOfDay()) {
			return nil, fmt.Errorf("%w: %s and %s", ErrWeeksOverlap, sorted[i-1].Name, w.Name)
		}
	}
	return sorted, nil
}

// maintenancePrefixes mark pull requests that are not feature work.
var maintenancePrefixes = []string{"fix", "hotfix", "bugfix", "chore", "docs"}

func isMaintenance(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, p := range maintenancePrefixes {
		rest, ok := strings.CutPrefix(s, p)
		if !ok {
			continue
		}
		if rest == "" || strings.ContainsRune("/-_:( !", rune(rest[0])) {
			return true
		}
	}
	return false
}

// Extractor finds a ticket id in free text. ExtractCanonical only accepts
// keys written in upper case.
type Extractor interface {
	Extract(text string) (ticket.ID, bool)
	ExtractCanonical(text string) (ticket.ID, bool)
}

// LinkPullRequests maps merged pull requests to tickets. The ticket is
// taken from the title, then the body, then the head branch; an upper-case
// key in any of them beats a lower-case one in an earlier field. When several
// PRs name the same ticket the earliest created wins, ties going to the
// lower PR number. Links are returned ordered by creation time.
func LinkPullRequests(prs []github.PullRequest, ex Extractor) []model.PRLink {
	best := make(map[ticket.ID]model.PRLink)
	for _, pr := range prs {
		if !pr.Merged() {
			continue
		}
		id, ok := prTicket(pr, ex)
		if !ok {
			continue
		}

		link := model.PRLink{
			Ticket:       id,
			Number:       pr.Number,
			Title:        pr.Title,
			Branch:       pr.HeadBranch,
			CreatedAt:    pr.CreatedAt,
			MergedAt:     pr.MergedAt,
			LinesChanged: pr.Additions + pr.Deletions,
			Feature:      !isMaintenance(pr.HeadBranch) && !isMaintenance(pr.Title),
		}
		if cur, seen := best[id]; !seen || earlier(link, cur) {
			best[id] = link
		}
	}

	links := make([]model.PRLink, 0, len(best))
	for _, l := range best {
		links = append(links, l)
	}
	sort.Slice(links, func(i, j int) bool { return earlier(links[i], links[j]) })
	return links
}

func prTicket(pr github.PullRequest, ex Extractor) (ticket.ID, bool) {
	fields := []string{pr.Title, pr.Body, pr.HeadBranch}
	for _, extract := range []func(string) (ticket.ID, bool){ex.ExtractCanonical, ex.Extract} {
		for _, f := range fields {
			if id, ok := extract(f); ok {
				return id, true
			}
		}
	}
	return "", false
}

func earlier(a, b model.PRLink) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.Number < b.Number
}

// JoinInput is everything the weekly join needs.
type JoinInput struct {
	Links  []model.PRLink
	Totals model.Totals
	// StoryPoints is nil when the estimate source was unavailable.
	StoryPoints map[ticket.ID]float64
	Weeks       []model.Week
	Sessions    []csvmerge.SessionRecord
	Billing     []csvmerge.BillingRow
}

// JoinResult holds the weekly buckets plus the tickets that could not be
// placed in any of them.
type JoinResult struct {
	Buckets []model.WeeklyBucket `json:"weeks"`
	// NoMergedPR lists tickets with token usage but no merged pull request.
	NoMergedPR []ticket.ID `json:"no_merged_pr"`
	// OutsideWeeks lists linked tickets whose PR was created outside every week.
	OutsideWeeks []ticket.ID       `json:"outside_weeks"`
	Unattributed model.TokenTotals `json:"unattributed"`
	CostSource   string            `json:"cost_source"`
}

// JoinWeeks places each linked ticket in the week containing its PR's
// creation time and computes per-week totals and derived metrics. A
// ticket's tokens are counted in full in that one week, wherever the work
// happened.
func JoinWeeks(in JoinInput) (JoinResult, error) {
	weeks, err := ValidateWeeks(in.Weeks)
	if err != nil {
		return JoinResult{}, err
	}

	costSrc := costSourceFor(in.Sessions, in.Billing)
	res := JoinResult{
		Buckets:      make([]model.WeeklyBucket, len(weeks)),
		Unattributed: in.Totals.Tokens(ticket.Unattributed),
		CostSource:   costSrc.String(),
	}
	for i, w := range weeks {
		res.Buckets[i].Week = w
	}

	linked := make(map[ticket.ID]struct{}, len(in.Links))
	for _, l := range in.Links {
		linked[l.Ticket] = struct{}{}

		idx := weekIndex(weeks, l)
		if idx < 0 {
			res.OutsideWeeks = append(res.OutsideWeeks, l.Ticket)
			continue
		}
		res.Buckets[idx].Tickets = append(res.Buckets[idx].Tickets, entryFor(l, in))
	}

	for id, tu := range in.Totals {
		if id == ticket.Unattributed || tu.Tokens.Total == 0 {
			continue
		}
		if _, ok := linked[id]; !ok {
			res.NoMergedPR = append(res.NoMergedPR, id)
		}
	}
	sortIDs(res.NoMergedPR)
	sortIDs(res.OutsideWeeks)

	for i := range res.Buckets {
		b := &res.Buckets[i]
		fillTotals(b)
		b.Cost = WeekCost(b.Week, costSrc, in.Sessions, in.Billing)
		b.Derived = metrics.Compute(*b)
	}
	return res, nil
}

func weekIndex(weeks []model.Week, l model.PRLink) int {
	for i, w := range weeks {
		if w.Contains(l.CreatedAt) {
			return i
		}
	}
	return -1
}

func entryFor(l model.PRLink, in JoinInput) model.TicketEntry {
	e := model.TicketEntry{Ticket: l.Ticket, PR: l}
	if tu, ok := in.Totals[l.Ticket]; ok {
		e.Tokens = tu.Tokens
		e.HasTokens = tu.Tokens.Total > 0
		e.EstimatedCost = tu.EstimatedCost
	}
	if sp, ok := in.StoryPoints[l.Ticket]; ok {
		e.StoryPoints = &sp
	}
	e.Derived = metrics.ComputeTicket(e)
	return e
}

func fillTotals(b *model.WeeklyBucket) {
	var (
		cycleSum   float64
		cycleCount int
	)
	b.EstimatedCost = decimal.Zero
	for _, e := range b.Tickets {
		b.TotalTokens += e.Tokens.Total
		b.EstimatedCost = b.EstimatedCost.Add(e.EstimatedCost)
		if e.StoryPoints != nil {
			b.TotalStoryPoints += *e.StoryPoints
			if e.HasTokens {
				b.RatioTokens += e.Tokens.Total
				b.RatioStoryPoints += *e.StoryPoints
			}
		}

		b.PRCount++
		if e.PR.Feature {
			b.FeaturePRCount++
		}
		b.LinesChanged += e.PR.LinesChanged
		if days, ok := e.PR.CycleTimeDays(); ok {
			cycleSum += days
			cycleCount++
		}
	}
	if cycleCount > 0 {
		avg := cycleSum / float64(cycleCount)
		b.AvgCycleTimeDays = &avg
	}
}

func sortIDs(ids []ticket.ID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}
