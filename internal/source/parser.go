// Package source discovers and parses conversation JSONL transcripts and
// attributes their token usage to tickets.
package source

import (
	"os"
	"strconv"
	"time"

	"github.com/theirongolddev/tburn/internal/attribution"
	"github.com/theirongolddev/tburn/internal/config"
	"github.com/theirongolddev/tburn/internal/model"
	"github.com/theirongolddev/tburn/internal/ticket"
)

// ParseResult holds the output of parsing a single JSONL file.
type ParseResult struct {
	Path         string
	Totals       model.Totals
	UserMessages int
	APICalls     int
	Compactions  int
	StartTime    time.Time
	EndTime      time.Time
	ParseErrors  int
	Err          error
}

// attributedCall is the final state of one message.id within a file.
type attributedCall struct {
	ticket    ticket.ID
	sessionID string
	usage     model.Usage
	cache1h   int64
	model     string
	at        time.Time
}

type parseConfig struct {
	pricing     config.Pricing
	attribution []attribution.Option
}

// Option configures ParseFile.
type Option func(*parseConfig)

// WithPricing prices calls with p instead of the built-in table.
func WithPricing(p config.Pricing) Option {
	return func(c *parseConfig) { c.pricing = p }
}

// WithAttribution passes options to the per-file attributor.
func WithAttribution(opts ...attribution.Option) Option {
	return func(c *parseConfig) { c.attribution = append(c.attribution, opts...) }
}

// ParseFile reads a JSONL transcript and attributes every token-bearing
// event to a ticket. Attribution state starts empty for each file.
//
// Streamed duplicates of the same message.id are collapsed, keeping the
// last entry (final billed usage) together with the ticket resolved at
// that point.
func ParseFile(df DiscoveredFile, opts ...Option) ParseResult {
	var cfg parseConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	result := ParseResult{Path: df.Path, Totals: model.Totals{}}

	f, err := os.Open(df.Path)
	if err != nil {
		result.Err = err
		return result
	}
	defer func() { _ = f.Close() }()

	attr := attribution.New(cfg.attribution...)
	calls := make(map[string]*attributedCall)
	anonymous := 0

	parseErrors, err := ReadEvents(f, func(ev Event) {
		if !ev.Timestamp.IsZero() {
			updateTimeRange(&result.StartTime, &result.EndTime, ev.Timestamp)
		}

		id := attr.Observe(ev.GitBranch, ev.Content)

		switch ev.Type {
		case EventUser:
			result.UserMessages++
		case EventCompaction:
			result.Compactions++
		case EventAssistant:
			if ev.Usage == nil {
				return
			}
			key := ev.MessageID
			if key == "" {
				anonymous++
				key = "#" + strconv.Itoa(anonymous)
			}
			sid := ev.SessionID
			if sid == "" {
				sid = df.SessionID
			}
			calls[key] = &attributedCall{
				ticket:    id,
				sessionID: sid,
				usage:     *ev.Usage,
				cache1h:   ev.Cache1hTokens,
				model:     ev.Model,
				at:        ev.Timestamp,
			}
		}
	})
	if err != nil {
		result.Err = err
		return result
	}
	result.ParseErrors = parseErrors
	result.APICalls = len(calls)

	for _, c := range calls {
		tu := result.Totals.Add(c.ticket, c.usage, c.sessionID)
		cost := cfg.pricing.CostAt(
			c.model,
			c.at,
			c.usage.InputTokens,
			c.usage.OutputTokens,
			c.usage.CacheCreationTokens-c.cache1h,
			c.cache1h,
			c.usage.CacheReadTokens,
		)
		tu.EstimatedCost = tu.EstimatedCost.Add(cost)
	}

	return result
}

func updateTimeRange(minTime, maxTime *time.Time, ts time.Time) {
	if minTime.IsZero() || ts.Before(*minTime) {
		*minTime = ts
	}
	if maxTime.IsZero() || ts.After(*maxTime) {
		*maxTime = ts
	}
}
