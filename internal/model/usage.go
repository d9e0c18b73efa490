// Package model defines domain types for tburn usage attribution and weekly metrics.
package model

import (
	"bytes"
	"encoding/json"
	"strconv"

	"github.com/shopspring/decimal"
)

// Count is a token counter decoded leniently from JSON: negative, fractional
// or non-numeric values become zero instead of failing the whole line.
type Count int64

// UnmarshalJSON implements json.Unmarshaler.
func (c *Count) UnmarshalJSON(data []byte) error {
	*c = 0
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return nil //nolint:nilerr // coerced to zero
		}
		data = []byte(s)
	}
	n, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		f, ferr := strconv.ParseFloat(string(data), 64)
		if ferr != nil || f < 0 {
			return nil
		}
		n = int64(f)
	}
	if n < 0 {
		return nil
	}
	*c = Count(n)
	return nil
}

// Usage is the token breakdown carried by one assistant response.
type Usage struct {
	InputTokens         int64
	OutputTokens        int64
	CacheCreationTokens int64
	CacheReadTokens     int64
	ReasoningTokens     int64
}

// Sum returns the total across all categories.
func (u Usage) Sum() int64 {
	return u.InputTokens + u.OutputTokens + u.CacheCreationTokens + u.CacheReadTokens + u.ReasoningTokens
}

// TokenTotals accumulates usage per ticket. Total is always derived from the
// five category counters.
type TokenTotals struct {
	Total         int64 `json:"total"`
	Input         int64 `json:"input"`
	Output        int64 `json:"output"`
	CacheCreation int64 `json:"cache_creation"`
	CacheRead     int64 `json:"cache_read"`
	Reasoning     int64 `json:"reasoning"`
}

// Add folds one usage record into t.
func (t *TokenTotals) Add(u Usage) {
	t.Input += nonNegative(u.InputTokens)
	t.Output += nonNegative(u.OutputTokens)
	t.CacheCreation += nonNegative(u.CacheCreationTokens)
	t.CacheRead += nonNegative(u.CacheReadTokens)
	t.Reasoning += nonNegative(u.ReasoningTokens)
	t.recompute()
}

// Merge folds another accumulator into t.
func (t *TokenTotals) Merge(o TokenTotals) {
	t.Input += o.Input
	t.Output += o.Output
	t.CacheCreation += o.CacheCreation
	t.CacheRead += o.CacheRead
	t.Reasoning += o.Reasoning
	t.recompute()
}

func (t *TokenTotals) recompute() {
	t.Total = t.Input + t.Output + t.CacheCreation + t.CacheRead + t.Reasoning
}

func nonNegative(n int64) int64 {
	if n < 0 {
		return 0
	}
	return n
}

// TicketUsage is everything the aggregator knows about one ticket.
type TicketUsage struct {
	Tokens        TokenTotals
	APICalls      int
	EstimatedCost decimal.Decimal
	Sessions      map[string]struct{}
}

// Merge folds o into u.
func (u *TicketUsage) Merge(o TicketUsage) {
	u.Tokens.Merge(o.Tokens)
	u.APICalls += o.APICalls
	u.EstimatedCost = u.EstimatedCost.Add(o.EstimatedCost)
	if len(o.Sessions) > 0 && u.Sessions == nil {
		u.Sessions = make(map[string]struct{}, len(o.Sessions))
	}
	for s := range o.Sessions {
		u.Sessions[s] = struct{}{}
	}
}
