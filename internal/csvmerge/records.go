package csvmerge

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Session table headers.
var (
	SessionLegacyHeader  = []string{"session_id", "branch", "started_at", "ended_at", "turn_count", "total_cost_usd", "interrupted_turns"}
	SessionCurrentHeader = []string{"session_id", "agent_id", "branch", "started_at", "ended_at", "turn_count", "total_cost_usd", "interrupted_turns"}
)

// Cost table headers.
var (
	CostLegacyHeader  = []string{"session_id", "turn_number", "message_id", "total_tokens"}
	CostCurrentHeader = []string{"session_id", "agent_id", "turn_number", "message_id", "total_tokens"}
)

// SessionRecord is one canonical row of the sessions table.
type SessionRecord struct {
	SessionID string
	AgentID   string
	Branch    string
	// Raw timestamps are kept verbatim; they are part of the dedup key.
	StartedAtRaw     string
	EndedAtRaw       string
	StartedAt        time.Time
	EndedAt          time.Time
	TurnCount        int
	TotalCostUSD     decimal.Decimal
	InterruptedTurns int
}

// SessionKey identifies a session row across exports.
type SessionKey struct {
	SessionID, Branch, StartedAt, EndedAt string
}

// Key returns the dedup key.
func (r SessionRecord) Key() SessionKey {
	return SessionKey{r.SessionID, r.Branch, r.StartedAtRaw, r.EndedAtRaw}
}

// CostRecord is one canonical row of the per-turn cost table.
type CostRecord struct {
	SessionID   string
	AgentID     string
	TurnNumber  int
	MessageID   string
	TotalTokens int64
}

// CostKey identifies a per-turn cost row across exports.
type CostKey struct {
	SessionID  string
	TurnNumber int
	MessageID  string
}

// Key returns the dedup key.
func (r CostRecord) Key() CostKey {
	return CostKey{r.SessionID, r.TurnNumber, r.MessageID}
}

func parseLegacySession(row []string) (SessionRecord, error) {
	if len(row) != len(SessionLegacyHeader) {
		return SessionRecord{}, errColumns(len(SessionLegacyHeader), len(row))
	}
	// Widen into the current layout with an empty agent id.
	return parseCurrentSession([]string{row[0], "", row[1], row[2], row[3], row[4], row[5], row[6]})
}

func parseCurrentSession(row []string) (SessionRecord, error) {
	if len(row) != len(SessionCurrentHeader) {
		return SessionRecord{}, errColumns(len(SessionCurrentHeader), len(row))
	}
	r := SessionRecord{
		SessionID:    strings.TrimSpace(row[0]),
		AgentID:      strings.TrimSpace(row[1]),
		Branch:       strings.TrimSpace(row[2]),
		StartedAtRaw: strings.TrimSpace(row[3]),
		EndedAtRaw:   strings.TrimSpace(row[4]),
	}
	if r.SessionID == "" {
		return SessionRecord{}, fmt.Errorf("empty session_id")
	}
	r.StartedAt = parseTimestamp(r.StartedAtRaw)
	r.EndedAt = parseTimestamp(r.EndedAtRaw)

	var err error
	if r.TurnCount, err = parseInt(row[5]); err != nil {
		return SessionRecord{}, fmt.Errorf("turn_count: %w", err)
	}
	if r.TotalCostUSD, err = parseDecimal(row[6]); err != nil {
		return SessionRecord{}, fmt.Errorf("total_cost_usd: %w", err)
	}
	if r.InterruptedTurns, err = parseInt(row[7]); err != nil {
		return SessionRecord{}, fmt.Errorf("interrupted_turns: %w", err)
	}
	return r, nil
}

func parseLegacyCost(row []string) (CostRecord, error) {
	if len(row) != len(CostLegacyHeader) {
		return CostRecord{}, errColumns(len(CostLegacyHeader), len(row))
	}
	return parseCurrentCost([]string{row[0], "", row[1], row[2], row[3]})
}

func parseCurrentCost(row []string) (CostRecord, error) {
	if len(row) != len(CostCurrentHeader) {
		return CostRecord{}, errColumns(len(CostCurrentHeader), len(row))
	}
	r := CostRecord{
		SessionID: strings.TrimSpace(row[0]),
		AgentID:   strings.TrimSpace(row[1]),
		MessageID: strings.TrimSpace(row[3]),
	}
	if r.SessionID == "" {
		return CostRecord{}, fmt.Errorf("empty session_id")
	}
	var err error
	if r.TurnNumber, err = parseInt(row[2]); err != nil {
		return CostRecord{}, fmt.Errorf("turn_number: %w", err)
	}
	tokens, err := parseInt(row[4])
	if err != nil {
		return CostRecord{}, fmt.Errorf("total_tokens: %w", err)
	}
	r.TotalTokens = int64(tokens)
	return r, nil
}

func sessionRow(r SessionRecord) []string {
	return []string{
		r.SessionID, r.AgentID, r.Branch, r.StartedAtRaw, r.EndedAtRaw,
		strconv.Itoa(r.TurnCount), r.TotalCostUSD.String(), strconv.Itoa(r.InterruptedTurns),
	}
}

func costRow(r CostRecord) []string {
	return []string{
		r.SessionID, r.AgentID, strconv.Itoa(r.TurnNumber), r.MessageID,
		strconv.FormatInt(r.TotalTokens, 10),
	}
}

func errColumns(want, got int) error {
	return fmt.Errorf("expected %d columns, got %d", want, got)
}

func parseInt(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	return strconv.Atoi(s)
}

func parseDecimal(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}

// parseTimestamp accepts RFC 3339 or Unix epoch seconds/milliseconds.
// Anything else yields the zero time.
func parseTimestamp(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t
	}
	if t, err := time.Parse(time.DateTime, s); err == nil {
		return t
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}
	}
	if n > 1e12 {
		return time.UnixMilli(n).UTC()
	}
	return time.Unix(n, 0).UTC()
}
