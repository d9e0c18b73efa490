package model

import "github.com/theirongolddev/tburn/internal/ticket"

// Totals maps each ticket to its accumulated usage.
type Totals map[ticket.ID]*TicketUsage

// Add records one usage record against id.
func (m Totals) Add(id ticket.ID, u Usage, sessionID string) *TicketUsage {
	tu, ok := m[id]
	if !ok {
		tu = &TicketUsage{}
		m[id] = tu
	}
	tu.Tokens.Add(u)
	tu.APICalls++
	if sessionID != "" {
		if tu.Sessions == nil {
			tu.Sessions = make(map[string]struct{})
		}
		tu.Sessions[sessionID] = struct{}{}
	}
	return tu
}

// Merge folds other into m. Neither map's values are aliased afterwards.
func (m Totals) Merge(other Totals) Totals {
	for id, ou := range other {
		tu, ok := m[id]
		if !ok {
			tu = &TicketUsage{}
			m[id] = tu
		}
		tu.Merge(*ou)
	}
	return m
}

// Tokens returns the token total for id, or zero totals if absent.
func (m Totals) Tokens(id ticket.ID) TokenTotals {
	if tu, ok := m[id]; ok {
		return tu.Tokens
	}
	return TokenTotals{}
}
