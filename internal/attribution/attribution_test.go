package attribution

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/theirongolddev/tburn/internal/ticket"
)

func TestObserve_NoSignals(t *testing.T) {
	a := New()
	assert.Equal(t, ticket.Unattributed, a.Observe("", "hello"))
	assert.Equal(t, ticket.Unattributed, a.Observe("main", ""))
}

func TestObserve_BranchThenWorkflow(t *testing.T) {
	a := New()
	assert.Equal(t, ticket.ID("VIBE-100"), a.Observe("feature/VIBE-100", ""))
	assert.Equal(t, ticket.ID("VIBE-200"), a.Observe("feature/VIBE-100",
		"<command-name>/work</command-name>\n<command-args>VIBE-200</command-args>"))
	assert.Equal(t, ticket.ID("VIBE-200"), a.Observe("feature/VIBE-100", ""))
}

func TestObserve_WorkflowIsSticky(t *testing.T) {
	a := New()
	a.Observe("feature/VIBE-100", "")
	a.Observe("", "/start VIBE-200 please")

	// Branch-only events for the old ticket, or a new branch, do not clear it.
	assert.Equal(t, ticket.ID("VIBE-200"), a.Observe("feature/VIBE-100", ""))
	assert.Equal(t, ticket.ID("VIBE-200"), a.Observe("feature/VIBE-300", ""))
	assert.Equal(t, ticket.ID("VIBE-300"), a.State().BranchTicket)

	// A newer workflow command does.
	assert.Equal(t, ticket.ID("VIBE-400"), a.Observe("", "/start vibe-400"))
}

func TestObserve_BranchWithoutTicketKeepsState(t *testing.T) {
	a := New()
	a.Observe("feature/VIBE-1", "")
	assert.Equal(t, ticket.ID("VIBE-1"), a.Observe("main", ""))
}

func TestObserve_TypoCorrection(t *testing.T) {
	a := New()
	assert.Equal(t, ticket.ID("VIBE-216"), a.Observe("vibe-516-typo", ""))

	b := New()
	assert.Equal(t, ticket.ID("VIBE-216"), b.Observe("", "/work VIBE-516"))
}

func TestObserve_CommandFilter(t *testing.T) {
	a := New(WithCommands("/work"))
	assert.Equal(t, ticket.Unattributed, a.Observe("", "/review VIBE-1"))
	assert.Equal(t, ticket.ID("VIBE-2"), a.Observe("", "/work VIBE-2"))
	assert.Equal(t, ticket.ID("VIBE-2"), a.Observe("",
		"<command-name>/review</command-name><command-args>VIBE-3</command-args>"))
}

func TestObserve_CommandArgumentMustBeTicket(t *testing.T) {
	a := New()
	a.Observe("feature/VIBE-5", "")
	assert.Equal(t, ticket.ID("VIBE-5"), a.Observe("", "/work on the login page"))
	assert.Equal(t, ticket.ID("VIBE-5"), a.Observe("", "/Users/me/project/VIBE-9 notes"))
	assert.True(t, a.State().WorkflowTicket.IsZero())
}

func TestObserve_ProjectFilter(t *testing.T) {
	a := New(WithExtractor(ticket.NewExtractor([]string{"VIBE"}, nil)))
	assert.Equal(t, ticket.Unattributed, a.Observe("feature/OTHER-1", ""))
	assert.Equal(t, ticket.ID("VIBE-1"), a.Observe("feature/VIBE-1", ""))
}
