// Package attribution assigns token-bearing transcript events to tickets.
//
// An Attributor is scoped to a single transcript file. It tracks two
// signals: the ticket named by the most recent git branch, and the ticket
// named by the most recent explicit workflow command. The workflow ticket
// wins and is sticky: later branch events never clear it, only a newer
// workflow command replaces it.
package attribution

import (
	"regexp"
	"strings"

	"github.com/theirongolddev/tburn/internal/ticket"
)

// State is the mutable attribution context of one transcript.
type State struct {
	BranchTicket   ticket.ID
	WorkflowTicket ticket.ID
}

// Resolve returns the ticket the next token-bearing event belongs to.
func (s State) Resolve() ticket.ID {
	switch {
	case !s.WorkflowTicket.IsZero():
		return s.WorkflowTicket
	case !s.BranchTicket.IsZero():
		return s.BranchTicket
	default:
		return ticket.Unattributed
	}
}

var (
	commandNameTag = regexp.MustCompile(`<command-name>\s*/?([\w:.-]+)\s*</command-name>`)
	commandArgsTag = regexp.MustCompile(`(?s)<command-args>(.*?)</command-args>`)
	slashCommand   = regexp.MustCompile(`^\s*/([\w:.-]+)[ \t]+(\S+)`)
)

// Option configures an Attributor.
type Option func(*Attributor)

// WithCommands restricts workflow signals to the named slash commands
// (without the leading slash). By default any command counts.
func WithCommands(names ...string) Option {
	return func(a *Attributor) {
		if len(names) == 0 {
			return
		}
		a.commands = make(map[string]struct{}, len(names))
		for _, n := range names {
			n = strings.TrimPrefix(strings.TrimSpace(n), "/")
			if n != "" {
				a.commands[strings.ToLower(n)] = struct{}{}
			}
		}
	}
}

// WithExtractor sets the ticket extractor (project filter and corrections).
func WithExtractor(e *ticket.Extractor) Option {
	return func(a *Attributor) { a.extract = e }
}

// Attributor walks one transcript's events in order.
type Attributor struct {
	state    State
	commands map[string]struct{}
	extract  *ticket.Extractor
}

// New returns an Attributor with empty state.
func New(opts ...Option) *Attributor {
	a := &Attributor{extract: ticket.NewExtractor(nil, ticket.DefaultCorrections())}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// State returns a copy of the current state.
func (a *Attributor) State() State { return a.state }

// Observe applies the branch and workflow signals of one event and returns
// the resulting attribution.
func (a *Attributor) Observe(gitBranch, content string) ticket.ID {
	if gitBranch != "" {
		if id, ok := a.extract.Extract(gitBranch); ok {
			a.state.BranchTicket = id
		}
	}
	if content != "" {
		if id, ok := a.workflowTicket(content); ok {
			a.state.WorkflowTicket = id
		}
	}
	return a.state.Resolve()
}

// workflowTicket finds an explicit workflow command whose first argument is
// a ticket key.
func (a *Attributor) workflowTicket(content string) (ticket.ID, bool) {
	if m := commandNameTag.FindStringSubmatch(content); m != nil {
		if a.acceptsCommand(m[1]) {
			if args := commandArgsTag.FindStringSubmatch(content); args != nil {
				if id, ok := a.firstArgTicket(args[1]); ok {
					return id, true
				}
			}
		}
	}
	if m := slashCommand.FindStringSubmatch(content); m != nil && a.acceptsCommand(m[1]) {
		return a.firstArgTicket(m[2])
	}
	return "", false
}

func (a *Attributor) acceptsCommand(name string) bool {
	if a.commands == nil {
		return true
	}
	_, ok := a.commands[strings.ToLower(name)]
	return ok
}

func (a *Attributor) firstArgTicket(args string) (ticket.ID, bool) {
	fields := strings.Fields(args)
	if len(fields) == 0 {
		return "", false
	}
	return a.extract.Extract(fields[0])
}
