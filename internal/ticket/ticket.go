// Package ticket identifies issue-tracker work items in free text.
package ticket

import (
	"regexp"
	"strings"
)

// ID is a validated issue-tracker key such as "VIBE-123".
type ID string

// Unattributed is the sentinel for token usage that no signal claimed.
const Unattributed ID = "UNATTRIBUTED"

var (
	// validID matches a canonical (upper-cased) key.
	validID = regexp.MustCompile(`^[A-Z][A-Z0-9]*-[0-9]+$`)

	// embeddedID finds a key inside branch names, titles and command args.
	// The leading group keeps "fix-VIBE-1" from matching as "FIX-..." only when
	// the key is glued to a longer alphanumeric run.
	embeddedID = regexp.MustCompile(`(?i)(?:^|[^A-Za-z0-9])([A-Za-z][A-Za-z0-9]*-[0-9]+)`)
)

// Parse validates s as a ticket key. Case is normalized to upper.
func Parse(s string) (ID, bool) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if !validID.MatchString(s) {
		return "", false
	}
	return ID(s), true
}

// String returns the key.
func (id ID) String() string { return string(id) }

// Project returns the project key portion ("VIBE" for "VIBE-123").
func (id ID) Project() string {
	if i := strings.LastIndexByte(string(id), '-'); i > 0 {
		return string(id[:i])
	}
	return ""
}

// IsZero reports whether id is unset.
func (id ID) IsZero() bool { return id == "" }

// Extractor pulls the first ticket key out of text, optionally restricted to
// a set of project keys, and applies the correction table.
type Extractor struct {
	projects    map[string]struct{}
	corrections Corrections
}

// NewExtractor returns an Extractor. An empty projects list accepts any key.
func NewExtractor(projects []string, corrections Corrections) *Extractor {
	e := &Extractor{corrections: corrections}
	if len(projects) > 0 {
		e.projects = make(map[string]struct{}, len(projects))
		for _, p := range projects {
			p = strings.ToUpper(strings.TrimSpace(p))
			if p != "" {
				e.projects[p] = struct{}{}
			}
		}
	}
	return e
}

// Extract returns the first acceptable ticket key found in text. A key
// already written in upper case wins over an earlier lower- or mixed-case
// one, so "node-20 (VIBE-123)" yields VIBE-123.
func (e *Extractor) Extract(text string) (ID, bool) {
	if id, ok := e.extract(text, true); ok {
		return id, true
	}
	return e.extract(text, false)
}

// ExtractCanonical is Extract restricted to keys written in upper case.
func (e *Extractor) ExtractCanonical(text string) (ID, bool) {
	return e.extract(text, true)
}

func (e *Extractor) extract(text string, canonical bool) (ID, bool) {
	if text == "" {
		return "", false
	}
	for _, m := range embeddedID.FindAllStringSubmatch(text, -1) {
		if canonical && m[1] != strings.ToUpper(m[1]) {
			continue
		}
		id, ok := Parse(m[1])
		if !ok {
			continue
		}
		if e.projects != nil {
			if _, allowed := e.projects[id.Project()]; !allowed {
				continue
			}
		}
		return e.corrections.Apply(id), true
	}
	return "", false
}

var defaultExtractor = NewExtractor(nil, DefaultCorrections())

// Extract finds the first ticket key in text using any project key and the
// default correction table.
func Extract(text string) (ID, bool) {
	return defaultExtractor.Extract(text)
}
