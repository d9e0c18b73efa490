// Package csvmerge merges session and per-turn cost CSV exports from
// several contributor machines into one deduplicated table.
package csvmerge

import (
	"fmt"
	"regexp"
	"strings"
)

// Schema is the column layout of one CSV row.
type Schema int

// Supported layouts. CurrentSchema adds an agent_id column in position 2.
const (
	LegacySchema Schema = iota
	CurrentSchema
)

func (s Schema) String() string {
	if s == CurrentSchema {
		return "current"
	}
	return "legacy"
}

var agentIDPattern = regexp.MustCompile(`^agent_[A-Za-z0-9_-]+$`)

// DetectSchema classifies a data row by probing its second column for an
// agent id. Detection is per row, independent of which file it came from.
func DetectSchema(row []string) Schema {
	if len(row) > 1 && agentIDPattern.MatchString(strings.TrimSpace(row[1])) {
		return CurrentSchema
	}
	return LegacySchema
}

// SchemaError reports a source whose header is not one the table accepts.
// The source's rows are skipped.
type SchemaError struct {
	Source   string
	Expected []string
	Actual   []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("%s: header mismatch: expected %q, got %q",
		e.Source, strings.Join(e.Expected, ","), strings.Join(e.Actual, ","))
}
