package csvmerge

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
)

// Source is one CSV export to merge.
type Source struct {
	Name   string
	Reader io.Reader
}

// Result is the outcome of merging several sources into one table.
type Result[T any] struct {
	Records []T // insertion order, first seen wins

	Duplicates        int
	ParseErrors       int
	HeaderRowsSkipped int
	// SchemaErrors lists sources excluded for a header mismatch.
	SchemaErrors []*SchemaError
	// ReadErrors lists sources that failed part-way through; rows read
	// before the failure are kept.
	ReadErrors []error
}

// table describes one record type: its accepted headers, one normaliser
// per schema variant, and its dedup key.
type table[T any, K comparable] struct {
	legacyHeader  []string
	currentHeader []string
	normalize     map[Schema]func([]string) (T, error)
	key           func(T) K
}

// detect picks the schema by column count and falls back to the agent id
// probe only when the count matches neither layout.
func (t table[T, K]) detect(row []string) Schema {
	switch len(row) {
	case len(t.legacyHeader):
		return LegacySchema
	case len(t.currentHeader):
		return CurrentSchema
	}
	return DetectSchema(row)
}

func (t table[T, K]) isHeader(row []string) bool {
	return slices.Equal(row, t.legacyHeader) || slices.Equal(row, t.currentHeader)
}

var sessionTable = table[SessionRecord, SessionKey]{
	legacyHeader:  SessionLegacyHeader,
	currentHeader: SessionCurrentHeader,
	normalize: map[Schema]func([]string) (SessionRecord, error){
		LegacySchema:  parseLegacySession,
		CurrentSchema: parseCurrentSession,
	},
	key: SessionRecord.Key,
}

var costTable = table[CostRecord, CostKey]{
	legacyHeader:  CostLegacyHeader,
	currentHeader: CostCurrentHeader,
	normalize: map[Schema]func([]string) (CostRecord, error){
		LegacySchema:  parseLegacyCost,
		CurrentSchema: parseCurrentCost,
	},
	key: CostRecord.Key,
}

// MergeSessions merges session exports, dropping rows whose
// (session_id, branch, started_at, ended_at) was already seen.
func MergeSessions(sources []Source) Result[SessionRecord] {
	return merge(sessionTable, sources)
}

// MergeCosts merges per-turn cost exports, dropping rows whose
// (session_id, turn_number, message_id) was already seen.
func MergeCosts(sources []Source) Result[CostRecord] {
	return merge(costTable, sources)
}

func merge[T any, K comparable](t table[T, K], sources []Source) Result[T] {
	var res Result[T]
	seen := make(map[K]struct{})

	for _, src := range sources {
		r := csv.NewReader(src.Reader)
		r.FieldsPerRecord = -1
		r.TrimLeadingSpace = true

		header, err := readHeader(r)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				res.ReadErrors = append(res.ReadErrors, fmt.Errorf("%s: %w", src.Name, err))
			}
			continue
		}
		if !t.isHeader(header) {
			res.SchemaErrors = append(res.SchemaErrors, &SchemaError{
				Source:   src.Name,
				Expected: t.currentHeader,
				Actual:   header,
			})
			continue
		}

		for {
			row, err := r.Read()
			if errors.Is(err, io.EOF) {
				break
			}
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				res.ParseErrors++
				continue
			}
			if err != nil {
				res.ReadErrors = append(res.ReadErrors, fmt.Errorf("%s: %w", src.Name, err))
				break
			}
			if isBlank(row) {
				continue
			}
			if t.isHeader(row) {
				res.HeaderRowsSkipped++
				continue
			}

			rec, err := t.normalize[t.detect(row)](row)
			if err != nil {
				res.ParseErrors++
				continue
			}
			k := t.key(rec)
			if _, dup := seen[k]; dup {
				res.Duplicates++
				continue
			}
			seen[k] = struct{}{}
			res.Records = append(res.Records, rec)
		}
	}
	return res
}

// readHeader returns the first non-blank record with any UTF-8 BOM removed.
func readHeader(r *csv.Reader) ([]string, error) {
	for {
		row, err := r.Read()
		if err != nil {
			return nil, err
		}
		if isBlank(row) {
			continue
		}
		row[0] = strings.TrimPrefix(row[0], "\ufeff")
		for i := range row {
			row[i] = strings.TrimSpace(row[i])
		}
		return row, nil
	}
}

func isBlank(row []string) bool {
	return len(row) == 0 || (len(row) == 1 && strings.TrimSpace(row[0]) == "")
}

// WriteSessions writes records in the current schema, header first.
func WriteSessions(w io.Writer, records []SessionRecord) error {
	return write(w, SessionCurrentHeader, records, sessionRow)
}

// WriteCosts writes records in the current schema, header first.
func WriteCosts(w io.Writer, records []CostRecord) error {
	return write(w, CostCurrentHeader, records, costRow)
}

func write[T any](w io.Writer, header []string, records []T, row func(T) []string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	for _, rec := range records {
		if err := cw.Write(row(rec)); err != nil {
			return fmt.Errorf("writing row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}
