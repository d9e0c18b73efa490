package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/parquet-go/parquet-go"

	"github.com/theirongolddev/tburn/internal/pipeline"
)

// Format is an export file format.
type Format string

// Supported export formats.
const (
	FormatJSON    Format = "json"
	FormatParquet Format = "parquet"
	FormatHTML    Format = "html"
)

// ErrUnknownFormat is returned by ParseFormat for unsupported names.
var ErrUnknownFormat = errors.New("unknown export format")

// ParseFormat maps a user-supplied name to a Format.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatJSON, FormatParquet, FormatHTML:
		return f, nil
	default:
		return "", fmt.Errorf("%w: %q (want json, parquet, or html)", ErrUnknownFormat, s)
	}
}

// WriteJSON writes the full report as indented JSON.
func WriteJSON(w io.Writer, rep *pipeline.Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rep); err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}
	return nil
}

// WriteParquet writes rows as one Parquet table, schema taken from T's
// struct tags.
func WriteParquet[T any](w io.Writer, rows []T) error {
	writer := parquet.NewGenericWriter[T](w)
	if _, err := writer.Write(rows); err != nil {
		_ = writer.Close()
		return fmt.Errorf("writing parquet rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("closing parquet writer: %w", err)
	}
	return nil
}

// Parquet file names written by ExportDir.
const (
	WeeksFile   = "weeks.parquet"
	TicketsFile = "tickets.parquet"
)

// ExportDir writes the report into dir. JSON and HTML produce a single
// report file; Parquet produces a weeks table and a tickets table. It
// returns the paths written.
func ExportDir(dir string, rep *pipeline.Report, format Format) ([]string, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating %s: %w", dir, err)
	}

	switch format {
	case FormatJSON:
		p := filepath.Join(dir, "report.json")
		if err := writeFile(p, func(w io.Writer) error { return WriteJSON(w, rep) }); err != nil {
			return nil, err
		}
		return []string{p}, nil
	case FormatHTML:
		p := filepath.Join(dir, "report.html")
		if err := writeFile(p, func(w io.Writer) error { return WriteHTML(w, rep) }); err != nil {
			return nil, err
		}
		return []string{p}, nil
	case FormatParquet:
		weeks := filepath.Join(dir, WeeksFile)
		if err := writeFile(weeks, func(w io.Writer) error { return WriteParquet(w, WeekRows(rep)) }); err != nil {
			return nil, err
		}
		tickets := filepath.Join(dir, TicketsFile)
		if err := writeFile(tickets, func(w io.Writer) error { return WriteParquet(w, TicketRows(rep)) }); err != nil {
			return nil, err
		}
		return []string{weeks, tickets}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

func writeFile(path string, fn func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	if err := fn(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
