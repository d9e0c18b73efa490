package csvmerge

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// BillingRow is one day of provider-reported spend.
type BillingRow struct {
	Date    time.Time
	CostUSD decimal.Decimal
}

var (
	dateColumns = []string{"date", "day", "usage_date"}
	costColumns = []string{"cost_usd", "amount_usd", "cost", "amount"}
)

// ErrBillingHeader is returned when a billing export has no recognisable
// date or cost column.
var ErrBillingHeader = errors.New("billing csv: missing date or cost column")

// ReadBilling reads a billing export with a date column (YYYY-MM-DD or
// RFC 3339) and a USD cost column. Dates are interpreted in loc. Rows that
// fail to parse are skipped and counted.
func ReadBilling(r io.Reader, loc *time.Location) (rows []BillingRow, parseErrors int, err error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := readHeader(cr)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, 0, nil
		}
		return nil, 0, fmt.Errorf("reading billing header: %w", err)
	}
	dateIdx := columnIndex(header, dateColumns)
	costIdx := columnIndex(header, costColumns)
	if dateIdx < 0 || costIdx < 0 {
		return nil, 0, fmt.Errorf("%w: %q", ErrBillingHeader, strings.Join(header, ","))
	}

	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		var perr *csv.ParseError
		if errors.As(err, &perr) {
			parseErrors++
			continue
		}
		if err != nil {
			return rows, parseErrors, fmt.Errorf("reading billing row: %w", err)
		}
		if isBlank(rec) {
			continue
		}
		if len(rec) <= dateIdx || len(rec) <= costIdx {
			parseErrors++
			continue
		}
		day, ok := parseDay(strings.TrimSpace(rec[dateIdx]), loc)
		if !ok {
			parseErrors++
			continue
		}
		cost, err := decimal.NewFromString(strings.TrimPrefix(strings.TrimSpace(rec[costIdx]), "$"))
		if err != nil {
			parseErrors++
			continue
		}
		rows = append(rows, BillingRow{Date: day, CostUSD: cost})
	}
	return rows, parseErrors, nil
}

func columnIndex(header, names []string) int {
	for _, name := range names {
		for i, h := range header {
			if strings.EqualFold(h, name) {
				return i
			}
		}
	}
	return -1
}

func parseDay(s string, loc *time.Location) (time.Time, bool) {
	if t, err := time.ParseInLocation(time.DateOnly, s, loc); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		y, m, d := t.In(loc).Date()
		return time.Date(y, m, d, 0, 0, 0, 0, loc), true
	}
	return time.Time{}, false
}
