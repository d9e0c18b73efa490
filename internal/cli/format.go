// Package cli provides formatting and rendering utilities for terminal output.
package cli

import (
	"fmt"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"
)

// NotAvailable marks a metric that could not be computed.
const NotAvailable = "n/a"

// FormatTokens formats a token count with human-readable suffixes.
// e.g., 1234 -> "1.2K", 1234567 -> "1.2M", 1234567890 -> "1.2B"
func FormatTokens(n int64) string {
	abs := n
	if abs < 0 {
		abs = -abs
	}

	switch {
	case abs >= 1_000_000_000:
		return fmt.Sprintf("%.1fB", float64(n)/1_000_000_000)
	case abs >= 1_000_000:
		return fmt.Sprintf("%.1fM", float64(n)/1_000_000)
	case abs >= 1_000:
		return fmt.Sprintf("%.1fK", float64(n)/1_000)
	default:
		return strconv.FormatInt(n, 10)
	}
}

// FormatNumber adds comma separators to an integer.
// e.g., 1234567 -> "1,234,567"
func FormatNumber(n int64) string {
	return humanize.Comma(n)
}

// FormatCost formats a USD amount with two decimals and separators.
func FormatCost(d decimal.Decimal) string {
	return "$" + humanize.FormatFloat("#,###.##", d.Round(2).InexactFloat64())
}

// FormatOptionalCost formats a cost that may be missing.
func FormatOptionalCost(d *decimal.Decimal) string {
	if d == nil {
		return NotAvailable
	}
	return FormatCost(*d)
}

// FormatOptionalInt formats an integer metric that may be missing.
func FormatOptionalInt(n *int64) string {
	if n == nil {
		return NotAvailable
	}
	return FormatNumber(*n)
}

// FormatOptionalFloat formats a float metric with prec decimals.
func FormatOptionalFloat(f *float64, prec int) string {
	if f == nil {
		return NotAvailable
	}
	return strconv.FormatFloat(*f, 'f', prec, 64)
}

// FormatPoints formats story points without trailing zeros.
func FormatPoints(p float64) string {
	return strconv.FormatFloat(p, 'f', -1, 64)
}

// FormatPercent formats a 0-1 float as a percentage string.
func FormatPercent(f float64) string {
	return fmt.Sprintf("%.1f%%", f*100)
}

// FormatBytes formats a file size, e.g. 82854982 -> "83 MB".
func FormatBytes(n int64) string {
	if n < 0 {
		n = 0
	}
	return humanize.Bytes(uint64(n))
}

// FormatAge formats how long ago t was, e.g. "3 hours ago".
func FormatAge(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return humanize.Time(t)
}
