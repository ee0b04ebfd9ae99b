package types

import (
	"fmt"
	"time"
)

// Timestamps are carried as RFC3339 UTC strings throughout the engine so
// records canonicalise to stable bytes across storage backends.

// FormatTime renders a time in the engine's wire form.
func FormatTime(t time.Time) string { return t.UTC().Format(time.RFC3339) }

// ParseTime parses an RFC3339 timestamp.
func ParseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	return t, nil
}

// After reports whether timestamp a is strictly after b; malformed inputs
// report false.
func After(a, b string) bool {
	ta, err := ParseTime(a)
	if err != nil {
		return false
	}
	tb, err := ParseTime(b)
	if err != nil {
		return false
	}
	return ta.After(tb)
}

// UTCDay buckets a timestamp into its YYYY-MM-DD UTC day for the daily
// spend ledger.
func UTCDay(t time.Time) string { return t.UTC().Format("2006-01-02") }
