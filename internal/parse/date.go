package parse

import (
	"strings"
	"time"
)

// Date layouts split by year format for proper 2-digit year handling.
var (
	fourDigitYearLayouts = []string{
		time.RFC3339,
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
		"2006-01-02",
		"2006/01/02",
		"02/01/2006",
		"2/1/2006",
		"02-01-2006",
		"02.01.2006",
		"01/02/2006",
		"Jan 2, 2006",
		"2 Jan 2006",
		"20060102",
	}
	twoDigitYearLayouts = []string{
		"2/1/06", "02/01/06", "2-1-06", "2.1.06", "02.01.06",
	}
)

// TwoDigitYearPivot defines how 2-digit years are interpreted: parsed years
// further in the future than this many years are moved back a century.
var TwoDigitYearPivot = 20

// Date parses a date string against the known fiscal-document layouts.
// Day-first layouts are tried before month-first since Brazilian documents
// dominate the corpus. Returns ok=false when no layout matches.
func Date(value string) (time.Time, bool) {
	s := strings.TrimSpace(value)
	if s == "" {
		return time.Time{}, false
	}

	for _, layout := range fourDigitYearLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}

	pivot := time.Now().Year() + TwoDigitYearPivot
	for _, layout := range twoDigitYearLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			if t.Year() > pivot {
				t = t.AddDate(-100, 0, 0)
			}
			return t, true
		}
	}

	return time.Time{}, false
}

// HasTimeComponent reports whether a raw value carries a time-of-day part.
// Used by the column profiler to distinguish date from datetime columns.
func HasTimeComponent(value string) bool {
	t, ok := Date(value)
	if !ok {
		return false
	}
	return t.Hour() != 0 || t.Minute() != 0 || t.Second() != 0 ||
		strings.Contains(value, ":")
}
