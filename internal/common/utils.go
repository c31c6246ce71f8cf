package common

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"
)

// monthLayouts are accepted by ParseMonth, most specific first.
var monthLayouts = []string{
	"2006-01-02",
	"2006-01",
	"2006/01",
	"Jan 2006",
	"January 2006",
}

// NewLogger builds the JSON logger used by every command. verbose wins over quiet.
func NewLogger(w io.Writer, verbose, quiet bool) *slog.Logger {
	level := slog.LevelInfo
	switch {
	case verbose:
		level = slog.LevelDebug
	case quiet:
		level = slog.LevelError
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}

// ParseMonth parses a date flag and truncates it to the first of the month.
// An empty string returns the zero time.
func ParseMonth(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range monthLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid month %q (want YYYY-MM or YYYY-MM-DD)", s)
}

// ValidateYears checks a start/end year range.
func ValidateYears(start, end int) error {
	if start < 1900 || end < 1900 {
		return fmt.Errorf("invalid year range %d-%d", start, end)
	}
	if start > end {
		return fmt.Errorf("start year %d is after end year %d", start, end)
	}
	return nil
}
