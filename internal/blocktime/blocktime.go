// Package blocktime parses the block_time strings delivered by the
// analytics query.
package blocktime

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"cowswap-improvement/internal/logger"
)

// Layout is the block_time format produced by the analytics query.
// Go accepts an arbitrary-length fractional second after the seconds field.
const Layout = "2006-01-02 15:04:05 UTC"

// ErrInvalidBlockTime is returned when a block_time string cannot be parsed.
var ErrInvalidBlockTime = errors.New("invalid block time")

// lenientLayouts are accepted by Date in addition to Layout.
var lenientLayouts = []string{
	Layout,
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// Parse parses a strict "YYYY-MM-DD HH:MM:SS[.ffffff] UTC" string.
func Parse(s string) (time.Time, error) {
	t, err := time.Parse(Layout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidBlockTime, s)
	}
	return t.UTC(), nil
}

// UnixSeconds returns the epoch seconds of s with the fraction truncated.
// A malformed string is logged and reported as ok=false.
func UnixSeconds(s string) (int64, bool) {
	t, err := Parse(s)
	if err != nil {
		logger.GetLogger().WithComponent("blocktime").WithError(err).
			Error("error converting date string to unix timestamp")
		return 0, false
	}
	return t.Unix(), true
}

// Date parses s leniently and returns the UTC calendar date at midnight.
func Date(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: empty", ErrInvalidBlockTime)
	}
	for _, layout := range lenientLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidBlockTime, s)
}
