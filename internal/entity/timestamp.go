package entity

import (
	"fmt"
	"time"
)

// timestampLayout is ISO 8601 UTC with millisecond precision. The string
// form sorts lexicographically in time order, which is what makes
// timestamps usable as range-scannable secondary keys.
const timestampLayout = "2006-01-02T15:04:05.000Z"

// Timestamp formats t as a sortable ISO 8601 UTC string.
func Timestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

// ParseTimestamp parses a string produced by Timestamp.
func ParseTimestamp(s string) (time.Time, error) {
	t, err := time.Parse(timestampLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t, nil
}
