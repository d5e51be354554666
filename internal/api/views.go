package api

import (
	"sort"
	"time"
)

// SortCallsNewestFirst orders calls by CreatedAt descending, breaking ties by ID descending.
func SortCallsNewestFirst(calls []CallView) []CallView {
	if len(calls) == 0 {
		return nil
	}
	sorted := make([]CallView, len(calls))
	copy(sorted, calls)
	sort.Slice(sorted, func(i, j int) bool {
		ti := parseViewTime(sorted[i].CreatedAt)
		tj := parseViewTime(sorted[j].CreatedAt)
		if ti.Equal(tj) {
			return sorted[i].ID > sorted[j].ID
		}
		return ti.After(tj)
	})
	return sorted
}

func parseViewTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t
	}
	return time.Time{}
}

// ParseViewTime exposes timestamp parsing for consumers that need display formatting.
func ParseViewTime(value string) time.Time {
	return parseViewTime(value)
}
