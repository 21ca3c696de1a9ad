package models

import "time"

// TimeRange is a lookback window for run queries.
type TimeRange string

const (
	TimeRange24h TimeRange = "24h"
	TimeRange7d  TimeRange = "7d"
	TimeRange30d TimeRange = "30d"
)

// ParseTimeRange maps a query parameter to a TimeRange. Unrecognized values
// fall back to 24h.
func ParseTimeRange(s string) TimeRange {
	switch TimeRange(s) {
	case TimeRange7d:
		return TimeRange7d
	case TimeRange30d:
		return TimeRange30d
	default:
		return TimeRange24h
	}
}

// Duration returns the lookback window length.
func (t TimeRange) Duration() time.Duration {
	switch t {
	case TimeRange7d:
		return 7 * 24 * time.Hour
	case TimeRange30d:
		return 30 * 24 * time.Hour
	default:
		return 24 * time.Hour
	}
}

// TimeRanges lists all supported windows, in precompute order.
func TimeRanges() []TimeRange {
	return []TimeRange{TimeRange24h, TimeRange7d, TimeRange30d}
}
