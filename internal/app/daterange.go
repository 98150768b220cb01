package app

import "time"

// allTimeCutoff is the sentinel for unrecognized or absent range tags: the
// epoch of the original deployment, effectively "all time".
var allTimeCutoff = time.Date(2020, time.September, 9, 17, 5, 34, 0, time.UTC)

// resolveCutoff maps a symbolic date-range tag to the absolute timestamp
// comments must have been created at or after. Unknown tags silently degrade
// to the all-time sentinel.
//
// The calendar arithmetic intentionally subtracts raw day/month components
// and lets time.Date normalize the result, so "Week" near the start of a
// month rolls into the previous one. Known edge case, kept pending product
// confirmation.
func resolveCutoff(now time.Time, dateRange string) time.Time {
	year, month, day := now.Date()
	switch dateRange {
	case "Today":
		return time.Date(year, month, day, 0, 0, 0, 0, now.Location())
	case "Week":
		return time.Date(year, month, day-7, 0, 0, 0, 0, now.Location())
	case "Month":
		return time.Date(year, month-1, day, 0, 0, 0, 0, now.Location())
	case "3 Months":
		return time.Date(year, month-3, day, 0, 0, 0, 0, now.Location())
	case "Year":
		return time.Date(year-1, month, day, 0, 0, 0, 0, now.Location())
	default:
		return allTimeCutoff
	}
}
