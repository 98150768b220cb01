package app

import (
	"testing"
	"time"
)

func TestResolveCutoffOrdering(t *testing.T) {
	now := time.Date(2024, time.June, 15, 13, 45, 0, 0, time.UTC)

	tags := []string{"Today", "Week", "Month", "3 Months", "Year"}
	previous := now
	for _, tag := range tags {
		cutoff := resolveCutoff(now, tag)
		if cutoff.After(now) {
			t.Errorf("cutoff for %q is after now: %v", tag, cutoff)
		}
		if cutoff.After(previous) {
			t.Errorf("cutoff for %q (%v) is more recent than the previous tag's (%v)", tag, cutoff, previous)
		}
		previous = cutoff
	}
}

func TestResolveCutoffToday(t *testing.T) {
	now := time.Date(2024, time.June, 15, 13, 45, 12, 0, time.UTC)
	cutoff := resolveCutoff(now, "Today")
	want := time.Date(2024, time.June, 15, 0, 0, 0, 0, time.UTC)
	if !cutoff.Equal(want) {
		t.Errorf("Today cutoff = %v, want midnight %v", cutoff, want)
	}
}

func TestResolveCutoffWeekRollsIntoPreviousMonth(t *testing.T) {
	// Day-of-month minus 7 goes non-positive near the month start; the raw
	// subtraction normalizes into the previous month.
	now := time.Date(2024, time.March, 3, 10, 0, 0, 0, time.UTC)
	cutoff := resolveCutoff(now, "Week")
	want := time.Date(2024, time.February, 25, 0, 0, 0, 0, time.UTC)
	if !cutoff.Equal(want) {
		t.Errorf("Week cutoff = %v, want %v", cutoff, want)
	}
}

func TestResolveCutoffUnknownTag(t *testing.T) {
	now := time.Date(2024, time.June, 15, 13, 45, 0, 0, time.UTC)
	for _, tag := range []string{"", "Fortnight", "ALL"} {
		cutoff := resolveCutoff(now, tag)
		if !cutoff.Equal(allTimeCutoff) {
			t.Errorf("cutoff for %q = %v, want the all-time sentinel", tag, cutoff)
		}
	}
}
