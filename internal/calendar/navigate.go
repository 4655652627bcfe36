package calendar

import "time"

// NextMonth moves t forward one calendar month.
func NextMonth(t time.Time) time.Time {
	return AddMonths(t, 1)
}

// PreviousMonth moves t back one calendar month.
func PreviousMonth(t time.Time) time.Time {
	return AddMonths(t, -1)
}

// AddMonths shifts t by n months, clamping the day to the target month's
// length (Jan 31 + 1 month is Feb 28 or 29). Time of day and location are
// kept. Unlike time.AddDate it never spills into the following month.
func AddMonths(t time.Time, n int) time.Time {
	year, month, day := t.Date()
	hh, mm, ss := t.Clock()

	target := time.Date(year, month+time.Month(n), 1, 0, 0, 0, 0, time.UTC)
	ty, tm, _ := target.Date()
	if last := daysIn(ty, tm); day > last {
		day = last
	}
	return time.Date(ty, tm, day, hh, mm, ss, t.Nanosecond(), t.Location())
}
