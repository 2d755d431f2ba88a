package profile

import "time"

// Bucket is a calendar-month window. End is the start of the month's last
// day; membership is decided by calendar day, so the whole last day counts.
type Bucket struct {
	Start time.Time
	End   time.Time
}

// MonthBucket returns the bucket for the month offset months before now,
// in now's location.
func MonthBucket(now time.Time, offset int) Bucket {
	loc := now.Location()
	start := time.Date(now.Year(), now.Month()-time.Month(offset), 1, 0, 0, 0, 0, loc)
	return Bucket{
		Start: start,
		End:   start.AddDate(0, 0, DaysInMonth(start.Year(), start.Month())-1),
	}
}

// DaysInMonth returns the number of days in the given month.
func DaysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// Contains reports whether t falls on a day within the bucket.
func (b Bucket) Contains(t time.Time) bool {
	t = t.In(b.Start.Location())
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, b.Start.Location())
	return !day.Before(b.Start) && !day.After(b.End)
}

// Label returns the full month name, e.g. "October".
func (b Bucket) Label() string {
	return b.Start.Month().String()
}
