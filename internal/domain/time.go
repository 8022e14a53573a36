package domain

import "time"

// DateOf truncates t to its UTC calendar day.
func DateOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// NextUpdatedAt returns the updated_at stamp for a write following prev.
// Stamps are kept at microsecond precision to match the database column and
// always move forward so the compare-and-swap token changes on every write.
func NextUpdatedAt(prev, now time.Time) time.Time {
	next := now.UTC().Truncate(time.Microsecond)
	if !next.After(prev) {
		next = prev.Add(time.Microsecond)
	}
	return next
}
