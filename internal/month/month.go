// Package month computes calendar-month boundaries in a fixed timezone.
//
// The quota ledger keys its counters by calendar month, so all helpers take
// an explicit "now" and location and are otherwise pure.
package month

import (
	"fmt"
	"time"
)

// Start returns the first instant of the calendar month containing now,
// evaluated in loc.
func Start(now time.Time, loc *time.Location) time.Time {
	t := now.In(loc)
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, loc)
}

// NextStart returns the first instant of the following calendar month.
// December rolls over into January of the next year.
func NextStart(now time.Time, loc *time.Location) time.Time {
	return Start(now, loc).AddDate(0, 1, 0)
}

// SecondsUntilEnd returns the number of whole seconds from now until the
// next month boundary. Used as the TTL for per-month cache keys.
func SecondsUntilEnd(now time.Time, loc *time.Location) int {
	return int(NextStart(now, loc).Sub(now) / time.Second)
}

// Key returns a short "YYYYMM" identifier for the month containing now,
// used to namespace cache keys.
func Key(now time.Time, loc *time.Location) string {
	t := now.In(loc)
	return fmt.Sprintf("%04d%02d", t.Year(), int(t.Month()))
}
