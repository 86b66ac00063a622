package gormstore

import (
	"time"

	"github.com/chirino/clinical-history/internal/model"
)

// dateRangeStart returns the inclusive lower bound on created_at for a
// creation-date bucket, computed in now's location. Weeks start on Monday.
// The archived bucket is a status filter and has no time bound.
func dateRangeStart(r model.DateRange, now time.Time) (time.Time, bool) {
	y, m, d := now.Date()
	loc := now.Location()
	switch r {
	case model.DateRangeToday:
		return time.Date(y, m, d, 0, 0, 0, 0, loc), true
	case model.DateRangeThisWeek:
		sinceMonday := (int(now.Weekday()) + 6) % 7
		return time.Date(y, m, d-sinceMonday, 0, 0, 0, 0, loc), true
	case model.DateRangeThisMonth:
		return time.Date(y, m, 1, 0, 0, 0, 0, loc), true
	}
	return time.Time{}, false
}
