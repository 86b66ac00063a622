package gormstore

import (
	"testing"
	"time"

	"github.com/chirino/clinical-history/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDateRangeStart(t *testing.T) {
	wednesday := time.Date(2026, 10, 14, 15, 30, 0, 0, time.UTC)
	sunday := time.Date(2026, 10, 18, 23, 59, 0, 0, time.UTC)
	monday := time.Date(2026, 10, 12, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		r     model.DateRange
		now   time.Time
		want  time.Time
		bound bool
	}{
		{"today", model.DateRangeToday, wednesday, time.Date(2026, 10, 14, 0, 0, 0, 0, time.UTC), true},
		{"week from wednesday", model.DateRangeThisWeek, wednesday, monday, true},
		{"week from sunday", model.DateRangeThisWeek, sunday, monday, true},
		{"week from monday", model.DateRangeThisWeek, monday, monday, true},
		{"month", model.DateRangeThisMonth, wednesday, time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC), true},
		{"archived has no bound", model.DateRangeArchived, wednesday, time.Time{}, false},
		{"empty has no bound", "", wednesday, time.Time{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := dateRangeStart(tt.r, tt.now)
			require.Equal(t, tt.bound, ok)
			assert.True(t, tt.want.Equal(got), "want %s got %s", tt.want, got)
		})
	}
}

func TestDateRangeStart_KeepsLocation(t *testing.T) {
	loc := time.FixedZone("UTC+8", 8*60*60)
	now := time.Date(2026, 10, 14, 1, 0, 0, 0, loc)

	got, ok := dateRangeStart(model.DateRangeToday, now)
	require.True(t, ok)
	assert.Equal(t, loc, got.Location())
	// Local midnight is the previous evening in UTC.
	assert.Equal(t, time.Date(2026, 10, 13, 16, 0, 0, 0, time.UTC), got.UTC())
}

func TestDedupe(t *testing.T) {
	assert.Equal(t, []string{}, dedupe(nil))
	assert.Equal(t, []string{"a", "b"}, dedupe([]string{"a", "b", "a"}))
}
