package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Juls-123/chapel-admin-sub000/internal/models"
	appErrors "github.com/Juls-123/chapel-admin-sub000/pkg/errors"
)

func TestDeriveWeekRange(t *testing.T) {
	tests := []struct {
		name       string
		date       string
		wantStart  string
		wantEnd    string
		wantWeekID string
	}{
		{
			name:       "monday maps to itself",
			date:       "2025-01-06",
			wantStart:  "2025-01-06",
			wantEnd:    "2025-01-12",
			wantWeekID: "2025-W02",
		},
		{
			name:       "midweek across calendar year boundary",
			date:       "2025-01-01",
			wantStart:  "2024-12-30",
			wantEnd:    "2025-01-05",
			wantWeekID: "2025-W01",
		},
		{
			name:       "december date in next iso year",
			date:       "2024-12-30",
			wantStart:  "2024-12-30",
			wantEnd:    "2025-01-05",
			wantWeekID: "2025-W01",
		},
		{
			name:       "sunday stays in its own week",
			date:       "2023-01-01",
			wantStart:  "2022-12-26",
			wantEnd:    "2023-01-01",
			wantWeekID: "2022-W52",
		},
		{
			name:       "leap day",
			date:       "2024-02-29",
			wantStart:  "2024-02-26",
			wantEnd:    "2024-03-03",
			wantWeekID: "2024-W09",
		},
		{
			name:       "fifty-three week year",
			date:       "2020-12-31",
			wantStart:  "2020-12-28",
			wantEnd:    "2021-01-03",
			wantWeekID: "2020-W53",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			week, err := DeriveWeekRange(tt.date)
			require.NoError(t, err)
			assert.Equal(t, tt.wantStart, week.StartDate.Format("2006-01-02"))
			assert.Equal(t, tt.wantEnd, week.EndDate.Format("2006-01-02"))
			assert.Equal(t, tt.wantWeekID, week.WeekID())
			assert.Equal(t, time.Monday, week.StartDate.Weekday())
			assert.Equal(t, time.Sunday, week.EndDate.Weekday())
			assert.Equal(t, week.StartDate.AddDate(0, 0, 6), week.EndDate)
		})
	}
}

func TestDeriveWeekRangeAlwaysMondayToSunday(t *testing.T) {
	// Walk every day of a leap year plus the surrounding boundaries.
	start := time.Date(2023, 12, 25, 0, 0, 0, 0, time.UTC)
	for offset := 0; offset < 380; offset++ {
		date := start.AddDate(0, 0, offset).Format("2006-01-02")
		week, err := DeriveWeekRange(date)
		require.NoError(t, err, "date %s", date)
		require.Equal(t, time.Monday, week.StartDate.Weekday(), "date %s", date)
		require.Equal(t, time.Sunday, week.EndDate.Weekday(), "date %s", date)
		require.Equal(t, week.StartDate.AddDate(0, 0, 6), week.EndDate, "date %s", date)
	}
}

func TestDeriveWeekRangeInvalidDate(t *testing.T) {
	for _, date := range []string{"", "not-a-date", "2025-13-01", "2025-02-30", "06-01-2025", "2025/01/06", "2025-1-6"} {
		_, err := DeriveWeekRange(date)
		require.Error(t, err, "date %q", date)
		appErr := appErrors.FromError(err)
		assert.Equal(t, appErrors.ErrInvalidDate.Code, appErr.Code, "date %q", date)
	}
}

func TestWeeksOverlap(t *testing.T) {
	mustWeek := func(date string) models.WeekRange {
		week, err := DeriveWeekRange(date)
		require.NoError(t, err)
		return week
	}

	a := mustWeek("2025-01-06")
	b := mustWeek("2025-01-08")
	c := mustWeek("2025-01-13")

	assert.True(t, a.Overlaps(a), "a week overlaps itself")
	assert.True(t, a.Overlaps(b))
	assert.Equal(t, a.Overlaps(b), b.Overlaps(a), "overlap is symmetric")
	assert.False(t, a.Overlaps(c), "adjacent weeks do not overlap")
	assert.Equal(t, a.Overlaps(c), c.Overlaps(a), "overlap is symmetric")

	// Partial overlap built by hand rather than derived.
	shifted := models.WeekRange{StartDate: a.StartDate.AddDate(0, 0, 2), EndDate: a.EndDate.AddDate(0, 0, 2)}
	assert.True(t, a.Overlaps(shifted))
	assert.True(t, shifted.Overlaps(a))
}

func TestValidateWeekAvailable(t *testing.T) {
	week, err := DeriveWeekRange("2025-01-08")
	require.NoError(t, err)

	day := func(date string) time.Time {
		parsed, err := time.Parse("2006-01-02", date)
		require.NoError(t, err)
		return parsed
	}

	t.Run("empty history passes", func(t *testing.T) {
		require.NoError(t, ValidateWeekAvailable(week, nil))
	})

	t.Run("identical week id fails even when only locked", func(t *testing.T) {
		history := []models.WorkflowRecord{{
			ID:        "wf-1",
			Status:    models.StatusLocked,
			StartDate: day("2025-01-06"),
			EndDate:   day("2025-01-12"),
		}}
		err := ValidateWeekAvailable(week, history)
		require.Error(t, err)
		assert.Equal(t, appErrors.ErrWeekDuplicate.Code, appErrors.FromError(err).Code)
	})

	t.Run("completed partial overlap fails under different week id", func(t *testing.T) {
		// Start sits in iso week 1 while the tail drifts into week 2.
		history := []models.WorkflowRecord{{
			ID:        "wf-2",
			Status:    models.StatusCompleted,
			StartDate: day("2025-01-03"),
			EndDate:   day("2025-01-09"),
		}}
		err := ValidateWeekAvailable(week, history)
		require.Error(t, err)
		assert.Equal(t, appErrors.ErrWeekDuplicate.Code, appErrors.FromError(err).Code)
	})

	t.Run("locked overlap under different week id passes the pure guard", func(t *testing.T) {
		history := []models.WorkflowRecord{{
			ID:        "wf-3",
			Status:    models.StatusLocked,
			StartDate: day("2025-01-02"),
			EndDate:   day("2025-01-08"),
		}}
		require.NoError(t, ValidateWeekAvailable(week, history))
	})

	t.Run("adjacent completed week passes", func(t *testing.T) {
		history := []models.WorkflowRecord{{
			ID:        "wf-4",
			Status:    models.StatusCompleted,
			StartDate: day("2025-01-13"),
			EndDate:   day("2025-01-19"),
		}}
		require.NoError(t, ValidateWeekAvailable(week, history))
	})
}
