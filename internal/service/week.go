package service

import (
	"fmt"
	"time"

	"github.com/Juls-123/chapel-admin-sub000/internal/models"
	appErrors "github.com/Juls-123/chapel-admin-sub000/pkg/errors"
)

// dateLayout is the only accepted wire format for dates.
const dateLayout = "2006-01-02"

// DeriveWeekRange resolves the Monday-to-Sunday week containing the
// given date. Week number and year follow the ISO-8601 Thursday rule,
// so early-January dates may land in the previous ISO year.
func DeriveWeekRange(date string) (models.WeekRange, error) {
	parsed, err := time.Parse(dateLayout, date)
	if err != nil {
		return models.WeekRange{}, appErrors.Clone(appErrors.ErrInvalidDate, fmt.Sprintf("invalid date %q, expected YYYY-MM-DD", date))
	}
	parsed = parsed.UTC()

	// Sunday counts as day 7 so the Monday lookup stays inside the
	// current week instead of jumping ahead to the next one.
	weekday := int(parsed.Weekday())
	if weekday == 0 {
		weekday = 7
	}
	monday := parsed.AddDate(0, 0, 1-weekday)
	sunday := monday.AddDate(0, 0, 6)

	year, week := parsed.ISOWeek()
	return models.WeekRange{
		StartDate:  monday,
		EndDate:    sunday,
		WeekNumber: week,
		Year:       year,
	}, nil
}

// ValidateWeekAvailable rejects a week that already has a processed
// workflow. An identical week id fails regardless of status; a
// completed workflow overlapping the range fails even under a
// different week id, which catches drift from calendar irregularities.
func ValidateWeekAvailable(week models.WeekRange, history []models.WorkflowRecord) error {
	for _, record := range history {
		year, number := record.StartDate.ISOWeek()
		past := models.WeekRange{
			StartDate:  record.StartDate,
			EndDate:    record.EndDate,
			WeekNumber: number,
			Year:       year,
		}
		if past.WeekID() == week.WeekID() {
			return appErrors.Clone(appErrors.ErrWeekDuplicate, fmt.Sprintf("week %s already has workflow %s", week.WeekID(), record.ID))
		}
		if record.Status == models.StatusCompleted && week.Overlaps(past) {
			return appErrors.Clone(appErrors.ErrWeekDuplicate, fmt.Sprintf("week %s overlaps completed workflow %s", week.WeekID(), record.ID))
		}
	}
	return nil
}
