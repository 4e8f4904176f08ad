package models

import (
	"fmt"
	"time"
)

// WeekRange is a canonical Monday–Sunday week. Derived on demand and
// folded into a weekly workflow's start/end dates, never persisted on
// its own.
type WeekRange struct {
	StartDate  time.Time `json:"start_date"`
	EndDate    time.Time `json:"end_date"`
	WeekNumber int       `json:"week_number"`
	Year       int       `json:"year"`
}

// WeekID renders the stable identifier, e.g. "2025-W07".
func (w WeekRange) WeekID() string {
	return fmt.Sprintf("%d-W%02d", w.Year, w.WeekNumber)
}

// Overlaps reports whether two ranges share at least one day. Both
// boundaries are inclusive.
func (w WeekRange) Overlaps(other WeekRange) bool {
	return !(w.EndDate.Before(other.StartDate) || w.StartDate.After(other.EndDate))
}
