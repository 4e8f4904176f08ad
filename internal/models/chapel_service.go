package models

import "time"

// Service type labels as they appear in the chaplaincy timetable.
const (
	ServiceTypeDevotion = "devotion"
	ServiceTypeService  = "service"
	ServiceTypeSpecial  = "special"
)

// ChapelService is a registry entry: one scheduled service on one date.
// Inactive entries (cancelled services) are excluded from batch
// expansion but kept for history.
type ChapelService struct {
	ID        string    `db:"id" json:"id"`
	Date      time.Time `db:"date" json:"date"`
	Label     string    `db:"label" json:"label"`
	Time      string    `db:"time" json:"time"`
	Type      string    `db:"type" json:"type"`
	Active    bool      `db:"active" json:"active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}
