package models

import "time"

// Student holds the institutional identity and contact channels used
// when addressing warning letters.
type Student struct {
	ID           string    `db:"id" json:"id"`
	MatricNumber string    `db:"matric_number" json:"matric_number"`
	FullName     string    `db:"full_name" json:"full_name"`
	Level        string    `db:"level" json:"level"`
	Email        *string   `db:"email" json:"email,omitempty"`
	ParentEmail  *string   `db:"parent_email" json:"parent_email,omitempty"`
	Phone        *string   `db:"phone" json:"phone,omitempty"`
	ParentPhone  *string   `db:"parent_phone" json:"parent_phone,omitempty"`
	Active       bool      `db:"active" json:"active"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// ContactInfo is the subset of student fields returned by contact
// lookups. Unresolved students are simply absent from the result map.
type ContactInfo struct {
	Email       *string `json:"email,omitempty"`
	ParentEmail *string `json:"parent_email,omitempty"`
	Phone       *string `json:"phone,omitempty"`
	ParentPhone *string `json:"parent_phone,omitempty"`
}
