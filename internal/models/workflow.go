package models

import (
	"strings"
	"time"
)

// WorkflowMode identifies how a workflow's date range was selected.
type WorkflowMode string

const (
	ModeSingle WorkflowMode = "single"
	ModeBatch  WorkflowMode = "batch"
	ModeWeekly WorkflowMode = "weekly"
)

// IsValid reports whether the mode is one of the known values.
func (m WorkflowMode) IsValid() bool {
	switch m {
	case ModeSingle, ModeBatch, ModeWeekly:
		return true
	}
	return false
}

// Capitalized returns the storage path segment for the mode ("Weekly").
func (m WorkflowMode) Capitalized() string {
	if m == "" {
		return ""
	}
	s := string(m)
	return strings.ToUpper(s[:1]) + s[1:]
}

// WorkflowStatus tracks lifecycle state. Transitions run draft ->
// locked -> completed; failed is reachable from draft and locked. No
// transition leaves completed or failed.
type WorkflowStatus string

const (
	StatusDraft     WorkflowStatus = "draft"
	StatusLocked    WorkflowStatus = "locked"
	StatusCompleted WorkflowStatus = "completed"
	StatusFailed    WorkflowStatus = "failed"
)

// IsValid reports whether the status is one of the known values.
func (s WorkflowStatus) IsValid() bool {
	switch s {
	case StatusDraft, StatusLocked, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// Terminal reports whether no further transitions are allowed.
func (s WorkflowStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Protected reports whether the workflow may no longer be deleted or
// re-drafted.
func (s WorkflowStatus) Protected() bool {
	return s == StatusLocked || s == StatusCompleted
}

// WorkflowRecord is the relational source of truth for a warning
// workflow. Counters here win over the meta report mirror whenever the
// two disagree.
type WorkflowRecord struct {
	ID                string         `db:"id" json:"id"`
	Mode              WorkflowMode   `db:"mode" json:"mode"`
	Status            WorkflowStatus `db:"status" json:"status"`
	StartDate         time.Time      `db:"start_date" json:"start_date"`
	EndDate           time.Time      `db:"end_date" json:"end_date"`
	WorkflowDate      time.Time      `db:"workflow_date" json:"workflow_date"`
	TotalServices     int            `db:"total_services" json:"total_services"`
	TotalStudents     int            `db:"total_students" json:"total_students"`
	WarningsGenerated int            `db:"warnings_generated" json:"warnings_generated"`
	WarningsSent      int            `db:"warnings_sent" json:"warnings_sent"`
	WarningsExported  int            `db:"warnings_exported" json:"warnings_exported"`
	StoragePath       string         `db:"storage_path" json:"storage_path"`
	InitiatedBy       string         `db:"initiated_by" json:"initiated_by"`
	ErrorMessage      *string        `db:"error_message" json:"error_message,omitempty"`
	CreatedAt         time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time      `db:"updated_at" json:"updated_at"`
	CompletedAt       *time.Time     `db:"completed_at" json:"completed_at,omitempty"`
}

// WorkflowFilter captures filtering criteria for listing workflows.
type WorkflowFilter struct {
	Mode        *WorkflowMode
	Status      *WorkflowStatus
	InitiatedBy string
	DateFrom    *time.Time
	DateTo      *time.Time
	Page        int
	PageSize    int
	SortBy      string
	SortOrder   string
}

// ReconcileIssue describes one inconsistency found by the reconcile
// sweep between the record store and the artifact store.
type ReconcileIssue struct {
	WorkflowID  string         `json:"workflow_id"`
	Status      WorkflowStatus `json:"status"`
	StoragePath string         `json:"storage_path"`
	Problem     string         `json:"problem"`
	Repaired    bool           `json:"repaired"`
}

// ReconcileReport summarises a reconcile sweep.
type ReconcileReport struct {
	Scanned   int              `json:"scanned"`
	Issues    []ReconcileIssue `json:"issues"`
	StartedAt time.Time        `json:"started_at"`
	Duration  string           `json:"duration"`
}
