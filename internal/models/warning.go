package models

import "time"

// WarningStatus tracks delivery per student, independent of the
// workflow's own status.
type WarningStatus string

const (
	WarningNotSent  WarningStatus = "not_sent"
	WarningSent     WarningStatus = "sent"
	WarningFailed   WarningStatus = "failed"
	WarningExported WarningStatus = "exported"
)

// IsValid reports whether the status is one of the known values.
func (s WarningStatus) IsValid() bool {
	switch s {
	case WarningNotSent, WarningSent, WarningFailed, WarningExported:
		return true
	}
	return false
}

// MissedService identifies one service a student was absent from.
type MissedService struct {
	ServiceID   string `json:"service_id"`
	ServiceName string `json:"service_name"`
	ServiceDate string `json:"service_date"`
	ServiceTime string `json:"service_time"`
}

// WarningRecord is one student's row in a workflow's warning list.
// ServicesMissed only grows during generation; send and export touch
// Status alone.
type WarningRecord struct {
	StudentID      string          `json:"student_id"`
	MatricNumber   string          `json:"matric_number"`
	StudentName    string          `json:"student_name"`
	Level          string          `json:"level"`
	Email          *string         `json:"email,omitempty"`
	ParentEmail    *string         `json:"parent_email,omitempty"`
	ServicesMissed []MissedService `json:"services_missed"`
	MissCount      int             `json:"miss_count"`
	Status         WarningStatus   `json:"status"`
}

// WarningSummary aggregates a warning list for display.
type WarningSummary struct {
	TotalWarnings    int            `json:"total_warnings"`
	ByLevel          map[string]int `json:"by_level"`
	AverageMissCount float64        `json:"average_miss_count"`
	MaxMissCount     int            `json:"max_miss_count"`
	MinMissCount     int            `json:"min_miss_count"`
}

// WarningList is the WarningList.json artifact.
type WarningList struct {
	WorkflowID   string          `json:"workflow_id"`
	GeneratedAt  time.Time       `json:"generated_at"`
	MinMissCount int             `json:"min_miss_count"`
	Records      []WarningRecord `json:"records"`
	Summary      WarningSummary  `json:"summary"`
}

// MetaReport is the MetaReport.json artifact: the storage-side mirror
// of workflow progress. It may transiently disagree with the record
// when one store's write fails; the record wins. It also carries the
// expanded combinations so generation can re-run from the artifact
// alone.
type MetaReport struct {
	WorkflowID          string               `json:"workflow_id"`
	Mode                WorkflowMode         `json:"mode"`
	Status              WorkflowStatus       `json:"status"`
	StartDate           string               `json:"start_date"`
	EndDate             string               `json:"end_date"`
	StoragePath         string               `json:"storage_path"`
	InitiatedBy         string               `json:"initiated_by"`
	TotalServices       int                  `json:"total_services"`
	TotalStudents       int                  `json:"total_students"`
	WarningsGenerated   int                  `json:"warnings_generated"`
	WarningsSent        int                  `json:"warnings_sent"`
	WarningsExported    int                  `json:"warnings_exported"`
	Combinations        []ServiceCombination `json:"combinations,omitempty"`
	MissingCombinations []string             `json:"missing_combinations,omitempty"`
	MinMissCount        int                  `json:"min_miss_count,omitempty"`
	Summary             *WarningSummary      `json:"summary,omitempty"`
	CreatedAt           time.Time            `json:"created_at"`
	UpdatedAt           time.Time            `json:"updated_at"`
	LockedAt            *time.Time           `json:"locked_at,omitempty"`
	CompletedAt         *time.Time           `json:"completed_at,omitempty"`
	FailedAt            *time.Time           `json:"failed_at,omitempty"`
	ErrorMessage        *string              `json:"error_message,omitempty"`
}

// DeliveryOutcome records one student's email delivery attempt.
type DeliveryOutcome struct {
	StudentID   string    `json:"student_id"`
	Recipient   string    `json:"recipient"`
	Delivered   bool      `json:"delivered"`
	Error       string    `json:"error,omitempty"`
	AttemptedAt time.Time `json:"attempted_at"`
}

// EmailDeliveryReport is the EmailDeliveryReport.json artifact. Send
// batches append outcomes via load-modify-save as they finish.
type EmailDeliveryReport struct {
	WorkflowID string            `json:"workflow_id"`
	UpdatedAt  time.Time         `json:"updated_at"`
	Outcomes   []DeliveryOutcome `json:"outcomes"`
}
