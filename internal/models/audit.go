package models

import "time"

// AuditAction constants represent actions to be logged.
const (
	AuditActionLogin          = "LOGIN"
	AuditActionLogout         = "LOGOUT"
	AuditActionPasswordChange = "PASSWORD_CHANGE"

	AuditActionWorkflowCreated   = "WORKFLOW_CREATED"
	AuditActionWorkflowGenerated = "WORKFLOW_GENERATED"
	AuditActionWorkflowLocked    = "WORKFLOW_LOCKED"
	AuditActionWorkflowCompleted = "WORKFLOW_COMPLETED"
	AuditActionWorkflowFailed    = "WORKFLOW_FAILED"
	AuditActionWorkflowDeleted   = "WORKFLOW_DELETED"
	AuditActionWarningsSent      = "WARNINGS_SENT"
	AuditActionWarningsExported  = "WARNINGS_EXPORTED"
)

// Audit object types.
const (
	ObjectTypeAuth     = "auth"
	ObjectTypeWorkflow = "warning_workflow"
)

// AuditLog represents an append-only audit trail record attributed to
// the initiating admin.
type AuditLog struct {
	ID          string    `db:"id" json:"id"`
	AdminID     *string   `db:"admin_id" json:"admin_id,omitempty"`
	Action      string    `db:"action" json:"action"`
	ObjectType  string    `db:"object_type" json:"object_type"`
	ObjectID    *string   `db:"object_id" json:"object_id,omitempty"`
	ObjectLabel string    `db:"object_label" json:"object_label"`
	Details     []byte    `db:"details" json:"details,omitempty"`
	IPAddress   string    `db:"ip_address" json:"ip_address"`
	UserAgent   string    `db:"user_agent" json:"user_agent"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// AuditFilter captures filtering criteria for listing audit entries.
type AuditFilter struct {
	AdminID    string
	Action     string
	ObjectType string
	ObjectID   string
	Page       int
	PageSize   int
}
