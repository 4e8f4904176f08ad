package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/Juls-123/chapel-admin-sub000/internal/models"
)

const workflowColumns = `id, mode, status, start_date, end_date, workflow_date, total_services, total_students,
warnings_generated, warnings_sent, warnings_exported, storage_path, initiated_by, error_message,
created_at, updated_at, completed_at`

// WorkflowRepository persists warning workflow records.
type WorkflowRepository struct {
	db *sqlx.DB
}

// NewWorkflowRepository constructs the repository.
func NewWorkflowRepository(db *sqlx.DB) *WorkflowRepository {
	return &WorkflowRepository{db: db}
}

// Create inserts a new workflow row with generated defaults.
func (r *WorkflowRepository) Create(ctx context.Context, record *models.WorkflowRecord) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.Status == "" {
		record.Status = models.StatusDraft
	}
	now := time.Now().UTC()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now

	const query = `INSERT INTO warning_workflows (id, mode, status, start_date, end_date, workflow_date, total_services, total_students,
warnings_generated, warnings_sent, warnings_exported, storage_path, initiated_by, error_message, created_at, updated_at, completed_at)
VALUES (:id, :mode, :status, :start_date, :end_date, :workflow_date, :total_services, :total_students,
:warnings_generated, :warnings_sent, :warnings_exported, :storage_path, :initiated_by, :error_message, :created_at, :updated_at, :completed_at)`
	if _, err := r.db.NamedExecContext(ctx, query, record); err != nil {
		return fmt.Errorf("create warning workflow: %w", err)
	}
	return nil
}

// GetByID returns a workflow row by its identifier.
func (r *WorkflowRepository) GetByID(ctx context.Context, id string) (*models.WorkflowRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM warning_workflows WHERE id = $1`, workflowColumns)
	var record models.WorkflowRecord
	if err := r.db.GetContext(ctx, &record, query, id); err != nil {
		return nil, err
	}
	return &record, nil
}

// UpdateWorkflowParams defines the mutable fields; nil pointers leave
// the column untouched.
type UpdateWorkflowParams struct {
	Status            *models.WorkflowStatus
	TotalStudents     *int
	WarningsGenerated *int
	WarningsSent      *int
	WarningsExported  *int
	ErrorMessage      *string
	CompletedAt       *time.Time
}

// Update persists the provided changes for a workflow row.
func (r *WorkflowRepository) Update(ctx context.Context, id string, params UpdateWorkflowParams) error {
	set := make([]string, 0, 7)
	args := make([]interface{}, 0, 8)
	argPos := 1

	if params.Status != nil {
		set = append(set, fmt.Sprintf("status = $%d", argPos))
		args = append(args, *params.Status)
		argPos++
	}
	if params.TotalStudents != nil {
		set = append(set, fmt.Sprintf("total_students = $%d", argPos))
		args = append(args, *params.TotalStudents)
		argPos++
	}
	if params.WarningsGenerated != nil {
		set = append(set, fmt.Sprintf("warnings_generated = $%d", argPos))
		args = append(args, *params.WarningsGenerated)
		argPos++
	}
	if params.WarningsSent != nil {
		set = append(set, fmt.Sprintf("warnings_sent = $%d", argPos))
		args = append(args, *params.WarningsSent)
		argPos++
	}
	if params.WarningsExported != nil {
		set = append(set, fmt.Sprintf("warnings_exported = $%d", argPos))
		args = append(args, *params.WarningsExported)
		argPos++
	}
	if params.ErrorMessage != nil {
		set = append(set, fmt.Sprintf("error_message = $%d", argPos))
		args = append(args, *params.ErrorMessage)
		argPos++
	}
	if params.CompletedAt != nil {
		set = append(set, fmt.Sprintf("completed_at = $%d", argPos))
		args = append(args, *params.CompletedAt)
		argPos++
	}

	if len(set) == 0 {
		return nil
	}

	set = append(set, fmt.Sprintf("updated_at = $%d", argPos))
	args = append(args, time.Now().UTC())
	argPos++

	query := fmt.Sprintf("UPDATE warning_workflows SET %s WHERE id = $%d", strings.Join(set, ", "), argPos)
	args = append(args, id)

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("update warning workflow: %w", err)
	}
	return nil
}

// Delete removes a workflow row. Status protection is enforced by the
// caller, which reads the record first.
func (r *WorkflowRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM warning_workflows WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("delete warning workflow: %w", err)
	}
	return nil
}

// List returns workflow rows based on filters with total count.
func (r *WorkflowRepository) List(ctx context.Context, filter models.WorkflowFilter) ([]models.WorkflowRecord, int, error) {
	baseQuery := `FROM warning_workflows WHERE 1=1`
	var conditions []string
	var args []interface{}

	if filter.Mode != nil {
		conditions = append(conditions, fmt.Sprintf("mode = $%d", len(args)+1))
		args = append(args, *filter.Mode)
	}
	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, *filter.Status)
	}
	if filter.InitiatedBy != "" {
		conditions = append(conditions, fmt.Sprintf("initiated_by = $%d", len(args)+1))
		args = append(args, filter.InitiatedBy)
	}
	if filter.DateFrom != nil {
		conditions = append(conditions, fmt.Sprintf("end_date >= $%d", len(args)+1))
		args = append(args, *filter.DateFrom)
	}
	if filter.DateTo != nil {
		conditions = append(conditions, fmt.Sprintf("start_date <= $%d", len(args)+1))
		args = append(args, *filter.DateTo)
	}

	if len(conditions) > 0 {
		baseQuery += " AND " + strings.Join(conditions, " AND ")
	}

	sortBy := filter.SortBy
	allowedSorts := map[string]bool{
		"created_at":    true,
		"updated_at":    true,
		"start_date":    true,
		"workflow_date": true,
		"status":        true,
	}
	if !allowedSorts[sortBy] {
		sortBy = "created_at"
	}

	sortOrder := strings.ToUpper(filter.SortOrder)
	if sortOrder != "ASC" && sortOrder != "DESC" {
		sortOrder = "DESC"
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	listQuery := fmt.Sprintf("SELECT %s %s ORDER BY %s %s LIMIT %d OFFSET %d", workflowColumns, baseQuery, sortBy, sortOrder, pageSize, offset)

	var records []models.WorkflowRecord
	if err := r.db.SelectContext(ctx, &records, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list warning workflows: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", baseQuery)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count warning workflows: %w", err)
	}

	return records, total, nil
}

// ExistsOverlappingWeekly reports whether any locked or completed
// weekly workflow overlaps the inclusive [start, end] range.
func (r *WorkflowRepository) ExistsOverlappingWeekly(ctx context.Context, start, end time.Time) (bool, error) {
	const query = `SELECT EXISTS (
SELECT 1 FROM warning_workflows
WHERE mode = 'weekly' AND status IN ('locked', 'completed')
AND NOT (end_date < $1 OR start_date > $2))`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, start, end); err != nil {
		return false, fmt.Errorf("check overlapping weekly workflow: %w", err)
	}
	return exists, nil
}

// ListByStatus fetches up to limit rows in the given status, oldest
// first. Used by the reconcile sweep.
func (r *WorkflowRepository) ListByStatus(ctx context.Context, status models.WorkflowStatus, limit int) ([]models.WorkflowRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	query := fmt.Sprintf(`SELECT %s FROM warning_workflows WHERE status = $1 ORDER BY created_at ASC LIMIT $2`, workflowColumns)
	var records []models.WorkflowRecord
	if err := r.db.SelectContext(ctx, &records, query, status, limit); err != nil {
		return nil, fmt.Errorf("list workflows by status: %w", err)
	}
	return records, nil
}

// ListWeeklyProcessed returns every weekly workflow that has reached
// locked or completed, newest first. Feeds the duplicate-week guard.
func (r *WorkflowRepository) ListWeeklyProcessed(ctx context.Context) ([]models.WorkflowRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM warning_workflows WHERE mode = 'weekly' AND status IN ('locked', 'completed') ORDER BY start_date DESC`, workflowColumns)
	var records []models.WorkflowRecord
	if err := r.db.SelectContext(ctx, &records, query); err != nil {
		return nil, fmt.Errorf("list processed weekly workflows: %w", err)
	}
	return records, nil
}
