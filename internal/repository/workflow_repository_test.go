package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Juls-123/chapel-admin-sub000/internal/models"
)

func workflowRows(rec models.WorkflowRecord) *sqlmock.Rows {
	var errMsg driver.Value
	if rec.ErrorMessage != nil {
		errMsg = *rec.ErrorMessage
	}
	var completed driver.Value
	if rec.CompletedAt != nil {
		completed = *rec.CompletedAt
	}
	return sqlmock.NewRows([]string{"id", "mode", "status", "start_date", "end_date", "workflow_date", "total_services", "total_students", "warnings_generated", "warnings_sent", "warnings_exported", "storage_path", "initiated_by", "error_message", "created_at", "updated_at", "completed_at"}).
		AddRow(rec.ID, string(rec.Mode), string(rec.Status), rec.StartDate, rec.EndDate, rec.WorkflowDate,
			rec.TotalServices, rec.TotalStudents, rec.WarningsGenerated, rec.WarningsSent, rec.WarningsExported,
			rec.StoragePath, rec.InitiatedBy, errMsg, rec.CreatedAt, rec.UpdatedAt, completed)
}

func sampleWorkflow() models.WorkflowRecord {
	day := time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)
	return models.WorkflowRecord{
		ID:           "wf-1",
		Mode:         models.ModeWeekly,
		Status:       models.StatusDraft,
		StartDate:    day,
		EndDate:      day.AddDate(0, 0, 6),
		WorkflowDate: day,
		StoragePath:  "2025/03/03/Weekly/wf-1",
		InitiatedBy:  "admin-1",
		CreatedAt:    day,
		UpdatedAt:    day,
	}
}

func TestWorkflowCreateDefaults(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewWorkflowRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO warning_workflows")).WillReturnResult(sqlmock.NewResult(1, 1))

	day := time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)
	rec := &models.WorkflowRecord{Mode: models.ModeSingle, StartDate: day, EndDate: day, WorkflowDate: day, InitiatedBy: "admin-1"}
	require.NoError(t, repo.Create(context.Background(), rec))
	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, models.StatusDraft, rec.Status)
	assert.False(t, rec.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWorkflowGetByID(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewWorkflowRepository(db)

	rec := sampleWorkflow()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, mode, status")).
		WithArgs("wf-1").
		WillReturnRows(workflowRows(rec))

	got, err := repo.GetByID(context.Background(), "wf-1")
	require.NoError(t, err)
	assert.Equal(t, models.ModeWeekly, got.Mode)
	assert.Equal(t, models.StatusDraft, got.Status)
	assert.Equal(t, "2025/03/03/Weekly/wf-1", got.StoragePath)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWorkflowGetByIDNotFound(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewWorkflowRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, mode, status")).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, sql.ErrNoRows))
}

func TestWorkflowUpdatePartialSet(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewWorkflowRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE warning_workflows SET status = $1, warnings_sent = $2, updated_at = $3 WHERE id = $4")).
		WithArgs(models.StatusLocked, 7, sqlmock.AnyArg(), "wf-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	status := models.StatusLocked
	sent := 7
	require.NoError(t, repo.Update(context.Background(), "wf-1", UpdateWorkflowParams{Status: &status, WarningsSent: &sent}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWorkflowUpdateNoFields(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewWorkflowRepository(db)

	require.NoError(t, repo.Update(context.Background(), "wf-1", UpdateWorkflowParams{}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWorkflowListFilters(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewWorkflowRepository(db)

	mode := models.ModeWeekly
	status := models.StatusLocked
	mock.ExpectQuery(regexp.QuoteMeta("FROM warning_workflows WHERE 1=1 AND mode = $1 AND status = $2 ORDER BY created_at DESC LIMIT 10 OFFSET 10")).
		WithArgs(mode, status).
		WillReturnRows(workflowRows(sampleWorkflow()))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM warning_workflows WHERE 1=1 AND mode = $1 AND status = $2")).
		WithArgs(mode, status).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(27))

	records, total, err := repo.List(context.Background(), models.WorkflowFilter{Mode: &mode, Status: &status, Page: 2, PageSize: 10})
	require.NoError(t, err)
	assert.Len(t, records, 1)
	assert.Equal(t, 27, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWorkflowListRejectsUnknownSort(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewWorkflowRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM warning_workflows WHERE 1=1 ORDER BY created_at DESC LIMIT 20 OFFSET 0")).
		WillReturnRows(workflowRows(sampleWorkflow()))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM warning_workflows WHERE 1=1")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	_, _, err := repo.List(context.Background(), models.WorkflowFilter{SortBy: "initiated_by; DROP TABLE users", SortOrder: "sideways"})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWorkflowExistsOverlappingWeekly(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewWorkflowRepository(db)

	start := time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 6)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS")).
		WithArgs(start, end).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	exists, err := repo.ExistsOverlappingWeekly(context.Background(), start, end)
	require.NoError(t, err)
	assert.True(t, exists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWorkflowListWeeklyProcessed(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewWorkflowRepository(db)

	rec := sampleWorkflow()
	rec.Status = models.StatusCompleted
	mock.ExpectQuery(regexp.QuoteMeta("WHERE mode = 'weekly' AND status IN ('locked', 'completed') ORDER BY start_date DESC")).
		WillReturnRows(workflowRows(rec))

	records, err := repo.ListWeeklyProcessed(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, models.StatusCompleted, records[0].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWorkflowDelete(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewWorkflowRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM warning_workflows WHERE id = $1")).
		WithArgs("wf-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Delete(context.Background(), "wf-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}
