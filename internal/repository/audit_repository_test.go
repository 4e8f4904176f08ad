package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Juls-123/chapel-admin-sub000/internal/models"
)

func TestAuditCreateFillsDefaults(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAuditRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO audit_logs")).WillReturnResult(sqlmock.NewResult(1, 1))

	adminID := "admin-1"
	objectID := "wf-1"
	entry := &models.AuditLog{
		AdminID:     &adminID,
		Action:      models.AuditActionWorkflowCreated,
		ObjectType:  models.ObjectTypeWorkflow,
		ObjectID:    &objectID,
		ObjectLabel: "weekly 2025-01-06",
		Details:     []byte(`{"mode":"weekly"}`),
	}
	require.NoError(t, repo.Create(context.Background(), entry))
	assert.NotEmpty(t, entry.ID)
	assert.False(t, entry.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditListFilters(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAuditRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "admin_id", "action", "object_type", "object_id", "object_label", "details", "ip_address", "user_agent", "created_at"}).
		AddRow("log-1", "admin-1", models.AuditActionWorkflowLocked, models.ObjectTypeWorkflow, "wf-1", "weekly 2025-01-06", []byte(`{}`), "10.0.0.1", "curl", now)
	mock.ExpectQuery(regexp.QuoteMeta("FROM audit_logs WHERE 1=1 AND admin_id = $1 AND object_id = $2 ORDER BY created_at DESC LIMIT 20 OFFSET 20")).
		WithArgs("admin-1", "wf-1").
		WillReturnRows(rows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM audit_logs WHERE 1=1 AND admin_id = $1 AND object_id = $2")).
		WithArgs("admin-1", "wf-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(21))

	logs, total, err := repo.List(context.Background(), models.AuditFilter{AdminID: "admin-1", ObjectID: "wf-1", Page: 2})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, models.AuditActionWorkflowLocked, logs[0].Action)
	assert.Equal(t, 21, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditListDefaultsPaging(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAuditRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM audit_logs WHERE 1=1 ORDER BY created_at DESC LIMIT 20 OFFSET 0")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "admin_id", "action", "object_type", "object_id", "object_label", "details", "ip_address", "user_agent", "created_at"}))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM audit_logs WHERE 1=1")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	logs, total, err := repo.List(context.Background(), models.AuditFilter{Page: -3, PageSize: 9999})
	require.NoError(t, err)
	assert.Empty(t, logs)
	assert.Equal(t, 0, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}
