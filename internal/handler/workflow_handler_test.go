package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Juls-123/chapel-admin-sub000/internal/middleware"
	"github.com/Juls-123/chapel-admin-sub000/internal/models"
	"github.com/Juls-123/chapel-admin-sub000/internal/service"
	appErrors "github.com/Juls-123/chapel-admin-sub000/pkg/errors"
)

type fakeWorkflowManager struct {
	record *models.WorkflowRecord
	list   *models.WarningList
	report *models.ReconcileReport
	err    error

	lastAdmin  string
	lastReq    service.CreateWorkflowRequest
	lastMin    int
	lastReason string
	lastFilter models.WorkflowFilter
	lastRepair bool
	cacheHit   bool
	deleted    []string
	locked     []string
	completed  []string
}

func (f *fakeWorkflowManager) Create(_ context.Context, adminID string, req service.CreateWorkflowRequest) (*models.WorkflowRecord, error) {
	f.lastAdmin = adminID
	f.lastReq = req
	return f.record, f.err
}

func (f *fakeWorkflowManager) GenerateWarnings(_ context.Context, adminID, id string, minMissCount int) (*models.WarningList, error) {
	f.lastAdmin = adminID
	f.lastMin = minMissCount
	return f.list, f.err
}

func (f *fakeWorkflowManager) Lock(_ context.Context, adminID, id string) error {
	f.locked = append(f.locked, id)
	return f.err
}

func (f *fakeWorkflowManager) Complete(_ context.Context, adminID, id string) error {
	f.completed = append(f.completed, id)
	return f.err
}

func (f *fakeWorkflowManager) Fail(_ context.Context, adminID, id, reason string) error {
	f.lastReason = reason
	return f.err
}

func (f *fakeWorkflowManager) Get(context.Context, string) (*models.WorkflowRecord, error) {
	if f.record == nil {
		return nil, appErrors.ErrNotFound
	}
	return f.record, nil
}

func (f *fakeWorkflowManager) Warnings(context.Context, string) (*models.WarningList, error) {
	return f.list, f.err
}

func (f *fakeWorkflowManager) List(_ context.Context, filter models.WorkflowFilter) ([]models.WorkflowRecord, *models.Pagination, bool, error) {
	f.lastFilter = filter
	if f.record == nil {
		return nil, &models.Pagination{}, false, f.err
	}
	return []models.WorkflowRecord{*f.record}, &models.Pagination{TotalCount: 1, Page: filter.Page, PageSize: filter.PageSize}, f.cacheHit, f.err
}

func (f *fakeWorkflowManager) Delete(_ context.Context, adminID, id string) error {
	f.deleted = append(f.deleted, id)
	return f.err
}

func (f *fakeWorkflowManager) Reconcile(_ context.Context, repair bool) (*models.ReconcileReport, error) {
	f.lastRepair = repair
	return f.report, f.err
}

type fakeTrailReader struct {
	logs     []models.AuditLog
	lastPage int
	lastSize int
}

func (f *fakeTrailReader) Trail(_ context.Context, workflowID string, page, pageSize int) ([]models.AuditLog, *models.Pagination, error) {
	f.lastPage = page
	f.lastSize = pageSize
	return f.logs, &models.Pagination{TotalCount: len(f.logs), Page: page, PageSize: pageSize}, nil
}

func newGinContext(method, path string, body []byte) (*gin.Context, *httptest.ResponseRecorder) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	return c, w
}

func adminClaims() *models.JWTClaims {
	return &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin, Email: "admin@chapel.edu"}
}

func draftRecord() *models.WorkflowRecord {
	return &models.WorkflowRecord{
		ID:        "wf-1",
		Mode:      models.ModeSingle,
		Status:    models.StatusDraft,
		StartDate: time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC),
	}
}

func TestWorkflowHandlerCreate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	manager := &fakeWorkflowManager{record: draftRecord()}
	handler := NewWorkflowHandler(manager, &fakeTrailReader{})

	payload, _ := json.Marshal(service.CreateWorkflowRequest{Mode: models.ModeSingle, Date: "2025-03-03"})
	c, w := newGinContext(http.MethodPost, "/workflows", payload)
	c.Set(middleware.ContextUserKey, adminClaims())

	handler.Create(c)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "admin-1", manager.lastAdmin)
	assert.Equal(t, models.ModeSingle, manager.lastReq.Mode)
	assert.Equal(t, "2025-03-03", manager.lastReq.Date)
}

func TestWorkflowHandlerCreateRequiresAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewWorkflowHandler(&fakeWorkflowManager{}, &fakeTrailReader{})

	payload, _ := json.Marshal(service.CreateWorkflowRequest{Mode: models.ModeSingle, Date: "2025-03-03"})
	c, w := newGinContext(http.MethodPost, "/workflows", payload)

	handler.Create(c)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestWorkflowHandlerCreateInvalidPayload(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewWorkflowHandler(&fakeWorkflowManager{}, &fakeTrailReader{})

	c, w := newGinContext(http.MethodPost, "/workflows", []byte("{not json"))
	c.Set(middleware.ContextUserKey, adminClaims())

	handler.Create(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWorkflowHandlerCreateDuplicateWeek(t *testing.T) {
	gin.SetMode(gin.TestMode)
	manager := &fakeWorkflowManager{err: appErrors.Clone(appErrors.ErrWeekDuplicate, "week already processed")}
	handler := NewWorkflowHandler(manager, &fakeTrailReader{})

	payload, _ := json.Marshal(service.CreateWorkflowRequest{Mode: models.ModeWeekly, Date: "2025-03-05"})
	c, w := newGinContext(http.MethodPost, "/workflows", payload)
	c.Set(middleware.ContextUserKey, adminClaims())

	handler.Create(c)

	assert.Equal(t, appErrors.ErrWeekDuplicate.Status, w.Code)
}

func TestWorkflowHandlerGenerateDefaultsThreshold(t *testing.T) {
	gin.SetMode(gin.TestMode)
	manager := &fakeWorkflowManager{list: &models.WarningList{WorkflowID: "wf-1"}}
	handler := NewWorkflowHandler(manager, &fakeTrailReader{})

	c, w := newGinContext(http.MethodPost, "/workflows/wf-1/generate", nil)
	c.Params = gin.Params{{Key: "id", Value: "wf-1"}}
	c.Set(middleware.ContextUserKey, adminClaims())

	handler.Generate(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0, manager.lastMin)
}

func TestWorkflowHandlerGeneratePassesThreshold(t *testing.T) {
	gin.SetMode(gin.TestMode)
	manager := &fakeWorkflowManager{list: &models.WarningList{WorkflowID: "wf-1"}}
	handler := NewWorkflowHandler(manager, &fakeTrailReader{})

	c, w := newGinContext(http.MethodPost, "/workflows/wf-1/generate", []byte(`{"min_miss_count":5}`))
	c.Params = gin.Params{{Key: "id", Value: "wf-1"}}
	c.Set(middleware.ContextUserKey, adminClaims())

	handler.Generate(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 5, manager.lastMin)
}

func TestWorkflowHandlerFailRequiresReason(t *testing.T) {
	gin.SetMode(gin.TestMode)
	manager := &fakeWorkflowManager{record: draftRecord()}
	handler := NewWorkflowHandler(manager, &fakeTrailReader{})

	c, w := newGinContext(http.MethodPost, "/workflows/wf-1/fail", []byte(`{}`))
	c.Params = gin.Params{{Key: "id", Value: "wf-1"}}
	c.Set(middleware.ContextUserKey, adminClaims())

	handler.Fail(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, manager.lastReason)
}

func TestWorkflowHandlerFailRecordsReason(t *testing.T) {
	gin.SetMode(gin.TestMode)
	manager := &fakeWorkflowManager{record: draftRecord()}
	handler := NewWorkflowHandler(manager, &fakeTrailReader{})

	c, w := newGinContext(http.MethodPost, "/workflows/wf-1/fail", []byte(`{"reason":"collector crashed"}`))
	c.Params = gin.Params{{Key: "id", Value: "wf-1"}}
	c.Set(middleware.ContextUserKey, adminClaims())

	handler.Fail(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "collector crashed", manager.lastReason)
}

func TestWorkflowHandlerListParsesFilter(t *testing.T) {
	gin.SetMode(gin.TestMode)
	manager := &fakeWorkflowManager{record: draftRecord()}
	handler := NewWorkflowHandler(manager, &fakeTrailReader{})

	c, w := newGinContext(http.MethodGet, "/workflows?mode=weekly&status=draft&page=2&limit=5&dateFrom=2025-01-01", nil)

	handler.List(c)

	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, manager.lastFilter.Mode)
	assert.Equal(t, models.ModeWeekly, *manager.lastFilter.Mode)
	require.NotNil(t, manager.lastFilter.Status)
	assert.Equal(t, models.StatusDraft, *manager.lastFilter.Status)
	assert.Equal(t, 2, manager.lastFilter.Page)
	assert.Equal(t, 5, manager.lastFilter.PageSize)
	require.NotNil(t, manager.lastFilter.DateFrom)
	assert.Equal(t, "2025-01-01", manager.lastFilter.DateFrom.Format("2006-01-02"))
}

func TestWorkflowHandlerListMarksCacheHit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	manager := &fakeWorkflowManager{record: draftRecord(), cacheHit: true}
	handler := NewWorkflowHandler(manager, &fakeTrailReader{})

	c, w := newGinContext(http.MethodGet, "/workflows", nil)

	handler.List(c)

	require.Equal(t, http.StatusOK, w.Code)
	var envelope struct {
		Meta map[string]interface{} `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	assert.Equal(t, true, envelope.Meta["cache_hit"])
}

func TestWorkflowHandlerLockReturnsRecord(t *testing.T) {
	gin.SetMode(gin.TestMode)
	record := draftRecord()
	record.Status = models.StatusLocked
	manager := &fakeWorkflowManager{record: record}
	handler := NewWorkflowHandler(manager, &fakeTrailReader{})

	c, w := newGinContext(http.MethodPost, "/workflows/wf-1/lock", nil)
	c.Params = gin.Params{{Key: "id", Value: "wf-1"}}
	c.Set(middleware.ContextUserKey, adminClaims())

	handler.Lock(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"wf-1"}, manager.locked)

	var envelope responseEnvelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	assert.Equal(t, string(models.StatusLocked), envelope.Data["status"])
}

func TestWorkflowHandlerDeleteProtected(t *testing.T) {
	gin.SetMode(gin.TestMode)
	manager := &fakeWorkflowManager{err: appErrors.Clone(appErrors.ErrWorkflowProtected, "locked workflow cannot be deleted")}
	handler := NewWorkflowHandler(manager, &fakeTrailReader{})

	c, w := newGinContext(http.MethodDelete, "/workflows/wf-1", nil)
	c.Params = gin.Params{{Key: "id", Value: "wf-1"}}
	c.Set(middleware.ContextUserKey, adminClaims())

	handler.Delete(c)

	assert.Equal(t, appErrors.ErrWorkflowProtected.Status, w.Code)
}

func TestWorkflowHandlerGetNotFound(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewWorkflowHandler(&fakeWorkflowManager{}, &fakeTrailReader{})

	c, w := newGinContext(http.MethodGet, "/workflows/missing", nil)
	c.Params = gin.Params{{Key: "id", Value: "missing"}}

	handler.Get(c)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestWorkflowHandlerReconcileRepairFlag(t *testing.T) {
	gin.SetMode(gin.TestMode)
	manager := &fakeWorkflowManager{report: &models.ReconcileReport{Scanned: 3}}
	handler := NewWorkflowHandler(manager, &fakeTrailReader{})

	c, w := newGinContext(http.MethodPost, "/workflows/reconcile?repair=true", nil)

	handler.Reconcile(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, manager.lastRepair)
}

func TestWorkflowHandlerAuditTrail(t *testing.T) {
	gin.SetMode(gin.TestMode)
	trail := &fakeTrailReader{logs: []models.AuditLog{{Action: models.AuditActionWorkflowCreated}}}
	handler := NewWorkflowHandler(&fakeWorkflowManager{}, trail)

	c, w := newGinContext(http.MethodGet, "/workflows/wf-1/audit?page=2&limit=10", nil)
	c.Params = gin.Params{{Key: "id", Value: "wf-1"}}

	handler.AuditTrail(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 2, trail.lastPage)
	assert.Equal(t, 10, trail.lastSize)
}

type responseEnvelope struct {
	Data map[string]interface{} `json:"data"`
	Meta map[string]interface{} `json:"meta"`
}
