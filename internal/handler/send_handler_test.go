package handler

import (
	"context"
	"net/http"
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

type fakeSendRunner struct {
	receipt *service.SendRunReceipt
	report  *models.EmailDeliveryReport
	err     error

	lastAdmin    string
	lastWorkflow string
}

func (f *fakeSendRunner) StartSendRun(_ context.Context, adminID, workflowID string) (*service.SendRunReceipt, error) {
	f.lastAdmin = adminID
	f.lastWorkflow = workflowID
	return f.receipt, f.err
}

func (f *fakeSendRunner) DeliveryReport(_ context.Context, workflowID string) (*models.EmailDeliveryReport, error) {
	f.lastWorkflow = workflowID
	return f.report, f.err
}

func TestSendHandlerStartAccepted(t *testing.T) {
	gin.SetMode(gin.TestMode)
	runner := &fakeSendRunner{
		receipt: &service.SendRunReceipt{WorkflowID: "wf-1", Candidates: 12, QueuedAt: time.Now()},
	}
	handler := NewSendHandler(runner)

	c, w := newGinContext(http.MethodPost, "/workflows/wf-1/send", nil)
	c.Params = gin.Params{{Key: "id", Value: "wf-1"}}
	c.Set(middleware.ContextUserKey, adminClaims())

	handler.Start(c)

	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "admin-1", runner.lastAdmin)
	assert.Equal(t, "wf-1", runner.lastWorkflow)
}

func TestSendHandlerStartRequiresAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewSendHandler(&fakeSendRunner{})

	c, w := newGinContext(http.MethodPost, "/workflows/wf-1/send", nil)
	c.Params = gin.Params{{Key: "id", Value: "wf-1"}}

	handler.Start(c)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestSendHandlerStartConflict(t *testing.T) {
	gin.SetMode(gin.TestMode)
	runner := &fakeSendRunner{err: appErrors.Clone(appErrors.ErrConflict, "workflow is draft, lock it before sending")}
	handler := NewSendHandler(runner)

	c, w := newGinContext(http.MethodPost, "/workflows/wf-1/send", nil)
	c.Params = gin.Params{{Key: "id", Value: "wf-1"}}
	c.Set(middleware.ContextUserKey, adminClaims())

	handler.Start(c)

	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestSendHandlerReport(t *testing.T) {
	gin.SetMode(gin.TestMode)
	runner := &fakeSendRunner{
		report: &models.EmailDeliveryReport{
			WorkflowID: "wf-1",
			Outcomes:   []models.DeliveryOutcome{{StudentID: "s1", Delivered: true}},
		},
	}
	handler := NewSendHandler(runner)

	c, w := newGinContext(http.MethodGet, "/workflows/wf-1/delivery", nil)
	c.Params = gin.Params{{Key: "id", Value: "wf-1"}}

	handler.Report(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "wf-1", runner.lastWorkflow)
}

func TestSendHandlerReportNotFound(t *testing.T) {
	gin.SetMode(gin.TestMode)
	runner := &fakeSendRunner{err: appErrors.Clone(appErrors.ErrNotFound, "no send run recorded yet")}
	handler := NewSendHandler(runner)

	c, w := newGinContext(http.MethodGet, "/workflows/wf-1/delivery", nil)
	c.Params = gin.Params{{Key: "id", Value: "wf-1"}}

	handler.Report(c)

	assert.Equal(t, http.StatusNotFound, w.Code)
}
