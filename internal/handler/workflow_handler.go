package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Juls-123/chapel-admin-sub000/internal/middleware"
	"github.com/Juls-123/chapel-admin-sub000/internal/models"
	"github.com/Juls-123/chapel-admin-sub000/internal/service"
	appErrors "github.com/Juls-123/chapel-admin-sub000/pkg/errors"
	"github.com/Juls-123/chapel-admin-sub000/pkg/response"
)

type workflowManager interface {
	Create(ctx context.Context, adminID string, req service.CreateWorkflowRequest) (*models.WorkflowRecord, error)
	GenerateWarnings(ctx context.Context, adminID, id string, minMissCount int) (*models.WarningList, error)
	Lock(ctx context.Context, adminID, id string) error
	Complete(ctx context.Context, adminID, id string) error
	Fail(ctx context.Context, adminID, id, reason string) error
	Get(ctx context.Context, id string) (*models.WorkflowRecord, error)
	Warnings(ctx context.Context, id string) (*models.WarningList, error)
	List(ctx context.Context, filter models.WorkflowFilter) ([]models.WorkflowRecord, *models.Pagination, bool, error)
	Delete(ctx context.Context, adminID, id string) error
	Reconcile(ctx context.Context, repair bool) (*models.ReconcileReport, error)
}

type auditTrailReader interface {
	Trail(ctx context.Context, workflowID string, page, pageSize int) ([]models.AuditLog, *models.Pagination, error)
}

// WorkflowHandler exposes the warning workflow lifecycle endpoints.
type WorkflowHandler struct {
	workflows workflowManager
	audit     auditTrailReader
}

// NewWorkflowHandler constructs WorkflowHandler.
func NewWorkflowHandler(workflows workflowManager, audit auditTrailReader) *WorkflowHandler {
	return &WorkflowHandler{workflows: workflows, audit: audit}
}

// Create godoc
// @Summary Create warning workflow
// @Description Open a draft workflow for a single date, batch selection or week
// @Tags Workflows
// @Accept json
// @Produce json
// @Param payload body service.CreateWorkflowRequest true "Workflow payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /workflows [post]
func (h *WorkflowHandler) Create(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.CreateWorkflowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid workflow payload"))
		return
	}

	record, err := h.workflows.Create(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, record)
}

// List godoc
// @Summary List workflows
// @Tags Workflows
// @Produce json
// @Param mode query string false "Filter by mode (single|batch|weekly)"
// @Param status query string false "Filter by status (draft|locked|completed|failed)"
// @Param initiatedBy query string false "Filter by initiating admin"
// @Param dateFrom query string false "Creation date lower bound (YYYY-MM-DD)"
// @Param dateTo query string false "Creation date upper bound (YYYY-MM-DD)"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /workflows [get]
func (h *WorkflowHandler) List(c *gin.Context) {
	var filter models.WorkflowFilter
	if raw := strings.TrimSpace(c.Query("mode")); raw != "" {
		mode := models.WorkflowMode(raw)
		filter.Mode = &mode
	}
	if raw := strings.TrimSpace(c.Query("status")); raw != "" {
		status := models.WorkflowStatus(raw)
		filter.Status = &status
	}
	filter.InitiatedBy = c.Query("initiatedBy")
	if raw := c.Query("dateFrom"); raw != "" {
		if from, err := time.Parse("2006-01-02", raw); err == nil {
			filter.DateFrom = &from
		}
	}
	if raw := c.Query("dateTo"); raw != "" {
		if to, err := time.Parse("2006-01-02", raw); err == nil {
			filter.DateTo = &to
		}
	}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}
	filter.SortBy = c.Query("sort")
	filter.SortOrder = c.Query("order")

	records, pagination, cacheHit, err := h.workflows.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.MarkCacheHit(c, cacheHit)
	response.JSON(c, http.StatusOK, records, pagination, middleware.Meta(c))
}

// Get godoc
// @Summary Get workflow detail
// @Tags Workflows
// @Produce json
// @Param id path string true "Workflow ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /workflows/{id} [get]
func (h *WorkflowHandler) Get(c *gin.Context) {
	record, err := h.workflows.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}

// Delete godoc
// @Summary Delete workflow
// @Description Delete a draft or failed workflow. Locked and completed workflows are protected.
// @Tags Workflows
// @Produce json
// @Param id path string true "Workflow ID"
// @Success 204
// @Failure 409 {object} response.Envelope
// @Router /workflows/{id} [delete]
func (h *WorkflowHandler) Delete(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	if err := h.workflows.Delete(c.Request.Context(), claims.UserID, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Generate godoc
// @Summary Generate warning list
// @Description Collect absentees for the workflow's combinations and build the filtered warning list
// @Tags Workflows
// @Accept json
// @Produce json
// @Param id path string true "Workflow ID"
// @Param payload body object false "Optional {min_miss_count}"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /workflows/{id}/generate [post]
func (h *WorkflowHandler) Generate(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req struct {
		MinMissCount int `json:"min_miss_count"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid generation payload"))
			return
		}
	}

	list, err := h.workflows.GenerateWarnings(c.Request.Context(), claims.UserID, c.Param("id"), req.MinMissCount)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, list, nil)
}

// Warnings godoc
// @Summary Get generated warning list
// @Tags Workflows
// @Produce json
// @Param id path string true "Workflow ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /workflows/{id}/warnings [get]
func (h *WorkflowHandler) Warnings(c *gin.Context) {
	list, err := h.workflows.Warnings(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, list, nil)
}

// Lock godoc
// @Summary Lock workflow
// @Description Freeze the warning list ahead of sending and exporting
// @Tags Workflows
// @Produce json
// @Param id path string true "Workflow ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /workflows/{id}/lock [post]
func (h *WorkflowHandler) Lock(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	if err := h.workflows.Lock(c.Request.Context(), claims.UserID, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	record, err := h.workflows.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}

// Complete godoc
// @Summary Complete workflow
// @Description Close a locked workflow; counters freeze afterwards
// @Tags Workflows
// @Produce json
// @Param id path string true "Workflow ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /workflows/{id}/complete [post]
func (h *WorkflowHandler) Complete(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	if err := h.workflows.Complete(c.Request.Context(), claims.UserID, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	record, err := h.workflows.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}

// Fail godoc
// @Summary Mark workflow failed
// @Description Record a failure reason on a draft or locked workflow
// @Tags Workflows
// @Accept json
// @Produce json
// @Param id path string true "Workflow ID"
// @Param payload body object true "{reason}"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /workflows/{id}/fail [post]
func (h *WorkflowHandler) Fail(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req struct {
		Reason string `json:"reason" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "failure reason required"))
		return
	}

	if err := h.workflows.Fail(c.Request.Context(), claims.UserID, c.Param("id"), req.Reason); err != nil {
		response.Error(c, err)
		return
	}
	record, err := h.workflows.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}

// AuditTrail godoc
// @Summary Workflow audit trail
// @Tags Workflows
// @Produce json
// @Param id path string true "Workflow ID"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /workflows/{id}/audit [get]
func (h *WorkflowHandler) AuditTrail(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	logs, pagination, err := h.audit.Trail(c.Request.Context(), c.Param("id"), page, size)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, logs, pagination)
}

// Reconcile godoc
// @Summary Reconcile workflow stores
// @Description Scan draft workflows for missing meta artifacts, optionally repairing them
// @Tags Workflows
// @Produce json
// @Param repair query bool false "Re-seed missing meta reports"
// @Success 200 {object} response.Envelope
// @Router /workflows/reconcile [post]
func (h *WorkflowHandler) Reconcile(c *gin.Context) {
	repair := c.Query("repair") == "true"
	report, err := h.workflows.Reconcile(c.Request.Context(), repair)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report, nil)
}
