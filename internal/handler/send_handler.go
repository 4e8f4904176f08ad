package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Juls-123/chapel-admin-sub000/internal/models"
	"github.com/Juls-123/chapel-admin-sub000/internal/service"
	appErrors "github.com/Juls-123/chapel-admin-sub000/pkg/errors"
	"github.com/Juls-123/chapel-admin-sub000/pkg/response"
)

type sendRunner interface {
	StartSendRun(ctx context.Context, adminID, workflowID string) (*service.SendRunReceipt, error)
	DeliveryReport(ctx context.Context, workflowID string) (*models.EmailDeliveryReport, error)
}

// SendHandler exposes the warning email send pipeline.
type SendHandler struct {
	sender sendRunner
}

// NewSendHandler constructs SendHandler.
func NewSendHandler(sender sendRunner) *SendHandler {
	return &SendHandler{sender: sender}
}

// Start godoc
// @Summary Start warning send run
// @Description Queue email delivery for every unsent warning on a locked workflow
// @Tags Sending
// @Produce json
// @Param id path string true "Workflow ID"
// @Success 202 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /workflows/{id}/send [post]
func (h *SendHandler) Start(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	receipt, err := h.sender.StartSendRun(c.Request.Context(), claims.UserID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusAccepted, receipt, nil)
}

// Report godoc
// @Summary Email delivery report
// @Description Per-student delivery outcomes from the latest send runs
// @Tags Sending
// @Produce json
// @Param id path string true "Workflow ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /workflows/{id}/delivery [get]
func (h *SendHandler) Report(c *gin.Context) {
	report, err := h.sender.DeliveryReport(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report, nil)
}
