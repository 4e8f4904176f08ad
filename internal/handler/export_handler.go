package handler

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/Juls-123/chapel-admin-sub000/internal/service"
	appErrors "github.com/Juls-123/chapel-admin-sub000/pkg/errors"
	"github.com/Juls-123/chapel-admin-sub000/pkg/response"
)

type exportRunner interface {
	Export(ctx context.Context, adminID, workflowID, format string) (*service.ExportResult, error)
	Resolve(ctx context.Context, token string) (*os.File, string, error)
}

// ExportHandler exposes warning list exports and signed downloads.
type ExportHandler struct {
	exports exportRunner
}

// NewExportHandler constructs ExportHandler.
func NewExportHandler(exports exportRunner) *ExportHandler {
	return &ExportHandler{exports: exports}
}

// Export godoc
// @Summary Export warning list
// @Description Render the warning list as CSV or PDF and return a signed download token
// @Tags Exports
// @Accept json
// @Produce json
// @Param id path string true "Workflow ID"
// @Param payload body object true "{format: csv|pdf}"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /workflows/{id}/export [post]
func (h *ExportHandler) Export(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req struct {
		Format string `json:"format" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "export format required"))
		return
	}

	result, err := h.exports.Export(c.Request.Context(), claims.UserID, c.Param("id"), req.Format)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Download godoc
// @Summary Download exported file
// @Description Stream an export referenced by its signed token. No session required; the token is the credential.
// @Tags Exports
// @Produce octet-stream
// @Param token path string true "Signed download token"
// @Success 200 {file} binary
// @Failure 401 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /downloads/{token} [get]
func (h *ExportHandler) Download(c *gin.Context) {
	file, name, err := h.exports.Resolve(c.Request.Context(), c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, http.StatusInternalServerError, "export file unreadable"))
		return
	}

	contentType := "application/octet-stream"
	switch {
	case strings.HasSuffix(name, ".csv"):
		contentType = "text/csv"
	case strings.HasSuffix(name, ".pdf"):
		contentType = "application/pdf"
	}

	extra := map[string]string{
		"Content-Disposition": fmt.Sprintf("attachment; filename=%q", name),
	}
	c.DataFromReader(http.StatusOK, info.Size(), contentType, file, extra)
}
