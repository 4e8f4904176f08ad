package service

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/Juls-123/chapel-admin-sub000/internal/models"
)

type auditSink interface {
	Create(ctx context.Context, entry *models.AuditLog) error
	List(ctx context.Context, filter models.AuditFilter) ([]models.AuditLog, int, error)
}

type auditMetaKey struct{}

// RequestMeta carries the client address and agent of the request that
// triggered an audited action.
type RequestMeta struct {
	IP        string
	UserAgent string
}

// WithRequestMeta returns a context carrying request metadata for audit
// attribution. Installed once per request by the AuditMeta middleware.
func WithRequestMeta(ctx context.Context, meta RequestMeta) context.Context {
	return context.WithValue(ctx, auditMetaKey{}, meta)
}

func requestMetaFrom(ctx context.Context) (RequestMeta, bool) {
	meta, ok := ctx.Value(auditMetaKey{}).(RequestMeta)
	return meta, ok
}

// AuditService records lifecycle events against the append-only trail.
// Writes are fire and forget: a failed insert is warn-logged and
// swallowed, never surfaced to the operation being audited.
type AuditService struct {
	sink   auditSink
	logger *zap.Logger
}

// NewAuditService constructs the recorder.
func NewAuditService(sink auditSink, logger *zap.Logger) *AuditService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuditService{sink: sink, logger: logger}
}

// RecordWorkflow writes one workflow event. Details may be any
// JSON-serializable value; a marshal failure drops the details but
// still records the event.
func (s *AuditService) RecordWorkflow(ctx context.Context, adminID, action, workflowID, label string, details interface{}) {
	entry := &models.AuditLog{
		Action:      action,
		ObjectType:  models.ObjectTypeWorkflow,
		ObjectLabel: label,
	}
	if adminID != "" {
		entry.AdminID = &adminID
	}
	if workflowID != "" {
		entry.ObjectID = &workflowID
	}
	if details != nil {
		payload, err := json.Marshal(details)
		if err != nil {
			s.logger.Warn("audit details not serializable",
				zap.String("action", action),
				zap.String("workflow_id", workflowID),
				zap.Error(err))
		} else {
			entry.Details = payload
		}
	}
	s.record(ctx, entry)
}

// RecordAuth writes one authentication event.
func (s *AuditService) RecordAuth(ctx context.Context, adminID, action, label, ip, userAgent string) {
	entry := &models.AuditLog{
		Action:      action,
		ObjectType:  models.ObjectTypeAuth,
		ObjectLabel: label,
		IPAddress:   ip,
		UserAgent:   userAgent,
	}
	if adminID != "" {
		entry.AdminID = &adminID
	}
	s.record(ctx, entry)
}

// Trail lists the audit entries for one workflow, newest first.
func (s *AuditService) Trail(ctx context.Context, workflowID string, page, pageSize int) ([]models.AuditLog, *models.Pagination, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	entries, total, err := s.sink.List(ctx, models.AuditFilter{
		ObjectType: models.ObjectTypeWorkflow,
		ObjectID:   workflowID,
		Page:       page,
		PageSize:   pageSize,
	})
	if err != nil {
		return nil, nil, err
	}
	return entries, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}, nil
}

func (s *AuditService) record(ctx context.Context, entry *models.AuditLog) {
	if s == nil || s.sink == nil {
		return
	}
	if entry.IPAddress == "" {
		if meta, ok := requestMetaFrom(ctx); ok {
			entry.IPAddress = meta.IP
			entry.UserAgent = meta.UserAgent
		}
	}
	if err := s.sink.Create(ctx, entry); err != nil {
		s.logger.Warn("audit write failed",
			zap.String("action", entry.Action),
			zap.String("object_label", entry.ObjectLabel),
			zap.Error(err))
	}
}
