package service

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Juls-123/chapel-admin-sub000/internal/models"
	"github.com/Juls-123/chapel-admin-sub000/internal/repository"
	appErrors "github.com/Juls-123/chapel-admin-sub000/pkg/errors"
)

// reconcileScanLimit bounds one reconcile sweep.
const reconcileScanLimit = 200

const workflowCachePattern = "workflows:*"

type workflowStore interface {
	Create(ctx context.Context, record *models.WorkflowRecord) error
	GetByID(ctx context.Context, id string) (*models.WorkflowRecord, error)
	Update(ctx context.Context, id string, params repository.UpdateWorkflowParams) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, filter models.WorkflowFilter) ([]models.WorkflowRecord, int, error)
	ExistsOverlappingWeekly(ctx context.Context, start, end time.Time) (bool, error)
	ListWeeklyProcessed(ctx context.Context) ([]models.WorkflowRecord, error)
	ListByStatus(ctx context.Context, status models.WorkflowStatus, limit int) ([]models.WorkflowRecord, error)
}

type workflowArtifacts interface {
	StoragePath(creationDate time.Time, mode models.WorkflowMode, workflowID string) string
	SaveWarningList(ctx context.Context, path string, list *models.WarningList) error
	LoadWarningList(ctx context.Context, path string) (*models.WarningList, error)
	SaveMetaReport(ctx context.Context, path string, report *models.MetaReport) error
	LoadMetaReport(ctx context.Context, path string) (*models.MetaReport, error)
}

type batchParser interface {
	ParseSelection(ctx context.Context, sel models.BatchSelection) (*models.BatchQuery, error)
}

type absenteeCollector interface {
	Collect(ctx context.Context, combinations []models.ServiceCombination) []models.MergedAbsentee
}

type warningListBuilder interface {
	Build(ctx context.Context, workflowID string, minMissCount int, absentees []models.MergedAbsentee) *models.WarningList
}

type workflowAuditRecorder interface {
	RecordWorkflow(ctx context.Context, adminID, action, workflowID, label string, details interface{})
}

// CreateWorkflowRequest is the input for Create. Date drives single and
// weekly modes; Selection drives batch mode.
type CreateWorkflowRequest struct {
	Mode      models.WorkflowMode    `json:"mode" validate:"required"`
	Date      string                 `json:"date,omitempty"`
	Selection *models.BatchSelection `json:"selection,omitempty"`
}

// WorkflowService orchestrates the warning workflow lifecycle across
// the record store, the artifact store and the audit trail. The record
// store is ground truth: every counter update re-reads it first, and
// mid-operation failures are surfaced rather than rolled back.
type WorkflowService struct {
	workflows    workflowStore
	artifacts    workflowArtifacts
	batches      batchParser
	collector    absenteeCollector
	builder      warningListBuilder
	registry     serviceRegistry
	audit        workflowAuditRecorder
	cache        *CacheService
	metrics      *MetricsService
	validator    *validator.Validate
	logger       *zap.Logger
	defaultMin   int
}

// NewWorkflowService wires the workflow manager.
func NewWorkflowService(
	workflows workflowStore,
	artifacts workflowArtifacts,
	batches batchParser,
	collector absenteeCollector,
	builder warningListBuilder,
	registry serviceRegistry,
	audit workflowAuditRecorder,
	cache *CacheService,
	metrics *MetricsService,
	validate *validator.Validate,
	logger *zap.Logger,
	defaultMinMissCount int,
) *WorkflowService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if defaultMinMissCount < 1 {
		defaultMinMissCount = 3
	}
	return &WorkflowService{
		workflows:  workflows,
		artifacts:  artifacts,
		batches:    batches,
		collector:  collector,
		builder:    builder,
		registry:   registry,
		audit:      audit,
		cache:      cache,
		metrics:    metrics,
		validator:  validate,
		logger:     logger,
		defaultMin: defaultMinMissCount,
	}
}

// Create opens a draft workflow: expands the selection, computes the
// storage path once, inserts the record, seeds the meta report and
// logs the event. A record insert failure aborts cleanly; a meta write
// failure after the insert leaves a draft without artifacts, which is
// surfaced to the caller and visible to Reconcile.
func (s *WorkflowService) Create(ctx context.Context, adminID string, req CreateWorkflowRequest) (record *models.WorkflowRecord, err error) {
	defer func() { s.metrics.RecordWorkflowOperation("create", err) }()

	if err = s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid workflow request")
	}
	if !req.Mode.IsValid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown mode %q", req.Mode))
	}

	query, startDate, endDate, err := s.expandRequest(ctx, req)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	workflowDate := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	id := uuid.NewString()
	path := s.artifacts.StoragePath(workflowDate, req.Mode, id)

	record = &models.WorkflowRecord{
		ID:            id,
		Mode:          req.Mode,
		Status:        models.StatusDraft,
		StartDate:     startDate,
		EndDate:       endDate,
		WorkflowDate:  workflowDate,
		TotalServices: query.TotalServices,
		StoragePath:   path,
		InitiatedBy:   adminID,
	}
	if err = s.workflows.Create(ctx, record); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create workflow record")
	}

	meta := metaFromRecord(record)
	meta.Combinations = query.Combinations
	meta.MissingCombinations = query.MissingCombinations
	if saveErr := s.artifacts.SaveMetaReport(ctx, path, meta); saveErr != nil {
		// The draft record already exists with no artifact behind it.
		err = appErrors.Wrap(saveErr, appErrors.ErrOrchestration.Code, appErrors.ErrOrchestration.Status,
			fmt.Sprintf("workflow %s created but meta report write failed", id))
		return nil, err
	}

	s.audit.RecordWorkflow(ctx, adminID, models.AuditActionWorkflowCreated, id, workflowLabel(record), map[string]interface{}{
		"mode":           record.Mode,
		"start_date":     record.StartDate.Format(dateLayout),
		"end_date":       record.EndDate.Format(dateLayout),
		"total_services": record.TotalServices,
	})
	s.cache.Invalidate(ctx, workflowCachePattern)
	return record, nil
}

// GenerateWarnings runs the collection pipeline for a draft workflow:
// gather absentees for the stored combinations, keep students at or
// above the miss threshold, build the list and persist it through
// SaveWarnings. Safe to re-run; the previous list is overwritten.
func (s *WorkflowService) GenerateWarnings(ctx context.Context, adminID, id string, minMissCount int) (list *models.WarningList, err error) {
	started := time.Now()
	defer func() {
		s.metrics.RecordWorkflowOperation("generate", err)
		if err == nil {
			s.metrics.ObserveGeneration(time.Since(started))
		}
	}()

	record, err := s.getRecord(ctx, id)
	if err != nil {
		return nil, err
	}
	if record.Status != models.StatusDraft {
		return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("workflow is %s, generation requires draft", record.Status))
	}

	meta, err := s.artifacts.LoadMetaReport(ctx, record.StoragePath)
	if err != nil {
		return nil, err
	}
	if meta == nil {
		return nil, appErrors.Clone(appErrors.ErrStorage, "meta report missing for workflow, run reconcile or recreate")
	}

	if minMissCount < 1 {
		minMissCount = s.defaultMin
	}
	merged := s.collector.Collect(ctx, meta.Combinations)
	filtered := FilterByMissCount(merged, minMissCount)
	list = s.builder.Build(ctx, id, minMissCount, filtered)

	if err = s.saveWarnings(ctx, adminID, record, list, len(merged)); err != nil {
		return nil, err
	}
	return list, nil
}

// SaveWarnings persists an already-built warning list for a draft
// workflow and synchronises the counters across both stores.
func (s *WorkflowService) SaveWarnings(ctx context.Context, adminID, id string, list *models.WarningList, totalStudents int) error {
	record, err := s.getRecord(ctx, id)
	if err != nil {
		return err
	}
	if record.Status != models.StatusDraft {
		return appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("workflow is %s, generation requires draft", record.Status))
	}
	return s.saveWarnings(ctx, adminID, record, list, totalStudents)
}

func (s *WorkflowService) saveWarnings(ctx context.Context, adminID string, record *models.WorkflowRecord, list *models.WarningList, totalStudents int) error {
	if err := s.artifacts.SaveWarningList(ctx, record.StoragePath, list); err != nil {
		return err
	}

	generated := len(list.Records)
	params := repository.UpdateWorkflowParams{
		TotalStudents:     &totalStudents,
		WarningsGenerated: &generated,
	}
	if err := s.workflows.Update(ctx, record.ID, params); err != nil {
		return appErrors.Wrap(err, appErrors.ErrOrchestration.Code, appErrors.ErrOrchestration.Status,
			"warning list stored but record counters were not updated, retry generation")
	}

	if err := s.updateMeta(ctx, record, func(meta *models.MetaReport) {
		meta.TotalStudents = totalStudents
		meta.WarningsGenerated = generated
		meta.MinMissCount = list.MinMissCount
		summary := list.Summary
		meta.Summary = &summary
	}); err != nil {
		return appErrors.Wrap(err, appErrors.ErrOrchestration.Code, appErrors.ErrOrchestration.Status,
			"record updated but meta report counters were not, retry generation")
	}

	s.audit.RecordWorkflow(ctx, adminID, models.AuditActionWorkflowGenerated, record.ID, workflowLabel(record), map[string]interface{}{
		"total_students":     totalStudents,
		"warnings_generated": generated,
		"min_miss_count":     list.MinMissCount,
	})
	s.cache.Invalidate(ctx, workflowCachePattern)
	return nil
}

// Lock freezes a draft workflow ahead of sending and exporting.
func (s *WorkflowService) Lock(ctx context.Context, adminID, id string) (err error) {
	defer func() { s.metrics.RecordWorkflowOperation("lock", err) }()

	record, err := s.getRecord(ctx, id)
	if err != nil {
		return err
	}
	if record.Status != models.StatusDraft {
		return appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("workflow is %s, only draft can be locked", record.Status))
	}

	lockedAt := time.Now().UTC()
	status := models.StatusLocked
	if err = s.workflows.Update(ctx, id, repository.UpdateWorkflowParams{Status: &status}); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to lock workflow")
	}

	if err = s.updateMeta(ctx, record, func(meta *models.MetaReport) {
		meta.Status = models.StatusLocked
		meta.LockedAt = &lockedAt
	}); err != nil {
		return appErrors.Wrap(err, appErrors.ErrOrchestration.Code, appErrors.ErrOrchestration.Status,
			"workflow locked but meta report was not updated")
	}

	s.audit.RecordWorkflow(ctx, adminID, models.AuditActionWorkflowLocked, id, workflowLabel(record), nil)
	s.cache.Invalidate(ctx, workflowCachePattern)
	return nil
}

// TrackEmailsSent records the outcome of a send run. The sent counter
// reflects the latest run, it is overwritten rather than accumulated.
func (s *WorkflowService) TrackEmailsSent(ctx context.Context, adminID, id string, sent int) (err error) {
	defer func() { s.metrics.RecordWorkflowOperation("track_send", err) }()

	record, err := s.getRecord(ctx, id)
	if err != nil {
		return err
	}
	if record.Status.Terminal() {
		return appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("workflow is %s, counters are frozen", record.Status))
	}

	if err = s.workflows.Update(ctx, id, repository.UpdateWorkflowParams{WarningsSent: &sent}); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update sent counter")
	}

	if err = s.updateMeta(ctx, record, func(meta *models.MetaReport) {
		meta.WarningsSent = sent
	}); err != nil {
		return appErrors.Wrap(err, appErrors.ErrOrchestration.Code, appErrors.ErrOrchestration.Status,
			"sent counter updated but meta report was not")
	}

	s.audit.RecordWorkflow(ctx, adminID, models.AuditActionWarningsSent, id, workflowLabel(record), map[string]interface{}{
		"warnings_sent": sent,
	})
	s.cache.Invalidate(ctx, workflowCachePattern)
	return nil
}

// TrackExport adds an export run to the exported counter. The total is
// recomputed from the freshly read record, so retrying a partially
// failed call converges instead of double counting.
func (s *WorkflowService) TrackExport(ctx context.Context, adminID, id string, exported int) (err error) {
	defer func() { s.metrics.RecordWorkflowOperation("track_export", err) }()

	record, err := s.getRecord(ctx, id)
	if err != nil {
		return err
	}
	if record.Status.Terminal() {
		return appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("workflow is %s, counters are frozen", record.Status))
	}

	total := record.WarningsExported + exported
	if err = s.workflows.Update(ctx, id, repository.UpdateWorkflowParams{WarningsExported: &total}); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update exported counter")
	}

	if err = s.updateMeta(ctx, record, func(meta *models.MetaReport) {
		meta.WarningsExported = total
	}); err != nil {
		return appErrors.Wrap(err, appErrors.ErrOrchestration.Code, appErrors.ErrOrchestration.Status,
			"exported counter updated but meta report was not")
	}

	s.audit.RecordWorkflow(ctx, adminID, models.AuditActionWarningsExported, id, workflowLabel(record), map[string]interface{}{
		"exported_now":   exported,
		"exported_total": total,
	})
	s.cache.Invalidate(ctx, workflowCachePattern)
	return nil
}

// Complete closes a locked workflow.
func (s *WorkflowService) Complete(ctx context.Context, adminID, id string) (err error) {
	defer func() { s.metrics.RecordWorkflowOperation("complete", err) }()

	record, err := s.getRecord(ctx, id)
	if err != nil {
		return err
	}
	if record.Status != models.StatusLocked {
		return appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("workflow is %s, only locked can be completed", record.Status))
	}

	completedAt := time.Now().UTC()
	status := models.StatusCompleted
	if err = s.workflows.Update(ctx, id, repository.UpdateWorkflowParams{Status: &status, CompletedAt: &completedAt}); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to complete workflow")
	}

	if err = s.updateMeta(ctx, record, func(meta *models.MetaReport) {
		meta.Status = models.StatusCompleted
		meta.CompletedAt = &completedAt
	}); err != nil {
		return appErrors.Wrap(err, appErrors.ErrOrchestration.Code, appErrors.ErrOrchestration.Status,
			"workflow completed but meta report was not updated")
	}

	// Final stats come from the record, the ground truth.
	final, readErr := s.workflows.GetByID(ctx, id)
	if readErr != nil {
		final = record
	}
	s.audit.RecordWorkflow(ctx, adminID, models.AuditActionWorkflowCompleted, id, workflowLabel(record), map[string]interface{}{
		"total_students":     final.TotalStudents,
		"warnings_generated": final.WarningsGenerated,
		"warnings_sent":      final.WarningsSent,
		"warnings_exported":  final.WarningsExported,
	})
	s.cache.Invalidate(ctx, workflowCachePattern)
	return nil
}

// Fail moves a non-terminal workflow to failed. This is the recovery
// path: every substep failure inside it is logged and swallowed so the
// caller always gets a controlled outcome. Failing an already failed
// workflow is a no-op.
func (s *WorkflowService) Fail(ctx context.Context, adminID, id, reason string) (err error) {
	defer func() { s.metrics.RecordWorkflowOperation("fail", err) }()

	record, err := s.getRecord(ctx, id)
	if err != nil {
		return err
	}
	switch record.Status {
	case models.StatusFailed:
		return nil
	case models.StatusCompleted:
		return appErrors.Clone(appErrors.ErrConflict, "workflow already completed")
	}

	failedAt := time.Now().UTC()
	status := models.StatusFailed
	message := reason
	if updateErr := s.workflows.Update(ctx, id, repository.UpdateWorkflowParams{Status: &status, ErrorMessage: &message}); updateErr != nil {
		s.logger.Error("record update failed while failing workflow",
			zap.String("workflow_id", id),
			zap.Error(updateErr))
	}

	if metaErr := s.updateMeta(ctx, record, func(meta *models.MetaReport) {
		meta.Status = models.StatusFailed
		meta.FailedAt = &failedAt
		meta.ErrorMessage = &message
	}); metaErr != nil {
		s.logger.Warn("meta report update failed while failing workflow",
			zap.String("workflow_id", id),
			zap.Error(metaErr))
	}

	s.audit.RecordWorkflow(ctx, adminID, models.AuditActionWorkflowFailed, id, workflowLabel(record), map[string]interface{}{
		"from":   record.Status,
		"reason": reason,
	})
	s.cache.Invalidate(ctx, workflowCachePattern)
	return nil
}

// Get returns one workflow record.
func (s *WorkflowService) Get(ctx context.Context, id string) (*models.WorkflowRecord, error) {
	return s.getRecord(ctx, id)
}

// Warnings returns the generated warning list for a workflow.
func (s *WorkflowService) Warnings(ctx context.Context, id string) (*models.WarningList, error) {
	record, err := s.getRecord(ctx, id)
	if err != nil {
		return nil, err
	}
	list, err := s.artifacts.LoadWarningList(ctx, record.StoragePath)
	if err != nil {
		return nil, err
	}
	if list == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "warning list not generated yet")
	}
	return list, nil
}

type workflowListPayload struct {
	Records []models.WorkflowRecord `json:"records"`
	Total   int                     `json:"total"`
}

// List returns workflows matching the filter, newest first by default,
// plus whether the result came from cache. Every mutation invalidates
// the cache.
func (s *WorkflowService) List(ctx context.Context, filter models.WorkflowFilter) ([]models.WorkflowRecord, *models.Pagination, bool, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize < 1 || filter.PageSize > 100 {
		filter.PageSize = 20
	}

	key := workflowListCacheKey(filter)
	var cached workflowListPayload
	if hit, _ := s.cache.Get(ctx, key, &cached); hit {
		return cached.Records, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: cached.Total}, true, nil
	}

	records, total, err := s.workflows.List(ctx, filter)
	if err != nil {
		return nil, nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list workflows")
	}
	_ = s.cache.Set(ctx, key, workflowListPayload{Records: records, Total: total}, 0)
	return records, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, false, nil
}

// Delete removes a workflow record. Locked and completed workflows are
// protected. Artifacts are left in place for the audit trail.
func (s *WorkflowService) Delete(ctx context.Context, adminID, id string) (err error) {
	defer func() { s.metrics.RecordWorkflowOperation("delete", err) }()

	record, err := s.getRecord(ctx, id)
	if err != nil {
		return err
	}
	if record.Status.Protected() {
		return appErrors.Clone(appErrors.ErrWorkflowProtected, fmt.Sprintf("%s workflow cannot be deleted", record.Status))
	}

	if err = s.workflows.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete workflow")
	}

	s.audit.RecordWorkflow(ctx, adminID, models.AuditActionWorkflowDeleted, id, workflowLabel(record), map[string]interface{}{
		"status_at_delete": record.Status,
	})
	s.cache.Invalidate(ctx, workflowCachePattern)
	return nil
}

// Reconcile sweeps draft workflows for records whose meta report never
// made it to storage, the window left open when a create fails halfway.
// It reports what it finds; with repair enabled it re-seeds the meta
// report from the record. It never deletes anything.
func (s *WorkflowService) Reconcile(ctx context.Context, repair bool) (*models.ReconcileReport, error) {
	started := time.Now().UTC()
	drafts, err := s.workflows.ListByStatus(ctx, models.StatusDraft, reconcileScanLimit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list draft workflows")
	}

	report := &models.ReconcileReport{StartedAt: started, Issues: []models.ReconcileIssue{}}
	for i := range drafts {
		record := drafts[i]
		report.Scanned++

		meta, loadErr := s.artifacts.LoadMetaReport(ctx, record.StoragePath)
		if loadErr != nil {
			report.Issues = append(report.Issues, models.ReconcileIssue{
				WorkflowID:  record.ID,
				Status:      record.Status,
				StoragePath: record.StoragePath,
				Problem:     "meta report unreadable",
			})
			continue
		}
		if meta != nil {
			continue
		}

		issue := models.ReconcileIssue{
			WorkflowID:  record.ID,
			Status:      record.Status,
			StoragePath: record.StoragePath,
			Problem:     "meta report missing",
		}
		if repair {
			if saveErr := s.artifacts.SaveMetaReport(ctx, record.StoragePath, metaFromRecord(&record)); saveErr != nil {
				s.logger.Warn("reconcile repair failed",
					zap.String("workflow_id", record.ID),
					zap.Error(saveErr))
			} else {
				issue.Repaired = true
			}
		}
		report.Issues = append(report.Issues, issue)
	}

	report.Duration = time.Since(started).String()
	s.logger.Info("reconcile sweep finished",
		zap.Int("scanned", report.Scanned),
		zap.Int("issues", len(report.Issues)),
		zap.Bool("repair", repair))
	return report, nil
}

func (s *WorkflowService) expandRequest(ctx context.Context, req CreateWorkflowRequest) (*models.BatchQuery, time.Time, time.Time, error) {
	var zero time.Time
	switch req.Mode {
	case models.ModeSingle:
		if req.Date == "" {
			return nil, zero, zero, appErrors.Clone(appErrors.ErrValidation, "date is required for single mode")
		}
		day, err := time.Parse(dateLayout, req.Date)
		if err != nil {
			return nil, zero, zero, appErrors.Clone(appErrors.ErrInvalidDate, fmt.Sprintf("invalid date %q, expected YYYY-MM-DD", req.Date))
		}
		sel, err := s.registrySelection(ctx, []string{req.Date})
		if err != nil {
			return nil, zero, zero, err
		}
		query, err := s.batches.ParseSelection(ctx, sel)
		if err != nil {
			return nil, zero, zero, err
		}
		return query, day.UTC(), day.UTC(), nil

	case models.ModeBatch:
		if req.Selection == nil {
			return nil, zero, zero, appErrors.Clone(appErrors.ErrValidation, "selection is required for batch mode")
		}
		query, err := s.batches.ParseSelection(ctx, *req.Selection)
		if err != nil {
			return nil, zero, zero, err
		}
		start, _ := time.Parse(dateLayout, query.DateRange.Start)
		end, _ := time.Parse(dateLayout, query.DateRange.End)
		return query, start.UTC(), end.UTC(), nil

	case models.ModeWeekly:
		if req.Date == "" {
			return nil, zero, zero, appErrors.Clone(appErrors.ErrValidation, "date is required for weekly mode")
		}
		week, err := DeriveWeekRange(req.Date)
		if err != nil {
			return nil, zero, zero, err
		}
		history, err := s.workflows.ListWeeklyProcessed(ctx)
		if err != nil {
			return nil, zero, zero, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load weekly history")
		}
		if err := ValidateWeekAvailable(week, history); err != nil {
			return nil, zero, zero, err
		}
		// The history guard catches identical week ids; this one
		// enforces the store-level overlap invariant.
		exists, err := s.workflows.ExistsOverlappingWeekly(ctx, week.StartDate, week.EndDate)
		if err != nil {
			return nil, zero, zero, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check weekly overlap")
		}
		if exists {
			return nil, zero, zero, appErrors.Clone(appErrors.ErrWeekDuplicate, fmt.Sprintf("week %s already has a processed workflow", week.WeekID()))
		}

		dates := make([]string, 0, 7)
		for i := 0; i < 7; i++ {
			dates = append(dates, week.StartDate.AddDate(0, 0, i).Format(dateLayout))
		}
		sel, err := s.registrySelection(ctx, dates)
		if err != nil {
			return nil, zero, zero, err
		}
		query, err := s.batches.ParseSelection(ctx, sel)
		if err != nil {
			return nil, zero, zero, err
		}
		return query, week.StartDate, week.EndDate, nil
	}
	return nil, zero, zero, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown mode %q", req.Mode))
}

// registrySelection builds a selection covering every active service
// scheduled on the given dates.
func (s *WorkflowService) registrySelection(ctx context.Context, dates []string) (models.BatchSelection, error) {
	ids := make([]string, 0, 4)
	seen := make(map[string]struct{})
	for _, date := range dates {
		parsed, err := time.Parse(dateLayout, date)
		if err != nil {
			return models.BatchSelection{}, appErrors.Clone(appErrors.ErrInvalidDate, fmt.Sprintf("invalid date %q, expected YYYY-MM-DD", date))
		}
		services, err := s.registry.ServicesOn(ctx, parsed.UTC())
		if err != nil {
			return models.BatchSelection{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load service registry")
		}
		for _, service := range services {
			if !service.Active {
				continue
			}
			if _, ok := seen[service.ID]; ok {
				continue
			}
			seen[service.ID] = struct{}{}
			ids = append(ids, service.ID)
		}
	}
	if len(ids) == 0 {
		return models.BatchSelection{}, appErrors.Clone(appErrors.ErrNoValidCombinations, "no active services scheduled for the selected dates")
	}
	return models.BatchSelection{Dates: dates, ServiceIDs: ids}, nil
}

func (s *WorkflowService) getRecord(ctx context.Context, id string) (*models.WorkflowRecord, error) {
	record, err := s.workflows.GetByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "workflow not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load workflow")
	}
	return record, nil
}

// updateMeta applies a mutation to the meta report via load-modify-
// save. A vanished report is rebuilt from the record so retries
// converge.
func (s *WorkflowService) updateMeta(ctx context.Context, record *models.WorkflowRecord, mutate func(*models.MetaReport)) error {
	meta, err := s.artifacts.LoadMetaReport(ctx, record.StoragePath)
	if err != nil {
		return err
	}
	if meta == nil {
		meta = metaFromRecord(record)
	}
	mutate(meta)
	meta.UpdatedAt = time.Now().UTC()
	return s.artifacts.SaveMetaReport(ctx, record.StoragePath, meta)
}

func metaFromRecord(record *models.WorkflowRecord) *models.MetaReport {
	return &models.MetaReport{
		WorkflowID:        record.ID,
		Mode:              record.Mode,
		Status:            record.Status,
		StartDate:         record.StartDate.Format(dateLayout),
		EndDate:           record.EndDate.Format(dateLayout),
		StoragePath:       record.StoragePath,
		InitiatedBy:       record.InitiatedBy,
		TotalServices:     record.TotalServices,
		TotalStudents:     record.TotalStudents,
		WarningsGenerated: record.WarningsGenerated,
		WarningsSent:      record.WarningsSent,
		WarningsExported:  record.WarningsExported,
		CreatedAt:         record.CreatedAt,
		UpdatedAt:         time.Now().UTC(),
		CompletedAt:       record.CompletedAt,
		ErrorMessage:      record.ErrorMessage,
	}
}

func workflowLabel(record *models.WorkflowRecord) string {
	return fmt.Sprintf("%s workflow %s to %s", record.Mode, record.StartDate.Format(dateLayout), record.EndDate.Format(dateLayout))
}

func workflowListCacheKey(filter models.WorkflowFilter) string {
	mode, status := "", ""
	if filter.Mode != nil {
		mode = string(*filter.Mode)
	}
	if filter.Status != nil {
		status = string(*filter.Status)
	}
	from, to := "", ""
	if filter.DateFrom != nil {
		from = filter.DateFrom.Format(dateLayout)
	}
	if filter.DateTo != nil {
		to = filter.DateTo.Format(dateLayout)
	}
	return fmt.Sprintf("workflows:list:%s:%s:%s:%s:%s:%d:%d:%s:%s",
		mode, status, filter.InitiatedBy, from, to, filter.Page, filter.PageSize, filter.SortBy, filter.SortOrder)
}
