package service

import (
	"context"
	"fmt"
	"os"
	"path"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Juls-123/chapel-admin-sub000/internal/models"
	"github.com/Juls-123/chapel-admin-sub000/pkg/config"
	appErrors "github.com/Juls-123/chapel-admin-sub000/pkg/errors"
	"github.com/Juls-123/chapel-admin-sub000/pkg/export"
	"github.com/Juls-123/chapel-admin-sub000/pkg/storage"
)

// Export formats.
const (
	ExportFormatCSV = "csv"
	ExportFormatPDF = "pdf"
)

type exportWorkflows interface {
	Get(ctx context.Context, id string) (*models.WorkflowRecord, error)
	TrackExport(ctx context.Context, adminID, id string, exported int) error
}

type exportArtifacts interface {
	LoadWarningList(ctx context.Context, path string) (*models.WarningList, error)
	UpdateWarningStatuses(ctx context.Context, path string, studentIDs []string, status models.WarningStatus) (int, error)
}

type exportFileStore interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

// ExportResult describes a generated download.
type ExportResult struct {
	WorkflowID    string    `json:"workflow_id"`
	Format        string    `json:"format"`
	FileName      string    `json:"file_name"`
	Records       int       `json:"records"`
	DownloadToken string    `json:"download_token"`
	ExpiresAt     time.Time `json:"expires_at"`
	GeneratedAt   time.Time `json:"generated_at"`
}

// ExportService renders warning lists into downloadable CSV or PDF
// files. Files live on local disk behind HMAC signed tokens; a
// background sweep removes them once the tokens have expired.
type ExportService struct {
	workflows exportWorkflows
	artifacts exportArtifacts
	files     exportFileStore
	signer    *storage.SignedURLSigner
	csv       csvRenderer
	pdf       pdfRenderer
	metrics   *MetricsService
	logger    *zap.Logger
	cfg       config.ExportsConfig
}

// NewExportService wires the export pipeline.
func NewExportService(
	workflows exportWorkflows,
	artifacts exportArtifacts,
	files exportFileStore,
	signer *storage.SignedURLSigner,
	metrics *MetricsService,
	logger *zap.Logger,
	cfg config.ExportsConfig,
) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{
		workflows: workflows,
		artifacts: artifacts,
		files:     files,
		signer:    signer,
		csv:       export.NewCSVExporter(),
		pdf:       export.NewPDFExporter(),
		metrics:   metrics,
		logger:    logger,
		cfg:       cfg,
	}
}

// Export renders the workflow's warning list in the requested format,
// stores the file and returns a signed download token. Every row in
// the list is exported; the workflow's exported counter grows by the
// row count.
func (s *ExportService) Export(ctx context.Context, adminID, workflowID, format string) (*ExportResult, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	if format != ExportFormatCSV && format != ExportFormatPDF {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format %q", format))
	}

	record, err := s.workflows.Get(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	if record.Status.Terminal() {
		return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("workflow is %s, exports are closed", record.Status))
	}

	list, err := s.artifacts.LoadWarningList(ctx, record.StoragePath)
	if err != nil {
		return nil, err
	}
	if list == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "warning list not generated yet")
	}
	if len(list.Records) == 0 {
		return nil, appErrors.Clone(appErrors.ErrConflict, "warning list is empty, nothing to export")
	}

	dataset := warningDataset(list)
	var payload []byte
	switch format {
	case ExportFormatCSV:
		payload, err = s.csv.Render(dataset)
	case ExportFormatPDF:
		title := fmt.Sprintf("Chapel Warning List %s to %s", record.StartDate.Format(dateLayout), record.EndDate.Format(dateLayout))
		payload, err = s.pdf.Render(dataset, title)
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}

	now := time.Now().UTC()
	filename := path.Join(record.ID, fmt.Sprintf("warning-list-%s.%s", now.Format("20060102-150405"), format))
	if _, err := s.files.Save(filename, payload); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store export file")
	}

	token, expiresAt, err := s.signer.Generate(record.ID, filename)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign download token")
	}

	s.markExported(ctx, record, list)

	if err := s.workflows.TrackExport(ctx, adminID, workflowID, len(list.Records)); err != nil {
		return nil, err
	}
	s.metrics.RecordExport(format)

	s.logger.Info("warning list exported",
		zap.String("workflow_id", workflowID),
		zap.String("format", format),
		zap.Int("records", len(list.Records)))

	return &ExportResult{
		WorkflowID:    workflowID,
		Format:        format,
		FileName:      filename,
		Records:       len(list.Records),
		DownloadToken: token,
		ExpiresAt:     expiresAt,
		GeneratedAt:   now,
	}, nil
}

// markExported flips still-unsent warnings to exported. Sent and
// failed statuses carry delivery history and are left alone.
func (s *ExportService) markExported(ctx context.Context, record *models.WorkflowRecord, list *models.WarningList) {
	unsent := make([]string, 0, len(list.Records))
	for _, warning := range list.Records {
		if warning.Status == models.WarningNotSent {
			unsent = append(unsent, warning.StudentID)
		}
	}
	if len(unsent) == 0 {
		return
	}
	if _, err := s.artifacts.UpdateWarningStatuses(ctx, record.StoragePath, unsent, models.WarningExported); err != nil {
		s.logger.Warn("export status update failed",
			zap.String("workflow_id", record.ID),
			zap.Error(err))
	}
}

// Resolve validates a download token and opens the underlying file.
func (s *ExportService) Resolve(_ context.Context, token string) (*os.File, string, error) {
	workflowID, relPath, _, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, "", appErrors.Clone(appErrors.ErrUnauthorized, "invalid or expired download token")
	}
	file, err := s.files.Open(relPath)
	if err != nil {
		return nil, "", appErrors.Clone(appErrors.ErrNotFound, "export file no longer available")
	}
	s.logger.Debug("export download resolved", zap.String("workflow_id", workflowID))
	return file, path.Base(relPath), nil
}

// StartCleanup launches the periodic sweep that deletes export files
// older than the signed URL TTL. It returns immediately; the sweep
// stops when ctx is done.
func (s *ExportService) StartCleanup(ctx context.Context) {
	interval := s.cfg.CleanupInterval
	if interval <= 0 {
		interval = time.Hour
	}
	ttl := s.cfg.SignedURLTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				deleted, err := s.files.CleanupOlderThan(ttl)
				if err != nil {
					s.logger.Warn("export cleanup failed", zap.Error(err))
					continue
				}
				if len(deleted) > 0 {
					s.logger.Info("expired exports removed", zap.Int("count", len(deleted)))
				}
			}
		}
	}()
}

// warningDataset flattens a warning list into tabular form. Summary
// lines mirror the on-screen digest so the printed copy stands alone.
func warningDataset(list *models.WarningList) export.Dataset {
	headers := []string{"Matric Number", "Student Name", "Level", "Missed Services", "Miss Count", "Status"}
	rows := make([]map[string]string, 0, len(list.Records))
	for _, warning := range list.Records {
		services := make([]string, 0, len(warning.ServicesMissed))
		for _, missed := range warning.ServicesMissed {
			services = append(services, fmt.Sprintf("%s (%s)", missed.ServiceName, missed.ServiceDate))
		}
		rows = append(rows, map[string]string{
			"Matric Number":   warning.MatricNumber,
			"Student Name":    warning.StudentName,
			"Level":           warning.Level,
			"Missed Services": strings.Join(services, "; "),
			"Miss Count":      fmt.Sprintf("%d", warning.MissCount),
			"Status":          string(warning.Status),
		})
	}

	summary := []string{
		fmt.Sprintf("Total warnings: %d", list.Summary.TotalWarnings),
		fmt.Sprintf("Average misses: %.1f", list.Summary.AverageMissCount),
		fmt.Sprintf("Most misses: %d", list.Summary.MaxMissCount),
	}
	levels := make([]string, 0, len(list.Summary.ByLevel))
	for level := range list.Summary.ByLevel {
		levels = append(levels, level)
	}
	sort.Strings(levels)
	for _, level := range levels {
		summary = append(summary, fmt.Sprintf("Level %s: %d", level, list.Summary.ByLevel[level]))
	}

	return export.Dataset{
		Headers:       headers,
		Rows:          rows,
		Summary:       summary,
		ColumnWeights: []float64{1.3, 2.2, 0.8, 3.4, 0.9, 1.0},
	}
}
