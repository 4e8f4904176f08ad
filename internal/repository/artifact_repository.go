package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Juls-123/chapel-admin-sub000/internal/models"
	appErrors "github.com/Juls-123/chapel-admin-sub000/pkg/errors"
	"github.com/Juls-123/chapel-admin-sub000/pkg/storage"
)

// Fixed artifact filenames under a workflow's storage path.
const (
	WarningListFile    = "WarningList.json"
	MetaReportFile     = "MetaReport.json"
	DeliveryReportFile = "EmailDeliveryReport.json"
)

const jsonContentType = "application/json"

type blobStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
}

// ArtifactRepository persists a workflow's JSON artifacts at a
// deterministic path. Saves are whole-document upserts; loads return
// nil for missing objects. Status updates are load-modify-save on the
// whole document, so concurrent writers to the same workflow are
// last-writer-wins.
type ArtifactRepository struct {
	store blobStore
}

// NewArtifactRepository constructs the repository on a blob backend.
func NewArtifactRepository(store blobStore) *ArtifactRepository {
	return &ArtifactRepository{store: store}
}

// StoragePath renders the canonical artifact prefix for a workflow,
// partitioned by the date the workflow was initiated. Computed once at
// creation and persisted on the record; never recomputed afterwards.
func (r *ArtifactRepository) StoragePath(creationDate time.Time, mode models.WorkflowMode, workflowID string) string {
	return fmt.Sprintf("%04d/%02d/%02d/%s/%s",
		creationDate.Year(), int(creationDate.Month()), creationDate.Day(), mode.Capitalized(), workflowID)
}

// SaveWarningList upserts the warning list artifact.
func (r *ArtifactRepository) SaveWarningList(ctx context.Context, path string, list *models.WarningList) error {
	return r.save(ctx, path, WarningListFile, list)
}

// LoadWarningList reads the warning list artifact, nil when absent.
func (r *ArtifactRepository) LoadWarningList(ctx context.Context, path string) (*models.WarningList, error) {
	var list models.WarningList
	ok, err := r.load(ctx, path, WarningListFile, &list)
	if err != nil || !ok {
		return nil, err
	}
	return &list, nil
}

// SaveMetaReport upserts the meta report artifact.
func (r *ArtifactRepository) SaveMetaReport(ctx context.Context, path string, report *models.MetaReport) error {
	return r.save(ctx, path, MetaReportFile, report)
}

// LoadMetaReport reads the meta report artifact, nil when absent.
func (r *ArtifactRepository) LoadMetaReport(ctx context.Context, path string) (*models.MetaReport, error) {
	var report models.MetaReport
	ok, err := r.load(ctx, path, MetaReportFile, &report)
	if err != nil || !ok {
		return nil, err
	}
	return &report, nil
}

// SaveDeliveryReport upserts the email delivery report artifact.
func (r *ArtifactRepository) SaveDeliveryReport(ctx context.Context, path string, report *models.EmailDeliveryReport) error {
	return r.save(ctx, path, DeliveryReportFile, report)
}

// LoadDeliveryReport reads the email delivery report, nil when absent.
func (r *ArtifactRepository) LoadDeliveryReport(ctx context.Context, path string) (*models.EmailDeliveryReport, error) {
	var report models.EmailDeliveryReport
	ok, err := r.load(ctx, path, DeliveryReportFile, &report)
	if err != nil || !ok {
		return nil, err
	}
	return &report, nil
}

// UpdateWarningStatus rewrites a single student's warning status.
func (r *ArtifactRepository) UpdateWarningStatus(ctx context.Context, path, studentID string, status models.WarningStatus) error {
	_, err := r.UpdateWarningStatuses(ctx, path, []string{studentID}, status)
	return err
}

// UpdateWarningStatuses rewrites the status of the given students in
// the warning list and saves the whole document back. Unknown ids are
// ignored. Returns the number of records touched.
func (r *ArtifactRepository) UpdateWarningStatuses(ctx context.Context, path string, studentIDs []string, status models.WarningStatus) (int, error) {
	list, err := r.LoadWarningList(ctx, path)
	if err != nil {
		return 0, err
	}
	if list == nil {
		return 0, appErrors.Clone(appErrors.ErrStorage, "warning list artifact missing")
	}

	wanted := make(map[string]struct{}, len(studentIDs))
	for _, id := range studentIDs {
		wanted[id] = struct{}{}
	}

	updated := 0
	for i := range list.Records {
		if _, ok := wanted[list.Records[i].StudentID]; ok {
			list.Records[i].Status = status
			updated++
		}
	}
	if updated == 0 {
		return 0, nil
	}

	if err := r.SaveWarningList(ctx, path, list); err != nil {
		return 0, err
	}
	return updated, nil
}

// AppendDeliveryOutcomes merges new outcomes into the delivery report,
// creating the artifact on first use.
func (r *ArtifactRepository) AppendDeliveryOutcomes(ctx context.Context, path, workflowID string, outcomes []models.DeliveryOutcome) error {
	report, err := r.LoadDeliveryReport(ctx, path)
	if err != nil {
		return err
	}
	if report == nil {
		report = &models.EmailDeliveryReport{WorkflowID: workflowID}
	}
	report.Outcomes = append(report.Outcomes, outcomes...)
	report.UpdatedAt = time.Now().UTC()
	return r.SaveDeliveryReport(ctx, path, report)
}

func (r *ArtifactRepository) save(ctx context.Context, path, filename string, doc interface{}) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrStorage.Code, appErrors.ErrStorage.Status, "encode artifact "+filename)
	}
	if err := r.store.Put(ctx, path+"/"+filename, data, jsonContentType); err != nil {
		return appErrors.Wrap(err, appErrors.ErrStorage.Code, appErrors.ErrStorage.Status, "write artifact "+filename)
	}
	return nil
}

// load returns false with a nil error when the object does not exist.
func (r *ArtifactRepository) load(ctx context.Context, path, filename string, doc interface{}) (bool, error) {
	data, err := r.store.Get(ctx, path+"/"+filename)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return false, nil
		}
		return false, appErrors.Wrap(err, appErrors.ErrStorage.Code, appErrors.ErrStorage.Status, "read artifact "+filename)
	}
	if err := json.Unmarshal(data, doc); err != nil {
		return false, appErrors.Wrap(err, appErrors.ErrStorage.Code, appErrors.ErrStorage.Status, "decode artifact "+filename)
	}
	return true, nil
}
