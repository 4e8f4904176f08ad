package service

import (
	"context"
	"fmt"
	"html/template"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Juls-123/chapel-admin-sub000/internal/models"
	"github.com/Juls-123/chapel-admin-sub000/pkg/config"
	appErrors "github.com/Juls-123/chapel-admin-sub000/pkg/errors"
	"github.com/Juls-123/chapel-admin-sub000/pkg/jobs"
	"github.com/Juls-123/chapel-admin-sub000/pkg/mailer"
)

const sendJobType = "warning_email_run"

type warningMailer interface {
	Send(msg mailer.Message) error
}

type sendArtifacts interface {
	LoadWarningList(ctx context.Context, path string) (*models.WarningList, error)
	UpdateWarningStatuses(ctx context.Context, path string, studentIDs []string, status models.WarningStatus) (int, error)
	AppendDeliveryOutcomes(ctx context.Context, path, workflowID string, outcomes []models.DeliveryOutcome) error
	LoadDeliveryReport(ctx context.Context, path string) (*models.EmailDeliveryReport, error)
}

type sendWorkflows interface {
	Get(ctx context.Context, id string) (*models.WorkflowRecord, error)
	TrackEmailsSent(ctx context.Context, adminID, id string, sent int) error
}

type sendJobPayload struct {
	WorkflowID string
	AdminID    string
}

// SendRunReceipt tells the caller what was queued.
type SendRunReceipt struct {
	WorkflowID string    `json:"workflow_id"`
	Candidates int       `json:"candidates"`
	QueuedAt   time.Time `json:"queued_at"`
}

var warningEmailTmpl = template.Must(template.New("warning").Parse(`<html><body>
<p>Dear {{.Name}},</p>
<p>Our records show you were absent from <strong>{{.MissCount}}</strong> chapel services between {{.StartDate}} and {{.EndDate}}:</p>
<ul>
{{- range .Services}}
<li>{{.ServiceName}} on {{.ServiceDate}}{{if .ServiceTime}} at {{.ServiceTime}}{{end}}</li>
{{- end}}
</ul>
<p>Please see the chaplaincy office if you believe this is in error.</p>
<p>Chaplaincy Administration</p>
</body></html>`))

// SendService dispatches warning emails for a locked workflow. A run
// is queued as one background job; the worker walks the warning list
// in batches, pausing between them so the relay is not flooded, and
// appends per-recipient outcomes to the delivery report as each batch
// lands. The sent counter the run reports back is this run's delivered
// total.
type SendService struct {
	workflows sendWorkflows
	artifacts sendArtifacts
	mail      warningMailer
	metrics   *MetricsService
	logger    *zap.Logger
	cfg       config.SendConfig

	queue *jobs.Queue
}

// NewSendService wires the email dispatch pipeline. The queue is owned
// by the service; call Start before queueing runs and Stop on
// shutdown.
func NewSendService(
	workflows sendWorkflows,
	artifacts sendArtifacts,
	mail warningMailer,
	metrics *MetricsService,
	logger *zap.Logger,
	cfg config.SendConfig,
) *SendService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 25
	}

	s := &SendService{
		workflows: workflows,
		artifacts: artifacts,
		mail:      mail,
		metrics:   metrics,
		logger:    logger,
		cfg:       cfg,
	}
	s.queue = jobs.NewQueue("warning-send", s.handleJob, jobs.QueueConfig{
		Workers:    cfg.WorkerConcurrency,
		MaxRetries: cfg.WorkerRetries,
		Logger:     logger,
	})
	return s
}

// Start launches the queue workers.
func (s *SendService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains the queue workers.
func (s *SendService) Stop() {
	s.queue.Stop()
}

// StartSendRun queues an email run for a locked workflow. Records that
// already carry sent status are skipped, so re-running after a partial
// failure only retries the remainder.
func (s *SendService) StartSendRun(ctx context.Context, adminID, workflowID string) (*SendRunReceipt, error) {
	if !s.cfg.Enabled {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "email sending is disabled")
	}

	record, err := s.workflows.Get(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	if record.Status != models.StatusLocked {
		return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("workflow is %s, lock it before sending", record.Status))
	}

	list, err := s.artifacts.LoadWarningList(ctx, record.StoragePath)
	if err != nil {
		return nil, err
	}
	if list == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "warning list not generated yet")
	}

	candidates := sendCandidates(list)
	if len(candidates) == 0 {
		return nil, appErrors.Clone(appErrors.ErrConflict, "every warning has already been sent")
	}

	job := jobs.Job{
		ID:      uuid.NewString(),
		Type:    sendJobType,
		Payload: sendJobPayload{WorkflowID: workflowID, AdminID: adminID},
	}
	if err := s.queue.Enqueue(job); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to queue send run")
	}
	s.metrics.SetSendQueueDepth(s.queue.Pending())

	s.logger.Info("send run queued",
		zap.String("workflow_id", workflowID),
		zap.Int("candidates", len(candidates)))
	return &SendRunReceipt{WorkflowID: workflowID, Candidates: len(candidates), QueuedAt: time.Now().UTC()}, nil
}

func (s *SendService) handleJob(ctx context.Context, job jobs.Job) error {
	payload, ok := job.Payload.(sendJobPayload)
	if !ok {
		s.logger.Error("send job carried unexpected payload", zap.String("job_id", job.ID))
		return nil
	}
	defer s.metrics.SetSendQueueDepth(s.queue.Pending())
	return s.runSend(ctx, payload)
}

// runSend executes one full email run. It is the queue handler's body,
// kept separate so the batching behaviour is testable without workers.
func (s *SendService) runSend(ctx context.Context, payload sendJobPayload) error {
	record, err := s.workflows.Get(ctx, payload.WorkflowID)
	if err != nil {
		return err
	}
	if record.Status != models.StatusLocked {
		// Lock state changed while the job sat in the queue.
		s.logger.Warn("send run skipped, workflow no longer locked",
			zap.String("workflow_id", record.ID),
			zap.String("status", string(record.Status)))
		return nil
	}

	list, err := s.artifacts.LoadWarningList(ctx, record.StoragePath)
	if err != nil {
		return err
	}
	if list == nil {
		return appErrors.Clone(appErrors.ErrStorage, "warning list vanished before send run")
	}

	candidates := sendCandidates(list)
	delivered := 0
	for start := 0; start < len(candidates); start += s.cfg.BatchSize {
		end := start + s.cfg.BatchSize
		if end > len(candidates) {
			end = len(candidates)
		}
		batch := candidates[start:end]

		outcomes := s.sendBatch(ctx, record, batch)
		delivered += s.recordBatch(ctx, record, outcomes)

		if end < len(candidates) && s.cfg.BatchDelay > 0 {
			select {
			case <-ctx.Done():
				s.logger.Warn("send run interrupted between batches",
					zap.String("workflow_id", record.ID),
					zap.Int("delivered_so_far", delivered))
				return ctx.Err()
			case <-time.After(s.cfg.BatchDelay):
			}
		}
	}

	if err := s.workflows.TrackEmailsSent(ctx, payload.AdminID, record.ID, delivered); err != nil {
		s.logger.Error("send run finished but counter update failed",
			zap.String("workflow_id", record.ID),
			zap.Int("delivered", delivered),
			zap.Error(err))
		return err
	}

	s.logger.Info("send run finished",
		zap.String("workflow_id", record.ID),
		zap.Int("candidates", len(candidates)),
		zap.Int("delivered", delivered))
	return nil
}

// sendBatch delivers one batch concurrently. Outcomes land in indexed
// slots so the report order matches the warning list order.
func (s *SendService) sendBatch(ctx context.Context, record *models.WorkflowRecord, batch []models.WarningRecord) []models.DeliveryOutcome {
	outcomes := make([]models.DeliveryOutcome, len(batch))
	var wg sync.WaitGroup
	for i := range batch {
		wg.Add(1)
		go func(slot int, warning models.WarningRecord) {
			defer wg.Done()
			outcomes[slot] = s.deliver(ctx, record, warning)
		}(i, batch[i])
	}
	wg.Wait()
	return outcomes
}

func (s *SendService) deliver(_ context.Context, record *models.WorkflowRecord, warning models.WarningRecord) models.DeliveryOutcome {
	outcome := models.DeliveryOutcome{
		StudentID:   warning.StudentID,
		AttemptedAt: time.Now().UTC(),
	}

	primary, secondary := recipientAddresses(warning)
	if primary == "" {
		outcome.Error = "no recipient address"
		return outcome
	}
	outcome.Recipient = primary

	body, err := renderWarningEmail(record, warning)
	if err != nil {
		outcome.Error = fmt.Sprintf("render: %v", err)
		return outcome
	}

	msg := mailer.Message{
		To:      primary,
		Subject: fmt.Sprintf("Chapel Attendance Warning (%d missed services)", warning.MissCount),
		HTML:    body,
	}
	if err := s.mail.Send(msg); err != nil {
		outcome.Error = err.Error()
		s.logger.Warn("warning email failed",
			zap.String("workflow_id", record.ID),
			zap.String("student_id", warning.StudentID),
			zap.Error(err))
		return outcome
	}
	outcome.Delivered = true

	// Parent copy is best effort.
	if secondary != "" {
		parentMsg := msg
		parentMsg.To = secondary
		if err := s.mail.Send(parentMsg); err != nil {
			s.logger.Warn("parent copy failed",
				zap.String("workflow_id", record.ID),
				zap.String("student_id", warning.StudentID),
				zap.Error(err))
		}
	}
	return outcome
}

// recordBatch persists one batch's outcomes and mirrors them into the
// warning list statuses. Returns how many were delivered.
func (s *SendService) recordBatch(ctx context.Context, record *models.WorkflowRecord, outcomes []models.DeliveryOutcome) int {
	sent := make([]string, 0, len(outcomes))
	failed := make([]string, 0)
	for _, outcome := range outcomes {
		s.metrics.RecordEmailOutcome(outcome.Delivered)
		if outcome.Delivered {
			sent = append(sent, outcome.StudentID)
		} else {
			failed = append(failed, outcome.StudentID)
		}
	}

	if err := s.artifacts.AppendDeliveryOutcomes(ctx, record.StoragePath, record.ID, outcomes); err != nil {
		s.logger.Error("delivery report append failed",
			zap.String("workflow_id", record.ID),
			zap.Error(err))
	}
	if len(sent) > 0 {
		if _, err := s.artifacts.UpdateWarningStatuses(ctx, record.StoragePath, sent, models.WarningSent); err != nil {
			s.logger.Error("warning status update failed",
				zap.String("workflow_id", record.ID),
				zap.Error(err))
		}
	}
	if len(failed) > 0 {
		if _, err := s.artifacts.UpdateWarningStatuses(ctx, record.StoragePath, failed, models.WarningFailed); err != nil {
			s.logger.Error("warning status update failed",
				zap.String("workflow_id", record.ID),
				zap.Error(err))
		}
	}
	return len(sent)
}

// DeliveryReport returns the accumulated delivery report for a
// workflow.
func (s *SendService) DeliveryReport(ctx context.Context, workflowID string) (*models.EmailDeliveryReport, error) {
	record, err := s.workflows.Get(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	report, err := s.artifacts.LoadDeliveryReport(ctx, record.StoragePath)
	if err != nil {
		return nil, err
	}
	if report == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "no send run recorded yet")
	}
	return report, nil
}

// sendCandidates picks warnings still worth attempting. Records with
// no address stay in so the run reports them as failures instead of
// silently dropping them.
func sendCandidates(list *models.WarningList) []models.WarningRecord {
	out := make([]models.WarningRecord, 0, len(list.Records))
	for _, record := range list.Records {
		if record.Status == models.WarningSent {
			continue
		}
		out = append(out, record)
	}
	return out
}

func recipientAddresses(record models.WarningRecord) (primary, secondary string) {
	if record.Email != nil && strings.TrimSpace(*record.Email) != "" {
		primary = strings.TrimSpace(*record.Email)
	}
	if record.ParentEmail != nil && strings.TrimSpace(*record.ParentEmail) != "" {
		if primary == "" {
			primary = strings.TrimSpace(*record.ParentEmail)
		} else {
			secondary = strings.TrimSpace(*record.ParentEmail)
		}
	}
	return primary, secondary
}

func renderWarningEmail(record *models.WorkflowRecord, warning models.WarningRecord) (string, error) {
	data := struct {
		Name      string
		MissCount int
		StartDate string
		EndDate   string
		Services  []models.MissedService
	}{
		Name:      warning.StudentName,
		MissCount: warning.MissCount,
		StartDate: record.StartDate.Format(dateLayout),
		EndDate:   record.EndDate.Format(dateLayout),
		Services:  warning.ServicesMissed,
	}
	var b strings.Builder
	if err := warningEmailTmpl.Execute(&b, data); err != nil {
		return "", err
	}
	return b.String(), nil
}
