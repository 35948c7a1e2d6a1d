package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/faculty-records-api/internal/dto"
	"github.com/noah-isme/faculty-records-api/internal/models"
	"github.com/noah-isme/faculty-records-api/internal/repository"
	appErrors "github.com/noah-isme/faculty-records-api/pkg/errors"
	"github.com/noah-isme/faculty-records-api/pkg/export"
	"github.com/noah-isme/faculty-records-api/pkg/jobs"
	"github.com/noah-isme/faculty-records-api/pkg/storage"
)

type exportJobStore interface {
	Create(ctx context.Context, job *models.ExportJob) error
	GetByID(ctx context.Context, id string) (*models.ExportJob, error)
	Update(ctx context.Context, id string, params repository.UpdateExportJobParams) error
	ListQueued(ctx context.Context, limit int) ([]models.ExportJob, error)
	ListFinishedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.ExportJob, error)
}

type jobDispatcher interface {
	Enqueue(job jobs.Job) error
}

type exportGenerator interface {
	Generate(ctx context.Context, job *models.ExportJob) (*ExportFile, error)
}

type fileStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

// ExportJobConfig governs download links, queue recovery and cleanup.
type ExportJobConfig struct {
	APIPrefix       string
	ResultTTL       time.Duration
	CleanupInterval time.Duration
}

// ExportDownload is an opened export file.
type ExportDownload struct {
	File        *os.File
	FileName    string
	ContentType string
	Size        int64
	ExpiresAt   time.Time
}

// ExportJobService manages the lifecycle of asynchronous exports.
type ExportJobService struct {
	repo    exportJobStore
	queue   jobDispatcher
	files   fileStorage
	signer  *storage.SignedURLSigner
	audit   auditLogger
	metrics *MetricsService
	logger  *zap.Logger
	cfg     ExportJobConfig
}

// NewExportJobService constructs the job service.
func NewExportJobService(repo exportJobStore, queue jobDispatcher, files fileStorage, signer *storage.SignedURLSigner, audit auditLogger, metrics *MetricsService, logger *zap.Logger, cfg ExportJobConfig) *ExportJobService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	return &ExportJobService{
		repo:    repo,
		queue:   queue,
		files:   files,
		signer:  signer,
		audit:   audit,
		metrics: metrics,
		logger:  logger,
		cfg:     cfg,
	}
}

// CreateJob validates the request, persists the job and enqueues it.
func (s *ExportJobService) CreateJob(ctx context.Context, requester models.Requester, req dto.ExportJobRequest) (*dto.ExportJobResponse, error) {
	params, err := s.validateRequest(requester, req)
	if err != nil {
		return nil, err
	}
	job := &models.ExportJob{
		Kind:      req.Kind,
		Params:    params,
		Status:    models.ExportStatusQueued,
		CreatedBy: requester.UserID,
	}
	if err := s.repo.Create(ctx, job); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create export job")
	}
	if err := s.queue.Enqueue(jobs.Job{ID: job.ID, Type: string(job.Kind)}); err != nil {
		s.markFailed(ctx, job.ID, job.Kind, "failed to enqueue job")
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enqueue export job")
	}
	if s.audit != nil {
		if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
			UserID:     optionalString(requester.UserID),
			Action:     models.AuditActionExportRequest,
			Resource:   "export_job",
			ResourceID: &job.ID,
			NewValues:  mustJSON(params),
		}); err != nil {
			s.logger.Warn("failed to write audit log", zap.String("action", models.AuditActionExportRequest), zap.Error(err))
		}
	}
	return &dto.ExportJobResponse{ID: job.ID, Status: job.Status, Progress: job.Progress}, nil
}

// GetStatus exposes job progress. Only admins may see jobs queued by someone else.
func (s *ExportJobService) GetStatus(ctx context.Context, requester models.Requester, id string) (*dto.ExportStatusResponse, error) {
	job, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "export job not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load export job")
	}
	if requester.Role != models.RoleAdmin && job.CreatedBy != requester.UserID {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "export job not found")
	}
	resp := &dto.ExportStatusResponse{
		ID:       job.ID,
		Kind:     job.Kind,
		Status:   job.Status,
		Progress: job.Progress,
	}
	if job.Status == models.ExportStatusFinished && job.ResultPath != nil {
		token, _, err := s.signer.Generate(job.ID, *job.ResultPath)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign download link")
		}
		url := s.downloadURL(token)
		resp.ResultURL = &url
	}
	if job.ErrorMessage != nil && *job.ErrorMessage != "" {
		resp.Error = job.ErrorMessage
	}
	return resp, nil
}

// ResolveDownload validates the token and opens the stored export file.
func (s *ExportJobService) ResolveDownload(ctx context.Context, token string) (*ExportDownload, error) {
	jobID, relPath, expiresAt, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "invalid or expired download token")
	}
	job, err := s.repo.GetByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "export job not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load export job")
	}
	if job.Status != models.ExportStatusFinished || job.ResultPath == nil {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "export not ready")
	}
	if *job.ResultPath != relPath {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "token mismatch")
	}
	file, err := s.files.Open(relPath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open export file")
	}
	size := int64(-1)
	if info, err := file.Stat(); err == nil {
		size = info.Size()
	}
	return &ExportDownload{
		File:        file,
		FileName:    filepath.Base(relPath),
		ContentType: contentTypeFor(job.Params.Format),
		Size:        size,
		ExpiresAt:   expiresAt,
	}, nil
}

// MarkExhausted records a job that ran out of retries as failed. It is the queue's exhaustion hook.
func (s *ExportJobService) MarkExhausted(ctx context.Context, job jobs.Job, cause error) {
	msg := "export failed"
	if cause != nil {
		msg = cause.Error()
	}
	s.markFailed(ctx, job.ID, models.ExportKind(job.Type), msg)
}

func (s *ExportJobService) markFailed(ctx context.Context, id string, kind models.ExportKind, msg string) {
	failed := models.ExportStatusFailed
	progress := 100
	now := time.Now().UTC()
	if err := s.repo.Update(ctx, id, repository.UpdateExportJobParams{
		Status:       &failed,
		Progress:     &progress,
		ErrorMessage: &msg,
		FinishedAt:   &now,
	}); err != nil {
		s.logger.Warn("failed to mark export job failed", zap.String("job_id", id), zap.Error(err))
	}
	s.metrics.ExportJobCompleted(kind, failed)
}

// RecoverPendingJobs replays queued jobs after a restart.
func (s *ExportJobService) RecoverPendingJobs(ctx context.Context) {
	pending, err := s.repo.ListQueued(ctx, 50)
	if err != nil {
		s.logger.Sugar().Warnw("failed to recover queued export jobs", "error", err)
		return
	}
	for _, job := range pending {
		if err := s.queue.Enqueue(jobs.Job{ID: job.ID, Type: string(job.Kind)}); err != nil {
			s.logger.Sugar().Warnw("failed to requeue pending export job", "job_id", job.ID, "error", err)
		}
	}
}

// StartCleanup boots a goroutine that purges expired exports periodically.
func (s *ExportJobService) StartCleanup(ctx context.Context) {
	if s.cfg.CleanupInterval <= 0 {
		return
	}
	ticker := time.NewTicker(s.cfg.CleanupInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.cleanupExpired(ctx)
			}
		}
	}()
}

func (s *ExportJobService) cleanupExpired(ctx context.Context) {
	cutoff := time.Now().Add(-s.cfg.ResultTTL)
	expired, err := s.repo.ListFinishedBefore(ctx, cutoff, 100)
	if err != nil {
		s.logger.Sugar().Warnw("export cleanup list failed", "error", err)
		return
	}
	for _, job := range expired {
		if job.ResultPath == nil {
			continue
		}
		if err := s.files.Delete(*job.ResultPath); err != nil {
			s.logger.Sugar().Warnw("export cleanup delete failed", "job_id", job.ID, "error", err)
		}
	}
	if _, err := s.files.CleanupOlderThan(s.cfg.ResultTTL); err != nil {
		s.logger.Sugar().Warnw("export filesystem cleanup failed", "error", err)
	}
}

func (s *ExportJobService) downloadURL(token string) string {
	prefix := strings.TrimRight(s.cfg.APIPrefix, "/")
	if prefix == "" {
		prefix = "/api/v1"
	}
	return fmt.Sprintf("%s/exports/download/%s", prefix, token)
}

func (s *ExportJobService) validateRequest(requester models.Requester, req dto.ExportJobRequest) (models.ExportJobParams, error) {
	params := models.ExportJobParams{
		RequesterUserID:     requester.UserID,
		RequesterEmployeeID: requester.EmployeeID,
		RequesterRole:       requester.Role,
		RequesterDepartment: requester.Department,
	}
	if !requester.Role.IsReviewer() {
		return params, appErrors.Clone(appErrors.ErrForbidden, "only reviewers can export")
	}
	switch req.Kind {
	case models.ExportKindRecords:
		spec, ok := models.LookupRecordType(req.RecordType)
		if !ok {
			return params, appErrors.Clone(appErrors.ErrValidation, "unknown record type")
		}
		params.RecordType = spec.Type
		if eventType := strings.TrimSpace(req.EventType); eventType != "" {
			if spec.SubtypeField == "" || !containsString(spec.Subtypes(), eventType) {
				return params, appErrors.Clone(appErrors.ErrValidation, "unknown subtype filter")
			}
			params.EventType = eventType
		}
	case models.ExportKindSummary:
		if strings.TrimSpace(req.EventType) != "" {
			return params, appErrors.Clone(appErrors.ErrValidation, "summary exports do not filter by subtype")
		}
	default:
		return params, appErrors.Clone(appErrors.ErrValidation, "kind must be records or summary")
	}
	format := export.NormalizeFormat(req.Format)
	if _, err := export.ForFormat(format); err != nil {
		return params, appErrors.Clone(appErrors.ErrValidation, "format must be xlsx, csv or pdf")
	}
	params.Format = format
	if raw := strings.TrimSpace(req.Status); raw != "" {
		status := models.RecordStatus(raw)
		if !status.Valid() {
			return params, appErrors.Clone(appErrors.ErrValidation, "status must be Pending, Accepted or Rejected")
		}
		params.Status = &status
	}
	if year := strings.TrimSpace(req.AcademicYear); year != "" {
		if err := ValidateAcademicYear(year); err != nil {
			return params, err
		}
		params.AcademicYear = year
	}
	department, err := parseExplicitDepartment(requester, strings.TrimSpace(req.Department))
	if err != nil {
		return params, err
	}
	params.Department = string(department)
	return params, nil
}

func contentTypeFor(format string) string {
	exporter, err := export.ForFormat(format)
	if err != nil {
		return "application/octet-stream"
	}
	return exporter.ContentType()
}

// ExportWorker bridges queue jobs to the export generator.
type ExportWorker struct {
	repo      exportJobStore
	generator exportGenerator
	files     fileStorage
	metrics   *MetricsService
	logger    *zap.Logger
}

// NewExportWorker constructs a worker.
func NewExportWorker(repo exportJobStore, generator exportGenerator, files fileStorage, metrics *MetricsService, logger *zap.Logger) *ExportWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportWorker{repo: repo, generator: generator, files: files, metrics: metrics, logger: logger}
}

// Handle processes a queue job. Returning an error lets the queue retry it.
func (w *ExportWorker) Handle(ctx context.Context, job jobs.Job) error {
	record, err := w.repo.GetByID(ctx, job.ID)
	if err != nil {
		return err
	}
	processing := models.ExportStatusProcessing
	progress := 10
	if err := w.repo.Update(ctx, job.ID, repository.UpdateExportJobParams{
		Status:   &processing,
		Progress: &progress,
	}); err != nil {
		return err
	}

	file, err := w.generator.Generate(ctx, record)
	if err == nil {
		var relPath string
		relPath, err = w.files.Save(filepath.Join(record.ID, file.FileName), file.Data)
		if err == nil {
			return w.finish(ctx, record, relPath)
		}
	}

	msg := err.Error()
	queued := models.ExportStatusQueued
	reset := 0
	if updateErr := w.repo.Update(ctx, job.ID, repository.UpdateExportJobParams{
		Status:       &queued,
		Progress:     &reset,
		ErrorMessage: &msg,
	}); updateErr != nil {
		w.logger.Sugar().Warnw("failed to mark export job queued", "job_id", job.ID, "error", updateErr)
	}
	return err
}

func (w *ExportWorker) finish(ctx context.Context, record *models.ExportJob, relPath string) error {
	finished := models.ExportStatusFinished
	progress := 100
	now := time.Now().UTC()
	noError := ""
	if err := w.repo.Update(ctx, record.ID, repository.UpdateExportJobParams{
		Status:       &finished,
		Progress:     &progress,
		ResultPath:   &relPath,
		ErrorMessage: &noError,
		FinishedAt:   &now,
	}); err != nil {
		w.logger.Sugar().Warnw("failed to mark export job finished", "job_id", record.ID, "error", err)
		return err
	}
	w.metrics.ExportJobCompleted(record.Kind, finished)
	return nil
}
