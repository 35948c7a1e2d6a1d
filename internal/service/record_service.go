package service

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx/types"
	"go.uber.org/zap"

	"github.com/noah-isme/faculty-records-api/internal/dto"
	"github.com/noah-isme/faculty-records-api/internal/models"
	appErrors "github.com/noah-isme/faculty-records-api/pkg/errors"
	"github.com/noah-isme/faculty-records-api/pkg/storage"
)

type recordStore interface {
	Create(ctx context.Context, record *models.Record) error
	GetByID(ctx context.Context, recordType models.RecordType, id string) (*models.Record, error)
	List(ctx context.Context, filter models.RecordFilter) ([]models.Record, error)
	UpdateStatus(ctx context.Context, update models.StatusUpdate) error
}

type auditLogger interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

type summaryInvalidator interface {
	InvalidateSummaries(ctx context.Context)
}

type attachmentSigner interface {
	Generate(subject, ref string) (string, time.Time, error)
	Parse(token string, allowExpired bool) (string, string, time.Time, error)
}

// RecordServiceConfig bounds attachment uploads.
type RecordServiceConfig struct {
	MaxAttachmentBytes int64
}

// RecordServiceOption configures the service.
type RecordServiceOption func(*RecordService)

// WithRecordClock overrides the clock used for timestamps and academic year bucketing.
func WithRecordClock(now func() time.Time) RecordServiceOption {
	return func(s *RecordService) {
		if now != nil {
			s.now = now
		}
	}
}

// WithRecordAudit enables audit logging for submissions and reviews.
func WithRecordAudit(audit auditLogger) RecordServiceOption {
	return func(s *RecordService) { s.audit = audit }
}

// WithRecordMetrics enables domain counters.
func WithRecordMetrics(metrics *MetricsService) RecordServiceOption {
	return func(s *RecordService) { s.metrics = metrics }
}

// WithSummaryInvalidator drops cached summaries after every change.
func WithSummaryInvalidator(inv summaryInvalidator) RecordServiceOption {
	return func(s *RecordService) { s.summaries = inv }
}

// RecordService implements submission, listing and the review workflow.
type RecordService struct {
	records   recordStore
	directory directoryReader
	blobs     storage.BlobStore
	signer    attachmentSigner
	audit     auditLogger
	summaries summaryInvalidator
	metrics   *MetricsService
	logger    *zap.Logger
	cfg       RecordServiceConfig
	now       func() time.Time
}

// NewRecordService wires the workflow.
func NewRecordService(records recordStore, directory directoryReader, blobs storage.BlobStore, signer attachmentSigner, cfg RecordServiceConfig, logger *zap.Logger, opts ...RecordServiceOption) *RecordService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxAttachmentBytes <= 0 {
		cfg.MaxAttachmentBytes = 10 * 1024 * 1024
	}
	svc := &RecordService{
		records:   records,
		directory: directory,
		blobs:     blobs,
		signer:    signer,
		logger:    logger,
		cfg:       cfg,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// Submit stores the attachment and inserts a pending record owned by the requester.
func (s *RecordService) Submit(ctx context.Context, requester models.Requester, rawType string, input dto.SubmitRecordInput) (*models.RecordView, error) {
	if requester.Role != models.RoleFaculty {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only faculty can submit records")
	}
	if err := verifyRequester(ctx, s.directory, requester); err != nil {
		return nil, err
	}
	spec, ok := models.LookupRecordType(rawType)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "unknown record type")
	}
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "title is required")
	}
	if len(title) > 500 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "title is too long")
	}
	details, err := validateDetails(spec, input.Details)
	if err != nil {
		return nil, err
	}
	content, err := s.checkAttachment(input)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	blobName := fmt.Sprintf("%s_%d_%s", storage.SanitizeName(requester.EmployeeID), now.UnixMilli(), storage.SanitizeName(input.FileName))
	if _, err := s.blobs.Put(ctx, string(spec.Type), blobName, content); err != nil {
		if errors.Is(err, storage.ErrBlobExists) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "an attachment with the same name was just uploaded")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store attachment")
	}

	record := &models.Record{
		ID:            uuid.NewString(),
		Type:          spec.Type,
		EmployeeID:    requester.EmployeeID,
		Title:         title,
		Details:       details,
		Status:        models.StatusPending,
		AcademicYear:  AcademicYearFor(now),
		AttachmentRef: blobName,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.records.Create(ctx, record); err != nil {
		s.logger.Error("record insert failed, attachment orphaned",
			zap.String("bucket", string(spec.Type)),
			zap.String("blob", blobName),
			zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save record")
	}

	s.emitAudit(ctx, &models.AuditLog{
		UserID:     optionalString(requester.UserID),
		Action:     models.AuditActionRecordSubmit,
		Resource:   string(spec.Type),
		ResourceID: &record.ID,
		NewValues:  mustJSON(map[string]interface{}{"title": record.Title, "academicYear": record.AcademicYear}),
	})
	s.metrics.RecordSubmitted(spec.Type)
	s.invalidate(ctx)

	view := &models.RecordView{Record: *record}
	if owners, err := s.directory.FindEmployees(ctx, []string{record.EmployeeID}); err == nil && len(owners) > 0 {
		view.OwnerName = owners[0].Name
		view.OwnerDepartment = owners[0].Department
	} else {
		view.OwnerDepartment = requester.Department
	}
	return view, nil
}

// List returns the records of one type visible to the requester, newest first.
func (s *RecordService) List(ctx context.Context, requester models.Requester, rawType string, query dto.RecordQuery) ([]models.RecordView, error) {
	spec, ok := models.LookupRecordType(rawType)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "unknown record type")
	}
	filter, department, err := buildRecordFilter(spec, requester, query)
	if err != nil {
		return nil, err
	}
	scope, err := loadScope(ctx, s.directory, requester, department)
	if err != nil {
		return nil, err
	}

	records, err := s.records.List(ctx, scope.Apply(filter))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list records")
	}
	return s.annotate(ctx, records)
}

// Get returns one record when it is visible to the requester. Invisible and missing records look the same.
func (s *RecordService) Get(ctx context.Context, requester models.Requester, rawType, id string) (*models.RecordView, error) {
	record, err := s.loadVisible(ctx, requester, rawType, id)
	if err != nil {
		return nil, err
	}
	views, err := s.annotate(ctx, []models.Record{*record})
	if err != nil {
		return nil, err
	}
	return &views[0], nil
}

// Review applies the single terminal transition to a pending record.
func (s *RecordService) Review(ctx context.Context, requester models.Requester, rawType, id string, req dto.ReviewRecordRequest) (*models.RecordView, error) {
	if !requester.Role.IsReviewer() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only reviewers can change record status")
	}
	status := models.RecordStatus(req.Status)
	if !status.Terminal() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "status must be Accepted or Rejected")
	}
	reason := strings.TrimSpace(req.RejectionReason)
	if status == models.StatusRejected && reason == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "reason required for rejection")
	}
	if status == models.StatusAccepted {
		reason = ""
	}

	record, err := s.loadVisible(ctx, requester, rawType, id)
	if err != nil {
		return nil, err
	}
	if record.Status.Terminal() {
		return nil, appErrors.Clone(appErrors.ErrConflict, "record has already been reviewed")
	}

	now := s.now().UTC()
	update := models.StatusUpdate{
		ID:              record.ID,
		Type:            record.Type,
		Status:          status,
		RejectionReason: reason,
		ReviewedBy:      requester.EmployeeID,
		ReviewedAt:      now,
	}
	if err := s.records.UpdateStatus(ctx, update); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "record has already been reviewed")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update record status")
	}

	record.Status = status
	record.RejectionReason = reason
	record.ReviewedBy = &update.ReviewedBy
	record.ReviewedAt = &now
	record.UpdatedAt = now

	s.emitAudit(ctx, &models.AuditLog{
		UserID:     optionalString(requester.UserID),
		Action:     models.AuditActionRecordReview,
		Resource:   string(record.Type),
		ResourceID: &record.ID,
		OldValues:  mustJSON(map[string]interface{}{"status": models.StatusPending}),
		NewValues:  mustJSON(map[string]interface{}{"status": status, "rejectionReason": reason}),
	})
	s.metrics.RecordReviewed(record.Type, status)
	s.invalidate(ctx)

	s.logger.Info("record reviewed",
		zap.String("record_id", record.ID),
		zap.String("record_type", string(record.Type)),
		zap.String("status", string(status)),
		zap.String("reviewer", requester.EmployeeID))

	views, err := s.annotate(ctx, []models.Record{*record})
	if err != nil {
		return nil, err
	}
	return &views[0], nil
}

// AttachmentLink issues a signed token for a visible record's attachment.
func (s *RecordService) AttachmentLink(ctx context.Context, requester models.Requester, rawType, id string) (*dto.AttachmentLink, error) {
	record, err := s.loadVisible(ctx, requester, rawType, id)
	if err != nil {
		return nil, err
	}
	if record.AttachmentRef == "" {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "record has no attachment")
	}
	token, expiresAt, err := s.signer.Generate(record.ID, string(record.Type)+"/"+record.AttachmentRef)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign attachment link")
	}
	return &dto.AttachmentLink{Token: token, ExpiresAt: expiresAt}, nil
}

// AttachmentDownload is an open attachment stream and its client-facing name.
type AttachmentDownload struct {
	FileName string
	Size     int64
	Body     io.ReadCloser
}

// OpenAttachment validates a signed token for the record and opens its blob.
func (s *RecordService) OpenAttachment(ctx context.Context, rawType, id, token string) (*AttachmentDownload, error) {
	spec, ok := models.LookupRecordType(rawType)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "unknown record type")
	}
	subject, ref, _, err := s.signer.Parse(token, false)
	if err != nil {
		if errors.Is(err, storage.ErrTokenExpired) {
			return nil, appErrors.Clone(appErrors.ErrUnauthorized, "download link expired")
		}
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid download token")
	}
	bucket, name, found := strings.Cut(ref, "/")
	if subject != id || !found || bucket != string(spec.Type) {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid download token")
	}
	blob, err := s.blobs.Open(ctx, bucket, name)
	if err != nil {
		if errors.Is(err, storage.ErrBlobNotFound) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "attachment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open attachment")
	}
	return &AttachmentDownload{FileName: displayName(name), Size: blob.Size, Body: blob.Reader}, nil
}

func (s *RecordService) loadVisible(ctx context.Context, requester models.Requester, rawType, id string) (*models.Record, error) {
	spec, ok := models.LookupRecordType(rawType)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "unknown record type")
	}
	if _, err := uuid.Parse(id); err != nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "record not found")
	}
	record, err := s.records.GetByID(ctx, spec.Type, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "record not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load record")
	}
	scope, err := loadScope(ctx, s.directory, requester, "")
	if err != nil {
		return nil, err
	}
	if !scope.Allows(record.EmployeeID) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "record not found")
	}
	return record, nil
}

// annotate joins owner name and department onto records with a single directory lookup.
func (s *RecordService) annotate(ctx context.Context, records []models.Record) ([]models.RecordView, error) {
	views := make([]models.RecordView, len(records))
	if len(records) == 0 {
		return views, nil
	}
	seen := make(map[string]struct{})
	ids := make([]string, 0)
	for _, r := range records {
		if _, ok := seen[r.EmployeeID]; !ok {
			seen[r.EmployeeID] = struct{}{}
			ids = append(ids, r.EmployeeID)
		}
	}
	employees, err := s.directory.FindEmployees(ctx, ids)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve record owners")
	}
	owners := make(map[string]models.Employee, len(employees))
	for _, e := range employees {
		owners[e.EmployeeID] = e
	}
	for i, r := range records {
		views[i] = models.RecordView{Record: r}
		if owner, ok := owners[r.EmployeeID]; ok {
			views[i].OwnerName = owner.Name
			views[i].OwnerDepartment = owner.Department
		}
	}
	return views, nil
}

func (s *RecordService) checkAttachment(input dto.SubmitRecordInput) (io.Reader, error) {
	if input.File == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "attachment file is required")
	}
	if input.Size > s.cfg.MaxAttachmentBytes {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("file exceeds %d bytes limit", s.cfg.MaxAttachmentBytes))
	}
	if !strings.EqualFold(strings.TrimSpace(input.ContentType), "application/pdf") &&
		!strings.HasSuffix(strings.ToLower(input.FileName), ".pdf") {
		return nil, appErrors.Clone(appErrors.ErrValidation, "attachment must be a PDF")
	}
	header := make([]byte, 512)
	n, err := io.ReadFull(input.File, header)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to inspect file")
	}
	if n == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "empty file")
	}
	header = header[:n]
	if http.DetectContentType(header) != "application/pdf" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "attachment must be a PDF")
	}
	return io.LimitReader(io.MultiReader(bytes.NewReader(header), input.File), s.cfg.MaxAttachmentBytes), nil
}

func (s *RecordService) invalidate(ctx context.Context) {
	if s.summaries != nil {
		s.summaries.InvalidateSummaries(ctx)
	}
}

func (s *RecordService) emitAudit(ctx context.Context, log *models.AuditLog) {
	if s.audit == nil || log == nil {
		return
	}
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("failed to write audit log", zap.String("action", log.Action), zap.Error(err))
	}
}

func buildRecordFilter(spec models.RecordTypeSpec, requester models.Requester, query dto.RecordQuery) (models.RecordFilter, models.Department, error) {
	filter := models.RecordFilter{Type: spec.Type}
	if raw := strings.TrimSpace(query.Status); raw != "" {
		status := models.RecordStatus(raw)
		if !status.Valid() {
			return filter, "", appErrors.Clone(appErrors.ErrValidation, "status must be Pending, Accepted or Rejected")
		}
		filter.Status = &status
	}
	if year := strings.TrimSpace(query.AcademicYear); year != "" {
		if err := ValidateAcademicYear(year); err != nil {
			return filter, "", err
		}
		filter.AcademicYear = year
	}
	if eventType := strings.TrimSpace(query.EventType); eventType != "" {
		if spec.SubtypeField == "" || !containsString(spec.Subtypes(), eventType) {
			return filter, "", appErrors.Clone(appErrors.ErrValidation, "unknown subtype filter")
		}
		filter.EventType = eventType
	}
	department, err := parseExplicitDepartment(requester, strings.TrimSpace(query.Department))
	if err != nil {
		return filter, "", err
	}
	return filter, department, nil
}

// validateDetails checks the opaque payload against the type's declared fields and returns it normalised.
func validateDetails(spec models.RecordTypeSpec, raw json.RawMessage) (types.JSONText, error) {
	values := map[string]interface{}{}
	if trimmed := bytes.TrimSpace(raw); len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null")) {
		decoder := json.NewDecoder(bytes.NewReader(trimmed))
		decoder.UseNumber()
		if err := decoder.Decode(&values); err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "details must be a JSON object")
		}
	}

	known := make(map[string]models.FieldSpec, len(spec.Fields))
	for _, f := range spec.Fields {
		known[f.Key] = f
	}
	for key := range values {
		if _, ok := known[key]; !ok {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown detail field %q", key))
		}
	}

	normalised := make(map[string]interface{}, len(values))
	for _, field := range spec.Fields {
		value, present := values[field.Key]
		if !present || isBlank(value) {
			if field.Required {
				return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("%s is required", field.Label))
			}
			continue
		}
		clean, err := coerceField(field, value)
		if err != nil {
			return nil, err
		}
		normalised[field.Key] = clean
	}

	data, err := json.Marshal(normalised)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to encode details")
	}
	return types.JSONText(data), nil
}

func coerceField(field models.FieldSpec, value interface{}) (interface{}, error) {
	invalid := func(msg string) error {
		return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("%s %s", field.Label, msg))
	}
	switch field.Kind {
	case models.FieldNumber:
		switch v := value.(type) {
		case json.Number:
			f, err := v.Float64()
			if err != nil {
				return nil, invalid("must be a number")
			}
			return f, nil
		case string:
			f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				return nil, invalid("must be a number")
			}
			return f, nil
		default:
			return nil, invalid("must be a number")
		}
	case models.FieldDate:
		s, ok := value.(string)
		if !ok {
			return nil, invalid("must be a date (YYYY-MM-DD)")
		}
		s = strings.TrimSpace(s)
		if _, err := time.Parse("2006-01-02", s); err != nil {
			return nil, invalid("must be a date (YYYY-MM-DD)")
		}
		return s, nil
	case models.FieldEnum:
		s, ok := value.(string)
		if !ok || !containsString(field.Options, strings.TrimSpace(s)) {
			return nil, invalid("must be one of " + strings.Join(field.Options, ", "))
		}
		return strings.TrimSpace(s), nil
	default:
		s, ok := value.(string)
		if !ok {
			if n, isNum := value.(json.Number); isNum {
				return n.String(), nil
			}
			return nil, invalid("must be text")
		}
		s = strings.TrimSpace(s)
		if len(s) > 1000 {
			return nil, invalid("is too long")
		}
		return s, nil
	}
}

func isBlank(value interface{}) bool {
	if value == nil {
		return true
	}
	if s, ok := value.(string); ok {
		return strings.TrimSpace(s) == ""
	}
	return false
}

func containsString(list []string, value string) bool {
	for _, item := range list {
		if item == value {
			return true
		}
	}
	return false
}

// displayName strips the "{employee}_{millis}_" prefix added at upload.
func displayName(blobName string) string {
	parts := strings.SplitN(blobName, "_", 3)
	if len(parts) == 3 {
		if _, err := strconv.ParseInt(parts[1], 10, 64); err == nil && parts[2] != "" {
			return parts[2]
		}
	}
	return blobName
}

func optionalString(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}

func mustJSON(value interface{}) []byte {
	data, err := json.Marshal(value)
	if err != nil {
		return []byte("{}")
	}
	return data
}
