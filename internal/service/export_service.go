package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/faculty-records-api/internal/dto"
	"github.com/noah-isme/faculty-records-api/internal/models"
	appErrors "github.com/noah-isme/faculty-records-api/pkg/errors"
	"github.com/noah-isme/faculty-records-api/pkg/export"
)

type recordViewer interface {
	List(ctx context.Context, requester models.Requester, rawType string, query dto.RecordQuery) ([]models.RecordView, error)
}

type summaryProvider interface {
	Summary(ctx context.Context, requester models.Requester, query dto.SummaryQuery) (*models.Summary, bool, error)
}

// ExportFile is a rendered document ready to be sent or stored.
type ExportFile struct {
	FileName    string
	ContentType string
	Data        []byte
}

// ExportService renders scoped record listings and summaries as spreadsheets or documents.
type ExportService struct {
	records   recordViewer
	summaries summaryProvider
	logger    *zap.Logger
	now       func() time.Time
}

// NewExportService constructs an ExportService.
func NewExportService(records recordViewer, summaries summaryProvider, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{records: records, summaries: summaries, logger: logger, now: time.Now}
}

// ExportRecords renders the visible records of one type.
func (s *ExportService) ExportRecords(ctx context.Context, requester models.Requester, rawType string, query dto.ExportQuery) (*ExportFile, error) {
	if !requester.Role.IsReviewer() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only reviewers can export records")
	}
	exporter, err := resolveExporter(query.Format)
	if err != nil {
		return nil, err
	}
	spec, ok := models.LookupRecordType(rawType)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "unknown record type")
	}
	views, err := s.records.List(ctx, requester, string(spec.Type), dto.RecordQuery{
		Status:       query.Status,
		AcademicYear: query.AcademicYear,
		Department:   query.Department,
		EventType:    query.EventType,
	})
	if err != nil {
		return nil, err
	}
	dataset := RecordDataset(spec, views)
	return s.render(exporter, dataset, string(spec.Type), query.AcademicYear)
}

// ExportSummary renders the requester's dashboard summary.
func (s *ExportService) ExportSummary(ctx context.Context, requester models.Requester, query dto.ExportQuery) (*ExportFile, error) {
	if !requester.Role.IsReviewer() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only reviewers can export summaries")
	}
	exporter, err := resolveExporter(query.Format)
	if err != nil {
		return nil, err
	}
	summary, _, err := s.summaries.Summary(ctx, requester, dto.SummaryQuery{AcademicYear: query.AcademicYear, Department: query.Department})
	if err != nil {
		return nil, err
	}
	return s.render(exporter, SummaryDataset(summary), "summary", query.AcademicYear)
}

func (s *ExportService) render(exporter export.Exporter, dataset export.Dataset, prefix, year string) (*ExportFile, error) {
	data, err := exporter.Render(dataset)
	if err != nil {
		s.logger.Error("export render failed", zap.String("title", dataset.Title), zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}
	return &ExportFile{
		FileName:    exportFilename(prefix, year, exporter.Extension(), s.now()),
		ContentType: exporter.ContentType(),
		Data:        data,
	}, nil
}

func resolveExporter(format string) (export.Exporter, error) {
	exporter, err := export.ForFormat(format)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "format must be xlsx, csv or pdf")
	}
	return exporter, nil
}

var recordBaseColumns = []export.Column{
	{Key: "employeeId", Label: "Employee ID"},
	{Key: "ownerName", Label: "Name"},
	{Key: "ownerDepartment", Label: "Department"},
	{Key: "title", Label: "Title"},
}

var recordTrailingColumns = []export.Column{
	{Key: "academicYear", Label: "Academic Year"},
	{Key: "status", Label: "Status"},
	{Key: "rejectionReason", Label: "Rejection Reason"},
	{Key: "createdAt", Label: "Submitted On"},
}

// RecordDataset lays out records with the type's own detail fields between the common columns.
func RecordDataset(spec models.RecordTypeSpec, views []models.RecordView) export.Dataset {
	columns := make([]export.Column, 0, len(recordBaseColumns)+len(spec.Fields)+len(recordTrailingColumns))
	columns = append(columns, recordBaseColumns...)
	for _, f := range spec.Fields {
		columns = append(columns, export.Column{Key: "details." + f.Key, Label: f.Label})
	}
	columns = append(columns, recordTrailingColumns...)

	rows := make([]map[string]string, 0, len(views))
	for _, v := range views {
		row := map[string]string{
			"employeeId":      v.EmployeeID,
			"ownerName":       v.OwnerName,
			"ownerDepartment": string(v.OwnerDepartment),
			"title":           v.Title,
			"academicYear":    v.AcademicYear,
			"status":          string(v.Status),
			"rejectionReason": v.RejectionReason,
			"createdAt":       v.CreatedAt.UTC().Format("2006-01-02"),
		}
		var details map[string]interface{}
		if len(v.Details) > 0 {
			_ = json.Unmarshal(v.Details, &details)
		}
		for _, f := range spec.Fields {
			row["details."+f.Key] = formatDetail(details[f.Key])
		}
		rows = append(rows, row)
	}
	return export.Dataset{Title: spec.Label, Columns: columns, Rows: rows}
}

var summaryColumns = []export.Column{
	{Key: "type", Label: "Record Type"},
	{Key: "subtype", Label: "Subtype"},
	{Key: "total", Label: "Total"},
	{Key: "accepted", Label: "Accepted"},
	{Key: "pending", Label: "Pending"},
	{Key: "rejected", Label: "Rejected"},
}

// SummaryDataset flattens a summary into one row per type followed by its subtype rows.
func SummaryDataset(summary *models.Summary) export.Dataset {
	title := "Summary"
	if summary.Department != "" {
		title += " " + string(summary.Department)
	}
	if summary.AcademicYear != "" {
		title += " " + summary.AcademicYear
	}
	rows := make([]map[string]string, 0, len(summary.Types))
	for _, spec := range models.RecordTypes() {
		entry, ok := summary.Types[spec.Type]
		if !ok {
			continue
		}
		rows = append(rows, countsRow(spec.Label, "", entry.StatusCounts))
		for _, sub := range spec.Subtypes() {
			rows = append(rows, countsRow(spec.Label, sub, entry.Subtypes[sub]))
		}
	}
	return export.Dataset{Title: title, Columns: summaryColumns, Rows: rows}
}

func countsRow(label, subtype string, c models.StatusCounts) map[string]string {
	return map[string]string{
		"type":     label,
		"subtype":  subtype,
		"total":    strconv.Itoa(c.Total),
		"accepted": strconv.Itoa(c.Accepted),
		"pending":  strconv.Itoa(c.Pending),
		"rejected": strconv.Itoa(c.Rejected),
	}
}

func formatDetail(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		return fmt.Sprint(v)
	}
}

func exportFilename(prefix, year, ext string, now time.Time) string {
	if year == "" {
		year = "all"
	}
	prefix = strings.ReplaceAll(strings.ToLower(prefix), " ", "_")
	return fmt.Sprintf("%s_%s_%s.%s", prefix, year, now.UTC().Format("20060102_150405"), ext)
}

// Generate renders the document an asynchronous job describes, re-scoping with the identity that queued it.
func (s *ExportService) Generate(ctx context.Context, job *models.ExportJob) (*ExportFile, error) {
	if job == nil {
		return nil, fmt.Errorf("export job is nil")
	}
	p := job.Params
	query := dto.ExportQuery{
		Format:       p.Format,
		AcademicYear: p.AcademicYear,
		Department:   p.Department,
		EventType:    p.EventType,
	}
	if p.Status != nil {
		query.Status = string(*p.Status)
	}
	switch job.Kind {
	case models.ExportKindRecords:
		return s.ExportRecords(ctx, p.Requester(), string(p.RecordType), query)
	case models.ExportKindSummary:
		return s.ExportSummary(ctx, p.Requester(), query)
	default:
		return nil, fmt.Errorf("unsupported export kind %q", job.Kind)
	}
}
