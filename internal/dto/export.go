package dto

import "github.com/noah-isme/faculty-records-api/internal/models"

// ExportQuery captures synchronous export filters.
type ExportQuery struct {
	Format       string `form:"format"`
	Status       string `form:"status"`
	AcademicYear string `form:"academicYear"`
	Department   string `form:"department"`
	EventType    string `form:"eventType"`
}

// ExportJobRequest captures POST /exports/jobs payload.
type ExportJobRequest struct {
	Kind         models.ExportKind `json:"kind" binding:"required,oneof=records summary"`
	RecordType   string            `json:"recordType"`
	Format       string            `json:"format"`
	Status       string            `json:"status"`
	AcademicYear string            `json:"academicYear"`
	Department   string            `json:"department"`
	EventType    string            `json:"eventType"`
}

// ExportJobResponse is returned after enqueueing an export.
type ExportJobResponse struct {
	ID       string              `json:"id"`
	Status   models.ExportStatus `json:"status"`
	Progress int                 `json:"progress"`
}

// ExportStatusResponse exposes job progress metadata.
type ExportStatusResponse struct {
	ID        string              `json:"id"`
	Kind      models.ExportKind   `json:"kind"`
	Status    models.ExportStatus `json:"status"`
	Progress  int                 `json:"progress"`
	ResultURL *string             `json:"resultUrl,omitempty"`
	Error     *string             `json:"error,omitempty"`
}
