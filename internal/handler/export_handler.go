package handler

import (
	"bytes"
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/faculty-records-api/internal/dto"
	"github.com/noah-isme/faculty-records-api/internal/models"
	"github.com/noah-isme/faculty-records-api/internal/service"
	appErrors "github.com/noah-isme/faculty-records-api/pkg/errors"
	"github.com/noah-isme/faculty-records-api/pkg/response"
)

type exportService interface {
	ExportRecords(ctx context.Context, requester models.Requester, rawType string, query dto.ExportQuery) (*service.ExportFile, error)
	ExportSummary(ctx context.Context, requester models.Requester, query dto.ExportQuery) (*service.ExportFile, error)
}

type exportJobService interface {
	CreateJob(ctx context.Context, requester models.Requester, req dto.ExportJobRequest) (*dto.ExportJobResponse, error)
	GetStatus(ctx context.Context, requester models.Requester, id string) (*dto.ExportStatusResponse, error)
	ResolveDownload(ctx context.Context, token string) (*service.ExportDownload, error)
}

// ExportHandler exposes synchronous downloads and the asynchronous export job API.
type ExportHandler struct {
	exports exportService
	jobs    exportJobService
}

// NewExportHandler constructs the handler. jobs may be nil when asynchronous exports are disabled.
func NewExportHandler(exports exportService, jobs exportJobService) *ExportHandler {
	return &ExportHandler{exports: exports, jobs: jobs}
}

// ExportRecords godoc
// @Summary Export records
// @Description Renders the caller's visible records of one type as xlsx, csv or pdf
// @Tags Exports
// @Produce application/octet-stream
// @Param type path string true "Record type"
// @Param format query string false "xlsx (default), csv or pdf"
// @Param status query string false "Status filter"
// @Param academicYear query string false "Academic year"
// @Param department query string false "Department (admin only)"
// @Success 200 {file} file
// @Failure 400 {object} response.Envelope
// @Router /exports/records/{type} [get]
func (h *ExportHandler) ExportRecords(c *gin.Context) {
	requester, ok := requesterFromContext(c)
	if !ok {
		return
	}
	var query dto.ExportQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query parameters"))
		return
	}
	file, err := h.exports.ExportRecords(c.Request.Context(), requester, c.Param("type"), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	sendFile(c, file)
}

// ExportSummary godoc
// @Summary Export summary
// @Description Renders the caller's dashboard summary
// @Tags Exports
// @Produce application/octet-stream
// @Param format query string false "xlsx (default), csv or pdf"
// @Param academicYear query string false "Academic year"
// @Param department query string false "Department (admin only)"
// @Success 200 {file} file
// @Router /exports/summary [get]
func (h *ExportHandler) ExportSummary(c *gin.Context) {
	requester, ok := requesterFromContext(c)
	if !ok {
		return
	}
	var query dto.ExportQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query parameters"))
		return
	}
	file, err := h.exports.ExportSummary(c.Request.Context(), requester, query)
	if err != nil {
		response.Error(c, err)
		return
	}
	sendFile(c, file)
}

// CreateJob godoc
// @Summary Queue an export job
// @Tags Exports
// @Accept json
// @Produce json
// @Param payload body dto.ExportJobRequest true "Export request"
// @Success 202 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /exports/jobs [post]
func (h *ExportHandler) CreateJob(c *gin.Context) {
	if h.jobs == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrUnavailable, "export jobs are disabled"))
		return
	}
	requester, ok := requesterFromContext(c)
	if !ok {
		return
	}
	var req dto.ExportJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid export payload"))
		return
	}
	job, err := h.jobs.CreateJob(c.Request.Context(), requester, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusAccepted, job)
}

// JobStatus godoc
// @Summary Export job status
// @Tags Exports
// @Produce json
// @Param id path string true "Job ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /exports/jobs/{id} [get]
func (h *ExportHandler) JobStatus(c *gin.Context) {
	if h.jobs == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrUnavailable, "export jobs are disabled"))
		return
	}
	requester, ok := requesterFromContext(c)
	if !ok {
		return
	}
	status, err := h.jobs.GetStatus(c.Request.Context(), requester, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, status)
}

// Download godoc
// @Summary Download a finished export
// @Tags Exports
// @Produce application/octet-stream
// @Param token path string true "Signed token"
// @Success 200 {file} file
// @Failure 401 {object} response.Envelope
// @Router /exports/download/{token} [get]
func (h *ExportHandler) Download(c *gin.Context) {
	if h.jobs == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrUnavailable, "export jobs are disabled"))
		return
	}
	token := strings.TrimSpace(c.Param("token"))
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "download token required"))
		return
	}
	download, err := h.jobs.ResolveDownload(c.Request.Context(), token)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer download.File.Close()
	response.Attachment(c, download.ContentType, download.FileName, download.Size, download.File)
}

func sendFile(c *gin.Context, file *service.ExportFile) {
	response.Attachment(c, file.ContentType, file.FileName, int64(len(file.Data)), bytes.NewReader(file.Data))
}
