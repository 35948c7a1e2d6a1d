package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/faculty-records-api/internal/dto"
	"github.com/noah-isme/faculty-records-api/internal/models"
	"github.com/noah-isme/faculty-records-api/internal/service"
	appErrors "github.com/noah-isme/faculty-records-api/pkg/errors"
	"github.com/noah-isme/faculty-records-api/pkg/response"
)

// multipartOverhead is the allowance for form fields and boundaries on top of the file limit.
const multipartOverhead = 1 << 20

type recordService interface {
	Submit(ctx context.Context, requester models.Requester, rawType string, input dto.SubmitRecordInput) (*models.RecordView, error)
	List(ctx context.Context, requester models.Requester, rawType string, query dto.RecordQuery) ([]models.RecordView, error)
	Get(ctx context.Context, requester models.Requester, rawType, id string) (*models.RecordView, error)
	Review(ctx context.Context, requester models.Requester, rawType, id string, req dto.ReviewRecordRequest) (*models.RecordView, error)
	AttachmentLink(ctx context.Context, requester models.Requester, rawType, id string) (*dto.AttachmentLink, error)
	OpenAttachment(ctx context.Context, rawType, id, token string) (*service.AttachmentDownload, error)
}

// RecordHandler exposes record submission, listing and review.
type RecordHandler struct {
	service        recordService
	apiPrefix      string
	maxUploadBytes int64
}

// NewRecordHandler constructs the handler. apiPrefix is used to build attachment URLs.
func NewRecordHandler(svc recordService, apiPrefix string, maxUploadBytes int64) *RecordHandler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = 10 << 20
	}
	return &RecordHandler{service: svc, apiPrefix: strings.TrimRight(apiPrefix, "/"), maxUploadBytes: maxUploadBytes}
}

// RecordTypes godoc
// @Summary List record types
// @Description Returns every record type with its detail fields
// @Tags Records
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /record-types [get]
func (h *RecordHandler) RecordTypes(c *gin.Context) {
	response.JSON(c, http.StatusOK, models.RecordTypes())
}

// Submit godoc
// @Summary Submit a record
// @Description Faculty upload a record with its PDF attachment
// @Tags Records
// @Accept multipart/form-data
// @Produce json
// @Param type path string true "Record type"
// @Param title formData string true "Title"
// @Param details formData string true "Type-specific details as JSON"
// @Param file formData file true "PDF attachment"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /records/{type} [post]
func (h *RecordHandler) Submit(c *gin.Context) {
	requester, ok := requesterFromContext(c)
	if !ok {
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes+multipartOverhead)

	fileHeader, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) || strings.Contains(err.Error(), "request body too large") {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("file exceeds %d bytes limit", h.maxUploadBytes)))
			return
		}
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "attachment file is required"))
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "unreadable attachment"))
		return
	}
	defer file.Close()

	details := strings.TrimSpace(c.PostForm("details"))
	if details == "" {
		details = "{}"
	}
	if !json.Valid([]byte(details)) {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "details must be a JSON object"))
		return
	}

	view, err := h.service.Submit(c.Request.Context(), requester, c.Param("type"), dto.SubmitRecordInput{
		Title:       c.PostForm("title"),
		Details:     json.RawMessage(details),
		FileName:    fileHeader.Filename,
		ContentType: fileHeader.Header.Get("Content-Type"),
		Size:        fileHeader.Size,
		File:        file,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, view)
}

// List godoc
// @Summary List records
// @Description Lists records of a type visible to the caller
// @Tags Records
// @Produce json
// @Param type path string true "Record type"
// @Param status query string false "Pending, Accepted or Rejected"
// @Param academicYear query string false "Academic year (YYYY-YY)"
// @Param department query string false "Department (admin only)"
// @Param eventType query string false "Event subtype"
// @Success 200 {object} response.Envelope
// @Router /records/{type} [get]
func (h *RecordHandler) List(c *gin.Context) {
	requester, ok := requesterFromContext(c)
	if !ok {
		return
	}
	var query dto.RecordQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query parameters"))
		return
	}
	views, err := h.service.List(c.Request.Context(), requester, c.Param("type"), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, views, map[string]interface{}{"count": len(views)})
}

// Get godoc
// @Summary Get record
// @Tags Records
// @Produce json
// @Param type path string true "Record type"
// @Param id path string true "Record ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /records/{type}/{id} [get]
func (h *RecordHandler) Get(c *gin.Context) {
	requester, ok := requesterFromContext(c)
	if !ok {
		return
	}
	view, err := h.service.Get(c.Request.Context(), requester, c.Param("type"), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, view)
}

// Review godoc
// @Summary Accept or reject a record
// @Description Reviewers move a pending record to Accepted or Rejected
// @Tags Records
// @Accept json
// @Produce json
// @Param type path string true "Record type"
// @Param id path string true "Record ID"
// @Param payload body dto.ReviewRecordRequest true "Decision"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /records/{type}/{id}/status [patch]
func (h *RecordHandler) Review(c *gin.Context) {
	requester, ok := requesterFromContext(c)
	if !ok {
		return
	}
	var req dto.ReviewRecordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid review payload"))
		return
	}
	view, err := h.service.Review(c.Request.Context(), requester, c.Param("type"), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, view)
}

// AttachmentURL godoc
// @Summary Get attachment link
// @Description Issues a short-lived signed link to a visible record's PDF
// @Tags Records
// @Produce json
// @Param type path string true "Record type"
// @Param id path string true "Record ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /records/{type}/{id}/attachment-url [get]
func (h *RecordHandler) AttachmentURL(c *gin.Context) {
	requester, ok := requesterFromContext(c)
	if !ok {
		return
	}
	link, err := h.service.AttachmentLink(c.Request.Context(), requester, c.Param("type"), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	link.URL = fmt.Sprintf("%s/records/%s/%s/attachment?token=%s", h.apiPrefix, url.PathEscape(c.Param("type")), url.PathEscape(c.Param("id")), url.QueryEscape(link.Token))
	response.JSON(c, http.StatusOK, link)
}

// DownloadAttachment godoc
// @Summary Download attachment
// @Description Streams the PDF named by a signed token
// @Tags Records
// @Produce application/pdf
// @Param type path string true "Record type"
// @Param id path string true "Record ID"
// @Param token query string true "Signed token"
// @Success 200 {file} file
// @Failure 401 {object} response.Envelope
// @Router /records/{type}/{id}/attachment [get]
func (h *RecordHandler) DownloadAttachment(c *gin.Context) {
	token := strings.TrimSpace(c.Query("token"))
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "download token required"))
		return
	}
	download, err := h.service.OpenAttachment(c.Request.Context(), c.Param("type"), c.Param("id"), token)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer download.Body.Close()
	response.Attachment(c, "application/pdf", download.FileName, download.Size, download.Body)
}
