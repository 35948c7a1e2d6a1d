package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/faculty-records-api/internal/dto"
	"github.com/noah-isme/faculty-records-api/internal/middleware"
	"github.com/noah-isme/faculty-records-api/internal/models"
	appErrors "github.com/noah-isme/faculty-records-api/pkg/errors"
	"github.com/noah-isme/faculty-records-api/pkg/response"
)

type summaryService interface {
	Summary(ctx context.Context, requester models.Requester, query dto.SummaryQuery) (*models.Summary, bool, error)
}

// SummaryHandler serves the dashboard counts.
type SummaryHandler struct {
	service summaryService
}

// NewSummaryHandler constructs the handler.
func NewSummaryHandler(service summaryService) *SummaryHandler {
	return &SummaryHandler{service: service}
}

// Summary godoc
// @Summary Dashboard summary
// @Description Per-type totals and status counts within the caller's scope
// @Tags Summary
// @Produce json
// @Param academicYear query string false "Academic year (YYYY-YY)"
// @Param department query string false "Department (admin only)"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 502 {object} response.Envelope
// @Router /summary [get]
func (h *SummaryHandler) Summary(c *gin.Context) {
	requester, ok := requesterFromContext(c)
	if !ok {
		return
	}
	var query dto.SummaryQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query parameters"))
		return
	}
	summary, cacheHit, err := h.service.Summary(c.Request.Context(), requester, query)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, cacheHit)
	response.JSON(c, http.StatusOK, summary, middleware.ResponseMeta(c))
}
