package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/faculty-records-api/internal/dto"
	"github.com/noah-isme/faculty-records-api/internal/models"
	appErrors "github.com/noah-isme/faculty-records-api/pkg/errors"
	"github.com/noah-isme/faculty-records-api/pkg/response"
)

type employeeService interface {
	List(ctx context.Context, requester models.Requester, query dto.EmployeeQuery) ([]models.User, error)
	Get(ctx context.Context, requester models.Requester, id string) (*models.User, error)
	Create(ctx context.Context, requester models.Requester, req dto.CreateEmployeeRequest) (*models.User, error)
	Update(ctx context.Context, requester models.Requester, id string, req dto.UpdateEmployeeRequest) (*models.User, error)
}

// EmployeeHandler handles employee directory endpoints.
type EmployeeHandler struct {
	service employeeService
}

// NewEmployeeHandler creates a new employee handler.
func NewEmployeeHandler(svc employeeService) *EmployeeHandler {
	return &EmployeeHandler{service: svc}
}

// List godoc
// @Summary List employees
// @Tags Employees
// @Produce json
// @Param role query string false "faculty, incharge or admin"
// @Param department query string false "Department"
// @Param active query bool false "Active filter"
// @Param search query string false "Matches name, email or employee id"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /employees [get]
func (h *EmployeeHandler) List(c *gin.Context) {
	requester, ok := requesterFromContext(c)
	if !ok {
		return
	}
	var query dto.EmployeeQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query parameters"))
		return
	}
	users, err := h.service.List(c.Request.Context(), requester, query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, users, map[string]interface{}{"count": len(users)})
}

// Get godoc
// @Summary Get employee
// @Tags Employees
// @Produce json
// @Param id path string true "User ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /employees/{id} [get]
func (h *EmployeeHandler) Get(c *gin.Context) {
	requester, ok := requesterFromContext(c)
	if !ok {
		return
	}
	user, err := h.service.Get(c.Request.Context(), requester, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, user)
}

// Create godoc
// @Summary Create employee
// @Tags Employees
// @Accept json
// @Produce json
// @Param payload body dto.CreateEmployeeRequest true "Employee payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /employees [post]
func (h *EmployeeHandler) Create(c *gin.Context) {
	requester, ok := requesterFromContext(c)
	if !ok {
		return
	}
	var req dto.CreateEmployeeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	user, err := h.service.Create(c.Request.Context(), requester, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, user)
}

// Update godoc
// @Summary Update employee
// @Tags Employees
// @Accept json
// @Produce json
// @Param id path string true "User ID"
// @Param payload body dto.UpdateEmployeeRequest true "Fields to change"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /employees/{id} [put]
func (h *EmployeeHandler) Update(c *gin.Context) {
	requester, ok := requesterFromContext(c)
	if !ok {
		return
	}
	var req dto.UpdateEmployeeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	user, err := h.service.Update(c.Request.Context(), requester, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, user)
}
