package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/faculty-records-api/internal/dto"
	"github.com/noah-isme/faculty-records-api/internal/middleware"
	"github.com/noah-isme/faculty-records-api/internal/models"
	"github.com/noah-isme/faculty-records-api/internal/service"
	appErrors "github.com/noah-isme/faculty-records-api/pkg/errors"
)

type fakeSummaryService struct {
	summary   *models.Summary
	hit       bool
	err       error
	lastQuery dto.SummaryQuery
	lastReq   models.Requester
}

func (f *fakeSummaryService) Summary(_ context.Context, requester models.Requester, query dto.SummaryQuery) (*models.Summary, bool, error) {
	f.lastReq = requester
	f.lastQuery = query
	return f.summary, f.hit, f.err
}

func TestSummaryHandlerReportsCacheHit(t *testing.T) {
	svc := &fakeSummaryService{summary: &models.Summary{AcademicYear: "2025-26"}, hit: true}
	h := NewSummaryHandler(svc)
	c, rec := newTestContext(http.MethodGet, "/summary?academicYear=2025-26&department=ECE", nil, adminClaims)
	middleware.WithResponseMeta()(c)

	h.Summary(c)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, dto.SummaryQuery{AcademicYear: "2025-26", Department: "ECE"}, svc.lastQuery)
	assert.Equal(t, models.RoleAdmin, svc.lastReq.Role)
	body := decodeEnvelope(t, rec)
	assert.Equal(t, true, body.Meta["cache_hit"])
	assert.Contains(t, body.Meta, "processing_time_ms")
}

func TestSummaryHandlerIncomplete(t *testing.T) {
	svc := &fakeSummaryService{err: appErrors.Clone(appErrors.ErrSummaryIncomplete, "summary incomplete, counts failed for: patent")}
	h := NewSummaryHandler(svc)
	c, rec := newTestContext(http.MethodGet, "/summary", nil, inchargeClaims)

	h.Summary(c)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, decodeEnvelope(t, rec).Error.Message, "patent")
}

type fakeEmployeeService struct {
	created *dto.CreateEmployeeRequest
	updated *dto.UpdateEmployeeRequest
	err     error
}

func (f *fakeEmployeeService) List(context.Context, models.Requester, dto.EmployeeQuery) ([]models.User, error) {
	return []models.User{{ID: "u1", EmployeeID: "E123"}}, f.err
}

func (f *fakeEmployeeService) Get(_ context.Context, _ models.Requester, id string) (*models.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &models.User{ID: id}, nil
}

func (f *fakeEmployeeService) Create(_ context.Context, _ models.Requester, req dto.CreateEmployeeRequest) (*models.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.created = &req
	return &models.User{ID: "u2", EmployeeID: req.EmployeeID}, nil
}

func (f *fakeEmployeeService) Update(_ context.Context, _ models.Requester, id string, req dto.UpdateEmployeeRequest) (*models.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.updated = &req
	return &models.User{ID: id}, nil
}

func TestEmployeeHandlerCreate(t *testing.T) {
	svc := &fakeEmployeeService{}
	h := NewEmployeeHandler(svc)
	c, rec := newTestContext(http.MethodPost, "/employees",
		strings.NewReader(`{"employeeId":"E321","email":"e321@college.test","name":"New","department":"CSE","role":"faculty","password":"long-enough"}`), adminClaims)
	c.Request.Header.Set("Content-Type", "application/json")

	h.Create(c)

	require.Equal(t, http.StatusCreated, rec.Code)
	require.NotNil(t, svc.created)
	assert.Equal(t, "E321", svc.created.EmployeeID)
}

func TestEmployeeHandlerUpdatePartial(t *testing.T) {
	svc := &fakeEmployeeService{}
	h := NewEmployeeHandler(svc)
	c, rec := newTestContext(http.MethodPut, "/employees/u1", strings.NewReader(`{"department":"ECE"}`), adminClaims)
	c.Request.Header.Set("Content-Type", "application/json")
	c.Params = gin.Params{{Key: "id", Value: "u1"}}

	h.Update(c)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, svc.updated)
	require.NotNil(t, svc.updated.Department)
	assert.Equal(t, "ECE", *svc.updated.Department)
	assert.Nil(t, svc.updated.Role)
}

func TestEmployeeHandlerForbidden(t *testing.T) {
	h := NewEmployeeHandler(&fakeEmployeeService{err: appErrors.Clone(appErrors.ErrForbidden, "only administrators can manage employees")})
	c, rec := newTestContext(http.MethodGet, "/employees", nil, inchargeClaims)

	h.List(c)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

type fakeAuthService struct {
	loginErr error
	me       *models.UserInfo
	lastUser string
}

func (f *fakeAuthService) Login(_ context.Context, req models.LoginRequest) (*models.LoginResponse, error) {
	if f.loginErr != nil {
		return nil, f.loginErr
	}
	return &models.LoginResponse{AccessToken: "access", User: models.UserInfo{Email: req.Email}}, nil
}

func (f *fakeAuthService) RefreshToken(context.Context, models.RefreshTokenRequest) (*models.RefreshTokenResponse, error) {
	return &models.RefreshTokenResponse{AccessToken: "access"}, nil
}

func (f *fakeAuthService) Logout(_ context.Context, _ string, userID string, _ models.LoginRequest) error {
	f.lastUser = userID
	return nil
}

func (f *fakeAuthService) ChangePassword(_ context.Context, userID string, _ models.ChangePasswordRequest) error {
	f.lastUser = userID
	return nil
}

func (f *fakeAuthService) Me(_ context.Context, userID string) (*models.UserInfo, error) {
	f.lastUser = userID
	return f.me, nil
}

func TestAuthHandlerLoginInvalidCredentials(t *testing.T) {
	h := NewAuthHandler(&fakeAuthService{loginErr: appErrors.ErrInvalidCredentials})
	c, rec := newTestContext(http.MethodPost, "/auth/login", strings.NewReader(`{"email":"x@college.test","password":"nope"}`), nil)
	c.Request.Header.Set("Content-Type", "application/json")

	h.Login(c)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthHandlerMe(t *testing.T) {
	svc := &fakeAuthService{me: &models.UserInfo{ID: "u-e123", EmployeeID: "E123", Department: models.DeptCSE, Role: models.RoleFaculty}}
	h := NewAuthHandler(svc)
	c, rec := newTestContext(http.MethodGet, "/auth/me", nil, facultyClaims)

	h.Me(c)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "u-e123", svc.lastUser)
	var info models.UserInfo
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &info))
	assert.Equal(t, "E123", info.EmployeeID)
}

func TestAuthHandlerLogoutRequiresToken(t *testing.T) {
	h := NewAuthHandler(&fakeAuthService{})
	c, rec := newTestContext(http.MethodPost, "/auth/logout", strings.NewReader(`{}`), facultyClaims)
	c.Request.Header.Set("Content-Type", "application/json")

	h.Logout(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMetricsHandlerReady(t *testing.T) {
	h := NewMetricsHandler(service.NewMetricsService(), map[string]ReadinessCheck{
		"database": func(context.Context) error { return nil },
		"redis":    func(context.Context) error { return errors.New("connection refused") },
	})
	c, rec := newTestContext(http.MethodGet, "/ready", nil, nil)

	h.Ready(c)

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var body struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "degraded", body.Status)
	assert.Equal(t, "ok", body.Checks["database"])
	assert.Equal(t, "connection refused", body.Checks["redis"])
}

func TestMetricsHandlerSnapshot(t *testing.T) {
	metrics := service.NewMetricsService()
	metrics.RecordSubmitted(models.RecordPatent)
	h := NewMetricsHandler(metrics, nil)
	c, rec := newTestContext(http.MethodGet, "/metrics/snapshot", nil, adminClaims)

	h.Snapshot(c)

	require.Equal(t, http.StatusOK, rec.Code)
	var snapshot models.SystemMetrics
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &snapshot))
	assert.EqualValues(t, 1, snapshot.RecordsSubmitted)
}
