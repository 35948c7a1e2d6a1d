package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/faculty-records-api/internal/models"
	appErrors "github.com/noah-isme/faculty-records-api/pkg/errors"
	"github.com/noah-isme/faculty-records-api/pkg/logger"
)

type stubValidator struct {
	claims *models.JWTClaims
	err    error
}

func (s stubValidator) ValidateToken(string) (*models.JWTClaims, error) {
	return s.claims, s.err
}

type recordingAuditWriter struct {
	logs []models.AuditLog
	err  error
}

func (r *recordingAuditWriter) CreateAuditLog(_ context.Context, log *models.AuditLog) error {
	r.logs = append(r.logs, *log)
	return r.err
}

func newRouter(handlers ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/records/:type/:id", handlers...)
	return r
}

func ok(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"employee": c.GetString(logger.ContextEmployeeKey)})
}

func TestJWTRejectsMissingHeader(t *testing.T) {
	r := newRouter(JWT(stubValidator{}), ok)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/records/patent/1", nil))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestJWTRejectsInvalidToken(t *testing.T) {
	r := newRouter(JWT(stubValidator{err: appErrors.Clone(appErrors.ErrUnauthorized, "invalid token")}), ok)
	req := httptest.NewRequest(http.MethodGet, "/records/patent/1", nil)
	req.Header.Set("Authorization", "Bearer broken")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestJWTAttachesClaimsAndEmployee(t *testing.T) {
	claims := &models.JWTClaims{UserID: "u1", EmployeeID: "E123", Role: models.RoleFaculty, Department: models.DeptCSE}
	r := newRouter(JWT(stubValidator{claims: claims}), ok)
	req := httptest.NewRequest(http.MethodGet, "/records/patent/1", nil)
	req.Header.Set("Authorization", "bearer good-token")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"employee":"E123"}`, w.Body.String())
}

func TestOptionalJWTNeverBlocks(t *testing.T) {
	r := newRouter(OptionalJWT(stubValidator{err: errors.New("expired")}), ok)
	req := httptest.NewRequest(http.MethodGet, "/records/patent/1", nil)
	req.Header.Set("Authorization", "Bearer stale")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"employee":""}`, w.Body.String())
}

func TestRBAC(t *testing.T) {
	cases := []struct {
		name   string
		claims *models.JWTClaims
		want   int
	}{
		{name: "anonymous", claims: nil, want: http.StatusUnauthorized},
		{name: "faculty", claims: &models.JWTClaims{EmployeeID: "E123", Role: models.RoleFaculty}, want: http.StatusForbidden},
		{name: "incharge", claims: &models.JWTClaims{EmployeeID: "E900", Role: models.RoleIncharge}, want: http.StatusOK},
		{name: "admin", claims: &models.JWTClaims{EmployeeID: "A1", Role: models.RoleAdmin}, want: http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			setClaims := func(c *gin.Context) {
				if tc.claims != nil {
					c.Set(ContextUserKey, tc.claims)
				}
				c.Next()
			}
			r := newRouter(setClaims, Reviewers(), ok)
			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/records/patent/1", nil))
			assert.Equal(t, tc.want, w.Code)
		})
	}
}

func TestAuditRecordsSuccessfulRequests(t *testing.T) {
	writer := &recordingAuditWriter{}
	setClaims := func(c *gin.Context) {
		c.Set(ContextUserKey, &models.JWTClaims{UserID: "u-e900", EmployeeID: "E900", Role: models.RoleIncharge})
		c.Next()
	}
	r := newRouter(setClaims, Audit(writer, nil, models.AuditActionAttachmentView, "records"), ok)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/records/patent/rec-1", nil))

	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, writer.logs, 1)
	entry := writer.logs[0]
	assert.Equal(t, models.AuditActionAttachmentView, entry.Action)
	require.NotNil(t, entry.UserID)
	assert.Equal(t, "u-e900", *entry.UserID)
	require.NotNil(t, entry.ResourceID)
	assert.Equal(t, "rec-1", *entry.ResourceID)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(entry.NewValues, &body))
	assert.Equal(t, "patent", body["type"])
}

func TestAuditSkipsFailures(t *testing.T) {
	writer := &recordingAuditWriter{}
	fail := func(c *gin.Context) { c.Status(http.StatusNotFound) }
	r := newRouter(Audit(writer, nil, models.AuditActionAttachmentView, "records"), fail)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/records/patent/rec-1", nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Empty(t, writer.logs)
}

func TestResponseMetaCarriesCacheHit(t *testing.T) {
	handler := func(c *gin.Context) {
		SetCacheHit(c, true)
		c.JSON(http.StatusOK, ResponseMeta(c))
	}
	r := newRouter(WithResponseMeta(), handler)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/records/patent/1", nil))

	var meta map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &meta))
	assert.Equal(t, true, meta["cache_hit"])
	assert.Contains(t, meta, "processing_time_ms")
}
