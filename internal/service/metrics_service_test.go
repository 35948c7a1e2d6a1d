package service

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/faculty-records-api/internal/models"
)

func TestMetricsServiceSnapshot(t *testing.T) {
	m := NewMetricsService()
	m.ObserveHTTPRequest("GET", "/records/:type", 200, 20*time.Millisecond)
	m.ObserveHTTPRequest("GET", "/records/:type", 200, 40*time.Millisecond)
	m.RecordCacheOperation(true, time.Millisecond)
	m.RecordCacheOperation(false, time.Millisecond)
	m.RecordSubmitted(models.RecordPatent)
	m.RecordReviewed(models.RecordPatent, models.StatusRejected)
	m.SummaryFailed()

	snap := m.Snapshot()
	require.Equal(t, uint64(2), snap.RequestsTotal)
	require.InDelta(t, 30.0, snap.AverageRequestDurationMs, 0.001)
	require.InDelta(t, 0.5, snap.CacheHitRatio, 0.001)
	require.Equal(t, uint64(1), snap.RecordsSubmitted)
	require.Equal(t, uint64(1), snap.RecordsReviewed)
	require.Equal(t, uint64(1), snap.SummaryFailures)
}

func TestMetricsServiceHandlerExposesDomainCounters(t *testing.T) {
	m := NewMetricsService()
	m.RecordSubmitted(models.RecordJournal)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, strings.Contains(rec.Body.String(), `records_submitted_total{record_type="journal"} 1`))
}

func TestMetricsServiceNilSafe(t *testing.T) {
	var m *MetricsService
	m.RecordSubmitted(models.RecordAward)
	m.ObserveSummary(true, time.Second)
	require.Equal(t, models.SystemMetrics{}, m.Snapshot())

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
