package service

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jmoiron/sqlx/types"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/faculty-records-api/internal/dto"
	"github.com/noah-isme/faculty-records-api/internal/models"
	appErrors "github.com/noah-isme/faculty-records-api/pkg/errors"
)

type memoryCache struct {
	mu      sync.Mutex
	entries map[string][]byte
	deletes []string
}

func newMemoryCache() *memoryCache { return &memoryCache{entries: map[string][]byte{}} }

func (c *memoryCache) Get(_ context.Context, key string, dest interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	data, ok := c.entries[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(data, dest)
}

func (c *memoryCache) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = data
	return nil
}

func (c *memoryCache) DeleteByPattern(_ context.Context, pattern string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deletes = append(c.deletes, pattern)
	prefix := strings.TrimSuffix(pattern, "*")
	for key := range c.entries {
		if strings.HasPrefix(key, prefix) {
			delete(c.entries, key)
		}
	}
	return nil
}

func (c *memoryCache) Incr(_ context.Context, key string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var value int64
	if data, ok := c.entries[key]; ok {
		if err := json.Unmarshal(data, &value); err != nil {
			return 0, err
		}
	}
	value++
	c.entries[key] = []byte(strconv.FormatInt(value, 10))
	return value, nil
}

func seedRecord(store *memoryRecordStore, id, employee string, recordType models.RecordType, status models.RecordStatus, year string, details string) {
	reason := ""
	if status == models.StatusRejected {
		reason = "missing proof"
	}
	if details == "" {
		details = "{}"
	}
	store.records[id] = models.Record{
		ID:              id,
		Type:            recordType,
		EmployeeID:      employee,
		Title:           id,
		Details:         types.JSONText(details),
		Status:          status,
		RejectionReason: reason,
		AcademicYear:    year,
		CreatedAt:       time.Now(),
	}
}

func seededSummaryStore() *memoryRecordStore {
	store := newMemoryRecordStore()
	seedRecord(store, "p1", "E123", models.RecordPatent, models.StatusPending, "2025-26", "")
	seedRecord(store, "p2", "E123", models.RecordPatent, models.StatusAccepted, "2025-26", "")
	seedRecord(store, "p3", "E124", models.RecordPatent, models.StatusRejected, "2024-25", "")
	seedRecord(store, "p4", "E200", models.RecordPatent, models.StatusAccepted, "2025-26", "")
	seedRecord(store, "e1", "E123", models.RecordEvent, models.StatusAccepted, "2025-26", `{"eventType":"Seminar"}`)
	seedRecord(store, "e2", "E124", models.RecordEvent, models.StatusPending, "2025-26", `{"eventType":"Workshop"}`)
	seedRecord(store, "e3", "E200", models.RecordEvent, models.StatusPending, "2025-26", `{"eventType":"Seminar"}`)
	return store
}

func newSummaryFixture(store *memoryRecordStore, cache *memoryCache) *SummaryService {
	var cacheSvc *CacheService
	if cache != nil {
		cacheSvc = NewCacheService(cache, nil, time.Minute, nil, true)
	}
	return NewSummaryService(store, newStubDirectory(testDirectory), cacheSvc, NewMetricsService(), time.Minute, nil)
}

func requireTotalsConsistent(t *testing.T, summary *models.Summary) {
	t.Helper()
	for recordType, entry := range summary.Types {
		require.Equal(t, entry.Accepted+entry.Pending+entry.Rejected, entry.Total, recordType)
		for sub, counts := range entry.Subtypes {
			require.Equal(t, counts.Accepted+counts.Pending+counts.Rejected, counts.Total, sub)
		}
	}
}

func TestSummaryCountsPerScope(t *testing.T) {
	svc := newSummaryFixture(seededSummaryStore(), nil)
	ctx := context.Background()

	all, hit, err := svc.Summary(ctx, adminAnyDept, dto.SummaryQuery{})
	require.NoError(t, err)
	require.False(t, hit)
	require.Len(t, all.Types, len(models.RecordTypes()))
	require.Equal(t, models.StatusCounts{Total: 4, Accepted: 2, Pending: 1, Rejected: 1}, all.Types[models.RecordPatent].StatusCounts)
	require.Equal(t, 0, all.Types[models.RecordJournal].Total)
	requireTotalsConsistent(t, all)

	cse, _, err := svc.Summary(ctx, inchargeCSE, dto.SummaryQuery{AcademicYear: "2025-26", Department: "ECE"})
	require.NoError(t, err)
	require.Equal(t, models.DeptCSE, cse.Department)
	require.Equal(t, models.StatusCounts{Total: 2, Accepted: 1, Pending: 1}, cse.Types[models.RecordPatent].StatusCounts)
	events := cse.Types[models.RecordEvent]
	require.Equal(t, 2, events.Total)
	require.Equal(t, models.StatusCounts{Total: 1, Accepted: 1}, events.Subtypes["Seminar"])
	require.Equal(t, models.StatusCounts{Total: 1, Pending: 1}, events.Subtypes["Workshop"])
	require.Equal(t, models.StatusCounts{}, events.Subtypes["FDP"])
	requireTotalsConsistent(t, cse)

	mine, _, err := svc.Summary(ctx, facultyE124, dto.SummaryQuery{})
	require.NoError(t, err)
	require.Equal(t, models.StatusCounts{Total: 1, Rejected: 1}, mine.Types[models.RecordPatent].StatusCounts)
}

func TestSummaryValidatesAcademicYearFirst(t *testing.T) {
	store := seededSummaryStore()
	svc := newSummaryFixture(store, nil)
	_, _, err := svc.Summary(context.Background(), adminAnyDept, dto.SummaryQuery{AcademicYear: "2025-27"})
	requireCode(t, err, appErrors.ErrValidation)
	require.Empty(t, store.lastCount)
}

func TestSummaryFailsWholeWhenAnyCountFails(t *testing.T) {
	store := seededSummaryStore()
	store.countErr[models.RecordPatent] = errors.New("timeout")
	store.countErr[models.RecordAward] = errors.New("timeout")
	cache := newMemoryCache()
	svc := newSummaryFixture(store, cache)

	summary, _, err := svc.Summary(context.Background(), adminAnyDept, dto.SummaryQuery{})
	require.Nil(t, summary)
	requireCode(t, err, appErrors.ErrSummaryIncomplete)
	require.Contains(t, err.Error(), "award, patent")
	require.Empty(t, cache.entries)
}

func TestSummaryCacheHitAndInvalidation(t *testing.T) {
	store := seededSummaryStore()
	cache := newMemoryCache()
	svc := newSummaryFixture(store, cache)
	ctx := context.Background()

	_, hit, err := svc.Summary(ctx, inchargeCSE, dto.SummaryQuery{AcademicYear: "2025-26"})
	require.NoError(t, err)
	require.False(t, hit)
	require.Contains(t, cache.entries, "summary:0:department:CSE:2025-26")

	calls := len(store.lastCount)
	second, hit, err := svc.Summary(ctx, inchargeCSE, dto.SummaryQuery{AcademicYear: "2025-26"})
	require.NoError(t, err)
	require.True(t, hit)
	require.Equal(t, calls, len(store.lastCount))
	require.Equal(t, 2, second.Types[models.RecordPatent].Total)

	svc.InvalidateSummaries(ctx)
	require.Equal(t, []string{"summary:*"}, cache.deletes)
	_, hit, err = svc.Summary(ctx, inchargeCSE, dto.SummaryQuery{AcademicYear: "2025-26"})
	require.NoError(t, err)
	require.False(t, hit)
	require.Contains(t, cache.entries, "summary:1:department:CSE:2025-26")
}

// reviewingCounter accepts a pending patent right after the first pending patent count, the way a
// concurrent review would land in the middle of a summary fan-out.
type reviewingCounter struct {
	*memoryRecordStore
	once   sync.Once
	review func()
}

func (c *reviewingCounter) Count(ctx context.Context, filter models.RecordFilter) (int, error) {
	n, err := c.memoryRecordStore.Count(ctx, filter)
	if filter.Type == models.RecordPatent && filter.EventType == "" && filter.Status != nil && *filter.Status == models.StatusPending {
		c.once.Do(c.review)
	}
	return n, err
}

func TestSummaryNotCachedAcrossConcurrentReview(t *testing.T) {
	store := seededSummaryStore()
	cache := newMemoryCache()
	counter := &reviewingCounter{memoryRecordStore: store}
	svc := NewSummaryService(counter, newStubDirectory(testDirectory), NewCacheService(cache, nil, time.Minute, nil, true), NewMetricsService(), time.Minute, nil)
	ctx := context.Background()
	counter.review = func() {
		_ = store.UpdateStatus(ctx, models.StatusUpdate{
			ID:         "p1",
			Type:       models.RecordPatent,
			Status:     models.StatusAccepted,
			ReviewedBy: "E900",
			ReviewedAt: time.Now(),
		})
		svc.InvalidateSummaries(ctx)
	}

	_, hit, err := svc.Summary(ctx, inchargeCSE, dto.SummaryQuery{AcademicYear: "2025-26"})
	require.NoError(t, err)
	require.False(t, hit)
	require.Equal(t, models.StatusAccepted, store.records["p1"].Status)

	fresh, hit, err := svc.Summary(ctx, inchargeCSE, dto.SummaryQuery{AcademicYear: "2025-26"})
	require.NoError(t, err)
	require.False(t, hit)
	require.Equal(t, models.StatusCounts{Total: 2, Accepted: 2}, fresh.Types[models.RecordPatent].StatusCounts)

	cached, hit, err := svc.Summary(ctx, inchargeCSE, dto.SummaryQuery{AcademicYear: "2025-26"})
	require.NoError(t, err)
	require.True(t, hit)
	require.Equal(t, 0, cached.Types[models.RecordPatent].Pending)
}

func TestSummaryCacheKey(t *testing.T) {
	require.Equal(t, "summary:0:all:all", summaryCacheKey(0, Scope{Unrestricted: true}, ""))
	require.Equal(t, "summary:3:employee:E1:2024-25", summaryCacheKey(3, Scope{EmployeeIDs: []string{"E1"}}, "2024-25"))
}
