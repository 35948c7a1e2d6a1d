package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/faculty-records-api/internal/dto"
	"github.com/noah-isme/faculty-records-api/internal/models"
	appErrors "github.com/noah-isme/faculty-records-api/pkg/errors"
)

const (
	summaryCachePrefix = "summary:"
	// summaryGenerationKey sits outside summaryCachePrefix so invalidation never resets it.
	summaryGenerationKey = "summary_generation"
	summaryFanOut        = 8
)

type recordCounter interface {
	Count(ctx context.Context, filter models.RecordFilter) (int, error)
}

// SummaryService computes per-type status counts for dashboards.
type SummaryService struct {
	records   recordCounter
	directory directoryReader
	cache     *CacheService
	metrics   *MetricsService
	logger    *zap.Logger
	cacheTTL  time.Duration
	now       func() time.Time
}

// NewSummaryService constructs the aggregation service. cache may be nil.
func NewSummaryService(records recordCounter, directory directoryReader, cache *CacheService, metrics *MetricsService, cacheTTL time.Duration, logger *zap.Logger) *SummaryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SummaryService{
		records:   records,
		directory: directory,
		cache:     cache,
		metrics:   metrics,
		logger:    logger,
		cacheTTL:  cacheTTL,
		now:       time.Now,
	}
}

// Summary returns counts for every record type visible to the requester. The bool reports a cache hit.
func (s *SummaryService) Summary(ctx context.Context, requester models.Requester, query dto.SummaryQuery) (*models.Summary, bool, error) {
	start := time.Now()
	year := strings.TrimSpace(query.AcademicYear)
	if year != "" {
		if err := ValidateAcademicYear(year); err != nil {
			return nil, false, err
		}
	}
	department, err := parseExplicitDepartment(requester, strings.TrimSpace(query.Department))
	if err != nil {
		return nil, false, err
	}
	scope, err := loadScope(ctx, s.directory, requester, department)
	if err != nil {
		return nil, false, err
	}

	// Entries are keyed by the invalidation generation read before counting, so a summary computed
	// across an invalidation is never served afterwards.
	generation, cacheable := s.cache.Version(ctx, summaryGenerationKey)
	key := summaryCacheKey(generation, scope, year)
	if cacheable {
		var cached models.Summary
		if hit, _ := s.cache.Get(ctx, key, &cached); hit {
			s.metrics.ObserveSummary(true, time.Since(start))
			return &cached, true, nil
		}
	}

	summary, err := s.compute(ctx, scope, year)
	if err != nil {
		s.metrics.SummaryFailed()
		return nil, false, err
	}
	if cacheable {
		if current, ok := s.cache.Version(ctx, summaryGenerationKey); ok && current == generation {
			_ = s.cache.Set(ctx, key, summary, s.cacheTTL)
		}
	}
	s.metrics.ObserveSummary(false, time.Since(start))
	return summary, false, nil
}

// InvalidateSummaries advances the summary generation and drops every cached summary.
func (s *SummaryService) InvalidateSummaries(ctx context.Context) {
	if s == nil {
		return
	}
	_ = s.cache.BumpVersion(ctx, summaryGenerationKey)
	_ = s.cache.Invalidate(ctx, summaryCachePrefix+"*")
}

type summaryAccumulator struct {
	mu       sync.Mutex
	types    map[models.RecordType]models.TypeSummary
	failures map[models.RecordType]error
}

func (a *summaryAccumulator) record(recordType models.RecordType, subtype string, status models.RecordStatus, n int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	entry := a.types[recordType]
	if subtype == "" {
		entry.StatusCounts.Set(status, n)
	} else {
		counts := entry.Subtypes[subtype]
		counts.Set(status, n)
		entry.Subtypes[subtype] = counts
	}
	a.types[recordType] = entry
}

func (a *summaryAccumulator) fail(recordType models.RecordType, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, seen := a.failures[recordType]; !seen {
		a.failures[recordType] = err
	}
}

// compute issues one count per type and status, plus one per subtype and status, and fails as a whole
// if any of them fails.
func (s *SummaryService) compute(ctx context.Context, scope Scope, year string) (*models.Summary, error) {
	specs := models.RecordTypes()
	acc := &summaryAccumulator{
		types:    make(map[models.RecordType]models.TypeSummary, len(specs)),
		failures: make(map[models.RecordType]error),
	}
	for _, spec := range specs {
		entry := models.TypeSummary{Label: spec.Label}
		if subtypes := spec.Subtypes(); len(subtypes) > 0 {
			entry.Subtypes = make(map[string]models.StatusCounts, len(subtypes))
			for _, sub := range subtypes {
				entry.Subtypes[sub] = models.StatusCounts{}
			}
		}
		acc.types[spec.Type] = entry
	}

	var g errgroup.Group
	g.SetLimit(summaryFanOut)
	for _, spec := range specs {
		spec := spec
		variants := append([]string{""}, spec.Subtypes()...)
		for _, subtype := range variants {
			subtype := subtype
			for _, status := range models.RecordStatuses {
				status := status
				g.Go(func() error {
					filter := scope.Apply(models.RecordFilter{
						Type:         spec.Type,
						Status:       &status,
						AcademicYear: year,
						EventType:    subtype,
					})
					start := time.Now()
					n, err := s.records.Count(ctx, filter)
					s.metrics.ObserveDBQuery("record_count", time.Since(start))
					if err != nil {
						acc.fail(spec.Type, err)
						return nil
					}
					acc.record(spec.Type, subtype, status, n)
					return nil
				})
			}
		}
	}
	_ = g.Wait()

	if len(acc.failures) > 0 {
		failed := make([]string, 0, len(acc.failures))
		for t := range acc.failures {
			failed = append(failed, string(t))
		}
		sort.Strings(failed)
		cause := acc.failures[models.RecordType(failed[0])]
		s.logger.Error("summary aborted", zap.Strings("failed_types", failed), zap.Error(cause))
		return nil, appErrors.Wrap(cause, appErrors.ErrSummaryIncomplete.Code, appErrors.ErrSummaryIncomplete.Status,
			fmt.Sprintf("summary incomplete, counts failed for: %s", strings.Join(failed, ", ")))
	}

	return &models.Summary{
		AcademicYear: year,
		Department:   scope.Department,
		Types:        acc.types,
		GeneratedAt:  s.now().UTC(),
	}, nil
}

func summaryCacheKey(generation int64, scope Scope, year string) string {
	if year == "" {
		year = "all"
	}
	return fmt.Sprintf("%s%d:%s:%s", summaryCachePrefix, generation, scope.Key(), year)
}
