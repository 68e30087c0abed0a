package service

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vikram-labs/schoolpay-api/internal/models"
	appErrors "github.com/vikram-labs/schoolpay-api/pkg/errors"
)

type feeAnalyticsRepo interface {
	CollectionSummary(ctx context.Context, filter models.FeeAnalyticsFilter) (*models.CollectionSummary, error)
	PaymentModeBreakdown(ctx context.Context, filter models.FeeAnalyticsFilter) ([]models.PaymentModeSummary, error)
	MonthlyTrend(ctx context.Context, filter models.FeeAnalyticsFilter) ([]models.MonthlyCollection, error)
	ClassCollections(ctx context.Context, schoolID string) ([]models.ClassCollection, error)
}

// FeeAnalyticsService aggregates the collection picture for dashboards. Fresh
// aggregates are cached per school and period.
type FeeAnalyticsService struct {
	repo     feeAnalyticsRepo
	cache    *CacheService
	cacheTTL time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

// NewFeeAnalyticsService constructs a FeeAnalyticsService.
func NewFeeAnalyticsService(repo feeAnalyticsRepo, cache *CacheService, cacheTTL time.Duration, logger *zap.Logger) *FeeAnalyticsService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	return &FeeAnalyticsService{
		repo:     repo,
		cache:    cache,
		cacheTTL: cacheTTL,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Collect builds the analytics payload for the actor's school over the given
// period. A zero period defaults to the trailing twelve months. The boolean
// reports whether the payload came from cache.
func (s *FeeAnalyticsService) Collect(ctx context.Context, actor models.Actor, dateFrom, dateTo time.Time) (*models.FeeAnalytics, bool, error) {
	if dateTo.IsZero() {
		dateTo = s.now()
	}
	if dateFrom.IsZero() {
		dateFrom = dateTo.AddDate(-1, 0, 0)
	}
	if dateFrom.After(dateTo) {
		return nil, false, appErrors.Clone(appErrors.ErrValidation, "date_from must not be after date_to")
	}

	filter := models.FeeAnalyticsFilter{SchoolID: actor.SchoolID, DateFrom: dateFrom, DateTo: dateTo}
	cacheKey := fmt.Sprintf("analytics:fees:%s:%s:%s",
		actor.SchoolID, dateFrom.Format("20060102"), dateTo.Format("20060102"))

	var cached models.FeeAnalytics
	if hit, _ := s.cache.Get(ctx, cacheKey, &cached); hit {
		return &cached, true, nil
	}

	summary, err := s.repo.CollectionSummary(ctx, filter)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to aggregate collections")
	}
	modes, err := s.repo.PaymentModeBreakdown(ctx, filter)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to aggregate payment modes")
	}
	trend, err := s.repo.MonthlyTrend(ctx, filter)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to aggregate monthly trend")
	}
	classes, err := s.repo.ClassCollections(ctx, actor.SchoolID)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to aggregate class collections")
	}

	analytics := &models.FeeAnalytics{
		TotalCollected:    summary.TotalCollected,
		TotalOutstanding:  summary.TotalOutstanding,
		TotalExpected:     summary.TotalExpected,
		OverdueStudents:   summary.OverdueStudents,
		TotalTransactions: summary.TotalTransactions,
		PaymentModes:      withModePercentages(modes, summary.CurrentCollected),
		MonthlyTrend:      trend,
		ClassWise:         withClassRates(classes),
	}
	if summary.TotalExpected.IsPositive() {
		rate, _ := summary.TotalCollected.Div(summary.TotalExpected).Mul(decimal.NewFromInt(100)).Float64()
		if rate > 100 {
			rate = 100
		}
		analytics.CollectionRate = rate
	}
	if summary.TotalTransactions > 0 {
		analytics.AveragePayment = summary.CurrentCollected.
			Div(decimal.NewFromInt(int64(summary.TotalTransactions))).
			Round(2)
	}

	if err := s.cache.Set(ctx, cacheKey, analytics, s.cacheTTL); err != nil {
		s.logger.Warn("analytics cache write failed", zap.String("key", cacheKey), zap.Error(err))
	}
	return analytics, false, nil
}

// InvalidateSchool drops cached analytics for a school after ledger writes.
func (s *FeeAnalyticsService) InvalidateSchool(ctx context.Context, schoolID string) {
	if err := s.cache.Invalidate(ctx, fmt.Sprintf("analytics:fees:%s:*", schoolID)); err != nil {
		s.logger.Warn("analytics cache invalidation failed", zap.String("school_id", schoolID), zap.Error(err))
	}
}

func withModePercentages(modes []models.PaymentModeSummary, total decimal.Decimal) []models.PaymentModeSummary {
	if !total.IsPositive() {
		return modes
	}
	for i := range modes {
		pct, _ := modes[i].Amount.Div(total).Mul(decimal.NewFromInt(100)).Float64()
		modes[i].Percentage = pct
	}
	return modes
}

func withClassRates(classes []models.ClassCollection) []models.ClassCollection {
	for i := range classes {
		if classes[i].TotalExpected.IsPositive() {
			rate, _ := classes[i].TotalCollected.Div(classes[i].TotalExpected).Mul(decimal.NewFromInt(100)).Float64()
			classes[i].CollectionRate = rate
		}
	}
	return classes
}
