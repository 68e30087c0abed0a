package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vikram-labs/schoolpay-api/internal/models"
	appErrors "github.com/vikram-labs/schoolpay-api/pkg/errors"
)

type stubCacheRepo struct {
	store    map[string][]byte
	patterns []string
}

func (s *stubCacheRepo) Get(_ context.Context, key string, dest interface{}) error {
	if s.store == nil {
		return appErrors.ErrCacheMiss
	}
	payload, ok := s.store[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(payload, dest)
}

func (s *stubCacheRepo) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	if s.store == nil {
		s.store = make(map[string][]byte)
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	s.store[key] = payload
	return nil
}

func (s *stubCacheRepo) DeleteByPattern(_ context.Context, pattern string) error {
	s.patterns = append(s.patterns, pattern)
	s.store = nil
	return nil
}

type mockFeeAnalyticsRepo struct {
	summary      *models.CollectionSummary
	modes        []models.PaymentModeSummary
	trend        []models.MonthlyCollection
	classes      []models.ClassCollection
	summaryCalls int
}

func (m *mockFeeAnalyticsRepo) CollectionSummary(ctx context.Context, filter models.FeeAnalyticsFilter) (*models.CollectionSummary, error) {
	m.summaryCalls++
	return m.summary, nil
}

func (m *mockFeeAnalyticsRepo) PaymentModeBreakdown(ctx context.Context, filter models.FeeAnalyticsFilter) ([]models.PaymentModeSummary, error) {
	return m.modes, nil
}

func (m *mockFeeAnalyticsRepo) MonthlyTrend(ctx context.Context, filter models.FeeAnalyticsFilter) ([]models.MonthlyCollection, error) {
	return m.trend, nil
}

func (m *mockFeeAnalyticsRepo) ClassCollections(ctx context.Context, schoolID string) ([]models.ClassCollection, error) {
	return m.classes, nil
}

func analyticsFixture() *mockFeeAnalyticsRepo {
	return &mockFeeAnalyticsRepo{
		summary: &models.CollectionSummary{
			TotalCollected:    decimal.RequireFromString("75000"),
			TotalOutstanding:  decimal.RequireFromString("25000"),
			TotalExpected:     decimal.RequireFromString("100000"),
			CurrentCollected:  decimal.RequireFromString("60000"),
			TotalTransactions: 30,
			OverdueStudents:   4,
		},
		modes: []models.PaymentModeSummary{
			{Mode: models.PaymentModeCash, Amount: decimal.RequireFromString("45000"), Count: 20},
			{Mode: models.PaymentModeOnline, Amount: decimal.RequireFromString("15000"), Count: 10},
		},
		trend: []models.MonthlyCollection{
			{Year: 2026, Month: 1, Amount: decimal.RequireFromString("30000")},
			{Year: 2026, Month: 2, Amount: decimal.RequireFromString("30000")},
		},
		classes: []models.ClassCollection{
			{ClassName: "Grade 5A", TotalExpected: decimal.RequireFromString("50000"), TotalCollected: decimal.RequireFromString("40000"), StudentCount: 25},
		},
	}
}

func TestFeeAnalyticsServiceCollect(t *testing.T) {
	repo := analyticsFixture()
	cacheSvc := NewCacheService(&stubCacheRepo{}, nil, time.Minute, zap.NewNop(), true)
	svc := NewFeeAnalyticsService(repo, cacheSvc, time.Minute, zap.NewNop())
	actor := models.Actor{SchoolID: "school-1"}

	analytics, cacheHit, err := svc.Collect(context.Background(), actor, time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.False(t, cacheHit)

	assert.Equal(t, "75000", analytics.TotalCollected.String())
	assert.InDelta(t, 75.0, analytics.CollectionRate, 0.001)
	assert.Equal(t, "2000", analytics.AveragePayment.String())
	assert.Equal(t, 4, analytics.OverdueStudents)

	require.Len(t, analytics.PaymentModes, 2)
	assert.InDelta(t, 75.0, analytics.PaymentModes[0].Percentage, 0.001)
	assert.InDelta(t, 25.0, analytics.PaymentModes[1].Percentage, 0.001)

	require.Len(t, analytics.ClassWise, 1)
	assert.InDelta(t, 80.0, analytics.ClassWise[0].CollectionRate, 0.001)
}

func TestFeeAnalyticsServiceCollectCacheHit(t *testing.T) {
	repo := analyticsFixture()
	cacheSvc := NewCacheService(&stubCacheRepo{}, nil, time.Minute, zap.NewNop(), true)
	svc := NewFeeAnalyticsService(repo, cacheSvc, time.Minute, zap.NewNop())
	actor := models.Actor{SchoolID: "school-1"}
	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	first, cacheHit, err := svc.Collect(context.Background(), actor, from, to)
	require.NoError(t, err)
	assert.False(t, cacheHit)
	assert.Equal(t, 1, repo.summaryCalls)

	second, cacheHit, err := svc.Collect(context.Background(), actor, from, to)
	require.NoError(t, err)
	assert.True(t, cacheHit)
	assert.Equal(t, 1, repo.summaryCalls)
	assert.Equal(t, first.TotalCollected.String(), second.TotalCollected.String())
}

func TestFeeAnalyticsServiceCollectInvalidPeriod(t *testing.T) {
	svc := NewFeeAnalyticsService(analyticsFixture(), NewCacheService(nil, nil, time.Minute, zap.NewNop(), false), time.Minute, zap.NewNop())
	actor := models.Actor{SchoolID: "school-1"}

	from := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	_, _, err := svc.Collect(context.Background(), actor, from, to)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestFeeAnalyticsServiceInvalidateSchool(t *testing.T) {
	cacheRepo := &stubCacheRepo{}
	cacheSvc := NewCacheService(cacheRepo, nil, time.Minute, zap.NewNop(), true)
	svc := NewFeeAnalyticsService(analyticsFixture(), cacheSvc, time.Minute, zap.NewNop())

	svc.InvalidateSchool(context.Background(), "school-1")
	require.Len(t, cacheRepo.patterns, 1)
	assert.Equal(t, "analytics:fees:school-1:*", cacheRepo.patterns[0])
}
