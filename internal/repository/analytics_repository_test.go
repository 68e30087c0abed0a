package repository

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vikram-labs/schoolpay-api/internal/models"
)

func analyticsFilter() models.FeeAnalyticsFilter {
	return models.FeeAnalyticsFilter{
		SchoolID: "sch-1",
		DateFrom: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		DateTo:   time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC),
	}
}

func TestCollectionSummary(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAnalyticsRepository(db)

	rows := sqlmock.NewRows([]string{
		"total_collected", "current_collected", "total_outstanding", "total_expected",
		"total_transactions", "overdue_students",
	}).AddRow("125000", "42000", "58000", "183000", 37, 9)
	mock.ExpectQuery("SELECT").
		WithArgs("sch-1", analyticsFilter().DateFrom, analyticsFilter().DateTo).
		WillReturnRows(rows)

	summary, err := repo.CollectionSummary(context.Background(), analyticsFilter())
	require.NoError(t, err)
	assert.True(t, summary.TotalCollected.Equal(decimal.RequireFromString("125000")))
	assert.True(t, summary.TotalOutstanding.Equal(decimal.RequireFromString("58000")))
	assert.Equal(t, 37, summary.TotalTransactions)
	assert.Equal(t, 9, summary.OverdueStudents)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentModeBreakdown(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAnalyticsRepository(db)

	rows := sqlmock.NewRows([]string{"payment_mode", "amount", "count"}).
		AddRow("online", "80000", 20).
		AddRow("cash", "45000", 17)
	mock.ExpectQuery("SELECT payment_mode").
		WithArgs("sch-1", analyticsFilter().DateFrom, analyticsFilter().DateTo).
		WillReturnRows(rows)

	modes, err := repo.PaymentModeBreakdown(context.Background(), analyticsFilter())
	require.NoError(t, err)
	require.Len(t, modes, 2)
	assert.Equal(t, models.PaymentModeOnline, modes[0].Mode)
	assert.True(t, modes[0].Amount.Equal(decimal.RequireFromString("80000")))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMonthlyTrend(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAnalyticsRepository(db)

	rows := sqlmock.NewRows([]string{"year", "month", "amount"}).
		AddRow(2026, 1, "30000").
		AddRow(2026, 2, "52000").
		AddRow(2026, 3, "43000")
	mock.ExpectQuery("SELECT EXTRACT").
		WithArgs("sch-1", analyticsFilter().DateFrom, analyticsFilter().DateTo).
		WillReturnRows(rows)

	trend, err := repo.MonthlyTrend(context.Background(), analyticsFilter())
	require.NoError(t, err)
	require.Len(t, trend, 3)
	assert.Equal(t, 1, trend[0].Month)
	assert.True(t, trend[1].Amount.Equal(decimal.RequireFromString("52000")))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClassCollections(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAnalyticsRepository(db)

	rows := sqlmock.NewRows([]string{"class_name", "total_expected", "total_collected", "student_count"}).
		AddRow("Grade 5", "100000", "64000", 10).
		AddRow("Grade 6", "83000", "61000", 8)
	mock.ExpectQuery("SELECT c.name").
		WithArgs("sch-1").
		WillReturnRows(rows)

	classes, err := repo.ClassCollections(context.Background(), "sch-1")
	require.NoError(t, err)
	require.Len(t, classes, 2)
	assert.Equal(t, "Grade 5", classes[0].ClassName)
	assert.Equal(t, 10, classes[0].StudentCount)
	assert.NoError(t, mock.ExpectationsWereMet())
}
