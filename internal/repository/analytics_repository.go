package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/vikram-labs/schoolpay-api/internal/models"
)

// AnalyticsRepository runs the aggregate queries behind the fee analytics
// endpoints. All scalar amounts come back as decimals; rates and percentages
// are derived by the service.
type AnalyticsRepository struct {
	db *sqlx.DB
}

// NewAnalyticsRepository constructs an AnalyticsRepository.
func NewAnalyticsRepository(db *sqlx.DB) *AnalyticsRepository {
	return &AnalyticsRepository{db: db}
}

// CollectionSummary aggregates collected, outstanding and expected totals.
// Collected sums completed payments net of refunds within the period;
// outstanding and expected come from the status rows and ignore the period.
func (r *AnalyticsRepository) CollectionSummary(ctx context.Context, filter models.FeeAnalyticsFilter) (*models.CollectionSummary, error) {
	const query = `SELECT
            COALESCE((SELECT SUM(amount - refunded_amount) FROM payments
                WHERE school_id = $1 AND status IN ('completed', 'refunded')), 0) AS total_collected,
            COALESCE((SELECT SUM(amount - refunded_amount) FROM payments
                WHERE school_id = $1 AND status IN ('completed', 'refunded')
                  AND payment_date >= $2 AND payment_date <= $3), 0) AS current_collected,
            COALESCE((SELECT SUM(remaining_amount) FROM student_fee_statuses WHERE school_id = $1), 0) AS total_outstanding,
            COALESCE((SELECT SUM(total_fee) FROM student_fee_statuses WHERE school_id = $1), 0) AS total_expected,
            COALESCE((SELECT COUNT(*) FROM payments
                WHERE school_id = $1 AND status = 'completed'
                  AND payment_date >= $2 AND payment_date <= $3), 0) AS total_transactions,
            COALESCE((SELECT COUNT(*) FROM student_fee_statuses
                WHERE school_id = $1 AND is_overdue = true), 0) AS overdue_students`
	var summary models.CollectionSummary
	if err := r.db.GetContext(ctx, &summary, query, filter.SchoolID, filter.DateFrom, filter.DateTo); err != nil {
		return nil, fmt.Errorf("collection summary: %w", err)
	}
	return &summary, nil
}

// PaymentModeBreakdown sums completed payments per channel for the period.
func (r *AnalyticsRepository) PaymentModeBreakdown(ctx context.Context, filter models.FeeAnalyticsFilter) ([]models.PaymentModeSummary, error) {
	const query = `SELECT payment_mode, COALESCE(SUM(amount - refunded_amount), 0) AS amount, COUNT(*) AS count
        FROM payments
        WHERE school_id = $1 AND status IN ('completed', 'refunded')
          AND payment_date >= $2 AND payment_date <= $3
        GROUP BY payment_mode
        ORDER BY amount DESC`
	var modes []models.PaymentModeSummary
	if err := r.db.SelectContext(ctx, &modes, query, filter.SchoolID, filter.DateFrom, filter.DateTo); err != nil {
		return nil, fmt.Errorf("payment mode breakdown: %w", err)
	}
	return modes, nil
}

// MonthlyTrend returns per-month collection totals for the period, oldest
// month first.
func (r *AnalyticsRepository) MonthlyTrend(ctx context.Context, filter models.FeeAnalyticsFilter) ([]models.MonthlyCollection, error) {
	const query = `SELECT EXTRACT(YEAR FROM payment_date)::int AS year,
            EXTRACT(MONTH FROM payment_date)::int AS month,
            COALESCE(SUM(amount - refunded_amount), 0) AS amount
        FROM payments
        WHERE school_id = $1 AND status IN ('completed', 'refunded')
          AND payment_date >= $2 AND payment_date <= $3
        GROUP BY year, month
        ORDER BY year ASC, month ASC`
	var trend []models.MonthlyCollection
	if err := r.db.SelectContext(ctx, &trend, query, filter.SchoolID, filter.DateFrom, filter.DateTo); err != nil {
		return nil, fmt.Errorf("monthly trend: %w", err)
	}
	return trend, nil
}

// ClassCollections summarises expected vs collected amounts per class from the
// status rows.
func (r *AnalyticsRepository) ClassCollections(ctx context.Context, schoolID string) ([]models.ClassCollection, error) {
	const query = `SELECT c.name AS class_name,
            COALESCE(SUM(fs.total_fee), 0) AS total_expected,
            COALESCE(SUM(fs.paid_amount), 0) AS total_collected,
            COUNT(DISTINCT fs.student_id) AS student_count
        FROM student_fee_statuses fs
        JOIN students s ON s.id = fs.student_id
        JOIN classes c ON c.id = s.class_id
        WHERE fs.school_id = $1
        GROUP BY c.name
        ORDER BY c.name ASC`
	var classes []models.ClassCollection
	if err := r.db.SelectContext(ctx, &classes, query, schoolID); err != nil {
		return nil, fmt.Errorf("class collections: %w", err)
	}
	return classes, nil
}
