package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// FeeAnalyticsFilter scopes fee analytics queries to a school and period.
type FeeAnalyticsFilter struct {
	SchoolID string
	DateFrom time.Time
	DateTo   time.Time
}

// FeeAnalytics aggregates the collection picture for a school.
type FeeAnalytics struct {
	TotalCollected    decimal.Decimal      `json:"total_collected"`
	TotalOutstanding  decimal.Decimal      `json:"total_outstanding"`
	TotalExpected     decimal.Decimal      `json:"total_expected"`
	CollectionRate    float64              `json:"collection_rate"`
	OverdueStudents   int                  `json:"overdue_students"`
	TotalTransactions int                  `json:"total_transactions"`
	AveragePayment    decimal.Decimal      `json:"average_payment"`
	PaymentModes      []PaymentModeSummary `json:"payment_modes"`
	MonthlyTrend      []MonthlyCollection  `json:"monthly_trend"`
	ClassWise         []ClassCollection    `json:"class_wise"`
}

// SystemMetrics is a lightweight snapshot of runtime counters for the ops
// endpoint.
type SystemMetrics struct {
	CacheHitRatio            float64   `json:"cache_hit_ratio"`
	CacheHits                uint64    `json:"cache_hits"`
	CacheMisses              uint64    `json:"cache_misses"`
	RequestsTotal            uint64    `json:"requests_total"`
	AverageRequestDurationMs float64   `json:"avg_request_duration_ms"`
	DBQueryCount             uint64    `json:"db_query_count"`
	AverageDBQueryDurationMs float64   `json:"avg_db_query_duration_ms"`
	PaymentsRecorded         uint64    `json:"payments_recorded"`
	RemindersSent            uint64    `json:"reminders_sent"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generated_at"`
}

// CollectionSummary carries the scalar aggregates for a period.
type CollectionSummary struct {
	TotalCollected    decimal.Decimal `db:"total_collected"`
	TotalOutstanding  decimal.Decimal `db:"total_outstanding"`
	TotalExpected     decimal.Decimal `db:"total_expected"`
	CurrentCollected  decimal.Decimal `db:"current_collected"`
	TotalTransactions int             `db:"total_transactions"`
	OverdueStudents   int             `db:"overdue_students"`
}

// PaymentModeSummary breaks collections down per channel.
type PaymentModeSummary struct {
	Mode       PaymentMode     `db:"payment_mode" json:"mode"`
	Amount     decimal.Decimal `db:"amount" json:"amount"`
	Count      int             `db:"count" json:"count"`
	Percentage float64         `db:"-" json:"percentage"`
}

// MonthlyCollection is one point of the collection trend.
type MonthlyCollection struct {
	Year   int             `db:"year" json:"year"`
	Month  int             `db:"month" json:"month"`
	Amount decimal.Decimal `db:"amount" json:"amount"`
}

// ClassCollection summarises expected vs collected per class.
type ClassCollection struct {
	ClassName      string          `db:"class_name" json:"class_name"`
	TotalExpected  decimal.Decimal `db:"total_expected" json:"total_expected"`
	TotalCollected decimal.Decimal `db:"total_collected" json:"total_collected"`
	StudentCount   int             `db:"student_count" json:"student_count"`
	CollectionRate float64         `db:"-" json:"collection_rate"`
}
