package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/vikram-labs/schoolpay-api/internal/models"
)

// FeeStatusRepository reads the materialized per-student fee balances.
// Mutations happen through PaymentRepository so the balance and its source
// payments never diverge.
type FeeStatusRepository struct {
	db *sqlx.DB
}

// NewFeeStatusRepository constructs a FeeStatusRepository.
func NewFeeStatusRepository(db *sqlx.DB) *FeeStatusRepository {
	return &FeeStatusRepository{db: db}
}

// Find returns the status row for a student and structure pair.
func (r *FeeStatusRepository) Find(ctx context.Context, studentID, structureID string) (*models.StudentFeeStatus, error) {
	query := fmt.Sprintf("SELECT %s FROM student_fee_statuses WHERE student_id = $1 AND fee_structure_id = $2", feeStatusColumns)
	var status models.StudentFeeStatus
	if err := r.db.GetContext(ctx, &status, query, studentID, structureID); err != nil {
		return nil, err
	}
	return &status, nil
}

// ListBySchool returns status rows for a school, optionally filtered by class
// or overdue flag.
func (r *FeeStatusRepository) ListBySchool(ctx context.Context, schoolID, classID string, overdueOnly bool) ([]models.StudentFeeStatus, error) {
	base := "FROM student_fee_statuses fs"
	conditions := []string{"fs.school_id = $1"}
	args := []interface{}{schoolID}

	if classID != "" {
		base += " JOIN students s ON s.id = fs.student_id"
		conditions = append(conditions, fmt.Sprintf("s.class_id = $%d", len(args)+1))
		args = append(args, classID)
	}
	if overdueOnly {
		conditions = append(conditions, "fs.is_overdue = true")
	}

	const cols = `fs.id, fs.school_id, fs.student_id, fs.fee_structure_id, fs.total_fee, fs.paid_amount,
        fs.remaining_amount, fs.payment_percentage, fs.is_fully_paid, fs.is_overdue, fs.next_due_date,
        fs.last_payment_date, fs.created_at, fs.updated_at`
	query := fmt.Sprintf("SELECT %s %s WHERE %s ORDER BY fs.updated_at DESC", cols, base, strings.Join(conditions, " AND "))

	var statuses []models.StudentFeeStatus
	if err := r.db.SelectContext(ctx, &statuses, query, args...); err != nil {
		return nil, fmt.Errorf("list fee statuses: %w", err)
	}
	return statuses, nil
}

// ListDefaulters returns overdue accounts joined with student and class
// display fields. It feeds the defaulters report, CSV export and the reminder
// job. DaysOverdue is derived from next_due_date by the caller.
func (r *FeeStatusRepository) ListDefaulters(ctx context.Context, schoolID, classID string) ([]models.Defaulter, error) {
	conditions := []string{"fs.school_id = $1", "fs.is_overdue = true", "s.active = true"}
	args := []interface{}{schoolID}
	if classID != "" {
		conditions = append(conditions, fmt.Sprintf("s.class_id = $%d", len(args)+1))
		args = append(args, classID)
	}

	query := fmt.Sprintf(`SELECT s.id AS student_id, s.full_name AS student_name, s.admission_no, s.phone,
            s.guardian_name, s.guardian_email, c.name AS class_name,
            fs.remaining_amount, fs.next_due_date, fs.last_payment_date
        FROM student_fee_statuses fs
        JOIN students s ON s.id = fs.student_id
        JOIN classes c ON c.id = s.class_id
        WHERE %s
        ORDER BY fs.remaining_amount DESC`, strings.Join(conditions, " AND "))

	var defaulters []models.Defaulter
	if err := r.db.SelectContext(ctx, &defaulters, query, args...); err != nil {
		return nil, fmt.Errorf("list defaulters: %w", err)
	}
	return defaulters, nil
}

// RefreshOverdueFlags recomputes is_overdue for unpaid balances whose next due
// date has passed. A nightly invocation keeps rows honest between payments.
func (r *FeeStatusRepository) RefreshOverdueFlags(ctx context.Context, schoolID string, today time.Time) (int64, error) {
	day := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.UTC)
	const query = `UPDATE student_fee_statuses
        SET is_overdue = (next_due_date IS NOT NULL AND next_due_date < $2), updated_at = $3
        WHERE school_id = $1 AND is_fully_paid = false
          AND is_overdue <> (next_due_date IS NOT NULL AND next_due_date < $2)`
	result, err := r.db.ExecContext(ctx, query, schoolID, day, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("refresh overdue flags: %w", err)
	}
	return result.RowsAffected()
}
