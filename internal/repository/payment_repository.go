package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/vikram-labs/schoolpay-api/internal/models"
)

// PaymentRepository persists payments, their audit history, receipt counters
// and the derived per-student fee status rows. All mutations run in a single
// transaction so a payment, its history entry and the status update commit or
// roll back together.
type PaymentRepository struct {
	db *sqlx.DB
}

// NewPaymentRepository constructs a PaymentRepository.
func NewPaymentRepository(db *sqlx.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

const paymentColumns = `id, school_id, student_id, fee_structure_id, receipt_no, amount, payment_date,
    payment_mode, status, transaction_id, cheque_no, bank_name, remarks, collected_by,
    refunded_amount, created_at, updated_at`

const feeStatusColumns = `id, school_id, student_id, fee_structure_id, total_fee, paid_amount,
    remaining_amount, payment_percentage, is_fully_paid, is_overdue, next_due_date,
    last_payment_date, created_at, updated_at`

// RecordPayment mints a receipt number, inserts the payment, applies it to the
// student's fee status and appends an audit entry, all atomically. The status
// row is created lazily on the student's first payment against the structure.
func (r *PaymentRepository) RecordPayment(ctx context.Context, payment *models.Payment, structure *models.FeeStructure, receiptPrefix string) (*models.StudentFeeStatus, error) {
	if payment.ID == "" {
		payment.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	payment.CreatedAt = now
	payment.UpdatedAt = now
	payment.Status = models.PaymentStatusCompleted
	payment.RefundedAmount = decimal.Zero

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	receiptNo, err := r.mintReceiptTx(ctx, tx, payment.SchoolID, receiptPrefix, payment.PaymentDate)
	if err != nil {
		return nil, err
	}
	payment.ReceiptNo = receiptNo

	const insertPayment = `INSERT INTO payments (id, school_id, student_id, fee_structure_id, receipt_no, amount,
            payment_date, payment_mode, status, transaction_id, cheque_no, bank_name, remarks, collected_by,
            refunded_amount, created_at, updated_at)
        VALUES (:id, :school_id, :student_id, :fee_structure_id, :receipt_no, :amount,
            :payment_date, :payment_mode, :status, :transaction_id, :cheque_no, :bank_name, :remarks, :collected_by,
            :refunded_amount, :created_at, :updated_at)`
	if _, err := tx.NamedExecContext(ctx, insertPayment, payment); err != nil {
		return nil, fmt.Errorf("insert payment: %w", err)
	}

	status, err := r.applyToStatusTx(ctx, tx, payment.SchoolID, payment.StudentID, payment.FeeStructureID, structure, payment.Amount, &payment.PaymentDate)
	if err != nil {
		return nil, err
	}

	oldStatus := string(models.PaymentStatusPending)
	newStatus := string(models.PaymentStatusCompleted)
	history := &models.PaymentHistoryEntry{
		ID:            uuid.NewString(),
		PaymentID:     payment.ID,
		Action:        "created",
		OldStatus:     &oldStatus,
		NewStatus:     &newStatus,
		AmountChanged: &payment.Amount,
		Remarks:       payment.Remarks,
		ChangedBy:     payment.CollectedBy,
		ChangedAt:     now,
	}
	if err := r.insertHistoryTx(ctx, tx, history); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit payment: %w", err)
	}
	return status, nil
}

// RefundPayment transitions a completed payment to refunded and reverses the
// refunded amount on the student's fee status. Only full or partial refunds of
// completed payments are accepted; the caller validates the amount.
func (r *PaymentRepository) RefundPayment(ctx context.Context, payment *models.Payment, amount decimal.Decimal, reason string, changedBy *string) (*models.StudentFeeStatus, error) {
	now := time.Now().UTC()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	const updatePayment = `UPDATE payments SET status = $2, refunded_amount = $3, updated_at = $4
        WHERE id = $1 AND status = $5`
	result, err := tx.ExecContext(ctx, updatePayment, payment.ID, models.PaymentStatusRefunded, amount, now, models.PaymentStatusCompleted)
	if err != nil {
		return nil, fmt.Errorf("refund payment: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("refund payment: %w", err)
	}
	if rows == 0 {
		return nil, sql.ErrNoRows
	}

	status, err := r.applyToStatusTx(ctx, tx, payment.SchoolID, payment.StudentID, payment.FeeStructureID, nil, amount.Neg(), nil)
	if err != nil {
		return nil, err
	}

	oldStatus := string(models.PaymentStatusCompleted)
	newStatus := string(models.PaymentStatusRefunded)
	delta := amount.Neg()
	remarks := reason
	history := &models.PaymentHistoryEntry{
		ID:            uuid.NewString(),
		PaymentID:     payment.ID,
		Action:        "refunded",
		OldStatus:     &oldStatus,
		NewStatus:     &newStatus,
		AmountChanged: &delta,
		Remarks:       &remarks,
		ChangedBy:     changedBy,
		ChangedAt:     now,
	}
	if err := r.insertHistoryTx(ctx, tx, history); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit refund: %w", err)
	}
	return status, nil
}

// mintReceiptTx increments the per-school daily counter and formats the
// receipt number. Running inside the payment transaction keeps numbers gapless
// for committed payments while the upsert keeps concurrent mints unique.
func (r *PaymentRepository) mintReceiptTx(ctx context.Context, tx *sqlx.Tx, schoolID, prefix string, paymentDate time.Time) (string, error) {
	day := paymentDate.UTC().Format("20060102")
	const query = `INSERT INTO receipt_counters (school_id, day, seq)
        VALUES ($1, $2, 1)
        ON CONFLICT (school_id, day) DO UPDATE SET seq = receipt_counters.seq + 1
        RETURNING seq`
	var seq int
	if err := tx.GetContext(ctx, &seq, query, schoolID, day); err != nil {
		return "", fmt.Errorf("mint receipt: %w", err)
	}
	return fmt.Sprintf("%s%s%04d", prefix, day, seq), nil
}

// applyToStatusTx locks the student's status row, applies the amount delta and
// rewrites the derived fields. When structure is non-nil a missing status row
// is seeded from it first.
func (r *PaymentRepository) applyToStatusTx(ctx context.Context, tx *sqlx.Tx, schoolID, studentID, structureID string, structure *models.FeeStructure, delta decimal.Decimal, paymentDate *time.Time) (*models.StudentFeeStatus, error) {
	now := time.Now().UTC()

	if structure != nil {
		const seed = `INSERT INTO student_fee_statuses (id, school_id, student_id, fee_structure_id, total_fee,
                paid_amount, remaining_amount, payment_percentage, is_fully_paid, is_overdue, next_due_date,
                created_at, updated_at)
            VALUES ($1, $2, $3, $4, $5, 0, $5, 0, false, false, $6, $7, $7)
            ON CONFLICT (student_id, fee_structure_id) DO NOTHING`
		if _, err := tx.ExecContext(ctx, seed, uuid.NewString(), schoolID, studentID, structureID,
			structure.TotalFee, structure.FirstDueDate(), now); err != nil {
			return nil, fmt.Errorf("seed fee status: %w", err)
		}
	}

	lock := fmt.Sprintf("SELECT %s FROM student_fee_statuses WHERE student_id = $1 AND fee_structure_id = $2 FOR UPDATE", feeStatusColumns)
	var status models.StudentFeeStatus
	if err := tx.GetContext(ctx, &status, lock, studentID, structureID); err != nil {
		return nil, fmt.Errorf("lock fee status: %w", err)
	}

	status.PaidAmount = status.PaidAmount.Add(delta)
	if status.PaidAmount.IsNegative() {
		status.PaidAmount = decimal.Zero
	}
	if paymentDate != nil {
		status.LastPaymentDate = paymentDate
	}
	status.Recalculate(now)
	status.UpdatedAt = now

	const update = `UPDATE student_fee_statuses SET paid_amount = $2, remaining_amount = $3,
            payment_percentage = $4, is_fully_paid = $5, is_overdue = $6, next_due_date = $7,
            last_payment_date = $8, updated_at = $9
        WHERE id = $1`
	if _, err := tx.ExecContext(ctx, update, status.ID, status.PaidAmount, status.RemainingAmount,
		status.PaymentPercentage, status.IsFullyPaid, status.IsOverdue, status.NextDueDate,
		status.LastPaymentDate, status.UpdatedAt); err != nil {
		return nil, fmt.Errorf("update fee status: %w", err)
	}
	return &status, nil
}

func (r *PaymentRepository) insertHistoryTx(ctx context.Context, tx *sqlx.Tx, entry *models.PaymentHistoryEntry) error {
	const query = `INSERT INTO payment_history (id, payment_id, action, old_status, new_status,
            amount_changed, remarks, changed_by, changed_at)
        VALUES (:id, :payment_id, :action, :old_status, :new_status, :amount_changed, :remarks, :changed_by, :changed_at)`
	if _, err := tx.NamedExecContext(ctx, query, entry); err != nil {
		return fmt.Errorf("insert payment history: %w", err)
	}
	return nil
}

// FindByID fetches a payment by ID.
func (r *PaymentRepository) FindByID(ctx context.Context, id string) (*models.Payment, error) {
	query := fmt.Sprintf("SELECT %s FROM payments WHERE id = $1", paymentColumns)
	var payment models.Payment
	if err := r.db.GetContext(ctx, &payment, query, id); err != nil {
		return nil, err
	}
	return &payment, nil
}

// FindByReceiptNo fetches a payment by its receipt number within a school.
func (r *PaymentRepository) FindByReceiptNo(ctx context.Context, schoolID, receiptNo string) (*models.Payment, error) {
	query := fmt.Sprintf("SELECT %s FROM payments WHERE school_id = $1 AND receipt_no = $2", paymentColumns)
	var payment models.Payment
	if err := r.db.GetContext(ctx, &payment, query, schoolID, receiptNo); err != nil {
		return nil, err
	}
	return &payment, nil
}

// FindByTransactionID looks up a payment by gateway transaction ID. It backs
// the idempotency pre-check for gateway callbacks; the unique index on
// (school_id, transaction_id) guards the race.
func (r *PaymentRepository) FindByTransactionID(ctx context.Context, schoolID, transactionID string) (*models.Payment, error) {
	query := fmt.Sprintf("SELECT %s FROM payments WHERE school_id = $1 AND transaction_id = $2", paymentColumns)
	var payment models.Payment
	if err := r.db.GetContext(ctx, &payment, query, schoolID, transactionID); err != nil {
		return nil, err
	}
	return &payment, nil
}

// List returns payments with joined student and class display fields.
func (r *PaymentRepository) List(ctx context.Context, filter models.PaymentFilter) ([]models.PaymentDetail, int, error) {
	base := `FROM payments p
        JOIN students s ON s.id = p.student_id
        JOIN classes c ON c.id = s.class_id`
	conditions := []string{"p.school_id = $1"}
	args := []interface{}{filter.SchoolID}

	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("p.student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.FeeStructureID != "" {
		conditions = append(conditions, fmt.Sprintf("p.fee_structure_id = $%d", len(args)+1))
		args = append(args, filter.FeeStructureID)
	}
	if filter.Mode != "" {
		conditions = append(conditions, fmt.Sprintf("p.payment_mode = $%d", len(args)+1))
		args = append(args, filter.Mode)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("p.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if filter.DateFrom != nil {
		conditions = append(conditions, fmt.Sprintf("p.payment_date >= $%d", len(args)+1))
		args = append(args, *filter.DateFrom)
	}
	if filter.DateTo != nil {
		conditions = append(conditions, fmt.Sprintf("p.payment_date <= $%d", len(args)+1))
		args = append(args, *filter.DateTo)
	}

	base = fmt.Sprintf("%s WHERE %s", base, strings.Join(conditions, " AND "))

	sortBy := filter.SortBy
	allowedSorts := map[string]string{
		"payment_date": "p.payment_date",
		"amount":       "p.amount",
		"receipt_no":   "p.receipt_no",
		"created_at":   "p.created_at",
	}
	if sortBy == "" {
		sortBy = "payment_date"
	}
	column, ok := allowedSorts[sortBy]
	if !ok {
		column = "p.payment_date"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT p.id, p.school_id, p.student_id, p.fee_structure_id, p.receipt_no, p.amount,
            p.payment_date, p.payment_mode, p.status, p.transaction_id, p.cheque_no, p.bank_name, p.remarks,
            p.collected_by, p.refunded_amount, p.created_at, p.updated_at,
            s.full_name AS student_name, s.admission_no, c.name AS class_name
        %s ORDER BY %s %s LIMIT %d OFFSET %d`, base, column, order, size, offset)

	var payments []models.PaymentDetail
	if err := r.db.SelectContext(ctx, &payments, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list payments: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count payments: %w", err)
	}
	return payments, total, nil
}

// ListByStudent returns all payments of one student against one structure.
func (r *PaymentRepository) ListByStudent(ctx context.Context, schoolID, studentID, structureID string) ([]models.Payment, error) {
	query := fmt.Sprintf("SELECT %s FROM payments WHERE school_id = $1 AND student_id = $2", paymentColumns)
	args := []interface{}{schoolID, studentID}
	if structureID != "" {
		query += " AND fee_structure_id = $3"
		args = append(args, structureID)
	}
	query += " ORDER BY payment_date DESC, created_at DESC"

	var payments []models.Payment
	if err := r.db.SelectContext(ctx, &payments, query, args...); err != nil {
		return nil, fmt.Errorf("list student payments: %w", err)
	}
	return payments, nil
}

// History returns the audit trail of one payment, oldest first.
func (r *PaymentRepository) History(ctx context.Context, paymentID string) ([]models.PaymentHistoryEntry, error) {
	const query = `SELECT id, payment_id, action, old_status, new_status, amount_changed, remarks, changed_by, changed_at
        FROM payment_history WHERE payment_id = $1 ORDER BY changed_at ASC`
	var entries []models.PaymentHistoryEntry
	if err := r.db.SelectContext(ctx, &entries, query, paymentID); err != nil {
		return nil, fmt.Errorf("payment history: %w", err)
	}
	return entries, nil
}
