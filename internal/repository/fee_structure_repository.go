package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/vikram-labs/schoolpay-api/internal/models"
)

// FeeStructureRepository manages fee structure rows and their activation state.
type FeeStructureRepository struct {
	db *sqlx.DB
}

// NewFeeStructureRepository constructs a FeeStructureRepository.
func NewFeeStructureRepository(db *sqlx.DB) *FeeStructureRepository {
	return &FeeStructureRepository{db: db}
}

const feeStructureColumns = `id, school_id, class_id, academic_year, total_fee, tuition_fee, admission_fee,
    development_fee, transport_fee, library_fee, lab_fee, sports_fee, other_fee,
    installments, due_dates, is_active, created_at, updated_at`

// Create inserts a structure. When the structure is active it first retires any
// currently active structure for the same class so at most one stays active.
func (r *FeeStructureRepository) Create(ctx context.Context, structure *models.FeeStructure) error {
	if structure.ID == "" {
		structure.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	structure.CreatedAt = now
	structure.UpdatedAt = now

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if structure.IsActive {
		if err := r.deactivateClassTx(ctx, tx, structure.SchoolID, structure.ClassID, ""); err != nil {
			return err
		}
	}

	const query = `INSERT INTO fee_structures (id, school_id, class_id, academic_year, total_fee, tuition_fee, admission_fee,
            development_fee, transport_fee, library_fee, lab_fee, sports_fee, other_fee,
            installments, due_dates, is_active, created_at, updated_at)
        VALUES (:id, :school_id, :class_id, :academic_year, :total_fee, :tuition_fee, :admission_fee,
            :development_fee, :transport_fee, :library_fee, :lab_fee, :sports_fee, :other_fee,
            :installments, :due_dates, :is_active, :created_at, :updated_at)`
	if _, err := tx.NamedExecContext(ctx, query, structure); err != nil {
		return fmt.Errorf("create fee structure: %w", err)
	}

	if structure.IsActive {
		if err := r.seedClassStatusesTx(ctx, tx, structure); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Update rewrites the mutable fields of a structure. Flipping is_active on
// retires the previously active structure for the class in the same transaction.
func (r *FeeStructureRepository) Update(ctx context.Context, structure *models.FeeStructure) error {
	structure.UpdatedAt = time.Now().UTC()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if structure.IsActive {
		if err := r.deactivateClassTx(ctx, tx, structure.SchoolID, structure.ClassID, structure.ID); err != nil {
			return err
		}
	}

	const query = `UPDATE fee_structures SET total_fee = :total_fee, tuition_fee = :tuition_fee,
            admission_fee = :admission_fee, development_fee = :development_fee, transport_fee = :transport_fee,
            library_fee = :library_fee, lab_fee = :lab_fee, sports_fee = :sports_fee, other_fee = :other_fee,
            installments = :installments, due_dates = :due_dates, is_active = :is_active, updated_at = :updated_at
        WHERE id = :id AND school_id = :school_id`
	result, err := tx.NamedExecContext(ctx, query, structure)
	if err != nil {
		return fmt.Errorf("update fee structure: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update fee structure: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}

	if structure.IsActive {
		if err := r.seedClassStatusesTx(ctx, tx, structure); err != nil {
			return err
		}
	}
	if err := r.cascadeTotalFeeTx(ctx, tx, structure); err != nil {
		return err
	}
	return tx.Commit()
}

// seedClassStatusesTx materializes a zero-balance status row for every active
// student in the structure's class. Students who already carry a row for the
// structure keep their balance untouched.
func (r *FeeStructureRepository) seedClassStatusesTx(ctx context.Context, tx *sqlx.Tx, structure *models.FeeStructure) error {
	now := time.Now().UTC()
	const seed = `INSERT INTO student_fee_statuses (id, school_id, student_id, fee_structure_id, total_fee,
            paid_amount, remaining_amount, payment_percentage, is_fully_paid, is_overdue, next_due_date,
            created_at, updated_at)
        SELECT gen_random_uuid(), s.school_id, s.id, $3, $4, 0, $4, 0, false, false, $5, $6, $6
        FROM students s
        WHERE s.school_id = $1 AND s.class_id = $2 AND s.active = true
        ON CONFLICT (student_id, fee_structure_id) DO NOTHING`
	if _, err := tx.ExecContext(ctx, seed, structure.SchoolID, structure.ClassID, structure.ID,
		structure.TotalFee, structure.FirstDueDate(), now); err != nil {
		return fmt.Errorf("seed class fee statuses: %w", err)
	}
	return nil
}

// cascadeTotalFeeTx pushes a changed total_fee into every status row of the
// structure and recomputes the derived fields in place, mirroring
// StudentFeeStatus.Recalculate.
func (r *FeeStructureRepository) cascadeTotalFeeTx(ctx context.Context, tx *sqlx.Tx, structure *models.FeeStructure) error {
	now := time.Now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	const cascade = `UPDATE student_fee_statuses SET
            total_fee = $2,
            remaining_amount = GREATEST($2 - paid_amount, 0),
            payment_percentage = CASE WHEN $2 <= 0 THEN 0 ELSE LEAST(paid_amount * 100 / $2, 100) END,
            is_fully_paid = GREATEST($2 - paid_amount, 0) = 0,
            is_overdue = GREATEST($2 - paid_amount, 0) > 0 AND next_due_date IS NOT NULL AND next_due_date < $3,
            next_due_date = CASE WHEN GREATEST($2 - paid_amount, 0) = 0 THEN NULL ELSE next_due_date END,
            updated_at = $4
        WHERE fee_structure_id = $1`
	if _, err := tx.ExecContext(ctx, cascade, structure.ID, structure.TotalFee, today, now); err != nil {
		return fmt.Errorf("cascade total fee: %w", err)
	}
	return nil
}

func (r *FeeStructureRepository) deactivateClassTx(ctx context.Context, tx *sqlx.Tx, schoolID, classID, excludeID string) error {
	query := "UPDATE fee_structures SET is_active = false, updated_at = $3 WHERE school_id = $1 AND class_id = $2 AND is_active = true"
	args := []interface{}{schoolID, classID, time.Now().UTC()}
	if excludeID != "" {
		query += " AND id <> $4"
		args = append(args, excludeID)
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("retire active structure: %w", err)
	}
	return nil
}

// FindByID fetches a structure by ID.
func (r *FeeStructureRepository) FindByID(ctx context.Context, id string) (*models.FeeStructure, error) {
	query := fmt.Sprintf("SELECT %s FROM fee_structures WHERE id = $1", feeStructureColumns)
	var structure models.FeeStructure
	if err := r.db.GetContext(ctx, &structure, query, id); err != nil {
		return nil, err
	}
	return &structure, nil
}

// FindActiveByClass returns the single active structure for a class, or
// sql.ErrNoRows when none is active.
func (r *FeeStructureRepository) FindActiveByClass(ctx context.Context, schoolID, classID string) (*models.FeeStructure, error) {
	query := fmt.Sprintf("SELECT %s FROM fee_structures WHERE school_id = $1 AND class_id = $2 AND is_active = true", feeStructureColumns)
	var structure models.FeeStructure
	if err := r.db.GetContext(ctx, &structure, query, schoolID, classID); err != nil {
		return nil, err
	}
	return &structure, nil
}

// List returns structures for a school, optionally scoped to one class or
// academic year.
func (r *FeeStructureRepository) List(ctx context.Context, schoolID, classID, academicYear string) ([]models.FeeStructure, error) {
	conditions := []string{"school_id = $1"}
	args := []interface{}{schoolID}
	if classID != "" {
		conditions = append(conditions, fmt.Sprintf("class_id = $%d", len(args)+1))
		args = append(args, classID)
	}
	if academicYear != "" {
		conditions = append(conditions, fmt.Sprintf("academic_year = $%d", len(args)+1))
		args = append(args, academicYear)
	}
	query := fmt.Sprintf("SELECT %s FROM fee_structures WHERE %s ORDER BY created_at DESC",
		feeStructureColumns, strings.Join(conditions, " AND "))

	var structures []models.FeeStructure
	if err := r.db.SelectContext(ctx, &structures, query, args...); err != nil {
		return nil, fmt.Errorf("list fee structures: %w", err)
	}
	return structures, nil
}

// HasPayments reports whether any payment references the structure. Structures
// with payments must be deactivated instead of deleted.
func (r *FeeStructureRepository) HasPayments(ctx context.Context, structureID string) (bool, error) {
	var exists int
	err := r.db.GetContext(ctx, &exists, "SELECT 1 FROM payments WHERE fee_structure_id = $1 LIMIT 1", structureID)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check structure payments: %w", err)
	}
	return true, nil
}

// Delete removes a structure and its derived status rows.
func (r *FeeStructureRepository) Delete(ctx context.Context, schoolID, id string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM student_fee_statuses WHERE fee_structure_id = $1", id); err != nil {
		return fmt.Errorf("delete fee statuses: %w", err)
	}
	result, err := tx.ExecContext(ctx, "DELETE FROM fee_structures WHERE id = $1 AND school_id = $2", id, schoolID)
	if err != nil {
		return fmt.Errorf("delete fee structure: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete fee structure: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return tx.Commit()
}
