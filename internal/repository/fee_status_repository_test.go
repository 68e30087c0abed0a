package repository

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindFeeStatus(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewFeeStatusRepository(db)

	mock.ExpectQuery("SELECT (.+) FROM student_fee_statuses WHERE student_id = (.+) AND fee_structure_id =").
		WithArgs("stu-1", "fs-1").
		WillReturnRows(statusRows("4000"))

	status, err := repo.Find(context.Background(), "stu-1", "fs-1")
	require.NoError(t, err)
	assert.True(t, status.PaidAmount.Equal(decimal.RequireFromString("4000")))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListDefaulters(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewFeeStatusRepository(db)

	due := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{
		"student_id", "student_name", "admission_no", "phone", "guardian_name", "guardian_email",
		"class_name", "remaining_amount", "next_due_date", "last_payment_date",
	}).
		AddRow("stu-1", "Asha Verma", "ADM001", "9876500001", "R Verma", "rverma@example.com", "Grade 5", "6000", due, nil).
		AddRow("stu-2", "Kiran Rao", "ADM002", "9876500002", "S Rao", "srao@example.com", "Grade 5", "2500", due, due)
	mock.ExpectQuery("SELECT (.+) FROM student_fee_statuses fs").
		WithArgs("sch-1").
		WillReturnRows(rows)

	defaulters, err := repo.ListDefaulters(context.Background(), "sch-1", "")
	require.NoError(t, err)
	require.Len(t, defaulters, 2)
	assert.Equal(t, "Asha Verma", defaulters[0].StudentName)
	assert.True(t, defaulters[0].AmountDue.Equal(decimal.RequireFromString("6000")))
	assert.Equal(t, "rverma@example.com", defaulters[0].GuardianEmail)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListDefaultersByClass(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewFeeStatusRepository(db)

	rows := sqlmock.NewRows([]string{
		"student_id", "student_name", "admission_no", "phone", "guardian_name", "guardian_email",
		"class_name", "remaining_amount", "next_due_date", "last_payment_date",
	})
	mock.ExpectQuery("SELECT (.+) FROM student_fee_statuses fs").
		WithArgs("sch-1", "cls-9").
		WillReturnRows(rows)

	defaulters, err := repo.ListDefaulters(context.Background(), "sch-1", "cls-9")
	require.NoError(t, err)
	assert.Empty(t, defaulters)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRefreshOverdueFlags(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewFeeStatusRepository(db)

	mock.ExpectExec("UPDATE student_fee_statuses").
		WillReturnResult(sqlmock.NewResult(0, 4))

	updated, err := repo.RefreshOverdueFlags(context.Background(), "sch-1", time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(4), updated)
	assert.NoError(t, mock.ExpectationsWereMet())
}
