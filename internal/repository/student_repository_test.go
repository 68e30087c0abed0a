package repository

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vikram-labs/schoolpay-api/internal/models"
)

func studentRows(ids ...string) *sqlmock.Rows {
	now := time.Now()
	rows := sqlmock.NewRows([]string{
		"id", "school_id", "class_id", "admission_no", "full_name", "phone",
		"guardian_name", "guardian_email", "active", "created_at", "updated_at",
	})
	for _, id := range ids {
		rows.AddRow(id, "sch-1", "cls-1", "ADM00"+id, "Student "+id, "98765", "Guardian", "g@example.com", true, now, now)
	}
	return rows
}

func TestListStudentsFiltered(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	mock.ExpectQuery("SELECT (.+) FROM students WHERE").
		WithArgs("sch-1", "cls-1").
		WillReturnRows(studentRows("1", "2"))
	mock.ExpectQuery("SELECT COUNT").
		WithArgs("sch-1", "cls-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))

	students, total, err := repo.List(context.Background(), models.StudentFilter{SchoolID: "sch-1", ClassID: "cls-1"})
	require.NoError(t, err)
	assert.Len(t, students, 2)
	assert.Equal(t, 2, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListActiveByClass(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	mock.ExpectQuery("SELECT (.+) FROM students WHERE school_id = (.+) AND active = TRUE").
		WithArgs("sch-1", "cls-1").
		WillReturnRows(studentRows("1", "2", "3"))

	students, err := repo.ListActiveByClass(context.Background(), "sch-1", "cls-1")
	require.NoError(t, err)
	assert.Len(t, students, 3)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExistsByAdmissionNo(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	mock.ExpectQuery("SELECT 1 FROM students").
		WithArgs("sch-1", "ADM001").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))

	exists, err := repo.ExistsByAdmissionNo(context.Background(), "sch-1", "ADM001", "")
	require.NoError(t, err)
	assert.True(t, exists)
	assert.NoError(t, mock.ExpectationsWereMet())
}
