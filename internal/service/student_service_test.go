package service

import (
	"context"
	"database/sql"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vikram-labs/schoolpay-api/internal/models"
	appErrors "github.com/vikram-labs/schoolpay-api/pkg/errors"
)

type mockStudentRepo struct {
	students map[string]*models.Student
	seq      int
}

func newMockStudentRepo() *mockStudentRepo {
	return &mockStudentRepo{students: make(map[string]*models.Student)}
}

func (m *mockStudentRepo) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error) {
	var result []models.Student
	for _, student := range m.students {
		if student.SchoolID != filter.SchoolID {
			continue
		}
		if filter.ClassID != "" && student.ClassID != filter.ClassID {
			continue
		}
		if filter.Active != nil && student.Active != *filter.Active {
			continue
		}
		result = append(result, *student)
	}
	return result, len(result), nil
}

func (m *mockStudentRepo) FindByID(ctx context.Context, id string) (*models.Student, error) {
	if student, ok := m.students[id]; ok {
		return student, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockStudentRepo) ExistsByAdmissionNo(ctx context.Context, schoolID, admissionNo, excludeID string) (bool, error) {
	for _, student := range m.students {
		if student.SchoolID == schoolID && student.AdmissionNo == admissionNo && student.ID != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockStudentRepo) Create(ctx context.Context, student *models.Student) error {
	m.seq++
	student.ID = fmt.Sprintf("student-%d", m.seq)
	m.students[student.ID] = student
	return nil
}

func (m *mockStudentRepo) Update(ctx context.Context, student *models.Student) error {
	if _, ok := m.students[student.ID]; !ok {
		return sql.ErrNoRows
	}
	m.students[student.ID] = student
	return nil
}

func (m *mockStudentRepo) Deactivate(ctx context.Context, id string) error {
	if student, ok := m.students[id]; ok {
		student.Active = false
		return nil
	}
	return sql.ErrNoRows
}

func TestStudentServiceCreate(t *testing.T) {
	repo := newMockStudentRepo()
	svc := NewStudentService(repo, nil, zap.NewNop())
	actor := models.Actor{SchoolID: "school-1", UserID: "user-1"}

	student, err := svc.Create(context.Background(), actor, CreateStudentRequest{
		ClassID:       "class-1",
		AdmissionNo:   "ADM001",
		FullName:      "Asha Verma",
		GuardianName:  "Rohit Verma",
		GuardianEmail: "rohit@example.com",
	})
	require.NoError(t, err)
	assert.Equal(t, "school-1", student.SchoolID)
	assert.True(t, student.Active)
	assert.NotEmpty(t, student.ID)
}

func TestStudentServiceCreateDuplicateAdmissionNo(t *testing.T) {
	repo := newMockStudentRepo()
	svc := NewStudentService(repo, nil, zap.NewNop())
	actor := models.Actor{SchoolID: "school-1"}
	req := CreateStudentRequest{ClassID: "class-1", AdmissionNo: "ADM001", FullName: "Asha Verma"}

	_, err := svc.Create(context.Background(), actor, req)
	require.NoError(t, err)

	_, err = svc.Create(context.Background(), actor, req)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestStudentServiceUpdateGuardianContact(t *testing.T) {
	repo := newMockStudentRepo()
	svc := NewStudentService(repo, nil, zap.NewNop())
	actor := models.Actor{SchoolID: "school-1"}

	created, err := svc.Create(context.Background(), actor, CreateStudentRequest{
		ClassID: "class-1", AdmissionNo: "ADM001", FullName: "Asha Verma",
	})
	require.NoError(t, err)

	updated, err := svc.Update(context.Background(), actor, created.ID, UpdateStudentRequest{
		ClassID:       "class-2",
		AdmissionNo:   "ADM001",
		FullName:      "Asha Verma",
		GuardianEmail: "guardian@example.com",
		Active:        true,
	})
	require.NoError(t, err)
	assert.Equal(t, "class-2", updated.ClassID)
	assert.Equal(t, "guardian@example.com", updated.GuardianEmail)
}

func TestStudentServiceGetTenancy(t *testing.T) {
	repo := newMockStudentRepo()
	svc := NewStudentService(repo, nil, zap.NewNop())

	created, err := svc.Create(context.Background(), models.Actor{SchoolID: "school-1"}, CreateStudentRequest{
		ClassID: "class-1", AdmissionNo: "ADM001", FullName: "Asha Verma",
	})
	require.NoError(t, err)

	_, err = svc.Get(context.Background(), models.Actor{SchoolID: "school-2"}, created.ID)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestStudentServiceDeactivate(t *testing.T) {
	repo := newMockStudentRepo()
	svc := NewStudentService(repo, nil, zap.NewNop())
	actor := models.Actor{SchoolID: "school-1"}

	created, err := svc.Create(context.Background(), actor, CreateStudentRequest{
		ClassID: "class-1", AdmissionNo: "ADM001", FullName: "Asha Verma",
	})
	require.NoError(t, err)

	require.NoError(t, svc.Deactivate(context.Background(), actor, created.ID))
	assert.False(t, repo.students[created.ID].Active)
}
