package service

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vikram-labs/schoolpay-api/internal/models"
	appErrors "github.com/vikram-labs/schoolpay-api/pkg/errors"
)

type mockFeeStructureRepo struct {
	structures  map[string]*models.FeeStructure
	withPayment map[string]bool
	createErr   error
	seq         int
}

func newMockFeeStructureRepo() *mockFeeStructureRepo {
	return &mockFeeStructureRepo{
		structures:  make(map[string]*models.FeeStructure),
		withPayment: make(map[string]bool),
	}
}

func (m *mockFeeStructureRepo) Create(ctx context.Context, structure *models.FeeStructure) error {
	if m.createErr != nil {
		return m.createErr
	}
	if structure.IsActive {
		for _, existing := range m.structures {
			if existing.SchoolID == structure.SchoolID && existing.ClassID == structure.ClassID {
				existing.IsActive = false
			}
		}
	}
	m.seq++
	structure.ID = fmt.Sprintf("structure-%d", m.seq)
	m.structures[structure.ID] = structure
	return nil
}

func (m *mockFeeStructureRepo) Update(ctx context.Context, structure *models.FeeStructure) error {
	if _, ok := m.structures[structure.ID]; !ok {
		return sql.ErrNoRows
	}
	m.structures[structure.ID] = structure
	return nil
}

func (m *mockFeeStructureRepo) FindByID(ctx context.Context, id string) (*models.FeeStructure, error) {
	if structure, ok := m.structures[id]; ok {
		return structure, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockFeeStructureRepo) FindActiveByClass(ctx context.Context, schoolID, classID string) (*models.FeeStructure, error) {
	for _, structure := range m.structures {
		if structure.SchoolID == schoolID && structure.ClassID == classID && structure.IsActive {
			return structure, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockFeeStructureRepo) List(ctx context.Context, schoolID, classID, academicYear string) ([]models.FeeStructure, error) {
	var result []models.FeeStructure
	for _, structure := range m.structures {
		if structure.SchoolID != schoolID {
			continue
		}
		if classID != "" && structure.ClassID != classID {
			continue
		}
		if academicYear != "" && structure.AcademicYear != academicYear {
			continue
		}
		result = append(result, *structure)
	}
	return result, nil
}

func (m *mockFeeStructureRepo) HasPayments(ctx context.Context, structureID string) (bool, error) {
	return m.withPayment[structureID], nil
}

func (m *mockFeeStructureRepo) Delete(ctx context.Context, schoolID, id string) error {
	if _, ok := m.structures[id]; !ok {
		return sql.ErrNoRows
	}
	delete(m.structures, id)
	return nil
}

type mockFeeStatusReader struct {
	statuses   map[string]*models.StudentFeeStatus
	defaulters []models.Defaulter
	refreshed  int64
}

func (m *mockFeeStatusReader) Find(ctx context.Context, studentID, structureID string) (*models.StudentFeeStatus, error) {
	if status, ok := m.statuses[studentID+structureID]; ok {
		return status, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockFeeStatusReader) ListBySchool(ctx context.Context, schoolID, classID string, overdueOnly bool) ([]models.StudentFeeStatus, error) {
	var result []models.StudentFeeStatus
	for _, status := range m.statuses {
		if status.SchoolID == schoolID {
			result = append(result, *status)
		}
	}
	return result, nil
}

func (m *mockFeeStatusReader) ListDefaulters(ctx context.Context, schoolID, classID string) ([]models.Defaulter, error) {
	return m.defaulters, nil
}

func (m *mockFeeStatusReader) RefreshOverdueFlags(ctx context.Context, schoolID string, today time.Time) (int64, error) {
	return m.refreshed, nil
}

func structureRequest() FeeStructureRequest {
	return FeeStructureRequest{
		ClassID:      "class-1",
		AcademicYear: "2025-26",
		TuitionFee:   decimal.RequireFromString("7000"),
		TransportFee: decimal.RequireFromString("2000"),
		LibraryFee:   decimal.RequireFromString("1000"),
		Installments: 2,
		DueDates:     []string{"2026-01-15", "2026-04-15"},
	}
}

func newFeeStructureServiceForTest() (*FeeStructureService, *mockFeeStructureRepo, *mockFeeStatusReader, *mockStudentFinder) {
	repo := newMockFeeStructureRepo()
	statuses := &mockFeeStatusReader{statuses: make(map[string]*models.StudentFeeStatus)}
	students := &mockStudentFinder{students: map[string]*models.Student{
		"student-1": {ID: "student-1", SchoolID: "school-1", ClassID: "class-1", FullName: "Asha Verma", Active: true},
	}}
	svc := NewFeeStructureService(repo, statuses, students, nil, zap.NewNop())
	return svc, repo, statuses, students
}

func TestFeeStructureServiceCreateSumsComponents(t *testing.T) {
	svc, _, _, _ := newFeeStructureServiceForTest()
	actor := models.Actor{SchoolID: "school-1"}

	structure, err := svc.Create(context.Background(), actor, structureRequest())
	require.NoError(t, err)
	assert.Equal(t, "10000", structure.TotalFee.String())
	assert.True(t, structure.IsActive)
	assert.Equal(t, 2, structure.Installments)
	assert.Len(t, structure.DueDates, 2)
}

func TestFeeStructureServiceCreateComponentMismatch(t *testing.T) {
	svc, _, _, _ := newFeeStructureServiceForTest()
	actor := models.Actor{SchoolID: "school-1"}
	req := structureRequest()
	req.TotalFee = decimal.RequireFromString("9000")

	_, err := svc.Create(context.Background(), actor, req)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestFeeStructureServiceCreateDueDateCountMismatch(t *testing.T) {
	svc, _, _, _ := newFeeStructureServiceForTest()
	actor := models.Actor{SchoolID: "school-1"}
	req := structureRequest()
	req.Installments = 3

	_, err := svc.Create(context.Background(), actor, req)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestFeeStructureServiceCreateRetiresPreviousActive(t *testing.T) {
	svc, repo, _, _ := newFeeStructureServiceForTest()
	actor := models.Actor{SchoolID: "school-1"}

	first, err := svc.Create(context.Background(), actor, structureRequest())
	require.NoError(t, err)

	req := structureRequest()
	req.AcademicYear = "2026-27"
	second, err := svc.Create(context.Background(), actor, req)
	require.NoError(t, err)

	assert.False(t, repo.structures[first.ID].IsActive)
	assert.True(t, repo.structures[second.ID].IsActive)
}

func TestFeeStructureServiceDeleteRejectsReferenced(t *testing.T) {
	svc, repo, _, _ := newFeeStructureServiceForTest()
	actor := models.Actor{SchoolID: "school-1"}

	structure, err := svc.Create(context.Background(), actor, structureRequest())
	require.NoError(t, err)
	repo.withPayment[structure.ID] = true

	err = svc.Delete(context.Background(), actor, structure.ID)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrStructureReferenced.Code, appErrors.FromError(err).Code)
	assert.Contains(t, repo.structures, structure.ID)
}

func TestFeeStructureServiceDeleteUnreferenced(t *testing.T) {
	svc, repo, _, _ := newFeeStructureServiceForTest()
	actor := models.Actor{SchoolID: "school-1"}

	structure, err := svc.Create(context.Background(), actor, structureRequest())
	require.NoError(t, err)

	require.NoError(t, svc.Delete(context.Background(), actor, structure.ID))
	assert.NotContains(t, repo.structures, structure.ID)
}

func TestFeeStructureServiceGetEnforcesTenancy(t *testing.T) {
	svc, _, _, _ := newFeeStructureServiceForTest()

	structure, err := svc.Create(context.Background(), models.Actor{SchoolID: "school-1"}, structureRequest())
	require.NoError(t, err)

	_, err = svc.Get(context.Background(), models.Actor{SchoolID: "school-2"}, structure.ID)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestFeeStructureServiceStudentStatusWithoutPayments(t *testing.T) {
	svc, _, _, _ := newFeeStructureServiceForTest()
	actor := models.Actor{SchoolID: "school-1"}

	structure, err := svc.Create(context.Background(), actor, structureRequest())
	require.NoError(t, err)

	status, err := svc.StudentStatus(context.Background(), actor, "student-1")
	require.NoError(t, err)
	assert.Equal(t, structure.ID, status.FeeStructureID)
	assert.True(t, status.PaidAmount.IsZero())
	assert.Equal(t, structure.TotalFee.String(), status.RemainingAmount.String())
	assert.False(t, status.IsFullyPaid)
	require.NotNil(t, status.NextDueDate)
	assert.Equal(t, "2026-01-15", status.NextDueDate.Format("2006-01-02"))
}

func TestFeeStructureServiceStudentStatusNoActiveStructure(t *testing.T) {
	svc, _, _, _ := newFeeStructureServiceForTest()
	actor := models.Actor{SchoolID: "school-1"}

	_, err := svc.StudentStatus(context.Background(), actor, "student-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestFeeStructureServiceDefaultersComputesDaysOverdue(t *testing.T) {
	svc, _, statuses, _ := newFeeStructureServiceForTest()
	due := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
	statuses.defaulters = []models.Defaulter{
		{StudentID: "student-1", StudentName: "Asha Verma", AmountDue: decimal.RequireFromString("6000"), NextDueDate: &due},
		{StudentID: "student-2", StudentName: "Ravi Kumar", AmountDue: decimal.RequireFromString("3000")},
	}
	svc.now = func() time.Time { return time.Date(2026, 1, 25, 12, 0, 0, 0, time.UTC) }
	actor := models.Actor{SchoolID: "school-1"}

	defaulters, err := svc.Defaulters(context.Background(), actor, "")
	require.NoError(t, err)
	require.Len(t, defaulters, 2)
	assert.Equal(t, 10, defaulters[0].DaysOverdue)
	assert.Zero(t, defaulters[1].DaysOverdue)
}

func TestFeeStructureServiceRefreshOverdue(t *testing.T) {
	svc, _, statuses, _ := newFeeStructureServiceForTest()
	statuses.refreshed = 4
	actor := models.Actor{SchoolID: "school-1"}

	updated, err := svc.RefreshOverdue(context.Background(), actor)
	require.NoError(t, err)
	assert.Equal(t, int64(4), updated)
}
