package handler

import (
	"bytes"
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vikram-labs/schoolpay-api/internal/middleware"
	"github.com/vikram-labs/schoolpay-api/internal/models"
	"github.com/vikram-labs/schoolpay-api/internal/service"
)

type studentRepoStub struct {
	students   []models.Student
	student    *models.Student
	lastFilter models.StudentFilter
	created    *models.Student
}

func (s *studentRepoStub) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error) {
	s.lastFilter = filter
	return s.students, len(s.students), nil
}

func (s *studentRepoStub) FindByID(ctx context.Context, id string) (*models.Student, error) {
	if s.student == nil {
		return nil, sql.ErrNoRows
	}
	return s.student, nil
}

func (s *studentRepoStub) ExistsByAdmissionNo(ctx context.Context, schoolID, admissionNo, excludeID string) (bool, error) {
	return false, nil
}

func (s *studentRepoStub) Create(ctx context.Context, student *models.Student) error {
	s.created = student
	return nil
}

func (s *studentRepoStub) Update(ctx context.Context, student *models.Student) error {
	s.student = student
	return nil
}

func (s *studentRepoStub) Deactivate(ctx context.Context, id string) error {
	return nil
}

func adminContext(c *gin.Context) {
	c.Set(middleware.ContextUserKey, &models.JWTClaims{
		UserID:   "admin-1",
		SchoolID: "school-1",
		Role:     models.RoleSchoolAdmin,
	})
}

func TestStudentHandlerListScopesToSchool(t *testing.T) {
	gin.SetMode(gin.TestMode)
	repo := &studentRepoStub{students: []models.Student{{ID: "st-1", SchoolID: "school-1"}}}
	handler := NewStudentHandler(service.NewStudentService(repo, nil, nil))

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/students?class_id=class-9a&page=2", nil)
	c.Request = req
	adminContext(c)

	handler.List(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "school-1", repo.lastFilter.SchoolID)
	assert.Equal(t, "class-9a", repo.lastFilter.ClassID)
	assert.Equal(t, 2, repo.lastFilter.Page)
}

func TestStudentHandlerListUnauthenticated(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewStudentHandler(service.NewStudentService(&studentRepoStub{}, nil, nil))

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/students", nil)
	c.Request = req

	handler.List(c)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestStudentHandlerGetOtherSchoolHidden(t *testing.T) {
	gin.SetMode(gin.TestMode)
	repo := &studentRepoStub{student: &models.Student{ID: "st-9", SchoolID: "school-2"}}
	handler := NewStudentHandler(service.NewStudentService(repo, nil, nil))

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/students/st-9", nil)
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "st-9"}}
	adminContext(c)

	handler.Get(c)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestStudentHandlerCreate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	repo := &studentRepoStub{}
	handler := NewStudentHandler(service.NewStudentService(repo, nil, nil))

	body := `{"class_id":"class-9a","admission_no":"ADM-001","full_name":"Asha Verma"}`
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/students", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	adminContext(c)

	handler.Create(c)
	require.Equal(t, http.StatusCreated, w.Code)
	require.NotNil(t, repo.created)
	assert.Equal(t, "school-1", repo.created.SchoolID)
	assert.Equal(t, "ADM-001", repo.created.AdmissionNo)
}

func TestStudentHandlerCreateInvalidBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewStudentHandler(service.NewStudentService(&studentRepoStub{}, nil, nil))

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/students", bytes.NewBufferString(`{"class_id":`))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	adminContext(c)

	handler.Create(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}
