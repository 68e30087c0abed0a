package service

import (
	"context"
	"database/sql"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/vikram-labs/schoolpay-api/internal/models"
	appErrors "github.com/vikram-labs/schoolpay-api/pkg/errors"
)

type studentRepository interface {
	List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error)
	FindByID(ctx context.Context, id string) (*models.Student, error)
	ExistsByAdmissionNo(ctx context.Context, schoolID, admissionNo, excludeID string) (bool, error)
	Create(ctx context.Context, student *models.Student) error
	Update(ctx context.Context, student *models.Student) error
	Deactivate(ctx context.Context, id string) error
}

// CreateStudentRequest holds the payload for registering a student.
type CreateStudentRequest struct {
	ClassID       string `json:"class_id" validate:"required"`
	AdmissionNo   string `json:"admission_no" validate:"required"`
	FullName      string `json:"full_name" validate:"required"`
	Phone         string `json:"phone"`
	GuardianName  string `json:"guardian_name"`
	GuardianEmail string `json:"guardian_email" validate:"omitempty,email"`
}

// UpdateStudentRequest holds the payload for updating a student.
type UpdateStudentRequest struct {
	ClassID       string `json:"class_id" validate:"required"`
	AdmissionNo   string `json:"admission_no" validate:"required"`
	FullName      string `json:"full_name" validate:"required"`
	Phone         string `json:"phone"`
	GuardianName  string `json:"guardian_name"`
	GuardianEmail string `json:"guardian_email" validate:"omitempty,email"`
	Active        bool   `json:"active"`
}

// StudentService manages the student registry that payments are recorded
// against.
type StudentService struct {
	repo      studentRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewStudentService constructs the student service.
func NewStudentService(repo studentRepository, validate *validator.Validate, logger *zap.Logger) *StudentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StudentService{repo: repo, validator: validate, logger: logger}
}

// List returns the school's students and pagination metadata.
func (s *StudentService) List(ctx context.Context, actor models.Actor, filter models.StudentFilter) ([]models.Student, *models.Pagination, error) {
	filter.SchoolID = actor.SchoolID
	students, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list students")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	pagination := &models.Pagination{Page: page, PageSize: size, TotalCount: total}
	return students, pagination, nil
}

// Get returns a student owned by the actor's school.
func (s *StudentService) Get(ctx context.Context, actor models.Actor, id string) (*models.Student, error) {
	student, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if student.SchoolID != actor.SchoolID {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
	}
	return student, nil
}

// Create registers a new student in the actor's school.
func (s *StudentService) Create(ctx context.Context, actor models.Actor, req CreateStudentRequest) (*models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
	}
	exists, err := s.repo.ExistsByAdmissionNo(ctx, actor.SchoolID, req.AdmissionNo, "")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate admission number")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "admission number already used")
	}
	student := &models.Student{
		SchoolID:      actor.SchoolID,
		ClassID:       req.ClassID,
		AdmissionNo:   req.AdmissionNo,
		FullName:      req.FullName,
		Phone:         req.Phone,
		GuardianName:  req.GuardianName,
		GuardianEmail: req.GuardianEmail,
		Active:        true,
	}
	if err := s.repo.Create(ctx, student); err != nil {
		if isUniqueViolation(err) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "admission number already used")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create student")
	}
	s.logger.Info("student registered",
		zap.String("student_id", student.ID),
		zap.String("school_id", student.SchoolID),
		zap.String("admission_no", student.AdmissionNo),
	)
	return student, nil
}

// Update modifies an existing student record.
func (s *StudentService) Update(ctx context.Context, actor models.Actor, id string, req UpdateStudentRequest) (*models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
	}
	existing, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	exists, err := s.repo.ExistsByAdmissionNo(ctx, actor.SchoolID, req.AdmissionNo, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate admission number")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "admission number already used")
	}

	student := *existing
	student.ClassID = req.ClassID
	student.AdmissionNo = req.AdmissionNo
	student.FullName = req.FullName
	student.Phone = req.Phone
	student.GuardianName = req.GuardianName
	student.GuardianEmail = req.GuardianEmail
	student.Active = req.Active
	if err := s.repo.Update(ctx, &student); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update student")
	}
	return &student, nil
}

// Deactivate marks the student inactive. Payment history is retained.
func (s *StudentService) Deactivate(ctx context.Context, actor models.Actor, id string) error {
	if _, err := s.Get(ctx, actor, id); err != nil {
		return err
	}
	if err := s.repo.Deactivate(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to deactivate student")
	}
	return nil
}
