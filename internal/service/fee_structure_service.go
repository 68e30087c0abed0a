package service

import (
	"context"
	"database/sql"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vikram-labs/schoolpay-api/internal/models"
	appErrors "github.com/vikram-labs/schoolpay-api/pkg/errors"
)

type feeStructureRepo interface {
	Create(ctx context.Context, structure *models.FeeStructure) error
	Update(ctx context.Context, structure *models.FeeStructure) error
	FindByID(ctx context.Context, id string) (*models.FeeStructure, error)
	FindActiveByClass(ctx context.Context, schoolID, classID string) (*models.FeeStructure, error)
	List(ctx context.Context, schoolID, classID, academicYear string) ([]models.FeeStructure, error)
	HasPayments(ctx context.Context, structureID string) (bool, error)
	Delete(ctx context.Context, schoolID, id string) error
}

type feeStatusReader interface {
	Find(ctx context.Context, studentID, structureID string) (*models.StudentFeeStatus, error)
	ListBySchool(ctx context.Context, schoolID, classID string, overdueOnly bool) ([]models.StudentFeeStatus, error)
	ListDefaulters(ctx context.Context, schoolID, classID string) ([]models.Defaulter, error)
	RefreshOverdueFlags(ctx context.Context, schoolID string, today time.Time) (int64, error)
}

type studentReader interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
}

// FeeStructureRequest carries the create/update payload for a fee structure.
type FeeStructureRequest struct {
	ClassID      string `json:"class_id" validate:"required"`
	AcademicYear string `json:"academic_year" validate:"required"`

	TotalFee       decimal.Decimal `json:"total_fee"`
	TuitionFee     decimal.Decimal `json:"tuition_fee"`
	AdmissionFee   decimal.Decimal `json:"admission_fee"`
	DevelopmentFee decimal.Decimal `json:"development_fee"`
	TransportFee   decimal.Decimal `json:"transport_fee"`
	LibraryFee     decimal.Decimal `json:"library_fee"`
	LabFee         decimal.Decimal `json:"lab_fee"`
	SportsFee      decimal.Decimal `json:"sports_fee"`
	OtherFee       decimal.Decimal `json:"other_fee"`

	Installments int      `json:"installments" validate:"omitempty,min=1,max=12"`
	DueDates     []string `json:"due_dates" validate:"omitempty,dive,datetime=2006-01-02"`
	IsActive     *bool    `json:"is_active"`
}

// FeeStructureService manages fee structure lifecycle and student balance
// lookups.
type FeeStructureService struct {
	structures feeStructureRepo
	statuses   feeStatusReader
	students   studentReader
	validator  *validator.Validate
	logger     *zap.Logger
	now        func() time.Time
}

// NewFeeStructureService constructs a FeeStructureService.
func NewFeeStructureService(structures feeStructureRepo, statuses feeStatusReader, students studentReader, validate *validator.Validate, logger *zap.Logger) *FeeStructureService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FeeStructureService{
		structures: structures,
		statuses:   statuses,
		students:   students,
		validator:  validate,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Create registers a fee structure for the actor's school. An active structure
// replaces any previously active one for the class.
func (s *FeeStructureService) Create(ctx context.Context, actor models.Actor, req FeeStructureRequest) (*models.FeeStructure, error) {
	structure, err := s.buildStructure(actor, req)
	if err != nil {
		return nil, err
	}
	if err := s.structures.Create(ctx, structure); err != nil {
		if isUniqueViolation(err) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "fee structure already exists for class and academic year")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create fee structure")
	}
	s.logger.Info("fee structure created",
		zap.String("structure_id", structure.ID),
		zap.String("school_id", structure.SchoolID),
		zap.String("class_id", structure.ClassID),
	)
	return structure, nil
}

// Update rewrites a structure owned by the actor's school.
func (s *FeeStructureService) Update(ctx context.Context, actor models.Actor, id string, req FeeStructureRequest) (*models.FeeStructure, error) {
	existing, err := s.getOwned(ctx, actor, id)
	if err != nil {
		return nil, err
	}

	structure, err := s.buildStructure(actor, req)
	if err != nil {
		return nil, err
	}
	structure.ID = existing.ID
	structure.CreatedAt = existing.CreatedAt

	if err := s.structures.Update(ctx, structure); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "fee structure not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update fee structure")
	}
	return structure, nil
}

// Delete removes a structure that has no payments. Structures already in use
// must be deactivated instead.
func (s *FeeStructureService) Delete(ctx context.Context, actor models.Actor, id string) error {
	if _, err := s.getOwned(ctx, actor, id); err != nil {
		return err
	}
	referenced, err := s.structures.HasPayments(ctx, id)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check structure usage")
	}
	if referenced {
		return appErrors.ErrStructureReferenced
	}
	if err := s.structures.Delete(ctx, actor.SchoolID, id); err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "fee structure not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete fee structure")
	}
	return nil
}

// Get fetches a structure owned by the actor's school.
func (s *FeeStructureService) Get(ctx context.Context, actor models.Actor, id string) (*models.FeeStructure, error) {
	return s.getOwned(ctx, actor, id)
}

// List returns the school's structures, optionally scoped by class or year.
func (s *FeeStructureService) List(ctx context.Context, actor models.Actor, classID, academicYear string) ([]models.FeeStructure, error) {
	structures, err := s.structures.List(ctx, actor.SchoolID, classID, academicYear)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list fee structures")
	}
	return structures, nil
}

// StudentStatus returns the student's balance against the active structure of
// their class. Students without payments yet get a zero-paid snapshot derived
// from the structure.
func (s *FeeStructureService) StudentStatus(ctx context.Context, actor models.Actor, studentID string) (*models.StudentFeeStatus, error) {
	student, err := s.students.FindByID(ctx, studentID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if student.SchoolID != actor.SchoolID {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
	}

	structure, err := s.structures.FindActiveByClass(ctx, actor.SchoolID, student.ClassID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "no active fee structure for class")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load fee structure")
	}

	status, err := s.statuses.Find(ctx, studentID, structure.ID)
	if err != nil {
		if err == sql.ErrNoRows {
			return s.zeroStatus(student, structure), nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load fee status")
	}
	return status, nil
}

// Defaulters returns overdue accounts for the school with days overdue filled
// in.
func (s *FeeStructureService) Defaulters(ctx context.Context, actor models.Actor, classID string) ([]models.Defaulter, error) {
	defaulters, err := s.statuses.ListDefaulters(ctx, actor.SchoolID, classID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list defaulters")
	}
	today := s.now()
	for i := range defaulters {
		defaulters[i].DaysOverdue = daysOverdue(defaulters[i].NextDueDate, today)
	}
	return defaulters, nil
}

// RefreshOverdue recomputes overdue flags for the school's unpaid balances.
func (s *FeeStructureService) RefreshOverdue(ctx context.Context, actor models.Actor) (int64, error) {
	updated, err := s.statuses.RefreshOverdueFlags(ctx, actor.SchoolID, s.now())
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to refresh overdue flags")
	}
	return updated, nil
}

func (s *FeeStructureService) getOwned(ctx context.Context, actor models.Actor, id string) (*models.FeeStructure, error) {
	structure, err := s.structures.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "fee structure not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load fee structure")
	}
	if structure.SchoolID != actor.SchoolID {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "fee structure not found")
	}
	return structure, nil
}

func (s *FeeStructureService) buildStructure(actor models.Actor, req FeeStructureRequest) (*models.FeeStructure, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid fee structure payload")
	}

	dueDates := make(models.DateList, 0, len(req.DueDates))
	for _, raw := range req.DueDates {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "due dates must use YYYY-MM-DD")
		}
		dueDates = append(dueDates, parsed)
	}

	installments := req.Installments
	if installments == 0 {
		installments = 1
	}
	if len(dueDates) > 0 && len(dueDates) != installments {
		return nil, appErrors.Clone(appErrors.ErrValidation, "due dates must match the number of installments")
	}

	structure := &models.FeeStructure{
		SchoolID:       actor.SchoolID,
		ClassID:        req.ClassID,
		AcademicYear:   req.AcademicYear,
		TotalFee:       req.TotalFee,
		TuitionFee:     req.TuitionFee,
		AdmissionFee:   req.AdmissionFee,
		DevelopmentFee: req.DevelopmentFee,
		TransportFee:   req.TransportFee,
		LibraryFee:     req.LibraryFee,
		LabFee:         req.LabFee,
		SportsFee:      req.SportsFee,
		OtherFee:       req.OtherFee,
		Installments:   installments,
		DueDates:       dueDates,
		IsActive:       true,
	}
	if req.IsActive != nil {
		structure.IsActive = *req.IsActive
	}

	components := structure.ComponentTotal()
	switch {
	case structure.TotalFee.IsZero():
		structure.TotalFee = components
	case components.IsPositive() && !structure.TotalFee.Equal(components):
		return nil, appErrors.Clone(appErrors.ErrValidation, "total fee must equal the sum of fee components")
	}
	if !structure.TotalFee.IsPositive() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "total fee must be positive")
	}
	if structure.TotalFee.Exponent() < -2 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "amounts cannot have more than two decimal places")
	}
	return structure, nil
}

func (s *FeeStructureService) zeroStatus(student *models.Student, structure *models.FeeStructure) *models.StudentFeeStatus {
	status := &models.StudentFeeStatus{
		SchoolID:       student.SchoolID,
		StudentID:      student.ID,
		FeeStructureID: structure.ID,
		TotalFee:       structure.TotalFee,
		PaidAmount:     decimal.Zero,
		NextDueDate:    structure.FirstDueDate(),
	}
	status.Recalculate(s.now())
	return status
}

func daysOverdue(due *time.Time, today time.Time) int {
	if due == nil {
		return 0
	}
	days := int(today.Sub(*due).Hours() / 24)
	if days < 0 {
		return 0
	}
	return days
}
