package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vikram-labs/schoolpay-api/internal/gateway"
	"github.com/vikram-labs/schoolpay-api/internal/models"
	appErrors "github.com/vikram-labs/schoolpay-api/pkg/errors"
)

type paymentRecorder interface {
	Record(ctx context.Context, actor models.Actor, req RecordPaymentRequest) (*PaymentResult, error)
}

type transactionFinder interface {
	FindByTransactionID(ctx context.Context, schoolID, transactionID string) (*models.Payment, error)
}

type statusFinder interface {
	Find(ctx context.Context, studentID, structureID string) (*models.StudentFeeStatus, error)
}

// CreateOrderRequest initiates an online payment for a student.
type CreateOrderRequest struct {
	StudentID string          `json:"student_id" validate:"required"`
	Amount    decimal.Decimal `json:"amount"`
}

// GatewayCallbackRequest carries the provider's checkout callback. For
// Razorpay all three fields are set; Stripe only reports the intent ID in
// PaymentID.
type GatewayCallbackRequest struct {
	StudentID string `json:"student_id" validate:"required"`
	OrderID   string `json:"order_id"`
	PaymentID string `json:"payment_id" validate:"required"`
	Signature string `json:"signature"`
}

// GatewayService drives online checkout: order creation before payment and
// verified ledger recording after the provider callback. Nothing is written
// to the ledger until the provider confirms the payment.
type GatewayService struct {
	client     gateway.Client
	recorder   paymentRecorder
	payments   transactionFinder
	statuses   statusFinder
	students   studentReader
	structures activeStructureFinder
	metrics    *MetricsService
	validator  *validator.Validate
	logger     *zap.Logger
	currency   string
}

// NewGatewayService constructs a GatewayService.
func NewGatewayService(client gateway.Client, recorder paymentRecorder, payments transactionFinder, statuses statusFinder, students studentReader, structures activeStructureFinder, metrics *MetricsService, currency string, validate *validator.Validate, logger *zap.Logger) *GatewayService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if currency == "" {
		currency = "INR"
	}
	return &GatewayService{
		client:     client,
		recorder:   recorder,
		payments:   payments,
		statuses:   statuses,
		students:   students,
		structures: structures,
		metrics:    metrics,
		validator:  validate,
		logger:     logger,
		currency:   currency,
	}
}

// CreateOrder registers a provider order for the student's outstanding
// balance, or for an explicit amount when given.
func (s *GatewayService) CreateOrder(ctx context.Context, actor models.Actor, req CreateOrderRequest) (*gateway.Order, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid order payload")
	}

	student, structure, err := s.resolveStudent(ctx, actor, req.StudentID)
	if err != nil {
		return nil, err
	}

	amount := req.Amount
	if amount.IsZero() {
		amount = structure.TotalFee
		if status, err := s.statuses.Find(ctx, student.ID, structure.ID); err == nil {
			amount = status.RemainingAmount
		} else if err != sql.ErrNoRows {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load fee status")
		}
	}
	if !amount.IsPositive() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "nothing outstanding to pay")
	}

	order, err := s.client.CreateOrder(ctx, amount, s.currency, "", map[string]string{
		"student_id": student.ID,
		"school_id":  student.SchoolID,
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrGatewayUnavailable.Code, appErrors.ErrGatewayUnavailable.Status, "failed to create gateway order")
	}
	s.logger.Info("gateway order created",
		zap.String("provider", s.client.Name()),
		zap.String("order_id", order.ID),
		zap.String("student_id", student.ID),
	)
	return order, nil
}

// Callback verifies the provider's payment confirmation and, only on success,
// records the payment. Replays of an already recorded transaction return the
// original payment unchanged.
func (s *GatewayService) Callback(ctx context.Context, actor models.Actor, req GatewayCallbackRequest) (*PaymentResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid callback payload")
	}

	err := s.client.VerifyPayment(ctx, gateway.VerifyRequest{
		OrderID:   req.OrderID,
		PaymentID: req.PaymentID,
		Signature: req.Signature,
	})
	s.metrics.RecordGatewayVerification(s.client.Name(), err == nil)
	if err != nil {
		if errors.Is(err, gateway.ErrSignatureMismatch) || errors.Is(err, gateway.ErrPaymentIncomplete) {
			s.logger.Warn("gateway verification rejected",
				zap.String("provider", s.client.Name()),
				zap.String("payment_id", req.PaymentID),
				zap.Error(err),
			)
			return nil, appErrors.ErrVerificationFailed
		}
		return nil, appErrors.Wrap(err, appErrors.ErrGatewayUnavailable.Code, appErrors.ErrGatewayUnavailable.Status, "gateway verification unavailable")
	}

	if existing, err := s.payments.FindByTransactionID(ctx, actor.SchoolID, req.PaymentID); err == nil {
		status, serr := s.statuses.Find(ctx, existing.StudentID, existing.FeeStructureID)
		if serr != nil {
			return nil, appErrors.Wrap(serr, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load fee status")
		}
		return &PaymentResult{Payment: existing, Status: status}, nil
	} else if err != sql.ErrNoRows {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check transaction")
	}

	details, err := s.client.FetchPayment(ctx, req.PaymentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrGatewayUnavailable.Code, appErrors.ErrGatewayUnavailable.Status, "failed to fetch payment details")
	}

	remarks := fmt.Sprintf("Online payment via %s", s.client.Name())
	return s.recorder.Record(ctx, actor, RecordPaymentRequest{
		StudentID:     req.StudentID,
		Amount:        details.Amount,
		Mode:          string(models.PaymentModeOnline),
		TransactionID: req.PaymentID,
		Remarks:       remarks,
	})
}

func (s *GatewayService) resolveStudent(ctx context.Context, actor models.Actor, studentID string) (*models.Student, *models.FeeStructure, error) {
	student, err := s.students.FindByID(ctx, studentID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if student.SchoolID != actor.SchoolID {
		return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
	}
	structure, err := s.structures.FindActiveByClass(ctx, actor.SchoolID, student.ClassID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil, appErrors.ErrStructureInactive
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load fee structure")
	}
	return student, structure, nil
}
