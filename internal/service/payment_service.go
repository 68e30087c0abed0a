package service

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vikram-labs/schoolpay-api/internal/gateway"
	"github.com/vikram-labs/schoolpay-api/internal/models"
	appErrors "github.com/vikram-labs/schoolpay-api/pkg/errors"
)

type paymentRepo interface {
	RecordPayment(ctx context.Context, payment *models.Payment, structure *models.FeeStructure, receiptPrefix string) (*models.StudentFeeStatus, error)
	RefundPayment(ctx context.Context, payment *models.Payment, amount decimal.Decimal, reason string, changedBy *string) (*models.StudentFeeStatus, error)
	FindByID(ctx context.Context, id string) (*models.Payment, error)
	FindByReceiptNo(ctx context.Context, schoolID, receiptNo string) (*models.Payment, error)
	FindByTransactionID(ctx context.Context, schoolID, transactionID string) (*models.Payment, error)
	List(ctx context.Context, filter models.PaymentFilter) ([]models.PaymentDetail, int, error)
	ListByStudent(ctx context.Context, schoolID, studentID, structureID string) ([]models.Payment, error)
	History(ctx context.Context, paymentID string) ([]models.PaymentHistoryEntry, error)
}

type activeStructureFinder interface {
	FindActiveByClass(ctx context.Context, schoolID, classID string) (*models.FeeStructure, error)
}

type paymentNotifier interface {
	QueuePaymentConfirmation(ctx context.Context, student *models.Student, payment *models.Payment, status *models.StudentFeeStatus)
}

// RecordPaymentRequest is the payload for recording a manual payment.
type RecordPaymentRequest struct {
	StudentID     string          `json:"student_id" validate:"required"`
	Amount        decimal.Decimal `json:"amount" validate:"required"`
	PaymentDate   string          `json:"payment_date" validate:"omitempty,datetime=2006-01-02"`
	Mode          string          `json:"payment_mode" validate:"required"`
	TransactionID string          `json:"transaction_id"`
	ChequeNo      string          `json:"cheque_no"`
	BankName      string          `json:"bank_name"`
	Remarks       string          `json:"remarks"`
}

// RefundPaymentRequest is the payload for refunding a completed payment.
type RefundPaymentRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Reason string          `json:"reason"`
}

// PaymentResult bundles a recorded payment with the resulting balance.
type PaymentResult struct {
	Payment *models.Payment          `json:"payment"`
	Status  *models.StudentFeeStatus `json:"fee_status"`
}

// PaymentService orchestrates payment recording, refunds and lookups.
type PaymentService struct {
	payments      paymentRepo
	structures    activeStructureFinder
	students      studentReader
	notifier      paymentNotifier
	gateway       gateway.Client
	metrics       *MetricsService
	validator     *validator.Validate
	logger        *zap.Logger
	receiptPrefix string
	now           func() time.Time
}

// NewPaymentService constructs a PaymentService. The gateway client is only
// used to push refunds of online payments back to the provider and may be nil.
func NewPaymentService(payments paymentRepo, structures activeStructureFinder, students studentReader, notifier paymentNotifier, gw gateway.Client, metrics *MetricsService, receiptPrefix string, validate *validator.Validate, logger *zap.Logger) *PaymentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if receiptPrefix == "" {
		receiptPrefix = "RCP"
	}
	return &PaymentService{
		payments:      payments,
		structures:    structures,
		students:      students,
		notifier:      notifier,
		gateway:       gw,
		metrics:       metrics,
		validator:     validate,
		logger:        logger,
		receiptPrefix: receiptPrefix,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// Record validates and persists a payment against the student's active fee
// structure, returning the payment with its minted receipt number and the
// updated balance.
func (s *PaymentService) Record(ctx context.Context, actor models.Actor, req RecordPaymentRequest) (*PaymentResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payment payload")
	}
	mode := models.PaymentMode(strings.ToLower(req.Mode))
	if !mode.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported payment mode")
	}
	if !req.Amount.IsPositive() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "amount must be positive")
	}
	if req.Amount.Exponent() < -2 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "amount cannot have more than two decimal places")
	}
	if mode == models.PaymentModeCheque && req.ChequeNo == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "cheque number required for cheque payments")
	}
	if mode == models.PaymentModeOnline && req.TransactionID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "transaction id required for online payments")
	}

	paymentDate := s.now()
	if req.PaymentDate != "" {
		parsed, err := time.Parse("2006-01-02", req.PaymentDate)
		if err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "payment date must use YYYY-MM-DD")
		}
		if parsed.After(s.now().Add(24 * time.Hour)) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "payment date cannot be in the future")
		}
		paymentDate = parsed
	}

	student, structure, err := s.resolveTarget(ctx, actor, req.StudentID)
	if err != nil {
		return nil, err
	}

	if req.TransactionID != "" {
		if existing, err := s.payments.FindByTransactionID(ctx, actor.SchoolID, req.TransactionID); err == nil {
			return nil, appErrors.Clone(appErrors.ErrConflict,
				"transaction already recorded under receipt "+existing.ReceiptNo)
		} else if err != sql.ErrNoRows {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check transaction")
		}
	}

	payment := &models.Payment{
		SchoolID:       actor.SchoolID,
		StudentID:      student.ID,
		FeeStructureID: structure.ID,
		Amount:         req.Amount,
		PaymentDate:    paymentDate,
		Mode:           mode,
	}
	if req.TransactionID != "" {
		payment.TransactionID = &req.TransactionID
	}
	if req.ChequeNo != "" {
		payment.ChequeNo = &req.ChequeNo
	}
	if req.BankName != "" {
		payment.BankName = &req.BankName
	}
	if req.Remarks != "" {
		payment.Remarks = &req.Remarks
	}
	if actor.UserID != "" {
		payment.CollectedBy = &actor.UserID
	}

	status, err := s.payments.RecordPayment(ctx, payment, structure, s.receiptPrefix)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "transaction already recorded")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record payment")
	}

	s.metrics.RecordPayment(string(mode), string(payment.Status), amountForMetrics(payment.Amount))
	s.logger.Info("payment recorded",
		zap.String("receipt_no", payment.ReceiptNo),
		zap.String("student_id", student.ID),
		zap.String("mode", string(mode)),
		zap.String("amount", payment.Amount.String()),
	)
	if s.notifier != nil {
		s.notifier.QueuePaymentConfirmation(ctx, student, payment, status)
	}
	return &PaymentResult{Payment: payment, Status: status}, nil
}

// Refund reverses a completed payment, fully or partially. Online payments
// are refunded at the provider first; the ledger is only touched once the
// provider accepts.
func (s *PaymentService) Refund(ctx context.Context, actor models.Actor, paymentID string, req RefundPaymentRequest) (*PaymentResult, error) {
	payment, err := s.getOwnedPayment(ctx, actor, paymentID)
	if err != nil {
		return nil, err
	}
	if payment.Status != models.PaymentStatusCompleted {
		return nil, appErrors.ErrPaymentNotRefundable
	}

	amount := req.Amount
	if amount.IsZero() {
		amount = payment.Amount
	}
	if !amount.IsPositive() || amount.GreaterThan(payment.Amount) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "refund amount must be positive and not exceed the payment")
	}

	if payment.Mode == models.PaymentModeOnline {
		if s.gateway == nil || payment.TransactionID == nil {
			return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "online refund requires a configured gateway")
		}
		if _, err := s.gateway.Refund(ctx, *payment.TransactionID, amount, req.Reason); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrGatewayUnavailable.Code, appErrors.ErrGatewayUnavailable.Status, "gateway refund failed")
		}
	}

	var changedBy *string
	if actor.UserID != "" {
		changedBy = &actor.UserID
	}
	status, err := s.payments.RefundPayment(ctx, payment, amount, req.Reason, changedBy)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.ErrPaymentNotRefundable
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to refund payment")
	}

	payment.Status = models.PaymentStatusRefunded
	payment.RefundedAmount = amount
	s.metrics.RecordPayment(string(payment.Mode), string(models.PaymentStatusRefunded), 0)
	s.logger.Info("payment refunded",
		zap.String("payment_id", payment.ID),
		zap.String("receipt_no", payment.ReceiptNo),
		zap.String("amount", amount.String()),
	)
	return &PaymentResult{Payment: payment, Status: status}, nil
}

// Get fetches a payment owned by the actor's school.
func (s *PaymentService) Get(ctx context.Context, actor models.Actor, paymentID string) (*models.Payment, error) {
	return s.getOwnedPayment(ctx, actor, paymentID)
}

// GetByReceipt fetches a payment by receipt number.
func (s *PaymentService) GetByReceipt(ctx context.Context, actor models.Actor, receiptNo string) (*models.Payment, error) {
	payment, err := s.payments.FindByReceiptNo(ctx, actor.SchoolID, receiptNo)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "payment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load payment")
	}
	return payment, nil
}

// List returns payments for the actor's school with pagination.
func (s *PaymentService) List(ctx context.Context, actor models.Actor, filter models.PaymentFilter) ([]models.PaymentDetail, int, error) {
	filter.SchoolID = actor.SchoolID
	payments, total, err := s.payments.List(ctx, filter)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list payments")
	}
	return payments, total, nil
}

// StudentPayments returns a student's payments, newest first.
func (s *PaymentService) StudentPayments(ctx context.Context, actor models.Actor, studentID string) ([]models.Payment, error) {
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
	payments, err := s.payments.ListByStudent(ctx, actor.SchoolID, studentID, "")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list payments")
	}
	return payments, nil
}

// History returns the audit trail of a payment.
func (s *PaymentService) History(ctx context.Context, actor models.Actor, paymentID string) ([]models.PaymentHistoryEntry, error) {
	if _, err := s.getOwnedPayment(ctx, actor, paymentID); err != nil {
		return nil, err
	}
	entries, err := s.payments.History(ctx, paymentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load payment history")
	}
	return entries, nil
}

func (s *PaymentService) getOwnedPayment(ctx context.Context, actor models.Actor, paymentID string) (*models.Payment, error) {
	payment, err := s.payments.FindByID(ctx, paymentID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "payment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load payment")
	}
	if payment.SchoolID != actor.SchoolID {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "payment not found")
	}
	return payment, nil
}

// resolveTarget loads the student and the active structure of their class,
// enforcing tenancy.
func (s *PaymentService) resolveTarget(ctx context.Context, actor models.Actor, studentID string) (*models.Student, *models.FeeStructure, error) {
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
	if !student.Active {
		return nil, nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "student is inactive")
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

func amountForMetrics(amount decimal.Decimal) float64 {
	value, _ := amount.Float64()
	return value
}
