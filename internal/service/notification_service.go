package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vikram-labs/schoolpay-api/internal/models"
	"github.com/vikram-labs/schoolpay-api/pkg/config"
	"github.com/vikram-labs/schoolpay-api/pkg/jobs"
	"github.com/vikram-labs/schoolpay-api/pkg/notify"
)

type schoolReader interface {
	FindByID(ctx context.Context, id string) (*models.School, error)
}

// NotificationService renders guardian messages and dispatches them. Payment
// confirmations go through a background queue so recording a payment never
// waits on the mail provider; reminders are sent synchronously so the caller
// can report per-recipient outcomes.
type NotificationService struct {
	sender  notify.Sender
	schools schoolReader
	queue   *jobs.Queue
	enabled bool
	logger  *zap.Logger
}

// NewNotificationService constructs a NotificationService.
func NewNotificationService(sender notify.Sender, schools schoolReader, cfg config.NotificationsConfig, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &NotificationService{
		sender:  sender,
		schools: schools,
		enabled: cfg.Enabled,
		logger:  logger,
	}
	s.queue = jobs.NewQueue("notifications", s.handleJob, jobs.QueueConfig{
		Workers:    cfg.WorkerConcurrency,
		MaxRetries: cfg.WorkerRetries,
		RetryDelay: 5 * time.Second,
		Logger:     logger,
	})
	return s
}

// Start launches the delivery workers.
func (s *NotificationService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains the delivery workers.
func (s *NotificationService) Stop() {
	s.queue.Stop()
}

func (s *NotificationService) handleJob(ctx context.Context, job jobs.Job) error {
	msg, ok := job.Payload.(notify.Message)
	if !ok {
		s.logger.Error("notification job carried unexpected payload", zap.String("job_id", job.ID))
		return nil
	}
	return s.sender.Send(ctx, msg)
}

// QueuePaymentConfirmation enqueues a payment receipt email for the student's
// guardian. Failures are logged by the queue and never propagate to the
// payment flow.
func (s *NotificationService) QueuePaymentConfirmation(ctx context.Context, student *models.Student, payment *models.Payment, status *models.StudentFeeStatus) {
	if !s.enabled || student.GuardianEmail == "" {
		return
	}

	school, err := s.schools.FindByID(ctx, student.SchoolID)
	if err != nil {
		s.logger.Warn("payment confirmation skipped, school lookup failed",
			zap.String("school_id", student.SchoolID), zap.Error(err))
		return
	}

	subject, body, err := notify.Render(models.TemplatePaymentConfirmation, map[string]string{
		"guardian_name":    student.GuardianName,
		"student_name":     student.FullName,
		"receipt_no":       payment.ReceiptNo,
		"amount":           payment.Amount.StringFixed(2),
		"payment_date":     payment.PaymentDate.Format("2006-01-02"),
		"remaining_amount": status.RemainingAmount.StringFixed(2),
		"school_name":      school.Name,
	})
	if err != nil {
		s.logger.Error("payment confirmation render failed", zap.Error(err))
		return
	}

	err = s.queue.Enqueue(jobs.Job{
		ID:   uuid.NewString(),
		Type: models.TemplatePaymentConfirmation,
		Payload: notify.Message{
			To:       student.GuardianEmail,
			ToName:   student.GuardianName,
			Subject:  subject,
			TextBody: body,
		},
	})
	if err != nil {
		s.logger.Warn("payment confirmation enqueue failed", zap.Error(err))
	}
}

// SendFeeReminder delivers an overdue reminder to one guardian synchronously.
func (s *NotificationService) SendFeeReminder(ctx context.Context, school *models.School, defaulter models.Defaulter) error {
	if defaulter.GuardianEmail == "" {
		return fmt.Errorf("no guardian email on file")
	}

	dueDate := ""
	if defaulter.NextDueDate != nil {
		dueDate = defaulter.NextDueDate.Format("2006-01-02")
	}
	subject, body, err := notify.Render(models.TemplateFeeReminder, map[string]string{
		"guardian_name":      defaulter.GuardianName,
		"student_name":       defaulter.StudentName,
		"class_name":         defaulter.ClassName,
		"outstanding_amount": defaulter.AmountDue.StringFixed(2),
		"due_date":           dueDate,
		"school_name":        school.Name,
	})
	if err != nil {
		return err
	}

	return s.sender.Send(ctx, notify.Message{
		To:       defaulter.GuardianEmail,
		ToName:   defaulter.GuardianName,
		Subject:  subject,
		TextBody: body,
	})
}

// Enabled reports whether outbound notifications are switched on.
func (s *NotificationService) Enabled() bool {
	return s.enabled
}
