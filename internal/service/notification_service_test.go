package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vikram-labs/schoolpay-api/internal/models"
	"github.com/vikram-labs/schoolpay-api/pkg/config"
	"github.com/vikram-labs/schoolpay-api/pkg/notify"
)

type recordingSender struct {
	mu       sync.Mutex
	messages []notify.Message
}

func (s *recordingSender) Send(ctx context.Context, msg notify.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msg)
	return nil
}

func (s *recordingSender) all() []notify.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]notify.Message(nil), s.messages...)
}

func notificationFixture(enabled bool) (*NotificationService, *recordingSender) {
	sender := &recordingSender{}
	schools := &mockSchoolReader{school: &models.School{ID: "school-1", Name: "Sunrise Public School"}}
	cfg := config.NotificationsConfig{Enabled: enabled, WorkerConcurrency: 1, WorkerRetries: 1}
	return NewNotificationService(sender, schools, cfg, zap.NewNop()), sender
}

func confirmationFixture() (*models.Student, *models.Payment, *models.StudentFeeStatus) {
	student := &models.Student{
		ID:            "student-1",
		SchoolID:      "school-1",
		FullName:      "Asha Verma",
		GuardianName:  "Rohit Verma",
		GuardianEmail: "rohit@example.com",
	}
	payment := &models.Payment{
		ID:          "payment-1",
		SchoolID:    "school-1",
		StudentID:   "student-1",
		ReceiptNo:   "RCP202602100001",
		Amount:      decimal.RequireFromString("4000"),
		PaymentDate: time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC),
	}
	status := &models.StudentFeeStatus{
		StudentID:       "student-1",
		RemainingAmount: decimal.RequireFromString("6000"),
	}
	return student, payment, status
}

func TestNotificationServicePaymentConfirmation(t *testing.T) {
	svc, sender := notificationFixture(true)
	ctx := context.Background()
	svc.Start(ctx)
	defer svc.Stop()

	student, payment, status := confirmationFixture()
	svc.QueuePaymentConfirmation(ctx, student, payment, status)

	require.Eventually(t, func() bool {
		return len(sender.all()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	msg := sender.all()[0]
	assert.Equal(t, "rohit@example.com", msg.To)
	assert.Contains(t, msg.Subject, "RCP202602100001")
	assert.Contains(t, msg.TextBody, "Asha Verma")
	assert.Contains(t, msg.TextBody, "4000.00")
	assert.Contains(t, msg.TextBody, "6000.00")
	assert.Contains(t, msg.TextBody, "Sunrise Public School")
}

func TestNotificationServiceConfirmationSkippedWhenDisabled(t *testing.T) {
	svc, sender := notificationFixture(false)
	ctx := context.Background()
	svc.Start(ctx)
	defer svc.Stop()

	student, payment, status := confirmationFixture()
	svc.QueuePaymentConfirmation(ctx, student, payment, status)

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, sender.all())
	assert.False(t, svc.Enabled())
}

func TestNotificationServiceConfirmationSkippedWithoutEmail(t *testing.T) {
	svc, sender := notificationFixture(true)
	ctx := context.Background()
	svc.Start(ctx)
	defer svc.Stop()

	student, payment, status := confirmationFixture()
	student.GuardianEmail = ""
	svc.QueuePaymentConfirmation(ctx, student, payment, status)

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, sender.all())
}

func TestNotificationServiceSendFeeReminder(t *testing.T) {
	svc, sender := notificationFixture(true)
	due := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
	school := &models.School{ID: "school-1", Name: "Sunrise Public School"}
	defaulter := models.Defaulter{
		StudentID:     "student-1",
		StudentName:   "Asha Verma",
		GuardianName:  "Rohit Verma",
		GuardianEmail: "rohit@example.com",
		ClassName:     "Grade 5A",
		AmountDue:     decimal.RequireFromString("6000"),
		NextDueDate:   &due,
	}

	err := svc.SendFeeReminder(context.Background(), school, defaulter)
	require.NoError(t, err)
	require.Len(t, sender.all(), 1)

	msg := sender.all()[0]
	assert.Equal(t, "rohit@example.com", msg.To)
	assert.Contains(t, msg.Subject, "Asha Verma")
	assert.Contains(t, msg.TextBody, "Grade 5A")
	assert.Contains(t, msg.TextBody, "6000.00")
	assert.Contains(t, msg.TextBody, "2026-01-15")
}

func TestNotificationServiceSendFeeReminderNoEmail(t *testing.T) {
	svc, sender := notificationFixture(true)
	school := &models.School{ID: "school-1", Name: "Sunrise Public School"}

	err := svc.SendFeeReminder(context.Background(), school, models.Defaulter{StudentID: "student-1"})
	require.Error(t, err)
	assert.Empty(t, sender.all())
}
