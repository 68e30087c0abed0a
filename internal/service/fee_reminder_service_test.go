package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vikram-labs/schoolpay-api/internal/models"
	appErrors "github.com/vikram-labs/schoolpay-api/pkg/errors"
)

type mockDefaulterLister struct {
	defaulters   []models.Defaulter
	refreshCalls int
}

func (m *mockDefaulterLister) ListDefaulters(ctx context.Context, schoolID, classID string) ([]models.Defaulter, error) {
	return m.defaulters, nil
}

func (m *mockDefaulterLister) RefreshOverdueFlags(ctx context.Context, schoolID string, today time.Time) (int64, error) {
	m.refreshCalls++
	return int64(len(m.defaulters)), nil
}

type mockSchoolReader struct {
	school *models.School
}

func (m *mockSchoolReader) FindByID(ctx context.Context, id string) (*models.School, error) {
	if m.school == nil || m.school.ID != id {
		return nil, sql.ErrNoRows
	}
	return m.school, nil
}

type mockReminderSender struct {
	enabled bool
	failFor map[string]error
	sent    []string
}

func (m *mockReminderSender) SendFeeReminder(ctx context.Context, school *models.School, defaulter models.Defaulter) error {
	if err, ok := m.failFor[defaulter.StudentID]; ok {
		return err
	}
	m.sent = append(m.sent, defaulter.StudentID)
	return nil
}

func (m *mockReminderSender) Enabled() bool { return m.enabled }

func reminderDefaulters() []models.Defaulter {
	due := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
	return []models.Defaulter{
		{StudentID: "student-1", StudentName: "Asha Verma", GuardianEmail: "guardian1@example.com", AmountDue: decimal.RequireFromString("6000"), NextDueDate: &due},
		{StudentID: "student-2", StudentName: "Ravi Kumar", GuardianEmail: "guardian2@example.com", AmountDue: decimal.RequireFromString("3000"), NextDueDate: &due},
		{StudentID: "student-3", StudentName: "Meera Nair", AmountDue: decimal.RequireFromString("1500"), NextDueDate: &due},
	}
}

func TestFeeReminderServiceSendReminders(t *testing.T) {
	statuses := &mockDefaulterLister{defaulters: reminderDefaulters()}
	schools := &mockSchoolReader{school: &models.School{ID: "school-1", Name: "Sunrise Public School"}}
	sender := &mockReminderSender{
		enabled: true,
		failFor: map[string]error{"student-3": errors.New("no guardian email on file")},
	}
	svc := NewFeeReminderService(statuses, schools, sender, nil, zap.NewNop())
	actor := models.Actor{SchoolID: "school-1"}

	report, err := svc.SendReminders(context.Background(), actor, ReminderRequest{})
	require.NoError(t, err)
	assert.Equal(t, 3, report.TotalProcessed)
	assert.Equal(t, 2, report.Sent)
	assert.Equal(t, 1, report.Failed)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, "student-3", report.Failures[0].StudentID)
	assert.Equal(t, "no guardian email on file", report.Failures[0].Reason)
	assert.Equal(t, 1, statuses.refreshCalls)
	assert.Equal(t, []string{"student-1", "student-2"}, sender.sent)
}

func TestFeeReminderServiceSendRemindersExplicitStudents(t *testing.T) {
	statuses := &mockDefaulterLister{defaulters: reminderDefaulters()}
	schools := &mockSchoolReader{school: &models.School{ID: "school-1", Name: "Sunrise Public School"}}
	sender := &mockReminderSender{enabled: true}
	svc := NewFeeReminderService(statuses, schools, sender, nil, zap.NewNop())
	actor := models.Actor{SchoolID: "school-1"}

	// student-9 has no overdue balance and is silently skipped.
	req := ReminderRequest{StudentIDs: []string{"student-2", "student-9"}}
	report, err := svc.SendReminders(context.Background(), actor, req)
	require.NoError(t, err)
	assert.Equal(t, 1, report.TotalProcessed)
	assert.Equal(t, 1, report.Sent)
	assert.Zero(t, report.Failed)
	assert.Equal(t, []string{"student-2"}, sender.sent)
}

func TestFeeReminderServiceSendRemindersDisabled(t *testing.T) {
	statuses := &mockDefaulterLister{defaulters: reminderDefaulters()}
	schools := &mockSchoolReader{school: &models.School{ID: "school-1"}}
	sender := &mockReminderSender{enabled: false}
	svc := NewFeeReminderService(statuses, schools, sender, nil, zap.NewNop())

	_, err := svc.SendReminders(context.Background(), models.Actor{SchoolID: "school-1"}, ReminderRequest{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErrors.FromError(err).Code)
	assert.Zero(t, statuses.refreshCalls)
}

func TestFeeReminderServiceSendRemindersUnknownSchool(t *testing.T) {
	statuses := &mockDefaulterLister{}
	sender := &mockReminderSender{enabled: true}
	svc := NewFeeReminderService(statuses, &mockSchoolReader{}, sender, nil, zap.NewNop())

	_, err := svc.SendReminders(context.Background(), models.Actor{SchoolID: "school-1"}, ReminderRequest{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestFeeReminderServiceSendRemindersEmptyRun(t *testing.T) {
	statuses := &mockDefaulterLister{}
	schools := &mockSchoolReader{school: &models.School{ID: "school-1"}}
	sender := &mockReminderSender{enabled: true}
	svc := NewFeeReminderService(statuses, schools, sender, nil, zap.NewNop())

	report, err := svc.SendReminders(context.Background(), models.Actor{SchoolID: "school-1"}, ReminderRequest{})
	require.NoError(t, err)
	assert.Zero(t, report.TotalProcessed)
	assert.Zero(t, report.Sent)
	assert.Zero(t, report.Failed)
	assert.Empty(t, report.Failures)
}
