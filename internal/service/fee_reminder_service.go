package service

import (
	"context"
	"database/sql"
	"time"

	"go.uber.org/zap"

	"github.com/vikram-labs/schoolpay-api/internal/models"
	appErrors "github.com/vikram-labs/schoolpay-api/pkg/errors"
)

type defaulterLister interface {
	ListDefaulters(ctx context.Context, schoolID, classID string) ([]models.Defaulter, error)
	RefreshOverdueFlags(ctx context.Context, schoolID string, today time.Time) (int64, error)
}

type reminderSender interface {
	SendFeeReminder(ctx context.Context, school *models.School, defaulter models.Defaulter) error
	Enabled() bool
}

// FeeReminderService dispatches overdue reminders to guardians. A failed
// recipient never aborts the run; failures are collected into the report.
type FeeReminderService struct {
	statuses defaulterLister
	schools  schoolReader
	sender   reminderSender
	metrics  *MetricsService
	logger   *zap.Logger
	now      func() time.Time
}

// NewFeeReminderService constructs a FeeReminderService.
func NewFeeReminderService(statuses defaulterLister, schools schoolReader, sender reminderSender, metrics *MetricsService, logger *zap.Logger) *FeeReminderService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FeeReminderService{
		statuses: statuses,
		schools:  schools,
		sender:   sender,
		metrics:  metrics,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// ReminderRequest narrows a reminder run. With no filters every overdue
// account in the school is notified.
type ReminderRequest struct {
	ClassID    string   `json:"class_id"`
	StudentIDs []string `json:"student_ids"`
}

// SendReminders refreshes overdue flags, then notifies every overdue account,
// optionally limited to one class or an explicit set of students. Students
// named in the request who are not overdue are skipped, not failed. It
// returns a per-run report.
func (s *FeeReminderService) SendReminders(ctx context.Context, actor models.Actor, req ReminderRequest) (*models.ReminderReport, error) {
	if !s.sender.Enabled() {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "notifications are disabled")
	}

	school, err := s.schools.FindByID(ctx, actor.SchoolID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "school not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load school")
	}

	if _, err := s.statuses.RefreshOverdueFlags(ctx, actor.SchoolID, s.now()); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to refresh overdue flags")
	}

	defaulters, err := s.statuses.ListDefaulters(ctx, actor.SchoolID, req.ClassID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list overdue accounts")
	}

	if len(req.StudentIDs) > 0 {
		wanted := make(map[string]struct{}, len(req.StudentIDs))
		for _, id := range req.StudentIDs {
			wanted[id] = struct{}{}
		}
		selected := make([]models.Defaulter, 0, len(req.StudentIDs))
		for _, defaulter := range defaulters {
			if _, ok := wanted[defaulter.StudentID]; ok {
				selected = append(selected, defaulter)
			}
		}
		defaulters = selected
	}

	report := &models.ReminderReport{TotalProcessed: len(defaulters)}
	for _, defaulter := range defaulters {
		if err := s.sender.SendFeeReminder(ctx, school, defaulter); err != nil {
			report.Failed++
			report.Failures = append(report.Failures, models.ReminderFailure{
				StudentID: defaulter.StudentID,
				Reason:    err.Error(),
			})
			s.logger.Warn("fee reminder failed",
				zap.String("student_id", defaulter.StudentID),
				zap.Error(err),
			)
			continue
		}
		report.Sent++
	}

	s.metrics.RecordReminderRun(report.Sent, report.Failed)
	s.logger.Info("fee reminder run finished",
		zap.String("school_id", actor.SchoolID),
		zap.Int("sent", report.Sent),
		zap.Int("failed", report.Failed),
	)
	return report, nil
}
