package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/ami-audit-api/internal/models"
	appErrors "github.com/noah-isme/ami-audit-api/pkg/errors"
	"github.com/noah-isme/ami-audit-api/pkg/jobs"
)

type notificationRepository interface {
	Create(ctx context.Context, notification *models.Notification) error
	List(ctx context.Context, filter models.NotificationFilter) ([]models.Notification, int, error)
	UnreadCount(ctx context.Context, userID string) (int, error)
	MarkRead(ctx context.Context, id, userID string) error
	MarkAllRead(ctx context.Context, userID string) error
}

type audienceDirectory interface {
	ListByDepartmentAndRoles(ctx context.Context, department string, roles []models.UserRole) ([]models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
}

// notificationJob is the payload queued per recipient.
type notificationJob struct {
	UserID  string
	Title   string
	Message string
	Type    models.NotificationType
}

// NotificationService resolves audiences for audit lifecycle events and
// fans personal notifications out through the background queue. Fan-out is
// best effort: a failed delivery is retried by the queue and never rolls
// back the transition that caused it.
type NotificationService struct {
	repo    notificationRepository
	users   audienceDirectory
	queue   *jobs.Queue
	metrics *MetricsService
	logger  *zap.Logger
}

// NewNotificationService creates the dispatcher. Call BindQueue before
// Dispatch; without a queue, notifications are written synchronously.
func NewNotificationService(repo notificationRepository, users audienceDirectory, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{repo: repo, users: users, logger: logger}
}

// BindQueue attaches the worker queue used for asynchronous delivery.
func (s *NotificationService) BindQueue(queue *jobs.Queue) {
	s.queue = queue
}

// BindMetrics attaches the metrics recorder for enqueue counts.
func (s *NotificationService) BindMetrics(metrics *MetricsService) {
	s.metrics = metrics
}

// HandleJob persists a single queued notification. Wired as the queue
// handler in main.
func (s *NotificationService) HandleJob(ctx context.Context, job jobs.Job) error {
	payload, ok := job.Payload.(notificationJob)
	if !ok {
		return fmt.Errorf("unexpected notification payload type %T", job.Payload)
	}
	return s.deliver(ctx, payload)
}

func (s *NotificationService) deliver(ctx context.Context, payload notificationJob) error {
	return s.repo.Create(ctx, &models.Notification{
		ID:      uuid.NewString(),
		UserID:  payload.UserID,
		Title:   payload.Title,
		Message: payload.Message,
		Type:    payload.Type,
	})
}

// Dispatch resolves recipients for each event and enqueues one notification
// per recipient. Audiences are resolved against the user table at dispatch
// time so later role or department changes never leak notifications.
func (s *NotificationService) Dispatch(ctx context.Context, events []models.AuditEvent) {
	for _, event := range events {
		recipients, title, message, kind := s.expand(ctx, event)
		for _, userID := range recipients {
			payload := notificationJob{UserID: userID, Title: title, Message: message, Type: kind}
			if s.queue == nil {
				if err := s.deliver(ctx, payload); err != nil {
					s.logger.Warn("failed to deliver notification", zap.String("user_id", userID), zap.Error(err))
				}
				continue
			}
			job := jobs.Job{ID: uuid.NewString(), Type: string(event.Type), Payload: payload}
			if err := s.queue.Enqueue(job); err != nil {
				s.logger.Warn("failed to enqueue notification",
					zap.String("user_id", userID),
					zap.Int("queue_depth", s.queue.Depth()),
					zap.Error(err))
				continue
			}
			s.metrics.RecordNotificationEnqueued()
		}
	}
}

// departmentAudience returns the ids of active users with any of the roles
// in the event's department.
func (s *NotificationService) departmentAudience(ctx context.Context, department string, roles ...models.UserRole) []string {
	users, err := s.users.ListByDepartmentAndRoles(ctx, department, roles)
	if err != nil {
		s.logger.Warn("failed to resolve notification audience",
			zap.String("department", department), zap.Error(err))
		return nil
	}
	ids := make([]string, 0, len(users))
	for _, u := range users {
		ids = append(ids, u.ID)
	}
	return ids
}

func appendUnique(ids []string, id string) []string {
	for _, existing := range ids {
		if existing == id {
			return ids
		}
	}
	return append(ids, id)
}

// expand maps one event to its recipient set and message.
func (s *NotificationService) expand(ctx context.Context, event models.AuditEvent) ([]string, string, string, models.NotificationType) {
	var recipients []string
	dateStr := event.Date.Format("2006-01-02")

	switch event.Type {
	case models.EventAuditScheduled:
		recipients = s.departmentAudience(ctx, event.Department, models.RoleDeptHead)
		if event.AssignedAuditorID != nil {
			recipients = appendUnique(recipients, *event.AssignedAuditorID)
		}
		return recipients, "Audit dijadwalkan",
			fmt.Sprintf("Audit %q untuk unit %s dijadwalkan pada %s.", event.SessionName, event.Department, dateStr),
			models.NotificationInfo
	case models.EventAuditConfirmed:
		if event.AssignedAuditorID != nil {
			recipients = append(recipients, *event.AssignedAuditorID)
		}
		return recipients, "Jadwal audit dikonfirmasi",
			fmt.Sprintf("Jadwal audit %q dikonfirmasi untuk %s.", event.SessionName, dateStr),
			models.NotificationInfo
	case models.EventAuditStarted:
		recipients = s.departmentAudience(ctx, event.Department, models.RoleAuditee, models.RoleDeptHead)
		return recipients, "Audit dimulai",
			fmt.Sprintf("Audit %q telah dimulai. Lengkapi asesmen mandiri dan unggah bukti.", event.SessionName),
			models.NotificationInfo
	case models.EventSelfAssessmentSubmitted:
		if event.AssignedAuditorID != nil {
			recipients = append(recipients, *event.AssignedAuditorID)
		}
		return recipients, "Asesmen mandiri masuk",
			fmt.Sprintf("Unit %s telah mengirim asesmen mandiri untuk audit %q.", event.Department, event.SessionName),
			models.NotificationInfo
	case models.EventVerificationSubmitted:
		recipients = s.departmentAudience(ctx, event.Department, models.RoleDeptHead)
		return recipients, "Verifikasi auditor selesai",
			fmt.Sprintf("Hasil verifikasi audit %q menunggu persetujuan Anda.", event.SessionName),
			models.NotificationWarning
	case models.EventAuditCompleted:
		recipients = s.departmentAudience(ctx, event.Department, models.RoleAuditee, models.RoleDeptHead)
		if event.AssignedAuditorID != nil {
			recipients = appendUnique(recipients, *event.AssignedAuditorID)
		}
		return recipients, "Audit selesai",
			fmt.Sprintf("Audit %q untuk unit %s telah dinyatakan selesai.", event.SessionName, event.Department),
			models.NotificationSuccess
	case models.EventAuditRescheduled:
		recipients = s.departmentAudience(ctx, event.Department, models.RoleAuditee, models.RoleDeptHead)
		if event.AssignedAuditorID != nil {
			recipients = appendUnique(recipients, *event.AssignedAuditorID)
		}
		return recipients, "Jadwal audit diubah",
			fmt.Sprintf("Audit %q dijadwalkan ulang ke %s.", event.SessionName, dateStr),
			models.NotificationWarning
	default:
		return nil, "", "", models.NotificationInfo
	}
}

// List returns the principal's own notifications.
func (s *NotificationService) List(ctx context.Context, userID string, filter models.NotificationFilter) ([]models.Notification, *models.Pagination, error) {
	filter.UserID = userID
	notifications, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list notifications")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	return notifications, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}, nil
}

// UnreadCount returns the number of unread notifications for the user.
func (s *NotificationService) UnreadCount(ctx context.Context, userID string) (int, error) {
	count, err := s.repo.UnreadCount(ctx, userID)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count notifications")
	}
	return count, nil
}

// MarkRead marks one of the user's notifications as read.
func (s *NotificationService) MarkRead(ctx context.Context, userID, id string) error {
	if err := s.repo.MarkRead(ctx, id, userID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark notification read")
	}
	return nil
}

// MarkAllRead marks every unread notification of the user as read.
func (s *NotificationService) MarkAllRead(ctx context.Context, userID string) error {
	if err := s.repo.MarkAllRead(ctx, userID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark notifications read")
	}
	return nil
}
