package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/ami-audit-api/internal/models"
)

type mockNotificationRepo struct {
	created   []*models.Notification
	createErr error
	listItems []models.Notification
	unread    int
	marked    []string
	markedAll []string
}

func (m *mockNotificationRepo) Create(ctx context.Context, n *models.Notification) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.created = append(m.created, n)
	return nil
}

func (m *mockNotificationRepo) List(ctx context.Context, filter models.NotificationFilter) ([]models.Notification, int, error) {
	return m.listItems, len(m.listItems), nil
}

func (m *mockNotificationRepo) UnreadCount(ctx context.Context, userID string) (int, error) {
	return m.unread, nil
}

func (m *mockNotificationRepo) MarkRead(ctx context.Context, id, userID string) error {
	m.marked = append(m.marked, id)
	return nil
}

func (m *mockNotificationRepo) MarkAllRead(ctx context.Context, userID string) error {
	m.markedAll = append(m.markedAll, userID)
	return nil
}

type mockAudienceDirectory struct {
	byDepartment map[string][]models.User
}

func (m *mockAudienceDirectory) ListByDepartmentAndRoles(ctx context.Context, department string, roles []models.UserRole) ([]models.User, error) {
	var out []models.User
	for _, u := range m.byDepartment[department] {
		for _, role := range roles {
			if u.Role == role {
				out = append(out, u)
				break
			}
		}
	}
	return out, nil
}

func (m *mockAudienceDirectory) FindByID(ctx context.Context, id string) (*models.User, error) {
	for _, users := range m.byDepartment {
		for _, u := range users {
			if u.ID == id {
				copy := u
				return &copy, nil
			}
		}
	}
	return nil, sql.ErrNoRows
}

func testEvent(t models.AuditEventType, auditorID *string) models.AuditEvent {
	return models.AuditEvent{
		Type:              t,
		SessionID:         "sess-1",
		SessionName:       "AMI 2026 TI",
		Department:        "Teknik Informatika",
		AssignedAuditorID: auditorID,
		Date:              time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC),
		OccurredAt:        time.Now().UTC(),
	}
}

func newTestNotificationService() (*NotificationService, *mockNotificationRepo) {
	repo := &mockNotificationRepo{}
	directory := &mockAudienceDirectory{byDepartment: map[string][]models.User{
		"Teknik Informatika": {
			{ID: "head-1", Role: models.RoleDeptHead},
			{ID: "auditee-1", Role: models.RoleAuditee},
			{ID: "auditee-2", Role: models.RoleAuditee},
		},
	}}
	return NewNotificationService(repo, directory, zap.NewNop()), repo
}

func recipientIDs(created []*models.Notification) []string {
	ids := make([]string, 0, len(created))
	for _, n := range created {
		ids = append(ids, n.UserID)
	}
	return ids
}

func TestDispatchScheduledNotifiesHeadAndAuditor(t *testing.T) {
	svc, repo := newTestNotificationService()

	svc.Dispatch(context.Background(), []models.AuditEvent{testEvent(models.EventAuditScheduled, strptr("auditor-9"))})

	ids := recipientIDs(repo.created)
	assert.ElementsMatch(t, []string{"head-1", "auditor-9"}, ids)
	assert.Equal(t, models.NotificationInfo, repo.created[0].Type)
	assert.NotEmpty(t, repo.created[0].Title)
}

func TestDispatchStartedNotifiesDepartment(t *testing.T) {
	svc, repo := newTestNotificationService()

	svc.Dispatch(context.Background(), []models.AuditEvent{testEvent(models.EventAuditStarted, nil)})

	assert.ElementsMatch(t, []string{"head-1", "auditee-1", "auditee-2"}, recipientIDs(repo.created))
}

func TestDispatchSelfAssessmentNotifiesAssignedAuditorOnly(t *testing.T) {
	svc, repo := newTestNotificationService()

	svc.Dispatch(context.Background(), []models.AuditEvent{testEvent(models.EventSelfAssessmentSubmitted, strptr("auditor-9"))})
	assert.Equal(t, []string{"auditor-9"}, recipientIDs(repo.created))

	repo.created = nil
	svc.Dispatch(context.Background(), []models.AuditEvent{testEvent(models.EventSelfAssessmentSubmitted, nil)})
	assert.Empty(t, repo.created, "no auditor assigned means nobody to notify")
}

func TestDispatchVerificationNotifiesDeptHead(t *testing.T) {
	svc, repo := newTestNotificationService()

	svc.Dispatch(context.Background(), []models.AuditEvent{testEvent(models.EventVerificationSubmitted, strptr("auditor-9"))})
	assert.Equal(t, []string{"head-1"}, recipientIDs(repo.created))
	assert.Equal(t, models.NotificationWarning, repo.created[0].Type)
}

func TestDispatchCompletedDeduplicatesRecipients(t *testing.T) {
	svc, repo := newTestNotificationService()

	// Assigned auditor also appears via department resolution oddities;
	// dedupe keeps one notification per user.
	svc.Dispatch(context.Background(), []models.AuditEvent{testEvent(models.EventAuditCompleted, strptr("head-1"))})

	ids := recipientIDs(repo.created)
	assert.ElementsMatch(t, []string{"head-1", "auditee-1", "auditee-2"}, ids)
}

func TestDispatchDeliveryFailureDoesNotPanic(t *testing.T) {
	svc, repo := newTestNotificationService()
	repo.createErr = sql.ErrConnDone

	assert.NotPanics(t, func() {
		svc.Dispatch(context.Background(), []models.AuditEvent{testEvent(models.EventAuditStarted, nil)})
	})
	assert.Empty(t, repo.created)
}

func TestNotificationListAndReadFlow(t *testing.T) {
	svc, repo := newTestNotificationService()
	repo.listItems = []models.Notification{{ID: "n-1", UserID: "u-1"}}
	repo.unread = 3

	items, pagination, err := svc.List(context.Background(), "u-1", models.NotificationFilter{Page: 1, PageSize: 10})
	require.NoError(t, err)
	assert.Len(t, items, 1)
	assert.Equal(t, 1, pagination.TotalCount)

	count, err := svc.UnreadCount(context.Background(), "u-1")
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	require.NoError(t, svc.MarkRead(context.Background(), "u-1", "n-1"))
	assert.Equal(t, []string{"n-1"}, repo.marked)

	require.NoError(t, svc.MarkAllRead(context.Background(), "u-1"))
	assert.Equal(t, []string{"u-1"}, repo.markedAll)
}
