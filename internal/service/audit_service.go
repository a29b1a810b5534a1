package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/ami-audit-api/internal/models"
	"github.com/noah-isme/ami-audit-api/internal/repository"
	"github.com/noah-isme/ami-audit-api/pkg/config"
	appErrors "github.com/noah-isme/ami-audit-api/pkg/errors"
)

type auditRepository interface {
	FindByID(ctx context.Context, id string) (*models.AuditSession, error)
	List(ctx context.Context, filter models.AuditFilter) ([]models.AuditSession, int, error)
	ListByStatus(ctx context.Context, status models.AuditStatus) ([]models.AuditSession, error)
	Create(ctx context.Context, session *models.AuditSession) error
	Update(ctx context.Context, session *models.AuditSession) error
	Delete(ctx context.Context, id string) error
}

type auditorDirectory interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

type instrumentCatalog interface {
	ListByStandard(ctx context.Context, standard models.Standard) ([]models.MasterQuestion, error)
}

// checklistGenerator produces an instrument tailored to a department when
// the master catalog has no template for the requested standard.
type checklistGenerator interface {
	GenerateChecklist(ctx context.Context, standard models.Standard, department string) ([]models.AuditQuestion, error)
	Enabled() bool
}

// ScheduleAuditRequest is the payload for creating a new audit session.
type ScheduleAuditRequest struct {
	Name              string          `json:"name" validate:"required"`
	Department        string          `json:"department" validate:"required"`
	Standard          models.Standard `json:"standard" validate:"required"`
	AssignedAuditorID *string         `json:"assigned_auditor_id,omitempty"`
	Date              time.Time       `json:"date" validate:"required"`
}

// RescheduleAuditRequest moves a session to a new date.
type RescheduleAuditRequest struct {
	Date time.Time `json:"date" validate:"required"`
}

// UpdateAuditeeFieldsRequest carries auditee-side edits for one question.
// Nil pointers leave the stored value unchanged.
type UpdateAuditeeFieldsRequest struct {
	SelfAssessment   *models.Compliance `json:"self_assessment,omitempty"`
	Evidence         *string            `json:"evidence,omitempty"`
	EvidenceFileName *string            `json:"evidence_file_name,omitempty"`
	ActionPlan       *string            `json:"action_plan,omitempty"`
}

// UpdateAuditorFieldsRequest carries auditor-side edits for one question.
type UpdateAuditorFieldsRequest struct {
	Compliance         *models.Compliance `json:"compliance,omitempty"`
	AuditorNotes       *string            `json:"auditor_notes,omitempty"`
	ActionPlanDeadline *time.Time         `json:"action_plan_deadline,omitempty"`
}

// TransitionPreview is the dry-run answer for a lifecycle operation.
type TransitionPreview struct {
	Operation       models.AuditOperation `json:"operation"`
	CurrentStatus   models.AuditStatus    `json:"current_status"`
	ResultingStatus models.AuditStatus    `json:"resulting_status,omitempty"`
	Allowed         bool                  `json:"allowed"`
	Reason          string                `json:"reason,omitempty"`
}

// BulkStartResult summarizes a start-all-planned sweep.
type BulkStartResult struct {
	Started int      `json:"started"`
	Skipped int      `json:"skipped"`
	IDs     []string `json:"ids"`
}

// AuditService drives the audit session lifecycle. Every state change goes
// through the policy check, the status transition rules, and an optimistic
// concurrency update; committed transitions are returned as domain events
// for the notification dispatcher.
type AuditService struct {
	repo      auditRepository
	users     auditorDirectory
	catalog   instrumentCatalog
	generator checklistGenerator
	policy    AuditPolicy
	validator *validator.Validate
	cfg       config.AuditConfig
	logger    *zap.Logger
	now       func() time.Time
}

// NewAuditService creates the lifecycle engine. The generator may be nil
// when AI checklist generation is disabled.
func NewAuditService(repo auditRepository, users auditorDirectory, catalog instrumentCatalog, generator checklistGenerator, cfg config.AuditConfig, validate *validator.Validate, logger *zap.Logger) *AuditService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if cfg.AuditeeDeadlineOffset <= 0 {
		cfg.AuditeeDeadlineOffset = 14 * 24 * time.Hour
	}
	if cfg.AuditorDeadlineOffset <= 0 {
		cfg.AuditorDeadlineOffset = 21 * 24 * time.Hour
	}
	return &AuditService{
		repo:      repo,
		users:     users,
		catalog:   catalog,
		generator: generator,
		policy:    NewAuditPolicy(),
		validator: validate,
		cfg:       cfg,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *AuditService) load(ctx context.Context, id string) (*models.AuditSession, error) {
	session, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "audit session not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load audit session")
	}
	return session, nil
}

func (s *AuditService) save(ctx context.Context, session *models.AuditSession) error {
	if err := s.repo.Update(ctx, session); err != nil {
		if errors.Is(err, repository.ErrVersionConflict) {
			return appErrors.Clone(appErrors.ErrConflict, "audit session was modified concurrently, reload and retry")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update audit session")
	}
	return nil
}

func sessionEvent(t models.AuditEventType, session *models.AuditSession, at time.Time) models.AuditEvent {
	return models.AuditEvent{
		Type:              t,
		SessionID:         session.ID,
		SessionName:       session.Name,
		Department:        session.Department,
		AssignedAuditorID: session.AssignedAuditorID,
		Date:              session.Date,
		OccurredAt:        at,
	}
}

// buildInstrument snapshots the question set for a new session: the master
// catalog template for the standard when one exists, otherwise an
// AI-generated checklist. A generator failure fails the whole scheduling
// call so no half-initialized session is ever written.
func (s *AuditService) buildInstrument(ctx context.Context, standard models.Standard, department string) (models.AuditQuestions, error) {
	templates, err := s.catalog.ListByStandard(ctx, standard)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load instrument template")
	}
	if len(templates) > 0 {
		questions := make(models.AuditQuestions, 0, len(templates))
		for _, t := range templates {
			questions = append(questions, models.AuditQuestion{
				ID:           uuid.NewString(),
				Category:     t.Category,
				QuestionText: t.Text,
			})
		}
		return questions, nil
	}

	if s.generator == nil || !s.generator.Enabled() {
		return nil, appErrors.Clone(appErrors.ErrPrecondition, "no instrument template exists for standard "+string(standard))
	}
	generated, err := s.generator.GenerateChecklist(ctx, standard, department)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUpstream.Code, appErrors.ErrUpstream.Status, "checklist generation failed")
	}
	if len(generated) == 0 {
		return nil, appErrors.Clone(appErrors.ErrUpstream, "checklist generation returned an empty instrument")
	}
	for i := range generated {
		if generated[i].ID == "" {
			generated[i].ID = uuid.NewString()
		}
	}
	return models.AuditQuestions(generated), nil
}

// Schedule creates a session in PENDING_SCHEDULING with a frozen question
// snapshot and deadlines derived from the audit date.
func (s *AuditService) Schedule(ctx context.Context, p models.Principal, req ScheduleAuditRequest) (*models.AuditSession, []models.AuditEvent, error) {
	if !s.policy.CanSchedule(p) {
		return nil, nil, appErrors.Clone(appErrors.ErrForbidden, "role may not schedule audits")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid schedule payload")
	}
	if !models.ValidStandard(req.Standard) {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "unknown accreditation standard")
	}

	if req.AssignedAuditorID != nil {
		auditor, err := s.users.FindByID(ctx, *req.AssignedAuditorID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, nil, appErrors.Clone(appErrors.ErrValidation, "assigned auditor does not exist")
			}
			return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assigned auditor")
		}
		if !auditor.Active {
			return nil, nil, appErrors.Clone(appErrors.ErrValidation, "assigned auditor is inactive")
		}
		if !auditor.Role.AuditorClass() {
			return nil, nil, appErrors.Clone(appErrors.ErrValidation, "assigned user is not an auditor")
		}
	}

	questions, err := s.buildInstrument(ctx, req.Standard, req.Department)
	if err != nil {
		return nil, nil, err
	}

	now := s.now()
	session := &models.AuditSession{
		ID:                uuid.NewString(),
		Name:              req.Name,
		Department:        req.Department,
		Standard:          req.Standard,
		Status:            models.StatusPendingScheduling,
		Date:              req.Date,
		AuditeeDeadline:   req.Date.Add(s.cfg.AuditeeDeadlineOffset),
		AuditorDeadline:   req.Date.Add(s.cfg.AuditorDeadlineOffset),
		AssignedAuditorID: req.AssignedAuditorID,
		Questions:         questions,
		Version:           1,
	}
	if err := s.repo.Create(ctx, session); err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create audit session")
	}

	s.logger.Info("audit session scheduled",
		zap.String("session_id", session.ID),
		zap.String("department", session.Department),
		zap.String("standard", string(session.Standard)),
		zap.Int("questions", len(session.Questions)))

	return session, []models.AuditEvent{sessionEvent(models.EventAuditScheduled, session, now)}, nil
}

// transition applies one lifecycle operation to a loaded session.
func (s *AuditService) transition(ctx context.Context, p models.Principal, id string, op models.AuditOperation, event models.AuditEventType) (*models.AuditSession, []models.AuditEvent, error) {
	session, err := s.load(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if !s.policy.CanTransition(p, session, op) {
		return nil, nil, appErrors.Clone(appErrors.ErrForbidden, "role may not perform this operation")
	}
	next, err := NextStatus(session.Status, op)
	if err != nil {
		return nil, nil, appErrors.Clone(appErrors.ErrPrecondition, err.Error())
	}

	session.Status = next
	if err := s.save(ctx, session); err != nil {
		return nil, nil, err
	}

	s.logger.Info("audit session transitioned",
		zap.String("session_id", session.ID),
		zap.String("operation", string(op)),
		zap.String("status", string(session.Status)))

	return session, []models.AuditEvent{sessionEvent(event, session, s.now())}, nil
}

// ConfirmSchedule moves PENDING_SCHEDULING to PLANNED.
func (s *AuditService) ConfirmSchedule(ctx context.Context, p models.Principal, id string) (*models.AuditSession, []models.AuditEvent, error) {
	return s.transition(ctx, p, id, models.OpConfirmSchedule, models.EventAuditConfirmed)
}

// Start moves PLANNED to IN_PROGRESS.
func (s *AuditService) Start(ctx context.Context, p models.Principal, id string) (*models.AuditSession, []models.AuditEvent, error) {
	return s.transition(ctx, p, id, models.OpStart, models.EventAuditStarted)
}

// SubmitSelfAssessment moves IN_PROGRESS to SUBMITTED.
func (s *AuditService) SubmitSelfAssessment(ctx context.Context, p models.Principal, id string) (*models.AuditSession, []models.AuditEvent, error) {
	return s.transition(ctx, p, id, models.OpSubmitSelfAssessment, models.EventSelfAssessmentSubmitted)
}

// SubmitVerification moves the session to REVIEW_DEPT_HEAD. Submission is
// accepted from SUBMITTED and also directly from IN_PROGRESS, so an auditor
// can close out a unit that never filed its self assessment.
func (s *AuditService) SubmitVerification(ctx context.Context, p models.Principal, id string) (*models.AuditSession, []models.AuditEvent, error) {
	return s.transition(ctx, p, id, models.OpSubmitVerification, models.EventVerificationSubmitted)
}

// ApproveCompletion moves REVIEW_DEPT_HEAD to COMPLETED.
func (s *AuditService) ApproveCompletion(ctx context.Context, p models.Principal, id string) (*models.AuditSession, []models.AuditEvent, error) {
	return s.transition(ctx, p, id, models.OpApproveCompletion, models.EventAuditCompleted)
}

// StartAllPlanned starts every PLANNED session in one sweep. Sessions in any
// other state are untouched; a session that loses its optimistic-lock race
// is skipped rather than failing the sweep.
func (s *AuditService) StartAllPlanned(ctx context.Context, p models.Principal) (*BulkStartResult, []models.AuditEvent, error) {
	if !s.policy.CanSchedule(p) {
		return nil, nil, appErrors.Clone(appErrors.ErrForbidden, "role may not start audits")
	}
	planned, err := s.repo.ListByStatus(ctx, models.StatusPlanned)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list planned sessions")
	}

	result := &BulkStartResult{}
	events := make([]models.AuditEvent, 0, len(planned))
	for i := range planned {
		session := &planned[i]
		session.Status = models.StatusInProgress
		if err := s.repo.Update(ctx, session); err != nil {
			result.Skipped++
			s.logger.Warn("skipped session during bulk start",
				zap.String("session_id", session.ID), zap.Error(err))
			continue
		}
		result.Started++
		result.IDs = append(result.IDs, session.ID)
		events = append(events, sessionEvent(models.EventAuditStarted, session, s.now()))
	}
	return result, events, nil
}

// Reschedule moves the audit date and recomputes both deadlines. Completed
// sessions cannot be rescheduled.
func (s *AuditService) Reschedule(ctx context.Context, p models.Principal, id string, req RescheduleAuditRequest) (*models.AuditSession, []models.AuditEvent, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid reschedule payload")
	}
	session, err := s.load(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if !s.policy.CanTransition(p, session, models.OpReschedule) {
		return nil, nil, appErrors.Clone(appErrors.ErrForbidden, "role may not reschedule audits")
	}
	if session.Status == models.StatusCompleted {
		return nil, nil, appErrors.Clone(appErrors.ErrPrecondition, "completed audit cannot be rescheduled")
	}

	session.Date = req.Date
	session.AuditeeDeadline = req.Date.Add(s.cfg.AuditeeDeadlineOffset)
	session.AuditorDeadline = req.Date.Add(s.cfg.AuditorDeadlineOffset)
	if err := s.save(ctx, session); err != nil {
		return nil, nil, err
	}
	return session, []models.AuditEvent{sessionEvent(models.EventAuditRescheduled, session, s.now())}, nil
}

// Delete removes a session permanently, whether an unstarted schedule or a
// historical record.
func (s *AuditService) Delete(ctx context.Context, p models.Principal, id string) error {
	session, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if !s.policy.CanDelete(p, session) {
		return appErrors.Clone(appErrors.ErrForbidden, "role may not delete audit sessions")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete audit session")
	}
	s.logger.Info("audit session deleted",
		zap.String("session_id", id), zap.String("actor_id", p.UserID))
	return nil
}

// Get returns a session the principal may view.
func (s *AuditService) Get(ctx context.Context, p models.Principal, id string) (*models.AuditSession, error) {
	session, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.policy.CanView(p, session) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "session is outside your visibility scope")
	}
	return session, nil
}

// List returns the sessions visible to the principal, narrowed by filter.
func (s *AuditService) List(ctx context.Context, p models.Principal, filter models.AuditFilter) ([]models.AuditSession, *models.Pagination, error) {
	scoped, visible := s.policy.ScopeFilter(p, filter)
	if !visible {
		return []models.AuditSession{}, &models.Pagination{Page: 1, PageSize: filter.PageSize}, nil
	}
	sessions, total, err := s.repo.List(ctx, scoped)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list audit sessions")
	}

	page := scoped.Page
	if page < 1 {
		page = 1
	}
	pageSize := scoped.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	return sessions, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}, nil
}

// ValidateTransition answers whether an operation would succeed right now,
// without committing anything. Used by clients to enable or grey out actions.
func (s *AuditService) ValidateTransition(ctx context.Context, p models.Principal, id string, op models.AuditOperation) (*TransitionPreview, error) {
	session, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	preview := &TransitionPreview{Operation: op, CurrentStatus: session.Status}
	if !s.policy.CanTransition(p, session, op) {
		preview.Reason = "role may not perform this operation"
		return preview, nil
	}
	next, err := NextStatus(session.Status, op)
	if err != nil {
		preview.Reason = err.Error()
		return preview, nil
	}
	preview.Allowed = true
	preview.ResultingStatus = next
	return preview, nil
}

// editQuestion loads the session, locates the question and runs the shared
// edit gates before delegating to mutate.
func (s *AuditService) editQuestion(ctx context.Context, p models.Principal, sessionID, questionID string, auditorSide bool, mutate func(*models.AuditQuestion)) (*models.AuditSession, error) {
	session, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	allowed := s.policy.CanEditAuditeeFields(p, session)
	if auditorSide {
		allowed = s.policy.CanEditAuditorFields(p, session)
	}
	if !allowed {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "role may not edit these fields")
	}
	if session.Status == models.StatusCompleted {
		return nil, appErrors.Clone(appErrors.ErrPrecondition, "completed audit is immutable")
	}
	question := session.Question(questionID)
	if question == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "question not found in this session")
	}

	mutate(question)

	if err := s.save(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// UpdateAuditeeFields writes self assessment, evidence and action plan on a
// single question.
func (s *AuditService) UpdateAuditeeFields(ctx context.Context, p models.Principal, sessionID, questionID string, req UpdateAuditeeFieldsRequest) (*models.AuditSession, error) {
	if req.SelfAssessment != nil && !models.ValidCompliance(*req.SelfAssessment) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid self assessment value")
	}
	return s.editQuestion(ctx, p, sessionID, questionID, false, func(q *models.AuditQuestion) {
		if req.SelfAssessment != nil {
			q.SelfAssessment = req.SelfAssessment
		}
		if req.Evidence != nil {
			q.Evidence = *req.Evidence
		}
		if req.EvidenceFileName != nil {
			q.EvidenceFileName = *req.EvidenceFileName
		}
		if req.ActionPlan != nil {
			q.ActionPlan = *req.ActionPlan
		}
	})
}

// UpdateAuditorFields writes the verdict, notes and action plan deadline on
// a single question.
func (s *AuditService) UpdateAuditorFields(ctx context.Context, p models.Principal, sessionID, questionID string, req UpdateAuditorFieldsRequest) (*models.AuditSession, error) {
	if req.Compliance != nil && !models.ValidCompliance(*req.Compliance) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid compliance value")
	}
	return s.editQuestion(ctx, p, sessionID, questionID, true, func(q *models.AuditQuestion) {
		if req.Compliance != nil {
			q.Compliance = req.Compliance
		}
		if req.AuditorNotes != nil {
			q.AuditorNotes = *req.AuditorNotes
		}
		if req.ActionPlanDeadline != nil {
			q.ActionPlanDeadline = req.ActionPlanDeadline
		}
	})
}

// ToggleCompliance advances a question verdict through the three-value
// cycle, starting at COMPLIANT for an unscored question.
func (s *AuditService) ToggleCompliance(ctx context.Context, p models.Principal, sessionID, questionID string) (*models.AuditSession, error) {
	return s.editQuestion(ctx, p, sessionID, questionID, true, func(q *models.AuditQuestion) {
		next := models.ComplianceCompliant
		if q.Compliance != nil {
			next = models.NextCompliance(*q.Compliance)
		}
		q.Compliance = &next
	})
}

// AttachEvidence records an uploaded evidence file reference on a question.
// The file itself is written by the handler through the storage layer.
func (s *AuditService) AttachEvidence(ctx context.Context, p models.Principal, sessionID, questionID, storedPath, originalName string) (*models.AuditSession, error) {
	return s.editQuestion(ctx, p, sessionID, questionID, false, func(q *models.AuditQuestion) {
		q.Evidence = storedPath
		q.EvidenceFileName = originalName
	})
}

// SetAnalysis stores AI report enrichment on a session. Enrichment applies
// to any state and does not touch the lifecycle.
func (s *AuditService) SetAnalysis(ctx context.Context, sessionID string, analysis *models.ReportAnalysis) (*models.AuditSession, error) {
	session, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	summary := analysis.Summary
	session.AISummary = &summary
	session.AIRecommendations = models.StringList(analysis.Recommendations)
	if err := s.save(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// ListOverdueVisible returns the principal's visible sessions whose planned
// date has passed without the audit starting. Advisory only.
func (s *AuditService) ListOverdueVisible(ctx context.Context, p models.Principal) ([]models.AuditSession, error) {
	scoped, visible := s.policy.ScopeFilter(p, models.AuditFilter{PageSize: 200})
	if !visible {
		return []models.AuditSession{}, nil
	}
	sessions, _, err := s.repo.List(ctx, scoped)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list audit sessions")
	}
	now := s.now()
	overdue := make([]models.AuditSession, 0)
	for _, session := range sessions {
		if session.Overdue(now) {
			overdue = append(overdue, session)
		}
	}
	return overdue, nil
}
