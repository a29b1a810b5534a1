package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/ami-audit-api/internal/models"
	appErrors "github.com/noah-isme/ami-audit-api/pkg/errors"
)

type questionRepository interface {
	List(ctx context.Context, filter models.QuestionFilter) ([]models.MasterQuestion, int, error)
	ListByStandard(ctx context.Context, standard models.Standard) ([]models.MasterQuestion, error)
	FindByID(ctx context.Context, id string) (*models.MasterQuestion, error)
	Create(ctx context.Context, question *models.MasterQuestion) error
	Update(ctx context.Context, question *models.MasterQuestion) error
	Delete(ctx context.Context, id string) error
	CreateTrailRecord(ctx context.Context, record *models.TrailRecord) error
}

// CreateQuestionRequest represents payload for creating master questions.
type CreateQuestionRequest struct {
	Code     string          `json:"code" validate:"required"`
	Standard models.Standard `json:"standard" validate:"required"`
	Category string          `json:"category" validate:"required"`
	Text     string          `json:"text" validate:"required"`
}

// UpdateQuestionRequest represents payload for updating master questions.
type UpdateQuestionRequest struct {
	Code     string `json:"code" validate:"required"`
	Category string `json:"category" validate:"required"`
	Text     string `json:"text" validate:"required"`
}

// QuestionService manages the master question catalog. Edits here only
// affect future audits; sessions hold their own snapshot.
type QuestionService struct {
	repo      questionRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewQuestionService creates an instance of QuestionService.
func NewQuestionService(repo questionRepository, validate *validator.Validate, logger *zap.Logger) *QuestionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &QuestionService{repo: repo, validator: validate, logger: logger}
}

// List returns paginated master questions.
func (s *QuestionService) List(ctx context.Context, filter models.QuestionFilter) ([]models.MasterQuestion, *models.Pagination, error) {
	questions, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list questions")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	return questions, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}, nil
}

// ListByStandard returns the full instrument template of one standard in
// template order.
func (s *QuestionService) ListByStandard(ctx context.Context, standard models.Standard) ([]models.MasterQuestion, error) {
	if !models.ValidStandard(standard) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown accreditation standard")
	}
	questions, err := s.repo.ListByStandard(ctx, standard)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list questions")
	}
	return questions, nil
}

// Get returns a master question by ID.
func (s *QuestionService) Get(ctx context.Context, id string) (*models.MasterQuestion, error) {
	question, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "question not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load question")
	}
	return question, nil
}

// Create adds a master question to a standard's instrument.
func (s *QuestionService) Create(ctx context.Context, p models.Principal, req CreateQuestionRequest, meta models.LoginRequest) (*models.MasterQuestion, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid create question payload")
	}
	if !models.ValidStandard(req.Standard) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown accreditation standard")
	}

	question := &models.MasterQuestion{
		ID:       uuid.NewString(),
		Code:     strings.TrimSpace(req.Code),
		Standard: req.Standard,
		Category: strings.TrimSpace(req.Category),
		Text:     strings.TrimSpace(req.Text),
	}
	if err := s.repo.Create(ctx, question); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create question")
	}

	newPayload, _ := json.Marshal(map[string]interface{}{"id": question.ID, "code": question.Code, "standard": question.Standard})
	if err := s.repo.CreateTrailRecord(ctx, &models.TrailRecord{
		UserID:     &p.UserID,
		Action:     models.TrailActionQuestionCreate,
		Resource:   "master_questions",
		ResourceID: &question.ID,
		NewValues:  newPayload,
		IPAddress:  meta.IP,
		UserAgent:  meta.UserAgent,
	}); err != nil {
		s.logger.Warn("failed to record question create trail entry", zap.Error(err))
	}

	return question, nil
}

// Update modifies a master question. The standard is immutable; moving an
// item between instruments would silently reshape future snapshots.
func (s *QuestionService) Update(ctx context.Context, p models.Principal, id string, req UpdateQuestionRequest, meta models.LoginRequest) (*models.MasterQuestion, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid update question payload")
	}

	question, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	oldPayload, _ := json.Marshal(map[string]interface{}{"code": question.Code, "category": question.Category})

	question.Code = strings.TrimSpace(req.Code)
	question.Category = strings.TrimSpace(req.Category)
	question.Text = strings.TrimSpace(req.Text)

	if err := s.repo.Update(ctx, question); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update question")
	}

	newPayload, _ := json.Marshal(map[string]interface{}{"code": question.Code, "category": question.Category})
	if err := s.repo.CreateTrailRecord(ctx, &models.TrailRecord{
		UserID:     &p.UserID,
		Action:     models.TrailActionQuestionUpdate,
		Resource:   "master_questions",
		ResourceID: &question.ID,
		OldValues:  oldPayload,
		NewValues:  newPayload,
		IPAddress:  meta.IP,
		UserAgent:  meta.UserAgent,
	}); err != nil {
		s.logger.Warn("failed to record question update trail entry", zap.Error(err))
	}

	return question, nil
}

// Delete removes a master question. In-flight audit snapshots are not
// affected.
func (s *QuestionService) Delete(ctx context.Context, p models.Principal, id string, meta models.LoginRequest) error {
	question, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete question")
	}

	oldPayload, _ := json.Marshal(map[string]interface{}{"code": question.Code, "standard": question.Standard})
	if err := s.repo.CreateTrailRecord(ctx, &models.TrailRecord{
		UserID:     &p.UserID,
		Action:     models.TrailActionQuestionDelete,
		Resource:   "master_questions",
		ResourceID: &question.ID,
		OldValues:  oldPayload,
		IPAddress:  meta.IP,
		UserAgent:  meta.UserAgent,
	}); err != nil {
		s.logger.Warn("failed to record question delete trail entry", zap.Error(err))
	}

	return nil
}
