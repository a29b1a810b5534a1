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

type unitRepository interface {
	List(ctx context.Context, filter models.UnitFilter) ([]models.Unit, int, error)
	FindByID(ctx context.Context, id string) (*models.Unit, error)
	FindByCode(ctx context.Context, code string) (*models.Unit, error)
	FindByName(ctx context.Context, name string) (*models.Unit, error)
	Create(ctx context.Context, unit *models.Unit) error
	Update(ctx context.Context, unit *models.Unit) error
	Delete(ctx context.Context, id string) error
	CreateTrailRecord(ctx context.Context, record *models.TrailRecord) error
}

// CreateUnitRequest represents payload for creating organizational units.
type CreateUnitRequest struct {
	Code    string          `json:"code" validate:"required"`
	Name    string          `json:"name" validate:"required"`
	Type    models.UnitType `json:"type" validate:"required,oneof=PROGRAM FACULTY DIRECTORATE"`
	Faculty string          `json:"faculty"`
	Head    string          `json:"head"`
}

// UpdateUnitRequest represents payload for updating organizational units.
type UpdateUnitRequest struct {
	Name    string          `json:"name" validate:"required"`
	Type    models.UnitType `json:"type" validate:"required,oneof=PROGRAM FACULTY DIRECTORATE"`
	Faculty string          `json:"faculty"`
	Head    string          `json:"head"`
}

// UnitService manages the organizational unit catalog.
type UnitService struct {
	repo      unitRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewUnitService creates an instance of UnitService.
func NewUnitService(repo unitRepository, validate *validator.Validate, logger *zap.Logger) *UnitService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &UnitService{repo: repo, validator: validate, logger: logger}
}

// List returns paginated units.
func (s *UnitService) List(ctx context.Context, filter models.UnitFilter) ([]models.Unit, *models.Pagination, error) {
	units, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list units")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	return units, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}, nil
}

// Get returns a unit by ID.
func (s *UnitService) Get(ctx context.Context, id string) (*models.Unit, error) {
	unit, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "unit not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load unit")
	}
	return unit, nil
}

// resolveFaculty normalizes the faculty reference. An empty value maps to
// the top-level marker; anything else must name an existing unit.
func (s *UnitService) resolveFaculty(ctx context.Context, faculty string) (string, error) {
	faculty = strings.TrimSpace(faculty)
	if faculty == "" || faculty == models.TopLevelFaculty {
		return models.TopLevelFaculty, nil
	}
	if _, err := s.repo.FindByName(ctx, faculty); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", appErrors.Clone(appErrors.ErrValidation, "faculty must be \"-\" or the name of an existing unit")
		}
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve faculty reference")
	}
	return faculty, nil
}

// Create adds a new unit. A program without a faculty is stored under the
// top-level marker.
func (s *UnitService) Create(ctx context.Context, p models.Principal, req CreateUnitRequest, meta models.LoginRequest) (*models.Unit, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid create unit payload")
	}

	code := strings.ToUpper(strings.TrimSpace(req.Code))
	if _, err := s.repo.FindByCode(ctx, code); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "unit code already exists")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check unit code uniqueness")
	}

	faculty, err := s.resolveFaculty(ctx, req.Faculty)
	if err != nil {
		return nil, err
	}

	unit := &models.Unit{
		ID:      uuid.NewString(),
		Code:    code,
		Name:    strings.TrimSpace(req.Name),
		Type:    req.Type,
		Faculty: faculty,
		Head:    strings.TrimSpace(req.Head),
	}
	if err := s.repo.Create(ctx, unit); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create unit")
	}

	newPayload, _ := json.Marshal(map[string]interface{}{"id": unit.ID, "code": unit.Code, "name": unit.Name})
	if err := s.repo.CreateTrailRecord(ctx, &models.TrailRecord{
		UserID:     &p.UserID,
		Action:     models.TrailActionUnitCreate,
		Resource:   "units",
		ResourceID: &unit.ID,
		NewValues:  newPayload,
		IPAddress:  meta.IP,
		UserAgent:  meta.UserAgent,
	}); err != nil {
		s.logger.Warn("failed to record unit create trail entry", zap.Error(err))
	}

	return unit, nil
}

// Update modifies a unit. The code is immutable once assigned.
func (s *UnitService) Update(ctx context.Context, p models.Principal, id string, req UpdateUnitRequest, meta models.LoginRequest) (*models.Unit, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid update unit payload")
	}

	unit, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	oldPayload, _ := json.Marshal(map[string]interface{}{"name": unit.Name, "type": unit.Type, "faculty": unit.Faculty})

	faculty, err := s.resolveFaculty(ctx, req.Faculty)
	if err != nil {
		return nil, err
	}

	unit.Name = strings.TrimSpace(req.Name)
	unit.Type = req.Type
	unit.Faculty = faculty
	unit.Head = strings.TrimSpace(req.Head)

	if err := s.repo.Update(ctx, unit); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update unit")
	}

	newPayload, _ := json.Marshal(map[string]interface{}{"name": unit.Name, "type": unit.Type, "faculty": unit.Faculty})
	if err := s.repo.CreateTrailRecord(ctx, &models.TrailRecord{
		UserID:     &p.UserID,
		Action:     models.TrailActionUnitUpdate,
		Resource:   "units",
		ResourceID: &unit.ID,
		OldValues:  oldPayload,
		NewValues:  newPayload,
		IPAddress:  meta.IP,
		UserAgent:  meta.UserAgent,
	}); err != nil {
		s.logger.Warn("failed to record unit update trail entry", zap.Error(err))
	}

	return unit, nil
}

// Delete removes a unit from the catalog. Existing audit sessions keep
// their denormalized department name.
func (s *UnitService) Delete(ctx context.Context, p models.Principal, id string, meta models.LoginRequest) error {
	unit, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "unit not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete unit")
	}

	oldPayload, _ := json.Marshal(map[string]interface{}{"code": unit.Code, "name": unit.Name})
	if err := s.repo.CreateTrailRecord(ctx, &models.TrailRecord{
		UserID:     &p.UserID,
		Action:     models.TrailActionUnitDelete,
		Resource:   "units",
		ResourceID: &unit.ID,
		OldValues:  oldPayload,
		IPAddress:  meta.IP,
		UserAgent:  meta.UserAgent,
	}); err != nil {
		s.logger.Warn("failed to record unit delete trail entry", zap.Error(err))
	}

	return nil
}
