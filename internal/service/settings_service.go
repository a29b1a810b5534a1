package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/ami-audit-api/internal/models"
	appErrors "github.com/noah-isme/ami-audit-api/pkg/errors"
)

type settingsRepository interface {
	Get(ctx context.Context) (*models.SystemSettings, error)
	Replace(ctx context.Context, settings *models.SystemSettings) error
	CreateTrailRecord(ctx context.Context, record *models.TrailRecord) error
}

// UpdateSettingsRequest replaces the settings singleton in full.
type UpdateSettingsRequest struct {
	AppName         string          `json:"app_name" validate:"required"`
	LogoURL         string          `json:"logo_url"`
	DefaultStandard models.Standard `json:"default_standard" validate:"required"`
	AuditPeriod     string          `json:"audit_period" validate:"required"`
}

// SettingsService manages the system settings singleton.
type SettingsService struct {
	repo      settingsRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewSettingsService creates an instance of SettingsService.
func NewSettingsService(repo settingsRepository, validate *validator.Validate, logger *zap.Logger) *SettingsService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &SettingsService{repo: repo, validator: validate, logger: logger}
}

// Get returns the current settings.
func (s *SettingsService) Get(ctx context.Context) (*models.SystemSettings, error) {
	settings, err := s.repo.Get(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "settings not initialized")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load settings")
	}
	return settings, nil
}

// Update replaces the settings wholesale.
func (s *SettingsService) Update(ctx context.Context, p models.Principal, req UpdateSettingsRequest, meta models.LoginRequest) (*models.SystemSettings, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid settings payload")
	}
	if !models.ValidStandard(req.DefaultStandard) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown accreditation standard")
	}

	current, err := s.Get(ctx)
	if err != nil {
		return nil, err
	}
	oldPayload, _ := json.Marshal(current)

	settings := &models.SystemSettings{
		AppName:         req.AppName,
		LogoURL:         req.LogoURL,
		DefaultStandard: req.DefaultStandard,
		AuditPeriod:     req.AuditPeriod,
		UpdatedBy:       &p.UserID,
		UpdatedAt:       time.Now().UTC(),
	}
	if err := s.repo.Replace(ctx, settings); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update settings")
	}

	newPayload, _ := json.Marshal(settings)
	if err := s.repo.CreateTrailRecord(ctx, &models.TrailRecord{
		UserID:    &p.UserID,
		Action:    models.TrailActionSettingsUpdate,
		Resource:  "settings",
		OldValues: oldPayload,
		NewValues: newPayload,
		IPAddress: meta.IP,
		UserAgent: meta.UserAgent,
	}); err != nil {
		s.logger.Warn("failed to record settings update trail entry", zap.Error(err))
	}

	return settings, nil
}
