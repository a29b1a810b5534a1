package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/ami-audit-api/internal/models"
)

// SettingsRepository provides access to the system settings singleton row.
type SettingsRepository struct {
	db *sqlx.DB
}

// NewSettingsRepository creates a new instance of SettingsRepository.
func NewSettingsRepository(db *sqlx.DB) *SettingsRepository {
	return &SettingsRepository{db: db}
}

// Get returns the current settings value.
func (r *SettingsRepository) Get(ctx context.Context) (*models.SystemSettings, error) {
	const query = `SELECT app_name, logo_url, default_standard, audit_period, updated_by, updated_at FROM system_settings LIMIT 1`
	var settings models.SystemSettings
	if err := r.db.GetContext(ctx, &settings, query); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("get system settings: %w", err)
	}
	return &settings, nil
}

// Replace overwrites the singleton row with the provided value.
func (r *SettingsRepository) Replace(ctx context.Context, settings *models.SystemSettings) error {
	settings.UpdatedAt = time.Now().UTC()
	const query = `UPDATE system_settings SET app_name = :app_name, logo_url = :logo_url, default_standard = :default_standard, audit_period = :audit_period, updated_by = :updated_by, updated_at = :updated_at`
	if _, err := r.db.NamedExecContext(ctx, query, settings); err != nil {
		return fmt.Errorf("replace system settings: %w", err)
	}
	return nil
}
