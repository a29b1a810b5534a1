package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/ami-audit-api/internal/models"
)

// UnitRepository provides database access for organizational units.
type UnitRepository struct {
	db *sqlx.DB
}

// NewUnitRepository creates a new instance of UnitRepository.
func NewUnitRepository(db *sqlx.DB) *UnitRepository {
	return &UnitRepository{db: db}
}

// FindByID returns a unit by identifier.
func (r *UnitRepository) FindByID(ctx context.Context, id string) (*models.Unit, error) {
	const query = `SELECT id, code, name, type, faculty, head, created_at, updated_at FROM units WHERE id = $1 LIMIT 1`
	var unit models.Unit
	if err := r.db.GetContext(ctx, &unit, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find unit by id: %w", err)
	}
	return &unit, nil
}

// FindByCode returns a unit by its unique code.
func (r *UnitRepository) FindByCode(ctx context.Context, code string) (*models.Unit, error) {
	const query = `SELECT id, code, name, type, faculty, head, created_at, updated_at FROM units WHERE code = $1 LIMIT 1`
	var unit models.Unit
	if err := r.db.GetContext(ctx, &unit, query, code); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find unit by code: %w", err)
	}
	return &unit, nil
}

// FindByName returns a unit by name.
func (r *UnitRepository) FindByName(ctx context.Context, name string) (*models.Unit, error) {
	const query = `SELECT id, code, name, type, faculty, head, created_at, updated_at FROM units WHERE name = $1 LIMIT 1`
	var unit models.Unit
	if err := r.db.GetContext(ctx, &unit, query, name); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find unit by name: %w", err)
	}
	return &unit, nil
}

// List returns units based on filters with total count.
func (r *UnitRepository) List(ctx context.Context, filter models.UnitFilter) ([]models.Unit, int, error) {
	baseQuery := `FROM units WHERE 1=1`
	var conditions []string
	var args []interface{}

	if filter.Type != nil {
		conditions = append(conditions, fmt.Sprintf("type = $%d", len(args)+1))
		args = append(args, *filter.Type)
	}
	if filter.Faculty != "" {
		conditions = append(conditions, fmt.Sprintf("faculty = $%d", len(args)+1))
		args = append(args, filter.Faculty)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(code) LIKE $%d OR LOWER(name) LIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}

	if len(conditions) > 0 {
		baseQuery += " AND " + strings.Join(conditions, " AND ")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 50
	}
	offset := (page - 1) * pageSize

	listQuery := fmt.Sprintf("SELECT id, code, name, type, faculty, head, created_at, updated_at %s ORDER BY code ASC LIMIT %d OFFSET %d", baseQuery, pageSize, offset)

	var units []models.Unit
	if err := r.db.SelectContext(ctx, &units, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list units: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", baseQuery)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count units: %w", err)
	}

	return units, total, nil
}

// Create inserts a new unit record.
func (r *UnitRepository) Create(ctx context.Context, unit *models.Unit) error {
	if unit.ID == "" {
		unit.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if unit.CreatedAt.IsZero() {
		unit.CreatedAt = now
	}
	unit.UpdatedAt = now

	const query = `INSERT INTO units (id, code, name, type, faculty, head, created_at, updated_at) VALUES (:id, :code, :name, :type, :faculty, :head, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, unit); err != nil {
		return fmt.Errorf("create unit: %w", err)
	}
	return nil
}

// Update updates mutable fields of a unit.
func (r *UnitRepository) Update(ctx context.Context, unit *models.Unit) error {
	unit.UpdatedAt = time.Now().UTC()
	const query = `UPDATE units SET code = :code, name = :name, type = :type, faculty = :faculty, head = :head, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, unit); err != nil {
		return fmt.Errorf("update unit: %w", err)
	}
	return nil
}

// Delete removes a unit. Hard delete: audit sessions keep the denormalized
// department name, so no cascade is required.
func (r *UnitRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM units WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete unit: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
