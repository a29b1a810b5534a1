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

// ErrVersionConflict signals a lost optimistic-lock race on a session update.
var ErrVersionConflict = fmt.Errorf("audit session version conflict")

// AuditRepository provides database access for audit sessions. The question
// snapshot and AI recommendations live in JSONB columns; status+date updates
// go through a compare-and-swap on the version column so two concurrent
// transitions cannot interleave.
type AuditRepository struct {
	db *sqlx.DB
}

// NewAuditRepository creates a new instance of AuditRepository.
func NewAuditRepository(db *sqlx.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

const auditColumns = `id, name, department, standard, status, date, auditee_deadline, auditor_deadline, assigned_auditor_id, questions, ai_summary, ai_recommendations, version, created_at, updated_at`

// FindByID returns an audit session by identifier.
func (r *AuditRepository) FindByID(ctx context.Context, id string) (*models.AuditSession, error) {
	query := fmt.Sprintf(`SELECT %s FROM audit_sessions WHERE id = $1 LIMIT 1`, auditColumns)
	var session models.AuditSession
	if err := r.db.GetContext(ctx, &session, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find audit session by id: %w", err)
	}
	return &session, nil
}

// List returns audit sessions based on filters with total count.
func (r *AuditRepository) List(ctx context.Context, filter models.AuditFilter) ([]models.AuditSession, int, error) {
	baseQuery := `FROM audit_sessions WHERE 1=1`
	var conditions []string
	var args []interface{}

	if filter.Department != "" {
		conditions = append(conditions, fmt.Sprintf("department = $%d", len(args)+1))
		args = append(args, filter.Department)
	}
	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, *filter.Status)
	}
	if filter.Standard != nil {
		conditions = append(conditions, fmt.Sprintf("standard = $%d", len(args)+1))
		args = append(args, *filter.Standard)
	}
	if filter.AssignedAuditorID != "" {
		conditions = append(conditions, fmt.Sprintf("(assigned_auditor_id = $%d OR assigned_auditor_id IS NULL)", len(args)+1))
		args = append(args, filter.AssignedAuditorID)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(name) LIKE $%d OR LOWER(department) LIKE $%d)", len(args)+1, len(args)+1))
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
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	listQuery := fmt.Sprintf("SELECT %s %s ORDER BY date DESC LIMIT %d OFFSET %d", auditColumns, baseQuery, pageSize, offset)

	var sessions []models.AuditSession
	if err := r.db.SelectContext(ctx, &sessions, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list audit sessions: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", baseQuery)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count audit sessions: %w", err)
	}

	return sessions, total, nil
}

// ListByStatus returns all sessions currently in the given status.
func (r *AuditRepository) ListByStatus(ctx context.Context, status models.AuditStatus) ([]models.AuditSession, error) {
	query := fmt.Sprintf(`SELECT %s FROM audit_sessions WHERE status = $1 ORDER BY date ASC`, auditColumns)
	var sessions []models.AuditSession
	if err := r.db.SelectContext(ctx, &sessions, query, status); err != nil {
		return nil, fmt.Errorf("list audit sessions by status: %w", err)
	}
	return sessions, nil
}

// Create inserts a new audit session with its question snapshot in a single
// statement, so a failed creation never leaves a partial session behind.
func (r *AuditRepository) Create(ctx context.Context, session *models.AuditSession) error {
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	session.UpdatedAt = now
	if session.Version == 0 {
		session.Version = 1
	}

	const query = `INSERT INTO audit_sessions (id, name, department, standard, status, date, auditee_deadline, auditor_deadline, assigned_auditor_id, questions, ai_summary, ai_recommendations, version, created_at, updated_at) VALUES (:id, :name, :department, :standard, :status, :date, :auditee_deadline, :auditor_deadline, :assigned_auditor_id, :questions, :ai_summary, :ai_recommendations, :version, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, session); err != nil {
		return fmt.Errorf("create audit session: %w", err)
	}
	return nil
}

// Update persists the session with a compare-and-swap on version. Returns
// ErrVersionConflict when another writer committed first.
func (r *AuditRepository) Update(ctx context.Context, session *models.AuditSession) error {
	expected := session.Version
	session.Version = expected + 1
	session.UpdatedAt = time.Now().UTC()

	const query = `UPDATE audit_sessions SET name = :name, department = :department, standard = :standard, status = :status, date = :date, auditee_deadline = :auditee_deadline, auditor_deadline = :auditor_deadline, assigned_auditor_id = :assigned_auditor_id, questions = :questions, ai_summary = :ai_summary, ai_recommendations = :ai_recommendations, version = :version, updated_at = :updated_at WHERE id = :id AND version = :expected_version`

	arg := struct {
		models.AuditSession
		ExpectedVersion int `db:"expected_version"`
	}{AuditSession: *session, ExpectedVersion: expected}

	result, err := r.db.NamedExecContext(ctx, query, arg)
	if err != nil {
		session.Version = expected
		return fmt.Errorf("update audit session: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		session.Version = expected
		return fmt.Errorf("update audit session: %w", err)
	}
	if affected == 0 {
		session.Version = expected
		return ErrVersionConflict
	}
	return nil
}

// Delete removes an audit session.
func (r *AuditRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM audit_sessions WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete audit session: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// StatusCount is a grouped session count used by the dashboard.
type StatusCount struct {
	Status models.AuditStatus `db:"status" json:"status"`
	Count  int                `db:"count" json:"count"`
}

// DepartmentCount is a per-department session count used by the dashboard.
type DepartmentCount struct {
	Department string `db:"department" json:"department"`
	Count      int    `db:"count" json:"count"`
}

// CountByStatus returns session counts grouped by lifecycle status.
func (r *AuditRepository) CountByStatus(ctx context.Context) ([]StatusCount, error) {
	const query = `SELECT status, COUNT(*) AS count FROM audit_sessions GROUP BY status`
	var counts []StatusCount
	if err := r.db.SelectContext(ctx, &counts, query); err != nil {
		return nil, fmt.Errorf("count audit sessions by status: %w", err)
	}
	return counts, nil
}

// CountByDepartment returns session counts grouped by department.
func (r *AuditRepository) CountByDepartment(ctx context.Context) ([]DepartmentCount, error) {
	const query = `SELECT department, COUNT(*) AS count FROM audit_sessions GROUP BY department ORDER BY department ASC`
	var counts []DepartmentCount
	if err := r.db.SelectContext(ctx, &counts, query); err != nil {
		return nil, fmt.Errorf("count audit sessions by department: %w", err)
	}
	return counts, nil
}

// ListOverdue returns sessions whose scheduled date has passed while still
// awaiting confirmation or start.
func (r *AuditRepository) ListOverdue(ctx context.Context, now time.Time) ([]models.AuditSession, error) {
	query := fmt.Sprintf(`SELECT %s FROM audit_sessions WHERE date < $1 AND status IN ($2, $3) ORDER BY date ASC`, auditColumns)
	var sessions []models.AuditSession
	if err := r.db.SelectContext(ctx, &sessions, query, now, models.StatusPlanned, models.StatusPendingScheduling); err != nil {
		return nil, fmt.Errorf("list overdue audit sessions: %w", err)
	}
	return sessions, nil
}
