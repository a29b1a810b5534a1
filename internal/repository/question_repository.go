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

// QuestionRepository provides database access for master questions.
type QuestionRepository struct {
	db *sqlx.DB
}

// NewQuestionRepository creates a new instance of QuestionRepository.
func NewQuestionRepository(db *sqlx.DB) *QuestionRepository {
	return &QuestionRepository{db: db}
}

// FindByID returns a master question by identifier.
func (r *QuestionRepository) FindByID(ctx context.Context, id string) (*models.MasterQuestion, error) {
	const query = `SELECT id, code, standard, category, text, created_at, updated_at FROM master_questions WHERE id = $1 LIMIT 1`
	var question models.MasterQuestion
	if err := r.db.GetContext(ctx, &question, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find question by id: %w", err)
	}
	return &question, nil
}

// ListByStandard returns the full instrument for a standard in template
// order. Used at schedule time to snapshot questions into a session.
func (r *QuestionRepository) ListByStandard(ctx context.Context, standard models.Standard) ([]models.MasterQuestion, error) {
	const query = `SELECT id, code, standard, category, text, created_at, updated_at FROM master_questions WHERE standard = $1 ORDER BY code ASC`
	var questions []models.MasterQuestion
	if err := r.db.SelectContext(ctx, &questions, query, standard); err != nil {
		return nil, fmt.Errorf("list questions by standard: %w", err)
	}
	return questions, nil
}

// List returns master questions based on filters with total count.
func (r *QuestionRepository) List(ctx context.Context, filter models.QuestionFilter) ([]models.MasterQuestion, int, error) {
	baseQuery := `FROM master_questions WHERE 1=1`
	var conditions []string
	var args []interface{}

	if filter.Standard != nil {
		conditions = append(conditions, fmt.Sprintf("standard = $%d", len(args)+1))
		args = append(args, *filter.Standard)
	}
	if filter.Category != "" {
		conditions = append(conditions, fmt.Sprintf("category = $%d", len(args)+1))
		args = append(args, filter.Category)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(code) LIKE $%d OR LOWER(text) LIKE $%d)", len(args)+1, len(args)+1))
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
	if pageSize <= 0 || pageSize > 200 {
		pageSize = 50
	}
	offset := (page - 1) * pageSize

	listQuery := fmt.Sprintf("SELECT id, code, standard, category, text, created_at, updated_at %s ORDER BY standard ASC, code ASC LIMIT %d OFFSET %d", baseQuery, pageSize, offset)

	var questions []models.MasterQuestion
	if err := r.db.SelectContext(ctx, &questions, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list questions: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", baseQuery)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count questions: %w", err)
	}

	return questions, total, nil
}

// Create inserts a new master question.
func (r *QuestionRepository) Create(ctx context.Context, question *models.MasterQuestion) error {
	if question.ID == "" {
		question.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if question.CreatedAt.IsZero() {
		question.CreatedAt = now
	}
	question.UpdatedAt = now

	const query = `INSERT INTO master_questions (id, code, standard, category, text, created_at, updated_at) VALUES (:id, :code, :standard, :category, :text, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, question); err != nil {
		return fmt.Errorf("create question: %w", err)
	}
	return nil
}

// Update updates mutable fields of a master question. Existing audit
// sessions hold a snapshot and are unaffected.
func (r *QuestionRepository) Update(ctx context.Context, question *models.MasterQuestion) error {
	question.UpdatedAt = time.Now().UTC()
	const query = `UPDATE master_questions SET code = :code, standard = :standard, category = :category, text = :text, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, question); err != nil {
		return fmt.Errorf("update question: %w", err)
	}
	return nil
}

// Delete removes a master question.
func (r *QuestionRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM master_questions WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete question: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
