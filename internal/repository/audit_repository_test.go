package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/ami-audit-api/internal/models"
)

func newAuditRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	sqlxDB := sqlx.NewDb(db, "postgres")
	return sqlxDB, mock, func() {
		sqlxDB.Close()
		db.Close()
	}
}

func auditRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "name", "department", "standard", "status", "date",
		"auditee_deadline", "auditor_deadline", "assigned_auditor_id",
		"questions", "ai_summary", "ai_recommendations", "version",
		"created_at", "updated_at",
	})
}

func TestAuditRepositoryFindByID(t *testing.T) {
	db, mock, cleanup := newAuditRepoMock(t)
	defer cleanup()

	repo := NewAuditRepository(db)
	now := time.Now()
	rows := auditRows().AddRow(
		"sess-1", "AMI TI 2026", "Teknik Informatika", "LAM_INFOKOM", "PLANNED", now,
		now.AddDate(0, 0, 14), now.AddDate(0, 0, 21), "auditor-1",
		[]byte(`[{"id":"q-1","category":"Tata Pamong","question_text":"Apakah dokumen mutu tersedia?"}]`),
		nil, []byte(`[]`), 3, now, now,
	)
	mock.ExpectQuery("SELECT (.+) FROM audit_sessions WHERE id = \\$1").
		WithArgs("sess-1").
		WillReturnRows(rows)

	session, err := repo.FindByID(context.Background(), "sess-1")
	require.NoError(t, err)
	assert.Equal(t, "AMI TI 2026", session.Name)
	assert.Equal(t, models.StatusPlanned, session.Status)
	assert.Equal(t, 3, session.Version)
	require.Len(t, session.Questions, 1)
	assert.Equal(t, "q-1", session.Questions[0].ID)
}

func TestAuditRepositoryFindByIDNotFound(t *testing.T) {
	db, mock, cleanup := newAuditRepoMock(t)
	defer cleanup()

	repo := NewAuditRepository(db)
	mock.ExpectQuery("SELECT (.+) FROM audit_sessions WHERE id = \\$1").
		WithArgs("missing").
		WillReturnRows(auditRows())

	_, err := repo.FindByID(context.Background(), "missing")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestAuditRepositoryListWithFilters(t *testing.T) {
	db, mock, cleanup := newAuditRepoMock(t)
	defer cleanup()

	repo := NewAuditRepository(db)
	now := time.Now()
	status := models.StatusInProgress

	rows := auditRows().AddRow(
		"sess-1", "AMI TI 2026", "Teknik Informatika", "LAM_INFOKOM", "IN_PROGRESS", now,
		now, now, nil, []byte(`[]`), nil, []byte(`[]`), 1, now, now,
	)
	mock.ExpectQuery("SELECT (.+) FROM audit_sessions WHERE 1=1 AND department = \\$1 AND status = \\$2").
		WithArgs("Teknik Informatika", status).
		WillReturnRows(rows)
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM audit_sessions WHERE 1=1 AND department = \\$1 AND status = \\$2").
		WithArgs("Teknik Informatika", status).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	sessions, total, err := repo.List(context.Background(), models.AuditFilter{
		Department: "Teknik Informatika",
		Status:     &status,
		Page:       1,
		PageSize:   20,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, sessions, 1)
	assert.Equal(t, "sess-1", sessions[0].ID)
}

func TestAuditRepositoryListAuditorScope(t *testing.T) {
	db, mock, cleanup := newAuditRepoMock(t)
	defer cleanup()

	repo := NewAuditRepository(db)
	mock.ExpectQuery("SELECT (.+) FROM audit_sessions WHERE 1=1 AND \\(assigned_auditor_id = \\$1 OR assigned_auditor_id IS NULL\\)").
		WithArgs("auditor-1").
		WillReturnRows(auditRows())
	mock.ExpectQuery("SELECT COUNT\\(\\*\\)").
		WithArgs("auditor-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	_, total, err := repo.List(context.Background(), models.AuditFilter{AssignedAuditorID: "auditor-1"})
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestAuditRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newAuditRepoMock(t)
	defer cleanup()

	repo := NewAuditRepository(db)
	mock.ExpectExec("INSERT INTO audit_sessions").
		WillReturnResult(sqlmock.NewResult(1, 1))

	session := &models.AuditSession{
		Name:       "AMI TI 2026",
		Department: "Teknik Informatika",
		Standard:   "LAM_INFOKOM",
		Status:     models.StatusPlanned,
		Date:       time.Now(),
		Questions: models.AuditQuestions{
			{ID: "q-1", Category: "Tata Pamong", QuestionText: "Apakah dokumen mutu tersedia?"},
		},
	}
	require.NoError(t, repo.Create(context.Background(), session))
	assert.NotEmpty(t, session.ID)
	assert.Equal(t, 1, session.Version)
}

func TestAuditRepositoryUpdateBumpsVersion(t *testing.T) {
	db, mock, cleanup := newAuditRepoMock(t)
	defer cleanup()

	repo := NewAuditRepository(db)
	mock.ExpectExec("UPDATE audit_sessions SET").
		WillReturnResult(sqlmock.NewResult(0, 1))

	session := &models.AuditSession{ID: "sess-1", Status: models.StatusInProgress, Version: 2}
	require.NoError(t, repo.Update(context.Background(), session))
	assert.Equal(t, 3, session.Version)
}

func TestAuditRepositoryUpdateVersionConflict(t *testing.T) {
	db, mock, cleanup := newAuditRepoMock(t)
	defer cleanup()

	repo := NewAuditRepository(db)
	mock.ExpectExec("UPDATE audit_sessions SET").
		WillReturnResult(sqlmock.NewResult(0, 0))

	session := &models.AuditSession{ID: "sess-1", Status: models.StatusInProgress, Version: 2}
	err := repo.Update(context.Background(), session)
	assert.ErrorIs(t, err, ErrVersionConflict)
	assert.Equal(t, 2, session.Version)
}

func TestAuditRepositoryDeleteMissing(t *testing.T) {
	db, mock, cleanup := newAuditRepoMock(t)
	defer cleanup()

	repo := NewAuditRepository(db)
	mock.ExpectExec("DELETE FROM audit_sessions WHERE id = \\$1").
		WithArgs("missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Delete(context.Background(), "missing")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestAuditRepositoryCountByStatus(t *testing.T) {
	db, mock, cleanup := newAuditRepoMock(t)
	defer cleanup()

	repo := NewAuditRepository(db)
	rows := sqlmock.NewRows([]string{"status", "count"}).
		AddRow("PLANNED", 4).
		AddRow("COMPLETED", 2)
	mock.ExpectQuery("SELECT status, COUNT\\(\\*\\) AS count FROM audit_sessions GROUP BY status").
		WillReturnRows(rows)

	counts, err := repo.CountByStatus(context.Background())
	require.NoError(t, err)
	require.Len(t, counts, 2)
	assert.Equal(t, models.StatusPlanned, counts[0].Status)
	assert.Equal(t, 4, counts[0].Count)
}

func TestAuditRepositoryListOverdue(t *testing.T) {
	db, mock, cleanup := newAuditRepoMock(t)
	defer cleanup()

	repo := NewAuditRepository(db)
	now := time.Now()
	rows := auditRows().AddRow(
		"sess-1", "AMI TI 2025", "Teknik Informatika", "LAM_INFOKOM", "PLANNED", now.AddDate(0, 0, -7),
		now, now, nil, []byte(`[]`), nil, []byte(`[]`), 1, now, now,
	)
	mock.ExpectQuery("SELECT (.+) FROM audit_sessions WHERE date < \\$1 AND status IN \\(\\$2, \\$3\\)").
		WithArgs(now, models.StatusPlanned, models.StatusPendingScheduling).
		WillReturnRows(rows)

	sessions, err := repo.ListOverdue(context.Background(), now)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.True(t, sessions[0].Overdue(now))
}
