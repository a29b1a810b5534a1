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

func newUserRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	sqlxDB := sqlx.NewDb(db, "postgres")
	return sqlxDB, mock, func() {
		sqlxDB.Close()
		db.Close()
	}
}

func userRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "username", "password_hash", "full_name", "role", "department",
		"active", "avatar_url", "last_login", "created_at", "updated_at",
	})
}

func TestUserRepositoryFindByUsername(t *testing.T) {
	db, mock, cleanup := newUserRepoMock(t)
	defer cleanup()

	repo := NewUserRepository(db)
	now := time.Now()
	rows := userRows().AddRow(
		"u-1", "kaprodi.ti", "hash", "Kepala Prodi TI", "DEPT_HEAD", "Teknik Informatika",
		true, "", nil, now, now,
	)
	mock.ExpectQuery("SELECT (.+) FROM users WHERE username = \\$1").
		WithArgs("kaprodi.ti").
		WillReturnRows(rows)

	user, err := repo.FindByUsername(context.Background(), "kaprodi.ti")
	require.NoError(t, err)
	assert.Equal(t, "u-1", user.ID)
	assert.Equal(t, models.RoleDeptHead, user.Role)
	require.NotNil(t, user.Department)
	assert.Equal(t, "Teknik Informatika", *user.Department)
}

func TestUserRepositoryFindByIDNotFound(t *testing.T) {
	db, mock, cleanup := newUserRepoMock(t)
	defer cleanup()

	repo := NewUserRepository(db)
	mock.ExpectQuery("SELECT (.+) FROM users WHERE id = \\$1").
		WithArgs("missing").
		WillReturnRows(userRows())

	_, err := repo.FindByID(context.Background(), "missing")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestUserRepositoryListByDepartmentAndRoles(t *testing.T) {
	db, mock, cleanup := newUserRepoMock(t)
	defer cleanup()

	repo := NewUserRepository(db)
	now := time.Now()
	rows := userRows().AddRow(
		"u-1", "kaprodi.ti", "hash", "Kepala Prodi TI", "DEPT_HEAD", "Teknik Informatika",
		true, "", nil, now, now,
	)
	mock.ExpectQuery("SELECT (.+) FROM users WHERE department = \\$1 AND active = TRUE AND role IN \\(\\$2, \\$3\\)").
		WithArgs("Teknik Informatika", models.RoleDeptHead, models.RoleAuditee).
		WillReturnRows(rows)

	users, err := repo.ListByDepartmentAndRoles(context.Background(), "Teknik Informatika", []models.UserRole{models.RoleDeptHead, models.RoleAuditee})
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "u-1", users[0].ID)
}

func TestUserRepositoryListByDepartmentEmptyRoles(t *testing.T) {
	db, _, cleanup := newUserRepoMock(t)
	defer cleanup()

	repo := NewUserRepository(db)
	users, err := repo.ListByDepartmentAndRoles(context.Background(), "Teknik Informatika", nil)
	require.NoError(t, err)
	assert.Nil(t, users)
}

func TestUserRepositoryListWithFilters(t *testing.T) {
	db, mock, cleanup := newUserRepoMock(t)
	defer cleanup()

	repo := NewUserRepository(db)
	role := models.RoleAuditor
	active := true
	now := time.Now()

	rows := userRows().AddRow(
		"u-2", "auditor.satu", "hash", "Auditor Satu", "AUDITOR", nil,
		true, "", nil, now, now,
	)
	mock.ExpectQuery("SELECT (.+) FROM users WHERE 1=1 AND role = \\$1 AND active = \\$2").
		WithArgs(role, active).
		WillReturnRows(rows)
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM users WHERE 1=1 AND role = \\$1 AND active = \\$2").
		WithArgs(role, active).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	users, total, err := repo.List(context.Background(), models.UserFilter{Role: &role, Active: &active})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, users, 1)
	assert.Equal(t, "auditor.satu", users[0].Username)
}

func TestUserRepositoryCreateAssignsID(t *testing.T) {
	db, mock, cleanup := newUserRepoMock(t)
	defer cleanup()

	repo := NewUserRepository(db)
	mock.ExpectExec("INSERT INTO users").
		WillReturnResult(sqlmock.NewResult(1, 1))

	user := &models.User{
		Username:     "auditor.baru",
		PasswordHash: "hash",
		FullName:     "Auditor Baru",
		Role:         models.RoleAuditor,
		Active:       true,
	}
	require.NoError(t, repo.Create(context.Background(), user))
	assert.NotEmpty(t, user.ID)
	assert.False(t, user.CreatedAt.IsZero())
}

func TestUserRepositoryDeleteMarksInactive(t *testing.T) {
	db, mock, cleanup := newUserRepoMock(t)
	defer cleanup()

	repo := NewUserRepository(db)
	mock.ExpectExec("UPDATE users SET active = FALSE").
		WithArgs("u-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Delete(context.Background(), "u-1"))
}

func TestUserRepositoryRefreshTokenRoundTrip(t *testing.T) {
	db, mock, cleanup := newUserRepoMock(t)
	defer cleanup()

	repo := NewUserRepository(db)
	mock.ExpectExec("INSERT INTO refresh_tokens").
		WillReturnResult(sqlmock.NewResult(1, 1))

	token := &models.RefreshToken{UserID: "u-1", Token: "tok-1", ExpiresAt: time.Now().Add(time.Hour)}
	require.NoError(t, repo.CreateRefreshToken(context.Background(), token))
	assert.NotEmpty(t, token.ID)

	rows := sqlmock.NewRows([]string{"id", "user_id", "token", "expires_at", "created_at", "revoked", "revoked_at", "ip_address", "user_agent"}).
		AddRow(token.ID, "u-1", "tok-1", token.ExpiresAt, token.CreatedAt, false, nil, "", "")
	mock.ExpectQuery("SELECT (.+) FROM refresh_tokens WHERE token = \\$1").
		WithArgs("tok-1").
		WillReturnRows(rows)

	found, err := repo.FindRefreshToken(context.Background(), "tok-1")
	require.NoError(t, err)
	assert.Equal(t, "u-1", found.UserID)
	assert.False(t, found.Revoked)
}

func TestUserRepositoryRevokeUserRefreshTokens(t *testing.T) {
	db, mock, cleanup := newUserRepoMock(t)
	defer cleanup()

	repo := NewUserRepository(db)
	mock.ExpectExec("UPDATE refresh_tokens SET revoked = TRUE").
		WithArgs("u-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 3))

	require.NoError(t, repo.RevokeUserRefreshTokens(context.Background(), "u-1"))
}

func TestUserRepositoryCreateTrailRecord(t *testing.T) {
	db, mock, cleanup := newUserRepoMock(t)
	defer cleanup()

	repo := NewUserRepository(db)
	mock.ExpectExec("INSERT INTO audit_trail").
		WillReturnResult(sqlmock.NewResult(1, 1))

	actor := "u-1"
	record := &models.TrailRecord{UserID: &actor, Action: "LOGIN", Resource: "auth"}
	require.NoError(t, repo.CreateTrailRecord(context.Background(), record))
	assert.NotEmpty(t, record.ID)
}
