package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/ami-audit-api/internal/models"
)

type mockAuthRepo struct {
	userByUsername    *models.User
	refreshTokens     map[string]*models.RefreshToken
	trail             []*models.TrailRecord
	lastLoginUpdated  bool
	passwordUpdated   bool
	userTokensRevoked bool
}

func (m *mockAuthRepo) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	if m.userByUsername != nil && m.userByUsername.Username == username {
		return m.userByUsername, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockAuthRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	if m.userByUsername != nil && m.userByUsername.ID == id {
		return m.userByUsername, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockAuthRepo) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	m.lastLoginUpdated = true
	return nil
}

func (m *mockAuthRepo) UpdatePassword(ctx context.Context, id, passwordHash string, updatedAt time.Time) error {
	m.passwordUpdated = true
	if m.userByUsername != nil && m.userByUsername.ID == id {
		m.userByUsername.PasswordHash = passwordHash
	}
	return nil
}

func (m *mockAuthRepo) RevokeUserRefreshTokens(ctx context.Context, userID string) error {
	m.userTokensRevoked = true
	return nil
}

func (m *mockAuthRepo) CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	if m.refreshTokens == nil {
		m.refreshTokens = make(map[string]*models.RefreshToken)
	}
	m.refreshTokens[token.Token] = token
	return nil
}

func (m *mockAuthRepo) FindRefreshToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	if stored, ok := m.refreshTokens[token]; ok {
		return stored, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockAuthRepo) RevokeRefreshToken(ctx context.Context, id string, revokedAt time.Time) error {
	for _, token := range m.refreshTokens {
		if token.ID == id {
			token.Revoked = true
			token.RevokedAt = &revokedAt
		}
	}
	return nil
}

func (m *mockAuthRepo) CreateTrailRecord(ctx context.Context, record *models.TrailRecord) error {
	m.trail = append(m.trail, record)
	return nil
}

func testAuthConfig() AuthConfig {
	return AuthConfig{
		AccessTokenSecret:  "test-secret",
		AccessTokenExpiry:  15 * time.Minute,
		RefreshTokenExpiry: 24 * time.Hour,
		Issuer:             "ami-audit-api",
	}
}

func seedAuthUser(t *testing.T, repo *mockAuthRepo) *models.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("secret1"), bcrypt.MinCost)
	require.NoError(t, err)
	dept := "Teknik Informatika"
	user := &models.User{
		ID:           "u-1",
		Username:     "kaprodi.ti",
		PasswordHash: string(hash),
		FullName:     "Kaprodi TI",
		Role:         models.RoleDeptHead,
		Department:   &dept,
		Active:       true,
	}
	repo.userByUsername = user
	return user
}

func TestAuthServiceLoginSuccess(t *testing.T) {
	repo := &mockAuthRepo{}
	seedAuthUser(t, repo)
	svc := NewAuthService(repo, validator.New(), zap.NewNop(), testAuthConfig())

	resp, err := svc.Login(context.Background(), models.LoginRequest{Username: "kaprodi.ti", Password: "secret1"})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.AccessToken)
	assert.NotEmpty(t, resp.RefreshToken)
	assert.Equal(t, models.RoleDeptHead, resp.User.Role)
	require.NotNil(t, resp.User.Department)
	assert.Equal(t, "Teknik Informatika", *resp.User.Department)
	assert.True(t, repo.lastLoginUpdated)
	assert.NotEmpty(t, repo.trail)
}

func TestAuthServiceLoginWrongPassword(t *testing.T) {
	repo := &mockAuthRepo{}
	seedAuthUser(t, repo)
	svc := NewAuthService(repo, validator.New(), zap.NewNop(), testAuthConfig())

	_, err := svc.Login(context.Background(), models.LoginRequest{Username: "kaprodi.ti", Password: "wrong"})
	require.Error(t, err)
}

func TestAuthServiceLoginInactive(t *testing.T) {
	repo := &mockAuthRepo{}
	user := seedAuthUser(t, repo)
	user.Active = false
	svc := NewAuthService(repo, validator.New(), zap.NewNop(), testAuthConfig())

	_, err := svc.Login(context.Background(), models.LoginRequest{Username: "kaprodi.ti", Password: "secret1"})
	require.Error(t, err)
}

func TestAuthServiceRefreshTokenRotates(t *testing.T) {
	repo := &mockAuthRepo{}
	seedAuthUser(t, repo)
	svc := NewAuthService(repo, validator.New(), zap.NewNop(), testAuthConfig())

	login, err := svc.Login(context.Background(), models.LoginRequest{Username: "kaprodi.ti", Password: "secret1"})
	require.NoError(t, err)

	refresh, err := svc.RefreshToken(context.Background(), models.RefreshTokenRequest{RefreshToken: login.RefreshToken})
	require.NoError(t, err)
	assert.NotEqual(t, login.RefreshToken, refresh.RefreshToken)
	assert.True(t, repo.refreshTokens[login.RefreshToken].Revoked, "used token is revoked")

	_, err = svc.RefreshToken(context.Background(), models.RefreshTokenRequest{RefreshToken: login.RefreshToken})
	require.Error(t, err, "revoked token cannot be reused")
}

func TestAuthServiceChangePassword(t *testing.T) {
	repo := &mockAuthRepo{}
	seedAuthUser(t, repo)
	svc := NewAuthService(repo, validator.New(), zap.NewNop(), testAuthConfig())

	err := svc.ChangePassword(context.Background(), "u-1", models.ChangePasswordRequest{OldPassword: "secret1", NewPassword: "newsecret"})
	require.NoError(t, err)
	assert.True(t, repo.passwordUpdated)
	assert.True(t, repo.userTokensRevoked)

	err = svc.ChangePassword(context.Background(), "u-1", models.ChangePasswordRequest{OldPassword: "secret1", NewPassword: "another1"})
	require.Error(t, err, "old password no longer matches")
}

func TestValidateTokenRoundTrip(t *testing.T) {
	repo := &mockAuthRepo{}
	seedAuthUser(t, repo)
	svc := NewAuthService(repo, validator.New(), zap.NewNop(), testAuthConfig())

	login, err := svc.Login(context.Background(), models.LoginRequest{Username: "kaprodi.ti", Password: "secret1"})
	require.NoError(t, err)

	claims, err := svc.ValidateToken(login.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "u-1", claims.UserID)
	assert.Equal(t, models.RoleDeptHead, claims.Role)
	require.NotNil(t, claims.Department)
	assert.Equal(t, "Teknik Informatika", *claims.Department)

	p := claims.Principal()
	assert.Equal(t, "u-1", p.UserID)

	_, err = svc.ValidateToken(login.AccessToken + "x")
	require.Error(t, err)
}
