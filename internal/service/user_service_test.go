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

	"github.com/noah-isme/ami-audit-api/internal/models"
)

type mockUserRepo struct {
	users     map[string]*models.User
	listUsers []models.User
	listCount int
	trail     []*models.TrailRecord
	avatars   map[string]string
}

func (m *mockUserRepo) List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error) {
	return m.listUsers, m.listCount, nil
}

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	if u, ok := m.users[id]; ok {
		copy := *u
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockUserRepo) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	for _, u := range m.users {
		if u.Username == username {
			copy := *u
			return &copy, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockUserRepo) Create(ctx context.Context, user *models.User) error {
	if m.users == nil {
		m.users = make(map[string]*models.User)
	}
	copy := *user
	m.users[user.ID] = &copy
	return nil
}

func (m *mockUserRepo) Update(ctx context.Context, user *models.User) error {
	copy := *user
	m.users[user.ID] = &copy
	return nil
}

func (m *mockUserRepo) Delete(ctx context.Context, id string) error {
	if user, ok := m.users[id]; ok {
		user.Active = false
		return nil
	}
	return sql.ErrNoRows
}

func (m *mockUserRepo) UpdateAvatar(ctx context.Context, id, avatarURL string, updatedAt time.Time) error {
	if _, ok := m.users[id]; !ok {
		return sql.ErrNoRows
	}
	if m.avatars == nil {
		m.avatars = make(map[string]string)
	}
	m.avatars[id] = avatarURL
	return nil
}

func (m *mockUserRepo) CreateTrailRecord(ctx context.Context, record *models.TrailRecord) error {
	m.trail = append(m.trail, record)
	return nil
}

func TestUserServiceList(t *testing.T) {
	repo := &mockUserRepo{listUsers: []models.User{{ID: "1", Username: "budi"}}, listCount: 1}
	svc := NewUserService(repo, validator.New(), zap.NewNop())
	users, pagination, err := svc.List(context.Background(), models.UserFilter{Page: 1, PageSize: 10})
	require.NoError(t, err)
	assert.Len(t, users, 1)
	assert.Equal(t, 1, pagination.TotalCount)
}

func TestUserServiceCreateNormalizesUsername(t *testing.T) {
	repo := &mockUserRepo{users: make(map[string]*models.User)}
	svc := NewUserService(repo, validator.New(), zap.NewNop())

	user, err := svc.Create(context.Background(), principal(models.RoleAdmin, ""), CreateUserRequest{
		Username: "  BUDI.SANTOSO ",
		FullName: "Budi Santoso",
		Role:     models.RoleAuditor,
		Active:   true,
		Password: "secret1",
	}, models.LoginRequest{})
	require.NoError(t, err)
	assert.Equal(t, "budi.santoso", user.Username)
	assert.Nil(t, user.Department, "global roles carry no department")
	assert.NotEmpty(t, repo.trail)
}

func TestUserServiceCreateRequiresDepartmentForScopedRoles(t *testing.T) {
	repo := &mockUserRepo{users: make(map[string]*models.User)}
	svc := NewUserService(repo, validator.New(), zap.NewNop())
	admin := principal(models.RoleAdmin, "")

	_, err := svc.Create(context.Background(), admin, CreateUserRequest{
		Username: "kaprodi", FullName: "Kaprodi TI", Role: models.RoleDeptHead, Password: "secret1",
	}, models.LoginRequest{})
	require.Error(t, err)

	dept := "Teknik Informatika"
	user, err := svc.Create(context.Background(), admin, CreateUserRequest{
		Username: "kaprodi", FullName: "Kaprodi TI", Role: models.RoleDeptHead, Department: &dept, Password: "secret1", Active: true,
	}, models.LoginRequest{})
	require.NoError(t, err)
	require.NotNil(t, user.Department)
	assert.Equal(t, dept, *user.Department)
}

func TestUserServiceCreateDuplicateUsername(t *testing.T) {
	repo := &mockUserRepo{users: map[string]*models.User{
		"1": {ID: "1", Username: "budi", Role: models.RoleAuditor},
	}}
	svc := NewUserService(repo, validator.New(), zap.NewNop())

	_, err := svc.Create(context.Background(), principal(models.RoleAdmin, ""), CreateUserRequest{
		Username: "budi", FullName: "Budi", Role: models.RoleAuditor, Password: "secret1",
	}, models.LoginRequest{})
	require.Error(t, err)
}

func TestUserServiceCreateSuperAdminRestricted(t *testing.T) {
	repo := &mockUserRepo{users: make(map[string]*models.User)}
	svc := NewUserService(repo, validator.New(), zap.NewNop())

	_, err := svc.Create(context.Background(), principal(models.RoleAdmin, ""), CreateUserRequest{
		Username: "root2", FullName: "Root", Role: models.RoleSuperAdmin, Password: "secret1",
	}, models.LoginRequest{})
	require.Error(t, err)

	_, err = svc.Create(context.Background(), principal(models.RoleSuperAdmin, ""), CreateUserRequest{
		Username: "root2", FullName: "Root", Role: models.RoleSuperAdmin, Password: "secret1", Active: true,
	}, models.LoginRequest{})
	require.NoError(t, err)
}

func TestUserServiceUpdateProtectedAccount(t *testing.T) {
	repo := &mockUserRepo{users: map[string]*models.User{
		"root": {ID: "root", Username: "root", Role: models.RoleSuperAdmin, Active: true},
	}}
	svc := NewUserService(repo, validator.New(), zap.NewNop())

	_, err := svc.Update(context.Background(), principal(models.RoleAdmin, ""), "root", UpdateUserRequest{
		FullName: "Renamed", Role: models.RoleSuperAdmin,
	}, models.LoginRequest{})
	require.Error(t, err)

	user, err := svc.Update(context.Background(), principal(models.RoleSuperAdmin, ""), "root", UpdateUserRequest{
		FullName: "Renamed", Role: models.RoleSuperAdmin,
	}, models.LoginRequest{})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", user.FullName)
}

func TestUserServiceUpdateClearsDepartmentOnGlobalRole(t *testing.T) {
	dept := "Teknik Informatika"
	repo := &mockUserRepo{users: map[string]*models.User{
		"1": {ID: "1", Username: "kaprodi", Role: models.RoleDeptHead, Department: &dept, Active: true},
	}}
	svc := NewUserService(repo, validator.New(), zap.NewNop())

	user, err := svc.Update(context.Background(), principal(models.RoleAdmin, ""), "1", UpdateUserRequest{
		FullName: "Kaprodi", Role: models.RoleAuditor,
	}, models.LoginRequest{})
	require.NoError(t, err)
	assert.Nil(t, user.Department)
}

func TestUserServiceDelete(t *testing.T) {
	repo := &mockUserRepo{users: map[string]*models.User{
		"1": {ID: "1", Username: "budi", Role: models.RoleAuditor, Active: true},
	}}
	svc := NewUserService(repo, validator.New(), zap.NewNop())

	err := svc.Delete(context.Background(), principal(models.RoleAdmin, ""), "1", models.LoginRequest{})
	require.NoError(t, err)
	assert.False(t, repo.users["1"].Active)
	assert.NotEmpty(t, repo.trail)
}

func TestUserServiceDeleteSelfRejected(t *testing.T) {
	repo := &mockUserRepo{users: map[string]*models.User{
		"actor-1": {ID: "actor-1", Username: "admin", Role: models.RoleAdmin, Active: true},
	}}
	svc := NewUserService(repo, validator.New(), zap.NewNop())

	err := svc.Delete(context.Background(), principal(models.RoleAdmin, ""), "actor-1", models.LoginRequest{})
	require.Error(t, err)
	assert.True(t, repo.users["actor-1"].Active)
}

func TestUserServiceUpdateAvatar(t *testing.T) {
	repo := &mockUserRepo{users: map[string]*models.User{
		"1": {ID: "1", Username: "budi", Active: true},
	}}
	svc := NewUserService(repo, validator.New(), zap.NewNop())

	require.NoError(t, svc.UpdateAvatar(context.Background(), "1", "/avatars/budi.png"))
	assert.Equal(t, "/avatars/budi.png", repo.avatars["1"])

	assert.Error(t, svc.UpdateAvatar(context.Background(), "1", "  "))
}
