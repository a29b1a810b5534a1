package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/ami-audit-api/internal/models"
	appErrors "github.com/noah-isme/ami-audit-api/pkg/errors"
)

type userRepository interface {
	List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	FindByUsername(ctx context.Context, username string) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
	Update(ctx context.Context, user *models.User) error
	Delete(ctx context.Context, id string) error
	UpdateAvatar(ctx context.Context, id, avatarURL string, updatedAt time.Time) error
	CreateTrailRecord(ctx context.Context, record *models.TrailRecord) error
}

// CreateUserRequest represents payload for creating users.
type CreateUserRequest struct {
	Username   string          `json:"username" validate:"required,min=3"`
	FullName   string          `json:"full_name" validate:"required"`
	Role       models.UserRole `json:"role" validate:"required,oneof=SUPERADMIN ADMIN AUDITOR_LEAD AUDITOR DEPT_HEAD AUDITEE"`
	Department *string         `json:"department,omitempty"`
	Active     bool            `json:"active"`
	Password   string          `json:"password" validate:"required,min=6"`
}

// UpdateUserRequest payload for updating users.
type UpdateUserRequest struct {
	FullName   string          `json:"full_name" validate:"required"`
	Role       models.UserRole `json:"role" validate:"required,oneof=SUPERADMIN ADMIN AUDITOR_LEAD AUDITOR DEPT_HEAD AUDITEE"`
	Department *string         `json:"department,omitempty"`
	Active     *bool           `json:"active"`
}

// UserService handles user management workflows.
type UserService struct {
	repo      userRepository
	policy    AuditPolicy
	validator *validator.Validate
	logger    *zap.Logger
}

// NewUserService creates an instance of UserService.
func NewUserService(repo userRepository, validate *validator.Validate, logger *zap.Logger) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &UserService{repo: repo, policy: NewAuditPolicy(), validator: validate, logger: logger}
}

// normalizeDepartment enforces the role/department coupling: department
// roles must carry one, global roles never do.
func normalizeDepartment(role models.UserRole, department *string) (*string, error) {
	if role.RequiresDepartment() {
		if department == nil || strings.TrimSpace(*department) == "" {
			return nil, appErrors.Clone(appErrors.ErrValidation, "role "+string(role)+" requires a department")
		}
		trimmed := strings.TrimSpace(*department)
		return &trimmed, nil
	}
	return nil, nil
}

// List returns paginated users and pagination metadata.
func (s *UserService) List(ctx context.Context, filter models.UserFilter) ([]models.User, *models.Pagination, error) {
	users, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list users")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}

	return users, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}, nil
}

// Get returns a user by ID.
func (s *UserService) Get(ctx context.Context, id string) (*models.User, error) {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	return user, nil
}

// Create adds a new user account.
func (s *UserService) Create(ctx context.Context, p models.Principal, req CreateUserRequest, meta models.LoginRequest) (*models.User, error) {
	if !s.policy.CanManageEntities(p) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "role may not manage user accounts")
	}
	if req.Role == models.RoleSuperAdmin && p.Role != models.RoleSuperAdmin {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only a superadmin may create superadmin accounts")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid create user payload")
	}
	department, err := normalizeDepartment(req.Role, req.Department)
	if err != nil {
		return nil, err
	}

	username := strings.ToLower(strings.TrimSpace(req.Username))
	if _, err := s.repo.FindByUsername(ctx, username); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "username already exists")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check username uniqueness")
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	user := &models.User{
		ID:           uuid.NewString(),
		Username:     username,
		FullName:     req.FullName,
		Role:         req.Role,
		Department:   department,
		Active:       req.Active,
		PasswordHash: string(passwordHash),
	}

	if err := s.repo.Create(ctx, user); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create user")
	}

	newPayload, _ := json.Marshal(map[string]interface{}{"id": user.ID, "username": user.Username, "role": user.Role})
	if err := s.repo.CreateTrailRecord(ctx, &models.TrailRecord{
		UserID:     &p.UserID,
		Action:     models.TrailActionUserCreate,
		Resource:   "users",
		ResourceID: &user.ID,
		NewValues:  newPayload,
		IPAddress:  meta.IP,
		UserAgent:  meta.UserAgent,
	}); err != nil {
		s.logger.Warn("failed to record user create trail entry", zap.Error(err))
	}

	return user, nil
}

// Update modifies the user attributes. SuperAdmin accounts can only be
// touched by another SuperAdmin.
func (s *UserService) Update(ctx context.Context, p models.Principal, id string, req UpdateUserRequest, meta models.LoginRequest) (*models.User, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid update payload")
	}

	user, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.policy.CanManageUser(p, user) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "this account is protected")
	}
	if req.Role == models.RoleSuperAdmin && p.Role != models.RoleSuperAdmin {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only a superadmin may grant the superadmin role")
	}
	department, err := normalizeDepartment(req.Role, req.Department)
	if err != nil {
		return nil, err
	}

	oldPayload, _ := json.Marshal(map[string]interface{}{"role": user.Role, "active": user.Active, "department": user.Department})

	user.FullName = req.FullName
	user.Role = req.Role
	user.Department = department
	if req.Active != nil {
		user.Active = *req.Active
	}

	if err := s.repo.Update(ctx, user); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update user")
	}

	newPayload, _ := json.Marshal(map[string]interface{}{"role": user.Role, "active": user.Active, "department": user.Department})
	if err := s.repo.CreateTrailRecord(ctx, &models.TrailRecord{
		UserID:     &p.UserID,
		Action:     models.TrailActionUserUpdate,
		Resource:   "users",
		ResourceID: &user.ID,
		OldValues:  oldPayload,
		NewValues:  newPayload,
		IPAddress:  meta.IP,
		UserAgent:  meta.UserAgent,
	}); err != nil {
		s.logger.Warn("failed to record user update trail entry", zap.Error(err))
	}

	return user, nil
}

// UpdateAvatar stores a new avatar URL on the user's own profile.
func (s *UserService) UpdateAvatar(ctx context.Context, userID, avatarURL string) error {
	if strings.TrimSpace(avatarURL) == "" {
		return appErrors.Clone(appErrors.ErrValidation, "avatar url is required")
	}
	if err := s.repo.UpdateAvatar(ctx, userID, avatarURL, time.Now().UTC()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update avatar")
	}
	return nil
}

// Delete performs a soft delete (deactivation) on a user.
func (s *UserService) Delete(ctx context.Context, p models.Principal, id string, meta models.LoginRequest) error {
	user, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if !s.policy.CanManageUser(p, user) {
		return appErrors.Clone(appErrors.ErrForbidden, "this account is protected")
	}
	if user.ID == p.UserID {
		return appErrors.Clone(appErrors.ErrValidation, "you cannot delete your own account")
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete user")
	}

	oldPayload, _ := json.Marshal(map[string]interface{}{"active": user.Active})
	newPayload, _ := json.Marshal(map[string]interface{}{"active": false})

	if err := s.repo.CreateTrailRecord(ctx, &models.TrailRecord{
		UserID:     &p.UserID,
		Action:     models.TrailActionUserDelete,
		Resource:   "users",
		ResourceID: &user.ID,
		OldValues:  oldPayload,
		NewValues:  newPayload,
		IPAddress:  meta.IP,
		UserAgent:  meta.UserAgent,
	}); err != nil {
		s.logger.Warn("failed to record user delete trail entry", zap.Error(err))
	}

	return nil
}
