package models

import "time"

// UserRole represents the available roles for the RBAC system.
type UserRole string

const (
	RoleSuperAdmin  UserRole = "SUPERADMIN"
	RoleAdmin       UserRole = "ADMIN"
	RoleAuditorLead UserRole = "AUDITOR_LEAD"
	RoleAuditor     UserRole = "AUDITOR"
	RoleDeptHead    UserRole = "DEPT_HEAD"
	RoleAuditee     UserRole = "AUDITEE"
)

// RequiresDepartment reports whether the role only makes sense when scoped
// to a department. Global roles (admins, auditors) leave department unset.
func (r UserRole) RequiresDepartment() bool {
	return r == RoleDeptHead || r == RoleAuditee
}

// AuditorClass reports whether the role carries auditor-side capabilities.
func (r UserRole) AuditorClass() bool {
	switch r {
	case RoleAuditor, RoleAuditorLead, RoleAdmin, RoleSuperAdmin:
		return true
	default:
		return false
	}
}

// User represents an application user stored in the users table.
type User struct {
	ID           string     `db:"id" json:"id"`
	Username     string     `db:"username" json:"username"`
	PasswordHash string     `db:"password_hash" json:"-"`
	FullName     string     `db:"full_name" json:"full_name"`
	Role         UserRole   `db:"role" json:"role"`
	Department   *string    `db:"department" json:"department,omitempty"`
	Active       bool       `db:"active" json:"active"`
	AvatarURL    string     `db:"avatar_url" json:"avatar_url"`
	LastLogin    *time.Time `db:"last_login" json:"last_login,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// UserFilter captures filtering criteria for listing users.
type UserFilter struct {
	Role       *UserRole
	Department string
	Active     *bool
	Search     string
	Page       int
	PageSize   int
	SortBy     string
	SortOrder  string
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
