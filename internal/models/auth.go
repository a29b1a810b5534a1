package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// LoginRequest holds credentials for authenticating a user.
type LoginRequest struct {
	Username  string `json:"username" validate:"required"`
	Password  string `json:"password" validate:"required"`
	IP        string `json:"-"`
	UserAgent string `json:"-"`
}

// LoginResponse returns the issued tokens and user info.
type LoginResponse struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresIn    int64     `json:"expires_in"`
	User         UserInfo  `json:"user"`
	IssuedAt     time.Time `json:"issued_at"`
}

// RefreshTokenRequest exchanges a refresh token for a new access token.
type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
	IP           string `json:"-"`
	UserAgent    string `json:"-"`
}

// RefreshTokenResponse returns the refreshed tokens.
type RefreshTokenResponse struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresIn    int64     `json:"expires_in"`
	IssuedAt     time.Time `json:"issued_at"`
}

// ChangePasswordRequest payload for updating password.
type ChangePasswordRequest struct {
	OldPassword string `json:"old_password" validate:"required"`
	NewPassword string `json:"new_password" validate:"required,min=6"`
}

// UserInfo describes the authenticated user in responses.
type UserInfo struct {
	ID         string   `json:"id"`
	Username   string   `json:"username"`
	FullName   string   `json:"full_name"`
	Role       UserRole `json:"role"`
	Department *string  `json:"department,omitempty"`
}

// JWTClaims represents the JWT payload for access tokens. Department travels
// in the claims so the policy layer can scope visibility without a user
// lookup on every request.
type JWTClaims struct {
	UserID     string   `json:"user_id"`
	Role       UserRole `json:"role"`
	Username   string   `json:"username"`
	FullName   string   `json:"full_name"`
	Department *string  `json:"department,omitempty"`
	jwt.RegisteredClaims
}

// Principal is the acting identity the policy layer evaluates.
type Principal struct {
	UserID     string
	Role       UserRole
	Department *string
}

// Principal derives the policy principal from the claims.
func (c *JWTClaims) Principal() Principal {
	return Principal{UserID: c.UserID, Role: c.Role, Department: c.Department}
}
