package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// LoginRequest holds credentials for authenticating a user.
type LoginRequest struct {
	Email     string `json:"email" validate:"required,email"`
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
	User         UserInfo  `json:"user"`
	IssuedAt     time.Time `json:"issued_at"`
}

// ChangePasswordRequest payload for updating password.
type ChangePasswordRequest struct {
	OldPassword string `json:"old_password" validate:"required"`
	NewPassword string `json:"new_password" validate:"required,min=8"`
}

// UserInfo describes the authenticated user in responses.
type UserInfo struct {
	ID         string     `json:"id"`
	EmployeeID string     `json:"employeeId"`
	Email      string     `json:"email"`
	Name       string     `json:"name"`
	Department Department `json:"department"`
	Role       UserRole   `json:"role"`
}

// JWTClaims represents the JWT payload for access tokens.
type JWTClaims struct {
	UserID     string     `json:"user_id"`
	EmployeeID string     `json:"employee_id"`
	Role       UserRole   `json:"role"`
	Department Department `json:"department"`
	Email      string     `json:"email"`
	Name       string     `json:"name"`
	jwt.RegisteredClaims
}

// Requester is the identity the access gate and workflow reason about.
type Requester struct {
	UserID     string
	EmployeeID string
	Role       UserRole
	Department Department
}

// Requester projects the token claims onto a Requester.
func (c *JWTClaims) Requester() Requester {
	if c == nil {
		return Requester{}
	}
	return Requester{UserID: c.UserID, EmployeeID: c.EmployeeID, Role: c.Role, Department: c.Department}
}
