package domain

import (
	"strings"
	"time"
)

// User is a registered account. PasswordHash never leaves the server.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	DisplayName  string    `json:"displayName"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Identity returns the verified identity of the user.
func (u *User) Identity() UserIdentity {
	return UserIdentity{
		ID:          u.ID,
		Username:    u.Username,
		DisplayName: u.DisplayName,
		Email:       u.Email,
	}
}

// UserIdentity is a verified caller identity.
type UserIdentity struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"displayName"`
	Email       string `json:"email"`
}

// NormalizeKey folds a username or email for case-insensitive comparison.
func NormalizeKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// RegisterRequest represents a registration request.
type RegisterRequest struct {
	Username    string `json:"username" validate:"required,max=50,excludes=@"`
	Email       string `json:"email" validate:"required,email,max=255"`
	DisplayName string `json:"displayName" validate:"max=100"`
	Password    string `json:"password" validate:"required,max=72"`
}

// LoginRequest represents a login request. Login is a username or email.
type LoginRequest struct {
	Login    string `json:"login" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// AuthResponse is returned by register and login.
type AuthResponse struct {
	User        UserIdentity `json:"user"`
	AccessToken string       `json:"accessToken"`
	ExpiresAt   time.Time    `json:"expiresAt"`
}
