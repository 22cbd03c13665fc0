package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/weiawesome/wes-chat/pkg/response"
)

const (
	UserIDKey      = "user_id"
	EmailKey       = "email"
	UsernameKey    = "username"
	DisplayNameKey = "display_name"
	TokenKey       = "access_token"
	AuthHeaderKey  = "Authorization"
	BearerPrefix   = "Bearer "
)

// Principal is the caller identity resolved from a bearer token.
type Principal struct {
	UserID      string
	Username    string
	DisplayName string
	Email       string
}

// ValidateFunc resolves a raw bearer token into a principal.
type ValidateFunc func(ctx context.Context, token string) (*Principal, error)

// AuthMiddleware validates bearer tokens on protected routes.
type AuthMiddleware struct {
	validate ValidateFunc
}

// NewAuthMiddleware creates a new auth middleware.
func NewAuthMiddleware(validate ValidateFunc) *AuthMiddleware {
	return &AuthMiddleware{validate: validate}
}

// RequireAuth returns a Gin middleware that rejects requests without a
// valid bearer token.
func (m *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader(AuthHeaderKey)
		if authHeader == "" {
			response.Unauthorized(c, "missing authorization header")
			c.Abort()
			return
		}

		if !strings.HasPrefix(authHeader, BearerPrefix) {
			response.Unauthorized(c, "invalid authorization format")
			c.Abort()
			return
		}

		token := strings.TrimSpace(strings.TrimPrefix(authHeader, BearerPrefix))
		principal, err := m.validate(c.Request.Context(), token)
		if err != nil || principal == nil {
			response.Unauthorized(c, "invalid or expired token")
			c.Abort()
			return
		}

		c.Set(UserIDKey, principal.UserID)
		c.Set(UsernameKey, principal.Username)
		c.Set(DisplayNameKey, principal.DisplayName)
		c.Set(EmailKey, principal.Email)
		c.Set(TokenKey, token)

		c.Next()
	}
}

// GetUserID extracts user ID from Gin context.
func GetUserID(c *gin.Context) string {
	return c.GetString(UserIDKey)
}

// GetToken extracts the raw bearer token from Gin context.
func GetToken(c *gin.Context) string {
	return c.GetString(TokenKey)
}

// GetPrincipal rebuilds the principal stored by RequireAuth.
func GetPrincipal(c *gin.Context) (*Principal, bool) {
	userID := c.GetString(UserIDKey)
	if userID == "" {
		return nil, false
	}
	return &Principal{
		UserID:      userID,
		Username:    c.GetString(UsernameKey),
		DisplayName: c.GetString(DisplayNameKey),
		Email:       c.GetString(EmailKey),
	}, true
}
