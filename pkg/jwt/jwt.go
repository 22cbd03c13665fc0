package jwt

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
	ErrRevokedToken = errors.New("token has been revoked")
	ErrWeakSecret   = errors.New("jwt secret must be at least 32 bytes")
)

const minSecretLength = 32

// Claims represents the session token claim set.
type Claims struct {
	jwt.RegisteredClaims
	UserID      string `json:"user_id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
}

// Subject is the identity a token is issued for.
type Subject struct {
	UserID      string
	Username    string
	DisplayName string
	Email       string
}

// Config holds token signing configuration.
type Config struct {
	Secret string        `mapstructure:"secret"`
	Issuer string        `mapstructure:"issuer"`
	TTL    time.Duration `mapstructure:"ttl"`
}

// Option customizes a Manager.
type Option func(*Manager)

// WithClock replaces the time source used for issuing and validating tokens.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// Manager signs and validates HS256 session tokens and keeps an in-memory
// revocation list keyed by token id.
type Manager struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time

	revoked map[string]time.Time // jti -> token expiry
	mu      sync.RWMutex
}

// NewManager creates a new JWT manager.
func NewManager(cfg Config, opts ...Option) (*Manager, error) {
	if len(cfg.Secret) < minSecretLength {
		return nil, ErrWeakSecret
	}
	if cfg.TTL <= 0 {
		return nil, fmt.Errorf("jwt ttl must be positive, got %s", cfg.TTL)
	}

	m := &Manager{
		secret:  []byte(cfg.Secret),
		issuer:  cfg.Issuer,
		ttl:     cfg.TTL,
		now:     time.Now,
		revoked: make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Issue signs a token for the subject. The returned expiry is the exact
// instant after which the token stops validating.
func (m *Manager) Issue(sub Subject) (string, time.Time, error) {
	now := m.now()
	expiresAt := jwt.NewNumericDate(now.Add(m.ttl))

	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Issuer:    m.issuer,
			Subject:   sub.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: expiresAt,
		},
		UserID:      sub.UserID,
		Username:    sub.Username,
		DisplayName: sub.DisplayName,
		Email:       sub.Email,
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return token, expiresAt.Time, nil
}

// ValidateToken validates a token and returns its claims.
func (m *Manager) ValidateToken(tokenString string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(m.now),
		jwt.WithExpirationRequired(),
	}
	if m.issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return m.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.UserID == "" {
		return nil, ErrInvalidToken
	}

	if m.IsRevoked(claims.ID) {
		return nil, ErrRevokedToken
	}

	return claims, nil
}

// Revoke invalidates a single token until its natural expiry.
func (m *Manager) Revoke(claims *Claims) {
	if claims == nil || claims.ID == "" {
		return
	}
	expiry := m.now().Add(m.ttl)
	if claims.ExpiresAt != nil {
		expiry = claims.ExpiresAt.Time
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.revoked[claims.ID] = expiry
}

// IsRevoked checks whether the token id has been revoked.
func (m *Manager) IsRevoked(tokenID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, revoked := m.revoked[tokenID]
	return revoked
}

// CleanupExpiredRevocations removes revocation entries whose tokens have
// expired anyway.
func (m *Manager) CleanupExpiredRevocations() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	removed := 0
	for id, expiry := range m.revoked {
		if now.After(expiry) {
			delete(m.revoked, id)
			removed++
		}
	}
	return removed
}

// RunRevocationSweeper periodically cleans up expired revocations until ctx
// is done.
func (m *Manager) RunRevocationSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.CleanupExpiredRevocations()
		}
	}
}

// TTL returns the lifetime of issued tokens.
func (m *Manager) TTL() time.Duration {
	return m.ttl
}
