package identity

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	"github.com/weiawesome/wes-chat/internal/audit"
	"github.com/weiawesome/wes-chat/internal/domain"
	"github.com/weiawesome/wes-chat/internal/repository"
	"github.com/weiawesome/wes-chat/pkg/jwt"
	"github.com/weiawesome/wes-chat/pkg/log"
	"github.com/weiawesome/wes-chat/pkg/middleware"
)

const maxPasswordBytes = 72

// Config holds the password policy.
type Config struct {
	PasswordMinLength int
	BcryptCost        int
}

// Token is an issued session token.
type Token struct {
	AccessToken string    `json:"accessToken"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// Gate verifies credentials and session tokens and answers ownership
// questions for message mutations.
type Gate struct {
	users    repository.UserRepository
	tokens   *jwt.Manager
	validate *validator.Validate
	cfg      Config
}

// NewGate creates a new identity gate.
func NewGate(users repository.UserRepository, tokens *jwt.Manager, cfg Config) *Gate {
	if cfg.PasswordMinLength <= 0 {
		cfg.PasswordMinLength = 3
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}
	return &Gate{
		users:    users,
		tokens:   tokens,
		validate: newValidator(),
		cfg:      cfg,
	}
}

// Register creates an account. DisplayName defaults to the username.
func (g *Gate) Register(ctx context.Context, req *domain.RegisterRequest) (domain.UserIdentity, error) {
	l := log.Ctx(ctx)

	in := domain.RegisterRequest{
		Username:    strings.TrimSpace(req.Username),
		Email:       strings.TrimSpace(req.Email),
		DisplayName: strings.TrimSpace(req.DisplayName),
		Password:    req.Password,
	}
	if err := g.validate.Struct(&in); err != nil {
		return domain.UserIdentity{}, validationError(err)
	}
	if utf8.RuneCountInString(in.Password) < g.cfg.PasswordMinLength {
		return domain.UserIdentity{}, passwordTooShort(g.cfg.PasswordMinLength)
	}
	// bcrypt reads at most 72 bytes; the struct tag counts runes.
	if len(in.Password) > maxPasswordBytes {
		return domain.UserIdentity{}, domain.ErrPasswordTooLong
	}
	if in.DisplayName == "" {
		in.DisplayName = in.Username
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(in.Password), g.cfg.BcryptCost)
	if err != nil {
		l.Error().Err(err).Msg("failed to hash password")
		return domain.UserIdentity{}, err
	}

	user := &domain.User{
		Username:     in.Username,
		Email:        in.Email,
		DisplayName:  in.DisplayName,
		PasswordHash: string(hashedPassword),
	}
	if err := g.users.Create(ctx, user); err != nil {
		if domain.KindOf(err) == domain.KindConflict {
			audit.LogWithDetail(ctx, audit.ActionRegister, "", in.Username, "registration rejected: "+domain.PublicMessage(err))
			return domain.UserIdentity{}, err
		}
		l.Error().Err(err).Str(log.FieldUsername, in.Username).Msg("failed to create user")
		return domain.UserIdentity{}, err
	}

	audit.Log(ctx, audit.ActionRegister, user.ID, "user registered")
	return user.Identity(), nil
}

// VerifyCredentials checks a username or email and password. Unknown users
// and wrong passwords yield the same error.
func (g *Gate) VerifyCredentials(ctx context.Context, login, password string) (domain.UserIdentity, error) {
	l := log.Ctx(ctx)

	if strings.TrimSpace(login) == "" || password == "" {
		return domain.UserIdentity{}, domain.ErrInvalidCredentials
	}

	user, err := g.users.GetByLogin(ctx, login)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			audit.LogWithDetail(ctx, audit.ActionLoginFailed, "", login, "login failed: user not found")
			return domain.UserIdentity{}, domain.ErrInvalidCredentials
		}
		l.Error().Err(err).Msg("failed to get user by login")
		return domain.UserIdentity{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		audit.LogWithDetail(ctx, audit.ActionLoginFailed, user.ID, login, "login failed: wrong password")
		return domain.UserIdentity{}, domain.ErrInvalidCredentials
	}

	return user.Identity(), nil
}

// IssueSessionToken signs a session token for the identity.
func (g *Gate) IssueSessionToken(id domain.UserIdentity) (Token, error) {
	token, expiresAt, err := g.tokens.Issue(jwt.Subject{
		UserID:      id.ID,
		Username:    id.Username,
		DisplayName: id.DisplayName,
		Email:       id.Email,
	})
	if err != nil {
		return Token{}, err
	}
	return Token{AccessToken: token, ExpiresAt: expiresAt}, nil
}

// Login verifies credentials and issues a session token.
func (g *Gate) Login(ctx context.Context, req *domain.LoginRequest) (*domain.AuthResponse, error) {
	id, err := g.VerifyCredentials(ctx, req.Login, req.Password)
	if err != nil {
		return nil, err
	}

	token, err := g.IssueSessionToken(id)
	if err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Str(log.FieldUserID, id.ID).Msg("failed to issue token after login")
		return nil, err
	}

	audit.Log(ctx, audit.ActionLogin, id.ID, "user logged in")
	return &domain.AuthResponse{User: id, AccessToken: token.AccessToken, ExpiresAt: token.ExpiresAt}, nil
}

// ValidateToken resolves a session token to the identity it was issued for.
func (g *Gate) ValidateToken(ctx context.Context, token string) (domain.UserIdentity, error) {
	claims, err := g.tokens.ValidateToken(token)
	if err != nil {
		l := log.Ctx(ctx)
		l.Debug().Err(err).Msg("token rejected")
		return domain.UserIdentity{}, domain.ErrInvalidToken
	}
	return claimsIdentity(claims), nil
}

// Revoke invalidates a token until its natural expiry.
func (g *Gate) Revoke(ctx context.Context, token string) error {
	claims, err := g.tokens.ValidateToken(token)
	if err != nil {
		return domain.ErrInvalidToken
	}
	g.tokens.Revoke(claims)
	audit.Log(ctx, audit.ActionLogout, claims.UserID, "user logged out")
	return nil
}

// CanModify reports whether the identity may edit or delete a message owned
// by ownerID.
func (g *Gate) CanModify(id domain.UserIdentity, ownerID string) bool {
	return id.ID != "" && id.ID == ownerID
}

// Principal adapts ValidateToken for the HTTP auth middleware.
func (g *Gate) Principal(ctx context.Context, token string) (*middleware.Principal, error) {
	id, err := g.ValidateToken(ctx, token)
	if err != nil {
		return nil, err
	}
	return &middleware.Principal{
		UserID:      id.ID,
		Username:    id.Username,
		DisplayName: id.DisplayName,
		Email:       id.Email,
	}, nil
}

// RunRevocationSweeper removes expired revocations until ctx is done.
func (g *Gate) RunRevocationSweeper(ctx context.Context, interval time.Duration) {
	g.tokens.RunRevocationSweeper(ctx, interval)
}

func claimsIdentity(c *jwt.Claims) domain.UserIdentity {
	return domain.UserIdentity{
		ID:          c.UserID,
		Username:    c.Username,
		DisplayName: c.DisplayName,
		Email:       c.Email,
	}
}
