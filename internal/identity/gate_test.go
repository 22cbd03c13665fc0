package identity

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"golang.org/x/crypto/bcrypt"

	"github.com/weiawesome/wes-chat/internal/domain"
	"github.com/weiawesome/wes-chat/internal/repository"
	"github.com/weiawesome/wes-chat/internal/repository/mocks"
	"github.com/weiawesome/wes-chat/pkg/database"
	"github.com/weiawesome/wes-chat/pkg/jwt"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTokens(t *testing.T, clock *fakeClock) *jwt.Manager {
	t.Helper()
	m, err := jwt.NewManager(jwt.Config{Secret: testSecret, Issuer: "wes-chat", TTL: 24 * time.Hour}, jwt.WithClock(clock.Now))
	require.NoError(t, err)
	return m
}

func newTestGate(t *testing.T) (*Gate, *fakeClock) {
	t.Helper()
	db, err := database.New(&database.Config{
		Driver:       "sqlite",
		FilePath:     filepath.Join(t.TempDir(), "identity.db"),
		MaxOpenConns: 1,
		LogLevel:     "silent",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close(db) })
	require.NoError(t, repository.Migrate(db))

	clock := &fakeClock{t: time.Now().UTC()}
	gate := NewGate(repository.NewGormUserRepository(db), newTokens(t, clock), Config{
		PasswordMinLength: 3,
		BcryptCost:        bcrypt.MinCost,
	})
	return gate, clock
}

func register(t *testing.T, g *Gate, username, email, password string) domain.UserIdentity {
	t.Helper()
	id, err := g.Register(context.Background(), &domain.RegisterRequest{
		Username: username,
		Email:    email,
		Password: password,
	})
	require.NoError(t, err)
	return id
}

func TestRegister(t *testing.T) {
	g, _ := newTestGate(t)

	id := register(t, g, "alice", "alice@x.com", "pw1")
	assert.NotEmpty(t, id.ID)
	assert.Equal(t, "alice", id.Username)
	assert.Equal(t, "alice", id.DisplayName, "display name defaults to username")
	assert.Equal(t, "alice@x.com", id.Email)

	withName, err := g.Register(context.Background(), &domain.RegisterRequest{
		Username:    "bob",
		Email:       "bob@x.com",
		DisplayName: "  Bobby ",
		Password:    "secret",
	})
	require.NoError(t, err)
	assert.Equal(t, "Bobby", withName.DisplayName)
}

func TestRegister_Conflicts(t *testing.T) {
	g, _ := newTestGate(t)
	register(t, g, "alice", "alice@x.com", "pw1")

	_, err := g.Register(context.Background(), &domain.RegisterRequest{
		Username: "alice2", Email: "ALICE@x.com", Password: "pw1",
	})
	assert.Equal(t, domain.KindConflict, domain.KindOf(err))
	assert.ErrorIs(t, err, domain.ErrEmailExists)

	_, err = g.Register(context.Background(), &domain.RegisterRequest{
		Username: "Alice", Email: "other@x.com", Password: "pw1",
	})
	assert.ErrorIs(t, err, domain.ErrUsernameExists)
}

func TestRegister_Invalid(t *testing.T) {
	g, _ := newTestGate(t)

	tests := []struct {
		name    string
		req     domain.RegisterRequest
		message string
	}{
		{"missing username", domain.RegisterRequest{Email: "a@x.com", Password: "pw1"}, "username is required"},
		{"blank username", domain.RegisterRequest{Username: "   ", Email: "a@x.com", Password: "pw1"}, "username is required"},
		{"missing email", domain.RegisterRequest{Username: "a", Password: "pw1"}, "email is required"},
		{"bad email", domain.RegisterRequest{Username: "a", Email: "not-an-email", Password: "pw1"}, "email must be a valid email address"},
		{"username with at", domain.RegisterRequest{Username: "a@b", Email: "a@x.com", Password: "pw1"}, "username must not contain \"@\""},
		{"missing password", domain.RegisterRequest{Username: "a", Email: "a@x.com"}, "password is required"},
		{"short password", domain.RegisterRequest{Username: "a", Email: "a@x.com", Password: "pw"}, "password must be at least 3 characters"},
		{"multibyte password over 72 bytes", domain.RegisterRequest{Username: "a", Email: "a@x.com", Password: strings.Repeat("€", 40)}, "password must be at most 72 bytes"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := g.Register(context.Background(), &tt.req)
			require.Error(t, err)
			assert.Equal(t, domain.KindInvalid, domain.KindOf(err))
			assert.Equal(t, tt.message, domain.PublicMessage(err))
		})
	}
}

func TestRegister_PasswordAtByteLimit(t *testing.T) {
	g, _ := newTestGate(t)

	password := strings.Repeat("é", 36)
	register(t, g, "alice", "alice@x.com", password)

	_, err := g.VerifyCredentials(context.Background(), "alice", password)
	assert.NoError(t, err)
}

func TestVerifyCredentials(t *testing.T) {
	g, _ := newTestGate(t)
	alice := register(t, g, "alice", "alice@x.com", "pw1")
	ctx := context.Background()

	byName, err := g.VerifyCredentials(ctx, "ALICE", "pw1")
	require.NoError(t, err)
	assert.Equal(t, alice, byName)

	byEmail, err := g.VerifyCredentials(ctx, "Alice@X.com", "pw1")
	require.NoError(t, err)
	assert.Equal(t, alice.ID, byEmail.ID)

	_, wrongPw := g.VerifyCredentials(ctx, "alice", "nope")
	_, unknown := g.VerifyCredentials(ctx, "mallory", "pw1")
	assert.ErrorIs(t, wrongPw, domain.ErrInvalidCredentials)
	assert.ErrorIs(t, unknown, domain.ErrInvalidCredentials)
	assert.Equal(t, domain.PublicMessage(wrongPw), domain.PublicMessage(unknown))
	assert.Equal(t, domain.KindUnauthorized, domain.KindOf(unknown))
}

func TestVerifyCredentials_RepositoryFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	users := mocks.NewMockUserRepository(ctrl)
	users.EXPECT().GetByLogin(gomock.Any(), "alice").Return(nil, errors.New("connection reset"))

	g := NewGate(users, newTokens(t, &fakeClock{t: time.Now()}), Config{BcryptCost: bcrypt.MinCost})

	_, err := g.VerifyCredentials(context.Background(), "alice", "pw1")
	require.Error(t, err)
	assert.Equal(t, domain.KindInternal, domain.KindOf(err))
}

func TestSessionTokenLifecycle(t *testing.T) {
	g, clock := newTestGate(t)
	alice := register(t, g, "alice", "alice@x.com", "pw1")
	ctx := context.Background()

	token, err := g.IssueSessionToken(alice)
	require.NoError(t, err)
	assert.Equal(t, clock.Now().Add(24*time.Hour).Unix(), token.ExpiresAt.Unix())

	got, err := g.ValidateToken(ctx, token.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, alice, got)

	principal, err := g.Principal(ctx, token.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, alice.ID, principal.UserID)
	assert.Equal(t, "alice", principal.DisplayName)

	clock.Advance(24*time.Hour + time.Second)
	_, err = g.ValidateToken(ctx, token.AccessToken)
	assert.ErrorIs(t, err, domain.ErrInvalidToken)
	assert.Equal(t, domain.KindUnauthorized, domain.KindOf(err))
}

func TestValidateToken_Garbage(t *testing.T) {
	g, _ := newTestGate(t)

	for _, tok := range []string{"", "abc", "a.b.c"} {
		_, err := g.ValidateToken(context.Background(), tok)
		assert.ErrorIs(t, err, domain.ErrInvalidToken, tok)
	}
}

func TestRevoke(t *testing.T) {
	g, _ := newTestGate(t)
	alice := register(t, g, "alice", "alice@x.com", "pw1")
	ctx := context.Background()

	token, err := g.IssueSessionToken(alice)
	require.NoError(t, err)
	other, err := g.IssueSessionToken(alice)
	require.NoError(t, err)

	require.NoError(t, g.Revoke(ctx, token.AccessToken))

	_, err = g.ValidateToken(ctx, token.AccessToken)
	assert.ErrorIs(t, err, domain.ErrInvalidToken)
	assert.ErrorIs(t, g.Revoke(ctx, token.AccessToken), domain.ErrInvalidToken)

	_, err = g.ValidateToken(ctx, other.AccessToken)
	assert.NoError(t, err, "other sessions stay valid")
}

func TestLogin(t *testing.T) {
	g, _ := newTestGate(t)
	alice := register(t, g, "alice", "alice@x.com", "pw1")

	resp, err := g.Login(context.Background(), &domain.LoginRequest{Login: "alice@x.com", Password: "pw1"})
	require.NoError(t, err)
	assert.Equal(t, alice, resp.User)
	assert.NotEmpty(t, resp.AccessToken)

	_, err = g.Login(context.Background(), &domain.LoginRequest{Login: "alice", Password: "bad"})
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)
}

func TestCanModify(t *testing.T) {
	g, _ := newTestGate(t)

	owner := domain.UserIdentity{ID: "u1"}
	assert.True(t, g.CanModify(owner, "u1"))
	assert.False(t, g.CanModify(owner, "u2"))
	assert.False(t, g.CanModify(domain.UserIdentity{}, ""))
}
