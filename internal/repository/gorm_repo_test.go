package repository

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/weiawesome/wes-chat/internal/domain"
	"github.com/weiawesome/wes-chat/internal/idgen"
	"github.com/weiawesome/wes-chat/pkg/database"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.New(&database.Config{
		Driver:       "sqlite",
		FilePath:     filepath.Join(t.TempDir(), "chat.db"),
		MaxOpenConns: 1,
		LogLevel:     "silent",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close(db) })
	require.NoError(t, Migrate(db))
	return db
}

func newMessage(t *testing.T, gen *idgen.ULIDGenerator, content, author string) *domain.Message {
	t.Helper()
	id, at, err := gen.Next()
	require.NoError(t, err)
	msg, err := domain.NewMessage(id, content, author, at)
	require.NoError(t, err)
	return msg
}

func assertSameMessage(t *testing.T, want, got *domain.Message) {
	t.Helper()
	assert.Equal(t, want.ID, got.ID)
	assert.Equal(t, want.Content, got.Content)
	assert.Equal(t, want.AuthorID, got.AuthorID)
	assert.Equal(t, want.WasEdited, got.WasEdited)
	assert.True(t, want.CreatedAt.Equal(got.CreatedAt), "createdAt %s != %s", want.CreatedAt, got.CreatedAt)
	assert.True(t, want.EditedAt.Equal(got.EditedAt), "editedAt %s != %s", want.EditedAt, got.EditedAt)
}

func TestGormMessageRepository_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	repo := NewGormMessageRepository(newTestDB(t))
	gen := idgen.NewULIDGenerator(time.Now)

	msg := newMessage(t, gen, "héllo 世界", "author-1")
	require.NoError(t, repo.Create(ctx, msg))

	got, err := repo.GetByID(ctx, msg.ID)
	require.NoError(t, err)
	assertSameMessage(t, msg, got)
	assert.Equal(t, time.UTC, got.CreatedAt.Location())
}

func TestGormMessageRepository_GetMissing(t *testing.T) {
	repo := NewGormMessageRepository(newTestDB(t))

	_, err := repo.GetByID(context.Background(), "01ARZ3NDEKTSV4RRFFQ69G5FAV")
	assert.ErrorIs(t, err, domain.ErrMessageNotFound)
}

func TestGormMessageRepository_ListOrdering(t *testing.T) {
	ctx := context.Background()
	repo := NewGormMessageRepository(newTestDB(t))
	gen := idgen.NewULIDGenerator(time.Now)

	var aliceIDs, allIDs []string
	for i := 0; i < 10; i++ {
		author := "bob"
		if i%3 == 0 {
			author = "alice"
		}
		msg := newMessage(t, gen, "m", author)
		require.NoError(t, repo.Create(ctx, msg))
		allIDs = append(allIDs, msg.ID)
		if author == "alice" {
			aliceIDs = append(aliceIDs, msg.ID)
		}
	}

	all, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, len(allIDs))
	for i, m := range all {
		assert.Equal(t, allIDs[i], m.ID)
	}

	byAlice, err := repo.ListByAuthor(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, byAlice, len(aliceIDs))
	for i, m := range byAlice {
		assert.Equal(t, aliceIDs[i], m.ID)
		assert.Equal(t, "alice", m.AuthorID)
	}

	none, err := repo.ListByAuthor(ctx, "carol")
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestGormMessageRepository_Update(t *testing.T) {
	ctx := context.Background()
	repo := NewGormMessageRepository(newTestDB(t))
	gen := idgen.NewULIDGenerator(time.Now)

	msg := newMessage(t, gen, "first", "alice")
	require.NoError(t, repo.Create(ctx, msg))

	require.NoError(t, msg.Edit("second", time.Now()))
	require.NoError(t, repo.Update(ctx, msg))

	got, err := repo.GetByID(ctx, msg.ID)
	require.NoError(t, err)
	assertSameMessage(t, msg, got)
	assert.True(t, got.WasEdited)

	ghost := newMessage(t, gen, "ghost", "alice")
	assert.ErrorIs(t, repo.Update(ctx, ghost), domain.ErrMessageNotFound)
}

func TestGormMessageRepository_DeleteTwice(t *testing.T) {
	ctx := context.Background()
	repo := NewGormMessageRepository(newTestDB(t))
	gen := idgen.NewULIDGenerator(time.Now)

	msg := newMessage(t, gen, "bye", "alice")
	require.NoError(t, repo.Create(ctx, msg))

	require.NoError(t, repo.Delete(ctx, msg.ID))
	assert.ErrorIs(t, repo.Delete(ctx, msg.ID), domain.ErrMessageNotFound)

	_, err := repo.GetByID(ctx, msg.ID)
	assert.ErrorIs(t, err, domain.ErrMessageNotFound)

	count, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestGormMessageRepository_ConcurrentCreates(t *testing.T) {
	ctx := context.Background()
	repo := NewGormMessageRepository(newTestDB(t))
	gen := idgen.NewULIDGenerator(time.Now)

	const workers, perWorker = 4, 10
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				id, at, err := gen.Next()
				if !assert.NoError(t, err) {
					return
				}
				msg, err := domain.NewMessage(id, "x", "alice", at)
				if !assert.NoError(t, err) {
					return
				}
				assert.NoError(t, repo.Create(ctx, msg))
			}
		}()
	}
	wg.Wait()

	all, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, workers*perWorker)
	for i := 1; i < len(all); i++ {
		assert.Less(t, all[i-1].ID, all[i].ID)
		assert.True(t, all[i-1].CreatedAt.Before(all[i].CreatedAt))
	}
}

func TestGormUserRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewGormUserRepository(newTestDB(t))

	alice := &domain.User{
		Username:     "Alice",
		Email:        "Alice@X.com",
		DisplayName:  "alice",
		PasswordHash: "hash",
	}
	require.NoError(t, repo.Create(ctx, alice))
	require.NotEmpty(t, alice.ID)

	byID, err := repo.GetByID(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, "Alice", byID.Username)
	assert.Equal(t, "hash", byID.PasswordHash)

	byName, err := repo.GetByLogin(ctx, "  alice ")
	require.NoError(t, err)
	assert.Equal(t, alice.ID, byName.ID)

	byEmail, err := repo.GetByLogin(ctx, "alice@x.COM")
	require.NoError(t, err)
	assert.Equal(t, alice.ID, byEmail.ID)

	_, err = repo.GetByLogin(ctx, "nobody")
	assert.ErrorIs(t, err, domain.ErrUserNotFound)
	_, err = repo.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrUserNotFound)

	dupEmail := &domain.User{Username: "alice2", Email: "ALICE@x.com", PasswordHash: "h"}
	assert.ErrorIs(t, repo.Create(ctx, dupEmail), domain.ErrEmailExists)
	assert.Empty(t, dupEmail.ID)

	dupName := &domain.User{Username: "ALICE", Email: "other@x.com", PasswordHash: "h"}
	assert.ErrorIs(t, repo.Create(ctx, dupName), domain.ErrUsernameExists)
}

func TestGormUserRepository_ClassifiesDuplicates(t *testing.T) {
	r := &GormUserRepository{}

	tests := []struct {
		name string
		err  error
		want error
	}{
		{"sqlite email", errors.New("UNIQUE constraint failed: users.email_normalized"), domain.ErrEmailExists},
		{"sqlite username", errors.New("UNIQUE constraint failed: users.username_normalized"), domain.ErrUsernameExists},
		{"postgres email", errors.New(`ERROR: duplicate key value violates unique constraint "idx_users_email_normalized" (SQLSTATE 23505)`), domain.ErrEmailExists},
		{"mysql username containing email", errors.New("Error 1062 (23000): Duplicate entry 'emailfan' for key 'users.idx_users_username_normalized'"), domain.ErrUsernameExists},
		{"mysql email containing username", errors.New("Error 1062 (23000): Duplicate entry 'username_normalized@x.com' for key 'users.idx_users_email_normalized'"), domain.ErrEmailExists},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, r.handleError(tt.err), tt.want)
		})
	}

	other := r.handleError(errors.New("connection reset"))
	assert.Equal(t, domain.KindInternal, domain.KindOf(other))
}
