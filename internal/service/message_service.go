package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/weiawesome/wes-chat/internal/audit"
	"github.com/weiawesome/wes-chat/internal/cache"
	"github.com/weiawesome/wes-chat/internal/domain"
	"github.com/weiawesome/wes-chat/internal/idgen"
	"github.com/weiawesome/wes-chat/internal/repository"
	"github.com/weiawesome/wes-chat/pkg/log"
)

// Options holds the optional collaborators of the message service.
type Options struct {
	Cache    cache.MessageCache
	CacheTTL time.Duration
	Archiver audit.Archiver
	Clock    func() time.Time
}

type messageServiceImpl struct {
	repo     repository.MessageRepository
	ids      IDGenerator
	notifier Notifier
	auth     Authorizer

	cache    cache.MessageCache
	cacheTTL time.Duration
	archiver audit.Archiver
	now      func() time.Time
	group    singleflight.Group
}

// NewMessageService creates a new message service.
func NewMessageService(
	repo repository.MessageRepository,
	ids IDGenerator,
	notifier Notifier,
	auth Authorizer,
	opts Options,
) MessageService {
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 5 * time.Minute
	}
	return &messageServiceImpl{
		repo:     repo,
		ids:      ids,
		notifier: notifier,
		auth:     auth,
		cache:    opts.Cache,
		cacheTTL: opts.CacheTTL,
		archiver: opts.Archiver,
		now:      opts.Clock,
	}
}

// Create validates and persists a message, then hands it to the notifier.
func (s *messageServiceImpl) Create(ctx context.Context, author domain.UserIdentity, content string) (*domain.Message, error) {
	l := log.Ctx(ctx)

	if err := domain.ValidateContent(content); err != nil {
		return nil, err
	}

	id, at, err := s.ids.Next()
	if err != nil {
		l.Error().Err(err).Str(log.FieldOperation, "create").Msg("failed to generate message id")
		return nil, err
	}

	msg, err := domain.NewMessage(id, content, author.ID, at)
	if err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, msg); err != nil {
		l.Error().Err(err).
			Str(log.FieldOperation, "create").
			Str(log.FieldMessageID, id).
			Str(log.FieldUserID, author.ID).
			Msg("failed to persist message")
		return nil, err
	}

	if s.notifier != nil {
		s.notifier.Notify(msg, author)
	}

	audit.LogTarget(ctx, audit.ActionMessageCreate, author.ID, msg.ID, "message created")
	return msg, nil
}

// GetByID returns one message, reading through the cache when configured.
// Concurrent misses for one id share a single store read, which runs
// detached from any one caller's cancellation.
func (s *messageServiceImpl) GetByID(ctx context.Context, id string) (*domain.Message, error) {
	l := log.Ctx(ctx)

	if err := checkID(id); err != nil {
		return nil, err
	}

	if s.cache != nil {
		cached, err := s.cache.Get(ctx, id)
		if err == nil {
			return cached, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			l.Warn().Err(err).Str(log.FieldMessageID, id).Msg("message cache read failed")
		}
	}

	loadCtx := context.WithoutCancel(ctx)
	ch := s.group.DoChan(id, func() (interface{}, error) {
		msg, err := s.repo.GetByID(loadCtx, id)
		if err != nil {
			return nil, err
		}
		if s.cache != nil {
			// Set is a no-op while an edit or delete of id is recent.
			if err := s.cache.Set(loadCtx, msg, s.cacheTTL); err != nil {
				l.Warn().Err(err).Str(log.FieldMessageID, id).Msg("message cache write failed")
			}
		}
		return msg, nil
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if res.Err != nil {
		if domain.KindOf(res.Err) != domain.KindNotFound {
			l.Error().Err(res.Err).Str(log.FieldOperation, "get").Str(log.FieldMessageID, id).Msg("failed to get message")
		}
		return nil, res.Err
	}

	msg := *res.Val.(*domain.Message)
	return &msg, nil
}

// GetByAuthor returns the author's messages in creation order.
func (s *messageServiceImpl) GetByAuthor(ctx context.Context, authorID string) ([]domain.Message, error) {
	if strings.TrimSpace(authorID) == "" {
		return nil, domain.ErrAuthorRequired
	}

	messages, err := s.repo.ListByAuthor(ctx, authorID)
	if err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Str(log.FieldOperation, "get_by_author").Str(log.FieldUserID, authorID).Msg("failed to list messages")
		return nil, err
	}
	return messages, nil
}

// GetAll returns every message in creation order.
func (s *messageServiceImpl) GetAll(ctx context.Context) ([]domain.Message, error) {
	messages, err := s.repo.List(ctx)
	if err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Str(log.FieldOperation, "get_all").Msg("failed to list messages")
		return nil, err
	}
	return messages, nil
}

// Edit replaces the content of a message owned by actor.
func (s *messageServiceImpl) Edit(ctx context.Context, actor domain.UserIdentity, id, content string) (*domain.Message, error) {
	l := log.Ctx(ctx)

	if err := checkID(id); err != nil {
		return nil, err
	}
	if err := domain.ValidateContent(content); err != nil {
		return nil, err
	}

	msg, err := s.load(ctx, "edit", id)
	if err != nil {
		return nil, err
	}
	if !s.auth.CanModify(actor, msg.AuthorID) {
		audit.LogTarget(ctx, audit.ActionMessageDenied, actor.ID, id, "edit denied: not the author")
		return nil, domain.ErrNotOwner
	}

	before := *msg
	if err := msg.Edit(content, s.now()); err != nil {
		return nil, err
	}

	if err := s.repo.Update(ctx, msg); err != nil {
		if domain.KindOf(err) != domain.KindNotFound {
			l.Error().Err(err).Str(log.FieldOperation, "edit").Str(log.FieldMessageID, id).Msg("failed to update message")
		}
		return nil, err
	}

	s.invalidate(ctx, id)
	s.archive(ctx, audit.Record{Action: audit.ActionMessageEdit, ActorID: actor.ID, MessageID: id, Before: &before, After: msg})
	audit.LogTarget(ctx, audit.ActionMessageEdit, actor.ID, id, "message edited")
	return msg, nil
}

// Delete physically removes a message owned by actor.
func (s *messageServiceImpl) Delete(ctx context.Context, actor domain.UserIdentity, id string) error {
	l := log.Ctx(ctx)

	if err := checkID(id); err != nil {
		return err
	}

	msg, err := s.load(ctx, "delete", id)
	if err != nil {
		return err
	}
	if !s.auth.CanModify(actor, msg.AuthorID) {
		audit.LogTarget(ctx, audit.ActionMessageDenied, actor.ID, id, "delete denied: not the author")
		return domain.ErrNotOwner
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		if domain.KindOf(err) != domain.KindNotFound {
			l.Error().Err(err).Str(log.FieldOperation, "delete").Str(log.FieldMessageID, id).Msg("failed to delete message")
		}
		return err
	}

	s.invalidate(ctx, id)
	s.archive(ctx, audit.Record{Action: audit.ActionMessageDelete, ActorID: actor.ID, MessageID: id, Before: msg})
	audit.LogTarget(ctx, audit.ActionMessageDelete, actor.ID, id, "message deleted")
	return nil
}

// checkID rejects blank ids and answers NotFound for ids that no message
// could have, without touching the store.
func checkID(id string) error {
	if strings.TrimSpace(id) == "" {
		return domain.ErrIDRequired
	}
	if !idgen.Valid(id) {
		return domain.ErrMessageNotFound
	}
	return nil
}

// Count returns the number of stored messages.
func (s *messageServiceImpl) Count(ctx context.Context) (int64, error) {
	n, err := s.repo.Count(ctx)
	if err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Str(log.FieldOperation, "count").Msg("failed to count messages")
		return 0, err
	}
	return n, nil
}

// load reads a message from the store, bypassing the cache.
func (s *messageServiceImpl) load(ctx context.Context, op, id string) (*domain.Message, error) {
	msg, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if domain.KindOf(err) != domain.KindNotFound {
			l := log.Ctx(ctx)
			l.Error().Err(err).Str(log.FieldOperation, op).Str(log.FieldMessageID, id).Msg("failed to load message")
		}
		return nil, err
	}
	return msg, nil
}

func (s *messageServiceImpl) invalidate(ctx context.Context, id string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, id); err != nil {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Str(log.FieldMessageID, id).Msg("message cache invalidation failed")
	}
}

func (s *messageServiceImpl) archive(ctx context.Context, rec audit.Record) {
	if s.archiver == nil {
		return
	}
	rec.At = s.now().UTC()
	if err := s.archiver.Archive(ctx, rec); err != nil {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Str(log.FieldMessageID, rec.MessageID).Str(audit.FieldAction, rec.Action).Msg("failed to archive message change")
	}
}
