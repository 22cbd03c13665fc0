package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gocql/gocql"

	"github.com/weiawesome/wes-chat/internal/config"
	"github.com/weiawesome/wes-chat/internal/domain"
)

// timelineBucket is the single partition of messages_timeline.
const timelineBucket = "all"

// cassandraSchema creates the denormalized message tables. Clustering on the
// ULID id keeps both lists in creation order.
var cassandraSchema = []string{
	`CREATE TABLE IF NOT EXISTS messages (
		id text PRIMARY KEY,
		author_id text,
		content text,
		created_at timestamp,
		edited_at timestamp,
		was_edited boolean
	)`,
	`CREATE TABLE IF NOT EXISTS messages_by_author (
		author_id text,
		id text,
		content text,
		created_at timestamp,
		edited_at timestamp,
		was_edited boolean,
		PRIMARY KEY ((author_id), id)
	) WITH CLUSTERING ORDER BY (id ASC)`,
	`CREATE TABLE IF NOT EXISTS messages_timeline (
		bucket text,
		id text,
		author_id text,
		content text,
		created_at timestamp,
		edited_at timestamp,
		was_edited boolean,
		PRIMARY KEY ((bucket), id)
	) WITH CLUSTERING ORDER BY (id ASC)`,
}

// CassandraMessageRepository implements MessageRepository on Cassandra.
type CassandraMessageRepository struct {
	session *gocql.Session
}

// NewCassandraSession connects to the cluster described by cfg.
func NewCassandraSession(cfg config.CassandraConfig) (*gocql.Session, error) {
	cluster := gocql.NewCluster(cfg.Hosts...)
	cluster.Keyspace = cfg.Keyspace
	cluster.Consistency = parseConsistency(cfg.Consistency)
	cluster.ConnectTimeout = cfg.ConnectTimeout
	cluster.Timeout = cfg.Timeout
	if cfg.NumConns > 0 {
		cluster.NumConns = cfg.NumConns
	}
	if cfg.MaxPreparedStmt > 0 {
		cluster.MaxPreparedStmts = cfg.MaxPreparedStmt
	}

	if cfg.Username != "" && cfg.Password != "" {
		cluster.Authenticator = gocql.PasswordAuthenticator{
			Username: cfg.Username,
			Password: cfg.Password,
		}
	}

	cluster.RetryPolicy = &gocql.ExponentialBackoffRetryPolicy{
		NumRetries: 3,
		Min:        100 * time.Millisecond,
		Max:        2 * time.Second,
	}

	session, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create cassandra session: %w", err)
	}
	return session, nil
}

// NewCassandraMessageRepository wraps an open session.
func NewCassandraMessageRepository(session *gocql.Session) *CassandraMessageRepository {
	return &CassandraMessageRepository{session: session}
}

// EnsureSchema creates the message tables if they do not exist.
func (r *CassandraMessageRepository) EnsureSchema(ctx context.Context) error {
	for _, stmt := range cassandraSchema {
		if err := r.session.Query(stmt).WithContext(ctx).Exec(); err != nil {
			return fmt.Errorf("failed to apply cassandra schema: %w", err)
		}
	}
	return nil
}

// Create writes the message to all three tables in one logged batch.
// Timestamps are truncated to the column precision first.
func (r *CassandraMessageRepository) Create(ctx context.Context, msg *domain.Message) error {
	msg.CreatedAt = msg.CreatedAt.Truncate(time.Millisecond)
	msg.EditedAt = msg.EditedAt.Truncate(time.Millisecond)

	batch := r.session.NewBatch(gocql.LoggedBatch).WithContext(ctx)
	batch.Query(`INSERT INTO messages (id, author_id, content, created_at, edited_at, was_edited)
		VALUES (?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.AuthorID, msg.Content, msg.CreatedAt, msg.EditedAt, msg.WasEdited)
	batch.Query(`INSERT INTO messages_by_author (author_id, id, content, created_at, edited_at, was_edited)
		VALUES (?, ?, ?, ?, ?, ?)`,
		msg.AuthorID, msg.ID, msg.Content, msg.CreatedAt, msg.EditedAt, msg.WasEdited)
	batch.Query(`INSERT INTO messages_timeline (bucket, id, author_id, content, created_at, edited_at, was_edited)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		timelineBucket, msg.ID, msg.AuthorID, msg.Content, msg.CreatedAt, msg.EditedAt, msg.WasEdited)

	if err := r.session.ExecuteBatch(batch); err != nil {
		return fmt.Errorf("failed to create message: %w", err)
	}
	return nil
}

// GetByID reads a message from the primary table.
func (r *CassandraMessageRepository) GetByID(ctx context.Context, id string) (*domain.Message, error) {
	var msg domain.Message
	err := r.session.Query(`SELECT id, author_id, content, created_at, edited_at, was_edited
		FROM messages WHERE id = ?`, id).
		WithContext(ctx).
		Scan(&msg.ID, &msg.AuthorID, &msg.Content, &msg.CreatedAt, &msg.EditedAt, &msg.WasEdited)
	if err != nil {
		if errors.Is(err, gocql.ErrNotFound) {
			return nil, domain.ErrMessageNotFound
		}
		return nil, fmt.Errorf("failed to get message: %w", err)
	}
	normalizeTimes(&msg)
	return &msg, nil
}

// ListByAuthor reads the author's partition in clustering order.
func (r *CassandraMessageRepository) ListByAuthor(ctx context.Context, authorID string) ([]domain.Message, error) {
	iter := r.session.Query(`SELECT id, author_id, content, created_at, edited_at, was_edited
		FROM messages_by_author WHERE author_id = ? ORDER BY id ASC`, authorID).
		WithContext(ctx).Iter()

	messages, err := scanMessages(iter)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages by author: %w", err)
	}
	return messages, nil
}

// List reads the timeline partition in clustering order.
func (r *CassandraMessageRepository) List(ctx context.Context) ([]domain.Message, error) {
	iter := r.session.Query(`SELECT id, author_id, content, created_at, edited_at, was_edited
		FROM messages_timeline WHERE bucket = ? ORDER BY id ASC`, timelineBucket).
		WithContext(ctx).Iter()

	messages, err := scanMessages(iter)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	return messages, nil
}

// Update rewrites the mutable columns in every table. The primary row is
// updated with a lightweight transaction so a concurrent delete wins.
func (r *CassandraMessageRepository) Update(ctx context.Context, msg *domain.Message) error {
	msg.EditedAt = msg.EditedAt.Truncate(time.Millisecond)

	applied, err := r.session.Query(`UPDATE messages SET content = ?, edited_at = ?, was_edited = ?
		WHERE id = ? IF EXISTS`, msg.Content, msg.EditedAt, msg.WasEdited, msg.ID).
		WithContext(ctx).
		ScanCAS()
	if err != nil {
		return fmt.Errorf("failed to update message: %w", err)
	}
	if !applied {
		return domain.ErrMessageNotFound
	}

	batch := r.session.NewBatch(gocql.LoggedBatch).WithContext(ctx)
	batch.Query(`UPDATE messages_by_author SET content = ?, edited_at = ?, was_edited = ?
		WHERE author_id = ? AND id = ?`, msg.Content, msg.EditedAt, msg.WasEdited, msg.AuthorID, msg.ID)
	batch.Query(`UPDATE messages_timeline SET content = ?, edited_at = ?, was_edited = ?
		WHERE bucket = ? AND id = ?`, msg.Content, msg.EditedAt, msg.WasEdited, timelineBucket, msg.ID)
	if err := r.session.ExecuteBatch(batch); err != nil {
		return fmt.Errorf("failed to update message views: %w", err)
	}
	return nil
}

// Delete removes the primary row with a lightweight transaction, so exactly
// one of two racing deletes succeeds, then clears the denormalized rows.
func (r *CassandraMessageRepository) Delete(ctx context.Context, id string) error {
	var authorID string
	applied, err := r.session.Query(`DELETE FROM messages WHERE id = ? IF EXISTS`, id).
		WithContext(ctx).
		MapScanCAS(map[string]interface{}{})
	if err != nil {
		return fmt.Errorf("failed to delete message: %w", err)
	}
	if !applied {
		return domain.ErrMessageNotFound
	}

	// The timeline row still carries the author partition key.
	err = r.session.Query(`SELECT author_id FROM messages_timeline WHERE bucket = ? AND id = ?`,
		timelineBucket, id).WithContext(ctx).Scan(&authorID)
	if err != nil && !errors.Is(err, gocql.ErrNotFound) {
		return fmt.Errorf("failed to resolve message author: %w", err)
	}

	batch := r.session.NewBatch(gocql.LoggedBatch).WithContext(ctx)
	batch.Query(`DELETE FROM messages_timeline WHERE bucket = ? AND id = ?`, timelineBucket, id)
	if authorID != "" {
		batch.Query(`DELETE FROM messages_by_author WHERE author_id = ? AND id = ?`, authorID, id)
	}
	if err := r.session.ExecuteBatch(batch); err != nil {
		return fmt.Errorf("failed to delete message views: %w", err)
	}
	return nil
}

// Count counts the timeline partition.
func (r *CassandraMessageRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.session.Query(`SELECT COUNT(*) FROM messages_timeline WHERE bucket = ?`, timelineBucket).
		WithContext(ctx).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count messages: %w", err)
	}
	return count, nil
}

// Close closes the underlying session.
func (r *CassandraMessageRepository) Close() error {
	r.session.Close()
	return nil
}

func scanMessages(iter *gocql.Iter) ([]domain.Message, error) {
	messages := make([]domain.Message, 0)
	var msg domain.Message
	for iter.Scan(&msg.ID, &msg.AuthorID, &msg.Content, &msg.CreatedAt, &msg.EditedAt, &msg.WasEdited) {
		normalizeTimes(&msg)
		messages = append(messages, msg)
		msg = domain.Message{}
	}
	if err := iter.Close(); err != nil {
		return nil, err
	}
	return messages, nil
}

// normalizeTimes converts driver timestamps to UTC.
func normalizeTimes(msg *domain.Message) {
	msg.CreatedAt = msg.CreatedAt.UTC()
	msg.EditedAt = msg.EditedAt.UTC()
}

// parseConsistency converts a string consistency level to gocql.Consistency.
func parseConsistency(s string) gocql.Consistency {
	switch strings.ToUpper(s) {
	case "ANY":
		return gocql.Any
	case "ONE":
		return gocql.One
	case "TWO":
		return gocql.Two
	case "THREE":
		return gocql.Three
	case "QUORUM":
		return gocql.Quorum
	case "ALL":
		return gocql.All
	case "LOCAL_QUORUM":
		return gocql.LocalQuorum
	case "EACH_QUORUM":
		return gocql.EachQuorum
	case "LOCAL_ONE":
		return gocql.LocalOne
	default:
		return gocql.LocalQuorum
	}
}
