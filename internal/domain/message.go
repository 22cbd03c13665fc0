package domain

import (
	"strings"
	"time"
	"unicode/utf8"
)

// MaxContentLength is the maximum message length in Unicode code points.
const MaxContentLength = 1000

// Message is one chat post.
type Message struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	AuthorID  string    `json:"authorId"`
	CreatedAt time.Time `json:"createdAt"`
	EditedAt  time.Time `json:"editedAt"`
	WasEdited bool      `json:"wasEdited"`
}

// ValidateContent checks that content is non-blank, valid UTF-8 and at most
// MaxContentLength code points.
func ValidateContent(content string) error {
	if strings.TrimSpace(content) == "" {
		return ErrContentEmpty
	}
	if !utf8.ValidString(content) {
		return ErrContentEncoding
	}
	if utf8.RuneCountInString(content) > MaxContentLength {
		return ErrContentTooLong
	}
	return nil
}

// NewMessage builds a validated message stamped at the given instant.
func NewMessage(id, content, authorID string, at time.Time) (*Message, error) {
	if err := ValidateContent(content); err != nil {
		return nil, err
	}
	if strings.TrimSpace(authorID) == "" {
		return nil, ErrAuthorRequired
	}

	at = at.UTC().Truncate(time.Microsecond)
	return &Message{
		ID:        id,
		Content:   content,
		AuthorID:  authorID,
		CreatedAt: at,
		EditedAt:  at,
	}, nil
}

// Edit replaces the content and records the edit time. EditedAt never
// moves before CreatedAt.
func (m *Message) Edit(content string, at time.Time) error {
	if err := ValidateContent(content); err != nil {
		return err
	}

	at = at.UTC().Truncate(time.Microsecond)
	if at.Before(m.CreatedAt) {
		at = m.CreatedAt
	}
	m.Content = content
	m.EditedAt = at
	m.WasEdited = true
	return nil
}

// CreateMessageRequest is the body of a create call.
type CreateMessageRequest struct {
	Content string `json:"content"`
}

// EditMessageRequest is the body of an edit call.
type EditMessageRequest struct {
	Content string `json:"content"`
}

// BroadcastMessage is the payload pushed to every live subscriber.
type BroadcastMessage struct {
	Type              string    `json:"type"`
	ID                string    `json:"id"`
	AuthorID          string    `json:"authorId"`
	AuthorDisplayName string    `json:"authorDisplayName"`
	Content           string    `json:"content"`
	CreatedAt         time.Time `json:"createdAt"`
}

// NewBroadcastMessage projects a persisted message for live delivery.
func NewBroadcastMessage(m *Message, author UserIdentity) BroadcastMessage {
	return BroadcastMessage{
		Type:              MsgTypeChatMessage,
		ID:                m.ID,
		AuthorID:          m.AuthorID,
		AuthorDisplayName: author.DisplayName,
		Content:           m.Content,
		CreatedAt:         m.CreatedAt,
	}
}
