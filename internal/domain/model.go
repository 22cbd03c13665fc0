package domain

import "time"

// MessageModel is the GORM model for the messages table.
type MessageModel struct {
	ID        string    `gorm:"type:varchar(26);primaryKey"`
	AuthorID  string    `gorm:"type:varchar(36);not null;index:idx_messages_author_id"`
	Content   string    `gorm:"type:text;not null"`
	CreatedAt time.Time `gorm:"not null"`
	EditedAt  time.Time `gorm:"not null"`
	WasEdited bool      `gorm:"not null"`
}

// TableName specifies the table name for MessageModel.
func (MessageModel) TableName() string {
	return "messages"
}

// ToDomain converts MessageModel to domain Message.
func (m *MessageModel) ToDomain() *Message {
	return &Message{
		ID:        m.ID,
		Content:   m.Content,
		AuthorID:  m.AuthorID,
		CreatedAt: m.CreatedAt.UTC(),
		EditedAt:  m.EditedAt.UTC(),
		WasEdited: m.WasEdited,
	}
}

// MessageToModel converts domain Message to MessageModel.
func MessageToModel(m *Message) *MessageModel {
	return &MessageModel{
		ID:        m.ID,
		AuthorID:  m.AuthorID,
		Content:   m.Content,
		CreatedAt: m.CreatedAt,
		EditedAt:  m.EditedAt,
		WasEdited: m.WasEdited,
	}
}

// UserModel is the GORM model for the users table. Uniqueness is enforced
// on the lower-cased username and email.
type UserModel struct {
	ID                 string    `gorm:"type:varchar(36);primaryKey"`
	Username           string    `gorm:"type:varchar(50);not null"`
	UsernameNormalized string    `gorm:"type:varchar(50);not null;uniqueIndex:idx_users_username_normalized"`
	Email              string    `gorm:"type:varchar(255);not null"`
	EmailNormalized    string    `gorm:"type:varchar(255);not null;uniqueIndex:idx_users_email_normalized"`
	DisplayName        string    `gorm:"type:varchar(100)"`
	PasswordHash       string    `gorm:"type:varchar(255);not null"`
	CreatedAt          time.Time `gorm:"autoCreateTime"`
	UpdatedAt          time.Time `gorm:"autoUpdateTime"`
}

// TableName specifies the table name for UserModel.
func (UserModel) TableName() string {
	return "users"
}

// ToDomain converts UserModel to domain User.
func (m *UserModel) ToDomain() *User {
	return &User{
		ID:           m.ID,
		Username:     m.Username,
		DisplayName:  m.DisplayName,
		Email:        m.Email,
		PasswordHash: m.PasswordHash,
		CreatedAt:    m.CreatedAt.UTC(),
	}
}

// UserToModel converts domain User to UserModel.
func UserToModel(u *User) *UserModel {
	return &UserModel{
		ID:                 u.ID,
		Username:           u.Username,
		UsernameNormalized: NormalizeKey(u.Username),
		Email:              u.Email,
		EmailNormalized:    NormalizeKey(u.Email),
		DisplayName:        u.DisplayName,
		PasswordHash:       u.PasswordHash,
		CreatedAt:          u.CreatedAt,
	}
}
