package repository

import (
	"gorm.io/gorm"

	"github.com/weiawesome/wes-chat/internal/domain"
	"github.com/weiawesome/wes-chat/pkg/database"
)

// Migrate creates or updates the SQL tables for messages and users.
func Migrate(db *gorm.DB) error {
	return database.AutoMigrate(db, &domain.MessageModel{}, &domain.UserModel{})
}
