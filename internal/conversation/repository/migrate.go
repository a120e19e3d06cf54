package repository

import (
	"raid-mail-agent/internal/conversation/domain"

	"gorm.io/gorm"
)

// Migrate creates or updates the conversation tables
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&domain.User{},
		&domain.Message{},
		&domain.Workflow{},
		&domain.Application{},
		&domain.MailboxCursor{},
	)
}
