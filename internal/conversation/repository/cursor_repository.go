package repository

import (
	"context"
	"errors"
	"time"

	"raid-mail-agent/internal/conversation/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CursorRepository stores the last processed history marker per mailbox
type CursorRepository interface {
	// Get returns 0 when the mailbox has never been processed
	Get(ctx context.Context, mailbox string) (uint64, error)
	// Advance moves the cursor forward only; advanced is false if it already was at or past historyID
	Advance(ctx context.Context, mailbox string, historyID uint64) (advanced bool, err error)
}

type cursorRepository struct {
	db *gorm.DB
}

func NewCursorRepository(db *gorm.DB) CursorRepository {
	return &cursorRepository{db: db}
}

func (r *cursorRepository) Get(ctx context.Context, mailbox string) (uint64, error) {
	var cursor domain.MailboxCursor
	err := r.db.WithContext(ctx).Where("mailbox = ?", mailbox).First(&cursor).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return cursor.HistoryID, nil
}

func (r *cursorRepository) Advance(ctx context.Context, mailbox string, historyID uint64) (bool, error) {
	now := time.Now()
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "mailbox"}},
		DoNothing: true,
	}).Create(&domain.MailboxCursor{Mailbox: mailbox, HistoryID: historyID, UpdatedAt: now})
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 1 {
		return true, nil
	}

	res = r.db.WithContext(ctx).Model(&domain.MailboxCursor{}).
		Where("mailbox = ? AND history_id < ?", mailbox, historyID).
		Updates(map[string]interface{}{"history_id": historyID, "updated_at": now})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
