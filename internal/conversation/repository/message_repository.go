package repository

import (
	"context"
	"time"

	"raid-mail-agent/internal/conversation/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MessageRepository is the append-only message log
type MessageRepository interface {
	// Append inserts the message unless (thread_id, message_id) is already stored.
	// inserted is false for duplicates.
	Append(ctx context.Context, msg *domain.Message) (inserted bool, err error)
	// ListByThread returns the thread ordered by (timestamp, message_id)
	ListByThread(ctx context.Context, threadID string) ([]*domain.Message, error)
	HasMessagesFor(ctx context.Context, userEmail string) (bool, error)
}

type messageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) MessageRepository {
	return &messageRepository{db: db}
}

func (r *messageRepository) Append(ctx context.Context, msg *domain.Message) (bool, error) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	res := r.db.WithContext(ctx).Omit("User").Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "thread_id"}, {Name: "message_id"}},
		DoNothing: true,
	}).Create(msg)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *messageRepository) ListByThread(ctx context.Context, threadID string) ([]*domain.Message, error) {
	var messages []*domain.Message
	err := r.db.WithContext(ctx).
		Where("thread_id = ?", threadID).
		Order("timestamp ASC, message_id ASC").
		Find(&messages).Error
	if err != nil {
		return nil, err
	}
	// timestamps round-trip with driver-specific precision
	domain.SortMessages(messages)
	return messages, nil
}

func (r *messageRepository) HasMessagesFor(ctx context.Context, userEmail string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.Message{}).Where("user_email = ?", userEmail).Count(&count).Error
	return count > 0, err
}
