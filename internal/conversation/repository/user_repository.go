package repository

import (
	"context"
	"errors"
	"time"

	"raid-mail-agent/internal/conversation/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type UserRepository interface {
	// Ensure creates the user on first sight and renames it when a new non-empty name shows up
	Ensure(ctx context.Context, email, name string) (*domain.User, error)
	FindByEmail(ctx context.Context, email string) (*domain.User, error)
}

type userRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) Ensure(ctx context.Context, email, name string) (*domain.User, error) {
	now := time.Now()
	user := &domain.User{Email: email, Name: name, CreatedAt: now, UpdatedAt: now}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "email"}},
		DoNothing: true,
	}).Create(user).Error
	if err != nil {
		return nil, err
	}

	if name != "" {
		err = r.db.WithContext(ctx).Model(&domain.User{}).
			Where("email = ? AND name <> ?", email, name).
			Updates(map[string]interface{}{"name": name, "updated_at": now}).Error
		if err != nil {
			return nil, err
		}
	}

	return r.FindByEmail(ctx, email)
}

func (r *userRepository) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	var user domain.User
	err := r.db.WithContext(ctx).Where("email = ?", email).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}
