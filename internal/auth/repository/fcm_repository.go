package repository

import (
	"context"
	"time"

	authdomain "raid-mail-agent/internal/auth/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DeviceTokenRepository stores the push tokens of operator devices
type DeviceTokenRepository interface {
	SaveToken(ctx context.Context, operator, token, deviceInfo string) error
	ListTokens(ctx context.Context) ([]string, error)
	DeleteToken(ctx context.Context, token string) error
}

type deviceTokenRepository struct {
	db *gorm.DB
}

func NewDeviceTokenRepository(db *gorm.DB) DeviceTokenRepository {
	return &deviceTokenRepository{db: db}
}

// Migrate creates or updates the operator device table
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&authdomain.DeviceToken{})
}

// SaveToken saves or reassigns a device token (atomic upsert)
func (r *deviceTokenRepository) SaveToken(ctx context.Context, operator, token, deviceInfo string) error {
	now := time.Now()
	device := &authdomain.DeviceToken{
		ID:         uuid.New().String(),
		Operator:   operator,
		Token:      token,
		DeviceInfo: deviceInfo,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "token"}},
		DoUpdates: clause.AssignmentColumns([]string{"operator", "device_info", "updated_at"}),
	}).Create(device).Error
}

func (r *deviceTokenRepository) ListTokens(ctx context.Context) ([]string, error) {
	var tokens []string
	err := r.db.WithContext(ctx).Model(&authdomain.DeviceToken{}).Order("created_at ASC").Pluck("token", &tokens).Error
	if err != nil {
		return nil, err
	}
	return tokens, nil
}

func (r *deviceTokenRepository) DeleteToken(ctx context.Context, token string) error {
	return r.db.WithContext(ctx).Where("token = ?", token).Delete(&authdomain.DeviceToken{}).Error
}
