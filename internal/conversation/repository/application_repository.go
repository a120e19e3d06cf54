package repository

import (
	"context"
	"errors"
	"time"

	"raid-mail-agent/internal/conversation/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ApplicationRepository interface {
	// Upsert writes the record keyed by email, replacing the extracted fields
	Upsert(ctx context.Context, app *domain.Application) error
	FindByEmail(ctx context.Context, email string) (*domain.Application, error)
	FindByEmails(ctx context.Context, emails []string) ([]*domain.Application, error)
	List(ctx context.Context, limit, offset int) ([]*domain.Application, int64, error)
}

type applicationRepository struct {
	db *gorm.DB
}

func NewApplicationRepository(db *gorm.DB) ApplicationRepository {
	return &applicationRepository{db: db}
}

func (r *applicationRepository) Upsert(ctx context.Context, app *domain.Application) error {
	now := time.Now()
	if app.CreatedAt.IsZero() {
		app.CreatedAt = now
	}
	app.UpdatedAt = now

	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "email"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"name", "thread_id", "conversation", "major", "motivation", "desired_activities", "updated_at",
		}),
	}).Create(app).Error
}

func (r *applicationRepository) FindByEmail(ctx context.Context, email string) (*domain.Application, error) {
	var app domain.Application
	err := r.db.WithContext(ctx).Where("email = ?", email).First(&app).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &app, nil
}

// FindByEmails keeps the order of emails, skipping unknown ones
func (r *applicationRepository) FindByEmails(ctx context.Context, emails []string) ([]*domain.Application, error) {
	if len(emails) == 0 {
		return []*domain.Application{}, nil
	}

	var found []*domain.Application
	if err := r.db.WithContext(ctx).Where("email IN ?", emails).Find(&found).Error; err != nil {
		return nil, err
	}

	byEmail := make(map[string]*domain.Application, len(found))
	for _, app := range found {
		byEmail[app.Email] = app
	}
	apps := make([]*domain.Application, 0, len(found))
	for _, email := range emails {
		if app, ok := byEmail[email]; ok {
			apps = append(apps, app)
		}
	}
	return apps, nil
}

func (r *applicationRepository) List(ctx context.Context, limit, offset int) ([]*domain.Application, int64, error) {
	var apps []*domain.Application
	var total int64

	query := r.db.WithContext(ctx).Model(&domain.Application{})
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	err := query.Order("updated_at DESC").Limit(limit).Offset(offset).Find(&apps).Error
	return apps, total, err
}
