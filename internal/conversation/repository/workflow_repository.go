package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"raid-mail-agent/internal/conversation/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// WorkflowRepository is the workflow state store
type WorkflowRepository interface {
	// Get returns nil, nil when the thread has no workflow
	Get(ctx context.Context, threadID string) (*domain.Workflow, error)
	// CreateOrGet creates the workflow at step 0 / initiated unless one exists
	CreateOrGet(ctx context.Context, threadID, userEmail string) (*domain.Workflow, error)
	// CompareAndAdvance writes next only if current's step, status and revision are still stored.
	// It returns domain.ErrConflict when another writer got there first.
	CompareAndAdvance(ctx context.Context, current *domain.Workflow, next domain.Transition) (*domain.Workflow, error)
	List(ctx context.Context, status *domain.Status, limit, offset int) ([]*domain.Workflow, int64, error)
	// ListStale returns non-terminal workflows not touched since before that
	// have work due: an unanswered user message, an outbox whose delivery
	// lease has expired, or a pending extraction. Rows are ordered by thread
	// id and start after the given thread id.
	ListStale(ctx context.Context, before time.Time, after string, limit int) ([]*domain.Workflow, error)
}

type workflowRepository struct {
	db *gorm.DB
}

func NewWorkflowRepository(db *gorm.DB) WorkflowRepository {
	return &workflowRepository{db: db}
}

func (r *workflowRepository) Get(ctx context.Context, threadID string) (*domain.Workflow, error) {
	var wf domain.Workflow
	err := r.db.WithContext(ctx).Where("thread_id = ?", threadID).First(&wf).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if _, err := domain.ParseStatus(string(wf.Status)); err != nil {
		return nil, fmt.Errorf("workflow for thread %s: %w", threadID, err)
	}
	return &wf, nil
}

func (r *workflowRepository) CreateOrGet(ctx context.Context, threadID, userEmail string) (*domain.Workflow, error) {
	wf := &domain.Workflow{
		ID:        uuid.New().String(),
		ThreadID:  threadID,
		UserEmail: userEmail,
		Step:      0,
		Status:    domain.StatusInitiated,
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "thread_id"}},
		DoNothing: true,
	}).Create(wf).Error
	if err != nil {
		return nil, err
	}

	existing, err := r.Get(ctx, threadID)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrWorkflowNotFound, threadID)
	}
	return existing, nil
}

func (r *workflowRepository) CompareAndAdvance(ctx context.Context, current *domain.Workflow, next domain.Transition) (*domain.Workflow, error) {
	if _, err := domain.ParseStatus(string(next.Status)); err != nil {
		return nil, err
	}
	if next.Step < current.Step {
		return nil, fmt.Errorf("%w: step %d -> %d", domain.ErrInvalidTransition, current.Step, next.Step)
	}
	if !domain.CanTransition(current.Status, next.Status) {
		return nil, fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, current.Status, next.Status)
	}

	now := time.Now()
	res := r.db.WithContext(ctx).Model(&domain.Workflow{}).
		Where("thread_id = ? AND step = ? AND status = ? AND revision = ?",
			current.ThreadID, current.Step, string(current.Status), current.Revision).
		Updates(map[string]interface{}{
			"step":               next.Step,
			"status":             string(next.Status),
			"revision":           gorm.Expr("revision + 1"),
			"failed_from":        string(next.FailedFrom),
			"last_error":         next.LastError,
			"raw_output":         next.RawOutput,
			"outbox_to":          next.Outbox.To,
			"outbox_to_name":     next.Outbox.ToName,
			"outbox_subject":     next.Outbox.Subject,
			"outbox_body":        next.Outbox.Body,
			"outbox_in_reply_to": next.Outbox.InReplyTo,
			"outbox_references":  next.Outbox.References,
			"outbox_target_id":   next.Outbox.TargetID,
			"outbox_final":       next.Outbox.Final,
			"outbox_lease_until": next.Outbox.LeaseUntil,
			"updated_at":         now,
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, domain.ErrConflict
	}

	updated := current.Apply(next)
	updated.UpdatedAt = now
	return updated, nil
}

func (r *workflowRepository) List(ctx context.Context, status *domain.Status, limit, offset int) ([]*domain.Workflow, int64, error) {
	var workflows []*domain.Workflow
	var total int64

	query := r.db.WithContext(ctx).Model(&domain.Workflow{})
	if status != nil {
		query = query.Where("status = ?", string(*status))
	}
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.Order("updated_at DESC").Limit(limit).Offset(offset).Find(&workflows).Error
	return workflows, total, err
}

func (r *workflowRepository) ListStale(ctx context.Context, before time.Time, after string, limit int) ([]*domain.Workflow, error) {
	var workflows []*domain.Workflow
	unanswered := r.db.Model(&domain.Message{}).
		Select("COUNT(*)").
		Where("messages.thread_id = workflows.thread_id AND messages.sender = ?", string(domain.SenderUser))

	err := r.db.WithContext(ctx).
		Where("status IN ? AND updated_at < ? AND thread_id > ?", []string{
			string(domain.StatusInitiated),
			string(domain.StatusAwaitingReply),
			string(domain.StatusExtracting),
		}, before, after).
		Where(r.db.Where("status = ?", string(domain.StatusExtracting)).
			Or("outbox_body <> '' AND (outbox_lease_until IS NULL OR outbox_lease_until < ?)", time.Now()).
			Or("outbox_body = '' AND step < (?)", unanswered)).
		Order("thread_id ASC").
		Limit(limit).
		Find(&workflows).Error
	return workflows, err
}
