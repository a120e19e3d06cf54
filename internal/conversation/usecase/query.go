package usecase

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"raid-mail-agent/internal/conversation/domain"
	"raid-mail-agent/pkg/fuzzy"
)

// ErrEmptyQuery is returned for a blank search
var ErrEmptyQuery = errors.New("search query is empty")

// ThreadView is a workflow together with its message log
type ThreadView struct {
	Workflow *domain.Workflow  `json:"workflow"`
	Messages []*domain.Message `json:"messages"`
}

// WorkflowEngine is the part of the engine operators can drive
type WorkflowEngine interface {
	ThreadProcessor
	Reset(ctx context.Context, threadID string) (*domain.Workflow, error)
}

// ConversationUsecase serves the operator API
type ConversationUsecase interface {
	ListThreads(ctx context.Context, status string, limit, offset int) ([]*domain.Workflow, int64, error)
	GetThread(ctx context.Context, threadID string) (*ThreadView, error)
	ResetThread(ctx context.Context, threadID string) (*domain.Workflow, error)
	ProcessThread(ctx context.Context, threadID string) (*domain.Workflow, error)
	ListApplications(ctx context.Context, limit, offset int) ([]*domain.Application, int64, error)
	GetApplication(ctx context.Context, email string) (*domain.Application, error)
	SearchApplications(ctx context.Context, query string, limit int) ([]*domain.Application, error)
}

type conversationUsecase struct {
	repos             Repositories
	engine            WorkflowEngine
	index             domain.ApplicationIndex
	processingTimeout time.Duration
}

func NewConversationUsecase(repos Repositories, engine WorkflowEngine, index domain.ApplicationIndex, processingTimeout time.Duration) ConversationUsecase {
	if processingTimeout <= 0 {
		processingTimeout = 5 * time.Minute
	}
	return &conversationUsecase{repos: repos, engine: engine, index: index, processingTimeout: processingTimeout}
}

func (u *conversationUsecase) ListThreads(ctx context.Context, status string, limit, offset int) ([]*domain.Workflow, int64, error) {
	var filter *domain.Status
	if status != "" {
		s, err := domain.ParseStatus(status)
		if err != nil {
			return nil, 0, err
		}
		filter = &s
	}
	return u.repos.Workflows.List(ctx, filter, limit, offset)
}

func (u *conversationUsecase) GetThread(ctx context.Context, threadID string) (*ThreadView, error) {
	wf, err := u.repos.Workflows.Get(ctx, threadID)
	if err != nil {
		return nil, err
	}
	if wf == nil {
		return nil, domain.ErrWorkflowNotFound
	}
	messages, err := u.repos.Messages.ListByThread(ctx, threadID)
	if err != nil {
		return nil, err
	}
	return &ThreadView{Workflow: wf, Messages: messages}, nil
}

// ResetThread re-opens a failed thread and resumes it in the background
func (u *conversationUsecase) ResetThread(ctx context.Context, threadID string) (*domain.Workflow, error) {
	wf, err := u.engine.Reset(ctx, threadID)
	if err != nil {
		return nil, err
	}

	go func() {
		runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), u.processingTimeout)
		defer cancel()
		if _, err := u.engine.Process(runCtx, threadID); err != nil {
			log.Printf("[Conversation] Resumed thread %s: %v", threadID, err)
		}
	}()
	return wf, nil
}

func (u *conversationUsecase) ProcessThread(ctx context.Context, threadID string) (*domain.Workflow, error) {
	runCtx, cancel := context.WithTimeout(ctx, u.processingTimeout)
	defer cancel()
	wf, err := u.engine.Process(runCtx, threadID)
	if err != nil {
		return wf, err
	}
	if wf == nil {
		return nil, domain.ErrWorkflowNotFound
	}
	return wf, nil
}

func (u *conversationUsecase) ListApplications(ctx context.Context, limit, offset int) ([]*domain.Application, int64, error) {
	return u.repos.Applications.List(ctx, limit, offset)
}

func (u *conversationUsecase) GetApplication(ctx context.Context, email string) (*domain.Application, error) {
	app, err := u.repos.Applications.FindByEmail(ctx, strings.ToLower(email))
	if err != nil {
		return nil, err
	}
	if app == nil {
		return nil, domain.ErrApplicationMissing
	}
	return app, nil
}

// SearchApplications uses the semantic index when available and falls back
// to fuzzy matching on name, email and major
func (u *conversationUsecase) SearchApplications(ctx context.Context, query string, limit int) ([]*domain.Application, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	if limit <= 0 {
		limit = 10
	}

	if u.index != nil {
		emails, err := u.index.Search(ctx, query, limit)
		if err == nil && len(emails) > 0 {
			return u.repos.Applications.FindByEmails(ctx, emails)
		}
		if err != nil {
			log.Printf("[Conversation] Semantic search failed, using fuzzy search: %v", err)
		}
	}
	return u.fuzzySearch(ctx, query, limit)
}

func (u *conversationUsecase) fuzzySearch(ctx context.Context, query string, limit int) ([]*domain.Application, error) {
	apps, _, err := u.repos.Applications.List(ctx, 1000, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to list applications: %w", err)
	}

	type scored struct {
		app   *domain.Application
		score float64
	}
	var matches []scored
	for _, app := range apps {
		if s := fuzzy.ScoreApplicant(query, app.Name, app.Email, app.Major); s > 0 {
			matches = append(matches, scored{app: app, score: s})
		}
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].score > matches[j].score })

	out := make([]*domain.Application, 0, min(limit, len(matches)))
	for i := 0; i < len(matches) && i < limit; i++ {
		out = append(out, matches[i].app)
	}
	return out, nil
}
