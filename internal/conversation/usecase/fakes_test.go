package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"raid-mail-agent/internal/conversation/domain"
	"raid-mail-agent/internal/conversation/repository"
	"raid-mail-agent/internal/testutil"
	"raid-mail-agent/pkg/markdown"
)

var fastRetry = RetryPolicy{MaxAttempts: 3, InitialInterval: time.Millisecond, MaxInterval: 5 * time.Millisecond}

func newRepos(t *testing.T) Repositories {
	repos, _ := newReposWithDB(t)
	return repos
}

func newReposWithDB(t *testing.T) (Repositories, *gorm.DB) {
	db := testutil.NewDB(t)
	return Repositories{
		Workflows:    repository.NewWorkflowRepository(db),
		Messages:     repository.NewMessageRepository(db),
		Users:        repository.NewUserRepository(db),
		Applications: repository.NewApplicationRepository(db),
		Cursors:      repository.NewCursorRepository(db),
	}, db
}

func testEngineConfig(policy CompletionPolicy) EngineConfig {
	return EngineConfig{
		Generation:     fastRetry,
		Transport:      fastRetry,
		Store:          fastRetry,
		Policy:         policy,
		WelcomeSubject: "Welcome to RAID!",
	}
}

// fakeTransport records sent mail and serves a scripted change set. When
// hold is set every Send signals sending and waits for hold to close.
type fakeTransport struct {
	mu           sync.Mutex
	sent         []*domain.OutboundMail
	sendFailures int
	changes      *domain.ChangeSet
	fetches      []uint64
	hold         chan struct{}
	sending      chan struct{}
}

func (f *fakeTransport) FetchChanges(_ context.Context, _ string, since uint64) (*domain.ChangeSet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches = append(f.fetches, since)
	if f.changes == nil {
		return &domain.ChangeSet{HistoryID: since}, nil
	}
	return f.changes, nil
}

func (f *fakeTransport) Send(_ context.Context, mail *domain.OutboundMail) (*domain.SentMail, error) {
	if f.hold != nil {
		select {
		case f.sending <- struct{}{}:
		default:
		}
		<-f.hold
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendFailures > 0 {
		f.sendFailures--
		return nil, errors.New("smtp: connection reset")
	}
	f.sent = append(f.sent, mail)
	id := fmt.Sprintf("agent-%d", len(f.sent))
	threadID := mail.ThreadID
	if threadID == "" {
		threadID = "thread-" + id
	}
	return &domain.SentMail{
		ThreadID:     threadID,
		MessageID:    id,
		RFCMessageID: id + "@raid.club",
		Timestamp:    time.Now(),
	}, nil
}

func (f *fakeTransport) Sent() []*domain.OutboundMail {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*domain.OutboundMail(nil), f.sent...)
}

// fakeGenerator drafts numbered replies and returns a fixed extraction
type fakeGenerator struct {
	mu            sync.Mutex
	draftFailures int
	requests      []domain.DraftRequest
	extraction    *domain.Extraction
	extractErr    error
	extractCalls  int
}

func (g *fakeGenerator) DraftReply(_ context.Context, req *domain.DraftRequest) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.draftFailures > 0 {
		g.draftFailures--
		return "", errors.New("generation backend timed out")
	}
	g.requests = append(g.requests, *req)
	if req.Final {
		return fmt.Sprintf("Goodbye %s, it was great talking!", req.Name), nil
	}
	return fmt.Sprintf("Reply %d for **%s**", req.Exchange, req.Name), nil
}

func (g *fakeGenerator) ExtractFields(_ context.Context, _ []*domain.Message) (*domain.Extraction, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.extractCalls++
	if g.extractErr != nil {
		return nil, g.extractErr
	}
	if g.extraction != nil {
		return g.extraction, nil
	}
	return &domain.Extraction{Major: "Computer Science", Motivation: "Machine learning", DesiredActivities: []string{"workshops"}}, nil
}

func (g *fakeGenerator) Requests() []domain.DraftRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]domain.DraftRequest(nil), g.requests...)
}

type recordingAlerter struct {
	mu     sync.Mutex
	failed []string
}

func (a *recordingAlerter) ThreadFailed(_ context.Context, wf *domain.Workflow) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.failed = append(a.failed, wf.ThreadID)
}

type fakeIndex struct {
	indexed []string
	results []string
	err     error
}

func (i *fakeIndex) Index(_ context.Context, app *domain.Application) error {
	i.indexed = append(i.indexed, app.Email)
	return nil
}

func (i *fakeIndex) Search(_ context.Context, _ string, _ int) ([]string, error) {
	return i.results, i.err
}

// failingAppend rejects agent messages until failures runs out
type failingAppend struct {
	repository.MessageRepository
	mu       sync.Mutex
	failures int
}

func (f *failingAppend) Append(ctx context.Context, msg *domain.Message) (bool, error) {
	f.mu.Lock()
	fail := msg.Sender == domain.SenderAgent && f.failures > 0
	if fail {
		f.failures--
	}
	f.mu.Unlock()
	if fail {
		return false, errors.New("database is locked")
	}
	return f.MessageRepository.Append(ctx, msg)
}

// ageWorkflow moves a workflow's last update into the past
func ageWorkflow(t *testing.T, db *gorm.DB, threadID string, age time.Duration) {
	t.Helper()
	err := db.Model(&domain.Workflow{}).Where("thread_id = ?", threadID).
		UpdateColumn("updated_at", time.Now().Add(-age)).Error
	require.NoError(t, err)
}

// appendInbound stores a user message at ts in the thread
func appendInbound(t *testing.T, repos Repositories, threadID, id, body string, ts time.Time) {
	t.Helper()
	ctx := context.Background()
	_, err := repos.Users.Ensure(ctx, "jane@uni.edu", "Jane")
	require.NoError(t, err)
	_, err = repos.Messages.Append(ctx, &domain.Message{
		ThreadID:     threadID,
		MessageID:    id,
		UserEmail:    "jane@uni.edu",
		Sender:       domain.SenderUser,
		Subject:      "Welcome to RAID!",
		Body:         body,
		RFCMessageID: id + "@mail.uni.edu",
		Timestamp:    ts,
	})
	require.NoError(t, err)
}

func newTestEngine(repos Repositories, transport *fakeTransport, gen *fakeGenerator, policy CompletionPolicy) *Engine {
	return NewEngine(repos, transport, gen, markdown.NewRenderer(), testEngineConfig(policy))
}
