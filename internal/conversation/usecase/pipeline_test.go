package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"raid-mail-agent/internal/conversation/domain"
)

type recordingProcessor struct {
	mu      sync.Mutex
	threads []string
}

func (p *recordingProcessor) Process(_ context.Context, threadID string) (*domain.Workflow, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.threads = append(p.threads, threadID)
	return nil, nil
}

func userRaw(id, thread, body string) *domain.RawMessage {
	return &domain.RawMessage{
		ID:           id,
		ThreadID:     thread,
		RFCMessageID: id + "@mail.uni.edu",
		From:         "jane@uni.edu",
		FromName:     "Jane",
		To:           []string{"agent@raid.club"},
		Subject:      "Re: Welcome to RAID!",
		Body:         body,
		Date:         time.Now(),
	}
}

func newTestPipeline(repos Repositories, transport *fakeTransport, processor ThreadProcessor) *Pipeline {
	resolver := NewResolver(repos, "agent@raid.club", fastRetry)
	return NewPipeline(repos, transport, resolver, processor, PipelineConfig{
		Mailbox:     "agent@raid.club",
		Lookback:    20,
		Concurrency: 2,
		Fetch:       fastRetry,
		Store:       fastRetry,
	})
}

func TestPipelineProcessesNewThreads(t *testing.T) {
	ctx := context.Background()
	repos := newRepos(t)
	transport := &fakeTransport{changes: &domain.ChangeSet{
		HistoryID: 120,
		Messages: []*domain.RawMessage{
			userRaw("m1", "T1", "Hi"),
			userRaw("m2", "T1", "Also, I like robotics"),
			userRaw("m3", "T2", "Hello"),
		},
	}}
	processor := &recordingProcessor{}
	pipeline := newTestPipeline(repos, transport, processor)

	require.NoError(t, pipeline.HandleNotification(ctx, domain.Notification{Mailbox: "Agent@raid.club", HistoryID: 100}))

	assert.ElementsMatch(t, []string{"T1", "T2"}, processor.threads)
	// first fetch looks back from the notification marker
	assert.Equal(t, []uint64{80}, transport.fetches)

	cursor, err := repos.Cursors.Get(ctx, "agent@raid.club")
	require.NoError(t, err)
	assert.Equal(t, uint64(120), cursor)

	// redelivery of a newer notification refetches but finds only duplicates
	processor.threads = nil
	require.NoError(t, pipeline.HandleNotification(ctx, domain.Notification{Mailbox: "agent@raid.club", HistoryID: 121}))
	assert.Empty(t, processor.threads)
	assert.Equal(t, []uint64{80, 120}, transport.fetches)
}

func TestPipelineSkipsStaleNotification(t *testing.T) {
	ctx := context.Background()
	repos := newRepos(t)
	_, err := repos.Cursors.Advance(ctx, "agent@raid.club", 500)
	require.NoError(t, err)

	transport := &fakeTransport{changes: &domain.ChangeSet{HistoryID: 501, Messages: []*domain.RawMessage{userRaw("m1", "T1", "Hi")}}}
	processor := &recordingProcessor{}
	pipeline := newTestPipeline(repos, transport, processor)

	require.NoError(t, pipeline.HandleNotification(ctx, domain.Notification{Mailbox: "agent@raid.club", HistoryID: 400}))
	require.NoError(t, pipeline.HandleNotification(ctx, domain.Notification{Mailbox: "agent@raid.club", HistoryID: 500}))

	assert.Empty(t, transport.fetches)
	assert.Empty(t, processor.threads)
}

func TestPipelineIdleNotificationUsesCursor(t *testing.T) {
	ctx := context.Background()
	repos := newRepos(t)
	_, err := repos.Cursors.Advance(ctx, "agent@raid.club", 7)
	require.NoError(t, err)

	transport := &fakeTransport{changes: &domain.ChangeSet{HistoryID: 9, Messages: []*domain.RawMessage{userRaw("m1", "T1", "Hi")}}}
	processor := &recordingProcessor{}
	pipeline := newTestPipeline(repos, transport, processor)

	require.NoError(t, pipeline.HandleNotification(ctx, domain.Notification{}))
	assert.Equal(t, []uint64{7}, transport.fetches)
	assert.Equal(t, []string{"T1"}, processor.threads)

	cursor, err := repos.Cursors.Get(ctx, "agent@raid.club")
	require.NoError(t, err)
	assert.Equal(t, uint64(9), cursor)
}

func TestPipelineRunsEngineEndToEnd(t *testing.T) {
	ctx := context.Background()
	repos := newRepos(t)
	transport := &fakeTransport{changes: &domain.ChangeSet{HistoryID: 3, Messages: []*domain.RawMessage{userRaw("m1", "T1", "Hi, I'm Jane, interested in ML")}}}
	engine := newTestEngine(repos, transport, &fakeGenerator{}, ExchangeLimit{Max: 4})
	pipeline := newTestPipeline(repos, transport, engine)

	require.NoError(t, pipeline.HandleNotification(ctx, domain.Notification{Mailbox: "agent@raid.club", HistoryID: 2}))

	wf, err := repos.Workflows.Get(ctx, "T1")
	require.NoError(t, err)
	require.NotNil(t, wf)
	assert.Equal(t, 1, wf.Step)
	assert.Equal(t, domain.StatusAwaitingReply, wf.Status)
	assert.Len(t, transport.Sent(), 1)
}
