package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"raid-mail-agent/internal/conversation/domain"
	"raid-mail-agent/pkg/markdown"
	"raid-mail-agent/pkg/recipients"
)

func TestSeederWelcomesNewRecipients(t *testing.T) {
	ctx := context.Background()
	repos := newRepos(t)
	transport := &fakeTransport{}
	gen := &fakeGenerator{}
	appendInbound(t, repos, "T0", "m0", "I already wrote in", time.Now())

	seeder := NewSeeder(repos, transport, gen, markdown.NewRenderer(), testEngineConfig(nil), 2)
	report := seeder.Seed(ctx, []recipients.Recipient{
		{Name: "Jane", Email: "jane@uni.edu"},
		{Name: "Bob", Email: "bob@uni.edu"},
	})

	assert.Equal(t, []string{"bob@uni.edu"}, report.Sent)
	assert.Equal(t, []string{"jane@uni.edu"}, report.Skipped)
	assert.Empty(t, report.Failed)

	sent := transport.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "Welcome to RAID!", sent[0].Subject)
	assert.Empty(t, sent[0].ThreadID)

	reqs := gen.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, 0, reqs[0].Exchange)

	wf, err := repos.Workflows.Get(ctx, "thread-agent-1")
	require.NoError(t, err)
	require.NotNil(t, wf)
	assert.Equal(t, domain.StatusInitiated, wf.Status)
	assert.Equal(t, "bob@uni.edu", wf.UserEmail)

	messages, err := repos.Messages.ListByThread(ctx, "thread-agent-1")
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, domain.SenderAgent, messages[0].Sender)

	// a second run skips everyone
	report = seeder.Seed(ctx, []recipients.Recipient{{Name: "Bob", Email: "bob@uni.edu"}})
	assert.Empty(t, report.Sent)
	assert.Len(t, transport.Sent(), 1)
}

func TestSeederResendsUnrecordedWelcome(t *testing.T) {
	ctx := context.Background()
	repos := newRepos(t)
	repos.Messages = &failingAppend{MessageRepository: repos.Messages, failures: fastRetry.MaxAttempts}
	transport := &fakeTransport{}
	seeder := NewSeeder(repos, transport, &fakeGenerator{}, markdown.NewRenderer(), testEngineConfig(nil), 1)
	bob := []recipients.Recipient{{Name: "Bob", Email: "bob@uni.edu"}}

	report := seeder.Seed(ctx, bob)
	require.Len(t, report.Failed, 1)
	require.Len(t, transport.Sent(), 1)

	// nothing was recorded for bob, so the next run welcomes him again
	report = seeder.Seed(ctx, bob)
	assert.Equal(t, []string{"bob@uni.edu"}, report.Sent)
	assert.Len(t, transport.Sent(), 2)
}

func TestSeederReportsFailures(t *testing.T) {
	repos := newRepos(t)
	transport := &fakeTransport{sendFailures: 10}
	seeder := NewSeeder(repos, transport, &fakeGenerator{}, markdown.NewRenderer(), testEngineConfig(nil), 1)

	report := seeder.Seed(context.Background(), []recipients.Recipient{{Name: "Bob", Email: "bob@uni.edu"}})
	assert.Empty(t, report.Sent)
	require.Contains(t, report.Failed, "bob@uni.edu")
	assert.ErrorContains(t, report.Failed["bob@uni.edu"], "send welcome")
}

func TestSeededThreadContinuesOnReply(t *testing.T) {
	ctx := context.Background()
	repos := newRepos(t)
	transport := &fakeTransport{}
	gen := &fakeGenerator{}
	seeder := NewSeeder(repos, transport, gen, markdown.NewRenderer(), testEngineConfig(nil), 1)
	report := seeder.Seed(ctx, []recipients.Recipient{{Name: "Jane", Email: "jane@uni.edu"}})
	require.Len(t, report.Sent, 1)

	appendInbound(t, repos, "thread-agent-1", "m1", "Thanks! I study CS", time.Now().Add(time.Second))
	engine := newTestEngine(repos, transport, gen, ExchangeLimit{Max: 4})
	wf, err := engine.Process(ctx, "thread-agent-1")
	require.NoError(t, err)
	assert.Equal(t, 1, wf.Step)

	sent := transport.Sent()
	require.Len(t, sent, 2)
	assert.Equal(t, "thread-agent-1", sent[1].ThreadID)
	assert.Contains(t, sent[1].References, "agent-1@raid.club")
}
