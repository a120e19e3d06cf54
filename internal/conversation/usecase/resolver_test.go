package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"raid-mail-agent/internal/conversation/domain"
)

func TestResolverStoresOnce(t *testing.T) {
	ctx := context.Background()
	repos := newRepos(t)
	resolver := NewResolver(repos, "Agent@raid.club", fastRetry)

	res, err := resolver.Resolve(ctx, userRaw("m1", "T1", "Hi"))
	require.NoError(t, err)
	assert.True(t, res.New)
	assert.Equal(t, domain.SenderUser, res.Message.Sender)
	require.Len(t, res.History, 1)

	user, err := repos.Users.FindByEmail(ctx, "jane@uni.edu")
	require.NoError(t, err)
	assert.Equal(t, "Jane", user.Name)

	res, err = resolver.Resolve(ctx, userRaw("m1", "T1", "Hi"))
	require.NoError(t, err)
	assert.False(t, res.New)
	assert.Equal(t, "duplicate", res.Skipped)

	messages, err := repos.Messages.ListByThread(ctx, "T1")
	require.NoError(t, err)
	assert.Len(t, messages, 1)
}

func TestResolverHistoryEndsAtMessage(t *testing.T) {
	ctx := context.Background()
	repos := newRepos(t)
	resolver := NewResolver(repos, "agent@raid.club", fastRetry)

	later := userRaw("m2", "T1", "second")
	later.Date = time.Now()
	earlier := userRaw("m1", "T1", "first")
	earlier.Date = later.Date.Add(-time.Minute)

	_, err := resolver.Resolve(ctx, later)
	require.NoError(t, err)
	res, err := resolver.Resolve(ctx, earlier)
	require.NoError(t, err)
	require.Len(t, res.History, 1)
	assert.Equal(t, "m1", res.History[0].MessageID)
}

func TestResolverAgentMessage(t *testing.T) {
	ctx := context.Background()
	repos := newRepos(t)
	resolver := NewResolver(repos, "agent@raid.club", fastRetry)

	res, err := resolver.Resolve(ctx, &domain.RawMessage{
		ID:       "a1",
		ThreadID: "T1",
		From:     "agent@raid.club",
		To:       []string{"jane@uni.edu"},
		Body:     "Welcome!",
	})
	require.NoError(t, err)
	assert.True(t, res.New)
	assert.Equal(t, domain.SenderAgent, res.Message.Sender)
	assert.Equal(t, "jane@uni.edu", res.Message.UserEmail)
}

func TestResolverSkips(t *testing.T) {
	ctx := context.Background()
	resolver := NewResolver(newRepos(t), "agent@raid.club", fastRetry)

	tests := []struct {
		name   string
		raw    *domain.RawMessage
		reason string
	}{
		{"no sender", &domain.RawMessage{ID: "x1", ThreadID: "T", To: []string{"agent@raid.club"}}, "no sender"},
		{"automated", &domain.RawMessage{ID: "x2", ThreadID: "T", From: "no-reply@accounts.google.com", To: []string{"agent@raid.club"}}, "automated sender"},
		{"not addressed", &domain.RawMessage{ID: "x3", ThreadID: "T", From: "bob@uni.edu", To: []string{"list@uni.edu"}}, "not addressed to agent"},
		{"agent without recipient", &domain.RawMessage{ID: "x4", ThreadID: "T", From: "agent@raid.club", To: []string{"agent@raid.club"}}, "no participant"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := resolver.Resolve(ctx, tt.raw)
			require.NoError(t, err)
			assert.False(t, res.New)
			assert.Equal(t, tt.reason, res.Skipped)
		})
	}
}

func TestResolverAcceptsCc(t *testing.T) {
	resolver := NewResolver(newRepos(t), "agent@raid.club", fastRetry)
	raw := userRaw("m1", "T1", "Hi")
	raw.To = []string{"friend@uni.edu"}
	raw.Cc = []string{"AGENT@raid.club"}

	res, err := resolver.Resolve(context.Background(), raw)
	require.NoError(t, err)
	assert.True(t, res.New)
}
