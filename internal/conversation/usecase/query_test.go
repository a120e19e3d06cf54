package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"raid-mail-agent/internal/conversation/domain"
)

func seedApplications(t *testing.T, repos Repositories) {
	t.Helper()
	for _, app := range []*domain.Application{
		{Email: "jane@uni.edu", Name: "Jane Nguyen", Major: "Computer Science"},
		{Email: "bob@uni.edu", Name: "Bob Tran", Major: "Mechanical Engineering"},
	} {
		require.NoError(t, repos.Applications.Upsert(context.Background(), app))
	}
}

func TestConversationQueries(t *testing.T) {
	ctx := context.Background()
	repos := newRepos(t)
	transport := &fakeTransport{}
	engine := newTestEngine(repos, transport, &fakeGenerator{}, ExchangeLimit{Max: 4})
	uc := NewConversationUsecase(repos, engine, nil, time.Minute)

	appendInbound(t, repos, "T1", "m1", "Hi", time.Now())
	wf, err := uc.ProcessThread(ctx, "T1")
	require.NoError(t, err)
	assert.Equal(t, 1, wf.Step)

	view, err := uc.GetThread(ctx, "T1")
	require.NoError(t, err)
	assert.Len(t, view.Messages, 2)

	_, err = uc.GetThread(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrWorkflowNotFound)
	_, err = uc.ProcessThread(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrWorkflowNotFound)

	threads, total, err := uc.ListThreads(ctx, "awaiting_reply", 10, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Len(t, threads, 1)

	_, _, err = uc.ListThreads(ctx, "bogus", 10, 0)
	assert.ErrorIs(t, err, domain.ErrUnknownStatus)

	_, err = uc.ResetThread(ctx, "T1")
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestResetThreadResumesInBackground(t *testing.T) {
	ctx := context.Background()
	repos := newRepos(t)
	transport := &fakeTransport{sendFailures: 3}
	engine := newTestEngine(repos, transport, &fakeGenerator{}, ExchangeLimit{Max: 4})
	uc := NewConversationUsecase(repos, engine, nil, time.Minute)

	appendInbound(t, repos, "T1", "m1", "Hi", time.Now())
	_, err := uc.ProcessThread(ctx, "T1")
	require.Error(t, err)

	reset, err := uc.ResetThread(ctx, "T1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusInitiated, reset.Status)

	assert.Eventually(t, func() bool {
		wf, err := repos.Workflows.Get(ctx, "T1")
		return err == nil && wf.Status == domain.StatusAwaitingReply
	}, 5*time.Second, 20*time.Millisecond)
	assert.Len(t, transport.Sent(), 1)
}

func TestApplicationQueries(t *testing.T) {
	ctx := context.Background()
	repos := newRepos(t)
	seedApplications(t, repos)
	uc := NewConversationUsecase(repos, nil, nil, 0)

	app, err := uc.GetApplication(ctx, "Jane@Uni.edu")
	require.NoError(t, err)
	assert.Equal(t, "Jane Nguyen", app.Name)

	_, err = uc.GetApplication(ctx, "nobody@uni.edu")
	assert.ErrorIs(t, err, domain.ErrApplicationMissing)

	apps, total, err := uc.ListApplications(ctx, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, apps, 2)
}

func TestSearchApplications(t *testing.T) {
	ctx := context.Background()
	repos := newRepos(t)
	seedApplications(t, repos)

	t.Run("fuzzy fallback", func(t *testing.T) {
		uc := NewConversationUsecase(repos, nil, nil, 0)
		apps, err := uc.SearchApplications(ctx, "mechanical", 5)
		require.NoError(t, err)
		require.Len(t, apps, 1)
		assert.Equal(t, "bob@uni.edu", apps[0].Email)

		_, err = uc.SearchApplications(ctx, "  ", 5)
		assert.ErrorIs(t, err, ErrEmptyQuery)
	})

	t.Run("semantic index", func(t *testing.T) {
		uc := NewConversationUsecase(repos, nil, &fakeIndex{results: []string{"jane@uni.edu"}}, 0)
		apps, err := uc.SearchApplications(ctx, "likes neural networks", 5)
		require.NoError(t, err)
		require.Len(t, apps, 1)
		assert.Equal(t, "jane@uni.edu", apps[0].Email)
	})

	t.Run("index failure falls back", func(t *testing.T) {
		uc := NewConversationUsecase(repos, nil, &fakeIndex{err: errors.New("chroma down")}, 0)
		apps, err := uc.SearchApplications(ctx, "Jane", 5)
		require.NoError(t, err)
		require.NotEmpty(t, apps)
		assert.Equal(t, "jane@uni.edu", apps[0].Email)
	})
}
