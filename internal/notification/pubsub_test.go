package notification

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"raid-mail-agent/internal/conversation/domain"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

type recordingHandler struct {
	mu       sync.Mutex
	received []domain.Notification
	failures int
	done     chan struct{}
	want     int
}

func (h *recordingHandler) HandleNotification(ctx context.Context, n domain.Notification) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := ctx.Deadline(); !ok {
		return errors.New("handler context has no deadline")
	}
	if h.failures > 0 {
		h.failures--
		return errors.New("gmail unavailable")
	}
	h.received = append(h.received, n)
	if len(h.received) == h.want {
		close(h.done)
	}
	return nil
}

func newTestClient(t *testing.T) *pubsub.Client {
	srv := pstest.NewServer()
	t.Cleanup(func() { srv.Close() })

	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	client, err := NewPubSubClient(context.Background(), "raid-project", "", option.WithGRPCConn(conn))
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client
}

func publish(t *testing.T, topic *pubsub.Topic, data string) {
	_, err := topic.Publish(context.Background(), &pubsub.Message{Data: []byte(data)}).Get(context.Background())
	require.NoError(t, err)
}

func TestPubSubSourceDeliversNotifications(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	client := newTestClient(t)
	topic, err := client.CreateTopic(ctx, "gmail-updates")
	require.NoError(t, err)

	handler := &recordingHandler{failures: 1, want: 1, done: make(chan struct{})}
	source := NewPubSubSource(client, PubSubConfig{Topic: "projects/raid-project/topics/gmail-updates", Workers: 2}, handler)

	runCtx, stop := context.WithCancel(ctx)
	errCh := make(chan error, 1)
	go func() { errCh <- source.Run(runCtx) }()

	// the subscription is created by Run, so wait for it before publishing
	require.Eventually(t, func() bool {
		ok, err := client.Subscription("gmail-updates-sub").Exists(ctx)
		return err == nil && ok
	}, 10*time.Second, 20*time.Millisecond)

	publish(t, topic, "not json")
	publish(t, topic, `{"emailAddress":"agent@raid.club","historyId":4242}`)

	select {
	case <-handler.done:
	case <-ctx.Done():
		t.Fatal("notification was not delivered")
	}
	stop()
	require.NoError(t, <-errCh)

	handler.mu.Lock()
	defer handler.mu.Unlock()
	require.Len(t, handler.received, 1)
	assert.Equal(t, domain.Notification{Mailbox: "agent@raid.club", HistoryID: 4242}, handler.received[0])
}

func TestPubSubSourceFailsWithoutTopic(t *testing.T) {
	client := newTestClient(t)
	source := NewPubSubSource(client, PubSubConfig{Topic: "missing"}, &recordingHandler{})

	err := source.Run(context.Background())
	assert.ErrorContains(t, err, "does not exist")
}
