package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"raid-mail-agent/internal/conversation/domain"

	"cloud.google.com/go/pubsub"
	"google.golang.org/api/option"
)

// Handler consumes mailbox notifications. An error asks for redelivery.
type Handler interface {
	HandleNotification(ctx context.Context, n domain.Notification) error
}

// PubSubConfig names the Gmail push subscription
type PubSubConfig struct {
	Topic             string
	Subscription      string // defaults to <topic>-sub
	Workers           int
	ProcessingTimeout time.Duration
}

// PubSubSource receives Gmail push notifications from a Pub/Sub subscription
type PubSubSource struct {
	client  *pubsub.Client
	cfg     PubSubConfig
	handler Handler
}

// NewPubSubClient connects to Pub/Sub, optionally with a service account file
func NewPubSubClient(ctx context.Context, projectID, credentialsFile string, extra ...option.ClientOption) (*pubsub.Client, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	opts = append(opts, extra...)

	client, err := pubsub.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create pubsub client: %w", err)
	}
	return client, nil
}

func NewPubSubSource(client *pubsub.Client, cfg PubSubConfig, handler Handler) *PubSubSource {
	// Extract short topic name from full resource name if necessary
	if parts := strings.Split(cfg.Topic, "/"); len(parts) > 1 {
		cfg.Topic = parts[len(parts)-1]
	}
	if cfg.Topic == "" {
		cfg.Topic = "gmail-updates"
	}
	if cfg.Subscription == "" {
		cfg.Subscription = cfg.Topic + "-sub"
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 10
	}
	if cfg.ProcessingTimeout <= 0 {
		cfg.ProcessingTimeout = 5 * time.Minute
	}
	return &PubSubSource{client: client, cfg: cfg, handler: handler}
}

// Run receives notifications until ctx ends. A missing channel is an error.
func (s *PubSubSource) Run(ctx context.Context) error {
	log.Printf("[PubSub] Starting listener with topic: %s, subscription: %s", s.cfg.Topic, s.cfg.Subscription)

	sub, err := s.ensureSubscription(ctx)
	if err != nil {
		return err
	}
	sub.ReceiveSettings.MaxOutstandingMessages = s.cfg.Workers
	sub.ReceiveSettings.NumGoroutines = 1

	log.Printf("[PubSub] Listening for messages on subscription: %s", s.cfg.Subscription)
	err = sub.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		if err := s.handleMessage(ctx, msg.Data); err != nil {
			log.Printf("[PubSub] Message %s will be redelivered: %v", msg.ID, err)
			msg.Nack()
			return
		}
		msg.Ack()
	})
	if err != nil {
		return fmt.Errorf("receiving from %s: %w", s.cfg.Subscription, err)
	}
	log.Println("[PubSub] Listener stopped")
	return nil
}

func (s *PubSubSource) ensureSubscription(ctx context.Context) (*pubsub.Subscription, error) {
	sub := s.client.Subscription(s.cfg.Subscription)
	exists, err := sub.Exists(ctx)
	if err != nil {
		return nil, fmt.Errorf("checking subscription %s: %w", s.cfg.Subscription, err)
	}
	if exists {
		return sub, nil
	}

	topic := s.client.Topic(s.cfg.Topic)
	topicExists, err := topic.Exists(ctx)
	if err != nil {
		return nil, fmt.Errorf("checking topic %s: %w", s.cfg.Topic, err)
	}
	if !topicExists {
		return nil, fmt.Errorf("topic %s does not exist, cannot create subscription", s.cfg.Topic)
	}

	sub, err = s.client.CreateSubscription(ctx, s.cfg.Subscription, pubsub.SubscriptionConfig{
		Topic:       topic,
		AckDeadline: 60 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("creating subscription %s: %w", s.cfg.Subscription, err)
	}
	log.Printf("[PubSub] Created subscription: %s", s.cfg.Subscription)
	return sub, nil
}

// handleMessage decodes a Gmail push payload and hands it on. Payloads that
// cannot be decoded are acknowledged since redelivery cannot fix them.
func (s *PubSubSource) handleMessage(ctx context.Context, data []byte) error {
	var n domain.Notification
	if err := json.Unmarshal(data, &n); err != nil {
		log.Printf("[PubSub] Dropping undecodable notification: %v", err)
		return nil
	}
	log.Printf("[PubSub] Received notification for: %s (historyId: %d)", n.Mailbox, n.HistoryID)

	// finish the in-flight notification even when the receiver shuts down
	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.ProcessingTimeout)
	defer cancel()
	return s.handler.HandleNotification(runCtx, n)
}
