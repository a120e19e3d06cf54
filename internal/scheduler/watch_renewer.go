package scheduler

import (
	"context"
	"fmt"
	"log"
	"time"

	"raid-mail-agent/internal/conversation/repository"
)

// Watcher registers Gmail push notifications for the agent mailbox
type Watcher interface {
	Watch(ctx context.Context, topicName string) (uint64, time.Time, error)
}

// WatchRenewer keeps the Gmail watch alive. Gmail drops a watch after seven
// days, so it is renewed on an interval well below that.
type WatchRenewer struct {
	watcher  Watcher
	cursors  repository.CursorRepository
	mailbox  string
	topic    string
	interval time.Duration
	stopChan chan struct{}
}

func NewWatchRenewer(watcher Watcher, cursors repository.CursorRepository, mailbox, topic string, interval time.Duration) *WatchRenewer {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	return &WatchRenewer{
		watcher:  watcher,
		cursors:  cursors,
		mailbox:  mailbox,
		topic:    topic,
		interval: interval,
		stopChan: make(chan struct{}),
	}
}

// Start renews in the background. The first registration is done by the caller via Renew.
func (w *WatchRenewer) Start() {
	go func() {
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if err := w.Renew(context.Background()); err != nil {
					log.Printf("[Watch] Renewal failed: %v", err)
				}
			case <-w.stopChan:
				return
			}
		}
	}()
}

func (w *WatchRenewer) Stop() {
	close(w.stopChan)
}

// Renew registers the watch. When the mailbox has no cursor yet, the watch's
// history id becomes the starting point so old mail is not replayed.
func (w *WatchRenewer) Renew(ctx context.Context) error {
	historyID, expiration, err := w.watcher.Watch(ctx, w.topic)
	if err != nil {
		return fmt.Errorf("watching %s: %w", w.mailbox, err)
	}
	log.Printf("[Watch] Watching %s on %s (historyId: %d, expires: %s)", w.mailbox, w.topic, historyID, expiration.Format(time.RFC3339))

	cursor, err := w.cursors.Get(ctx, w.mailbox)
	if err != nil {
		return err
	}
	if cursor == 0 && historyID > 0 {
		if _, err := w.cursors.Advance(ctx, w.mailbox, historyID); err != nil {
			return fmt.Errorf("seeding cursor: %w", err)
		}
		log.Printf("[Watch] Cursor for %s starts at %d", w.mailbox, historyID)
	}
	return nil
}
