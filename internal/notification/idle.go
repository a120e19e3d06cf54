package notification

import (
	"context"
	"fmt"
	"log"
	"time"

	"raid-mail-agent/internal/conversation/domain"

	"github.com/emersion/go-imap/v2/imapclient"
)

// idleRefresh restarts IDLE before servers drop it (RFC 2177 suggests 29 min)
const idleRefresh = 25 * time.Minute

// Dialer opens an authenticated IMAP connection
type Dialer interface {
	Connect(options *imapclient.Options) (*imapclient.Client, error)
}

// IdleSource watches the agent inbox with IMAP IDLE. Every wake-up, and one
// at start, becomes a notification with an unknown history marker.
type IdleSource struct {
	dialer            Dialer
	mailbox           string
	handler           Handler
	processingTimeout time.Duration
	refresh           time.Duration
}

func NewIdleSource(dialer Dialer, mailbox string, handler Handler, processingTimeout time.Duration) *IdleSource {
	if processingTimeout <= 0 {
		processingTimeout = 5 * time.Minute
	}
	return &IdleSource{
		dialer:            dialer,
		mailbox:           mailbox,
		handler:           handler,
		processingTimeout: processingTimeout,
		refresh:           idleRefresh,
	}
}

// Run idles until ctx ends. Losing the connection is an error.
func (s *IdleSource) Run(ctx context.Context) error {
	wake := make(chan struct{}, 1)
	options := &imapclient.Options{
		UnilateralDataHandler: &imapclient.UnilateralDataHandler{
			Mailbox: func(data *imapclient.UnilateralDataMailbox) {
				if data.NumMessages != nil {
					select {
					case wake <- struct{}{}:
					default:
					}
				}
			},
		},
	}

	client, err := s.dialer.Connect(options)
	if err != nil {
		return err
	}
	defer func() { _ = client.Logout().Wait() }()

	if _, err := client.Select("INBOX", nil).Wait(); err != nil {
		return fmt.Errorf("selecting INBOX: %w", err)
	}
	log.Printf("[IMAP] Idling on INBOX of %s", s.mailbox)

	// catch up on anything that arrived while we were down
	s.notify(ctx)

	for {
		idle, err := client.Idle()
		if err != nil {
			return fmt.Errorf("starting IDLE: %w", err)
		}

		// a refresh also re-checks the mailbox, retrying a failed notification
		select {
		case <-ctx.Done():
		case <-wake:
		case <-time.After(s.refresh):
		}

		if err := idle.Close(); err != nil {
			return fmt.Errorf("stopping IDLE: %w", err)
		}
		if err := idle.Wait(); err != nil {
			return fmt.Errorf("IDLE: %w", err)
		}
		if ctx.Err() != nil {
			log.Println("[IMAP] Listener stopped")
			return nil
		}
		s.notify(ctx)
	}
}

func (s *IdleSource) notify(ctx context.Context) {
	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.processingTimeout)
	defer cancel()
	if err := s.handler.HandleNotification(runCtx, domain.Notification{Mailbox: s.mailbox}); err != nil {
		log.Printf("[IMAP] Notification for %s failed: %v", s.mailbox, err)
	}
}
