package usecase

import (
	"context"
	"fmt"
	"log"
	"sync"

	"golang.org/x/sync/errgroup"

	"raid-mail-agent/internal/conversation/domain"
	"raid-mail-agent/pkg/recipients"
)

// SeedReport summarizes one seeding run
type SeedReport struct {
	Sent    []string
	Skipped []string
	Failed  map[string]error
}

// Seeder opens a thread with every new recipient by sending the welcome email
type Seeder struct {
	repos       Repositories
	transport   domain.MailTransport
	renderer    domain.Renderer
	composer    *ReplyComposer
	cfg         EngineConfig
	concurrency int
}

func NewSeeder(repos Repositories, transport domain.MailTransport, generator domain.Generator, renderer domain.Renderer, cfg EngineConfig, concurrency int) *Seeder {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Seeder{
		repos:       repos,
		transport:   transport,
		renderer:    renderer,
		composer:    NewReplyComposer(generator, cfg.Generation),
		cfg:         cfg,
		concurrency: concurrency,
	}
}

// Seed welcomes every recipient that has no stored conversation yet.
// Failures are reported per recipient and do not stop the run. A welcome that
// was sent but not recorded is sent again by the next run.
func (s *Seeder) Seed(ctx context.Context, list []recipients.Recipient) *SeedReport {
	report := &SeedReport{Failed: make(map[string]error)}
	var mu sync.Mutex

	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for _, r := range list {
		g.Go(func() error {
			sent, err := s.seedOne(ctx, r)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				log.Printf("[Seeder] Failed to welcome %s: %v", r.Email, err)
				report.Failed[r.Email] = err
			case sent:
				report.Sent = append(report.Sent, r.Email)
			default:
				report.Skipped = append(report.Skipped, r.Email)
			}
			return nil
		})
	}
	_ = g.Wait()
	return report
}

func (s *Seeder) seedOne(ctx context.Context, r recipients.Recipient) (bool, error) {
	var contacted bool
	err := s.cfg.Store.Do(ctx, "check recipient", func(ctx context.Context) error {
		var err error
		contacted, err = s.repos.Messages.HasMessagesFor(ctx, r.Email)
		return err
	})
	if err != nil {
		return false, err
	}
	if contacted {
		return false, nil
	}

	err = s.cfg.Store.Do(ctx, "ensure user", func(ctx context.Context) error {
		_, err := s.repos.Users.Ensure(ctx, r.Email, r.Name)
		return err
	})
	if err != nil {
		return false, err
	}

	body, err := s.composer.Draft(ctx, &domain.DraftRequest{Name: r.Name, Email: r.Email})
	if err != nil {
		return false, fmt.Errorf("draft welcome: %w", err)
	}
	html, err := s.renderer.Render(body)
	if err != nil {
		return false, err
	}

	var sent *domain.SentMail
	err = s.cfg.Transport.Do(ctx, "send welcome", func(ctx context.Context) error {
		var err error
		sent, err = s.transport.Send(ctx, &domain.OutboundMail{
			To:       r.Email,
			ToName:   r.Name,
			Subject:  s.cfg.WelcomeSubject,
			TextBody: body,
			HTMLBody: html,
		})
		return err
	})
	if err != nil {
		return false, fmt.Errorf("send welcome: %w", err)
	}

	err = s.cfg.Store.Do(ctx, "record welcome", func(ctx context.Context) error {
		if _, err := s.repos.Workflows.CreateOrGet(ctx, sent.ThreadID, r.Email); err != nil {
			return err
		}
		_, err := s.repos.Messages.Append(ctx, &domain.Message{
			ThreadID:     sent.ThreadID,
			MessageID:    sent.MessageID,
			UserEmail:    r.Email,
			Sender:       domain.SenderAgent,
			Subject:      s.cfg.WelcomeSubject,
			Body:         body,
			RFCMessageID: sent.RFCMessageID,
			Timestamp:    sent.Timestamp,
		})
		return err
	})
	if err != nil {
		return true, fmt.Errorf("welcome sent but not recorded: %w", err)
	}
	log.Printf("[Seeder] Welcomed %s on thread %s", r.Email, sent.ThreadID)
	return true, nil
}
