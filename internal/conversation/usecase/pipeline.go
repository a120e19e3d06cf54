package usecase

import (
	"context"
	"log"
	"strings"

	"golang.org/x/sync/errgroup"

	"raid-mail-agent/internal/conversation/domain"
)

// ThreadProcessor runs the workflow of one thread
type ThreadProcessor interface {
	Process(ctx context.Context, threadID string) (*domain.Workflow, error)
}

// PipelineConfig tunes notification handling
type PipelineConfig struct {
	Mailbox     string // used when a notification carries no mailbox
	Lookback    uint64 // history markers to look back on a mailbox's first fetch
	Concurrency int    // threads processed in parallel per notification
	Fetch       RetryPolicy
	Store       RetryPolicy
}

// Pipeline turns notifications into stored messages and engine runs
type Pipeline struct {
	repos     Repositories
	transport domain.MailTransport
	resolver  *Resolver
	engine    ThreadProcessor
	cfg       PipelineConfig
}

func NewPipeline(repos Repositories, transport domain.MailTransport, resolver *Resolver, engine ThreadProcessor, cfg PipelineConfig) *Pipeline {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	cfg.Mailbox = strings.ToLower(cfg.Mailbox)
	return &Pipeline{repos: repos, transport: transport, resolver: resolver, engine: engine, cfg: cfg}
}

// HandleNotification fetches the mailbox delta, stores new messages, advances
// the mailbox cursor and runs the engine for threads with new user messages.
// Duplicate and stale notifications return nil. An error means the
// notification should be redelivered.
func (p *Pipeline) HandleNotification(ctx context.Context, n domain.Notification) error {
	mailbox := strings.ToLower(n.Mailbox)
	if mailbox == "" {
		mailbox = p.cfg.Mailbox
	}

	var cursor uint64
	err := p.cfg.Store.Do(ctx, "read cursor", func(ctx context.Context) error {
		var err error
		cursor, err = p.repos.Cursors.Get(ctx, mailbox)
		return err
	})
	if err != nil {
		return err
	}
	if n.HistoryID != 0 && cursor != 0 && n.HistoryID <= cursor {
		log.Printf("[Pipeline] Stale notification for %s: history %d <= cursor %d", mailbox, n.HistoryID, cursor)
		return nil
	}

	since := cursor
	if since == 0 && n.HistoryID > 0 {
		since = 1
		if n.HistoryID > p.cfg.Lookback {
			since = n.HistoryID - p.cfg.Lookback
		}
	}

	var changes *domain.ChangeSet
	err = p.cfg.Fetch.Do(ctx, "fetch changes", func(ctx context.Context) error {
		var err error
		changes, err = p.transport.FetchChanges(ctx, mailbox, since)
		return err
	})
	if err != nil {
		return err
	}

	var threads []string
	seen := make(map[string]bool)
	for _, raw := range changes.Messages {
		res, err := p.resolver.Resolve(ctx, raw)
		if err != nil {
			return err
		}
		if !res.New || res.Message.Sender != domain.SenderUser || seen[res.Message.ThreadID] {
			continue
		}
		seen[res.Message.ThreadID] = true
		threads = append(threads, res.Message.ThreadID)
	}

	marker := max(changes.HistoryID, n.HistoryID)
	if marker > cursor {
		err = p.cfg.Store.Do(ctx, "advance cursor", func(ctx context.Context) error {
			_, err := p.repos.Cursors.Advance(ctx, mailbox, marker)
			return err
		})
		if err != nil {
			return err
		}
	}

	if len(threads) == 0 {
		log.Printf("[Pipeline] %s: %d messages fetched, no new user messages", mailbox, len(changes.Messages))
		return nil
	}
	log.Printf("[Pipeline] %s: %d threads with new messages", mailbox, len(threads))
	p.processThreads(ctx, threads)
	return nil
}

// processThreads runs the engine per thread. A thread's failure stays with
// that thread; the reconciler picks it up later.
func (p *Pipeline) processThreads(ctx context.Context, threads []string) {
	var g errgroup.Group
	g.SetLimit(p.cfg.Concurrency)
	for _, threadID := range threads {
		g.Go(func() error {
			if _, err := p.engine.Process(ctx, threadID); err != nil {
				log.Printf("[Pipeline] Thread %s: %v", threadID, err)
			}
			return nil
		})
	}
	_ = g.Wait()
}
