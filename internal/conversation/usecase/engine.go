package usecase

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"raid-mail-agent/internal/conversation/domain"
	"raid-mail-agent/internal/conversation/repository"
)

// maxConflicts bounds how often one run re-reads a thread after losing a
// compare-and-advance race
const maxConflicts = 5

const defaultDeliveryLease = 10 * time.Minute

// Repositories bundles the stores the conversation usecases work on
type Repositories struct {
	Workflows    repository.WorkflowRepository
	Messages     repository.MessageRepository
	Users        repository.UserRepository
	Applications repository.ApplicationRepository
	Cursors      repository.CursorRepository
}

// EngineConfig tunes retries and the extraction trigger. DeliveryLease must
// outlast a full send including transport retries.
type EngineConfig struct {
	Generation     RetryPolicy
	Transport      RetryPolicy
	Store          RetryPolicy
	Policy         CompletionPolicy
	WelcomeSubject string
	DeliveryLease  time.Duration
}

// Engine drives each thread's workflow: reply, extract, complete.
// Process is level-triggered: it compares the persisted step with the stored
// inbound messages, so duplicate or reordered calls converge on one outcome.
type Engine struct {
	repos     Repositories
	transport domain.MailTransport
	renderer  domain.Renderer
	composer  *ReplyComposer
	extractor *Extractor
	cfg       EngineConfig
	index     domain.ApplicationIndex
	alerter   domain.Alerter
	gate      *threadGate
}

func NewEngine(repos Repositories, transport domain.MailTransport, generator domain.Generator, renderer domain.Renderer, cfg EngineConfig) *Engine {
	if cfg.Policy == nil {
		cfg.Policy = ExchangeLimit{Max: 4}
	}
	if cfg.DeliveryLease <= 0 {
		cfg.DeliveryLease = defaultDeliveryLease
	}
	return &Engine{
		repos:     repos,
		transport: transport,
		renderer:  renderer,
		composer:  NewReplyComposer(generator, cfg.Generation),
		extractor: NewExtractor(generator, cfg.Generation),
		cfg:       cfg,
		gate:      newThreadGate(),
	}
}

// SetApplicationIndex enables indexing of completed applications
func (e *Engine) SetApplicationIndex(index domain.ApplicationIndex) {
	e.index = index
}

// SetAlerter enables operator alerts for failed threads
func (e *Engine) SetAlerter(alerter domain.Alerter) {
	e.alerter = alerter
}

// Process applies every transition the thread is due and returns the final
// workflow. It returns nil when the thread has no stored messages.
func (e *Engine) Process(ctx context.Context, threadID string) (*domain.Workflow, error) {
	if err := e.gate.Lock(ctx, threadID); err != nil {
		return nil, err
	}
	defer e.gate.Unlock(threadID)

	conflicts := 0
	for {
		wf, messages, err := e.load(ctx, threadID)
		if err != nil || wf == nil {
			return wf, err
		}

		next, acted, err := e.step(ctx, wf, messages)
		if errors.Is(err, domain.ErrConflict) {
			conflicts++
			if conflicts > maxConflicts {
				return nil, fmt.Errorf("thread %s: %w", threadID, err)
			}
			log.Printf("[Engine] Thread %s advanced concurrently, re-reading", threadID)
			continue
		}
		if err != nil {
			return next, err
		}
		if !acted {
			return next, nil
		}
		conflicts = 0
	}
}

// Reset moves a failed thread back to the status it failed from. A pending
// outbox is kept so the claimed reply is delivered on the next run. The
// delivery lease was released when the thread failed.
func (e *Engine) Reset(ctx context.Context, threadID string) (*domain.Workflow, error) {
	if err := e.gate.Lock(ctx, threadID); err != nil {
		return nil, err
	}
	defer e.gate.Unlock(threadID)

	wf, err := e.getWorkflow(ctx, threadID)
	if err != nil {
		return nil, err
	}
	if wf == nil {
		return nil, domain.ErrWorkflowNotFound
	}
	if wf.Status != domain.StatusFailed {
		return nil, fmt.Errorf("%w: thread %s is %s", domain.ErrInvalidTransition, threadID, wf.Status)
	}

	to := wf.FailedFrom
	if to == "" || to == domain.StatusFailed {
		to = domain.StatusInitiated
	}
	next, err := e.advance(ctx, wf, domain.Transition{Step: wf.Step, Status: to, Outbox: wf.Outbox})
	if err != nil {
		return nil, err
	}
	log.Printf("[Engine] Thread %s reset to %s at step %d", threadID, next.Status, next.Step)
	return next, nil
}

func (e *Engine) load(ctx context.Context, threadID string) (*domain.Workflow, []*domain.Message, error) {
	var messages []*domain.Message
	err := e.cfg.Store.Do(ctx, "list messages", func(ctx context.Context) error {
		var err error
		messages, err = e.repos.Messages.ListByThread(ctx, threadID)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	if len(messages) == 0 {
		return nil, nil, nil
	}

	wf, err := e.getWorkflow(ctx, threadID)
	if err != nil {
		return nil, nil, err
	}
	if wf != nil {
		return wf, messages, nil
	}

	err = e.cfg.Store.Do(ctx, "create workflow", func(ctx context.Context) error {
		var err error
		wf, err = e.repos.Workflows.CreateOrGet(ctx, threadID, messages[0].UserEmail)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return wf, messages, nil
}

func (e *Engine) getWorkflow(ctx context.Context, threadID string) (*domain.Workflow, error) {
	var wf *domain.Workflow
	err := e.cfg.Store.Do(ctx, "get workflow", func(ctx context.Context) error {
		var err error
		wf, err = e.repos.Workflows.Get(ctx, threadID)
		return err
	})
	return wf, err
}

// step performs at most one transition. acted is false when nothing is due.
func (e *Engine) step(ctx context.Context, wf *domain.Workflow, messages []*domain.Message) (*domain.Workflow, bool, error) {
	switch {
	case wf.Status.Terminal():
		return wf, false, nil
	case wf.Outbox.Leased(time.Now()):
		log.Printf("[Engine] Thread %s: reply is being delivered elsewhere until %s", wf.ThreadID, wf.Outbox.LeaseUntil.Format(time.RFC3339))
		return wf, false, nil
	case wf.Outbox.Pending():
		return e.redeliver(ctx, wf)
	case wf.Status == domain.StatusExtracting:
		return e.extract(ctx, wf, messages)
	}

	inbound := domain.Inbound(messages)
	if wf.Step >= len(inbound) {
		return wf, false, nil
	}
	return e.reply(ctx, wf, messages, inbound[wf.Step])
}

func (e *Engine) reply(ctx context.Context, wf *domain.Workflow, messages []*domain.Message, target *domain.Message) (*domain.Workflow, bool, error) {
	history := domain.HistoryUpTo(messages, target.MessageID)
	exchange := wf.Step + 1
	final := e.cfg.Policy.Concludes(exchange, target)

	user, err := e.participant(ctx, wf)
	if err != nil {
		return wf, false, err
	}

	body, err := e.composer.Draft(ctx, &domain.DraftRequest{
		Name:     user.Name,
		Email:    user.Email,
		History:  history,
		Exchange: exchange,
		Final:    final,
	})
	if err != nil {
		return e.fail(ctx, wf, "draft", err)
	}

	// The claim makes the draft durable and leases its delivery to this run
	outbox := composeOutbox(user, history, target, body, e.cfg.WelcomeSubject, final)
	outbox.LeaseUntil = time.Now().Add(e.cfg.DeliveryLease)
	claimed, err := e.advance(ctx, wf, domain.Transition{Step: wf.Step, Status: wf.Status, Outbox: outbox})
	if err != nil {
		return wf, false, err
	}
	return e.deliver(ctx, claimed)
}

// redeliver takes over an outbox whose lease has lapsed or was released.
// Only the run that wins the compare-and-advance sends.
func (e *Engine) redeliver(ctx context.Context, wf *domain.Workflow) (*domain.Workflow, bool, error) {
	outbox := wf.Outbox
	outbox.LeaseUntil = time.Now().Add(e.cfg.DeliveryLease)
	claimed, err := e.advance(ctx, wf, domain.Transition{Step: wf.Step, Status: wf.Status, Outbox: outbox})
	if err != nil {
		return wf, false, err
	}
	log.Printf("[Engine] Thread %s: delivering pending reply to %s", wf.ThreadID, outbox.TargetID)
	return e.deliver(ctx, claimed)
}

// deliver sends an outbox this run holds the lease for, records it and
// advances the step. A send that succeeds but is not recorded is sent again
// once the lease lapses.
func (e *Engine) deliver(ctx context.Context, wf *domain.Workflow) (*domain.Workflow, bool, error) {
	outbox := wf.Outbox
	html, err := e.renderer.Render(outbox.Body)
	if err != nil {
		return e.fail(ctx, wf, "render", err)
	}

	var sent *domain.SentMail
	err = e.cfg.Transport.Do(ctx, "send reply", func(ctx context.Context) error {
		var err error
		sent, err = e.transport.Send(ctx, &domain.OutboundMail{
			ThreadID:   wf.ThreadID,
			To:         outbox.To,
			ToName:     outbox.ToName,
			Subject:    outbox.Subject,
			TextBody:   outbox.Body,
			HTMLBody:   html,
			InReplyTo:  outbox.InReplyTo,
			References: outbox.References,
		})
		return err
	})
	if err != nil {
		return e.fail(ctx, wf, "send", err)
	}

	err = e.cfg.Store.Do(ctx, "record reply", func(ctx context.Context) error {
		_, err := e.repos.Messages.Append(ctx, &domain.Message{
			ThreadID:     wf.ThreadID,
			MessageID:    sent.MessageID,
			UserEmail:    wf.UserEmail,
			Sender:       domain.SenderAgent,
			Subject:      outbox.Subject,
			Body:         outbox.Body,
			RFCMessageID: sent.RFCMessageID,
			Timestamp:    sent.Timestamp,
		})
		return err
	})
	if err != nil {
		return wf, false, fmt.Errorf("thread %s: reply sent but not recorded: %w", wf.ThreadID, err)
	}

	status := domain.StatusAwaitingReply
	if outbox.Final {
		status = domain.StatusExtracting
	}
	next, err := e.advance(ctx, wf, domain.Transition{Step: wf.Step + 1, Status: status})
	if err != nil {
		return wf, false, err
	}
	log.Printf("[Engine] Thread %s: replied to %s, now step %d %s", wf.ThreadID, outbox.TargetID, next.Step, next.Status)
	return next, true, nil
}

func (e *Engine) extract(ctx context.Context, wf *domain.Workflow, messages []*domain.Message) (*domain.Workflow, bool, error) {
	extraction, err := e.extractor.Extract(ctx, messages)
	if err != nil {
		return e.fail(ctx, wf, "extract", err)
	}
	user, err := e.participant(ctx, wf)
	if err != nil {
		return wf, false, err
	}

	app := &domain.Application{
		Email:             wf.UserEmail,
		Name:              user.Name,
		ThreadID:          wf.ThreadID,
		Conversation:      domain.Transcript(messages),
		Major:             extraction.Major,
		Motivation:        extraction.Motivation,
		DesiredActivities: extraction.DesiredActivities,
	}
	// Upsert is idempotent, so a crash before the advance below only repeats it
	err = e.cfg.Store.Do(ctx, "upsert application", func(ctx context.Context) error {
		return e.repos.Applications.Upsert(ctx, app)
	})
	if err != nil {
		return e.fail(ctx, wf, "store application", err)
	}

	next, err := e.advance(ctx, wf, domain.Transition{Step: wf.Step, Status: domain.StatusCompleted})
	if err != nil {
		return wf, false, err
	}
	log.Printf("[Engine] Thread %s completed, application stored for %s", wf.ThreadID, app.Email)

	if e.index != nil {
		if err := e.index.Index(ctx, app); err != nil {
			log.Printf("[Engine] Failed to index application %s: %v", app.Email, err)
		}
	}
	return next, true, nil
}

// fail parks the workflow in failed, keeping the outbox and any raw model
// output and releasing the delivery lease. On shutdown the workflow is left
// as is so a later run retries once the lease lapses.
func (e *Engine) fail(ctx context.Context, wf *domain.Workflow, stage string, cause error) (*domain.Workflow, bool, error) {
	if ctx.Err() != nil {
		return wf, false, cause
	}

	outbox := wf.Outbox
	outbox.LeaseUntil = time.Time{}
	t := domain.Transition{
		Step:       wf.Step,
		Status:     domain.StatusFailed,
		Outbox:     outbox,
		FailedFrom: wf.Status,
		LastError:  fmt.Sprintf("%s: %v", stage, cause),
	}
	var malformed *domain.MalformedOutputError
	if errors.As(cause, &malformed) {
		t.RawOutput = malformed.Raw
	}

	next, err := e.advance(ctx, wf, t)
	if err != nil {
		return wf, false, err
	}
	log.Printf("[Engine] Thread %s failed at step %d (%s): %v", wf.ThreadID, wf.Step, stage, cause)
	if e.alerter != nil {
		e.alerter.ThreadFailed(ctx, next)
	}
	return next, false, fmt.Errorf("thread %s %s: %w", wf.ThreadID, stage, cause)
}

func (e *Engine) advance(ctx context.Context, wf *domain.Workflow, t domain.Transition) (*domain.Workflow, error) {
	var next *domain.Workflow
	err := e.cfg.Store.Do(ctx, "advance workflow", func(ctx context.Context) error {
		var err error
		next, err = e.repos.Workflows.CompareAndAdvance(ctx, wf, t)
		return err
	})
	return next, err
}

func (e *Engine) participant(ctx context.Context, wf *domain.Workflow) (*domain.User, error) {
	var user *domain.User
	err := e.cfg.Store.Do(ctx, "find user", func(ctx context.Context) error {
		var err error
		user, err = e.repos.Users.FindByEmail(ctx, wf.UserEmail)
		return err
	})
	if err != nil {
		return nil, err
	}
	if user == nil {
		user = &domain.User{Email: wf.UserEmail}
	}
	return user, nil
}

// StaleWorkflows lists workflows untouched for at least age that have work
// due, ordered by thread id and starting after the given thread id
func (e *Engine) StaleWorkflows(ctx context.Context, age time.Duration, after string, limit int) ([]*domain.Workflow, error) {
	var stale []*domain.Workflow
	err := e.cfg.Store.Do(ctx, "list stale workflows", func(ctx context.Context) error {
		var err error
		stale, err = e.repos.Workflows.ListStale(ctx, time.Now().Add(-age), after, limit)
		return err
	})
	return stale, err
}
