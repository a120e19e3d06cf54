package scheduler

import (
	"context"
	"log"
	"time"

	"raid-mail-agent/internal/conversation/domain"
)

// Engine is what the reconciler needs from the conversation engine
type Engine interface {
	StaleWorkflows(ctx context.Context, age time.Duration, after string, limit int) ([]*domain.Workflow, error)
	Process(ctx context.Context, threadID string) (*domain.Workflow, error)
}

// Reconciler re-runs workflows that stopped moving: a crash between steps, a
// lost notification or an outbox that was never delivered.
type Reconciler struct {
	engine   Engine
	interval time.Duration
	staleAge time.Duration
	batch    int
	timeout  time.Duration
	stopChan chan struct{}
	done     chan struct{}
}

func NewReconciler(engine Engine, interval, staleAge, timeout time.Duration) *Reconciler {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &Reconciler{
		engine:   engine,
		interval: interval,
		staleAge: staleAge,
		batch:    50,
		timeout:  timeout,
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start begins the reconcile loop
func (r *Reconciler) Start() {
	log.Printf("[Reconciler] Starting (interval: %s, stale after: %s)", r.interval, r.staleAge)

	go func() {
		defer close(r.done)

		// Run immediately on start
		r.RunOnce(context.Background())

		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				r.RunOnce(context.Background())
			case <-r.stopChan:
				log.Println("[Reconciler] Stopped")
				return
			}
		}
	}()
}

// Stop ends the loop and waits for the current pass to finish
func (r *Reconciler) Stop() {
	close(r.stopChan)
	<-r.done
}

// RunOnce processes every stale workflow with work due, one page at a time,
// and returns how many moved
func (r *Reconciler) RunOnce(ctx context.Context) int {
	moved, seen := 0, 0
	after := ""
	for {
		stale, err := r.engine.StaleWorkflows(ctx, r.staleAge, after, r.batch)
		if err != nil {
			log.Printf("[Reconciler] Error listing stale workflows: %v", err)
			break
		}
		seen += len(stale)
		for _, wf := range stale {
			runCtx, cancel := context.WithTimeout(ctx, r.timeout)
			next, err := r.engine.Process(runCtx, wf.ThreadID)
			cancel()
			if err != nil {
				log.Printf("[Reconciler] Thread %s: %v", wf.ThreadID, err)
				continue
			}
			if next != nil && next.Revision != wf.Revision {
				moved++
			}
		}
		if len(stale) < r.batch || ctx.Err() != nil {
			break
		}
		after = stale[len(stale)-1].ThreadID
	}

	if seen > 0 {
		log.Printf("[Reconciler] Processed %d stale workflows, %d moved", seen, moved)
	}
	return moved
}
