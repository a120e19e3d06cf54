package usecase

import (
	"context"
	"sync"
)

// threadGate serializes work per thread id inside one process. Entries are
// reference counted and dropped when the last holder or waiter leaves.
type threadGate struct {
	mu    sync.Mutex
	slots map[string]*gateSlot
}

type gateSlot struct {
	ch   chan struct{}
	refs int
}

func newThreadGate() *threadGate {
	return &threadGate{slots: make(map[string]*gateSlot)}
}

// Lock waits for the thread's slot or for ctx to end
func (g *threadGate) Lock(ctx context.Context, threadID string) error {
	g.mu.Lock()
	slot, ok := g.slots[threadID]
	if !ok {
		slot = &gateSlot{ch: make(chan struct{}, 1)}
		g.slots[threadID] = slot
	}
	slot.refs++
	g.mu.Unlock()

	select {
	case slot.ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		g.release(threadID, slot)
		return ctx.Err()
	}
}

func (g *threadGate) Unlock(threadID string) {
	g.mu.Lock()
	slot, ok := g.slots[threadID]
	g.mu.Unlock()
	if !ok {
		return
	}
	<-slot.ch
	g.release(threadID, slot)
}

func (g *threadGate) release(threadID string, slot *gateSlot) {
	g.mu.Lock()
	defer g.mu.Unlock()
	slot.refs--
	if slot.refs == 0 {
		delete(g.slots, threadID)
	}
}
