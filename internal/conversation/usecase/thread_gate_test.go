package usecase

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestThreadGateSerializesPerThread(t *testing.T) {
	gate := newThreadGate()
	ctx := context.Background()

	var inside, peak int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if !assert.NoError(t, gate.Lock(ctx, "T1")) {
				return
			}
			n := atomic.AddInt32(&inside, 1)
			for {
				p := atomic.LoadInt32(&peak)
				if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
			gate.Unlock("T1")
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), peak)
	assert.Empty(t, gate.slots)
}

func TestThreadGateIndependentThreads(t *testing.T) {
	gate := newThreadGate()
	ctx := context.Background()

	require.NoError(t, gate.Lock(ctx, "T1"))
	require.NoError(t, gate.Lock(ctx, "T2"))
	gate.Unlock("T2")
	gate.Unlock("T1")
}

func TestThreadGateHonoursContext(t *testing.T) {
	gate := newThreadGate()
	require.NoError(t, gate.Lock(context.Background(), "T1"))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, gate.Lock(ctx, "T1"), context.DeadlineExceeded)

	gate.Unlock("T1")
	assert.Empty(t, gate.slots)
}
