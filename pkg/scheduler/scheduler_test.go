package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEveryStepsCadence(t *testing.T) {
	s := New()
	var calls int32
	s.EverySteps(3, func() { atomic.AddInt32(&calls, 1) })

	for step := 1; step <= 10; step++ {
		s.NotifyStep(step)
	}
	time.Sleep(20 * time.Millisecond)

	// k=10, n=3 -> floor(10/3) = 3
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestOnStepFiresEveryTime(t *testing.T) {
	s := New()
	var calls int32
	unregister := s.OnStep(func() { atomic.AddInt32(&calls, 1) })

	s.NotifyStep(1)
	s.NotifyStep(2)
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))

	unregister()
	s.NotifyStep(3)
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestEnqueueAwaitRunsSerially(t *testing.T) {
	s := New()
	var mu sync.Mutex
	var order []int

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		i := i
		go func() {
			defer wg.Done()
			err := s.EnqueueAwait(context.Background(), func(ctx context.Context) error {
				mu.Lock()
				order = append(order, i)
				mu.Unlock()
				return nil
			})
			require.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Len(t, order, 5)
}

func TestEnqueueAwaitSurfacesError(t *testing.T) {
	s := New()
	err := s.EnqueueAwait(context.Background(), func(ctx context.Context) error {
		return errors.New("boom")
	})
	assert.Error(t, err)
}

func TestEnqueueAwaitCancelledBeforeTurn(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ran := false
	err := s.EnqueueAwait(ctx, func(ctx context.Context) error {
		ran = true
		return nil
	})
	assert.Error(t, err)
	assert.False(t, ran)
}

func TestNotifyExternalTriggerForwards(t *testing.T) {
	s := New()
	var got TriggerInfo
	s.OnTrigger = func(info TriggerInfo) { got = info }

	s.NotifyExternalTrigger("*/5 * * * *")
	assert.Equal(t, TriggerExternal, got.Kind)
	assert.Equal(t, "*/5 * * * *", got.Spec)
}
