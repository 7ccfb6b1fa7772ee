package dispatch

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

// exclusiveSender fails the test if it is ever used by two goroutines at once.
type exclusiveSender struct {
	busy     atomic.Bool
	overlaps *atomic.Int32
	shared   *mockSender
	closed   atomic.Bool
}

func (e *exclusiveSender) SendCommand(ctx context.Context, deviceID, attribute string, value any) (int, error) {
	if !e.busy.CompareAndSwap(false, true) {
		e.overlaps.Add(1)
	}
	defer e.busy.Store(false)
	return e.shared.SendCommand(ctx, deviceID, attribute, value)
}

func (e *exclusiveSender) Close() { e.closed.Store(true) }

func newExclusiveFactory(shared *mockSender) (SenderFactory, *[]*exclusiveSender, *atomic.Int32) {
	var (
		mu       sync.Mutex
		built    []*exclusiveSender
		overlaps atomic.Int32
	)
	factory := func() (Sender, error) {
		s := &exclusiveSender{overlaps: &overlaps, shared: shared}
		mu.Lock()
		built = append(built, s)
		mu.Unlock()
		return s, nil
	}
	return factory, &built, &overlaps
}

func TestPool_BuildsIsolatedSenders(t *testing.T) {
	factory, built, _ := newExclusiveFactory(newMockSender(0))

	p, err := NewPool(4, factory)
	require.NoError(t, err)

	assert.Equal(t, 4, p.Size())
	assert.Len(t, *built, 4)
}

func TestPool_DefaultSizeIsPositive(t *testing.T) {
	factory, _, _ := newExclusiveFactory(newMockSender(0))

	p, err := NewPool(0, factory)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, p.Size(), 1)
}

func TestPool_FactoryError(t *testing.T) {
	calls := 0
	_, err := NewPool(3, func() (Sender, error) {
		calls++
		if calls == 2 {
			return nil, errors.New("no socket")
		}
		return newMockSender(0), nil
	})
	assert.Error(t, err)

	_, err = NewPool(3, nil)
	assert.ErrorIs(t, err, ErrInvalidPoolSize)
}

func TestPool_ContractMatchesConcurrent(t *testing.T) {
	shared := newMockSender(5 * time.Millisecond)
	shared.failures["c"] = 1
	shared.failures["e"] = -1
	factory, _, overlaps := newExclusiveFactory(shared)

	p, err := NewPool(3, factory)
	require.NoError(t, err)

	cmds := numbered(12)
	outcomes := p.Dispatch(context.Background(), cmds, ModeConfirmed, fastRetry)

	require.Len(t, outcomes, len(cmds))
	for i := range cmds {
		assert.Equal(t, cmds[i], outcomes[i].Command)
	}
	assert.True(t, outcomes[2].Succeeded)
	assert.Equal(t, 2, outcomes[2].Attempts)
	assert.False(t, outcomes[4].Succeeded)
	assert.Equal(t, 3, outcomes[4].Attempts)

	assert.LessOrEqual(t, shared.maxInFlight.Load(), int32(3))
	assert.Zero(t, overlaps.Load(), "a sender must never be used concurrently")
}

func TestPool_CapSharedAcrossCallers(t *testing.T) {
	shared := newMockSender(5 * time.Millisecond)
	factory, _, overlaps := newExclusiveFactory(shared)

	p, err := NewPool(2, factory)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for range 3 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			outcomes := p.Dispatch(context.Background(), numbered(4), ModeConfirmed, fastRetry)
			assert.True(t, AllSucceeded(outcomes))
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, shared.maxInFlight.Load(), int32(2))
	assert.Zero(t, overlaps.Load())
}

func TestPool_CancelledWhileWaiting(t *testing.T) {
	shared := newMockSender(0)
	factory, _, _ := newExclusiveFactory(shared)

	p, err := NewPool(1, factory)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	outcomes := p.Dispatch(ctx, numbered(3), ModeConfirmed, fastRetry)
	require.Len(t, outcomes, 3)
	for _, o := range outcomes {
		assert.False(t, o.Succeeded)
	}
}

func TestPool_Close(t *testing.T) {
	factory, built, _ := newExclusiveFactory(newMockSender(0))

	p, err := NewPool(2, factory)
	require.NoError(t, err)
	p.Close()

	for _, s := range *built {
		assert.True(t, s.closed.Load())
	}
}
