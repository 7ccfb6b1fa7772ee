package dispatch

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// DefaultMaxConcurrency is the confirmed-mode cap on in-flight commands.
const DefaultMaxConcurrency = 10

// DefaultFireAndForgetConcurrency is the cap typically paired with fire-and-forget mode.
const DefaultFireAndForgetConcurrency = 20

// Concurrent dispatches each command on its own goroutine, gated by a
// weighted semaphore shared by every call on the same instance. At most
// Limit commands are in flight at once, across batches and callers.
//
// A command holds its permit for the whole retry loop, so a retrying command
// keeps its slot.
type Concurrent struct {
	sender Sender
	sem    *semaphore.Weighted
	limit  int
	exec   executor
}

// NewConcurrent creates a dispatcher sending through sender with the given
// concurrency cap. A limit below 1 uses DefaultMaxConcurrency.
func NewConcurrent(sender Sender, limit int, opts ...Option) *Concurrent {
	if limit < 1 {
		limit = DefaultMaxConcurrency
	}
	return &Concurrent{
		sender: sender,
		sem:    semaphore.NewWeighted(int64(limit)),
		limit:  limit,
		exec:   newExecutor(opts),
	}
}

// Limit returns the concurrency cap.
func (c *Concurrent) Limit() int {
	return c.limit
}

// Dispatch runs every command concurrently under the cap and waits for all of them.
func (c *Concurrent) Dispatch(ctx context.Context, cmds []Command, mode Mode, policy RetryPolicy) []Outcome {
	outcomes := make([]Outcome, len(cmds))
	if len(cmds) == 0 {
		return outcomes
	}

	var wg sync.WaitGroup
	for i, cmd := range cmds {
		wg.Add(1)
		go func(idx int, cmd Command) {
			defer wg.Done()

			if err := c.sem.Acquire(ctx, 1); err != nil {
				outcomes[idx] = notRun(cmd, ErrNoPermit, err)
				return
			}
			defer c.sem.Release(1)

			outcomes[idx] = c.exec.run(ctx, c.sender, cmd, mode, policy)
		}(i, cmd)
	}

	wg.Wait()
	return outcomes
}
