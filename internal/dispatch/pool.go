package dispatch

import (
	"context"
	"fmt"
	"runtime"
	"sync"
)

// SenderFactory builds one isolated Sender. The pool calls it once per worker
// so that no transport is shared between workers.
type SenderFactory func() (Sender, error)

// Pool dispatches commands through a fixed set of isolated Senders.
//
// Each worker checks a Sender out for its whole lifetime and runs its
// commands one at a time, so a Sender is never used concurrently and at most
// Size commands are in flight across all callers. Use it when a transport
// must not be shared between goroutines.
type Pool struct {
	senders chan Sender
	all     []Sender
	size    int
	exec    executor
}

// NewPool builds size Senders with factory. A size below 1 uses one worker per CPU.
func NewPool(size int, factory SenderFactory, opts ...Option) (*Pool, error) {
	if size < 1 {
		size = runtime.NumCPU()
	}
	if factory == nil {
		return nil, fmt.Errorf("%w: nil factory", ErrInvalidPoolSize)
	}

	p := &Pool{
		senders: make(chan Sender, size),
		all:     make([]Sender, 0, size),
		size:    size,
		exec:    newExecutor(opts),
	}
	for i := 0; i < size; i++ {
		s, err := factory()
		if err != nil {
			p.Close()
			return nil, fmt.Errorf("building sender %d: %w", i, err)
		}
		p.all = append(p.all, s)
		p.senders <- s
	}
	return p, nil
}

// Size returns the number of workers.
func (p *Pool) Size() int {
	return p.size
}

// Dispatch runs the commands on min(Size, len(cmds)) workers and waits for all of them.
func (p *Pool) Dispatch(ctx context.Context, cmds []Command, mode Mode, policy RetryPolicy) []Outcome {
	outcomes := make([]Outcome, len(cmds))
	if len(cmds) == 0 {
		return outcomes
	}

	jobs := make(chan int, len(cmds))
	for i := range cmds {
		jobs <- i
	}
	close(jobs)

	workers := min(p.size, len(cmds))

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			var s Sender
			select {
			case s = <-p.senders:
			case <-ctx.Done():
				// Jobs left for this worker fail; other workers may still drain some.
				for idx := range jobs {
					outcomes[idx] = notRun(cmds[idx], ErrNoPermit, ctx.Err())
				}
				return
			}
			defer func() { p.senders <- s }()

			for idx := range jobs {
				outcomes[idx] = p.exec.run(ctx, s, cmds[idx], mode, policy)
			}
		}()
	}

	wg.Wait()
	return outcomes
}

// Close releases the transports of every Sender that supports it. Call it
// only when no Dispatch is running.
func (p *Pool) Close() {
	for _, s := range p.all {
		if c, ok := s.(interface{ Close() }); ok {
			c.Close()
		}
	}
}
