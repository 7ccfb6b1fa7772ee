package dispatch

import (
	"context"
	"time"
)

// Scheduler defaults.
const (
	DefaultBatchSize  = 5
	DefaultBatchDelay = time.Second
)

// Options controls a single scheduler run.
type Options struct {
	Mode       Mode
	Retry      RetryPolicy
	BatchSize  int
	BatchDelay time.Duration

	// Reconcile re-dispatches every failed command once, all together, after
	// the last batch, using ReconcileRetry.
	Reconcile      bool
	ReconcileRetry RetryPolicy
}

// DefaultOptions returns confirmed mode, batches of five one second apart,
// three attempts per command and a two-attempt reconciliation pass.
func DefaultOptions() Options {
	return Options{
		Mode:           ModeConfirmed,
		Retry:          DefaultRetryPolicy(),
		BatchSize:      DefaultBatchSize,
		BatchDelay:     DefaultBatchDelay,
		Reconcile:      true,
		ReconcileRetry: RetryPolicy{MaxAttempts: 2, Delay: DefaultRetryPolicy().Delay},
	}
}

// Result aggregates a scheduler run.
type Result struct {
	Success bool          `json:"success"`
	Elapsed time.Duration `json:"elapsed_ns"`
	Batches int           `json:"batches"`

	// Outcomes is index-aligned with the input commands. After
	// reconciliation it holds the final outcome of each command.
	Outcomes []Outcome `json:"outcomes"`

	// Failed lists the commands that were still failing at the end.
	Failed []Command `json:"failed,omitempty"`

	// Reconciled counts commands that failed in their batch and succeeded
	// in the reconciliation pass.
	Reconciled int `json:"reconciled"`
}

// Succeeded returns the number of successful outcomes.
func (r Result) Succeeded() int {
	n := 0
	for i := range r.Outcomes {
		if r.Outcomes[i].Succeeded {
			n++
		}
	}
	return n
}

// Scheduler drains a command list through a Dispatcher in strictly
// sequential batches with a pause between them.
type Scheduler struct {
	dispatcher Dispatcher
	logger     Logger
}

// NewScheduler creates a Scheduler on top of d.
func NewScheduler(d Dispatcher) *Scheduler {
	return &Scheduler{
		dispatcher: d,
		logger:     noopLogger{},
	}
}

// SetLogger sets the logger for the scheduler.
func (s *Scheduler) SetLogger(logger Logger) {
	s.logger = logger
}

// Run splits cmds into batches of opts.BatchSize and dispatches them one
// after another. Batch i+1 starts only after batch i's Dispatch returned.
// opts.BatchDelay is slept between batches but not after the last one.
//
// Success is the AND of every batch. Elapsed is wall clock from the first
// batch start to the end of the last dispatch, delays and the optional
// reconciliation pass included. An empty list succeeds with zero elapsed.
func (s *Scheduler) Run(ctx context.Context, cmds []Command, opts Options) Result {
	if len(cmds) == 0 {
		return Result{Success: true, Outcomes: []Outcome{}}
	}
	opts = normalise(opts)

	start := time.Now()
	res := s.runBatches(ctx, cmds, opts, opts.BatchSize)
	if opts.Reconcile {
		s.reconcile(ctx, &res, opts)
	}
	res.Failed = failedCommands(res.Outcomes)
	res.Elapsed = time.Since(start)

	s.logger.Info("control operation completed",
		"commands", len(cmds),
		"batches", res.Batches,
		"succeeded", res.Succeeded(),
		"failed", len(res.Failed),
		"elapsed_ms", res.Elapsed.Milliseconds(),
		"success", res.Success,
	)
	return res
}

// RunProgressive applies cmds in slices of opts.BatchSize, each slice being
// a full Run of its own with reconciliation suppressed, pausing
// opts.BatchDelay between slices. Failures of every slice are reconciled
// once at the end when opts.Reconcile is set.
func (s *Scheduler) RunProgressive(ctx context.Context, cmds []Command, opts Options) Result {
	if len(cmds) == 0 {
		return Result{Success: true, Outcomes: []Outcome{}}
	}
	opts = normalise(opts)

	sliceOpts := opts
	sliceOpts.Reconcile = false

	start := time.Now()
	res := Result{Success: true, Outcomes: make([]Outcome, 0, len(cmds))}

	for i := 0; i < len(cmds); i += opts.BatchSize {
		slice := cmds[i:min(i+opts.BatchSize, len(cmds))]

		if i > 0 && !sleep(ctx, opts.BatchDelay) {
			res.Outcomes = appendNotDispatched(res.Outcomes, cmds[i:], ctx.Err())
			res.Success = false
			break
		}

		part := s.Run(ctx, slice, sliceOpts)
		res.Outcomes = append(res.Outcomes, part.Outcomes...)
		res.Batches += part.Batches
		res.Success = res.Success && part.Success
	}

	if opts.Reconcile {
		s.reconcile(ctx, &res, opts)
	}
	res.Failed = failedCommands(res.Outcomes)
	res.Elapsed = time.Since(start)

	s.logger.Info("progressive control completed",
		"commands", len(cmds),
		"batches", res.Batches,
		"failed", len(res.Failed),
		"reconciled", res.Reconciled,
		"elapsed_ms", res.Elapsed.Milliseconds(),
		"success", res.Success,
	)
	return res
}

// runBatches dispatches cmds in consecutive batches of size.
func (s *Scheduler) runBatches(ctx context.Context, cmds []Command, opts Options, size int) Result {
	res := Result{Success: true, Outcomes: make([]Outcome, 0, len(cmds))}

	for i := 0; i < len(cmds); i += size {
		batch := cmds[i:min(i+size, len(cmds))]

		if i > 0 && !sleep(ctx, opts.BatchDelay) {
			res.Outcomes = appendNotDispatched(res.Outcomes, cmds[i:], ctx.Err())
			res.Success = false
			break
		}

		outcomes := s.dispatcher.Dispatch(ctx, batch, opts.Mode, opts.Retry)
		res.Outcomes = append(res.Outcomes, outcomes...)
		res.Batches++

		ok := AllSucceeded(outcomes)
		res.Success = res.Success && ok

		s.logger.Debug("batch completed",
			"batch", res.Batches,
			"size", len(batch),
			"success", ok,
		)
	}
	return res
}

// reconcile re-dispatches every failed command once, concurrently and
// without batching. Commands that now succeed replace their failed outcome.
func (s *Scheduler) reconcile(ctx context.Context, res *Result, opts Options) {
	var (
		idx  []int
		cmds []Command
	)
	for i := range res.Outcomes {
		if !res.Outcomes[i].Succeeded {
			idx = append(idx, i)
			cmds = append(cmds, res.Outcomes[i].Command)
		}
	}
	if len(cmds) == 0 || ctx.Err() != nil {
		return
	}

	s.logger.Warn("retrying failed commands", "count", len(cmds))

	outcomes := s.dispatcher.Dispatch(ctx, cmds, opts.Mode, opts.ReconcileRetry)
	for j, out := range outcomes {
		prev := res.Outcomes[idx[j]]
		out.Attempts += prev.Attempts
		out.Duration += prev.Duration
		if out.Succeeded {
			res.Reconciled++
		}
		res.Outcomes[idx[j]] = out
	}
	res.Success = AllSucceeded(res.Outcomes)
}

func normalise(opts Options) Options {
	if opts.BatchSize < 1 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.Mode == "" {
		opts.Mode = ModeConfirmed
	}
	return opts
}

func failedCommands(outcomes []Outcome) []Command {
	var failed []Command
	for i := range outcomes {
		if !outcomes[i].Succeeded {
			failed = append(failed, outcomes[i].Command)
		}
	}
	return failed
}

func appendNotDispatched(outcomes []Outcome, cmds []Command, cause error) []Outcome {
	for _, cmd := range cmds {
		outcomes = append(outcomes, notRun(cmd, ErrNotDispatched, cause))
	}
	return outcomes
}
