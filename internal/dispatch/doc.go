// Package dispatch is the command-dispatch engine.
//
// It turns a list of device commands into gateway requests with bounded
// concurrency, per-command retries and strictly sequential batching.
//
// # Components
//
//   - Concurrent: one goroutine per command behind a shared semaphore
//   - Pool: a fixed set of isolated Senders checked out per worker
//   - Scheduler: sequential batches, inter-batch delay, one reconciliation pass
//
// # Execution Model
//
//	commands ──▶ Scheduler ──▶ batch 1 ──▶ Dispatcher ──▶ Sender (gateway)
//	                 │          (join)        │ permit held across retries
//	                 │ sleep BatchDelay       │
//	                 ▼                        ▼
//	              batch 2 ...            Outcome per command
//	                 │
//	                 ▼
//	        reconcile failures once
//
// Every per-command failure is captured as an Outcome and aggregated; no
// error crosses a batch boundary.
//
// # Usage
//
//	d := dispatch.NewConcurrent(client, 10, dispatch.WithLogger(log))
//	s := dispatch.NewScheduler(d)
//	res := s.RunProgressive(ctx, cmds, dispatch.DefaultOptions())
//	fmt.Println(res.Success, res.Elapsed)
package dispatch
