package dispatch

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// executor runs the attempt loop for a single command. It is shared by both
// Dispatcher implementations so they differ only in how they gate concurrency.
type executor struct {
	requestTimeout time.Duration
	logger         Logger
}

// run sends cmd through s until it succeeds, the attempts are used up or ctx ends.
func (x executor) run(ctx context.Context, s Sender, cmd Command, mode Mode, policy RetryPolicy) Outcome {
	start := time.Now()
	out := Outcome{Command: cmd}
	maxAttempts := policy.attemptsFor(mode)

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			out.Err = err
			break
		}
		out.Attempts = attempt

		status, err := x.send(ctx, s, cmd, mode)
		out.StatusCode = status

		if err == nil && (mode == ModeFireAndForget || status == http.StatusOK) {
			out.Succeeded = true
			out.Err = nil
			x.logger.Info("command succeeded",
				"device_id", cmd.DeviceID,
				"attribute", cmd.Attribute,
				"value", cmd.Value,
				"attempt", attempt,
				"status", status,
			)
			break
		}

		if err == nil {
			err = fmt.Errorf("%w: status %d", ErrRejected, status)
		}
		out.Err = err

		if attempt < maxAttempts {
			x.logger.Warn("command failed, retrying",
				"device_id", cmd.DeviceID,
				"attribute", cmd.Attribute,
				"attempt", attempt,
				"max_attempts", maxAttempts,
				"error", err,
			)
			if !sleep(ctx, policy.Delay) {
				out.Err = ctx.Err()
				break
			}
		}
	}

	if !out.Succeeded {
		x.logger.Error("command failed",
			"device_id", cmd.DeviceID,
			"attribute", cmd.Attribute,
			"value", cmd.Value,
			"attempts", out.Attempts,
			"error", out.Err,
		)
	}

	out.Duration = time.Since(start)
	return out
}

func (x executor) send(ctx context.Context, s Sender, cmd Command, mode Mode) (int, error) {
	if mode == ModeConfirmed && x.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, x.requestTimeout)
		defer cancel()
	}
	return s.SendCommand(ctx, cmd.DeviceID, cmd.Attribute, cmd.Value)
}

// notRun builds the outcome of a command that never reached the gateway.
func notRun(cmd Command, sentinel, cause error) Outcome {
	return Outcome{Command: cmd, Err: fmt.Errorf("%w: %w", sentinel, cause)}
}

// sleep waits for d or until ctx ends. It reports false if ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
