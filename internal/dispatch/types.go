package dispatch

import (
	"context"
	"fmt"
	"time"
)

// Mode selects how a command's response is treated.
type Mode string

// Dispatch modes.
const (
	// ModeConfirmed waits for each response under a per-request timeout,
	// treats HTTP 200 as success and retries failures.
	ModeConfirmed Mode = "confirmed"

	// ModeFireAndForget sends once and only checks that the request did not
	// fail at the transport level.
	ModeFireAndForget Mode = "fire_and_forget"
)

// ParseMode converts a configuration string into a Mode.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeConfirmed, ModeFireAndForget:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidMode, s)
	}
}

// Command is one attribute/value instruction for one device. Commands have
// no identity; duplicates are executed independently.
type Command struct {
	DeviceID  string `json:"device_id"`
	Attribute string `json:"attribute"`
	Value     any    `json:"value"`
}

func (c Command) String() string {
	return fmt.Sprintf("%s.%s=%v", c.DeviceID, c.Attribute, c.Value)
}

// RetryPolicy bounds the attempts made for a single command.
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts, including the first.
	// Values below 1 mean a single attempt.
	MaxAttempts int

	// Delay is the pause between a failed attempt and the next one.
	Delay time.Duration
}

// DefaultRetryPolicy returns three attempts half a second apart.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, Delay: 500 * time.Millisecond}
}

// attemptsFor returns how many attempts a command gets in the given mode.
func (p RetryPolicy) attemptsFor(mode Mode) int {
	if mode == ModeFireAndForget || p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

// Outcome is the terminal result of one command.
type Outcome struct {
	Command    Command       `json:"command"`
	Succeeded  bool          `json:"succeeded"`
	Attempts   int           `json:"attempts"`
	StatusCode int           `json:"status_code,omitempty"`
	Err        error         `json:"-"`
	Duration   time.Duration `json:"duration_ns"`
}

// Sender issues a single command request to the gateway and reports the HTTP
// status. A non-nil error means the request failed at the transport level.
// *gateway.Client satisfies this interface.
type Sender interface {
	SendCommand(ctx context.Context, deviceID, attribute string, value any) (int, error)
}

// Dispatcher executes a list of commands and returns one Outcome per command,
// index-aligned with the input. Dispatch returns only when every command has
// reached a terminal state; per-command failures are data, never errors.
type Dispatcher interface {
	Dispatch(ctx context.Context, cmds []Command, mode Mode, policy RetryPolicy) []Outcome
}

// Logger defines the logging interface used by the dispatch package.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// AllSucceeded reports whether every outcome succeeded. An empty slice counts
// as success.
func AllSucceeded(outcomes []Outcome) bool {
	for i := range outcomes {
		if !outcomes[i].Succeeded {
			return false
		}
	}
	return true
}
