package dispatch

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// ─── Instrumented Sender ───────────────────────────────────────

// call records one SendCommand invocation.
type call struct {
	DeviceID  string
	Attribute string
	Value     any
	Start     time.Time
	End       time.Time
}

// mockSender counts in-flight requests and scripts failures per device.
type mockSender struct {
	delay time.Duration

	// failures is how many leading attempts fail for a device ID.
	// A negative value fails every attempt.
	failures map[string]int

	// transportErr makes failing attempts return an error instead of a 503.
	transportErr bool

	inFlight    atomic.Int32
	maxInFlight atomic.Int32

	mu       sync.Mutex
	attempts map[string]int
	calls    []call
}

func newMockSender(delay time.Duration) *mockSender {
	return &mockSender{
		delay:    delay,
		failures: map[string]int{},
		attempts: map[string]int{},
	}
}

func (m *mockSender) SendCommand(ctx context.Context, deviceID, attribute string, value any) (int, error) {
	n := m.inFlight.Add(1)
	defer m.inFlight.Add(-1)
	for {
		cur := m.maxInFlight.Load()
		if n <= cur || m.maxInFlight.CompareAndSwap(cur, n) {
			break
		}
	}

	start := time.Now()
	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}

	m.mu.Lock()
	m.attempts[deviceID]++
	attempt := m.attempts[deviceID]
	m.calls = append(m.calls, call{DeviceID: deviceID, Attribute: attribute, Value: value, Start: start, End: time.Now()})
	fails := m.failures[deviceID]
	m.mu.Unlock()

	if fails < 0 || attempt <= fails {
		if m.transportErr {
			return 0, errors.New("connection reset")
		}
		return http.StatusServiceUnavailable, nil
	}
	return http.StatusOK, nil
}

func (m *mockSender) attemptsFor(id string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempts[id]
}

func (m *mockSender) recorded() []call {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]call, len(m.calls))
	copy(out, m.calls)
	return out
}

func commands(ids ...string) []Command {
	cmds := make([]Command, len(ids))
	for i, id := range ids {
		cmds[i] = Command{DeviceID: id, Attribute: "status", Value: true}
	}
	return cmds
}

func numbered(n int) []Command {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = string(rune('a' + i))
	}
	return commands(ids...)
}

// fastRetry keeps tests quick while still exercising the delay path.
var fastRetry = RetryPolicy{MaxAttempts: 3, Delay: time.Millisecond}
