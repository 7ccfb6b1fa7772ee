package dispatch

import "time"

// DefaultRequestTimeout bounds each confirmed-mode attempt.
const DefaultRequestTimeout = 10 * time.Second

// Option configures a Concurrent or Pool dispatcher.
type Option func(*executor)

// WithRequestTimeout sets the per-attempt timeout used in confirmed mode.
// Zero disables it, leaving only the transport's own timeout.
func WithRequestTimeout(d time.Duration) Option {
	return func(x *executor) {
		x.requestTimeout = d
	}
}

// WithLogger sets the logger used for per-attempt log lines.
func WithLogger(l Logger) Option {
	return func(x *executor) {
		if l != nil {
			x.logger = l
		}
	}
}

func newExecutor(opts []Option) executor {
	x := executor{
		requestTimeout: DefaultRequestTimeout,
		logger:         noopLogger{},
	}
	for _, opt := range opts {
		opt(&x)
	}
	return x
}
