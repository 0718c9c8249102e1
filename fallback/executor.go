package fallback

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/amadeus-ai/nexuskit/metric"
)

// Operation is the unit of work the executor retries.
type Operation func(ctx context.Context) error

// OnFallback is an optional side-effect hook invoked after every failed
// attempt, before the backoff sleep.
type OnFallback func(err error)

// Executor retries an operation with exponential backoff and tracks a
// circuit breaker over consecutive failures.
//
// The retry loop occupies the calling goroutine for its entire lifetime;
// backoff sleeps block the caller, not the whole runtime.
type Executor struct {
	name          string
	maxRetries    int
	backoffFactor float64
	initialDelay  time.Duration
	onFallback    OnFallback
	logger        *slog.Logger
	metrics       *metric.Core

	mu           sync.Mutex
	failureCount int
	circuitOpen  bool
}

// Option configures an Executor.
type Option func(*Executor)

// WithMaxRetries sets how many retries follow the first attempt.
func WithMaxRetries(n int) Option {
	return func(e *Executor) {
		e.maxRetries = n
	}
}

// WithBackoffFactor sets the delay multiplier applied after every attempt.
func WithBackoffFactor(f float64) Option {
	return func(e *Executor) {
		e.backoffFactor = f
	}
}

// WithInitialDelay sets the delay before the first retry.
func WithInitialDelay(d time.Duration) Option {
	return func(e *Executor) {
		e.initialDelay = d
	}
}

// WithOnFallback sets the per-failure side-effect hook.
func WithOnFallback(fn OnFallback) Option {
	return func(e *Executor) {
		e.onFallback = fn
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Executor) {
		e.logger = logger
	}
}

// WithMetrics enables retry and circuit metrics on the core registry.
func WithMetrics(core *metric.Core) Option {
	return func(e *Executor) {
		e.metrics = core
	}
}

// New creates an Executor. The name labels log entries and metrics.
func New(name string, opts ...Option) *Executor {
	e := &Executor{
		name:          name,
		maxRetries:    3,
		backoffFactor: 2.0,
		initialDelay:  time.Second,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.maxRetries < 0 {
		e.maxRetries = 0
	}
	if e.backoffFactor <= 0 {
		e.backoffFactor = 2.0
	}
	if e.initialDelay <= 0 {
		e.initialDelay = time.Second
	}
	return e
}

// Run executes op, retrying up to the configured retry limit with
// exponential backoff. It returns nil on the first success, or the last
// error once retries are exhausted. Exactly one of those happens per call.
//
// Run does not consult the circuit state before attempting; an open circuit
// only matters to callers who check CircuitOpen first.
func (e *Executor) Run(ctx context.Context, op Operation) error {
	retries := 0
	delay := e.initialDelay

	for {
		err := op(ctx)
		if err == nil {
			e.recordSuccess()
			return nil
		}

		retries++
		e.recordFailure()
		e.logger.Error("operation failed",
			"executor", e.name,
			"retry", retries,
			"max_retries", e.maxRetries,
			"error", err,
		)

		if e.onFallback != nil {
			e.onFallback(err)
		}

		if retries > e.maxRetries {
			return fmt.Errorf("%s: retries exhausted after %d attempts: %w", e.name, retries, err)
		}

		if sleepErr := e.sleep(ctx, delay); sleepErr != nil {
			return fmt.Errorf("%s: cancelled during backoff: %w", e.name, sleepErr)
		}
		delay = time.Duration(float64(delay) * e.backoffFactor)
	}
}

// sleep waits for d or until ctx is cancelled.
func (e *Executor) sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (e *Executor) recordSuccess() {
	e.mu.Lock()
	e.failureCount = 0
	e.circuitOpen = false
	e.mu.Unlock()

	if e.metrics != nil {
		e.metrics.RetryAttempts.WithLabelValues("success").Inc()
		e.metrics.CircuitState.WithLabelValues(e.name).Set(0)
	}
}

func (e *Executor) recordFailure() {
	e.mu.Lock()
	e.failureCount++
	opened := false
	if e.failureCount >= e.maxRetries && !e.circuitOpen {
		e.circuitOpen = true
		opened = true
	}
	e.mu.Unlock()

	if e.metrics != nil {
		e.metrics.RetryAttempts.WithLabelValues("failure").Inc()
		if opened {
			e.metrics.CircuitState.WithLabelValues(e.name).Set(1)
		}
	}
	if opened {
		e.logger.Warn("circuit breaker opened", "executor", e.name, "failures", e.maxRetries)
	}
}

// CircuitOpen reports whether the circuit breaker is open.
func (e *Executor) CircuitOpen() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.circuitOpen
}

// FailureCount returns the consecutive failure count since the last success
// or reset.
func (e *Executor) FailureCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.failureCount
}

// Reset closes the circuit and clears the failure count.
func (e *Executor) Reset() {
	e.mu.Lock()
	e.failureCount = 0
	e.circuitOpen = false
	e.mu.Unlock()

	if e.metrics != nil {
		e.metrics.CircuitState.WithLabelValues(e.name).Set(0)
	}
}

// RunWithResult executes op through the executor and returns its value.
func RunWithResult[T any](ctx context.Context, e *Executor, op func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := e.Run(ctx, func(ctx context.Context) error {
		var innerErr error
		result, innerErr = op(ctx)
		return innerErr
	})
	return result, err
}
