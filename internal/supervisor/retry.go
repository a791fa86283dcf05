package supervisor

import (
	"context"
	"errors"
	"net/http"
	"time"

	"iris-predict/internal/iris"
)

// RetryConfig holds configuration for the bounded retry policy.
type RetryConfig struct {
	// Timeouts is the deadline of each attempt; its length is the attempt budget.
	Timeouts          []time.Duration
	Backoff           time.Duration // pause between attempts (default 0)
	RetryClientErrors bool          // retry 4xx answers like any other failure
}

// DefaultRetryConfig is two attempts: 5s, then 8s.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		Timeouts:          []time.Duration{5 * time.Second, 8 * time.Second},
		RetryClientErrors: true,
	}
}

// RetryResult represents the outcome of a retried call.
type RetryResult struct {
	Attempts  int
	LastError error // nil on success; otherwise the failure of the last attempt made
}

// Retryer runs a call under the retry policy.
type Retryer struct {
	cfg RetryConfig
}

// NewRetryer creates a new Retryer with the given configuration.
func NewRetryer(cfg RetryConfig) *Retryer {
	if len(cfg.Timeouts) == 0 {
		cfg.Timeouts = DefaultRetryConfig().Timeouts
	}
	return &Retryer{cfg: cfg}
}

// MaxAttempts is the attempt budget.
func (r *Retryer) MaxAttempts() int {
	return len(r.cfg.Timeouts)
}

// ShouldRetry determines if an attempt's error warrants another attempt.
func ShouldRetry(err error, retryClientErrors bool) bool {
	if err == nil {
		return false
	}
	var e *iris.Error
	if !errors.As(err, &e) {
		// Unclassified failures are treated like connection errors.
		return true
	}
	if !e.Retryable() {
		return false
	}
	if e.Kind == iris.KindServer && !retryClientErrors &&
		e.Status >= http.StatusBadRequest && e.Status < http.StatusInternalServerError {
		return false
	}
	return true
}

// Do calls fn once per attempt, each under its own deadline derived from ctx.
// The deadline timer is released as soon as fn returns. Cancellation of ctx
// stops the loop and is reported as iris.ErrCancelled.
func (r *Retryer) Do(ctx context.Context, fn func(ctx context.Context, attempt int) error, onRetry func(attempt int, err error)) RetryResult {
	result := RetryResult{}

	for attempt := 1; attempt <= r.MaxAttempts(); attempt++ {
		if ctx.Err() != nil {
			result.LastError = iris.ErrCancelled
			return result
		}
		result.Attempts = attempt

		actx, cancel := context.WithTimeout(ctx, r.cfg.Timeouts[attempt-1])
		err := fn(actx, attempt)
		cancel()

		if err == nil {
			result.LastError = nil
			return result
		}
		result.LastError = err

		// Caller cancellation is never retried.
		if ctx.Err() != nil {
			result.LastError = iris.ErrCancelled
			return result
		}
		if !ShouldRetry(err, r.cfg.RetryClientErrors) || attempt == r.MaxAttempts() {
			return result
		}

		if onRetry != nil {
			onRetry(attempt+1, err)
		}
		if r.cfg.Backoff > 0 {
			select {
			case <-ctx.Done():
				result.LastError = iris.ErrCancelled
				return result
			case <-time.After(r.cfg.Backoff):
			}
		}
	}

	return result
}
