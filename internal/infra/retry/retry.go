// Package retry runs an operation with exponential backoff.
package retry

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/vietddude/registrygw/internal/core/failure"
)

// Options defines retry behavior.
type Options struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	Jitter       bool

	// Retryable decides whether an error is worth another attempt.
	// Defaults to DefaultRetryable.
	Retryable func(error) bool
	// OnRetry is called before each sleep.
	OnRetry func(Attempt)
	// Sleep waits for d or until ctx is done. Defaults to a timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

// DefaultOptions provides the registry defaults.
var DefaultOptions = Options{
	MaxAttempts:  3,
	InitialDelay: time.Second,
	MaxDelay:     30 * time.Second,
	Multiplier:   2.0,
	Jitter:       true,
}

// Attempt describes a failed attempt that will be retried.
type Attempt struct {
	Number int // 1-based
	Delay  time.Duration
	Err    error
}

// Result is the outcome of Do.
type Result[T any] struct {
	Data     T
	Attempts int
	Elapsed  time.Duration
	Delays   []time.Duration
}

// Error is returned when Do gives up. It unwraps to the last error.
type Error struct {
	Attempts int
	Elapsed  time.Duration
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// DefaultRetryable retries taxonomy-retryable failures and transport-level
// 5xx/429/timeout signals. An open circuit is never retried here.
func DefaultRetryable(err error) bool {
	if err == nil {
		return false
	}
	if fe, ok := failure.As(err); ok {
		if fe.CircuitOpen {
			return false
		}
		if fe.StatusCode == http.StatusTooManyRequests || fe.StatusCode >= 500 {
			return true
		}
		return fe.Retryable()
	}
	return failure.IsRetryable(failure.Classify(err))
}

// Do executes fn until it succeeds, fails with a non-retryable error, or
// runs out of attempts.
func Do[T any](ctx context.Context, opts Options, fn func(ctx context.Context) (T, error)) (Result[T], error) {
	opts = opts.withDefaults()
	start := time.Now()
	res := Result[T]{}

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			res.Elapsed = time.Since(start)
			return res, &Error{Attempts: res.Attempts, Elapsed: res.Elapsed, Err: err}
		}

		data, err := fn(ctx)
		res.Attempts = attempt
		if err == nil {
			res.Data = data
			res.Elapsed = time.Since(start)
			return res, nil
		}

		if !opts.Retryable(err) || attempt >= opts.MaxAttempts {
			res.Elapsed = time.Since(start)
			return res, &Error{Attempts: attempt, Elapsed: res.Elapsed, Err: err}
		}

		delay := Backoff(opts, attempt)
		if opts.OnRetry != nil {
			opts.OnRetry(Attempt{Number: attempt, Delay: delay, Err: err})
		}
		res.Delays = append(res.Delays, delay)

		if serr := opts.Sleep(ctx, delay); serr != nil {
			res.Elapsed = time.Since(start)
			return res, &Error{Attempts: attempt, Elapsed: res.Elapsed, Err: serr}
		}
	}
}

// Backoff returns the delay after the given 1-based attempt:
// min(initial × multiplier^(attempt−1), max), widened by up to 10% jitter
// without exceeding max.
func Backoff(opts Options, attempt int) time.Duration {
	opts = opts.withDefaults()
	delay := float64(opts.InitialDelay) * math.Pow(opts.Multiplier, float64(attempt-1))
	if delay > float64(opts.MaxDelay) {
		delay = float64(opts.MaxDelay)
	}
	if opts.Jitter && delay > 0 {
		delay += delay * 0.1 * rand.Float64()
		if delay > float64(opts.MaxDelay) {
			delay = float64(opts.MaxDelay)
		}
	}
	return time.Duration(delay)
}

func (o Options) withDefaults() Options {
	if o.MaxAttempts < 1 {
		o.MaxAttempts = 1
	}
	if o.Multiplier < 1 {
		o.Multiplier = 1
	}
	if o.MaxDelay < o.InitialDelay {
		o.MaxDelay = o.InitialDelay
	}
	if o.Retryable == nil {
		o.Retryable = DefaultRetryable
	}
	if o.Sleep == nil {
		o.Sleep = sleep
	}
	return o
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
