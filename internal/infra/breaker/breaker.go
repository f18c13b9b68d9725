// Package breaker implements a circuit breaker that stops calling the
// registry for a cooldown period once it keeps failing.
package breaker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/vietddude/registrygw/internal/core/domain"
	"github.com/vietddude/registrygw/internal/core/failure"
	"github.com/vietddude/registrygw/internal/metrics"
)

// State is the circuit state.
type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateHalfOpen:
		return "HALF_OPEN"
	case StateOpen:
		return "OPEN"
	default:
		return "UNKNOWN"
	}
}

const (
	DefaultFailureThreshold = 5
	DefaultCooldown         = 60 * time.Second
	DefaultDecayInterval    = 10
)

// Stats is a snapshot of a breaker.
type Stats struct {
	Name        string        `json:"name"`
	State       string        `json:"state"`
	Failures    int           `json:"failures"`
	Successes   int           `json:"successes"`
	Trips       int           `json:"trips"`
	OpenedAt    time.Time     `json:"opened_at,omitempty"`
	LastFailure time.Time     `json:"last_failure,omitempty"`
	RetryAfter  time.Duration `json:"retry_after,omitempty"`
}

// Breaker guards calls to one dependency. All transitions happen under mu.
type Breaker struct {
	name          string
	threshold     int
	cooldown      time.Duration
	decayInterval int
	sink          domain.AlertSink
	countable     func(error) bool
	now           func() time.Time
	logger        *slog.Logger

	mu          sync.Mutex
	state       State
	failures    int
	successes   int
	trips       int
	openedAt    time.Time
	lastFailure time.Time
	trialActive bool
	alerted     bool
}

// Option configures a Breaker.
type Option func(*Breaker)

// WithFailureThreshold sets how many retryable failures open the circuit.
func WithFailureThreshold(n int) Option {
	return func(b *Breaker) {
		if n > 0 {
			b.threshold = n
		}
	}
}

// WithCooldown sets how long the circuit stays open before a trial call.
func WithCooldown(d time.Duration) Option {
	return func(b *Breaker) {
		if d > 0 {
			b.cooldown = d
		}
	}
}

// WithDecayInterval sets how many consecutive successes in CLOSED remove
// one recorded failure. Zero disables decay.
func WithDecayInterval(n int) Option {
	return func(b *Breaker) {
		if n >= 0 {
			b.decayInterval = n
		}
	}
}

// WithAlertSink sets the sink notified when the circuit opens.
func WithAlertSink(sink domain.AlertSink) Option {
	return func(b *Breaker) {
		b.sink = sink
	}
}

// WithClassifier sets which failures count toward the threshold.
func WithClassifier(fn func(error) bool) Option {
	return func(b *Breaker) {
		if fn != nil {
			b.countable = fn
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(b *Breaker) {
		if now != nil {
			b.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Breaker) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// New creates a closed breaker.
func New(name string, opts ...Option) *Breaker {
	b := &Breaker{
		name:          name,
		threshold:     DefaultFailureThreshold,
		cooldown:      DefaultCooldown,
		decayInterval: DefaultDecayInterval,
		countable:     failure.Retryable,
		now:           time.Now,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = b.logger.With("component", "breaker", "breaker", name)
	metrics.BreakerState.WithLabelValues(name).Set(float64(StateClosed))
	return b
}

// Name returns the breaker name.
func (b *Breaker) Name() string {
	return b.name
}

// Execute runs fn unless the circuit is open. Open-circuit rejections are
// *failure.Error values with CircuitOpen set and RetryAfter holding the
// remaining cooldown. A panic in fn releases the trial slot and propagates.
func (b *Breaker) Execute(ctx context.Context, label string, fn func(ctx context.Context) error) error {
	trial, err := b.admit(label)
	if err != nil {
		return err
	}

	completed := false
	defer func() {
		if !completed {
			b.release(trial)
		}
	}()

	err = fn(ctx)
	completed = true
	b.record(ctx, label, trial, err)
	return err
}

// release frees the trial slot without recording an outcome.
func (b *Breaker) release(trial bool) {
	if !trial {
		return
	}
	b.mu.Lock()
	b.trialActive = false
	b.mu.Unlock()
}

// Run is Execute for functions that return a value.
func Run[T any](ctx context.Context, b *Breaker, label string, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := b.Execute(ctx, label, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

// admit decides whether a call may proceed and whether it is the trial.
func (b *Breaker) admit(label string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateOpen:
		remaining := b.cooldown - b.now().Sub(b.openedAt)
		if remaining > 0 {
			return false, b.openError(label, remaining)
		}
		b.setState(StateHalfOpen)
		b.trialActive = true
		b.logger.Info("Circuit half-open, allowing trial call", "label", label)
		return true, nil
	case StateHalfOpen:
		if b.trialActive {
			return false, b.openError(label, 0)
		}
		b.trialActive = true
		return true, nil
	default:
		return false, nil
	}
}

func (b *Breaker) record(ctx context.Context, label string, trial bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if trial {
		b.trialActive = false
	}

	if err == nil {
		b.onSuccess(trial)
		return
	}
	if !b.countable(err) {
		return
	}
	b.onFailure(ctx, label, trial)
}

func (b *Breaker) onSuccess(trial bool) {
	switch {
	case trial && b.state == StateHalfOpen:
		b.failures = 0
		b.successes = 0
		b.alerted = false
		b.setState(StateClosed)
		b.logger.Info("Circuit closed")
	case b.state == StateClosed:
		b.successes++
		if b.decayInterval > 0 && b.successes >= b.decayInterval {
			b.successes = 0
			if b.failures > 0 {
				b.failures--
			}
		}
	}
}

func (b *Breaker) onFailure(ctx context.Context, label string, trial bool) {
	b.lastFailure = b.now()
	b.successes = 0

	switch {
	case trial && b.state == StateHalfOpen:
		b.trip(ctx, label)
	case b.state == StateClosed:
		b.failures++
		if b.failures >= b.threshold {
			b.trip(ctx, label)
		}
	}
}

func (b *Breaker) trip(ctx context.Context, label string) {
	b.openedAt = b.now()
	b.trips++
	b.setState(StateOpen)
	metrics.BreakerTripsTotal.WithLabelValues(b.name).Inc()
	b.logger.Warn("Circuit opened",
		"label", label,
		"failures", b.failures,
		"cooldown", b.cooldown,
	)

	if b.alerted || b.sink == nil {
		return
	}
	b.alerted = true
	sink := b.sink
	alertCtx := context.WithoutCancel(ctx)
	go sink.NotifyUnavailable(alertCtx, label)
}

func (b *Breaker) setState(s State) {
	b.state = s
	metrics.BreakerState.WithLabelValues(b.name).Set(float64(s))
}

func (b *Breaker) openError(label string, remaining time.Duration) *failure.Error {
	if remaining < 0 {
		remaining = 0
	}
	return &failure.Error{
		Code:        failure.ServerUnavailable,
		Op:          label,
		Message:     "circuit " + b.name + " is open",
		CircuitOpen: true,
		RetryAfter:  remaining,
	}
}

// State returns the current state. An open circuit whose cooldown elapsed
// still reports OPEN until the next call.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// IsOpen reports whether calls are currently rejected.
func (b *Breaker) IsOpen() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state == StateOpen && b.now().Sub(b.openedAt) < b.cooldown
}

// Reset closes the circuit and clears all counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	b.successes = 0
	b.trialActive = false
	b.alerted = false
	b.openedAt = time.Time{}
	b.setState(StateClosed)
}

// Stats returns a snapshot.
func (b *Breaker) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := Stats{
		Name:        b.name,
		State:       b.state.String(),
		Failures:    b.failures,
		Successes:   b.successes,
		Trips:       b.trips,
		OpenedAt:    b.openedAt,
		LastFailure: b.lastFailure,
	}
	if b.state == StateOpen {
		if remaining := b.cooldown - b.now().Sub(b.openedAt); remaining > 0 {
			s.RetryAfter = remaining
		}
	}
	return s
}
