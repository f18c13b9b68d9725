package domain

import (
	"time"

	"github.com/vietddude/registrygw/internal/core/failure"
)

// Origin tags where a successful value came from.
type Origin string

const (
	OriginLive         Origin = "LIVE"
	OriginCache        Origin = "CACHE"
	OriginExpiredCache Origin = "EXPIRED_CACHE"
)

// Failure is the error arm of Result. It is safe to render to end users.
type Failure struct {
	Code           failure.Code   `json:"error_code"`
	Message        string         `json:"message"`
	Retryable      bool           `json:"retryable"`
	RequiredAction string         `json:"required_action,omitempty"`
	Source         failure.Source `json:"source"`
	Details        map[string]any `json:"details,omitempty"`
	RetryAfter     time.Duration  `json:"retry_after,omitempty"`
	Timestamp      time.Time      `json:"timestamp"`
}

// Result is the tagged union returned by every public gateway operation.
// Exactly one of OK/Err is meaningful: when Err is nil the call succeeded.
type Result[T any] struct {
	Data      T         `json:"data,omitempty"`
	Origin    Origin    `json:"origin,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Err       *Failure  `json:"error,omitempty"`
}

// OK reports whether the result is a success.
func (r Result[T]) OK() bool {
	return r.Err == nil
}

// Succeed builds a success result.
func Succeed[T any](data T, origin Origin, now time.Time) Result[T] {
	return Result[T]{Data: data, Origin: origin, Timestamp: now}
}

// Fail converts any error into a failure result. Typed errors keep their
// code and sanitized details; other errors are classified.
func Fail[T any](err error, now time.Time) Result[T] {
	return Result[T]{Timestamp: now, Err: NewFailure(err, now)}
}

// NewFailure builds the Failure arm for err.
func NewFailure(err error, now time.Time) *Failure {
	code := failure.Classify(err)
	f := &Failure{
		Code:           code,
		Message:        failure.Message(code),
		Retryable:      failure.IsRetryable(code),
		RequiredAction: failure.RequiredAction(code),
		Source:         failure.SourceOf(code),
		Timestamp:      now,
	}
	if fe, ok := failure.As(err); ok {
		f.Details = failure.Redact(fe.Details)
		if fe.CircuitOpen {
			f.Retryable = false
			f.RetryAfter = fe.RetryAfter
		}
	}
	return f
}
