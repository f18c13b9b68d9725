package domain

//go:generate mockgen -source=alert.go -destination=mocks/alert_sink.go -package=mocks AlertSink

import "context"

// AlertSink receives the "registry unavailable" side-channel notification.
// Delivery (email, push, log) belongs to the surrounding application.
type AlertSink interface {
	NotifyUnavailable(ctx context.Context, operationLabel string)
}

// AlertSinkFunc adapts a function to AlertSink.
type AlertSinkFunc func(ctx context.Context, operationLabel string)

// NotifyUnavailable implements AlertSink.
func (f AlertSinkFunc) NotifyUnavailable(ctx context.Context, operationLabel string) {
	f(ctx, operationLabel)
}
