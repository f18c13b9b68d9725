package gateway

import (
	"context"
	"log/slog"

	"github.com/vietddude/registrygw/internal/core/domain"
)

// LogAlertSink reports unavailability through the logger.
type LogAlertSink struct {
	logger *slog.Logger
}

// NewLogAlertSink creates a LogAlertSink. A nil logger uses slog.Default.
func NewLogAlertSink(logger *slog.Logger) *LogAlertSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogAlertSink{logger: logger.With("component", "alerts")}
}

// NotifyUnavailable implements domain.AlertSink.
func (s *LogAlertSink) NotifyUnavailable(ctx context.Context, label string) {
	s.logger.ErrorContext(ctx, "Registry unavailable, circuit opened", "operation", label)
}

// FuncAlertSink adapts a function to domain.AlertSink.
func FuncAlertSink(fn func(ctx context.Context, label string)) domain.AlertSink {
	return domain.AlertSinkFunc(fn)
}
