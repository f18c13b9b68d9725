// Package worker holds background maintenance loops.
package worker

import (
	"context"
	"log/slog"
	"time"
)

// Store deletes cache entries that expired before cutoff.
type Store interface {
	Prune(ctx context.Context, cutoff time.Time) (int64, error)
}

// Pruner deletes cache entries that stayed expired longer than the
// retention period.
type Pruner struct {
	store     Store
	retention time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

// NewPruner creates a new Pruner worker. A nil logger uses slog.Default.
func NewPruner(store Store, retention time.Duration, logger *slog.Logger) *Pruner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pruner{
		store:     store,
		retention: retention,
		logger:    logger,
		now:       time.Now,
	}
}

// Interval is how often Start prunes: a tenth of the retention, between
// one minute and one hour.
func (p *Pruner) Interval() time.Duration {
	interval := min(p.retention/10, time.Hour)
	return max(interval, time.Minute)
}

// Start runs the pruner loop until ctx is done.
func (p *Pruner) Start(ctx context.Context) {
	if p.retention <= 0 {
		return // Retention disabled
	}

	ticker := time.NewTicker(p.Interval())
	defer ticker.Stop()

	p.Prune(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Prune(ctx)
		}
	}
}

// Prune runs one pass and returns the number of deleted rows.
func (p *Pruner) Prune(ctx context.Context) int64 {
	cutoff := p.now().Add(-p.retention)
	n, err := p.store.Prune(ctx, cutoff)
	if err != nil {
		p.logger.Error("Failed to prune cache", "cutoff", cutoff, "error", err)
		return 0
	}
	if n > 0 {
		p.logger.Debug("Pruned stale cache entries", "count", n, "cutoff", cutoff)
	}
	return n
}
