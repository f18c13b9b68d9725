package health

import (
	"context"
	"sync"
	"time"

	"github.com/vietddude/registrygw/internal/core/domain"
	"github.com/vietddude/registrygw/internal/infra/breaker"
	"github.com/vietddude/registrygw/internal/infra/cert"
	"github.com/vietddude/registrygw/internal/infra/registry"
)

// Source is what the monitor inspects. *gateway.Gateway implements it.
type Source interface {
	CertificateInfo(ctx context.Context) domain.Result[cert.Info]
	BreakerStats() map[domain.Operation]breaker.Stats
	MonitorStats() map[domain.Operation]registry.MonitorStats
	HealthChecks() map[string]func(context.Context) error
}

// Monitor aggregates health status from the gateway components.
type Monitor struct {
	source     Source
	warnDays   int
	interval   time.Duration
	lastCheck  time.Time
	lastReport HealthReport
	mu         sync.Mutex
}

// NewMonitor creates a new health monitor. Certificates expiring within
// warnDays report degraded.
func NewMonitor(source Source, warnDays int) *Monitor {
	return &Monitor{
		source:   source,
		warnDays: warnDays,
		interval: 10 * time.Second,
	}
}

// CheckHealth builds a report, reusing the previous one for a few seconds
// so probes do not hammer the backends.
func (m *Monitor) CheckHealth(ctx context.Context) HealthReport {
	m.mu.Lock()
	defer m.mu.Unlock()

	if time.Since(m.lastCheck) < m.interval && len(m.lastReport.Components) > 0 {
		return m.lastReport
	}

	report := HealthReport{
		SystemStatus: StatusHealthy,
		Components:   make(map[string]ComponentHealth),
	}
	add := func(c ComponentHealth) {
		report.Components[c.Name] = c
		report.SystemStatus = worst(report.SystemStatus, c.Status)
	}

	add(m.certificate(ctx))

	endpoints := m.source.MonitorStats()
	for op, stats := range m.source.BreakerStats() {
		c := ComponentHealth{
			Name:    "operation:" + string(op),
			Status:  StatusHealthy,
			Details: map[string]any{"breaker": stats},
		}
		if stats.State != breaker.StateClosed.String() {
			c.Status = StatusDegraded
			c.Message = "circuit " + stats.State
		}
		if ep, ok := endpoints[op]; ok {
			c.Details = map[string]any{"breaker": stats, "endpoint": ep}
			if ep.Status != registry.StatusHealthy.String() {
				c.Status = StatusDegraded
				if c.Message == "" {
					c.Message = "endpoint " + ep.Status
				}
			}
		}
		add(c)
	}

	for name, check := range m.source.HealthChecks() {
		c := ComponentHealth{Name: "cache:" + name, Status: StatusHealthy}
		checkCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := check(checkCtx); err != nil {
			// the gateway answers without cache when the backend is down
			c.Status = StatusDegraded
			c.Message = err.Error()
		}
		cancel()
		add(c)
	}

	m.lastCheck = time.Now()
	m.lastReport = report
	return report
}

func (m *Monitor) certificate(ctx context.Context) ComponentHealth {
	c := ComponentHealth{Name: "certificate", Status: StatusHealthy}

	res := m.source.CertificateInfo(ctx)
	if !res.OK() {
		c.Status = StatusCritical
		c.Message = res.Err.Message
		c.Details = map[string]any{"error_code": res.Err.Code, "required_action": res.Err.RequiredAction}
		return c
	}

	info := res.Data
	c.Details = info
	switch {
	case !info.Valid:
		c.Status = StatusCritical
		c.Message = "certificate outside its validity window"
	case info.DaysUntilExpiry <= m.warnDays:
		c.Status = StatusDegraded
		c.Message = "certificate expires soon"
	}
	return c
}
