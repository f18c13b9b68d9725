package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vietddude/registrygw/internal/core/domain"
	"github.com/vietddude/registrygw/internal/core/failure"
	"github.com/vietddude/registrygw/internal/infra/breaker"
	"github.com/vietddude/registrygw/internal/infra/cert"
	"github.com/vietddude/registrygw/internal/infra/registry"
)

type stubSource struct {
	info      domain.Result[cert.Info]
	breakers  map[domain.Operation]breaker.Stats
	endpoints map[domain.Operation]registry.MonitorStats
	checks    map[string]func(context.Context) error
}

func (s *stubSource) CertificateInfo(context.Context) domain.Result[cert.Info] { return s.info }
func (s *stubSource) BreakerStats() map[domain.Operation]breaker.Stats         { return s.breakers }
func (s *stubSource) MonitorStats() map[domain.Operation]registry.MonitorStats {
	return s.endpoints
}
func (s *stubSource) HealthChecks() map[string]func(context.Context) error { return s.checks }

func healthySource() *stubSource {
	now := time.Now()
	return &stubSource{
		info: domain.Succeed(cert.Info{Subject: "ACME", Valid: true, DaysUntilExpiry: 200}, domain.OriginLive, now),
		breakers: map[domain.Operation]breaker.Stats{
			domain.OpConsultEmployer: {Name: "consultaEmpregador", State: "CLOSED"},
		},
		endpoints: map[domain.Operation]registry.MonitorStats{
			domain.OpConsultEmployer: {Status: registry.StatusHealthy.String()},
		},
		checks: map[string]func(context.Context) error{
			"redis": func(context.Context) error { return nil },
		},
	}
}

func TestMonitor_Healthy(t *testing.T) {
	report := NewMonitor(healthySource(), 30).CheckHealth(context.Background())
	assert.Equal(t, StatusHealthy, report.SystemStatus)
	assert.Len(t, report.Components, 3)
	assert.Equal(t, StatusHealthy, report.Components["certificate"].Status)
	assert.Equal(t, StatusHealthy, report.Components["cache:redis"].Status)
}

func TestMonitor_Degraded(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(s *stubSource)
		component string
	}{
		{
			name: "open circuit",
			mutate: func(s *stubSource) {
				s.breakers[domain.OpConsultEmployer] = breaker.Stats{State: "OPEN"}
			},
			component: "operation:consultaEmpregador",
		},
		{
			name: "throttled endpoint",
			mutate: func(s *stubSource) {
				s.endpoints[domain.OpConsultEmployer] = registry.MonitorStats{Status: registry.StatusThrottled.String()}
			},
			component: "operation:consultaEmpregador",
		},
		{
			name: "cache backend down",
			mutate: func(s *stubSource) {
				s.checks["redis"] = func(context.Context) error { return errors.New("connection refused") }
			},
			component: "cache:redis",
		},
		{
			name: "certificate expiring",
			mutate: func(s *stubSource) {
				s.info.Data.DaysUntilExpiry = 10
			},
			component: "certificate",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := healthySource()
			tt.mutate(src)
			report := NewMonitor(src, 30).CheckHealth(context.Background())
			assert.Equal(t, StatusDegraded, report.SystemStatus)
			assert.Equal(t, StatusDegraded, report.Components[tt.component].Status)
		})
	}
}

func TestMonitor_CriticalCertificate(t *testing.T) {
	src := healthySource()
	src.info = domain.Fail[cert.Info](failure.New(failure.CertificateNotConfigured, "no bundle"), time.Now())

	report := NewMonitor(src, 30).CheckHealth(context.Background())
	assert.Equal(t, StatusCritical, report.SystemStatus)
	assert.Equal(t, failure.Message(failure.CertificateNotConfigured), report.Components["certificate"].Message)

	src = healthySource()
	src.info.Data.Valid = false
	report = NewMonitor(src, 30).CheckHealth(context.Background())
	assert.Equal(t, StatusCritical, report.SystemStatus)
}

func TestMonitor_CachesReport(t *testing.T) {
	src := healthySource()
	m := NewMonitor(src, 30)
	first := m.CheckHealth(context.Background())

	src.breakers[domain.OpConsultEmployer] = breaker.Stats{State: "OPEN"}
	second := m.CheckHealth(context.Background())
	assert.Equal(t, first.SystemStatus, second.SystemStatus)
}

func TestServer_Endpoints(t *testing.T) {
	src := healthySource()
	srv := NewServer(NewMonitor(src, 30), 0)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/detailed", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	var report HealthReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Contains(t, report.Components, "certificate")

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_CriticalIs503(t *testing.T) {
	src := healthySource()
	src.info = domain.Fail[cert.Info](failure.New(failure.CertificateExpired, "expired"), time.Now())
	srv := NewServer(NewMonitor(src, 30), 0)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
