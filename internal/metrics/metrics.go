package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RegistryCallsTotal tracks SOAP calls per operation and environment
	RegistryCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "registrygw_calls_total",
			Help: "Total number of registry SOAP calls",
		},
		[]string{"operation", "environment"},
	)

	// RegistryErrorsTotal tracks failed calls by normalized failure code
	RegistryErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "registrygw_errors_total",
			Help: "Total number of registry call failures",
		},
		[]string{"operation", "code"},
	)

	// RegistryLatency tracks round-trip latency of a single HTTPS exchange
	RegistryLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "registrygw_latency_seconds",
			Help:    "Registry call latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	// RetriesTotal counts retry attempts after the first one
	RetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "registrygw_retries_total",
			Help: "Total number of retried registry calls",
		},
		[]string{"operation"},
	)

	// BreakerState is 0 closed, 1 half-open, 2 open
	BreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "registrygw_breaker_state",
			Help: "Circuit breaker state (0 closed, 1 half-open, 2 open)",
		},
		[]string{"breaker"},
	)

	// BreakerTripsTotal counts transitions into the open state
	BreakerTripsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "registrygw_breaker_trips_total",
			Help: "Total number of times the circuit opened",
		},
		[]string{"breaker"},
	)

	// CacheLookupsTotal counts fallback lookups by namespace and answer origin
	CacheLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "registrygw_cache_lookups_total",
			Help: "Total number of cache lookups by origin",
		},
		[]string{"namespace", "origin"},
	)

	// CertificateDaysToExpiry tracks days left on the loaded certificate
	CertificateDaysToExpiry = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "registrygw_certificate_days_to_expiry",
			Help: "Days until the loaded client certificate expires",
		},
	)

	// DBConnectionPoolUsage tracks the percentage of used connections
	DBConnectionPoolUsage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "registrygw_db_connection_pool_usage_percent",
			Help: "Percentage of used database connections",
		},
	)
)
