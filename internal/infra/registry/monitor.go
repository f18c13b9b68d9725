package registry

import (
	"net/http"
	"strconv"
	"sync"
	"time"
)

// EndpointStatus represents the health state of a registry endpoint.
type EndpointStatus int

const (
	StatusHealthy   EndpointStatus = iota // Endpoint is answering normally
	StatusDegraded                        // Endpoint is slow or failing often
	StatusThrottled                       // Endpoint asked us to back off
)

func (s EndpointStatus) String() string {
	switch s {
	case StatusHealthy:
		return "healthy"
	case StatusDegraded:
		return "degraded"
	case StatusThrottled:
		return "throttled"
	default:
		return "unknown"
	}
}

// MonitorStats holds monitoring statistics for an endpoint.
type MonitorStats struct {
	Status            string        `json:"status"`
	AverageLatency    time.Duration `json:"average_latency"`
	ThrottleCount     int           `json:"throttle_count"`
	FailureCount      int           `json:"failure_count"`
	RequestsLast1Hour int           `json:"requests_last_1h"`
	RetryAfter        time.Duration `json:"retry_after,omitempty"`
	LastSuccessAt     time.Time     `json:"last_success_at,omitzero"`
	LastFailureAt     time.Time     `json:"last_failure_at,omitzero"`
}

// Monitor tracks latency and back-off signals for one endpoint.
type Monitor struct {
	mu  sync.RWMutex
	now func() time.Time

	// Response time tracking
	recentLatencies  []time.Duration
	maxLatencyWindow int

	// Error tracking
	throttleCount  int
	failureCount   int
	recentFailures int // consecutive
	throttledUntil time.Time
	lastSuccessAt  time.Time
	lastFailureAt  time.Time

	// Sliding window
	requestTimestamps []time.Time
	windowDuration    time.Duration

	// Thresholds
	slowResponseThreshold time.Duration
	degradedFailures      int
	defaultRetryAfter     time.Duration
}

// NewMonitor creates a monitor with default thresholds.
func NewMonitor() *Monitor {
	return &Monitor{
		now:                   time.Now,
		recentLatencies:       make([]time.Duration, 0, 100),
		maxLatencyWindow:      100,
		windowDuration:        time.Hour,
		slowResponseThreshold: 10 * time.Second,
		degradedFailures:      3,
		defaultRetryAfter:     60 * time.Second,
	}
}

// RecordRequest records a completed exchange with its latency.
func (m *Monitor) RecordRequest(latency time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()

	m.recentLatencies = append(m.recentLatencies, latency)
	if len(m.recentLatencies) > m.maxLatencyWindow {
		m.recentLatencies = m.recentLatencies[1:]
	}
	m.recentFailures = 0
	m.lastSuccessAt = now

	m.requestTimestamps = append(m.requestTimestamps, now)
	m.pruneLocked(now)
}

// RecordFailure records a transport or server-side failure.
func (m *Monitor) RecordFailure() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.failureCount++
	m.recentFailures++
	m.lastFailureAt = now
	m.requestTimestamps = append(m.requestTimestamps, now)
	m.pruneLocked(now)
}

// RecordThrottle records a 429 or 503 answer. retryAfter is the raw
// Retry-After header: delay seconds or an HTTP date.
func (m *Monitor) RecordThrottle(statusCode int, retryAfter string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.throttleCount++

	wait := parseRetryAfter(retryAfter, now)
	if wait == 0 && statusCode == http.StatusTooManyRequests {
		wait = m.defaultRetryAfter
	}
	if until := now.Add(wait); until.After(m.throttledUntil) {
		m.throttledUntil = until
	}
}

func (m *Monitor) pruneLocked(now time.Time) {
	cutoff := now.Add(-m.windowDuration)
	i := 0
	for i < len(m.requestTimestamps) && !m.requestTimestamps[i].After(cutoff) {
		i++
	}
	m.requestTimestamps = m.requestTimestamps[i:]
}

// Status returns the current status of the endpoint.
func (m *Monitor) Status() EndpointStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.statusLocked()
}

func (m *Monitor) statusLocked() EndpointStatus {
	if m.now().Before(m.throttledUntil) {
		return StatusThrottled
	}
	if m.recentFailures >= m.degradedFailures {
		return StatusDegraded
	}
	if len(m.recentLatencies) > 10 && m.averageLatencyLocked() > m.slowResponseThreshold {
		return StatusDegraded
	}
	return StatusHealthy
}

// RetryAfter returns remaining time before the endpoint should be called again.
func (m *Monitor) RetryAfter() time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if remaining := m.throttledUntil.Sub(m.now()); remaining > 0 {
		return remaining
	}
	return 0
}

// AverageLatency returns the average latency of recent requests.
func (m *Monitor) AverageLatency() time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.averageLatencyLocked()
}

func (m *Monitor) averageLatencyLocked() time.Duration {
	if len(m.recentLatencies) == 0 {
		return 0
	}
	var total time.Duration
	for _, lat := range m.recentLatencies {
		total += lat
	}
	return total / time.Duration(len(m.recentLatencies))
}

// Stats returns current monitoring statistics.
func (m *Monitor) Stats() MonitorStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := MonitorStats{
		Status:            m.statusLocked().String(),
		AverageLatency:    m.averageLatencyLocked(),
		ThrottleCount:     m.throttleCount,
		FailureCount:      m.failureCount,
		RequestsLast1Hour: len(m.requestTimestamps),
		LastSuccessAt:     m.lastSuccessAt,
		LastFailureAt:     m.lastFailureAt,
	}
	if remaining := m.throttledUntil.Sub(m.now()); remaining > 0 {
		stats.RetryAfter = remaining
	}
	return stats
}

func parseRetryAfter(v string, now time.Time) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil && t.After(now) {
		return t.Sub(now)
	}
	return 0
}
