// Package registry performs authenticated SOAP exchanges with the
// registry web services over mutual TLS.
package registry

import (
	"bytes"
	"context"
	"crypto/x509"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/vietddude/registrygw/internal/core/domain"
	"github.com/vietddude/registrygw/internal/core/failure"
	"github.com/vietddude/registrygw/internal/infra/soap"
	"github.com/vietddude/registrygw/internal/metrics"
)

const maxResponseSize = 10 << 20

// Request headers.
const (
	HeaderSOAPAction = "SOAPAction"
	HeaderAuthToken  = "X-Certificate-Auth"
	HeaderRequestID  = "X-Request-ID"
)

// Config holds the client settings.
type Config struct {
	Environment   domain.Environment
	EmployerID    string
	TransmitterID string

	Timeout            time.Duration
	InsecureSkipVerify bool
	CAFile             string
	RootCAs            *x509.CertPool // overrides CAFile

	RateLimit float64 // requests per second, 0 = unlimited
	Burst     int
}

// Endpoint is one SOAP service.
type Endpoint struct {
	URL       string
	Namespace string
	Method    string
	Action    string
}

// Request is one call: which service, and the opaque XML body.
type Request struct {
	Operation domain.Operation
	Endpoint  Endpoint
	Body      string
}

// Client sends SOAP requests authenticated with the employer certificate.
type Client struct {
	cfg        Config
	certs      CertificateSource
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
	now        func() time.Time

	mu       sync.Mutex
	monitors map[domain.Operation]*Monitor
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the client logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithClock overrides time.Now for auth tokens.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// NewClient creates a client. It fails only on invalid TLS configuration.
func NewClient(cfg Config, certs CertificateSource, opts ...Option) (*Client, error) {
	if cfg.TransmitterID == "" {
		cfg.TransmitterID = cfg.EmployerID
	}
	transport, err := newTransport(cfg, certs)
	if err != nil {
		return nil, err
	}

	c := &Client{
		cfg:   cfg,
		certs: certs,
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
		},
		logger:   slog.Default(),
		now:      time.Now,
		monitors: make(map[domain.Operation]*Monitor),
	}
	if cfg.RateLimit > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "registry")
	return c, nil
}

// Monitor returns the monitor of an operation, creating it on first use.
func (c *Client) Monitor(op domain.Operation) *Monitor {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.monitors[op]
	if !ok {
		m = NewMonitor()
		c.monitors[op] = m
	}
	return m
}

// MonitorStats snapshots every monitor.
func (c *Client) MonitorStats() map[domain.Operation]MonitorStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[domain.Operation]MonitorStats, len(c.monitors))
	for op, m := range c.monitors {
		out[op] = m.Stats()
	}
	return out
}

// Close drops idle connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// Call performs one exchange and returns the unwrapped payload. Errors are
// *failure.Error values.
func (c *Client) Call(ctx context.Context, req Request) (*soap.Payload, error) {
	op := req.Endpoint.Method
	if op == "" {
		op = string(req.Operation)
	}
	metrics.RegistryCallsTotal.WithLabelValues(string(req.Operation), string(c.cfg.Environment)).Inc()

	payload, err := c.call(ctx, req, op)
	if err != nil {
		fe, ok := failure.As(err)
		if !ok {
			fe = failure.Wrap(failure.Classify(err), err, "registry call failed")
		}
		if fe.Op == "" {
			fe.Op = op
		}
		metrics.RegistryErrorsTotal.WithLabelValues(string(req.Operation), string(fe.Code)).Inc()
		return nil, fe
	}
	return payload, nil
}

func (c *Client) call(ctx context.Context, req Request, op string) (*soap.Payload, error) {
	// Certificate problems surface before any network I/O.
	bundle, err := c.certs.Require(ctx)
	if err != nil {
		return nil, certificateError(err)
	}

	monitor := c.Monitor(req.Operation)
	if monitor.Status() == StatusThrottled {
		e := failure.New(failure.ServerUnavailable, "endpoint throttled")
		e.RetryAfter = monitor.RetryAfter()
		return nil, e
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, failure.Wrap(failure.Classify(err), err, "rate limiter")
		}
	}

	envelope, err := soap.BuildEnvelope(soap.Header{
		Environment:   c.cfg.Environment,
		EmployerID:    c.cfg.EmployerID,
		TransmitterID: c.cfg.TransmitterID,
	}, req.Endpoint.Namespace, req.Endpoint.Method, req.Body)
	if err != nil {
		return nil, err
	}

	token, err := bundle.AuthToken(c.cfg.EmployerID, c.now())
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, req.Endpoint.URL, bytes.NewReader(envelope))
	if err != nil {
		return nil, failure.Wrap(failure.InvalidPayload, err, "create request")
	}
	requestID := uuid.NewString()
	httpReq.Header.Set("Content-Type", soap.ContentType)
	httpReq.Header.Set("Accept", "text/xml")
	httpReq.Header.Set(HeaderSOAPAction, fmt.Sprintf("%q", req.Endpoint.Action))
	httpReq.Header.Set(HeaderAuthToken, token)
	httpReq.Header.Set(HeaderRequestID, requestID)

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		monitor.RecordFailure()
		c.logger.Warn("Registry request failed", "op", op, "request_id", requestID, "error", err)
		return nil, failure.Wrap(failure.Classify(err), err, "registry request failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	latency := time.Since(start)
	metrics.RegistryLatency.WithLabelValues(string(req.Operation)).Observe(latency.Seconds())
	if err != nil {
		monitor.RecordFailure()
		return nil, failure.Wrap(failure.Classify(err), err, "read response")
	}

	c.logger.Debug("Registry response",
		"op", op,
		"request_id", requestID,
		"status", resp.StatusCode,
		"latency", latency,
		"bytes", len(body),
	)

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusServiceUnavailable {
		monitor.RecordThrottle(resp.StatusCode, resp.Header.Get("Retry-After"))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		monitor.RecordFailure()
		// Faults usually come back as 500; classify them by faultcode.
		if _, perr := soap.ParseResponse(body, req.Endpoint.Method); perr != nil {
			if _, isFault := soap.IsFault(perr); isFault {
				return nil, perr
			}
		}
		e := failure.New(failure.FromStatus(resp.StatusCode), "http %d", resp.StatusCode)
		e.StatusCode = resp.StatusCode
		e.RetryAfter = monitor.RetryAfter()
		return nil, e.WithDetail("http_status", resp.StatusCode).WithDetail("request_id", requestID)
	}

	payload, err := soap.ParseResponse(body, req.Endpoint.Method)
	if err != nil {
		if _, isFault := soap.IsFault(err); !isFault {
			monitor.RecordFailure()
		}
		return nil, err
	}
	monitor.RecordRequest(latency)

	if payload.Status != nil {
		if e := payload.Status.Err(op); e != nil {
			return nil, e.WithDetail("request_id", requestID)
		}
	}
	return payload, nil
}
