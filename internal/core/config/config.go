package config

import (
	"time"

	"github.com/vietddude/registrygw/internal/core/domain"
	redisclient "github.com/vietddude/registrygw/internal/infra/redis"
	"github.com/vietddude/registrygw/internal/infra/storage/postgres"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Environment   domain.Environment `yaml:"environment"`
	EmployerID    string             `yaml:"employer_id"`    // CPF/CNPJ of the employer
	TransmitterID string             `yaml:"transmitter_id"` // defaults to EmployerID

	Certificate CertificateConfig `yaml:"certificate"`
	Endpoints   EndpointTable     `yaml:"endpoints"`
	HTTP        HTTPConfig        `yaml:"http"`
	Retry       RetryConfig       `yaml:"retry"`
	Breaker     BreakerConfig     `yaml:"breaker"`
	Cache       CacheConfig       `yaml:"cache"`

	Server   ServerConfig       `yaml:"server"`
	Redis    redisclient.Config `yaml:"redis"`
	Logging  LoggingConfig      `yaml:"logging"`
	Database postgres.Config    `yaml:"database"`
}

// CertificateConfig locates the PKCS#12 bundle. Exactly one of Path and
// DataBase64 should be set.
type CertificateConfig struct {
	Path            string        `yaml:"path"`
	DataBase64      string        `yaml:"data_base64"`
	Passphrase      string        `yaml:"passphrase"`
	CheckRevocation bool          `yaml:"check_revocation"`
	RevocationTTL   time.Duration `yaml:"revocation_ttl"`
	WarnDays        int           `yaml:"warn_days"` // log a warning this many days before expiry
}

// EndpointConfig describes one SOAP service.
type EndpointConfig struct {
	URL       string `yaml:"url"`
	Namespace string `yaml:"namespace"`
	Method    string `yaml:"method"`
	Action    string `yaml:"action"` // SOAPAction; defaults to Namespace + "/" + Method
}

// SOAPAction returns the explicit action or the one derived from namespace and method.
func (e EndpointConfig) SOAPAction() string {
	if e.Action != "" {
		return e.Action
	}
	return e.Namespace + "/" + e.Method
}

// EndpointTable maps environment → operation → endpoint.
type EndpointTable map[domain.Environment]map[domain.Operation]EndpointConfig

// Lookup returns the endpoint for an operation in an environment.
func (t EndpointTable) Lookup(env domain.Environment, op domain.Operation) (EndpointConfig, bool) {
	ops, ok := t[env]
	if !ok {
		return EndpointConfig{}, false
	}
	ep, ok := ops[op]
	return ep, ok
}

// HTTPConfig holds transport settings for the registry client.
type HTTPConfig struct {
	Timeout            time.Duration `yaml:"timeout"`
	InsecureSkipVerify bool          `yaml:"insecure_skip_verify"` // rejected in production
	CAFile             string        `yaml:"ca_file"`              // extra PEM roots (ICP-Brasil chain)
	RateLimit          float64       `yaml:"rate_limit"`           // requests per second, 0 = unlimited
	Burst              int           `yaml:"burst"`
}

// RetryConfig holds the backoff policy.
type RetryConfig struct {
	MaxAttempts  int           `yaml:"max_attempts"`
	InitialDelay time.Duration `yaml:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay"`
	Multiplier   float64       `yaml:"multiplier"`
	Jitter       *bool         `yaml:"jitter"` // nil = enabled
}

// JitterEnabled reports whether jitter is on, defaulting to true.
func (r RetryConfig) JitterEnabled() bool {
	return r.Jitter == nil || *r.Jitter
}

// BreakerConfig holds circuit breaker thresholds.
type BreakerConfig struct {
	FailureThreshold int           `yaml:"failure_threshold"`
	Cooldown         time.Duration `yaml:"cooldown"`
	DecayInterval    *int          `yaml:"decay_interval"` // successes per failure decrement; 0 disables, nil = default
}

// Decay returns the configured decay interval, defaulting to DefaultDecayInterval.
func (b BreakerConfig) Decay() int {
	if b.DecayInterval == nil {
		return DefaultDecayInterval
	}
	return *b.DecayInterval
}

// CacheConfig selects the offline cache backend and its TTLs.
type CacheConfig struct {
	Backend        string                                  `yaml:"backend"` // memory, redis, postgres, none
	DefaultTTL     time.Duration                           `yaml:"default_ttl"`
	TTLs           map[domain.CacheNamespace]time.Duration `yaml:"ttls"`
	StaleRetention time.Duration                           `yaml:"stale_retention"`
}

// TTLFor returns the namespace TTL or the default.
func (c CacheConfig) TTLFor(ns domain.CacheNamespace) time.Duration {
	if ttl, ok := c.TTLs[ns]; ok && ttl > 0 {
		return ttl
	}
	return c.DefaultTTL
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}
