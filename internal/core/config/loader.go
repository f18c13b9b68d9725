package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v2"

	"github.com/vietddude/registrygw/internal/core/domain"
)

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML content, expands environment variables, applies
// defaults and validates the result.
func Parse(data []byte) (*AppConfig, error) {
	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	env, err := domain.ParseEnvironment(string(cfg.Environment))
	if err != nil {
		return nil, err
	}
	cfg.Environment = env

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyDefaults fills every empty field with its default.
func (c *AppConfig) ApplyDefaults() {
	if c.Environment == "" {
		c.Environment = domain.EnvStaging
	}
	if c.TransmitterID == "" {
		c.TransmitterID = c.EmployerID
	}
	if c.Server.Port == 0 {
		c.Server.Port = DefaultPort
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}

	if c.Certificate.WarnDays == 0 {
		c.Certificate.WarnDays = DefaultWarnDays
	}
	if c.Certificate.RevocationTTL == 0 {
		c.Certificate.RevocationTTL = DefaultRevocationTTL
	}

	// Configured endpoints override the built-in table one operation at a time.
	defaults := DefaultEndpoints()
	for env, ops := range c.Endpoints {
		if _, ok := defaults[env]; !ok {
			defaults[env] = map[domain.Operation]EndpointConfig{}
		}
		for op, ep := range ops {
			base := defaults[env][op]
			if ep.URL != "" {
				base.URL = ep.URL
			}
			if ep.Namespace != "" {
				base.Namespace = ep.Namespace
			}
			if ep.Method != "" {
				base.Method = ep.Method
			}
			if ep.Action != "" {
				base.Action = ep.Action
			}
			defaults[env][op] = base
		}
	}
	c.Endpoints = defaults

	if c.HTTP.Timeout == 0 {
		c.HTTP.Timeout = DefaultHTTPTimeout
	}

	if c.Retry.MaxAttempts == 0 {
		c.Retry.MaxAttempts = DefaultMaxAttempts
	}
	if c.Retry.InitialDelay == 0 {
		c.Retry.InitialDelay = DefaultInitialDelay
	}
	if c.Retry.MaxDelay == 0 {
		c.Retry.MaxDelay = DefaultMaxDelay
	}
	if c.Retry.Multiplier == 0 {
		c.Retry.Multiplier = DefaultMultiplier
	}

	if c.Breaker.FailureThreshold == 0 {
		c.Breaker.FailureThreshold = DefaultFailureThreshold
	}
	if c.Breaker.Cooldown == 0 {
		c.Breaker.Cooldown = DefaultCooldown
	}

	if c.Cache.Backend == "" {
		c.Cache.Backend = CacheMemory
	}
	if c.Cache.DefaultTTL == 0 {
		c.Cache.DefaultTTL = DefaultCacheTTL
	}
	if c.Cache.StaleRetention == 0 {
		c.Cache.StaleRetention = DefaultStaleRetention
	}
}

// Validate rejects configurations that can never work.
func (c *AppConfig) Validate() error {
	var errs []error

	if c.Environment.IsProduction() && c.HTTP.InsecureSkipVerify {
		errs = append(errs, errors.New("http.insecure_skip_verify is not allowed in production"))
	}
	if c.Certificate.Path != "" && c.Certificate.DataBase64 != "" {
		errs = append(errs, errors.New("certificate.path and certificate.data_base64 are mutually exclusive"))
	}
	if c.Retry.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("retry.max_attempts must be >= 1, got %d", c.Retry.MaxAttempts))
	}
	if c.Retry.Multiplier < 1 {
		errs = append(errs, fmt.Errorf("retry.multiplier must be >= 1, got %v", c.Retry.Multiplier))
	}
	if c.Retry.MaxDelay < c.Retry.InitialDelay {
		errs = append(errs, errors.New("retry.max_delay must not be below retry.initial_delay"))
	}
	if c.Breaker.FailureThreshold < 1 {
		errs = append(errs, errors.New("breaker.failure_threshold must be >= 1"))
	}
	if c.Breaker.Decay() < 0 {
		errs = append(errs, errors.New("breaker.decay_interval must be >= 0"))
	}

	switch c.Cache.Backend {
	case CacheMemory, CacheNone:
	case CacheRedis:
		if c.Redis.URL == "" {
			errs = append(errs, errors.New("cache.backend redis requires redis.url"))
		}
	case CachePostgres:
		if c.Database.URL == "" {
			errs = append(errs, errors.New("cache.backend postgres requires database.url"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown cache.backend %q", c.Cache.Backend))
	}

	for _, op := range domain.Operations {
		ep, ok := c.Endpoints.Lookup(c.Environment, op)
		if !ok || ep.URL == "" {
			errs = append(errs, fmt.Errorf("no endpoint configured for %s in %s", op, c.Environment))
		}
	}

	return errors.Join(errs...)
}
