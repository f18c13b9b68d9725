package cert

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/vietddude/registrygw/internal/core/failure"
	"github.com/vietddude/registrygw/internal/metrics"
)

// Source says where the PKCS#12 bundle comes from. Data wins over Path.
type Source struct {
	Path       string
	Data       []byte
	Passphrase string
}

// Configured reports whether any bundle location is set.
func (s Source) Configured() bool {
	return s.Path != "" || len(s.Data) > 0
}

func (s Source) read() ([]byte, error) {
	if len(s.Data) > 0 {
		return s.Data, nil
	}
	if s.Path == "" {
		return nil, failure.New(failure.CertificateNotConfigured, "no certificate path or data")
	}
	data, err := os.ReadFile(s.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, failure.Wrap(failure.CertificateNotConfigured, err, "certificate file not found")
	}
	if err != nil {
		return nil, failure.Wrap(failure.CertificateInvalid, err, "read certificate file")
	}
	return data, nil
}

// LoadFile reads and decodes a bundle from disk.
func LoadFile(path, passphrase string) (*Bundle, error) {
	return Source{Path: path, Passphrase: passphrase}.Load()
}

// Load reads and decodes the bundle described by s.
func (s Source) Load() (*Bundle, error) {
	data, err := s.read()
	if err != nil {
		return nil, err
	}
	return Load(data, s.Passphrase)
}

// Provider holds the process-wide bundle. Concurrent first loads share a
// single decode; the bundle is reloaded after Invalidate.
type Provider struct {
	source     Source
	logger     *slog.Logger
	warnDays   int
	revocation *RevocationChecker
	now        func() time.Time

	group  singleflight.Group
	mu     sync.RWMutex
	bundle *Bundle
}

// ProviderOption configures a Provider.
type ProviderOption func(*Provider)

// WithLogger sets the provider logger.
func WithLogger(l *slog.Logger) ProviderOption {
	return func(p *Provider) { p.logger = l }
}

// WithWarnDays logs a warning on load when fewer days than this remain.
func WithWarnDays(days int) ProviderOption {
	return func(p *Provider) { p.warnDays = days }
}

// WithRevocationChecker enables OCSP checks in Require.
func WithRevocationChecker(c *RevocationChecker) ProviderOption {
	return func(p *Provider) { p.revocation = c }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) ProviderOption {
	return func(p *Provider) { p.now = now }
}

// NewProvider creates a provider for src.
func NewProvider(src Source, opts ...ProviderOption) *Provider {
	p := &Provider{
		source:   src,
		logger:   slog.Default(),
		warnDays: 30,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With("component", "cert")
	return p
}

// Get returns the cached bundle, loading it on first use.
func (p *Provider) Get(ctx context.Context) (*Bundle, error) {
	p.mu.RLock()
	b := p.bundle
	p.mu.RUnlock()
	if b != nil {
		return b, nil
	}

	ch := p.group.DoChan("load", func() (any, error) {
		return p.load()
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Bundle), nil
	}
}

func (p *Provider) load() (*Bundle, error) {
	p.mu.RLock()
	b := p.bundle
	p.mu.RUnlock()
	if b != nil {
		return b, nil
	}

	b, err := p.source.Load()
	if err != nil {
		p.logger.Error("Failed to load certificate", "code", failure.Classify(err), "error", err)
		return nil, err
	}

	now := p.now()
	days := b.daysUntilExpiryAt(now)
	metrics.CertificateDaysToExpiry.Set(float64(days))

	p.logger.Info("Certificate loaded",
		"subject", b.SubjectCN,
		"issuer", b.IssuerCN,
		"fingerprint", b.Fingerprint(),
		"not_after", b.NotAfter.Format(time.RFC3339),
		"days_left", days,
	)
	if days <= p.warnDays {
		p.logger.Warn("Certificate close to expiry", "days_left", days, "not_after", b.NotAfter)
	}

	p.mu.Lock()
	p.bundle = b
	p.mu.Unlock()
	return b, nil
}

// Invalidate drops the cached bundle so the next Get reloads it.
func (p *Provider) Invalidate() {
	p.mu.Lock()
	p.bundle = nil
	p.mu.Unlock()
	p.group.Forget("load")
}

// Require returns a bundle fit for authenticating requests: inside its
// validity window and, when a checker is configured, not revoked.
func (p *Provider) Require(ctx context.Context) (*Bundle, error) {
	b, err := p.Get(ctx)
	if err != nil {
		return nil, err
	}

	now := p.now()
	if !b.IsValidAt(now) {
		return nil, failure.New(failure.CertificateExpired,
			"certificate valid from %s to %s",
			b.NotBefore.Format(time.RFC3339), b.NotAfter.Format(time.RFC3339)).
			WithDetail("not_after", b.NotAfter.Format(time.RFC3339))
	}

	if p.revocation != nil {
		if err := p.revocation.Check(ctx, b); err != nil {
			if failure.Classify(err) == failure.CertificateRevoked {
				return nil, err
			}
			// Responder trouble is not proof of revocation.
			p.logger.Warn("Revocation check failed", "error", err)
		}
	}
	return b, nil
}

// Info returns the summary of the loaded bundle.
func (p *Provider) Info(ctx context.Context) (Info, error) {
	b, err := p.Get(ctx)
	if err != nil {
		return Info{}, fmt.Errorf("load certificate: %w", err)
	}
	return b.Info(p.now()), nil
}
