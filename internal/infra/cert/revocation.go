package cert

import (
	"bytes"
	"context"
	"crypto"
	"crypto/x509"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/crypto/ocsp"

	"github.com/vietddude/registrygw/internal/core/failure"
)

const maxOCSPResponseSize = 1 << 20

type revocationEntry struct {
	status    int
	checkedAt time.Time
}

// RevocationChecker asks the leaf's OCSP responder whether the certificate
// was revoked. Answers are cached per fingerprint.
type RevocationChecker struct {
	client *http.Client
	ttl    time.Duration
	logger *slog.Logger
	now    func() time.Time

	mu    sync.Mutex
	cache map[string]revocationEntry
}

// NewRevocationChecker creates a checker. A nil client uses a 10s timeout client.
func NewRevocationChecker(client *http.Client, ttl time.Duration, logger *slog.Logger) *RevocationChecker {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RevocationChecker{
		client: client,
		ttl:    ttl,
		logger: logger.With("component", "ocsp"),
		now:    time.Now,
		cache:  make(map[string]revocationEntry),
	}
}

// Check returns a CertificateRevoked error when the responder reports the
// leaf as revoked. Bundles without an OCSP server or issuer are skipped.
func (c *RevocationChecker) Check(ctx context.Context, b *Bundle) error {
	fp := b.Fingerprint()

	c.mu.Lock()
	entry, ok := c.cache[fp]
	c.mu.Unlock()
	if ok && c.now().Sub(entry.checkedAt) < c.ttl {
		return statusError(entry.status)
	}

	if len(b.Leaf.OCSPServer) == 0 {
		c.logger.Debug("No OCSP server in certificate", "fingerprint", fp)
		return nil
	}
	issuer := b.issuer()
	if issuer == nil {
		c.logger.Debug("Issuer not in chain, skipping OCSP", "fingerprint", fp)
		return nil
	}

	status, err := c.query(ctx, b.Leaf.OCSPServer[0], b, issuer)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.cache[fp] = revocationEntry{status: status, checkedAt: c.now()}
	c.mu.Unlock()

	return statusError(status)
}

func (c *RevocationChecker) query(ctx context.Context, server string, b *Bundle, issuer *x509.Certificate) (int, error) {
	reqDER, err := ocsp.CreateRequest(b.Leaf, issuer, &ocsp.RequestOptions{Hash: crypto.SHA1})
	if err != nil {
		return 0, fmt.Errorf("create ocsp request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, server, bytes.NewReader(reqDER))
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/ocsp-request")
	req.Header.Set("Accept", "application/ocsp-response")

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("ocsp request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("ocsp responder returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxOCSPResponseSize))
	if err != nil {
		return 0, fmt.Errorf("read ocsp response: %w", err)
	}

	parsed, err := ocsp.ParseResponseForCert(body, b.Leaf, issuer)
	if err != nil {
		return 0, fmt.Errorf("parse ocsp response: %w", err)
	}
	return parsed.Status, nil
}

func statusError(status int) error {
	if status == ocsp.Revoked {
		return failure.New(failure.CertificateRevoked, "certificate revoked by issuer")
	}
	return nil
}
