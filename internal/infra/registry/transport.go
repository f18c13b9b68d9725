package registry

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/vietddude/registrygw/internal/core/failure"
	"github.com/vietddude/registrygw/internal/infra/cert"
)

// rootCAs returns the pool used to verify the registry. An extra PEM file
// is appended to the system roots.
func rootCAs(cfg Config) (*x509.CertPool, error) {
	if cfg.RootCAs != nil {
		return cfg.RootCAs, nil
	}
	if cfg.CAFile == "" {
		return nil, nil
	}

	pool, err := x509.SystemCertPool()
	if err != nil || pool == nil {
		pool = x509.NewCertPool()
	}
	pem, err := os.ReadFile(cfg.CAFile)
	if err != nil {
		return nil, fmt.Errorf("read ca file: %w", err)
	}
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("no certificates found in %s", cfg.CAFile)
	}
	return pool, nil
}

// newTransport builds the mTLS transport. The client certificate is fetched
// from certs at handshake time so a reloaded bundle is picked up by new
// connections.
func newTransport(cfg Config, certs CertificateSource) (*http.Transport, error) {
	if cfg.InsecureSkipVerify && cfg.Environment.IsProduction() {
		return nil, errors.New("insecure_skip_verify is not allowed in production")
	}

	roots, err := rootCAs(cfg)
	if err != nil {
		return nil, err
	}

	tlsConfig := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		RootCAs:            roots,
		InsecureSkipVerify: cfg.InsecureSkipVerify,
		GetClientCertificate: func(info *tls.CertificateRequestInfo) (*tls.Certificate, error) {
			b, err := certs.Require(info.Context())
			if err != nil {
				return nil, err
			}
			tc := b.TLSCertificate()
			return &tc, nil
		},
	}

	return &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		TLSClientConfig:     tlsConfig,
		ForceAttemptHTTP2:   false,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 15 * time.Second,
	}, nil
}

// CertificateSource hands out a bundle fit for authenticating requests.
// *cert.Provider implements it.
type CertificateSource interface {
	Require(ctx context.Context) (*cert.Bundle, error)
}

var _ CertificateSource = (*cert.Provider)(nil)

// certificateError makes sure certificate problems keep a certificate code.
func certificateError(err error) error {
	if _, ok := failure.As(err); ok {
		return err
	}
	return failure.Wrap(failure.CertificateInvalid, err, "client certificate unavailable")
}
