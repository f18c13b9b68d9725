// Package certtest issues throwaway PKCS#12 bundles for tests.
package certtest

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"software.sslmate.com/src/go-pkcs12"
)

// DefaultPassphrase protects fixtures when Options.Passphrase is empty.
const DefaultPassphrase = "test-passphrase"

// Options controls the issued leaf.
type Options struct {
	CommonName string
	NotBefore  time.Time // zero = one day ago
	NotAfter   time.Time // zero = one year from now
	OCSPServer string
	RSA        bool // ECDSA P-256 otherwise
	Passphrase string
}

// Fixture is an issued leaf with its CA and the encoded archive.
type Fixture struct {
	PFX        []byte
	Passphrase string

	CA    *x509.Certificate
	CAKey crypto.Signer
	Leaf  *x509.Certificate
	Key   crypto.Signer
}

// Issue creates a CA and a client leaf signed by it, encoded as PKCS#12
// with the CA included.
func Issue(tb testing.TB, opts Options) *Fixture {
	tb.Helper()

	now := time.Now()
	if opts.NotBefore.IsZero() {
		opts.NotBefore = now.Add(-24 * time.Hour)
	}
	if opts.NotAfter.IsZero() {
		opts.NotAfter = now.Add(365 * 24 * time.Hour)
	}
	if opts.CommonName == "" {
		opts.CommonName = "EMPLOYER TEST:12345678901"
	}
	if opts.Passphrase == "" {
		opts.Passphrase = DefaultPassphrase
	}

	caKey := newKey(tb, false)
	caTmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "Test Root CA"},
		NotBefore:             now.Add(-48 * time.Hour),
		NotAfter:              now.Add(10 * 365 * 24 * time.Hour),
		IsCA:                  true,
		BasicConstraintsValid: true,
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign | x509.KeyUsageDigitalSignature,
	}
	caDER, err := x509.CreateCertificate(rand.Reader, caTmpl, caTmpl, caKey.Public(), caKey)
	if err != nil {
		tb.Fatalf("create CA: %v", err)
	}
	ca, err := x509.ParseCertificate(caDER)
	if err != nil {
		tb.Fatalf("parse CA: %v", err)
	}

	key := newKey(tb, opts.RSA)
	leafTmpl := &x509.Certificate{
		SerialNumber: big.NewInt(now.UnixNano()),
		Subject:      pkix.Name{CommonName: opts.CommonName},
		NotBefore:    opts.NotBefore,
		NotAfter:     opts.NotAfter,
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth},
	}
	if opts.OCSPServer != "" {
		leafTmpl.OCSPServer = []string{opts.OCSPServer}
	}
	leafDER, err := x509.CreateCertificate(rand.Reader, leafTmpl, ca, key.Public(), caKey)
	if err != nil {
		tb.Fatalf("create leaf: %v", err)
	}
	leaf, err := x509.ParseCertificate(leafDER)
	if err != nil {
		tb.Fatalf("parse leaf: %v", err)
	}

	pfx, err := pkcs12.Modern.Encode(key, leaf, []*x509.Certificate{ca}, opts.Passphrase)
	if err != nil {
		tb.Fatalf("encode pkcs12: %v", err)
	}

	return &Fixture{
		PFX:        pfx,
		Passphrase: opts.Passphrase,
		CA:         ca,
		CAKey:      caKey,
		Leaf:       leaf,
		Key:        key,
	}
}

// CAPool returns a pool holding only the fixture CA.
func (f *Fixture) CAPool() *x509.CertPool {
	pool := x509.NewCertPool()
	pool.AddCert(f.CA)
	return pool
}

// WriteFile writes the archive into dir and returns its path.
func (f *Fixture) WriteFile(tb testing.TB, dir string) string {
	tb.Helper()
	path := filepath.Join(dir, "client.pfx")
	if err := os.WriteFile(path, f.PFX, 0o600); err != nil {
		tb.Fatalf("write pfx: %v", err)
	}
	return path
}

func newKey(tb testing.TB, useRSA bool) crypto.Signer {
	tb.Helper()
	if useRSA {
		k, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			tb.Fatalf("rsa key: %v", err)
		}
		return k
	}
	k, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		tb.Fatalf("ecdsa key: %v", err)
	}
	return k
}
