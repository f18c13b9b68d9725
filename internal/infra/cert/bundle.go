// Package cert loads the employer's PKCS#12 certificate bundle and exposes
// the signing, fingerprint and TLS material derived from it.
package cert

import (
	"bytes"
	"crypto"
	"crypto/rand"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"math"
	"time"

	"software.sslmate.com/src/go-pkcs12"

	"github.com/vietddude/registrygw/internal/core/failure"
)

// Bundle is a decoded client certificate with its private key. It is
// immutable once loaded.
type Bundle struct {
	Leaf  *x509.Certificate
	Chain []*x509.Certificate // leaf first

	SubjectCN string
	IssuerCN  string
	Serial    string
	NotBefore time.Time
	NotAfter  time.Time

	key         crypto.Signer
	fingerprint string
}

// Load decodes a PKCS#12 archive. Any decoding problem, a wrong passphrase
// or a missing key is reported as CertificateInvalid.
func Load(pfx []byte, passphrase string) (*Bundle, error) {
	if len(pfx) == 0 {
		return nil, failure.New(failure.CertificateNotConfigured, "empty certificate data")
	}

	key, leaf, cas, err := pkcs12.DecodeChain(pfx, passphrase)
	if err != nil {
		if errors.Is(err, pkcs12.ErrIncorrectPassword) {
			return nil, failure.Wrap(failure.CertificateInvalid, err, "wrong certificate passphrase")
		}
		return nil, failure.Wrap(failure.CertificateInvalid, err, "decode pkcs12")
	}
	if leaf == nil {
		return nil, failure.New(failure.CertificateInvalid, "bundle has no certificate")
	}
	if key == nil {
		return nil, failure.New(failure.CertificateInvalid, "bundle has no private key")
	}
	signer, ok := key.(crypto.Signer)
	if !ok {
		return nil, failure.New(failure.CertificateInvalid, "unsupported private key type %T", key)
	}

	sum := sha1.Sum(leaf.Raw)

	return &Bundle{
		Leaf:        leaf,
		Chain:       append([]*x509.Certificate{leaf}, cas...),
		SubjectCN:   leaf.Subject.CommonName,
		IssuerCN:    leaf.Issuer.CommonName,
		Serial:      leaf.SerialNumber.Text(16),
		NotBefore:   leaf.NotBefore,
		NotAfter:    leaf.NotAfter,
		key:         signer,
		fingerprint: hex.EncodeToString(sum[:]),
	}, nil
}

func (b *Bundle) issuer() *x509.Certificate {
	for _, c := range b.Chain[1:] {
		if bytes.Equal(c.RawSubject, b.Leaf.RawIssuer) {
			return c
		}
	}
	return nil
}

// IsValid reports whether now falls inside the validity window.
func (b *Bundle) IsValid() bool {
	return b.IsValidAt(time.Now())
}

// IsValidAt reports whether t falls inside [NotBefore, NotAfter].
func (b *Bundle) IsValidAt(t time.Time) bool {
	return !t.Before(b.NotBefore) && !t.After(b.NotAfter)
}

// DaysUntilExpiry returns whole days left, negative once expired.
func (b *Bundle) DaysUntilExpiry() int {
	return b.daysUntilExpiryAt(time.Now())
}

func (b *Bundle) daysUntilExpiryAt(t time.Time) int {
	return int(math.Floor(b.NotAfter.Sub(t).Hours() / 24))
}

// Fingerprint returns the lowercase hex SHA-1 of the leaf DER.
func (b *Bundle) Fingerprint() string {
	return b.fingerprint
}

// Fingerprint256 returns the lowercase hex SHA-256 of the leaf DER.
func (b *Bundle) Fingerprint256() string {
	sum := sha256.Sum256(b.Leaf.Raw)
	return hex.EncodeToString(sum[:])
}

// Sign signs the SHA-256 digest of data. RSA keys produce PKCS#1 v1.5
// signatures and ECDSA keys ASN.1 ones. Validity is not checked here.
func (b *Bundle) Sign(data []byte) ([]byte, error) {
	if b == nil || b.key == nil {
		return nil, failure.New(failure.SigningUnavailable, "no private key loaded")
	}
	digest := sha256.Sum256(data)
	sig, err := b.key.Sign(rand.Reader, digest[:], crypto.SHA256)
	if err != nil {
		return nil, failure.Wrap(failure.SigningUnavailable, err, "sign")
	}
	return sig, nil
}

// AuthToken returns base64(Sign(employerID + ":" + now in RFC 3339 UTC)).
func (b *Bundle) AuthToken(employerID string, now time.Time) (string, error) {
	payload := employerID + ":" + now.UTC().Format(time.RFC3339Nano)
	sig, err := b.Sign([]byte(payload))
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(sig), nil
}

// TLSCertificate returns the chain and key for the client side of mTLS.
func (b *Bundle) TLSCertificate() tls.Certificate {
	der := make([][]byte, 0, len(b.Chain))
	for _, c := range b.Chain {
		der = append(der, c.Raw)
	}
	return tls.Certificate{
		Certificate: der,
		PrivateKey:  b.key,
		Leaf:        b.Leaf,
	}
}

// Info is a summary safe to print or serve.
type Info struct {
	Subject         string    `json:"subject"`
	Issuer          string    `json:"issuer"`
	Serial          string    `json:"serial"`
	NotBefore       time.Time `json:"not_before"`
	NotAfter        time.Time `json:"not_after"`
	Fingerprint     string    `json:"fingerprint"`
	Fingerprint256  string    `json:"fingerprint_sha256"`
	DaysUntilExpiry int       `json:"days_until_expiry"`
	Valid           bool      `json:"valid"`
	ChainLength     int       `json:"chain_length"`
}

// Info summarizes the bundle at time t.
func (b *Bundle) Info(t time.Time) Info {
	return Info{
		Subject:         b.SubjectCN,
		Issuer:          b.IssuerCN,
		Serial:          b.Serial,
		NotBefore:       b.NotBefore,
		NotAfter:        b.NotAfter,
		Fingerprint:     b.fingerprint,
		Fingerprint256:  b.Fingerprint256(),
		DaysUntilExpiry: b.daysUntilExpiryAt(t),
		Valid:           b.IsValidAt(t),
		ChainLength:     len(b.Chain),
	}
}
