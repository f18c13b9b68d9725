package failure

import (
	"regexp"
	"strings"
)

// Redacted replaces any value that may carry key or certificate material.
const Redacted = "[REDACTED]"

var sensitiveNames = []string{
	"key", "cert", "x509", "signature", "signaturevalue", "pfx", "p12",
	"pkcs", "password", "passphrase", "senha", "secret", "token", "digest",
}

var (
	pemPattern    = regexp.MustCompile(`-----BEGIN [A-Z ]+-----`)
	base64Pattern = regexp.MustCompile(`[A-Za-z0-9+/=\r\n]{120,}`)
)

// IsSensitiveName reports whether a field or element name suggests secret
// or binary key material.
func IsSensitiveName(name string) bool {
	n := strings.ToLower(name)
	if i := strings.LastIndex(n, ":"); i >= 0 {
		n = n[i+1:]
	}
	for _, s := range sensitiveNames {
		if strings.Contains(n, s) {
			return true
		}
	}
	return false
}

// LooksLikeSecret reports whether a value looks like PEM or a long base64 blob.
func LooksLikeSecret(value string) bool {
	return pemPattern.MatchString(value) || base64Pattern.MatchString(value)
}

// RedactValue returns Redacted when either the key or the value is sensitive.
func RedactValue(key string, value any) any {
	if IsSensitiveName(key) {
		return Redacted
	}
	switch v := value.(type) {
	case string:
		if LooksLikeSecret(v) {
			return Redacted
		}
	case []byte:
		return Redacted
	case map[string]any:
		return Redact(v)
	}
	return value
}

// Redact returns a copy of details with sensitive entries replaced.
func Redact(details map[string]any) map[string]any {
	if details == nil {
		return nil
	}
	out := make(map[string]any, len(details))
	for k, v := range details {
		out[k] = RedactValue(k, v)
	}
	return out
}
