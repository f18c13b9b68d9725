package failure

import (
	"context"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"syscall"
	"time"
)

// Error wraps a failure with its normalized code.
type Error struct {
	Code    Code
	Op      string // operation label, e.g. "ConsultarIdentificadorCadastro"
	Message string // technical detail; the user-facing text comes from Message(Code)
	Err     error

	// StatusCode is the HTTP status when the failure came from a response.
	StatusCode int

	// Details carries sanitized, caller-safe context (fault codes, registry
	// answer codes). Never certificate or key material.
	Details map[string]any

	// CircuitOpen marks fail-fast errors from an open breaker.
	CircuitOpen bool
	RetryAfter  time.Duration
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString("[")
	b.WriteString(string(e.Code))
	b.WriteString("]")
	if e.Message != "" {
		b.WriteString(" ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap supports error unwrapping.
func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable reports whether the wrapped code is transient. Circuit-open
// errors are never retryable.
func (e *Error) Retryable() bool {
	if e.CircuitOpen {
		return false
	}
	return IsRetryable(e.Code)
}

// New creates an Error with a technical message.
func New(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an Error around an underlying cause.
func Wrap(code Code, err error, message string) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// WithOp sets the operation label and returns the same error.
func (e *Error) WithOp(op string) *Error {
	e.Op = op
	return e
}

// WithDetail attaches a redacted detail value and returns the same error.
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = RedactValue(key, value)
	return e
}

// As extracts an *Error from err.
func As(err error) (*Error, bool) {
	var fe *Error
	if errors.As(err, &fe) {
		return fe, true
	}
	return nil, false
}

// IsCircuitOpen reports whether err is a fail-fast error from an open breaker.
func IsCircuitOpen(err error) bool {
	fe, ok := As(err)
	return ok && fe.CircuitOpen
}

// Retryable classifies err and reports whether it is transient.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if fe, ok := As(err); ok {
		return fe.Retryable()
	}
	return IsRetryable(Classify(err))
}

// Classify maps any error to a Code. Typed errors keep their code; transport
// and TLS errors are recognized structurally; everything else falls back to
// message inspection.
func Classify(err error) Code {
	if err == nil {
		return Unknown
	}

	if fe, ok := As(err); ok {
		return fe.Code
	}

	// Cancelled by the caller: not a registry failure.
	if errors.Is(err, context.Canceled) {
		return Unknown
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Timeout
	}

	var invalidCert x509.CertificateInvalidError
	if errors.As(err, &invalidCert) {
		if invalidCert.Reason == x509.Expired {
			return CertificateExpired
		}
		return CertificateInvalid
	}
	var unknownAuth x509.UnknownAuthorityError
	if errors.As(err, &unknownAuth) {
		return CertificateInvalid
	}
	var hostErr x509.HostnameError
	if errors.As(err, &hostErr) {
		return CertificateInvalid
	}

	if errors.Is(err, syscall.ECONNREFUSED) {
		return ConnectionRefused
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return Timeout
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return NetworkError
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return NetworkError
	}
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) || errors.Is(err, syscall.ECONNRESET) {
		return NetworkError
	}

	return classifyMessage(err.Error())
}

func classifyMessage(s string) Code {
	msg := strings.ToLower(s)

	if strings.Contains(msg, "certificate") || strings.Contains(msg, "certificado") {
		switch {
		case strings.Contains(msg, "expired") || strings.Contains(msg, "expirado"):
			return CertificateExpired
		case strings.Contains(msg, "revoked") || strings.Contains(msg, "revogado"):
			return CertificateRevoked
		default:
			return CertificateInvalid
		}
	}

	switch {
	case strings.Contains(msg, "connection refused"):
		return ConnectionRefused
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline exceeded"):
		return Timeout
	case strings.Contains(msg, "connection reset") || strings.Contains(msg, "no such host") ||
		strings.Contains(msg, "network is unreachable"):
		return NetworkError
	}

	return Unknown
}

// FromStatus maps an HTTP status without a SOAP fault to a Code.
func FromStatus(status int) Code {
	switch {
	case status == http.StatusUnauthorized:
		return AuthenticationFailed
	case status == http.StatusForbidden:
		return AccessDenied
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return Timeout
	case status == http.StatusTooManyRequests:
		return ServerUnavailable
	case status >= 500:
		return ServerUnavailable
	case status >= 400:
		return InvalidPayload
	default:
		return Unknown
	}
}

// FromFaultCode maps a SOAP faultcode such as "Client.InvalidEvent" or
// "s:Server" to a Code. The last dotted segment is matched against the
// declared codes and a few registry spellings; otherwise client faults are
// BatchRejected and server faults ProcessingError.
func FromFaultCode(faultCode string) Code {
	fc := faultCode
	if i := strings.LastIndex(fc, ":"); i >= 0 {
		fc = fc[i+1:]
	}
	parts := strings.Split(fc, ".")
	last := strings.ToLower(parts[len(parts)-1])

	switch last {
	case "invalidevent", "eventoinvalido":
		return InvalidEvent
	case "invalidxml", "xmlinvalido":
		return InvalidXML
	case "invalidpayload", "invaliddata", "dadosinvalidos":
		return InvalidPayload
	case "authenticationfailed", "autenticacaofalhou":
		return AuthenticationFailed
	case "tokeninvalid", "invalidtoken", "tokeninvalido":
		return TokenInvalid
	case "accessdenied", "acessonegado":
		return AccessDenied
	case "certificateexpired":
		return CertificateExpired
	case "certificaterevoked":
		return CertificateRevoked
	case "certificateinvalid":
		return CertificateInvalid
	case "serverunavailable", "unavailable", "serviceunavailable":
		return ServerUnavailable
	case "batchrejected", "loterejeitado":
		return BatchRejected
	}

	head := strings.ToLower(parts[0])
	switch head {
	case "server", "receiver":
		return ProcessingError
	default:
		return BatchRejected
	}
}
