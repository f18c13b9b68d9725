// Package failure defines the error taxonomy shared by every layer of the
// registry client.
//
// A Code is the normalized classification of a failure. Each code has a
// fixed user-facing message, a retryable flag, an optional required action
// and a source. The lookup functions are pure and total: every declared
// code maps to a non-empty message and a defined retryable value.
package failure

// Code is the normalized failure classification.
type Code string

const (
	// Certificate failures require operator action.
	CertificateNotConfigured Code = "CERTIFICATE_NOT_CONFIGURED"
	CertificateInvalid       Code = "CERTIFICATE_INVALID"
	CertificateExpired       Code = "CERTIFICATE_EXPIRED"
	CertificateRevoked       Code = "CERTIFICATE_REVOKED"
	SigningUnavailable       Code = "SIGNING_UNAVAILABLE"

	// Network failures are transient.
	NetworkError      Code = "NETWORK_ERROR"
	Timeout           Code = "TIMEOUT"
	ConnectionRefused Code = "CONNECTION_REFUSED"
	ServerUnavailable Code = "SERVER_UNAVAILABLE"
	ProcessingError   Code = "PROCESSING_ERROR"

	// Authentication failures require re-authentication.
	AuthenticationFailed Code = "AUTHENTICATION_FAILED"
	TokenInvalid         Code = "TOKEN_INVALID"
	AccessDenied         Code = "ACCESS_DENIED"

	// Validation failures require the caller to fix the input.
	InvalidPayload Code = "INVALID_PAYLOAD"
	InvalidXML     Code = "INVALID_XML"
	InvalidEvent   Code = "INVALID_EVENT"
	BatchRejected  Code = "BATCH_REJECTED"

	Unknown Code = "UNKNOWN"
)

// Source tells the surrounding application which subsystem produced a failure.
type Source string

const (
	SourceCertificate Source = "CERTIFICATE"
	SourceNetwork     Source = "NETWORK"
	SourceValidation  Source = "VALIDATION"
	SourceRegistry    Source = "REGISTRY"
)

// Required actions rendered next to the message.
const (
	ActionConfigureCertificate = "CONFIGURE_CERTIFICATE"
	ActionReviewCertificate    = "REVIEW_CERTIFICATE"
	ActionRenewCertificate     = "RENEW_CERTIFICATE"
	ActionReauthenticate       = "REAUTHENTICATE"
	ActionCheckPermissions     = "CHECK_PERMISSIONS"
	ActionReviewData           = "REVIEW_DATA"
	ActionReviewXML            = "REVIEW_XML"
	ActionReviewEvent          = "REVIEW_EVENT"
	ActionReviewBatch          = "REVIEW_BATCH"
)

type codeInfo struct {
	message   string
	retryable bool
	action    string
	source    Source
}

var codes = map[Code]codeInfo{
	CertificateNotConfigured: {
		message: "Digital certificate is not configured. Configure a certificate to access the registry.",
		action:  ActionConfigureCertificate,
		source:  SourceCertificate,
	},
	CertificateInvalid: {
		message: "Digital certificate is invalid. Check the certificate file and passphrase and try again.",
		action:  ActionReviewCertificate,
		source:  SourceCertificate,
	},
	CertificateExpired: {
		message: "Digital certificate has expired. Renew the certificate to continue.",
		action:  ActionRenewCertificate,
		source:  SourceCertificate,
	},
	CertificateRevoked: {
		message: "Digital certificate was revoked. Configure a new certificate.",
		action:  ActionConfigureCertificate,
		source:  SourceCertificate,
	},
	SigningUnavailable: {
		message: "No signing key is loaded. Configure a certificate with its private key.",
		action:  ActionConfigureCertificate,
		source:  SourceCertificate,
	},
	NetworkError: {
		message:   "Could not reach the registry. Check the network connection and try again.",
		retryable: true,
		source:    SourceNetwork,
	},
	Timeout: {
		message:   "The registry did not answer in time. It may be overloaded; try again shortly.",
		retryable: true,
		source:    SourceNetwork,
	},
	ConnectionRefused: {
		message:   "The registry refused the connection. Try again later.",
		retryable: true,
		source:    SourceNetwork,
	},
	ServerUnavailable: {
		message:   "The registry is temporarily unavailable. Try again shortly.",
		retryable: true,
		source:    SourceNetwork,
	},
	ProcessingError: {
		message:   "The registry failed to process the request. Try again later.",
		retryable: true,
		source:    SourceRegistry,
	},
	AuthenticationFailed: {
		message: "Authentication with the registry failed. Check the credentials and try again.",
		action:  ActionReauthenticate,
		source:  SourceNetwork,
	},
	TokenInvalid: {
		message: "The authentication token is invalid. Sign in again.",
		action:  ActionReauthenticate,
		source:  SourceNetwork,
	},
	AccessDenied: {
		message: "Access denied. Check that this certificate is allowed to use the resource.",
		action:  ActionCheckPermissions,
		source:  SourceNetwork,
	},
	InvalidPayload: {
		message: "The request data is invalid. Review the data and try again.",
		action:  ActionReviewData,
		source:  SourceValidation,
	},
	InvalidXML: {
		message: "The XML document is malformed. Review its format and try again.",
		action:  ActionReviewXML,
		source:  SourceValidation,
	},
	InvalidEvent: {
		message: "The event is invalid. Review the event data and try again.",
		action:  ActionReviewEvent,
		source:  SourceValidation,
	},
	BatchRejected: {
		message: "The event batch was rejected. Fix the reported errors before resubmitting.",
		action:  ActionReviewBatch,
		source:  SourceRegistry,
	},
	Unknown: {
		message: "Unknown error. Contact support if the problem persists.",
		source:  SourceValidation,
	},
}

// Codes returns every declared code.
func Codes() []Code {
	out := make([]Code, 0, len(codes))
	for c := range codes {
		out = append(out, c)
	}
	return out
}

func lookup(code Code) codeInfo {
	if info, ok := codes[code]; ok {
		return info
	}
	return codes[Unknown]
}

// Message returns the user-facing message for a code. Undeclared codes get
// the Unknown message.
func Message(code Code) string {
	return lookup(code).message
}

// IsRetryable reports whether failures with this code are transient.
func IsRetryable(code Code) bool {
	return lookup(code).retryable
}

// RequiredAction returns the remediation token, or "" when none is needed.
func RequiredAction(code Code) string {
	return lookup(code).action
}

// SourceOf returns the subsystem a code is attributed to.
func SourceOf(code Code) Source {
	return lookup(code).source
}

// Valid reports whether code is one of the declared codes.
func (c Code) Valid() bool {
	_, ok := codes[c]
	return ok
}
