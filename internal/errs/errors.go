package errs

import "fmt"

// Kind is the closed set of gateway error categories. Every failure that can
// reach a caller is classified as exactly one of these; handlers map them to
// HTTP status codes in a single place.
type Kind string

const (
	// KindCredential covers missing, invalid or wrong-origin credentials.
	KindCredential Kind = "CREDENTIAL_ERROR"
	// KindAuthorization covers ownership and admin-privilege violations.
	KindAuthorization Kind = "AUTHORIZATION_ERROR"
	// KindQuotaExceeded covers both account and session daily limits.
	KindQuotaExceeded Kind = "QUOTA_EXCEEDED"
	// KindSessionNotFound covers sessions that truly do not exist.
	KindSessionNotFound Kind = "SESSION_NOT_FOUND"
	// KindSessionNotReady covers sessions in a state that cannot send.
	KindSessionNotReady Kind = "SESSION_NOT_READY"
	// KindValidation covers malformed caller payloads caught at the boundary.
	KindValidation Kind = "VALIDATION_ERROR"
	// KindProviderUnavailable covers network failures and provider 5xx.
	KindProviderUnavailable Kind = "PROVIDER_UNAVAILABLE"
	// KindProviderRejected covers provider 4xx; the caller's payload is at fault.
	KindProviderRejected Kind = "PROVIDER_REJECTED"
	// KindInternal covers unexpected faults; returned to callers opaquely.
	KindInternal Kind = "INTERNAL_ERROR"
)

// QuotaScope identifies which daily counter denied a request.
type QuotaScope string

const (
	ScopeAccount QuotaScope = "account"
	ScopeSession QuotaScope = "session"
)

// Error is the gateway's result-style error. It is propagated by return value
// across layers and carries enough context for callers to self-diagnose.
type Error struct {
	Kind    Kind
	Message string

	// Quota context, set when Kind == KindQuotaExceeded.
	Scope QuotaScope
	Used  int64
	Limit int64

	// Session context, set when relevant.
	Session string
	Phone   string
	Status  string

	// ProviderStatus is the upstream HTTP status for provider errors.
	ProviderStatus int
	// ProviderBody is the upstream response body, forwarded verbatim for
	// provider-rejected errors.
	ProviderBody []byte

	cause error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// Fields returns machine-readable context for error response bodies.
func (e *Error) Fields() map[string]interface{} {
	fields := map[string]interface{}{}
	if e.Scope != "" {
		fields["scope"] = string(e.Scope)
		fields["used"] = e.Used
		fields["limit"] = e.Limit
	}
	if e.Session != "" {
		fields["session"] = e.Session
	}
	if e.Phone != "" {
		fields["phone"] = e.Phone
	}
	if e.Status != "" {
		fields["status"] = e.Status
	}
	if len(fields) == 0 {
		return nil
	}
	return fields
}

// New builds an Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds an Error of the given kind keeping the underlying cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

func Credential(message string) *Error {
	return New(KindCredential, message)
}

func Authorization(message string) *Error {
	return New(KindAuthorization, message)
}

func QuotaExceeded(scope QuotaScope, used, limit int64) *Error {
	e := New(KindQuotaExceeded, "daily limit exceeded")
	if scope == ScopeSession {
		e.Message = "session daily limit exceeded (anti-block protection)"
	}
	e.Scope = scope
	e.Used = used
	e.Limit = limit
	return e
}

func SessionNotFound(session string) *Error {
	e := New(KindSessionNotFound, "session not found")
	e.Session = session
	return e
}

func SessionNotReady(session, status string) *Error {
	e := New(KindSessionNotReady, "session not ready")
	e.Session = session
	e.Status = status
	return e
}

func Validation(message string) *Error {
	return New(KindValidation, message)
}

func ProviderUnavailable(message string, cause error) *Error {
	return Wrap(KindProviderUnavailable, message, cause)
}

func Internal(cause error) *Error {
	return Wrap(KindInternal, "internal error", cause)
}

// AsError returns err as *Error, classifying unknown errors as internal.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	if e, ok := err.(*Error); ok {
		return e
	}
	return Internal(err)
}

// IsKind reports whether err is a gateway Error of the given kind.
func IsKind(err error, kind Kind) bool {
	e, ok := err.(*Error)
	return ok && e.Kind == kind
}
