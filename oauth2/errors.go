package oauth2

import "fmt"

// ErrorCode is the "error" member of an OAuth 2.0 error response.
type ErrorCode string

const (
	InvalidRequestCode             ErrorCode = "invalid_request"
	InvalidClientCode              ErrorCode = "invalid_client"
	InvalidGrantCode               ErrorCode = "invalid_grant"
	InvalidScopeCode               ErrorCode = "invalid_scope"
	UnauthorizedClientCode         ErrorCode = "unauthorized_client"
	UnsupportedGrantTypeCode       ErrorCode = "unsupported_grant_type"
	UnsupportedResponseTypeCode    ErrorCode = "unsupported_response_type"
	AccessDeniedCode               ErrorCode = "access_denied"
	ServerErrorCode                ErrorCode = "server_error"
	TemporarilyUnavailableCode     ErrorCode = "temporarily_unavailable"
	AuthorizationPendingCode       ErrorCode = "authorization_pending"
	SlowDownCode                   ErrorCode = "slow_down"
	ExpiredTokenCode               ErrorCode = "expired_token"
	LoginRequiredCode              ErrorCode = "login_required"
	ConsentRequiredCode            ErrorCode = "consent_required"
	UnsupportedInteractionTypeCode ErrorCode = "unsupported_interaction_type"
)

// Error is the protocol-level OAuth 2.0 error. Every validation and strategy
// failure in the core is one of these; anything else that escapes to an
// endpoint is wrapped as server_error with the cause preserved.
type Error struct {
	Code        ErrorCode         `json:"error"`
	Description string            `json:"error_description,omitempty"`
	State       string            `json:"state,omitempty"`
	Headers     map[string]string `json:"-"`
	cause       error
}

func (e *Error) Error() string {
	if e.Description == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// Cause returns the underlying error preserved for diagnostics, never
// exposed to the client.
func (e *Error) Cause() error { return e.cause }

// Unwrap supports errors.Is / errors.As over the cause chain.
func (e *Error) Unwrap() error { return e.cause }

// WithState returns a copy of the error carrying the request's state value.
func (e *Error) WithState(state string) *Error {
	clone := *e
	clone.State = state
	return &clone
}

// WithHeader returns a copy of the error carrying an extra response header.
func (e *Error) WithHeader(key, value string) *Error {
	clone := *e
	clone.Headers = make(map[string]string, len(e.Headers)+1)
	for k, v := range e.Headers {
		clone.Headers[k] = v
	}
	clone.Headers[key] = value
	return &clone
}

// StatusCode maps the error code to the HTTP status used when the error is
// rendered directly rather than redirected.
func (e *Error) StatusCode() int {
	switch e.Code {
	case InvalidClientCode:
		return 401
	case ServerErrorCode:
		return 500
	case TemporarilyUnavailableCode:
		return 503
	default:
		return 400
	}
}

func newError(code ErrorCode, description string) *Error {
	return &Error{Code: code, Description: description}
}

// NewInvalidRequest reports a malformed or incomplete request.
func NewInvalidRequest(description string) *Error {
	return newError(InvalidRequestCode, description)
}

// NewInvalidClient reports a failed or ambiguous client authentication.
func NewInvalidClient(description string) *Error {
	return newError(InvalidClientCode, description)
}

// NewInvalidGrant reports an invalid, expired or revoked grant credential.
func NewInvalidGrant(description string) *Error {
	return newError(InvalidGrantCode, description)
}

// NewInvalidScope reports a scope outside the server's supported set.
func NewInvalidScope(description string) *Error {
	return newError(InvalidScopeCode, description)
}

// NewUnauthorizedClient reports a client not registered for the operation.
func NewUnauthorizedClient(description string) *Error {
	return newError(UnauthorizedClientCode, description)
}

// NewUnsupportedGrantType reports an unknown grant_type parameter.
func NewUnsupportedGrantType(description string) *Error {
	return newError(UnsupportedGrantTypeCode, description)
}

// NewUnsupportedResponseType reports an unknown response_type parameter.
func NewUnsupportedResponseType(description string) *Error {
	return newError(UnsupportedResponseTypeCode, description)
}

// NewAccessDenied reports a denial by the resource owner or policy.
func NewAccessDenied(description string) *Error {
	return newError(AccessDeniedCode, description)
}

// NewAuthorizationPending tells a device-flow client to keep polling.
func NewAuthorizationPending(description string) *Error {
	return newError(AuthorizationPendingCode, description)
}

// NewSlowDown tells a device-flow client it is polling too fast.
func NewSlowDown(description string) *Error {
	return newError(SlowDownCode, description)
}

// NewExpiredToken reports an expired device code.
func NewExpiredToken(description string) *Error {
	return newError(ExpiredTokenCode, description)
}

// NewLoginRequired reports that prompt=none forbade a needed login.
func NewLoginRequired(description string) *Error {
	return newError(LoginRequiredCode, description)
}

// NewConsentRequired reports that prompt=none forbade a needed consent.
func NewConsentRequired(description string) *Error {
	return newError(ConsentRequiredCode, description)
}

// NewUnsupportedInteractionType reports an unknown interaction_type parameter.
func NewUnsupportedInteractionType(description string) *Error {
	return newError(UnsupportedInteractionTypeCode, description)
}

// NewServerError wraps an unexpected lower-level failure. The cause is kept
// for logging only; the description sent to the client stays generic.
func NewServerError(cause error) *Error {
	e := newError(ServerErrorCode, "An unexpected error occurred.")
	e.cause = cause
	return e
}

// Wrap turns any error into a protocol error. Errors that already are
// protocol errors pass through untouched.
func Wrap(err error) *Error {
	if err == nil {
		return nil
	}
	if oe, ok := err.(*Error); ok {
		return oe
	}
	return NewServerError(err)
}
