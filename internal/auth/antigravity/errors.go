package antigravity

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a failure of the callback flow.
type Kind string

const (
	// KindMalformedRequest is a callback carrying neither code nor error.
	KindMalformedRequest Kind = "malformed_request"
	// KindProviderDenied is a callback carrying an error from the provider.
	KindProviderDenied Kind = "provider_denied"
	// KindExchangeFailure is a non-success answer from the token endpoint.
	KindExchangeFailure Kind = "exchange_failed"
	// KindIdentityResolution is a non-success answer from the userinfo endpoint.
	KindIdentityResolution Kind = "identity_resolution_failed"
	// KindStorageFailure is a failed credential write after a successful exchange.
	KindStorageFailure Kind = "storage_failed"
	// KindTimeout is a provider call that exceeded its deadline.
	KindTimeout Kind = "timeout"
	// KindListenerFailure is a bind or serve error of the callback listener.
	KindListenerFailure Kind = "listener_failed"
)

// AuthError is the error value returned for every failure branch of the callback flow.
type AuthError struct {
	// Kind is the failure class.
	Kind Kind
	// Message is the user-facing description rendered on the error page.
	Message string
	// StatusCode is the HTTP status the callback listener answers with.
	StatusCode int
	// Cause is the underlying error, if any.
	Cause error
}

// Error returns a string representation of the authentication error.
func (e *AuthError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the cause to errors.Is / errors.As.
func (e *AuthError) Unwrap() error { return e.Cause }

// NewAuthError builds an AuthError with the status code implied by kind.
func NewAuthError(kind Kind, message string, cause error) *AuthError {
	return &AuthError{
		Kind:       kind,
		Message:    message,
		StatusCode: statusForKind(kind),
		Cause:      cause,
	}
}

func statusForKind(kind Kind) int {
	switch kind {
	case KindMalformedRequest, KindProviderDenied:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// KindOf returns the Kind of err, or "" when err is not an AuthError.
func KindOf(err error) Kind {
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return authErr.Kind
	}
	return ""
}

// IsAuthError checks if an error is an AuthError.
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}
