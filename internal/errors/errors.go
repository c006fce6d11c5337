package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a relay failure.
type Kind int

const (
	KindUnknown Kind = iota
	KindAuthentication
	KindValidation
	KindConfiguration
	KindUpstream
	KindTimeout
)

func (k Kind) String() string {
	switch k {
	case KindAuthentication:
		return "authentication"
	case KindValidation:
		return "validation"
	case KindConfiguration:
		return "configuration"
	case KindUpstream:
		return "upstream"
	case KindTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Status returns the HTTP status reported to the caller for this kind.
func (k Kind) Status() int {
	switch k {
	case KindAuthentication:
		return http.StatusUnauthorized
	case KindValidation:
		return http.StatusBadRequest
	case KindUpstream:
		return http.StatusBadGateway
	case KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// RelayError is the base error type for the relay.
type RelayError struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *RelayError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *RelayError) Unwrap() error {
	return e.Cause
}

// New creates a new RelayError
func New(kind Kind, message string) *RelayError {
	return &RelayError{Kind: kind, Message: message}
}

// Wrap wraps an existing error with a RelayError
func Wrap(kind Kind, message string, cause error) *RelayError {
	return &RelayError{Kind: kind, Message: message, Cause: cause}
}

// Common error constructors

// Unauthorized returns an error for a bad or missing token
func Unauthorized(message string) *RelayError {
	return New(KindAuthentication, message)
}

// MissingURL returns an error for a request without a target
func MissingURL() *RelayError {
	return New(KindValidation, "missing url parameter")
}

// InvalidURL returns an error for an unparsable target
func InvalidURL(raw string) *RelayError {
	return New(KindValidation, fmt.Sprintf("invalid url: %s", raw))
}

// Configuration returns an error for interface or config problems
func Configuration(message string, cause error) *RelayError {
	return Wrap(KindConfiguration, message, cause)
}

// Upstream returns an error for a failed fetch from host
func Upstream(host string, cause error) *RelayError {
	return Wrap(KindUpstream, fmt.Sprintf("upstream error from %s", host), cause)
}

// Timeout returns an error for a fetch that missed its deadline
func Timeout(host string, cause error) *RelayError {
	return Wrap(KindTimeout, fmt.Sprintf("request timed out connecting to %s", host), cause)
}

// KindOf extracts the Kind from an error chain.
func KindOf(err error) Kind {
	var re *RelayError
	if errors.As(err, &re) {
		return re.Kind
	}
	return KindUnknown
}

// Status extracts the HTTP status from an error chain. Errors that are not
// RelayErrors map to 500.
func Status(err error) int {
	if err == nil {
		return http.StatusOK
	}
	return KindOf(err).Status()
}
