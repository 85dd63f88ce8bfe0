package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

const internalMessage = "internal server error"

// Kind classifies a failure in the checkout workflow.
type Kind string

const (
	KindNotFound                Kind = "not_found"
	KindUnauthenticatedCustomer Kind = "unauthenticated_customer"
	KindProviderError           Kind = "provider_error"
	KindPersistenceError        Kind = "persistence_error"
	KindInvalidRequest          Kind = "invalid_request"
	KindInternal                Kind = "internal"
)

// Error represents an application error
type Error struct {
	Kind    Kind   `json:"kind"`
	Code    int    `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error
func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a new Error
func New(kind Kind, message string, err error) *Error {
	return &Error{
		Kind:    kind,
		Code:    statusFor(kind),
		Message: message,
		Err:     err,
	}
}

func NotFound(message string) *Error {
	return New(KindNotFound, message, nil)
}

func UnauthenticatedCustomer(message string) *Error {
	return New(KindUnauthenticatedCustomer, message, nil)
}

func ProviderError(message string, err error) *Error {
	return New(KindProviderError, message, err)
}

func PersistenceError(message string, err error) *Error {
	return New(KindPersistenceError, message, err)
}

func InvalidRequest(message string) *Error {
	return New(KindInvalidRequest, message, nil)
}

// KindOf returns the Kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Message returns the client-facing text for err. Wrapped causes stay in the
// logs only.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return internalMessage
}

func statusFor(kind Kind) int {
	switch kind {
	case KindNotFound:
		return http.StatusNotFound
	case KindUnauthenticatedCustomer:
		return http.StatusUnauthorized
	case KindProviderError:
		return http.StatusBadGateway
	case KindInvalidRequest:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
