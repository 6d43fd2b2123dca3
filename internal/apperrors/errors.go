package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error represents a typed domain error with HTTP awareness.
type Error struct {
	Code    string `json:"code"`
	Reason  string `json:"reason,omitempty"`
	Message string `json:"message"`
	Status  int    `json:"status"`
	Err     error  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches errors sharing the same code and reason, so errors.Is works against the
// predefined values below even after Clone or Wrap.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || e == nil || t == nil {
		return false
	}
	return e.Code == t.Code && (t.Reason == "" || e.Reason == t.Reason)
}

// New creates a new Error instance.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

const (
	CodeValidation          = "VALIDATION_ERROR"
	CodeNoMatch             = "NO_MATCH_FOUND"
	CodeResolverUnavailable = "RESOLVER_UNAVAILABLE"
	CodeTransitionRejected  = "TRANSITION_REJECTED"
	CodeStoreUnavailable    = "STORE_UNAVAILABLE"
	CodeInternal            = "INTERNAL_ERROR"
)

// Predefined errors for the request boundary.
var (
	ErrValidation          = New(CodeValidation, http.StatusBadRequest, "validation failed")
	ErrNoMatch             = New(CodeNoMatch, http.StatusBadRequest, "Face recognition is unmatched among the students")
	ErrResolverUnavailable = New(CodeResolverUnavailable, http.StatusServiceUnavailable, "face comparison service unavailable")
	ErrTransitionRejected  = New(CodeTransitionRejected, http.StatusConflict, "attendance transition rejected")
	ErrStoreUnavailable    = New(CodeStoreUnavailable, http.StatusServiceUnavailable, "storage unavailable")
	ErrInternal            = New(CodeInternal, http.StatusInternalServerError, "internal server error")
)

// Validation builds a caller-correctable error with the given message.
func Validation(message string) *Error {
	return Clone(ErrValidation, message)
}

// Rejected builds a business-rule rejection carrying its reason code.
func Rejected(reason, message string) *Error {
	e := Clone(ErrTransitionRejected, message)
	e.Reason = reason
	return e
}

// StoreUnavailable wraps a blob or record store failure.
func StoreUnavailable(err error, message string) *Error {
	return Wrap(err, CodeStoreUnavailable, ErrStoreUnavailable.Status, message)
}

// ResolverUnavailable wraps a comparison oracle failure.
func ResolverUnavailable(err error) *Error {
	return Wrap(err, CodeResolverUnavailable, ErrResolverUnavailable.Status, ErrResolverUnavailable.Message)
}

// FromError normalises any error into an *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, ErrInternal.Message)
}

// Clone returns a copy of the error allowing for message overrides.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	return &clone
}
