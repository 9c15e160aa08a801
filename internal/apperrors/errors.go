// Package apperrors defines the single structured error type the rest of the
// module uses to propagate failures: every error carries a Kind, the
// component that raised it, whether it is retryable, and an optional cause.
package apperrors

import (
	"fmt"
	"net/http"
)

// Kind classifies an error the way spec §7's error taxonomy does.
type Kind string

const (
	KindTransport    Kind = "transport"
	KindAuthConfig   Kind = "auth_config"
	KindParseSchema  Kind = "parse_schema"
	KindValidation   Kind = "validation"
	KindAnomaly      Kind = "anomaly"
	KindCache        Kind = "cache"
	KindStateStore   Kind = "state_store"
	KindDispatch     Kind = "dispatch"
	KindInternal     Kind = "internal"
)

var statusByKind = map[Kind]int{
	KindTransport:   http.StatusBadGateway,
	KindAuthConfig:  http.StatusUnauthorized,
	KindParseSchema: http.StatusUnprocessableEntity,
	KindValidation:  http.StatusBadRequest,
	KindAnomaly:     http.StatusOK,
	KindCache:       http.StatusInternalServerError,
	KindStateStore:  http.StatusInternalServerError,
	KindDispatch:    http.StatusBadGateway,
	KindInternal:    http.StatusInternalServerError,
}

// defaultRetryable mirrors spec §7: transport failures are retryable by
// default, everything else is not, unless overridden with WithRetryable.
var defaultRetryable = map[Kind]bool{
	KindTransport: true,
}

// AppError is the one error type every component returns or wraps.
type AppError struct {
	Kind      Kind
	Component string
	Message   string
	Details   string
	Retryable bool
	Cause     error
}

func New(kind Kind, component, message string) *AppError {
	return &AppError{
		Kind:      kind,
		Component: component,
		Message:   message,
		Retryable: defaultRetryable[kind],
	}
}

func Newf(kind Kind, component, format string, args ...any) *AppError {
	return New(kind, component, fmt.Sprintf(format, args...))
}

func Wrap(cause error, kind Kind, component, message string) *AppError {
	return &AppError{
		Kind:      kind,
		Component: component,
		Message:   message,
		Retryable: defaultRetryable[kind],
		Cause:     cause,
	}
}

func Wrapf(cause error, kind Kind, component, format string, args ...any) *AppError {
	return Wrap(cause, kind, component, fmt.Sprintf(format, args...))
}

func (e *AppError) WithDetails(details string) *AppError {
	e.Details = details
	return e
}

func (e *AppError) WithDetailsf(format string, args ...any) *AppError {
	e.Details = fmt.Sprintf(format, args...)
	return e
}

func (e *AppError) WithRetryable(retryable bool) *AppError {
	e.Retryable = retryable
	return e
}

func (e *AppError) Error() string {
	s := fmt.Sprintf("%s[%s]: %s", e.Kind, e.Component, e.Message)
	if e.Details != "" {
		s += fmt.Sprintf(" (%s)", e.Details)
	}
	if e.Cause != nil {
		s += fmt.Sprintf(": %v", e.Cause)
	}
	return s
}

func (e *AppError) Unwrap() error { return e.Cause }

// IsType reports whether err is an *AppError of the given kind.
func IsType(err error, kind Kind) bool {
	var ae *AppError
	if !asAppError(err, &ae) {
		return false
	}
	return ae.Kind == kind
}

// GetType returns err's Kind, or KindInternal if err is not an *AppError.
func GetType(err error) Kind {
	var ae *AppError
	if !asAppError(err, &ae) {
		return KindInternal
	}
	return ae.Kind
}

// GetStatusCode maps err to an HTTP status code for handler responses.
func GetStatusCode(err error) int {
	var ae *AppError
	if !asAppError(err, &ae) {
		return http.StatusInternalServerError
	}
	if code, ok := statusByKind[ae.Kind]; ok {
		return code
	}
	return http.StatusInternalServerError
}

// IsRetryable reports whether err should be retried by the Retry Executor.
func IsRetryable(err error) bool {
	var ae *AppError
	if !asAppError(err, &ae) {
		return false
	}
	return ae.Retryable
}

// SafeErrorMessage never leaks internal details for kinds whose message may
// contain sensitive detail (auth, state store, cache, internal).
func SafeErrorMessage(err error) string {
	var ae *AppError
	if !asAppError(err, &ae) {
		return "an unexpected error occurred"
	}
	switch ae.Kind {
	case KindValidation, KindParseSchema, KindAnomaly:
		return ae.Message
	default:
		return "an internal error occurred"
	}
}

func asAppError(err error, target **AppError) bool {
	for err != nil {
		if ae, ok := err.(*AppError); ok {
			*target = ae
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
