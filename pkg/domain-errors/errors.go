// Package domainerrors defines the typed error taxonomy shared by services,
// handlers and the client SDK.
//
// Services return *Error values carrying a stable Code. Transport layers map
// the Code to a status (see pkg/platform/httputil) and never inspect messages.
// Stores should not construct domain errors; they return sentinel errors from
// pkg/platform/sentinel which services translate.
package domainerrors

import (
	"errors"
	"fmt"
	"maps"
)

// Code is a stable, machine-readable error identifier.
type Code string

// Generic codes.
const (
	CodeInternal           Code = "internal_error"
	CodeBadRequest         Code = "bad_request"
	CodeValidation         Code = "validation_error"
	CodeInvalidInput       Code = "invalid_input"
	CodeInvalidRequest     Code = "invalid_request"
	CodeInvariantViolation Code = "invariant_violation"
	CodeNotFound           Code = "not_found"
	CodeConflict           Code = "conflict"
	CodeForbidden          Code = "forbidden"
	CodeTimeout            Code = "timeout"
)

// Consent and authorization codes. CodeUnauthenticated means the caller has
// no valid identity; CodeUnauthorized means no effective consent covers the request.
const (
	CodeUnauthenticated       Code = "unauthenticated"
	CodeUnauthorized          Code = "unauthorized"
	CodeConsentExpired        Code = "consent_expired"
	CodeConsentRevoked        Code = "consent_revoked"
	CodeJustificationRequired Code = "justification_required"
)

// Privacy budget and query codes.
const (
	CodeBudgetExhausted          Code = "budget_exhausted"
	CodeInsufficientBudget       Code = "insufficient_budget"
	CodeInvalidEpsilon           Code = "invalid_epsilon"
	CodeInvalidDelta             Code = "invalid_delta"
	CodeInvalidSensitivity       Code = "invalid_sensitivity"
	CodePoolInactive             Code = "pool_inactive"
	CodeInsufficientContributors Code = "insufficient_contributors"
)

// Transport codes raised at the service boundary by clients.
const (
	CodeConnectionFailed Code = "connection_failed"
	CodeCallFailed       Code = "call_failed"
)

// MetaPercentRemaining is attached to budget denials so callers can explain them.
const MetaPercentRemaining = "percent_remaining"

// Error is a domain error with a code, a user-facing message and optional
// structured metadata.
type Error struct {
	Code    Code
	Message string
	Err     error
	Meta    map[string]any
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New creates a domain error with the given code and message.
func New(code Code, msg string) *Error {
	return &Error{Code: code, Message: msg}
}

// Newf is New with fmt-style formatting.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap annotates err with a code and message. The wrapped error stays
// reachable through errors.Is / errors.As.
func Wrap(err error, code Code, msg string) *Error {
	return &Error{Code: code, Message: msg, Err: err}
}

// WithMeta returns a copy of e with key set to value.
func (e *Error) WithMeta(key string, value any) *Error {
	cp := *e
	cp.Meta = make(map[string]any, len(e.Meta)+1)
	maps.Copy(cp.Meta, e.Meta)
	cp.Meta[key] = value
	return &cp
}

// As extracts the outermost domain error from err.
func As(err error) (*Error, bool) {
	var de *Error
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}

// CodeOf returns the code of the outermost domain error, or CodeInternal.
func CodeOf(err error) Code {
	if de, ok := As(err); ok {
		return de.Code
	}
	return CodeInternal
}

// HasCode reports whether the outermost domain error in err's chain has code.
func HasCode(err error, code Code) bool {
	de, ok := As(err)
	return ok && de.Code == code
}

// Is reports whether err is a domain error with the given code.
// Deprecated: use HasCode.
func Is(err error, code Code) bool {
	return HasCode(err, code)
}

// Meta returns the metadata value for key from the outermost domain error.
func Meta(err error, key string) (any, bool) {
	de, ok := As(err)
	if !ok || de.Meta == nil {
		return nil, false
	}
	v, ok := de.Meta[key]
	return v, ok
}
