// Package apperr provides the coded error taxonomy used across the loan
// service: strategy validation, store conflicts, queue transience, crypto
// failures and inbound-webhook signature mismatches all surface as an
// *Error so the HTTP layer can render a consistent {message, errors,
// details} body without type-switching on bare strings.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind names one of the behavioral error categories from the error
// handling design: validation, not-found, conflict, and so on.
type Kind string

const (
	KindValidation          Kind = "VALIDATION"
	KindCountryNotSupported Kind = "COUNTRY_NOT_SUPPORTED"
	KindNotFound            Kind = "NOT_FOUND"
	KindUnauthorized        Kind = "UNAUTHORIZED"
	KindForbidden           Kind = "FORBIDDEN"
	KindConflict            Kind = "CONFLICT"
	KindExternalService     Kind = "EXTERNAL_SERVICE"
	KindQueueTransient      Kind = "QUEUE_TRANSIENT"
	KindQueueTerminal       Kind = "QUEUE_TERMINAL"
	KindCrypto              Kind = "CRYPTO_FAILURE"
	KindSignatureMismatch   Kind = "SIGNATURE_MISMATCH"
	KindInternal            Kind = "INTERNAL"
)

// Error is the structured error type returned by strategies, the store,
// the application service, and the worker pool.
type Error struct {
	Kind       Kind
	Message    string
	HTTPStatus int
	Errors     []string
	Details    map[string]interface{}
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// WithDetail attaches a key/value pair surfaced in the HTTP error body.
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// WithErrors appends to the errors[] list (validation messages).
func (e *Error) WithErrors(msgs ...string) *Error {
	e.Errors = append(e.Errors, msgs...)
	return e
}

func newErr(kind Kind, message string, status int) *Error {
	return &Error{Kind: kind, Message: message, HTTPStatus: status}
}

func wrapErr(kind Kind, message string, status int, err error) *Error {
	return &Error{Kind: kind, Message: message, HTTPStatus: status, Err: err}
}

// Validation builds a 422 validation error carrying the strategy's
// accumulated error messages (document checksum, business rule, transition
// guard).
func Validation(message string, errs ...string) *Error {
	return newErr(KindValidation, message, http.StatusUnprocessableEntity).WithErrors(errs...)
}

// DuplicateActive is the specific validation error for §4.G step 6: an
// active application already exists for the same document.
func DuplicateActive() *Error {
	return Validation("duplicate application", "duplicate_application").
		WithDetail("code", "duplicate_application")
}

// InvalidTransition is a 400 — the status graph does not allow moving
// from the loan's current status to the requested one (spec §7/§8
// scenario 10 pins this to 400, distinct from the 422 used for
// document/business-rule validation failures).
func InvalidTransition(message, code string) *Error {
	return newErr(KindValidation, message, http.StatusBadRequest).WithErrors(code)
}

// CountryNotSupported is a 400 — the country isn't a registered strategy.
func CountryNotSupported(code string) *Error {
	return newErr(KindCountryNotSupported, "country not supported", http.StatusBadRequest).
		WithDetail("country_code", code)
}

// NotFound is a 404.
func NotFound(resource, id string) *Error {
	return newErr(KindNotFound, resource+" not found", http.StatusNotFound).
		WithDetail("resource", resource).WithDetail("id", id)
}

// Unauthorized is a 401.
func Unauthorized(message string) *Error {
	return newErr(KindUnauthorized, message, http.StatusUnauthorized)
}

// Forbidden is a 403 — used by the role gate on APPROVED/REJECTED
// transitions.
func Forbidden(message string) *Error {
	return newErr(KindForbidden, message, http.StatusForbidden)
}

// Conflict is reported as a validation-shaped error per spec §7 (not a
// bare 409).
func Conflict(message, code string) *Error {
	return Validation(message, code).WithDetail("code", code)
}

// ExternalService wraps a provider-fetch failure that the caller absorbs
// rather than surfaces — kept here so the synthetic BankingInfo path can
// still log/record the underlying error.
func ExternalService(provider string, err error) *Error {
	return wrapErr(KindExternalService, "external provider unavailable", http.StatusBadGateway, err).
		WithDetail("provider", provider)
}

// QueueTransient marks a worker failure that should retry with backoff.
func QueueTransient(err error) *Error {
	return wrapErr(KindQueueTransient, "transient queue failure", 0, err)
}

// QueueTerminal marks a worker failure with attempts exhausted.
func QueueTerminal(err error) *Error {
	return wrapErr(KindQueueTerminal, "queue attempts exhausted", 0, err)
}

// Crypto wraps a PII decrypt failure. Per §4.A this must never crash the
// read path; callers log it and fall back to a sentinel/ciphertext.
func Crypto(err error) *Error {
	return wrapErr(KindCrypto, "crypto operation failed", http.StatusInternalServerError, err)
}

// SignatureMismatch is the inbound-webhook 401.
func SignatureMismatch() *Error {
	return newErr(KindSignatureMismatch, "invalid webhook signature", http.StatusUnauthorized)
}

// Internal wraps an unexpected failure as a 500.
func Internal(message string, err error) *Error {
	return wrapErr(KindInternal, message, http.StatusInternalServerError, err)
}

// As extracts an *Error from an error chain.
func As(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}

// HTTPStatus returns the status code for err, defaulting to 500.
func HTTPStatus(err error) int {
	if e, ok := As(err); ok && e.HTTPStatus != 0 {
		return e.HTTPStatus
	}
	return http.StatusInternalServerError
}
