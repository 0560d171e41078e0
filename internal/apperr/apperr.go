// Package apperr defines DevPulse's error taxonomy (spec.md §7) as
// sentinel-wrapped errors with an HTTP status mapping, instead of a custom
// exception hierarchy.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is one of the taxonomy's error classes.
type Kind int

const (
	KindMalformed Kind = iota
	KindStoreIOError
	KindStoreUnavailable
	KindNotFound
	KindConflict
	KindTimeout
	KindDispatcherFailure
)

var statusByKind = map[Kind]int{
	KindMalformed:         http.StatusBadRequest,
	KindStoreIOError:      http.StatusInternalServerError,
	KindStoreUnavailable:  http.StatusServiceUnavailable,
	KindNotFound:          http.StatusNotFound,
	KindConflict:          http.StatusConflict,
	KindTimeout:           http.StatusGatewayTimeout,
	KindDispatcherFailure: http.StatusInternalServerError,
}

// Error wraps an underlying cause with a Kind from the taxonomy.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// HTTPStatus returns the status code this error's Kind maps to.
func (e *Error) HTTPStatus() int {
	if s, ok := statusByKind[e.Kind]; ok {
		return s
	}
	return http.StatusInternalServerError
}

func newErr(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// Malformed wraps err (or constructs a bare error from msg) as a 400.
func Malformed(msg string, err error) *Error { return newErr(KindMalformed, msg, err) }

// StoreIOError wraps a persistence failure as a 500.
func StoreIOError(msg string, err error) *Error { return newErr(KindStoreIOError, msg, err) }

// StoreUnavailable wraps a persistence unavailability as a 503.
func StoreUnavailable(msg string, err error) *Error { return newErr(KindStoreUnavailable, msg, err) }

// NotFound wraps a missing-resource condition as a 404.
func NotFound(msg string) *Error { return newErr(KindNotFound, msg, nil) }

// ConflictErr wraps a precondition-failure condition as a 409.
func ConflictErr(msg string) *Error { return newErr(KindConflict, msg, nil) }

// TimeoutErr wraps a deadline-exceeded condition as a 504.
func TimeoutErr(msg string, err error) *Error { return newErr(KindTimeout, msg, err) }

// DispatcherFailure wraps a webhook delivery failure. Never propagated to
// the ingest caller; recorded per-webhook only.
func DispatcherFailure(msg string, err error) *Error { return newErr(KindDispatcherFailure, msg, err) }

// KindOf extracts the Kind from err if it (or something it wraps) is an
// *Error, defaulting to KindStoreIOError for unrecognized errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindStoreIOError
}

// HTTPStatus maps any error to an HTTP status code via its Kind.
func HTTPStatus(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.HTTPStatus()
	}
	return http.StatusInternalServerError
}
