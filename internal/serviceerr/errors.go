// Package serviceerr defines the errors surfaced by the proxy and their
// mapping to HTTP responses.
package serviceerr

import (
	"errors"
	"net/http"
)

type Code string

const (
	CodeInvalidRequest      Code = "invalid_request"
	CodeUnauthorized        Code = "unauthorized"
	CodeNotFound            Code = "not_found"
	CodeStateMismatch       Code = "state_mismatch"
	CodeStateExpired        Code = "state_expired"
	CodeFingerprintMismatch Code = "fingerprint_mismatch"
	CodeAccessDenied        Code = "access_denied"
	CodeUnknown             Code = "unknown"
)

// Error is an error raised by the proxy itself, as opposed to one reported
// by the upstream.
type Error struct {
	Err         Code
	Description string
}

func (e *Error) Error() string {
	if e.Description == "" {
		return string(e.Err)
	}

	return string(e.Err) + ": " + e.Description
}

func (e *Error) HTTPStatus() int {
	switch e.Err {
	case CodeInvalidRequest, CodeStateMismatch, CodeStateExpired, CodeFingerprintMismatch, CodeAccessDenied:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// message is what the client gets to see.
func (e *Error) message() string {
	if e.Description == "" {
		return string(e.Err)
	}

	return e.Description
}

var (
	ErrInvalidRequest      = &Error{Err: CodeInvalidRequest}
	ErrNotFound            = &Error{Err: CodeNotFound, Description: "not found"}
	ErrStateMismatch       = &Error{Err: CodeStateMismatch, Description: "authorization state does not match"}
	ErrStateExpired        = &Error{Err: CodeStateExpired, Description: "authorization state expired"}
	ErrFingerprintMismatch = &Error{Err: CodeFingerprintMismatch, Description: "authorization was started by another client"}
	ErrNoRefreshToken      = &Error{Err: CodeUnauthorized, Description: "no refresh token in session"}
	ErrUnknown             = &Error{Err: CodeUnknown, Description: "unknown error"}
)

// InvalidRequest returns a 400 error with the given description.
func InvalidRequest(description string) *Error {
	return &Error{Err: CodeInvalidRequest, Description: description}
}

// AccessDenied reports an authorization refused by the provider.
func AccessDenied(description string) *Error {
	return &Error{Err: CodeAccessDenied, Description: description}
}

// UpstreamAuthError is a non-2xx answer of the token endpoint.
type UpstreamAuthError struct {
	StatusCode  int
	Description string
}

func (e *UpstreamAuthError) Error() string {
	return e.Description
}

// UpstreamAPIError is a non-2xx answer of the resource API.
type UpstreamAPIError struct {
	StatusCode int
	Message    string
	Body       []byte
}

func (e *UpstreamAPIError) Error() string {
	return e.Message
}

// NetworkError means that no response was received from the upstream.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// HTTPStatus maps err to the status code returned to the browser: the
// upstream status when one was received, 502 when the upstream could not be
// reached and 500 otherwise.
func HTTPStatus(err error) int {
	var (
		authErr *UpstreamAuthError
		apiErr  *UpstreamAPIError
		netErr  *NetworkError
		svcErr  *Error
	)

	switch {
	case errors.As(err, &authErr):
		return upstreamStatus(authErr.StatusCode)
	case errors.As(err, &apiErr):
		return upstreamStatus(apiErr.StatusCode)
	case errors.As(err, &netErr):
		return http.StatusBadGateway
	case errors.As(err, &svcErr):
		return svcErr.HTTPStatus()
	}

	return http.StatusInternalServerError
}

func upstreamStatus(code int) int {
	if code < 100 || code > 599 {
		return http.StatusBadGateway
	}

	return code
}

// Message returns the human readable message of err.
func Message(err error) string {
	var (
		authErr *UpstreamAuthError
		apiErr  *UpstreamAPIError
		svcErr  *Error
	)

	switch {
	case errors.As(err, &authErr):
		return authErr.Description
	case errors.As(err, &apiErr):
		return apiErr.Message
	case errors.As(err, &svcErr):
		return svcErr.message()
	}

	return err.Error()
}
