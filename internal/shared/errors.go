package shared

import (
	"errors"
	"fmt"
)

// RequestError is used when we want a specific status code and machine
// readable code sent back to the caller. Sane defaults are listed below. For
// routes that need structured context attached to the response, WithDetails
// produces a copy carrying detail.
//
// Error codes should be bubbled where the RequestError is expected to reach
// the user. If the user should see a generic error but the error chain needs
// more detail for logging, join the RequestError with a context error instead
// of editing the sentinel.
type RequestError struct {
	StatusCode int
	Code       string
	Err        error
	Details    any
}

func (r *RequestError) Error() string {
	return fmt.Sprintf("status %d (%s): err %v", r.StatusCode, r.Code, r.Err)
}

// WithDetails returns a copy of the error carrying caller-visible detail.
// Sentinels stay untouched.
func (r *RequestError) WithDetails(details any) *RequestError {
	return &RequestError{
		StatusCode: r.StatusCode,
		Code:       r.Code,
		Err:        r.Err,
		Details:    details,
	}
}

var (
	ErrMissingAPIKey = &RequestError{StatusCode: 401, Code: "missing_api_key", Err: errors.New("missing api key")}
	ErrInvalidAPIKey = &RequestError{StatusCode: 401, Code: "invalid_api_key", Err: errors.New("invalid api key")}
	ErrUnauthorized  = &RequestError{StatusCode: 401, Code: "unauthorized", Err: errors.New("unauthorized")}

	ErrRateLimited = &RequestError{StatusCode: 429, Code: "rate_limit_exceeded", Err: errors.New("rate limit exceeded")}

	ErrInvalidRequest = &RequestError{StatusCode: 400, Code: "invalid_request", Err: errors.New("invalid request body")}
	ErrNotFound       = &RequestError{StatusCode: 404, Code: "not_found", Err: errors.New("not found")}

	ErrInternalServerError = &RequestError{StatusCode: 500, Code: "internal_server_error", Err: errors.New("internal server error")}
	ErrUpstreamTimeout     = &RequestError{StatusCode: 504, Code: "upstream_timeout", Err: errors.New("no upstream response within the deadline")}
)

// NewUpstreamError wraps a non-2xx status from a fully buffered upstream call.
// The decoded upstream body rides along as caller-visible detail so failures
// are never silently swallowed.
func NewUpstreamError(status int, body any) *RequestError {
	return &RequestError{
		StatusCode: status,
		Code:       "upstream_error",
		Err:        fmt.Errorf("upstream request failed with status %d", status),
		Details:    body,
	}
}
