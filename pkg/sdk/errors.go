package netscout

import (
	"errors"
	"fmt"
)

// Sentinel errors. Use errors.Is() to check.
var (
	ErrUnauthorized   = errors.New("unauthorized")
	ErrInvalidQuery   = errors.New("invalid query")
	ErrQuotaExceeded  = errors.New("search quota exceeded")
	ErrUnavailable    = errors.New("service unavailable")
	ErrIncomplete     = errors.New("search stream ended before done")
	ErrSearchFailed   = errors.New("search failed")
	errUnexpectedCode = errors.New("unexpected response")
)

// APIError is a non-stream error response.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("netscout: %d %s: %s", e.StatusCode, e.Code, e.Message)
}

// Unwrap maps the response code to a sentinel.
func (e *APIError) Unwrap() error {
	switch e.Code {
	case "unauthorized":
		return ErrUnauthorized
	case "invalid_query", "bad_request":
		return ErrInvalidQuery
	case "quota_exceeded":
		return ErrQuotaExceeded
	case "budget_exceeded", "provider_error":
		return ErrUnavailable
	default:
		return errUnexpectedCode
	}
}

// SearchError is a search that ended with an error event.
type SearchError struct {
	Payload ErrorPayload
}

func (e *SearchError) Error() string {
	if e.Payload.Stage != "" {
		return fmt.Sprintf("netscout: search failed at %s: %s", e.Payload.Stage, e.Payload.Message)
	}
	return "netscout: search failed: " + e.Payload.Message
}

func (e *SearchError) Unwrap() error { return ErrSearchFailed }
