package tiktok

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthorized is returned for HTTP 401 and auth-family API codes; never retry it
	ErrUnauthorized = errors.New("tiktok: unauthorized")

	// ErrTransient is returned for transport failures and 5xx responses
	ErrTransient = errors.New("tiktok: transient failure")

	// ErrMalformedResponse is returned when a response body cannot be decoded
	ErrMalformedResponse = errors.New("tiktok: malformed response")
)

// APIError is a non-zero business code returned inside a 2xx envelope
type APIError struct {
	Code      int
	Message   string
	RequestID string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("tiktok: api error %d: %s (request_id=%s)", e.Code, e.Message, e.RequestID)
}

// Unwrap lets auth-family codes match ErrUnauthorized
func (e *APIError) Unwrap() error {
	if isAuthCode(e.Code) {
		return ErrUnauthorized
	}
	return nil
}

// Codes 105000-105999 cover invalid, expired and revoked access tokens.
func isAuthCode(code int) bool {
	return code >= 105000 && code < 106000
}
