package rhsdk

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	// ErrAuthentication matches every *AuthenticationError via errors.Is.
	ErrAuthentication = errors.New("authentication failed")

	// ErrRefreshRejected matches a refresh the provider answered with a 4xx.
	// The refresh token is no longer usable; only a full login recovers.
	ErrRefreshRejected = errors.New("refresh token rejected")

	// ErrInvalidCache is returned when a persisted session record is missing,
	// empty, or cannot be decoded.
	ErrInvalidCache = errors.New("invalid session cache")
)

// AuthenticationError is returned when a credential cannot be obtained,
// refreshed, or revoked. Message is suitable for direct display and keeps the
// provider's own wording where there is one.
type AuthenticationError struct {
	// Message describes the failure
	Message string

	// StatusCode is the HTTP status of the provider response, zero if the
	// failure happened before a response was received
	StatusCode int

	// Err is the underlying cause, if any
	Err error

	refreshRejected bool
}

// Error implements the error interface.
func (e *AuthenticationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying cause.
func (e *AuthenticationError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrAuthentication) hold for any AuthenticationError,
// and errors.Is(err, ErrRefreshRejected) for a rejected refresh.
func (e *AuthenticationError) Is(target error) bool {
	switch target {
	case ErrAuthentication:
		return true
	case ErrRefreshRejected:
		return e.refreshRejected
	default:
		return false
	}
}

func authError(msg string) *AuthenticationError {
	return &AuthenticationError{Message: msg}
}

// HTTPError is returned for a non-2xx response when errors are raised.
type HTTPError struct {
	Method     string
	URL        string
	StatusCode int
	Body       []byte
}

// Error implements the error interface.
func (e *HTTPError) Error() string {
	msg := fmt.Sprintf("%s %s: %d %s", e.Method, e.URL, e.StatusCode, http.StatusText(e.StatusCode))
	if detail := providerMessage(e.Body); detail != "" {
		msg += ": " + detail
	}
	return msg
}

// providerErrorBody covers the error shapes the provider uses: the DRF style
// detail field and the OAuth2 error/error_description pair.
type providerErrorBody struct {
	Detail           string `json:"detail"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// providerMessage extracts a human readable message from an error body.
// Falls back to the raw body when it is not JSON.
func providerMessage(body []byte) string {
	var parsed providerErrorBody
	if err := json.Unmarshal(body, &parsed); err != nil {
		return strings.TrimSpace(string(body))
	}

	switch {
	case parsed.Detail != "":
		return parsed.Detail
	case parsed.ErrorDescription != "":
		return parsed.ErrorDescription
	default:
		return parsed.Error
	}
}
