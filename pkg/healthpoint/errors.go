package healthpoint

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Message keys identify error classes for the embedding application's i18n
// layer. The SDK never translates; it only classifies.
const (
	KeyNetwork            = "errors.network"
	KeyTimeout            = "errors.timeout"
	KeyBadRequest         = "errors.badRequest"
	KeyUnauthorized       = "errors.unauthorized"
	KeyForbidden          = "errors.forbidden"
	KeyNotFound           = "errors.notFound"
	KeyConflict           = "errors.conflict"
	KeyValidation         = "errors.validation"
	KeyRateLimited        = "errors.rateLimited"
	KeyServer             = "errors.server"
	KeyGeneric            = "errors.generic"
	KeyInvalidCredentials = "errors.invalidCredentials"
	KeyUsernameExists     = "errors.usernameExists"
	KeyPhoneExists        = "errors.phoneExists"
	KeySessionExpired     = "errors.sessionExpired"
)

var (
	// ErrNotAuthenticated is returned when a call needs a session that is
	// not there (e.g. refresh with no refresh token).
	ErrNotAuthenticated = errors.New("not authenticated")

	// ErrSessionExpired is returned when the session could not be renewed
	ErrSessionExpired = errors.New("session expired")

	// ErrInvalidRefresh is returned when the refresh endpoint answers
	// without a usable access token
	ErrInvalidRefresh = errors.New("invalid refresh response")

	// ErrEmptyResponse is returned when a caller decodes a bodyless success
	ErrEmptyResponse = errors.New("response has no body")
)

// APIError is the normalized form of every terminal failure surfaced by the
// SDK. MessageKey is the classification; Details carries field-level
// validation sub-errors through unchanged for caller-side mapping.
type APIError struct {
	MessageKey string                 `json:"messageKey"`
	Message    string                 `json:"message"`
	Status     int                    `json:"status,omitempty"`
	Code       string                 `json:"code,omitempty"`
	Details    map[string]interface{} `json:"details,omitempty"`
	Err        error                  `json:"-"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.MessageKey, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.MessageKey, e.Err)
	}
	return e.MessageKey
}

// Unwrap returns the underlying cause
func (e *APIError) Unwrap() error {
	return e.Err
}

// Is matches APIErrors by message key
func (e *APIError) Is(target error) bool {
	t, ok := target.(*APIError)
	if !ok {
		return false
	}
	return e.MessageKey == t.MessageKey
}

// errorBody is the error half of the API envelope.
type errorBody struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// envelope is the wrapper around every API response body:
// {success: true, data: ...} or {success: false, error: {...}}.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   *errorBody      `json:"error,omitempty"`
	Message string          `json:"message,omitempty"`
}

func parseEnvelope(body []byte) *envelope {
	var env envelope
	// Malformed bodies still classify by status code alone.
	_ = json.Unmarshal(body, &env)
	return &env
}

// httpError carries a raw HTTP failure from the transport to the mapper. A
// zero status means no response was received at all.
type httpError struct {
	status      int
	body        *errorBody
	fallbackMsg string
	err         error
}

func (e *httpError) Error() string {
	if e.status == 0 {
		if e.err != nil {
			return e.err.Error()
		}
		return "no response"
	}
	return fmt.Sprintf("HTTP %d", e.status)
}

func (e *httpError) Unwrap() error {
	return e.err
}

func (e *httpError) message() string {
	if e.body != nil && e.body.Message != "" {
		return e.body.Message
	}
	if e.fallbackMsg != "" {
		return e.fallbackMsg
	}
	return fmt.Sprintf("Request failed (%d)", e.status)
}

// mapAPIError classifies a failure into the fixed taxonomy. Already
// normalized errors pass through unchanged.
func mapAPIError(err error) *APIError {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}

	var he *httpError
	if !errors.As(err, &he) || he.status == 0 {
		// No response received at all: transport failure or timeout.
		return &APIError{
			MessageKey: KeyNetwork,
			Message:    "Network error. Check your connection.",
			Err:        err,
		}
	}

	msg := he.message()

	// Refinement pass: well-known backend messages sharpen the key. The
	// match is case-insensitive and only narrows the default taxonomy.
	switch {
	case he.status == http.StatusUnauthorized && messageContains(msg, "incorrect username or password"):
		return &APIError{MessageKey: KeyInvalidCredentials, Message: msg, Status: he.status, Err: err}
	case he.status == http.StatusConflict && messageContains(msg, "username already exists"):
		return &APIError{MessageKey: KeyUsernameExists, Message: msg, Status: he.status, Err: err}
	case he.status == http.StatusConflict && messageContains(msg, "phone number is already in use"):
		return &APIError{MessageKey: KeyPhoneExists, Message: msg, Status: he.status, Err: err}
	}

	key := statusMessageKey(he.status)
	code := ""
	var details map[string]interface{}
	if he.body != nil {
		code = he.body.Code
		details = he.body.Details
	}
	if key == "" {
		if code != "" {
			key = code
		} else {
			key = KeyGeneric
		}
	}

	return &APIError{
		MessageKey: key,
		Message:    msg,
		Status:     he.status,
		Code:       code,
		Details:    details,
		Err:        err,
	}
}

func statusMessageKey(status int) string {
	switch status {
	case http.StatusBadRequest:
		return KeyBadRequest
	case http.StatusUnauthorized:
		return KeyUnauthorized
	case http.StatusForbidden:
		return KeyForbidden
	case http.StatusNotFound:
		return KeyNotFound
	case http.StatusConflict:
		return KeyConflict
	case http.StatusUnprocessableEntity:
		return KeyValidation
	case http.StatusTooManyRequests:
		return KeyRateLimited
	}
	if status >= 500 {
		return KeyServer
	}
	return ""
}

func messageContains(msg, search string) bool {
	return strings.Contains(strings.ToLower(msg), strings.ToLower(search))
}
