package healthpoint

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapAPIError_StatusTaxonomy(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   string
	}{
		{"bad request", 400, KeyBadRequest},
		{"unauthorized", 401, KeyUnauthorized},
		{"forbidden", 403, KeyForbidden},
		{"not found", 404, KeyNotFound},
		{"conflict", 409, KeyConflict},
		{"validation", 422, KeyValidation},
		{"rate limited", 429, KeyRateLimited},
		{"server error", 500, KeyServer},
		{"bad gateway", 502, KeyServer},
		{"gateway timeout", 504, KeyServer},
		{"unmapped 4xx", 418, KeyGeneric},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mapped := mapAPIError(&httpError{status: tt.status})
			assert.Equal(t, tt.want, mapped.MessageKey)
			assert.Equal(t, tt.status, mapped.Status)
		})
	}
}

func TestMapAPIError_NoResponseIsNetwork(t *testing.T) {
	mapped := mapAPIError(&httpError{err: errors.New("connection refused")})
	assert.Equal(t, KeyNetwork, mapped.MessageKey)
	assert.Zero(t, mapped.Status)
}

func TestMapAPIError_Refinement(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		message string
		want    string
	}{
		{"invalid credentials", 401, "Incorrect username or password", KeyInvalidCredentials},
		{"username exists", 409, "Username already exists", KeyUsernameExists},
		{"phone exists", 409, "Phone number is already in use", KeyPhoneExists},
		{"refinement is case insensitive", 409, "USERNAME ALREADY EXISTS", KeyUsernameExists},
		{"409 without known message stays conflict", 409, "duplicate resource", KeyConflict},
		{"401 without known message stays unauthorized", 401, "token invalid", KeyUnauthorized},
		{"known message on other status does not refine", 400, "username already exists", KeyBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mapped := mapAPIError(&httpError{
				status: tt.status,
				body:   &errorBody{Message: tt.message},
			})
			assert.Equal(t, tt.want, mapped.MessageKey)
			assert.Equal(t, tt.message, mapped.Message)
		})
	}
}

func TestMapAPIError_DetailsPassThrough(t *testing.T) {
	details := map[string]interface{}{
		"age": "must be a positive integer",
	}
	mapped := mapAPIError(&httpError{
		status: 422,
		body:   &errorBody{Code: "VALIDATION_FAILED", Message: "Validation failed", Details: details},
	})

	assert.Equal(t, KeyValidation, mapped.MessageKey)
	assert.Equal(t, "VALIDATION_FAILED", mapped.Code)
	assert.Equal(t, details, mapped.Details)
}

func TestMapAPIError_CodeBecomesKeyForUnmappedStatus(t *testing.T) {
	mapped := mapAPIError(&httpError{
		status: 418,
		body:   &errorBody{Code: "IM_A_TEAPOT", Message: "short and stout"},
	})
	assert.Equal(t, "IM_A_TEAPOT", mapped.MessageKey)
}

func TestMapAPIError_PassesThroughNormalizedErrors(t *testing.T) {
	original := &APIError{MessageKey: KeySessionExpired, Message: "gone"}
	assert.Same(t, original, mapAPIError(original))
}

func TestAPIError_ErrorAndUnwrap(t *testing.T) {
	cause := errors.New("boom")
	apiErr := &APIError{MessageKey: KeyServer, Message: "Internal error", Status: 500, Err: cause}

	assert.Contains(t, apiErr.Error(), KeyServer)
	assert.Contains(t, apiErr.Error(), "Internal error")
	assert.Equal(t, cause, errors.Unwrap(apiErr))

	require.True(t, errors.Is(apiErr, &APIError{MessageKey: KeyServer}))
	assert.False(t, errors.Is(apiErr, &APIError{MessageKey: KeyNetwork}))
}
