package healthpoint

import (
	"context"
	"net/http"
	"time"
)

// Tokens is the credential pair issued by the API. The SDK treats both
// tokens as opaque strings: no expiry is tracked and refresh is purely
// reactive, triggered by a rejected call.
type Tokens struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
}

// UserProfile is the authenticated user's profile record.
type UserProfile struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Name     string `json:"name"`
	Age      int    `json:"age"`
	Gender   string `json:"gender"`
	Phone    string `json:"phone"`
	PhotoURL string `json:"photo_url,omitempty"`
}

// Session pairs the tokens with the user profile they belong to. Both halves
// are persisted and cleared together.
type Session struct {
	Tokens *Tokens      `json:"tokens"`
	User   *UserProfile `json:"user"`
}

// Credentials is the login request payload.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// SignupParams is the signup request payload.
type SignupParams struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Name     string `json:"name"`
	Age      int    `json:"age"`
	Gender   string `json:"gender"`
	Phone    string `json:"phone"`
}

// UpdateProfileParams carries a partial profile update. Nil fields are left
// untouched by the server.
type UpdateProfileParams struct {
	Name   *string `json:"name,omitempty"`
	Age    *int    `json:"age,omitempty"`
	Gender *string `json:"gender,omitempty"`
	Phone  *string `json:"phone,omitempty"`
}

// Logger interface for logging
type Logger interface {
	Debug(msg string, keysAndValues ...interface{})
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// RetryConfig configures retry behavior for idempotent API calls. The
// auth-refresh call never retries regardless of this setting.
type RetryConfig struct {
	MaxRetries int           `json:"maxRetries"`
	RetryWait  time.Duration `json:"retryWait"`
	MaxWait    time.Duration `json:"maxWait"`
}

// Hooks provides lifecycle hooks for requests
type Hooks struct {
	OnRequest  func(ctx context.Context, req *http.Request)
	OnResponse func(ctx context.Context, resp *http.Response, duration time.Duration)
	OnError    func(ctx context.Context, err error)
}
