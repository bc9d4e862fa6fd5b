package healthpoint

import (
	"context"
	"net/http"

	"github.com/pkg/errors"
)

const (
	loginEndpoint          = "/auth/login"
	signupEndpoint         = "/auth/signup"
	logoutEndpoint         = "/auth/logout"
	forgotPasswordEndpoint = "/auth/forgot-password"
)

// authService implements the AuthService interface
type authService struct {
	client *Client
}

// sessionPayload is the body of successful login/signup responses.
type sessionPayload struct {
	User   *UserProfile `json:"user"`
	Tokens *Tokens      `json:"tokens"`
}

// Login authenticates and establishes the session. Tokens and user are
// written through one SetSession call.
func (a *authService) Login(ctx context.Context, creds *Credentials) (*UserProfile, error) {
	return a.establishSession(ctx, loginEndpoint, creds)
}

// Signup registers a new account and establishes the session.
func (a *authService) Signup(ctx context.Context, params *SignupParams) (*UserProfile, error) {
	return a.establishSession(ctx, signupEndpoint, params)
}

func (a *authService) establishSession(ctx context.Context, path string, body interface{}) (*UserProfile, error) {
	res, err := a.client.pipeline.Send(ctx, &Request{
		Method: http.MethodPost,
		Path:   path,
		Body:   body,
	})
	if err != nil {
		return nil, err
	}

	var payload sessionPayload
	if err := res.Decode(&payload); err != nil {
		return nil, errors.Wrap(err, "failed to decode session response")
	}

	a.client.store.SetSession(&Session{Tokens: payload.Tokens, User: payload.User})

	// Read back through the store so the caller sees the normalized profile.
	return a.client.store.User(), nil
}

// Logout ends the session. The server call is fire-and-forget: it skips the
// refresh path and suppresses notifications, and its failure is logged but
// never blocks clearing the local session or broadcasting logout.
func (a *authService) Logout(ctx context.Context) error {
	_, err := a.client.pipeline.Send(ctx, &Request{
		Method:          http.MethodPost,
		Path:            logoutEndpoint,
		Body:            struct{}{},
		SkipAuthRefresh: true,
		SuppressNotify:  true,
	})
	if err != nil && a.client.options.Logger != nil {
		a.client.options.Logger.Warn("logout request failed", "error", err)
	}

	a.client.store.Clear()
	a.client.Events.EmitLogout()
	return nil
}

// ForgotPassword requests a password reset.
func (a *authService) ForgotPassword(ctx context.Context, username string) error {
	_, err := a.client.pipeline.Send(ctx, &Request{
		Method: http.MethodPost,
		Path:   forgotPasswordEndpoint,
		Body:   map[string]string{"username": username},
	})
	return err
}

// Bootstrap restores a persisted session on startup. With no access token it
// is a no-op; otherwise it validates the session by fetching the current
// user, clearing the stale session if that fails.
func (a *authService) Bootstrap(ctx context.Context) (*UserProfile, error) {
	if a.client.store.AccessToken() == "" {
		return nil, nil
	}

	users, ok := a.client.Users.(*userService)
	if !ok {
		return a.client.Users.Me(ctx)
	}

	user, err := users.me(ctx, true)
	if err != nil {
		if a.client.options.Logger != nil {
			a.client.options.Logger.Warn("failed to restore session", "error", err)
		}
		a.client.store.Clear()
		return nil, err
	}
	return user, nil
}
