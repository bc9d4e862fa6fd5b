package healthpoint

import (
	"context"
	"io"
)

// AuthService handles authentication and session lifecycle
type AuthService interface {
	// Login authenticates with username/password and establishes a session
	Login(ctx context.Context, creds *Credentials) (*UserProfile, error)

	// Signup registers a new account and establishes a session
	Signup(ctx context.Context, params *SignupParams) (*UserProfile, error)

	// Logout ends the session. The server call is fire-and-forget; the local
	// session is always cleared and a logout event is always emitted.
	Logout(ctx context.Context) error

	// ForgotPassword requests a password reset for the given username
	ForgotPassword(ctx context.Context, username string) error

	// Bootstrap restores a persisted session on startup: if an access token
	// is present it fetches the current user, otherwise it returns
	// (nil, nil). A failed fetch clears the stale session.
	Bootstrap(ctx context.Context) (*UserProfile, error)
}

// UserService handles profile operations
type UserService interface {
	// Me fetches the current user's profile and caches it in the session
	Me(ctx context.Context) (*UserProfile, error)

	// UpdateProfile applies a partial profile update
	UpdateProfile(ctx context.Context, params *UpdateProfileParams) (*UserProfile, error)

	// UploadPhoto uploads a profile photo as multipart form data
	UploadPhoto(ctx context.Context, filename string, r io.Reader) (*UserProfile, error)
}

// Notifier receives default user-facing notifications (the toast layer of a
// UI). Keys are i18n message keys such as "errors.network"; fallback is an
// untranslated English message.
type Notifier interface {
	Error(messageKey, fallback string)
	Success(messageKey, fallback string)
}
