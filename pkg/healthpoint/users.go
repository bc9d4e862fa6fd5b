package healthpoint

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/pkg/errors"
)

const (
	meEndpoint    = "/users/me"
	photoEndpoint = "/users/me/photo"

	photoFieldName = "file"
)

// userService implements the UserService interface
type userService struct {
	client *Client
}

// Me fetches the current user's profile and caches it in the session store.
func (u *userService) Me(ctx context.Context) (*UserProfile, error) {
	return u.me(ctx, false)
}

func (u *userService) me(ctx context.Context, suppressNotify bool) (*UserProfile, error) {
	res, err := u.client.pipeline.Send(ctx, &Request{
		Method:         http.MethodGet,
		Path:           meEndpoint,
		SuppressNotify: suppressNotify,
	})
	if err != nil {
		return nil, err
	}
	return u.storeUser(res)
}

// UpdateProfile applies a partial profile update and caches the result.
func (u *userService) UpdateProfile(ctx context.Context, params *UpdateProfileParams) (*UserProfile, error) {
	res, err := u.client.pipeline.Send(ctx, &Request{
		Method: http.MethodPatch,
		Path:   meEndpoint,
		Body:   params,
	})
	if err != nil {
		return nil, err
	}
	return u.storeUser(res)
}

// UploadPhoto uploads a profile photo as multipart form data and caches the
// updated profile the server returns.
func (u *userService) UploadPhoto(ctx context.Context, filename string, r io.Reader) (*UserProfile, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile(photoFieldName, filename)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create multipart form")
	}
	if _, err := io.Copy(part, r); err != nil {
		return nil, errors.Wrap(err, "failed to read photo")
	}
	if err := writer.Close(); err != nil {
		return nil, errors.Wrap(err, "failed to finalize multipart form")
	}

	res, err := u.client.pipeline.Send(ctx, &Request{
		Method:      http.MethodPost,
		Path:        photoEndpoint,
		RawBody:     buf.Bytes(),
		ContentType: writer.FormDataContentType(),
	})
	if err != nil {
		return nil, err
	}
	return u.storeUser(res)
}

// storeUser decodes the profile payload, writes it through the session store
// (which normalizes photo_url and emits userUpdated) and returns the
// normalized profile.
func (u *userService) storeUser(res *Result) (*UserProfile, error) {
	var user UserProfile
	if err := res.Decode(&user); err != nil {
		return nil, errors.Wrap(err, "failed to decode user profile")
	}
	u.client.store.SetUser(&user)
	return u.client.store.User(), nil
}
