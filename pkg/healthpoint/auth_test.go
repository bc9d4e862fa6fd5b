package healthpoint

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthService_Login(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var creds Credentials
		require.NoError(t, json.NewDecoder(r.Body).Decode(&creds))
		assert.Equal(t, "alice", creds.Username)
		assert.Equal(t, "s3cret", creds.Password)

		writeJSON(w, 200, `{"success":true,"data":{
			"user":{"id":"u1","username":"alice","name":"Alice","photo_url":"/media/u1.png"},
			"tokens":{"access_token":"A1","refresh_token":"R1","token_type":"bearer"}
		}}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client, _, _ := newTestClient(t, srv.URL)

	var tokenEvents, userEvents int
	client.Events.OnTokensUpdated(func(*Tokens) { tokenEvents++ })
	client.Events.OnUserUpdated(func(*UserProfile) { userEvents++ })

	user, err := client.Auth.Login(context.Background(), &Credentials{Username: "alice", Password: "s3cret"})
	require.NoError(t, err)

	assert.Equal(t, "u1", user.ID)
	assert.Equal(t, srv.URL+"/media/u1.png", user.PhotoURL)

	session := client.Session()
	require.NotNil(t, session)
	assert.Equal(t, "A1", session.Tokens.AccessToken)
	assert.Equal(t, "alice", session.User.Username)

	assert.Equal(t, 1, tokenEvents)
	assert.Equal(t, 1, userEvents)
}

func TestAuthService_LoginInvalidCredentials(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/login", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 401, `{"success":false,"error":{"code":"INVALID_CREDENTIALS","message":"Incorrect username or password"}}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client, _, _ := newTestClient(t, srv.URL)

	_, err := client.Auth.Login(context.Background(), &Credentials{Username: "alice", Password: "wrong"})
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, KeyInvalidCredentials, apiErr.MessageKey)
	assert.Nil(t, client.Session())
}

func TestAuthService_SignupConflict(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/signup", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 409, `{"success":false,"error":{"code":"CONFLICT","message":"Username already exists"}}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client, _, _ := newTestClient(t, srv.URL)

	_, err := client.Auth.Signup(context.Background(), &SignupParams{Username: "alice", Password: "s3cret"})
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, KeyUsernameExists, apiErr.MessageKey)
}

func TestAuthService_Logout(t *testing.T) {
	var logoutCalls int
	var gotAuth string

	mux := http.NewServeMux()
	mux.HandleFunc("/auth/logout", func(w http.ResponseWriter, r *http.Request) {
		logoutCalls++
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusNoContent)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client, _, _ := newTestClient(t, srv.URL)
	seedSession(client, "A1", "R1")

	var logouts int
	client.Events.OnLogout(func() { logouts++ })

	require.NoError(t, client.Auth.Logout(context.Background()))

	assert.Equal(t, 1, logoutCalls)
	assert.Equal(t, "Bearer A1", gotAuth)
	assert.Nil(t, client.Session())
	assert.Equal(t, 1, logouts)
}

func TestAuthService_LogoutServerFailureStillClears(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/logout", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 500, `{"success":false,"error":{"message":"boom"}}`)
	})
	mux.HandleFunc("/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		t.Error("logout must not trigger a refresh")
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client, _, notifier := newTestClient(t, srv.URL)
	seedSession(client, "A1", "R1")

	var logouts int
	client.Events.OnLogout(func() { logouts++ })

	require.NoError(t, client.Auth.Logout(context.Background()))

	assert.Nil(t, client.Session())
	assert.Equal(t, 1, logouts)
	// Logout suppresses its own failure notification.
	assert.Empty(t, notifier.errorKeys())
}

func TestAuthService_Bootstrap(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/users/me", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer A1" {
			writeJSON(w, 401, `{"success":false,"error":{"message":"expired"}}`)
			return
		}
		writeJSON(w, 200, `{"success":true,"data":{"id":"u1","username":"alice"}}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client, _, _ := newTestClient(t, srv.URL)

	// Without a session, Bootstrap is a no-op.
	user, err := client.Auth.Bootstrap(context.Background())
	require.NoError(t, err)
	assert.Nil(t, user)

	seedSession(client, "A1", "R1")
	user, err = client.Auth.Bootstrap(context.Background())
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, "alice", user.Username)
}

func TestAuthService_BootstrapClearsStaleSession(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/users/me", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 403, `{"success":false,"error":{"message":"account disabled"}}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client, _, _ := newTestClient(t, srv.URL)
	seedSession(client, "A1", "R1")

	_, err := client.Auth.Bootstrap(context.Background())
	require.Error(t, err)
	assert.Nil(t, client.Session())
}

func TestAuthService_ForgotPassword(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/forgot-password", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "alice", body["username"])
		writeJSON(w, 200, `{"success":true,"data":null}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client, _, _ := newTestClient(t, srv.URL)
	require.NoError(t, client.Auth.ForgotPassword(context.Background(), "alice"))
}
