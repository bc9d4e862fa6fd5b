package healthpoint

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/pkg/errors"
)

const (
	refreshEndpoint = "/auth/refresh"

	// refreshTimeout bounds the refresh call on its own; a timed-out refresh
	// rejects every queued waiter as a network-class failure.
	refreshTimeout = 10 * time.Second
)

type refreshResult struct {
	token string
	err   error
}

// RefreshCoordinator exchanges the refresh token for new credentials with a
// single-flight guarantee: at most one refresh call is outstanding at any
// time, and callers arriving while one is in flight wait on its result.
// Waiters are resolved in FIFO enqueue order.
//
// The coordinator calls the refresh endpoint directly rather than through
// the request pipeline, so a 401 from the refresh endpoint itself can never
// recurse into another refresh.
type RefreshCoordinator struct {
	baseURL    string
	httpClient *http.Client
	store      *SessionStore
	bus        *EventBus
	notifier   Notifier
	logger     Logger
	headers    map[string]string

	mu         sync.Mutex
	refreshing bool
	queue      []chan refreshResult
}

func newRefreshCoordinator(baseURL string, store *SessionStore, bus *EventBus, notifier Notifier, logger Logger, headers map[string]string) *RefreshCoordinator {
	return &RefreshCoordinator{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: refreshTimeout},
		store:      store,
		bus:        bus,
		notifier:   notifier,
		logger:     logger,
		headers:    headers,
	}
}

// Refresh returns a fresh access token. If a refresh is already in flight
// the call joins its waiter queue and shares the outcome; otherwise it
// performs the network exchange itself and settles every waiter that
// arrived in the meantime, first enqueued first.
func (c *RefreshCoordinator) Refresh(ctx context.Context) (string, error) {
	c.mu.Lock()
	if c.refreshing {
		waiter := make(chan refreshResult, 1)
		c.queue = append(c.queue, waiter)
		c.mu.Unlock()

		select {
		case res := <-waiter:
			return res.token, res.err
		case <-ctx.Done():
			return "", errors.Wrap(ctx.Err(), "canceled while waiting for token refresh")
		}
	}
	c.refreshing = true
	c.mu.Unlock()

	token, err := c.doRefresh()

	c.mu.Lock()
	waiters := c.queue
	c.queue = nil
	c.refreshing = false
	c.mu.Unlock()

	for _, waiter := range waiters {
		waiter <- refreshResult{token: token, err: err}
	}

	return token, err
}

// doRefresh performs one refresh exchange. Any failure terminates the
// session: the store is cleared, logout is broadcast, and a session-expired
// notification is surfaced.
func (c *RefreshCoordinator) doRefresh() (string, error) {
	refreshToken := c.store.RefreshToken()
	if refreshToken == "" {
		c.terminateSession(false)
		return "", &APIError{
			MessageKey: KeySessionExpired,
			Message:    "Missing refresh token",
			Err:        ErrNotAuthenticated,
		}
	}

	tokens, err := c.exchange(refreshToken)
	if err != nil {
		if c.logger != nil {
			c.logger.Warn("token refresh failed", "error", err)
		}
		c.terminateSession(true)
		return "", err
	}

	// SetTokens also broadcasts tokensUpdated.
	c.store.SetTokens(tokens)

	if c.logger != nil {
		c.logger.Debug("token refresh succeeded")
	}
	return tokens.AccessToken, nil
}

func (c *RefreshCoordinator) terminateSession(notify bool) {
	c.store.Clear()
	c.bus.EmitLogout()
	if notify && c.notifier != nil {
		c.notifier.Error(KeySessionExpired, "Your session has expired. Please sign in again.")
	}
}

// exchange performs the POST /auth/refresh network call. It deliberately
// uses its own context and timeout: the outcome is shared by every queued
// waiter, so no single caller's cancellation may abort it.
func (c *RefreshCoordinator) exchange(refreshToken string) (*Tokens, error) {
	ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
	defer cancel()

	body, err := json.Marshal(map[string]string{"refresh_token": refreshToken})
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal refresh request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+refreshEndpoint, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create refresh request")
	}
	req.Header.Set("Accept", contentTypeJSON)
	req.Header.Set("Content-Type", contentTypeJSON)
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, mapAPIError(&httpError{err: errors.Wrap(err, "refresh request failed")})
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, mapAPIError(&httpError{err: errors.Wrap(err, "failed to read refresh response")})
	}

	env := parseEnvelope(respBody)
	if resp.StatusCode != http.StatusOK {
		return nil, mapAPIError(&httpError{status: resp.StatusCode, body: env.Error, fallbackMsg: env.Message})
	}

	tokens := decodeRefreshTokens(env.Data)
	if tokens == nil || tokens.AccessToken == "" {
		return nil, &APIError{
			MessageKey: KeySessionExpired,
			Message:    "Invalid refresh response",
			Status:     resp.StatusCode,
			Err:        ErrInvalidRefresh,
		}
	}
	return tokens, nil
}

// decodeRefreshTokens accepts the data payload either as the token object
// itself or wrapped in a "tokens" field.
func decodeRefreshTokens(data json.RawMessage) *Tokens {
	if len(data) == 0 {
		return nil
	}
	var direct Tokens
	if err := json.Unmarshal(data, &direct); err == nil && direct.AccessToken != "" {
		return &direct
	}
	var wrapped struct {
		Tokens *Tokens `json:"tokens"`
	}
	if err := json.Unmarshal(data, &wrapped); err == nil && wrapped.Tokens != nil {
		return wrapped.Tokens
	}
	return nil
}
