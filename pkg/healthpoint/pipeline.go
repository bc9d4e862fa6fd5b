package healthpoint

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/pkg/errors"
)

const (
	contentTypeJSON = "application/json"

	authHeaderKey = "Authorization"
	langHeaderKey = "Accept-Language"
)

// Request describes one outbound API call. A Request is single-use: the
// pipeline tracks its retry state on the value, so callers build a fresh one
// per call.
type Request struct {
	Method string
	Path   string
	Query  url.Values

	// Body is JSON-marshaled. RawBody/ContentType take precedence and carry
	// pre-encoded payloads such as multipart uploads.
	Body        interface{}
	RawBody     []byte
	ContentType string

	// Headers are merged over the pipeline defaults. A caller-set
	// Authorization header suppresses automatic token attachment.
	Headers map[string]string

	// SkipAuthRefresh opts this call out of the 401 refresh-and-replay path
	// (the logout call uses this; the refresh call never enters the
	// pipeline at all).
	SkipAuthRefresh bool

	// SuppressNotify silences the default failure notification for this
	// call. Network failures still notify.
	SuppressNotify bool

	// retried marks that this call has already been replayed once after a
	// refresh. A retried call that fails with 401 again is rejected, never
	// refreshed a second time.
	retried bool

	// encoded caches the marshaled Body so a replay sends identical bytes.
	encoded []byte
}

// Result is the unwrapped success payload: either the envelope's data field
// (or the raw body when the envelope has none), or an explicit empty marker
// for bodyless responses such as 204.
type Result struct {
	Empty bool
	Value json.RawMessage
}

// Decode unmarshals the payload into v.
func (r *Result) Decode(v interface{}) error {
	if r == nil || r.Empty || len(r.Value) == 0 {
		return ErrEmptyResponse
	}
	return errors.Wrap(json.Unmarshal(r.Value, v), "failed to decode response")
}

// pipeline is the authenticated request path every API call goes through:
// attach credentials and language, send, unwrap the envelope, and on a 401
// drive the refresh coordinator and replay the call exactly once.
type pipeline struct {
	baseURL     string
	httpClient  *http.Client
	retryClient *retryablehttp.Client
	store       *SessionStore
	bus         *EventBus
	coordinator *RefreshCoordinator
	notifier    Notifier
	logger      Logger
	hooks       *Hooks
	headers     map[string]string
}

type pipelineOptions struct {
	BaseURL     string
	HTTPClient  *http.Client
	RetryConfig *RetryConfig
	Store       *SessionStore
	Bus         *EventBus
	Coordinator *RefreshCoordinator
	Notifier    Notifier
	Logger      Logger
	Hooks       *Hooks
	Headers     map[string]string
}

func newPipeline(opts *pipelineOptions) *pipeline {
	var retryClient *retryablehttp.Client
	if opts.RetryConfig != nil {
		retryClient = retryablehttp.NewClient()
		retryClient.HTTPClient = opts.HTTPClient
		retryClient.RetryMax = opts.RetryConfig.MaxRetries
		retryClient.RetryWaitMin = opts.RetryConfig.RetryWait
		retryClient.RetryWaitMax = opts.RetryConfig.MaxWait
		if opts.Logger != nil {
			retryClient.Logger = &retryLogger{logger: opts.Logger}
		}
	}

	return &pipeline{
		baseURL:     opts.BaseURL,
		httpClient:  opts.HTTPClient,
		retryClient: retryClient,
		store:       opts.Store,
		bus:         opts.Bus,
		coordinator: opts.Coordinator,
		notifier:    opts.Notifier,
		logger:      opts.Logger,
		hooks:       opts.Hooks,
		headers:     opts.Headers,
	}
}

// Send executes the request and returns the unwrapped payload. Recoverable
// 401s are handled internally (refresh + single replay) and never reach the
// caller; every terminal failure comes back as a normalized *APIError.
func (p *pipeline) Send(ctx context.Context, req *Request) (*Result, error) {
	httpReq, err := p.buildRequest(ctx, req)
	if err != nil {
		return nil, err
	}

	if p.hooks != nil && p.hooks.OnRequest != nil {
		p.hooks.OnRequest(ctx, httpReq)
	}
	if p.logger != nil {
		p.logger.Debug("API request", "method", req.Method, "path", req.Path, "retried", req.retried)
	}

	start := time.Now()
	resp, err := p.doRequest(httpReq)
	duration := time.Since(start)

	if err != nil {
		// No response received at all.
		if isTimeout(err) {
			p.notify(KeyTimeout, "The request timed out.")
		} else {
			p.notify(KeyNetwork, "Network error. Check your connection.")
		}
		norm := mapAPIError(&httpError{err: err})
		p.reportError(ctx, norm)
		return nil, norm
	}
	defer resp.Body.Close()

	if p.hooks != nil && p.hooks.OnResponse != nil {
		p.hooks.OnResponse(ctx, resp, duration)
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		norm := mapAPIError(&httpError{err: errors.Wrap(err, "failed to read response")})
		p.reportError(ctx, norm)
		return nil, norm
	}

	if p.logger != nil {
		p.logger.Debug("API response", "status", resp.StatusCode, "duration", duration, "size", len(respBody))
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return unwrapResponse(resp.StatusCode, respBody), nil
	}

	env := parseEnvelope(respBody)
	cause := &httpError{status: resp.StatusCode, body: env.Error, fallbackMsg: env.Message}

	if resp.StatusCode == http.StatusUnauthorized && !req.retried && !req.SkipAuthRefresh {
		return p.refreshAndReplay(ctx, req, cause)
	}

	norm := mapAPIError(cause)
	if !req.SuppressNotify && (norm.Status == 0 || norm.Status >= 500) {
		p.notify(norm.MessageKey, norm.Message)
	}
	p.reportError(ctx, norm)
	return nil, norm
}

// refreshAndReplay drives the coordinator and re-enters Send exactly once.
// The retried flag makes the one-shot bound structural: a replayed call can
// never take this path again.
func (p *pipeline) refreshAndReplay(ctx context.Context, req *Request, cause *httpError) (*Result, error) {
	if p.store.RefreshToken() == "" {
		// Nothing to refresh with: terminate the session locally.
		p.store.Clear()
		p.bus.EmitLogout()
		norm := mapAPIError(cause)
		p.reportError(ctx, norm)
		return nil, norm
	}

	token, err := p.coordinator.Refresh(ctx)
	if err != nil {
		// The coordinator already cleared the session and broadcast logout.
		p.reportError(ctx, err)
		return nil, err
	}

	req.retried = true
	if req.Headers == nil {
		req.Headers = make(map[string]string)
	}
	req.Headers[authHeaderKey] = "Bearer " + token

	return p.Send(ctx, req)
}

func (p *pipeline) buildRequest(ctx context.Context, req *Request) (*http.Request, error) {
	target := p.baseURL + req.Path
	if len(req.Query) > 0 {
		target += "?" + req.Query.Encode()
	}

	var body io.Reader
	contentType := ""
	switch {
	case req.RawBody != nil:
		body = bytes.NewReader(req.RawBody)
		contentType = req.ContentType
	case req.Body != nil:
		if req.encoded == nil {
			data, err := json.Marshal(req.Body)
			if err != nil {
				return nil, errors.Wrap(err, "failed to marshal request body")
			}
			req.encoded = data
		}
		body = bytes.NewReader(req.encoded)
		contentType = contentTypeJSON
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target, body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}

	httpReq.Header.Set("Accept", contentTypeJSON)
	for k, v := range p.headers {
		httpReq.Header.Set(k, v)
	}
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	if httpReq.Header.Get(authHeaderKey) == "" {
		if token := p.store.AccessToken(); token != "" {
			httpReq.Header.Set(authHeaderKey, "Bearer "+token)
		}
	}
	if lang := p.store.PreferredLanguage(); lang != "" {
		httpReq.Header.Set(langHeaderKey, lang)
	}

	return httpReq, nil
}

// doRequest executes the HTTP request with retry if configured
func (p *pipeline) doRequest(req *http.Request) (*http.Response, error) {
	if p.retryClient != nil {
		retryReq, err := retryablehttp.FromRequest(req)
		if err != nil {
			return nil, err
		}
		return p.retryClient.Do(retryReq)
	}
	return p.httpClient.Do(req)
}

// unwrapResponse converts a successful HTTP response into the tagged Result.
func unwrapResponse(status int, body []byte) *Result {
	if status == http.StatusNoContent || len(bytes.TrimSpace(body)) == 0 {
		return &Result{Empty: true}
	}
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return &Result{Value: json.RawMessage(body)}
	}
	if env.Data != nil {
		return &Result{Value: env.Data}
	}
	return &Result{Value: json.RawMessage(body)}
}

func (p *pipeline) notify(key, fallback string) {
	if p.notifier != nil {
		p.notifier.Error(key, fallback)
	}
}

// reportError feeds terminal failures to the error hook and Sentry. Both are
// no-ops when not configured.
func (p *pipeline) reportError(ctx context.Context, err error) {
	if p.hooks != nil && p.hooks.OnError != nil {
		p.hooks.OnError(ctx, err)
	}
	if hub := sentry.GetHubFromContext(ctx); hub != nil {
		hub.CaptureException(err)
	} else {
		sentry.CaptureException(err)
	}
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// retryLogger adapts our logger to retryablehttp
type retryLogger struct {
	logger Logger
}

func (l *retryLogger) Error(msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, keysAndValues...)
}

func (l *retryLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Info(msg, keysAndValues...)
}

func (l *retryLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l *retryLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.logger.Warn(msg, keysAndValues...)
}
