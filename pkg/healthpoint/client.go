package healthpoint

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/healthpoint/healthpoint-go/internal/logging"
	"github.com/healthpoint/healthpoint-go/internal/storage"
)

const (
	// DefaultBaseURL is the default HealthPoint API base URL
	DefaultBaseURL = "http://localhost:8000/api/v1"

	// DefaultTimeout is the default per-call HTTP timeout
	DefaultTimeout = 10 * time.Second

	// UserAgent is the user agent string
	UserAgent = "healthpoint-go/1.0.0"
)

// Client is the main HealthPoint API client
type Client struct {
	// Service interfaces
	Auth  AuthService
	Users UserService

	// Events broadcasts logout, tokensUpdated and userUpdated to the
	// embedding application.
	Events *EventBus

	// Internal fields
	baseURL     string
	apiOrigin   string
	httpClient  *http.Client
	store       *SessionStore
	coordinator *RefreshCoordinator
	pipeline    *pipeline
	options     *ClientOptions
	watchCancel context.CancelFunc
}

// ClientOptions configures the client
type ClientOptions struct {
	// BaseURL overrides the default API base URL
	BaseURL string

	// HTTPClient allows using a custom HTTP client
	HTTPClient *http.Client

	// Timeout sets the HTTP client timeout
	Timeout time.Duration

	// Storage supplies a session storage backend. When nil, SessionDir
	// selects a file backend; with both unset sessions live in memory only.
	Storage storage.Backend

	// SessionDir is the directory for file-backed session persistence
	SessionDir string

	// WatchInterval enables polling for session changes written by other
	// processes sharing SessionDir. Zero disables the watcher.
	WatchInterval time.Duration

	// Logger for debug logging; defaults to a zerolog logger at warn level
	Logger Logger

	// Notifier receives default failure notifications; defaults to logging
	Notifier Notifier

	// RetryConfig configures retry behavior for API calls
	RetryConfig *RetryConfig

	// Hooks for observability
	Hooks *Hooks

	// SentryDSN enables Sentry error tracking when set
	SentryDSN string

	// SentryOptions allows custom Sentry configuration
	SentryOptions *sentry.ClientOptions
}

// NewClient creates a new HealthPoint client
func NewClient(opts *ClientOptions) (*Client, error) {
	if opts == nil {
		opts = &ClientOptions{}
	}

	// Initialize Sentry if DSN is provided
	if opts.SentryDSN != "" || opts.SentryOptions != nil {
		sentryOpts := sentry.ClientOptions{}
		if opts.SentryOptions != nil {
			sentryOpts = *opts.SentryOptions
		}
		if opts.SentryDSN != "" {
			sentryOpts.Dsn = opts.SentryDSN
		}
		if sentryOpts.Environment == "" {
			sentryOpts.Environment = "production"
		}
		if err := sentry.Init(sentryOpts); err != nil {
			// Log error but don't fail client creation
			if opts.Logger != nil {
				opts.Logger.Error("Failed to initialize Sentry", "error", err)
			}
		}
	}

	// Set defaults
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Logger == nil {
		opts.Logger = logging.New(os.Stderr, zerolog.WarnLevel)
	}
	if opts.Notifier == nil {
		opts.Notifier = &loggingNotifier{logger: opts.Logger}
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{
			Timeout: DefaultTimeout,
		}
	}
	if opts.Timeout > 0 {
		opts.HTTPClient.Timeout = opts.Timeout
	}

	backend := opts.Storage
	var watchCancel context.CancelFunc
	if backend == nil {
		if opts.SessionDir != "" {
			fileBackend, err := storage.NewFile(opts.SessionDir)
			if err != nil {
				return nil, err
			}
			if opts.WatchInterval > 0 {
				ctx, cancel := context.WithCancel(context.Background())
				watchCancel = cancel
				go fileBackend.StartWatcher(ctx, opts.WatchInterval)
			}
			backend = fileBackend
		} else {
			backend = storage.NewMemory()
		}
	}

	apiOrigin := deriveAPIOrigin(opts.BaseURL)

	bus := NewEventBus(opts.Logger)
	store := NewSessionStore(backend, bus, opts.Logger, apiOrigin)

	// Every call carries a stable device identity.
	defaultHeaders := map[string]string{
		"User-Agent":  UserAgent,
		"device-uuid": uuid.New().String(),
	}

	coordinator := newRefreshCoordinator(opts.BaseURL, store, bus, opts.Notifier, opts.Logger, defaultHeaders)

	pipe := newPipeline(&pipelineOptions{
		BaseURL:     opts.BaseURL,
		HTTPClient:  opts.HTTPClient,
		RetryConfig: opts.RetryConfig,
		Store:       store,
		Bus:         bus,
		Coordinator: coordinator,
		Notifier:    opts.Notifier,
		Logger:      opts.Logger,
		Hooks:       opts.Hooks,
		Headers:     defaultHeaders,
	})

	c := &Client{
		Events:      bus,
		baseURL:     opts.BaseURL,
		apiOrigin:   apiOrigin,
		httpClient:  opts.HTTPClient,
		store:       store,
		coordinator: coordinator,
		pipeline:    pipe,
		options:     opts,
		watchCancel: watchCancel,
	}

	c.initServices()

	return c, nil
}

// initServices initializes all service implementations
func (c *Client) initServices() {
	c.Auth = &authService{client: c}
	c.Users = &userService{client: c}
}

// Session returns the current session, or nil when signed out.
func (c *Client) Session() *Session {
	return c.store.Session()
}

// Store exposes the session store for session-state reads and language
// preference handling.
func (c *Client) Store() *SessionStore {
	return c.store
}

// Close stops the storage watcher and flushes any pending Sentry events.
func (c *Client) Close() {
	if c.watchCancel != nil {
		c.watchCancel()
	}
	sentry.Flush(2 * time.Second)
}

// loggingNotifier is the default Notifier: it records notifications on the
// client logger so headless consumers still see them.
type loggingNotifier struct {
	logger Logger
}

func (n *loggingNotifier) Error(messageKey, fallback string) {
	if n.logger != nil {
		n.logger.Warn("notification", "level", "error", "messageKey", messageKey, "message", fallback)
	}
}

func (n *loggingNotifier) Success(messageKey, fallback string) {
	if n.logger != nil {
		n.logger.Info("notification", "level", "success", "messageKey", messageKey, "message", fallback)
	}
}
