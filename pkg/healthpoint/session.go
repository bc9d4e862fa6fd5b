package healthpoint

import (
	"encoding/json"
	"strings"
	"sync"

	"github.com/healthpoint/healthpoint-go/internal/storage"
)

// Storage keys. Removing a key is equivalent to storing null.
const (
	tokensKey   = "healthpoint.tokens"
	userKey     = "healthpoint.user"
	languageKey = "healthpoint.lang"

	defaultLanguage = "en"
)

// SessionStore owns the persisted session: the token pair and the user
// profile. It keeps an in-process cache seeded lazily from the backend on
// first read, persists synchronously on every write, and overwrites the
// cache wholesale when the backend reports a change made by another process
// (last writer wins).
//
// No other component touches the storage backend directly.
type SessionStore struct {
	backend   storage.Backend
	bus       *EventBus
	logger    Logger
	apiOrigin string

	mu     sync.Mutex
	loaded bool
	tokens *Tokens
	user   *UserProfile
}

// NewSessionStore creates a session store over the given backend and wires
// it to external-change notifications.
func NewSessionStore(backend storage.Backend, bus *EventBus, logger Logger, apiOrigin string) *SessionStore {
	s := &SessionStore{
		backend:   backend,
		bus:       bus,
		logger:    logger,
		apiOrigin: apiOrigin,
	}
	backend.Subscribe(s.applyExternalChange)
	return s
}

// Tokens returns the current token pair, or nil when signed out.
func (s *SessionStore) Tokens() *Tokens {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLoaded()
	return cloneTokens(s.tokens)
}

// User returns the current user profile, or nil when signed out.
func (s *SessionStore) User() *UserProfile {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLoaded()
	return cloneUser(s.user)
}

// AccessToken returns the current access token, or "" when absent.
func (s *SessionStore) AccessToken() string {
	if t := s.Tokens(); t != nil {
		return t.AccessToken
	}
	return ""
}

// RefreshToken returns the current refresh token, or "" when absent.
func (s *SessionStore) RefreshToken() string {
	if t := s.Tokens(); t != nil {
		return t.RefreshToken
	}
	return ""
}

// SetTokens caches and persists the token pair. A non-nil set emits
// tokensUpdated; nil removes the stored value and emits nothing.
func (s *SessionStore) SetTokens(tokens *Tokens) {
	tokens = cloneTokens(tokens)

	s.mu.Lock()
	s.ensureLoaded()
	s.tokens = tokens
	s.persist(tokensKey, tokens)
	s.mu.Unlock()

	if tokens != nil {
		s.bus.EmitTokensUpdated(cloneTokens(tokens))
	}
}

// SetUser normalizes, caches and persists the user profile. A non-nil set
// emits userUpdated; nil removes the stored value and emits nothing.
func (s *SessionStore) SetUser(user *UserProfile) {
	user = cloneUser(user)
	if user != nil {
		user.PhotoURL = normalizePhotoURL(user.PhotoURL, s.apiOrigin)
	}

	s.mu.Lock()
	s.ensureLoaded()
	s.user = user
	s.persist(userKey, user)
	s.mu.Unlock()

	if user != nil {
		s.bus.EmitUserUpdated(cloneUser(user))
	}
}

// SetSession writes both halves of the session through one operation. A nil
// session clears.
func (s *SessionStore) SetSession(session *Session) {
	if session == nil {
		s.Clear()
		return
	}
	s.SetTokens(session.Tokens)
	s.SetUser(session.User)
}

// Session returns the current session, or nil when both halves are absent.
func (s *SessionStore) Session() *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLoaded()
	if s.tokens == nil && s.user == nil {
		return nil
	}
	return &Session{Tokens: cloneTokens(s.tokens), User: cloneUser(s.user)}
}

// Clear removes tokens and user together. Clearing an already empty store is
// a no-op, so Clear is idempotent. Clear emits nothing: broadcasting logout
// is the caller's responsibility so that the event follows the cleared
// state.
func (s *SessionStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loaded = true
	s.tokens = nil
	s.user = nil
	if err := s.backend.Remove(tokensKey); err != nil && s.logger != nil {
		s.logger.Warn("failed to remove stored tokens", "error", err)
	}
	if err := s.backend.Remove(userKey); err != nil && s.logger != nil {
		s.logger.Warn("failed to remove stored user", "error", err)
	}
}

// PreferredLanguage returns the persisted UI language, defaulting to "en".
func (s *SessionStore) PreferredLanguage() string {
	data, err := s.backend.Get(languageKey)
	if err != nil {
		if s.logger != nil {
			s.logger.Warn("failed to read preferred language", "error", err)
		}
		return defaultLanguage
	}
	lang := strings.TrimSpace(string(data))
	if lang == "" {
		return defaultLanguage
	}
	return lang
}

// SetPreferredLanguage persists the UI language.
func (s *SessionStore) SetPreferredLanguage(lang string) {
	if err := s.backend.Set(languageKey, []byte(lang)); err != nil && s.logger != nil {
		s.logger.Warn("failed to persist preferred language", "error", err)
	}
}

// ensureLoaded seeds the cache from the backend. Callers hold s.mu.
func (s *SessionStore) ensureLoaded() {
	if s.loaded {
		return
	}
	s.tokens = s.readTokens()
	s.user = s.readUser()
	s.loaded = true
}

func (s *SessionStore) readTokens() *Tokens {
	data, err := s.backend.Get(tokensKey)
	if err != nil {
		if s.logger != nil {
			s.logger.Warn("failed to read stored tokens", "error", err)
		}
		return nil
	}
	return parseTokens(data, s.logger)
}

func (s *SessionStore) readUser() *UserProfile {
	data, err := s.backend.Get(userKey)
	if err != nil {
		if s.logger != nil {
			s.logger.Warn("failed to read stored user", "error", err)
		}
		return nil
	}
	return parseUser(data, s.logger)
}

// persist writes value as JSON, or removes the key when value carries a nil
// pointer. Callers hold s.mu.
func (s *SessionStore) persist(key string, value interface{}) {
	remove := false
	switch v := value.(type) {
	case *Tokens:
		remove = v == nil
	case *UserProfile:
		remove = v == nil
	}
	if remove {
		if err := s.backend.Remove(key); err != nil && s.logger != nil {
			s.logger.Warn("failed to remove stored value", "key", key, "error", err)
		}
		return
	}
	data, err := json.Marshal(value)
	if err != nil {
		if s.logger != nil {
			s.logger.Warn("failed to marshal stored value", "key", key, "error", err)
		}
		return
	}
	if err := s.backend.Set(key, data); err != nil && s.logger != nil {
		s.logger.Warn("failed to persist value", "key", key, "error", err)
	}
}

// applyExternalChange overwrites the cache with a value written by another
// process. Whole-value overwrite, no merge.
func (s *SessionStore) applyExternalChange(key string, value []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.loaded {
		// First read will pick the new value up from the backend.
		return
	}
	switch key {
	case tokensKey:
		s.tokens = parseTokens(value, s.logger)
	case userKey:
		s.user = parseUser(value, s.logger)
	}
}

// parseTokens treats absent or malformed JSON as no value, never an error.
func parseTokens(data []byte, logger Logger) *Tokens {
	if len(data) == 0 {
		return nil
	}
	var t Tokens
	if err := json.Unmarshal(data, &t); err != nil {
		if logger != nil {
			logger.Warn("failed to parse stored tokens", "error", err)
		}
		return nil
	}
	return &t
}

func parseUser(data []byte, logger Logger) *UserProfile {
	if len(data) == 0 {
		return nil
	}
	var u UserProfile
	if err := json.Unmarshal(data, &u); err != nil {
		if logger != nil {
			logger.Warn("failed to parse stored user", "error", err)
		}
		return nil
	}
	return &u
}

func cloneTokens(t *Tokens) *Tokens {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

func cloneUser(u *UserProfile) *UserProfile {
	if u == nil {
		return nil
	}
	c := *u
	return &c
}
