package healthpoint

import "sync"

// EventBus carries session-change notifications to the rest of the
// application: logout, tokensUpdated and userUpdated. Every subscribed part
// of the app can react uniformly (e.g. redirect on logout) regardless of
// which call triggered the change.
//
// Emission takes a snapshot of the current subscribers first, so a callback
// that subscribes or unsubscribes during delivery does not affect the
// in-progress pass. A panicking callback is recovered and logged and never
// prevents the remaining callbacks from running.
type EventBus struct {
	mu     sync.Mutex
	logger Logger
	nextID int

	logoutSubs map[int]func()
	tokenSubs  map[int]func(*Tokens)
	userSubs   map[int]func(*UserProfile)
}

// NewEventBus creates an event bus. logger may be nil.
func NewEventBus(logger Logger) *EventBus {
	return &EventBus{
		logger:     logger,
		logoutSubs: make(map[int]func()),
		tokenSubs:  make(map[int]func(*Tokens)),
		userSubs:   make(map[int]func(*UserProfile)),
	}
}

// OnLogout subscribes to logout events and returns an unsubscribe function.
func (b *EventBus) OnLogout(fn func()) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	b.logoutSubs[id] = fn
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.logoutSubs, id)
	}
}

// OnTokensUpdated subscribes to token updates.
func (b *EventBus) OnTokensUpdated(fn func(*Tokens)) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	b.tokenSubs[id] = fn
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.tokenSubs, id)
	}
}

// OnUserUpdated subscribes to user profile updates.
func (b *EventBus) OnUserUpdated(fn func(*UserProfile)) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	b.userSubs[id] = fn
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.userSubs, id)
	}
}

// EmitLogout notifies all logout subscribers.
func (b *EventBus) EmitLogout() {
	b.mu.Lock()
	subs := make([]func(), 0, len(b.logoutSubs))
	for _, fn := range b.logoutSubs {
		subs = append(subs, fn)
	}
	b.mu.Unlock()

	for _, fn := range subs {
		b.invoke("logout", func() { fn() })
	}
}

// EmitTokensUpdated notifies all token subscribers.
func (b *EventBus) EmitTokensUpdated(tokens *Tokens) {
	b.mu.Lock()
	subs := make([]func(*Tokens), 0, len(b.tokenSubs))
	for _, fn := range b.tokenSubs {
		subs = append(subs, fn)
	}
	b.mu.Unlock()

	for _, fn := range subs {
		fn := fn
		b.invoke("tokensUpdated", func() { fn(tokens) })
	}
}

// EmitUserUpdated notifies all user subscribers.
func (b *EventBus) EmitUserUpdated(user *UserProfile) {
	b.mu.Lock()
	subs := make([]func(*UserProfile), 0, len(b.userSubs))
	for _, fn := range b.userSubs {
		subs = append(subs, fn)
	}
	b.mu.Unlock()

	for _, fn := range subs {
		fn := fn
		b.invoke("userUpdated", func() { fn(user) })
	}
}

func (b *EventBus) invoke(event string, fn func()) {
	defer func() {
		if r := recover(); r != nil && b.logger != nil {
			b.logger.Error("event subscriber panicked", "event", event, "panic", r)
		}
	}()
	fn()
}
