// Package storage provides the persisted key/value backends the session
// store sits on. A Backend is the Go analogue of browser localStorage: a
// handful of string keys, synchronous writes, and change notifications for
// writes made by someone else (another process sharing the same store).
package storage

// ChangeFunc receives a change made outside this backend instance. A nil
// value means the key was removed.
type ChangeFunc func(key string, value []byte)

// Backend is a minimal persisted key/value store.
//
// Subscribers are only notified of external changes; a backend never echoes
// its own Set/Remove calls back to its subscribers, matching the semantics
// of browser storage events (which fire in every tab except the writer).
type Backend interface {
	// Get returns the stored value, or nil if the key is absent.
	Get(key string) ([]byte, error)

	// Set stores value under key, replacing any previous value.
	Set(key string, value []byte) error

	// Remove deletes the key. Removing an absent key is a no-op.
	Remove(key string) error

	// Subscribe registers fn for external-change notifications and returns
	// an unsubscribe function.
	Subscribe(fn ChangeFunc) (unsubscribe func())
}
