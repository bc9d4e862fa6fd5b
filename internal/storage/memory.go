package storage

import "sync"

// Memory is an in-process Backend. It backs tests and applications that do
// not want sessions persisted across restarts.
type Memory struct {
	mu          sync.Mutex
	values      map[string][]byte
	subscribers map[int]ChangeFunc
	nextID      int
}

// NewMemory creates an empty in-memory backend.
func NewMemory() *Memory {
	return &Memory{
		values:      make(map[string][]byte),
		subscribers: make(map[int]ChangeFunc),
	}
}

// Get returns the stored value, or nil if absent.
func (m *Memory) Get(key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	if !ok {
		return nil, nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

// Set stores value under key.
func (m *Memory) Set(key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v := make([]byte, len(value))
	copy(v, value)
	m.values[key] = v
	return nil
}

// Remove deletes the key.
func (m *Memory) Remove(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}

// Subscribe registers fn for external-change notifications.
func (m *Memory) Subscribe(fn ChangeFunc) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextID
	m.nextID++
	m.subscribers[id] = fn
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.subscribers, id)
	}
}

// SimulateExternalChange applies a change as if another process wrote it:
// the value is stored (or removed, when nil) and every subscriber is
// notified. This is the test double for a cross-tab storage event.
func (m *Memory) SimulateExternalChange(key string, value []byte) {
	m.mu.Lock()
	if value == nil {
		delete(m.values, key)
	} else {
		v := make([]byte, len(value))
		copy(v, value)
		m.values[key] = v
	}
	subs := make([]ChangeFunc, 0, len(m.subscribers))
	for _, fn := range m.subscribers {
		subs = append(subs, fn)
	}
	m.mu.Unlock()

	for _, fn := range subs {
		fn(key, value)
	}
}
