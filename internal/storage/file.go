package storage

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// DefaultWatchInterval is how often the file watcher polls for changes made
// by other processes.
const DefaultWatchInterval = 2 * time.Second

// File is a Backend that keeps one file per key under a directory. Files are
// written with 0600 permissions and the directory is created with 0700,
// since the values include credentials.
//
// Another process writing to the same directory plays the role of another
// browser tab; StartWatcher turns those writes into Subscribe notifications.
type File struct {
	dir string

	mu          sync.Mutex
	lastSeen    map[string][]byte
	subscribers map[int]ChangeFunc
	nextID      int
}

// NewFile creates a file backend rooted at dir, creating the directory if
// needed.
func NewFile(dir string) (*File, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, errors.Wrap(err, "failed to create storage directory")
	}
	return &File{
		dir:         dir,
		lastSeen:    make(map[string][]byte),
		subscribers: make(map[int]ChangeFunc),
	}, nil
}

// path maps a key to a file name. Keys are dot-separated identifiers; the
// separator is kept as-is since it is filename-safe.
func (f *File) path(key string) string {
	return filepath.Join(f.dir, sanitizeKey(key))
}

func sanitizeKey(key string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, key)
}

// Get returns the stored value, or nil if absent. The mutex spans the read
// and the lastSeen update so the watcher never mistakes our own view of a
// key for an external change.
func (f *File) Get(key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, err := os.ReadFile(f.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			f.lastSeen[key] = nil
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to read storage key")
	}
	f.lastSeen[key] = append([]byte(nil), data...)
	return data, nil
}

// Set stores value under key.
func (f *File) Set(key string, value []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := os.WriteFile(f.path(key), value, 0600); err != nil {
		return errors.Wrap(err, "failed to write storage key")
	}
	f.lastSeen[key] = append([]byte(nil), value...)
	return nil
}

// Remove deletes the key.
func (f *File) Remove(key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := os.Remove(f.path(key)); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "failed to remove storage key")
	}
	f.lastSeen[key] = nil
	return nil
}

// Subscribe registers fn for changes observed by the watcher.
func (f *File) Subscribe(fn ChangeFunc) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextID
	f.nextID++
	f.subscribers[id] = fn
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.subscribers, id)
	}
}

// StartWatcher polls the tracked keys every interval and notifies
// subscribers of values that changed on disk since this backend last read or
// wrote them. It blocks until ctx is done, so callers run it on its own
// goroutine. Only keys previously touched through this backend are watched.
func (f *File) StartWatcher(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultWatchInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			f.pollOnce()
		}
	}
}

func (f *File) pollOnce() {
	type change struct {
		key   string
		value []byte
	}

	f.mu.Lock()
	var changes []change
	for key, prev := range f.lastSeen {
		data, err := os.ReadFile(f.path(key))
		if err != nil {
			if !os.IsNotExist(err) {
				continue
			}
			data = nil
		}
		if bytes.Equal(prev, data) {
			continue
		}
		f.lastSeen[key] = data
		changes = append(changes, change{key: key, value: data})
	}
	subs := make([]ChangeFunc, 0, len(f.subscribers))
	for _, fn := range f.subscribers {
		subs = append(subs, fn)
	}
	f.mu.Unlock()

	for _, c := range changes {
		for _, fn := range subs {
			fn(c.key, c.value)
		}
	}
}
