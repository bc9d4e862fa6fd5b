package healthpoint

import (
	"net/http"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/healthpoint/healthpoint-go/internal/storage"
)

// recordingNotifier captures default notifications for assertions.
type recordingNotifier struct {
	mu     sync.Mutex
	errors []string
}

func (n *recordingNotifier) Error(messageKey, fallback string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.errors = append(n.errors, messageKey)
}

func (n *recordingNotifier) Success(messageKey, fallback string) {}

func (n *recordingNotifier) errorKeys() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, len(n.errors))
	copy(out, n.errors)
	return out
}

// newTestClient builds a client over an in-memory backend pointed at a test
// server.
func newTestClient(t *testing.T, baseURL string) (*Client, *storage.Memory, *recordingNotifier) {
	t.Helper()
	mem := storage.NewMemory()
	notifier := &recordingNotifier{}
	client, err := NewClient(&ClientOptions{
		BaseURL:  baseURL,
		Storage:  mem,
		Notifier: notifier,
	})
	require.NoError(t, err)
	return client, mem, notifier
}

func seedSession(client *Client, access, refresh string) {
	client.store.SetSession(&Session{
		Tokens: &Tokens{AccessToken: access, RefreshToken: refresh, TokenType: "bearer"},
		User:   &UserProfile{ID: "u1", Username: "alice"},
	})
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}
