package registry

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// mockHandle implements Handle for testing.
type mockHandle struct {
	mu      sync.Mutex
	killed  bool
	killErr error
}

func (m *mockHandle) Kill() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.killed = true

	return m.killErr
}

func (m *mockHandle) wasKilled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.killed
}

func TestProcessRegistryRegisterUnregister(t *testing.T) {
	r := NewProcessRegistry()

	r.Register("a", &mockHandle{})
	r.Register("b", &mockHandle{})
	require.Equal(t, 2, r.Len())

	r.Unregister("a")
	require.Equal(t, 1, r.Len())

	// Unregister is idempotent.
	r.Unregister("a")
	r.Unregister("missing")
	require.Equal(t, 1, r.Len())
}

func TestProcessRegistryReplaceHandle(t *testing.T) {
	r := NewProcessRegistry()

	first := &mockHandle{}
	second := &mockHandle{}

	r.Register("a", first)
	r.Register("a", second)
	require.Equal(t, 1, r.Len())

	r.KillAll()
	require.False(t, first.wasKilled())
	require.True(t, second.wasKilled())
}

func TestProcessRegistryKillAll(t *testing.T) {
	r := NewProcessRegistry()

	handles := []*mockHandle{{}, {}, {killErr: errors.New("already exited")}}
	for i, h := range handles {
		r.Register(string(rune('a'+i)), h)
	}

	killed := r.KillAll()
	require.Equal(t, 3, killed)
	require.Equal(t, 0, r.Len())

	for _, h := range handles {
		require.True(t, h.wasKilled())
	}

	// A second pass kills nothing.
	require.Equal(t, 0, r.KillAll())
}

func TestProcessRegistryConcurrentAccess(t *testing.T) {
	r := NewProcessRegistry()

	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)

		go func(n int) {
			defer wg.Done()

			id := string(rune('a' + n%10))
			r.Register(id, &mockHandle{})
			r.Unregister(id)
		}(i)
	}

	wg.Wait()
	require.Equal(t, 0, r.Len())
}
