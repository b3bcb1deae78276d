package session

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/harun/hwdesk/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreWatcher(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "session.json")

	st1, err := store.NewFileStore(path)
	require.NoError(t, err)
	st2, err := store.NewFileStore(path)
	require.NoError(t, err)

	watched := NewManager(st1, Options{})
	other := NewManager(st2, Options{})

	w, err := NewStoreWatcher(watched, path, 20*time.Millisecond)
	require.NoError(t, err)
	require.NoError(t, w.Start())
	defer w.Stop()

	t.Run("login elsewhere is picked up", func(t *testing.T) {
		login(ctx, other, "tok-shared")

		require.Eventually(t, func() bool {
			return watched.Token() == "tok-shared"
		}, 5*time.Second, 20*time.Millisecond)
		assert.Equal(t, "2022001", watched.Snapshot().Username)
	})

	t.Run("logout elsewhere is picked up", func(t *testing.T) {
		other.Clear(ctx)

		require.Eventually(t, func() bool {
			return watched.Token() == ""
		}, 5*time.Second, 20*time.Millisecond)
	})
}

func TestNewStoreWatcherRequiresPath(t *testing.T) {
	_, err := NewStoreWatcher(NewManager(store.NewMemoryStore(), Options{}), "", 0)
	assert.Error(t, err)
}
