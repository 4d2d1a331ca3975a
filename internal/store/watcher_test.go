package store

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcher_NotifiesOnExternalWrite(t *testing.T) {
	dir := t.TempDir()

	s, err := New(Config{Dir: dir, FileMode: true})
	require.NoError(t, err)

	var notified atomic.Int32
	w, err := NewWatcher(s, func() { notified.Add(1) })
	require.NoError(t, err)
	defer w.Stop()

	// Another store writing to the same directory stands in for a second
	// process.
	other, err := New(Config{Dir: dir, FileMode: true})
	require.NoError(t, err)
	require.NoError(t, other.Save(sampleRecord("external-user")))

	require.Eventually(t, func() bool {
		return notified.Load() >= 1
	}, 3*time.Second, 50*time.Millisecond, "watcher should fire after an external write")

	// The invalidated cache picks the new record up from disk.
	got, ok := s.Get("external-user")
	require.True(t, ok)
	assert.Equal(t, "external-user", got.AccountID)
}

func TestWatcher_DebouncesBursts(t *testing.T) {
	dir := t.TempDir()

	s, err := New(Config{Dir: dir, FileMode: true})
	require.NoError(t, err)

	var notified atomic.Int32
	w, err := NewWatcher(s, func() { notified.Add(1) })
	require.NoError(t, err)
	defer w.Stop()

	other, err := New(Config{Dir: dir, FileMode: true})
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		require.NoError(t, other.Save(sampleRecord("burst-user")))
	}

	require.Eventually(t, func() bool {
		return notified.Load() >= 1
	}, 3*time.Second, 50*time.Millisecond)

	// A burst of writes within the debounce window collapses to far
	// fewer callbacks than events.
	time.Sleep(2 * debounceDelay)
	assert.LessOrEqual(t, notified.Load(), int32(2))
}

func TestWatcher_StopIsIdempotent(t *testing.T) {
	s, err := New(Config{Dir: t.TempDir(), FileMode: true})
	require.NoError(t, err)

	w, err := NewWatcher(s, nil)
	require.NoError(t, err)

	w.Stop()
	w.Stop()
}
