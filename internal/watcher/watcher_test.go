package watcher

import (
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/diegocamara89/meu-venom-bot/internal/configstore"
	"github.com/diegocamara89/meu-venom-bot/internal/model"
)

func TestWatcher_ReloadsChangedDocument(t *testing.T) {
	dir := t.TempDir()
	store, err := configstore.New(dir, zaptest.NewLogger(t))
	require.NoError(t, err)

	var whitelist, webhooks int32
	w, err := New(dir, map[string]ReloadFunc{
		configstore.Whitelist: func() error { atomic.AddInt32(&whitelist, 1); return nil },
		configstore.Webhooks:  func() error { atomic.AddInt32(&webhooks, 1); return nil },
	}, zaptest.NewLogger(t))
	require.NoError(t, err)
	w.SetDebounceDuration(20 * time.Millisecond)
	require.NoError(t, w.Start())
	defer w.Stop()

	require.NoError(t, store.Write(configstore.Whitelist, model.WhitelistDocument{Numbers: []string{"1"}}))

	assert.Eventually(t, func() bool { return atomic.LoadInt32(&whitelist) >= 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Zero(t, atomic.LoadInt32(&webhooks))
}

func TestWatcher_DebouncesBursts(t *testing.T) {
	dir := t.TempDir()
	var calls int32
	w, err := New(dir, map[string]ReloadFunc{
		configstore.Whitelist: func() error { atomic.AddInt32(&calls, 1); return nil },
	}, zaptest.NewLogger(t))
	require.NoError(t, err)
	w.SetDebounceDuration(300 * time.Millisecond)
	require.NoError(t, w.Start())
	defer w.Stop()

	path := filepath.Join(dir, configstore.Whitelist)
	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(path, []byte(`{"numbers":[]}`), 0o644))
		time.Sleep(10 * time.Millisecond)
	}

	time.Sleep(800 * time.Millisecond)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestWatcher_IgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	var calls int32
	w, err := New(dir, map[string]ReloadFunc{
		configstore.Whitelist: func() error { atomic.AddInt32(&calls, 1); return errors.New("unused") },
	}, zaptest.NewLogger(t))
	require.NoError(t, err)
	w.SetDebounceDuration(10 * time.Millisecond)
	require.NoError(t, w.Start())

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))
	time.Sleep(200 * time.Millisecond)
	require.NoError(t, w.Stop())

	assert.Zero(t, atomic.LoadInt32(&calls))
}

func TestWatcher_StartFailsOnMissingDir(t *testing.T) {
	w, err := New(filepath.Join(t.TempDir(), "missing"), nil, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.Error(t, w.Start())
	assert.NoError(t, w.watcher.Close())
}
