package eviction

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/any-hub/tunecache/internal/cache"
	"github.com/any-hub/tunecache/internal/policy"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func put(t *testing.T, store cache.Store, locator cache.Locator, size int64) {
	t.Helper()
	_, err := store.Put(context.Background(), locator, bytes.NewReader(make([]byte, size)), cache.PutOptions{ContentType: "audio/mpeg"})
	require.NoError(t, err)
}

func TestRunPurgesUndersizedEntries(t *testing.T) {
	store, err := cache.NewStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, store.Reset(context.Background(), "v1"))

	threshold := policy.DefaultFullFileThreshold
	put(t, store, cache.MediaLocator("https://h.example/media/001-full.mp3"), threshold)
	put(t, store, cache.MediaLocator("https://h.example/media/002-chunk.mp3"), threshold-1)
	put(t, store, cache.MediaLocator("https://h.example/media/003-tiny.mp3"), 10)
	put(t, store, cache.Locator{Namespace: cache.NamespaceSettings, Key: policy.SettingsKey}, 16)

	engine := New(Options{Store: store, Version: "v1", Logger: quietLogger()})
	report, err := engine.Run(context.Background())
	require.NoError(t, err)

	assert.False(t, report.VersionReset)
	assert.Equal(t, 2, report.Removed)
	assert.Equal(t, threshold-1+10, report.FreedBytes)

	entries, err := store.List(context.Background(), cache.NamespaceMedia)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	for _, entry := range entries {
		assert.GreaterOrEqual(t, entry.SizeBytes, threshold)
	}

	_, err = store.Get(context.Background(), cache.Locator{Namespace: cache.NamespaceSettings, Key: policy.SettingsKey})
	assert.NoError(t, err, "settings namespace is never evicted")
}

func TestRunResetsOnVersionChange(t *testing.T) {
	store, err := cache.NewStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, store.Reset(context.Background(), "old"))
	put(t, store, cache.MediaLocator("https://h.example/media/001-full.mp3"), policy.DefaultFullFileThreshold*2)

	engine := New(Options{Store: store, Version: "new", Logger: quietLogger()})
	report, err := engine.Run(context.Background())
	require.NoError(t, err)

	assert.True(t, report.VersionReset)
	assert.Equal(t, "new", store.Version())
	entries, err := store.List(context.Background(), cache.NamespaceMedia)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestFirstRunResetKeepsUnrelatedFiles(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(configPath, []byte("listen_port = 5000\n"), 0o644))

	store, err := cache.NewStore(dir)
	require.NoError(t, err)
	require.Empty(t, store.Version())

	engine := New(Options{Store: store, Version: "v1", Logger: quietLogger()})
	report, err := engine.Run(context.Background())
	require.NoError(t, err)

	assert.True(t, report.VersionReset)
	assert.Equal(t, "v1", store.Version())
	raw, err := os.ReadFile(configPath)
	require.NoError(t, err)
	assert.Equal(t, "listen_port = 5000\n", string(raw))
}

func TestPurgeUndersizedWithCustomThreshold(t *testing.T) {
	store, err := cache.NewStore(t.TempDir())
	require.NoError(t, err)
	put(t, store, cache.MediaLocator("https://h.example/a.mp3"), 99)
	put(t, store, cache.MediaLocator("https://h.example/b.mp3"), 100)

	engine := New(Options{Store: store, Threshold: 100, Logger: quietLogger()})
	assert.EqualValues(t, 100, engine.Threshold())

	removed, err := engine.PurgeUndersized(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	removed, err = engine.PurgeUndersized(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, removed)
}

func TestRunWithoutStore(t *testing.T) {
	_, err := New(Options{Logger: quietLogger()}).Run(context.Background())
	assert.ErrorIs(t, err, cache.ErrStoreUnavailable)
}
