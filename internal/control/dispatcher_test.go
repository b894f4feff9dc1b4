package control

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/any-hub/tunecache/internal/cache"
	"github.com/any-hub/tunecache/internal/eviction"
	"github.com/any-hub/tunecache/internal/policy"
)

const testThreshold = 100

type fakePreloader struct {
	urls []string
	err  error
}

func (f *fakePreloader) Preload(_ context.Context, rawURL string) error {
	f.urls = append(f.urls, rawURL)
	return f.err
}

type fixture struct {
	store     cache.Store
	state     *policy.State
	preloader *fakePreloader
	dispatch  *Dispatcher
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	store, err := cache.NewStore(t.TempDir())
	require.NoError(t, err)
	state := policy.NewState(store)
	require.NoError(t, state.Init(context.Background()))

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	preloader := &fakePreloader{}
	engine := eviction.New(eviction.Options{Store: store, Threshold: testThreshold, Logger: logger})
	d := NewDispatcher(Options{
		Store:     store,
		Policy:    state,
		Preloader: preloader,
		Purger:    engine,
		Threshold: testThreshold,
		Logger:    logger,
	})
	return fixture{store: store, state: state, preloader: preloader, dispatch: d}
}

func putMedia(t *testing.T, store cache.Store, key string, size int) {
	t.Helper()
	_, err := store.Put(context.Background(), cache.MediaLocator(key), bytes.NewReader(make([]byte, size)), cache.PutOptions{
		ContentType: "audio/mpeg",
	})
	require.NoError(t, err)
}

func TestGetCacheSize(t *testing.T) {
	f := newFixture(t)
	putMedia(t, f.store, "https://music.example.com/a.mp3", 300)
	putMedia(t, f.store, "https://music.example.com/b.mp3", 50)

	resp := f.dispatch.Dispatch(context.Background(), Request{Action: ActionGetCacheSize})
	require.True(t, resp.Success, resp.Error)
	require.NotNil(t, resp.Size)
	assert.Equal(t, int64(350), *resp.Size)
}

func TestGetCachedTracksFiltersAndSorts(t *testing.T) {
	f := newFixture(t)
	putMedia(t, f.store, "https://music.example.com/tracks/12/zulu.mp3", 2*1024*1024)
	putMedia(t, f.store, "https://music.example.com/albums/alpha.mp3", 150)
	putMedia(t, f.store, "https://music.example.com/albums/partial.mp3", 99)

	resp := f.dispatch.Dispatch(context.Background(), Request{Action: ActionGetCachedTracks})
	require.True(t, resp.Success, resp.Error)
	require.Len(t, resp.Tracks, 2)

	assert.Equal(t, "alpha.mp3", resp.Tracks[0].Filename)
	assert.Nil(t, resp.Tracks[0].TrackID)
	assert.Equal(t, int64(150), resp.Tracks[0].Size)

	zulu := resp.Tracks[1]
	assert.Equal(t, "zulu.mp3", zulu.Filename)
	assert.Equal(t, 2.0, zulu.SizeMB)
	assert.Equal(t, "2.0 MiB", zulu.SizeLabel)
	require.NotNil(t, zulu.TrackID)
	assert.Equal(t, 12, *zulu.TrackID)
}

func TestGetCachedTracksDeduplicatesCanonicalKeys(t *testing.T) {
	f := newFixture(t)
	putMedia(t, f.store, "https://music.example.com/song.mp3", 200)
	putMedia(t, f.store, "https://music.example.com/song.mp3?token=1", 300)

	resp := f.dispatch.Dispatch(context.Background(), Request{Action: ActionGetCachedTracks})
	require.True(t, resp.Success, resp.Error)
	require.Len(t, resp.Tracks, 1)
	assert.Equal(t, "https://music.example.com/song.mp3", resp.Tracks[0].URL)
}

func TestGetCachedTracksEmpty(t *testing.T) {
	f := newFixture(t)
	resp := f.dispatch.Dispatch(context.Background(), Request{Action: ActionGetCachedTracks})
	require.True(t, resp.Success)
	assert.NotNil(t, resp.Tracks)
	assert.Empty(t, resp.Tracks)
}

func TestDeleteCacheIsIdempotent(t *testing.T) {
	f := newFixture(t)
	putMedia(t, f.store, "https://music.example.com/albums/my%20song.mp3", 400)

	first := f.dispatch.Dispatch(context.Background(), Request{
		Action: ActionDeleteCache,
		URL:    "https://music.example.com/albums/my song.mp3",
	})
	require.Empty(t, first.Error)
	require.NotNil(t, first.Deleted)
	assert.True(t, *first.Deleted)

	second := f.dispatch.Dispatch(context.Background(), Request{
		Action: ActionDeleteCache,
		URL:    "https://music.example.com/albums/my song.mp3",
	})
	assert.Empty(t, second.Error)
	require.NotNil(t, second.Deleted)
	assert.False(t, *second.Deleted)

	entries, err := f.store.List(context.Background(), cache.NamespaceMedia)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestClearCacheUsesFilenameFallback(t *testing.T) {
	f := newFixture(t)
	putMedia(t, f.store, "https://cdn.example.com/x/y/track-01.mp3", 400)

	resp := f.dispatch.Dispatch(context.Background(), Request{Action: ActionClearCache, URL: "track-01.mp3"})
	assert.True(t, resp.Success, resp.Error)
}

func TestCleanupRangeRequestsReportsRemoved(t *testing.T) {
	f := newFixture(t)
	putMedia(t, f.store, "https://music.example.com/full.mp3", 500)
	putMedia(t, f.store, "https://music.example.com/chunk1.mp3", 10)
	putMedia(t, f.store, "https://music.example.com/chunk2.mp3", 20)

	resp := f.dispatch.Dispatch(context.Background(), Request{Action: ActionCleanupRangeRequests})
	require.True(t, resp.Success, resp.Error)
	require.NotNil(t, resp.Removed)
	assert.Equal(t, 2, *resp.Removed)

	entries, err := f.store.List(context.Background(), cache.NamespaceMedia)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestPreloadTrack(t *testing.T) {
	f := newFixture(t)
	resp := f.dispatch.Dispatch(context.Background(), Request{Action: ActionPreloadTrack, URL: "https://music.example.com/p.mp3"})
	assert.True(t, resp.Success)
	assert.Equal(t, []string{"https://music.example.com/p.mp3"}, f.preloader.urls)

	f.preloader.err = errors.New("media unavailable")
	failed := f.dispatch.Dispatch(context.Background(), Request{Action: ActionPreloadTrack, URL: "https://music.example.com/q.mp3"})
	assert.False(t, failed.Success)
	assert.Contains(t, failed.Error, "unavailable")
}

func TestSetAutoCacheEnabledPersists(t *testing.T) {
	f := newFixture(t)
	off := false
	resp := f.dispatch.Dispatch(context.Background(), Request{Action: ActionSetAutoCacheEnabled, Enabled: &off})
	require.True(t, resp.Success, resp.Error)
	require.NotNil(t, resp.Enabled)
	assert.False(t, *resp.Enabled)

	reloaded := policy.NewState(f.store)
	require.NoError(t, reloaded.Init(context.Background()))
	assert.False(t, reloaded.AutoCacheEnabled())

	got := f.dispatch.Dispatch(context.Background(), Request{Action: ActionGetAutoCacheEnabled})
	require.True(t, got.Success)
	assert.False(t, *got.Enabled)
}

func TestUserInteracted(t *testing.T) {
	f := newFixture(t)
	require.False(t, f.state.UserInteracted())
	resp := f.dispatch.Dispatch(context.Background(), Request{Action: ActionUserInteracted})
	assert.True(t, resp.Success)
	assert.True(t, f.state.UserInteracted())
}

func TestProtocolErrors(t *testing.T) {
	f := newFixture(t)
	cases := []Request{
		{Action: "dance"},
		{Action: ""},
		{Action: ActionDeleteCache},
		{Action: ActionClearCache, URL: "  "},
		{Action: ActionPreloadTrack},
		{Action: ActionSetAutoCacheEnabled},
	}
	for _, req := range cases {
		resp := f.dispatch.Dispatch(context.Background(), req)
		assert.False(t, resp.Success, "action %q", req.Action)
		assert.NotEmpty(t, resp.Error, "action %q", req.Action)
	}
	assert.Empty(t, f.preloader.urls)
}

func TestDispatcherWithoutStore(t *testing.T) {
	d := NewDispatcher(Options{})
	resp := d.Dispatch(context.Background(), Request{Action: ActionGetCacheSize})
	assert.False(t, resp.Success)
	assert.NotEmpty(t, resp.Error)
}
