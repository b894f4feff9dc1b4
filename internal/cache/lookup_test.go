package cache

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindExactWinsOverFallbacks(t *testing.T) {
	store := newTestStore(t)
	mustPut(t, store, MediaLocator(sampleKey), 4)
	mustPut(t, store, MediaLocator("https://mirror.example/media/music/001-song.mp3"), 4)

	match, err := Find(context.Background(), store, NamespaceMedia, sampleKey, DefaultMatchers)
	require.NoError(t, err)
	assert.Equal(t, "exact", match.Matcher)
	assert.Equal(t, sampleKey, match.Entry.Locator.Key)
}

func TestFindStripsQueryForExactMatch(t *testing.T) {
	store := newTestStore(t)
	mustPut(t, store, MediaLocator(sampleKey), 4)

	match, err := Find(context.Background(), store, NamespaceMedia, sampleKey+"?session=9", DefaultMatchers)
	require.NoError(t, err)
	assert.Equal(t, "exact", match.Matcher)
}

func TestFindFallbackStrategies(t *testing.T) {
	store := newTestStore(t)
	const spaced = "https://music.example.com/media/music/my song.mp3"
	mustPut(t, store, MediaLocator(spaced), 4)

	tests := []struct {
		query   string
		matcher string
	}{
		{"https://music.example.com/media/music/my%20song.mp3", "decoded"},
		{"music/my song", "substring"},
		{"https://elsewhere.example/x/my%20song.mp3", "filename"},
	}
	for _, tt := range tests {
		t.Run(tt.matcher, func(t *testing.T) {
			match, err := Find(context.Background(), store, NamespaceMedia, tt.query, DefaultMatchers)
			require.NoError(t, err)
			assert.Equal(t, tt.matcher, match.Matcher)
			assert.Equal(t, spaced, match.Entry.Locator.Key)
		})
	}
}

func TestFindEncodedStrategy(t *testing.T) {
	store := newTestStore(t)
	const encoded = "music.example.com/media/music/my%20song.mp3"
	mustPut(t, store, MediaLocator(encoded), 4)

	match, err := Find(context.Background(), store, NamespaceMedia, "music.example.com/media/music/my song.mp3", DefaultMatchers)
	require.NoError(t, err)
	assert.Equal(t, "encoded", match.Matcher)
}

func TestFindMissing(t *testing.T) {
	store := newTestStore(t)
	_, err := Find(context.Background(), store, NamespaceMedia, "nothing.mp3", DefaultMatchers)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	mustPut(t, store, MediaLocator(sampleKey), 4)

	deleted, err := Delete(ctx, store, NamespaceMedia, sampleKey)
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = Delete(ctx, store, NamespaceMedia, sampleKey)
	require.NoError(t, err)
	assert.False(t, deleted)

	_, err = store.Get(ctx, MediaLocator(sampleKey))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestResolveOpensBody(t *testing.T) {
	store := newTestStore(t)
	mustPut(t, store, MediaLocator(sampleKey), 8)

	result, matcher, err := Resolve(context.Background(), store, NamespaceMedia, "001-song.mp3")
	require.NoError(t, err)
	body, err := result.ReadAll()
	require.NoError(t, err)
	assert.Len(t, body, 8)
	assert.Equal(t, "substring", matcher)
}
