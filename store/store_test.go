package store_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xeptore/spotd/store"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, s.Close()) })
	return s
}

func TestCredentials(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := openTestStore(t)

	_, err := s.Credentials(ctx)
	assert.ErrorIs(t, err, store.ErrNotFound)

	creds := store.Credentials{Username: "user@example.com", Blob: "blob-1", Type: "AUTHENTICATION_STORED_SPOTIFY_CREDENTIALS"}
	require.NoError(t, s.UpsertCredentials(ctx, creds))

	got, err := s.Credentials(ctx)
	require.NoError(t, err)
	assert.Equal(t, creds, *got)

	creds.Blob = "blob-2"
	require.NoError(t, s.UpsertCredentials(ctx, creds))
	got, err = s.Credentials(ctx)
	require.NoError(t, err)
	assert.Equal(t, "blob-2", got.Blob)
}

func TestCompletionFlags(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := openTestStore(t)

	have, err := s.HaveAllAlbumSongs(ctx, "alb1")
	require.NoError(t, err)
	assert.False(t, have)

	require.NoError(t, s.SetHaveAllAlbumSongs(ctx, "alb1", true))
	have, err = s.HaveAllAlbumSongs(ctx, "alb1")
	require.NoError(t, err)
	assert.True(t, have)

	have, err = s.HaveAllAlbumSongs(ctx, "alb2")
	require.NoError(t, err)
	assert.False(t, have)

	have, err = s.HaveAllArtistAlbums(ctx, "art1")
	require.NoError(t, err)
	assert.False(t, have)
	require.NoError(t, s.SetHaveAllArtistAlbums(ctx, "art1", true))
	have, err = s.HaveAllArtistAlbums(ctx, "art1")
	require.NoError(t, err)
	assert.True(t, have)

	have, err = s.HaveAllLikedArtists(ctx)
	require.NoError(t, err)
	assert.False(t, have)
	require.NoError(t, s.SetHaveAllLikedArtists(ctx, true))
	have, err = s.HaveAllLikedArtists(ctx)
	require.NoError(t, err)
	assert.True(t, have)
}

func TestAlbumSongsRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := openTestStore(t)

	songs := []store.Song{
		{ID: "s2", Name: "Second", TrackNumber: 2, DiscNumber: 1, QualityKbps: 320, AlbumID: "alb1", ArtistID: "art1"},
		{ID: "s3", Name: "Opener II", TrackNumber: 1, DiscNumber: 2, QualityKbps: 320, AlbumID: "alb1", ArtistID: "art1"},
		{ID: "s1", Name: "Opener", TrackNumber: 1, DiscNumber: 1, QualityKbps: 320, AlbumID: "alb1", ArtistID: "art1"},
	}
	require.NoError(t, s.UpsertAlbumSongs(ctx, songs))

	got, err := s.AlbumSongs(ctx, "alb1")
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "s1", got[0].ID)
	assert.Equal(t, "s2", got[1].ID)
	assert.Equal(t, "s3", got[2].ID)

	// Upserting again must not duplicate rows.
	require.NoError(t, s.UpsertAlbumSongs(ctx, songs))
	got, err = s.AlbumSongs(ctx, "alb1")
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func TestArtistAlbumsRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := openTestStore(t)

	albums := []store.Album{
		{ID: "alb2", Name: "Later", ReleaseDate: "2020-05-01", TotalTracks: 12},
		{ID: "alb1", Name: "Debut", ReleaseDate: "2015-01-01", TotalTracks: 10},
	}
	require.NoError(t, s.UpsertArtistAlbums(ctx, "art1", albums))

	got, err := s.ArtistAlbums(ctx, "art1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "alb1", got[0].ID)
	assert.Equal(t, "art1", got[0].ArtistID)
	assert.Equal(t, "alb2", got[1].ID)

	other, err := s.ArtistAlbums(ctx, "art2")
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestLikedArtists(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := openTestStore(t)

	artists := []store.Artist{
		{ID: "b", Name: "Beta"},
		{ID: "a", Name: "Alpha"},
	}
	require.NoError(t, s.UpsertLikedArtists(ctx, artists))

	got, err := s.LikedArtists(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, store.Artist{ID: "a", Name: "Alpha"}, got[0])
	assert.Equal(t, store.Artist{ID: "b", Name: "Beta"}, got[1])
}

func TestLyricsDownloadedFlag(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := openTestStore(t)

	require.NoError(t, s.UpsertAlbumSongs(ctx, []store.Song{
		{ID: "s1", Name: "Opener", TrackNumber: 1, DiscNumber: 1, QualityKbps: 160, AlbumID: "alb1", ArtistID: "art1"},
	}))

	downloaded, err := s.LyricsDownloaded(ctx, "s1")
	require.NoError(t, err)
	assert.False(t, downloaded)

	require.NoError(t, s.SetLyricsDownloaded(ctx, "s1", true))
	downloaded, err = s.LyricsDownloaded(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, downloaded)

	// Unknown song reads as not downloaded.
	downloaded, err = s.LyricsDownloaded(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, downloaded)
}
