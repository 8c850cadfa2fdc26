package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/schollz/progressbar/v3"
	"github.com/xeptore/flaw/v8"
	"golang.org/x/sync/errgroup"

	"github.com/xeptore/spotd/config"
	"github.com/xeptore/spotd/errutil"
	"github.com/xeptore/spotd/log"
	"github.com/xeptore/spotd/sliceutil"
	"github.com/xeptore/spotd/spotify"
	"github.com/xeptore/spotd/spotify/download"
	"github.com/xeptore/spotd/store"
	"github.com/xeptore/spotd/waitqueue"
)

type syncer struct {
	logger      zerolog.Logger
	cfg         *config.Config
	db          *store.Store
	catalog     *spotify.Catalog
	downloader  *download.Downloader
	queue       *waitqueue.WaitQueue
	qualityKbps int
}

func newSyncer(ctx context.Context, a *app) *syncer {
	return &syncer{
		logger:      a.logger.With().Str("module", "sync").Logger(),
		cfg:         a.cfg,
		db:          a.db,
		catalog:     a.catalog,
		downloader:  a.downloader,
		queue:       waitqueue.New(ctx, time.Second, 200*time.Millisecond, 64),
		qualityKbps: a.qualityKbps,
	}
}

func (s *syncer) close() {
	s.queue.Close()
}

func (s *syncer) syncLink(ctx context.Context, link *spotify.Link) error {
	switch link.Kind {
	case spotify.LinkTrack:
		return s.syncTrackOrEpisode(ctx, link.ID)
	case spotify.LinkEpisode:
		return s.syncEpisode(ctx, link.ID)
	case spotify.LinkAlbum:
		return s.syncAlbum(ctx, link.ID)
	case spotify.LinkArtist:
		return s.syncArtist(ctx, link.ID)
	case spotify.LinkPlaylist:
		return s.syncPlaylist(ctx, link.ID)
	case spotify.LinkShow:
		return s.syncShow(ctx, link.ID)
	default:
		return fmt.Errorf("unsupported link kind: %s", link.Kind)
	}
}

// syncTrackOrEpisode resolves a bare id as a track first, then as an
// episode when the catalog reports it is no track.
func (s *syncer) syncTrackOrEpisode(ctx context.Context, id string) error {
	track, err := s.trackInfo(ctx, id)
	if nil != err {
		switch {
		case errutil.IsContext(ctx):
			return ctx.Err()
		case errors.Is(err, spotify.ErrNotATrack):
			return s.syncEpisode(ctx, id)
		default:
			return err
		}
	}
	return s.downloadTrack(ctx, track)
}

func (s *syncer) trackInfo(ctx context.Context, id string) (track *spotify.Track, err error) {
	if queueErr := s.queue.RunSingle(ctx, func() error {
		track, err = s.catalog.Track(ctx, id)
		return nil
	}); nil != queueErr {
		return nil, queueErr
	}
	return track, err
}

func (s *syncer) syncEpisode(ctx context.Context, id string) error {
	episode, err := s.catalog.Episode(ctx, id)
	if nil != err {
		return err
	}

	baseName := sanitizeFileName(fmt.Sprintf("%s - %s", episode.ShowName, episode.Name))
	res, err := s.downloadAudio(ctx, episode.ID, baseName)
	if nil != err {
		return err
	}
	_, err = s.persistAudio(ctx, res, baseName)
	return err
}

func (s *syncer) downloadTrack(ctx context.Context, track *spotify.Track) error {
	if !track.IsPlayable {
		s.logger.Warn().Str("track_id", track.ID).Str("name", track.Name).Msg("Track is not playable. Skipping.")
		return nil
	}

	names := sliceutil.Map(track.Artists, func(a spotify.Artist) string { return a.Name })
	baseName := sanitizeFileName(fmt.Sprintf("%s - %s", strings.Join(names, ", "), track.Name))

	var (
		res    *download.Result
		lyrics *spotify.Lyrics
	)
	wg, wgCtx := errgroup.WithContext(ctx)
	wg.Go(func() error {
		r, err := s.downloadAudio(wgCtx, track.ID, baseName)
		if nil != err {
			return err
		}
		res = r
		return nil
	})
	wg.Go(func() error {
		l, err := s.catalog.Lyrics(wgCtx, track.ID)
		switch {
		case nil == err:
			lyrics = l
			return nil
		case errors.Is(err, spotify.ErrNoLyrics):
			return nil
		case errutil.IsContext(wgCtx):
			return wgCtx.Err()
		default:
			return err
		}
	})
	if err := wg.Wait(); nil != err {
		return err
	}

	written, err := s.persistAudio(ctx, res, baseName)
	if nil != err || !written {
		return err
	}

	if nil != lyrics {
		dest := filepath.Join(s.cfg.OutputDir, baseName+lyrics.FileExtension())
		if err := os.WriteFile(dest, []byte(lyrics.Render()), 0o0644); nil != err {
			return fmt.Errorf("failed to write lyrics file: %v", err)
		}
	}
	if err := s.db.SetLyricsDownloaded(ctx, track.ID, nil != lyrics); nil != err {
		return err
	}
	return nil
}

func (s *syncer) downloadAudio(ctx context.Context, id, baseName string) (*download.Result, error) {
	var bar *progressbar.ProgressBar
	res, err := s.downloader.Download(ctx, id, s.qualityKbps, func(downloaded, total int) {
		if nil == bar {
			bar = progressbar.DefaultBytes(int64(total), baseName)
		}
		_ = bar.Set(downloaded)
	})
	if nil != bar {
		_ = bar.Finish()
	}
	if nil != err {
		switch {
		case errutil.IsContext(ctx):
			return nil, ctx.Err()
		case errors.Is(err, download.ErrStreamCorrupted):
			return nil, err
		default:
			return nil, err
		}
	}
	return res, nil
}

// persistAudio writes the drained stream to the output directory, after
// format sniffing and the optional transcode. An incomplete stream is never
// written.
func (s *syncer) persistAudio(ctx context.Context, res *download.Result, baseName string) (bool, error) {
	if !res.Complete {
		s.logger.Warn().
			Str("name", baseName).
			Int("downloaded", len(res.Bytes)).
			Msg("Stream ended short of the advertised size. Not persisting partial audio.")
		return false, nil
	}

	format, err := spotify.DetectFormat(res.Bytes)
	if nil != err {
		return false, fmt.Errorf("failed to identify downloaded audio format: %w", err)
	}

	audio := res.Bytes
	ext := string(format)
	if target := s.cfg.AudioFormat; target != "source" && target != ext {
		converted, err := download.Convert(ctx, audio, target, s.qualityKbps)
		if nil != err {
			return false, err
		}
		audio = converted
		ext = target
	}

	dest := filepath.Join(s.cfg.OutputDir, baseName+"."+ext)
	if err := os.WriteFile(dest, audio, 0o0644); nil != err {
		return false, fmt.Errorf("failed to write audio file: %v", err)
	}
	s.logger.Info().Str("file", dest).Msg("Saved.")
	return true, nil
}

func (s *syncer) syncAlbum(ctx context.Context, id string) error {
	songs, err := s.catalog.AlbumSongs(ctx, id, s.cfg.ForceAlbumQuery)
	if nil != err {
		return err
	}
	s.logger.Info().Str("album_id", id).Int("songs", len(songs)).Msg("Syncing album")

	var failures int
	for _, song := range songs {
		if err := s.syncTrackOrEpisode(ctx, song.ID); nil != err {
			if errutil.IsContext(ctx) {
				return ctx.Err()
			}
			failures++
			s.logSyncFailure(err, "song", song.ID)
		}
	}
	if failures > 0 {
		return fmt.Errorf("%d of %d album songs failed", failures, len(songs))
	}
	return nil
}

func (s *syncer) syncArtist(ctx context.Context, id string) error {
	albums, err := s.catalog.ArtistAlbums(ctx, id, s.cfg.ForceAlbumQuery)
	if nil != err {
		return err
	}
	s.logger.Info().Str("artist_id", id).Int("albums", len(albums)).Msg("Syncing artist discography")

	var failures int
	for _, album := range albums {
		if err := s.syncAlbum(ctx, album.ID); nil != err {
			if errutil.IsContext(ctx) {
				return ctx.Err()
			}
			failures++
			s.logSyncFailure(err, "album", album.ID)
		}
	}
	if failures > 0 {
		return fmt.Errorf("%d of %d artist albums failed", failures, len(albums))
	}
	return nil
}

func (s *syncer) syncPlaylist(ctx context.Context, id string) error {
	ids, err := s.catalog.PlaylistSongIDs(ctx, id)
	if nil != err {
		return err
	}
	s.logger.Info().Str("playlist_id", id).Int("songs", len(ids)).Msg("Syncing playlist")

	var failures int
	for _, songID := range ids {
		if err := s.syncTrackOrEpisode(ctx, songID); nil != err {
			if errutil.IsContext(ctx) {
				return ctx.Err()
			}
			failures++
			s.logSyncFailure(err, "song", songID)
		}
	}
	if failures > 0 {
		return fmt.Errorf("%d of %d playlist songs failed", failures, len(ids))
	}
	return nil
}

func (s *syncer) syncShow(ctx context.Context, id string) error {
	ids, err := s.catalog.ShowEpisodeIDs(ctx, id)
	if nil != err {
		return err
	}
	s.logger.Info().Str("show_id", id).Int("episodes", len(ids)).Msg("Syncing show")

	var failures int
	for _, episodeID := range ids {
		if err := s.syncEpisode(ctx, episodeID); nil != err {
			if errutil.IsContext(ctx) {
				return ctx.Err()
			}
			failures++
			s.logSyncFailure(err, "episode", episodeID)
		}
	}
	if failures > 0 {
		return fmt.Errorf("%d of %d show episodes failed", failures, len(ids))
	}
	return nil
}

func (s *syncer) syncLikedSongs(ctx context.Context) error {
	ids, err := s.catalog.SavedTrackIDs(ctx)
	if nil != err {
		return err
	}
	s.logger.Info().Int("songs", len(ids)).Msg("Syncing liked songs")

	var failures int
	for _, songID := range ids {
		if err := s.syncTrackOrEpisode(ctx, songID); nil != err {
			if errutil.IsContext(ctx) {
				return ctx.Err()
			}
			failures++
			s.logSyncFailure(err, "song", songID)
		}
	}
	if failures > 0 {
		return fmt.Errorf("%d of %d liked songs failed", failures, len(ids))
	}
	return nil
}

func (s *syncer) syncLikedArtists(ctx context.Context, forceRefresh bool) error {
	artists, err := s.catalog.LikedArtists(ctx, forceRefresh)
	if nil != err {
		return err
	}
	s.logger.Info().Int("artists", len(artists)).Msg("Syncing liked artists")

	var failures int
	for _, artist := range artists {
		if err := s.syncArtist(ctx, artist.ID); nil != err {
			if errutil.IsContext(ctx) {
				return ctx.Err()
			}
			failures++
			s.logSyncFailure(err, "artist", artist.ID)
		}
	}
	if failures > 0 {
		return fmt.Errorf("%d of %d liked artists failed", failures, len(artists))
	}
	return nil
}

func (s *syncer) logSyncFailure(err error, kind, id string) {
	if flawErr := new(flaw.Flaw); errors.As(err, &flawErr) {
		s.logger.Error().Func(log.Flaw(flawErr)).Str(kind+"_id", id).Msg("Sync item failed")
		return
	}
	s.logger.Error().Err(err).Str(kind+"_id", id).Msg("Sync item failed")
}

func sanitizeFileName(name string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		case 0:
			return -1
		default:
			return r
		}
	}, name)
}
