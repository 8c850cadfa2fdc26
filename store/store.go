// Package store is the engine's persistent cache: stored credentials,
// per-collection completion flags, catalog records, and lyric flags.
// Collections marked complete are served from here without touching the
// network on subsequent syncs.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/xeptore/flaw/v8"
	_ "modernc.org/sqlite"

	"github.com/xeptore/spotd/errutil"
)

var ErrNotFound = errors.New("not found")

type Store struct {
	db *sql.DB
}

func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if nil != err {
		flawP := flaw.P{"db_path": dbPath, "err_debug_tree": errutil.Tree(err).FlawP()}
		return nil, flaw.From(fmt.Errorf("failed to open database: %v", err)).Append(flawP)
	}
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 10000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA journal_mode = WAL",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); nil != err {
			_ = db.Close()
			flawP := flaw.P{"pragma": pragma, "err_debug_tree": errutil.Tree(err).FlawP()}
			return nil, flaw.From(fmt.Errorf("failed to set pragma: %v", err)).Append(flawP)
		}
	}

	schema := `
		CREATE TABLE IF NOT EXISTS credentials (
			username TEXT PRIMARY KEY,
			blob TEXT NOT NULL,
			type TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS songs (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			track_number INTEGER NOT NULL,
			disc_number INTEGER NOT NULL,
			quality_kbps INTEGER NOT NULL,
			album_id TEXT NOT NULL,
			artist_id TEXT NOT NULL,
			lyrics_downloaded INTEGER NOT NULL DEFAULT 0
		);

		CREATE INDEX IF NOT EXISTS idx_songs_album ON songs(album_id, disc_number, track_number);

		CREATE TABLE IF NOT EXISTS albums (
			id TEXT PRIMARY KEY,
			artist_id TEXT NOT NULL,
			name TEXT NOT NULL,
			release_date TEXT NOT NULL,
			total_tracks INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_albums_artist ON albums(artist_id);

		CREATE TABLE IF NOT EXISTS artists (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			liked INTEGER NOT NULL DEFAULT 0
		);

		CREATE TABLE IF NOT EXISTS collections (
			key TEXT PRIMARY KEY,
			complete INTEGER NOT NULL
		);
	`
	if _, err := db.Exec(schema); nil != err {
		_ = db.Close()
		flawP := flaw.P{"err_debug_tree": errutil.Tree(err).FlawP()}
		return nil, flaw.From(fmt.Errorf("failed to create schema: %v", err)).Append(flawP)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if err := s.db.Close(); nil != err {
		flawP := flaw.P{"err_debug_tree": errutil.Tree(err).FlawP()}
		return flaw.From(fmt.Errorf("failed to close database: %v", err)).Append(flawP)
	}
	return nil
}

type Credentials struct {
	Username string
	Blob     string
	Type     string
}

func (s *Store) Credentials(ctx context.Context) (*Credentials, error) {
	var c Credentials
	err := s.db.
		QueryRowContext(ctx, "SELECT username, blob, type FROM credentials LIMIT 1").
		Scan(&c.Username, &c.Blob, &c.Type)
	if nil != err {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		flawP := flaw.P{"err_debug_tree": errutil.Tree(err).FlawP()}
		return nil, flaw.From(fmt.Errorf("failed to read credentials: %v", err)).Append(flawP)
	}
	return &c, nil
}

func (s *Store) UpsertCredentials(ctx context.Context, c Credentials) error {
	query := `
		INSERT INTO credentials (username, blob, type) VALUES (?, ?, ?)
		ON CONFLICT(username) DO UPDATE SET blob = excluded.blob, type = excluded.type
	`
	if _, err := s.db.ExecContext(ctx, query, c.Username, c.Blob, c.Type); nil != err {
		flawP := flaw.P{"username": c.Username, "err_debug_tree": errutil.Tree(err).FlawP()}
		return flaw.From(fmt.Errorf("failed to upsert credentials: %v", err)).Append(flawP)
	}
	return nil
}

func albumSongsKey(albumID string) string {
	return "album_songs:" + albumID
}

func artistAlbumsKey(artistID string) string {
	return "artist_albums:" + artistID
}

const likedArtistsKey = "liked_artists"

func (s *Store) isComplete(ctx context.Context, key string) (bool, error) {
	var complete bool
	err := s.db.
		QueryRowContext(ctx, "SELECT complete FROM collections WHERE key = ?", key).
		Scan(&complete)
	if nil != err {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		flawP := flaw.P{"key": key, "err_debug_tree": errutil.Tree(err).FlawP()}
		return false, flaw.From(fmt.Errorf("failed to read collection completion flag: %v", err)).Append(flawP)
	}
	return complete, nil
}

func (s *Store) setComplete(ctx context.Context, key string, complete bool) error {
	query := `
		INSERT INTO collections (key, complete) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET complete = excluded.complete
	`
	if _, err := s.db.ExecContext(ctx, query, key, complete); nil != err {
		flawP := flaw.P{"key": key, "err_debug_tree": errutil.Tree(err).FlawP()}
		return flaw.From(fmt.Errorf("failed to set collection completion flag: %v", err)).Append(flawP)
	}
	return nil
}

func (s *Store) HaveAllAlbumSongs(ctx context.Context, albumID string) (bool, error) {
	return s.isComplete(ctx, albumSongsKey(albumID))
}

func (s *Store) SetHaveAllAlbumSongs(ctx context.Context, albumID string, have bool) error {
	return s.setComplete(ctx, albumSongsKey(albumID), have)
}

func (s *Store) HaveAllArtistAlbums(ctx context.Context, artistID string) (bool, error) {
	return s.isComplete(ctx, artistAlbumsKey(artistID))
}

func (s *Store) SetHaveAllArtistAlbums(ctx context.Context, artistID string, have bool) error {
	return s.setComplete(ctx, artistAlbumsKey(artistID), have)
}

func (s *Store) HaveAllLikedArtists(ctx context.Context) (bool, error) {
	return s.isComplete(ctx, likedArtistsKey)
}

func (s *Store) SetHaveAllLikedArtists(ctx context.Context, have bool) error {
	return s.setComplete(ctx, likedArtistsKey, have)
}

type Song struct {
	ID          string
	Name        string
	TrackNumber int
	DiscNumber  int
	QualityKbps int
	AlbumID     string
	ArtistID    string
}

func (s *Store) UpsertAlbumSongs(ctx context.Context, songs []Song) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if nil != err {
		flawP := flaw.P{"err_debug_tree": errutil.Tree(err).FlawP()}
		return flaw.From(fmt.Errorf("failed to begin transaction: %v", err)).Append(flawP)
	}
	defer func() {
		if nil != err {
			_ = tx.Rollback()
		}
	}()

	query := `
		INSERT INTO songs (id, name, track_number, disc_number, quality_kbps, album_id, artist_id)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			track_number = excluded.track_number,
			disc_number = excluded.disc_number,
			quality_kbps = excluded.quality_kbps,
			album_id = excluded.album_id,
			artist_id = excluded.artist_id
	`
	for _, song := range songs {
		if _, err = tx.ExecContext(ctx, query, song.ID, song.Name, song.TrackNumber, song.DiscNumber, song.QualityKbps, song.AlbumID, song.ArtistID); nil != err {
			flawP := flaw.P{"song_id": song.ID, "err_debug_tree": errutil.Tree(err).FlawP()}
			return flaw.From(fmt.Errorf("failed to upsert song: %v", err)).Append(flawP)
		}
	}

	if err = tx.Commit(); nil != err {
		flawP := flaw.P{"err_debug_tree": errutil.Tree(err).FlawP()}
		return flaw.From(fmt.Errorf("failed to commit transaction: %v", err)).Append(flawP)
	}
	return nil
}

func (s *Store) AlbumSongs(ctx context.Context, albumID string) (songs []Song, err error) {
	query := `
		SELECT id, name, track_number, disc_number, quality_kbps, album_id, artist_id
		FROM songs WHERE album_id = ?
		ORDER BY disc_number, track_number
	`
	rows, err := s.db.QueryContext(ctx, query, albumID)
	if nil != err {
		flawP := flaw.P{"album_id": albumID, "err_debug_tree": errutil.Tree(err).FlawP()}
		return nil, flaw.From(fmt.Errorf("failed to query album songs: %v", err)).Append(flawP)
	}
	defer func() {
		if closeErr := rows.Close(); nil != closeErr && nil == err {
			flawP := flaw.P{"err_debug_tree": errutil.Tree(closeErr).FlawP()}
			err = flaw.From(fmt.Errorf("failed to close album songs rows: %v", closeErr)).Append(flawP)
		}
	}()

	for rows.Next() {
		var song Song
		if err := rows.Scan(&song.ID, &song.Name, &song.TrackNumber, &song.DiscNumber, &song.QualityKbps, &song.AlbumID, &song.ArtistID); nil != err {
			flawP := flaw.P{"album_id": albumID, "err_debug_tree": errutil.Tree(err).FlawP()}
			return nil, flaw.From(fmt.Errorf("failed to scan album song row: %v", err)).Append(flawP)
		}
		songs = append(songs, song)
	}
	if err := rows.Err(); nil != err {
		flawP := flaw.P{"album_id": albumID, "err_debug_tree": errutil.Tree(err).FlawP()}
		return nil, flaw.From(fmt.Errorf("failed to iterate album song rows: %v", err)).Append(flawP)
	}
	return songs, nil
}

type Album struct {
	ID          string
	ArtistID    string
	Name        string
	ReleaseDate string
	TotalTracks int
}

func (s *Store) UpsertArtistAlbums(ctx context.Context, artistID string, albums []Album) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if nil != err {
		flawP := flaw.P{"err_debug_tree": errutil.Tree(err).FlawP()}
		return flaw.From(fmt.Errorf("failed to begin transaction: %v", err)).Append(flawP)
	}
	defer func() {
		if nil != err {
			_ = tx.Rollback()
		}
	}()

	query := `
		INSERT INTO albums (id, artist_id, name, release_date, total_tracks)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			artist_id = excluded.artist_id,
			name = excluded.name,
			release_date = excluded.release_date,
			total_tracks = excluded.total_tracks
	`
	for _, album := range albums {
		if _, err = tx.ExecContext(ctx, query, album.ID, artistID, album.Name, album.ReleaseDate, album.TotalTracks); nil != err {
			flawP := flaw.P{"album_id": album.ID, "err_debug_tree": errutil.Tree(err).FlawP()}
			return flaw.From(fmt.Errorf("failed to upsert album: %v", err)).Append(flawP)
		}
	}

	if err = tx.Commit(); nil != err {
		flawP := flaw.P{"err_debug_tree": errutil.Tree(err).FlawP()}
		return flaw.From(fmt.Errorf("failed to commit transaction: %v", err)).Append(flawP)
	}
	return nil
}

func (s *Store) ArtistAlbums(ctx context.Context, artistID string) (albums []Album, err error) {
	query := `
		SELECT id, artist_id, name, release_date, total_tracks
		FROM albums WHERE artist_id = ?
		ORDER BY release_date, id
	`
	rows, err := s.db.QueryContext(ctx, query, artistID)
	if nil != err {
		flawP := flaw.P{"artist_id": artistID, "err_debug_tree": errutil.Tree(err).FlawP()}
		return nil, flaw.From(fmt.Errorf("failed to query artist albums: %v", err)).Append(flawP)
	}
	defer func() {
		if closeErr := rows.Close(); nil != closeErr && nil == err {
			flawP := flaw.P{"err_debug_tree": errutil.Tree(closeErr).FlawP()}
			err = flaw.From(fmt.Errorf("failed to close artist albums rows: %v", closeErr)).Append(flawP)
		}
	}()

	for rows.Next() {
		var album Album
		if err := rows.Scan(&album.ID, &album.ArtistID, &album.Name, &album.ReleaseDate, &album.TotalTracks); nil != err {
			flawP := flaw.P{"artist_id": artistID, "err_debug_tree": errutil.Tree(err).FlawP()}
			return nil, flaw.From(fmt.Errorf("failed to scan artist album row: %v", err)).Append(flawP)
		}
		albums = append(albums, album)
	}
	if err := rows.Err(); nil != err {
		flawP := flaw.P{"artist_id": artistID, "err_debug_tree": errutil.Tree(err).FlawP()}
		return nil, flaw.From(fmt.Errorf("failed to iterate artist album rows: %v", err)).Append(flawP)
	}
	return albums, nil
}

type Artist struct {
	ID   string
	Name string
}

func (s *Store) UpsertLikedArtists(ctx context.Context, artists []Artist) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if nil != err {
		flawP := flaw.P{"err_debug_tree": errutil.Tree(err).FlawP()}
		return flaw.From(fmt.Errorf("failed to begin transaction: %v", err)).Append(flawP)
	}
	defer func() {
		if nil != err {
			_ = tx.Rollback()
		}
	}()

	query := `
		INSERT INTO artists (id, name, liked) VALUES (?, ?, 1)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, liked = 1
	`
	for _, artist := range artists {
		if _, err = tx.ExecContext(ctx, query, artist.ID, artist.Name); nil != err {
			flawP := flaw.P{"artist_id": artist.ID, "err_debug_tree": errutil.Tree(err).FlawP()}
			return flaw.From(fmt.Errorf("failed to upsert artist: %v", err)).Append(flawP)
		}
	}

	if err = tx.Commit(); nil != err {
		flawP := flaw.P{"err_debug_tree": errutil.Tree(err).FlawP()}
		return flaw.From(fmt.Errorf("failed to commit transaction: %v", err)).Append(flawP)
	}
	return nil
}

func (s *Store) LikedArtists(ctx context.Context) (artists []Artist, err error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, name FROM artists WHERE liked = 1 ORDER BY id, name")
	if nil != err {
		flawP := flaw.P{"err_debug_tree": errutil.Tree(err).FlawP()}
		return nil, flaw.From(fmt.Errorf("failed to query liked artists: %v", err)).Append(flawP)
	}
	defer func() {
		if closeErr := rows.Close(); nil != closeErr && nil == err {
			flawP := flaw.P{"err_debug_tree": errutil.Tree(closeErr).FlawP()}
			err = flaw.From(fmt.Errorf("failed to close liked artists rows: %v", closeErr)).Append(flawP)
		}
	}()

	for rows.Next() {
		var artist Artist
		if err := rows.Scan(&artist.ID, &artist.Name); nil != err {
			flawP := flaw.P{"err_debug_tree": errutil.Tree(err).FlawP()}
			return nil, flaw.From(fmt.Errorf("failed to scan liked artist row: %v", err)).Append(flawP)
		}
		artists = append(artists, artist)
	}
	if err := rows.Err(); nil != err {
		flawP := flaw.P{"err_debug_tree": errutil.Tree(err).FlawP()}
		return nil, flaw.From(fmt.Errorf("failed to iterate liked artist rows: %v", err)).Append(flawP)
	}
	return artists, nil
}

func (s *Store) SetLyricsDownloaded(ctx context.Context, songID string, downloaded bool) error {
	if _, err := s.db.ExecContext(ctx, "UPDATE songs SET lyrics_downloaded = ? WHERE id = ?", downloaded, songID); nil != err {
		flawP := flaw.P{"song_id": songID, "err_debug_tree": errutil.Tree(err).FlawP()}
		return flaw.From(fmt.Errorf("failed to set lyrics downloaded flag: %v", err)).Append(flawP)
	}
	return nil
}

func (s *Store) LyricsDownloaded(ctx context.Context, songID string) (bool, error) {
	var downloaded bool
	err := s.db.QueryRowContext(ctx, "SELECT lyrics_downloaded FROM songs WHERE id = ?", songID).Scan(&downloaded)
	if nil != err {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		flawP := flaw.P{"song_id": songID, "err_debug_tree": errutil.Tree(err).FlawP()}
		return false, flaw.From(fmt.Errorf("failed to read lyrics downloaded flag: %v", err)).Append(flawP)
	}
	return downloaded, nil
}
