package spotify

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"github.com/tidwall/gjson"
	"github.com/xeptore/flaw/v8"

	"github.com/xeptore/spotd/cache"
	"github.com/xeptore/spotd/config"
	"github.com/xeptore/spotd/errutil"
	"github.com/xeptore/spotd/store"
)

const pageLimit = 50

var (
	// ErrNotATrack reports that an id resolved to no track. Callers holding a
	// bare id retry the episode interpretation on this.
	ErrNotATrack = errors.New("id is not a track")
	ErrNotFound  = errors.New("resource not found")
)

// Catalog is the typed surface over the web API: single-entity lookups, the
// store-gated collection sweeps, and search.
type Catalog struct {
	logger      zerolog.Logger
	client      *Client
	db          *store.Store
	cfg         *config.Config
	qualityKbps int
	tracks      *cache.Cache[*Track]
	apiBase     string
	lyricsBase  string
}

type CatalogOption func(*Catalog)

// WithAPIBaseURL overrides the catalog API host.
func WithAPIBaseURL(u string) CatalogOption {
	return func(c *Catalog) { c.apiBase = strings.TrimSuffix(u, "/") }
}

// WithLyricsBaseURL overrides the lyrics API host.
func WithLyricsBaseURL(u string) CatalogOption {
	return func(c *Catalog) { c.lyricsBase = strings.TrimSuffix(u, "/") }
}

func NewCatalog(logger zerolog.Logger, client *Client, db *store.Store, cfg *config.Config, qualityKbps int, opts ...CatalogOption) *Catalog {
	c := &Catalog{
		logger:      logger,
		client:      client,
		db:          db,
		cfg:         cfg,
		qualityKbps: qualityKbps,
		tracks:      cache.New[*Track](1000),
		apiBase:     apiBaseURL,
		lyricsBase:  lyricsBaseURL,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Catalog) catalogEndpoint(parts ...string) Endpoint {
	return Endpoint{URL: c.apiBase + "/" + strings.Join(parts, "/"), Audience: AudienceCatalog}
}

func (c *Catalog) libraryEndpoint(parts ...string) Endpoint {
	return Endpoint{URL: c.apiBase + "/me/" + strings.Join(parts, "/"), Audience: AudienceLibrary}
}

// Track fetches a single track, serving repeats from the in-memory cache.
func (c *Catalog) Track(ctx context.Context, id string) (*Track, error) {
	return c.tracks.Fetch(id, cache.DefaultInfoTTL, func() (*Track, error) {
		resp, err := c.client.Get(ctx, c.catalogEndpoint("tracks", id), nil, nil)
		if nil != err {
			return nil, err
		}
		if resp.NotFound() {
			return nil, ErrNotATrack
		}

		var track Track
		if err := json.Unmarshal(resp.Body, &track); nil != err {
			flawP := flaw.P{"track_id": id, "response_body": string(resp.Body), "err_debug_tree": errutil.Tree(err).FlawP()}
			return nil, flaw.From(fmt.Errorf("failed to decode track response: %v", err)).Append(flawP)
		}
		return &track, nil
	})
}

func (c *Catalog) Episode(ctx context.Context, id string) (*Episode, error) {
	resp, err := c.client.Get(ctx, c.catalogEndpoint("episodes", id), nil, nil)
	if nil != err {
		return nil, err
	}
	if resp.NotFound() {
		return nil, ErrNotFound
	}

	body := gjson.ParseBytes(resp.Body)
	return &Episode{
		ID:         body.Get("id").String(),
		Name:       body.Get("name").String(),
		DurationMs: int(body.Get("duration_ms").Int()),
		ShowID:     body.Get("show.id").String(),
		ShowName:   body.Get("show.name").String(),
	}, nil
}

func (c *Catalog) Album(ctx context.Context, id string) (*Album, error) {
	resp, err := c.client.Get(ctx, c.catalogEndpoint("albums", id), nil, nil)
	if nil != err {
		return nil, err
	}
	if resp.NotFound() {
		return nil, ErrNotFound
	}

	var album Album
	if err := json.Unmarshal(resp.Body, &album); nil != err {
		flawP := flaw.P{"album_id": id, "response_body": string(resp.Body), "err_debug_tree": errutil.Tree(err).FlawP()}
		return nil, flaw.From(fmt.Errorf("failed to decode album response: %v", err)).Append(flawP)
	}
	return &album, nil
}

func (c *Catalog) Artist(ctx context.Context, id string) (*Artist, error) {
	resp, err := c.client.Get(ctx, c.catalogEndpoint("artists", id), nil, nil)
	if nil != err {
		return nil, err
	}
	if resp.NotFound() {
		return nil, ErrNotFound
	}

	var artist Artist
	if err := json.Unmarshal(resp.Body, &artist); nil != err {
		flawP := flaw.P{"artist_id": id, "response_body": string(resp.Body), "err_debug_tree": errutil.Tree(err).FlawP()}
		return nil, flaw.From(fmt.Errorf("failed to decode artist response: %v", err)).Append(flawP)
	}
	return &artist, nil
}

func (c *Catalog) Playlist(ctx context.Context, id string) (*Playlist, error) {
	resp, err := c.client.Get(ctx, c.catalogEndpoint("playlists", id), nil, nil)
	if nil != err {
		return nil, err
	}
	if resp.NotFound() {
		return nil, ErrNotFound
	}

	body := gjson.ParseBytes(resp.Body)
	return &Playlist{
		ID:          body.Get("id").String(),
		Name:        body.Get("name").String(),
		OwnerName:   body.Get("owner.display_name").String(),
		TotalTracks: int(body.Get("tracks.total").Int()),
	}, nil
}

func (c *Catalog) Show(ctx context.Context, id string) (*Show, error) {
	resp, err := c.client.Get(ctx, c.catalogEndpoint("shows", id), nil, nil)
	if nil != err {
		return nil, err
	}
	if resp.NotFound() {
		return nil, ErrNotFound
	}

	var show Show
	if err := json.Unmarshal(resp.Body, &show); nil != err {
		flawP := flaw.P{"show_id": id, "response_body": string(resp.Body), "err_debug_tree": errutil.Tree(err).FlawP()}
		return nil, flaw.From(fmt.Errorf("failed to decode show response: %v", err)).Append(flawP)
	}
	return &show, nil
}

// PlaylistSongIDs sweeps a playlist's track list. Entries whose track is
// null (removed or region-blocked items) count toward page length but
// contribute no id.
func (c *Catalog) PlaylistSongIDs(ctx context.Context, playlistID string) ([]string, error) {
	endpoint := c.catalogEndpoint("playlists", playlistID, "tracks")
	return CollectAll(ctx, c.client, endpoint, pageLimit, func(body []byte) ([]string, int, error) {
		items := gjson.GetBytes(body, "items").Array()
		ids := make([]string, 0, len(items))
		for _, item := range items {
			if id := item.Get("track.id"); id.Exists() && id.Type == gjson.String {
				ids = append(ids, id.String())
			}
		}
		return ids, len(items), nil
	})
}

// SavedTrackIDs sweeps the user's liked-songs library.
func (c *Catalog) SavedTrackIDs(ctx context.Context) ([]string, error) {
	endpoint := c.libraryEndpoint("tracks")
	return CollectAll(ctx, c.client, endpoint, pageLimit, func(body []byte) ([]string, int, error) {
		items := gjson.GetBytes(body, "items").Array()
		ids := make([]string, 0, len(items))
		for _, item := range items {
			if id := item.Get("track.id"); id.Exists() && id.Type == gjson.String {
				ids = append(ids, id.String())
			}
		}
		return ids, len(items), nil
	})
}

// UserPlaylists sweeps the playlists of the logged-in user.
func (c *Catalog) UserPlaylists(ctx context.Context) ([]Playlist, error) {
	endpoint := c.libraryEndpoint("playlists")
	return CollectAll(ctx, c.client, endpoint, pageLimit, func(body []byte) ([]Playlist, int, error) {
		items := gjson.GetBytes(body, "items").Array()
		playlists := make([]Playlist, 0, len(items))
		for _, item := range items {
			playlists = append(playlists, Playlist{
				ID:          item.Get("id").String(),
				Name:        item.Get("name").String(),
				OwnerName:   item.Get("owner.display_name").String(),
				TotalTracks: int(item.Get("tracks.total").Int()),
			})
		}
		return playlists, len(items), nil
	})
}

// ShowEpisodeIDs sweeps a show's episode list.
func (c *Catalog) ShowEpisodeIDs(ctx context.Context, showID string) ([]string, error) {
	endpoint := c.catalogEndpoint("shows", showID, "episodes")
	return CollectAll(ctx, c.client, endpoint, pageLimit, func(body []byte) ([]string, int, error) {
		items := gjson.GetBytes(body, "items").Array()
		ids := make([]string, 0, len(items))
		for _, item := range items {
			if id := item.Get("id"); id.Exists() && id.Type == gjson.String {
				ids = append(ids, id.String())
			}
		}
		return ids, len(items), nil
	})
}

type albumSongs struct {
	catalog *Catalog
	albumID string
}

func (s albumSongs) Complete(ctx context.Context) (bool, error) {
	return s.catalog.db.HaveAllAlbumSongs(ctx, s.albumID)
}

func (s albumSongs) MarkComplete(ctx context.Context) error {
	return s.catalog.db.SetHaveAllAlbumSongs(ctx, s.albumID, true)
}

func (s albumSongs) Load(ctx context.Context) ([]store.Song, error) {
	return s.catalog.db.AlbumSongs(ctx, s.albumID)
}

func (s albumSongs) Save(ctx context.Context, items []store.Song) error {
	return s.catalog.db.UpsertAlbumSongs(ctx, items)
}

func (s albumSongs) Fetch(ctx context.Context) ([]store.Song, error) {
	endpoint := s.catalog.catalogEndpoint("albums", s.albumID, "tracks")
	return CollectAll(ctx, s.catalog.client, endpoint, pageLimit, func(body []byte) ([]store.Song, int, error) {
		var respBody struct {
			Items []struct {
				ID          string `json:"id"`
				Name        string `json:"name"`
				TrackNumber int    `json:"track_number"`
				DiscNumber  int    `json:"disc_number"`
				Artists     []struct {
					ID string `json:"id"`
				} `json:"artists"`
			} `json:"items"`
		}
		if err := json.Unmarshal(body, &respBody); nil != err {
			flawP := flaw.P{"album_id": s.albumID, "response_body": string(body), "err_debug_tree": errutil.Tree(err).FlawP()}
			return nil, 0, flaw.From(fmt.Errorf("failed to decode album tracks page: %v", err)).Append(flawP)
		}

		songs := make([]store.Song, 0, len(respBody.Items))
		for _, item := range respBody.Items {
			var artistID string
			if len(item.Artists) > 0 {
				artistID = item.Artists[0].ID
			}
			songs = append(songs, store.Song{
				ID:          item.ID,
				Name:        item.Name,
				TrackNumber: item.TrackNumber,
				DiscNumber:  item.DiscNumber,
				QualityKbps: s.catalog.qualityKbps,
				AlbumID:     s.albumID,
				ArtistID:    artistID,
			})
		}
		return songs, len(respBody.Items), nil
	})
}

// AlbumSongs returns every song of an album, sweeping the network only when
// the album has not been fully scanned before.
func (c *Catalog) AlbumSongs(ctx context.Context, albumID string, forceRefresh bool) ([]store.Song, error) {
	return Ensure(ctx, albumSongs{catalog: c, albumID: albumID}, forceRefresh)
}

type artistAlbums struct {
	catalog  *Catalog
	artistID string
}

func (a artistAlbums) Complete(ctx context.Context) (bool, error) {
	return a.catalog.db.HaveAllArtistAlbums(ctx, a.artistID)
}

func (a artistAlbums) MarkComplete(ctx context.Context) error {
	return a.catalog.db.SetHaveAllArtistAlbums(ctx, a.artistID, true)
}

func (a artistAlbums) Load(ctx context.Context) ([]store.Album, error) {
	return a.catalog.db.ArtistAlbums(ctx, a.artistID)
}

func (a artistAlbums) Save(ctx context.Context, items []store.Album) error {
	return a.catalog.db.UpsertArtistAlbums(ctx, a.artistID, items)
}

func (a artistAlbums) Fetch(ctx context.Context) ([]store.Album, error) {
	endpoint := a.catalog.catalogEndpoint("artists", a.artistID, "albums")
	return CollectAll(ctx, a.catalog.client, endpoint, pageLimit, func(body []byte) ([]store.Album, int, error) {
		var respBody struct {
			Items []struct {
				ID          string `json:"id"`
				Name        string `json:"name"`
				ReleaseDate string `json:"release_date"`
				TotalTracks int    `json:"total_tracks"`
			} `json:"items"`
		}
		if err := json.Unmarshal(body, &respBody); nil != err {
			flawP := flaw.P{"artist_id": a.artistID, "response_body": string(body), "err_debug_tree": errutil.Tree(err).FlawP()}
			return nil, 0, flaw.From(fmt.Errorf("failed to decode artist albums page: %v", err)).Append(flawP)
		}

		albums := make([]store.Album, 0, len(respBody.Items))
		for _, item := range respBody.Items {
			albums = append(albums, store.Album{
				ID:          item.ID,
				ArtistID:    a.artistID,
				Name:        item.Name,
				ReleaseDate: item.ReleaseDate,
				TotalTracks: item.TotalTracks,
			})
		}
		return albums, len(respBody.Items), nil
	})
}

// ArtistAlbums returns every album of an artist through the same store gate.
func (c *Catalog) ArtistAlbums(ctx context.Context, artistID string, forceRefresh bool) ([]store.Album, error) {
	return Ensure(ctx, artistAlbums{catalog: c, artistID: artistID}, forceRefresh)
}

type likedArtists struct {
	catalog *Catalog
}

func (l likedArtists) Complete(ctx context.Context) (bool, error) {
	return l.catalog.db.HaveAllLikedArtists(ctx)
}

func (l likedArtists) MarkComplete(ctx context.Context) error {
	return l.catalog.db.SetHaveAllLikedArtists(ctx, true)
}

func (l likedArtists) Load(ctx context.Context) ([]store.Artist, error) {
	return l.catalog.db.LikedArtists(ctx)
}

func (l likedArtists) Save(ctx context.Context, items []store.Artist) error {
	return l.catalog.db.UpsertLikedArtists(ctx, items)
}

func (l likedArtists) Fetch(ctx context.Context) ([]store.Artist, error) {
	endpoint := l.catalog.libraryEndpoint("tracks")
	artists, err := CollectAll(ctx, l.catalog.client, endpoint, pageLimit, func(body []byte) ([]store.Artist, int, error) {
		var respBody struct {
			Items []struct {
				Track struct {
					Artists []struct {
						ID   string `json:"id"`
						Name string `json:"name"`
					} `json:"artists"`
				} `json:"track"`
			} `json:"items"`
		}
		if err := json.Unmarshal(body, &respBody); nil != err {
			flawP := flaw.P{"response_body": string(body), "err_debug_tree": errutil.Tree(err).FlawP()}
			return nil, 0, flaw.From(fmt.Errorf("failed to decode liked tracks page: %v", err)).Append(flawP)
		}

		var out []store.Artist
		for _, item := range respBody.Items {
			for _, artist := range item.Track.Artists {
				out = append(out, store.Artist{ID: artist.ID, Name: artist.Name})
			}
		}
		return out, len(respBody.Items), nil
	})
	if nil != err {
		return nil, err
	}

	// The same artist shows up once per liked song. Collapse to one entry
	// per (id, name) pair and order deterministically.
	artists = lo.UniqBy(artists, func(a store.Artist) string { return a.ID + "\x00" + a.Name })
	slices.SortFunc(artists, func(a, b store.Artist) int {
		if c := strings.Compare(a.ID, b.ID); c != 0 {
			return c
		}
		return strings.Compare(a.Name, b.Name)
	})
	return artists, nil
}

// LikedArtists derives the set of artists appearing in the user's liked
// songs, deduplicated and sorted.
func (c *Catalog) LikedArtists(ctx context.Context, forceRefresh bool) ([]store.Artist, error) {
	return Ensure(ctx, likedArtists{catalog: c}, forceRefresh)
}

// Search queries tracks, albums, artists, and playlists in one call,
// bounded by the configured result limit per kind.
func (c *Catalog) Search(ctx context.Context, query string) (*SearchResults, error) {
	endpoint := c.catalogEndpoint("search")
	params := make(url.Values, 3)
	params.Set("q", query)
	params.Set("type", "track,album,artist,playlist")
	params.Set("limit", strconv.Itoa(c.cfg.SearchLimit))

	resp, err := c.client.Get(ctx, endpoint, params, nil)
	if nil != err {
		return nil, err
	}
	if resp.NotFound() {
		return &SearchResults{}, nil //nolint:exhaustruct
	}

	var respBody struct {
		Tracks struct {
			Items []Track `json:"items"`
		} `json:"tracks"`
		Albums struct {
			Items []Album `json:"items"`
		} `json:"albums"`
		Artists struct {
			Items []Artist `json:"items"`
		} `json:"artists"`
		Playlists struct {
			Items []struct {
				ID    string `json:"id"`
				Name  string `json:"name"`
				Owner struct {
					DisplayName string `json:"display_name"`
				} `json:"owner"`
				Tracks struct {
					Total int `json:"total"`
				} `json:"tracks"`
			} `json:"items"`
		} `json:"playlists"`
	}
	if err := json.Unmarshal(resp.Body, &respBody); nil != err {
		flawP := flaw.P{"query": query, "response_body": string(resp.Body), "err_debug_tree": errutil.Tree(err).FlawP()}
		return nil, flaw.From(fmt.Errorf("failed to decode search response: %v", err)).Append(flawP)
	}

	playlists := make([]Playlist, 0, len(respBody.Playlists.Items))
	for _, item := range respBody.Playlists.Items {
		playlists = append(playlists, Playlist{
			ID:          item.ID,
			Name:        item.Name,
			OwnerName:   item.Owner.DisplayName,
			TotalTracks: item.Tracks.Total,
		})
	}

	return &SearchResults{
		Tracks:    respBody.Tracks.Items,
		Albums:    respBody.Albums.Items,
		Artists:   respBody.Artists.Items,
		Playlists: playlists,
	}, nil
}
