package spotify

type Artist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Album struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	ReleaseDate string   `json:"release_date"`
	TotalTracks int      `json:"total_tracks"`
	Artists     []Artist `json:"artists"`
}

type Track struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	TrackNumber int      `json:"track_number"`
	DiscNumber  int      `json:"disc_number"`
	DurationMs  int      `json:"duration_ms"`
	IsPlayable  bool     `json:"is_playable"`
	Explicit    bool     `json:"explicit"`
	Artists     []Artist `json:"artists"`
	Album       Album    `json:"album"`
}

type Episode struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	DurationMs int    `json:"duration_ms"`
	ShowID     string `json:"show_id"`
	ShowName   string `json:"show_name"`
}

type Show struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Publisher     string `json:"publisher"`
	TotalEpisodes int    `json:"total_episodes"`
}

type Playlist struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	OwnerName   string `json:"owner_name"`
	TotalTracks int    `json:"total_tracks"`
}

type SearchResults struct {
	Tracks    []Track
	Albums    []Album
	Artists   []Artist
	Playlists []Playlist
}
