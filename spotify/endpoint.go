package spotify

// Audience selects which of the session's two bearer tokens authorizes a
// request. Personal-library and lyrics endpoints accept only the library
// token, everything else takes the catalog token.
type Audience uint8

const (
	AudienceCatalog Audience = iota
	AudienceLibrary
)

func (a Audience) String() string {
	if a == AudienceLibrary {
		return "library"
	}
	return "catalog"
}

// Endpoint pairs a request URL with the token audience it must be
// authorized under.
type Endpoint struct {
	URL      string
	Audience Audience
}

const (
	apiBaseURL    = "https://api.spotify.com/v1"
	lyricsBaseURL = "https://spclient.wg.spotify.com/color-lyrics/v2"
)
