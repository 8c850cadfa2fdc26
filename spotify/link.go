package spotify

import (
	"net/url"
	"strings"
)

type LinkKind string

const (
	LinkTrack    LinkKind = "track"
	LinkAlbum    LinkKind = "album"
	LinkArtist   LinkKind = "artist"
	LinkPlaylist LinkKind = "playlist"
	LinkShow     LinkKind = "show"
	LinkEpisode  LinkKind = "episode"
)

type Link struct {
	Kind LinkKind
	ID   string
}

// ParseLink extracts the entity kind and id from a share URL or a
// spotify:{kind}:{id} URI. Localized URLs carry a leading "intl-xx" path
// segment, which is skipped.
func ParseLink(text string) (*Link, bool) {
	u, err := url.Parse(strings.TrimSpace(text))
	if nil != err {
		return nil, false
	}

	switch u.Scheme {
	case "spotify":
		return linkFromParts(strings.Split(u.Opaque, ":"))
	case "https", "http":
	default:
		return nil, false
	}

	switch u.Host {
	case "open.spotify.com", "play.spotify.com":
	default:
		return nil, false
	}

	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) > 0 && strings.HasPrefix(parts[0], "intl-") {
		parts = parts[1:]
	}
	return linkFromParts(parts)
}

func linkFromParts(parts []string) (*Link, bool) {
	if len(parts) != 2 || parts[1] == "" {
		return nil, false
	}
	switch kind := LinkKind(parts[0]); kind {
	case LinkTrack, LinkAlbum, LinkArtist, LinkPlaylist, LinkShow, LinkEpisode:
		return &Link{Kind: kind, ID: parts[1]}, true
	default:
		return nil, false
	}
}
