package spotify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

var ErrNoLyrics = errors.New("track has no lyrics")

const (
	SyncTypeUnsynced   = "UNSYNCED"
	SyncTypeLineSynced = "LINE_SYNCED"
)

type LyricsLine struct {
	Words       string
	StartTimeMs int
}

type Lyrics struct {
	SyncType string
	Lines    []LyricsLine
}

// FileExtension is ".lrc" for line-synced lyrics and ".txt" otherwise.
func (l *Lyrics) FileExtension() string {
	if l.SyncType == SyncTypeLineSynced {
		return ".lrc"
	}
	return ".txt"
}

// Render produces the file content: bare lines when unsynced, otherwise
// each line prefixed with its [mm:ss.cc] start timestamp.
func (l *Lyrics) Render() string {
	var b strings.Builder
	for _, line := range l.Lines {
		if l.SyncType == SyncTypeLineSynced {
			b.WriteString(formatLyricsTimestamp(line.StartTimeMs))
		}
		b.WriteString(line.Words)
		b.WriteByte('\n')
	}
	return b.String()
}

// formatLyricsTimestamp renders milliseconds as [mm:ss.cc]. The centisecond
// part keeps the first two decimal digits of the millisecond remainder,
// left-padded with zeros.
func formatLyricsTimestamp(ms int) string {
	frac := strconv.Itoa(ms % 1000)
	if len(frac) > 2 {
		frac = frac[:2]
	}
	for len(frac) < 2 {
		frac = "0" + frac
	}
	return fmt.Sprintf("[%02d:%02d.%s]", ms/60000, ms/1000%60, frac)
}

// Lyrics fetches a track's lyrics. Absence is the common case and is
// reported as ErrNoLyrics, not a failure.
func (c *Catalog) Lyrics(ctx context.Context, trackID string) (*Lyrics, error) {
	endpoint := Endpoint{
		URL:      c.lyricsBase + "/track/" + trackID,
		Audience: AudienceLibrary,
	}
	params := make(url.Values, 2)
	params.Set("format", "json")
	params.Set("market", "from_token")
	extra := make(http.Header, 1)
	extra.Set("App-Platform", "WebPlayer")

	resp, err := c.client.Get(ctx, endpoint, params, extra)
	if nil != err {
		return nil, err
	}
	if resp.NotFound() {
		return nil, ErrNoLyrics
	}

	body := gjson.GetBytes(resp.Body, "lyrics")
	rawLines := body.Get("lines").Array()
	lines := make([]LyricsLine, 0, len(rawLines))
	for _, rawLine := range rawLines {
		lines = append(lines, LyricsLine{
			Words:       rawLine.Get("words").String(),
			StartTimeMs: int(rawLine.Get("startTimeMs").Int()),
		})
	}
	return &Lyrics{
		SyncType: body.Get("syncType").String(),
		Lines:    lines,
	}, nil
}
