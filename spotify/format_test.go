package spotify_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xeptore/spotd/spotify"
)

func TestDetectFormat(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		bytes []byte
		want  spotify.AudioFormat
	}{
		{name: "mp3 frame sync fb", bytes: []byte{0xFF, 0xFB, 0x90, 0x00}, want: spotify.FormatMP3},
		{name: "mp3 frame sync fa", bytes: []byte{0xFF, 0xFA, 0x90, 0x00}, want: spotify.FormatMP3},
		{name: "wav", bytes: []byte("RIFF\x24\x08\x00\x00WAVEfmt "), want: spotify.FormatWAV},
		{name: "flac", bytes: []byte("fLaC\x00\x00\x00\x22"), want: spotify.FormatFLAC},
		{name: "ogg", bytes: []byte("OggS\x00\x02\x00\x00"), want: spotify.FormatOGG},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := spotify.DetectFormat(tt.bytes)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDetectFormatUnknown(t *testing.T) {
	t.Parallel()
	_, err := spotify.DetectFormat([]byte("ID3\x04\x00\x00\x00\x00\x00\x00"))
	assert.ErrorIs(t, err, spotify.ErrUnknownFormat)

	_, err = spotify.DetectFormat(nil)
	assert.ErrorIs(t, err, spotify.ErrUnknownFormat)
}

func TestDetectFormatIgnoresBytesBeyondPrefix(t *testing.T) {
	t.Parallel()
	// WAVE marker past the 16-byte window must not count.
	b := append([]byte("RIFF\x24\x08\x00\x00junkjunk"), []byte("WAVE")...)
	_, err := spotify.DetectFormat(b)
	assert.ErrorIs(t, err, spotify.ErrUnknownFormat)
}
