package spotify

import (
	"bytes"
	"errors"
)

type AudioFormat string

const (
	FormatMP3  AudioFormat = "mp3"
	FormatWAV  AudioFormat = "wav"
	FormatFLAC AudioFormat = "flac"
	FormatOGG  AudioFormat = "ogg"
)

var ErrUnknownFormat = errors.New("unrecognized audio format")

// DetectFormat sniffs the container format from the first bytes of a
// downloaded stream. Only the leading 16 bytes are inspected.
func DetectFormat(b []byte) (AudioFormat, error) {
	if len(b) > 16 {
		b = b[:16]
	}
	switch {
	case bytes.HasPrefix(b, []byte{0xFF, 0xFB}), bytes.HasPrefix(b, []byte{0xFF, 0xFA}):
		return FormatMP3, nil
	case bytes.Contains(b, []byte("RIFF")) && bytes.Contains(b, []byte("WAVE")):
		return FormatWAV, nil
	case bytes.HasPrefix(b, []byte("fLaC")):
		return FormatFLAC, nil
	case bytes.HasPrefix(b, []byte("OggS")):
		return FormatOGG, nil
	default:
		return "", ErrUnknownFormat
	}
}
