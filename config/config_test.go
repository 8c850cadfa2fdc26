package config_test

import (
	"testing"

	"github.com/xeptore/spotd/config"
)

func TestFromString(t *testing.T) {
	t.Parallel()

	t.Run("valid", func(t *testing.T) {
		t.Parallel()
		cfg, err := config.FromString(`
data_dir: /var/lib/spotd
output_dir: /music
audio_format: mp3
antiban_wait_seconds: 5
`)
		if nil != err {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.AudioFormat != "mp3" {
			t.Errorf("expected audio format mp3, got %q", cfg.AudioFormat)
		}
		if cfg.SearchLimit != 10 {
			t.Errorf("expected default search limit 10, got %d", cfg.SearchLimit)
		}
	})

	t.Run("unsupported format", func(t *testing.T) {
		t.Parallel()
		if _, err := config.FromString("data_dir: /d\noutput_dir: /o\naudio_format: aiff\n"); nil == err {
			t.Fatal("expected validation error for unsupported audio format")
		}
	})

	t.Run("missing output dir", func(t *testing.T) {
		t.Parallel()
		if _, err := config.FromString("data_dir: /d\naudio_format: ogg\n"); nil == err {
			t.Fatal("expected validation error for missing output dir")
		}
	})
}
