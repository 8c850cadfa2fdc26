package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	DataDir               string `json:"data_dir"                 yaml:"data_dir"`
	OutputDir             string `json:"output_dir"               yaml:"output_dir"`
	AudioFormat           string `json:"audio_format"             yaml:"audio_format"`
	ForcePremium          bool   `json:"force_premium"            yaml:"force_premium"`
	AntibanWaitSeconds    int    `json:"antiban_wait_seconds"     yaml:"antiban_wait_seconds"`
	ForceLikedArtistQuery bool   `json:"force_liked_artist_query" yaml:"force_liked_artist_query"`
	ForceAlbumQuery       bool   `json:"force_album_query"        yaml:"force_album_query"`
	SearchLimit           int    `json:"search_limit"             yaml:"search_limit"`
}

func (cfg *Config) validate() error {
	if cfg.DataDir == "" {
		return errors.New("data dir is empty")
	}

	if cfg.OutputDir == "" {
		return errors.New("output dir is empty")
	}

	switch cfg.AudioFormat {
	case "mp3", "wav", "flac", "ogg", "source":
	default:
		return fmt.Errorf("unsupported audio format %q", cfg.AudioFormat)
	}

	if cfg.AntibanWaitSeconds < 0 {
		return errors.New("antiban wait seconds must not be negative")
	}

	if cfg.SearchLimit <= 0 {
		cfg.SearchLimit = 10
	}

	return nil
}

func (cfg *Config) AntibanWait() time.Duration {
	return time.Duration(cfg.AntibanWaitSeconds) * time.Second
}

func FromFile(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if nil != err {
		return nil, fmt.Errorf("failed to read config file %q: %v", filePath, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); nil != err {
		return nil, fmt.Errorf("failed to unmarshal config file %q: %v", filePath, err)
	}

	if err := cfg.validate(); nil != err {
		return nil, fmt.Errorf("validation failed: %v", err)
	}

	return &cfg, nil
}

func FromString(data string) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal([]byte(data), &cfg); nil != err {
		return nil, fmt.Errorf("failed to unmarshal config: %v", err)
	}

	if err := cfg.validate(); nil != err {
		return nil, fmt.Errorf("validation failed: %v", err)
	}

	return &cfg, nil
}
