package config

import "time"

var (
	AuthGetTimeout           = 10 * time.Second
	AuthGetRetryDelayStep    = 10 * time.Second
	MaxAuthGetRetries        = 10
	TokenRefreshTimeout      = 10 * time.Second
	AccountTierTimeout       = 5 * time.Second
	OpenStreamRequestTimeout = 10 * time.Second
	DownloadChunkSize        = 50_000
	MaxConsecutiveEmptyReads = 30
	ConvertTimeout           = 2 * time.Minute
)
