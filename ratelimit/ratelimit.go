package ratelimit

import (
	"math/rand/v2"
	"time"

	"github.com/xeptore/spotd/config"
)

// AuthGetRetryDelay grows linearly with the attempt index so consecutive
// failures back the client off harder. Attempt 0 waits nothing.
func AuthGetRetryDelay(attempt int) time.Duration {
	return time.Duration(attempt) * config.AuthGetRetryDelayStep
}

// DownloadPacing jitters the configured anti-ban wait so back-to-back
// downloads do not hit the source on a fixed cadence.
func DownloadPacing(base time.Duration) time.Duration {
	if base <= 0 {
		return 0
	}
	return base + time.Duration(rand.N(1000))*time.Millisecond //nolint:gosec
}
