package errutil

import (
	"context"
	"errors"
	"net/http"
)

func IsAny(err error, target error, targets ...error) (error, bool) {
	if errors.Is(err, target) {
		return target, true
	}
	for _, t := range targets {
		if errors.Is(err, t) {
			return t, true
		}
	}
	return nil, false
}

func IsContext(ctx context.Context) bool {
	err := ctx.Err()
	return nil != err && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded))
}

// IsRateLimitedResponse reports whether the response is the API's
// too-many-requests rejection, together with its suggested wait, if any.
func IsRateLimitedResponse(resp *http.Response) (retryAfter string, ok bool) {
	if resp.StatusCode != http.StatusTooManyRequests {
		return "", false
	}
	return resp.Header.Get("Retry-After"), true
}
