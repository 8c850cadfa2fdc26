package spotify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/xeptore/flaw/v8"

	"github.com/xeptore/spotd/config"
	"github.com/xeptore/spotd/errutil"
	"github.com/xeptore/spotd/httputil"
	"github.com/xeptore/spotd/must"
	"github.com/xeptore/spotd/ratelimit"
	"github.com/xeptore/spotd/spotify/auth"
)

var ErrRetriesExhausted = errors.New("retries exhausted")

// errTransient marks a failed attempt the retry loop is allowed to repeat:
// connection failures, timeouts, unexpected status codes, and bodies that
// do not decode to a non-empty JSON value.
var errTransient = errors.New("transient request failure")

// errUnauthorized marks a 401, which triggers a token refresh before the
// next attempt.
var errUnauthorized = errors.New("unauthorized request")

// TokenSource provides the current token pair and refreshes both tokens
// when the API rejects one.
type TokenSource interface {
	Tokens() auth.TokenPair
	RefreshTokens(ctx context.Context) (*auth.TokenPair, error)
}

// Response is a terminal API response. Status is either 200 or 404. A 404
// is data, not failure. Callers decide what an absent resource means.
type Response struct {
	Status int
	Body   []byte
}

func (r *Response) NotFound() bool {
	return r.Status == http.StatusNotFound
}

type Client struct {
	logger zerolog.Logger
	tokens TokenSource
}

func NewClient(logger zerolog.Logger, tokens TokenSource) *Client {
	return &Client{logger: logger, tokens: tokens}
}

// Get issues one logical GET against endpoint, retrying transient failures
// up to the attempt ceiling with a linearly growing delay between attempts.
// A 401 refreshes both tokens before the next attempt and spends an attempt
// like any other failure.
func (c *Client) Get(ctx context.Context, endpoint Endpoint, params url.Values, extra http.Header) (*Response, error) {
	reqURL := endpoint.URL
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}
	flawP := flaw.P{"url": reqURL, "audience": endpoint.Audience.String()}

	for attempt := 0; attempt <= config.MaxAuthGetRetries; attempt++ {
		if attempt > 0 {
			if err := sleep(ctx, ratelimit.AuthGetRetryDelay(attempt)); nil != err {
				return nil, err
			}
		}

		resp, err := c.once(ctx, endpoint.Audience, reqURL, extra)
		switch {
		case nil == err:
			return resp, nil
		case errutil.IsContext(ctx):
			return nil, ctx.Err()
		case errors.Is(err, errUnauthorized):
			c.logger.Debug().Str("url", reqURL).Int("attempt", attempt).Msg("Received 401 response. Refreshing tokens.")
			if _, err := c.tokens.RefreshTokens(ctx); nil != err {
				switch {
				case errutil.IsContext(ctx):
					return nil, ctx.Err()
				case errors.Is(err, context.DeadlineExceeded):
					return nil, context.DeadlineExceeded
				case errutil.IsFlaw(err):
					return nil, must.BeFlaw(err).Append(flawP)
				default:
					panic(errutil.UnknownError(err))
				}
			}
		case errors.Is(err, errTransient):
			c.logger.Debug().Str("url", reqURL).Int("attempt", attempt).Err(err).Msg("Request attempt failed. Retrying.")
		case errutil.IsFlaw(err):
			return nil, must.BeFlaw(err).Append(flawP)
		default:
			panic(errutil.UnknownError(err))
		}
	}

	return nil, ErrRetriesExhausted
}

func (c *Client) once(ctx context.Context, audience Audience, reqURL string, extra http.Header) (out *Response, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if nil != err {
		if errutil.IsContext(ctx) {
			return nil, ctx.Err()
		}
		flawP := flaw.P{"url": reqURL, "err_debug_tree": errutil.Tree(err).FlawP()}
		return nil, flaw.From(fmt.Errorf("failed to create request: %v", err)).Append(flawP)
	}

	token := c.tokens.Tokens().Catalog
	if audience == AudienceLibrary {
		token = c.tokens.Tokens().Library
	}
	req.Header.Add("Authorization", "Bearer "+token)
	req.Header.Add("Accept", "application/json")
	for key, values := range extra {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}

	client := http.Client{Timeout: config.AuthGetTimeout} //nolint:exhaustruct
	resp, err := client.Do(req)
	if nil != err {
		switch {
		case errutil.IsContext(ctx):
			return nil, ctx.Err()
		case errors.Is(err, context.DeadlineExceeded):
			return nil, fmt.Errorf("%w: request timed out", errTransient)
		default:
			return nil, fmt.Errorf("%w: %v", errTransient, err)
		}
	}
	defer func() {
		if closeErr := resp.Body.Close(); nil != closeErr {
			flawP := flaw.P{"url": reqURL, "err_debug_tree": errutil.Tree(closeErr).FlawP()}
			closeErr = flaw.From(fmt.Errorf("failed to close response body: %v", closeErr)).Append(flawP)
			switch {
			case nil == err:
				err = closeErr
			case errutil.IsContext(ctx):
				err = flaw.From(errors.New("context was ended")).Join(closeErr)
			case errors.Is(err, errTransient), errors.Is(err, errUnauthorized):
				// Attempt already failed. The close failure is not worth
				// promoting over the retryable error.
			default:
				err = must.BeFlaw(err).Join(closeErr)
			}
		}
	}()

	switch code := resp.StatusCode; {
	case code >= http.StatusOK && code < http.StatusBadRequest:
		respBytes, err := httputil.ReadResponseBody(ctx, resp)
		if nil != err {
			return nil, err
		}
		if !httputil.IsJSONResponse(resp) {
			return nil, fmt.Errorf("%w: non-JSON %d response", errTransient, code)
		}
		var v any
		if err := json.Unmarshal(respBytes, &v); nil != err {
			return nil, fmt.Errorf("%w: malformed %d response body: %v", errTransient, code, err)
		}
		if httputil.IsEmptyJSONValue(v) {
			return nil, fmt.Errorf("%w: empty %d response body", errTransient, code)
		}
		return &Response{Status: code, Body: respBytes}, nil
	case code == http.StatusNotFound:
		respBytes, err := httputil.ReadOptionalResponseBody(ctx, resp)
		if nil != err {
			return nil, err
		}
		return &Response{Status: code, Body: respBytes}, nil
	case code == http.StatusUnauthorized:
		return nil, errUnauthorized
	default:
		if retryAfter, ok := errutil.IsRateLimitedResponse(resp); ok {
			return nil, fmt.Errorf("%w: rate limited, retry after: %q", errTransient, retryAfter)
		}
		return nil, fmt.Errorf("%w: unexpected status code: %d", errTransient, code)
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
