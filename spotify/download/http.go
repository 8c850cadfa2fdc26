package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/goccy/go-json"
	"github.com/xeptore/flaw/v8"

	"github.com/xeptore/spotd/config"
	"github.com/xeptore/spotd/errutil"
	"github.com/xeptore/spotd/httputil"
	"github.com/xeptore/spotd/must"
)

// TokenFunc supplies the bearer token that authorizes stream resolution.
type TokenFunc func() string

// HTTPSource resolves a track id to a stream URL and serves chunk reads
// off the long-lived response body.
type HTTPSource struct {
	baseURL string
	token   TokenFunc
}

func NewHTTPSource(baseURL string, token TokenFunc) *HTTPSource {
	return &HTTPSource{baseURL: baseURL, token: token}
}

func (s *HTTPSource) Open(ctx context.Context, trackID string, qualityKbps int) (Session, error) {
	streamURL, totalSize, err := s.resolve(ctx, trackID, qualityKbps)
	if nil != err {
		return nil, err
	}
	return s.openStream(ctx, streamURL, totalSize)
}

func (s *HTTPSource) resolve(ctx context.Context, trackID string, qualityKbps int) (streamURL string, totalSize int, err error) {
	reqURL, err := url.JoinPath(s.baseURL, "audio", trackID)
	if nil != err {
		flawP := flaw.P{"base_url": s.baseURL, "track_id": trackID, "err_debug_tree": errutil.Tree(err).FlawP()}
		return "", 0, flaw.From(fmt.Errorf("failed to build stream resolution URL: %v", err)).Append(flawP)
	}
	flawP := flaw.P{"url": reqURL, "track_id": trackID}

	params := make(url.Values, 1)
	params.Set("bitrate", strconv.Itoa(qualityKbps))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL+"?"+params.Encode(), nil)
	if nil != err {
		if errutil.IsContext(ctx) {
			return "", 0, ctx.Err()
		}
		flawP["err_debug_tree"] = errutil.Tree(err).FlawP()
		return "", 0, flaw.From(fmt.Errorf("failed to create stream resolution request: %v", err)).Append(flawP)
	}
	req.Header.Add("Authorization", "Bearer "+s.token())

	client := http.Client{Timeout: config.OpenStreamRequestTimeout} //nolint:exhaustruct
	resp, err := client.Do(req)
	if nil != err {
		switch {
		case errutil.IsContext(ctx):
			return "", 0, ctx.Err()
		case errors.Is(err, context.DeadlineExceeded):
			return "", 0, context.DeadlineExceeded
		default:
			flawP["err_debug_tree"] = errutil.Tree(err).FlawP()
			return "", 0, flaw.From(fmt.Errorf("failed to issue stream resolution request: %v", err)).Append(flawP)
		}
	}
	defer func() {
		if closeErr := resp.Body.Close(); nil != closeErr {
			flawP["err_debug_tree"] = errutil.Tree(closeErr).FlawP()
			closeErr = flaw.From(fmt.Errorf("failed to close stream resolution response body: %v", closeErr)).Append(flawP)
			switch {
			case nil == err:
				err = closeErr
			case errutil.IsContext(ctx):
				err = flaw.From(errors.New("context was ended")).Join(closeErr)
			case errors.Is(err, context.DeadlineExceeded):
				err = flaw.From(errors.New("timeout has reached")).Join(closeErr)
			default:
				err = must.BeFlaw(err).Join(closeErr)
			}
		}
	}()
	flawP["response"] = errutil.HTTPResponseFlawPayload(resp)

	if code := resp.StatusCode; code != http.StatusOK {
		respBytes, err := httputil.ReadOptionalResponseBody(ctx, resp)
		if nil != err {
			return "", 0, err
		}
		flawP["response_body"] = string(respBytes)
		return "", 0, flaw.From(fmt.Errorf("unexpected stream resolution status code: %d", code)).Append(flawP)
	}

	respBytes, err := httputil.ReadResponseBody(ctx, resp)
	if nil != err {
		return "", 0, err
	}
	var respBody struct {
		URL      string `json:"url"`
		FileSize int    `json:"file_size"`
	}
	if err := json.Unmarshal(respBytes, &respBody); nil != err {
		flawP["response_body"] = string(respBytes)
		flawP["err_debug_tree"] = errutil.Tree(err).FlawP()
		return "", 0, flaw.From(fmt.Errorf("failed to decode stream resolution response body: %v", err)).Append(flawP)
	}
	if respBody.URL == "" || respBody.FileSize <= 0 {
		flawP["response_body"] = string(respBytes)
		return "", 0, flaw.From(errors.New("stream resolution response misses URL or file size")).Append(flawP)
	}
	return respBody.URL, respBody.FileSize, nil
}

func (s *HTTPSource) openStream(ctx context.Context, streamURL string, totalSize int) (Session, error) {
	flawP := flaw.P{"url": streamURL, "total_size": totalSize}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, streamURL, nil)
	if nil != err {
		if errutil.IsContext(ctx) {
			return nil, ctx.Err()
		}
		flawP["err_debug_tree"] = errutil.Tree(err).FlawP()
		return nil, flaw.From(fmt.Errorf("failed to create stream request: %v", err)).Append(flawP)
	}

	// No client timeout here. The body outlives the request for the whole
	// chunked drain, and cancellation rides on ctx.
	resp, err := http.DefaultClient.Do(req)
	if nil != err {
		switch {
		case errutil.IsContext(ctx):
			return nil, ctx.Err()
		default:
			flawP["err_debug_tree"] = errutil.Tree(err).FlawP()
			return nil, flaw.From(fmt.Errorf("failed to open stream: %v", err)).Append(flawP)
		}
	}

	switch code := resp.StatusCode; code {
	case http.StatusOK, http.StatusPartialContent:
	default:
		if closeErr := resp.Body.Close(); nil != closeErr {
			flawP["close_err_debug_tree"] = errutil.Tree(closeErr).FlawP()
		}
		flawP["status_code"] = code
		return nil, flaw.From(fmt.Errorf("unexpected stream status code: %d", code)).Append(flawP)
	}

	return &httpSession{body: resp.Body, totalSize: totalSize, read: 0}, nil
}

type httpSession struct {
	body      io.ReadCloser
	totalSize int
	read      int
}

func (s *httpSession) TotalSize() int {
	return s.totalSize
}

func (s *httpSession) ReadChunk(ctx context.Context, n int) ([]byte, error) {
	if err := ctx.Err(); nil != err {
		return nil, err
	}
	if n <= 0 || s.read >= s.totalSize {
		return nil, ErrStreamCorrupted
	}

	buf := make([]byte, n)
	read, err := s.body.Read(buf)
	if read > 0 {
		s.read += read
		if s.read > s.totalSize {
			return nil, ErrStreamCorrupted
		}
		return buf[:read], nil
	}
	if nil != err && !errors.Is(err, io.EOF) {
		if errutil.IsContext(ctx) {
			return nil, ctx.Err()
		}
		flawP := flaw.P{"read_so_far": s.read, "total_size": s.totalSize, "err_debug_tree": errutil.Tree(err).FlawP()}
		return nil, flaw.From(fmt.Errorf("failed to read stream chunk: %v", err)).Append(flawP)
	}
	// EOF before the advertised size behaves as a stall and is absorbed by
	// the caller's empty-read budget.
	return nil, nil
}

func (s *httpSession) Close() error {
	if err := s.body.Close(); nil != err {
		flawP := flaw.P{"err_debug_tree": errutil.Tree(err).FlawP()}
		return flaw.From(fmt.Errorf("failed to close stream body: %v", err)).Append(flawP)
	}
	return nil
}
