package auth

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/goccy/go-json"
	"github.com/xeptore/flaw/v8"

	"github.com/xeptore/spotd/config"
	"github.com/xeptore/spotd/errutil"
	"github.com/xeptore/spotd/httputil"
	"github.com/xeptore/spotd/log"
	"github.com/xeptore/spotd/must"
	"github.com/xeptore/spotd/ptr"
)

const defaultSessionBaseURL = "https://accesspoint.spotify.com/v1/session"

// RemoteSession implements Session over the access-point HTTP API. It holds
// the device session id handed out at login and uses it to mint token pairs
// and query the account tier.
type RemoteSession struct {
	baseURL   string
	sessionID string
}

func NewRemoteSession() *RemoteSession {
	return &RemoteSession{baseURL: defaultSessionBaseURL, sessionID: ""}
}

// NewRemoteSessionWithBaseURL is the constructor test servers use.
func NewRemoteSessionWithBaseURL(baseURL string) *RemoteSession {
	return &RemoteSession{baseURL: baseURL, sessionID: ""}
}

func (s *RemoteSession) LoginStoredCredentials(ctx context.Context, creds Credentials) error {
	params := make(url.Values, 3)
	params.Add("username", creds.Username)
	params.Add("credentials", creds.Blob)
	params.Add("type", creds.Type)

	sessionID, _, err := s.login(ctx, params)
	if nil != err {
		return err
	}
	s.sessionID = sessionID
	return nil
}

func (s *RemoteSession) LoginUserPass(ctx context.Context, username, password string) (*Credentials, error) {
	params := make(url.Values, 3)
	params.Add("username", username)
	params.Add("password", password)
	params.Add("type", "AUTHENTICATION_USER_PASS")

	sessionID, creds, err := s.login(ctx, params)
	if nil != err {
		return nil, err
	}
	if nil == creds {
		return nil, flaw.From(errors.New("login response carried no reusable credentials"))
	}
	s.sessionID = sessionID
	return creds, nil
}

func (s *RemoteSession) login(ctx context.Context, params url.Values) (sessionID string, creds *Credentials, err error) {
	reqURL, err := url.JoinPath(s.baseURL, "login")
	if nil != err {
		flawP := flaw.P{"base_url": s.baseURL, "err_debug_tree": errutil.Tree(err).FlawP()}
		return "", nil, flaw.From(fmt.Errorf("failed to build login URL: %v", err)).Append(flawP)
	}
	flawP := flaw.P{"url": reqURL, "username": params.Get("username")}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewBufferString(params.Encode()))
	if nil != err {
		if errutil.IsContext(ctx) {
			return "", nil, ctx.Err()
		}
		flawP["err_debug_tree"] = errutil.Tree(err).FlawP()
		return "", nil, flaw.From(fmt.Errorf("failed to create login request: %v", err)).Append(flawP)
	}
	req.Header.Add("Content-Type", "application/x-www-form-urlencoded")

	client := http.Client{Timeout: config.TokenRefreshTimeout} //nolint:exhaustruct
	resp, err := client.Do(req)
	if nil != err {
		switch {
		case errutil.IsContext(ctx):
			return "", nil, ctx.Err()
		case errors.Is(err, context.DeadlineExceeded):
			return "", nil, context.DeadlineExceeded
		default:
			flawP["err_debug_tree"] = errutil.Tree(err).FlawP()
			return "", nil, flaw.From(fmt.Errorf("failed to issue login request: %v", err)).Append(flawP)
		}
	}
	defer func() {
		if closeErr := resp.Body.Close(); nil != closeErr {
			flawP["err_debug_tree"] = errutil.Tree(closeErr).FlawP()
			closeErr = flaw.From(fmt.Errorf("failed to close login response body: %v", closeErr)).Append(flawP)
			switch {
			case nil == err:
				err = closeErr
			case errutil.IsContext(ctx):
				err = flaw.From(errors.New("context was ended")).Join(closeErr)
			case errors.Is(err, context.DeadlineExceeded):
				err = flaw.From(errors.New("timeout has reached")).Join(closeErr)
			case errors.Is(err, ErrBadCredentials):
				err = flaw.From(errors.New("received bad credentials error")).Join(closeErr)
			default:
				err = must.BeFlaw(err).Join(closeErr)
			}
		}
	}()
	flawP["response"] = errutil.HTTPResponseFlawPayload(resp)

	switch code := resp.StatusCode; code {
	case http.StatusOK:
	case http.StatusUnauthorized, http.StatusForbidden:
		return "", nil, ErrBadCredentials
	default:
		respBytes, err := httputil.ReadOptionalResponseBody(ctx, resp)
		if nil != err {
			return "", nil, err
		}
		flawP["response_body"] = string(respBytes)
		return "", nil, flaw.From(fmt.Errorf("unexpected login status code: %d", code)).Append(flawP)
	}

	respBytes, err := httputil.ReadResponseBody(ctx, resp)
	if nil != err {
		return "", nil, err
	}
	var respBody struct {
		SessionID   string `json:"session_id"`
		Credentials *struct {
			Username string `json:"username"`
			Blob     string `json:"credentials"`
			Type     string `json:"type"`
		} `json:"stored_credentials"`
	}
	if err := json.Unmarshal(respBytes, &respBody); nil != err {
		flawP["response_body"] = string(respBytes)
		flawP["err_debug_tree"] = errutil.Tree(err).FlawP()
		return "", nil, flaw.From(fmt.Errorf("failed to decode login response body: %v", err)).Append(flawP)
	}
	if respBody.SessionID == "" {
		flawP["response_body"] = string(respBytes)
		return "", nil, flaw.From(errors.New("login response carried no session id")).Append(flawP)
	}

	if nil != respBody.Credentials {
		creds = ptr.Of(Credentials{
			Username: respBody.Credentials.Username,
			Blob:     respBody.Credentials.Blob,
			Type:     respBody.Credentials.Type,
		})
	}
	return respBody.SessionID, creds, nil
}

func (s *RemoteSession) Tokens(ctx context.Context) (tokens *TokenPair, err error) {
	reqURL, err := url.JoinPath(s.baseURL, "tokens")
	if nil != err {
		flawP := flaw.P{"base_url": s.baseURL, "err_debug_tree": errutil.Tree(err).FlawP()}
		return nil, flaw.From(fmt.Errorf("failed to build tokens URL: %v", err)).Append(flawP)
	}
	flawP := flaw.P{"url": reqURL, "session_id": log.RedactString(s.sessionID)}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if nil != err {
		if errutil.IsContext(ctx) {
			return nil, ctx.Err()
		}
		flawP["err_debug_tree"] = errutil.Tree(err).FlawP()
		return nil, flaw.From(fmt.Errorf("failed to create tokens request: %v", err)).Append(flawP)
	}
	req.Header.Add("X-Session-Id", s.sessionID)

	client := http.Client{Timeout: config.TokenRefreshTimeout} //nolint:exhaustruct
	resp, err := client.Do(req)
	if nil != err {
		switch {
		case errutil.IsContext(ctx):
			return nil, ctx.Err()
		case errors.Is(err, context.DeadlineExceeded):
			return nil, context.DeadlineExceeded
		default:
			flawP["err_debug_tree"] = errutil.Tree(err).FlawP()
			return nil, flaw.From(fmt.Errorf("failed to issue tokens request: %v", err)).Append(flawP)
		}
	}
	defer func() {
		if closeErr := resp.Body.Close(); nil != closeErr {
			flawP["err_debug_tree"] = errutil.Tree(closeErr).FlawP()
			closeErr = flaw.From(fmt.Errorf("failed to close tokens response body: %v", closeErr)).Append(flawP)
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
			return nil, err
		}
		flawP["response_body"] = string(respBytes)
		return nil, flaw.From(fmt.Errorf("unexpected tokens status code: %d", code)).Append(flawP)
	}

	respBytes, err := httputil.ReadResponseBody(ctx, resp)
	if nil != err {
		return nil, err
	}
	var respBody struct {
		Catalog string `json:"catalog"`
		Library string `json:"library"`
	}
	if err := json.Unmarshal(respBytes, &respBody); nil != err {
		flawP["response_body"] = string(respBytes)
		flawP["err_debug_tree"] = errutil.Tree(err).FlawP()
		return nil, flaw.From(fmt.Errorf("failed to decode tokens response body: %v", err)).Append(flawP)
	}
	if respBody.Catalog == "" || respBody.Library == "" {
		flawP["response_body"] = string(respBytes)
		return nil, flaw.From(errors.New("tokens response misses a token")).Append(flawP)
	}
	return &TokenPair{Catalog: respBody.Catalog, Library: respBody.Library}, nil
}

func (s *RemoteSession) AccountTier(ctx context.Context) (tier Tier, err error) {
	reqURL, err := url.JoinPath(s.baseURL, "account")
	if nil != err {
		flawP := flaw.P{"base_url": s.baseURL, "err_debug_tree": errutil.Tree(err).FlawP()}
		return "", flaw.From(fmt.Errorf("failed to build account URL: %v", err)).Append(flawP)
	}
	flawP := flaw.P{"url": reqURL, "session_id": log.RedactString(s.sessionID)}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if nil != err {
		if errutil.IsContext(ctx) {
			return "", ctx.Err()
		}
		flawP["err_debug_tree"] = errutil.Tree(err).FlawP()
		return "", flaw.From(fmt.Errorf("failed to create account request: %v", err)).Append(flawP)
	}
	req.Header.Add("X-Session-Id", s.sessionID)

	client := http.Client{Timeout: config.AccountTierTimeout} //nolint:exhaustruct
	resp, err := client.Do(req)
	if nil != err {
		switch {
		case errutil.IsContext(ctx):
			return "", ctx.Err()
		case errors.Is(err, context.DeadlineExceeded):
			return "", context.DeadlineExceeded
		default:
			flawP["err_debug_tree"] = errutil.Tree(err).FlawP()
			return "", flaw.From(fmt.Errorf("failed to issue account request: %v", err)).Append(flawP)
		}
	}
	defer func() {
		if closeErr := resp.Body.Close(); nil != closeErr {
			flawP["err_debug_tree"] = errutil.Tree(closeErr).FlawP()
			closeErr = flaw.From(fmt.Errorf("failed to close account response body: %v", closeErr)).Append(flawP)
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
			return "", err
		}
		flawP["response_body"] = string(respBytes)
		return "", flaw.From(fmt.Errorf("unexpected account status code: %d", code)).Append(flawP)
	}

	respBytes, err := httputil.ReadResponseBody(ctx, resp)
	if nil != err {
		return "", err
	}
	var respBody struct {
		Product string `json:"product"`
	}
	if err := json.Unmarshal(respBytes, &respBody); nil != err {
		flawP["response_body"] = string(respBytes)
		flawP["err_debug_tree"] = errutil.Tree(err).FlawP()
		return "", flaw.From(fmt.Errorf("failed to decode account response body: %v", err)).Append(flawP)
	}
	if respBody.Product == string(TierPremium) {
		return TierPremium, nil
	}
	return TierFree, nil
}

func (s *RemoteSession) Close() error {
	s.sessionID = ""
	return nil
}
