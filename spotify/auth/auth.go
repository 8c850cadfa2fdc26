// Package auth manages the authenticated session: credential persistence,
// the pair of bearer tokens the web API accepts, and the account tier that
// decides stream quality.
package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/cenkalti/backoff/v4"
	"github.com/xeptore/flaw/v8"

	"github.com/xeptore/spotd/config"
	"github.com/xeptore/spotd/errutil"
	"github.com/xeptore/spotd/must"
	"github.com/xeptore/spotd/store"
)

var (
	ErrUnauthorized   = errors.New("Unauthorized")
	ErrBadCredentials = errors.New("bad credentials")
)

type Tier string

const (
	TierPremium Tier = "premium"
	TierFree    Tier = "free"
)

type Quality struct {
	BitrateKbps int
	FormatName  string
}

func (t Tier) Quality() Quality {
	if t == TierPremium {
		return Quality{BitrateKbps: 320, FormatName: "very-high"}
	}
	return Quality{BitrateKbps: 160, FormatName: "high"}
}

// TokenPair holds the two bearer tokens the catalog layer needs. Library
// authorizes personal-library and lyrics endpoints, Catalog authorizes
// everything else.
type TokenPair struct {
	Catalog string
	Library string
}

type Credentials struct {
	Username string
	Blob     string
	Type     string
}

// Session is the device session underneath the web API. Implementations own
// the wire protocol. Tokens mints a fresh token pair, and StreamKey derives
// the audio decryption key for a file.
type Session interface {
	LoginStoredCredentials(ctx context.Context, creds Credentials) error
	LoginUserPass(ctx context.Context, username, password string) (*Credentials, error)
	Tokens(ctx context.Context) (*TokenPair, error)
	AccountTier(ctx context.Context) (Tier, error)
	Close() error
}

type Auth struct {
	session Session
	db      *store.Store

	mu     sync.Mutex
	tokens TokenPair
	tier   Tier
}

func New(session Session, db *store.Store) *Auth {
	return &Auth{session: session, db: db} //nolint:exhaustruct
}

// Login establishes the session, preferring credentials persisted from a
// previous run. A fresh username/password login stores the reusable
// credential blob it yields.
func (a *Auth) Login(ctx context.Context, username, password string) error {
	stored, err := a.db.Credentials(ctx)
	if nil != err && !errors.Is(err, store.ErrNotFound) {
		return err
	}

	if nil != stored {
		err := a.session.LoginStoredCredentials(ctx, Credentials(*stored))
		switch {
		case nil == err:
			return a.initialize(ctx)
		case errutil.IsContext(ctx):
			return ctx.Err()
		case errors.Is(err, ErrBadCredentials):
			// Stored blob went stale. Fall through to a fresh login.
		case errutil.IsFlaw(err):
			return err
		default:
			panic(errutil.UnknownError(err))
		}
	}

	if username == "" || password == "" {
		return ErrUnauthorized
	}

	creds, err := a.session.LoginUserPass(ctx, username, password)
	if nil != err {
		switch {
		case errutil.IsContext(ctx):
			return ctx.Err()
		case errors.Is(err, ErrBadCredentials):
			return ErrBadCredentials
		case errutil.IsFlaw(err):
			return err
		default:
			panic(errutil.UnknownError(err))
		}
	}
	if err := a.db.UpsertCredentials(ctx, store.Credentials(*creds)); nil != err {
		return err
	}
	return a.initialize(ctx)
}

func (a *Auth) initialize(ctx context.Context) error {
	if _, err := a.RefreshTokens(ctx); nil != err {
		return err
	}

	tierCtx, cancel := context.WithTimeout(ctx, config.AccountTierTimeout)
	defer cancel()
	tier, err := a.session.AccountTier(tierCtx)
	if nil != err {
		switch {
		case errutil.IsContext(ctx):
			return ctx.Err()
		case errors.Is(err, context.DeadlineExceeded):
			return context.DeadlineExceeded
		case errutil.IsFlaw(err):
			return err
		default:
			panic(errutil.UnknownError(err))
		}
	}

	a.mu.Lock()
	a.tier = tier
	a.mu.Unlock()
	return nil
}

// Tokens returns the current token pair.
func (a *Auth) Tokens() TokenPair {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.tokens
}

// RefreshTokens mints a fresh token pair, replacing both tokens at once.
// Transient session failures are retried with exponential backoff within
// the refresh timeout window.
func (a *Auth) RefreshTokens(ctx context.Context) (*TokenPair, error) {
	refreshCtx, cancel := context.WithTimeout(ctx, config.TokenRefreshTimeout)
	defer cancel()

	bo := backoff.WithContext(backoff.NewExponentialBackOff(), refreshCtx)
	tokens, err := backoff.RetryWithData(func() (*TokenPair, error) {
		tokens, err := a.session.Tokens(refreshCtx)
		if nil != err {
			switch {
			case errutil.IsContext(ctx):
				return nil, backoff.Permanent(ctx.Err())
			case errors.Is(err, context.DeadlineExceeded):
				return nil, backoff.Permanent(context.DeadlineExceeded)
			case errutil.IsFlaw(err):
				return nil, err
			default:
				panic(errutil.UnknownError(err))
			}
		}
		return tokens, nil
	}, bo)
	if nil != err {
		switch {
		case errutil.IsContext(ctx):
			return nil, ctx.Err()
		case errors.Is(err, context.DeadlineExceeded):
			return nil, context.DeadlineExceeded
		case errutil.IsFlaw(err):
			flawP := flaw.P{"err_debug_tree": errutil.Tree(err).FlawP()}
			return nil, must.BeFlaw(err).Append(flawP)
		default:
			flawP := flaw.P{"err_debug_tree": errutil.Tree(err).FlawP()}
			return nil, flaw.From(fmt.Errorf("failed to refresh tokens: %v", err)).Append(flawP)
		}
	}

	a.mu.Lock()
	a.tokens = *tokens
	a.mu.Unlock()
	return tokens, nil
}

// Tier reports the account tier observed at login, upgraded when the
// premium override is set.
func (a *Auth) Tier(forcePremium bool) Tier {
	if forcePremium {
		return TierPremium
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.tier == "" {
		return TierFree
	}
	return a.tier
}

func (a *Auth) Close() error {
	if err := a.session.Close(); nil != err {
		if errutil.IsFlaw(err) {
			return err
		}
		flawP := flaw.P{"err_debug_tree": errutil.Tree(err).FlawP()}
		return flaw.From(fmt.Errorf("failed to close session: %v", err)).Append(flawP)
	}
	return nil
}

