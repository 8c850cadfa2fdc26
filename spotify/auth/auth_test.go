package auth_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xeptore/spotd/spotify/auth"
	"github.com/xeptore/spotd/store"
)

type fakeSession struct {
	storedLogins   int
	userPassLogins int
	tokenMints     int
	storedErr      error
	tier           auth.Tier
}

func (f *fakeSession) LoginStoredCredentials(context.Context, auth.Credentials) error {
	f.storedLogins++
	return f.storedErr
}

func (f *fakeSession) LoginUserPass(_ context.Context, username, _ string) (*auth.Credentials, error) {
	f.userPassLogins++
	return &auth.Credentials{Username: username, Blob: "fresh-blob", Type: "AUTHENTICATION_STORED_SPOTIFY_CREDENTIALS"}, nil
}

func (f *fakeSession) Tokens(context.Context) (*auth.TokenPair, error) {
	f.tokenMints++
	return &auth.TokenPair{Catalog: "catalog-" + string(rune('0'+f.tokenMints)), Library: "library-" + string(rune('0'+f.tokenMints))}, nil
}

func (f *fakeSession) AccountTier(context.Context) (auth.Tier, error) {
	return f.tier, nil
}

func (f *fakeSession) Close() error { return nil }

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, db.Close()) })
	return db
}

func TestLoginPrefersStoredCredentials(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db := openTestStore(t)
	require.NoError(t, db.UpsertCredentials(ctx, store.Credentials{Username: "u", Blob: "b", Type: "t"}))

	session := &fakeSession{tier: auth.TierPremium} //nolint:exhaustruct
	a := auth.New(session, db)
	require.NoError(t, a.Login(ctx, "", ""))
	assert.Equal(t, 1, session.storedLogins)
	assert.Equal(t, 0, session.userPassLogins)
	assert.Equal(t, auth.TierPremium, a.Tier(false))
	assert.NotEmpty(t, a.Tokens().Catalog)
	assert.NotEmpty(t, a.Tokens().Library)
}

func TestLoginFallsBackToUserPassOnStaleBlob(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db := openTestStore(t)
	require.NoError(t, db.UpsertCredentials(ctx, store.Credentials{Username: "u", Blob: "stale", Type: "t"}))

	session := &fakeSession{storedErr: auth.ErrBadCredentials, tier: auth.TierFree} //nolint:exhaustruct
	a := auth.New(session, db)
	require.NoError(t, a.Login(ctx, "u", "secret"))
	assert.Equal(t, 1, session.storedLogins)
	assert.Equal(t, 1, session.userPassLogins)

	// The fresh reusable blob must replace the stale one.
	creds, err := db.Credentials(ctx)
	require.NoError(t, err)
	assert.Equal(t, "fresh-blob", creds.Blob)
}

func TestLoginWithoutAnythingFails(t *testing.T) {
	t.Parallel()
	db := openTestStore(t)
	a := auth.New(&fakeSession{tier: auth.TierFree}, db) //nolint:exhaustruct
	assert.ErrorIs(t, a.Login(context.Background(), "", ""), auth.ErrUnauthorized)
}

func TestRefreshTokensReplacesBoth(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db := openTestStore(t)
	session := &fakeSession{tier: auth.TierFree} //nolint:exhaustruct
	a := auth.New(session, db)
	require.NoError(t, a.Login(ctx, "u", "p"))

	before := a.Tokens()
	_, err := a.RefreshTokens(ctx)
	require.NoError(t, err)
	after := a.Tokens()
	assert.NotEqual(t, before.Catalog, after.Catalog)
	assert.NotEqual(t, before.Library, after.Library)
}

func TestTierPremiumOverride(t *testing.T) {
	t.Parallel()
	db := openTestStore(t)
	a := auth.New(&fakeSession{tier: auth.TierFree}, db) //nolint:exhaustruct
	assert.Equal(t, auth.TierFree, a.Tier(false))
	assert.Equal(t, auth.TierPremium, a.Tier(true))
}

func TestTierQuality(t *testing.T) {
	t.Parallel()
	assert.Equal(t, 320, auth.TierPremium.Quality().BitrateKbps)
	assert.Equal(t, 160, auth.TierFree.Quality().BitrateKbps)
}
