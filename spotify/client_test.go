package spotify_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xeptore/spotd/config"
	"github.com/xeptore/spotd/spotify"
	"github.com/xeptore/spotd/spotify/auth"
)

type fakeTokens struct {
	mu        sync.Mutex
	pair      auth.TokenPair
	refreshes int
}

func (f *fakeTokens) Tokens() auth.TokenPair {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pair
}

func (f *fakeTokens) RefreshTokens(context.Context) (*auth.TokenPair, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshes++
	f.pair = auth.TokenPair{Catalog: "catalog-refreshed", Library: "library-refreshed"}
	return &f.pair, nil
}

func shrinkRetryOptions(t *testing.T, maxRetries int) {
	t.Helper()
	prevMax, prevStep := config.MaxAuthGetRetries, config.AuthGetRetryDelayStep
	config.MaxAuthGetRetries = maxRetries
	config.AuthGetRetryDelayStep = time.Millisecond
	t.Cleanup(func() {
		config.MaxAuthGetRetries = prevMax
		config.AuthGetRetryDelayStep = prevStep
	})
}

func TestGetRetriesExhausted(t *testing.T) {
	shrinkRetryOptions(t, 3)

	var requests int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := spotify.NewClient(zerolog.Nop(), &fakeTokens{pair: auth.TokenPair{Catalog: "c", Library: "l"}})
	_, err := client.Get(context.Background(), spotify.Endpoint{URL: srv.URL, Audience: spotify.AudienceCatalog}, nil, nil)
	assert.ErrorIs(t, err, spotify.ErrRetriesExhausted)
	assert.Equal(t, config.MaxAuthGetRetries+1, requests)
}

func TestGetAcceptsNonCanonicalSuccessStatus(t *testing.T) {
	shrinkRetryOptions(t, 3)

	var requests int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"t1"}`))
	}))
	defer srv.Close()

	client := spotify.NewClient(zerolog.Nop(), &fakeTokens{pair: auth.TokenPair{Catalog: "c", Library: "l"}})
	resp, err := client.Get(context.Background(), spotify.Endpoint{URL: srv.URL, Audience: spotify.AudienceCatalog}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.Status)
	assert.Equal(t, 1, requests)
}

func TestGetRetriesNoContentResponse(t *testing.T) {
	shrinkRetryOptions(t, 2)

	var requests int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	client := spotify.NewClient(zerolog.Nop(), &fakeTokens{pair: auth.TokenPair{Catalog: "c", Library: "l"}})
	_, err := client.Get(context.Background(), spotify.Endpoint{URL: srv.URL, Audience: spotify.AudienceCatalog}, nil, nil)
	assert.ErrorIs(t, err, spotify.ErrRetriesExhausted)
	assert.Equal(t, config.MaxAuthGetRetries+1, requests)
}

func TestGetRefreshesTokensOn401(t *testing.T) {
	shrinkRetryOptions(t, 3)

	var (
		requests   int
		authHeader []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		authHeader = append(authHeader, r.Header.Get("Authorization"))
		if requests == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"t1"}`))
	}))
	defer srv.Close()

	tokens := &fakeTokens{pair: auth.TokenPair{Catalog: "catalog-stale", Library: "library-stale"}}
	client := spotify.NewClient(zerolog.Nop(), tokens)
	resp, err := client.Get(context.Background(), spotify.Endpoint{URL: srv.URL, Audience: spotify.AudienceCatalog}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, 1, tokens.refreshes)
	require.Len(t, authHeader, 2)
	assert.Equal(t, "Bearer catalog-stale", authHeader[0])
	assert.Equal(t, "Bearer catalog-refreshed", authHeader[1])
}

func TestGetReturns404AsData(t *testing.T) {
	shrinkRetryOptions(t, 3)

	var requests int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	client := spotify.NewClient(zerolog.Nop(), &fakeTokens{pair: auth.TokenPair{Catalog: "c", Library: "l"}})
	resp, err := client.Get(context.Background(), spotify.Endpoint{URL: srv.URL, Audience: spotify.AudienceCatalog}, nil, nil)
	require.NoError(t, err)
	assert.True(t, resp.NotFound())
	assert.Equal(t, 1, requests)
}

func TestGetRetriesEmptyJSONBody(t *testing.T) {
	shrinkRetryOptions(t, 3)

	var requests int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.Header().Set("Content-Type", "application/json")
		if requests == 1 {
			_, _ = w.Write([]byte(`{}`))
			return
		}
		_, _ = w.Write([]byte(`{"id":"t1"}`))
	}))
	defer srv.Close()

	client := spotify.NewClient(zerolog.Nop(), &fakeTokens{pair: auth.TokenPair{Catalog: "c", Library: "l"}})
	resp, err := client.Get(context.Background(), spotify.Endpoint{URL: srv.URL, Audience: spotify.AudienceCatalog}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, requests)
	assert.JSONEq(t, `{"id":"t1"}`, string(resp.Body))
}

func TestGetSelectsTokenByAudience(t *testing.T) {
	shrinkRetryOptions(t, 0)

	var authHeader string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"items":[1]}`))
	}))
	defer srv.Close()

	client := spotify.NewClient(zerolog.Nop(), &fakeTokens{pair: auth.TokenPair{Catalog: "catalog-token", Library: "library-token"}})

	_, err := client.Get(context.Background(), spotify.Endpoint{URL: srv.URL, Audience: spotify.AudienceLibrary}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "Bearer library-token", authHeader)

	_, err = client.Get(context.Background(), spotify.Endpoint{URL: srv.URL, Audience: spotify.AudienceCatalog}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "Bearer catalog-token", authHeader)
}
