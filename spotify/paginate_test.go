package spotify_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xeptore/spotd/spotify"
	"github.com/xeptore/spotd/spotify/auth"
)

func pagedServer(t *testing.T, total int, requests *int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*requests++
		offset, err := strconv.Atoi(r.URL.Query().Get("offset"))
		require.NoError(t, err)
		limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
		require.NoError(t, err)

		items := make([]string, 0, limit)
		for i := offset; i < min(offset+limit, total); i++ {
			items = append(items, fmt.Sprintf("item-%d", i))
		}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(map[string]any{"items": items, "total": total}))
	}))
}

func extractItems(body []byte) ([]string, int, error) {
	var page struct {
		Items []string `json:"items"`
	}
	if err := json.Unmarshal(body, &page); nil != err {
		return nil, 0, err
	}
	return page.Items, len(page.Items), nil
}

func TestCollectAllShortLastPage(t *testing.T) {
	shrinkRetryOptions(t, 0)

	var requests int
	srv := pagedServer(t, 5, &requests)
	defer srv.Close()

	client := spotify.NewClient(zerolog.Nop(), &fakeTokens{pair: auth.TokenPair{Catalog: "c", Library: "l"}})
	items, err := spotify.CollectAll(context.Background(), client, spotify.Endpoint{URL: srv.URL, Audience: spotify.AudienceCatalog}, 2, extractItems)
	require.NoError(t, err)
	assert.Len(t, items, 5)
	assert.Equal(t, "item-0", items[0])
	assert.Equal(t, "item-4", items[4])
	// 2 + 2 + 1: the short third page ends the sweep.
	assert.Equal(t, 3, requests)
}

func TestCollectAllExactMultipleCostsExtraRound(t *testing.T) {
	shrinkRetryOptions(t, 0)

	var requests int
	srv := pagedServer(t, 4, &requests)
	defer srv.Close()

	client := spotify.NewClient(zerolog.Nop(), &fakeTokens{pair: auth.TokenPair{Catalog: "c", Library: "l"}})
	items, err := spotify.CollectAll(context.Background(), client, spotify.Endpoint{URL: srv.URL, Audience: spotify.AudienceCatalog}, 2, extractItems)
	require.NoError(t, err)
	assert.Len(t, items, 4)
	// Two full pages give no end-of-pages signal, so a third, empty round
	// is needed to terminate.
	assert.Equal(t, 3, requests)
}

func TestCollectAllStopsOn404(t *testing.T) {
	shrinkRetryOptions(t, 0)

	var requests int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	client := spotify.NewClient(zerolog.Nop(), &fakeTokens{pair: auth.TokenPair{Catalog: "c", Library: "l"}})
	items, err := spotify.CollectAll(context.Background(), client, spotify.Endpoint{URL: srv.URL, Audience: spotify.AudienceCatalog}, 2, extractItems)
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.Equal(t, 1, requests)
}
