package spotify_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xeptore/spotd/spotify"
)

type memoryCollection struct {
	complete bool
	stored   []string
	remote   []string
	fetches  int
}

func (m *memoryCollection) Complete(context.Context) (bool, error) { return m.complete, nil }

func (m *memoryCollection) MarkComplete(context.Context) error {
	m.complete = true
	return nil
}

func (m *memoryCollection) Load(context.Context) ([]string, error) { return m.stored, nil }

func (m *memoryCollection) Save(_ context.Context, items []string) error {
	m.stored = items
	return nil
}

func (m *memoryCollection) Fetch(context.Context) ([]string, error) {
	m.fetches++
	return m.remote, nil
}

func TestEnsureSweepsOnceThenReadsStore(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	col := &memoryCollection{remote: []string{"a", "b"}} //nolint:exhaustruct

	items, err := spotify.Ensure[string](ctx, col, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, items)
	assert.Equal(t, 1, col.fetches)
	assert.True(t, col.complete)

	// Second call must be a pure store read.
	col.remote = []string{"a", "b", "c"}
	items, err = spotify.Ensure[string](ctx, col, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, items)
	assert.Equal(t, 1, col.fetches)
}

func TestEnsureForceRefreshSweepsAgain(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	col := &memoryCollection{complete: true, stored: []string{"a"}, remote: []string{"a", "b"}} //nolint:exhaustruct

	items, err := spotify.Ensure[string](ctx, col, true)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, items)
	assert.Equal(t, 1, col.fetches)
}

func TestEnsureReturnsDurableStateNotSweepSnapshot(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	col := &truncatingCollection{memoryCollection{remote: []string{"a", "b", "c"}}} //nolint:exhaustruct

	items, err := spotify.Ensure[string](ctx, col, false)
	require.NoError(t, err)
	// The store kept fewer records than the sweep produced. The caller must
	// see what is durably stored.
	assert.Equal(t, []string{"a"}, items)
}

type truncatingCollection struct {
	memoryCollection
}

func (m *truncatingCollection) Save(_ context.Context, items []string) error {
	m.stored = items[:1]
	return nil
}
