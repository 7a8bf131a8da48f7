package definition

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	c, err := NewCache(t.TempDir(), zerolog.Nop())
	require.NoError(t, err)
	return c
}

func TestCachePutGet(t *testing.T) {
	c := newTestCache(t)

	raw := []byte(sampleYAML)
	def, err := Parse(raw)
	require.NoError(t, err)
	require.NoError(t, c.Put(def.ID, raw, def))

	got, err := c.Get("example")
	require.NoError(t, err)
	assert.Equal(t, "Example", got.Name)

	// A fresh cache over the same directory parses it from disk.
	c2, err := NewCache(c.dir, zerolog.Nop())
	require.NoError(t, err)
	got, err = c2.Get("example")
	require.NoError(t, err)
	assert.Equal(t, "Example", got.Name)

	_, err = c.Get("missing")
	assert.Error(t, err)
}

func TestCacheList(t *testing.T) {
	c := newTestCache(t)

	raw := []byte(sampleYAML)
	def, err := Parse(raw)
	require.NoError(t, err)
	require.NoError(t, c.Put("beta", raw, def))
	require.NoError(t, c.Put("alpha", raw, def))

	// Stray files are not definitions.
	require.NoError(t, os.WriteFile(filepath.Join(c.dir, "notes.txt"), []byte("x"), 0o640))

	ids, err := c.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "beta"}, ids)
}

func TestCacheIndexRoundTrip(t *testing.T) {
	c := newTestCache(t)

	idx, err := c.ReadIndex()
	require.NoError(t, err)
	assert.True(t, idx.LastSyncAt.IsZero())

	now := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, c.WriteIndex(Index{LastSyncAt: now, IDs: []string{"alpha"}}))

	idx, err = c.ReadIndex()
	require.NoError(t, err)
	assert.Equal(t, now, idx.LastSyncAt.UTC())
	assert.Equal(t, []string{"alpha"}, idx.IDs)
}
