package metadata

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamsieve/streamsieve/internal/indexer/types"
)

func newUpstream(hits *atomic.Int32) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		switch r.URL.Path {
		case "/meta/movie/tt0111161.json":
			fmt.Fprint(w, `{"meta": {"name": "The Shawshank Redemption", "releaseInfo": "1994", "genres": ["Drama"]}}`)
		case "/meta/series/tt0903747.json":
			fmt.Fprint(w, `{"meta": {"name": "Breaking Bad", "releaseInfo": "2008-2013"}}`)
		case "/meta/movie/tt0000000.json":
			fmt.Fprint(w, `{"meta": {}}`)
		default:
			http.NotFound(w, r)
		}
	}))
}

func TestResolveTitle(t *testing.T) {
	var hits atomic.Int32
	srv := newUpstream(&hits)
	defer srv.Close()

	r := NewResolver(Config{BaseURL: srv.URL}, zerolog.Nop())

	title, err := r.ResolveTitle(context.Background(), types.ContentMovie, "tt0111161")
	require.NoError(t, err)
	assert.Equal(t, "The Shawshank Redemption", title)

	// Series and anime both resolve through the series catalog.
	title, err = r.ResolveTitle(context.Background(), types.ContentSeries, "tt0903747")
	require.NoError(t, err)
	assert.Equal(t, "Breaking Bad", title)

	title, err = r.ResolveTitle(context.Background(), types.ContentAnime, "tt0903747")
	require.NoError(t, err)
	assert.Equal(t, "Breaking Bad", title)

	// The anime lookup shares the series cache entry.
	assert.Equal(t, int32(2), hits.Load())
}

func TestResolveTitleCaches(t *testing.T) {
	var hits atomic.Int32
	srv := newUpstream(&hits)
	defer srv.Close()

	r := NewResolver(Config{BaseURL: srv.URL, CacheTTL: time.Hour}, zerolog.Nop())

	for i := 0; i < 5; i++ {
		title, err := r.ResolveTitle(context.Background(), types.ContentMovie, "tt0111161")
		require.NoError(t, err)
		assert.Equal(t, "The Shawshank Redemption", title)
	}
	assert.Equal(t, int32(1), hits.Load())
}

func TestResolveTitleCollapsesConcurrentLookups(t *testing.T) {
	var hits atomic.Int32
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		time.Sleep(20 * time.Millisecond)
		fmt.Fprint(w, `{"meta": {"name": "The Shawshank Redemption"}}`)
	}))
	defer slow.Close()

	r := NewResolver(Config{BaseURL: slow.URL}, zerolog.Nop())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			title, err := r.ResolveTitle(context.Background(), types.ContentMovie, "tt0111161")
			assert.NoError(t, err)
			assert.Equal(t, "The Shawshank Redemption", title)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), hits.Load())
}

func TestResolveTitleErrors(t *testing.T) {
	var hits atomic.Int32
	srv := newUpstream(&hits)
	defer srv.Close()

	r := NewResolver(Config{BaseURL: srv.URL}, zerolog.Nop())

	// Empty meta name.
	_, err := r.ResolveTitle(context.Background(), types.ContentMovie, "tt0000000")
	assert.Error(t, err)

	// Unknown id.
	_, err = r.ResolveTitle(context.Background(), types.ContentMovie, "tt9999999")
	assert.Error(t, err)
}
