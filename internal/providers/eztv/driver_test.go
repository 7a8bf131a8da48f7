package eztv

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamsieve/streamsieve/internal/indexer/fetch"
	"github.com/streamsieve/streamsieve/internal/indexer/types"
)

const getTorrentsPayload = `{
	"torrents_count": 4,
	"torrents": [
		{"title": "Show S01E03 1080p WEB", "hash": "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", "magnet_url": "magnet:?xt=urn:btih:aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", "season": "1", "episode": "3", "size_bytes": "1500000000", "seeds": 50, "date_released_unix": 1600000000},
		{"title": "Show S01E04 1080p WEB", "hash": "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb", "season": "1", "episode": "4", "size_bytes": "1500000000", "seeds": 40},
		{"title": "Show S02E03 1080p WEB", "hash": "cccccccccccccccccccccccccccccccccccccccc", "season": "2", "episode": "3", "size_bytes": "1500000000", "seeds": 30},
		{"title": "Show Season 1 Complete", "hash": "dddddddddddddddddddddddddddddddddddddddd", "season": "1", "episode": "0", "size_bytes": "9000000000", "seeds": 20}
	]
}`

type scriptedGetter struct {
	mu    sync.Mutex
	calls []string
	pages map[string]string
}

func (g *scriptedGetter) Get(ctx context.Context, rawURL string) (*fetch.Response, error) {
	g.mu.Lock()
	g.calls = append(g.calls, rawURL)
	g.mu.Unlock()
	for substr, body := range g.pages {
		if strings.Contains(rawURL, substr) {
			return &fetch.Response{StatusCode: 200, Body: body}, nil
		}
	}
	return nil, errors.New("connection refused")
}

func TestSearchFiltersSeasonAndEpisode(t *testing.T) {
	getter := &scriptedGetter{pages: map[string]string{"eztvx.to": getTorrentsPayload}}
	d := New(nil, getter, zerolog.Nop())

	results := d.Search(context.Background(), types.Query{
		Type:    types.ContentSeries,
		IMDBID:  "tt1234567",
		Season:  1,
		Episode: 3,
	})

	// S01E03 matches; the season pack (episode 0) passes the episode filter.
	require.Len(t, results, 2)
	assert.Equal(t, "Show S01E03 1080p WEB", results[0].Title)
	assert.Equal(t, 1, results[0].Season)
	assert.Equal(t, 3, results[0].Episode)
	assert.Equal(t, int64(1500000000), results[0].Size)
	assert.Equal(t, "magnet:?xt=urn:btih:aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", results[0].MagnetURI)
	assert.Equal(t, "Show Season 1 Complete", results[1].Title)

	// The endpoint is keyed by the numeric id.
	require.NotEmpty(t, getter.calls)
	assert.Contains(t, getter.calls[0], "imdb_id=1234567")
}

func TestSearchBuildsMagnetWhenMissing(t *testing.T) {
	getter := &scriptedGetter{pages: map[string]string{"eztvx.to": getTorrentsPayload}}
	d := New(nil, getter, zerolog.Nop())

	results := d.Search(context.Background(), types.Query{
		Type:    types.ContentSeries,
		IMDBID:  "tt1234567",
		Season:  1,
		Episode: 4,
	})
	require.Len(t, results, 2)
	assert.Contains(t, results[0].MagnetURI, "magnet:?xt=urn:btih:bbbb")
}

func TestSearchRequiresIMDBID(t *testing.T) {
	getter := &scriptedGetter{pages: map[string]string{"eztvx.to": getTorrentsPayload}}
	d := New(nil, getter, zerolog.Nop())

	assert.Nil(t, d.Search(context.Background(), types.Query{Type: types.ContentSeries, Keywords: "some show"}))
	assert.Empty(t, getter.calls)
}

func TestSearchWrongContentType(t *testing.T) {
	getter := &scriptedGetter{pages: map[string]string{"eztvx.to": getTorrentsPayload}}
	d := New(nil, getter, zerolog.Nop())

	assert.Nil(t, d.Search(context.Background(), types.Query{Type: types.ContentMovie, IMDBID: "tt1234567"}))
	assert.Empty(t, getter.calls)
}
