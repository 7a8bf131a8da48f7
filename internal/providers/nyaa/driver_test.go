package nyaa

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

const rssPayload = `<?xml version="1.0" encoding="UTF-8"?>
<rss xmlns:nyaa="https://nyaa.si/xmlns/nyaa" version="2.0">
	<channel>
		<title>Nyaa - "frieren 05" - Torrent File RSS</title>
		<item>
			<title>[SubGroup] Frieren - 05 (1080p) [ABCD1234].mkv</title>
			<nyaa:infoHash>aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa</nyaa:infoHash>
			<nyaa:size>1.4 GiB</nyaa:size>
			<nyaa:seeders>250</nyaa:seeders>
			<pubDate>Fri, 06 Oct 2023 17:00:00 +0000</pubDate>
		</item>
		<item>
			<title>[Other] Frieren - 05 (720p).mkv</title>
			<nyaa:infoHash>not-a-hash</nyaa:infoHash>
			<nyaa:size>700 MiB</nyaa:size>
			<nyaa:seeders>12</nyaa:seeders>
			<pubDate>bad date</pubDate>
		</item>
	</channel>
</rss>`

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

func TestSearchParsesFeed(t *testing.T) {
	getter := &scriptedGetter{pages: map[string]string{"nyaa.si": rssPayload}}
	d := New(nil, getter, zerolog.Nop())

	results := d.Search(context.Background(), types.Query{
		Type:     types.ContentAnime,
		Keywords: "Frieren",
		KitsuID:  "44042",
		Episode:  5,
	})

	// The entry with a malformed infoHash is dropped.
	require.Len(t, results, 1)
	r := results[0]
	assert.Equal(t, "[SubGroup] Frieren - 05 (1080p) [ABCD1234].mkv", r.Title)
	assert.Equal(t, "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", r.InfoHash)
	gib := float64(1 << 30)
	assert.Equal(t, int64(1.4*gib), r.Size)
	assert.Equal(t, 250, r.Seeders)
	assert.Equal(t, "1080p", r.Resolution)
	assert.Equal(t, "44042", r.KitsuID)
	assert.False(t, r.UploadedAt.IsZero())

	// Episode numbering rides the query in fansub convention.
	require.NotEmpty(t, getter.calls)
	assert.Contains(t, getter.calls[0], "q=Frieren+05")
	assert.Contains(t, getter.calls[0], "c=1_2")
}

func TestSearchNeedsTitle(t *testing.T) {
	getter := &scriptedGetter{pages: map[string]string{"nyaa.si": rssPayload}}
	d := New(nil, getter, zerolog.Nop())

	assert.Nil(t, d.Search(context.Background(), types.Query{Type: types.ContentAnime}))
	assert.Empty(t, getter.calls)
}

func TestSearchWrongContentType(t *testing.T) {
	getter := &scriptedGetter{pages: map[string]string{"nyaa.si": rssPayload}}
	d := New(nil, getter, zerolog.Nop())

	assert.Nil(t, d.Search(context.Background(), types.Query{Type: types.ContentMovie, Keywords: "Frieren"}))
	assert.Empty(t, getter.calls)
}

func TestBuildQueryEpisodePadding(t *testing.T) {
	assert.Equal(t, "Frieren 05", buildQuery(types.Query{Keywords: "Frieren", Episode: 5}))
	assert.Equal(t, "Frieren 12", buildQuery(types.Query{Keywords: "Frieren", Episode: 12}))
	assert.Equal(t, "Frieren", buildQuery(types.Query{Keywords: "Frieren"}))
}
