package x1337

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

const listingPage = `<html><body>
<table class="table-list">
	<tbody>
		<tr>
			<td class="coll-1">
				<a href="/sub/123/" class="icon"><i></i></a>
				<a href="/torrent/111/dune-2021-1080p/">Dune 2021 1080p WEBRip</a>
			</td>
			<td class="coll-2">512</td>
			<td class="coll-3">14</td>
			<td class="coll-4">2.1 GB<span class="seeds">512</span></td>
		</tr>
		<tr>
			<td class="coll-1">
				<a href="/sub/123/" class="icon"><i></i></a>
				<a href="/torrent/222/dune-2021-720p/">Dune 2021 720p WEBRip</a>
			</td>
			<td class="coll-2">1,024</td>
			<td class="coll-3">30</td>
			<td class="coll-4">900 MB<span class="seeds">1024</span></td>
		</tr>
	</tbody>
</table>
</body></html>`

const detailPage1 = `<html><body>
<a href="magnet:?xt=urn:btih:aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa&dn=Dune">Magnet Download</a>
</body></html>`

const detailPage2 = `<html><body>
<a href="magnet:?xt=urn:btih:bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb&dn=Dune">Magnet Download</a>
</body></html>`

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

func newTestDriver(getter *scriptedGetter) *Driver {
	return New([]string{"https://1337x.to"}, getter, zerolog.Nop())
}

func TestSearchScrapesListingAndDetails(t *testing.T) {
	getter := &scriptedGetter{pages: map[string]string{
		"/search/":      listingPage,
		"/torrent/111/": detailPage1,
		"/torrent/222/": detailPage2,
	}}
	d := newTestDriver(getter)

	results := d.Search(context.Background(), types.Query{
		Type:     types.ContentMovie,
		Keywords: "Dune",
		IMDBID:   "tt1160419",
	})

	require.Len(t, results, 2)
	assert.Equal(t, "Dune 2021 1080p WEBRip", results[0].Title)
	assert.Equal(t, "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", results[0].InfoHash)
	assert.Equal(t, 512, results[0].Seeders)
	gib := float64(1 << 30)
	assert.Equal(t, int64(2.1*gib), results[0].Size)
	assert.Equal(t, "1080p", results[0].Resolution)
	assert.Equal(t, "1337x", results[0].Provider)
	assert.Equal(t, 1024, results[1].Seeders)
}

func TestSearchSeriesQueryToken(t *testing.T) {
	getter := &scriptedGetter{pages: map[string]string{}}
	d := newTestDriver(getter)

	d.Search(context.Background(), types.Query{
		Type:     types.ContentSeries,
		Keywords: "Severance",
		Season:   2,
		Episode:  3,
	})
	require.NotEmpty(t, getter.calls)
	assert.Contains(t, getter.calls[0], "Severance%20S02E03")
}

func TestSearchSkipsDetailPagesWithoutMagnet(t *testing.T) {
	getter := &scriptedGetter{pages: map[string]string{
		"/search/":      listingPage,
		"/torrent/111/": detailPage1,
		"/torrent/222/": `<html><body>no magnet here</body></html>`,
	}}
	d := newTestDriver(getter)

	results := d.Search(context.Background(), types.Query{Type: types.ContentMovie, Keywords: "Dune"})
	require.Len(t, results, 1)
	assert.Equal(t, "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", results[0].InfoHash)
}

func TestSearchNeedsKeywords(t *testing.T) {
	getter := &scriptedGetter{pages: map[string]string{}}
	d := newTestDriver(getter)

	assert.Nil(t, d.Search(context.Background(), types.Query{Type: types.ContentMovie}))
	assert.Empty(t, getter.calls)
}

func TestParseListing(t *testing.T) {
	entries := parseListing(listingPage)
	require.Len(t, entries, 2)
	assert.Equal(t, "Dune 2021 1080p WEBRip", entries[0].title)
	assert.Equal(t, "/torrent/111/dune-2021-1080p/", entries[0].path)
	assert.Equal(t, 512, entries[0].seeders)
	gib := float64(1 << 30)
	assert.Equal(t, int64(2.1*gib), entries[0].size)

	assert.Empty(t, parseListing("<html><body>challenge page</body></html>"))
}

func TestExtractMagnet(t *testing.T) {
	assert.Contains(t, extractMagnet(detailPage1), "magnet:?xt=urn:btih:aaaa")
	assert.Equal(t, "", extractMagnet("<html><body><a href=\"/other\">x</a></body></html>"))
}

func TestSeasonToken(t *testing.T) {
	assert.Equal(t, "S02E03", seasonToken(2, 3))
	assert.Equal(t, "S10", seasonToken(10, 0))
}
