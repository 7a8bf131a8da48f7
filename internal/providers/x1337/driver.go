// Package x1337 scrapes the 1337x HTML search pages.
package x1337

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"

	"github.com/streamsieve/streamsieve/internal/indexer/types"
	"github.com/streamsieve/streamsieve/internal/providers/common"
)

var defaultMirrors = []string{
	"https://1337x.to",
	"https://x1337x.ws",
	"https://1377x.to",
}

const (
	searchTimeout = 10 * time.Second
	// maxDetailPages caps how many detail pages are fetched per search; the
	// magnet link only appears there.
	maxDetailPages = 10
)

// Driver is the hand-coded 1337x driver. The site sits behind Cloudflare, so
// fetches ride the protected fetcher and the driver lands in the slow tier.
type Driver struct {
	mirrors []string
	getter  common.Getter
	logger  zerolog.Logger
}

// New creates the driver. Empty mirrors fall back to the built-in list.
func New(mirrors []string, getter common.Getter, logger zerolog.Logger) *Driver {
	if len(mirrors) == 0 {
		mirrors = defaultMirrors
	}
	return &Driver{
		mirrors: mirrors,
		getter:  getter,
		logger:  logger.With().Str("driver", "1337x").Logger(),
	}
}

func (d *Driver) Name() string { return "1337x" }

func (d *Driver) Supports(ct types.ContentType) bool {
	return ct == types.ContentMovie || ct == types.ContentSeries
}

func (d *Driver) RequiresSolver() bool { return true }

type searchEntry struct {
	title   string
	path    string
	seeders int
	size    int64
}

// Search scrapes the search listing, then the top detail pages for magnets.
// Failures of any kind yield an empty list.
func (d *Driver) Search(ctx context.Context, q types.Query) []types.Result {
	query := strings.TrimSpace(q.Keywords)
	if query == "" {
		return nil
	}
	if q.Type == types.ContentSeries && q.Season > 0 {
		query = query + " " + seasonToken(q.Season, q.Episode)
	}

	ctx, cancel := context.WithTimeout(ctx, searchTimeout)
	defer cancel()

	var (
		entries []searchEntry
		base    string
	)
	for _, mirror := range d.mirrors {
		mirror = strings.TrimSuffix(mirror, "/")
		searchURL := mirror + "/search/" + url.PathEscape(query) + "/1/"

		var body string
		err := common.DoWithRetry(ctx, func() error {
			resp, err := d.getter.Get(ctx, searchURL)
			if err != nil {
				return err
			}
			body = resp.Body
			return nil
		})
		if err != nil {
			continue
		}

		entries = parseListing(body)
		if len(entries) > 0 {
			base = mirror
			break
		}
	}
	if len(entries) == 0 {
		return nil
	}
	if len(entries) > maxDetailPages {
		entries = entries[:maxDetailPages]
	}

	var results []types.Result
	for _, entry := range entries {
		if ctx.Err() != nil {
			break
		}
		resp, err := d.getter.Get(ctx, base+entry.path)
		if err != nil {
			continue
		}
		magnet := extractMagnet(resp.Body)
		if magnet == "" {
			continue
		}
		hash, ok := types.NormalizeInfoHash(common.InfoHashFromMagnet(magnet))
		if !ok {
			continue
		}
		results = append(results, types.Result{
			InfoHash:   hash,
			Title:      entry.title,
			Size:       entry.size,
			Seeders:    entry.seeders,
			Provider:   d.Name(),
			MagnetURI:  magnet,
			Resolution: common.DetectResolution(entry.title),
			Type:       q.Type,
			IMDBID:     q.IMDBID,
			Season:     q.Season,
			Episode:    q.Episode,
		})
	}
	return results
}

// parseListing pulls the result rows out of a search page.
func parseListing(body string) []searchEntry {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return nil
	}

	var entries []searchEntry
	doc.Find("table.table-list tbody tr").Each(func(_ int, row *goquery.Selection) {
		link := row.Find("td.coll-1 a").FilterFunction(func(_ int, s *goquery.Selection) bool {
			href, _ := s.Attr("href")
			return strings.HasPrefix(href, "/torrent/")
		}).First()
		path, ok := link.Attr("href")
		if !ok {
			return
		}
		title := common.CleanHTMLText(link.Text())
		if title == "" {
			return
		}

		// The size cell embeds the seeder count in a nested span; take the
		// leading size token only.
		sizeText := row.Find("td.coll-4").Contents().First().Text()
		if sizeText == "" {
			sizeText = row.Find("td.coll-4").Text()
		}

		entries = append(entries, searchEntry{
			title:   title,
			path:    path,
			seeders: common.ParseInt(row.Find("td.coll-2").Text()),
			size:    common.ParseHumanSize(sizeText),
		})
	})
	return entries
}

// extractMagnet pulls the magnet link from a detail page.
func extractMagnet(body string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return ""
	}
	magnet := ""
	doc.Find(`a[href^="magnet:"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		href, ok := s.Attr("href")
		if ok && href != "" {
			magnet = href
			return false
		}
		return true
	})
	return magnet
}

// seasonToken formats series numbering the way release names carry it.
func seasonToken(season, episode int) string {
	if episode > 0 {
		return fmt.Sprintf("S%02dE%02d", season, episode)
	}
	return fmt.Sprintf("S%02d", season)
}
