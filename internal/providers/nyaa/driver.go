// Package nyaa queries the Nyaa anime tracker over its RSS feed.
package nyaa

import (
	"context"
	"encoding/xml"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/streamsieve/streamsieve/internal/indexer/types"
	"github.com/streamsieve/streamsieve/internal/providers/common"
)

var defaultMirrors = []string{
	"https://nyaa.si",
	"https://nyaa.land",
}

const searchTimeout = 8 * time.Second

// Driver is the hand-coded Nyaa driver. Anime only, full-text search, so it
// needs a resolved title to be useful.
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
		logger:  logger.With().Str("driver", "nyaa").Logger(),
	}
}

func (d *Driver) Name() string { return "nyaa" }

func (d *Driver) Supports(ct types.ContentType) bool { return ct == types.ContentAnime }

func (d *Driver) RequiresSolver() bool { return false }

type rssFeed struct {
	Channel struct {
		Items []rssItem `xml:"item"`
	} `xml:"channel"`
}

type rssItem struct {
	Title    string `xml:"title"`
	InfoHash string `xml:"infoHash"`
	Size     string `xml:"size"`
	Seeders  int    `xml:"seeders"`
	PubDate  string `xml:"pubDate"`
}

// Search queries the English-translated anime category feed. Failures of any
// kind yield an empty list.
func (d *Driver) Search(ctx context.Context, q types.Query) []types.Result {
	if q.Type != types.ContentAnime {
		return nil
	}
	query := buildQuery(q)
	if query == "" {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, searchTimeout)
	defer cancel()

	path := "/?page=rss&c=1_2&f=0&q=" + url.QueryEscape(query)

	var feed rssFeed
	found := false
	for _, mirror := range d.mirrors {
		var body string
		err := common.DoWithRetry(ctx, func() error {
			resp, err := d.getter.Get(ctx, strings.TrimSuffix(mirror, "/")+path)
			if err != nil {
				return err
			}
			body = resp.Body
			return nil
		})
		if err != nil {
			continue
		}
		if err := xml.Unmarshal([]byte(body), &feed); err != nil {
			d.logger.Debug().Err(err).Str("mirror", mirror).Msg("Bad RSS payload")
			continue
		}
		found = true
		break
	}
	if !found {
		return nil
	}

	var results []types.Result
	for _, item := range feed.Channel.Items {
		hash, ok := types.NormalizeInfoHash(item.InfoHash)
		if !ok {
			continue
		}
		r := types.Result{
			InfoHash:   hash,
			Title:      strings.TrimSpace(item.Title),
			Size:       common.ParseHumanSize(item.Size),
			Seeders:    item.Seeders,
			Provider:   d.Name(),
			MagnetURI:  common.BuildMagnet(hash, item.Title, common.DefaultTrackers),
			Resolution: common.DetectResolution(item.Title),
			Type:       types.ContentAnime,
			KitsuID:    q.KitsuID,
			Season:     q.Season,
			Episode:    q.Episode,
		}
		if t, err := time.Parse(time.RFC1123Z, item.PubDate); err == nil {
			r.UploadedAt = t
		}
		results = append(results, r)
	}
	return results
}

// buildQuery prefers the resolved title and appends episode numbering in the
// fansub convention ("<title> 05").
func buildQuery(q types.Query) string {
	title := strings.TrimSpace(q.Keywords)
	if title == "" {
		return ""
	}
	if q.Episode > 0 {
		return title + " " + pad2(q.Episode)
	}
	return title
}

func pad2(n int) string {
	if n < 10 {
		return "0" + strconv.Itoa(n)
	}
	return strconv.Itoa(n)
}
